package engine

import (
	"testing"
	"time"

	"github.com/routelab/netburst/internal/netio"
	"github.com/routelab/netburst/internal/packet"
)

func TestChannelKindFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind packet.Kind
		want netio.ChannelKind
	}{
		{packet.KindUDP, netio.ChannelIPv4},
		{packet.KindTCPSyn, netio.ChannelIPv4},
		{packet.KindTCPRst, netio.ChannelIPv4},
		{packet.KindICMP, netio.ChannelIPv4},
		{packet.KindIPv6UDP, netio.ChannelIPv6},
		{packet.KindIPv6TCP, netio.ChannelIPv6},
		{packet.KindIPv6ICMP, netio.ChannelIPv6},
		{packet.KindARP, netio.ChannelL2},
	}
	for _, tt := range tests {
		if got := channelKindFor(tt.kind); got != tt.want {
			t.Errorf("channelKindFor(%s) = %s, want %s", tt.kind, got, tt.want)
		}
	}
}

func TestPerPacketDelay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		rate    uint64
		threads int
		want    time.Duration
	}{
		{"100pps over 4 workers", 100, 4, 40 * time.Millisecond},
		{"1pps single worker", 1, 1, time.Second},
		{"10000pps over 10 workers", 10_000, 10, time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := perPacketDelay(tt.rate, tt.threads); got != tt.want {
				t.Errorf("perPacketDelay(%d, %d) = %v, want %v", tt.rate, tt.threads, got, tt.want)
			}
		})
	}
}

func TestBurstLenAdaptsToRate(t *testing.T) {
	t.Parallel()

	w := &worker{baseDelay: perPacketDelay(10, 1)}
	if got := w.burstLen(); got != 10 {
		t.Errorf("burstLen at 10 pps = %d, want 10", got)
	}

	w = &worker{baseDelay: perPacketDelay(1, 1)}
	if got := w.burstLen(); got != 1 {
		t.Errorf("burstLen at 1 pps = %d, want 1", got)
	}

	w = &worker{baseDelay: perPacketDelay(10_000, 1)}
	if got := w.burstLen(); got != BurstSize {
		t.Errorf("burstLen at 10000 pps = %d, want %d", got, BurstSize)
	}
}

func TestGuardReleasesOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	g := NewGuard(func() { calls++ })
	g.Release()
	g.Release()
	if calls != 1 {
		t.Errorf("release ran %d times, want 1", calls)
	}
}
