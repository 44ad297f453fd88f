package packet_test

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/routelab/netburst/internal/packet"
)

func countKinds(kinds []packet.Kind) map[packet.Kind]int {
	counts := make(map[packet.Kind]int)
	for _, k := range kinds {
		counts[k]++
	}
	return counts
}

func TestRingAllUDP(t *testing.T) {
	t.Parallel()

	r := packet.NewRing(packet.Mix{UDP: 1.0}, netip.MustParseAddr("192.168.1.1"))
	counts := countKinds(r.Kinds())
	if counts[packet.KindUDP] != packet.RingSize {
		t.Errorf("UDP count = %d, want %d", counts[packet.KindUDP], packet.RingSize)
	}
}

func TestRingEvenSplit(t *testing.T) {
	t.Parallel()

	r := packet.NewRing(packet.Mix{UDP: 0.5, TCPSyn: 0.5}, netip.MustParseAddr("192.168.1.1"))
	counts := countKinds(r.Kinds())
	if counts[packet.KindUDP] != 50 || counts[packet.KindTCPSyn] != 50 {
		t.Errorf("counts = %v, want 50 UDP / 50 TCP-SYN", counts)
	}
}

func TestRingHasExactlyHundredEntries(t *testing.T) {
	t.Parallel()

	mix := packet.Mix{UDP: 0.33, TCPSyn: 0.33, ICMP: 0.34}
	r := packet.NewRing(mix, netip.MustParseAddr("10.0.0.1"))
	if got := len(r.Kinds()); got != packet.RingSize {
		t.Fatalf("ring size = %d, want %d", got, packet.RingSize)
	}
}

func TestRingFamilyFilterRenormalizes(t *testing.T) {
	t.Parallel()

	mix := packet.Mix{UDP: 0.5, IPv6UDP: 0.5}

	// IPv4 target: the IPv6 half is excluded, remaining weight renormalized.
	r4 := packet.NewRing(mix, netip.MustParseAddr("192.168.1.1"))
	if counts := countKinds(r4.Kinds()); counts[packet.KindUDP] != packet.RingSize {
		t.Errorf("IPv4 ring counts = %v, want all UDP", counts)
	}

	// IPv6 target: only the IPv6 variants are eligible.
	r6 := packet.NewRing(mix, netip.MustParseAddr("fe80::1"))
	if counts := countKinds(r6.Kinds()); counts[packet.KindIPv6UDP] != packet.RingSize {
		t.Errorf("IPv6 ring counts = %v, want all IPv6-UDP", counts)
	}
}

func TestRingFallbackFiller(t *testing.T) {
	t.Parallel()

	// No eligible weight at all: ring fills with the family's UDP kind.
	r4 := packet.NewRing(packet.Mix{IPv6UDP: 1.0}, netip.MustParseAddr("192.168.1.1"))
	if counts := countKinds(r4.Kinds()); counts[packet.KindUDP] != packet.RingSize {
		t.Errorf("IPv4 fallback counts = %v, want all UDP", counts)
	}

	r6 := packet.NewRing(packet.Mix{ARP: 1.0}, netip.MustParseAddr("fc00::1"))
	if counts := countKinds(r6.Kinds()); counts[packet.KindIPv6UDP] != packet.RingSize {
		t.Errorf("IPv6 fallback counts = %v, want all IPv6-UDP", counts)
	}
}

func TestRingPrefixMatchesMix(t *testing.T) {
	t.Parallel()

	// The ring interleaves kinds, so even a short prefix reflects the
	// configured distribution.
	r := packet.NewRing(packet.Mix{UDP: 0.5, TCPSyn: 0.5}, netip.MustParseAddr("192.168.1.1"))
	prefix := countKinds(r.Kinds()[:10])
	if prefix[packet.KindUDP] != 5 || prefix[packet.KindTCPSyn] != 5 {
		t.Errorf("10-entry prefix = %v, want 5 UDP / 5 TCP-SYN", prefix)
	}
}

func TestRingNextCycles(t *testing.T) {
	t.Parallel()

	r := packet.NewRing(packet.Mix{UDP: 0.5, ICMP: 0.5}, netip.MustParseAddr("192.168.1.1"))
	counts := make(map[packet.Kind]int)
	for i := 0; i < 2*packet.RingSize; i++ {
		counts[r.Next()]++
	}
	if counts[packet.KindUDP] != 100 || counts[packet.KindICMP] != 100 {
		t.Errorf("two full cycles = %v, want 100 UDP / 100 ICMP", counts)
	}
}

func TestMixValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mix     packet.Mix
		wantErr error
	}{
		{"all udp", packet.Mix{UDP: 1.0}, nil},
		{"even split", packet.Mix{UDP: 0.5, TCPSyn: 0.5}, nil},
		{"within tolerance", packet.Mix{UDP: 0.9995}, nil},
		{"sum too low", packet.Mix{UDP: 0.5}, packet.ErrRatioSum},
		{"sum too high", packet.Mix{UDP: 0.8, ICMP: 0.8}, packet.ErrRatioSum},
		{"negative ratio", packet.Mix{UDP: 1.5, ICMP: -0.5}, packet.ErrRatioOutOfRange},
		{"ratio above one", packet.Mix{UDP: 1.2}, packet.ErrRatioOutOfRange},
		{"empty", packet.Mix{}, packet.ErrRatioSum},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.mix.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
