package rng_test

import (
	"testing"

	"github.com/routelab/netburst/internal/rng"
)

func TestPortRange(t *testing.T) {
	t.Parallel()

	b := rng.NewSeeded(1, 2)
	for i := 0; i < 3*rng.DefaultBatchSize; i++ {
		p := b.Port()
		if p < 1024 {
			t.Fatalf("Port() = %d, want >= 1024", p)
		}
	}
}

func TestTTLRange(t *testing.T) {
	t.Parallel()

	b := rng.NewSeeded(3, 4)
	for i := 0; i < 3*rng.DefaultBatchSize; i++ {
		ttl := b.TTL()
		if ttl < 32 || ttl >= 128 {
			t.Fatalf("TTL() = %d, want in [32, 128)", ttl)
		}
	}
}

func TestFlowLabelWidth(t *testing.T) {
	t.Parallel()

	b := rng.NewSeeded(5, 6)
	for i := 0; i < 2*rng.DefaultBatchSize; i++ {
		if fl := b.FlowLabel(); fl > 0xFFFFF {
			t.Fatalf("FlowLabel() = %#x, want <= 0xFFFFF", fl)
		}
	}
}

func TestDeterministicWithSameSeed(t *testing.T) {
	t.Parallel()

	a := rng.NewSeeded(42, 43)
	b := rng.NewSeeded(42, 43)
	for i := 0; i < 100; i++ {
		if a.Sequence() != b.Sequence() {
			t.Fatal("same seed produced diverging sequences")
		}
	}
}

func TestPayloadSmallAndLarge(t *testing.T) {
	t.Parallel()

	b := rng.NewSeeded(7, 8)

	small := make([]byte, 64)
	b.Payload(small)

	// Large payloads bypass the byte pool; the pool occupancy must not
	// drop below where the small fill left it.
	before := b.Remaining(rng.ValueByte)
	large := make([]byte, rng.DefaultBatchSize)
	b.Payload(large)
	if after := b.Remaining(rng.ValueByte); after != before {
		t.Errorf("large payload drained byte pool: %d -> %d", before, after)
	}

	allZero := true
	for _, v := range large {
		if v != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		t.Error("large payload fill produced all zeros")
	}
}

func TestReplenishIfNeeded(t *testing.T) {
	t.Parallel()

	b := rng.NewSeeded(9, 10)

	// Drain the port pool below the 25% low-water mark.
	drain := rng.DefaultBatchSize - rng.DefaultBatchSize/4 + 1
	for i := 0; i < drain; i++ {
		b.Port()
	}
	if !b.NeedsReplenish() {
		t.Fatal("NeedsReplenish() = false after draining port pool")
	}

	b.ReplenishIfNeeded()
	if got := b.Remaining(rng.ValuePort); got != rng.DefaultBatchSize {
		t.Errorf("Remaining(ValuePort) = %d after replenish, want %d", got, rng.DefaultBatchSize)
	}
	if b.NeedsReplenish() {
		t.Error("NeedsReplenish() = true after ReplenishIfNeeded")
	}
}

func TestIntRange(t *testing.T) {
	t.Parallel()

	b := rng.NewSeeded(11, 12)
	for i := 0; i < 1000; i++ {
		v := b.IntRange(8, 57)
		if v < 8 || v >= 57 {
			t.Fatalf("IntRange(8, 57) = %d", v)
		}
	}
	if v := b.IntRange(5, 5); v != 5 {
		t.Errorf("IntRange(5, 5) = %d, want 5", v)
	}
}

func TestBoolProbabilityExtremes(t *testing.T) {
	t.Parallel()

	b := rng.NewSeeded(13, 14)
	for i := 0; i < 100; i++ {
		if b.Bool(0) {
			t.Fatal("Bool(0) returned true")
		}
		if !b.Bool(1) {
			t.Fatal("Bool(1) returned false")
		}
	}
}
