package netio

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"net/netip"
)

// DryRunSuccessRate is the probability a simulated send succeeds when
// perfect simulation is disabled.
const DryRunSuccessRate = 0.98

// DryRunChannels implements Channels without opening any sockets.
// Send samples a Bernoulli outcome so the stats and worker harness are
// exercised exactly as in live mode, without privileges and without any
// bytes touching the wire.
//
// Not safe for concurrent use; each worker owns its own instance.
type DryRunChannels struct {
	perfect bool
	src     *rand.Rand
	closed  bool
}

// NewDryRunChannels creates the dry-run shim. With perfect set, every
// simulated send succeeds; otherwise sends succeed with
// DryRunSuccessRate probability.
func NewDryRunChannels(perfect bool) *DryRunChannels {
	var seed [16]byte
	_, _ = cryptorand.Read(seed[:])
	return &DryRunChannels{
		perfect: perfect,
		src: rand.New(rand.NewPCG(
			binary.LittleEndian.Uint64(seed[0:8]),
			binary.LittleEndian.Uint64(seed[8:16]),
		)),
	}
}

// Send simulates a transmission outcome.
func (c *DryRunChannels) Send(_ []byte, _ netip.Addr, _ ChannelKind) error {
	if c.closed {
		return ErrChannelClosed
	}
	if c.perfect || c.src.Float64() < DryRunSuccessRate {
		return nil
	}
	return ErrSimulatedDrop
}

// Close marks the shim closed. It holds no resources.
func (c *DryRunChannels) Close() error {
	c.closed = true
	return nil
}
