// Package stats implements the lock-free statistics subsystem: a shared
// atomic counter core, per-worker local batchers that flush into it, a
// per-CPU sharded variant, snapshot export, and a Prometheus bridge.
package stats

import (
	"sync/atomic"
	"time"

	"github.com/routelab/netburst/internal/packet"
)

// Core is the process-wide lock-free counter block. All mutation goes
// through atomic adds; readers take relaxed per-counter snapshots — the
// snapshot is consistent per counter but not linearizable across counters.
//
// Counters are monotonically non-decreasing for the lifetime of a session.
type Core struct {
	packetsSent    atomic.Uint64
	packetsFailed  atomic.Uint64
	bytesSent      atomic.Uint64
	protocolCounts [packet.ProtocolCount]atomic.Uint64
	start          time.Time
}

// NewCore creates a Core with the start timestamp recorded.
func NewCore() *Core {
	return &Core{start: time.Now()}
}

// IncrementSent records one transmitted packet of the given size and
// protocol bucket.
func (c *Core) IncrementSent(bytes uint64, proto packet.ProtocolID) {
	c.packetsSent.Add(1)
	c.bytesSent.Add(bytes)
	c.protocolCounts[proto].Add(1)
}

// IncrementFailed records one failed build or send.
func (c *Core) IncrementFailed() {
	c.packetsFailed.Add(1)
}

// addSent merges a batched sent count. Used by the Local flusher.
func (c *Core) addSent(packets, bytes uint64) {
	if packets > 0 {
		c.packetsSent.Add(packets)
	}
	if bytes > 0 {
		c.bytesSent.Add(bytes)
	}
}

// addFailed merges a batched failure count.
func (c *Core) addFailed(packets uint64) {
	if packets > 0 {
		c.packetsFailed.Add(packets)
	}
}

// addProtocol merges a batched per-protocol count.
func (c *Core) addProtocol(proto packet.ProtocolID, count uint64) {
	if count > 0 {
		c.protocolCounts[proto].Add(count)
	}
}

// Snapshot returns the current counter values. Individual counters are
// read independently; no cross-counter ordering is promised.
func (c *Core) Snapshot() Snapshot {
	s := Snapshot{
		PacketsSent:   c.packetsSent.Load(),
		PacketsFailed: c.packetsFailed.Load(),
		BytesSent:     c.bytesSent.Load(),
		Elapsed:       time.Since(c.start),
	}
	for i := range c.protocolCounts {
		s.ProtocolCounts[i] = c.protocolCounts[i].Load()
	}
	return s
}

// Snapshot is a point-in-time view of the counters.
type Snapshot struct {
	PacketsSent    uint64
	PacketsFailed  uint64
	BytesSent      uint64
	ProtocolCounts [packet.ProtocolCount]uint64
	Elapsed        time.Duration
}

// PacketsPerSecond returns the average send rate over the session.
func (s Snapshot) PacketsPerSecond() float64 {
	secs := s.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(s.PacketsSent) / secs
}

// MegabitsPerSecond returns the average throughput over the session.
func (s Snapshot) MegabitsPerSecond() float64 {
	secs := s.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(s.BytesSent) * 8 / (secs * 1_000_000)
}
