package stats

import "github.com/routelab/netburst/internal/packet"

// DefaultBatchThreshold is the number of recorded operations after which
// a Local accumulator flushes into the shared Core.
const DefaultBatchThreshold = 50

// Local is a per-worker scalar mirror of the Core counters. Increments
// touch only plain fields; every threshold operations the accumulated
// deltas are added into the shared atomics and reset. This trades a
// staleness window of at most threshold packets per worker for far less
// cache-line traffic on the hot counters.
//
// Workers must call Flush on exit so residual counts are never lost —
// the worker loop does this with defer, covering panics.
//
// Not safe for concurrent use; each worker owns its own Local.
type Local struct {
	core *Core

	sent           uint64
	failed         uint64
	bytes          uint64
	protocolCounts [packet.ProtocolCount]uint64

	ops       int
	threshold int
}

// NewLocal creates a Local accumulator flushing into core. A threshold
// of zero or less selects DefaultBatchThreshold.
func NewLocal(core *Core, threshold int) *Local {
	if threshold <= 0 {
		threshold = DefaultBatchThreshold
	}
	return &Local{core: core, threshold: threshold}
}

// IncrementSent records one transmitted packet locally.
func (l *Local) IncrementSent(bytes uint64, proto packet.ProtocolID) {
	l.sent++
	l.bytes += bytes
	l.protocolCounts[proto]++
	l.ops++
	if l.ops >= l.threshold {
		l.Flush()
	}
}

// IncrementFailed records one failed packet locally.
func (l *Local) IncrementFailed() {
	l.failed++
	l.ops++
	if l.ops >= l.threshold {
		l.Flush()
	}
}

// Flush merges the accumulated deltas into the shared Core and resets the
// local mirror. Flushing an empty accumulator is a no-op.
func (l *Local) Flush() {
	l.core.addSent(l.sent, l.bytes)
	l.core.addFailed(l.failed)
	l.sent, l.bytes, l.failed = 0, 0, 0

	for i, count := range l.protocolCounts {
		l.core.addProtocol(packet.ProtocolID(i), count)
		l.protocolCounts[i] = 0
	}

	l.ops = 0
}
