package stats

import (
	"runtime"
	"sync/atomic"
)

// Sharded spreads counter traffic over one Core per CPU. Workers are
// assigned a shard round-robin at construction; readers aggregate by
// element-wise summation. Only a win when the platform makes a contended
// atomic more expensive than the extra cores — the single shared Core
// with Local batching is the recommended baseline.
type Sharded struct {
	cores []*Core
	next  atomic.Uint64
}

// NewSharded creates a Sharded aggregate with n shards; n <= 0 selects
// one shard per CPU.
func NewSharded(n int) *Sharded {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if n < 1 {
		n = 1
	}
	cores := make([]*Core, n)
	for i := range cores {
		cores[i] = NewCore()
	}
	return &Sharded{cores: cores}
}

// Assign returns the next shard round-robin. Each worker calls this once
// at construction and keeps the returned Core.
func (s *Sharded) Assign() *Core {
	idx := s.next.Add(1) - 1
	return s.cores[idx%uint64(len(s.cores))]
}

// Aggregate sums all shards into one snapshot. Elapsed is the maximum
// across shards.
func (s *Sharded) Aggregate() Snapshot {
	var total Snapshot
	for _, core := range s.cores {
		snap := core.Snapshot()
		total.PacketsSent += snap.PacketsSent
		total.PacketsFailed += snap.PacketsFailed
		total.BytesSent += snap.BytesSent
		for i := range snap.ProtocolCounts {
			total.ProtocolCounts[i] += snap.ProtocolCounts[i]
		}
		if snap.Elapsed > total.Elapsed {
			total.Elapsed = snap.Elapsed
		}
	}
	return total
}
