// Package rng provides batched random value generation for the packet
// construction hot path.
//
// Per-value dispatch into a general-purpose generator dominates per-packet
// cost in naive implementations. Each value type keeps a pre-filled FIFO
// pool of BatchSize entries; producers pop from the pool and refill only
// when it runs dry, cutting the underlying generator dispatch count by the
// batch size.
package rng

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
)

// DefaultBatchSize is the capacity of each per-value-type pool.
const DefaultBatchSize = 1000

// replenishDivisor controls the low-water mark for proactive refills:
// a pool under batchSize/replenishDivisor occupancy is considered low.
const replenishDivisor = 4

// Value ranges produced by the batched generators.
const (
	// portMin is the lowest ephemeral source port generated (inclusive).
	portMin = 1024
	// portMax is the upper bound for generated source ports (exclusive).
	portMax = 65535

	// ttlMin is the lowest generated TTL / hop limit (inclusive).
	ttlMin = 32
	// ttlMax is the upper bound for generated TTLs (exclusive).
	ttlMax = 128

	// flowLabelMax is the exclusive upper bound for the 20-bit IPv6 flow
	// label (values run 0 through 0xFFFFF).
	flowLabelMax = 1 << 20
)

// ValueType identifies one of the batched pools, for occupancy inspection.
type ValueType uint8

// Batched pool identifiers.
const (
	ValuePort ValueType = iota
	ValueSequence
	ValueIdentification
	ValueTTL
	ValueWindow
	ValueFlowLabel
	ValueByte
)

// pool is a FIFO of pre-generated values. Values are consumed from head;
// a refill rewrites the whole backing slice.
type pool[T any] struct {
	buf  []T
	head int
}

func (p *pool[T]) remaining() int { return len(p.buf) - p.head }

func (p *pool[T]) pop() (T, bool) {
	var zero T
	if p.head >= len(p.buf) {
		return zero, false
	}
	v := p.buf[p.head]
	p.head++
	return v, true
}

func (p *pool[T]) refill(size int, gen func() T) {
	if cap(p.buf) < size {
		p.buf = make([]T, size)
	}
	p.buf = p.buf[:size]
	for i := range p.buf {
		p.buf[i] = gen()
	}
	p.head = 0
}

// Batched generates packet-field random values from pre-filled pools.
// Not safe for concurrent use; each worker owns its own instance.
type Batched struct {
	src       *rand.Rand
	batchSize int

	ports     pool[uint16]
	sequences pool[uint32]
	ids       pool[uint16]
	ttls      pool[uint8]
	windows   pool[uint16]
	flows     pool[uint32]
	bytes     pool[byte]
}

// New creates a Batched generator seeded from the operating system's
// entropy source, with the default batch size.
func New() *Batched {
	var seed [16]byte
	// crypto/rand.Read never fails on supported platforms.
	_, _ = cryptorand.Read(seed[:])
	return NewSeeded(
		binary.LittleEndian.Uint64(seed[0:8]),
		binary.LittleEndian.Uint64(seed[8:16]),
	)
}

// NewSeeded creates a Batched generator with a deterministic seed and the
// default batch size. Used by tests that need reproducible sequences.
func NewSeeded(seed1, seed2 uint64) *Batched {
	return newWithBatchSize(seed1, seed2, DefaultBatchSize)
}

func newWithBatchSize(seed1, seed2 uint64, batchSize int) *Batched {
	b := &Batched{
		src:       rand.New(rand.NewPCG(seed1, seed2)),
		batchSize: batchSize,
	}
	b.refillAll()
	return b
}

// BatchSize returns the configured pool capacity.
func (b *Batched) BatchSize() int { return b.batchSize }

// Port returns a random source port in [1024, 65535).
func (b *Batched) Port() uint16 {
	v, ok := b.ports.pop()
	if !ok {
		b.refillPorts()
		v, _ = b.ports.pop()
	}
	return v
}

// Sequence returns a random 32-bit TCP sequence number.
func (b *Batched) Sequence() uint32 {
	v, ok := b.sequences.pop()
	if !ok {
		b.refillSequences()
		v, _ = b.sequences.pop()
	}
	return v
}

// Identification returns a random 16-bit IP identification value.
func (b *Batched) Identification() uint16 {
	v, ok := b.ids.pop()
	if !ok {
		b.refillIDs()
		v, _ = b.ids.pop()
	}
	return v
}

// TTL returns a random TTL / hop limit in [32, 128).
func (b *Batched) TTL() uint8 {
	v, ok := b.ttls.pop()
	if !ok {
		b.refillTTLs()
		v, _ = b.ttls.pop()
	}
	return v
}

// Window returns a random 16-bit TCP window size.
func (b *Batched) Window() uint16 {
	v, ok := b.windows.pop()
	if !ok {
		b.refillWindows()
		v, _ = b.windows.pop()
	}
	return v
}

// FlowLabel returns a random 20-bit IPv6 flow label.
func (b *Batched) FlowLabel() uint32 {
	v, ok := b.flows.pop()
	if !ok {
		b.refillFlows()
		v, _ = b.flows.pop()
	}
	return v
}

// Byte returns a single random byte.
func (b *Batched) Byte() byte {
	v, ok := b.bytes.pop()
	if !ok {
		b.refillBytes()
		v, _ = b.bytes.pop()
	}
	return v
}

// Payload fills p with random bytes. Large fills — above a quarter of the
// batch size — bypass the byte pool and draw from the underlying generator
// directly, so one oversized payload cannot drain the pool.
func (b *Batched) Payload(p []byte) {
	if len(p) > b.batchSize/replenishDivisor {
		b.fill(p)
		return
	}
	for i := range p {
		p[i] = b.Byte()
	}
}

// fill writes random bytes into p straight from the underlying generator,
// eight bytes per draw.
func (b *Batched) fill(p []byte) {
	i := 0
	for ; i+8 <= len(p); i += 8 {
		binary.LittleEndian.PutUint64(p[i:], b.src.Uint64())
	}
	if i < len(p) {
		v := b.src.Uint64()
		for ; i < len(p); i++ {
			p[i] = byte(v)
			v >>= 8
		}
	}
}

// IntRange returns a uniform integer in [min, max).
func (b *Batched) IntRange(min, max int) int {
	if max <= min {
		return min
	}
	return min + b.src.IntN(max-min)
}

// FloatRange returns a uniform float64 in [min, max).
func (b *Batched) FloatRange(min, max float64) float64 {
	return min + b.src.Float64()*(max-min)
}

// Bool returns true with the given probability.
func (b *Batched) Bool(probability float64) bool {
	return b.src.Float64() < probability
}

// Remaining returns the occupancy of the pool for the given value type.
func (b *Batched) Remaining(vt ValueType) int {
	switch vt {
	case ValuePort:
		return b.ports.remaining()
	case ValueSequence:
		return b.sequences.remaining()
	case ValueIdentification:
		return b.ids.remaining()
	case ValueTTL:
		return b.ttls.remaining()
	case ValueWindow:
		return b.windows.remaining()
	case ValueFlowLabel:
		return b.flows.remaining()
	case ValueByte:
		return b.bytes.remaining()
	default:
		return 0
	}
}

// NeedsReplenish reports whether any pool is below the 25% low-water mark.
func (b *Batched) NeedsReplenish() bool {
	threshold := b.batchSize / replenishDivisor
	return b.ports.remaining() < threshold ||
		b.sequences.remaining() < threshold ||
		b.ids.remaining() < threshold ||
		b.ttls.remaining() < threshold ||
		b.windows.remaining() < threshold ||
		b.flows.remaining() < threshold ||
		b.bytes.remaining() < threshold
}

// ReplenishIfNeeded refills any pool below the 25% low-water mark.
// Call this from outside the per-packet hot path (once per burst).
func (b *Batched) ReplenishIfNeeded() {
	threshold := b.batchSize / replenishDivisor
	if b.ports.remaining() < threshold {
		b.refillPorts()
	}
	if b.sequences.remaining() < threshold {
		b.refillSequences()
	}
	if b.ids.remaining() < threshold {
		b.refillIDs()
	}
	if b.ttls.remaining() < threshold {
		b.refillTTLs()
	}
	if b.windows.remaining() < threshold {
		b.refillWindows()
	}
	if b.flows.remaining() < threshold {
		b.refillFlows()
	}
	if b.bytes.remaining() < threshold {
		b.refillBytes()
	}
}

func (b *Batched) refillAll() {
	b.refillPorts()
	b.refillSequences()
	b.refillIDs()
	b.refillTTLs()
	b.refillWindows()
	b.refillFlows()
	b.refillBytes()
}

func (b *Batched) refillPorts() {
	b.ports.refill(b.batchSize, func() uint16 {
		return uint16(portMin + b.src.IntN(portMax-portMin))
	})
}

func (b *Batched) refillSequences() {
	b.sequences.refill(b.batchSize, b.src.Uint32)
}

func (b *Batched) refillIDs() {
	b.ids.refill(b.batchSize, func() uint16 {
		return uint16(b.src.Uint32())
	})
}

func (b *Batched) refillTTLs() {
	b.ttls.refill(b.batchSize, func() uint8 {
		return uint8(ttlMin + b.src.IntN(ttlMax-ttlMin))
	})
}

func (b *Batched) refillWindows() {
	b.windows.refill(b.batchSize, func() uint16 {
		return uint16(portMin + b.src.IntN(portMax-portMin))
	})
}

func (b *Batched) refillFlows() {
	b.flows.refill(b.batchSize, func() uint32 {
		return uint32(b.src.IntN(flowLabelMax))
	})
}

func (b *Batched) refillBytes() {
	b.bytes.refill(b.batchSize, func() byte {
		return byte(b.src.Uint32())
	})
}
