package engine

import (
	"fmt"
	"sync/atomic"

	"github.com/routelab/netburst/internal/safety"
)

// PortRotor cycles the configured destination ports round-robin. It is
// shared by all workers: a single monotonically-incremented atomic index
// modulo the port count, no locking. The rotation is strict round-robin
// across the whole process.
type PortRotor struct {
	ports []uint16
	next  atomic.Uint64
}

// NewPortRotor creates a rotor over the validated port list.
func NewPortRotor(ports []uint16) (*PortRotor, error) {
	if len(ports) == 0 {
		return nil, fmt.Errorf("port rotor: %w", safety.ErrNoPorts)
	}
	owned := make([]uint16, len(ports))
	copy(owned, ports)
	return &PortRotor{ports: owned}, nil
}

// Next returns the next destination port.
func (r *PortRotor) Next() uint16 {
	idx := r.next.Add(1) - 1
	return r.ports[idx%uint64(len(r.ports))]
}

// Ports returns a copy of the port set for exporters and display.
func (r *PortRotor) Ports() []uint16 {
	out := make([]uint16, len(r.ports))
	copy(out, r.ports)
	return out
}
