// Package safety enforces the guardrails that make the stress generator a
// teaching tool rather than a weapon: targets must sit inside the
// operator's own private ranges, thread and rate ceilings are hard caps,
// and live mode demands raw-socket privileges.
package safety

import (
	"errors"
	"fmt"
	"net/netip"
)

// Hard ceilings. Configuration values beyond these fail closed.
const (
	// MaxThreads is the hard cap on worker count.
	MaxThreads = 100

	// MaxPacketRate is the hard cap on the aggregate packets-per-second
	// target.
	MaxPacketRate = 10_000

	// MinPayloadSize is the smallest permitted UDP payload in bytes.
	MinPayloadSize = 20

	// MaxPayloadSize is the largest permitted UDP payload in bytes.
	MaxPayloadSize = 1500
)

var (
	// ErrInvalidIPRange indicates a target outside the private ranges,
	// or a loopback/multicast target.
	ErrInvalidIPRange = errors.New("invalid IP range")

	// ErrBroadcastBlocked indicates a broadcast target without the
	// explicit allow-broadcast opt-in.
	ErrBroadcastBlocked = errors.New("broadcast addresses are blocked by default")

	// ErrExceedsLimit indicates a configuration value beyond its hard
	// ceiling. Returned wrapped in a *LimitError naming the field.
	ErrExceedsLimit = errors.New("value exceeds limit")

	// ErrNoPorts indicates an empty target port list.
	ErrNoPorts = errors.New("at least one target port is required")

	// ErrPrivilege indicates live mode without root or CAP_NET_RAW.
	ErrPrivilege = errors.New("insufficient privileges for raw sockets")
)

// LimitError reports a configuration value that exceeds its ceiling.
// It unwraps to ErrExceedsLimit so callers can match the kind with
// errors.Is while still reading the field, value, and limit.
type LimitError struct {
	Field string
	Value uint64
	Limit uint64
}

// Error implements the error interface.
func (e *LimitError) Error() string {
	return fmt.Sprintf("%s %d exceeds limit %d", e.Field, e.Value, e.Limit)
}

// Unwrap ties LimitError to the ErrExceedsLimit sentinel.
func (e *LimitError) Unwrap() error { return ErrExceedsLimit }

// privateV4 lists the admissible IPv4 ranges (RFC 1918).
var privateV4 = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
}

// privateV6 lists the admissible IPv6 ranges: link-local and unique-local.
var privateV6 = []netip.Prefix{
	netip.MustParsePrefix("fe80::/10"),
	netip.MustParsePrefix("fc00::/7"),
}

// broadcastV4 is the IPv4 limited broadcast address.
var broadcastV4 = netip.AddrFrom4([4]byte{255, 255, 255, 255})

// IsBroadcast reports whether addr is the IPv4 limited broadcast address.
// IPv6 has no broadcast.
func IsBroadcast(addr netip.Addr) bool {
	return addr.Unmap() == broadcastV4
}

// IsPrivate reports whether addr lies in the admissible private ranges.
func IsPrivate(addr netip.Addr) bool {
	addr = addr.Unmap()
	ranges := privateV4
	if addr.Is6() {
		ranges = privateV6
	}
	for _, p := range ranges {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ValidateTargetIP enforces the target admission rule: loopback and
// multicast always fail; broadcast fails without the explicit opt-in;
// everything else must lie inside the private-range union.
func ValidateTargetIP(addr netip.Addr, allowBroadcast bool) error {
	if !addr.IsValid() {
		return fmt.Errorf("target address is not set: %w", ErrInvalidIPRange)
	}
	if addr.IsLoopback() || addr.IsMulticast() {
		return fmt.Errorf("target %s is loopback or multicast: %w", addr, ErrInvalidIPRange)
	}

	if IsBroadcast(addr) {
		if !allowBroadcast {
			return fmt.Errorf("target %s: %w (pass --allow-broadcast to enable)",
				addr, ErrBroadcastBlocked)
		}
		return nil
	}

	if !IsPrivate(addr) {
		return fmt.Errorf("target %s is not in a private range (use a private IP such as 192.168.1.1): %w",
			addr, ErrInvalidIPRange)
	}
	return nil
}

// ValidatePorts checks the destination port list is non-empty and free of
// zero ports.
func ValidatePorts(ports []uint16) error {
	if len(ports) == 0 {
		return ErrNoPorts
	}
	for i, p := range ports {
		if p == 0 {
			return fmt.Errorf("ports[%d] is zero: %w", i, ErrNoPorts)
		}
	}
	return nil
}

// ValidateLimits checks thread count, rate, and payload bounds against
// the hard ceilings. ceilThreads/ceilRate may lower (never raise) the
// compiled ceilings; zero selects the compiled value.
func ValidateLimits(threads int, rate uint64, minSize, maxSize int, ceilThreads int, ceilRate uint64) error {
	maxThreads := uint64(MaxThreads)
	if ceilThreads > 0 && ceilThreads < MaxThreads {
		maxThreads = uint64(ceilThreads)
	}
	maxRate := uint64(MaxPacketRate)
	if ceilRate > 0 && ceilRate < MaxPacketRate {
		maxRate = ceilRate
	}

	if threads <= 0 {
		return &LimitError{Field: "threads", Value: 0, Limit: maxThreads}
	}
	if uint64(threads) > maxThreads {
		return &LimitError{Field: "threads", Value: uint64(threads), Limit: maxThreads}
	}
	if rate == 0 {
		return &LimitError{Field: "packet_rate", Value: 0, Limit: maxRate}
	}
	if rate > maxRate {
		return &LimitError{Field: "packet_rate", Value: rate, Limit: maxRate}
	}

	if minSize < MinPayloadSize {
		return &LimitError{Field: "payload_size_min", Value: uint64(minSize), Limit: MinPayloadSize}
	}
	if maxSize > MaxPayloadSize {
		return &LimitError{Field: "payload_size_max", Value: uint64(maxSize), Limit: MaxPayloadSize}
	}
	if minSize > maxSize {
		return &LimitError{Field: "payload_size_min", Value: uint64(minSize), Limit: uint64(maxSize)}
	}

	return nil
}
