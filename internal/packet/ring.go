package packet

import "net/netip"

// RingSize is the number of pre-expanded entries in a protocol-mix ring.
// Each ratio maps to whole percentage points of the ring.
const RingSize = 100

// Ring selects packet kinds by cycling a fixed vector pre-expanded from
// the protocol-mix ratios. Expansion happens once at worker construction,
// keeping floating-point work out of the per-packet hot path.
//
// Not safe for concurrent use; each worker owns its own Ring.
type Ring struct {
	kinds  [RingSize]Kind
	cursor int
}

// v4Kinds lists the kinds eligible for an IPv4 target, in tie-break order.
var v4Kinds = []Kind{KindUDP, KindTCPSyn, KindTCPAck, KindTCPFin, KindTCPRst, KindICMP, KindARP}

// v6Kinds lists the kinds eligible for an IPv6 target, in tie-break order.
var v6Kinds = []Kind{KindIPv6UDP, KindIPv6TCP, KindIPv6ICMP}

// NewRing expands mix into a RingSize-entry selection vector for the
// target's address family. Kinds incompatible with the family are excluded
// and the remaining weights renormalized. With no eligible weight at all
// the ring fills with the family's UDP kind, so it is never empty.
//
// Entries are laid out by smooth weighted round-robin rather than in
// contiguous blocks: every prefix of the ring approximates the mix, so
// short runs and partial bursts still see the configured distribution.
// Weight ties resolve in the kinds' listed order.
func NewRing(mix Mix, target netip.Addr) *Ring {
	eligible := v4Kinds
	filler := KindUDP
	if target.Is6() && !target.Is4In6() {
		eligible = v6Kinds
		filler = KindIPv6UDP
	}

	weights := mix.Weights()

	var total float64
	for _, k := range eligible {
		total += weights[k]
	}

	r := &Ring{}
	if total <= 0 {
		for i := range r.kinds {
			r.kinds[i] = filler
		}
		return r
	}

	// Smooth weighted round-robin: each slot goes to the kind with the
	// highest accumulated credit, which then pays the full round back.
	credit := make([]float64, len(eligible))
	for i := range r.kinds {
		best := 0
		for j := range eligible {
			credit[j] += weights[eligible[j]] / total
			if credit[j] > credit[best] {
				best = j
			}
		}
		credit[best]--
		r.kinds[i] = eligible[best]
	}

	return r
}

// Next returns the next packet kind, advancing the ring cursor.
func (r *Ring) Next() Kind {
	k := r.kinds[r.cursor]
	r.cursor = (r.cursor + 1) % RingSize
	return k
}

// Kinds returns a copy of the expanded selection vector.
func (r *Ring) Kinds() []Kind {
	out := make([]Kind, RingSize)
	copy(out, r.kinds[:])
	return out
}
