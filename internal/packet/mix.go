package packet

import (
	"errors"
	"fmt"
	"math"
)

// MixTolerance is the permitted deviation of the ratio sum from 1.0.
const MixTolerance = 1e-3

var (
	// ErrRatioOutOfRange indicates a protocol ratio outside [0, 1].
	ErrRatioOutOfRange = errors.New("protocol ratio out of range")

	// ErrRatioSum indicates the protocol ratios do not sum to 1.0
	// within MixTolerance.
	ErrRatioSum = errors.New("protocol ratios must sum to 1.0")
)

// Mix is the configured discrete distribution over packet kinds.
// Ratios are non-negative weights that must sum to 1.0 within
// MixTolerance.
type Mix struct {
	UDP      float64 `koanf:"udp_ratio" yaml:"udp_ratio"`
	TCPSyn   float64 `koanf:"tcp_syn_ratio" yaml:"tcp_syn_ratio"`
	TCPAck   float64 `koanf:"tcp_ack_ratio" yaml:"tcp_ack_ratio"`
	TCPFin   float64 `koanf:"tcp_fin_ratio" yaml:"tcp_fin_ratio"`
	TCPRst   float64 `koanf:"tcp_rst_ratio" yaml:"tcp_rst_ratio"`
	ICMP     float64 `koanf:"icmp_ratio" yaml:"icmp_ratio"`
	IPv6UDP  float64 `koanf:"ipv6_udp_ratio" yaml:"ipv6_udp_ratio"`
	IPv6TCP  float64 `koanf:"ipv6_tcp_ratio" yaml:"ipv6_tcp_ratio"`
	IPv6ICMP float64 `koanf:"ipv6_icmp_ratio" yaml:"ipv6_icmp_ratio"`
	ARP      float64 `koanf:"arp_ratio" yaml:"arp_ratio"`
}

// Weights returns the ratios indexed by Kind.
func (m Mix) Weights() [KindCount]float64 {
	return [KindCount]float64{
		KindUDP:      m.UDP,
		KindTCPSyn:   m.TCPSyn,
		KindTCPAck:   m.TCPAck,
		KindTCPFin:   m.TCPFin,
		KindTCPRst:   m.TCPRst,
		KindICMP:     m.ICMP,
		KindIPv6UDP:  m.IPv6UDP,
		KindIPv6TCP:  m.IPv6TCP,
		KindIPv6ICMP: m.IPv6ICMP,
		KindARP:      m.ARP,
	}
}

// Sum returns the total of all ratios.
func (m Mix) Sum() float64 {
	var sum float64
	for _, w := range m.Weights() {
		sum += w
	}
	return sum
}

// Validate checks that every ratio lies in [0, 1] and the ratios sum to
// 1.0 within MixTolerance.
func (m Mix) Validate() error {
	for kind, w := range m.Weights() {
		if w < 0 || w > 1 {
			return fmt.Errorf("%s ratio %v: %w", Kind(kind), w, ErrRatioOutOfRange)
		}
	}
	if sum := m.Sum(); math.Abs(sum-1.0) > MixTolerance {
		return fmt.Errorf("sum is %v: %w", sum, ErrRatioSum)
	}
	return nil
}
