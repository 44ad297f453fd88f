// Package packet implements zero-copy construction of IPv4, IPv6, and ARP
// frames for the stress engine.
//
// This includes the per-protocol builders, header field layouts and
// checksum computation per RFC 791 (IPv4), RFC 768 (UDP), RFC 793 (TCP),
// RFC 792 (ICMP), RFC 8200 (IPv6), RFC 4443 (ICMPv6), and RFC 826 (ARP),
// plus the protocol-mix ring that drives packet kind selection.
package packet

import (
	"errors"
	"fmt"
)

// -------------------------------------------------------------------------
// Header Sizes
// -------------------------------------------------------------------------

const (
	// IPv4HeaderLen is the IPv4 header size without options
	// (RFC 791 Section 3.1: IHL 5 = 20 bytes).
	IPv4HeaderLen = 20

	// IPv6HeaderLen is the fixed IPv6 header size (RFC 8200 Section 3).
	IPv6HeaderLen = 40

	// UDPHeaderLen is the UDP header size (RFC 768).
	UDPHeaderLen = 8

	// TCPHeaderLen is the TCP header size without options
	// (RFC 793 Section 3.1: data offset 5 = 20 bytes).
	TCPHeaderLen = 20

	// ICMPHeaderLen is the ICMP Echo header size (RFC 792).
	ICMPHeaderLen = 8

	// EthernetHeaderLen is the Ethernet II header size.
	EthernetHeaderLen = 14

	// ARPBodyLen is the ARP packet size for Ethernet/IPv4
	// (RFC 826: 28 bytes).
	ARPBodyLen = 28

	// HeaderOverhead is the largest header prefix any builder writes in
	// front of a payload: IPv6 (40) + UDP (8). Worker buffers are sized
	// by Builder.BufferSize, which is never less than max payload +
	// HeaderOverhead.
	HeaderOverhead = IPv6HeaderLen + UDPHeaderLen
)

// IP next-protocol numbers used in IPv4 Protocol / IPv6 Next Header fields.
const (
	ipProtoICMP   = 1
	ipProtoTCP    = 6
	ipProtoUDP    = 17
	ipProtoICMPv6 = 58
)

// TCP flag bits (RFC 793 Section 3.1).
const (
	tcpFlagFIN = 0x01
	tcpFlagSYN = 0x02
	tcpFlagRST = 0x04
	tcpFlagACK = 0x10
)

// ICMP Echo Request payload bounds, matching standard ping sizes.
const (
	icmpPayloadMin = 8
	icmpPayloadMax = 56
)

// -------------------------------------------------------------------------
// Packet Kinds
// -------------------------------------------------------------------------

// Kind identifies one of the supported packet variants.
type Kind uint8

const (
	// KindUDP is an IPv4 UDP datagram with a random payload.
	KindUDP Kind = iota

	// KindTCPSyn is an IPv4 TCP segment with the SYN flag set.
	KindTCPSyn

	// KindTCPAck is an IPv4 TCP segment with the ACK flag set.
	KindTCPAck

	// KindTCPFin is an IPv4 TCP segment with the FIN flag set.
	KindTCPFin

	// KindTCPRst is an IPv4 TCP segment with the RST flag set.
	KindTCPRst

	// KindICMP is an IPv4 ICMP Echo Request.
	KindICMP

	// KindIPv6UDP is an IPv6 UDP datagram with a random payload.
	KindIPv6UDP

	// KindIPv6TCP is an IPv6 TCP SYN segment.
	KindIPv6TCP

	// KindIPv6ICMP is an ICMPv6 Echo Request.
	KindIPv6ICMP

	// KindARP is an Ethernet-framed ARP Request.
	KindARP
)

// KindCount is the number of supported packet kinds.
const KindCount = 10

// kindNames maps packet kinds to display names.
var kindNames = [KindCount]string{
	"UDP",
	"TCP-SYN",
	"TCP-ACK",
	"TCP-FIN",
	"TCP-RST",
	"ICMP",
	"IPv6-UDP",
	"IPv6-TCP",
	"IPv6-ICMP",
	"ARP",
}

// String returns the human-readable name for the packet kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Unknown(%d)", uint8(k))
}

// IsIPv6 reports whether the kind targets an IPv6 address.
func (k Kind) IsIPv6() bool {
	return k == KindIPv6UDP || k == KindIPv6TCP || k == KindIPv6ICMP
}

// Protocol returns the stats protocol bucket for the kind.
func (k Kind) Protocol() ProtocolID {
	switch k {
	case KindUDP:
		return ProtoUDP
	case KindTCPSyn, KindTCPAck, KindTCPFin, KindTCPRst:
		return ProtoTCP
	case KindICMP:
		return ProtoICMP
	case KindIPv6UDP, KindIPv6TCP, KindIPv6ICMP:
		return ProtoIPv6
	case KindARP:
		return ProtoARP
	default:
		return ProtoUDP
	}
}

// -------------------------------------------------------------------------
// Protocol Identifiers — stats bucket indexing
// -------------------------------------------------------------------------

// ProtocolID indexes the fixed per-protocol counter array in the stats core.
type ProtocolID uint8

// Protocol buckets. The values are array indices and must stay dense.
const (
	ProtoUDP  ProtocolID = 0
	ProtoTCP  ProtocolID = 1
	ProtoICMP ProtocolID = 2
	ProtoIPv6 ProtocolID = 3
	ProtoARP  ProtocolID = 4
)

// ProtocolCount is the size of the per-protocol counter array.
const ProtocolCount = 5

// protocolNames maps protocol buckets to display names.
var protocolNames = [ProtocolCount]string{"UDP", "TCP", "ICMP", "IPv6", "ARP"}

// String returns the human-readable name for the protocol bucket.
func (p ProtocolID) String() string {
	if int(p) < len(protocolNames) {
		return protocolNames[p]
	}
	return fmt.Sprintf("Unknown(%d)", uint8(p))
}

// -------------------------------------------------------------------------
// Builder Errors
// -------------------------------------------------------------------------

var (
	// ErrBufferTooSmall indicates the caller-provided buffer cannot hold
	// the packet. The wrapping error names the required and available sizes.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrAddressFamily indicates the packet kind is incompatible with the
	// target's address family (e.g., ARP with an IPv6 target).
	ErrAddressFamily = errors.New("incompatible address family")

	// ErrInvalidParameters indicates an impossible builder parameter
	// combination, such as an unknown packet kind.
	ErrInvalidParameters = errors.New("invalid packet parameters")
)
