package packet

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/routelab/netburst/internal/rng"
)

// dfProbability is the chance an IPv4 packet carries the Don't Fragment
// flag (RFC 791 Section 3.1, flag bit 1).
const dfProbability = 0.1

// Payload size distribution bands. Sizes are drawn from a three-band
// mixture — 41% small, 40% medium, 19% large — clamped to the configured
// range, approximating real traffic shapes.
const (
	bandSmallPct  = 41
	bandMediumPct = 81
	bandSmallMax  = 200
	bandMediumMax = 800
)

// SizeRange bounds the random payload size for UDP packets, in bytes.
type SizeRange struct {
	Min int
	Max int
}

// Builder constructs packets of every supported kind into caller-supplied
// buffers. Each builder pins a stable synthetic source identity at
// construction — an IPv4 address in 192.168.1.0/24, an IPv6 link-local
// address, and a locally-administered MAC — so observers see a plausibly
// stationary flow for the builder's lifetime.
//
// Not safe for concurrent use; each worker owns its own Builder.
type Builder struct {
	rng       *rng.Batched
	sizeRange SizeRange
	srcIPv4   [4]byte
	srcIPv6   [16]byte
	srcMAC    [6]byte
}

// NewBuilder creates a Builder drawing randomness from r.
func NewBuilder(sizeRange SizeRange, r *rng.Batched) *Builder {
	b := &Builder{
		rng:       r,
		sizeRange: sizeRange,
	}

	// Synthetic IPv4 source: 192.168.1.[2, 254].
	b.srcIPv4 = [4]byte{192, 168, 1, byte(r.IntRange(2, 255))}

	// Synthetic IPv6 source: link-local fe80::/64 with a random
	// interface identifier.
	b.srcIPv6[0] = 0xfe
	b.srcIPv6[1] = 0x80
	for i := 8; i < 16; i++ {
		b.srcIPv6[i] = r.Byte()
	}

	// Locally-administered unicast MAC: U/L bit (0x02) set.
	b.srcMAC[0] = 0x02
	for i := 1; i < 6; i++ {
		b.srcMAC[i] = r.Byte()
	}

	return b
}

// SourceIPv4 returns the builder's synthetic IPv4 source address.
func (b *Builder) SourceIPv4() netip.Addr { return netip.AddrFrom4(b.srcIPv4) }

// SourceIPv6 returns the builder's synthetic IPv6 source address.
func (b *Builder) SourceIPv6() netip.Addr { return netip.AddrFrom16(b.srcIPv6) }

// SourceMAC returns the builder's synthetic source MAC address.
func (b *Builder) SourceMAC() [6]byte { return b.srcMAC }

// Compatible reports whether kind can be built for the target's address
// family.
func (b *Builder) Compatible(kind Kind, target netip.Addr) bool {
	if kind.IsIPv6() {
		return target.Is6() && !target.Is4In6()
	}
	return target.Unmap().Is4()
}

// MaxSize returns the largest packet the builder can produce for kind,
// given its configured payload range.
func (b *Builder) MaxSize(kind Kind) int {
	switch kind {
	case KindUDP:
		return IPv4HeaderLen + UDPHeaderLen + b.sizeRange.Max
	case KindTCPSyn, KindTCPAck, KindTCPFin, KindTCPRst:
		return IPv4HeaderLen + TCPHeaderLen
	case KindICMP:
		return IPv4HeaderLen + ICMPHeaderLen + icmpPayloadMax
	case KindIPv6UDP:
		return IPv6HeaderLen + UDPHeaderLen + b.sizeRange.Max
	case KindIPv6TCP:
		return IPv6HeaderLen + TCPHeaderLen
	case KindIPv6ICMP:
		return IPv6HeaderLen + ICMPHeaderLen + icmpPayloadMax
	case KindARP:
		return EthernetHeaderLen + ARPBodyLen
	default:
		return 0
	}
}

// BufferSize returns the smallest buffer length that fits every packet
// kind the builder can produce. Workers allocate their reusable buffer
// with this.
func (b *Builder) BufferSize() int {
	size := 0
	for k := Kind(0); k < KindCount; k++ {
		if s := b.MaxSize(k); s > size {
			size = s
		}
	}
	return size
}

// BuildInto constructs a packet of the given kind into buf and returns the
// number of bytes written plus the stats protocol bucket.
//
// Zero-allocation: the 0..total prefix of buf is zero-filled, then header
// fields are written in place. The IP header checksum is computed last,
// after any payload checksums. If buf is shorter than the packet,
// ErrBufferTooSmall is returned and buf is untouched.
func (b *Builder) BuildInto(buf []byte, kind Kind, target netip.Addr, port uint16) (int, ProtocolID, error) {
	if !b.Compatible(kind, target) {
		family := "IPv4"
		if kind.IsIPv6() {
			family = "IPv6"
		}
		return 0, 0, fmt.Errorf("%s packet requires an %s target, got %s: %w",
			kind, family, target, ErrAddressFamily)
	}

	var (
		n   int
		err error
	)

	switch kind {
	case KindUDP:
		n, err = b.buildUDPv4(buf, target.Unmap().As4(), port)
	case KindTCPSyn:
		n, err = b.buildTCPv4(buf, target.Unmap().As4(), port, tcpFlagSYN)
	case KindTCPAck:
		n, err = b.buildTCPv4(buf, target.Unmap().As4(), port, tcpFlagACK)
	case KindTCPFin:
		n, err = b.buildTCPv4(buf, target.Unmap().As4(), port, tcpFlagFIN)
	case KindTCPRst:
		n, err = b.buildTCPv4(buf, target.Unmap().As4(), port, tcpFlagRST)
	case KindICMP:
		n, err = b.buildICMPv4(buf, target.Unmap().As4())
	case KindIPv6UDP:
		n, err = b.buildUDPv6(buf, target.As16(), port)
	case KindIPv6TCP:
		n, err = b.buildTCPv6(buf, target.As16(), port, tcpFlagSYN)
	case KindIPv6ICMP:
		n, err = b.buildICMPv6(buf, target.As16())
	case KindARP:
		n, err = b.buildARP(buf, target.Unmap().As4())
	default:
		return 0, 0, fmt.Errorf("packet kind %d: %w", uint8(kind), ErrInvalidParameters)
	}
	if err != nil {
		return 0, 0, err
	}

	return n, kind.Protocol(), nil
}

// BuildPacket is the allocating fallback to BuildInto: it returns an owned
// slice holding exactly the built packet.
func (b *Builder) BuildPacket(kind Kind, target netip.Addr, port uint16) ([]byte, ProtocolID, error) {
	size := b.MaxSize(kind)
	if size == 0 {
		return nil, 0, fmt.Errorf("packet kind %d: %w", uint8(kind), ErrInvalidParameters)
	}
	buf := make([]byte, size)
	n, proto, err := b.BuildInto(buf, kind, target, port)
	if err != nil {
		return nil, 0, err
	}
	return buf[:n], proto, nil
}

// payloadSize draws a UDP payload size from the three-band mixture,
// clamped to the configured range.
func (b *Builder) payloadSize() int {
	lo, hi := b.sizeRange.Min, b.sizeRange.Max
	if hi < lo {
		hi = lo
	}

	bandLo, bandHi := lo, hi
	switch band := b.rng.IntRange(0, 100); {
	case band < bandSmallPct:
		bandHi = bandSmallMax
	case band < bandMediumPct:
		bandLo, bandHi = bandSmallMax, bandMediumMax
	default:
		bandLo = bandMediumMax
	}

	if bandLo < lo {
		bandLo = lo
	}
	if bandHi > hi {
		bandHi = hi
	}
	if bandLo > bandHi {
		bandLo, bandHi = lo, hi
	}

	return b.rng.IntRange(bandLo, bandHi+1)
}

// checkAndZero validates buf can hold total bytes and zero-fills the
// prefix the builder will write. On failure buf is untouched.
func checkAndZero(buf []byte, total int) error {
	if len(buf) < total {
		return fmt.Errorf("need %d bytes, have %d: %w", total, len(buf), ErrBufferTooSmall)
	}
	clear(buf[:total])
	return nil
}

// -------------------------------------------------------------------------
// IPv4 builders — RFC 791
// -------------------------------------------------------------------------

// writeIPv4Header fills the 20-byte IPv4 header at the front of pkt.
// pkt must be sliced to the total packet length. The header checksum is
// left zero; callers finish with finalizeIPv4 after payload checksums.
func (b *Builder) writeIPv4Header(pkt []byte, proto uint8, dst [4]byte) {
	pkt[0] = 0x45 // version 4, IHL 5
	binary.BigEndian.PutUint16(pkt[2:4], uint16(len(pkt)))
	binary.BigEndian.PutUint16(pkt[4:6], b.rng.Identification())
	if b.rng.Bool(dfProbability) {
		binary.BigEndian.PutUint16(pkt[6:8], 0x4000) // Don't Fragment
	}
	pkt[8] = b.rng.TTL()
	pkt[9] = proto
	copy(pkt[12:16], b.srcIPv4[:])
	copy(pkt[16:20], dst[:])
}

// finalizeIPv4 computes the header checksum. Must run last, after the
// transport checksum, with the checksum field still zero.
func finalizeIPv4(pkt []byte) {
	binary.BigEndian.PutUint16(pkt[10:12], Checksum(pkt[:IPv4HeaderLen]))
}

func (b *Builder) buildUDPv4(buf []byte, dst [4]byte, port uint16) (int, error) {
	payloadLen := b.payloadSize()
	total := IPv4HeaderLen + UDPHeaderLen + payloadLen
	if err := checkAndZero(buf, total); err != nil {
		return 0, err
	}

	pkt := buf[:total]
	b.writeIPv4Header(pkt, ipProtoUDP, dst)

	udp := pkt[IPv4HeaderLen:]
	binary.BigEndian.PutUint16(udp[0:2], b.rng.Port())
	binary.BigEndian.PutUint16(udp[2:4], port)
	binary.BigEndian.PutUint16(udp[4:6], uint16(UDPHeaderLen+payloadLen))
	b.rng.Payload(udp[UDPHeaderLen:])

	ck := transportChecksumV4(b.srcIPv4, dst, ipProtoUDP, udp)
	if ck == 0 {
		ck = 0xFFFF // RFC 768: transmitted zero means "no checksum"
	}
	binary.BigEndian.PutUint16(udp[6:8], ck)

	finalizeIPv4(pkt)
	return total, nil
}

func (b *Builder) buildTCPv4(buf []byte, dst [4]byte, port uint16, flags uint8) (int, error) {
	total := IPv4HeaderLen + TCPHeaderLen
	if err := checkAndZero(buf, total); err != nil {
		return 0, err
	}

	pkt := buf[:total]
	b.writeIPv4Header(pkt, ipProtoTCP, dst)

	tcp := pkt[IPv4HeaderLen:]
	b.writeTCPSegment(tcp, port, flags)
	binary.BigEndian.PutUint16(tcp[16:18], transportChecksumV4(b.srcIPv4, dst, ipProtoTCP, tcp))

	finalizeIPv4(pkt)
	return total, nil
}

// writeTCPSegment fills a 20-byte TCP header except for the checksum.
// The acknowledgement number is drawn only when the ACK flag is set
// (RFC 793 Section 3.1: the field is meaningful only with ACK).
func (b *Builder) writeTCPSegment(tcp []byte, port uint16, flags uint8) {
	binary.BigEndian.PutUint16(tcp[0:2], b.rng.Port())
	binary.BigEndian.PutUint16(tcp[2:4], port)
	binary.BigEndian.PutUint32(tcp[4:8], b.rng.Sequence())
	if flags&tcpFlagACK != 0 {
		binary.BigEndian.PutUint32(tcp[8:12], b.rng.Sequence())
	}
	tcp[12] = 5 << 4 // data offset 5, no options
	tcp[13] = flags
	binary.BigEndian.PutUint16(tcp[14:16], b.rng.Window())
}

func (b *Builder) buildICMPv4(buf []byte, dst [4]byte) (int, error) {
	payloadLen := b.rng.IntRange(icmpPayloadMin, icmpPayloadMax+1)
	total := IPv4HeaderLen + ICMPHeaderLen + payloadLen
	if err := checkAndZero(buf, total); err != nil {
		return 0, err
	}

	pkt := buf[:total]
	b.writeIPv4Header(pkt, ipProtoICMP, dst)

	icmp := pkt[IPv4HeaderLen:]
	icmp[0] = 8 // Echo Request (RFC 792)
	binary.BigEndian.PutUint16(icmp[4:6], b.rng.Identification())
	binary.BigEndian.PutUint16(icmp[6:8], b.rng.Identification())
	b.rng.Payload(icmp[ICMPHeaderLen:])
	binary.BigEndian.PutUint16(icmp[2:4], Checksum(icmp))

	finalizeIPv4(pkt)
	return total, nil
}

// -------------------------------------------------------------------------
// IPv6 builders — RFC 8200
// -------------------------------------------------------------------------

// writeIPv6Header fills the 40-byte IPv6 header at the front of pkt.
func (b *Builder) writeIPv6Header(pkt []byte, next uint8, payloadLen int, dst [16]byte) {
	fl := b.rng.FlowLabel()
	pkt[0] = 0x60 // version 6, traffic class 0
	pkt[1] = byte(fl>>16) & 0x0F
	pkt[2] = byte(fl >> 8)
	pkt[3] = byte(fl)
	binary.BigEndian.PutUint16(pkt[4:6], uint16(payloadLen))
	pkt[6] = next
	pkt[7] = b.rng.TTL() // hop limit
	copy(pkt[8:24], b.srcIPv6[:])
	copy(pkt[24:40], dst[:])
}

func (b *Builder) buildUDPv6(buf []byte, dst [16]byte, port uint16) (int, error) {
	payloadLen := b.payloadSize()
	total := IPv6HeaderLen + UDPHeaderLen + payloadLen
	if err := checkAndZero(buf, total); err != nil {
		return 0, err
	}

	pkt := buf[:total]
	b.writeIPv6Header(pkt, ipProtoUDP, UDPHeaderLen+payloadLen, dst)

	udp := pkt[IPv6HeaderLen:]
	binary.BigEndian.PutUint16(udp[0:2], b.rng.Port())
	binary.BigEndian.PutUint16(udp[2:4], port)
	binary.BigEndian.PutUint16(udp[4:6], uint16(UDPHeaderLen+payloadLen))
	b.rng.Payload(udp[UDPHeaderLen:])

	// RFC 8200 Section 8.1: the UDP checksum is mandatory over IPv6.
	ck := transportChecksumV6(b.srcIPv6, dst, ipProtoUDP, udp)
	if ck == 0 {
		ck = 0xFFFF
	}
	binary.BigEndian.PutUint16(udp[6:8], ck)

	return total, nil
}

func (b *Builder) buildTCPv6(buf []byte, dst [16]byte, port uint16, flags uint8) (int, error) {
	total := IPv6HeaderLen + TCPHeaderLen
	if err := checkAndZero(buf, total); err != nil {
		return 0, err
	}

	pkt := buf[:total]
	b.writeIPv6Header(pkt, ipProtoTCP, TCPHeaderLen, dst)

	tcp := pkt[IPv6HeaderLen:]
	b.writeTCPSegment(tcp, port, flags)
	binary.BigEndian.PutUint16(tcp[16:18], transportChecksumV6(b.srcIPv6, dst, ipProtoTCP, tcp))

	return total, nil
}

func (b *Builder) buildICMPv6(buf []byte, dst [16]byte) (int, error) {
	payloadLen := b.rng.IntRange(icmpPayloadMin, icmpPayloadMax+1)
	total := IPv6HeaderLen + ICMPHeaderLen + payloadLen
	if err := checkAndZero(buf, total); err != nil {
		return 0, err
	}

	pkt := buf[:total]
	b.writeIPv6Header(pkt, ipProtoICMPv6, ICMPHeaderLen+payloadLen, dst)

	icmp := pkt[IPv6HeaderLen:]
	icmp[0] = 128 // Echo Request (RFC 4443 Section 4.1)
	binary.BigEndian.PutUint16(icmp[4:6], b.rng.Identification())
	binary.BigEndian.PutUint16(icmp[6:8], b.rng.Identification())
	b.rng.Payload(icmp[ICMPHeaderLen:])

	// RFC 4443 Section 2.3: ICMPv6 checksum includes the IPv6
	// pseudo-header.
	binary.BigEndian.PutUint16(icmp[2:4], transportChecksumV6(b.srcIPv6, dst, ipProtoICMPv6, icmp))

	return total, nil
}

// -------------------------------------------------------------------------
// ARP builder — RFC 826
// -------------------------------------------------------------------------

func (b *Builder) buildARP(buf []byte, dst [4]byte) (int, error) {
	total := EthernetHeaderLen + ARPBodyLen
	if err := checkAndZero(buf, total); err != nil {
		return 0, err
	}

	pkt := buf[:total]

	// Ethernet II: broadcast destination, EtherType 0x0806.
	for i := 0; i < 6; i++ {
		pkt[i] = 0xFF
	}
	copy(pkt[6:12], b.srcMAC[:])
	binary.BigEndian.PutUint16(pkt[12:14], 0x0806)

	arp := pkt[EthernetHeaderLen:]
	binary.BigEndian.PutUint16(arp[0:2], 1)      // hardware type: Ethernet
	binary.BigEndian.PutUint16(arp[2:4], 0x0800) // protocol type: IPv4
	arp[4] = 6                                   // hardware address length
	arp[5] = 4                                   // protocol address length
	binary.BigEndian.PutUint16(arp[6:8], 1)      // operation: Request
	copy(arp[8:14], b.srcMAC[:])
	copy(arp[14:18], b.srcIPv4[:])
	// Target hardware address stays zero for a Request.
	copy(arp[24:28], dst[:])

	return total, nil
}
