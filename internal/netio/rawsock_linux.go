//go:build linux

package netio

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"

	"golang.org/x/sys/unix"
)

// etherTypeARP is the EtherType carried in the AF_PACKET destination
// address for ARP frames (0x0806).
const etherTypeARP = 0x0806

// RawChannels implements Channels over Linux raw sockets:
//
//   - AF_INET / SOCK_RAW with IP_HDRINCL for IPv4 packets — the builder
//     supplies the full IP header, the kernel fills nothing.
//   - AF_INET6 / SOCK_RAW with IPV6_HDRINCL for IPv6 packets.
//   - AF_PACKET / SOCK_RAW for layer-2 frames (ARP), sent out the
//     resolved interface by its index. Absent when no interface is available.
//
// Requires CAP_NET_RAW or root. Each worker owns one RawChannels
// exclusively.
type RawChannels struct {
	fd4     int
	fd6     int
	fdL2    int
	ifIndex int
	hasL2   bool
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewRawChannels opens the per-worker raw socket handles. The layer-2
// handle is only opened when ifName is non-empty; ARP sends without an
// interface fail per packet with ErrNoChannel.
//
// Any socket creation failure closes the already-opened handles and is
// returned to the caller — channel creation failures at startup are fatal.
func NewRawChannels(ifName string, logger *slog.Logger) (*RawChannels, error) {
	c := &RawChannels{
		fd4:  -1,
		fd6:  -1,
		fdL2: -1,
		logger: logger.With(
			slog.String("component", "netio.rawsock"),
		),
	}

	fd4, err := unix.Socket(unix.AF_INET, unix.SOCK_RAW, unix.IPPROTO_RAW)
	if err != nil {
		return nil, fmt.Errorf("create IPv4 raw socket: %w", err)
	}
	c.fd4 = fd4

	// IPPROTO_RAW implies IP_HDRINCL, but set it explicitly so intent
	// survives a protocol change.
	if err := unix.SetsockoptInt(fd4, unix.IPPROTO_IP, unix.IP_HDRINCL, 1); err != nil {
		c.closeAll()
		return nil, fmt.Errorf("set IP_HDRINCL: %w", err)
	}

	fd6, err := unix.Socket(unix.AF_INET6, unix.SOCK_RAW, unix.IPPROTO_RAW)
	if err != nil {
		c.closeAll()
		return nil, fmt.Errorf("create IPv6 raw socket: %w", err)
	}
	c.fd6 = fd6

	if err := unix.SetsockoptInt(fd6, unix.IPPROTO_IPV6, unix.IPV6_HDRINCL, 1); err != nil {
		c.closeAll()
		return nil, fmt.Errorf("set IPV6_HDRINCL: %w", err)
	}

	if ifName != "" {
		if err := c.openL2(ifName); err != nil {
			c.closeAll()
			return nil, err
		}
	}

	return c, nil
}

// openL2 opens the AF_PACKET handle and records the named interface's
// index for each send; the socket itself is not bound.
func (c *RawChannels) openL2(ifName string) error {
	iface, err := net.InterfaceByName(ifName)
	if err != nil {
		return fmt.Errorf("lookup interface %q: %w", ifName, err)
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		return fmt.Errorf("create AF_PACKET socket: %w", err)
	}

	c.fdL2 = fd
	c.ifIndex = iface.Index
	c.hasL2 = true
	return nil
}

// Send dispatches buf to the raw socket selected by kind.
func (c *RawChannels) Send(buf []byte, target netip.Addr, kind ChannelKind) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return fmt.Errorf("send %s: %w", kind, ErrChannelClosed)
	}

	switch kind {
	case ChannelIPv4:
		sa := &unix.SockaddrInet4{Addr: target.Unmap().As4()}
		if err := unix.Sendto(c.fd4, buf, 0, sa); err != nil {
			return fmt.Errorf("send IPv4 packet to %s: %w", target, err)
		}
		return nil

	case ChannelIPv6:
		sa := &unix.SockaddrInet6{Addr: target.As16()}
		if err := unix.Sendto(c.fd6, buf, 0, sa); err != nil {
			return fmt.Errorf("send IPv6 packet to %s: %w", target, err)
		}
		return nil

	case ChannelL2:
		if !c.hasL2 {
			return fmt.Errorf("layer-2 send without interface: %w", ErrNoChannel)
		}
		sa := &unix.SockaddrLinklayer{
			Protocol: htons(etherTypeARP),
			Ifindex:  c.ifIndex,
			Halen:    6,
			Addr:     [8]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
		}
		if err := unix.Sendto(c.fdL2, buf, 0, sa); err != nil {
			return fmt.Errorf("send layer-2 frame: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("channel kind %d: %w", uint8(kind), ErrNoChannel)
	}
}

// Close releases all open handles. Safe to call more than once.
func (c *RawChannels) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	return c.closeAll()
}

// closeAll closes whichever handles are open, joining errors.
func (c *RawChannels) closeAll() error {
	var errs error
	for _, fd := range []*int{&c.fd4, &c.fd6, &c.fdL2} {
		if *fd < 0 {
			continue
		}
		if err := unix.Close(*fd); err != nil {
			errs = errors.Join(errs, fmt.Errorf("close raw socket: %w", err))
		}
		*fd = -1
	}
	return errs
}

// htons converts a short to network byte order for AF_PACKET fields.
func htons(v uint16) uint16 {
	return v<<8 | v>>8
}
