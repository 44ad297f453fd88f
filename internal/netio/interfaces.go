package netio

import (
	"errors"
	"fmt"
	"net"
)

// ErrInterfaceNotFound indicates the configured interface name does not
// exist on this host.
var ErrInterfaceNotFound = errors.New("network interface not found")

// InterfaceInfo describes a usable network interface for --list-interfaces
// output and default-interface selection.
type InterfaceInfo struct {
	Name  string
	Up    bool
	MTU   int
	Addrs []string
}

// ListInterfaces enumerates non-loopback interfaces with their addresses.
func ListInterfaces() ([]InterfaceInfo, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("enumerate interfaces: %w", err)
	}

	infos := make([]InterfaceInfo, 0, len(ifaces))
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		info := InterfaceInfo{
			Name: iface.Name,
			Up:   iface.Flags&net.FlagUp != 0,
			MTU:  iface.MTU,
		}
		if addrs, addrErr := iface.Addrs(); addrErr == nil {
			for _, a := range addrs {
				info.Addrs = append(info.Addrs, a.String())
			}
		}
		infos = append(infos, info)
	}

	return infos, nil
}

// ResolveInterface returns the interface to use for layer-2 sends.
// A non-empty name must exist on the host. An empty name selects the
// first up, non-loopback interface carrying an address; if none exists
// the empty string is returned and ARP sends will fail per packet.
func ResolveInterface(name string) (string, error) {
	if name != "" {
		if _, err := net.InterfaceByName(name); err != nil {
			return "", fmt.Errorf("interface %q: %w", name, ErrInterfaceNotFound)
		}
		return name, nil
	}

	infos, err := ListInterfaces()
	if err != nil {
		return "", err
	}
	for _, info := range infos {
		if info.Up && len(info.Addrs) > 0 {
			return info.Name, nil
		}
	}
	return "", nil
}
