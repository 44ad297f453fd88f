package config

import (
	"errors"
	"fmt"

	"github.com/routelab/netburst/internal/packet"
)

// ErrUnknownTemplate indicates a template name outside the built-in set.
var ErrUnknownTemplate = errors.New("unknown configuration template")

// templateNames lists the built-in templates in presentation order.
var templateNames = []string{"basic", "web_server", "dns_server", "high_performance"}

// Templates returns the built-in template names.
func Templates() []string {
	out := make([]string, len(templateNames))
	copy(out, templateNames)
	return out
}

// Template returns a ready-to-edit configuration preset. Every template
// starts in dry-run so a pasted config cannot emit packets by accident.
func Template(name string) (*Config, error) {
	switch name {
	case "basic":
		return basicTemplate(), nil
	case "web_server":
		return webServerTemplate(), nil
	case "dns_server":
		return dnsServerTemplate(), nil
	case "high_performance":
		return highPerformanceTemplate(), nil
	default:
		return nil, fmt.Errorf("template %q (want one of %v): %w", name, templateNames, ErrUnknownTemplate)
	}
}

func basicTemplate() *Config {
	cfg := DefaultConfig()
	cfg.Target.IP = "192.168.1.1"
	cfg.Target.Ports = []uint16{80}
	cfg.Attack.Threads = 2
	cfg.Attack.PacketRate = 50
	duration := uint64(30)
	cfg.Attack.Duration = &duration
	cfg.Safety.DryRun = true
	return cfg
}

func webServerTemplate() *Config {
	cfg := DefaultConfig()
	cfg.Target.IP = "192.168.1.100"
	cfg.Target.Ports = []uint16{80, 443, 8080, 8443}
	cfg.Target.ProtocolMix = packet.Mix{UDP: 0.1, TCPSyn: 0.6, TCPAck: 0.25, ICMP: 0.05}
	cfg.Attack.Threads = 4
	cfg.Attack.PacketRate = 200
	cfg.Safety.DryRun = true
	return cfg
}

func dnsServerTemplate() *Config {
	cfg := DefaultConfig()
	cfg.Target.IP = "192.168.1.53"
	cfg.Target.Ports = []uint16{53}
	cfg.Target.ProtocolMix = packet.Mix{UDP: 0.9, TCPSyn: 0.1}
	cfg.Attack.Threads = 2
	cfg.Attack.PacketRate = 150
	cfg.Attack.PayloadSizeRange = SizeRangeConfig{Min: 20, Max: 512}
	cfg.Safety.DryRun = true
	return cfg
}

func highPerformanceTemplate() *Config {
	cfg := DefaultConfig()
	cfg.Target.IP = "10.0.0.1"
	cfg.Target.Ports = []uint16{80, 443}
	cfg.Attack.Threads = 8
	cfg.Attack.PacketRate = 5000
	cfg.Attack.BurstPattern = BurstPattern{
		Kind:            BurstBursts,
		BurstSize:       200,
		BurstIntervalMS: 20,
	}
	cfg.Safety.DryRun = true
	return cfg
}
