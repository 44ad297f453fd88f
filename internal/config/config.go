// Package config manages netburst configuration using koanf/v2.
//
// Supports YAML files and environment variable overrides layered over
// defaults. Unknown fields in the YAML file are rejected.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"strings"

	koanfyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"

	"github.com/routelab/netburst/internal/audit"
	"github.com/routelab/netburst/internal/packet"
	"github.com/routelab/netburst/internal/safety"
	"github.com/routelab/netburst/internal/stats"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete netburst configuration. Immutable after
// validation.
type Config struct {
	Target     TargetConfig     `koanf:"target" yaml:"target"`
	Attack     AttackConfig     `koanf:"attack" yaml:"attack"`
	Safety     SafetyConfig     `koanf:"safety" yaml:"safety"`
	Monitoring MonitoringConfig `koanf:"monitoring" yaml:"monitoring"`
	Export     ExportConfig     `koanf:"export" yaml:"export"`
	Log        LogConfig        `koanf:"log" yaml:"log"`
}

// TargetConfig describes what the generated traffic is aimed at.
type TargetConfig struct {
	// IP is the target address. Must be inside the private ranges.
	IP string `koanf:"ip" yaml:"ip"`

	// Ports is the non-empty ordered destination port set the rotor
	// cycles through.
	Ports []uint16 `koanf:"ports" yaml:"ports"`

	// ProtocolMix is the discrete distribution over packet kinds.
	ProtocolMix packet.Mix `koanf:"protocol_mix" yaml:"protocol_mix"`

	// Interface optionally names the interface for layer-2 sends.
	Interface string `koanf:"interface" yaml:"interface"`
}

// SizeRangeConfig bounds the random UDP payload size.
type SizeRangeConfig struct {
	Min int `koanf:"min" yaml:"min"`
	Max int `koanf:"max" yaml:"max"`
}

// Burst pattern kinds.
const (
	BurstSustained = "sustained"
	BurstBursts    = "bursts"
	BurstRamp      = "ramp"
)

// BurstPattern selects how rate limiting shapes the emission.
type BurstPattern struct {
	// Kind is one of sustained, bursts, or ramp.
	Kind string `koanf:"kind" yaml:"kind"`

	// BurstSize and BurstIntervalMS apply to the bursts pattern: emit
	// BurstSize packets back-to-back, then sleep BurstIntervalMS.
	BurstSize       int    `koanf:"burst_size" yaml:"burst_size"`
	BurstIntervalMS uint64 `koanf:"burst_interval_ms" yaml:"burst_interval_ms"`

	// StartRate, EndRate, and RampDurationSecs apply to the ramp
	// pattern: interpolate the aggregate rate linearly over the window.
	StartRate        uint64 `koanf:"start_rate" yaml:"start_rate"`
	EndRate          uint64 `koanf:"end_rate" yaml:"end_rate"`
	RampDurationSecs uint64 `koanf:"ramp_duration" yaml:"ramp_duration"`
}

// AttackConfig holds the execution parameters.
type AttackConfig struct {
	// Threads is the worker task count.
	Threads int `koanf:"threads" yaml:"threads"`

	// PacketRate is the aggregate packets-per-second target.
	PacketRate uint64 `koanf:"packet_rate" yaml:"packet_rate"`

	// Duration optionally bounds the run, in seconds. Nil runs until
	// interrupted.
	Duration *uint64 `koanf:"duration" yaml:"duration,omitempty"`

	// PayloadSizeRange bounds the random UDP payload size.
	PayloadSizeRange SizeRangeConfig `koanf:"payload_size_range" yaml:"payload_size_range"`

	// BurstPattern shapes the emission schedule.
	BurstPattern BurstPattern `koanf:"burst_pattern" yaml:"burst_pattern"`

	// RandomizeTiming applies uniform [0.8, 1.2] jitter to burst delays.
	RandomizeTiming bool `koanf:"randomize_timing" yaml:"randomize_timing"`
}

// SafetyConfig holds the guardrail settings.
type SafetyConfig struct {
	// MaxThreads may lower (never raise) the compiled thread ceiling.
	MaxThreads int `koanf:"max_threads" yaml:"max_threads"`

	// MaxPacketRate may lower (never raise) the compiled rate ceiling.
	MaxPacketRate uint64 `koanf:"max_packet_rate" yaml:"max_packet_rate"`

	// RequirePrivateRanges keeps the private-range target rule enforced.
	// It cannot actually be disabled; the field is accepted for
	// compatibility and a false value fails validation.
	RequirePrivateRanges bool `koanf:"require_private_ranges" yaml:"require_private_ranges"`

	// AllowBroadcast permits the IPv4 limited broadcast target.
	AllowBroadcast bool `koanf:"allow_broadcast" yaml:"allow_broadcast"`

	// AuditLogging enables the append-only audit trail.
	AuditLogging bool `koanf:"audit_logging" yaml:"audit_logging"`

	// AuditLogFile overrides the default audit log path.
	AuditLogFile string `koanf:"audit_log_file" yaml:"audit_log_file"`

	// AuditChain enables the tamper-evident hash chain on audit entries.
	AuditChain bool `koanf:"audit_chain" yaml:"audit_chain"`

	// DryRun simulates sends without opening sockets.
	DryRun bool `koanf:"dry_run" yaml:"dry_run"`

	// PerfectSimulation makes every dry-run send succeed. Requires
	// DryRun.
	PerfectSimulation bool `koanf:"perfect_simulation" yaml:"perfect_simulation"`
}

// MonitoringConfig holds the observability settings.
type MonitoringConfig struct {
	// StatsIntervalSecs is the period of the stats reporter task.
	StatsIntervalSecs uint64 `koanf:"stats_interval" yaml:"stats_interval"`

	// ExportIntervalSecs optionally enables periodic stats export.
	ExportIntervalSecs *uint64 `koanf:"export_interval" yaml:"export_interval,omitempty"`

	// MetricsAddr optionally exposes a Prometheus endpoint
	// (e.g., ":9109"). Empty disables it.
	MetricsAddr string `koanf:"metrics_addr" yaml:"metrics_addr"`
}

// ExportConfig holds the result export settings.
type ExportConfig struct {
	Enabled bool `koanf:"enabled" yaml:"enabled"`

	// Format is one of json, csv, yaml, or text.
	Format string `koanf:"format" yaml:"format"`

	// FilenamePattern is the export filename prefix.
	FilenamePattern string `koanf:"filename_pattern" yaml:"filename_pattern"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level" yaml:"level"`

	// Format is the log output format: "json" or "text".
	Format string `koanf:"format" yaml:"format"`
}

// TargetAddr parses the configured target IP.
func (t TargetConfig) TargetAddr() (netip.Addr, error) {
	if t.IP == "" {
		return netip.Addr{}, fmt.Errorf("target.ip is empty: %w", ErrMissingTarget)
	}
	addr, err := netip.ParseAddr(t.IP)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("parse target.ip %q: %w", t.IP, errors.Join(ErrInvalidTarget, err))
	}
	return addr, nil
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with conservative defaults.
// The target IP is intentionally left empty; it must come from a flag,
// a config file, or a template.
func DefaultConfig() *Config {
	return &Config{
		Target: TargetConfig{
			Ports:       []uint16{80},
			ProtocolMix: packet.Mix{UDP: 0.6, TCPSyn: 0.25, TCPAck: 0.05, ICMP: 0.05, IPv6UDP: 0.03, ARP: 0.02},
		},
		Attack: AttackConfig{
			Threads:          4,
			PacketRate:       100,
			PayloadSizeRange: SizeRangeConfig{Min: safety.MinPayloadSize, Max: 1400},
			BurstPattern:     BurstPattern{Kind: BurstSustained},
			RandomizeTiming:  true,
		},
		Safety: SafetyConfig{
			MaxThreads:           safety.MaxThreads,
			MaxPacketRate:        safety.MaxPacketRate,
			RequirePrivateRanges: true,
			AuditLogging:         true,
			AuditLogFile:         audit.DefaultLogPath,
		},
		Monitoring: MonitoringConfig{
			StatsIntervalSecs: 5,
		},
		Export: ExportConfig{
			Format:          string(stats.FormatJSON),
			FilenamePattern: "netburst_stats",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for overrides.
// Variables are named NETBURST_<section>_<key>, e.g., NETBURST_LOG_LEVEL.
// Every underscore after the prefix maps to a dot, so keys that contain an
// underscore themselves (packet_rate, dry_run, ...) cannot be overridden.
const envPrefix = "NETBURST_"

// Loader errors.
var (
	// ErrMissingTarget indicates no target IP was provided.
	ErrMissingTarget = errors.New("target IP is required")

	// ErrInvalidTarget indicates the target IP failed to parse.
	ErrInvalidTarget = errors.New("target IP is invalid")

	// ErrUnknownField indicates the YAML file contains a field outside
	// the schema.
	ErrUnknownField = errors.New("unknown configuration field")

	// ErrPerfectRequiresDryRun indicates perfect_simulation without
	// dry_run.
	ErrPerfectRequiresDryRun = errors.New("perfect_simulation requires dry_run")

	// ErrInvalidBurstPattern indicates an unrecognized or incomplete
	// burst pattern.
	ErrInvalidBurstPattern = errors.New("invalid burst pattern")

	// ErrPrivateRangesRequired indicates an attempt to disable the
	// private-range rule.
	ErrPrivateRangesRequired = errors.New("require_private_ranges cannot be disabled")
)

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (NETBURST_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults; unknown fields are
// rejected; the result is validated.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := checkKnownFields(raw); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), koanfyaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}
	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := DefaultConfig()
	// A configured protocol mix replaces the default wholesale: merging
	// partial ratios over the non-zero defaults would silently break the
	// sum invariant.
	if k.Exists("target.protocol_mix") {
		cfg.Target.ProtocolMix = packet.Mix{}
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}
	return cfg, nil
}

// checkKnownFields strictly decodes the raw YAML against the schema so a
// misspelled or unknown key fails loudly instead of being ignored.
func checkKnownFields(raw []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var probe Config
	if err := dec.Decode(&probe); err != nil {
		if strings.Contains(err.Error(), "not found") || strings.Contains(err.Error(), "field") {
			return fmt.Errorf("%w: %v", ErrUnknownField, err)
		}
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// envKeyMapper transforms NETBURST_LOG_LEVEL -> log.level.
// Strips the prefix, lowercases, and replaces _ with .
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// EncodeYAML serializes a configuration for template output and exports.
func EncodeYAML(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode config YAML: %w", err)
	}
	return data, nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validate checks the configuration against the safety rules. Validating
// an already-validated configuration is a no-op: the checks are pure.
func Validate(cfg *Config) error {
	addr, err := cfg.Target.TargetAddr()
	if err != nil {
		return err
	}
	if !cfg.Safety.RequirePrivateRanges {
		return ErrPrivateRangesRequired
	}
	if err := safety.ValidateTargetIP(addr, cfg.Safety.AllowBroadcast); err != nil {
		return err
	}
	if err := safety.ValidatePorts(cfg.Target.Ports); err != nil {
		return err
	}
	if err := cfg.Target.ProtocolMix.Validate(); err != nil {
		return err
	}

	if err := safety.ValidateLimits(
		cfg.Attack.Threads,
		cfg.Attack.PacketRate,
		cfg.Attack.PayloadSizeRange.Min,
		cfg.Attack.PayloadSizeRange.Max,
		cfg.Safety.MaxThreads,
		cfg.Safety.MaxPacketRate,
	); err != nil {
		return err
	}

	if cfg.Safety.PerfectSimulation && !cfg.Safety.DryRun {
		return ErrPerfectRequiresDryRun
	}

	if err := validateBurstPattern(cfg.Attack.BurstPattern); err != nil {
		return err
	}

	if cfg.Export.Enabled {
		if _, err := stats.ParseFormat(cfg.Export.Format); err != nil {
			return err
		}
	}

	return nil
}

// validateBurstPattern checks the pattern kind and its parameters.
func validateBurstPattern(p BurstPattern) error {
	switch p.Kind {
	case BurstSustained, "":
		return nil
	case BurstBursts:
		if p.BurstSize <= 0 || p.BurstIntervalMS == 0 {
			return fmt.Errorf("bursts pattern needs burst_size and burst_interval_ms: %w",
				ErrInvalidBurstPattern)
		}
		return nil
	case BurstRamp:
		if p.StartRate == 0 || p.EndRate == 0 || p.RampDurationSecs == 0 {
			return fmt.Errorf("ramp pattern needs start_rate, end_rate, and ramp_duration: %w",
				ErrInvalidBurstPattern)
		}
		if p.StartRate > safety.MaxPacketRate || p.EndRate > safety.MaxPacketRate {
			return &safety.LimitError{Field: "ramp_rate", Value: max(p.StartRate, p.EndRate), Limit: safety.MaxPacketRate}
		}
		return nil
	default:
		return fmt.Errorf("kind %q: %w", p.Kind, ErrInvalidBurstPattern)
	}
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the
// corresponding slog.Level. Unknown values default to slog.LevelInfo.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
