// Package commands implements the netburst CLI surface.
package commands

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/routelab/netburst/internal/config"
	"github.com/routelab/netburst/internal/packet"
	"github.com/routelab/netburst/internal/safety"
	"github.com/routelab/netburst/internal/stats"
)

// Exit codes.
const (
	exitOK         = 0
	exitValidation = 1
	exitPrivilege  = 2
	exitRuntime    = 3
)

// flags holds the root command's flag values. Only flags the user set
// override the configuration file.
var flags struct {
	target            string
	ports             string
	threads           int
	rate              uint64
	duration          uint64
	configPath        string
	ifaceName         string
	auditLog          string
	exportFormat      string
	dryRun            bool
	perfectSimulation bool
	allowBroadcast    bool
	listInterfaces    bool
}

// rootCmd is the top-level cobra command.
var rootCmd = &cobra.Command{
	Use:   "netburst",
	Short: "Educational network stress generator for private lab networks",
	Long: "netburst synthesizes high volumes of well-formed IP packets at hosts on\n" +
		"your own private network, for studying router and switch behavior under\n" +
		"load. Targets are restricted to private ranges, rates are capped, and\n" +
		"every run leaves an audit trail. Use --dry-run to exercise the full\n" +
		"pipeline without sending a single packet.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runRoot(cmd)
	},
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&flags.target, "target", "", "target IP (private-range IPv4 or IPv6)")
	f.StringVar(&flags.ports, "ports", "", "comma-separated destination ports")
	f.IntVar(&flags.threads, "threads", 4, "worker count")
	f.Uint64Var(&flags.rate, "rate", 100, "aggregate packets per second")
	f.Uint64Var(&flags.duration, "duration", 0, "run duration in seconds (unset = until interrupted; 0 exits after the start record)")
	f.StringVar(&flags.configPath, "config", "", "path to YAML configuration file")
	f.StringVar(&flags.ifaceName, "interface", "", "network interface for layer-2 sends")
	f.StringVar(&flags.auditLog, "audit-log", "", "audit log path")
	f.StringVar(&flags.exportFormat, "export", "", "export results: json, csv, yaml, or text")
	f.BoolVar(&flags.dryRun, "dry-run", false, "simulate sends without opening sockets")
	f.BoolVar(&flags.perfectSimulation, "perfect-simulation", false, "all simulated sends succeed (requires --dry-run)")
	f.BoolVar(&flags.allowBroadcast, "allow-broadcast", false, "permit the IPv4 limited broadcast target")
	f.BoolVar(&flags.listInterfaces, "list-interfaces", false, "list usable network interfaces and exit")

	rootCmd.AddCommand(templateCmd())
	rootCmd.AddCommand(verifyAuditCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the CLI and maps the outcome to the documented exit
// codes: 0 success, 1 validation failure, 2 privilege failure, 3 runtime
// error.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return exitOK
	}

	fmt.Fprintln(os.Stderr, "Error:", err)
	if h := hint(err); h != "" {
		fmt.Fprintln(os.Stderr, "Hint:", h)
	}
	return exitCode(err)
}

// exitCode classifies an error into the exit code taxonomy.
func exitCode(err error) int {
	if errors.Is(err, safety.ErrPrivilege) {
		return exitPrivilege
	}

	validation := []error{
		safety.ErrInvalidIPRange,
		safety.ErrBroadcastBlocked,
		safety.ErrExceedsLimit,
		safety.ErrNoPorts,
		packet.ErrRatioSum,
		packet.ErrRatioOutOfRange,
		config.ErrMissingTarget,
		config.ErrInvalidTarget,
		config.ErrUnknownField,
		config.ErrPerfectRequiresDryRun,
		config.ErrInvalidBurstPattern,
		config.ErrPrivateRangesRequired,
		config.ErrUnknownTemplate,
		stats.ErrUnknownFormat,
		errPortsFlag,
	}
	for _, v := range validation {
		if errors.Is(err, v) {
			return exitValidation
		}
	}

	return exitRuntime
}

// hint returns context-specific remediation for user-facing errors.
func hint(err error) string {
	switch {
	case errors.Is(err, safety.ErrPrivilege):
		return "run as root or grant the capability: sudo setcap cap_net_raw+ep netburst (or use --dry-run)"
	case errors.Is(err, safety.ErrInvalidIPRange):
		return "use a private IP such as 192.168.1.1"
	case errors.Is(err, safety.ErrBroadcastBlocked):
		return "pass --allow-broadcast if you really mean to hit every device on the segment"
	case errors.Is(err, config.ErrMissingTarget):
		return "pass --target <IP> or --config <file>"
	case errors.Is(err, config.ErrPerfectRequiresDryRun):
		return "--perfect-simulation only makes sense together with --dry-run"
	default:
		return ""
	}
}

// errPortsFlag indicates an unparseable --ports value.
var errPortsFlag = errors.New("invalid --ports value")

// parsePorts splits a comma-separated port list.
func parsePorts(csv string) ([]uint16, error) {
	parts := strings.Split(csv, ",")
	ports := make([]uint16, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseUint(part, 10, 16)
		if err != nil || v == 0 {
			return nil, fmt.Errorf("port %q: %w", part, errPortsFlag)
		}
		ports = append(ports, uint16(v))
	}
	if len(ports) == 0 {
		return nil, fmt.Errorf("empty port list: %w", errPortsFlag)
	}
	return ports, nil
}

// buildConfig loads the configuration file (or defaults) and overlays
// the flags the user explicitly set.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	if flags.configPath != "" {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.DefaultConfig()
	}

	f := cmd.Flags()
	if f.Changed("target") {
		cfg.Target.IP = flags.target
	}
	if f.Changed("ports") {
		ports, err := parsePorts(flags.ports)
		if err != nil {
			return nil, err
		}
		cfg.Target.Ports = ports
	}
	if f.Changed("threads") {
		cfg.Attack.Threads = flags.threads
	}
	if f.Changed("rate") {
		cfg.Attack.PacketRate = flags.rate
	}
	if f.Changed("duration") {
		duration := flags.duration
		cfg.Attack.Duration = &duration
	}
	if f.Changed("interface") {
		cfg.Target.Interface = flags.ifaceName
	}
	if f.Changed("audit-log") {
		cfg.Safety.AuditLogFile = flags.auditLog
	}
	if f.Changed("dry-run") {
		cfg.Safety.DryRun = flags.dryRun
	}
	if f.Changed("perfect-simulation") {
		cfg.Safety.PerfectSimulation = flags.perfectSimulation
	}
	if f.Changed("allow-broadcast") {
		cfg.Safety.AllowBroadcast = flags.allowBroadcast
	}
	if f.Changed("export") {
		cfg.Export.Enabled = true
		cfg.Export.Format = flags.exportFormat
	}

	return cfg, nil
}
