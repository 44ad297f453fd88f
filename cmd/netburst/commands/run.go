package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"github.com/routelab/netburst/internal/config"
	"github.com/routelab/netburst/internal/engine"
	"github.com/routelab/netburst/internal/netio"
)

// runRoot handles the root command: interface listing, config assembly,
// and the engine run.
func runRoot(cmd *cobra.Command) error {
	if flags.listInterfaces {
		return printInterfaces(cmd)
	}

	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log)

	eng, err := engine.New(cfg, logger)
	if err != nil {
		return err
	}

	notifyReady(logger)
	defer notifyStopping(logger)

	return eng.Run(cmd.Context())
}

// printInterfaces renders the usable interfaces for --list-interfaces.
func printInterfaces(cmd *cobra.Command) error {
	infos, err := netio.ListInterfaces()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "no usable network interfaces found")
		return nil
	}

	for _, info := range infos {
		state := "down"
		if info.Up {
			state = "up"
		}
		fmt.Fprintf(out, "%-12s %-5s mtu %-5d %v\n", info.Name, state, info.MTU, info.Addrs)
	}
	return nil
}

// newLogger creates the structured logger from the log configuration.
func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: config.ParseLogLevel(cfg.Level)}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// notifyReady signals readiness when running under systemd.
func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness",
			slog.String("error", err.Error()),
		)
		return
	}
	if sent {
		logger.Debug("notified systemd: READY")
	}
}

// notifyStopping signals shutdown when running under systemd.
func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping",
			slog.String("error", err.Error()),
		)
		return
	}
	if sent {
		logger.Debug("notified systemd: STOPPING")
	}
}
