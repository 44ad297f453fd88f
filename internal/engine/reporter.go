package engine

import (
	"log/slog"

	"github.com/routelab/netburst/internal/stats"
)

// Reporter renders periodic statistics snapshots. The engine calls Report
// from its monitor task and once more with the final snapshot, then
// Clear on shutdown. A terminal renderer can be plugged in through
// WithReporter; the default logs structured snapshot lines.
type Reporter interface {
	Report(snap stats.Snapshot)
	Clear()
}

// LogReporter is the default Reporter: one structured log line per
// snapshot.
type LogReporter struct {
	logger *slog.Logger
	dryRun bool
}

// NewLogReporter creates a LogReporter.
func NewLogReporter(logger *slog.Logger, dryRun bool) *LogReporter {
	return &LogReporter{
		logger: logger.With(slog.String("component", "engine.stats")),
		dryRun: dryRun,
	}
}

// Report logs one snapshot line.
func (r *LogReporter) Report(snap stats.Snapshot) {
	msg := "stats"
	if r.dryRun {
		msg = "stats (SIMULATION)"
	}
	r.logger.Info(msg,
		slog.Uint64("sent", snap.PacketsSent),
		slog.Uint64("failed", snap.PacketsFailed),
		slog.Uint64("bytes", snap.BytesSent),
		slog.Float64("pps", snap.PacketsPerSecond()),
		slog.Float64("mbps", snap.MegabitsPerSecond()),
		slog.Duration("elapsed", snap.Elapsed),
	)
}

// Clear is a no-op for the log reporter; terminal renderers restore
// cursor state here.
func (r *LogReporter) Clear() {}
