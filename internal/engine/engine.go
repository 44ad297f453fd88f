// Package engine wires the packet pipeline together: it validates the
// configuration, spawns the worker tasks with their exclusive transport
// channels, runs the monitoring tasks, and drives graceful shutdown on
// signal or duration expiry.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/routelab/netburst/internal/audit"
	"github.com/routelab/netburst/internal/config"
	"github.com/routelab/netburst/internal/netio"
	"github.com/routelab/netburst/internal/safety"
	"github.com/routelab/netburst/internal/stats"
)

// GracefulShutdownTimeout bounds how long the engine waits for workers
// to observe the cleared running flag and drain.
const GracefulShutdownTimeout = 10 * time.Second

// readHeaderTimeout hardens the optional metrics HTTP server.
const readHeaderTimeout = 10 * time.Second

// Engine is the lifecycle controller for one stress session.
type Engine struct {
	cfg       *config.Config
	logger    *slog.Logger
	target    netip.Addr
	sessionID string

	core     *stats.Core
	auditLog *audit.Logger
	exporter *stats.Exporter
	reporter Reporter

	running atomic.Bool
}

// Option configures optional Engine collaborators.
type Option func(*Engine)

// WithReporter replaces the default log-based stats reporter.
func WithReporter(r Reporter) Option {
	return func(e *Engine) { e.reporter = r }
}

// New validates cfg and assembles an Engine. Validation, privilege, and
// target errors are returned before anything is spawned; callers map
// them to exit codes with errors.Is.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if err := config.Validate(cfg); err != nil {
		auditViolation(cfg, err)
		return nil, err
	}

	caps := safety.DetectContext()
	if err := caps.CheckLive(cfg.Safety.DryRun); err != nil {
		return nil, err
	}
	if caps.IsRoot() && !cfg.Safety.DryRun {
		logger.Warn("running as root; prefer CAP_NET_RAW on the binary",
			slog.Int("euid", caps.EffectiveUID),
		)
	}

	target, err := cfg.Target.TargetAddr()
	if err != nil {
		return nil, err
	}
	if safety.IsBroadcast(target) {
		logger.Warn("broadcast target allowed by --allow-broadcast; every host on the segment receives the traffic",
			slog.String("target", target.String()),
		)
	}

	sessionID := uuid.NewString()

	e := &Engine{
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "engine")),
		target:    target,
		sessionID: sessionID,
		core:      stats.NewCore(),
		auditLog: audit.NewLogger(
			cfg.Safety.AuditLogFile,
			cfg.Safety.AuditLogging,
			cfg.Safety.AuditChain,
			sessionID,
		),
	}

	if cfg.Export.Enabled {
		format, fErr := stats.ParseFormat(cfg.Export.Format)
		if fErr != nil {
			return nil, fErr
		}
		e.exporter = stats.NewExporter(sessionID, format, cfg.Export.FilenamePattern)
	}

	for _, opt := range opts {
		opt(e)
	}
	if e.reporter == nil {
		e.reporter = NewLogReporter(logger, cfg.Safety.DryRun)
	}

	return e, nil
}

// auditViolation records a SecurityViolation audit event for safety
// rejections (forbidden target, exceeded ceiling) before the engine is
// assembled. Other validation errors are not security events.
func auditViolation(cfg *config.Config, vErr error) {
	if !errors.Is(vErr, safety.ErrInvalidIPRange) &&
		!errors.Is(vErr, safety.ErrExceedsLimit) &&
		!errors.Is(vErr, safety.ErrBroadcastBlocked) {
		return
	}

	logger := audit.NewLogger(
		cfg.Safety.AuditLogFile,
		cfg.Safety.AuditLogging,
		false,
		uuid.NewString(),
	)

	// The rejected target may not even parse; a zero Addr is recorded
	// as-is.
	target, _ := cfg.Target.TargetAddr()
	_ = logger.LogEvent(audit.EventSecurityViolation, audit.Event{
		TargetIP:   target,
		Ports:      cfg.Target.Ports,
		Threads:    cfg.Attack.Threads,
		PacketRate: cfg.Attack.PacketRate,
		Duration:   cfg.Attack.Duration,
		Interface:  cfg.Target.Interface,
	})
}

// SessionID returns the 128-bit identity of this run.
func (e *Engine) SessionID() string { return e.sessionID }

// Snapshot returns the current stats counters.
func (e *Engine) Snapshot() stats.Snapshot { return e.core.Snapshot() }

// auditEvent builds the common audit record payload.
func (e *Engine) auditEvent(iface string) audit.Event {
	return audit.Event{
		TargetIP:   e.target,
		Ports:      e.cfg.Target.Ports,
		Threads:    e.cfg.Attack.Threads,
		PacketRate: e.cfg.Attack.PacketRate,
		Duration:   e.cfg.Attack.Duration,
		Interface:  iface,
	}
}

// logAudit writes one audit record. The audit channel is advisory: a
// write failure is logged at warning level and execution continues.
func (e *Engine) logAudit(kind audit.EventType, iface string) {
	if err := e.auditLog.LogEvent(kind, e.auditEvent(iface)); err != nil {
		e.logger.Warn("audit write failed",
			slog.String("event", kind.String()),
			slog.String("error", err.Error()),
		)
	}
}

// Run executes the session until the duration expires, a SIGINT/SIGTERM
// arrives, or ctx is cancelled. It returns after workers have drained
// (bounded by GracefulShutdownTimeout), final stats are rendered and
// exported, and the Stop audit record is written.
func (e *Engine) Run(ctx context.Context) error {
	iface, err := e.resolveInterface()
	if err != nil {
		return err
	}

	e.logStart(iface)
	e.logAudit(audit.EventStart, iface)

	// An explicit zero duration exits right after the start record,
	// before any packet.
	if d := e.cfg.Attack.Duration; d != nil && *d == 0 {
		e.logger.Info("zero duration, exiting before packet generation")
		e.finalize(iface)
		return nil
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	signalGuard := NewGuard(stop)
	defer signalGuard.Release()

	runCtx, cancelRun := context.WithCancel(sigCtx)
	defer cancelRun()

	rotor, err := NewPortRotor(e.cfg.Target.Ports)
	if err != nil {
		return err
	}

	// Open every worker's channels up front: a creation failure is
	// fatal before any worker spawns.
	channels, err := e.openChannels(iface)
	if err != nil {
		return err
	}
	channelGuard := NewGuard(func() { e.closeChannels(channels) })
	defer channelGuard.Release()

	e.running.Store(true)

	g, gCtx := errgroup.WithContext(runCtx)

	for i := 0; i < e.cfg.Attack.Threads; i++ {
		w := newWorker(i, e.cfg, e.target, rotor, channels[i], e.core, e.logger)
		g.Go(func() error {
			w.run(gCtx, &e.running)
			return nil
		})
	}

	e.spawnMonitors(gCtx, g)
	metricsShutdown := e.startMetricsServer(runCtx)

	// Stopper: whichever of {signal/cancel, duration expiry} fires
	// first clears the running flag exactly once and unparks everyone.
	g.Go(func() error {
		e.awaitStop(sigCtx)
		e.running.Store(false)
		cancelRun()
		return nil
	})

	e.waitWithGrace(g)
	metricsShutdown()
	channelGuard.Release()
	signalGuard.Release()

	e.finalize(iface)
	return nil
}

// resolveInterface resolves the configured interface name, or picks a
// default for live layer-2 sends. Dry-run keeps whatever was configured.
func (e *Engine) resolveInterface() (string, error) {
	if e.cfg.Safety.DryRun {
		return e.cfg.Target.Interface, nil
	}

	iface, err := netio.ResolveInterface(e.cfg.Target.Interface)
	if err != nil {
		return "", err
	}
	if iface == "" && e.cfg.Target.ProtocolMix.ARP > 0 {
		e.logger.Warn("no usable interface found; ARP sends will fail")
	}
	return iface, nil
}

// openChannels creates one transport per worker: the dry-run shim, or
// raw sockets in live mode. On failure, already-opened channels are
// closed and the error is returned — fatal at startup.
func (e *Engine) openChannels(iface string) ([]netio.Channels, error) {
	channels := make([]netio.Channels, 0, e.cfg.Attack.Threads)

	for i := 0; i < e.cfg.Attack.Threads; i++ {
		if e.cfg.Safety.DryRun {
			channels = append(channels, netio.NewDryRunChannels(e.cfg.Safety.PerfectSimulation))
			continue
		}

		raw, err := netio.NewRawChannels(iface, e.logger)
		if err != nil {
			e.closeChannels(channels)
			return nil, fmt.Errorf("create channels for worker %d: %w", i, err)
		}
		channels = append(channels, raw)
	}

	return channels, nil
}

// closeChannels closes all channels, logging failures.
func (e *Engine) closeChannels(channels []netio.Channels) {
	for _, ch := range channels {
		if err := ch.Close(); err != nil {
			e.logger.Warn("failed to close transport channels",
				slog.String("error", err.Error()),
			)
		}
	}
}

// spawnMonitors starts the stats reporter and, when enabled, the
// periodic export task.
func (e *Engine) spawnMonitors(ctx context.Context, g *errgroup.Group) {
	interval := time.Duration(e.cfg.Monitoring.StatsIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				e.reporter.Report(e.core.Snapshot())
			}
		}
	})

	if e.exporter == nil || e.cfg.Monitoring.ExportIntervalSecs == nil {
		return
	}
	exportEvery := time.Duration(*e.cfg.Monitoring.ExportIntervalSecs) * time.Second
	if exportEvery <= 0 {
		return
	}

	g.Go(func() error {
		ticker := time.NewTicker(exportEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if _, err := e.exporter.Export(e.core.Snapshot()); err != nil {
					e.logger.Error("periodic stats export failed",
						slog.String("error", err.Error()),
					)
				}
			}
		}
	})
}

// startMetricsServer exposes the Prometheus endpoint when configured.
// Returns a shutdown function; without a configured address it is a
// no-op.
func (e *Engine) startMetricsServer(ctx context.Context) func() {
	addr := e.cfg.Monitoring.MetricsAddr
	if addr == "" {
		return func() {}
	}

	reg := prometheus.NewRegistry()
	stats.NewCollector(e.core, reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		e.logger.Warn("metrics endpoint unavailable",
			slog.String("addr", addr),
			slog.String("error", err.Error()),
		)
		return func() {}
	}

	e.logger.Info("metrics server listening", slog.String("addr", addr))
	done := make(chan struct{})
	go func() {
		defer close(done)
		if serveErr := srv.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			e.logger.Warn("metrics server stopped",
				slog.String("error", serveErr.Error()),
			)
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), readHeaderTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			e.logger.Warn("metrics server shutdown failed",
				slog.String("error", err.Error()),
			)
		}
		<-done
	}
}

// awaitStop blocks until a stop condition: signal/cancellation, or the
// configured duration elapsing.
func (e *Engine) awaitStop(ctx context.Context) {
	if e.cfg.Attack.Duration == nil {
		<-ctx.Done()
		e.logger.Info("shutdown signal received")
		return
	}

	timer := time.NewTimer(time.Duration(*e.cfg.Attack.Duration) * time.Second)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		e.logger.Info("shutdown signal received")
	case <-timer.C:
		e.logger.Info("duration reached, stopping")
	}
}

// waitWithGrace joins the worker group, bounded by
// GracefulShutdownTimeout. Workers in a long send finish their packet;
// a worker exceeding the grace period is abandoned with a warning.
func (e *Engine) waitWithGrace(g *errgroup.Group) {
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			e.logger.Error("worker group error", slog.String("error", err.Error()))
		}
	case <-time.After(GracefulShutdownTimeout):
		e.logger.Warn("graceful shutdown timeout exceeded",
			slog.Duration("timeout", GracefulShutdownTimeout),
		)
	}
}

// logStart announces the session. Dry-run wording makes the simulation
// nature unmistakable.
func (e *Engine) logStart(iface string) {
	attrs := []any{
		slog.String("session_id", e.sessionID),
		slog.String("target", e.target.String()),
		slog.Any("ports", e.cfg.Target.Ports),
		slog.Int("threads", e.cfg.Attack.Threads),
		slog.Uint64("rate", e.cfg.Attack.PacketRate),
	}
	if iface != "" {
		attrs = append(attrs, slog.String("interface", iface))
	}
	if d := e.cfg.Attack.Duration; d != nil {
		attrs = append(attrs, slog.Uint64("duration_secs", *d))
	}

	if e.cfg.Safety.DryRun {
		e.logger.Info("starting stress engine (SIMULATION, no packets sent)", attrs...)
		return
	}
	e.logger.Info("starting stress engine", attrs...)
}

// finalize renders the last snapshot, writes the final export, emits the
// Stop audit record, and clears the reporter.
func (e *Engine) finalize(iface string) {
	snap := e.core.Snapshot()
	e.reporter.Report(snap)

	if e.exporter != nil {
		if path, err := e.exporter.Export(snap); err != nil {
			e.logger.Error("final stats export failed", slog.String("error", err.Error()))
		} else {
			e.logger.Info("final stats exported", slog.String("path", path))
		}
	}

	e.logAudit(audit.EventStop, iface)
	e.reporter.Clear()

	if e.cfg.Safety.DryRun {
		e.logger.Info("simulation complete (NO PACKETS SENT)",
			slog.Uint64("simulated", snap.PacketsSent),
		)
		return
	}
	e.logger.Info("session complete",
		slog.Uint64("sent", snap.PacketsSent),
		slog.Uint64("failed", snap.PacketsFailed),
	)
}
