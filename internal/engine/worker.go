package engine

import (
	"context"
	"log/slog"
	"net/netip"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/routelab/netburst/internal/config"
	"github.com/routelab/netburst/internal/netio"
	"github.com/routelab/netburst/internal/packet"
	"github.com/routelab/netburst/internal/rng"
	"github.com/routelab/netburst/internal/stats"
)

// BurstSize is the largest number of packets emitted back-to-back before
// each rate-limit delay in the sustained and ramp patterns; burstLen
// shrinks it at low per-worker rates.
const BurstSize = 100

// minSleep is the shortest delay worth an actual timer sleep. Below this
// the worker yields cooperatively instead, avoiding per-sleep overhead at
// very high rates.
const minSleep = 50 * time.Microsecond

// worker is one packet-generation task. It exclusively owns its RNG,
// builder, selection ring, reusable buffer, transport channels, and local
// stats accumulator — nothing here is shared except the port rotor and
// the stats core behind the Local batcher.
type worker struct {
	id       int
	target   netip.Addr
	rotor    *PortRotor
	channels netio.Channels
	local    *stats.Local
	rng      *rng.Batched
	builder  *packet.Builder
	ring     *packet.Ring
	buf      []byte

	baseDelay time.Duration
	jitter    bool
	pattern   config.BurstPattern
	threads   int

	logger *slog.Logger
}

// newWorker wires one worker from the validated configuration. The
// channels are owned by the worker from here on and closed when the
// engine releases its channel guard.
func newWorker(
	id int,
	cfg *config.Config,
	target netip.Addr,
	rotor *PortRotor,
	channels netio.Channels,
	core *stats.Core,
	logger *slog.Logger,
) *worker {
	r := rng.New()
	builder := packet.NewBuilder(packet.SizeRange{
		Min: cfg.Attack.PayloadSizeRange.Min,
		Max: cfg.Attack.PayloadSizeRange.Max,
	}, r)

	threads := cfg.Attack.Threads
	if threads < 1 {
		threads = 1
	}

	return &worker{
		id:        id,
		target:    target,
		rotor:     rotor,
		channels:  channels,
		local:     stats.NewLocal(core, 0),
		rng:       r,
		builder:   builder,
		ring:      packet.NewRing(cfg.Target.ProtocolMix, target),
		buf:       make([]byte, builder.BufferSize()),
		baseDelay: perPacketDelay(cfg.Attack.PacketRate, threads),
		jitter:    cfg.Attack.RandomizeTiming,
		pattern:   cfg.Attack.BurstPattern,
		threads:   threads,
		logger: logger.With(
			slog.String("component", "engine.worker"),
			slog.Int("worker", id),
		),
	}
}

// perPacketDelay computes the inter-packet delay for one worker's share
// of the aggregate rate.
func perPacketDelay(rate uint64, threads int) time.Duration {
	perWorker := float64(rate) / float64(threads)
	if perWorker <= 0 {
		return time.Second
	}
	return time.Duration(float64(time.Second) / perWorker)
}

// run is the build -> send -> record -> rate-limit loop. It exits when
// running clears or ctx is cancelled, flushing residual local stats on
// every exit path.
func (w *worker) run(ctx context.Context, running *atomic.Bool) {
	defer w.local.Flush()

	start := time.Now()
	burst := w.burstLen()
	w.logger.Debug("worker running",
		slog.Int("burst_len", burst),
		slog.Duration("base_delay", w.baseDelay),
	)

	for running.Load() && ctx.Err() == nil {
		for i := 0; i < burst; i++ {
			if !running.Load() {
				break
			}
			w.processOne()
		}

		// Top up the RNG pools between bursts, off the per-packet path.
		w.rng.ReplenishIfNeeded()

		w.pause(ctx, start, burst)
	}
}

// burstLen returns the packets emitted per rate-limit cycle. At low
// per-worker rates the burst shrinks to the per-second share so the
// worker does not front-load a whole burst into the first instant — one
// thread at rate one emits approximately one packet per second.
func (w *worker) burstLen() int {
	if w.pattern.Kind == config.BurstBursts && w.pattern.BurstSize > 0 {
		return w.pattern.BurstSize
	}

	if w.baseDelay > 0 {
		if perSecond := int(time.Second / w.baseDelay); perSecond < BurstSize {
			if perSecond < 1 {
				return 1
			}
			return perSecond
		}
	}
	return BurstSize
}

// processOne builds and dispatches a single packet. Build and send
// failures both count as failed and are not retried.
func (w *worker) processOne() {
	kind := w.ring.Next()
	port := w.rotor.Next()

	n, proto, err := w.builder.BuildInto(w.buf, kind, w.target, port)
	if err != nil {
		w.local.IncrementFailed()
		return
	}

	if err := w.channels.Send(w.buf[:n], w.target, channelKindFor(kind)); err != nil {
		w.local.IncrementFailed()
		return
	}

	w.local.IncrementSent(uint64(n), proto)
}

// channelKindFor maps a packet kind to its transport handle.
func channelKindFor(kind packet.Kind) netio.ChannelKind {
	switch {
	case kind == packet.KindARP:
		return netio.ChannelL2
	case kind.IsIPv6():
		return netio.ChannelIPv6
	default:
		return netio.ChannelIPv4
	}
}

// pause applies the per-burst rate delay for the configured pattern.
func (w *worker) pause(ctx context.Context, start time.Time, burst int) {
	switch w.pattern.Kind {
	case config.BurstBursts:
		w.sleep(ctx, time.Duration(w.pattern.BurstIntervalMS)*time.Millisecond)

	case config.BurstRamp:
		w.delayOrYield(ctx, w.applyJitter(w.rampDelay(start, burst)))

	default: // sustained
		w.delayOrYield(ctx, w.applyJitter(w.baseDelay*time.Duration(burst)))
	}
}

// rampDelay recomputes the burst delay from the linearly interpolated
// rate at this point of the ramp window.
func (w *worker) rampDelay(start time.Time, burst int) time.Duration {
	dur := time.Duration(w.pattern.RampDurationSecs) * time.Second
	frac := 1.0
	if dur > 0 {
		frac = float64(time.Since(start)) / float64(dur)
		if frac > 1 {
			frac = 1
		}
	}

	rate := float64(w.pattern.StartRate) + (float64(w.pattern.EndRate)-float64(w.pattern.StartRate))*frac
	perWorker := rate / float64(w.threads)
	if perWorker <= 0 {
		return time.Second
	}
	return time.Duration(float64(burst) * float64(time.Second) / perWorker)
}

// applyJitter multiplies d by a uniform factor in [0.8, 1.2) when
// timing randomization is enabled.
func (w *worker) applyJitter(d time.Duration) time.Duration {
	if !w.jitter {
		return d
	}
	return time.Duration(float64(d) * w.rng.FloatRange(0.8, 1.2))
}

// delayOrYield sleeps for d, or yields the processor when d is below the
// sleep-overhead threshold.
func (w *worker) delayOrYield(ctx context.Context, d time.Duration) {
	if d < minSleep {
		runtime.Gosched()
		return
	}
	w.sleep(ctx, d)
}

// sleep waits for d or until ctx is cancelled.
func (w *worker) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
