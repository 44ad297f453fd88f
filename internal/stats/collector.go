package stats

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/routelab/netburst/internal/packet"
)

// Prometheus metric naming.
const (
	namespace = "netburst"

	labelProtocol = "protocol"
)

// SnapshotSource is anything that can produce a counter snapshot —
// a *Core or a *Sharded aggregate.
type SnapshotSource interface {
	Snapshot() Snapshot
}

// Collector bridges the lock-free counter core into Prometheus. Metrics
// are materialized from a fresh snapshot on every scrape, so the hot path
// never touches Prometheus types.
type Collector struct {
	source SnapshotSource

	packetsSent   *prometheus.Desc
	packetsFailed *prometheus.Desc
	bytesSent     *prometheus.Desc
	byProtocol    *prometheus.Desc
	duration      *prometheus.Desc
}

// NewCollector creates a Collector reading from source and registers it
// with reg. If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(source SnapshotSource, reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		source: source,
		packetsSent: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "packets_sent_total"),
			"Total packets transmitted (or simulated in dry-run).",
			nil, nil,
		),
		packetsFailed: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "packets_failed_total"),
			"Total packets that failed to build or send.",
			nil, nil,
		),
		bytesSent: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "bytes_sent_total"),
			"Total bytes transmitted.",
			nil, nil,
		),
		byProtocol: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "packets_by_protocol_total"),
			"Packets transmitted per protocol bucket.",
			[]string{labelProtocol}, nil,
		),
		duration: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "session_duration_seconds"),
			"Elapsed session time.",
			nil, nil,
		),
	}

	reg.MustRegister(c)
	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.packetsSent
	ch <- c.packetsFailed
	ch <- c.bytesSent
	ch <- c.byProtocol
	ch <- c.duration
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.source.Snapshot()

	ch <- prometheus.MustNewConstMetric(c.packetsSent, prometheus.CounterValue, float64(snap.PacketsSent))
	ch <- prometheus.MustNewConstMetric(c.packetsFailed, prometheus.CounterValue, float64(snap.PacketsFailed))
	ch <- prometheus.MustNewConstMetric(c.bytesSent, prometheus.CounterValue, float64(snap.BytesSent))
	ch <- prometheus.MustNewConstMetric(c.duration, prometheus.GaugeValue, snap.Elapsed.Seconds())

	for i, count := range snap.ProtocolCounts {
		ch <- prometheus.MustNewConstMetric(
			c.byProtocol, prometheus.CounterValue, float64(count),
			packet.ProtocolID(i).String(),
		)
	}
}
