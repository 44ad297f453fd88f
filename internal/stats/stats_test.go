package stats_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/routelab/netburst/internal/packet"
	"github.com/routelab/netburst/internal/stats"
)

func TestCoreIncrementAndSnapshot(t *testing.T) {
	t.Parallel()

	core := stats.NewCore()
	core.IncrementSent(100, packet.ProtoUDP)
	core.IncrementSent(200, packet.ProtoTCP)
	core.IncrementFailed()

	snap := core.Snapshot()
	if snap.PacketsSent != 2 {
		t.Errorf("PacketsSent = %d, want 2", snap.PacketsSent)
	}
	if snap.PacketsFailed != 1 {
		t.Errorf("PacketsFailed = %d, want 1", snap.PacketsFailed)
	}
	if snap.BytesSent != 300 {
		t.Errorf("BytesSent = %d, want 300", snap.BytesSent)
	}
	if snap.ProtocolCounts[packet.ProtoUDP] != 1 || snap.ProtocolCounts[packet.ProtoTCP] != 1 {
		t.Errorf("ProtocolCounts = %v, want one UDP and one TCP", snap.ProtocolCounts)
	}
}

func TestCoreMonotonicUnderConcurrency(t *testing.T) {
	t.Parallel()

	core := stats.NewCore()
	done := make(chan struct{})

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10_000; i++ {
				core.IncrementSent(64, packet.ProtoUDP)
			}
		}()
	}

	go func() {
		defer close(done)
		var prev stats.Snapshot
		for i := 0; i < 1000; i++ {
			snap := core.Snapshot()
			if snap.PacketsSent < prev.PacketsSent ||
				snap.PacketsFailed < prev.PacketsFailed ||
				snap.BytesSent < prev.BytesSent {
				t.Error("counters regressed between observations")
				return
			}
			prev = snap
		}
	}()

	wg.Wait()
	<-done

	if got := core.Snapshot().PacketsSent; got != 40_000 {
		t.Errorf("final PacketsSent = %d, want 40000", got)
	}
}

func TestLocalBatchingFlushesAtThreshold(t *testing.T) {
	t.Parallel()

	core := stats.NewCore()
	local := stats.NewLocal(core, 3)

	local.IncrementSent(100, packet.ProtoUDP)
	local.IncrementSent(100, packet.ProtoUDP)
	if got := core.Snapshot().PacketsSent; got != 0 {
		t.Fatalf("PacketsSent = %d before threshold, want 0", got)
	}

	local.IncrementSent(100, packet.ProtoUDP)
	snap := core.Snapshot()
	if snap.PacketsSent != 3 || snap.BytesSent != 300 {
		t.Errorf("after threshold: sent=%d bytes=%d, want 3/300", snap.PacketsSent, snap.BytesSent)
	}
	if snap.ProtocolCounts[packet.ProtoUDP] != 3 {
		t.Errorf("ProtocolCounts[UDP] = %d, want 3", snap.ProtocolCounts[packet.ProtoUDP])
	}
}

func TestLocalFlushResidualAndIdempotent(t *testing.T) {
	t.Parallel()

	core := stats.NewCore()
	local := stats.NewLocal(core, 50)

	local.IncrementSent(10, packet.ProtoICMP)
	local.IncrementFailed()
	local.Flush()

	snap := core.Snapshot()
	if snap.PacketsSent != 1 || snap.PacketsFailed != 1 || snap.BytesSent != 10 {
		t.Errorf("after flush: %+v", snap)
	}

	// A second flush with nothing accumulated is a no-op.
	local.Flush()
	again := core.Snapshot()
	if again.PacketsSent != 1 || again.PacketsFailed != 1 || again.BytesSent != 10 {
		t.Errorf("idempotent flush changed counters: %+v", again)
	}
}

func TestShardedAggregate(t *testing.T) {
	t.Parallel()

	sharded := stats.NewSharded(2)
	a := sharded.Assign()
	b := sharded.Assign()

	a.IncrementSent(100, packet.ProtoUDP)
	b.IncrementSent(200, packet.ProtoTCP)
	b.IncrementFailed()

	total := sharded.Aggregate()
	if total.PacketsSent != 2 || total.PacketsFailed != 1 || total.BytesSent != 300 {
		t.Errorf("Aggregate = %+v", total)
	}
}

func TestExporterWritesJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	core := stats.NewCore()
	core.IncrementSent(1024, packet.ProtoUDP)

	exp := stats.NewExporter("0b1e6e9c-aaaa-bbbb-cccc-111111111111", stats.FormatJSON,
		filepath.Join(dir, "run"))
	path, err := exp.Export(core.Snapshot())
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	var rec stats.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("unmarshal export: %v", err)
	}
	if rec.PacketsSent != 1 || rec.BytesSent != 1024 {
		t.Errorf("record = %+v", rec)
	}
	if rec.Protocols["UDP"] != 1 {
		t.Errorf("Protocols[UDP] = %d, want 1", rec.Protocols["UDP"])
	}
}

func TestEncodeCSVShape(t *testing.T) {
	t.Parallel()

	rec := stats.NewRecord("session", stats.Snapshot{PacketsSent: 5, BytesSent: 500})
	data, err := stats.Encode(rec, stats.FormatCSV)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("CSV has %d lines, want header + row", len(lines))
	}
	if !strings.HasPrefix(lines[0], "session_id,timestamp") {
		t.Errorf("CSV header = %q", lines[0])
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	for _, ok := range []string{"json", "csv", "yaml", "text", "JSON"} {
		if _, err := stats.ParseFormat(ok); err != nil {
			t.Errorf("ParseFormat(%q) = %v, want nil", ok, err)
		}
	}
	if _, err := stats.ParseFormat("xml"); err == nil {
		t.Error("ParseFormat(xml) = nil, want error")
	}
}

func TestCollectorExposesCounters(t *testing.T) {
	t.Parallel()

	core := stats.NewCore()
	core.IncrementSent(128, packet.ProtoUDP)
	core.IncrementFailed()

	reg := prometheus.NewPedanticRegistry()
	stats.NewCollector(core, reg)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	found := make(map[string]bool)
	for _, mf := range families {
		found[mf.GetName()] = true
	}
	for _, want := range []string{
		"netburst_packets_sent_total",
		"netburst_packets_failed_total",
		"netburst_bytes_sent_total",
		"netburst_packets_by_protocol_total",
		"netburst_session_duration_seconds",
	} {
		if !found[want] {
			t.Errorf("metric family %q not exposed (got %v)", want, found)
		}
	}
}
