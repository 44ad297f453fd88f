package stats

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/routelab/netburst/internal/packet"
)

// Format selects the export serialization.
type Format string

// Supported export formats.
const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatYAML Format = "yaml"
	FormatText Format = "text"
)

// ErrUnknownFormat indicates an unrecognized export format string.
var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat maps a format string to a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatJSON, FormatCSV, FormatYAML, FormatText:
		return Format(strings.ToLower(s)), nil
	default:
		return "", fmt.Errorf("format %q (want json, csv, yaml, or text): %w", s, ErrUnknownFormat)
	}
}

// Record is the serialized form of a snapshot.
type Record struct {
	SessionID     string            `json:"session_id" yaml:"session_id"`
	Timestamp     string            `json:"timestamp" yaml:"timestamp"`
	DurationSecs  float64           `json:"duration_secs" yaml:"duration_secs"`
	PacketsSent   uint64            `json:"packets_sent" yaml:"packets_sent"`
	PacketsFailed uint64            `json:"packets_failed" yaml:"packets_failed"`
	BytesSent     uint64            `json:"bytes_sent" yaml:"bytes_sent"`
	PacketsPerSec float64           `json:"packets_per_second" yaml:"packets_per_second"`
	MegabitsPSec  float64           `json:"megabits_per_second" yaml:"megabits_per_second"`
	Protocols     map[string]uint64 `json:"protocols" yaml:"protocols"`
}

// NewRecord converts a snapshot into its export form.
func NewRecord(sessionID string, snap Snapshot) Record {
	protocols := make(map[string]uint64, packet.ProtocolCount)
	for i, count := range snap.ProtocolCounts {
		protocols[packet.ProtocolID(i).String()] = count
	}
	return Record{
		SessionID:     sessionID,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		DurationSecs:  snap.Elapsed.Seconds(),
		PacketsSent:   snap.PacketsSent,
		PacketsFailed: snap.PacketsFailed,
		BytesSent:     snap.BytesSent,
		PacketsPerSec: snap.PacketsPerSecond(),
		MegabitsPSec:  snap.MegabitsPerSecond(),
		Protocols:     protocols,
	}
}

// Exporter writes snapshots to files in the configured format. Export
// failures are advisory — the engine logs and continues.
type Exporter struct {
	sessionID string
	format    Format
	pattern   string
}

// NewExporter creates an Exporter. pattern is the filename prefix; the
// first eight characters of the session id, a timestamp, and the format
// extension are appended.
func NewExporter(sessionID string, format Format, pattern string) *Exporter {
	if pattern == "" {
		pattern = "netburst_stats"
	}
	return &Exporter{sessionID: sessionID, format: format, pattern: pattern}
}

// Export serializes snap and writes it to a fresh file, returning the
// path written.
func (e *Exporter) Export(snap Snapshot) (string, error) {
	rec := NewRecord(e.sessionID, snap)

	short := e.sessionID
	if len(short) > 8 {
		short = short[:8]
	}
	path := fmt.Sprintf("%s_%s_%s.%s",
		e.pattern, short, time.Now().UTC().Format("20060102_150405"), e.format)

	data, err := Encode(rec, e.format)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write stats export %s: %w", path, err)
	}
	return path, nil
}

// Encode serializes a record in the given format.
func Encode(rec Record, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode stats JSON: %w", err)
		}
		return append(data, '\n'), nil

	case FormatYAML:
		data, err := yaml.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("encode stats YAML: %w", err)
		}
		return data, nil

	case FormatCSV:
		return encodeCSV(rec)

	case FormatText:
		return []byte(FormatSnapshotText(rec)), nil

	default:
		return nil, fmt.Errorf("format %q: %w", format, ErrUnknownFormat)
	}
}

// encodeCSV writes a header row and one value row.
func encodeCSV(rec Record) ([]byte, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	header := []string{
		"session_id", "timestamp", "duration_secs",
		"packets_sent", "packets_failed", "bytes_sent",
		"packets_per_second", "megabits_per_second",
	}
	row := []string{
		rec.SessionID,
		rec.Timestamp,
		strconv.FormatFloat(rec.DurationSecs, 'f', 3, 64),
		strconv.FormatUint(rec.PacketsSent, 10),
		strconv.FormatUint(rec.PacketsFailed, 10),
		strconv.FormatUint(rec.BytesSent, 10),
		strconv.FormatFloat(rec.PacketsPerSec, 'f', 2, 64),
		strconv.FormatFloat(rec.MegabitsPSec, 'f', 3, 64),
	}
	for i := 0; i < packet.ProtocolCount; i++ {
		name := packet.ProtocolID(i).String()
		header = append(header, "protocol_"+strings.ToLower(name))
		row = append(row, strconv.FormatUint(rec.Protocols[name], 10))
	}

	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("encode stats CSV: %w", err)
	}
	if err := w.Write(row); err != nil {
		return nil, fmt.Errorf("encode stats CSV: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("encode stats CSV: %w", err)
	}
	return []byte(sb.String()), nil
}

// FormatSnapshotText renders a record as a human-readable block.
func FormatSnapshotText(rec Record) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "session:         %s\n", rec.SessionID)
	fmt.Fprintf(&sb, "timestamp:       %s\n", rec.Timestamp)
	fmt.Fprintf(&sb, "duration:        %.3fs\n", rec.DurationSecs)
	fmt.Fprintf(&sb, "packets sent:    %d\n", rec.PacketsSent)
	fmt.Fprintf(&sb, "packets failed:  %d\n", rec.PacketsFailed)
	fmt.Fprintf(&sb, "bytes sent:      %d\n", rec.BytesSent)
	fmt.Fprintf(&sb, "rate:            %.2f pps, %.3f Mbps\n", rec.PacketsPerSec, rec.MegabitsPSec)
	for i := 0; i < packet.ProtocolCount; i++ {
		name := packet.ProtocolID(i).String()
		fmt.Fprintf(&sb, "  %-10s %d\n", name+":", rec.Protocols[name])
	}
	return sb.String()
}
