package audit_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/routelab/netburst/internal/audit"
)

func testEvent() audit.Event {
	return audit.Event{
		TargetIP:   netip.MustParseAddr("192.168.1.1"),
		Ports:      []uint16{80, 443},
		Threads:    4,
		PacketRate: 100,
		Interface:  "eth0",
	}
}

func TestEventTypeStrings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind audit.EventType
		want string
	}{
		{audit.EventStart, "engine_start"},
		{audit.EventStop, "engine_stop"},
		{audit.EventError, "error"},
		{audit.EventConfigChange, "config_change"},
		{audit.EventSecurityViolation, "security_violation"},
		{audit.EventRateLimitExceeded, "rate_limit_exceeded"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("EventType(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestLogEventWritesSchema(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "audit.log")
	logger := audit.NewLogger(path, true, false, "session-1234")

	duration := uint64(60)
	ev := testEvent()
	ev.Duration = &duration
	if err := logger.LogEvent(audit.EventStart, ev); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}

	var entry audit.Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("unmarshal entry: %v", err)
	}
	if entry.EventType != "engine_start" {
		t.Errorf("EventType = %q", entry.EventType)
	}
	if entry.TargetIP != "192.168.1.1" {
		t.Errorf("TargetIP = %q", entry.TargetIP)
	}
	if len(entry.TargetPorts) != 2 || entry.TargetPorts[0] != 80 {
		t.Errorf("TargetPorts = %v", entry.TargetPorts)
	}
	if entry.Threads != 4 || entry.PacketRate != 100 {
		t.Errorf("Threads/PacketRate = %d/%d", entry.Threads, entry.PacketRate)
	}
	if entry.Duration == nil || *entry.Duration != 60 {
		t.Errorf("Duration = %v", entry.Duration)
	}
	if entry.Interface == nil || *entry.Interface != "eth0" {
		t.Errorf("Interface = %v", entry.Interface)
	}
	if entry.SessionID != "session-1234" {
		t.Errorf("SessionID = %q", entry.SessionID)
	}
	if entry.Hash != "" || entry.PrevHash != "" {
		t.Errorf("unchained entry carries hashes: %q / %q", entry.Hash, entry.PrevHash)
	}
}

func TestDisabledLoggerWritesNothing(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "audit.log")
	logger := audit.NewLogger(path, false, false, "session")
	if err := logger.LogEvent(audit.EventStart, testEvent()); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("disabled logger created %s", path)
	}
}

func TestChainVerifies(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "audit.log")
	logger := audit.NewLogger(path, true, true, "session-abcd")

	for _, kind := range []audit.EventType{audit.EventStart, audit.EventConfigChange, audit.EventStop} {
		if err := logger.LogEvent(kind, testEvent()); err != nil {
			t.Fatalf("LogEvent(%s): %v", kind, err)
		}
	}

	n, err := audit.VerifyIntegrity(path)
	if err != nil {
		t.Fatalf("VerifyIntegrity: %v", err)
	}
	if n != 3 {
		t.Errorf("verified %d entries, want 3", n)
	}
}

func TestChainDetectsTampering(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "audit.log")
	logger := audit.NewLogger(path, true, true, "session-abcd")
	for i := 0; i < 3; i++ {
		if err := logger.LogEvent(audit.EventStart, testEvent()); err != nil {
			t.Fatalf("LogEvent: %v", err)
		}
	}

	// Flip the recorded thread count of the middle entry.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	tampered := make([]byte, 0, len(data))
	scanner := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for scanner.Scan() {
		text := scanner.Text()
		if line == 1 {
			var entry audit.Entry
			if err := json.Unmarshal([]byte(text), &entry); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			entry.Threads = 9999
			raw, err := json.Marshal(&entry)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			text = string(raw)
		}
		tampered = append(tampered, text...)
		tampered = append(tampered, '\n')
		line++
	}
	if err := os.WriteFile(path, tampered, 0o644); err != nil {
		t.Fatalf("write tampered log: %v", err)
	}

	if _, err := audit.VerifyIntegrity(path); !errors.Is(err, audit.ErrHashMismatch) {
		t.Errorf("VerifyIntegrity = %v, want ErrHashMismatch", err)
	}
}

func TestChainDetectsDeletion(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "audit.log")
	logger := audit.NewLogger(path, true, true, "session-abcd")
	for i := 0; i < 3; i++ {
		if err := logger.LogEvent(audit.EventStart, testEvent()); err != nil {
			t.Fatalf("LogEvent: %v", err)
		}
	}

	// Drop the middle entry.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var kept []byte
	scanner := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for scanner.Scan() {
		if line != 1 {
			kept = append(kept, scanner.Bytes()...)
			kept = append(kept, '\n')
		}
		line++
	}
	if err := os.WriteFile(path, kept, 0o644); err != nil {
		t.Fatalf("write truncated log: %v", err)
	}

	if _, err := audit.VerifyIntegrity(path); !errors.Is(err, audit.ErrChainBroken) {
		t.Errorf("VerifyIntegrity = %v, want ErrChainBroken", err)
	}
}

func TestVerifyUnchainedLog(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "audit.log")
	logger := audit.NewLogger(path, true, false, "session")
	if err := logger.LogEvent(audit.EventStart, testEvent()); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}

	if _, err := audit.VerifyIntegrity(path); !errors.Is(err, audit.ErrNotChained) {
		t.Errorf("VerifyIntegrity = %v, want ErrNotChained", err)
	}
}
