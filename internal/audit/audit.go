// Package audit appends JSON-per-line records around engine lifecycle
// transitions. The log file is opened in append mode for every write so
// concurrent engines in separate processes coexist; each entry goes out
// in a single write, relying on POSIX append atomicity for line
// integrity.
//
// The optional hash chain makes the log tamper-evident: each entry
// carries the SHA-256 of its canonical text plus the previous entry's
// hash, with the genesis hash derived from the session id. Entries are
// canonicalized by Go's deterministic struct-order JSON encoding; a
// reordered or edited entry fails verification.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"sync"
	"time"
)

// DefaultLogPath is the audit log location when none is configured.
const DefaultLogPath = "router_flood_audit.log"

// EventType identifies a lifecycle transition being audited.
type EventType uint8

// Audited lifecycle transitions.
const (
	EventStart EventType = iota
	EventStop
	EventError
	EventConfigChange
	EventSecurityViolation
	EventRateLimitExceeded
)

// eventNames maps event types to their wire strings.
var eventNames = [6]string{
	"engine_start",
	"engine_stop",
	"error",
	"config_change",
	"security_violation",
	"rate_limit_exceeded",
}

// String returns the wire string for the event type.
func (e EventType) String() string {
	if int(e) < len(eventNames) {
		return eventNames[e]
	}
	return fmt.Sprintf("unknown(%d)", uint8(e))
}

// Entry is one audit record. Field order is the canonical serialization
// order — do not reorder fields, the hash chain depends on it.
type Entry struct {
	Timestamp   string   `json:"timestamp"`
	EventType   string   `json:"event_type"`
	TargetIP    string   `json:"target_ip"`
	TargetPorts []uint16 `json:"target_ports"`
	Threads     uint64   `json:"threads"`
	PacketRate  uint64   `json:"packet_rate"`
	Duration    *uint64  `json:"duration"`
	User        string   `json:"user"`
	Interface   *string  `json:"interface"`
	SessionID   string   `json:"session_id"`
	PrevHash    string   `json:"prev_hash,omitempty"`
	Hash        string   `json:"hash,omitempty"`
}

// Event carries the per-record parameters for LogEvent.
type Event struct {
	TargetIP   netip.Addr
	Ports      []uint16
	Threads    int
	PacketRate uint64
	Duration   *uint64
	Interface  string
}

// Verification errors.
var (
	// ErrHashMismatch indicates an entry whose recorded hash does not
	// match its canonical text.
	ErrHashMismatch = errors.New("audit entry hash mismatch")

	// ErrChainBroken indicates an entry whose prev_hash does not match
	// the preceding entry.
	ErrChainBroken = errors.New("audit hash chain broken")

	// ErrNotChained indicates verification of a log written without the
	// hash chain enabled.
	ErrNotChained = errors.New("audit log has no hash chain")
)

// Logger writes audit entries. Safe for concurrent use within a process;
// across processes the append-mode open per write keeps lines intact.
type Logger struct {
	enabled   bool
	chained   bool
	path      string
	user      string
	sessionID string

	mu       sync.Mutex
	prevHash string
}

// NewLogger creates an audit logger for the given session. The user is
// read once from USER (or USERNAME) at construction. When chained is
// set, entries carry the tamper-evident hash chain.
func NewLogger(path string, enabled, chained bool, sessionID string) *Logger {
	if path == "" {
		path = DefaultLogPath
	}

	user := os.Getenv("USER")
	if user == "" {
		user = os.Getenv("USERNAME")
	}
	if user == "" {
		user = "unknown"
	}

	return &Logger{
		enabled:   enabled,
		chained:   chained,
		path:      path,
		user:      user,
		sessionID: sessionID,
		prevHash:  GenesisHash(sessionID),
	}
}

// Enabled reports whether entries will be written.
func (l *Logger) Enabled() bool { return l.enabled }

// Path returns the audit log location.
func (l *Logger) Path() string { return l.path }

// User returns the user stamped on entries.
func (l *Logger) User() string { return l.user }

// GenesisHash derives the chain seed for a session. The genesis entry's
// prev_hash is this value, so a chain cannot be transplanted between
// sessions.
func GenesisHash(sessionID string) string {
	sum := sha256.Sum256([]byte(sessionID))
	return hex.EncodeToString(sum[:])
}

// LogEvent appends one entry for the given lifecycle transition.
// A disabled logger is a no-op.
func (l *Logger) LogEvent(kind EventType, ev Event) error {
	if !l.enabled {
		return nil
	}

	entry := Entry{
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		EventType:   kind.String(),
		TargetIP:    ev.TargetIP.String(),
		TargetPorts: ev.Ports,
		Threads:     uint64(ev.Threads),
		PacketRate:  ev.PacketRate,
		Duration:    ev.Duration,
		User:        l.user,
		SessionID:   l.sessionID,
	}
	if ev.Interface != "" {
		iface := ev.Interface
		entry.Interface = &iface
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.chained {
		entry.PrevHash = l.prevHash
		hash, err := entryHash(&entry)
		if err != nil {
			return err
		}
		entry.Hash = hash
	}

	if err := l.append(&entry); err != nil {
		return err
	}

	if l.chained {
		l.prevHash = entry.Hash
	}
	return nil
}

// entryHash computes the SHA-256 of the entry's canonical text — the
// JSON encoding with the hash field itself absent.
func entryHash(entry *Entry) (string, error) {
	canonical := *entry
	canonical.Hash = ""

	data, err := json.Marshal(&canonical)
	if err != nil {
		return "", fmt.Errorf("canonicalize audit entry: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// append opens the log in append mode, writes the serialized entry and
// a terminating newline in one write, and closes the file.
func (l *Logger) append(entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("serialize audit entry: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log %s: %w", l.path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}

// VerifyIntegrity walks a chained audit log and confirms every entry's
// hash and the chain linkage. Returns the number of verified entries.
// The expected genesis prev_hash is derived from the first entry's
// session id.
func VerifyIntegrity(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open audit log %s: %w", path, err)
	}
	defer f.Close()

	var (
		count    int
		prevHash string
	)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			return count, fmt.Errorf("parse audit entry %d: %w", count, err)
		}
		if entry.Hash == "" {
			return count, fmt.Errorf("entry %d: %w", count, ErrNotChained)
		}

		if count == 0 {
			prevHash = GenesisHash(entry.SessionID)
		}
		if entry.PrevHash != prevHash {
			return count, fmt.Errorf("entry %d: %w", count, ErrChainBroken)
		}

		want, err := entryHash(&entry)
		if err != nil {
			return count, err
		}
		if entry.Hash != want {
			return count, fmt.Errorf("entry %d: %w", count, ErrHashMismatch)
		}

		prevHash = entry.Hash
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("read audit log %s: %w", path, err)
	}

	return count, nil
}
