// Package kernel holds the process-wide autonomy state: session identity,
// command counters, and a bounded in-memory log that the reflection engine
// queries after the fact. Entries are mirrored to slog for durable output.
package kernel

import (
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MaxLogEntries caps the bounded kernel log; oldest entries are evicted first.
const MaxLogEntries = 200

// LogLevel classifies a kernel log entry.
type LogLevel string

const (
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
	LevelDebug LogLevel = "debug"
)

// LogEntry is one record in the bounded kernel log. Immutable once appended.
type LogEntry struct {
	Timestamp time.Time
	Level     LogLevel
	Source    string
	Message   string
	Data      map[string]any
}

// LastCommand records the most recently executed command id and time.
type LastCommand struct {
	ID string
	At time.Time
}

// State is a point-in-time snapshot of the kernel. The Log slice and entry
// Data maps are independent copies; mutating them does not affect the kernel.
type State struct {
	SessionID    string
	StartedAt    time.Time
	CommandCount int
	LastCommand  *LastCommand
	Log          []LogEntry
}

// Kernel owns the session state. Construct one per process with New and pass
// it by handle into the components that log through it.
type Kernel struct {
	mu     sync.Mutex
	logger *slog.Logger

	sessionID    string
	startedAt    time.Time
	commandCount int
	lastCommand  *LastCommand
	log          []LogEntry
}

// New creates a Kernel with a fresh session id. A nil logger falls back to
// slog.Default.
func New(logger *slog.Logger) *Kernel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Kernel{
		logger:    logger,
		sessionID: uuid.NewString(),
		startedAt: time.Now(),
	}
}

// SessionID returns the opaque session identifier generated at construction.
func (k *Kernel) SessionID() string {
	return k.sessionID
}

// Append unconditionally adds an entry to the bounded log and trims to cap.
func (k *Kernel) Append(level LogLevel, source, message string, data map[string]any) {
	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Source:    source,
		Message:   message,
		Data:      data,
	}

	k.mu.Lock()
	k.log = append(k.log, entry)
	if len(k.log) > MaxLogEntries {
		k.log = k.log[len(k.log)-MaxLogEntries:]
	}
	k.mu.Unlock()

	k.emit(entry)
}

// Info appends an info entry.
func (k *Kernel) Info(source, message string, data map[string]any) {
	k.Append(LevelInfo, source, message, data)
}

// Warn appends a warn entry.
func (k *Kernel) Warn(source, message string, data map[string]any) {
	k.Append(LevelWarn, source, message, data)
}

// Error appends an error entry.
func (k *Kernel) Error(source, message string, data map[string]any) {
	k.Append(LevelError, source, message, data)
}

// Debug appends a debug entry.
func (k *Kernel) Debug(source, message string, data map[string]any) {
	k.Append(LevelDebug, source, message, data)
}

// RecordCommandExecution increments the command counter, updates the last
// command marker, and appends a derived log entry (error level when the
// command failed, info otherwise).
func (k *Kernel) RecordCommandExecution(id, status string, duration time.Duration) {
	now := time.Now()

	k.mu.Lock()
	k.commandCount++
	k.lastCommand = &LastCommand{ID: id, At: now}
	k.mu.Unlock()

	level := LevelInfo
	if status == "error" {
		level = LevelError
	}
	k.Append(level, "command."+id, "executed", map[string]any{
		"status":      status,
		"duration_ms": duration.Milliseconds(),
	})
}

// State returns a deep, independent snapshot. Two successive calls without
// intervening mutation yield equal but distinct values.
func (k *Kernel) State() State {
	k.mu.Lock()
	defer k.mu.Unlock()

	st := State{
		SessionID:    k.sessionID,
		StartedAt:    k.startedAt,
		CommandCount: k.commandCount,
		Log:          make([]LogEntry, len(k.log)),
	}
	if k.lastCommand != nil {
		lc := *k.lastCommand
		st.LastCommand = &lc
	}
	for i, entry := range k.log {
		copied := entry
		if entry.Data != nil {
			copied.Data = maps.Clone(entry.Data)
		}
		st.Log[i] = copied
	}
	return st
}

// TailLog returns copies of the newest n log entries in append order.
func (k *Kernel) TailLog(n int) []LogEntry {
	if n <= 0 {
		return nil
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	start := len(k.log) - n
	if start < 0 {
		start = 0
	}
	out := make([]LogEntry, len(k.log)-start)
	for i, entry := range k.log[start:] {
		copied := entry
		if entry.Data != nil {
			copied.Data = maps.Clone(entry.Data)
		}
		out[i] = copied
	}
	return out
}

func (k *Kernel) emit(entry LogEntry) {
	attrs := []any{"source", entry.Source}
	for key, val := range entry.Data {
		attrs = append(attrs, key, val)
	}
	switch entry.Level {
	case LevelDebug:
		k.logger.Debug(entry.Message, attrs...)
	case LevelWarn:
		k.logger.Warn(entry.Message, attrs...)
	case LevelError:
		k.logger.Error(entry.Message, attrs...)
	default:
		k.logger.Info(entry.Message, attrs...)
	}
}
