// Package memory keeps the bounded short-term record of recent commands,
// completed tasks, and the last kernel error. It is a rolling window, not a
// durable store; persistence is the caller's concern.
package memory

import (
	"sync"
	"time"
)

// Caps for the rolling lists; oldest entries are evicted first.
const (
	MaxCommands       = 20
	MaxCompletedTasks = 10
)

// CommandRecord is one remembered command execution.
type CommandRecord struct {
	Command string
	Status  string // ok, error, or pending
	At      time.Time
}

// TaskRecord is one remembered task completion.
type TaskRecord struct {
	ID          string
	Description string
	Status      string
	CompletedAt time.Time
	Result      map[string]any
}

// KernelError is the most recent kernel-level failure.
type KernelError struct {
	Message string
	At      time.Time
	Data    map[string]any
}

// Snapshot is a point-in-time copy of short-term memory.
type Snapshot struct {
	Commands        []CommandRecord
	CompletedTasks  []TaskRecord
	LastKernelError *KernelError
}

// ShortTerm is the bounded rolling memory store.
type ShortTerm struct {
	mu             sync.Mutex
	commands       []CommandRecord
	completedTasks []TaskRecord
	lastError      *KernelError
}

// NewShortTerm creates an empty store.
func NewShortTerm() *ShortTerm {
	return &ShortTerm{}
}

// RecordCommand remembers a command execution, newest first.
func (s *ShortTerm) RecordCommand(command, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.commands = append([]CommandRecord{{
		Command: command,
		Status:  status,
		At:      time.Now(),
	}}, s.commands...)
	if len(s.commands) > MaxCommands {
		s.commands = s.commands[:MaxCommands]
	}
}

// RecordTaskCompletion remembers a completed task, newest first. Records for
// tasks in any other terminal state are ignored.
func (s *ShortTerm) RecordTaskCompletion(rec TaskRecord) {
	if rec.Status != "completed" {
		return
	}
	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.completedTasks = append([]TaskRecord{rec}, s.completedTasks...)
	if len(s.completedTasks) > MaxCompletedTasks {
		s.completedTasks = s.completedTasks[:MaxCompletedTasks]
	}
}

// RecordKernelError replaces the last-error marker.
func (s *ShortTerm) RecordKernelError(message string, data map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = &KernelError{Message: message, At: time.Now(), Data: data}
}

// Snapshot returns independent copies of the rolling lists.
func (s *ShortTerm) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Commands:       make([]CommandRecord, len(s.commands)),
		CompletedTasks: make([]TaskRecord, len(s.completedTasks)),
	}
	copy(snap.Commands, s.commands)
	copy(snap.CompletedTasks, s.completedTasks)
	if s.lastError != nil {
		e := *s.lastError
		snap.LastKernelError = &e
	}
	return snap
}

// Restore replaces the store contents from a previously captured snapshot,
// trimming to caps. Used when rehydrating from the persistence collaborator.
func (s *ShortTerm) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.commands = append([]CommandRecord(nil), snap.Commands...)
	if len(s.commands) > MaxCommands {
		s.commands = s.commands[:MaxCommands]
	}
	s.completedTasks = append([]TaskRecord(nil), snap.CompletedTasks...)
	if len(s.completedTasks) > MaxCompletedTasks {
		s.completedTasks = s.completedTasks[:MaxCompletedTasks]
	}
	if snap.LastKernelError != nil {
		e := *snap.LastKernelError
		s.lastError = &e
	} else {
		s.lastError = nil
	}
}
