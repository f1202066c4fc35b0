// Package command holds the registry of invocable commands and the executor
// that dispatches raw input lines to their handlers. Handlers never return
// bare errors to callers: every execution yields a Result, and handler
// faults are converted into error results after being recorded.
package command

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Status is the outcome classification of a command result.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Result is the uniform outcome contract for every command execution.
type Result struct {
	Status    Status
	Message   string
	Payload   any
	Followups []string
}

// Args carries the parsed invocation: Raw is everything after the command
// id, List the whitespace-split remainder.
type Args struct {
	Raw  string
	List []string
}

// Handler executes one command. A returned error is treated as a handler
// fault and surfaced as an error Result by the executor.
type Handler func(ctx context.Context, args Args) (Result, error)

// Definition binds a command id to its handler.
type Definition struct {
	ID          string
	Description string
	Handler     Handler
}

// Registry is the id-keyed command table. Commands are registered once at
// startup; lookups during execution are read-only.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds a definition. Duplicate ids and nil handlers are rejected.
func (r *Registry) Register(def Definition) error {
	if def.ID == "" {
		return fmt.Errorf("command id is empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("command %q has no handler", def.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.ID]; exists {
		return fmt.Errorf("command %q already registered", def.ID)
	}
	r.defs[def.ID] = def
	return nil
}

// Get returns the definition for id.
func (r *Registry) Get(id string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[id]
	return def, ok
}

// List returns all definitions sorted by id.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Definition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
