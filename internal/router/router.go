// Package router is the front door for raw input lines: it classifies the
// intent, runs the guardian audit, dispatches admitted input to the command
// executor, and keeps the per-session history. Events for every stage go
// out on the bus.
package router

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/halcyon-foundry/autarch/internal/bus"
	"github.com/halcyon-foundry/autarch/internal/command"
	"github.com/halcyon-foundry/autarch/internal/guardian"
	"github.com/halcyon-foundry/autarch/internal/intent"
	"github.com/halcyon-foundry/autarch/internal/manifest"
)

// MaxHistoryEntries caps the session history.
const MaxHistoryEntries = 100

// Entry records one routed input line.
type Entry struct {
	ID       string
	At       time.Time
	Input    string
	Intent   intent.Kind
	Decision guardian.Decision
	Notes    []string
	Result   command.Result
}

// Config holds the router's collaborators. Bridge is optional; without it
// slash-addressed operations fail as unknown commands.
type Config struct {
	Executor *command.Executor
	Intents  *intent.Classifier
	Guardian *guardian.Guardian
	Events   *bus.Bus
	Bridge   *manifest.Catalog
}

// Router dispatches input lines and owns the session history.
type Router struct {
	mu      sync.Mutex
	history []Entry

	executor *command.Executor
	intents  *intent.Classifier
	guardian *guardian.Guardian
	events   *bus.Bus
	bridge   *manifest.Catalog
}

func New(cfg Config) *Router {
	return &Router{
		executor: cfg.Executor,
		intents:  cfg.Intents,
		guardian: cfg.Guardian,
		events:   cfg.Events,
		bridge:   cfg.Bridge,
	}
}

// Dispatch routes one raw input line through classification, audit, and
// execution, and returns the finished history entry. Blocked input never
// reaches the executor.
func (r *Router) Dispatch(ctx context.Context, raw string) Entry {
	entry := Entry{
		ID:    uuid.NewString(),
		At:    time.Now(),
		Input: raw,
	}

	if r.events != nil {
		r.events.Publish(bus.TopicCommandReceived, bus.CommandReceivedEvent{Input: raw})
	}

	commandID := firstField(raw)

	var sig *intent.Signal
	if r.intents != nil && commandID != "" {
		s := r.intents.AnalyzeCommand(commandID, strings.TrimSpace(raw))
		sig = &s
		entry.Intent = s.Kind
	}

	assessment := guardian.Assessment{Decision: guardian.DecisionAllow}
	if r.guardian != nil {
		assessment = r.guardian.Evaluate(raw, sig)
	}
	entry.Decision = assessment.Decision

	if r.events != nil {
		r.events.Publish(bus.TopicCommandAudit, bus.CommandAuditEvent{
			Command:  commandID,
			Decision: string(assessment.Decision),
			Reason:   assessment.Reason,
		})
	}

	switch assessment.Decision {
	case guardian.DecisionBlock:
		entry.Notes = append(entry.Notes, "blocked: "+assessment.Reason)
		entry.Result = command.Result{
			Status:  command.StatusError,
			Message: "Input blocked: " + assessment.Reason,
		}
	case guardian.DecisionFlag:
		entry.Notes = append(entry.Notes, "flagged: "+assessment.Reason)
		fallthrough
	default:
		entry.Result = r.execute(ctx, raw)
	}

	r.mu.Lock()
	r.history = append([]Entry{entry}, r.history...)
	if len(r.history) > MaxHistoryEntries {
		r.history = r.history[:MaxHistoryEntries]
	}
	r.mu.Unlock()

	if r.events != nil {
		r.events.Publish(bus.TopicCommandResult, bus.CommandResultEvent{
			EntryID: entry.ID,
			Command: commandID,
			Status:  string(entry.Result.Status),
		})
	}
	return entry
}

// execute runs a line. Slash-prefixed input addresses the operation bridge
// and is resolved through the manifest instead of the command registry.
func (r *Router) execute(ctx context.Context, raw string) command.Result {
	trimmed := strings.TrimSpace(raw)
	if r.bridge != nil && strings.HasPrefix(trimmed, "/") {
		res, err := r.bridge.ResolveIntent(trimmed)
		if err != nil {
			return command.Result{Status: command.StatusError, Message: err.Error()}
		}
		op, _ := r.bridge.Get(res.OperationID)
		return command.Result{
			Status:  command.StatusOK,
			Message: "Resolved operation: " + op.Name,
			Payload: res,
		}
	}
	return r.executor.Execute(ctx, raw)
}

// History returns the newest entries first, up to limit. A non-positive
// limit returns the full history.
func (r *Router) History(limit int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 || limit > len(r.history) {
		limit = len(r.history)
	}
	out := make([]Entry, limit)
	copy(out, r.history[:limit])
	return out
}

func firstField(raw string) string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
