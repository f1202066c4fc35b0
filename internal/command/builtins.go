package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/halcyon-foundry/autarch/internal/goal"
	"github.com/halcyon-foundry/autarch/internal/guardrails"
	"github.com/halcyon-foundry/autarch/internal/intent"
	"github.com/halcyon-foundry/autarch/internal/kernel"
	"github.com/halcyon-foundry/autarch/internal/memory"
	"github.com/halcyon-foundry/autarch/internal/reflection"
	"github.com/halcyon-foundry/autarch/internal/task"
)

// BuiltinConfig wires the subsystems the builtin commands operate on. Any
// field may be nil; the corresponding commands then report unavailability
// instead of being registered blind.
type BuiltinConfig struct {
	Kernel      *kernel.Kernel
	Tasks       *task.Engine
	Goals       *goal.Planner
	Memory      *memory.ShortTerm
	Intents     *intent.Classifier
	Guards      *guardrails.Engine
	Reflections *reflection.Engine

	// BridgeStatus reports the external operation bridge, when one is
	// configured. Nil means no bridge.
	BridgeStatus func() map[string]any
}

// RegisterBuiltins installs the standard command set into reg.
func RegisterBuiltins(reg *Registry, cfg BuiltinConfig) error {
	defs := []Definition{
		{
			ID:          "help",
			Description: "List available commands",
			Handler: func(ctx context.Context, args Args) (Result, error) {
				entries := reg.List()
				listing := make([]map[string]string, 0, len(entries))
				for _, def := range entries {
					listing = append(listing, map[string]string{
						"id":          def.ID,
						"description": def.Description,
					})
				}
				return Result{
					Status:  StatusOK,
					Message: fmt.Sprintf("%d commands available", len(listing)),
					Payload: listing,
				}, nil
			},
		},
		{
			ID:          "ping",
			Description: "Report session liveness",
			Handler: func(ctx context.Context, args Args) (Result, error) {
				state := cfg.Kernel.State()
				return Result{
					Status:  StatusOK,
					Message: "pong",
					Payload: map[string]any{
						"session_id":    state.SessionID,
						"uptime":        time.Since(state.StartedAt).Round(time.Millisecond).String(),
						"command_count": state.CommandCount,
					},
					Followups: []string{"state.snapshot", "log.tail"},
				}, nil
			},
		},
		{
			ID:          "state.snapshot",
			Description: "Dump the full kernel state",
			Handler: func(ctx context.Context, args Args) (Result, error) {
				state := cfg.Kernel.State()
				return Result{
					Status:  StatusOK,
					Message: fmt.Sprintf("Session %s, %d log entries", state.SessionID, len(state.Log)),
					Payload: state,
				}, nil
			},
		},
		{
			ID:          "log.tail",
			Description: "Show the newest kernel log entries",
			Handler: func(ctx context.Context, args Args) (Result, error) {
				n := parseCount(args.List, 20)
				tail := cfg.Kernel.TailLog(n)
				return Result{
					Status:  StatusOK,
					Message: fmt.Sprintf("%d log entries", len(tail)),
					Payload: tail,
				}, nil
			},
		},
		{
			ID:          "task.new",
			Description: "Queue a new task",
			Handler: func(ctx context.Context, args Args) (Result, error) {
				if args.Raw == "" {
					return Result{Status: StatusError, Message: "Usage: task.new <description>"}, nil
				}
				t := cfg.Tasks.Create(args.Raw, nil)
				return Result{
					Status:    StatusOK,
					Message:   "Task queued: " + t.ID,
					Payload:   t,
					Followups: []string{"task.list", "task.inspect " + t.ID},
				}, nil
			},
		},
		{
			ID:          "task.list",
			Description: "List tasks, newest first",
			Handler: func(ctx context.Context, args Args) (Result, error) {
				tasks := cfg.Tasks.List()
				return Result{
					Status:  StatusOK,
					Message: fmt.Sprintf("%d tasks", len(tasks)),
					Payload: tasks,
				}, nil
			},
		},
		{
			ID:          "task.inspect",
			Description: "Show one task with its logs and result",
			Handler: func(ctx context.Context, args Args) (Result, error) {
				if len(args.List) == 0 {
					return Result{Status: StatusError, Message: "Usage: task.inspect <task-id>"}, nil
				}
				t, ok := cfg.Tasks.Inspect(args.List[0])
				if !ok {
					return Result{Status: StatusError, Message: "Unknown task: " + args.List[0]}, nil
				}
				return Result{Status: StatusOK, Message: string(t.Status), Payload: t}, nil
			},
		},
		{
			ID:          "task.cancel",
			Description: "Cancel a queued or running task",
			Handler: func(ctx context.Context, args Args) (Result, error) {
				if len(args.List) == 0 {
					return Result{Status: StatusError, Message: "Usage: task.cancel <task-id>"}, nil
				}
				if !cfg.Tasks.Cancel(args.List[0]) {
					return Result{Status: StatusError, Message: "Cannot cancel task: " + args.List[0]}, nil
				}
				return Result{Status: StatusOK, Message: "Task cancelled: " + args.List[0]}, nil
			},
		},
		{
			ID:          "goal.new",
			Description: "Create a goal; matching titles auto-plan a task",
			Handler: func(ctx context.Context, args Args) (Result, error) {
				if args.Raw == "" {
					return Result{Status: StatusError, Message: "Usage: goal.new <title>"}, nil
				}
				g := cfg.Goals.Create(args.Raw, "", goal.CreateOptions{})
				msg := "Goal created: " + g.ID
				if len(g.TaskIDs) > 0 {
					msg += fmt.Sprintf(" (%d task planned)", len(g.TaskIDs))
				}
				return Result{
					Status:    StatusOK,
					Message:   msg,
					Payload:   g,
					Followups: []string{"goal.list"},
				}, nil
			},
		},
		{
			ID:          "goal.list",
			Description: "List goals, optionally filtered by status",
			Handler: func(ctx context.Context, args Args) (Result, error) {
				var filter goal.Status
				if len(args.List) > 0 {
					filter = goal.Status(strings.ToLower(args.List[0]))
				}
				goals := cfg.Goals.List(filter)
				return Result{
					Status:  StatusOK,
					Message: fmt.Sprintf("%d goals", len(goals)),
					Payload: goals,
				}, nil
			},
		},
		{
			ID:          "goal.complete",
			Description: "Mark a goal completed",
			Handler: func(ctx context.Context, args Args) (Result, error) {
				if len(args.List) == 0 {
					return Result{Status: StatusError, Message: "Usage: goal.complete <goal-id> [summary]"}, nil
				}
				summary := strings.Join(args.List[1:], " ")
				g, ok := cfg.Goals.Complete(args.List[0], summary)
				if !ok {
					return Result{Status: StatusError, Message: "Unknown goal: " + args.List[0]}, nil
				}
				return Result{Status: StatusOK, Message: "Goal completed: " + g.ID, Payload: g}, nil
			},
		},
		{
			ID:          "memory.stm",
			Description: "Dump short-term memory",
			Handler: func(ctx context.Context, args Args) (Result, error) {
				snap := cfg.Memory.Snapshot()
				return Result{
					Status:  StatusOK,
					Message: fmt.Sprintf("%d commands, %d completed tasks", len(snap.Commands), len(snap.CompletedTasks)),
					Payload: snap,
				}, nil
			},
		},
		{
			ID:          "intent.recent",
			Description: "Show recent intent signals",
			Handler: func(ctx context.Context, args Args) (Result, error) {
				n := parseCount(args.List, 10)
				signals := cfg.Intents.Recent(n)
				return Result{
					Status:  StatusOK,
					Message: fmt.Sprintf("%d intent signals", len(signals)),
					Payload: signals,
				}, nil
			},
		},
		{
			ID:          "guard.violations",
			Description: "Show guardrail violation history",
			Handler: func(ctx context.Context, args Args) (Result, error) {
				violations := cfg.Guards.Violations(0)
				return Result{
					Status:  StatusOK,
					Message: fmt.Sprintf("%d violations", len(violations)),
					Payload: map[string]any{
						"violations": violations,
						"summary":    cfg.Guards.Summary(),
					},
				}, nil
			},
		},
		{
			ID:          "reflect.now",
			Description: "Run a reflection tick immediately",
			Handler: func(ctx context.Context, args Args) (Result, error) {
				r := cfg.Reflections.RunTick()
				return Result{
					Status:  StatusOK,
					Message: "Reflection " + string(r.Health),
					Payload: r,
				}, nil
			},
		},
		{
			ID:          "bridge.status",
			Description: "Report the operation bridge state",
			Handler: func(ctx context.Context, args Args) (Result, error) {
				if cfg.BridgeStatus == nil {
					return Result{Status: StatusOK, Message: "Bridge offline"}, nil
				}
				return Result{
					Status:  StatusOK,
					Message: "Bridge online",
					Payload: cfg.BridgeStatus(),
				}, nil
			},
		},
	}

	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// parseCount reads the first argument as a positive count, falling back to
// def on absence or junk.
func parseCount(args []string, def int) int {
	if len(args) == 0 {
		return def
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		return def
	}
	return n
}
