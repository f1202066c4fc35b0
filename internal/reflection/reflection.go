// Package reflection periodically synthesizes a health report from the
// kernel log, short-term memory, task queue, intent history, and guardrail
// violations. It only reads other components' bounded snapshots and cannot
// fail.
package reflection

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/halcyon-foundry/autarch/internal/bus"
	"github.com/halcyon-foundry/autarch/internal/guardrails"
	"github.com/halcyon-foundry/autarch/internal/intent"
	"github.com/halcyon-foundry/autarch/internal/kernel"
	"github.com/halcyon-foundry/autarch/internal/memory"
	"github.com/halcyon-foundry/autarch/internal/task"
)

// MaxReflections caps the rolling reflection history.
const MaxReflections = 20

// DefaultInterval is the periodic tick cadence.
const DefaultInterval = 5 * time.Minute

// Health classifies a reflection.
type Health string

const (
	HealthOK      Health = "ok"
	HealthWarning Health = "warning"
	HealthError   Health = "error"
)

// Reflection is one synthesized health report.
type Reflection struct {
	ID               string
	CreatedAt        time.Time
	Health           Health
	Notes            []string
	SuggestedActions []string
}

// Config holds the engine's read-only collaborators.
type Config struct {
	Kernel   *kernel.Kernel
	Intents  *intent.Classifier
	Memory   *memory.ShortTerm
	Tasks    *task.Engine
	Guards   *guardrails.Engine
	Events   *bus.Bus
	Interval time.Duration
}

// Engine produces reflections on a timer and on demand.
type Engine struct {
	mu      sync.Mutex
	history []Reflection

	kernel   *kernel.Kernel
	intents  *intent.Classifier
	stm      *memory.ShortTerm
	tasks    *task.Engine
	guards   *guardrails.Engine
	events   *bus.Bus
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates an Engine; the interval defaults to five minutes.
func NewEngine(cfg Config) *Engine {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Engine{
		kernel:   cfg.Kernel,
		intents:  cfg.Intents,
		stm:      cfg.Memory,
		tasks:    cfg.Tasks,
		guards:   cfg.Guards,
		events:   cfg.Events,
		interval: interval,
	}
}

// Start begins the periodic tick loop; it honors ctx for shutdown.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.RunTick()
			}
		}
	}()
}

// Stop cancels the tick loop and waits for it to exit.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

// RunTick synthesizes one reflection from current snapshots and prepends it
// to the bounded history.
func (e *Engine) RunTick() Reflection {
	var (
		recentIntents []intent.Signal
		stmSnap       memory.Snapshot
		tasks         []task.Task
		violations    []guardrails.Violation
	)
	if e.intents != nil {
		recentIntents = e.intents.Recent(5)
	}
	if e.stm != nil {
		stmSnap = e.stm.Snapshot()
	}
	if e.tasks != nil {
		tasks = e.tasks.List()
		if len(tasks) > 5 {
			tasks = tasks[:5]
		}
	}
	if e.guards != nil {
		violations = e.guards.Violations(0)
	}

	notes := []string{e.summarizeLogs()}
	if stmSnap.LastKernelError != nil {
		notes = append(notes, "Last error: "+stmSnap.LastKernelError.Message)
	}
	if len(tasks) == 0 {
		notes = append(notes, "No tasks in queue.")
	} else {
		for _, t := range tasks {
			if t.Status == task.StatusRunning {
				notes = append(notes, "Active task: "+t.Payload.Description)
				break
			}
		}
	}
	if len(recentIntents) > 0 {
		newest := recentIntents[0]
		notes = append(notes, fmt.Sprintf("Recent intent: %s (%s)", newest.Kind, excerpt(newest.Text, 60)))
	}
	if len(violations) > 0 {
		notes = append(notes, fmt.Sprintf("Guardrail violations: %d", len(violations)))
	}

	var actions []string
	if len(violations) > 0 {
		actions = append(actions, "Review guardrail violations")
	}
	if !anyRunning(tasks) {
		actions = append(actions, "Consider scheduling a health check task")
	}
	if stmSnap.LastKernelError == nil && len(violations) == 0 {
		actions = append(actions, "Maintain steady state and monitor intents")
	}

	r := Reflection{
		ID:               uuid.NewString(),
		CreatedAt:        time.Now(),
		Health:           classify(notes, len(violations), stmSnap.LastKernelError != nil),
		Notes:            notes,
		SuggestedActions: actions,
	}

	e.mu.Lock()
	e.history = append([]Reflection{r}, e.history...)
	if len(e.history) > MaxReflections {
		e.history = e.history[:MaxReflections]
	}
	e.mu.Unlock()

	if e.kernel != nil {
		e.kernel.Info("autonomy.reflection", "reflection created", map[string]any{
			"reflection_id": r.ID,
			"health":        string(r.Health),
		})
	}
	if e.events != nil {
		e.events.Publish(bus.TopicReflectionCreated, r)
	}
	return r
}

// summarizeLogs condenses the last 10 kernel entries: distinct error sources
// first, then a warning count, else stable.
func (e *Engine) summarizeLogs() string {
	if e.kernel == nil {
		return "Kernel logs stable"
	}
	entries := e.kernel.TailLog(10)

	var errorSources []string
	seen := map[string]bool{}
	warnCount := 0
	for _, entry := range entries {
		switch entry.Level {
		case kernel.LevelError:
			if !seen[entry.Source] && len(errorSources) < 3 {
				seen[entry.Source] = true
				errorSources = append(errorSources, entry.Source)
			}
		case kernel.LevelWarn:
			warnCount++
		}
	}
	if len(errorSources) > 0 {
		return "Recent errors: " + strings.Join(errorSources, ", ")
	}
	if warnCount > 0 {
		return fmt.Sprintf("Warnings observed: %d", warnCount)
	}
	return "Kernel logs stable"
}

func classify(notes []string, violationCount int, hasError bool) Health {
	if hasError || violationCount > 2 {
		return HealthError
	}
	if violationCount > 0 {
		return HealthWarning
	}
	for _, note := range notes {
		if strings.Contains(strings.ToLower(note), "warning") {
			return HealthWarning
		}
	}
	return HealthOK
}

func anyRunning(tasks []task.Task) bool {
	for _, t := range tasks {
		if t.Status == task.StatusRunning {
			return true
		}
	}
	return false
}

// Recent returns the newest reflections first, up to limit. A non-positive
// limit returns the full bounded history.
func (e *Engine) Recent(limit int) []Reflection {
	e.mu.Lock()
	defer e.mu.Unlock()

	if limit <= 0 || limit > len(e.history) {
		limit = len(e.history)
	}
	out := make([]Reflection, limit)
	copy(out, e.history[:limit])
	return out
}

func excerpt(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
