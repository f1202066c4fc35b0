// Package goal tracks higher-level units of intent. A goal may auto-spawn a
// task when its title matches a planning template; otherwise tasks are
// attached explicitly. Goals reference tasks by id only — task lifecycle is
// owned by the task engine.
package goal

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/halcyon-foundry/autarch/internal/guardrails"
	"github.com/halcyon-foundry/autarch/internal/intent"
	"github.com/halcyon-foundry/autarch/internal/kernel"
	"github.com/halcyon-foundry/autarch/internal/task"
)

// Status is a goal's lifecycle position.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Goal is a tracked unit of intent. Values returned from the planner are
// copies.
type Goal struct {
	ID            string
	Title         string
	Description   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Status        Status
	Intent        *intent.Signal
	TaskIDs       []string
	ResultSummary string
}

func (g *Goal) clone() Goal {
	cp := *g
	cp.TaskIDs = append([]string(nil), g.TaskIDs...)
	if g.Intent != nil {
		sig := *g.Intent
		cp.Intent = &sig
	}
	return cp
}

// template maps a title pattern to a derived task description; the table is
// ordered and the first match wins.
type template struct {
	match       *regexp.Regexp
	description string
}

var planTemplates = []template{
	{regexp.MustCompile(`(analy[sz]e|review).*(log|activity)`), "Analyze recent autonomy logs for anomalies"},
	{regexp.MustCompile(`(snapshot|capture).*(state|status)`), "Capture current kernel and task state snapshot"},
	{regexp.MustCompile(`(stabilize|steady|idle)`), "Ensure system reaches a stable idle state"},
}

// Planner owns the goal map.
type Planner struct {
	mu    sync.Mutex
	goals map[string]*Goal

	kernel *kernel.Kernel
	guards *guardrails.Engine
	tasks  *task.Engine
}

// NewPlanner creates a Planner backed by the given task engine.
func NewPlanner(k *kernel.Kernel, guards *guardrails.Engine, tasks *task.Engine) *Planner {
	return &Planner{
		goals:  make(map[string]*Goal),
		kernel: k,
		guards: guards,
		tasks:  tasks,
	}
}

// CreateOptions carries optional creation inputs.
type CreateOptions struct {
	Intent *intent.Signal
}

// Create registers a goal, runs the guardrail check, and attempts template
// planning: on the first template match one task is auto-created with the
// derived description and the goal is promoted to active.
func (p *Planner) Create(title, description string, opts CreateOptions) Goal {
	now := time.Now()
	g := &Goal{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
		Status:      StatusPending,
		Intent:      opts.Intent,
	}

	p.mu.Lock()
	p.goals[g.ID] = g
	p.mu.Unlock()

	if p.guards != nil {
		p.guards.Handle(p.guards.CheckGoal(title, description))
	}
	if p.kernel != nil {
		p.kernel.Info("goals.planner", "goal created", map[string]any{
			"goal_id": g.ID,
			"title":   title,
		})
	}

	if derived, ok := matchTemplate(title + " " + description); ok && p.tasks != nil {
		t := p.tasks.Create(derived, map[string]any{"goal_id": g.ID})

		p.mu.Lock()
		g.TaskIDs = append(g.TaskIDs, t.ID)
		g.Status = StatusActive
		g.UpdatedAt = time.Now()
		p.mu.Unlock()

		if p.kernel != nil {
			p.kernel.Info("goals.planner", "auto-task created for goal", map[string]any{
				"goal_id": g.ID,
				"task_id": t.ID,
			})
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return g.clone()
}

func matchTemplate(text string) (string, bool) {
	lowered := strings.ToLower(text)
	for _, tpl := range planTemplates {
		if tpl.match.MatchString(lowered) {
			return tpl.description, true
		}
	}
	return "", false
}

// AttachTask idempotently adds a task id and promotes a pending goal to
// active. Returns false when the goal does not exist.
func (p *Planner) AttachTask(goalID, taskID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	g, ok := p.goals[goalID]
	if !ok {
		return false
	}
	for _, existing := range g.TaskIDs {
		if existing == taskID {
			return true
		}
	}
	g.TaskIDs = append(g.TaskIDs, taskID)
	if g.Status == StatusPending {
		g.Status = StatusActive
	}
	g.UpdatedAt = time.Now()

	if p.kernel != nil {
		p.kernel.Info("goals.planner", "task attached to goal", map[string]any{
			"goal_id": goalID,
			"task_id": taskID,
		})
	}
	return true
}

// Complete finalizes a goal as completed with an optional summary.
func (p *Planner) Complete(goalID, summary string) (Goal, bool) {
	return p.finalize(goalID, StatusCompleted, summary)
}

// Fail finalizes a goal as failed with a reason.
func (p *Planner) Fail(goalID, reason string) (Goal, bool) {
	return p.finalize(goalID, StatusFailed, reason)
}

func (p *Planner) finalize(goalID string, status Status, summary string) (Goal, bool) {
	p.mu.Lock()
	g, ok := p.goals[goalID]
	if !ok {
		p.mu.Unlock()
		return Goal{}, false
	}
	g.Status = status
	g.ResultSummary = summary
	g.UpdatedAt = time.Now()
	out := g.clone()
	p.mu.Unlock()

	if p.kernel != nil {
		if status == StatusFailed {
			p.kernel.Warn("goals.planner", "goal failed", map[string]any{"goal_id": goalID, "reason": summary})
		} else {
			p.kernel.Info("goals.planner", "goal completed", map[string]any{"goal_id": goalID})
		}
	}
	return out, true
}

// List returns goals newest-created-first, optionally filtered by status
// (empty filter returns all).
func (p *Planner) List(filter Status) []Goal {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Goal, 0, len(p.goals))
	for _, g := range p.goals {
		if filter != "" && g.Status != filter {
			continue
		}
		out = append(out, g.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Get returns a copy of one goal by id.
func (p *Planner) Get(goalID string) (Goal, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	g, ok := p.goals[goalID]
	if !ok {
		return Goal{}, false
	}
	return g.clone(), true
}

// SyncTasks recomputes whether any attached task is still queued or running.
// An active goal with no live tasks is demoted back to pending; goals are
// never auto-completed — only Complete and Fail finalize a goal.
func (p *Planner) SyncTasks(goalID string) {
	p.mu.Lock()
	g, ok := p.goals[goalID]
	if !ok {
		p.mu.Unlock()
		return
	}
	taskIDs := append([]string(nil), g.TaskIDs...)
	p.mu.Unlock()

	hasLive := false
	if p.tasks != nil {
		for _, id := range taskIDs {
			t, found := p.tasks.Inspect(id)
			if !found {
				continue
			}
			if t.Status == task.StatusQueued || t.Status == task.StatusRunning {
				hasLive = true
				break
			}
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !hasLive && g.Status == StatusActive {
		g.Status = StatusPending
	}
	g.UpdatedAt = time.Now()
}

// Restore replaces the goal map from a previously captured list. Used when
// rehydrating from the persistence collaborator; no guardrail checks or
// template planning run for restored goals.
func (p *Planner) Restore(goals []Goal) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.goals = make(map[string]*Goal, len(goals))
	for i := range goals {
		g := goals[i].clone()
		p.goals[g.ID] = &g
	}
}
