// Package guardrails evaluates intents, goals, and tasks for destructive or
// risky content. Checks are advisory: violations are recorded and surfaced
// but never block creation. Blocking is the guardian's decision, made above
// this layer on the raw command text.
package guardrails

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/halcyon-foundry/autarch/internal/bus"
	"github.com/halcyon-foundry/autarch/internal/kernel"
)

// MaxViolations caps the bounded violation history.
const MaxViolations = 20

// Severity grades a violation.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rule names for violations.
const (
	RuleDestructiveIntent  = "destructive-intent"
	RuleDestructiveGoal    = "destructive-goal"
	RuleDestructiveTask    = "destructive-task"
	RuleMissingDescription = "missing-description"
	RuleTaskTooLarge       = "task-too-large"
)

// Violation is an advisory record of risky content.
type Violation struct {
	ID        string
	CreatedAt time.Time
	Severity  Severity
	Rule      string
	Context   string
}

// Engine evaluates text against the active policy and keeps the bounded,
// newest-first violation history. Safe for concurrent use; the policy can
// be swapped at runtime via Reload.
type Engine struct {
	mu         sync.RWMutex
	policy     Policy
	scopeRe    *regexp.Regexp
	violations []Violation

	kernel *kernel.Kernel
	events *bus.Bus
}

// NewEngine creates an Engine. kernel and events may be nil (checks still
// work; Handle just skips the respective side effect).
func NewEngine(policy Policy, k *kernel.Kernel, events *bus.Bus) *Engine {
	return &Engine{
		policy:  policy,
		scopeRe: regexp.MustCompile(policy.SensitiveScopePattern),
		kernel:  k,
		events:  events,
	}
}

// Reload swaps the active policy. The violation history is preserved.
func (e *Engine) Reload(policy Policy) error {
	re, err := regexp.Compile(policy.SensitiveScopePattern)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.policy = policy
	e.scopeRe = re
	e.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the active policy.
func (e *Engine) Snapshot() Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p := e.policy
	p.DestructiveKeywords = append([]string(nil), e.policy.DestructiveKeywords...)
	return p
}

func newViolation(severity Severity, rule, context string) *Violation {
	return &Violation{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		Severity:  severity,
		Rule:      rule,
		Context:   context,
	}
}

// CheckIntent returns a high-severity violation when the intent text
// contains a destructive keyword, nil otherwise.
func (e *Engine) CheckIntent(text string) *Violation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.policy.matchesDestructive(text) {
		return newViolation(SeverityHigh, RuleDestructiveIntent, text)
	}
	return nil
}

// CheckGoal evaluates a goal's title and description. Destructive content
// wins over the missing-description check; evaluation order is significant.
func (e *Engine) CheckGoal(title, description string) *Violation {
	e.mu.RLock()
	defer e.mu.RUnlock()

	combined := title + " " + description
	if e.policy.matchesDestructive(combined) {
		return newViolation(SeverityHigh, RuleDestructiveGoal, title)
	}
	if description == "" && e.scopeRe.MatchString(strings.ToLower(combined)) {
		return newViolation(SeverityMedium, RuleMissingDescription, title)
	}
	return nil
}

// CheckTask evaluates a task description: size check first, then the
// destructive keyword check.
func (e *Engine) CheckTask(description string) *Violation {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(description) > e.policy.TaskDescriptionLimit {
		return newViolation(SeverityMedium, RuleTaskTooLarge, truncate(description, 120))
	}
	if e.policy.matchesDestructive(description) {
		return newViolation(SeverityHigh, RuleDestructiveTask, description)
	}
	return nil
}

// Handle records a violation: no-op on nil, otherwise it is prepended to the
// bounded history, logged at warn level, and published on the bus. Called at
// every creation boundary. Never fails.
func (e *Engine) Handle(v *Violation) {
	if v == nil {
		return
	}

	e.mu.Lock()
	e.violations = append([]Violation{*v}, e.violations...)
	if len(e.violations) > MaxViolations {
		e.violations = e.violations[:MaxViolations]
	}
	e.mu.Unlock()

	if e.kernel != nil {
		e.kernel.Warn("sovereign.guardrails", v.Rule+" ("+string(v.Severity)+")", map[string]any{
			"violation_id": v.ID,
			"context":      truncate(v.Context, 120),
		})
	}
	if e.events != nil {
		e.events.Publish(bus.TopicGuardrailViolation, *v)
	}
}

// Violations returns the newest-first history, up to limit entries.
// A non-positive limit returns the full bounded history.
func (e *Engine) Violations(limit int) []Violation {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if limit <= 0 || limit > len(e.violations) {
		limit = len(e.violations)
	}
	out := make([]Violation, limit)
	copy(out, e.violations[:limit])
	return out
}

// Summary counts recorded violations by severity.
func (e *Engine) Summary() map[Severity]int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	counts := map[Severity]int{SeverityLow: 0, SeverityMedium: 0, SeverityHigh: 0}
	for _, v := range e.violations {
		counts[v.Severity]++
	}
	return counts
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
