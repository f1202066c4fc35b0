// Package guardian screens raw command input before dispatch. It is a
// separate, stricter gate than the policy engine: guardrails watch intents,
// goals, and tasks after admission, while the guardian can refuse admission
// outright.
package guardian

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/halcyon-foundry/autarch/internal/intent"
	"github.com/halcyon-foundry/autarch/internal/kernel"
)

// MaxAuditEntries caps the rolling audit trail.
const MaxAuditEntries = 50

// Decision is the admission verdict for one input line.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionFlag  Decision = "flag"
	DecisionBlock Decision = "block"
)

// Assessment is the verdict plus its reason.
type Assessment struct {
	Decision Decision
	Reason   string
}

// AuditEntry records one screened input.
type AuditEntry struct {
	ID       string
	At       time.Time
	Input    string
	Decision Decision
	Reason   string
	Intent   intent.Kind
}

// destructiveSignatures hard-block regardless of intent.
var destructiveSignatures = []*regexp.Regexp{
	regexp.MustCompile(`rm\s+-rf`),
	regexp.MustCompile(`\bshutdown\b`),
	regexp.MustCompile(`drop\s+table`),
	regexp.MustCompile(`format\s+drive`),
}

// systemWriteKeywords downgrade to a flag, not a block.
var systemWriteKeywords = []string{"delete", "remove", "overwrite", "reset", "purge"}

// Guardian screens inputs and keeps a bounded audit trail.
type Guardian struct {
	mu     sync.Mutex
	trail  []AuditEntry
	kernel *kernel.Kernel
}

func New(k *kernel.Kernel) *Guardian {
	return &Guardian{kernel: k}
}

// Evaluate screens one raw input line against its classified intent. Order
// matters: destructive signatures block before anything else, a missing
// intent flags, then system-write keywords flag.
func (g *Guardian) Evaluate(raw string, sig *intent.Signal) Assessment {
	lowered := strings.ToLower(raw)

	assessment := Assessment{Decision: DecisionAllow, Reason: "no objection"}
	switch {
	case matchesDestructive(lowered):
		assessment = Assessment{Decision: DecisionBlock, Reason: "destructive signature detected"}
	case sig == nil:
		assessment = Assessment{Decision: DecisionFlag, Reason: "no declared intent"}
	case containsSystemWrite(lowered):
		assessment = Assessment{Decision: DecisionFlag, Reason: "system-write keyword present"}
	}

	entry := AuditEntry{
		ID:       uuid.NewString(),
		At:       time.Now(),
		Input:    raw,
		Decision: assessment.Decision,
		Reason:   assessment.Reason,
	}
	if sig != nil {
		entry.Intent = sig.Kind
	}

	g.mu.Lock()
	g.trail = append([]AuditEntry{entry}, g.trail...)
	if len(g.trail) > MaxAuditEntries {
		g.trail = g.trail[:MaxAuditEntries]
	}
	g.mu.Unlock()

	if g.kernel != nil && assessment.Decision != DecisionAllow {
		level, msg := kernel.LevelWarn, "input flagged"
		if assessment.Decision == DecisionBlock {
			level, msg = kernel.LevelError, "input blocked"
		}
		g.kernel.Append(level, "sovereign.guardian", msg, map[string]any{
			"reason": assessment.Reason,
		})
	}
	return assessment
}

// Recent returns the newest audit entries first, up to limit. A non-positive
// limit returns the full trail.
func (g *Guardian) Recent(limit int) []AuditEntry {
	g.mu.Lock()
	defer g.mu.Unlock()

	if limit <= 0 || limit > len(g.trail) {
		limit = len(g.trail)
	}
	out := make([]AuditEntry, limit)
	copy(out, g.trail[:limit])
	return out
}

func matchesDestructive(lowered string) bool {
	for _, re := range destructiveSignatures {
		if re.MatchString(lowered) {
			return true
		}
	}
	return false
}

func containsSystemWrite(lowered string) bool {
	for _, kw := range systemWriteKeywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}
