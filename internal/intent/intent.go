// Package intent heuristically tags free text with a kind and a confidence
// estimate. Classification is ordered keyword matching, not language
// understanding; confidence is a coarse length-derived placeholder and must
// not be read as a calibrated probability.
package intent

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/halcyon-foundry/autarch/internal/guardrails"
	"github.com/halcyon-foundry/autarch/internal/kernel"
)

// MaxSignals caps the rolling signal history.
const MaxSignals = 100

// Kind labels the likely purpose of a piece of text.
type Kind string

const (
	KindDiagnostic  Kind = "diagnostic"
	KindBuild       Kind = "build"
	KindResearch    Kind = "research"
	KindSync        Kind = "sync"
	KindMaintenance Kind = "maintenance"
	KindSovereign   Kind = "sovereign"
)

// Source identifies where the analyzed text came from.
type Source string

const (
	SourceCommand Source = "command"
	SourceTask    Source = "task"
	SourceSystem  Source = "system"
)

// Signal is one classified piece of text.
type Signal struct {
	ID         string
	Kind       Kind
	Confidence float64
	Source     Source
	Text       string
	CreatedAt  time.Time
	Meta       map[string]string
}

// kindRules is the ordered classification table; first match wins.
var kindRules = []struct {
	re   *regexp.Regexp
	kind Kind
}{
	{regexp.MustCompile(`diagnostic|status|health|check`), KindDiagnostic},
	{regexp.MustCompile(`build|compile|bundle`), KindBuild},
	{regexp.MustCompile(`research|investigate|explore|analy[sz]e`), KindResearch},
	{regexp.MustCompile(`sync|align|reconcile`), KindSync},
	{regexp.MustCompile(`maintain|cleanup|upgrade|patch`), KindMaintenance},
	{regexp.MustCompile(`sovereign|guardrail|safety|policy`), KindSovereign},
}

// DetectKind classifies text by the first matching rule, defaulting to
// research.
func DetectKind(text string) Kind {
	lowered := strings.ToLower(text)
	for _, rule := range kindRules {
		if rule.re.MatchString(lowered) {
			return rule.kind
		}
	}
	return KindResearch
}

// Score estimates confidence from text length alone.
func Score(text string) float64 {
	trimmed := strings.TrimSpace(text)
	switch {
	case len(trimmed) > 160:
		return 0.62
	case len(trimmed) > 80:
		return 0.55
	default:
		return 0.48
	}
}

// Classifier records signals into a bounded newest-first history and runs
// the guardrail intent check as a side effect of every record.
type Classifier struct {
	mu      sync.Mutex
	signals []Signal

	kernel *kernel.Kernel
	guards *guardrails.Engine
}

// NewClassifier creates a Classifier. Both collaborators may be nil in tests.
func NewClassifier(k *kernel.Kernel, guards *guardrails.Engine) *Classifier {
	return &Classifier{kernel: k, guards: guards}
}

// AnalyzeCommand classifies a command id plus its argument text.
func (c *Classifier) AnalyzeCommand(commandID, text string) Signal {
	return c.record(Signal{
		ID:         uuid.NewString(),
		Kind:       DetectKind(commandID + " " + text),
		Confidence: Score(text),
		Source:     SourceCommand,
		Text:       text,
		CreatedAt:  time.Now(),
		Meta:       map[string]string{"command_id": commandID},
	})
}

// AnalyzeTask classifies a task description.
func (c *Classifier) AnalyzeTask(taskID, description string) Signal {
	return c.record(Signal{
		ID:         uuid.NewString(),
		Kind:       DetectKind(description),
		Confidence: Score(description),
		Source:     SourceTask,
		Text:       description,
		CreatedAt:  time.Now(),
		Meta:       map[string]string{"task_id": taskID},
	})
}

// AnalyzeSystem classifies system-originated text.
func (c *Classifier) AnalyzeSystem(text string) Signal {
	return c.record(Signal{
		ID:         uuid.NewString(),
		Kind:       DetectKind(text),
		Confidence: Score(text),
		Source:     SourceSystem,
		Text:       text,
		CreatedAt:  time.Now(),
	})
}

func (c *Classifier) record(sig Signal) Signal {
	c.mu.Lock()
	c.signals = append([]Signal{sig}, c.signals...)
	if len(c.signals) > MaxSignals {
		c.signals = c.signals[:MaxSignals]
	}
	c.mu.Unlock()

	if c.kernel != nil {
		c.kernel.Info("intent.engine", "intent recorded", map[string]any{
			"intent_id":  sig.ID,
			"kind":       string(sig.Kind),
			"confidence": sig.Confidence,
			"source":     string(sig.Source),
		})
	}
	if c.guards != nil {
		c.guards.Handle(c.guards.CheckIntent(sig.Text))
	}
	return sig
}

// Recent returns the newest signals first, up to limit. A non-positive limit
// returns the full bounded history.
func (c *Classifier) Recent(limit int) []Signal {
	c.mu.Lock()
	defer c.mu.Unlock()

	if limit <= 0 || limit > len(c.signals) {
		limit = len(c.signals)
	}
	out := make([]Signal, limit)
	copy(out, c.signals[:limit])
	return out
}
