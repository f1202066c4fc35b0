package guardrails

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Policy is the serializable guardrail rule set. The zero value is not
// usable; start from Default and override from policy.yaml.
type Policy struct {
	// DestructiveKeywords are case-insensitive substrings that mark intent,
	// goal, or task text as destructive.
	DestructiveKeywords []string `yaml:"destructive_keywords"`

	// TaskDescriptionLimit is the length above which a task description is
	// flagged as too large.
	TaskDescriptionLimit int `yaml:"task_description_limit"`

	// SensitiveScopePattern matches goal text touching sovereign/system
	// scope, which requires an explicit description.
	SensitiveScopePattern string `yaml:"sensitive_scope_pattern"`
}

// Default returns the built-in policy.
func Default() Policy {
	return Policy{
		DestructiveKeywords: []string{
			"delete repository",
			"wipe",
			"destroy",
			"format",
			"rm -rf",
			"drop database",
			"erase",
		},
		TaskDescriptionLimit:  320,
		SensitiveScopePattern: `(sovereign|system|kernel|infrastructure)`,
	}
}

// Load reads a policy file. A missing or empty file yields the default
// policy; unset fields fall back to their defaults.
func Load(path string) (Policy, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Policy{}, fmt.Errorf("read policy: %w", err)
	}
	if len(data) == 0 {
		return Default(), nil
	}
	p := Default()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("parse policy: %w", err)
	}
	if err := p.validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

func (p Policy) validate() error {
	if len(p.DestructiveKeywords) == 0 {
		return fmt.Errorf("policy has no destructive keywords")
	}
	if p.TaskDescriptionLimit <= 0 {
		return fmt.Errorf("task_description_limit must be positive")
	}
	if _, err := regexp.Compile(p.SensitiveScopePattern); err != nil {
		return fmt.Errorf("invalid sensitive_scope_pattern: %w", err)
	}
	return nil
}

// matchesDestructive reports whether text contains any destructive keyword.
func (p Policy) matchesDestructive(text string) bool {
	lowered := strings.ToLower(text)
	for _, keyword := range p.DestructiveKeywords {
		if keyword == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}
