package command

import (
	"fmt"
)

// RuleType is the kind of argument a rule binds.
type RuleType string

const (
	RuleArg       RuleType = "arg"
	RuleKwarg     RuleType = "kwarg"
	RuleSubsearch RuleType = "subsearch"
)

// ParseRuleType validates a rule type name. The empty string means arg.
func ParseRuleType(s string) (RuleType, error) {
	switch RuleType(s) {
	case "", RuleArg:
		return RuleArg, nil
	case RuleKwarg:
		return RuleKwarg, nil
	case RuleSubsearch:
		return RuleSubsearch, nil
	}
	return "", fmt.Errorf("unknown rule type %q", s)
}

// Rule declares one argument of a unit.
type Rule struct {
	Name string   `json:"name"`
	Type RuleType `json:"type"`
	// Key is the keyword a kwarg is written with when it differs from Name.
	Key        string   `json:"key,omitempty"`
	Required   bool     `json:"required,omitempty"`
	Inf        bool     `json:"inf,omitempty"`
	InputTypes []string `json:"input_types,omitempty"`
}

// Syntax is the static argument syntax of a unit.
type Syntax struct {
	Rules         []Rule `json:"rules"`
	UseTimeWindow bool   `json:"use_timewindow,omitempty"`
}

// Rule returns the rule named name.
func (s Syntax) Rule(name string) (Rule, bool) {
	for _, r := range s.Rules {
		if r.Name == name {
			return r, true
		}
	}
	return Rule{}, false
}

// Validate checks rule names are set and unique.
func (s Syntax) Validate() error {
	seen := make(map[string]struct{}, len(s.Rules))
	for i, r := range s.Rules {
		if r.Name == "" {
			return fmt.Errorf("rule %d has no name", i)
		}
		if _, dup := seen[r.Name]; dup {
			return fmt.Errorf("duplicate rule %q", r.Name)
		}
		seen[r.Name] = struct{}{}
		if _, err := ParseRuleType(string(r.Type)); err != nil {
			return fmt.Errorf("rule %q: %w", r.Name, err)
		}
	}
	return nil
}
