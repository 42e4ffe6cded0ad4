// Package ruleengine implements the thin external collaborator described
// at the boundary in original §6.3: a YAML-configured rule set that
// evaluates one execution entry (plus session/claim context) and returns
// zero or more {ruleId, severity, reason, riskContribution, labels}
// matches. The ~14-detector internal logic is deliberately out of the
// core's scope per original §1 — this package only needs to honor the
// contract shape, so it carries a representative built-in set rather
// than an exhaustive one.
package ruleengine

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Severity levels, original §6.3.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// RuleMatch defines the conditions under which a rule fires against an
// execution entry. All non-empty fields are AND-composed; list fields are
// OR-composed internally.
type RuleMatch struct {
	ActionTypes    []string `yaml:"actionTypes"`
	TargetGlobs    []string `yaml:"targetGlobs"`
	TargetContains []string `yaml:"targetContains"`
	CommandRegex   string   `yaml:"commandRegex"`
	Agent          string   `yaml:"agent"`
	MinRisk        int      `yaml:"minRisk"`

	compiled *compiledMatcher
}

// Rule is one guardrail detector: a match condition plus the finding it
// contributes when the condition fires.
type Rule struct {
	ID               string    `yaml:"id"`
	Match            RuleMatch `yaml:"match"`
	Severity         string    `yaml:"severity"`
	Reason           string    `yaml:"reason"`
	RiskContribution int       `yaml:"riskContribution"`
	Labels           []string  `yaml:"labels"`
	Builtin          bool      `yaml:"-"`
}

// configFile is the on-disk shape of a custom rules.yaml, original §6.4
// `rules.path`.
type configFile struct {
	Rules    []Rule          `yaml:"rules"`
	Disabled map[string]bool `yaml:"disableBuiltin"`
}

// loadCustomRules reads path, returning an empty slice (not an error) if
// the file is absent, matching SPEC_FULL.md §C.4's "missing file isn't an
// error" policy.
func loadCustomRules(path string) ([]Rule, map[string]bool, error) {
	if path == "" {
		return nil, nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("ruleengine: reading %s: %w", path, err)
	}
	var cfg configFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, nil, fmt.Errorf("ruleengine: parsing %s: %w", path, err)
	}
	return cfg.Rules, cfg.Disabled, nil
}
