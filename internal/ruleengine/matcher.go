package ruleengine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gobwas/glob"

	"github.com/agenttrust/agenttrust/internal/logstream"
)

// compiledMatcher holds pre-compiled patterns for a rule, compiled once at
// load time.
type compiledMatcher struct {
	commandRegex *regexp.Regexp
	targetGlobs  []glob.Glob
}

func compileMatcher(r *Rule) error {
	r.Match.compiled = &compiledMatcher{}

	if r.Match.CommandRegex != "" {
		re, err := regexp.Compile(r.Match.CommandRegex)
		if err != nil {
			return fmt.Errorf("rule %q: invalid commandRegex: %w", r.ID, err)
		}
		r.Match.compiled.commandRegex = re
	}

	for _, p := range r.Match.TargetGlobs {
		g, err := glob.Compile(p)
		if err != nil {
			return fmt.Errorf("rule %q: invalid targetGlob %q: %w", r.ID, p, err)
		}
		r.Match.compiled.targetGlobs = append(r.Match.compiled.targetGlobs, g)
	}

	return nil
}

// matches reports whether an execution entry satisfies a rule's
// conditions. All non-empty fields must match (AND logic); list fields
// are OR-composed.
func matches(r *Rule, e *logstream.Execution) bool {
	m := r.Match

	if len(m.ActionTypes) > 0 && !containsFold(m.ActionTypes, e.Action.Type) {
		return false
	}

	if m.Agent != "" && m.Agent != e.Agent {
		return false
	}

	if len(m.TargetGlobs) > 0 {
		if m.compiled == nil || len(m.compiled.targetGlobs) == 0 {
			return false
		}
		matched := false
		for _, g := range m.compiled.targetGlobs {
			if g.Match(e.Action.Target) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if len(m.TargetContains) > 0 {
		target := strings.ToLower(e.Action.Target + " " + e.Action.Detail)
		matched := false
		for _, s := range m.TargetContains {
			if strings.Contains(target, strings.ToLower(s)) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if m.compiled != nil && m.compiled.commandRegex != nil {
		subject := e.Action.Target
		if e.Action.Detail != "" {
			subject += " " + e.Action.Detail
		}
		if !m.compiled.commandRegex.MatchString(subject) {
			return false
		}
	}

	if m.MinRisk > 0 && e.Risk.Score < m.MinRisk {
		return false
	}

	return true
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
