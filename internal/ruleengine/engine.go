package ruleengine

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/agenttrust/agenttrust/internal/logstream"
)

// Match is one rule's finding against a single execution entry, original
// §6.3: `{ruleId, severity, reason, riskContribution, labels[]}`.
type Match struct {
	RuleID           string   `json:"ruleId"`
	Severity         string   `json:"severity"`
	Reason           string   `json:"reason"`
	RiskContribution int      `json:"riskContribution"`
	Labels           []string `json:"labels,omitempty"`
}

// Context carries the surrounding state a rule may consult, original
// §6.3: session history, recently-seen entries, known-good targets (for
// unknown-recipient detection), loaded config, and the optional claim
// this execution was paired with (resolved via execution.meta.claimId).
type Context struct {
	SessionHistory []*logstream.Execution
	RecentEntries  []*logstream.Execution
	KnownTargets   []string
	Config         map[string]any
	PairedClaim    *logstream.Claim
}

// externalCommsActionTypes are the action types unknown-recipient
// detection applies to.
var externalCommsActionTypes = map[string]bool{
	logstream.ActionMessageSend: true,
	logstream.ActionAPICall:     true,
	logstream.ActionWebFetch:    true,
	logstream.ActionPaymentInitiate: true,
}

// Engine holds the combined built-in and custom rule set and evaluates
// execution entries against it.
type Engine struct {
	mu    sync.RWMutex
	rules []Rule
}

// New loads custom rules from rulesPath (missing file is not an error)
// and merges them with the built-in set, honoring any `disableBuiltin`
// toggles in the custom file.
func New(rulesPath string) (*Engine, error) {
	custom, disabled, err := loadCustomRules(rulesPath)
	if err != nil {
		return nil, err
	}

	var rules []Rule
	for _, r := range builtinRules() {
		if disabled[r.ID] {
			continue
		}
		rules = append(rules, r)
	}
	rules = append(rules, custom...)

	for i := range rules {
		if err := compileMatcher(&rules[i]); err != nil {
			return nil, err
		}
	}

	return &Engine{rules: rules}, nil
}

// Evaluate checks one execution entry against every rule — unlike the
// guardrail proxy this is grounded on, there is no first-match-wins
// short-circuit: an execution can trip several detectors at once, and
// the core needs all of them to build its findings list.
func (e *Engine) Evaluate(entry *logstream.Execution, ctx Context) []Match {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []Match
	for _, r := range e.rules {
		if matches(&r, entry) {
			out = append(out, Match{
				RuleID:           r.ID,
				Severity:         r.Severity,
				Reason:           r.Reason,
				RiskContribution: r.RiskContribution,
				Labels:           r.Labels,
			})
		}
	}

	if m, ok := unknownRecipientMatch(entry, ctx); ok {
		out = append(out, m)
	}

	return out
}

// unknownRecipientMatch flags an external-comms execution whose target
// isn't in ctx.KnownTargets. An empty KnownTargets list means the caller
// has no allowlist configured, so nothing is flagged.
func unknownRecipientMatch(entry *logstream.Execution, ctx Context) (Match, bool) {
	if len(ctx.KnownTargets) == 0 {
		return Match{}, false
	}
	if !externalCommsActionTypes[entry.Action.Type] {
		return Match{}, false
	}
	target := strings.ToLower(entry.Action.Target)
	if u, err := url.Parse(target); err == nil && u.Hostname() != "" {
		target = u.Hostname()
	}
	for _, known := range ctx.KnownTargets {
		if strings.ToLower(known) == target || strings.HasSuffix(target, "."+strings.ToLower(known)) {
			return Match{}, false
		}
	}
	return Match{
		RuleID:           "unknown_recipient",
		Severity:         SeverityMedium,
		Reason:           fmt.Sprintf("%s targets %q, which is not in the known-target list", entry.Action.Type, entry.Action.Target),
		RiskContribution: 4,
		Labels:           []string{"unknown-recipient"},
	}, true
}

// BatchResult is EvaluateBatch's aggregate output, original §6.3.
type BatchResult struct {
	EntriesEvaluated  int            `json:"entriesEvaluated"`
	TotalMatches      int            `json:"totalMatches"`
	MatchesBySeverity map[string]int `json:"matchesBySeverity"`
	MatchesByCategory map[string]int `json:"matchesByCategory"`
	Matches           []Match        `json:"matches"`
}

// EvaluateBatch runs Evaluate over every entry, pairing each with its
// claim (by execution.meta.claimId) when claims is non-nil, and
// aggregates the results.
func (e *Engine) EvaluateBatch(entries []*logstream.Execution, claims []*logstream.Claim) BatchResult {
	byID := make(map[string]*logstream.Claim, len(claims))
	for _, c := range claims {
		byID[c.ID] = c
	}

	result := BatchResult{
		MatchesBySeverity: make(map[string]int),
		MatchesByCategory: make(map[string]int),
	}

	for _, entry := range entries {
		result.EntriesEvaluated++

		ctx := Context{}
		if claimID, ok := entry.Meta["claimId"].(string); ok {
			ctx.PairedClaim = byID[claimID]
		}

		for _, m := range e.Evaluate(entry, ctx) {
			result.TotalMatches++
			result.MatchesBySeverity[m.Severity]++
			result.MatchesByCategory[m.RuleID]++
			result.Matches = append(result.Matches, m)
		}
	}

	return result
}
