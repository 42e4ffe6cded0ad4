// Package consistency implements the external consistency-analyzer
// collaborator described at the boundary in original §6.3: given aligned
// (claim, execution) pairs, it emits mismatch findings and reduces them
// to a single 0-100 score, which the core consumes as the "consistency"
// component of the trust verdict (original §4.L).
package consistency

import (
	"fmt"

	"github.com/agenttrust/agenttrust/internal/logstream"
)

// Finding kinds, original §6.3.
const (
	KindTargetMismatch        = "target_mismatch"
	KindActionTypeMismatch    = "action_type_mismatch"
	KindRiskUnderestimate     = "risk_underestimate"
	KindScopeViolation        = "scope_violation"
	KindEscalationUndeclared  = "escalation_undeclared"
	KindOutcomeUnexpected     = "outcome_unexpected"
	KindUnclaimedExecution    = "unclaimed_execution"
	KindUnfulfilledClaim      = "unfulfilled_claim"
)

// penaltyTable resolves SPEC_FULL.md §C.6's Open Question: the
// severity-to-penalty mapping for each finding kind, summed and clamped
// to produce computeConsistencyScore.
var penaltyTable = map[string]int{
	KindTargetMismatch:       15,
	KindActionTypeMismatch:   15,
	KindRiskUnderestimate:    10,
	KindScopeViolation:       20,
	KindEscalationUndeclared: 25,
	KindOutcomeUnexpected:    10,
	KindUnclaimedExecution:   10,
	KindUnfulfilledClaim:     5,
}

// riskJumpThreshold is the "≥3 point jump" original §6.3 names for
// risk_underestimate.
const riskJumpThreshold = 3

// Finding is one claim/execution consistency anomaly.
type Finding struct {
	Kind        string `json:"kind"`
	Detail      string `json:"detail"`
	ClaimID     string `json:"claimId,omitempty"`
	ExecutionID string `json:"executionId,omitempty"`
}

// Analyze compares one claim against the execution it was paired with.
// Either side may be nil: a nil claim with a non-nil execution yields
// unclaimed_execution; a non-nil claim with a nil execution yields
// unfulfilled_claim, original §6.3.
func Analyze(claim *logstream.Claim, execution *logstream.Execution) []Finding {
	switch {
	case claim == nil && execution == nil:
		return nil
	case claim == nil:
		return []Finding{{
			Kind:        KindUnclaimedExecution,
			Detail:      fmt.Sprintf("execution %s has no paired claim", execution.Action.Type),
			ExecutionID: execution.ID,
		}}
	case execution == nil:
		return []Finding{{
			Kind:    KindUnfulfilledClaim,
			Detail:  fmt.Sprintf("claim to %s %q was never executed", claim.Intent.PlannedAction, claim.Intent.PlannedTarget),
			ClaimID: claim.ID,
		}}
	}

	var findings []Finding
	ids := func(f Finding) Finding {
		f.ClaimID = claim.ID
		f.ExecutionID = execution.ID
		return f
	}

	if claim.Intent.PlannedTarget != execution.Action.Target {
		findings = append(findings, ids(Finding{
			Kind:   KindTargetMismatch,
			Detail: fmt.Sprintf("claimed target %q, executed against %q", claim.Intent.PlannedTarget, execution.Action.Target),
		}))
	}

	if claim.Intent.PlannedAction != execution.Action.Type {
		findings = append(findings, ids(Finding{
			Kind:   KindActionTypeMismatch,
			Detail: fmt.Sprintf("claimed action %q, executed %q", claim.Intent.PlannedAction, execution.Action.Type),
		}))
	}

	if execution.Risk.Score-claim.Intent.SelfAssessedRisk >= riskJumpThreshold {
		findings = append(findings, ids(Finding{
			Kind:   KindRiskUnderestimate,
			Detail: fmt.Sprintf("self-assessed risk %d, actual risk %d", claim.Intent.SelfAssessedRisk, execution.Risk.Score),
		}))
	}

	if !claim.Constraints.WithinScope {
		findings = append(findings, ids(Finding{
			Kind:   KindScopeViolation,
			Detail: "claim declared the action outside its own stated scope",
		}))
	}

	if isElevationAction(execution.Action.Type) && !claim.Constraints.RequiresElevation {
		findings = append(findings, ids(Finding{
			Kind:   KindEscalationUndeclared,
			Detail: fmt.Sprintf("execution %q required elevation not declared in the claim", execution.Action.Type),
		}))
	}

	if outcomeUnexpected(claim.Intent.ExpectedOutcome, execution.Outcome.Status) {
		findings = append(findings, ids(Finding{
			Kind:   KindOutcomeUnexpected,
			Detail: fmt.Sprintf("expected outcome %q, actual outcome %q", claim.Intent.ExpectedOutcome, execution.Outcome.Status),
		}))
	}

	return findings
}

func isElevationAction(actionType string) bool {
	return actionType == logstream.ActionElevatedEnable
}

// outcomeUnexpected compares the claim's declared expectation against
// what actually happened. "unknown" expectations never flag (the agent
// explicitly declined to predict).
func outcomeUnexpected(expected, actual string) bool {
	if expected == "unknown" || expected == "" {
		return false
	}
	if expected == "success" {
		return actual != logstream.OutcomeSuccess
	}
	if expected == "partial" {
		return actual != logstream.OutcomePartial && actual != logstream.OutcomeSuccess
	}
	return false
}

// ComputeConsistencyScore reduces a batch of findings to the single 0-100
// component the trust verdict consumes, original §4.L / SPEC_FULL.md
// §C.6: clamp(100 - sum(penalties), 0, 100), the same clamp-and-sum shape
// as the witness-confidence scorer for a consistent idiom across the
// repo's two analyzers.
func ComputeConsistencyScore(findings []Finding) int {
	total := 0
	for _, f := range findings {
		total += penaltyTable[f.Kind]
	}
	score := 100 - total
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Pair is one claim matched to the execution that fulfilled it (or
// either side alone when unmatched).
type Pair struct {
	Claim     *logstream.Claim
	Execution *logstream.Execution
}

// PairByClaimID links executions to claims via execution.Meta["claimId"]
// (original §9: "Claims and executions reference each other solely by
// id"), then reports every claim without a matching execution as an
// unfulfilled Pair and every claimId-less or dangling-claimId execution
// as an unclaimed Pair.
func PairByClaimID(claims []*logstream.Claim, executions []*logstream.Execution) []Pair {
	byID := make(map[string]*logstream.Claim, len(claims))
	for _, c := range claims {
		byID[c.ID] = c
	}

	used := make(map[string]bool, len(claims))
	var pairs []Pair
	for _, e := range executions {
		claimID, _ := e.Meta["claimId"].(string)
		if claimID == "" {
			pairs = append(pairs, Pair{Execution: e})
			continue
		}
		c, ok := byID[claimID]
		if !ok {
			pairs = append(pairs, Pair{Execution: e})
			continue
		}
		used[claimID] = true
		pairs = append(pairs, Pair{Claim: c, Execution: e})
	}

	for _, c := range claims {
		if !used[c.ID] {
			pairs = append(pairs, Pair{Claim: c})
		}
	}

	return pairs
}

// AnalyzeAll runs Analyze over every pair and returns the combined
// finding set plus the reduced score.
func AnalyzeAll(pairs []Pair) ([]Finding, int) {
	var findings []Finding
	for _, p := range pairs {
		findings = append(findings, Analyze(p.Claim, p.Execution)...)
	}
	return findings, ComputeConsistencyScore(findings)
}
