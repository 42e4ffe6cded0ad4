// Package trust implements the findings generator and composite trust
// scorer, original §4.L: it turns correlator discrepancies and unmatched
// entries into findings, derives a proportional witness-confidence score,
// and composes the final (trustScore, level, components) verdict.
package trust

import (
	"fmt"
	"strings"

	"github.com/agenttrust/agenttrust/internal/correlate"
	"github.com/agenttrust/agenttrust/internal/logstream"
)

// Finding severities, shared with correlate.Discrepancy's vocabulary.
const (
	SeverityInfo     = correlate.SeverityInfo
	SeverityWarning  = correlate.SeverityWarning
	SeverityCritical = correlate.SeverityCritical
)

// Finding kinds, original §4.L.
const (
	KindTimingDiscrepancy     = "timing_discrepancy"
	KindTargetDiscrepancy     = "target_discrepancy"
	KindEvidenceMismatch      = "evidence_mismatch"
	KindPhantomProcess        = "phantom_process"
	KindUnwitnessedExecution  = "unwitnessed_execution"
	KindSilentFileAccess      = "silent_file_access"
	KindSilentNetwork         = "silent_network"
	KindUnloggedObservation   = "unlogged_observation"
)

// Finding is one anomaly surfaced by the scorer: a discrepancy in a
// matched pair, an execution without a witness, or an agent-bucket
// witness without an execution, original GLOSSARY.
type Finding struct {
	Kind        string `json:"kind"`
	Severity    string `json:"severity"`
	Detail      string `json:"detail"`
	WitnessID   string `json:"witnessId,omitempty"`
	ExecutionID string `json:"executionId,omitempty"`
}

// execLikeActionTypes is the complete "exec-like" set for phantom-process
// classification, resolving SPEC_FULL.md §C.5's Open Question: only
// exec.command/exec.script are exec-like. elevated.enable and other
// elevation-flavored actions are not, since no process-monitor signal is
// expected for a permission change. They are not witnessable either (see
// isWitnessable), so an unwitnessed elevation produces no finding.
var execLikeActionTypes = map[string]bool{
	logstream.ActionExecCommand: true,
	logstream.ActionExecScript:  true,
}

// isWitnessable reports whether actionType is one original §4.L says should
// have produced a witness signal: file.*, exec.*, api.call, web.*.
func isWitnessable(actionType string) bool {
	if actionType == logstream.ActionAPICall {
		return true
	}
	if strings.HasPrefix(actionType, "file.") || strings.HasPrefix(actionType, "exec.") || strings.HasPrefix(actionType, "web.") {
		return true
	}
	return false
}

// sensitivePathMarkers are substrings original §4.L names for
// silent_file_access detection.
var sensitivePathMarkers = []string{
	"/.ssh/", "/.env", "/.gnupg/", "/credentials", "/.aws/", "/id_rsa", "/id_ed25519",
}

func isSensitivePath(path string) bool {
	for _, m := range sensitivePathMarkers {
		if strings.Contains(path, m) {
			return true
		}
	}
	return false
}

// discrepancyToFinding maps one correlator discrepancy into a Finding
// carrying both sides' ids for traceability.
func discrepancyToFinding(d correlate.Discrepancy, w *logstream.Witness, e *logstream.Execution) Finding {
	return Finding{
		Kind:        d.Kind,
		Severity:    d.Severity,
		Detail:      d.Detail,
		WitnessID:   w.ID,
		ExecutionID: e.ID,
	}
}

// FindingsFromMatches flattens every discrepancy out of a correlator's
// matched pairs, original §4.L "Matched pairs" finding source.
func FindingsFromMatches(results ...correlate.Result) []Finding {
	var findings []Finding
	for _, r := range results {
		for _, m := range r.Matches {
			for _, d := range m.Discrepancies {
				findings = append(findings, discrepancyToFinding(d, m.Witness, m.Execution))
			}
		}
	}
	return findings
}

// FindingsFromUnmatchedExecutions emits phantom_process/unwitnessed_execution
// for unmatched "witnessable" executions, original §4.L:
//
//	phantom_process (critical) when the action is exec-like,
//	else unwitnessed_execution, severity critical if risk.score >= 7 else warning.
func FindingsFromUnmatchedExecutions(execs []*logstream.Execution) []Finding {
	var findings []Finding
	for _, e := range execs {
		if !isWitnessable(e.Action.Type) {
			continue
		}
		if execLikeActionTypes[e.Action.Type] {
			findings = append(findings, Finding{
				Kind:        KindPhantomProcess,
				Severity:    SeverityCritical,
				Detail:      fmt.Sprintf("no process-spawn witness observed for %s %q within window", e.Action.Type, e.Action.Target),
				ExecutionID: e.ID,
			})
			continue
		}
		severity := SeverityWarning
		if e.Risk.Score >= 7 {
			severity = SeverityCritical
		}
		findings = append(findings, Finding{
			Kind:        KindUnwitnessedExecution,
			Severity:    severity,
			Detail:      fmt.Sprintf("no witness corroboration for %s %q", e.Action.Type, e.Action.Target),
			ExecutionID: e.ID,
		})
	}
	return findings
}

// FindingsFromAgentWitnesses emits silent_file_access/silent_network/
// unlogged_observation for agent-bucket unmatched witnesses, original
// §4.L: silent_file_access only for sensitive paths.
func FindingsFromAgentWitnesses(witnesses []*logstream.Witness) []Finding {
	var findings []Finding
	for _, w := range witnesses {
		switch w.Source {
		case logstream.SourceFilesystem:
			if isSensitivePath(w.Event.Path) {
				findings = append(findings, Finding{
					Kind:      KindSilentFileAccess,
					Severity:  SeverityWarning,
					Detail:    fmt.Sprintf("unwitnessed filesystem event on sensitive path %q", w.Event.Path),
					WitnessID: w.ID,
				})
			}
		case logstream.SourceNetwork:
			findings = append(findings, Finding{
				Kind:      KindSilentNetwork,
				Severity:  SeverityWarning,
				Detail:    fmt.Sprintf("unwitnessed connection to %s", w.Event.RemoteHost),
				WitnessID: w.ID,
			})
		case logstream.SourceProcess:
			if w.Event.Type == logstream.ProcessSpawned {
				findings = append(findings, Finding{
					Kind:      KindUnloggedObservation,
					Severity:  SeverityInfo,
					Detail:    fmt.Sprintf("process spawn %q observed with no matching execution", w.Event.Command),
					WitnessID: w.ID,
				})
			}
		}
	}
	return findings
}
