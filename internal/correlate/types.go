// Package correlate implements the three source correlators, original
// §4.J: they match witness observations to agent executions within a
// time window and score the pairing, flagging discrepancies.
package correlate

import (
	"time"

	"github.com/agenttrust/agenttrust/internal/logstream"
)

// Discrepancy severities, original §4.J/§4.L.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Discrepancy kinds the correlators emit.
const (
	DiscrepancyTiming   = "timing_discrepancy"
	DiscrepancyTarget   = "target_discrepancy"
	DiscrepancyEvidence = "evidence_mismatch"
)

// Discrepancy is one scoring deduction attached to a Match.
type Discrepancy struct {
	Kind     string `json:"kind"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}

// Match pairs one witness entry with one execution within a correlator's
// time window, original §4.J.
type Match struct {
	Witness       *logstream.Witness
	Execution     *logstream.Execution
	Confidence    int
	Discrepancies []Discrepancy
}

// Result is one correlator's full output: matches plus the entries left
// over on both sides.
type Result struct {
	Matches              []Match
	UnmatchedExecutions  []*logstream.Execution
	UnmatchedWitnesses   []*logstream.Witness
}

func ts(h logstream.Header) time.Time {
	t, err := h.Timestamp()
	if err != nil {
		return time.Time{}
	}
	return t
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
