package correlate

import (
	"sort"
	"time"

	"github.com/agenttrust/agenttrust/internal/logstream"
)

// pairCandidate is one witness/execution pair that passed a correlator's
// eligibility test and time window, original §4.J.
type pairCandidate struct {
	wIdx int
	eIdx int
	skew time.Duration
}

// scoreFunc computes a Match's confidence and discrepancies for one
// accepted pair.
type scoreFunc func(w *logstream.Witness, e *logstream.Execution, skew time.Duration) (int, []Discrepancy)

// greedyMatch pairs witnesses with executions: it builds every eligible
// candidate pair within window, orders them by ascending time skew (ties
// broken by the lower witness id, original §4.J's tie-break rule common
// to all three correlators), and greedily accepts each pair whose witness
// and execution are both still unmatched.
func greedyMatch(
	witnesses []*logstream.Witness,
	executions []*logstream.Execution,
	window time.Duration,
	eligible func(w *logstream.Witness, e *logstream.Execution) bool,
	score scoreFunc,
) Result {
	var candidates []pairCandidate
	for wi, w := range witnesses {
		wt := ts(w.Header)
		for ei, e := range executions {
			if !eligible(w, e) {
				continue
			}
			skew := absDuration(wt.Sub(ts(e.Header)))
			if skew > window {
				continue
			}
			candidates = append(candidates, pairCandidate{wIdx: wi, eIdx: ei, skew: skew})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].skew != candidates[j].skew {
			return candidates[i].skew < candidates[j].skew
		}
		return witnesses[candidates[i].wIdx].ID < witnesses[candidates[j].wIdx].ID
	})

	wMatched := make([]bool, len(witnesses))
	eMatched := make([]bool, len(executions))
	var matches []Match

	for _, c := range candidates {
		if wMatched[c.wIdx] || eMatched[c.eIdx] {
			continue
		}
		wMatched[c.wIdx] = true
		eMatched[c.eIdx] = true

		w := witnesses[c.wIdx]
		e := executions[c.eIdx]
		confidence, discrepancies := score(w, e, c.skew)
		matches = append(matches, Match{
			Witness:       w,
			Execution:     e,
			Confidence:    confidence,
			Discrepancies: discrepancies,
		})
	}

	var unmatchedW []*logstream.Witness
	for i, w := range witnesses {
		if !wMatched[i] {
			unmatchedW = append(unmatchedW, w)
		}
	}
	var unmatchedE []*logstream.Execution
	for i, e := range executions {
		if !eMatched[i] {
			unmatchedE = append(unmatchedE, e)
		}
	}

	return Result{Matches: matches, UnmatchedExecutions: unmatchedE, UnmatchedWitnesses: unmatchedW}
}

func clampConfidence(c int) int {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}
