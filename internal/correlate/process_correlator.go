package correlate

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/agenttrust/agenttrust/internal/logstream"
)

const processWindow = 5 * time.Second

var execActionTypes = map[string]bool{
	"exec.command": true,
	"exec.script":  true,
}

// CorrelateProcesses matches process_spawned witness events to exec.*
// executions, original §4.J.
func CorrelateProcesses(witnesses []*logstream.Witness, executions []*logstream.Execution) Result {
	return greedyMatch(witnesses, executions, processWindow, processEligible, scoreProcessMatch)
}

func processEligible(w *logstream.Witness, e *logstream.Execution) bool {
	if w.Source != logstream.SourceProcess || w.Event.Type != logstream.ProcessSpawned {
		return false
	}
	if !execActionTypes[e.Action.Type] {
		return false
	}
	return commandsMatch(w.Event.Command, e.Action.Target)
}

// commandsMatch normalizes whitespace and compares the observed command
// line against the claimed one, accepting an exact match, a substring
// containment in either direction, or equality once both sides are
// reduced to their leading command (directory prefix stripped), original
// §4.J.
func commandsMatch(observed, claimed string) bool {
	observed = normalizeCommand(observed)
	claimed = normalizeCommand(claimed)
	if observed == "" || claimed == "" {
		return false
	}
	if observed == claimed {
		return true
	}
	if strings.Contains(observed, claimed) || strings.Contains(claimed, observed) {
		return true
	}
	return baseCommand(observed) == baseCommand(claimed)
}

func normalizeCommand(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func baseCommand(cmdline string) string {
	first := cmdline
	if i := strings.IndexByte(cmdline, ' '); i >= 0 {
		first = cmdline[:i]
	}
	return filepath.Base(first)
}

func scoreProcessMatch(w *logstream.Witness, e *logstream.Execution, skew time.Duration) (int, []Discrepancy) {
	confidence := 100
	var discrepancies []Discrepancy

	if skew > 2*time.Second {
		discrepancies = append(discrepancies, Discrepancy{
			Kind:     DiscrepancyTiming,
			Severity: SeverityInfo,
			Detail:   fmt.Sprintf("witness observed spawn %s from claimed execution", skew.Round(time.Millisecond)),
		})
		confidence -= 5
	}

	if claimedPID, ok := nestedNumber(e.Meta, "processEvidence", "pid"); ok && int(claimedPID) != w.Event.PID {
		discrepancies = append(discrepancies, Discrepancy{
			Kind:     DiscrepancyEvidence,
			Severity: SeverityWarning,
			Detail:   fmt.Sprintf("claimed pid %d does not match observed pid %d", int(claimedPID), w.Event.PID),
		})
		confidence -= 15
	}

	return clampConfidence(confidence), discrepancies
}
