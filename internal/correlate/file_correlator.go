package correlate

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/agenttrust/agenttrust/internal/logstream"
)

const fileWindow = 10 * time.Second

var fileActionTypes = map[string]bool{
	"file.read":   true,
	"file.write":  true,
	"file.delete": true,
}

// CorrelateFiles matches filesystem witness events to file.* executions,
// original §4.J.
func CorrelateFiles(witnesses []*logstream.Witness, executions []*logstream.Execution) Result {
	return greedyMatch(witnesses, executions, fileWindow, fileEligible, scoreFileMatch)
}

func fileEligible(w *logstream.Witness, e *logstream.Execution) bool {
	if w.Source != logstream.SourceFilesystem {
		return false
	}
	if !fileActionTypes[e.Action.Type] {
		return false
	}
	return pathsMatch(w.Event.Path, e.Action.Target)
}

// pathsMatch accepts an exact match, a suffix match in either direction
// (a claim's target is often a relative path, a witness path absolute),
// or plain basename equality as a last resort.
func pathsMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	if hasPathSuffix(a, b) || hasPathSuffix(b, a) {
		return true
	}
	return filepath.Base(a) == filepath.Base(b)
}

func hasPathSuffix(full, suffix string) bool {
	if len(suffix) >= len(full) {
		return false
	}
	return full[len(full)-len(suffix):] == suffix
}

// fileTargetMismatch flags a witness event type that contradicts the
// claimed action, e.g. a file_deleted observation for a declared
// file.write. Reads leave no distinctive fsnotify event of their own, so
// no mismatch check applies to file.read.
func fileTargetMismatch(actionType, witnessType string) bool {
	switch actionType {
	case "file.delete":
		return witnessType != logstream.FileDeleted
	case "file.write":
		return witnessType == logstream.FileDeleted
	default:
		return false
	}
}

func scoreFileMatch(w *logstream.Witness, e *logstream.Execution, skew time.Duration) (int, []Discrepancy) {
	confidence := 100
	var discrepancies []Discrepancy

	if skew > 5*time.Second {
		discrepancies = append(discrepancies, Discrepancy{
			Kind:     DiscrepancyTiming,
			Severity: SeverityInfo,
			Detail:   fmt.Sprintf("witness observed %s from claimed execution", skew.Round(time.Millisecond)),
		})
		confidence -= 5
	}

	if fileTargetMismatch(e.Action.Type, w.Event.Type) {
		discrepancies = append(discrepancies, Discrepancy{
			Kind:     DiscrepancyTarget,
			Severity: SeverityCritical,
			Detail:   fmt.Sprintf("witness event %q does not match action %q", w.Event.Type, e.Action.Type),
		})
		confidence = 70
	}

	claimedPrefix, haveClaimed := nestedString(e.Meta, "fileEvidence", "contentHashPrefix")
	if haveClaimed && w.Event.Stat != nil && w.Event.Stat.ContentHashPrefix != "" && claimedPrefix != w.Event.Stat.ContentHashPrefix {
		discrepancies = append(discrepancies, Discrepancy{
			Kind:     DiscrepancyEvidence,
			Severity: SeverityWarning,
			Detail:   "claimed content hash prefix does not match the observed file content",
		})
		confidence -= 20
	}

	return clampConfidence(confidence), discrepancies
}
