package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agenttrust/agenttrust/internal/correlate"
	"github.com/agenttrust/agenttrust/internal/logstream"
	"github.com/agenttrust/agenttrust/internal/wsconfig"
)

var correlateCmd = &cobra.Command{
	Use:   "correlate",
	Short: "Match witness events to executions and report discrepancies",
	Long: `Loads every claim/execution/witness entry, matches filesystem, process,
and network witness events to the executions that should have produced
them within each source's time window, and prints the matches,
discrepancies, and unmatched entries on both sides.`,
	RunE: runCorrelate,
}

// loadStreams opens and fully reads the three streams. Returned slices are
// nil, not an error, for a stream with no entries yet.
func loadStreams(l wsconfig.Layout) ([]*logstream.Claim, []*logstream.Execution, []*logstream.Witness, error) {
	claimStream, err := logstream.Open[*logstream.Claim](l.Claims, wsconfig.ClaimKind)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening claims: %w", err)
	}
	defer claimStream.Close()
	claims, err := claimStream.ReadAll()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("reading claims: %w", err)
	}

	execStream, err := logstream.Open[*logstream.Execution](l.Ledger, wsconfig.ExecutionKind)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening ledger: %w", err)
	}
	defer execStream.Close()
	executions, err := execStream.ReadAll()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("reading ledger: %w", err)
	}

	witnessStream, err := logstream.Open[*logstream.Witness](l.Witness, wsconfig.WitnessKind)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening witness: %w", err)
	}
	defer witnessStream.Close()
	witnesses, err := witnessStream.ReadAll()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("reading witness: %w", err)
	}

	return claims, executions, witnesses, nil
}

// splitBySource partitions witnesses by source so each correlator only
// ever sees the events it's eligible to match — feeding the whole list to
// all three would make each correlator's UnmatchedWitnesses include the
// other two sources' events, which would double-count on merge.
func splitBySource(witnesses []*logstream.Witness) (fs, proc, net []*logstream.Witness) {
	for _, w := range witnesses {
		switch w.Source {
		case logstream.SourceFilesystem:
			fs = append(fs, w)
		case logstream.SourceProcess:
			proc = append(proc, w)
		case logstream.SourceNetwork:
			net = append(net, w)
		}
	}
	return fs, proc, net
}

// correlateAll runs the three correlators over source-partitioned
// witnesses against the full execution set, and also computes the
// executions left globally unmatched (not matched by any of the three).
func correlateAll(executions []*logstream.Execution, witnesses []*logstream.Witness) (file, proc, net correlate.Result, globalUnmatchedExecs []*logstream.Execution) {
	fsW, procW, netW := splitBySource(witnesses)

	file = correlate.CorrelateFiles(fsW, executions)
	proc = correlate.CorrelateProcesses(procW, executions)
	net = correlate.CorrelateNetwork(netW, executions)

	matched := make(map[string]bool)
	for _, r := range []correlate.Result{file, proc, net} {
		for _, m := range r.Matches {
			matched[m.Execution.ID] = true
		}
	}
	for _, e := range executions {
		if !matched[e.ID] {
			globalUnmatchedExecs = append(globalUnmatchedExecs, e)
		}
	}

	return file, proc, net, globalUnmatchedExecs
}

func runCorrelate(cmd *cobra.Command, args []string) error {
	l := layout()
	if err := requireWorkspace(l); err != nil {
		return err
	}

	_, executions, witnesses, err := loadStreams(l)
	if err != nil {
		return fmt.Errorf("correlate: %w", err)
	}

	file, proc, net, unmatchedExecs := correlateAll(executions, witnesses)

	printCorrelatorResult("file", file)
	printCorrelatorResult("process", proc)
	printCorrelatorResult("network", net)

	fmt.Printf("\n%d execution(s) unmatched by any correlator:\n", len(unmatchedExecs))
	for _, e := range unmatchedExecs {
		fmt.Printf("  - %s %s %q\n", e.ID, e.Action.Type, e.Action.Target)
	}
	return nil
}

func printCorrelatorResult(label string, r correlate.Result) {
	fmt.Printf("%s correlator: %d match(es), %d unmatched execution(s), %d unmatched witness(es)\n",
		label, len(r.Matches), len(r.UnmatchedExecutions), len(r.UnmatchedWitnesses))
	for _, m := range r.Matches {
		fmt.Printf("  witness %s <-> execution %s (confidence %d)\n", m.Witness.ID, m.Execution.ID, m.Confidence)
		for _, d := range m.Discrepancies {
			fmt.Printf("    [%s] %s: %s\n", d.Severity, d.Kind, d.Detail)
		}
	}
}
