package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agenttrust/agenttrust/internal/logstream"
	"github.com/agenttrust/agenttrust/internal/wsconfig"
)

var verifyStream string

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a stream's hash chain",
	Long: `Re-reads a stream directly off disk and reports every parse error, hash
mismatch, and chain break found, without stopping at the first one.`,
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().StringVar(&verifyStream, "stream", "", "claims|ledger|witness (required)")
	verifyCmd.MarkFlagRequired("stream")
}

func runVerify(cmd *cobra.Command, args []string) error {
	l := layout()
	if err := requireWorkspace(l); err != nil {
		return err
	}

	report, err := verifyNamedStream(l, verifyStream)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}

	fmt.Printf("%s: checked %d files, %d entries, valid=%v\n", report.Kind, report.FilesChecked, report.EntriesChecked, report.Valid)
	for _, f := range report.Findings {
		fmt.Printf("  [%s] %s:%d id=%s %s\n", f.Kind, f.File, f.Line, f.ID, f.Detail)
	}
	if !report.Valid {
		return fmt.Errorf("verify: %s chain failed integrity check", report.Kind)
	}
	return nil
}

func verifyNamedStream(l wsconfig.Layout, name string) (logstream.IntegrityReport, error) {
	switch name {
	case wsconfig.ClaimKind:
		return logstream.VerifyStream[*logstream.Claim](l.Claims, wsconfig.ClaimKind)
	case wsconfig.ExecutionKind:
		return logstream.VerifyStream[*logstream.Execution](l.Ledger, wsconfig.ExecutionKind)
	case wsconfig.WitnessKind:
		return logstream.VerifyStream[*logstream.Witness](l.Witness, wsconfig.WitnessKind)
	default:
		return logstream.IntegrityReport{}, fmt.Errorf("unknown stream %q, want one of claims|ledger|witness", name)
	}
}
