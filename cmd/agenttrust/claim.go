package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agenttrust/agenttrust/internal/logstream"
	"github.com/agenttrust/agenttrust/internal/wsconfig"
)

var (
	claimAgent           string
	claimSession         string
	claimPlannedAction   string
	claimPlannedTarget   string
	claimGoal            string
	claimExpectedOutcome string
	claimSelfRisk        int
	claimWithinScope     bool
	claimRequiresElev    bool
	claimExternalComms   bool
	claimInvolvesFin     bool
)

var claimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Record a declared intent before acting",
	Long: `Appends a claim entry: the agent's declared plan (action, target, goal,
expected outcome, self-assessed risk) and the scope constraints it is
promising to stay within.`,
	RunE: runClaim,
}

func init() {
	f := claimCmd.Flags()
	f.StringVar(&claimAgent, "agent", "", "agent identifier (required)")
	f.StringVar(&claimSession, "session", "", "session identifier (required)")
	f.StringVar(&claimPlannedAction, "action", "", "planned action type, e.g. file.write (required)")
	f.StringVar(&claimPlannedTarget, "target", "", "planned target, e.g. a path or URL (required)")
	f.StringVar(&claimGoal, "goal", "", "declared goal for this action")
	f.StringVar(&claimExpectedOutcome, "expected-outcome", "unknown", "success|partial|unknown")
	f.IntVar(&claimSelfRisk, "self-risk", 0, "self-assessed risk, 0-10")
	f.BoolVar(&claimWithinScope, "within-scope", true, "whether the agent considers this within its authorized scope")
	f.BoolVar(&claimRequiresElev, "requires-elevation", false, "whether this action requires elevated privilege")
	f.BoolVar(&claimExternalComms, "external-comms", false, "whether this action involves external communication")
	f.BoolVar(&claimInvolvesFin, "financial", false, "whether this action involves a financial transaction")
	claimCmd.MarkFlagRequired("agent")
	claimCmd.MarkFlagRequired("session")
	claimCmd.MarkFlagRequired("action")
	claimCmd.MarkFlagRequired("target")
}

func runClaim(cmd *cobra.Command, args []string) error {
	l := layout()
	if err := requireWorkspace(l); err != nil {
		return err
	}

	stream, err := logstream.Open[*logstream.Claim](l.Claims, wsconfig.ClaimKind)
	if err != nil {
		return fmt.Errorf("claim: opening stream: %w", err)
	}
	defer stream.Close()

	entry := &logstream.Claim{
		ClaimPayload: logstream.ClaimPayload{
			Agent:   claimAgent,
			Session: claimSession,
			Intent: logstream.Intent{
				PlannedAction:    claimPlannedAction,
				PlannedTarget:    claimPlannedTarget,
				Goal:             claimGoal,
				ExpectedOutcome:  claimExpectedOutcome,
				SelfAssessedRisk: claimSelfRisk,
			},
			Constraints: logstream.Constraints{
				WithinScope:           claimWithinScope,
				RequiresElevation:     claimRequiresElev,
				InvolvesExternalComms: claimExternalComms,
				InvolvesFinancial:     claimInvolvesFin,
			},
		},
	}

	if err := stream.Append(entry); err != nil {
		return fmt.Errorf("claim: appending: %w", err)
	}

	fmt.Printf("claim %s recorded (hash %s)\n", entry.ID, entry.Hash)
	return nil
}
