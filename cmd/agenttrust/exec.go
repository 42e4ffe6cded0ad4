package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agenttrust/agenttrust/internal/logstream"
	"github.com/agenttrust/agenttrust/internal/ruleengine"
	"github.com/agenttrust/agenttrust/internal/wsconfig"
)

var (
	execAgent       string
	execSession     string
	execActionType  string
	execTarget      string
	execDetail      string
	execGoal        string
	execTrigger     string
	execOutcome     string
	execDurationMs  int64
	execRisk        int
	execLabels      []string
	execClaimID     string
	execKnownTarget []string
)

var execCmd = &cobra.Command{
	Use:   "exec",
	Short: "Record an actual execution",
	Long: `Appends an execution entry for an action the agent actually took, then
runs it through the rule engine: any matched rule raises the recorded
risk score and labels and sets autoFlagged.`,
	RunE: runExec,
}

func init() {
	f := execCmd.Flags()
	f.StringVar(&execAgent, "agent", "", "agent identifier (required)")
	f.StringVar(&execSession, "session", "", "session identifier (required)")
	f.StringVar(&execActionType, "action", "", "action type, e.g. exec.command (required)")
	f.StringVar(&execTarget, "target", "", "target acted upon (required)")
	f.StringVar(&execDetail, "detail", "", "free-text detail of the action")
	f.StringVar(&execGoal, "goal", "", "declared goal for this action")
	f.StringVar(&execTrigger, "trigger", "", "what triggered this action")
	f.StringVar(&execOutcome, "outcome", logstream.OutcomeSuccess, "success|failure|partial|blocked")
	f.Int64Var(&execDurationMs, "duration-ms", 0, "how long the action took, in milliseconds")
	f.IntVar(&execRisk, "risk", 0, "self-reported risk, 0-10, before rule evaluation")
	f.StringSliceVar(&execLabels, "labels", nil, "free-form risk labels")
	f.StringVar(&execClaimID, "claim-id", "", "id of the claim this execution fulfills")
	f.StringSliceVar(&execKnownTarget, "known-target", nil, "allowlisted external-comms target (repeatable)")
	execCmd.MarkFlagRequired("agent")
	execCmd.MarkFlagRequired("session")
	execCmd.MarkFlagRequired("action")
	execCmd.MarkFlagRequired("target")
}

func runExec(cmd *cobra.Command, args []string) error {
	l := layout()
	if err := requireWorkspace(l); err != nil {
		return err
	}
	cfg, err := loadConfig(l)
	if err != nil {
		return fmt.Errorf("exec: loading config: %w", err)
	}

	stream, err := logstream.Open[*logstream.Execution](l.Ledger, wsconfig.ExecutionKind)
	if err != nil {
		return fmt.Errorf("exec: opening stream: %w", err)
	}
	defer stream.Close()

	entry := &logstream.Execution{
		ExecutionPayload: logstream.ExecutionPayload{
			Agent:   execAgent,
			Session: execSession,
			Action: logstream.Action{
				Type:   execActionType,
				Target: execTarget,
				Detail: execDetail,
			},
			Context: logstream.Context{
				Goal:    execGoal,
				Trigger: execTrigger,
			},
			Outcome: logstream.Outcome{
				Status:     execOutcome,
				DurationMs: durationPtr(execDurationMs),
			},
			Risk: logstream.Risk{
				Score:  execRisk,
				Labels: execLabels,
			},
		},
	}
	if execClaimID != "" {
		entry.Meta = map[string]any{"claimId": execClaimID}
	}

	engine, err := ruleengine.New(cfg.Rules.Path)
	if err != nil {
		return fmt.Errorf("exec: loading rule engine: %w", err)
	}
	matches := engine.Evaluate(entry, ruleengine.Context{KnownTargets: execKnownTarget})
	applyRuleMatches(entry, matches)

	if err := stream.Append(entry); err != nil {
		return fmt.Errorf("exec: appending: %w", err)
	}

	fmt.Printf("execution %s recorded (hash %s)\n", entry.ID, entry.Hash)
	if len(matches) > 0 {
		fmt.Printf("  %d rule(s) matched:\n", len(matches))
		for _, m := range matches {
			fmt.Printf("  - [%s] %s: %s\n", m.Severity, m.RuleID, m.Reason)
		}
	}
	return nil
}

// applyRuleMatches folds rule engine matches into the execution's risk
// field: the highest single riskContribution raises Risk.Score (never
// lowers the agent's own self-report), matched labels are unioned in,
// and AutoFlagged is set whenever at least one rule matched.
func applyRuleMatches(e *logstream.Execution, matches []ruleengine.Match) {
	if len(matches) == 0 {
		return
	}
	e.Risk.AutoFlagged = true

	seen := make(map[string]bool, len(e.Risk.Labels))
	for _, l := range e.Risk.Labels {
		seen[strings.ToLower(l)] = true
	}

	maxContribution := 0
	for _, m := range matches {
		if m.RiskContribution > maxContribution {
			maxContribution = m.RiskContribution
		}
		for _, l := range m.Labels {
			if !seen[strings.ToLower(l)] {
				e.Risk.Labels = append(e.Risk.Labels, l)
				seen[strings.ToLower(l)] = true
			}
		}
	}
	if maxContribution > e.Risk.Score {
		e.Risk.Score = maxContribution
	}
	if e.Risk.Score > 10 {
		e.Risk.Score = 10
	}
}

func durationPtr(ms int64) *int64 {
	if ms == 0 {
		return nil
	}
	return &ms
}
