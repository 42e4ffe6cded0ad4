package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agenttrust/agenttrust/internal/classify"
	"github.com/agenttrust/agenttrust/internal/consistency"
	"github.com/agenttrust/agenttrust/internal/logstream"
	"github.com/agenttrust/agenttrust/internal/trust"
	"github.com/agenttrust/agenttrust/internal/wsconfig"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Compose the full trust verdict",
	Long: `Runs the complete pipeline: verifies all three chains, correlates
witness events to executions, classifies the leftover witness noise,
pairs claims to executions and checks their consistency, and composes
the weighted (integrity, consistency, witnessConfidence) trust verdict.`,
	RunE: runScore,
}

func runScore(cmd *cobra.Command, args []string) error {
	l := layout()
	if err := requireWorkspace(l); err != nil {
		return err
	}
	cfg, err := loadConfig(l)
	if err != nil {
		return fmt.Errorf("score: loading config: %w", err)
	}

	claims, executions, witnesses, err := loadStreams(l)
	if err != nil {
		return fmt.Errorf("score: %w", err)
	}

	claimReport, err := logstream.VerifyStream[*logstream.Claim](l.Claims, wsconfig.ClaimKind)
	if err != nil {
		return fmt.Errorf("score: verifying claims: %w", err)
	}
	execReport, err := logstream.VerifyStream[*logstream.Execution](l.Ledger, wsconfig.ExecutionKind)
	if err != nil {
		return fmt.Errorf("score: verifying ledger: %w", err)
	}
	witnessReport, err := logstream.VerifyStream[*logstream.Witness](l.Witness, wsconfig.WitnessKind)
	if err != nil {
		return fmt.Errorf("score: verifying witness: %w", err)
	}
	integrity := trust.IntegrityScore(claimReport, execReport, witnessReport)

	fileResult, procResult, netResult, unmatchedExecs := correlateAll(executions, witnesses)

	unmatchedWitnesses := append(append(append([]*logstream.Witness{},
		fileResult.UnmatchedWitnesses...),
		procResult.UnmatchedWitnesses...),
		netResult.UnmatchedWitnesses...)

	infraPatterns := append([]classify.InfraPattern{}, classify.BuiltinInfraPatterns...)
	infraPatterns = append(infraPatterns, cfg.InfraPatterns()...)
	agentWitnesses, backgroundWitnesses, infraWitnesses := classify.ClassifyAll(
		unmatchedWitnesses, classify.SystemProcessExclusions, infraPatterns)

	findings := trust.FindingsFromMatches(fileResult, procResult, netResult)
	findings = append(findings, trust.FindingsFromUnmatchedExecutions(unmatchedExecs)...)
	findings = append(findings, trust.FindingsFromAgentWitnesses(agentWitnesses)...)

	witnessConfidence := trust.WitnessConfidence(
		len(witnesses), len(backgroundWitnesses), len(infraWitnesses), len(executions), findings)

	pairs := consistency.PairByClaimID(claims, executions)
	consistencyFindings, consistencyScore := consistency.AnalyzeAll(pairs)

	verdict := trust.ComposeVerdict(trust.Components{
		Integrity:         integrity,
		Consistency:       consistencyScore,
		WitnessConfidence: witnessConfidence,
	})

	printScoreReport(verdict, findings, consistencyFindings, agentWitnesses, backgroundWitnesses, infraWitnesses)
	return nil
}

func printScoreReport(
	v trust.Verdict,
	findings []trust.Finding,
	consistencyFindings []consistency.Finding,
	agentWitnesses, backgroundWitnesses, infraWitnesses []*logstream.Witness,
) {
	fmt.Printf("trust score: %d (%s)\n", v.TrustScore, v.Level)
	fmt.Printf("  integrity=%d consistency=%d witnessConfidence=%d\n",
		v.Components.Integrity, v.Components.Consistency, v.Components.WitnessConfidence)
	fmt.Printf("  %s\n\n", v.Explanation)

	fmt.Printf("witness noise: %d agent, %d background, %d infrastructure\n\n",
		len(agentWitnesses), len(backgroundWitnesses), len(infraWitnesses))

	fmt.Printf("%d finding(s):\n", len(findings))
	for _, f := range findings {
		fmt.Printf("  [%s] %s: %s\n", f.Severity, f.Kind, f.Detail)
	}

	fmt.Printf("\n%d consistency finding(s):\n", len(consistencyFindings))
	for _, f := range consistencyFindings {
		fmt.Printf("  %s: %s\n", f.Kind, f.Detail)
	}
}

