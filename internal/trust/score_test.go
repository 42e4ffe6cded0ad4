package trust

import "testing"

func TestWitnessConfidence_NoActivityIsPerfect(t *testing.T) {
	if got := WitnessConfidence(0, 0, 0, 0, nil); got != 100 {
		t.Fatalf("expected 100, got %d", got)
	}
}

func TestWitnessConfidence_ExecutionsWithNoWitnessActivityIsFifty(t *testing.T) {
	if got := WitnessConfidence(0, 0, 0, 3, nil); got != 50 {
		t.Fatalf("expected 50, got %d", got)
	}
}

func TestWitnessConfidence_BoundaryAtFivePercent(t *testing.T) {
	// 5/100 = 0.05 exactly -> no proportional penalty.
	findings := make([]Finding, 5)
	for i := range findings {
		findings[i] = Finding{Kind: KindUnwitnessedExecution, Severity: SeverityWarning}
	}
	got := WitnessConfidence(100, 0, 0, 10, findings)
	if got != 100 {
		t.Fatalf("expected 100 at r=0.05 boundary, got %d", got)
	}
}

func TestWitnessConfidence_BoundaryAtTwentyPercent(t *testing.T) {
	findings := make([]Finding, 20)
	for i := range findings {
		findings[i] = Finding{Kind: KindUnwitnessedExecution, Severity: SeverityWarning}
	}
	got := WitnessConfidence(100, 0, 0, 10, findings)
	if got != 80 {
		t.Fatalf("expected 80 (penalty 20) at r=0.20 boundary, got %d", got)
	}
}

func TestWitnessConfidence_FullyUnmatchedClampsAtZero(t *testing.T) {
	findings := make([]Finding, 100)
	for i := range findings {
		findings[i] = Finding{Kind: KindUnwitnessedExecution, Severity: SeverityWarning}
	}
	got := WitnessConfidence(100, 0, 0, 10, findings)
	if got != 0 {
		t.Fatalf("expected 0 (penalty 180 clamped), got %d", got)
	}
}

func TestWitnessConfidence_PhantomAndEvidencePenaltiesAreFixed(t *testing.T) {
	findings := []Finding{
		{Kind: KindPhantomProcess, Severity: SeverityCritical},
		{Kind: KindEvidenceMismatch, Severity: SeverityWarning},
	}
	// totalAgentEvents large enough that proportional penalty stays 0.
	got := WitnessConfidence(100, 0, 0, 10, findings)
	if got != 70 {
		t.Fatalf("expected 100-15-15=70, got %d", got)
	}
}

func TestWitnessConfidence_InfrastructureAndBackgroundExcludedFromAgentTotal(t *testing.T) {
	// 20 infra + 5 background, 0 agent events, 0 executions -> no agent
	// activity and no executions -> perfect score.
	got := WitnessConfidence(25, 5, 20, 0, nil)
	if got != 100 {
		t.Fatalf("expected 100, got %d", got)
	}
}

func TestComposeVerdict_Verified(t *testing.T) {
	v := ComposeVerdict(Components{Integrity: 100, Consistency: 100, WitnessConfidence: 100})
	if v.Level != LevelVerified || v.TrustScore != 100 {
		t.Fatalf("expected verified/100, got %s/%d", v.Level, v.TrustScore)
	}
}

func TestComposeVerdict_UntrustedOnZeroComponent(t *testing.T) {
	v := ComposeVerdict(Components{Integrity: 0, Consistency: 90, WitnessConfidence: 90})
	if v.Level != LevelUntrusted {
		t.Fatalf("expected untrusted, got %s", v.Level)
	}
}

func TestComposeVerdict_High(t *testing.T) {
	v := ComposeVerdict(Components{Integrity: 100, Consistency: 85, WitnessConfidence: 85})
	if v.Level != LevelHigh {
		t.Fatalf("expected high, got %s (score %d)", v.Level, v.TrustScore)
	}
}

func TestComposeVerdict_Moderate(t *testing.T) {
	v := ComposeVerdict(Components{Integrity: 70, Consistency: 65, WitnessConfidence: 65})
	if v.Level != LevelModerate {
		t.Fatalf("expected moderate, got %s (score %d)", v.Level, v.TrustScore)
	}
}

func TestComposeVerdict_Low(t *testing.T) {
	v := ComposeVerdict(Components{Integrity: 50, Consistency: 45, WitnessConfidence: 40})
	if v.Level != LevelLow {
		t.Fatalf("expected low, got %s (score %d)", v.Level, v.TrustScore)
	}
}

func TestComposeVerdict_PhantomProcessKeepsLevelAtOrBelowHigh(t *testing.T) {
	// Scenario S2: phantom process drops witness confidence to 100-15=85
	// when there is other agent witness activity (20 events, so the one
	// unmatched finding is a 5% ratio with no proportional penalty), others
	// perfect. The level stays at or below high, never verified.
	wc := WitnessConfidence(20, 0, 0, 1, []Finding{{Kind: KindPhantomProcess, Severity: SeverityCritical}})
	if wc != 85 {
		t.Fatalf("expected witness confidence 85 per scenario S2, got %d", wc)
	}
	v := ComposeVerdict(Components{Integrity: 100, Consistency: 100, WitnessConfidence: wc})
	if v.Level == LevelVerified {
		t.Fatalf("expected not verified with a phantom process present, got %s", v.Level)
	}
}

func TestIntegrityScore_AllValid(t *testing.T) {
	if got := IntegrityScore(validReport(), validReport()); got != 100 {
		t.Fatalf("expected 100, got %d", got)
	}
}

func TestIntegrityScore_AnyInvalidFailsAll(t *testing.T) {
	if got := IntegrityScore(validReport(), invalidReport()); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}
