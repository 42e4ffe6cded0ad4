package ruleengine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/agenttrust/agenttrust/internal/logstream"
)

func execEntry(actionType, target, detail string, risk int) *logstream.Execution {
	return &logstream.Execution{
		ExecutionPayload: logstream.ExecutionPayload{
			Action: logstream.Action{Type: actionType, Target: target, Detail: detail},
			Risk:   logstream.Risk{Score: risk},
		},
	}
}

func TestNew_NoCustomFileLoadsOnlyBuiltins(t *testing.T) {
	e, err := New(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(e.rules) != len(builtinRules()) {
		t.Fatalf("expected %d builtin rules, got %d", len(builtinRules()), len(e.rules))
	}
}

func TestEvaluate_SSHKeyAccessMatches(t *testing.T) {
	e, err := New("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entry := execEntry(logstream.ActionFileRead, "/home/u/.ssh/id_rsa", "", 1)
	matches := e.Evaluate(entry, Context{})
	found := false
	for _, m := range matches {
		if m.RuleID == "sensitive_ssh_key_access" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected sensitive_ssh_key_access match, got %+v", matches)
	}
}

func TestEvaluate_DestructiveCommandRegex(t *testing.T) {
	e, err := New("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entry := execEntry(logstream.ActionExecCommand, "rm -rf /", "", 5)
	matches := e.Evaluate(entry, Context{})
	if len(matches) == 0 || matches[0].RuleID != "destructive_command" {
		t.Fatalf("expected destructive_command match, got %+v", matches)
	}
}

func TestEvaluate_BenignEntryMatchesNothing(t *testing.T) {
	e, err := New("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entry := execEntry(logstream.ActionFileRead, "/tmp/notes.txt", "", 1)
	if matches := e.Evaluate(entry, Context{}); len(matches) != 0 {
		t.Fatalf("expected no matches, got %+v", matches)
	}
}

func TestEvaluate_UnknownRecipientFlagged(t *testing.T) {
	e, err := New("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entry := execEntry(logstream.ActionAPICall, "https://sketchy.example.com/exfil", "", 1)
	ctx := Context{KnownTargets: []string{"api.anthropic.com", "api.github.com"}}
	matches := e.Evaluate(entry, ctx)
	found := false
	for _, m := range matches {
		if m.RuleID == "unknown_recipient" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected unknown_recipient match, got %+v", matches)
	}
}

func TestEvaluate_KnownRecipientNotFlagged(t *testing.T) {
	e, err := New("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entry := execEntry(logstream.ActionAPICall, "https://api.anthropic.com/v1/messages", "", 1)
	ctx := Context{KnownTargets: []string{"anthropic.com"}}
	matches := e.Evaluate(entry, ctx)
	for _, m := range matches {
		if m.RuleID == "unknown_recipient" {
			t.Fatalf("did not expect unknown_recipient match, got %+v", matches)
		}
	}
}

func TestEvaluateBatch_AggregatesCounts(t *testing.T) {
	e, err := New("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entries := []*logstream.Execution{
		execEntry(logstream.ActionFileRead, "/home/u/.ssh/id_rsa", "", 1),
		execEntry(logstream.ActionExecCommand, "rm -rf /", "", 9),
		execEntry(logstream.ActionFileRead, "/tmp/a.txt", "", 1),
	}
	result := e.EvaluateBatch(entries, nil)
	if result.EntriesEvaluated != 3 {
		t.Fatalf("expected 3 entries evaluated, got %d", result.EntriesEvaluated)
	}
	if result.TotalMatches != 2 {
		t.Fatalf("expected 2 total matches, got %d (%+v)", result.TotalMatches, result.Matches)
	}
	if result.MatchesBySeverity[SeverityCritical] != 2 {
		t.Fatalf("expected 2 critical matches, got %d", result.MatchesBySeverity[SeverityCritical])
	}
}

func TestNew_CustomRuleCanDisableBuiltin(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := []byte("disableBuiltin:\n  sensitive_ssh_key_access: true\nrules:\n  - id: custom_one\n    severity: low\n    reason: custom rule\n    riskContribution: 1\n    match:\n      actionTypes: [\"file.read\"]\n      targetContains: [\"custom-marker\"]\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	e, err := New(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, r := range e.rules {
		if r.ID == "sensitive_ssh_key_access" {
			t.Fatalf("expected builtin to be disabled")
		}
	}
	entry := execEntry(logstream.ActionFileRead, "/tmp/custom-marker", "", 1)
	matches := e.Evaluate(entry, Context{})
	if len(matches) != 1 || matches[0].RuleID != "custom_one" {
		t.Fatalf("expected custom rule match, got %+v", matches)
	}
}
