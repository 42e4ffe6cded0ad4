package logstream

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func newClaimStream(t *testing.T) *Stream[*Claim] {
	t.Helper()
	s, err := Open[*Claim](t.TempDir(), "claims")
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestStream_Append_FillsHeaderAndChains(t *testing.T) {
	s := newClaimStream(t)

	c1 := &Claim{ClaimPayload: ClaimPayload{Agent: "a1", Session: "s1"}}
	if err := s.Append(c1); err != nil {
		t.Fatal(err)
	}
	if c1.ID == "" || len(c1.ID) != 26 {
		t.Errorf("expected a 26-char ULID id, got %q", c1.ID)
	}
	if c1.PrevHash != "" {
		t.Errorf("expected empty genesis prevHash, got %q", c1.PrevHash)
	}
	if c1.Hash == "" {
		t.Error("expected a computed hash")
	}

	c2 := &Claim{ClaimPayload: ClaimPayload{Agent: "a1", Session: "s1"}}
	if err := s.Append(c2); err != nil {
		t.Fatal(err)
	}
	if c2.PrevHash != c1.Hash {
		t.Errorf("expected c2.prevHash == c1.hash, got %q != %q", c2.PrevHash, c1.Hash)
	}
	if c2.ID <= c1.ID {
		t.Errorf("expected monotonically increasing ids, got %q then %q", c1.ID, c2.ID)
	}
}

func TestStream_Append_RecoversLastHashAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open[*Claim](dir, "claims")
	if err != nil {
		t.Fatal(err)
	}
	c1 := &Claim{ClaimPayload: ClaimPayload{Agent: "a1"}}
	if err := s1.Append(c1); err != nil {
		t.Fatal(err)
	}

	s2, err := Open[*Claim](dir, "claims")
	if err != nil {
		t.Fatal(err)
	}
	if s2.LastHash() != c1.Hash {
		t.Errorf("expected recovered lastHash %q, got %q", c1.Hash, s2.LastHash())
	}

	c2 := &Claim{ClaimPayload: ClaimPayload{Agent: "a1"}}
	if err := s2.Append(c2); err != nil {
		t.Fatal(err)
	}
	if c2.PrevHash != c1.Hash {
		t.Error("expected reopened stream to chain from the prior process's last entry")
	}
}

func TestStream_ReadAll(t *testing.T) {
	s := newClaimStream(t)
	for i := 0; i < 3; i++ {
		if err := s.Append(&Claim{ClaimPayload: ClaimPayload{Agent: "a1"}}); err != nil {
			t.Fatal(err)
		}
	}
	all, err := s.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
}

func TestVerifyStream_ValidChain(t *testing.T) {
	dir := t.TempDir()
	s, err := Open[*Execution](dir, "ledger")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		if err := s.Append(&Execution{ExecutionPayload: ExecutionPayload{
			Agent: "a1", Action: Action{Type: ActionFileRead, Target: "/tmp/x"},
			Outcome: Outcome{Status: OutcomeSuccess},
		}}); err != nil {
			t.Fatal(err)
		}
	}

	report, err := VerifyStream[*Execution](dir, "ledger")
	if err != nil {
		t.Fatal(err)
	}
	if !report.Valid {
		t.Errorf("expected valid report, got findings: %+v", report.Findings)
	}
	if report.EntriesChecked != 4 {
		t.Errorf("expected 4 entries checked, got %d", report.EntriesChecked)
	}
	if report.FilesChecked != 1 {
		t.Errorf("expected 1 file checked, got %d", report.FilesChecked)
	}
}

func TestVerifyStream_DetectsTamperedField(t *testing.T) {
	dir := t.TempDir()
	s, err := Open[*Execution](dir, "ledger")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Append(&Execution{ExecutionPayload: ExecutionPayload{
		Agent: "a1", Action: Action{Type: ActionFileRead}, Outcome: Outcome{Status: OutcomeSuccess},
	}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(&Execution{ExecutionPayload: ExecutionPayload{
		Agent: "a1", Action: Action{Type: ActionFileWrite}, Outcome: Outcome{Status: OutcomeSuccess},
	}}); err != nil {
		t.Fatal(err)
	}

	files, err := s.Files()
	if err != nil {
		t.Fatal(err)
	}
	tamperLine(t, files[0], 0, func(m map[string]any) {
		m["agent"] = "tampered"
	})

	report, err := VerifyStream[*Execution](dir, "ledger")
	if err != nil {
		t.Fatal(err)
	}
	if report.Valid {
		t.Fatal("expected tampered chain to be invalid")
	}
	var gotHashMismatch bool
	for _, f := range report.Findings {
		if f.Kind == FindingHashMismatch {
			gotHashMismatch = true
		}
	}
	if !gotHashMismatch {
		t.Errorf("expected a hash_mismatch finding, got %+v", report.Findings)
	}
}

func TestVerifyStream_DetectsParseError(t *testing.T) {
	dir := t.TempDir()
	s, err := Open[*Witness](dir, "witness")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Append(&Witness{WitnessPayload: WitnessPayload{Source: SourceFilesystem, Event: WitnessEvent{Type: FileCreated, Path: "/tmp/a"}}}); err != nil {
		t.Fatal(err)
	}

	files, err := s.Files()
	if err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(files[0], os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("{not valid json\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	report, err := VerifyStream[*Witness](dir, "witness")
	if err != nil {
		t.Fatal(err)
	}
	if report.Valid {
		t.Fatal("expected invalid report due to parse error")
	}
	if len(report.Findings) != 1 || report.Findings[0].Kind != FindingParseError {
		t.Errorf("expected one parse_error finding, got %+v", report.Findings)
	}
}

// tamperLine rewrites the n-th (0-indexed) line of path by decoding it as a
// generic map, applying mutate, and re-encoding — without recomputing the
// hash, so the entry's stored hash goes stale exactly as corruption would.
func tamperLine(t *testing.T, path string, n int, mutate func(map[string]any)) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := splitLines(string(data))
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[n]), &m); err != nil {
		t.Fatal(err)
	}
	mutate(m)
	out, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	lines[n] = string(out)
	if err := os.WriteFile(path, []byte(joinLines(lines)), 0o600); err != nil {
		t.Fatal(err)
	}
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

func joinLines(lines []string) string {
	out := ""
	for _, l := range lines {
		out += l + "\n"
	}
	return out
}

func TestIntegrityFinding_FileFieldIsAbsolutePath(t *testing.T) {
	dir := t.TempDir()
	s, err := Open[*Claim](dir, "claims")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Append(&Claim{ClaimPayload: ClaimPayload{Agent: "a1"}}); err != nil {
		t.Fatal(err)
	}
	files, _ := s.Files()
	tamperLine(t, files[0], 0, func(m map[string]any) { m["agent"] = "x" })

	report, err := VerifyStream[*Claim](dir, "claims")
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Findings) == 0 || filepath.Base(report.Findings[0].File) != filepath.Base(files[0]) {
		t.Errorf("expected finding to reference the tampered file, got %+v", report.Findings)
	} else if got := report.Findings[0].File; !filepath.IsAbs(got) || got != files[0] {
		t.Errorf("expected finding File to be the absolute path %q, got %q", files[0], got)
	}
}

func TestStream_Read_FiltersByAgentAndActionType(t *testing.T) {
	s, err := Open[*Execution](t.TempDir(), "ledger")
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Append(&Execution{ExecutionPayload: ExecutionPayload{Agent: "a1", Action: Action{Type: ActionFileRead}}})
	_ = s.Append(&Execution{ExecutionPayload: ExecutionPayload{Agent: "a2", Action: Action{Type: ActionExecCommand}}})
	_ = s.Append(&Execution{ExecutionPayload: ExecutionPayload{Agent: "a1", Action: Action{Type: ActionExecCommand}}})

	got, err := s.Read(Filter{Agent: "a1", ActionType: ActionExecCommand})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Agent != "a1" || got[0].Action.Type != ActionExecCommand {
		t.Fatalf("expected exactly one a1/exec.command entry, got %+v", got)
	}
}

func TestStream_Read_FiltersByMinRisk(t *testing.T) {
	s, err := Open[*Execution](t.TempDir(), "ledger")
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Append(&Execution{ExecutionPayload: ExecutionPayload{Risk: Risk{Score: 2}}})
	_ = s.Append(&Execution{ExecutionPayload: ExecutionPayload{Risk: Risk{Score: 8}}})

	got, err := s.Read(Filter{MinRisk: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Risk.Score != 8 {
		t.Fatalf("expected one high-risk entry, got %+v", got)
	}
}

func TestStream_Read_UsesIndexWhenAvailable(t *testing.T) {
	dir := t.TempDir()
	s, err := Open[*Execution](dir, "ledger")
	if err != nil {
		t.Fatal(err)
	}
	if s.idx == nil {
		t.Fatal("expected the SQLite index to open successfully in a fresh temp dir")
	}
	_ = s.Append(&Execution{ExecutionPayload: ExecutionPayload{Agent: "a1", Action: Action{Type: ActionFileRead}}})
	_ = s.Append(&Execution{ExecutionPayload: ExecutionPayload{Agent: "a2", Action: Action{Type: ActionExecCommand}}})
	_ = s.Append(&Execution{ExecutionPayload: ExecutionPayload{Agent: "a1", Action: Action{Type: ActionExecCommand}}})

	got, err := s.Read(Filter{Agent: "a1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 a1 entries via the index, got %d: %+v", len(got), got)
	}
}

func TestStream_Read_FallsBackWhenIndexClosed(t *testing.T) {
	dir := t.TempDir()
	s, err := Open[*Execution](dir, "ledger")
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Append(&Execution{ExecutionPayload: ExecutionPayload{Agent: "a1", Action: Action{Type: ActionFileRead}}})
	_ = s.Append(&Execution{ExecutionPayload: ExecutionPayload{Agent: "a1", Action: Action{Type: ActionExecCommand}}})

	// Force every index query to fail, simulating a corrupted or
	// unavailable accelerator: Read must still return correct results by
	// falling back to the authoritative file scan.
	if err := s.idx.Close(); err != nil {
		t.Fatal(err)
	}

	got, err := s.Read(Filter{Agent: "a1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected fallback file scan to still find 2 entries, got %d: %+v", len(got), got)
	}
}

func TestStream_Read_EmptyFilterReturnsEverything(t *testing.T) {
	s := newClaimStream(t)
	for i := 0; i < 3; i++ {
		_ = s.Append(&Claim{ClaimPayload: ClaimPayload{Agent: "a1"}})
	}
	got, err := s.Read(Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3, got %d", len(got))
	}
}
