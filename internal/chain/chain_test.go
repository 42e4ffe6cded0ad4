package chain

import "testing"

type testEntry struct {
	Seq      int    `json:"seq"`
	Agent    string `json:"agent"`
	PrevHash string `json:"-"`
	Hash     string `json:"-"`
}

func (e *testEntry) HashInput() any {
	return map[string]any{"seq": e.Seq, "agent": e.Agent, "prevHash": e.PrevHash}
}
func (e *testEntry) GetHash() string     { return e.Hash }
func (e *testEntry) GetPrevHash() string { return e.PrevHash }

func chainOf(n int) []Hashable {
	var seq []Hashable
	prev := ""
	for i := 0; i < n; i++ {
		e := &testEntry{Seq: i, Agent: "a", PrevHash: prev}
		h, err := HashEntry(e)
		if err != nil {
			panic(err)
		}
		e.Hash = h
		prev = h
		seq = append(seq, e)
	}
	return seq
}

func TestHashEntry_Deterministic(t *testing.T) {
	e := &testEntry{Seq: 1, Agent: "a", PrevHash: ""}
	h1, err := HashEntry(e)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := HashEntry(e)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Error("hash should be deterministic")
	}
	if len(h1) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(h1))
	}
}

func TestVerifyEntryHash(t *testing.T) {
	e := &testEntry{Seq: 1, Agent: "a"}
	h, _ := HashEntry(e)
	e.Hash = h

	ok, err := VerifyEntryHash(e)
	if err != nil || !ok {
		t.Fatalf("expected valid, got ok=%v err=%v", ok, err)
	}

	e.Agent = "tampered"
	ok, err = VerifyEntryHash(e)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("tampered entry should not verify")
	}
}

func TestVerifyChain_Valid(t *testing.T) {
	seq := chainOf(5)
	res, err := VerifyChain(seq, "")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Valid {
		t.Errorf("expected valid chain, got broken at %d: %s", res.BrokenAt, res.Reason)
	}
}

func TestVerifyChain_Empty(t *testing.T) {
	res, err := VerifyChain(nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Valid {
		t.Error("empty chain should verify valid")
	}
}

func TestVerifyChain_BrokenAt(t *testing.T) {
	seq := chainOf(5)
	tampered := seq[2].(*testEntry)
	tampered.Agent = "tampered"

	res, err := VerifyChain(seq, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid {
		t.Fatal("expected broken chain")
	}
	if res.BrokenAt != 2 {
		t.Errorf("expected break at index 2, got %d", res.BrokenAt)
	}
}

func TestVerifyChain_FirstEntryPrevHashMustMatchGenesis(t *testing.T) {
	seq := chainOf(1)
	res, err := VerifyChain(seq, "not-empty")
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid {
		t.Error("expected genesis prevHash mismatch to break the chain")
	}
}

func TestVerifyChain_LinkageBroken(t *testing.T) {
	seq := chainOf(3)
	e := seq[2].(*testEntry)
	e.PrevHash = "wrong"
	// Recompute hash so the entry's own hash still verifies but linkage breaks.
	h, _ := HashEntry(e)
	e.Hash = h

	res, err := VerifyChain(seq, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid {
		t.Fatal("expected linkage break")
	}
	if res.BrokenAt != 2 {
		t.Errorf("expected break at index 2, got %d", res.BrokenAt)
	}
}
