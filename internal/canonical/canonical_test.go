package canonical

import (
	"encoding/json"
	"testing"
)

func TestMarshal_KeyOrderIndependent(t *testing.T) {
	a := map[string]any{"b": 1, "a": 2, "c": 3}
	b := map[string]any{"c": 3, "a": 2, "b": 1}

	eq, err := Equal(a, b)
	if err != nil {
		t.Fatalf("Equal: %v", err)
	}
	if !eq {
		t.Error("maps with same keys in different order should canonicalize equal")
	}
}

func TestMarshal_NestedKeySort(t *testing.T) {
	v := map[string]any{
		"outer": map[string]any{"z": 1, "a": 2},
	}
	got, err := Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"outer":{"a":2,"z":1}}`
	if string(got) != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestMarshal_ArrayOrderPreserved(t *testing.T) {
	v := map[string]any{"arr": []any{3, 1, 2}}
	got, err := Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"arr":[3,1,2]}`
	if string(got) != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestMarshal_IntegerShortestForm(t *testing.T) {
	v := map[string]any{"n": 42}
	got, err := Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(got) != `{"n":42}` {
		t.Errorf("got %q", got)
	}
}

func TestMarshal_UnicodeLiteral(t *testing.T) {
	v := map[string]any{"s": "héllo wörld 日本語"}
	got, err := Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"s":"héllo wörld 日本語"}`
	if string(got) != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestMarshal_StructuralEquality(t *testing.T) {
	type inner struct {
		Z int `json:"z"`
		A int `json:"a"`
	}
	type outer struct {
		Inner inner  `json:"inner"`
		Name  string `json:"name"`
	}

	o1 := outer{Inner: inner{Z: 1, A: 2}, Name: "x"}

	got1, err := Marshal(o1)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got2, err := Marshal(map[string]any{
		"name":  "x",
		"inner": map[string]any{"a": 2, "z": 1},
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(got1) != string(got2) {
		t.Errorf("struct and equivalent map should canonicalize identically: %q vs %q", got1, got2)
	}
}

func TestMarshal_RoundTripThroughDeserialize(t *testing.T) {
	type payload struct {
		Agent string         `json:"agent"`
		Risk  int            `json:"risk"`
		Meta  map[string]any `json:"meta,omitempty"`
	}
	p := payload{Agent: "a1", Risk: 7, Meta: map[string]any{"k": "v"}}

	data, err := Marshal(p)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var roundTripped payload
	if err := json.Unmarshal(data, &roundTripped); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	data2, err := Marshal(roundTripped)
	if err != nil {
		t.Fatalf("Marshal (2): %v", err)
	}
	if string(data) != string(data2) {
		t.Errorf("canonical(e) != canonical(deserialize(serialize(e))): %q vs %q", data, data2)
	}
}

func TestEqual_DifferentValues(t *testing.T) {
	eq, err := Equal(map[string]any{"a": 1}, map[string]any{"a": 2})
	if err != nil {
		t.Fatalf("Equal: %v", err)
	}
	if eq {
		t.Error("different values should not be equal")
	}
}
