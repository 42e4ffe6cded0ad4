package correlate

import (
	"testing"
	"time"

	"github.com/agenttrust/agenttrust/internal/logstream"
)

func TestCorrelateProcesses_BaseCommandMatch(t *testing.T) {
	base := time.Now().UTC()
	exec := &logstream.Execution{
		Header: hdr("e1", base),
		ExecutionPayload: logstream.ExecutionPayload{
			Action: logstream.Action{Type: "exec.command", Target: "/usr/bin/curl https://example.com"},
		},
	}
	wit := &logstream.Witness{
		Header: hdr("w1", base.Add(1*time.Second)),
		WitnessPayload: logstream.WitnessPayload{
			Source: logstream.SourceProcess,
			Event:  logstream.WitnessEvent{Type: logstream.ProcessSpawned, Command: "curl https://example.com", PID: 4321},
		},
	}

	result := CorrelateProcesses([]*logstream.Witness{wit}, []*logstream.Execution{exec})
	if len(result.Matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(result.Matches))
	}
	if result.Matches[0].Confidence != 100 {
		t.Errorf("expected confidence 100, got %d (%+v)", result.Matches[0].Confidence, result.Matches[0].Discrepancies)
	}
}

func TestCorrelateProcesses_PidMismatchFlagsEvidence(t *testing.T) {
	base := time.Now().UTC()
	exec := &logstream.Execution{
		Header: hdr("e1", base),
		ExecutionPayload: logstream.ExecutionPayload{
			Action: logstream.Action{Type: "exec.command", Target: "curl https://example.com"},
			Meta:   map[string]any{"processEvidence": map[string]any{"pid": float64(111)}},
		},
	}
	wit := &logstream.Witness{
		Header: hdr("w1", base.Add(1*time.Second)),
		WitnessPayload: logstream.WitnessPayload{
			Source: logstream.SourceProcess,
			Event:  logstream.WitnessEvent{Type: logstream.ProcessSpawned, Command: "curl https://example.com", PID: 222},
		},
	}

	result := CorrelateProcesses([]*logstream.Witness{wit}, []*logstream.Execution{exec})
	m := result.Matches[0]
	if m.Confidence != 85 {
		t.Errorf("expected confidence 85, got %d", m.Confidence)
	}
	found := false
	for _, d := range m.Discrepancies {
		if d.Kind == DiscrepancyEvidence {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an evidence_mismatch discrepancy, got %+v", m.Discrepancies)
	}
}

func TestCorrelateProcesses_UnrelatedCommandNotMatched(t *testing.T) {
	base := time.Now().UTC()
	exec := &logstream.Execution{
		Header: hdr("e1", base),
		ExecutionPayload: logstream.ExecutionPayload{
			Action: logstream.Action{Type: "exec.command", Target: "rm -rf /tmp/scratch"},
		},
	}
	wit := &logstream.Witness{
		Header: hdr("w1", base.Add(1*time.Second)),
		WitnessPayload: logstream.WitnessPayload{
			Source: logstream.SourceProcess,
			Event:  logstream.WitnessEvent{Type: logstream.ProcessSpawned, Command: "curl https://example.com"},
		},
	}

	result := CorrelateProcesses([]*logstream.Witness{wit}, []*logstream.Execution{exec})
	if len(result.Matches) != 0 {
		t.Errorf("expected no match between unrelated commands, got %+v", result.Matches)
	}
}
