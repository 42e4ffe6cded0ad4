package correlate

import (
	"testing"
	"time"

	"github.com/agenttrust/agenttrust/internal/logstream"
)

func TestCorrelateNetwork_SubdomainHostMatch(t *testing.T) {
	base := time.Now().UTC()
	exec := &logstream.Execution{
		Header: hdr("e1", base),
		ExecutionPayload: logstream.ExecutionPayload{
			Action: logstream.Action{Type: "api.call", Target: "https://api.github.com/repos/foo/bar"},
		},
	}
	wit := &logstream.Witness{
		Header: hdr("w1", base.Add(500*time.Millisecond)),
		WitnessPayload: logstream.WitnessPayload{
			Source: logstream.SourceNetwork,
			Event:  logstream.WitnessEvent{Type: logstream.ConnectionOpened, RemoteHost: "api.github.com", RemotePort: 443},
		},
	}

	result := CorrelateNetwork([]*logstream.Witness{wit}, []*logstream.Execution{exec})
	if len(result.Matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(result.Matches))
	}
	if result.Matches[0].Confidence != 100 {
		t.Errorf("expected confidence 100, got %d (%+v)", result.Matches[0].Confidence, result.Matches[0].Discrepancies)
	}
}

func TestCorrelateNetwork_PortMismatchFlagsEvidence(t *testing.T) {
	base := time.Now().UTC()
	exec := &logstream.Execution{
		Header: hdr("e1", base),
		ExecutionPayload: logstream.ExecutionPayload{
			Action: logstream.Action{Type: "web.fetch", Target: "https://example.com/report"},
			Meta:   map[string]any{"networkEvidence": map[string]any{"port": float64(443)}},
		},
	}
	wit := &logstream.Witness{
		Header: hdr("w1", base.Add(500*time.Millisecond)),
		WitnessPayload: logstream.WitnessPayload{
			Source: logstream.SourceNetwork,
			Event:  logstream.WitnessEvent{Type: logstream.ConnectionOpened, RemoteHost: "example.com", RemotePort: 8443},
		},
	}

	result := CorrelateNetwork([]*logstream.Witness{wit}, []*logstream.Execution{exec})
	m := result.Matches[0]
	if m.Confidence != 85 {
		t.Errorf("expected confidence 85, got %d", m.Confidence)
	}
}

func TestCorrelateNetwork_UnrelatedHostNotMatched(t *testing.T) {
	base := time.Now().UTC()
	exec := &logstream.Execution{
		Header: hdr("e1", base),
		ExecutionPayload: logstream.ExecutionPayload{
			Action: logstream.Action{Type: "web.fetch", Target: "https://example.com/report"},
		},
	}
	wit := &logstream.Witness{
		Header: hdr("w1", base.Add(500*time.Millisecond)),
		WitnessPayload: logstream.WitnessPayload{
			Source: logstream.SourceNetwork,
			Event:  logstream.WitnessEvent{Type: logstream.ConnectionOpened, RemoteHost: "evil.example.net", RemotePort: 443},
		},
	}

	result := CorrelateNetwork([]*logstream.Witness{wit}, []*logstream.Execution{exec})
	if len(result.Matches) != 0 {
		t.Errorf("expected no match for an unrelated host, got %+v", result.Matches)
	}
}
