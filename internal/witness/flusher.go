package witness

import (
	"fmt"

	"github.com/agenttrust/agenttrust/internal/logstream"
)

// NewLogstreamFlusher returns a FlushFunc that appends each observation in
// a batch to stream, in buffer order. original §4.I describes the
// callback's job exactly this way: "construct a witness entry whose
// prevHash is the running last hash, compute hash via (B), append via
// (D), and update the running last hash" — which is precisely what
// Stream.Append already does per call, so this is a thin adapter, not a
// reimplementation of the chaining logic.
func NewLogstreamFlusher(stream *logstream.Stream[*logstream.Witness]) FlushFunc {
	return func(batch []Observation) error {
		for _, obs := range batch {
			entry := &logstream.Witness{
				WitnessPayload: logstream.WitnessPayload{
					Source: obs.Source,
					Event:  obs.Event,
				},
			}
			if err := stream.Append(entry); err != nil {
				return fmt.Errorf("witness: appending observation: %w", err)
			}
		}
		return nil
	}
}
