package witness

import "github.com/agenttrust/agenttrust/internal/logstream"

// Observation tags a raw witness event with the monitor (source) that
// produced it, exactly the "(source, event)" pair original §4.I's daemon
// buffers. The payload shape is logstream.WitnessEvent directly — there is
// no separate witness-internal event type, since the monitors already
// produce exactly what the log entry needs.
type Observation struct {
	Source string
	Event  logstream.WitnessEvent
}
