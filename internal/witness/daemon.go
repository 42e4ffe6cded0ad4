// Package witness implements the three independent host monitors (file,
// process, network) and the daemon that composes them, original §4.F-I.
package witness

import (
	"log/slog"
	"sync"
	"time"

	"github.com/agenttrust/agenttrust/internal/logstream"
)

// FlushFunc persists one buffered batch of observations. The daemon
// treats a non-nil error as dropping the batch — original §4.I: "Flush
// failure does not re-buffer events (at-most-once delivery at the daemon
// boundary — the caller decides durability)."
type FlushFunc func(batch []Observation) error

// MonitorCounters is one monitor's event count and last-seen time, read by
// `agenttrust witness doctor` (SPEC_FULL.md §C.8).
type MonitorCounters struct {
	Count       int
	LastEventAt time.Time
}

// Counters is a snapshot of the daemon's per-source counters.
type Counters struct {
	StartedAt time.Time
	BySource  map[string]MonitorCounters
}

// Daemon composes the file, process, and network monitors, buffers their
// tagged events, and flushes them — on a timer or eagerly once the buffer
// reaches its bound — through a caller-supplied FlushFunc.
type Daemon struct {
	cfg   Config
	flush FlushFunc

	fileMon *FileMonitor
	procMon *ProcessMonitor
	netMon  *NetworkMonitor

	mu          sync.Mutex
	started     bool
	startedAt   time.Time
	buffer      []Observation
	counters    map[string]int
	lastEventAt map[string]time.Time

	flushTicker *time.Ticker
	flushDone   chan struct{}
	flushWG     sync.WaitGroup
}

// NewDaemon builds the three monitors from cfg. The file monitor is
// omitted (never started) when cfg has no watch paths, since fsnotify has
// nothing to watch.
func NewDaemon(cfg Config, flush FlushFunc) (*Daemon, error) {
	d := &Daemon{cfg: cfg, flush: flush}

	if len(cfg.WatchPaths) > 0 {
		fm, err := NewFileMonitor(cfg.WatchPaths, cfg.ExcludePaths)
		if err != nil {
			return nil, err
		}
		d.fileMon = fm
	}

	d.procMon = NewProcessMonitor(cfg.ProcessPollingMs, cfg.Gateway)
	d.netMon = NewNetworkMonitor(cfg.NetworkPollingMs, d.procMon.GatewayPID)

	return d, nil
}

// Start is idempotent: calling it while already started is a no-op.
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return nil
	}
	d.started = true
	d.startedAt = time.Now().UTC()
	d.buffer = nil
	d.counters = make(map[string]int)
	d.lastEventAt = make(map[string]time.Time)
	d.mu.Unlock()

	// Launch all three monitors; a single failure is logged and the rest
	// still start, original §4.I step 2.
	if d.fileMon != nil {
		if err := d.fileMon.Start(d.onEventFor(logstream.SourceFilesystem)); err != nil {
			slog.Warn("witness: file monitor failed to start", "error", err)
		}
	}
	if err := d.procMon.Start(d.onEventFor(logstream.SourceProcess)); err != nil {
		slog.Warn("witness: process monitor failed to start", "error", err)
	}
	if err := d.netMon.Start(d.onEventFor(logstream.SourceNetwork)); err != nil {
		slog.Warn("witness: network monitor failed to start", "error", err)
	}

	interval := d.cfg.FlushIntervalMs
	if interval <= 0 {
		interval = 5000
	}
	d.flushTicker = time.NewTicker(time.Duration(interval) * time.Millisecond)
	d.flushDone = make(chan struct{})
	d.flushWG.Add(1)
	go d.flushLoop()

	slog.Info("witness: daemon started", "flushIntervalMs", interval)
	return nil
}

func (d *Daemon) onEventFor(source string) func(logstream.WitnessEvent) {
	return func(ev logstream.WitnessEvent) {
		d.mu.Lock()
		d.counters[source]++
		d.lastEventAt[source] = time.Now().UTC()
		d.buffer = append(d.buffer, Observation{Source: source, Event: ev})
		eager := d.cfg.BufferSize > 0 && len(d.buffer) >= d.cfg.BufferSize
		var batch []Observation
		if eager {
			batch = d.buffer
			d.buffer = nil
		}
		d.mu.Unlock()

		if eager {
			d.doFlush(batch, true)
		}
	}
}

func (d *Daemon) flushLoop() {
	defer d.flushWG.Done()
	for {
		select {
		case <-d.flushTicker.C:
			d.mu.Lock()
			batch := d.buffer
			d.buffer = nil
			d.mu.Unlock()
			d.doFlush(batch, false)
		case <-d.flushDone:
			return
		}
	}
}

// doFlush invokes the caller's FlushFunc. When force is true the callback
// runs even for an empty batch (Stop's final flush, and an eager flush
// triggered by bufferSize, both call with force=true); periodic ticks skip
// invoking the callback for an empty batch.
func (d *Daemon) doFlush(batch []Observation, force bool) {
	if len(batch) == 0 && !force {
		return
	}
	if d.flush == nil {
		return
	}
	if err := d.flush(batch); err != nil {
		slog.Warn("witness: flush failed, batch dropped", "size", len(batch), "error", err)
	}
}

// Stop cancels the flush timer, flushes once more to drain the buffer,
// stops all monitors, and resets state. Idempotent.
func (d *Daemon) Stop() {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	d.started = false
	batch := d.buffer
	d.buffer = nil
	d.mu.Unlock()

	close(d.flushDone)
	d.flushTicker.Stop()
	d.flushWG.Wait()

	d.doFlush(batch, true)

	if d.fileMon != nil {
		d.fileMon.Stop()
	}
	d.procMon.Stop()
	d.netMon.Stop()

	slog.Info("witness: daemon stopped")
}

// Counters returns a snapshot of per-source event counts and timestamps.
func (d *Daemon) Counters() Counters {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := Counters{StartedAt: d.startedAt, BySource: make(map[string]MonitorCounters)}
	for _, src := range []string{logstream.SourceFilesystem, logstream.SourceProcess, logstream.SourceNetwork} {
		out.BySource[src] = MonitorCounters{
			Count:       d.counters[src],
			LastEventAt: d.lastEventAt[src],
		}
	}
	return out
}
