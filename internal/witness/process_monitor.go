package witness

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	gopsutilprocess "github.com/shirou/gopsutil/v3/process"

	"github.com/agenttrust/agenttrust/internal/logstream"
)

// ProcessSnapshot is one process table row, original §4.G.
type ProcessSnapshot struct {
	PID     int
	PPID    int
	Command string
}

// ProcessMonitor polls the OS process table on an interval, diffing
// successive snapshots into spawn/exit events and tracking the gateway
// PID: the agent process the network monitor roots its tree at.
//
// No file in the corpus directly exercises gopsutil, but its process
// subpackage is the standard userland process-table API in the Go
// ecosystem and appears in the pack's dependency surface (see DESIGN.md);
// this is the one monitor with no direct teacher exemplar to imitate
// line-for-line, so its shape instead mirrors a ticker-driven
// polling idiom used elsewhere (config.Watcher's goroutine/select loop).
type ProcessMonitor struct {
	pollInterval time.Duration
	gateway      GatewayConfig

	mu         sync.RWMutex
	last       map[int]ProcessSnapshot
	gatewayPID int

	ticker *time.Ticker
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewProcessMonitor constructs a monitor polling every pollIntervalMs
// (original default ~1000ms).
func NewProcessMonitor(pollIntervalMs int, gateway GatewayConfig) *ProcessMonitor {
	if pollIntervalMs <= 0 {
		pollIntervalMs = 1000
	}
	return &ProcessMonitor{
		pollInterval: time.Duration(pollIntervalMs) * time.Millisecond,
		gateway:      gateway,
		last:         make(map[int]ProcessSnapshot),
	}
}

// Start launches the polling loop. Unlike the network monitor, original
// §4.G does not call out suppressing the first diff, so lastSnapshot
// starts empty: the first tick's diff against the live process table
// will emit process_spawned for every process already running. A
// best-effort snapshot is taken immediately (not stored as lastSnapshot)
// purely to resolve the gateway PID before the first poll interval
// elapses, since the network monitor needs it as soon as it starts too.
func (m *ProcessMonitor) Start(onEvent func(logstream.WitnessEvent)) error {
	m.ticker = time.NewTicker(m.pollInterval)
	m.done = make(chan struct{})

	if snap, err := snapshotProcesses(); err == nil {
		m.mu.Lock()
		m.gatewayPID = resolveGatewayPID(snap, m.gateway)
		m.mu.Unlock()
	} else {
		slog.Warn("witness: process monitor initial gateway resolution failed", "error", err)
	}

	m.wg.Add(1)
	go m.loop(onEvent)

	slog.Info("witness: process monitor started", "pollIntervalMs", m.pollInterval.Milliseconds())
	return nil
}

func (m *ProcessMonitor) loop(onEvent func(logstream.WitnessEvent)) {
	defer m.wg.Done()
	for {
		select {
		case <-m.ticker.C:
			m.tick(onEvent)
		case <-m.done:
			return
		}
	}
}

func (m *ProcessMonitor) tick(onEvent func(logstream.WitnessEvent)) {
	current, err := snapshotProcesses()
	if err != nil {
		slog.Warn("witness: process snapshot failed", "error", err)
		return
	}

	m.mu.Lock()
	last := m.last
	m.last = current
	m.gatewayPID = resolveGatewayPID(current, m.gateway)
	m.mu.Unlock()

	for pid, p := range current {
		if _, ok := last[pid]; !ok {
			onEvent(logstream.WitnessEvent{
				Type:       logstream.ProcessSpawned,
				ObservedAt: nowRFC3339(),
				Command:    p.Command,
				PID:        p.PID,
				PPID:       p.PPID,
			})
		}
	}
	for pid, p := range last {
		if _, ok := current[pid]; !ok {
			onEvent(logstream.WitnessEvent{
				Type:       logstream.ProcessExited,
				ObservedAt: nowRFC3339(),
				Command:    p.Command,
				PID:        p.PID,
				PPID:       p.PPID,
			})
		}
	}
}

// Snapshot returns a copy of the most recently polled process table. The
// network monitor does not use it; it takes its own snapshot every tick.
func (m *ProcessMonitor) Snapshot() map[int]ProcessSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int]ProcessSnapshot, len(m.last))
	for k, v := range m.last {
		out[k] = v
	}
	return out
}

// GatewayPID returns the most recently resolved gateway PID, or 0 if none
// could be resolved.
func (m *ProcessMonitor) GatewayPID() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gatewayPID
}

func (m *ProcessMonitor) Stop() {
	if m.done == nil {
		return
	}
	close(m.done)
	if m.ticker != nil {
		m.ticker.Stop()
	}
	m.wg.Wait()
}

func snapshotProcesses() (map[int]ProcessSnapshot, error) {
	procs, err := gopsutilprocess.Processes()
	if err != nil {
		return nil, err
	}

	out := make(map[int]ProcessSnapshot, len(procs))
	for _, p := range procs {
		ppid, _ := p.Ppid()
		cmd, _ := p.Cmdline()
		if cmd == "" {
			cmd, _ = p.Name()
		}
		out[int(p.Pid)] = ProcessSnapshot{
			PID:     int(p.Pid),
			PPID:    int(ppid),
			Command: cmd,
		}
	}
	return out, nil
}

// resolveGatewayPID prefers a pid-file (pid must still be live in the
// current snapshot) and falls back to a case-insensitive substring match
// on the configured process name.
func resolveGatewayPID(snapshot map[int]ProcessSnapshot, cfg GatewayConfig) int {
	if cfg.PidFile != "" {
		if data, err := os.ReadFile(cfg.PidFile); err == nil {
			if pid, convErr := strconv.Atoi(strings.TrimSpace(string(data))); convErr == nil {
				if _, ok := snapshot[pid]; ok {
					return pid
				}
			}
		}
	}

	if cfg.ProcessName != "" {
		needle := strings.ToLower(cfg.ProcessName)
		for pid, p := range snapshot {
			if strings.Contains(strings.ToLower(p.Command), needle) {
				return pid
			}
		}
	}

	return 0
}
