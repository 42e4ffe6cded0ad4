package witness

import (
	"log/slog"
	"sync"
	"time"

	gopsutilnet "github.com/shirou/gopsutil/v3/net"

	"github.com/agenttrust/agenttrust/internal/logstream"
)

// connKey identifies one open socket for set-difference diffing, original
// §4.H: "(protocol, remoteHost, remotePort, pid)".
type connKey struct {
	protocol   string
	remoteHost string
	remotePort int
	pid        int
}

// NetworkMonitor polls the per-process socket table, restricted every tick
// to the live descendant tree of the gateway PID (recomputed every poll,
// never cached — original §9: "caching a single pid is a known defect").
type NetworkMonitor struct {
	pollInterval time.Duration
	gatewayPID   func() int

	mu        sync.Mutex
	lastConns map[connKey]struct{}
	firstTick bool

	ticker *time.Ticker
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewNetworkMonitor constructs a monitor polling every pollIntervalMs
// (default ~1000ms). gatewayPID resolves the current gateway PID (0 if
// unresolved); the network monitor calls it fresh on every tick.
func NewNetworkMonitor(pollIntervalMs int, gatewayPID func() int) *NetworkMonitor {
	if pollIntervalMs <= 0 {
		pollIntervalMs = 1000
	}
	return &NetworkMonitor{
		pollInterval: time.Duration(pollIntervalMs) * time.Millisecond,
		gatewayPID:   gatewayPID,
		lastConns:    make(map[connKey]struct{}),
		firstTick:    true,
	}
}

func (m *NetworkMonitor) Start(onEvent func(logstream.WitnessEvent)) error {
	m.ticker = time.NewTicker(m.pollInterval)
	m.done = make(chan struct{})

	m.wg.Add(1)
	go m.loop(onEvent)

	slog.Info("witness: network monitor started", "pollIntervalMs", m.pollInterval.Milliseconds())
	return nil
}

func (m *NetworkMonitor) loop(onEvent func(logstream.WitnessEvent)) {
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

func (m *NetworkMonitor) tick(onEvent func(logstream.WitnessEvent)) {
	gw := m.gatewayPID()
	if gw == 0 {
		// Gateway not present in the process table this poll: the tree is
		// empty and the monitor emits nothing, per original §4.H.
		return
	}

	snap, err := snapshotProcesses()
	var pidSet map[int]bool
	var commands map[int]string
	if err != nil {
		slog.Warn("witness: network monitor falling back to gateway PID only", "error", err)
		pidSet = map[int]bool{gw: true}
		commands = map[int]string{}
	} else {
		pidSet = gatewayTree(snap, gw)
		commands = make(map[int]string, len(snap))
		for pid, p := range snap {
			commands[pid] = p.Command
		}
	}

	entries, err := queryConnections(pidSet, commands)
	if err != nil {
		slog.Warn("witness: socket query failed, skipping tick", "error", err)
		return
	}

	current := make(map[connKey]sockEntry, len(entries))
	for _, e := range entries {
		current[e.key()] = e
	}

	m.mu.Lock()
	last := m.lastConns
	first := m.firstTick
	m.firstTick = false
	newLast := make(map[connKey]struct{}, len(current))
	for k := range current {
		newLast[k] = struct{}{}
	}
	m.lastConns = newLast
	m.mu.Unlock()

	if first {
		// Initial scan never emits opens, original §4.H.
		return
	}

	for k, e := range current {
		if _, ok := last[k]; !ok {
			onEvent(logstream.WitnessEvent{
				Type:       logstream.ConnectionOpened,
				ObservedAt: nowRFC3339(),
				Command:    e.command,
				PID:        e.pid,
				RemoteHost: e.remoteHost,
				RemotePort: e.remotePort,
				Protocol:   e.protocol,
			})
		}
	}
	for k := range last {
		if _, ok := current[k]; !ok {
			onEvent(logstream.WitnessEvent{
				Type:       logstream.ConnectionClosed,
				ObservedAt: nowRFC3339(),
				RemoteHost: k.remoteHost,
				RemotePort: k.remotePort,
				PID:        k.pid,
				Protocol:   k.protocol,
			})
		}
	}
}

func (m *NetworkMonitor) Stop() {
	if m.done == nil {
		return
	}
	close(m.done)
	if m.ticker != nil {
		m.ticker.Stop()
	}
	m.wg.Wait()
}

type sockEntry struct {
	protocol   string
	remoteHost string
	remotePort int
	pid        int
	command    string
}

func (e sockEntry) key() connKey {
	return connKey{protocol: e.protocol, remoteHost: e.remoteHost, remotePort: e.remotePort, pid: e.pid}
}

// gatewayTree BFS's the (pid -> ppid) edges in snapshot to find the
// transitive descendants of root, original §4.H.
func gatewayTree(snapshot map[int]ProcessSnapshot, root int) map[int]bool {
	if _, ok := snapshot[root]; !ok {
		return map[int]bool{}
	}

	childrenOf := make(map[int][]int, len(snapshot))
	for pid, p := range snapshot {
		childrenOf[p.PPID] = append(childrenOf[p.PPID], pid)
	}

	tree := map[int]bool{root: true}
	queue := []int{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range childrenOf[cur] {
			if !tree[child] {
				tree[child] = true
				queue = append(queue, child)
			}
		}
	}
	return tree
}

// queryConnections reads the tcp and udp socket tables and keeps only
// entries whose pid is in pidSet and that have a real remote peer.
// gopsutil's Addr type already separates host from port, so no manual
// `[addr]:port` bracket parsing is needed on this path.
func queryConnections(pidSet map[int]bool, commands map[int]string) ([]sockEntry, error) {
	tcp, err := gopsutilnet.Connections("tcp")
	if err != nil {
		return nil, err
	}
	udp, err := gopsutilnet.Connections("udp")
	if err != nil {
		return nil, err
	}

	var out []sockEntry
	out = append(out, filterConnections(tcp, "tcp", pidSet, commands)...)
	out = append(out, filterConnections(udp, "udp", pidSet, commands)...)
	return out, nil
}

func filterConnections(conns []gopsutilnet.ConnectionStat, protocol string, pidSet map[int]bool, commands map[int]string) []sockEntry {
	var out []sockEntry
	for _, c := range conns {
		pid := int(c.Pid)
		if !pidSet[pid] {
			continue
		}
		if c.Raddr.IP == "" || c.Raddr.Port == 0 {
			continue // listening or no remote peer
		}
		if isDroppedHost(c.Raddr.IP) {
			continue
		}
		out = append(out, sockEntry{
			protocol:   protocol,
			remoteHost: c.Raddr.IP,
			remotePort: int(c.Raddr.Port),
			pid:        pid,
			command:    commands[pid],
		})
	}
	return out
}

func isDroppedHost(host string) bool {
	switch host {
	case "127.0.0.1", "::1", "0.0.0.0", "::":
		return true
	default:
		return false
	}
}
