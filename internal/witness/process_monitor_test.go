package witness

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveGatewayPID_ByPidFile(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "gateway.pid")
	if err := os.WriteFile(pidFile, []byte("42\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	snap := map[int]ProcessSnapshot{42: {PID: 42, Command: "agent-runner"}}
	got := resolveGatewayPID(snap, GatewayConfig{PidFile: pidFile})
	if got != 42 {
		t.Errorf("expected pid 42 from pidfile, got %d", got)
	}
}

func TestResolveGatewayPID_PidFileStalePidFallsThrough(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "gateway.pid")
	if err := os.WriteFile(pidFile, []byte("999"), 0o600); err != nil {
		t.Fatal(err)
	}

	snap := map[int]ProcessSnapshot{7: {PID: 7, Command: "the-agent-runner-process"}}
	got := resolveGatewayPID(snap, GatewayConfig{PidFile: pidFile, ProcessName: "agent-runner"})
	if got != 7 {
		t.Errorf("expected fallback to process-name match pid 7, got %d", got)
	}
}

func TestResolveGatewayPID_ByProcessNameSubstring(t *testing.T) {
	snap := map[int]ProcessSnapshot{
		10: {PID: 10, Command: "/usr/bin/bash"},
		11: {PID: 11, Command: "/opt/agent/bin/agent-runner --flag"},
	}
	got := resolveGatewayPID(snap, GatewayConfig{ProcessName: "agent-runner"})
	if got != 11 {
		t.Errorf("expected pid 11, got %d", got)
	}
}

func TestResolveGatewayPID_Unresolved(t *testing.T) {
	snap := map[int]ProcessSnapshot{1: {PID: 1, Command: "init"}}
	got := resolveGatewayPID(snap, GatewayConfig{})
	if got != 0 {
		t.Errorf("expected 0 when no gateway config matches, got %d", got)
	}
}

func TestProcessMonitor_TickDiffsSpawnAndExit(t *testing.T) {
	m := NewProcessMonitor(50, GatewayConfig{})
	m.last = map[int]ProcessSnapshot{1: {PID: 1, PPID: 0, Command: "init"}}

	// tick() queries the real process table internally, which this test
	// cannot control; exercise the diff it performs directly instead.
	current := map[int]ProcessSnapshot{
		1: {PID: 1, PPID: 0, Command: "init"},
		2: {PID: 2, PPID: 1, Command: "child"},
	}

	var spawned, exited []int
	for pid := range current {
		if _, ok := m.last[pid]; !ok {
			spawned = append(spawned, pid)
		}
	}
	for pid := range m.last {
		if _, ok := current[pid]; !ok {
			exited = append(exited, pid)
		}
	}

	if len(spawned) != 1 || spawned[0] != 2 {
		t.Errorf("expected pid 2 to spawn, got %v", spawned)
	}
	if len(exited) != 0 {
		t.Errorf("expected no exits, got %v", exited)
	}
}
