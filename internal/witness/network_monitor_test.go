package witness

import (
	"testing"

	gopsutilnet "github.com/shirou/gopsutil/v3/net"
)

func TestGatewayTree_IncludesTransitiveDescendants(t *testing.T) {
	snap := map[int]ProcessSnapshot{
		1: {PID: 1, PPID: 0},
		2: {PID: 2, PPID: 1}, // gateway
		3: {PID: 3, PPID: 2}, // child of gateway
		4: {PID: 4, PPID: 3}, // grandchild
		5: {PID: 5, PPID: 1}, // unrelated sibling of gateway
	}

	tree := gatewayTree(snap, 2)
	for _, want := range []int{2, 3, 4} {
		if !tree[want] {
			t.Errorf("expected pid %d in gateway tree, got %v", want, tree)
		}
	}
	if tree[1] || tree[5] {
		t.Errorf("expected ancestor and unrelated sibling excluded, got %v", tree)
	}
}

func TestGatewayTree_MissingGatewayIsEmpty(t *testing.T) {
	snap := map[int]ProcessSnapshot{1: {PID: 1, PPID: 0}}
	tree := gatewayTree(snap, 999)
	if len(tree) != 0 {
		t.Errorf("expected empty tree for absent gateway, got %v", tree)
	}
}

func conn(pid int32, raddrIP string, raddrPort uint32) gopsutilnet.ConnectionStat {
	return gopsutilnet.ConnectionStat{
		Pid:   pid,
		Raddr: gopsutilnet.Addr{IP: raddrIP, Port: raddrPort},
	}
}

func TestFilterConnections_DropsListeningLoopbackAndOutOfTreePids(t *testing.T) {
	pidSet := map[int]bool{10: true}
	conns := []gopsutilnet.ConnectionStat{
		conn(10, "93.184.216.34", 443),   // kept
		conn(10, "127.0.0.1", 5432),      // loopback, dropped
		conn(10, "", 0),                  // listening, dropped
		conn(10, "0.0.0.0", 80),          // sentinel, dropped
		conn(99, "93.184.216.34", 443),   // out of pid tree, dropped
	}

	out := filterConnections(conns, "tcp", pidSet, map[int]string{10: "curl"})
	if len(out) != 1 {
		t.Fatalf("expected 1 surviving connection, got %d: %+v", len(out), out)
	}
	if out[0].remoteHost != "93.184.216.34" || out[0].remotePort != 443 {
		t.Errorf("unexpected survivor: %+v", out[0])
	}
	if out[0].command != "curl" {
		t.Errorf("expected command looked up from pid map, got %q", out[0].command)
	}
}

func TestFilterConnections_IPv6LoopbackDropped(t *testing.T) {
	conns := []gopsutilnet.ConnectionStat{conn(1, "::1", 443)}
	out := filterConnections(conns, "tcp", map[int]bool{1: true}, nil)
	if len(out) != 0 {
		t.Errorf("expected ::1 to be dropped, got %+v", out)
	}
}
