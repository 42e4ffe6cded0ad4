package correlate

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/agenttrust/agenttrust/internal/logstream"
)

const networkWindow = 10 * time.Second

var networkActionTypes = map[string]bool{
	"api.call":   true,
	"web.fetch":  true,
	"web.search": true,
	"web.browse": true,
}

// CorrelateNetwork matches connection_opened witness events to network
// executions (api.call, web.fetch, web.search, web.browse), original
// §4.J.
func CorrelateNetwork(witnesses []*logstream.Witness, executions []*logstream.Execution) Result {
	return greedyMatch(witnesses, executions, networkWindow, networkEligible, scoreNetworkMatch)
}

func networkEligible(w *logstream.Witness, e *logstream.Execution) bool {
	if w.Source != logstream.SourceNetwork || w.Event.Type != logstream.ConnectionOpened {
		return false
	}
	if !networkActionTypes[e.Action.Type] {
		return false
	}
	host := extractHost(e.Action.Target)
	return host != "" && hostsMatch(w.Event.RemoteHost, host)
}

// extractHost pulls a hostname out of an action target that may be a
// full URL, a bare host, or a host:port pair.
func extractHost(target string) string {
	if target == "" {
		return ""
	}
	if u, err := url.Parse(target); err == nil && u.Host != "" {
		return strings.ToLower(u.Hostname())
	}
	if host, _, err := splitHostPort(target); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(target)
}

func splitHostPort(s string) (string, string, error) {
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return "", "", fmt.Errorf("no port separator")
	}
	host, port := s[:i], s[i+1:]
	if _, err := strconv.Atoi(port); err != nil {
		return "", "", err
	}
	return host, port, nil
}

// hostsMatch accepts an exact match or a subdomain relation in either
// direction (api.github.com matches github.com and vice versa).
func hostsMatch(a, b string) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	return strings.HasSuffix(a, "."+b) || strings.HasSuffix(b, "."+a)
}

func scoreNetworkMatch(w *logstream.Witness, e *logstream.Execution, skew time.Duration) (int, []Discrepancy) {
	confidence := 100
	var discrepancies []Discrepancy

	if skew > 2*time.Second {
		discrepancies = append(discrepancies, Discrepancy{
			Kind:     DiscrepancyTiming,
			Severity: SeverityInfo,
			Detail:   fmt.Sprintf("witness observed connection %s from claimed execution", skew.Round(time.Millisecond)),
		})
		confidence -= 5
	}

	if claimedPort, ok := nestedNumber(e.Meta, "networkEvidence", "port"); ok && int(claimedPort) != w.Event.RemotePort {
		discrepancies = append(discrepancies, Discrepancy{
			Kind:     DiscrepancyEvidence,
			Severity: SeverityWarning,
			Detail:   fmt.Sprintf("claimed port %d does not match observed port %d", int(claimedPort), w.Event.RemotePort),
		})
		confidence -= 15
	}

	return clampConfidence(confidence), discrepancies
}
