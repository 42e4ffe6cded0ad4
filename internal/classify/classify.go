// Package classify partitions unmatched witness entries into three
// buckets, original §4.K: background noise, infrastructure traffic, and
// agent observations. Only the agent bucket feeds finding generation.
package classify

import (
	"strings"

	"github.com/gobwas/glob"

	"github.com/agenttrust/agenttrust/internal/logstream"
)

// Bucket names an unmatched witness's classification.
type Bucket int

const (
	BucketAgent Bucket = iota
	BucketBackground
	BucketInfrastructure
)

func (b Bucket) String() string {
	switch b {
	case BucketBackground:
		return "background"
	case BucketInfrastructure:
		return "infrastructure"
	default:
		return "agent"
	}
}

// SystemProcessExclusions are the process names original §4.K calls
// "browsers, OS daemons, IDEs, AI desktop apps, printers, mDNS, etc."
// Matching is a case-insensitive substring against the witness's
// recorded command.
var SystemProcessExclusions = []string{
	"Google Chrome", "chrome", "Safari", "firefox", "Firefox", "Microsoft Edge",
	"Brave Browser", "Arc",
	"mDNSResponder", "mdnsd", "avahi-daemon", "systemd", "launchd", "svchost.exe",
	"WindowsUpdate", "com.apple.", "coreaudiod", "cloudd", "nsurlsessiond",
	"Visual Studio Code", "Code Helper", "IntelliJ IDEA", "GoLand", "PyCharm",
	"Xcode", "Claude", "ChatGPT", "Slack", "slack", "Spotify", "Dropbox",
	"OneDrive", "CUPS", "cupsd", "lpd", "printer", "bluetoothd", "NetworkManager",
	"Docker Desktop", "com.docker",
}

// InfraPattern is one (host[, port]) pattern declaring that traffic
// matching it is expected, original §4.K's pattern grammar:
//   - exact host: "api.anthropic.com"
//   - subdomain wildcard: "*.anthropic.com" (matches apex and subdomains)
//   - prefix wildcard: "140.82.112.*", "2606:4700:*"
type InfraPattern struct {
	Host  string
	Port  int // 0 = unconstrained
	Label string
}

// BuiltinInfraPatterns covers the well-known agent-tooling endpoints; user
// config (SPEC_FULL.md §C.4 `scoring.infrastructurePatterns`) is unioned
// with these at call time by the caller.
var BuiltinInfraPatterns = []InfraPattern{
	{Host: "*.anthropic.com", Label: "anthropic-api"},
	{Host: "*.openai.com", Label: "openai-api"},
	{Host: "*.githubusercontent.com", Label: "github-content"},
	{Host: "api.github.com", Label: "github-api"},
	{Host: "*.npmjs.org", Label: "npm-registry"},
	{Host: "registry.npmjs.org", Label: "npm-registry"},
	{Host: "pypi.org", Label: "pypi"},
	{Host: "files.pythonhosted.org", Label: "pypi-files"},
	{Host: "*.google.com", Label: "google"},
	{Host: "*.googleapis.com", Label: "google-apis"},
}

// IsSystemProcess reports whether command matches any configured
// exclusion substring, case-insensitively, original §4.K bucket 1.
func IsSystemProcess(command string, exclusions []string) bool {
	if command == "" {
		return false
	}
	lc := strings.ToLower(command)
	for _, ex := range exclusions {
		if ex == "" {
			continue
		}
		if strings.Contains(lc, strings.ToLower(ex)) {
			return true
		}
	}
	return false
}

// MatchesInfra reports whether (host, port) matches any pattern, original
// §4.K bucket 2's pattern grammar.
func MatchesInfra(host string, port int, patterns []InfraPattern) (InfraPattern, bool) {
	host = strings.ToLower(host)
	for _, p := range patterns {
		if p.Port != 0 && port != 0 && p.Port != port {
			continue
		}
		if hostMatches(host, strings.ToLower(p.Host)) {
			return p, true
		}
	}
	return InfraPattern{}, false
}

// hostMatches implements the three host-pattern forms: exact, subdomain
// wildcard ("*.x" matches the bare apex "x" too), and a literal prefix
// wildcard for IPv4/IPv6 ("140.82.112.*", "2606:4700:*").
func hostMatches(host, pattern string) bool {
	if !strings.Contains(pattern, "*") {
		return host == pattern
	}
	if strings.HasPrefix(pattern, "*.") {
		apex := pattern[2:]
		return host == apex || strings.HasSuffix(host, "."+apex)
	}
	// Prefix wildcard: everything before the first "*" must match
	// literally; "*" stands for "anything, including nothing, after
	// this point" — compiled via gobwas/glob for the same engine the
	// file monitor's exclude globs use (original §4.K/§4.F share the
	// "*" semantics).
	g, err := glob.Compile(pattern)
	if err != nil {
		return strings.HasPrefix(host, strings.TrimSuffix(pattern, "*"))
	}
	return g.Match(host)
}

// Classify buckets one unmatched network witness. Rule priority from
// original §4.K: the system-process check runs first; infrastructure
// only applies when the process is not a system process.
func Classify(w *logstream.Witness, sysExclusions []string, infraPatterns []InfraPattern) Bucket {
	if w.Source != logstream.SourceNetwork {
		return BucketAgent
	}
	if IsSystemProcess(w.Event.Command, sysExclusions) {
		return BucketBackground
	}
	if _, ok := MatchesInfra(w.Event.RemoteHost, w.Event.RemotePort, infraPatterns); ok {
		return BucketInfrastructure
	}
	return BucketAgent
}

// ClassifyAll buckets every witness in unmatched, partitioning it into the
// three groups, original §8 invariant 5 ("classifier buckets partition
// the input"). Only filesystem and process witnesses ever land in
// BucketAgent unconditionally; network witnesses are routed through
// Classify.
func ClassifyAll(unmatched []*logstream.Witness, sysExclusions []string, infraPatterns []InfraPattern) (agent, background, infrastructure []*logstream.Witness) {
	for _, w := range unmatched {
		switch Classify(w, sysExclusions, infraPatterns) {
		case BucketBackground:
			background = append(background, w)
		case BucketInfrastructure:
			infrastructure = append(infrastructure, w)
		default:
			agent = append(agent, w)
		}
	}
	return agent, background, infrastructure
}
