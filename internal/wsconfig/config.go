// Package wsconfig handles the workspace layout (original §6.1) and the
// top-level `.agenttrust/config.yaml` (original §6.4, SPEC_FULL.md §C.4):
// loading, validating, and writing defaults, plus resolving the
// directory paths each stream and the witness daemon write into.
package wsconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/agenttrust/agenttrust/internal/classify"
)

// Workspace dir/file names, original §6.1.
const (
	DirName       = ".agenttrust"
	LedgerDir     = "ledger"
	ClaimsDir     = "claims"
	WitnessDir    = "witness"
	DigestsDir    = "digests"
	ConfigFile    = "config.yaml"
	DirMode       = 0o700
	FileMode      = 0o600
	ExecutionKind = "ledger"
	ClaimKind     = "claims"
	WitnessKind   = "witness"
)

// WorkspaceConfig resolves the workspace root, original §6.4 `workspace.root`.
type WorkspaceConfig struct {
	Root string `yaml:"root"`
}

// GatewayConfig locates the agent process, original §6.4 `gateway`.
type GatewayConfig struct {
	PidFile     string `yaml:"pidFile"`
	ProcessName string `yaml:"processName"`
}

// WitnessConfig is the witness daemon's on-disk configuration, original §6.4.
type WitnessConfig struct {
	Enabled          bool          `yaml:"enabled"`
	WatchPaths       []string      `yaml:"watchPaths"`
	ExcludePaths     []string      `yaml:"excludePaths"`
	ProcessPollingMs int           `yaml:"processPollingMs"`
	NetworkPollingMs int           `yaml:"networkPollingMs"`
	BufferSize       int           `yaml:"bufferSize"`
	FlushIntervalMs  int           `yaml:"flushIntervalMs"`
	Gateway          GatewayConfig `yaml:"gateway"`
}

// RulesConfig points at the custom rule file, original §6.3.
type RulesConfig struct {
	Path string `yaml:"path"`
}

// InfraPatternConfig is one on-disk infrastructure pattern entry,
// original §6.3/§4.K.
type InfraPatternConfig struct {
	Host  string `yaml:"host"`
	Port  int    `yaml:"port,omitempty"`
	Label string `yaml:"label"`
}

// ScoringConfig carries the trust scorer's configurable inputs, original
// §4.K/§4.L.
type ScoringConfig struct {
	InfrastructurePatterns []InfraPatternConfig `yaml:"infrastructurePatterns"`
}

// Config is the top-level `.agenttrust/config.yaml` shape, SPEC_FULL.md §C.4.
type Config struct {
	Workspace WorkspaceConfig `yaml:"workspace"`
	Witness   WitnessConfig   `yaml:"witness"`
	Rules     RulesConfig     `yaml:"rules"`
	Scoring   ScoringConfig   `yaml:"scoring"`
}

// Load reads and parses path. A missing file yields defaults (not an
// error, original §6.3 "missing config is silent"); malformed YAML is an
// error surfaced to the caller. A shape mismatch anywhere in the file,
// including inside the rules or scoring sections, is returned as an error
// too; no section falls back to an empty list.
func Load(path string) (*Config, error) {
	cfg := applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("wsconfig: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("wsconfig: parsing %s: %w", path, err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("wsconfig: invalid config: %w", err)
	}

	return expandHome(cfg), nil
}

// WriteDefault writes a default config.yaml, used by `agenttrust init`.
func WriteDefault(path string) error {
	cfg := applyDefaults()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("wsconfig: marshaling default config: %w", err)
	}

	header := "# agenttrust configuration\n# See original §6.4 for the full schema.\n\n"
	if err := os.MkdirAll(filepath.Dir(path), DirMode); err != nil {
		return fmt.Errorf("wsconfig: creating config directory: %w", err)
	}
	return os.WriteFile(path, []byte(header+string(data)), FileMode)
}

func applyDefaults() *Config {
	return &Config{
		Workspace: WorkspaceConfig{Root: filepath.Join("~", DirName)},
		Witness: WitnessConfig{
			Enabled:          true,
			ProcessPollingMs: 1000,
			NetworkPollingMs: 1000,
			BufferSize:       200,
			FlushIntervalMs:  5000,
		},
		Rules: RulesConfig{Path: filepath.Join("~", DirName, "rules.yaml")},
		Scoring: ScoringConfig{
			InfrastructurePatterns: builtinInfraPatternConfigs(),
		},
	}
}

func builtinInfraPatternConfigs() []InfraPatternConfig {
	out := make([]InfraPatternConfig, 0, len(classify.BuiltinInfraPatterns))
	for _, p := range classify.BuiltinInfraPatterns {
		out = append(out, InfraPatternConfig{Host: p.Host, Port: p.Port, Label: p.Label})
	}
	return out
}

func validate(cfg *Config) error {
	if cfg.Workspace.Root == "" {
		return fmt.Errorf("workspace.root must not be empty")
	}
	if cfg.Witness.ProcessPollingMs < 0 || cfg.Witness.NetworkPollingMs < 0 {
		return fmt.Errorf("witness polling intervals must be non-negative")
	}
	if cfg.Witness.BufferSize < 0 {
		return fmt.Errorf("witness.bufferSize must be non-negative")
	}
	return nil
}

// expandHome expands a leading "~" to the user's home directory in every
// path-shaped field, original §6.4 "`~` expands to the user home".
func expandHome(cfg *Config) *Config {
	cfg.Workspace.Root = ExpandHome(cfg.Workspace.Root)
	cfg.Rules.Path = ExpandHome(cfg.Rules.Path)
	cfg.Witness.Gateway.PidFile = ExpandHome(cfg.Witness.Gateway.PidFile)
	for i, p := range cfg.Witness.WatchPaths {
		cfg.Witness.WatchPaths[i] = ExpandHome(p)
	}
	return cfg
}

// ExpandHome expands a leading "~" or "~/" to the current user's home
// directory. Paths that don't start with "~" are returned unchanged.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

// InfraPatterns converts the loaded config's patterns into
// classify.InfraPattern, unioned with the built-ins at the call site.
func (c *Config) InfraPatterns() []classify.InfraPattern {
	out := make([]classify.InfraPattern, 0, len(c.Scoring.InfrastructurePatterns))
	for _, p := range c.Scoring.InfrastructurePatterns {
		out = append(out, classify.InfraPattern{Host: p.Host, Port: p.Port, Label: p.Label})
	}
	return out
}
