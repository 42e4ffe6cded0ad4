// Package main is the CLI entry point for agenttrust — a local
// trust-and-audit layer that sits beside an autonomous agent, recording
// its declared intentions and actual executions as a hash-chained log,
// independently witnessing what the host actually observed, and scoring
// how well the three agree.
//
// CLI commands (cobra):
//
//	agenttrust init             - Initialize the workspace directory
//	agenttrust claim            - Record a declared intent
//	agenttrust exec             - Record an actual execution
//	agenttrust witness start    - Run the witness daemon in the foreground
//	agenttrust witness doctor   - Sample the three monitors and report health
//	agenttrust verify           - Verify one stream's hash chain
//	agenttrust correlate        - Match witness events to executions
//	agenttrust score            - Compose the full trust verdict
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/agenttrust/agenttrust/internal/wsconfig"
)

// workspaceRoot is the global --workspace flag, defaulting to
// ~/.agenttrust. Every subcommand resolves its Layout from this.
var workspaceRoot string

var rootCmd = &cobra.Command{
	Use:   "agenttrust",
	Short: "agenttrust — a local trust-and-audit layer for autonomous agents",
	Long: `agenttrust records what an agent says it will do (claims), what it
actually did (executions), and what the host independently observed
(witness events) as three hash-chained logs, then correlates and scores
them into a single trust verdict.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&workspaceRoot,
		"workspace",
		defaultWorkspaceRoot(),
		"Path to the agenttrust workspace directory",
	)

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(claimCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(witnessCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(correlateCmd)
	rootCmd.AddCommand(scoreCmd)
}

func defaultWorkspaceRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "." + wsconfig.DirName
	}
	return filepath.Join(home, wsconfig.DirName)
}

// layout resolves the workspace Layout from the --workspace flag.
func layout() wsconfig.Layout {
	return wsconfig.NewLayout(wsconfig.ExpandHome(workspaceRoot))
}

// loadConfig loads config.yaml from the current workspace, defaults on
// a missing file.
func loadConfig(l wsconfig.Layout) (*wsconfig.Config, error) {
	return wsconfig.Load(l.Config)
}

func requireWorkspace(l wsconfig.Layout) error {
	if !l.Exists() {
		return fmt.Errorf("workspace %s not found, run `agenttrust init` first", l.Root)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
