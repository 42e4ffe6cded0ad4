package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agenttrust/agenttrust/internal/wsconfig"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the agenttrust workspace",
	Long: `Creates the workspace directory (ledger/, claims/, witness/, digests/)
and writes a default config.yaml if one doesn't already exist.`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	l := layout()

	if err := l.EnsureDirs(); err != nil {
		return fmt.Errorf("init: %w", err)
	}

	if _, err := os.Stat(l.Config); os.IsNotExist(err) {
		if err := wsconfig.WriteDefault(l.Config); err != nil {
			return fmt.Errorf("init: writing default config: %w", err)
		}
	}

	fmt.Printf("initialized agenttrust workspace at %s\n", l.Root)
	return nil
}
