package wsconfig

import (
	"fmt"
	"os"
	"path/filepath"
)

// Layout resolves the on-disk directories under a workspace root,
// original §6.1: `ledger/`, `claims/`, `witness/`, `digests/`.
type Layout struct {
	Root    string
	Ledger  string
	Claims  string
	Witness string
	Digests string
	Config  string
}

// NewLayout resolves a Layout from an expanded (no "~") workspace root.
func NewLayout(root string) Layout {
	return Layout{
		Root:    root,
		Ledger:  filepath.Join(root, LedgerDir),
		Claims:  filepath.Join(root, ClaimsDir),
		Witness: filepath.Join(root, WitnessDir),
		Digests: filepath.Join(root, DigestsDir),
		Config:  filepath.Join(root, ConfigFile),
	}
}

// EnsureDirs creates every workspace subdirectory with original §6.1's
// 0o700 mode, including the root itself.
func (l Layout) EnsureDirs() error {
	for _, dir := range []string{l.Root, l.Ledger, l.Claims, l.Witness, l.Digests} {
		if err := os.MkdirAll(dir, DirMode); err != nil {
			return fmt.Errorf("wsconfig: creating %s: %w", dir, err)
		}
	}
	return nil
}

// Exists reports whether the workspace root has already been initialized.
func (l Layout) Exists() bool {
	info, err := os.Stat(l.Root)
	return err == nil && info.IsDir()
}
