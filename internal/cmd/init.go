package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ralph-run/ralph/internal/config"
	"github.com/ralph-run/ralph/internal/vcs"
)

// defaultConfigTemplate mirrors the keys config.applyDefaults recognises.
// Load fills in any key a written config.yaml omits, so this only needs to
// document the recognised keys for the user to edit.
const defaultConfigTemplate = `agents:
  max_parallel: 6
  default_model: sonnet
  roles: {}

execution:
  max_iterations: 10
  timeout_minutes: 10
  worktree_dir: .worktrees

database:
  path: .ralph/ralph.db
  sync_jsonl: true

ralph:
  enabled: true
  max_iterations: 10
  default_verification: string_match
  agent_defaults: {}
`

func init() {
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold a ralph project in the current (or --root) directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveRoot()
		if err != nil {
			return err
		}
		return runInit(root)
	},
}

func runInit(root string) error {
	dotDir := config.DotDir(root)
	if err := os.MkdirAll(dotDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dotDir, err)
	}

	specsDir := filepath.Join(root, "specs")
	if err := os.MkdirAll(specsDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", specsDir, err)
	}

	cfgPath := filepath.Join(dotDir, "config.yaml")
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := os.WriteFile(cfgPath, []byte(defaultConfigTemplate), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", cfgPath, err)
		}
	}

	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := vcs.EnsureWorktreeGitignore(root, cfg.Execution.WorktreeDir); err != nil {
		return fmt.Errorf("update .gitignore: %w", err)
	}

	newPrinter().PrintSuccess(fmt.Sprintf("Initialized ralph project at %s", root))
	return nil
}
