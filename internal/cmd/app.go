package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ralph-run/ralph/internal/agent"
	"github.com/ralph-run/ralph/internal/config"
	"github.com/ralph-run/ralph/internal/merge"
	"github.com/ralph-run/ralph/internal/pipeline"
	"github.com/ralph-run/ralph/internal/store"
	"github.com/ralph-run/ralph/internal/ui"
	"github.com/ralph-run/ralph/internal/vcs"
)

// loadApp resolves --root, loads its config, and opens its store. Every
// command that touches project state starts here.
func loadApp() (*config.Config, *store.Store, error) {
	root, err := resolveRoot()
	if err != nil {
		return nil, nil, fmt.Errorf("resolve project root: %w", err)
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	jsonlPath := filepath.Join(config.DotDir(root), "specs.jsonl")
	st, err := store.Open(cfg.Database.Path, cfg.Database.SyncJSONL, jsonlPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return cfg, st, nil
}

func newPrinter() *ui.Printer {
	return ui.New(true, true)
}

// fileSpecText reads a task's spec and plan markdown from
// <root>/specs/<spec_id>/{spec.md,plan.md}, per the layout the teacher's
// config/worktree directories follow for per-project subtrees.
type fileSpecText struct {
	root string
}

func (f fileSpecText) Read(specID string) (specMD, planMD string) {
	dir := filepath.Join(f.root, "specs", specID)
	if b, err := os.ReadFile(filepath.Join(dir, "spec.md")); err == nil {
		specMD = string(b)
	}
	if b, err := os.ReadFile(filepath.Join(dir, "plan.md")); err == nil {
		planMD = string(b)
	}
	return specMD, planMD
}

func newVCS(cfg *config.Config) *vcs.Git {
	return vcs.New(cfg.Root, cfg.Execution.WorktreeDir)
}

func newRunner() agent.Runner {
	return agent.New("claude")
}

func newMergeEngine(cfg *config.Config, v vcs.VCS, runner agent.Runner) *merge.Engine {
	return merge.New(merge.Config{
		VCS:       v,
		Runner:    runner,
		RepoRoot:  cfg.Root,
		Timeout:   cfg.Execution.Timeout(),
		ModelName: cfg.Agents.DefaultModel,
	})
}

func newPipelineConfig(cfg *config.Config, st *store.Store, runner agent.Runner, slotID int) pipeline.Config {
	return pipeline.Config{
		Store:        st,
		Runner:       runner,
		SpecText:     fileSpecText{root: cfg.Root},
		RalphEnabled: cfg.Ralph.Enabled,
		StageTimeout: cfg.Execution.Timeout(),
		ModelForRole: cfg.Agents.ModelFor,
		SlotID:       slotID,
	}
}
