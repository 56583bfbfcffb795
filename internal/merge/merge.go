// Package merge implements MergeEngine: folding a task branch into trunk
// using three strategies tried in order, each all-or-nothing. Grounded on
// the original MergeOrchestrator's GitAutoMerge / ConflictOnlyAIMerge /
// FullFileAIMerge tiers, adapted to the vcs.VCS abstraction and
// agent.Runner rather than shelling out to GitPython and the claude CLI
// directly.
package merge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ralph-run/ralph/internal/agent"
	"github.com/ralph-run/ralph/internal/vcs"
)

// Tier names which strategy resolved (or failed to resolve) a merge.
type Tier string

const (
	TierNative        Tier = "native"
	TierConflictAI    Tier = "conflict_ai"
	TierFullRegenAI   Tier = "full_regen_ai"
)

// Result is the outcome of MergeTask.
type Result struct {
	Success bool
	Tier    Tier
	Message string
}

const conflictMarkerStart = "<<<<<<< "
const conflictMarkerSep = "======="
const conflictMarkerEnd = ">>>>>>> "

// Engine drives the three-tier merge strategy. A single mutex serialises
// every tier's git operations, since all three mutate the same working
// copy via checkout.
type Engine struct {
	mu          sync.Mutex
	vcs         vcs.VCS
	runner      agent.Runner
	repoRoot    string
	timeout     time.Duration
	modelName   string
}

// Config configures an Engine.
type Config struct {
	VCS       vcs.VCS
	Runner    agent.Runner
	RepoRoot  string
	Timeout   time.Duration
	ModelName string
}

// New constructs an Engine from cfg.
func New(cfg Config) *Engine {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	return &Engine{
		vcs:       cfg.VCS,
		runner:    cfg.Runner,
		repoRoot:  cfg.RepoRoot,
		timeout:   timeout,
		modelName: cfg.ModelName,
	}
}

// MergeTask folds sourceBranch into targetBranch, trying native merge, then
// AI conflict-hunk resolution, then AI whole-file regeneration.
func (e *Engine) MergeTask(ctx context.Context, sourceBranch, targetBranch string) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	outcome, conflicts, err := e.vcs.Merge(ctx, sourceBranch, targetBranch)
	if err != nil {
		return Result{Success: false, Tier: TierNative, Message: fmt.Sprintf("merge failed: %v", err)}
	}
	switch outcome {
	case vcs.MergeSuccess:
		return Result{Success: true, Tier: TierNative, Message: fmt.Sprintf("merged %s into %s", sourceBranch, targetBranch)}
	case vcs.MergeError:
		return Result{Success: false, Tier: TierNative, Message: "native merge reported a non-conflict error"}
	}

	if r := e.tierConflictAI(ctx, sourceBranch, targetBranch, conflicts); r.Success {
		return r
	}

	return e.tierFullRegenAI(ctx, sourceBranch, targetBranch)
}

// tierConflictAI re-initiates the merge, resolves each conflicted file's
// marker-bearing content via the agent, and commits if every file resolves
// clean.
func (e *Engine) tierConflictAI(ctx context.Context, sourceBranch, targetBranch string, conflicts []string) Result {
	e.vcs.AbortMerge(ctx)
	outcome, conflicts2, err := e.vcs.Merge(ctx, sourceBranch, targetBranch)
	if err != nil {
		return Result{Success: false, Tier: TierConflictAI, Message: fmt.Sprintf("re-merge failed: %v", err)}
	}
	if outcome == vcs.MergeSuccess {
		return Result{Success: true, Tier: TierConflictAI, Message: "no conflicts on re-merge"}
	}
	if len(conflicts2) > 0 {
		conflicts = conflicts2
	}

	var failed []string
	var resolved []string
	for _, rel := range conflicts {
		full := filepath.Join(e.repoRoot, rel)
		content, readErr := os.ReadFile(full)
		if readErr != nil {
			failed = append(failed, fmt.Sprintf("%s: failed to read: %v", rel, readErr))
			continue
		}
		if !strings.Contains(string(content), conflictMarkerStart) {
			resolved = append(resolved, rel)
			continue
		}

		prompt := conflictResolutionPrompt(rel, string(content), sourceBranch, targetBranch)
		result, runErr := e.runner.Run(ctx, prompt, e.repoRoot, nil, e.modelName, e.timeout)
		if runErr != nil || !result.ExitOK {
			failed = append(failed, fmt.Sprintf("%s: agent resolution failed", rel))
			continue
		}

		resolvedContent := stripCodeFence(result.Text)
		if strings.Contains(resolvedContent, conflictMarkerStart) || strings.Contains(resolvedContent, conflictMarkerSep) || strings.Contains(resolvedContent, conflictMarkerEnd) {
			failed = append(failed, fmt.Sprintf("%s: AI output still contains conflict markers", rel))
			continue
		}

		if writeErr := os.WriteFile(full, []byte(resolvedContent), 0o644); writeErr != nil {
			failed = append(failed, fmt.Sprintf("%s: failed to write: %v", rel, writeErr))
			continue
		}
		resolved = append(resolved, rel)
	}

	if len(failed) > 0 {
		e.vcs.AbortMerge(ctx)
		return Result{Success: false, Tier: TierConflictAI, Message: fmt.Sprintf("AI resolution failed for %d file(s): %s", len(failed), strings.Join(firstN(failed, 3), "; "))}
	}

	if err := e.vcs.Stage(ctx, resolved); err != nil {
		e.vcs.AbortMerge(ctx)
		return Result{Success: false, Tier: TierConflictAI, Message: fmt.Sprintf("failed to stage: %v", err)}
	}
	if err := e.vcs.CommitMerge(ctx, fmt.Sprintf("Merge %s into %s (AI-resolved conflicts)", sourceBranch, targetBranch)); err != nil {
		e.vcs.AbortMerge(ctx)
		return Result{Success: false, Tier: TierConflictAI, Message: fmt.Sprintf("failed to commit: %v", err)}
	}

	return Result{Success: true, Tier: TierConflictAI, Message: fmt.Sprintf("AI resolved conflicts in %d file(s)", len(resolved))}
}

// tierFullRegenAI re-initiates the merge and, for each conflicted file,
// fetches both full versions and asks the agent to produce a merged
// version with no conflict markers present in its input.
func (e *Engine) tierFullRegenAI(ctx context.Context, sourceBranch, targetBranch string) Result {
	e.vcs.AbortMerge(ctx)
	outcome, conflicts, err := e.vcs.Merge(ctx, sourceBranch, targetBranch)
	if err != nil {
		return Result{Success: false, Tier: TierFullRegenAI, Message: fmt.Sprintf("re-merge failed: %v", err)}
	}
	if outcome == vcs.MergeSuccess {
		return Result{Success: true, Tier: TierFullRegenAI, Message: "no conflicts on re-merge"}
	}

	var failed []string
	var regenerated []string
	for _, rel := range conflicts {
		sourceContent, sourceOK, sErr := e.vcs.ShowFileAt(ctx, sourceBranch, rel)
		targetContent, targetOK, tErr := e.vcs.ShowFileAt(ctx, targetBranch, rel)
		if sErr != nil || tErr != nil {
			failed = append(failed, fmt.Sprintf("%s: failed to read branch content", rel))
			continue
		}
		if !sourceOK && !targetOK {
			failed = append(failed, fmt.Sprintf("%s: could not read from either branch", rel))
			continue
		}

		full := filepath.Join(e.repoRoot, rel)
		var final string

		switch {
		case !sourceOK:
			final = targetContent
		case !targetOK:
			final = sourceContent
		default:
			prompt := regenerationPrompt(rel, sourceContent, targetContent, sourceBranch, targetBranch)
			result, runErr := e.runner.Run(ctx, prompt, e.repoRoot, nil, e.modelName, e.timeout)
			if runErr != nil || !result.ExitOK || result.Text == "" {
				failed = append(failed, fmt.Sprintf("%s: agent regeneration failed", rel))
				continue
			}
			final = stripCodeFence(result.Text)
		}

		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			failed = append(failed, fmt.Sprintf("%s: failed to create directory: %v", rel, err))
			continue
		}
		if err := os.WriteFile(full, []byte(final), 0o644); err != nil {
			failed = append(failed, fmt.Sprintf("%s: failed to write: %v", rel, err))
			continue
		}
		regenerated = append(regenerated, rel)
	}

	if len(failed) > 0 {
		e.vcs.AbortMerge(ctx)
		return Result{Success: false, Tier: TierFullRegenAI, Message: fmt.Sprintf("AI regeneration failed for %d file(s): %s", len(failed), strings.Join(firstN(failed, 3), "; "))}
	}

	if err := e.vcs.Stage(ctx, regenerated); err != nil {
		e.vcs.AbortMerge(ctx)
		return Result{Success: false, Tier: TierFullRegenAI, Message: fmt.Sprintf("failed to stage: %v", err)}
	}
	if err := e.vcs.CommitMerge(ctx, fmt.Sprintf("Merge %s into %s (AI-regenerated files)", sourceBranch, targetBranch)); err != nil {
		e.vcs.AbortMerge(ctx)
		return Result{Success: false, Tier: TierFullRegenAI, Message: fmt.Sprintf("failed to commit: %v", err)}
	}

	return Result{Success: true, Tier: TierFullRegenAI, Message: fmt.Sprintf("AI regenerated %d conflicted file(s)", len(regenerated))}
}

func conflictResolutionPrompt(relPath, conflictedContent, sourceBranch, targetBranch string) string {
	return fmt.Sprintf(`You are resolving a git merge conflict. The file below contains conflict markers.

FILE: %s
SOURCE BRANCH: %s (the incoming changes)
TARGET BRANCH: %s (HEAD, the current branch)

CONFLICT MARKERS EXPLAINED:
- %sHEAD marks the start of the TARGET branch version
- %s separates the two versions
- %s%s marks the end of the SOURCE branch version

YOUR TASK:
1. Analyze each conflict section
2. Decide how to merge the changes (keep one side, combine both, or create a new version)
3. Output ONLY the fully resolved file content with NO conflict markers
4. Do NOT include any explanation - output ONLY the resolved file content

CONFLICTED FILE CONTENT:
%s

OUTPUT the resolved file content below (no markdown code blocks, no explanations):`,
		relPath, sourceBranch, targetBranch, conflictMarkerStart, conflictMarkerSep, conflictMarkerEnd, sourceBranch, conflictedContent)
}

func regenerationPrompt(relPath, sourceContent, targetContent, sourceBranch, targetBranch string) string {
	return fmt.Sprintf(`You are merging two versions of a file. Your task is to intelligently combine both versions into a single coherent file.

FILE: %s

SOURCE BRANCH (%s) - The incoming changes:
%s

TARGET BRANCH (%s) - The current version:
%s

YOUR TASK:
1. Analyze both versions carefully
2. Identify what each version adds, removes, or changes
3. Create a merged version that incorporates changes from both branches, resolving contradictions intelligently
4. Output ONLY the merged file content, no explanation

OUTPUT the merged file content below (no markdown code blocks, no explanations):`,
		relPath, sourceBranch, sourceContent, targetBranch, targetContent)
}

// stripCodeFence removes a leading/trailing ``` fence the agent may have
// wrapped its output in, despite being asked not to.
func stripCodeFence(s string) string {
	t := strings.TrimSpace(s)
	if strings.HasPrefix(t, "```") && strings.HasSuffix(t, "```") {
		lines := strings.Split(t, "\n")
		if len(lines) > 2 {
			return strings.Join(lines[1:len(lines)-1], "\n")
		}
	}
	return s
}

func firstN(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
