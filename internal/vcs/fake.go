package vcs

import (
	"context"
	"fmt"
	"sync"

	"github.com/ralph-run/ralph/internal/model"
)

// Fake is an in-memory VCS used by tests of components that depend on the
// VCS interface without needing a real git repository.
type Fake struct {
	mu         sync.Mutex
	worktrees  map[string]*model.Worktree
	branches   map[string]bool
	files      map[string]map[string]string // branch -> path -> content
	dirty      map[string]bool
	MergeFunc  func(source, target string) (MergeOutcome, []string, error)
	conflicted []string
}

// NewFake constructs an empty Fake VCS.
func NewFake() *Fake {
	return &Fake{
		worktrees: map[string]*model.Worktree{},
		branches:  map[string]bool{"main": true},
		files:     map[string]map[string]string{},
		dirty:     map[string]bool{},
	}
}

func (f *Fake) CreateWorktree(ctx context.Context, taskID, baseBranch string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.branches[baseBranch] {
		return "", fmt.Errorf("fake vcs: base branch %q missing", baseBranch)
	}
	branch := model.BranchName(taskID)
	f.branches[branch] = true
	path := "/fake/.worktrees/" + taskID
	f.worktrees[taskID] = &model.Worktree{TaskID: taskID, Path: path, Branch: branch}
	return path, nil
}

func (f *Fake) RemoveWorktree(ctx context.Context, taskID string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !force && f.dirty[taskID] {
		return fmt.Errorf("fake vcs: %s dirty", taskID)
	}
	delete(f.worktrees, taskID)
	delete(f.dirty, taskID)
	return nil
}

func (f *Fake) HasUncommittedChanges(ctx context.Context, taskID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirty[taskID], nil
}

func (f *Fake) SetDirty(taskID string, dirty bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dirty[taskID] = dirty
}

func (f *Fake) CommitAll(ctx context.Context, taskID, message, authorName, authorEmail string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dirty[taskID] = false
	return "fakecommit-" + taskID, nil
}

func (f *Fake) ListWorktrees(ctx context.Context) ([]model.Worktree, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Worktree
	for _, w := range f.worktrees {
		out = append(out, *w)
	}
	return out, nil
}

func (f *Fake) BranchExists(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.branches[name], nil
}

func (f *Fake) DeleteBranch(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.branches, name)
	return nil
}

// PutFile seeds branch's copy of path for ShowFileAt/merge tests.
func (f *Fake) PutFile(branch, path, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.files[branch] == nil {
		f.files[branch] = map[string]string{}
	}
	f.files[branch][path] = content
}

func (f *Fake) ShowFileAt(ctx context.Context, branch, relativePath string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	byBranch, ok := f.files[branch]
	if !ok {
		return "", false, nil
	}
	content, ok := byBranch[relativePath]
	return content, ok, nil
}

func (f *Fake) Merge(ctx context.Context, source, target string) (MergeOutcome, []string, error) {
	if f.MergeFunc != nil {
		return f.MergeFunc(source, target)
	}
	return MergeSuccess, nil, nil
}

func (f *Fake) AbortMerge(ctx context.Context) error { return nil }
func (f *Fake) Stage(ctx context.Context, paths []string) error { return nil }
func (f *Fake) CommitMerge(ctx context.Context, message string) error { return nil }
