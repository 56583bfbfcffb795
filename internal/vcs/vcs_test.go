package vcs

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/ralph-run/ralph/internal/model"
)

// testRepo initializes a throwaway git repository with an initial commit
// on main, in the teacher's own test-fixture style.
func testRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	t.Setenv("GIT_AUTHOR_NAME", "Test User")
	t.Setenv("GIT_AUTHOR_EMAIL", "test@example.com")
	t.Setenv("GIT_COMMITTER_NAME", "Test User")
	t.Setenv("GIT_COMMITTER_EMAIL", "test@example.com")

	run(t, dir, "init", "-b", "main")
	run(t, dir, "config", "user.name", "Test User")
	run(t, dir, "config", "user.email", "test@example.com")

	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("base\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	run(t, dir, "add", ".")
	run(t, dir, "commit", "-m", "initial commit")
	return dir
}

func run(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}

func TestCreateWorktreeIdempotent(t *testing.T) {
	root := testRepo(t)
	g := New(root, ".worktrees")
	ctx := context.Background()

	path1, err := g.CreateWorktree(ctx, "T1", "main")
	if err != nil {
		t.Fatalf("CreateWorktree() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(path1, "scratch.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	path2, err := g.CreateWorktree(ctx, "T1", "main")
	if err != nil {
		t.Fatalf("second CreateWorktree() error = %v", err)
	}
	if path1 != path2 {
		t.Errorf("path changed across recreation: %s != %s", path1, path2)
	}
	if _, err := os.Stat(filepath.Join(path2, "scratch.txt")); err == nil {
		t.Errorf("recreated worktree still contains scratch.txt from first instance")
	}
}

func TestCreateWorktreeMissingBaseBranch(t *testing.T) {
	root := testRepo(t)
	g := New(root, ".worktrees")
	if _, err := g.CreateWorktree(context.Background(), "T1", "does-not-exist"); err == nil {
		t.Fatal("expected error for missing base branch")
	}
}

func TestMergeNoOpWhenAncestor(t *testing.T) {
	root := testRepo(t)
	g := New(root, ".worktrees")
	ctx := context.Background()

	if _, err := g.CreateWorktree(ctx, "T1", "main"); err != nil {
		t.Fatal(err)
	}

	outcome, conflicts, err := g.Merge(ctx, model.BranchName("T1"), "main")
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if outcome != MergeSuccess {
		t.Errorf("outcome = %v, want success", outcome)
	}
	if len(conflicts) != 0 {
		t.Errorf("conflicts = %v, want none", conflicts)
	}
}

func TestMergeConflictFallsBackToTier2(t *testing.T) {
	root := testRepo(t)
	g := New(root, ".worktrees")
	ctx := context.Background()

	path, err := g.CreateWorktree(ctx, "T1", "main")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(path, "f.txt"), []byte("B\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := g.CommitAll(ctx, "T1", "change on branch", "Test User", "test@example.com"); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(root, "f.txt"), []byte("A\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	run(t, root, "add", ".")
	run(t, root, "commit", "-m", "change on trunk")

	outcome, conflicts, err := g.Merge(ctx, model.BranchName("T1"), "main")
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if outcome != MergeConflicted {
		t.Fatalf("outcome = %v, want conflicted", outcome)
	}
	if len(conflicts) != 1 || conflicts[0] != "f.txt" {
		t.Errorf("conflicts = %v, want [f.txt]", conflicts)
	}
}

