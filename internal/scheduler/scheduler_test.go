package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ralph-run/ralph/internal/merge"
	"github.com/ralph-run/ralph/internal/model"
	"github.com/ralph-run/ralph/internal/pipeline"
	"github.com/ralph-run/ralph/internal/pool"
	"github.com/ralph-run/ralph/internal/vcs"
)

// fakeStore is an in-memory Store sufficient for the Scheduler's needs:
// readiness is purely dependency/approval based, matching internal/store's
// own GetReadyTasks semantics, reimplemented here against a plain map so
// these tests do not need a real sqlite file.
type fakeStore struct {
	mu    sync.Mutex
	tasks map[string]*model.Task
}

func newFakeStore(tasks ...*model.Task) *fakeStore {
	s := &fakeStore{tasks: map[string]*model.Task{}}
	for _, t := range tasks {
		s.tasks[t.ID] = t
	}
	return s
}

func (s *fakeStore) GetReadyTasks(specID string) ([]*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Task
	for _, t := range s.tasks {
		if t.Status == model.TaskStatusTodo {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) TryClaimTask(taskID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok || t.Status != model.TaskStatusTodo {
		return false, nil
	}
	t.Status = model.TaskStatusImplementing
	return true, nil
}

func (s *fakeStore) GetTask(id string) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, errNotFound
	}
	cp := *t
	return &cp, nil
}

var errNotFound = &notFoundError{}

type notFoundError struct{}

func (*notFoundError) Error() string { return "not found" }

func (s *fakeStore) UpdateTask(t *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.tasks[t.ID] = &cp
	return nil
}

func (s *fakeStore) ListTasks(specID string, status model.TaskStatus) ([]*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Task
	for _, t := range s.tasks {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (s *fakeStore) snapshot(id string) model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.tasks[id]
}

// blockingExecutor holds every task's Execute call open until released,
// letting tests observe how many run concurrently.
type blockingExecutor struct {
	mu      sync.Mutex
	running int
	maxSeen int
	calls   int
	release chan struct{}
	outcome pipeline.Outcome
}

func newBlockingExecutor(outcome pipeline.Outcome) *blockingExecutor {
	return &blockingExecutor{release: make(chan struct{}), outcome: outcome}
}

func (b *blockingExecutor) Execute(ctx context.Context, task *model.Task, worktreePath string) (pipeline.Outcome, error) {
	b.mu.Lock()
	b.running++
	b.calls++
	if b.running > b.maxSeen {
		b.maxSeen = b.running
	}
	b.mu.Unlock()

	select {
	case <-b.release:
	case <-ctx.Done():
	}

	b.mu.Lock()
	b.running--
	b.mu.Unlock()
	return b.outcome, nil
}

// TestScheduledBoundedConcurrency mirrors scenario S6: with pool capacity 2
// and 3 ready tasks, at most 2 execute at once; the third only starts once
// a slot frees.
func TestScheduledBoundedConcurrency(t *testing.T) {
	exec := newBlockingExecutor(pipeline.Outcome{Success: true})
	store := newFakeStore(
		&model.Task{ID: "T1", Status: model.TaskStatusTodo, Priority: 3, Metadata: map[string]any{}},
		&model.Task{ID: "T2", Status: model.TaskStatusTodo, Priority: 2, Metadata: map[string]any{}},
		&model.Task{ID: "T3", Status: model.TaskStatusTodo, Priority: 1, Metadata: map[string]any{}},
	)
	p := pool.New(2)
	fake := vcs.NewFake()

	sch := New(Config{
		Store:           store,
		Pool:            p,
		VCS:             fake,
		ExecutorFactory: func(slotID int) TaskExecutor { return exec },
		BaseBranch:      "main",
		PollInterval:    10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sch.Run(ctx) }()

	waitForCondition(t, func() bool {
		exec.mu.Lock()
		defer exec.mu.Unlock()
		return exec.running == 2
	})

	exec.mu.Lock()
	maxSeen := exec.maxSeen
	exec.mu.Unlock()
	if maxSeen > 2 {
		t.Fatalf("maxSeen concurrent = %d, want <= 2", maxSeen)
	}

	close(exec.release)
	waitForCondition(t, func() bool {
		exec.mu.Lock()
		defer exec.mu.Unlock()
		return exec.calls == 3
	})

	cancel()
	<-done
}

// TestMergeSuccessCleansUpWorktreeAndBranch drives a single task to a
// successful pipeline outcome and a successful merge, and expects the
// worktree and branch to be gone afterward.
func TestMergeSuccessCleansUpWorktreeAndBranch(t *testing.T) {
	store := newFakeStore(&model.Task{ID: "T1", Status: model.TaskStatusTodo, Priority: 1, Metadata: map[string]any{}})
	p := pool.New(1)
	fake := vcs.NewFake()
	exec := newBlockingExecutor(pipeline.Outcome{Success: true})
	close(exec.release) // never actually block in this test

	sch := New(Config{
		Store:           store,
		Pool:            p,
		VCS:             fake,
		ExecutorFactory: func(slotID int) TaskExecutor { return exec },
		Merger:          stubMerger{result: merge.Result{Success: true, Tier: merge.TierNative}},
		BaseBranch:      "main",
		PollInterval:    10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sch.Run(ctx) }()

	waitForCondition(t, func() bool {
		wts, _ := fake.ListWorktrees(context.Background())
		return len(wts) == 0 && store.snapshot("T1").Status != model.TaskStatusTodo
	})

	cancel()
	<-done

	if branch, _ := fake.BranchExists(context.Background(), model.BranchName("T1")); branch {
		t.Error("expected task branch to be deleted after a successful merge")
	}
}

// TestMergeFailureLeavesWorktreeAndFlagsTask drives a task to pipeline
// success but a failing merge, and expects the worktree/branch to remain
// and the task to carry merge_failed metadata.
func TestMergeFailureLeavesWorktreeAndFlagsTask(t *testing.T) {
	store := newFakeStore(&model.Task{ID: "T1", Status: model.TaskStatusTodo, Priority: 1, Metadata: map[string]any{}})
	p := pool.New(1)
	fake := vcs.NewFake()
	exec := newBlockingExecutor(pipeline.Outcome{Success: true})
	close(exec.release)

	sch := New(Config{
		Store:           store,
		Pool:            p,
		VCS:             fake,
		ExecutorFactory: func(slotID int) TaskExecutor { return exec },
		Merger:          stubMerger{result: merge.Result{Success: false, Tier: merge.TierFullRegenAI, Message: "all tiers failed"}},
		BaseBranch:      "main",
		PollInterval:    10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sch.Run(ctx) }()

	waitForCondition(t, func() bool {
		return store.snapshot("T1").Metadata["merge_failed"] != nil
	})

	cancel()
	<-done

	if got := store.snapshot("T1").Metadata["merge_failed"]; got != true {
		t.Errorf("merge_failed = %v, want true", got)
	}
	wts, _ := fake.ListWorktrees(context.Background())
	if len(wts) != 1 {
		t.Errorf("len(worktrees) = %d, want 1 (left in place after merge failure)", len(wts))
	}
	if ok, _ := fake.BranchExists(context.Background(), model.BranchName("T1")); !ok {
		t.Error("expected task branch to remain after a merge failure")
	}
}

// TestWorktreeCreationFailureReturnsTaskToTodo covers the case where the
// task can never start: failTask must put it back to todo with a reason,
// and the slot must still be released.
func TestWorktreeCreationFailureReturnsTaskToTodo(t *testing.T) {
	store := newFakeStore(&model.Task{ID: "T1", Status: model.TaskStatusTodo, Priority: 1, Metadata: map[string]any{}})
	p := pool.New(1)
	fake := vcs.NewFake() // only "main" exists, so CreateWorktree("does-not-exist", ...) fails

	sch := New(Config{
		Store:           store,
		Pool:            p,
		VCS:             fake,
		ExecutorFactory: func(slotID int) TaskExecutor { return newBlockingExecutor(pipeline.Outcome{Success: true}) },
		BaseBranch:      "does-not-exist",
		PollInterval:    10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sch.Run(ctx) }()

	waitForCondition(t, func() bool {
		return store.snapshot("T1").Status == model.TaskStatusTodo && store.snapshot("T1").Metadata["failure_reason"] != nil
	})

	cancel()
	<-done

	if st := p.Status(); st.Active != 0 {
		t.Errorf("pool.Status().Active = %d, want 0 (slot released after worktree failure)", st.Active)
	}
}

type stubMerger struct {
	result merge.Result
}

func (s stubMerger) MergeTask(ctx context.Context, sourceBranch, targetBranch string) merge.Result {
	return s.result
}

func waitForCondition(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
