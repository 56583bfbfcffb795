package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/ralph-run/ralph/internal/agent"
	"github.com/ralph-run/ralph/internal/model"
)

type fakeStore struct {
	tasks       map[string]*model.Task
	specs       map[string]*model.Spec
	logs        []*model.ExecutionLogEntry
	registered  int
	deregistered int
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: map[string]*model.Task{}, specs: map[string]*model.Spec{}}
}

func (s *fakeStore) GetSpec(id string) (*model.Spec, error) { return s.specs[id], nil }
func (s *fakeStore) UpdateTask(t *model.Task) error {
	cp := *t
	s.tasks[t.ID] = &cp
	return nil
}
func (s *fakeStore) RegisterAgent(taskID string, role model.AgentRole, slotID int, worktreePath string) error {
	s.registered++
	return nil
}
func (s *fakeStore) DeregisterAgent(taskID string) error {
	s.deregistered++
	return nil
}
func (s *fakeStore) LogExecution(e *model.ExecutionLogEntry) error {
	s.logs = append(s.logs, e)
	return nil
}

type scriptedRunner struct {
	outputs []string
	calls   int
}

func (r *scriptedRunner) Run(ctx context.Context, prompt, cwd string, allowedTools []string, modelName string, timeout time.Duration) (agent.Result, error) {
	i := r.calls
	if i >= len(r.outputs) {
		i = len(r.outputs) - 1
	}
	r.calls++
	return agent.Result{Text: r.outputs[i], ExitOK: true}, nil
}

func newTask(id string) *model.Task {
	return &model.Task{
		ID:       id,
		SpecID:   "S1",
		Title:    "do the thing",
		Status:   model.TaskStatusTodo,
		Priority: 1,
		Metadata: map[string]any{},
	}
}

// TestExecuteAllStagesSucceed drives a task through all four default
// stages, each satisfied on the first iteration, and expects a done task.
func TestExecuteAllStagesSucceed(t *testing.T) {
	store := newFakeStore()
	runner := &scriptedRunner{outputs: []string{
		"work done <promise>IMPLEMENTATION_COMPLETE</promise>",
		"looks good <promise>REVIEW_PASSED</promise>",
		"tests pass <promise>TESTS_PASSED</promise>",
		"validated <promise>QA_PASSED</promise>",
	}}

	exec := New(Config{Store: store, Runner: runner, RalphEnabled: true})
	task := newTask("T1")

	outcome, err := exec.Execute(context.Background(), task, t.TempDir())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !outcome.Success {
		t.Fatalf("Success = false, want true: stage=%s reason=%s", outcome.FailureStage, outcome.FailureReason)
	}
	if task.Status != model.TaskStatusDone {
		t.Errorf("task.Status = %v, want done", task.Status)
	}
	if store.registered != 4 || store.deregistered != 4 {
		t.Errorf("registered=%d deregistered=%d, want 4 and 4", store.registered, store.deregistered)
	}
}

// TestExecuteStageFailureReturnsTaskToTodo mirrors scenario S2: with a
// 2-iteration Implementation budget, the coder stage never emits a
// satisfied promise and exhausts that budget.
func TestExecuteStageFailureReturnsTaskToTodo(t *testing.T) {
	store := newFakeStore()
	runner := &scriptedRunner{outputs: []string{"still working", "still working"}}

	pipe := append([]Stage(nil), DefaultPipeline...)
	pipe[0].MaxIterations = 2
	exec := New(Config{Store: store, Runner: runner, RalphEnabled: true, Pipeline: pipe})
	task := newTask("T1")

	outcome, err := exec.Execute(context.Background(), task, t.TempDir())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if outcome.Success {
		t.Fatal("Success = true, want false")
	}
	if outcome.FailureStage != "Implementation" {
		t.Errorf("FailureStage = %q, want Implementation", outcome.FailureStage)
	}
	if task.Status != model.TaskStatusTodo {
		t.Errorf("task.Status = %v, want todo", task.Status)
	}
	if task.Metadata["failure_stage"] != "Implementation" {
		t.Errorf("Metadata[failure_stage] = %v, want Implementation", task.Metadata["failure_stage"])
	}
	if task.Metadata["ralph_iterations"] != 2 {
		t.Errorf("Metadata[ralph_iterations] = %v, want 2", task.Metadata["ralph_iterations"])
	}
}

// TestExecuteRalphSuccessOnSecondTry mirrors scenario S3.
func TestExecuteRalphSuccessOnSecondTry(t *testing.T) {
	store := newFakeStore()
	runner := &scriptedRunner{outputs: []string{
		"working...",
		"done! <promise>IMPLEMENTATION_COMPLETE</promise>",
		"looks good <promise>REVIEW_PASSED</promise>",
		"tests pass <promise>TESTS_PASSED</promise>",
		"validated <promise>QA_PASSED</promise>",
	}}

	exec := New(Config{Store: store, Runner: runner, RalphEnabled: true})
	task := newTask("T1")

	outcome, err := exec.Execute(context.Background(), task, t.TempDir())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !outcome.Success {
		t.Fatalf("Success = false, want true: %s", outcome.FailureReason)
	}
}

func TestExecuteLegacyMarkersWhenRalphDisabled(t *testing.T) {
	store := newFakeStore()
	runner := &scriptedRunner{outputs: []string{
		"IMPLEMENTATION COMPLETE",
		"REVIEW PASSED",
		"TESTS PASSED",
		"QA PASSED",
	}}

	exec := New(Config{Store: store, Runner: runner, RalphEnabled: false})
	task := newTask("T1")

	outcome, err := exec.Execute(context.Background(), task, t.TempDir())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !outcome.Success {
		t.Fatalf("Success = false, want true: %s", outcome.FailureReason)
	}
}
