// Package pipeline implements PipelineExecutor: running one task through
// its ordered stages, each stage a RalphLoop, persisting progress and task
// status transitions to Store as it goes. Grounded on the teacher's
// execution_engine.go call shape and the original ExecutionPipeline's
// stage/prompt structure.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ralph-run/ralph/internal/agent"
	"github.com/ralph-run/ralph/internal/logging"
	"github.com/ralph-run/ralph/internal/model"
	"github.com/ralph-run/ralph/internal/ralph"
	"github.com/ralph-run/ralph/internal/verify"
)

// Stage is one step of the fixed pipeline.
type Stage struct {
	Name          string
	Role          model.AgentRole
	MaxIterations int
}

// DefaultPipeline is coder → reviewer → tester → qa, with the iteration
// budgets the specification fixes for each.
var DefaultPipeline = []Stage{
	{Name: "Implementation", Role: model.RoleCoder, MaxIterations: 3},
	{Name: "Code Review", Role: model.RoleReviewer, MaxIterations: 2},
	{Name: "Testing", Role: model.RoleTester, MaxIterations: 2},
	{Name: "QA Validation", Role: model.RoleQA, MaxIterations: 10},
}

// GlobalMaxIterations bounds the sum of ralph iterations across every
// stage for one task, independent of per-stage budgets.
const GlobalMaxIterations = 10

// stageStatus returns the task status a stage transitions into. QA reuses
// the reviewing status, per the specification's state diagram.
func stageStatus(role model.AgentRole) model.TaskStatus {
	switch role {
	case model.RoleCoder:
		return model.TaskStatusImplementing
	case model.RoleReviewer, model.RoleQA:
		return model.TaskStatusReviewing
	case model.RoleTester:
		return model.TaskStatusTesting
	default:
		return model.TaskStatusImplementing
	}
}

// Store is the subset of internal/store.Store this component depends on.
type Store interface {
	GetSpec(id string) (*model.Spec, error)
	UpdateTask(t *model.Task) error
	RegisterAgent(taskID string, role model.AgentRole, slotID int, worktreePath string) error
	DeregisterAgent(taskID string) error
	LogExecution(e *model.ExecutionLogEntry) error
}

// MemorySink receives agent output for cross-task context extraction.
// Implementations that do not need this may use NopMemorySink.
type MemorySink interface {
	Extract(output, source, specID string)
}

// NopMemorySink discards everything given to it.
type NopMemorySink struct{}

// Extract implements MemorySink by doing nothing.
func (NopMemorySink) Extract(string, string, string) {}

// SpecText supplies the spec.md/plan.md bodies for prompt construction.
// Implementations typically read <root>/specs/<spec_id>/{spec.md,plan.md}.
type SpecText interface {
	Read(specID string) (specMD, planMD string)
}

// Executor runs tasks through the fixed pipeline.
type Executor struct {
	store      Store
	runner     agent.Runner
	verifier   *verify.Verifier
	memory     MemorySink
	specText   SpecText
	pipeline   []Stage
	ralphOn    bool
	timeout    time.Duration
	modelFor   func(model.AgentRole) string
	slotID     int
	log        *zap.SugaredLogger
}

// Config configures an Executor.
type Config struct {
	Store         Store
	Runner        agent.Runner
	Memory        MemorySink
	SpecText      SpecText
	Pipeline      []Stage
	RalphEnabled  bool
	StageTimeout  time.Duration
	ModelForRole  func(model.AgentRole) string
	SlotID        int
}

// New constructs an Executor from cfg, filling sane defaults for anything
// left zero-valued.
func New(cfg Config) *Executor {
	pipe := cfg.Pipeline
	if pipe == nil {
		pipe = DefaultPipeline
	}
	mem := cfg.Memory
	if mem == nil {
		mem = NopMemorySink{}
	}
	timeout := cfg.StageTimeout
	if timeout == 0 {
		timeout = 10 * time.Minute
	}
	modelFor := cfg.ModelForRole
	if modelFor == nil {
		modelFor = func(model.AgentRole) string { return "" }
	}
	return &Executor{
		store:    cfg.Store,
		runner:   cfg.Runner,
		verifier: verify.New(),
		memory:   mem,
		specText: cfg.SpecText,
		pipeline: pipe,
		ralphOn:  cfg.RalphEnabled,
		timeout:  timeout,
		modelFor: modelFor,
		slotID:   cfg.SlotID,
		log:      logging.New("pipeline"),
	}
}

// Outcome is the final result of running a task through the pipeline.
type Outcome struct {
	Success        bool
	FailureStage   string
	FailureReason  string
	RalphIterations int
}

// Execute runs task through every stage in order, in worktreePath, stopping
// at the first stage failure. On success the task's status becomes done;
// on failure it returns to todo with failure metadata recorded.
func (e *Executor) Execute(ctx context.Context, task *model.Task, worktreePath string) (Outcome, error) {
	totalIterations := 0

	for _, stage := range e.pipeline {
		e.log.Infow("stage starting", "task_id", task.ID, "stage", stage.Name, "role", stage.Role)

		if err := e.store.RegisterAgent(task.ID, stage.Role, e.slotID, worktreePath); err != nil {
			return Outcome{}, fmt.Errorf("pipeline: register agent: %w", err)
		}

		task.Status = stageStatus(stage.Role)
		if err := e.store.UpdateTask(task); err != nil {
			e.store.DeregisterAgent(task.ID)
			return Outcome{}, fmt.Errorf("pipeline: update task status: %w", err)
		}

		success, reason, iterations, err := e.runStage(ctx, task, stage, worktreePath, totalIterations)
		e.store.DeregisterAgent(task.ID)
		if err != nil {
			return Outcome{}, err
		}

		totalIterations += iterations
		task.Iteration = totalIterations
		if err := e.store.UpdateTask(task); err != nil {
			return Outcome{}, fmt.Errorf("pipeline: persist iteration count: %w", err)
		}

		if !success {
			e.log.Warnw("stage failed", "task_id", task.ID, "stage", stage.Name, "reason", reason, "iterations", iterations)

			task.Status = model.TaskStatusTodo
			if task.Metadata == nil {
				task.Metadata = map[string]any{}
			}
			task.Metadata["failure_stage"] = stage.Name
			task.Metadata["failure_reason"] = reason
			task.Metadata["ralph_iterations"] = iterations
			if err := e.store.UpdateTask(task); err != nil {
				return Outcome{}, fmt.Errorf("pipeline: persist failure: %w", err)
			}
			return Outcome{Success: false, FailureStage: stage.Name, FailureReason: reason, RalphIterations: iterations}, nil
		}

		e.log.Infow("stage passed", "task_id", task.ID, "stage", stage.Name, "iterations", iterations)
	}

	task.Status = model.TaskStatusDone
	now := time.Now()
	task.CompletedAt = &now
	if err := e.store.UpdateTask(task); err != nil {
		return Outcome{}, fmt.Errorf("pipeline: persist completion: %w", err)
	}
	e.log.Infow("task completed", "task_id", task.ID, "iterations", totalIterations)
	return Outcome{Success: true, RalphIterations: totalIterations}, nil
}

// runStage drives one stage's RalphLoop, returning whether the stage
// succeeded, the terminal reason, and how many iterations it consumed.
func (e *Executor) runStage(ctx context.Context, task *model.Task, stage Stage, worktreePath string, totalSoFar int) (bool, string, int, error) {
	criteria := criteriaFor(task, stage.Role)
	maxIter := stage.MaxIterations
	if remaining := GlobalMaxIterations - totalSoFar; remaining < maxIter {
		maxIter = remaining
	}
	if maxIter < 1 {
		maxIter = 1
	}

	loop := ralph.Start(e.verifier, task.ID, stage.Role, maxIter, criteria, task.AcceptanceCriteria)

	var specMD, planMD string
	if e.specText != nil {
		specMD, planMD = e.specText.Read(task.SpecID)
	}

	for {
		if ctx.Err() != nil {
			return false, "cancelled", loop.Iteration, ctx.Err()
		}

		loop.Increment()
		prompt := e.buildPrompt(task, stage, worktreePath, specMD, planMD, loop)

		result, err := e.runner.Run(ctx, prompt, worktreePath, stage.Role.AllowedTools(), e.modelFor(stage.Role), e.timeout)
		if err != nil {
			e.log.Errorw("agent runner error", "task_id", task.ID, "stage", stage.Name, "iteration", loop.Iteration, "error", err)
			return false, fmt.Sprintf("agent runner error: %v", err), loop.Iteration, nil
		}

		e.memory.Extract(result.Text, fmt.Sprintf("%s:%s", stage.Role, task.ID), task.SpecID)

		logErr := e.store.LogExecution(&model.ExecutionLogEntry{
			ID:        fmt.Sprintf("%s-%s-%d", task.ID, stage.Name, loop.Iteration),
			TaskID:    task.ID,
			StageName: stage.Name,
			AgentRole: stage.Role,
			Iteration: loop.Iteration,
			Output:    truncate(result.Text, 10000),
			Passed:    result.ExitOK,
			Timestamp: time.Now(),
		})
		if logErr != nil {
			return false, "", loop.Iteration, fmt.Errorf("pipeline: log execution: %w", logErr)
		}

		if !e.ralphOn {
			ok := checkLegacyIndicator(result.Text)
			if ok {
				return true, "legacy marker matched", loop.Iteration, nil
			}
			if loop.Iteration >= maxIter {
				return false, "legacy marker not found within iteration budget", loop.Iteration, nil
			}
			continue
		}

		cont, reason, err := loop.ShouldContinue(result.Text, worktreePath)
		if err != nil {
			return false, "", loop.Iteration, fmt.Errorf("pipeline: ralph loop: %w", err)
		}
		if !cont {
			outcome := loop.Finish()
			return outcome.Success, reason, outcome.Iterations, nil
		}
	}
}

// criteriaFor returns the task's role-specific completion criteria if a
// completion spec exists, else nil so ralph.Start synthesises a default.
func criteriaFor(task *model.Task, role model.AgentRole) *model.CompletionCriteria {
	if task.Completion == nil {
		return nil
	}
	if c, ok := task.Completion.PerRole[role]; ok {
		return &c
	}
	return nil
}

// checkLegacyIndicator recognises the plain-text success markers used when
// ralph is disabled. Failure markers (REVIEW FAILED, BLOCKED:, ...) are not
// detected: output without a success marker counts as not done, and the
// stage keeps iterating until its budget is spent.
func checkLegacyIndicator(output string) bool {
	upper := strings.ToUpper(output)
	for _, indicator := range []string{
		"IMPLEMENTATION COMPLETE", "REVIEW PASSED", "TESTS PASSED", "QA PASSED", "STATUS: SUCCESS",
	} {
		if strings.Contains(upper, indicator) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// buildPrompt assembles header + spec text + plan text + memory context +
// follow-up-creation instructions + role-specific instructions + (when
// ralph is active) the ralph suffix.
func (e *Executor) buildPrompt(task *model.Task, stage Stage, worktreePath, specMD, planMD string, loop *ralph.Loop) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are the %s agent working on task %s.\n\n", stage.Role, task.ID)
	fmt.Fprintf(&b, "## Task Information\n- **Task ID**: %s\n- **Title**: %s\n- **Description**: %s\n- **Priority**: %d\n- **Stage**: %s\n\n",
		task.ID, task.Title, task.Description, task.Priority, stage.Name)
	fmt.Fprintf(&b, "## Working Directory\nYou are working in: %s\n\n", worktreePath)

	b.WriteString("## Specification\n")
	if specMD != "" {
		b.WriteString(specMD)
	} else {
		b.WriteString("No specification found.")
	}
	b.WriteString("\n\n## Implementation Plan\n")
	if planMD != "" {
		b.WriteString(planMD)
	} else {
		b.WriteString("No implementation plan found.")
	}
	b.WriteString("\n\n")

	b.WriteString(followUpInstructions(task.SpecID, task.ID))
	b.WriteString(roleInstructions(stage.Role))

	if e.ralphOn {
		var outcome string
		if task.Completion != nil {
			outcome = task.Completion.Outcome
		}
		b.WriteString(loop.BuildPromptSuffix(task.Title, outcome, task.AcceptanceCriteria))
	}

	return b.String()
}

func followUpInstructions(specID, taskID string) string {
	return fmt.Sprintf(`## Creating Follow-up Tasks

When you encounter work that should be done but is outside your current task
scope, create a follow-up task after first checking that a similar one does
not already exist for spec %s.

Categories: PLACEHOLDER, TECH-DEBT, REFACTOR, TEST-GAP, EDGE-CASE, DOC.
Reference this task (%s) as the parent. Do not leave undocumented TODOs.

`, specID, taskID)
}

func roleInstructions(role model.AgentRole) string {
	switch role {
	case model.RoleCoder:
		return "## Your Task\n\nImplement the task requirements. Follow the specification and plan exactly, then commit your changes.\n\n"
	case model.RoleReviewer:
		return "## Your Task\n\nReview the code changes: check correctness, security, and style against the specification and plan.\n\n"
	case model.RoleTester:
		return "## Your Task\n\nWrite and run tests for this task's changes, covering the acceptance criteria.\n\n"
	case model.RoleQA:
		return "## Your Task\n\nValidate that all acceptance criteria are met and there are no regressions.\n\n"
	case model.RoleArchitect:
		return "## Your Task\n\nProduce the design for this task, covering its interfaces and edge cases.\n\n"
	default:
		return "## Your Task\n\n"
	}
}
