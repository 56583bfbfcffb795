// Package scheduler implements the Scheduler component: the outer loop
// polling Store for ready tasks, claiming and dispatching them onto the
// bounded agent pool, and folding successful pipeline runs back into trunk
// via the merge engine. Grounded on the original orchestrator's DAG-driven
// ParallelRunner.Run (prune-before-start, bounded concurrency via errgroup,
// deferred worktree cleanup), adapted from a one-shot DAG drain to a
// persistent daemon loop that re-polls Store as tasks become ready.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ralph-run/ralph/internal/logging"
	"github.com/ralph-run/ralph/internal/merge"
	"github.com/ralph-run/ralph/internal/model"
	"github.com/ralph-run/ralph/internal/pipeline"
	"github.com/ralph-run/ralph/internal/pool"
	"github.com/ralph-run/ralph/internal/vcs"
)

// Store is the subset of internal/store.Store the Scheduler depends on.
type Store interface {
	GetReadyTasks(specID string) ([]*model.Task, error)
	TryClaimTask(taskID string) (bool, error)
	GetTask(id string) (*model.Task, error)
	UpdateTask(t *model.Task) error
	ListTasks(specID string, status model.TaskStatus) ([]*model.Task, error)
}

// Merger runs the three-tier merge engine against a completed task branch.
// Satisfied by *merge.Engine.
type Merger interface {
	MergeTask(ctx context.Context, sourceBranch, targetBranch string) merge.Result
}

// TaskExecutor runs one task through the pipeline. Satisfied by
// *pipeline.Executor.
type TaskExecutor interface {
	Execute(ctx context.Context, task *model.Task, worktreePath string) (pipeline.Outcome, error)
}

// ExecutorFactory builds the executor a worker uses for the pool slot it
// was assigned, since RegisterAgent calls need the slot id baked in.
type ExecutorFactory func(slotID int) TaskExecutor

// Reconciler prunes worktrees orphaned by a prior crash. Production wiring
// points this at vcs.ReconcileOrphans; nil disables reconciliation (tests
// using a fake VCS have no disk state to prune).
type Reconciler func(ctx context.Context, activeTaskIDs map[string]bool) ([]string, error)

// Config configures a Scheduler.
type Config struct {
	Store           Store
	Pool            *pool.Pool
	VCS             vcs.VCS
	ExecutorFactory ExecutorFactory
	Merger          Merger
	BaseBranch      string
	PollInterval    time.Duration
	Reconcile       Reconciler
}

// Scheduler drives ready tasks from Store onto the pool, bounded by the
// pool's capacity, and hands completed work off to the merge engine.
type Scheduler struct {
	store           Store
	pool            *pool.Pool
	vcs             vcs.VCS
	executorFactory ExecutorFactory
	merger          Merger
	baseBranch      string
	pollInterval    time.Duration
	reconcile       Reconciler

	log *zap.SugaredLogger

	g    *errgroup.Group
	gctx context.Context
	wake chan struct{}
}

// New constructs a Scheduler from cfg, filling sane defaults.
func New(cfg Config) *Scheduler {
	base := cfg.BaseBranch
	if base == "" {
		base = "main"
	}
	interval := cfg.PollInterval
	if interval == 0 {
		interval = 2 * time.Second
	}
	return &Scheduler{
		store:           cfg.Store,
		pool:            cfg.Pool,
		vcs:             cfg.VCS,
		executorFactory: cfg.ExecutorFactory,
		merger:          cfg.Merger,
		baseBranch:      base,
		pollInterval:    interval,
		reconcile:       cfg.Reconcile,
		wake:            make(chan struct{}, 1),
		log:             logging.New("scheduler"),
	}
}

// Run is the scheduler's main loop: it reconciles orphaned worktrees once at
// startup, then repeatedly dispatches ready tasks onto the pool until ctx is
// cancelled, at which point it waits for every in-flight worker to settle
// before returning ctx.Err().
func (sch *Scheduler) Run(ctx context.Context) error {
	sch.reconcileOrphans(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sch.pool.Status().Capacity)
	sch.g = g
	sch.gctx = gctx

	ticker := time.NewTicker(sch.pollInterval)
	defer ticker.Stop()

	sch.dispatchReady(gctx)
	for {
		select {
		case <-ctx.Done():
			_ = g.Wait()
			return ctx.Err()
		case <-ticker.C:
			sch.dispatchReady(gctx)
		case <-sch.wake:
			sch.dispatchReady(gctx)
		}
	}
}

func (sch *Scheduler) reconcileOrphans(ctx context.Context) {
	if sch.reconcile == nil {
		return
	}
	all, err := sch.store.ListTasks("", "")
	if err != nil {
		sch.log.Errorf("reconcile: list tasks: %v", err)
		return
	}
	active := make(map[string]bool, len(all))
	for _, t := range all {
		if !t.Status.Terminal() {
			active[t.ID] = true
		}
	}
	if removed, err := sch.reconcile(ctx, active); err != nil {
		sch.log.Errorf("reconcile: %v", err)
	} else if len(removed) > 0 {
		sch.log.Infof("reconcile: pruned %d orphaned worktree(s)", len(removed))
	}
}

// dispatchReady claims every currently-ready task in priority order and
// either starts it immediately (an idle slot is free) or enqueues it.
func (sch *Scheduler) dispatchReady(ctx context.Context) {
	ready, err := sch.store.GetReadyTasks("")
	if err != nil {
		sch.log.Errorf("get ready tasks: %v", err)
		return
	}
	for _, task := range ready {
		claimed, err := sch.store.TryClaimTask(task.ID)
		if err != nil {
			sch.log.Errorf("claim task %s: %v", task.ID, err)
			continue
		}
		if !claimed {
			continue // another scheduler (or a prior wave) already claimed it
		}
		// TryClaimTask already moved the row to Implementing; mirror that on
		// the in-memory copy so a later UpdateTask doesn't stomp it back to
		// todo with a stale Status field.
		now := time.Now()
		task.Status = model.TaskStatusImplementing
		task.StartedAt = &now
		sch.tryStart(ctx, task)
	}
}

// tryStart acquires an idle slot for task and launches its worker, or
// enqueues the task if the pool is at capacity.
func (sch *Scheduler) tryStart(ctx context.Context, task *model.Task) {
	slot := sch.pool.Assign(task, model.RoleCoder, "")
	if slot == nil {
		sch.pool.Queue(task)
		return
	}
	sch.launch(ctx, task, slot.ID)
}

func (sch *Scheduler) launch(ctx context.Context, task *model.Task, slotID int) {
	sch.g.Go(func() error {
		sch.runWorker(ctx, task, slotID)
		return nil // worker failures are recorded on the task, not propagated to the group
	})
}

// runWorker creates the task's worktree, drives it through the pipeline,
// and on pipeline success attempts the merge. Slot release, queue drain,
// and the next wake-up always happen, success or failure.
func (sch *Scheduler) runWorker(ctx context.Context, task *model.Task, slotID int) {
	defer sch.onWorkerDone(task)

	worktreePath, err := sch.vcs.CreateWorktree(ctx, task.ID, sch.baseBranch)
	if err != nil {
		sch.failTask(task, fmt.Sprintf("worktree creation failed: %v", err))
		return
	}
	task.WorktreeID = task.ID
	if err := sch.store.UpdateTask(task); err != nil {
		sch.log.Errorf("persist worktree id for %s: %v", task.ID, err)
	}

	exec := sch.executorFactory(slotID)
	outcome, err := exec.Execute(ctx, task, worktreePath)
	if err != nil {
		sch.log.Errorf("execute task %s: %v", task.ID, err)
		return
	}
	if !outcome.Success {
		return // pipeline already returned the task to todo with failure metadata
	}

	sch.completeMerge(ctx, task)
}

// completeMerge folds the finished task branch back into trunk. On success
// the branch and worktree are removed; on failure they are left in place
// for inspection and the task is flagged merge_failed.
func (sch *Scheduler) completeMerge(ctx context.Context, task *model.Task) {
	if sch.merger == nil {
		return
	}
	result := sch.merger.MergeTask(ctx, model.BranchName(task.ID), sch.baseBranch)
	if result.Success {
		if err := sch.vcs.RemoveWorktree(ctx, task.ID, true); err != nil {
			sch.log.Errorf("remove worktree for %s: %v", task.ID, err)
		}
		if err := sch.vcs.DeleteBranch(ctx, model.BranchName(task.ID)); err != nil {
			sch.log.Errorf("delete branch for %s: %v", task.ID, err)
		}
		return
	}

	current, err := sch.store.GetTask(task.ID)
	if err != nil {
		current = task
	}
	if current.Metadata == nil {
		current.Metadata = map[string]any{}
	}
	current.Metadata["merge_failed"] = true
	if err := sch.store.UpdateTask(current); err != nil {
		sch.log.Errorf("persist merge_failed for %s: %v", task.ID, err)
	}
}

func (sch *Scheduler) failTask(task *model.Task, reason string) {
	task.Status = model.TaskStatusTodo
	if task.Metadata == nil {
		task.Metadata = map[string]any{}
	}
	task.Metadata["failure_reason"] = reason
	if err := sch.store.UpdateTask(task); err != nil {
		sch.log.Errorf("persist failure for %s: %v", task.ID, err)
	}
}

// onWorkerDone releases the slot, starts the next queued task if one fits,
// and nudges the main loop to re-check readiness without waiting a full
// poll interval.
func (sch *Scheduler) onWorkerDone(task *model.Task) {
	sch.pool.Release(task.ID)
	if next := sch.pool.Dequeue(); next != nil {
		if slot := sch.pool.Assign(next, model.RoleCoder, ""); slot != nil {
			sch.launch(sch.gctx, next, slot.ID)
		} else {
			sch.pool.Queue(next) // lost the race to another release; re-queue
		}
	}
	sch.signalWake()
}

func (sch *Scheduler) signalWake() {
	select {
	case sch.wake <- struct{}{}:
	default:
	}
}
