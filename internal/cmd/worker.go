package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ralph-run/ralph/internal/config"
	"github.com/ralph-run/ralph/internal/finder"
	"github.com/ralph-run/ralph/internal/logging"
	"github.com/ralph-run/ralph/internal/pipeline"
	"github.com/ralph-run/ralph/internal/pool"
	"github.com/ralph-run/ralph/internal/registry"
	"github.com/ralph-run/ralph/internal/scheduler"
	"github.com/ralph-run/ralph/internal/store"
	"github.com/ralph-run/ralph/internal/tmux"
	"github.com/ralph-run/ralph/internal/vcs"
)

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.AddCommand(workerStartCmd, workerStatusCmd, workerStopCmd)
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Manage a detached scheduler process running under tmux",
}

var workerDetached bool

func init() {
	workerStartCmd.Flags().BoolVar(&workerDetached, "detach", true, "run inside a detached tmux session rather than this terminal")
}

var workerStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the scheduler for this project, detached in a tmux session",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, st, err := loadApp()
		if err != nil {
			return err
		}

		if !workerDetached {
			defer st.Close()
			return runSchedulerForeground(cmd.Context(), cfg, st)
		}
		st.Close()

		mgr := tmux.NewSessionManager(tmux.DefaultSessionConfig(), "")
		session, err := mgr.CreateSession(cmd.Context(), tmux.SessionOptions{
			Context:    "worker",
			Identifier: cfg.ProjectName,
			WorkingDir: cfg.Root,
			Command:    fmt.Sprintf("ralph --root %s worker start --detach=false", cfg.Root),
		})
		if err != nil {
			return fmt.Errorf("create tmux session: %w", err)
		}

		reg, err := registry.New()
		if err != nil {
			return fmt.Errorf("open worker registry: %w", err)
		}
		if err := reg.Register(&registry.WorkerEntry{
			Root:         cfg.Root,
			PID:          os.Getpid(),
			TmuxSession:  session.SessionName,
			RegisteredAt: time.Now(),
		}); err != nil {
			return fmt.Errorf("register worker: %w", err)
		}

		newPrinter().PrintSuccess(fmt.Sprintf("Started worker for %s in tmux session %s", cfg.Root, session.SessionName))
		return nil
	},
}

func runSchedulerForeground(ctx context.Context, cfg *config.Config, st *store.Store) error {
	runner := newRunner()
	v := newVCS(cfg)
	merger := newMergeEngine(cfg, v, runner)
	p := pool.New(cfg.Agents.MaxParallel)

	sch := scheduler.New(scheduler.Config{
		Store: st,
		Pool:  p,
		VCS:   v,
		ExecutorFactory: func(slotID int) scheduler.TaskExecutor {
			return pipeline.New(newPipelineConfig(cfg, st, runner, slotID))
		},
		Merger: merger,
		Reconcile: func(ctx context.Context, active map[string]bool) ([]string, error) {
			return vcs.ReconcileOrphans(ctx, v, active)
		},
	})

	reg, err := registry.New()
	if err == nil {
		_ = reg.Register(&registry.WorkerEntry{Root: cfg.Root, PID: os.Getpid(), RegisteredAt: time.Now()})
		defer reg.Unregister(cfg.Root)
	}

	log := logging.New("worker")
	if watchErr := config.Watch(cfg.Root, func(updated *config.Config) {
		log.Infow("config.yaml changed, reloaded", "root", updated.Root, "max_parallel", updated.Agents.MaxParallel, "default_model", updated.Agents.DefaultModel)
	}); watchErr != nil {
		log.Warnw("config watch disabled", "root", cfg.Root, "error", watchErr)
	}

	log.Infow("scheduler starting", "root", cfg.Root, "max_parallel", cfg.Agents.MaxParallel)
	err = sch.Run(ctx)
	log.Infow("scheduler stopped", "root", cfg.Root, "reason", err)
	return err
}

var workerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List registered workers and their tmux sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := registry.New()
		if err != nil {
			return fmt.Errorf("open worker registry: %w", err)
		}
		if err := reg.Cleanup(); err != nil {
			return fmt.Errorf("clean up registry: %w", err)
		}

		workers := reg.List()
		if len(workers) == 0 {
			fmt.Println("No workers registered")
			return nil
		}
		for _, w := range workers {
			fmt.Printf("pid=%d root=%s session=%s since=%s\n", w.PID, w.Root, w.TmuxSession, w.RegisteredAt.Format(time.RFC3339))
		}
		return nil
	},
}

var workerStopCmd = &cobra.Command{
	Use:   "stop [root]",
	Short: "Stop a registered worker, fuzzy-selecting its tmux session if root is omitted",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := registry.New()
		if err != nil {
			return fmt.Errorf("open worker registry: %w", err)
		}

		var entry *registry.WorkerEntry
		if len(args) == 1 {
			e, ok := reg.Get(args[0])
			if !ok {
				return fmt.Errorf("no worker registered for root %s", args[0])
			}
			entry = e
		} else {
			workers := reg.List()
			sessions := make([]*tmux.Session, 0, len(workers))
			byName := map[string]*registry.WorkerEntry{}
			for _, w := range workers {
				sessions = append(sessions, &tmux.Session{SessionName: w.TmuxSession, WorkingDir: w.Root, Status: tmux.StatusRunning})
				byName[w.TmuxSession] = w
			}
			selected, err := finder.New(finder.Config{Preview: true}).SelectSession(sessions)
			if err != nil {
				return fmt.Errorf("select worker session: %w", err)
			}
			entry = byName[selected.SessionName]
		}

		if entry.TmuxSession != "" {
			mgr := tmux.NewSessionManager(tmux.DefaultSessionConfig(), "")
			if err := mgr.KillSession(entry.TmuxSession); err != nil {
				newPrinter().PrintError(fmt.Errorf("kill tmux session %s: %w", entry.TmuxSession, err))
			}
		}
		if err := reg.Unregister(entry.Root); err != nil {
			return fmt.Errorf("unregister worker: %w", err)
		}
		newPrinter().PrintSuccess(fmt.Sprintf("Stopped worker for %s", entry.Root))
		return nil
	},
}
