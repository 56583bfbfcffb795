package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ralph-run/ralph/internal/pool"
	"github.com/ralph-run/ralph/internal/registry"
	"github.com/ralph-run/ralph/internal/tui"
)

var statusWatch bool

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "open a live-updating dashboard instead of a single snapshot")
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the task board and registered workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		if statusWatch {
			return runStatusWatch()
		}
		return runStatusSnapshot()
	},
}

func runStatusSnapshot() error {
	_, st, err := loadApp()
	if err != nil {
		return err
	}
	defer st.Close()

	tasks, err := st.ListTasks("", "")
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}

	p := newPrinter()
	p.PrintTasks(tasks, true)

	reg, err := registry.New()
	if err != nil {
		return fmt.Errorf("open worker registry: %w", err)
	}
	workers := reg.List()
	if len(workers) > 0 {
		fmt.Println()
		fmt.Printf("%d worker(s) registered\n", len(workers))
		for _, w := range workers {
			fmt.Printf("  pid=%d root=%s session=%s\n", w.PID, w.Root, w.TmuxSession)
		}
	}
	return nil
}

func runStatusWatch() error {
	_, st, err := loadApp()
	if err != nil {
		return err
	}
	defer st.Close()

	refresh := func() tui.Snapshot {
		tasks, err := st.ListTasks("", "")
		if err != nil {
			return tui.Snapshot{Err: err}
		}
		return tui.Snapshot{Tasks: tasks, PoolState: pool.Status{}}
	}

	// The running scheduler's live pool occupancy lives in another process;
	// this view only has the store's task board to poll.
	return tui.RunStatusWatch(refresh, 2*time.Second)
}
