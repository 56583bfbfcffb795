package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduler in the foreground until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, st, err := loadApp()
		if err != nil {
			return err
		}
		defer st.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		newPrinter().PrintInfo(fmt.Sprintf("ralph running (capacity=%d) — ctrl-c to stop", cfg.Agents.MaxParallel))
		if err := runSchedulerForeground(ctx, cfg, st); err != nil && err != context.Canceled {
			return err
		}
		return nil
	},
}
