package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ralph-run/ralph/internal/model"
)

func init() {
	rootCmd.AddCommand(mergeCmd)
}

var mergeCmd = &cobra.Command{
	Use:   "merge <task-id>",
	Short: "Manually trigger the merge engine for a completed task's branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, st, err := loadApp()
		if err != nil {
			return err
		}
		defer st.Close()

		taskID := args[0]
		task, err := st.GetTask(taskID)
		if err != nil {
			return fmt.Errorf("get task: %w", err)
		}

		runner := newRunner()
		v := newVCS(cfg)
		engine := newMergeEngine(cfg, v, runner)

		result := engine.MergeTask(cmd.Context(), model.BranchName(task.ID), "main")

		p := newPrinter()
		if !result.Success {
			p.PrintError(fmt.Errorf("merge failed at tier %s: %s", result.Tier, result.Message))
			return fmt.Errorf("merge did not succeed")
		}
		p.PrintSuccess(fmt.Sprintf("Merged %s via %s tier", taskID, result.Tier))
		return nil
	},
}
