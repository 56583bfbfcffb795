package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ralph-run/ralph/internal/finder"
	"github.com/ralph-run/ralph/internal/model"
	"github.com/ralph-run/ralph/internal/table"
	"github.com/ralph-run/ralph/pkg/utils"
)

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.AddCommand(taskListCmd, taskShowCmd, taskAddCmd, taskFollowupCmd)
}

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks",
}

var (
	taskListSpec    string
	taskListStatus  string
	taskListVerbose bool
	taskListJSON    bool
	taskListCSV     bool
)

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, st, err := loadApp()
		if err != nil {
			return err
		}
		defer st.Close()

		tasks, err := st.ListTasks(taskListSpec, model.TaskStatus(taskListStatus))
		if err != nil {
			return fmt.Errorf("list tasks: %w", err)
		}

		p := newPrinter()
		switch {
		case taskListJSON:
			return p.PrintTasksJSON(tasks)
		case taskListCSV:
			return writeTasksCSV(tasks)
		default:
			p.PrintTasks(tasks, taskListVerbose)
			return nil
		}
	},
}

// writeTasksCSV renders tasks as CSV for piping into spreadsheets or
// scripts, reusing the table package's TaskTable layout and CSV writer
// instead of hand-rolling comma-escaping.
func writeTasksCSV(tasks []*model.Task) error {
	return table.TaskTable(tasks).WriteCSV()
}

var taskShowCmd = &cobra.Command{
	Use:   "show [task-id]",
	Short: "Show one task's full detail, fuzzy-selecting interactively if task-id is omitted",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, st, err := loadApp()
		if err != nil {
			return err
		}
		defer st.Close()

		id := ""
		if len(args) == 1 {
			id = args[0]
		}

		if id == "" {
			tasks, err := st.ListTasks("", "")
			if err != nil {
				return fmt.Errorf("list tasks: %w", err)
			}
			selected, err := finder.New(finder.Config{Preview: true}).SelectTask(tasks)
			if err != nil {
				return fmt.Errorf("select task: %w", err)
			}
			id = selected.ID
		}

		task, err := st.GetTask(id)
		if err != nil {
			return fmt.Errorf("get task: %w", err)
		}
		newPrinter().PrintTaskDetails(task)
		return nil
	},
}

var (
	taskAddSpec        string
	taskAddTitle       string
	taskAddDescription string
	taskAddPriority    int
	taskAddDependsOn   []string
	taskAddCriteria    []string
)

var taskAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a task under a spec",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, st, err := loadApp()
		if err != nil {
			return err
		}
		defer st.Close()

		if taskAddSpec == "" || taskAddTitle == "" {
			return fmt.Errorf("--spec and --title are required")
		}

		t := &model.Task{
			ID:                 "task-" + utils.GenerateShortID(),
			SpecID:             taskAddSpec,
			Title:              taskAddTitle,
			Description:        taskAddDescription,
			Status:             model.TaskStatusTodo,
			Priority:           taskAddPriority,
			DependsOn:          taskAddDependsOn,
			DependencyPolicy:   model.DependencyPolicyWait,
			AcceptanceCriteria: taskAddCriteria,
			CreatedAt:          time.Now(),
			Metadata:           map[string]any{},
		}
		if err := st.CreateTask(t); err != nil {
			return fmt.Errorf("create task: %w", err)
		}
		newPrinter().PrintSuccess(fmt.Sprintf("Created task %s", t.ID))
		return nil
	},
}

var (
	taskFollowupParent      string
	taskFollowupTitle       string
	taskFollowupDescription string
	taskFollowupPriority    int
	taskFollowupCategory    string
)

var taskFollowupCmd = &cobra.Command{
	Use:   "followup",
	Short: "Create a follow-up task referencing a parent task",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, st, err := loadApp()
		if err != nil {
			return err
		}
		defer st.Close()

		if taskFollowupParent == "" || taskFollowupTitle == "" {
			return fmt.Errorf("--parent and --title are required")
		}

		parent, err := st.GetTask(taskFollowupParent)
		if err != nil {
			return fmt.Errorf("get parent task: %w", err)
		}

		category := model.FollowUpCategory(strings.ToUpper(taskFollowupCategory))
		if category == "" {
			category = model.FollowUpTechDebt
		}

		t := &model.Task{
			ID:               "task-" + utils.GenerateShortID(),
			SpecID:           parent.SpecID,
			Title:            taskFollowupTitle,
			Description:      taskFollowupDescription,
			Status:           model.TaskStatusTodo,
			Priority:         taskFollowupPriority,
			DependencyPolicy: model.DependencyPolicyWait,
			CreatedAt:        time.Now(),
			Metadata: map[string]any{
				"parent_task_id":     parent.ID,
				"followup_category": string(category),
			},
		}
		if err := st.CreateTask(t); err != nil {
			return fmt.Errorf("create follow-up task: %w", err)
		}
		newPrinter().PrintSuccess(fmt.Sprintf("Created follow-up task %s (parent %s)", t.ID, parent.ID))
		return nil
	},
}

func init() {
	taskListCmd.Flags().StringVar(&taskListSpec, "spec", "", "filter by spec id")
	taskListCmd.Flags().StringVar(&taskListStatus, "status", "", "filter by status")
	taskListCmd.Flags().BoolVarP(&taskListVerbose, "verbose", "v", false, "show assignee and iteration columns")
	taskListCmd.Flags().BoolVar(&taskListJSON, "json", false, "print as JSON")
	taskListCmd.Flags().BoolVar(&taskListCSV, "csv", false, "print as CSV")

	taskAddCmd.Flags().StringVar(&taskAddSpec, "spec", "", "owning spec id")
	taskAddCmd.Flags().StringVar(&taskAddTitle, "title", "", "task title")
	taskAddCmd.Flags().StringVar(&taskAddDescription, "description", "", "task description")
	taskAddCmd.Flags().IntVar(&taskAddPriority, "priority", 0, "task priority (higher runs first)")
	taskAddCmd.Flags().StringSliceVar(&taskAddDependsOn, "depends-on", nil, "task ids this task depends on")
	taskAddCmd.Flags().StringSliceVar(&taskAddCriteria, "criteria", nil, "acceptance criteria")

	taskFollowupCmd.Flags().StringVar(&taskFollowupParent, "parent", "", "parent task id")
	taskFollowupCmd.Flags().StringVar(&taskFollowupTitle, "title", "", "follow-up title")
	taskFollowupCmd.Flags().StringVar(&taskFollowupDescription, "description", "", "follow-up description")
	taskFollowupCmd.Flags().IntVar(&taskFollowupPriority, "priority", 0, "follow-up priority")
	taskFollowupCmd.Flags().StringVar(&taskFollowupCategory, "category", "", "PLACEHOLDER, TECH-DEBT, REFACTOR, TEST-GAP, EDGE-CASE, or DOC")
}
