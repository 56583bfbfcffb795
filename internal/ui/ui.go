// Package ui provides plain-text output formatting for the CLI: task and
// spec tables, pool snapshots, and status/error messages. Grounded on the
// teacher's ui.Printer (same tabwriter-based table + tilde-home path
// shortening), generalized from worktree/branch listings to the task and
// spec domain.
package ui

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/ralph-run/ralph/internal/model"
	"github.com/ralph-run/ralph/internal/pool"
	"github.com/ralph-run/ralph/pkg/utils"
)

// Printer handles output formatting.
type Printer struct {
	useIcons     bool
	useTildeHome bool
}

// New creates a Printer. icons controls whether status markers are drawn;
// tildeHome controls whether paths under $HOME are shortened to ~/....
func New(icons, tildeHome bool) *Printer {
	return &Printer{useIcons: icons, useTildeHome: tildeHome}
}

// PrintTasks displays tasks in a formatted table.
func (p *Printer) PrintTasks(tasks []*model.Task, verbose bool) {
	if len(tasks) == 0 {
		fmt.Println("No tasks found")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	if verbose {
		_, _ = fmt.Fprintln(w, "ID\tSTATUS\tPRIORITY\tASSIGNEE\tITERATION\tCREATED\tTITLE")
		for _, t := range tasks {
			_, _ = fmt.Fprintf(w, "%s%s\t%s\t%d\t%s\t%d\t%s\t%s\n",
				p.statusMarker(t.Status), t.ID, t.Status, t.Priority, assigneeOrDash(t.Assignee),
				t.Iteration, p.formatTime(t.CreatedAt), t.Title)
		}
		return
	}

	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tPRIORITY\tTITLE")
	for _, t := range tasks {
		_, _ = fmt.Fprintf(w, "%s%s\t%s\t%d\t%s\n", p.statusMarker(t.Status), t.ID, t.Status, t.Priority, t.Title)
	}
}

// PrintTasksJSON displays tasks in JSON format.
func (p *Printer) PrintTasksJSON(tasks []*model.Task) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(tasks)
}

// PrintTaskDetails prints one task's full detail in a labeled block.
func (p *Printer) PrintTaskDetails(t *model.Task) {
	fmt.Printf("ID:          %s\n", t.ID)
	fmt.Printf("Spec:        %s\n", t.SpecID)
	fmt.Printf("Title:       %s\n", t.Title)
	fmt.Printf("Status:      %s\n", t.Status)
	fmt.Printf("Priority:    %d\n", t.Priority)
	fmt.Printf("Iteration:   %d\n", t.Iteration)
	if t.Assignee != "" {
		fmt.Printf("Assignee:    %s\n", t.Assignee)
	}
	if len(t.DependsOn) > 0 {
		fmt.Printf("Depends on:  %v (%s)\n", t.DependsOn, t.DependencyPolicy)
	}
	fmt.Printf("Created:     %s\n", p.formatTime(t.CreatedAt))
	if t.StartedAt != nil {
		fmt.Printf("Started:     %s\n", p.formatTime(*t.StartedAt))
	}
	if t.CompletedAt != nil {
		fmt.Printf("Completed:   %s\n", p.formatTime(*t.CompletedAt))
	}
	if t.Description != "" {
		fmt.Printf("\nDescription:\n%s\n", t.Description)
	}
	if len(t.AcceptanceCriteria) > 0 {
		fmt.Println("\nAcceptance criteria:")
		for _, c := range t.AcceptanceCriteria {
			fmt.Printf("  - %s\n", c)
		}
	}
	if len(t.Metadata) > 0 {
		fmt.Println("\nMetadata:")
		for k, v := range t.Metadata {
			fmt.Printf("  %s: %v\n", k, v)
		}
	}
}

// PrintSpecs displays specs in a formatted table.
func (p *Printer) PrintSpecs(specs []*model.Spec) {
	if len(specs) == 0 {
		fmt.Println("No specs found")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tSOURCE\tCREATED\tTITLE")
	for _, s := range specs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.Status, s.SourceKind, p.formatTime(s.CreatedAt), s.Title)
	}
}

// PrintPoolStatus displays a pool snapshot: occupancy per slot and the
// depth of the wait queue.
func (p *Printer) PrintPoolStatus(st pool.Status) {
	fmt.Printf("capacity=%d active=%d idle=%d queued=%d\n", st.Capacity, st.Active, st.Idle, st.Queued)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()
	_, _ = fmt.Fprintln(w, "SLOT\tSTATUS\tTASK\tROLE\tSINCE")
	for _, slot := range st.Slots {
		if slot.Status == pool.SlotIdle {
			_, _ = fmt.Fprintf(w, "%d\tidle\t-\t-\t-\n", slot.ID)
			continue
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", slot.ID, slot.Status, slot.TaskID, slot.Role, p.formatTime(slot.StartedAt))
	}
}

// PrintError displays an error message.
func (p *Printer) PrintError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}

// PrintSuccess displays a success message.
func (p *Printer) PrintSuccess(message string) {
	fmt.Println(message)
}

// PrintInfo displays an informational message.
func (p *Printer) PrintInfo(message string) {
	fmt.Println(message)
}

// PrintPath prints a single path, tilde-shortened if configured (used by
// commands that emit a worktree path for shell consumption, e.g. `cd $(...)`).
func (p *Printer) PrintPath(path string) {
	if p.useTildeHome {
		path = utils.TildePath(path)
	}
	fmt.Println(path)
}

func (p *Printer) statusMarker(s model.TaskStatus) string {
	if !p.useIcons {
		return ""
	}
	if s == model.TaskStatusDone {
		return "✓ "
	}
	return ""
}

func assigneeOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func (p *Printer) formatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}

	now := time.Now()
	diff := now.Sub(t)

	switch {
	case diff < time.Hour:
		return fmt.Sprintf("%d minutes ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%d hours ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%d days ago", int(diff.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}
