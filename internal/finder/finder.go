// Package finder provides fuzzy-finder based interactive selection for
// tasks and worker tmux sessions. Grounded on the teacher's finder.Finder
// (same go-fuzzyfinder usage, preview-window pattern), generalized from
// worktrees/branches to the task/session domain.
package finder

import (
	"fmt"
	"strings"
	"time"

	"github.com/ktr0731/go-fuzzyfinder"

	"github.com/ralph-run/ralph/internal/model"
	"github.com/ralph-run/ralph/internal/tmux"
)

// Config controls the finder's optional preview pane.
type Config struct {
	Preview bool
}

// Finder provides fuzzy finder functionality.
type Finder struct {
	config Config
}

// New creates a Finder.
func New(config Config) *Finder {
	return &Finder{config: config}
}

// SelectTask displays a fuzzy finder for task selection.
func (f *Finder) SelectTask(tasks []*model.Task) (*model.Task, error) {
	if len(tasks) == 0 {
		return nil, fmt.Errorf("no tasks available")
	}

	opts := []fuzzyfinder.Option{fuzzyfinder.WithPromptString("Select task> ")}
	if f.config.Preview {
		opts = append(opts, fuzzyfinder.WithPreviewWindow(func(i, w, h int) string {
			if i == -1 {
				return ""
			}
			return f.taskPreview(tasks[i], h)
		}))
	}

	idx, err := fuzzyfinder.Find(
		tasks,
		func(i int) string {
			t := tasks[i]
			return fmt.Sprintf("[%s] %s (%s)", t.ID, t.Title, t.Status)
		},
		opts...,
	)
	if err != nil {
		return nil, err
	}
	return tasks[idx], nil
}

// SelectSession displays a fuzzy finder for worker tmux session selection.
func (f *Finder) SelectSession(sessions []*tmux.Session) (*tmux.Session, error) {
	if len(sessions) == 0 {
		return nil, fmt.Errorf("no sessions available")
	}

	opts := []fuzzyfinder.Option{fuzzyfinder.WithPromptString("Select worker session> ")}
	if f.config.Preview {
		opts = append(opts, fuzzyfinder.WithPreviewWindow(func(i, w, h int) string {
			if i == -1 {
				return ""
			}
			return f.sessionPreview(sessions[i], h)
		}))
	}

	idx, err := fuzzyfinder.Find(
		sessions,
		func(i int) string {
			s := sessions[i]
			marker := "  "
			if s.Status == tmux.StatusRunning {
				marker = "● "
			}
			return fmt.Sprintf("%s%s (%s)", marker, s.SessionName, s.Status)
		},
		opts...,
	)
	if err != nil {
		return nil, err
	}
	return sessions[idx], nil
}

func (f *Finder) taskPreview(t *model.Task, maxLines int) string {
	preview := []string{
		fmt.Sprintf("ID: %s", t.ID),
		fmt.Sprintf("Spec: %s", t.SpecID),
		fmt.Sprintf("Status: %s", t.Status),
		fmt.Sprintf("Priority: %d", t.Priority),
		fmt.Sprintf("Iteration: %d", t.Iteration),
	}
	if t.Description != "" {
		preview = append(preview, "", "Description:", t.Description)
	}
	if len(preview) > maxLines {
		preview = preview[:maxLines]
	}
	return strings.Join(preview, "\n")
}

func (f *Finder) sessionPreview(s *tmux.Session, maxLines int) string {
	preview := []string{
		fmt.Sprintf("Session: %s", s.SessionName),
		fmt.Sprintf("Status: %s", s.Status),
		fmt.Sprintf("Duration: %s", formatDuration(time.Since(s.StartTime))),
		fmt.Sprintf("Started: %s", s.StartTime.Format("2006-01-02 15:04:05")),
	}
	if s.WorkingDir != "" {
		preview = append(preview, fmt.Sprintf("Directory: %s", s.WorkingDir))
	}
	if len(preview) > maxLines {
		preview = preview[:maxLines]
	}
	return strings.Join(preview, "\n")
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		mins := int(d.Minutes())
		if mins == 1 {
			return "1 min"
		}
		return fmt.Sprintf("%d mins", mins)
	case d < 24*time.Hour:
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
}
