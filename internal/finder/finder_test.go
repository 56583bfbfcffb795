package finder

import (
	"strings"
	"testing"
	"time"

	"github.com/ralph-run/ralph/internal/model"
	"github.com/ralph-run/ralph/internal/tmux"
)

// fuzzyfinder.Find requires a real terminal, so these tests exercise only
// the preview-content generation, not the interactive selection itself.

func TestTaskPreviewIncludesCoreFields(t *testing.T) {
	f := New(Config{})
	task := &model.Task{
		ID:          "T1",
		SpecID:      "S1",
		Status:      model.TaskStatusImplementing,
		Priority:    3,
		Iteration:   2,
		Description: "Wire up the login form",
	}

	preview := f.taskPreview(task, 20)
	for _, want := range []string{"T1", "S1", "implementing", "Wire up the login form"} {
		if !strings.Contains(preview, want) {
			t.Errorf("taskPreview() missing %q:\n%s", want, preview)
		}
	}
}

func TestTaskPreviewTruncatesToMaxLines(t *testing.T) {
	f := New(Config{})
	task := &model.Task{ID: "T1", Description: "line one\nline two\nline three"}

	preview := f.taskPreview(task, 3)
	if got := len(strings.Split(preview, "\n")); got > 3 {
		t.Errorf("taskPreview() produced %d lines, want <= 3", got)
	}
}

func TestSessionPreviewIncludesCoreFields(t *testing.T) {
	f := New(Config{})
	s := &tmux.Session{
		SessionName: "ralph-worker-default-abc123-20260101120000",
		Status:      tmux.StatusRunning,
		StartTime:   time.Now().Add(-5 * time.Minute),
		WorkingDir:  "/repo",
	}

	preview := f.sessionPreview(s, 20)
	for _, want := range []string{s.SessionName, "running", "/repo"} {
		if !strings.Contains(preview, want) {
			t.Errorf("sessionPreview() missing %q:\n%s", want, preview)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "just now"},
		{time.Minute, "1 min"},
		{5 * time.Minute, "5 mins"},
		{time.Hour, "1 hour"},
		{3 * time.Hour, "3 hours"},
		{24 * time.Hour, "1 day"},
		{48 * time.Hour, "2 days"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestSelectTaskEmptyErrors(t *testing.T) {
	f := New(Config{})
	if _, err := f.SelectTask(nil); err == nil {
		t.Error("expected error selecting from an empty task list")
	}
}

func TestSelectSessionEmptyErrors(t *testing.T) {
	f := New(Config{})
	if _, err := f.SelectSession(nil); err == nil {
		t.Error("expected error selecting from an empty session list")
	}
}
