package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ralph-run/ralph/internal/model"
	"github.com/ralph-run/ralph/internal/pool"
)

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

func TestRenderPoolShowsSlotsAndSummary(t *testing.T) {
	st := pool.Status{
		Capacity: 2, Active: 1, Idle: 1, Queued: 3,
		Slots: []pool.Slot{
			{ID: 1, Status: pool.SlotRunning, TaskID: "T1", Role: model.RoleCoder, StartedAt: time.Now()},
			{ID: 2, Status: pool.SlotIdle},
		},
	}
	out := renderPool(st)
	for _, want := range []string{"capacity=2", "active=1", "queued=3", "T1", "idle"} {
		if !strings.Contains(out, want) {
			t.Errorf("renderPool() missing %q:\n%s", want, out)
		}
	}
}

func TestRenderTasksEmpty(t *testing.T) {
	out := renderTasks(nil)
	if !strings.Contains(out, "no tasks") {
		t.Errorf("renderTasks(nil) = %q, want it to mention no tasks", out)
	}
}

func TestRenderTasksOrdersByPriorityThenAge(t *testing.T) {
	older := time.Now().Add(-time.Hour)
	tasks := []*model.Task{
		{ID: "T2", Priority: 1, CreatedAt: time.Now(), Status: model.TaskStatusTodo},
		{ID: "T1", Priority: 5, CreatedAt: older, Status: model.TaskStatusImplementing},
	}
	out := renderTasks(tasks)
	if strings.Index(out, "T1") > strings.Index(out, "T2") {
		t.Errorf("expected higher priority task T1 before T2:\n%s", out)
	}
}

func TestStatusWatchModelQuitsOnQ(t *testing.T) {
	m := NewStatusWatchModel(func() Snapshot { return Snapshot{} }, time.Second)
	_, cmd := m.Update(keyMsg("q"))
	if cmd == nil {
		t.Fatal("expected a quit command for 'q'")
	}
}

func TestStatusWatchModelScrollClampsAtZero(t *testing.T) {
	m := NewStatusWatchModel(func() Snapshot { return Snapshot{} }, time.Second)
	updated, _ := m.Update(keyMsg("up"))
	if updated.(StatusWatchModel).scrollY != 0 {
		t.Errorf("scrollY should not go negative")
	}
}
