// Package tui provides a live terminal dashboard for watching the
// orchestrator's task board and agent pool. Grounded on the teacher's
// bubbletea log viewer (same color palette, header/content/footer layout,
// and scroll key bindings), repurposed from rendering a single execution
// log's parsed sections to polling the store and pool on a ticker and
// rendering a live snapshot instead.
package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ralph-run/ralph/internal/model"
	"github.com/ralph-run/ralph/internal/pool"
)

const (
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	errorColor   = lipgloss.Color("#EF4444")
	warningColor = lipgloss.Color("#F59E0B")
	mutedColor   = lipgloss.Color("#6B7280")
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(primaryColor).
			Padding(0, 1)

	sectionTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(primaryColor).
				MarginTop(1)

	statusRunningStyle = lipgloss.NewStyle().Foreground(warningColor)
	statusDoneStyle    = lipgloss.NewStyle().Foreground(successColor)
	statusIdleStyle    = lipgloss.NewStyle().Foreground(mutedColor)
	statusErrorStyle   = lipgloss.NewStyle().Foreground(errorColor)

	helpStyle  = lipgloss.NewStyle().Foreground(mutedColor)
	footerStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)
)

// Snapshot is a point-in-time read of the board and pool, supplied by the
// caller's refresh function. The viewer has no store or pool dependency of
// its own: it only knows how to render one.
type Snapshot struct {
	Tasks     []*model.Task
	PoolState pool.Status
	Err       error
}

// refreshMsg wraps a polled Snapshot as a bubbletea message.
type refreshMsg Snapshot

// tickMsg drives the poll loop.
type tickMsg time.Time

// StatusWatchModel is the bubbletea model for `ralph status --watch`.
type StatusWatchModel struct {
	refresh  func() Snapshot
	interval time.Duration

	snapshot Snapshot
	width    int
	height   int
	scrollY  int
	maxScroll int
}

// NewStatusWatchModel constructs a watcher that calls refresh every
// interval to obtain a new Snapshot.
func NewStatusWatchModel(refresh func() Snapshot, interval time.Duration) StatusWatchModel {
	return StatusWatchModel{refresh: refresh, interval: interval}
}

// RunStatusWatch starts the alt-screen program and blocks until the user
// quits.
func RunStatusWatch(refresh func() Snapshot, interval time.Duration) error {
	m := NewStatusWatchModel(refresh, interval)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m StatusWatchModel) Init() tea.Cmd {
	return tea.Batch(m.pollCmd(), m.tickCmd())
}

func (m StatusWatchModel) pollCmd() tea.Cmd {
	return func() tea.Msg { return refreshMsg(m.refresh()) }
}

func (m StatusWatchModel) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m StatusWatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			if m.scrollY > 0 {
				m.scrollY--
			}
		case "down", "j":
			if m.scrollY < m.maxScroll {
				m.scrollY++
			}
		case "home":
			m.scrollY = 0
		case "end":
			m.scrollY = m.maxScroll
		case "r":
			return m, m.pollCmd()
		}
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.pollCmd(), m.tickCmd())

	case refreshMsg:
		m.snapshot = Snapshot(msg)
		return m, nil
	}
	return m, nil
}

func (m StatusWatchModel) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render(fmt.Sprintf(" ralph status — %s ", time.Now().Format("15:04:05"))))
	b.WriteString("\n")

	if m.snapshot.Err != nil {
		b.WriteString(statusErrorStyle.Render(fmt.Sprintf("refresh error: %v", m.snapshot.Err)))
		b.WriteString("\n")
	}

	b.WriteString(sectionTitleStyle.Render("Agent pool"))
	b.WriteString("\n")
	b.WriteString(renderPool(m.snapshot.PoolState))

	b.WriteString(sectionTitleStyle.Render("Tasks"))
	b.WriteString("\n")
	b.WriteString(renderTasks(m.snapshot.Tasks))

	b.WriteString(footerStyle.Render(helpStyle.Render("↑/k up · ↓/j down · r refresh · q quit")))

	return b.String()
}

func renderPool(st pool.Status) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("capacity=%d active=%d idle=%d queued=%d\n", st.Capacity, st.Active, st.Idle, st.Queued))
	for _, slot := range st.Slots {
		if slot.Status == pool.SlotIdle {
			b.WriteString(statusIdleStyle.Render(fmt.Sprintf("  slot %d  idle", slot.ID)))
			b.WriteString("\n")
			continue
		}
		line := fmt.Sprintf("  slot %d  %-6s  %s  %s", slot.ID, slot.Role, slot.TaskID, durationSince(slot.StartedAt))
		b.WriteString(statusRunningStyle.Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

func renderTasks(tasks []*model.Task) string {
	if len(tasks) == 0 {
		return helpStyle.Render("  no tasks\n")
	}

	sorted := make([]*model.Task, len(tasks))
	copy(sorted, tasks)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority > sorted[j].Priority
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	var b strings.Builder
	for _, t := range sorted {
		style := statusIdleStyle
		switch t.Status {
		case model.TaskStatusDone:
			style = statusDoneStyle
		case model.TaskStatusImplementing, model.TaskStatusReviewing, model.TaskStatusTesting:
			style = statusRunningStyle
		}
		line := fmt.Sprintf("  %-10s %-13s it=%d  %s", t.ID, t.Status, t.Iteration, t.Title)
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

func durationSince(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := time.Since(t).Round(time.Second)
	return d.String()
}
