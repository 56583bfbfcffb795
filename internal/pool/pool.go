// Package pool implements AgentPool: a fixed-capacity, in-process table of
// agent execution slots plus a priority task queue. Grounded on the
// original AgentPool's slot/queue structure, redesigned per the
// specification: slot-transition notifications are delivered over a
// channel rather than a callback list that must swallow exceptions.
package pool

import (
	"sort"
	"sync"
	"time"

	"github.com/ralph-run/ralph/internal/model"
)

// SlotStatus is a slot's occupancy state.
type SlotStatus string

const (
	SlotIdle    SlotStatus = "idle"
	SlotRunning SlotStatus = "running"
)

// Slot is one execution seat in the pool.
type Slot struct {
	ID           int
	TaskID       string
	Role         model.AgentRole
	Status       SlotStatus
	StartedAt    time.Time
	WorktreePath string
}

// EventKind names a slot transition.
type EventKind string

const (
	EventAssigned EventKind = "assigned"
	EventReleased EventKind = "released"
)

// Event is one slot transition, delivered on the pool's event channel.
type Event struct {
	SlotID int
	TaskID string
	Kind   EventKind
}

// queuedTask preserves arrival order for stable tie-breaking.
type queuedTask struct {
	task     *model.Task
	sequence int
}

// Pool is a fixed-capacity bounded set of agent slots plus an internal
// priority queue. It does not block: Assign returns nil immediately when no
// slot is idle, and the caller (the Scheduler) decides whether to wait.
type Pool struct {
	mu       sync.Mutex
	slots    []*Slot
	queue    []queuedTask
	nextSeq  int
	events   chan Event
}

// New constructs a Pool with capacity slots, numbered 1..capacity. events is
// buffered generously so slot transitions never block the caller; events
// the consumer doesn't keep up with are dropped rather than stalling the
// pool, since event delivery is best-effort status reporting, not a
// synchronization primitive.
func New(capacity int) *Pool {
	slots := make([]*Slot, capacity)
	for i := range slots {
		slots[i] = &Slot{ID: i + 1, Status: SlotIdle}
	}
	return &Pool{
		slots:  slots,
		events: make(chan Event, 256),
	}
}

// Events returns the channel slot transitions are published on.
func (p *Pool) Events() <-chan Event { return p.events }

func (p *Pool) emit(e Event) {
	select {
	case p.events <- e:
	default:
	}
}

// Assign transitions an idle slot to running for task/role/worktree, or
// returns nil if the pool is at capacity.
func (p *Pool) Assign(task *model.Task, role model.AgentRole, worktreePath string) *Slot {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, s := range p.slots {
		if s.Status == SlotIdle {
			s.TaskID = task.ID
			s.Role = role
			s.WorktreePath = worktreePath
			s.Status = SlotRunning
			s.StartedAt = time.Now()
			p.emit(Event{SlotID: s.ID, TaskID: task.ID, Kind: EventAssigned})
			cp := *s
			return &cp
		}
	}
	return nil
}

// Release frees the slot holding taskID. A no-op if no slot holds it.
func (p *Pool) Release(taskID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, s := range p.slots {
		if s.Status == SlotRunning && s.TaskID == taskID {
			p.emit(Event{SlotID: s.ID, TaskID: taskID, Kind: EventReleased})
			s.TaskID = ""
			s.Role = ""
			s.WorktreePath = ""
			s.Status = SlotIdle
			s.StartedAt = time.Time{}
			return
		}
	}
}

// Queue appends task to the internal queue.
func (p *Pool) Queue(task *model.Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, queuedTask{task: task, sequence: p.nextSeq})
	p.nextSeq++
}

// Dequeue removes and returns the highest-priority queued task, ties broken
// by insertion order. Returns nil if the queue is empty.
func (p *Pool) Dequeue() *model.Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return nil
	}

	best := 0
	for i := 1; i < len(p.queue); i++ {
		if p.queue[i].task.Priority > p.queue[best].task.Priority {
			best = i
		} else if p.queue[i].task.Priority == p.queue[best].task.Priority && p.queue[i].sequence < p.queue[best].sequence {
			best = i
		}
	}

	t := p.queue[best].task
	p.queue = append(p.queue[:best], p.queue[best+1:]...)
	return t
}

// QueuedTasks returns a snapshot of queued tasks in arrival order.
func (p *Pool) QueuedTasks() []*model.Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*model.Task, len(p.queue))
	for i, q := range p.queue {
		out[i] = q.task
	}
	return out
}

// Status is a point-in-time snapshot of the pool.
type Status struct {
	Capacity int
	Active   int
	Idle     int
	Queued   int
	Slots    []Slot
}

// Status returns a snapshot of the pool's current occupancy.
func (p *Pool) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	active := 0
	slots := make([]Slot, len(p.slots))
	for i, s := range p.slots {
		slots[i] = *s
		if s.Status != SlotIdle {
			active++
		}
	}
	sort.SliceStable(slots, func(i, j int) bool { return slots[i].ID < slots[j].ID })

	return Status{
		Capacity: len(p.slots),
		Active:   active,
		Idle:     len(p.slots) - active,
		Queued:   len(p.queue),
		Slots:    slots,
	}
}
