package pool

import (
	"testing"

	"github.com/ralph-run/ralph/internal/model"
)

func TestAssignUpToCapacityThenNil(t *testing.T) {
	p := New(2)
	t1 := &model.Task{ID: "T1"}
	t2 := &model.Task{ID: "T2"}
	t3 := &model.Task{ID: "T3"}

	if p.Assign(t1, model.RoleCoder, "/wt/T1") == nil {
		t.Fatal("expected slot for T1")
	}
	if p.Assign(t2, model.RoleCoder, "/wt/T2") == nil {
		t.Fatal("expected slot for T2")
	}
	if p.Assign(t3, model.RoleCoder, "/wt/T3") != nil {
		t.Fatal("expected nil: pool at capacity")
	}

	st := p.Status()
	if st.Active != 2 || st.Idle != 0 {
		t.Errorf("Status = %+v, want active=2 idle=0", st)
	}
}

func TestReleaseFreesSlotForReuse(t *testing.T) {
	p := New(1)
	t1 := &model.Task{ID: "T1"}
	if p.Assign(t1, model.RoleCoder, "/wt/T1") == nil {
		t.Fatal("expected slot")
	}
	p.Release("T1")
	t2 := &model.Task{ID: "T2"}
	if p.Assign(t2, model.RoleCoder, "/wt/T2") == nil {
		t.Fatal("expected slot to be reusable after release")
	}
}

func TestReleaseUnknownTaskIsNoOp(t *testing.T) {
	p := New(1)
	p.Release("does-not-exist")
	if st := p.Status(); st.Active != 0 {
		t.Errorf("Active = %d, want 0", st.Active)
	}
}

// TestZeroCapacityAssignAlwaysNil covers boundary property: capacity 0
// means every assign returns nil, while queue/dequeue still function.
func TestZeroCapacityAssignAlwaysNil(t *testing.T) {
	p := New(0)
	if p.Assign(&model.Task{ID: "T1"}, model.RoleCoder, "/wt") != nil {
		t.Fatal("expected nil from zero-capacity pool")
	}
	p.Queue(&model.Task{ID: "T1", Priority: 1})
	if got := p.Dequeue(); got == nil || got.ID != "T1" {
		t.Fatalf("Dequeue() = %v, want T1", got)
	}
}

func TestDequeuePriorityOrderTiesByInsertion(t *testing.T) {
	p := New(3)
	p.Queue(&model.Task{ID: "low-first", Priority: 1})
	p.Queue(&model.Task{ID: "high", Priority: 10})
	p.Queue(&model.Task{ID: "low-second", Priority: 1})

	first := p.Dequeue()
	if first == nil || first.ID != "high" {
		t.Fatalf("first = %v, want high", first)
	}
	second := p.Dequeue()
	if second == nil || second.ID != "low-first" {
		t.Fatalf("second = %v, want low-first (earlier insertion among ties)", second)
	}
	third := p.Dequeue()
	if third == nil || third.ID != "low-second" {
		t.Fatalf("third = %v, want low-second", third)
	}
	if p.Dequeue() != nil {
		t.Error("expected nil once queue drained")
	}
}

func TestEventsEmittedOnAssignAndRelease(t *testing.T) {
	p := New(1)
	p.Assign(&model.Task{ID: "T1"}, model.RoleCoder, "/wt/T1")
	p.Release("T1")

	events := drainEvents(t, p, 2)
	if events[0].Kind != EventAssigned || events[0].TaskID != "T1" {
		t.Errorf("events[0] = %+v, want assigned/T1", events[0])
	}
	if events[1].Kind != EventReleased || events[1].TaskID != "T1" {
		t.Errorf("events[1] = %+v, want released/T1", events[1])
	}
}

func drainEvents(t *testing.T, p *Pool, n int) []Event {
	t.Helper()
	var out []Event
	for i := 0; i < n; i++ {
		select {
		case e := <-p.Events():
			out = append(out, e)
		default:
			t.Fatalf("expected %d events, got %d", n, i)
		}
	}
	return out
}
