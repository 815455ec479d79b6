package pads

import (
	"errors"
	"testing"
)

func newTestController() (*rig, *Controller) {
	r := newRig()
	return r, NewController(r.slots, r.sched, r.clock)
}

func TestActivateTransitions(t *testing.T) {
	r, c := newTestController()

	steps := []struct {
		name  string
		key   Key
		want  Action
		state PadState
	}{
		{"cold start from silence", drum1, ActionStarted, StateActive},
		{"second category queues", bass1, ActionQueued, StateQueued},
		{"queued pad cancels", bass1, ActionCancelled, StateIdle},
		{"active pad stops", drum1, ActionStopped, StateIdle},
		{"silence again cold starts", sound1, ActionStarted, StateActive},
	}

	for _, step := range steps {
		got, _, err := c.Activate(step.key)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", step.name, err)
		}
		if got != step.want {
			t.Errorf("%s: expected %s, got %s", step.name, step.want, got)
		}
		if s := r.slots.State(step.key); s != step.state {
			t.Errorf("%s: expected state %s, got %s", step.name, step.state, s)
		}
	}
}

func TestActivateStopIsImmediate(t *testing.T) {
	r, c := newTestController()
	c.Activate(drum1)
	c.Activate(bass1)

	// stopping the only active pad leaves the queued one waiting
	if got, _, _ := c.Activate(drum1); got != ActionStopped {
		t.Fatalf("Expected stopped, got %s", got)
	}
	if live := r.graph.live(drum1); len(live) != 0 {
		t.Errorf("Expected drum1 silenced immediately, got %d live", len(live))
	}
	if got := r.slots.State(bass1); got != StateQueued {
		t.Errorf("Expected bass1 still queued, got %s", got)
	}
	if !r.sched.Running() {
		t.Error("Expected the cycle clock to keep running")
	}
}

func TestActivateReportsEvictions(t *testing.T) {
	_, c := newTestController()
	c.Activate(drum1)
	c.Activate(drum2)

	got, evicted, err := c.Activate(drum3)
	if err != nil {
		t.Fatal(err)
	}
	if got != ActionQueued {
		t.Errorf("Expected queued, got %s", got)
	}
	if len(evicted) != 1 || evicted[0].Key != drum2 {
		t.Errorf("Expected drum2 evicted, got %v", evicted)
	}
}

func TestActivateStoppingReleasingPad(t *testing.T) {
	r, c := newTestController()
	c.Activate(drum1)
	if got, _ := c.Release(drum1); got != ActionReleased {
		t.Fatalf("Expected released, got %s", got)
	}

	if got, _, _ := c.Activate(drum1); got != ActionStopped {
		t.Errorf("Expected stopped, got %s", got)
	}
	if r.slots.Released(drum1) {
		t.Error("Expected release flag cleared")
	}
}

func TestReleaseIgnoresIdle(t *testing.T) {
	_, c := newTestController()
	got, err := c.Release(bass2)
	if err != nil || got != ActionNone {
		t.Errorf("Expected no-op, got %s, %v", got, err)
	}
}

func TestActivateUnknownKey(t *testing.T) {
	r, c := newTestController()
	_, _, err := c.Activate(Key{Category: Sound, Index: 17})
	if !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("Expected ErrUnknownKey, got %v", err)
	}
	if !r.slots.Silent() || r.sched.Running() {
		t.Error("Expected state untouched")
	}
}

func TestControllerStopAll(t *testing.T) {
	r, c := newTestController()
	c.Activate(drum1)
	c.Activate(sound2)
	c.StopAll()

	if !r.slots.Silent() || r.sched.Running() {
		t.Error("Expected silence after StopAll")
	}
	if got, _, _ := c.Activate(bass1); got != ActionStarted {
		t.Errorf("Expected cold start after StopAll, got %s", got)
	}
}
