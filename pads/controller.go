package pads

import (
	"fmt"

	"go-padloop/debug"
)

// Action is the transition an activation produced
type Action int

const (
	ActionNone Action = iota
	ActionStarted
	ActionQueued
	ActionStopped
	ActionCancelled
	ActionReleased
)

func (a Action) String() string {
	switch a {
	case ActionStarted:
		return "started"
	case ActionQueued:
		return "queued"
	case ActionStopped:
		return "stopped"
	case ActionCancelled:
		return "cancelled"
	case ActionReleased:
		return "released"
	}
	return "none"
}

// Controller maps pad activations onto slot transitions
type Controller struct {
	slots *SlotManager
	sched *Scheduler
	clock Clock
}

// NewController creates a controller
func NewController(slots *SlotManager, sched *Scheduler, clock Clock) *Controller {
	return &Controller{slots: slots, sched: sched, clock: clock}
}

// Activate applies exactly one transition for a key: stop if active,
// cancel if queued, cold start when silent, enqueue otherwise. It returns
// the pending entries evicted by the enqueue.
func (c *Controller) Activate(k Key) (Action, []PendingEntry, error) {
	if !k.Valid() {
		return ActionNone, nil, fmt.Errorf("%w: %v", ErrUnknownKey, k)
	}

	switch c.slots.State(k) {
	case StateActive, StateReleasing:
		c.slots.Stop(k)
		c.sched.StopKey(k)
		debug.Log("pad", "%s stopped", k)
		return ActionStopped, nil, nil

	case StateQueued:
		c.slots.Cancel(k)
		debug.Log("pad", "%s cancelled", k)
		return ActionCancelled, nil, nil
	}

	if c.slots.Silent() {
		if err := c.sched.StartNewCycle([]Key{k}); err != nil {
			return ActionNone, nil, err
		}
		debug.Log("pad", "%s cold start", k)
		return ActionStarted, nil, nil
	}

	evicted, err := c.slots.Enqueue(k, c.clock.Now())
	if err != nil {
		return ActionNone, nil, err
	}
	for _, e := range evicted {
		debug.Log("pad", "%s evicted from queue by %s", e.Key, k)
	}
	debug.Log("pad", "%s queued", k)
	return ActionQueued, evicted, nil
}

// Release flags an active key so it drops out at the next boundary
func (c *Controller) Release(k Key) (Action, error) {
	if !k.Valid() {
		return ActionNone, fmt.Errorf("%w: %v", ErrUnknownKey, k)
	}
	if !c.slots.Release(k) {
		return ActionNone, nil
	}
	debug.Log("pad", "%s released", k)
	return ActionReleased, nil
}

// StopAll silences everything
func (c *Controller) StopAll() {
	c.sched.StopAll()
}
