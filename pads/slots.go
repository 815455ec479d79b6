package pads

import (
	"fmt"
	"time"
)

// PadState is where a key sits in the slot state machine
type PadState int

const (
	StateIdle PadState = iota
	StateQueued
	StateActive
	StateReleasing // active, dropped at the next boundary
)

func (s PadState) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateActive:
		return "active"
	case StateReleasing:
		return "releasing"
	}
	return "idle"
}

// PlayingEntry is an active key. Entries are kept in activation order.
type PlayingEntry struct {
	Key          Key
	CyclesPlayed int

	lastStart time.Duration // boundary this entry was last scheduled for
	scheduled bool
}

// PendingEntry is a key waiting for the next boundary
type PendingEntry struct {
	Key         Key
	RequestedAt time.Duration

	seq uint64 // tie-break for equal RequestedAt
}

// SlotManager owns the per-category Active sets and Pending queues.
// It is not safe for concurrent use; Manager serializes access.
type SlotManager struct {
	active   map[Category][]PlayingEntry
	pending  map[Category][]PendingEntry
	released map[Key]bool
	seq      uint64
}

// NewSlotManager creates an empty (silent) slot manager
func NewSlotManager() *SlotManager {
	s := &SlotManager{}
	s.Clear()
	return s
}

// Clear drops every active, pending and released entry
func (s *SlotManager) Clear() {
	s.active = make(map[Category][]PlayingEntry, len(Categories))
	s.pending = make(map[Category][]PendingEntry, len(Categories))
	s.released = make(map[Key]bool)
}

// Silent reports whether nothing is active or queued anywhere
func (s *SlotManager) Silent() bool {
	for _, c := range Categories {
		if len(s.active[c]) > 0 || len(s.pending[c]) > 0 {
			return false
		}
	}
	return true
}

// State returns the state of a key
func (s *SlotManager) State(k Key) PadState {
	for _, e := range s.active[k.Category] {
		if e.Key == k {
			if s.released[k] {
				return StateReleasing
			}
			return StateActive
		}
	}
	for _, e := range s.pending[k.Category] {
		if e.Key == k {
			return StateQueued
		}
	}
	return StateIdle
}

// Active returns a copy of a category's active set in activation order
func (s *SlotManager) Active(c Category) []PlayingEntry {
	return append([]PlayingEntry(nil), s.active[c]...)
}

// Pending returns a copy of a category's pending queue in request order
func (s *SlotManager) Pending(c Category) []PendingEntry {
	return append([]PendingEntry(nil), s.pending[c]...)
}

// ActiveKeys returns the active keys of a category
func (s *SlotManager) ActiveKeys(c Category) []Key {
	keys := make([]Key, 0, len(s.active[c]))
	for _, e := range s.active[c] {
		keys = append(keys, e.Key)
	}
	return keys
}

// Replace installs a fresh set of active keys. Only valid when silent.
func (s *SlotManager) Replace(initial []Key) error {
	if !s.Silent() {
		return ErrNotSilent
	}
	counts := make(map[Category]int, len(Categories))
	seen := make(map[Key]bool, len(initial))
	for _, k := range initial {
		if !k.Valid() {
			return fmt.Errorf("%w: %v", ErrUnknownKey, k)
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		counts[k.Category]++
		if counts[k.Category] > k.Category.Limit() {
			return fmt.Errorf("%w: %s has %d", ErrOverLimit, k.Category, counts[k.Category])
		}
	}

	s.Clear()
	for _, k := range initial {
		if s.State(k) != StateIdle {
			continue
		}
		s.active[k.Category] = append(s.active[k.Category], PlayingEntry{Key: k})
	}
	return nil
}

// Enqueue queues a key for the next boundary and returns the pending
// entries it evicted. Eviction is FIFO by request time and never touches
// active entries.
//
// When the active set is full, each pending entry will replace an active
// one at the boundary, so the queue may hold up to the limit. Otherwise it
// holds at most the free slots.
func (s *SlotManager) Enqueue(k Key, at time.Duration) ([]PendingEntry, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrUnknownKey, k)
	}
	if s.State(k) != StateIdle {
		return nil, nil
	}

	c := k.Category
	limit := c.Limit()
	room := limit - len(s.active[c])
	if room <= 0 {
		room = limit
	}

	var evicted []PendingEntry
	for len(s.pending[c]) > 0 && len(s.pending[c]) >= room {
		evicted = append(evicted, s.popOldestPending(c))
	}

	s.seq++
	s.pending[c] = append(s.pending[c], PendingEntry{Key: k, RequestedAt: at, seq: s.seq})
	return evicted, nil
}

func (s *SlotManager) popOldestPending(c Category) PendingEntry {
	q := s.pending[c]
	oldest := 0
	for i := 1; i < len(q); i++ {
		if q[i].RequestedAt < q[oldest].RequestedAt ||
			(q[i].RequestedAt == q[oldest].RequestedAt && q[i].seq < q[oldest].seq) {
			oldest = i
		}
	}
	e := q[oldest]
	s.pending[c] = append(q[:oldest:oldest], q[oldest+1:]...)
	return e
}

// Stop removes an active key immediately
func (s *SlotManager) Stop(k Key) bool {
	set := s.active[k.Category]
	for i, e := range set {
		if e.Key == k {
			s.active[k.Category] = append(set[:i:i], set[i+1:]...)
			delete(s.released, k)
			return true
		}
	}
	return false
}

// Cancel removes a queued key without side effects
func (s *SlotManager) Cancel(k Key) bool {
	q := s.pending[k.Category]
	for i, e := range q {
		if e.Key == k {
			s.pending[k.Category] = append(q[:i:i], q[i+1:]...)
			return true
		}
	}
	return false
}

// Release flags an active key to be dropped at the next boundary
func (s *SlotManager) Release(k Key) bool {
	if s.State(k) != StateActive {
		return false
	}
	s.released[k] = true
	return true
}

// Released reports whether an active key is flagged for removal
func (s *SlotManager) Released(k Key) bool {
	return s.released[k]
}

// Commit is the boundary transition: released keys leave, pending keys are
// promoted (evicting the oldest active entry by activation order when the
// category is full) and every queue is cleared. Released entries finish
// their current playback; evicted ones are cut.
func (s *SlotManager) Commit() (released, evicted []PlayingEntry, promoted []Key) {
	for _, c := range Categories {
		kept := s.active[c][:0:0]
		for _, e := range s.active[c] {
			if s.released[e.Key] {
				released = append(released, e)
				continue
			}
			kept = append(kept, e)
		}
		s.active[c] = kept
	}
	s.released = make(map[Key]bool)

	for _, c := range Categories {
		for _, p := range s.pending[c] {
			if len(s.active[c]) >= c.Limit() {
				evicted = append(evicted, s.active[c][0])
				s.active[c] = append(s.active[c][:0:0], s.active[c][1:]...)
			}
			s.active[c] = append(s.active[c], PlayingEntry{Key: p.Key})
			promoted = append(promoted, p.Key)
		}
		s.pending[c] = nil
	}
	return released, evicted, promoted
}

// markScheduled records that an active entry was started for a boundary.
// CyclesPlayed counts each boundary once.
func (s *SlotManager) markScheduled(k Key, start time.Duration) {
	set := s.active[k.Category]
	for i := range set {
		if set[i].Key != k {
			continue
		}
		if !set[i].scheduled || set[i].lastStart != start {
			set[i].CyclesPlayed++
		}
		set[i].scheduled = true
		set[i].lastStart = start
		return
	}
}
