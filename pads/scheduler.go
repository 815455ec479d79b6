package pads

import (
	"math"
	"time"

	"go-padloop/debug"
)

// Timing constants for the cycle clock
const (
	DefaultStartDelay    = 50 * time.Millisecond  // lead before a fresh cycle starts
	DefaultLookahead     = 120 * time.Millisecond // boundary commit lead
	DefaultPollInterval  = 40 * time.Millisecond
	DefaultCycleDuration = 4 * time.Second // used when no sample has loaded
	VisualBPM            = 110.0
)

// Timing configures the scheduler
type Timing struct {
	StartDelay    time.Duration
	Lookahead     time.Duration
	FallbackCycle time.Duration
	BPM           float64
}

// DefaultTiming returns the standard timing
func DefaultTiming() Timing {
	return Timing{
		StartDelay:    DefaultStartDelay,
		Lookahead:     DefaultLookahead,
		FallbackCycle: DefaultCycleDuration,
		BPM:           VisualBPM,
	}
}

// Position is where the clock sits inside the current cycle
type Position struct {
	Running bool
	Phase   float64 // 0-1 through the cycle
	Beat    int     // beat index within the cycle
	Beats   int     // beats per cycle
	Cycle   int     // boundaries crossed since the cycle clock started
}

type tracked struct {
	pb    Playback
	start time.Duration
	prev  Playback // previous cycle's playback, still draining its tail
}

func (t *tracked) stop() {
	t.pb.Stop()
	if t.prev != nil {
		t.prev.Stop()
	}
}

// Scheduler owns the single cycle clock shared by every category and turns
// active sets into phase-locked playbacks. Not safe for concurrent use.
type Scheduler struct {
	slots  *SlotManager
	clock  Clock
	lib    Library
	graph  Graph
	timing Timing

	rate float64

	cycleDuration time.Duration
	cycleStart    time.Duration
	running       bool
	cycles        int

	playbacks map[Key]*tracked

	// ended is called (from any goroutine) when a tracked playback ends.
	// Manager routes it back through its lock.
	ended func(k Key, pb Playback)
}

// NewScheduler creates a scheduler over a slot manager
func NewScheduler(slots *SlotManager, clock Clock, lib Library, graph Graph, timing Timing) *Scheduler {
	if timing.FallbackCycle <= 0 {
		timing.FallbackCycle = DefaultCycleDuration
	}
	if timing.BPM <= 0 {
		timing.BPM = VisualBPM
	}
	return &Scheduler{
		slots:     slots,
		clock:     clock,
		lib:       lib,
		graph:     graph,
		timing:    timing,
		rate:      1,
		playbacks: make(map[Key]*tracked),
	}
}

// SetEndedHandler sets the callback for playbacks that end on their own
func (s *Scheduler) SetEndedHandler(fn func(k Key, pb Playback)) {
	s.ended = fn
}

// Running reports whether the cycle clock is set
func (s *Scheduler) Running() bool {
	return s.running
}

// CycleDuration returns the nominal cycle length
func (s *Scheduler) CycleDuration() time.Duration {
	return s.cycleDuration
}

// CycleStart returns the start of the current cycle on the audio clock
func (s *Scheduler) CycleStart() time.Duration {
	return s.cycleStart
}

// Rate returns the playback rate in use
func (s *Scheduler) Rate() float64 {
	return s.rate
}

// EffectiveCycleDuration is the wall-clock cycle length: nominal duration
// divided by playback rate. Pitch shift never changes it.
func (s *Scheduler) EffectiveCycleDuration() time.Duration {
	d := s.cycleDuration
	if d <= 0 {
		d = s.timing.FallbackCycle
	}
	return time.Duration(float64(d) / s.rate)
}

// StartNewCycle establishes a fresh cycle from silence
func (s *Scheduler) StartNewCycle(initial []Key) error {
	if !s.slots.Silent() {
		return ErrNotSilent
	}
	if err := s.slots.Replace(initial); err != nil {
		return err
	}

	if d, ok := s.inferDuration(initial); ok {
		s.cycleDuration = d
	} else if s.cycleDuration <= 0 {
		s.cycleDuration = s.timing.FallbackCycle
	}

	s.cycleStart = s.clock.Now() + s.timing.StartDelay
	s.running = true
	s.cycles = 0
	debug.Log("cycle", "start duration=%v at=%v keys=%v", s.cycleDuration, s.cycleStart, initial)
	s.ScheduleCycle(s.cycleStart)
	return nil
}

func (s *Scheduler) inferDuration(keys []Key) (time.Duration, bool) {
	if s.lib == nil {
		return 0, false
	}
	for _, k := range keys {
		if d, ok := s.lib.Duration(k); ok && d > 0 {
			return d, true
		}
	}
	return 0, false
}

// ScheduleCycle starts every active, non-released key with a loaded buffer
// at exactly start. Replaying the same boundary replaces each key's
// playback rather than doubling it.
func (s *Scheduler) ScheduleCycle(start time.Duration) {
	for _, c := range Categories {
		for _, e := range s.slots.active[c] {
			if s.slots.Released(e.Key) {
				continue
			}
			s.slots.markScheduled(e.Key, start)
			if s.lib == nil || !s.lib.Loaded(e.Key) {
				continue // silent placeholder
			}
			s.startPlayback(c, e.Key, start)
		}
	}
}

func (s *Scheduler) startPlayback(c Category, k Key, start time.Duration) {
	var prev Playback
	if t, ok := s.playbacks[k]; ok {
		if t.start == start {
			t.pb.Stop()
			prev = t.prev
		} else {
			if t.prev != nil {
				t.prev.Stop()
			}
			prev = t.pb
		}
		delete(s.playbacks, k)
	}

	pb, err := s.graph.Connect(c, k)
	if err != nil {
		debug.Log("cycle", "connect %s failed: %v", k, err)
		if prev != nil {
			s.playbacks[k] = &tracked{pb: prev, start: start}
		}
		return
	}
	s.playbacks[k] = &tracked{pb: pb, start: start, prev: prev}
	if s.ended != nil {
		ended := s.ended
		pb.OnEnded(func() { ended(k, pb) })
	}
	pb.Start(start, s.rate)
}

// Forget drops a tracked playback that has ended, unless a newer playback
// for the key has replaced it
func (s *Scheduler) Forget(k Key, pb Playback) {
	t, ok := s.playbacks[k]
	if !ok {
		return
	}
	switch pb {
	case t.pb:
		delete(s.playbacks, k)
	case t.prev:
		t.prev = nil
	}
}

// Playing reports whether a key has a tracked playback
func (s *Scheduler) Playing(k Key) bool {
	_, ok := s.playbacks[k]
	return ok
}

// AdvanceCycle commits the boundary at next and schedules the new cycle
func (s *Scheduler) AdvanceCycle(next time.Duration) {
	released, evicted, promoted := s.slots.Commit()
	// released playbacks drain as tails and are cleared by Forget
	for _, e := range evicted {
		s.StopKey(e.Key)
	}
	s.cycleStart = next
	s.cycles++
	if len(released) > 0 || len(evicted) > 0 || len(promoted) > 0 {
		debug.Log("cycle", "advance #%d at=%v released=%d evicted=%d promoted=%v", s.cycles, next, len(released), len(evicted), promoted)
	}
	s.ScheduleCycle(next)
}

// Poll fires AdvanceCycle when the clock is within the lookahead window of
// the next boundary. It reports whether a boundary was committed.
func (s *Scheduler) Poll() bool {
	if !s.running {
		return false
	}
	next := s.cycleStart + s.EffectiveCycleDuration()
	now := s.clock.Now()
	debug.LogEvery(250, "poll", "now=%v next=%v rate=%.2f", now, next, s.rate)
	if now < next-s.timing.Lookahead {
		return false
	}
	s.AdvanceCycle(next)
	return true
}

// NextBoundary returns when the current cycle ends
func (s *Scheduler) NextBoundary() time.Duration {
	return s.cycleStart + s.EffectiveCycleDuration()
}

// StopKey stops a key's playback immediately
func (s *Scheduler) StopKey(k Key) {
	if t, ok := s.playbacks[k]; ok {
		t.stop()
		delete(s.playbacks, k)
	}
}

// StopAll is the hard reset back to silence. The nominal cycle duration
// is kept as the fallback for the next fresh start.
func (s *Scheduler) StopAll() {
	s.slots.Clear()
	for k, t := range s.playbacks {
		t.stop()
		delete(s.playbacks, k)
	}
	s.running = false
	s.cycleStart = 0
	s.cycles = 0
	debug.Log("cycle", "stop all")
}

// SetRate applies a playback rate to the clock and to every sounding
// playback
func (s *Scheduler) SetRate(rate float64) {
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return
	}
	s.rate = rate
	for _, t := range s.playbacks {
		t.pb.SetRate(rate)
		if t.prev != nil {
			t.prev.SetRate(rate)
		}
	}
}

// Position reports the cycle phase and beat at now
func (s *Scheduler) Position(now time.Duration) Position {
	if !s.running {
		return Position{}
	}
	eff := s.EffectiveCycleDuration()
	elapsed := now - s.cycleStart
	if elapsed < 0 {
		elapsed = 0
	}
	phase := float64(elapsed) / float64(eff)
	if phase > 1 {
		phase = 1
	}

	beatDur := time.Duration(float64(time.Minute) / s.timing.BPM / s.rate)
	beats := int(math.Round(float64(eff) / float64(beatDur)))
	if beats < 1 {
		beats = 1
	}
	beat := int(elapsed / beatDur)
	if beat >= beats {
		beat = beats - 1
	}
	return Position{Running: true, Phase: phase, Beat: beat, Beats: beats, Cycle: s.cycles}
}
