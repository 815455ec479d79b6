package pads

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestStartNewCycle(t *testing.T) {
	r := newRig()
	r.lib.durations[drum1] = 3 * time.Second

	if err := r.sched.StartNewCycle([]Key{drum1}); err != nil {
		t.Fatalf("StartNewCycle failed: %v", err)
	}

	if got := r.sched.CycleDuration(); got != 3*time.Second {
		t.Errorf("Expected cycle 3s, got %v", got)
	}
	wantStart := time.Second + DefaultStartDelay
	if got := r.sched.CycleStart(); got != wantStart {
		t.Errorf("Expected cycle start %v, got %v", wantStart, got)
	}

	live := r.graph.live(drum1)
	if len(live) != 1 {
		t.Fatalf("Expected 1 playback, got %d", len(live))
	}
	if live[0].start != wantStart || live[0].rate != 1 {
		t.Errorf("Expected start %v at rate 1, got %v at %v", wantStart, live[0].start, live[0].rate)
	}
	if entries := r.slots.Active(Drum); entries[0].CyclesPlayed != 1 {
		t.Errorf("Expected 1 cycle played, got %d", entries[0].CyclesPlayed)
	}
}

func TestStartNewCycleRequiresSilence(t *testing.T) {
	r := newRig()
	r.sched.StartNewCycle([]Key{drum1})

	if err := r.sched.StartNewCycle([]Key{bass1}); !errors.Is(err, ErrNotSilent) {
		t.Fatalf("Expected ErrNotSilent, got %v", err)
	}
}

func TestStartNewCycleFallbackDuration(t *testing.T) {
	r := newRig()
	delete(r.lib.durations, drum1)

	if err := r.sched.StartNewCycle([]Key{drum1}); err != nil {
		t.Fatal(err)
	}
	if got := r.sched.CycleDuration(); got != DefaultCycleDuration {
		t.Errorf("Expected fallback %v, got %v", DefaultCycleDuration, got)
	}
	if n := len(r.graph.of(drum1)); n != 0 {
		t.Errorf("Expected no playback for a missing sample, got %d", n)
	}
	if got := r.slots.State(drum1); got != StateActive {
		t.Errorf("Expected missing sample to hold its slot, got %s", got)
	}
}

func TestPollWaitsForLookahead(t *testing.T) {
	r := newRig()
	r.sched.StartNewCycle([]Key{drum1})
	next := r.sched.NextBoundary()

	r.clock.Set(next - DefaultLookahead - time.Millisecond)
	if r.sched.Poll() {
		t.Fatal("Expected no boundary before the lookahead window")
	}

	r.clock.Set(next - DefaultLookahead)
	if !r.sched.Poll() {
		t.Fatal("Expected boundary inside the lookahead window")
	}
	if got := r.sched.CycleStart(); got != next {
		t.Errorf("Expected cycle start %v, got %v", next, got)
	}
	if r.sched.Poll() {
		t.Error("Expected one boundary per cycle")
	}
}

func TestBoundaryKeepsPhaseLock(t *testing.T) {
	r := newRig()
	r.sched.StartNewCycle([]Key{drum1})
	first := r.sched.CycleStart()

	for i := 1; i <= 3; i++ {
		next := r.toBoundary()
		r.sched.Poll()
		want := first + time.Duration(i)*2*time.Second
		if next != want {
			t.Fatalf("Expected boundary %d at %v, got %v", i, want, next)
		}
	}

	pbs := r.graph.of(drum1)
	if len(pbs) != 4 {
		t.Fatalf("Expected 4 playbacks, got %d", len(pbs))
	}
	for i, pb := range pbs {
		want := first + time.Duration(i)*2*time.Second
		if pb.start != want {
			t.Errorf("Expected playback %d at %v, got %v", i, want, pb.start)
		}
	}
	if entries := r.slots.Active(Drum); entries[0].CyclesPlayed != 4 {
		t.Errorf("Expected 4 cycles played, got %d", entries[0].CyclesPlayed)
	}
}

func TestBoundaryLeavesTailDraining(t *testing.T) {
	r := newRig()
	r.sched.StartNewCycle([]Key{drum1})
	r.toBoundary()
	r.sched.Poll()

	pbs := r.graph.of(drum1)
	if len(pbs) != 2 {
		t.Fatalf("Expected 2 playbacks, got %d", len(pbs))
	}
	if pbs[0].stopped {
		t.Error("Expected the previous cycle to drain, not stop")
	}

	// a stop covers the draining tail too
	r.sched.StopKey(drum1)
	if pbs[0].live() || pbs[1].live() {
		t.Error("Expected StopKey to stop both playbacks")
	}
}

func TestPendingJoinsSharedCycle(t *testing.T) {
	r := newRig()
	r.lib.durations[bass1] = 5 * time.Second
	r.sched.StartNewCycle([]Key{drum1})
	r.slots.Enqueue(bass1, r.clock.Now())

	next := r.toBoundary()
	r.sched.Poll()

	bass := r.graph.live(bass1)
	if len(bass) != 1 || bass[0].start != next {
		t.Fatalf("Expected bass1 to start at %v, got %v", next, bass)
	}
	drums := r.graph.of(drum1)
	if drums[len(drums)-1].start != next {
		t.Errorf("Expected drum1 restart at %v, got %v", next, drums[len(drums)-1].start)
	}
	if got := r.sched.CycleDuration(); got != 2*time.Second {
		t.Errorf("Expected cycle duration fixed at 2s, got %v", got)
	}
}

func TestBoundaryEvictionStopsOldKey(t *testing.T) {
	r := newRig()
	r.sched.StartNewCycle([]Key{drum1})
	r.slots.Enqueue(drum2, r.clock.Now())

	r.toBoundary()
	r.sched.Poll()

	if live := r.graph.live(drum1); len(live) != 0 {
		t.Errorf("Expected drum1 silenced, got %d live", len(live))
	}
	if live := r.graph.live(drum2); len(live) != 1 {
		t.Errorf("Expected drum2 playing, got %d live", len(live))
	}
	if r.sched.Playing(drum1) {
		t.Error("Expected drum1 untracked")
	}
}

func TestReleasedKeyIsNotRescheduled(t *testing.T) {
	r := newRig()
	r.sched.SetEndedHandler(func(k Key, pb Playback) { r.sched.Forget(k, pb) })
	r.sched.StartNewCycle([]Key{drum1, bass1})
	r.slots.Release(bass1)

	// replaying the current boundary leaves the released key alone
	r.sched.ScheduleCycle(r.sched.CycleStart())
	if n := len(r.graph.of(bass1)); n != 1 {
		t.Fatalf("Expected released key not replayed, got %d playbacks", n)
	}

	// the boundary is committed 119ms early; the current pass keeps sounding
	r.clock.Set(r.sched.NextBoundary() - 119*time.Millisecond)
	if !r.sched.Poll() {
		t.Fatal("Expected the boundary inside the lookahead window")
	}
	if got := r.slots.State(bass1); got != StateIdle {
		t.Errorf("Expected bass1 idle, got %s", got)
	}
	pbs := r.graph.of(bass1)
	if len(pbs) != 1 {
		t.Fatalf("Expected bass1 not rescheduled, got %d playbacks", len(pbs))
	}
	if !pbs[0].live() {
		t.Error("Expected the released playback to finish its pass")
	}
	if !r.sched.Playing(bass1) {
		t.Error("Expected the draining playback tracked")
	}

	pbs[0].end()
	if r.sched.Playing(bass1) {
		t.Error("Expected bass1 untracked once its tail ended")
	}
	if n := len(r.graph.of(bass1)); n != 1 {
		t.Errorf("Expected no new bass1 playback, got %d", n)
	}
}

func TestScheduleCycleIsIdempotent(t *testing.T) {
	r := newRig()
	r.sched.StartNewCycle([]Key{drum1})
	start := r.sched.CycleStart()

	r.sched.ScheduleCycle(start)
	r.sched.ScheduleCycle(start)

	if live := r.graph.live(drum1); len(live) != 1 {
		t.Fatalf("Expected 1 live playback, got %d", len(live))
	}
	if entries := r.slots.Active(Drum); entries[0].CyclesPlayed != 1 {
		t.Errorf("Expected 1 cycle played, got %d", entries[0].CyclesPlayed)
	}
}

func TestConnectFailureKeepsSlot(t *testing.T) {
	r := newRig()
	r.graph.fail = map[Key]bool{bass1: true}

	if err := r.sched.StartNewCycle([]Key{drum1, bass1}); err != nil {
		t.Fatal(err)
	}
	if r.sched.Playing(bass1) {
		t.Error("Expected no tracked playback for a failed connect")
	}
	if !r.sched.Playing(drum1) {
		t.Error("Expected the other pad to play")
	}
	if got := r.slots.State(bass1); got != StateActive {
		t.Errorf("Expected bass1 active, got %s", got)
	}
}

func TestStopAll(t *testing.T) {
	r := newRig()
	r.sched.StartNewCycle([]Key{drum1, sound1})
	r.slots.Enqueue(bass1, r.clock.Now())

	r.sched.StopAll()

	if r.sched.Running() {
		t.Error("Expected clock stopped")
	}
	if !r.slots.Silent() {
		t.Error("Expected silent slots")
	}
	for _, k := range []Key{drum1, sound1} {
		if live := r.graph.live(k); len(live) != 0 {
			t.Errorf("Expected %s stopped, got %d live", k, len(live))
		}
	}
	if got := r.sched.CycleDuration(); got != 2*time.Second {
		t.Errorf("Expected cycle duration kept, got %v", got)
	}
	if r.sched.Poll() {
		t.Error("Expected no boundary while stopped")
	}
}

func TestSetRateScalesCycle(t *testing.T) {
	r := newRig()
	r.sched.StartNewCycle([]Key{drum1})

	r.sched.SetRate(2)

	if got := r.sched.EffectiveCycleDuration(); got != time.Second {
		t.Errorf("Expected effective cycle 1s, got %v", got)
	}
	if got := r.sched.CycleDuration(); got != 2*time.Second {
		t.Errorf("Expected nominal cycle 2s, got %v", got)
	}
	if live := r.graph.live(drum1); live[0].rate != 2 {
		t.Errorf("Expected playback rate 2, got %v", live[0].rate)
	}

	next := r.toBoundary()
	r.sched.Poll()
	pbs := r.graph.of(drum1)
	if last := pbs[len(pbs)-1]; last.start != next || last.rate != 2 {
		t.Errorf("Expected new cycle at %v rate 2, got %v rate %v", next, last.start, last.rate)
	}

	for _, bad := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		r.sched.SetRate(bad)
		if r.sched.Rate() != 2 {
			t.Errorf("Expected rate %v ignored, got %v", bad, r.sched.Rate())
		}
	}
}

func TestForgetEndedPlayback(t *testing.T) {
	r := newRig()
	r.sched.SetEndedHandler(func(k Key, pb Playback) { r.sched.Forget(k, pb) })
	r.sched.StartNewCycle([]Key{drum1})
	r.toBoundary()
	r.sched.Poll()

	pbs := r.graph.of(drum1)
	pbs[0].end() // the previous cycle drains
	if !r.sched.Playing(drum1) {
		t.Fatal("Expected the current playback to stay tracked")
	}

	pbs[1].end()
	if r.sched.Playing(drum1) {
		t.Error("Expected key untracked after its playback ended")
	}
}

func TestPosition(t *testing.T) {
	r := newRig()
	timing := DefaultTiming()
	timing.BPM = 120
	r.sched = NewScheduler(r.slots, r.clock, r.lib, r.graph, timing)

	if pos := r.sched.Position(r.clock.Now()); pos.Running {
		t.Fatal("Expected idle position before start")
	}

	r.lib.durations[drum1] = 4 * time.Second
	r.sched.StartNewCycle([]Key{drum1})
	pos := r.sched.Position(r.sched.CycleStart() + 1250*time.Millisecond)

	if pos.Beats != 8 {
		t.Errorf("Expected 8 beats, got %d", pos.Beats)
	}
	if pos.Beat != 2 {
		t.Errorf("Expected beat 2, got %d", pos.Beat)
	}
	if math.Abs(pos.Phase-0.3125) > 1e-9 {
		t.Errorf("Expected phase 0.3125, got %v", pos.Phase)
	}
}
