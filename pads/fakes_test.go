package pads

import (
	"errors"
	"sync"
	"time"
)

var (
	drum1  = Key{Category: Drum, Index: 1}
	drum2  = Key{Category: Drum, Index: 2}
	drum3  = Key{Category: Drum, Index: 3}
	bass1  = Key{Category: Bass, Index: 1}
	bass2  = Key{Category: Bass, Index: 2}
	sound1 = Key{Category: Sound, Index: 1}
	sound2 = Key{Category: Sound, Index: 2}
	sound3 = Key{Category: Sound, Index: 3}
	sound4 = Key{Category: Sound, Index: 4}
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Duration
}

func (c *fakeClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(d time.Duration) {
	c.mu.Lock()
	c.now = d
	c.mu.Unlock()
}

// fakeLibrary reports every key in durations as loaded
type fakeLibrary struct {
	durations map[Key]time.Duration
}

func (l *fakeLibrary) Duration(k Key) (time.Duration, bool) {
	d, ok := l.durations[k]
	return d, ok
}

func (l *fakeLibrary) Loaded(k Key) bool {
	_, ok := l.durations[k]
	return ok
}

// allLoaded gives every key in the bank the same duration
func allLoaded(d time.Duration) *fakeLibrary {
	l := &fakeLibrary{durations: make(map[Key]time.Duration)}
	for _, k := range AllKeys() {
		l.durations[k] = d
	}
	return l
}

type fakePlayback struct {
	mu      sync.Mutex
	key     Key
	start   time.Duration
	rate    float64
	started bool
	stopped bool
	ended   []func()
}

func (p *fakePlayback) Start(at time.Duration, rate float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.start, p.rate, p.started = at, rate, true
}

func (p *fakePlayback) SetRate(rate float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rate = rate
}

func (p *fakePlayback) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
}

func (p *fakePlayback) OnEnded(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ended = append(p.ended, fn)
}

// end simulates the buffer draining
func (p *fakePlayback) end() {
	p.mu.Lock()
	fns := append([]func(){}, p.ended...)
	p.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (p *fakePlayback) live() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started && !p.stopped
}

type fakeGraph struct {
	mu        sync.Mutex
	playbacks []*fakePlayback
	fail      map[Key]bool
}

func (g *fakeGraph) Connect(c Category, k Key) (Playback, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail[k] {
		return nil, errors.New("connect failed")
	}
	pb := &fakePlayback{key: k}
	g.playbacks = append(g.playbacks, pb)
	return pb, nil
}

// of returns every playback created for a key, oldest first
func (g *fakeGraph) of(k Key) []*fakePlayback {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*fakePlayback
	for _, pb := range g.playbacks {
		if pb.key == k {
			out = append(out, pb)
		}
	}
	return out
}

// live returns the started, unstopped playbacks of a key
func (g *fakeGraph) live(k Key) []*fakePlayback {
	var out []*fakePlayback
	for _, pb := range g.of(k) {
		if pb.live() {
			out = append(out, pb)
		}
	}
	return out
}

type sinkCall struct {
	param Param
	value float64
}

type fakeSink struct {
	mu    sync.Mutex
	calls []sinkCall
}

func (s *fakeSink) SetParam(p Param, v float64, smoothing time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sinkCall{p, v})
}

// last returns the most recent value sent for p
func (s *fakeSink) last(p Param) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.calls) - 1; i >= 0; i-- {
		if s.calls[i].param == p {
			return s.calls[i].value, true
		}
	}
	return 0, false
}

func (s *fakeSink) sent(p Param) bool {
	_, ok := s.last(p)
	return ok
}

type rig struct {
	clock *fakeClock
	lib   *fakeLibrary
	graph *fakeGraph
	slots *SlotManager
	sched *Scheduler
}

// newRig builds a scheduler over fakes with a 2s cycle for every key
func newRig() *rig {
	r := &rig{
		clock: &fakeClock{now: time.Second},
		lib:   allLoaded(2 * time.Second),
		graph: &fakeGraph{},
		slots: NewSlotManager(),
	}
	r.sched = NewScheduler(r.slots, r.clock, r.lib, r.graph, DefaultTiming())
	return r
}

// toBoundary moves the clock into the lookahead window of the next boundary
func (r *rig) toBoundary() time.Duration {
	next := r.sched.NextBoundary()
	r.clock.Set(next - DefaultLookahead + time.Millisecond)
	return next
}
