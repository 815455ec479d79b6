package audio

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/speaker"
	"github.com/pkg/errors"

	"go-padloop/debug"
	"go-padloop/pads"
)

// Config for the output graph
type Config struct {
	SampleRate beep.SampleRate
	Buffer     time.Duration // speaker buffer, keep well under the scheduler lookahead
	OutputGain float64       // 0-1 device trim after the master stage
}

// DefaultConfig returns the standard output settings
func DefaultConfig() Config {
	return Config{
		SampleRate: beep.SampleRate(44100),
		Buffer:     50 * time.Millisecond,
		OutputGain: 1,
	}
}

type graphMode int

const (
	modeOffline graphMode = iota // pulled by Render
	modeSpeaker                  // pulled by the speaker
	modeSilent                   // no device: wall clock and no-op playbacks
)

// resampleQuality is passed to beep.ResampleRatio
const resampleQuality = 4

// levelDecay is the meter fall time
const levelDecay = 300 * time.Millisecond

// Graph is the playback side of the instrument: an audio clock counting
// streamed samples, a mixer of scheduled voices, and the effects chain.
// It implements pads.Graph, pads.Clock, pads.ParamSink and pads.LevelMeter.
type Graph struct {
	lib *Library
	cfg Config
	sr  beep.SampleRate

	mode   graphMode
	locker sync.Locker
	origin time.Time // wall clock origin in silent mode

	mixer *beep.Mixer
	fx    *fxChain
	rec   *Recorder
	out   beep.Streamer

	pos    atomic.Int64 // samples streamed
	levels map[pads.Category]float64
}

// speakerLock adapts the speaker's global lock
type speakerLock struct{}

func (speakerLock) Lock()   { speaker.Lock() }
func (speakerLock) Unlock() { speaker.Unlock() }

// NewGraph builds an offline graph. Start attaches it to the speaker.
func NewGraph(lib *Library, cfg Config) (*Graph, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultConfig().SampleRate
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultConfig().Buffer
	}

	fx, err := newFXChain(cfg.SampleRate)
	if err != nil {
		return nil, errors.Wrap(err, "effect chain")
	}
	g := &Graph{
		lib:    lib,
		cfg:    cfg,
		sr:     cfg.SampleRate,
		locker: &sync.Mutex{},
		mixer:  &beep.Mixer{},
		fx:     fx,
		rec:    NewRecorder(cfg.SampleRate),
		levels: make(map[pads.Category]float64, len(pads.Categories)),
	}
	g.out = newVolume(&output{g: g}, cfg.OutputGain)
	return g, nil
}

// newVolume wraps a streamer in a base-2 volume stage
func newVolume(s beep.Streamer, vol float64) beep.Streamer {
	if vol <= 0 {
		return &effects.Volume{Streamer: s, Base: 2, Volume: 0, Silent: true}
	}
	return &effects.Volume{Streamer: s, Base: 2, Volume: math.Log2(vol), Silent: false}
}

// Start opens the speaker. On failure the graph keeps running silent and
// the error is returned for reporting.
func (g *Graph) Start() error {
	err := speaker.Init(g.sr, g.sr.N(g.cfg.Buffer))
	if err != nil {
		g.mode = modeSilent
		g.origin = time.Now()
		debug.Log("audio", "speaker unavailable, running silent: %v", err)
		return errors.Wrap(err, "speaker init")
	}

	g.mode = modeSpeaker
	g.locker = speakerLock{}
	speaker.Play(g.out)
	debug.Log("audio", "speaker started at %d Hz, buffer %v", g.sr, g.cfg.Buffer)
	return nil
}

// Close stops output
func (g *Graph) Close() {
	if g.mode == modeSpeaker {
		speaker.Clear()
		speaker.Close()
	}
}

// Silent reports whether the graph has no audio device
func (g *Graph) Silent() bool {
	return g.mode == modeSilent
}

// SampleRate returns the output rate
func (g *Graph) SampleRate() beep.SampleRate {
	return g.sr
}

// Recorder returns the master output recorder
func (g *Graph) Recorder() *Recorder {
	return g.rec
}

// Now returns the audio clock
func (g *Graph) Now() time.Duration {
	if g.mode == modeSilent {
		return time.Since(g.origin)
	}
	return g.sr.D(int(g.pos.Load()))
}

// Render pulls n samples through the graph without a device. It is only
// meaningful on a graph that was never started.
func (g *Graph) Render(n int) [][2]float64 {
	samples := make([][2]float64, n)
	g.locker.Lock()
	g.out.Stream(samples)
	g.locker.Unlock()
	return samples
}

// SetParam forwards an effect parameter to the chain
func (g *Graph) SetParam(p pads.Param, v float64, smoothing time.Duration) {
	g.locker.Lock()
	g.fx.set(p, v, smoothing)
	g.locker.Unlock()
}

// Level returns the recent peak RMS of a category's voices
func (g *Graph) Level(c pads.Category) float64 {
	g.locker.Lock()
	defer g.locker.Unlock()
	return g.levels[c]
}

// Connect creates a voice for a key. The voice does nothing until Start.
func (g *Graph) Connect(c pads.Category, k pads.Key) (pads.Playback, error) {
	if g.mode == modeSilent {
		return &nopPlayback{}, nil
	}
	buf, ok := g.lib.Buffer(k)
	if !ok {
		return nil, errors.Wrap(ErrMissing, k.Name())
	}
	return &voice{
		g:         g,
		key:       k,
		cat:       c,
		buf:       buf,
		ratioBase: float64(buf.Format().SampleRate) / float64(g.sr),
		rate:      1,
	}, nil
}

// output mixes voices, runs the effects chain, feeds the recorder and
// advances the clock. It never ends.
type output struct {
	g *Graph
}

func (o *output) Stream(samples [][2]float64) (n int, ok bool) {
	g := o.g

	decay := math.Exp(-float64(len(samples)) / (levelDecay.Seconds() * float64(g.sr)))
	for c := range g.levels {
		g.levels[c] *= decay
	}

	n, _ = g.mixer.Stream(samples)
	for i := n; i < len(samples); i++ {
		samples[i] = [2]float64{}
	}

	g.fx.process(samples)
	g.rec.capture(samples)
	g.pos.Add(int64(len(samples)))
	return len(samples), true
}

func (o *output) Err() error { return nil }

// meter raises a category level to the RMS of a chunk. Caller holds the lock.
func (g *Graph) meter(c pads.Category, samples [][2]float64) {
	if len(samples) == 0 {
		return
	}
	var sum float64
	for _, s := range samples {
		sum += (s[0]*s[0] + s[1]*s[1]) / 2
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms > g.levels[c] {
		g.levels[c] = math.Min(rms, 1)
	}
}

// endNotifier runs registered callbacks once, on their own goroutine
type endNotifier struct {
	mu   sync.Mutex
	fns  []func()
	once sync.Once
}

func (e *endNotifier) OnEnded(fn func()) {
	e.mu.Lock()
	e.fns = append(e.fns, fn)
	e.mu.Unlock()
}

func (e *endNotifier) fire() {
	e.once.Do(func() {
		e.mu.Lock()
		fns := append([]func(){}, e.fns...)
		e.mu.Unlock()
		go func() {
			for _, fn := range fns {
				fn()
			}
		}()
	})
}

// voice plays one buffer from an exact output sample. Until then it
// streams silence. All fields below endNotifier are guarded by g.locker.
type voice struct {
	endNotifier

	g         *Graph
	key       pads.Key
	cat       pads.Category
	buf       *beep.Buffer
	ratioBase float64 // buffer rate / output rate

	rate    float64
	start   int64 // absolute output sample
	cursor  int64 // absolute output sample of the next frame streamed
	res     *beep.Resampler
	started bool
	stopped bool
}

// Start schedules the voice at an audio clock time. A start that is
// already in the past skips ahead so the loop stays in phase.
func (v *voice) Start(at time.Duration, rate float64) {
	g := v.g
	g.locker.Lock()
	defer g.locker.Unlock()

	if v.started || v.stopped {
		return
	}
	v.started = true
	v.rate = rate
	v.start = int64(math.Round(at.Seconds() * float64(g.sr)))
	v.cursor = g.pos.Load()

	src := v.buf.Streamer(0, v.buf.Len())
	if late := v.cursor - v.start; late > 0 {
		skip := int(float64(late) * rate * v.ratioBase)
		if skip >= v.buf.Len() {
			v.stopped = true
			v.fire()
			return
		}
		if err := src.Seek(skip); err != nil {
			debug.Log("audio", "%s seek: %v", v.key.Name(), err)
		}
		debug.Log("audio", "%s started %d samples late", v.key.Name(), late)
	}

	v.res = beep.ResampleRatio(resampleQuality, rate*v.ratioBase, src)
	g.mixer.Add(v)
}

// SetRate changes the playback speed immediately
func (v *voice) SetRate(rate float64) {
	if rate <= 0 {
		return
	}
	v.g.locker.Lock()
	defer v.g.locker.Unlock()
	v.rate = rate
	if v.res != nil {
		v.res.SetRatio(rate * v.ratioBase)
	}
}

// Stop silences the voice from the next streamed frame
func (v *voice) Stop() {
	v.g.locker.Lock()
	v.stopped = true
	v.g.locker.Unlock()
	v.fire()
}

func (v *voice) Stream(samples [][2]float64) (n int, ok bool) {
	if v.stopped {
		return 0, false
	}

	total := len(samples)
	i := 0
	if v.cursor < v.start {
		wait := v.start - v.cursor
		if wait > int64(total) {
			wait = int64(total)
		}
		for j := 0; j < int(wait); j++ {
			samples[j] = [2]float64{}
		}
		i = int(wait)
	}

	if i < total {
		m, sok := v.res.Stream(samples[i:])
		v.g.meter(v.cat, samples[i:i+m])
		if !sok || i+m < total {
			for j := i + m; j < total; j++ {
				samples[j] = [2]float64{}
			}
			v.cursor += int64(total)
			v.stopped = true
			v.fire()
			return total, false
		}
	}

	v.cursor += int64(total)
	return total, true
}

func (v *voice) Err() error { return nil }

// nopPlayback stands in for voices when there is no audio device
type nopPlayback struct {
	endNotifier
}

func (p *nopPlayback) Start(at time.Duration, rate float64) {}
func (p *nopPlayback) SetRate(rate float64)                 {}
func (p *nopPlayback) Stop()                                { p.fire() }
