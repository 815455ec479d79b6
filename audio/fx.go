package audio

import (
	"math"
	"time"

	"github.com/cwbudde/algo-dsp/dsp/effects"
	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"
	"github.com/gopxl/beep"
	"github.com/pkg/errors"

	"go-padloop/pads"
)

// Effect chain constants
const (
	maxDelayTime  = 2 * time.Second
	delayFeedback = 0.4
	pitchBypass   = 0.01 // semitones below which the shifter passes dry signal

	reverbRoomSize = 0.84
	reverbDamp     = 0.2
	reverbGain     = 0.015
)

// smoother is a one-pole parameter ramp
type smoother struct {
	cur, target float64
	coef        float64
}

func newSmoother(v float64) smoother {
	return smoother{cur: v, target: v, coef: 1}
}

func (s *smoother) set(v float64, tau time.Duration, sr beep.SampleRate) {
	s.target = v
	if tau <= 0 {
		s.cur = v
		s.coef = 1
		return
	}
	s.coef = 1 - math.Exp(-1/(tau.Seconds()*float64(sr)))
}

func (s *smoother) next() float64 {
	d := s.target - s.cur
	if math.Abs(d) < 1e-9 {
		s.cur = s.target
		return s.cur
	}
	s.cur += d * s.coef
	return s.cur
}

// pitchStage runs one WSOLA shifter per channel. The shifters are fed
// while bypassed so re-engaging starts from current audio.
type pitchStage struct {
	ch    [2]*effects.PitchShifter
	semis smoother
	last  float64
}

func newPitchStage(sr beep.SampleRate) (*pitchStage, error) {
	p := &pitchStage{semis: newSmoother(0)}
	for i := range p.ch {
		s, err := effects.NewPitchShifter(float64(sr))
		if err != nil {
			return nil, errors.Wrap(err, "pitch shifter")
		}
		p.ch[i] = s
	}
	return p, nil
}

func (p *pitchStage) process(x [2]float64) [2]float64 {
	semis := p.semis.next()
	if semis != p.last {
		ratio := math.Pow(2, semis/12)
		for _, s := range p.ch {
			// ratio is always positive, the only value the setter rejects
			_ = s.SetPitchRatio(ratio)
		}
		p.last = semis
	}
	y := [2]float64{p.ch[0].ProcessSample(x[0]), p.ch[1].ProcessSample(x[1])}
	if math.Abs(semis) <= pitchBypass {
		return x
	}
	return y
}

// lowpass is a cookbook low-pass section per channel
type lowpass struct {
	ch           [2]*biquad.Section
	freq, q      smoother
	lastF, lastQ float64
	sr           float64
}

func newLowpass(sr beep.SampleRate, freq, q float64) *lowpass {
	c := design.Lowpass(clampFreq(freq, float64(sr)), q, float64(sr))
	return &lowpass{
		ch:    [2]*biquad.Section{biquad.NewSection(c), biquad.NewSection(c)},
		freq:  newSmoother(freq),
		q:     newSmoother(q),
		lastF: freq,
		lastQ: q,
		sr:    float64(sr),
	}
}

func clampFreq(f, sr float64) float64 {
	return math.Max(1, math.Min(f, 0.49*sr))
}

func (l *lowpass) process(x [2]float64) [2]float64 {
	f, q := l.freq.next(), l.q.next()
	if f != l.lastF || q != l.lastQ {
		c := design.Lowpass(clampFreq(f, l.sr), q, l.sr)
		for _, s := range l.ch {
			s.Coefficients = c
		}
		l.lastF, l.lastQ = f, q
	}
	return [2]float64{l.ch[0].ProcessSample(x[0]), l.ch[1].ProcessSample(x[1])}
}

// delayStage is a fully wet feedback delay per channel; the chain mixes it
type delayStage struct {
	ch   [2]*effects.Delay
	time smoother // seconds
	last float64
}

func newDelayStage(sr beep.SampleRate, seconds float64) (*delayStage, error) {
	d := &delayStage{time: newSmoother(seconds), last: seconds}
	for i := range d.ch {
		e, err := effects.NewDelay(float64(sr))
		if err != nil {
			return nil, errors.Wrap(err, "delay")
		}
		if err := e.SetTime(seconds); err != nil {
			return nil, errors.Wrap(err, "delay time")
		}
		if err := e.SetFeedback(delayFeedback); err != nil {
			return nil, errors.Wrap(err, "delay feedback")
		}
		if err := e.SetMix(1); err != nil {
			return nil, errors.Wrap(err, "delay mix")
		}
		d.ch[i] = e
	}
	return d, nil
}

func (d *delayStage) process(x [2]float64) [2]float64 {
	t := d.time.next()
	if math.Abs(t-d.last) > 1e-6 {
		for _, e := range d.ch {
			// set clamps t into the accepted range
			_ = e.SetTime(t)
		}
		d.last = t
	}
	return [2]float64{d.ch[0].ProcessSample(x[0]), d.ch[1].ProcessSample(x[1])}
}

// reverbStage is a fully wet Freeverb per channel. The right channel runs a
// slightly smaller room to decorrelate the tails.
type reverbStage struct {
	ch [2]*effects.Reverb
}

func newReverbStage() *reverbStage {
	r := &reverbStage{}
	for i := range r.ch {
		v := effects.NewReverb()
		v.SetWet(1)
		v.SetDry(0)
		v.SetRoomSize(reverbRoomSize - 0.02*float64(i))
		v.SetDamp(reverbDamp)
		v.SetGain(reverbGain)
		r.ch[i] = v
	}
	return r
}

func (r *reverbStage) process(x [2]float64) [2]float64 {
	in := (x[0] + x[1]) * 0.5
	return [2]float64{r.ch[0].ProcessSample(in), r.ch[1].ProcessSample(in)}
}

// fxChain is pitch shifter -> low-pass -> dry + delay + reverb -> master
type fxChain struct {
	sr beep.SampleRate

	pitch  *pitchStage
	filter *lowpass
	delay  *delayStage
	verb   *reverbStage

	master    smoother
	reverbMix smoother
	delayMix  smoother
}

func newFXChain(sr beep.SampleRate) (*fxChain, error) {
	p := pads.DefaultParams()
	pitch, err := newPitchStage(sr)
	if err != nil {
		return nil, err
	}
	delay, err := newDelayStage(sr, p.DelayTime)
	if err != nil {
		return nil, err
	}
	return &fxChain{
		sr:        sr,
		pitch:     pitch,
		filter:    newLowpass(sr, p.FilterFreq, p.FilterQ),
		delay:     delay,
		verb:      newReverbStage(),
		master:    newSmoother(p.MasterVolume),
		reverbMix: newSmoother(p.ReverbMix),
		delayMix:  newSmoother(p.DelayMix),
	}, nil
}

// set routes a parameter to its stage. Rate and raw pitch are handled by
// playbacks and the compensated pitch respectively.
func (c *fxChain) set(p pads.Param, v float64, tau time.Duration) {
	switch p {
	case pads.MasterVolume:
		c.master.set(v, tau, c.sr)
	case pads.ReverbMix:
		c.reverbMix.set(v, tau, c.sr)
	case pads.DelayMix:
		c.delayMix.set(v, tau, c.sr)
	case pads.DelayTime:
		c.delay.time.set(math.Max(0.001, math.Min(v, maxDelayTime.Seconds())), tau, c.sr)
	case pads.FilterFreq:
		c.filter.freq.set(v, tau, c.sr)
	case pads.FilterQ:
		c.filter.q.set(v, tau, c.sr)
	case pads.CompensatedPitch:
		c.pitch.semis.set(v, tau, c.sr)
	}
}

func (c *fxChain) process(samples [][2]float64) {
	for i, x := range samples {
		x = c.pitch.process(x)
		x = c.filter.process(x)

		d := c.delay.process(x)
		r := c.verb.process(x)

		rm, dm, mv := c.reverbMix.next(), c.delayMix.next(), c.master.next()
		dry := 1 - rm*0.5
		samples[i] = [2]float64{
			(x[0]*dry + d[0]*dm + r[0]*rm) * mv,
			(x[1]*dry + d[1]*dm + r[1]*rm) * mv,
		}
	}
}
