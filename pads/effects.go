package pads

import (
	"fmt"
	"math"
	"time"
)

// Param names an effect parameter. Values match the JSON field names used
// in presets.
type Param string

const (
	MasterVolume Param = "masterVolume"
	ReverbMix    Param = "reverbMix"
	DelayMix     Param = "delayMix"
	DelayTime    Param = "delayTime"
	FilterFreq   Param = "filterFreq"
	FilterQ      Param = "filterQ"
	PitchShift   Param = "pitchShift"
	PlaybackRate Param = "playbackRate"

	// CompensatedPitch is the pitch the shifter actually applies. It is
	// pushed to the sink whenever PitchShift or PlaybackRate changes.
	CompensatedPitch Param = "compensatedPitch"
)

// AllParams lists the user-facing parameters in display order
var AllParams = []Param{
	MasterVolume, ReverbMix, DelayMix, DelayTime,
	FilterFreq, FilterQ, PitchShift, PlaybackRate,
}

// ParamSmoothing is the time constant for parameter ramps
const ParamSmoothing = 20 * time.Millisecond

// Domain is the inclusive range for a parameter. OpenMin excludes Min.
type Domain struct {
	Min, Max float64
	OpenMin  bool
	Step     float64 // nudge size for keyboard and knob control
}

var domains = map[Param]Domain{
	MasterVolume: {Min: 0, Max: 1, Step: 0.05},
	ReverbMix:    {Min: 0, Max: 1, Step: 0.05},
	DelayMix:     {Min: 0, Max: 1, Step: 0.05},
	DelayTime:    {Min: 0.01, Max: 2, Step: 0.05},
	FilterFreq:   {Min: 20, Max: 20000, Step: 500},
	FilterQ:      {Min: 0.1, Max: 20, Step: 0.5},
	PitchShift:   {Min: -12, Max: 12, Step: 1},
	PlaybackRate: {Min: 0, Max: 4, OpenMin: true, Step: 0.05},
}

// DomainOf returns the domain of a parameter
func DomainOf(p Param) (Domain, bool) {
	d, ok := domains[p]
	return d, ok
}

// Contains reports whether v is a finite value inside the domain
func (d Domain) Contains(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	if d.OpenMin {
		if v <= d.Min {
			return false
		}
	} else if v < d.Min {
		return false
	}
	return v <= d.Max
}

// Clamp pulls v into the domain. For an open minimum it stops one step short.
func (d Domain) Clamp(v float64) float64 {
	lo := d.Min
	if d.OpenMin {
		lo = d.Min + d.Step
	}
	return math.Max(lo, math.Min(d.Max, v))
}

// Params is the full effect parameter set
type Params struct {
	MasterVolume float64 `json:"masterVolume"`
	ReverbMix    float64 `json:"reverbMix"`
	DelayMix     float64 `json:"delayMix"`
	DelayTime    float64 `json:"delayTime"`
	FilterFreq   float64 `json:"filterFreq"`
	FilterQ      float64 `json:"filterQ"`
	PitchShift   float64 `json:"pitchShift"`
	PlaybackRate float64 `json:"playbackRate"`
}

// DefaultParams returns the neutral parameter set
func DefaultParams() Params {
	return Params{
		MasterVolume: 1,
		ReverbMix:    0,
		DelayMix:     0,
		DelayTime:    0.3,
		FilterFreq:   20000,
		FilterQ:      1,
		PitchShift:   0,
		PlaybackRate: 1,
	}
}

func (p *Params) field(name Param) *float64 {
	switch name {
	case MasterVolume:
		return &p.MasterVolume
	case ReverbMix:
		return &p.ReverbMix
	case DelayMix:
		return &p.DelayMix
	case DelayTime:
		return &p.DelayTime
	case FilterFreq:
		return &p.FilterFreq
	case FilterQ:
		return &p.FilterQ
	case PitchShift:
		return &p.PitchShift
	case PlaybackRate:
		return &p.PlaybackRate
	}
	return nil
}

// Get returns a parameter value by name
func (p Params) Get(name Param) (float64, bool) {
	f := p.field(name)
	if f == nil {
		return 0, false
	}
	return *f, true
}

// CompensatedPitchFor is the pitch the shifter applies so that playback rate
// changes tempo without changing pitch: user - 12*log2(rate)
func CompensatedPitchFor(userPitch, rate float64) float64 {
	return userPitch - 12*math.Log2(rate)
}

// EffectsStore holds the validated parameter set and pushes changes to the
// signal graph. Not safe for concurrent use; Manager serializes access.
type EffectsStore struct {
	params Params
	sink   ParamSink

	rateListeners []func(rate float64)
}

// NewEffectsStore creates a store at defaults. sink may be nil.
func NewEffectsStore(sink ParamSink) *EffectsStore {
	return &EffectsStore{params: DefaultParams(), sink: sink}
}

// OnRateChange registers a listener for playbackRate changes
func (e *EffectsStore) OnRateChange(fn func(rate float64)) {
	e.rateListeners = append(e.rateListeners, fn)
}

// Snapshot returns a copy of the current parameters
func (e *EffectsStore) Snapshot() Params {
	return e.params
}

// Get returns one parameter
func (e *EffectsStore) Get(name Param) (float64, bool) {
	return e.params.Get(name)
}

// Set validates and applies a parameter. Invalid input leaves the previous
// value in place.
func (e *EffectsStore) Set(name Param, value float64) error {
	d, ok := domains[name]
	if !ok {
		return fmt.Errorf("%w: unknown parameter %q", ErrInvalidParam, name)
	}
	if !d.Contains(value) {
		return fmt.Errorf("%w: %s=%v outside [%v, %v]", ErrInvalidParam, name, value, d.Min, d.Max)
	}

	*e.params.field(name) = value
	e.push(name, value)
	return nil
}

// Nudge moves a parameter by steps of its domain step, clamped
func (e *EffectsStore) Nudge(name Param, steps int) error {
	d, ok := domains[name]
	if !ok {
		return fmt.Errorf("%w: unknown parameter %q", ErrInvalidParam, name)
	}
	cur, _ := e.params.Get(name)
	return e.Set(name, d.Clamp(cur+float64(steps)*d.Step))
}

// Apply sets every field of p, skipping invalid ones. It returns the first
// error seen.
func (e *EffectsStore) Apply(p Params) error {
	var first error
	for _, name := range AllParams {
		v, _ := p.Get(name)
		if err := e.Set(name, v); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Reset restores every parameter to its default
func (e *EffectsStore) Reset() {
	_ = e.Apply(DefaultParams())
}

// Push re-sends the whole parameter set, used after the graph comes up
func (e *EffectsStore) Push() {
	for _, name := range AllParams {
		v, _ := e.params.Get(name)
		e.push(name, v)
	}
}

func (e *EffectsStore) push(name Param, value float64) {
	if e.sink != nil && name != PitchShift {
		e.sink.SetParam(name, value, ParamSmoothing)
	}

	switch name {
	case PlaybackRate:
		for _, fn := range e.rateListeners {
			fn(value)
		}
		fallthrough
	case PitchShift:
		if e.sink != nil {
			pitch := CompensatedPitchFor(e.params.PitchShift, e.params.PlaybackRate)
			e.sink.SetParam(CompensatedPitch, pitch, ParamSmoothing)
		}
	}
}
