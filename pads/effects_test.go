package pads

import (
	"errors"
	"math"
	"testing"
)

func TestEffectsRejectOutOfDomain(t *testing.T) {
	e := NewEffectsStore(&fakeSink{})

	tests := []struct {
		param Param
		value float64
	}{
		{MasterVolume, 1.5},
		{ReverbMix, -0.1},
		{DelayTime, 0},
		{FilterFreq, 10},
		{FilterQ, 25},
		{PitchShift, 13},
		{PlaybackRate, 0},
		{PlaybackRate, math.NaN()},
		{PlaybackRate, math.Inf(1)},
		{"wobble", 1},
	}

	for _, tt := range tests {
		before := e.Snapshot()
		if err := e.Set(tt.param, tt.value); !errors.Is(err, ErrInvalidParam) {
			t.Errorf("Set(%s, %v): expected ErrInvalidParam, got %v", tt.param, tt.value, err)
		}
		if e.Snapshot() != before {
			t.Errorf("Set(%s, %v): expected parameters unchanged", tt.param, tt.value)
		}
	}
}

func TestCompensatedPitch(t *testing.T) {
	tests := []struct {
		pitch, rate, want float64
	}{
		{0, 1, 0},
		{0, 2, -12},
		{0, 0.5, 12},
		{3, 2, -9},
		{-5, 1, -5},
	}
	for _, tt := range tests {
		if got := CompensatedPitchFor(tt.pitch, tt.rate); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("CompensatedPitchFor(%v, %v): expected %v, got %v", tt.pitch, tt.rate, tt.want, got)
		}
	}
}

func TestRatePushesCompensation(t *testing.T) {
	sink := &fakeSink{}
	e := NewEffectsStore(sink)
	var rates []float64
	e.OnRateChange(func(r float64) { rates = append(rates, r) })

	if err := e.Set(PlaybackRate, 2); err != nil {
		t.Fatal(err)
	}
	if len(rates) != 1 || rates[0] != 2 {
		t.Errorf("Expected rate listener called with 2, got %v", rates)
	}
	if v, _ := sink.last(CompensatedPitch); math.Abs(v+12) > 1e-9 {
		t.Errorf("Expected compensated pitch -12, got %v", v)
	}

	if err := e.Set(PitchShift, 3); err != nil {
		t.Fatal(err)
	}
	if v, _ := sink.last(CompensatedPitch); math.Abs(v+9) > 1e-9 {
		t.Errorf("Expected compensated pitch -9, got %v", v)
	}
	if len(rates) != 1 {
		t.Errorf("Expected pitch changes to leave the rate alone, got %v", rates)
	}
	if sink.sent(PitchShift) {
		t.Error("Expected raw pitch never sent to the graph")
	}
}

func TestNudgeClamps(t *testing.T) {
	e := NewEffectsStore(nil)

	if err := e.Nudge(MasterVolume, 5); err != nil {
		t.Fatal(err)
	}
	if v, _ := e.Get(MasterVolume); v != 1 {
		t.Errorf("Expected volume clamped at 1, got %v", v)
	}

	if err := e.Nudge(PlaybackRate, -100); err != nil {
		t.Fatal(err)
	}
	if v, _ := e.Get(PlaybackRate); v <= 0 {
		t.Errorf("Expected rate kept above zero, got %v", v)
	}

	if err := e.Nudge(PitchShift, -2); err != nil {
		t.Fatal(err)
	}
	if v, _ := e.Get(PitchShift); v != -2 {
		t.Errorf("Expected pitch -2, got %v", v)
	}
}

func TestApplyKeepsValidFields(t *testing.T) {
	e := NewEffectsStore(nil)
	p := DefaultParams()
	p.ReverbMix = 0.5
	p.FilterQ = 99

	err := e.Apply(p)
	if !errors.Is(err, ErrInvalidParam) {
		t.Fatalf("Expected ErrInvalidParam, got %v", err)
	}
	got := e.Snapshot()
	if got.ReverbMix != 0.5 {
		t.Errorf("Expected reverbMix 0.5, got %v", got.ReverbMix)
	}
	if got.FilterQ != DefaultParams().FilterQ {
		t.Errorf("Expected filterQ unchanged, got %v", got.FilterQ)
	}

	e.Reset()
	if e.Snapshot() != DefaultParams() {
		t.Errorf("Expected defaults after reset, got %+v", e.Snapshot())
	}
}

func TestPushSendsEverything(t *testing.T) {
	sink := &fakeSink{}
	e := NewEffectsStore(sink)
	e.Push()

	for _, p := range AllParams {
		if p == PitchShift {
			continue
		}
		if !sink.sent(p) {
			t.Errorf("Expected %s pushed", p)
		}
	}
	if !sink.sent(CompensatedPitch) {
		t.Error("Expected compensated pitch pushed")
	}
}

func TestFormatParam(t *testing.T) {
	tests := []struct {
		param Param
		value float64
		want  string
	}{
		{MasterVolume, 0.75, "75%"},
		{DelayTime, 0.3, "300ms"},
		{FilterFreq, 12500, "12.5kHz"},
		{FilterFreq, 440, "440Hz"},
		{FilterQ, 1, "1.0"},
		{PitchShift, -3, "-3"},
		{PlaybackRate, 1.25, "1.25x"},
	}
	for _, tt := range tests {
		if got := FormatParam(tt.param, tt.value); got != tt.want {
			t.Errorf("FormatParam(%s, %v): expected %q, got %q", tt.param, tt.value, tt.want, got)
		}
	}
}
