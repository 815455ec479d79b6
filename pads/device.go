package pads

import "time"

// Clock is the audio clock. Times are offsets from the clock's origin.
type Clock interface {
	Now() time.Duration
}

// Library supplies decoded sample durations. A key without a loaded
// buffer reports ok=false and plays silently.
type Library interface {
	Duration(k Key) (d time.Duration, ok bool)
	Loaded(k Key) bool
}

// Graph is the externally owned signal graph
type Graph interface {
	// Connect creates a playback for a key routed through its category bus
	Connect(c Category, k Key) (Playback, error)
}

// Playback is one scheduled buffer playback
type Playback interface {
	Start(at time.Duration, rate float64)
	SetRate(rate float64)
	Stop()
	// OnEnded registers a callback for when the playback stops or drains.
	// Callbacks may run on any goroutine but never inside Stop itself.
	OnEnded(func())
}

// ParamSink receives effect parameter updates
type ParamSink interface {
	SetParam(p Param, value float64, smoothing time.Duration)
}

// LevelMeter reports a recent output level (0-1) per category bus
type LevelMeter interface {
	Level(c Category) float64
}

// Recorder captures the master output
type Recorder interface {
	Start() error
	Stop() time.Duration
	Recording() bool
	Elapsed() time.Duration
	// Export writes the last take to dir and returns the file path
	Export(dir string) (string, error)
}

// LEDState describes the state of a single Launchpad LED
type LEDState struct {
	Row, Col int
	Color    [3]uint8 // RGB color - controller maps to its palette
	Channel  uint8    // 0=static, 2=pulse
}
