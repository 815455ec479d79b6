package midi

// ControllerType identifies the kind of controller
type ControllerType int

const (
	ControllerUnknown ControllerType = iota
	ControllerLaunchpad
	ControllerKeyboard
)

func (t ControllerType) String() string {
	switch t {
	case ControllerLaunchpad:
		return "launchpad"
	case ControllerKeyboard:
		return "keyboard"
	}
	return "unknown"
}

// PadEvent is sent when a pad/button is pressed on a grid controller
type PadEvent struct {
	Row, Col int
	Velocity uint8
}

// NoteEvent is sent when a note is played on a keyboard
type NoteEvent struct {
	Note     uint8
	Velocity uint8
	Channel  uint8
}

// LEDUpdate is one LED change in a batch
type LEDUpdate struct {
	Row, Col int
	Color    [3]uint8
	Channel  uint8
}

// Controller is the interface for MIDI input devices
type Controller interface {
	ID() string
	Type() ControllerType

	// Input events from the controller
	PadEvents() <-chan PadEvent   // For grid controllers (Launchpad)
	NoteEvents() <-chan NoteEvent // For keyboards

	// Output to the controller
	SetLEDBatch(updates []LEDUpdate) error
	ClearLEDs() error

	// Lifecycle
	Close() error
}

// Channel modes for LEDs (use as 'channel' parameter)
const (
	ChannelStatic uint8 = 0 // solid color
	ChannelFlash  uint8 = 1 // flashing A/B alternating
	ChannelPulse  uint8 = 2 // pulsing (fades)
)
