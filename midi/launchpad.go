package midi

import (
	"fmt"
	"strings"
	"sync/atomic"

	"go-padloop/debug"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

var ledSendCount uint64

// Launchpad X SysEx bodies (without F0/F7)
var (
	sysexProgrammerMode = []byte{0x00, 0x20, 0x29, 0x02, 0x0C, 0x00, 0x7F}
	sysexBrightnessMax  = []byte{0x00, 0x20, 0x29, 0x02, 0x0C, 0x08, 0x7F}
	sysexLEDFeedback    = []byte{0x00, 0x20, 0x29, 0x02, 0x0C, 0x0A, 0x01, 0x01}
)

// LaunchpadController handles a Novation Launchpad X
type LaunchpadController struct {
	id       string
	outPort  drivers.Out
	inPort   drivers.In
	send     func(msg gomidi.Message) error
	stopFunc func()

	padChan  chan PadEvent
	noteChan chan NoteEvent
}

// NewLaunchpadController creates and configures a Launchpad
func NewLaunchpadController(id string, inPort drivers.In, outPort drivers.Out) (*LaunchpadController, error) {
	lp := &LaunchpadController{
		id:       id,
		inPort:   inPort,
		outPort:  outPort,
		padChan:  make(chan PadEvent, 32),
		noteChan: make(chan NoteEvent, 32),
	}

	// Open output
	if outPort != nil {
		send, err := gomidi.SendTo(outPort)
		if err != nil {
			return nil, fmt.Errorf("open output: %w", err)
		}
		lp.send = send
		if err := EnterProgrammerMode(send); err != nil {
			return nil, fmt.Errorf("programmer mode: %w", err)
		}
	}

	// Open input
	if inPort != nil {
		stop, err := gomidi.ListenTo(inPort, lp.handle)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		lp.stopFunc = stop
	}

	return lp, nil
}

// EnterProgrammerMode switches a Launchpad X to programmer layout at full
// brightness with external LED feedback
func EnterProgrammerMode(send func(gomidi.Message) error) error {
	for _, body := range [][]byte{sysexProgrammerMode, sysexBrightnessMax, sysexLEDFeedback} {
		if err := send(gomidi.SysEx(body)); err != nil {
			return err
		}
	}
	return nil
}

// handle decodes incoming messages into pad events
func (lp *LaunchpadController) handle(msg gomidi.Message, timestampms int32) {
	var channel, note, velocity uint8
	var cc, value uint8

	// Handle note messages (8x8 grid + side buttons)
	if msg.GetNoteOn(&channel, &note, &velocity) && velocity > 0 {
		if row, col := noteToRowCol(note); row >= 0 {
			lp.emit(PadEvent{Row: row, Col: col, Velocity: velocity})
		}
	}

	// Handle CC messages (top row buttons CC 91-98)
	if msg.GetControlChange(&channel, &cc, &value) && value > 0 {
		if row, col := ccToRowCol(cc); row >= 0 {
			lp.emit(PadEvent{Row: row, Col: col, Velocity: value})
		}
	}
}

func (lp *LaunchpadController) emit(ev PadEvent) {
	select {
	case lp.padChan <- ev:
	default:
		debug.Log("lp", "pad event dropped: %d,%d", ev.Row, ev.Col)
	}
}

func (lp *LaunchpadController) ID() string {
	return lp.id
}

func (lp *LaunchpadController) Type() ControllerType {
	return ControllerLaunchpad
}

func (lp *LaunchpadController) PadEvents() <-chan PadEvent {
	return lp.padChan
}

func (lp *LaunchpadController) NoteEvents() <-chan NoteEvent {
	return lp.noteChan // Launchpad doesn't send note events in the keyboard sense
}

// setLED sends one LED update as a NoteOn
func (lp *LaunchpadController) setLED(u LEDUpdate) error {
	return lp.send(gomidi.NoteOn(u.Channel, rowColToNote(u.Row, u.Col), mapRGBToLaunchpad(u.Color)))
}

// SetLEDBatch sends multiple LED updates using individual NoteOn messages.
// The caller's diffing keeps the batches small.
func (lp *LaunchpadController) SetLEDBatch(updates []LEDUpdate) error {
	if lp.send == nil || len(updates) == 0 {
		return nil
	}

	var firstErr error
	for _, u := range updates {
		if err := lp.setLED(u); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	atomic.AddUint64(&ledSendCount, uint64(len(updates)))

	count := atomic.LoadUint64(&ledSendCount)
	if count%100 < uint64(len(updates)) {
		debug.Log("lp-send", "batch count=%d (this batch=%d)", count, len(updates))
	}

	return firstErr
}

// ClearLEDs turns off every LED including the top row and scene column
func (lp *LaunchpadController) ClearLEDs() error {
	return lp.SetLEDBatch(AllLEDsOff())
}

// AllLEDsOff returns an update that blanks the full 9x9 surface
func AllLEDsOff() []LEDUpdate {
	var updates []LEDUpdate
	for row := 0; row < 9; row++ {
		for col := 0; col < 9; col++ {
			if row == 8 && col == 8 {
				continue // no LED at 8,8
			}
			updates = append(updates, LEDUpdate{Row: row, Col: col})
		}
	}
	return updates
}

// launchpadPalette holds approximate RGB values for key palette entries:
// {velocity, R, G, B}
var launchpadPalette = [][4]uint8{
	{0, 0, 0, 0},         // off
	{1, 30, 30, 30},      // dark gray
	{5, 255, 0, 0},       // red
	{6, 255, 80, 80},     // bright red
	{7, 180, 60, 60},     // dim red
	{9, 255, 100, 0},     // orange
	{11, 180, 80, 40},    // dim orange
	{13, 255, 200, 0},    // yellow
	{17, 0, 180, 0},      // green
	{19, 0, 100, 0},      // dim green
	{21, 0, 255, 0},      // bright green
	{37, 0, 200, 200},    // cyan
	{41, 60, 170, 255},   // sky
	{43, 40, 60, 120},    // dim blue
	{45, 0, 100, 255},    // blue
	{47, 80, 150, 255},   // bright blue
	{49, 150, 0, 200},    // purple
	{51, 60, 20, 80},     // dim purple
	{53, 255, 80, 180},   // pink
	{78, 100, 100, 255},  // light blue
	{84, 255, 150, 50},   // bright orange
	{87, 150, 255, 100},  // lime
	{97, 180, 180, 60},   // dim yellow
	{119, 255, 255, 255}, // white
}

// mapRGBToLaunchpad finds the nearest Launchpad X palette color for an RGB value
func mapRGBToLaunchpad(rgb [3]uint8) uint8 {
	bestMatch := uint8(0)
	bestDist := 1 << 30

	r, g, b := int(rgb[0]), int(rgb[1]), int(rgb[2])

	for _, p := range launchpadPalette {
		pr, pg, pb := int(p[1]), int(p[2]), int(p[3])
		// Simple Euclidean distance
		dist := (r-pr)*(r-pr) + (g-pg)*(g-pg) + (b-pb)*(b-pb)
		if dist < bestDist {
			bestDist = dist
			bestMatch = p[0]
		}
	}

	return bestMatch
}

func (lp *LaunchpadController) Close() error {
	if lp.send != nil {
		lp.ClearLEDs()
	}
	if lp.stopFunc != nil {
		lp.stopFunc()
	}
	close(lp.padChan)
	close(lp.noteChan)
	return nil
}

// Launchpad X note mapping
// 8x8 Grid:  Row 0 (bottom) = notes 11-18, Row 7 = notes 81-88
// Side col:  Col 8 (right side scene buttons) = notes 19, 29, 39, 49, 59, 69, 79, 89
// Top row:   Row 8 (top control row) = CC 91-98 (handled via CC messages)

func rowColToNote(row, col int) uint8 {
	// Top row uses CC, but for LED control we use notes 91-98
	if row == 8 {
		return uint8(91 + col)
	}
	return uint8((row+1)*10 + col + 1)
}

func noteToRowCol(note uint8) (row, col int) {
	// Top row notes (91-98)
	if note >= 91 && note <= 98 {
		return 8, int(note - 91)
	}
	row = int(note/10) - 1
	col = int(note%10) - 1
	// Accept 8x8 grid (rows 0-7, cols 0-7) plus side column (col 8)
	if row < 0 || row > 7 || col < 0 || col > 8 {
		return -1, -1
	}
	return row, col
}

// ccToRowCol converts CC messages to row/col (for top row buttons)
func ccToRowCol(cc uint8) (row, col int) {
	if cc >= 91 && cc <= 98 {
		return 8, int(cc - 91)
	}
	return -1, -1
}

// IsLaunchpad reports whether a port name looks like a Launchpad's MIDI port
func IsLaunchpad(name string) bool {
	name = strings.ToLower(name)
	return strings.Contains(name, "launchpad") && strings.Contains(name, "midi")
}
