package pads

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go-padloop/debug"
	"go-padloop/midi"
)

// LED and UI refresh rate
const ledFPS = 30

// DefaultNoteBase is the MIDI note mapped to the first pad
const DefaultNoteBase uint8 = 36

// Launchpad control buttons outside the 6x6 pad block
const (
	sceneCol   = 8 // right column scene buttons
	topRow     = 8 // CC row above the grid
	progRow    = 0 // bottom row shows cycle progress
	rowStopAll = 7
	rowRecord  = 6
	rowResetFX = 5
)

// Top row buttons come in down/up pairs, one pair per parameter
var topRowParams = [4]Param{MasterVolume, FilterFreq, PlaybackRate, PitchShift}

// Deps wires a Manager to the audio side and storage
type Deps struct {
	Clock    Clock
	Library  Library
	Graph    Graph
	Sink     ParamSink
	Meter    LevelMeter
	Recorder Recorder
	Presets  PresetBackend

	Timing       Timing
	PollInterval time.Duration
	RecordDir    string
	NoteBase     uint8
}

// Manager is the single point of serialization for pad state. Every
// public method takes mu, so the poll loop, UI loop, controllers, TUI and
// playback callbacks never observe a half-committed boundary.
type Manager struct {
	mu sync.Mutex

	slots   *SlotManager
	sched   *Scheduler
	ctrl    *Controller
	effects *EffectsStore
	presets *PresetStore
	layout  *Layout

	clock    Clock
	lib      Library
	meter    LevelMeter
	recorder Recorder

	pollInterval time.Duration
	recordDir    string
	noteBase     uint8

	status     string
	lastExport string

	controller midi.Controller
	prevLEDs   map[[2]int]LEDState // for diffing

	// Notify TUI of updates
	UpdateChan chan struct{}
}

// NewManager wires the slot manager, scheduler, controller, effects and
// presets together
func NewManager(d Deps) *Manager {
	if d.Timing == (Timing{}) {
		d.Timing = DefaultTiming()
	}
	if d.PollInterval <= 0 {
		d.PollInterval = DefaultPollInterval
	}
	if d.Presets == nil {
		d.Presets = &MemoryBackend{}
	}
	if d.NoteBase == 0 {
		d.NoteBase = DefaultNoteBase
	}

	slots := NewSlotManager()
	sched := NewScheduler(slots, d.Clock, d.Library, d.Graph, d.Timing)
	effects := NewEffectsStore(d.Sink)

	m := &Manager{
		slots:        slots,
		sched:        sched,
		ctrl:         NewController(slots, sched, d.Clock),
		effects:      effects,
		presets:      NewPresetStore(d.Presets, slots, sched, effects),
		layout:       NewLayout(),
		clock:        d.Clock,
		lib:          d.Library,
		meter:        d.Meter,
		recorder:     d.Recorder,
		pollInterval: d.PollInterval,
		recordDir:    d.RecordDir,
		noteBase:     d.NoteBase,
		prevLEDs:     make(map[[2]int]LEDState),
		UpdateChan:   make(chan struct{}, 1),
	}

	sched.SetEndedHandler(m.playbackEnded)
	effects.OnRateChange(sched.SetRate)
	effects.Push()
	return m
}

// Layout returns the pad grid layout
func (m *Manager) Layout() *Layout {
	return m.layout
}

// StartRuntime starts the boundary poll and UI loops. They stop with ctx.
func (m *Manager) StartRuntime(ctx context.Context) {
	go m.runLoop(ctx)
}

// runLoop polls for cycle boundaries and refreshes LEDs/UI at a fixed rate
func (m *Manager) runLoop(ctx context.Context) {
	ticker := time.NewTicker(m.pollInterval)
	uiTicker := time.NewTicker(time.Second / ledFPS)
	defer ticker.Stop()
	defer uiTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			advanced := m.sched.Poll()
			m.mu.Unlock()
			if advanced {
				m.notifyUpdate()
			}
		case <-uiTicker.C:
			m.flushLEDs()
			m.notifyUpdate()
		}
	}
}

// Poll runs one boundary check. The runtime loop calls it on every tick.
func (m *Manager) Poll() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sched.Poll()
}

func (m *Manager) playbackEnded(k Key, pb Playback) {
	m.mu.Lock()
	m.sched.Forget(k, pb)
	m.mu.Unlock()
}

// notifyUpdate pokes the TUI without blocking
func (m *Manager) notifyUpdate() {
	select {
	case m.UpdateChan <- struct{}{}:
	default:
	}
}

// Pad actions

// Activate toggles a pad
func (m *Manager) Activate(k Key) (Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activate(k)
}

func (m *Manager) activate(k Key) (Action, error) {
	action, evicted, err := m.ctrl.Activate(k)
	if err != nil {
		m.status = err.Error()
		return action, err
	}
	m.status = fmt.Sprintf("%s %s", k, action)
	if len(evicted) > 0 {
		m.status += fmt.Sprintf(" (dropped %s)", evicted[0].Key)
	}
	m.notifyUpdate()
	return action, nil
}

// ActivateCell toggles the pad at a grid cell
func (m *Manager) ActivateCell(c Cell) (Action, error) {
	k, ok := m.layout.KeyAt(c)
	if !ok {
		return ActionNone, fmt.Errorf("%w: cell %d,%d", ErrUnknownKey, c.Row, c.Col)
	}
	return m.Activate(k)
}

// Release lets an active pad finish its cycle and drop out
func (m *Manager) Release(k Key) (Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	action, err := m.ctrl.Release(k)
	if err == nil && action == ActionReleased {
		m.status = fmt.Sprintf("%s %s", k, action)
		m.notifyUpdate()
	}
	return action, err
}

// StopAll silences everything immediately
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopAll()
}

func (m *Manager) stopAll() {
	m.ctrl.StopAll()
	m.status = "stopped"
	m.notifyUpdate()
}

// Effects

// SetParam sets one effect parameter
func (m *Manager) SetParam(p Param, v float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.effects.Set(p, v); err != nil {
		return err
	}
	m.notifyUpdate()
	return nil
}

// NudgeParam moves a parameter by whole steps
func (m *Manager) NudgeParam(p Param, steps int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nudge(p, steps)
}

func (m *Manager) nudge(p Param, steps int) error {
	if err := m.effects.Nudge(p, steps); err != nil {
		return err
	}
	v, _ := m.effects.Get(p)
	m.status = fmt.Sprintf("%s %s", p, FormatParam(p, v))
	m.notifyUpdate()
	return nil
}

// ResetEffects restores every parameter to its default
func (m *Manager) ResetEffects() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetEffects()
}

func (m *Manager) resetEffects() {
	m.effects.Reset()
	m.status = "effects reset"
	m.notifyUpdate()
}

// Presets

// SavePreset stores the current pads and effects under name
func (m *Manager) SavePreset(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.presets.Save(name)
	if err != nil {
		m.status = err.Error()
		return err
	}
	m.status = fmt.Sprintf("saved %q", p.Name)
	m.notifyUpdate()
	return nil
}

// LoadPreset applies a stored preset
func (m *Manager) LoadPreset(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.presets.Load(name); err != nil {
		m.status = err.Error()
		return err
	}
	m.status = fmt.Sprintf("loaded %q", name)
	m.notifyUpdate()
	return nil
}

// DeletePreset removes a stored preset
func (m *Manager) DeletePreset(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.presets.Delete(name); err != nil {
		m.status = err.Error()
		return err
	}
	m.status = fmt.Sprintf("deleted %q", name)
	m.notifyUpdate()
	return nil
}

// Presets lists stored presets in save order
func (m *Manager) Presets() ([]Preset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.presets.List()
}

// Recording

// ToggleRecording starts a take, or stops it and exports it in the
// background
func (m *Manager) ToggleRecording() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.toggleRecording()
}

func (m *Manager) toggleRecording() error {
	if m.recorder == nil {
		return ErrNoRecorder
	}
	if !m.recorder.Recording() {
		if err := m.recorder.Start(); err != nil {
			m.status = err.Error()
			return err
		}
		m.status = "recording"
		m.notifyUpdate()
		return nil
	}

	took := m.recorder.Stop()
	m.status = fmt.Sprintf("exporting %s take", took.Round(time.Second))
	m.notifyUpdate()

	rec, dir := m.recorder, m.recordDir
	go func() {
		path, err := rec.Export(dir)
		m.mu.Lock()
		if err != nil {
			debug.Log("record", "export failed: %v", err)
			m.status = "export failed: " + err.Error()
		} else {
			m.lastExport = path
			m.status = "saved " + path
		}
		m.mu.Unlock()
		m.notifyUpdate()
	}()
	return nil
}

// Controller input

// HandlePad routes a Launchpad press. The 6x6 block triggers pads, the
// scene column holds transport buttons and the top row nudges effects.
func (m *Manager) HandlePad(row, col int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case col == sceneCol:
		switch row {
		case rowStopAll:
			m.stopAll()
		case rowRecord:
			if err := m.toggleRecording(); err != nil {
				debug.Log("pad", "record: %v", err)
			}
		case rowResetFX:
			m.resetEffects()
		}

	case row == topRow:
		if col < 0 || col/2 >= len(topRowParams) {
			return
		}
		steps := 1
		if col%2 == 0 {
			steps = -1
		}
		m.nudge(topRowParams[col/2], steps)

	default:
		cell, ok := PadToCell(row, col)
		if !ok {
			return
		}
		if k, ok := m.layout.KeyAt(cell); ok {
			m.activate(k)
		}
	}
}

// HandleNote routes a MIDI keyboard note. Notes from the base upward map
// onto the bank in drum, bass, sound order.
func (m *Manager) HandleNote(note uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := int(note) - int(m.noteBase)
	keys := AllKeys()
	if idx < 0 || idx >= len(keys) {
		debug.Log("note", "note %d outside the bank", note)
		return
	}
	m.activate(keys[idx])
}

// Listen consumes a controller's pad and note events until both channels
// close or ctx ends
func (m *Manager) Listen(ctx context.Context, c midi.Controller) {
	pads, notes := c.PadEvents(), c.NoteEvents()
	for pads != nil || notes != nil {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-pads:
			if !ok {
				pads = nil
				continue
			}
			m.HandlePad(ev.Row, ev.Col)
		case ev, ok := <-notes:
			if !ok {
				notes = nil
				continue
			}
			m.HandleNote(ev.Note)
		}
	}
}

// SetController sets the controller for LED feedback
func (m *Manager) SetController(c midi.Controller) {
	m.mu.Lock()
	defer m.mu.Unlock()
	debug.Log("ctrl", "SetController called, resetting diff state")
	m.controller = c
	m.prevLEDs = make(map[[2]int]LEDState) // diff will repaint everything
}

// DropController forgets the LED controller if its ID matches
func (m *Manager) DropController(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.controller != nil && m.controller.ID() == id {
		m.controller = nil
		m.prevLEDs = make(map[[2]int]LEDState)
	}
}

// Rendering

// PadView is one pad's render state
type PadView struct {
	Key          Key
	Cell         Cell
	State        PadState
	CyclesPlayed int
	Loaded       bool
}

// View is a consistent snapshot for rendering
type View struct {
	Pads      []PadView // AllKeys order
	Position  Position
	Cycle     time.Duration // nominal cycle length
	Effective time.Duration // cycle length at the current rate
	Params    Params
	Levels    map[Category]float64
	Active    map[Category]int
	Pending   map[Category]int

	Recording  bool
	RecordTime time.Duration
	LastExport string
	Status     string
}

// Snapshot returns the current view
func (m *Manager) Snapshot() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot()
}

func (m *Manager) snapshot() View {
	v := View{
		Position:   m.sched.Position(m.clock.Now()),
		Cycle:      m.sched.CycleDuration(),
		Effective:  m.sched.EffectiveCycleDuration(),
		Params:     m.effects.Snapshot(),
		Levels:     make(map[Category]float64, len(Categories)),
		Active:     make(map[Category]int, len(Categories)),
		Pending:    make(map[Category]int, len(Categories)),
		LastExport: m.lastExport,
		Status:     m.status,
	}

	played := make(map[Key]int)
	for _, c := range Categories {
		active := m.slots.Active(c)
		for _, e := range active {
			played[e.Key] = e.CyclesPlayed
		}
		v.Active[c] = len(active)
		v.Pending[c] = len(m.slots.Pending(c))
		if m.meter != nil {
			v.Levels[c] = m.meter.Level(c)
		}
	}

	for _, k := range AllKeys() {
		cell, _ := m.layout.CellOf(k)
		v.Pads = append(v.Pads, PadView{
			Key:          k,
			Cell:         cell,
			State:        m.slots.State(k),
			CyclesPlayed: played[k],
			Loaded:       m.lib != nil && m.lib.Loaded(k),
		})
	}

	if m.recorder != nil {
		v.Recording = m.recorder.Recording()
		v.RecordTime = m.recorder.Elapsed()
	}
	return v
}

// Category colors on the Launchpad
var categoryRGB = map[Category][3]uint8{
	Drum:  {255, 140, 40},
	Bass:  {170, 80, 255},
	Sound: {91, 192, 255},
}

// CategoryColor returns the RGB color used for a category's pads
func CategoryColor(c Category) [3]uint8 {
	return categoryRGB[c]
}

func dim(c [3]uint8) [3]uint8 {
	return [3]uint8{c[0] / 6, c[1] / 6, c[2] / 6}
}

// RenderLEDs maps a view to Launchpad LED states
func RenderLEDs(v View) []LEDState {
	var leds []LEDState

	white := [3]uint8{255, 255, 255}
	red := [3]uint8{255, 0, 0}
	orange := [3]uint8{253, 157, 110}
	missing := [3]uint8{20, 20, 20}

	for _, p := range v.Pads {
		row, col := CellToPad(p.Cell)
		base := categoryRGB[p.Key.Category]

		color, channel := dim(base), midi.ChannelStatic
		switch p.State {
		case StateActive:
			color = base
		case StateQueued:
			color, channel = base, midi.ChannelPulse
		case StateReleasing:
			color, channel = base, midi.ChannelFlash
		default:
			if !p.Loaded {
				color = missing
			}
		}
		leds = append(leds, LEDState{Row: row, Col: col, Color: color, Channel: channel})
	}

	// Bottom row: cycle progress in eighths
	lit := 0
	if v.Position.Running {
		lit = int(v.Position.Phase*8) + 1
	}
	for col := 0; col < 8; col++ {
		color := [3]uint8{0, 0, 0}
		if col < lit {
			color = dim(white)
			if col == lit-1 {
				color = white
			}
		}
		leds = append(leds, LEDState{Row: progRow, Col: col, Color: color})
	}

	leds = append(leds, LEDState{Row: rowStopAll, Col: sceneCol, Color: red})
	rec := LEDState{Row: rowRecord, Col: sceneCol, Color: dim(red)}
	if v.Recording {
		rec.Color, rec.Channel = red, midi.ChannelPulse
	}
	leds = append(leds, rec)
	leds = append(leds, LEDState{Row: rowResetFX, Col: sceneCol, Color: dim(white)})

	for col := 0; col < len(topRowParams)*2; col++ {
		c := dim(orange)
		if col%2 == 1 {
			c = orange
		}
		leds = append(leds, LEDState{Row: topRow, Col: col, Color: c})
	}
	return leds
}

// flushLEDs sends only changed LEDs to the controller (diffing + batching)
func (m *Manager) flushLEDs() {
	m.mu.Lock()
	ctrl := m.controller
	if ctrl == nil {
		m.mu.Unlock()
		return
	}
	updates := m.diffLEDs(RenderLEDs(m.snapshot()))
	m.mu.Unlock()

	if len(updates) > 0 {
		debug.Log("led", "flushLEDs: batch=%d", len(updates))
		if err := ctrl.SetLEDBatch(updates); err != nil {
			debug.Log("led", "send failed: %v", err)
		}
	}
}

// diffLEDs returns updates for LEDs that changed since the last flush.
// Caller holds mu.
func (m *Manager) diffLEDs(leds []LEDState) []midi.LEDUpdate {
	newMap := make(map[[2]int]LEDState, len(leds))
	var updates []midi.LEDUpdate

	for _, led := range leds {
		key := [2]int{led.Row, led.Col}
		newMap[key] = led

		if prev, ok := m.prevLEDs[key]; !ok || prev != led {
			updates = append(updates, midi.LEDUpdate{
				Row:     led.Row,
				Col:     led.Col,
				Color:   led.Color,
				Channel: led.Channel,
			})
		}
	}

	// Clear LEDs that are no longer present
	for key := range m.prevLEDs {
		if _, ok := newMap[key]; !ok {
			updates = append(updates, midi.LEDUpdate{Row: key[0], Col: key[1]})
		}
	}

	m.prevLEDs = newMap
	return updates
}

// FormatParam renders a parameter value for display
func FormatParam(p Param, v float64) string {
	switch p {
	case MasterVolume, ReverbMix, DelayMix:
		return fmt.Sprintf("%d%%", int(v*100+0.5))
	case DelayTime:
		return fmt.Sprintf("%dms", int(v*1000+0.5))
	case FilterFreq:
		if v >= 1000 {
			return fmt.Sprintf("%.1fkHz", v/1000)
		}
		return fmt.Sprintf("%dHz", int(v))
	case FilterQ:
		return fmt.Sprintf("%.1f", v)
	case PitchShift:
		return fmt.Sprintf("%+d", int(v))
	case PlaybackRate:
		return fmt.Sprintf("%.2fx", v)
	}
	return fmt.Sprintf("%g", v)
}
