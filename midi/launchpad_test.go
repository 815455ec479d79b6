package midi

import (
	"testing"

	gomidi "gitlab.com/gomidi/midi/v2"
)

func TestNoteMappingRoundTrip(t *testing.T) {
	for row := 0; row < 8; row++ {
		for col := 0; col < 9; col++ {
			r, c := noteToRowCol(rowColToNote(row, col))
			if r != row || c != col {
				t.Errorf("Expected %d,%d, got %d,%d", row, col, r, c)
			}
		}
	}
	for col := 0; col < 8; col++ {
		if r, c := noteToRowCol(rowColToNote(8, col)); r != 8 || c != col {
			t.Errorf("Expected top row col %d, got %d,%d", col, r, c)
		}
	}
}

func TestNoteMappingRejects(t *testing.T) {
	for _, note := range []uint8{0, 10, 20, 99, 127} {
		if r, _ := noteToRowCol(note); r != -1 {
			t.Errorf("Expected note %d rejected, got row %d", note, r)
		}
	}
}

func TestCCToRowCol(t *testing.T) {
	tests := []struct {
		cc       uint8
		row, col int
	}{
		{91, 8, 0},
		{98, 8, 7},
		{90, -1, -1},
		{99, -1, -1},
	}
	for _, tt := range tests {
		if r, c := ccToRowCol(tt.cc); r != tt.row || c != tt.col {
			t.Errorf("CC %d: expected %d,%d, got %d,%d", tt.cc, tt.row, tt.col, r, c)
		}
	}
}

func TestIsLaunchpad(t *testing.T) {
	tests := map[string]bool{
		"Launchpad X LPX MIDI":  true,
		"LPX MIDI Launchpad":    true,
		"Launchpad X LPX DAW":   false,
		"Keystation 49 MK3":     false,
		"launchpad mini midi 1": true,
	}
	for name, want := range tests {
		if got := IsLaunchpad(name); got != want {
			t.Errorf("IsLaunchpad(%q): expected %v, got %v", name, want, got)
		}
	}
}

func TestMapRGBToLaunchpad(t *testing.T) {
	tests := []struct {
		rgb  [3]uint8
		want uint8
	}{
		{[3]uint8{0, 0, 0}, 0},
		{[3]uint8{255, 255, 255}, 119},
		{[3]uint8{255, 0, 0}, 5},
		{[3]uint8{0, 250, 0}, 21},
	}
	for _, tt := range tests {
		if got := mapRGBToLaunchpad(tt.rgb); got != tt.want {
			t.Errorf("%v: expected %d, got %d", tt.rgb, tt.want, got)
		}
	}
}

func TestAllLEDsOff(t *testing.T) {
	updates := AllLEDsOff()
	if len(updates) != 80 {
		t.Fatalf("Expected 80 updates, got %d", len(updates))
	}
	for _, u := range updates {
		if u.Row == 8 && u.Col == 8 {
			t.Error("Expected no update for the missing corner LED")
		}
		if u.Color != ([3]uint8{}) {
			t.Errorf("Expected black at %d,%d, got %v", u.Row, u.Col, u.Color)
		}
	}
}

func TestLaunchpadSetLEDBatch(t *testing.T) {
	var sent []gomidi.Message
	lp := &LaunchpadController{send: func(msg gomidi.Message) error {
		sent = append(sent, msg)
		return nil
	}}

	updates := []LEDUpdate{
		{Row: 0, Col: 0, Color: [3]uint8{255, 0, 0}, Channel: ChannelStatic},
		{Row: 8, Col: 3, Color: [3]uint8{0, 0, 255}, Channel: ChannelPulse},
	}
	if err := lp.SetLEDBatch(updates); err != nil {
		t.Fatal(err)
	}
	if len(sent) != len(updates) {
		t.Fatalf("Expected %d messages, got %d", len(updates), len(sent))
	}

	wantNotes := []uint8{11, 94}
	for i, msg := range sent {
		var ch, key, vel uint8
		if !msg.GetNoteOn(&ch, &key, &vel) {
			t.Fatalf("Expected NoteOn, got %v", msg)
		}
		if ch != updates[i].Channel || key != wantNotes[i] || vel != mapRGBToLaunchpad(updates[i].Color) {
			t.Errorf("Expected ch %d note %d vel %d, got %d %d %d",
				updates[i].Channel, wantNotes[i], mapRGBToLaunchpad(updates[i].Color), ch, key, vel)
		}
	}

	sent = nil
	if err := lp.ClearLEDs(); err != nil || len(sent) != 80 {
		t.Errorf("Expected 80 clear messages, got %d (%v)", len(sent), err)
	}
}

func TestLaunchpadHandle(t *testing.T) {
	lp := &LaunchpadController{padChan: make(chan PadEvent, 4)}

	lp.handle(gomidi.NoteOn(0, 11, 100), 0)
	lp.handle(gomidi.NoteOn(0, 12, 0), 0) // release
	lp.handle(gomidi.ControlChange(0, 93, 127), 0)
	lp.handle(gomidi.NoteOn(0, 79, 64), 0)

	want := []PadEvent{
		{Row: 0, Col: 0, Velocity: 100},
		{Row: 8, Col: 2, Velocity: 127},
		{Row: 6, Col: 8, Velocity: 64},
	}
	for _, w := range want {
		select {
		case got := <-lp.padChan:
			if got != w {
				t.Errorf("Expected %+v, got %+v", w, got)
			}
		default:
			t.Fatalf("Expected event %+v", w)
		}
	}
	select {
	case ev := <-lp.padChan:
		t.Errorf("Expected no more events, got %+v", ev)
	default:
	}
}

func TestKeyboardChannelFilter(t *testing.T) {
	kb, err := NewKeyboardController("keys", nil, 2)
	if err != nil {
		t.Fatalf("NewKeyboardController failed: %v", err)
	}

	kb.handle(gomidi.NoteOn(0, 60, 90), 0)
	kb.handle(gomidi.NoteOn(1, 62, 90), 0)
	kb.handle(gomidi.NoteOff(1, 62), 0)

	select {
	case ev := <-kb.NoteEvents():
		if ev.Note != 62 || ev.Channel != 1 {
			t.Errorf("Expected note 62 on channel 1, got %+v", ev)
		}
	default:
		t.Fatal("Expected a note on channel 2")
	}
	select {
	case ev := <-kb.NoteEvents():
		t.Errorf("Expected filtered notes, got %+v", ev)
	default:
	}
}

func TestWatchKeyboard(t *testing.T) {
	dm := NewDeviceManager()
	dm.WatchKeyboard("Keystation", 3)

	if ch, ok := dm.keyboardChannel("Keystation 49 MK3 MIDI 1"); !ok || ch != 3 {
		t.Errorf("Expected channel 3 match, got %d/%v", ch, ok)
	}
	if _, ok := dm.keyboardChannel("Launchpad X LPX MIDI"); ok {
		t.Error("Expected no match for the Launchpad")
	}
	if dm.GetLaunchpad() != nil {
		t.Error("Expected no Launchpad before scanning")
	}
}
