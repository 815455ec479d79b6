package pads

import (
	"errors"
	"testing"
)

func TestLayoutCoversGrid(t *testing.T) {
	l := NewLayout()
	seen := make(map[Cell]Key)

	for _, k := range AllKeys() {
		c, ok := l.CellOf(k)
		if !ok {
			t.Fatalf("Expected a cell for %s", k)
		}
		if other, dup := seen[c]; dup {
			t.Fatalf("Expected unique cells, %s and %s share %v", k, other, c)
		}
		seen[c] = k

		back, ok := l.KeyAt(c)
		if !ok || back != k {
			t.Errorf("Expected KeyAt(%v) = %s, got %s", c, k, back)
		}
	}
	if len(seen) != GridSize*GridSize {
		t.Errorf("Expected %d cells, got %d", GridSize*GridSize, len(seen))
	}
}

func TestLayoutTriangles(t *testing.T) {
	l := NewLayout()

	tests := []struct {
		cell Cell
		want Key
	}{
		{Cell{1, 1}, Key{Category: Sound, Index: 1}},
		{Cell{1, 3}, Key{Category: Bass, Index: 1}},
		{Cell{4, 6}, Key{Category: Bass, Index: 10}},
		{Cell{3, 1}, Key{Category: Drum, Index: 1}},
		{Cell{6, 4}, Key{Category: Drum, Index: 10}},
		{Cell{6, 6}, Key{Category: Sound, Index: 16}},
	}
	for _, tt := range tests {
		if got, _ := l.KeyAt(tt.cell); got != tt.want {
			t.Errorf("Expected %v to hold %s, got %s", tt.cell, tt.want, got)
		}
	}
}

func TestPadToCell(t *testing.T) {
	tests := []struct {
		row, col int
		want     Cell
		ok       bool
	}{
		{6, 0, Cell{1, 1}, true},
		{1, 5, Cell{6, 6}, true},
		{0, 0, Cell{}, false}, // progress row
		{7, 0, Cell{}, false},
		{3, 6, Cell{}, false},
	}
	for _, tt := range tests {
		got, ok := PadToCell(tt.row, tt.col)
		if ok != tt.ok || got != tt.want {
			t.Errorf("PadToCell(%d, %d): expected %v/%v, got %v/%v", tt.row, tt.col, tt.want, tt.ok, got, ok)
		}
		if ok {
			if r, c := CellToPad(got); r != tt.row || c != tt.col {
				t.Errorf("CellToPad(%v): expected %d,%d, got %d,%d", got, tt.row, tt.col, r, c)
			}
		}
	}
}

func TestParseKeyRoundTrip(t *testing.T) {
	for _, k := range AllKeys() {
		got, err := ParseKey(k.Name())
		if err != nil {
			t.Fatalf("ParseKey(%q) failed: %v", k.Name(), err)
		}
		if got != k {
			t.Errorf("Expected %s, got %s", k, got)
		}
	}
}

func TestParseKeyRejects(t *testing.T) {
	for _, name := range []string{"", "drum.1.0.wav", "drum.1.11.wav", "sound.1.1.wav", "bass.1.x.wav", "bass.1.1.mp3"} {
		if _, err := ParseKey(name); !errors.Is(err, ErrUnknownKey) {
			t.Errorf("ParseKey(%q): expected ErrUnknownKey, got %v", name, err)
		}
	}
}

func TestBank(t *testing.T) {
	if n := len(AllKeys()); n != NumPads {
		t.Fatalf("Expected %d keys, got %d", NumPads, n)
	}
	if got := (Key{Category: Sound, Index: 7}).Name(); got != "sounds.1.7.wav" {
		t.Errorf("Expected sounds.1.7.wav, got %s", got)
	}
	limits := map[Category]int{Drum: 1, Bass: 1, Sound: 3}
	for c, want := range limits {
		if got := c.Limit(); got != want {
			t.Errorf("Expected %s limit %d, got %d", c, want, got)
		}
	}
}
