package theme

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

type Theme struct {
	Palette *Palette
	Symbols Symbols
}

type Symbols struct {
	// Launchpad legend
	Solid rune // ■ lit button
	Empty rune // □ unlit button

	// Pad grid states
	PadIdle      rune // · idle pad
	PadMissing   rune // × sample failed to load
	PadQueued    rune // ◌ waiting for the boundary
	PadActive    rune // ● playing
	PadReleasing rune // ◐ playing its last cycle

	// Meters and progress
	BarFull  rune // █
	BarEmpty rune // ░
	Beat     rune // ▶ current beat
	Record   rune // ● recording
}

func New(palette *Palette) *Theme {
	return &Theme{
		Palette: palette,
		Symbols: Symbols{
			Solid: '■',
			Empty: '□',

			PadIdle:      '·',
			PadMissing:   '×',
			PadQueued:    '◌',
			PadActive:    '●',
			PadReleasing: '◐',

			BarFull:  '█',
			BarEmpty: '░',
			Beat:     '▶',
			Record:   '●',
		},
	}
}

// Color roles mapped to palette positions (0-1)
const (
	RoleBG      = 0.0  // deep purple
	RoleSurface = 0.1  // dark purple
	RoleMuted   = 0.2  // purple-magenta
	RoleFG      = 0.4  // pink-purple (readable)
	RoleAccent  = 0.5  // vivid magenta
	RoleCursor  = 0.6  // rose pink
	RoleActive  = 0.7  // soft red
	RoleWarning = 0.8  // orange
	RoleSuccess = 1.0  // bright yellow
)

// Style helpers

func (t *Theme) BG() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleBG))
}

func (t *Theme) FG() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleFG))
}

func (t *Theme) Accent() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleAccent))
}

func (t *Theme) Muted() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleMuted))
}

func (t *Theme) Active() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleActive))
}

func (t *Theme) Cursor() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleCursor))
}

func (t *Theme) Warning() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleWarning))
}

func (t *Theme) Success() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleSuccess))
}

// RGBColor converts a raw RGB triple, e.g. a pad category color
func (t *Theme) RGBColor(c [3]uint8) lipgloss.Color {
	return rgbToLipgloss(RGB(c))
}

// Color returns lipgloss color for any normalized value 0-1
func (t *Theme) Color(norm float64) lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(norm))
}

func rgbToLipgloss(c RGB) lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2]))
}
