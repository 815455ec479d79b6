package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"go-padloop/pads"
)

// RenderPad renders a single colored pad
func RenderPad(color [3]uint8) string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color(rgbToHex(color)))
	return style.Render("■")
}

// Launchpad surface: 8x8 grid, the top CC row and the scene column
const surfaceSize = 9

// LaunchpadMirror renders the LED states as the controller would show
// them (row 0 at bottom, top row and scene column included). Pulsing and
// flashing LEDs are drawn at full color.
func LaunchpadMirror(leds []pads.LEDState) string {
	var grid [surfaceSize][surfaceSize][3]uint8
	lit := make(map[[2]int]bool, len(leds))
	for _, led := range leds {
		if led.Row < 0 || led.Row >= surfaceSize || led.Col < 0 || led.Col >= surfaceSize {
			continue
		}
		grid[led.Row][led.Col] = led.Color
		lit[[2]int{led.Row, led.Col}] = true
	}

	var lines []string
	for row := surfaceSize - 1; row >= 0; row-- {
		var line strings.Builder
		for col := 0; col < surfaceSize; col++ {
			if col > 0 {
				line.WriteString(" ")
			}
			if !lit[[2]int{row, col}] {
				line.WriteString(" ")
				continue
			}
			line.WriteString(RenderPad(grid[row][col]))
		}
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}

// RenderLegendItem renders a single legend item: "■ Name - description"
func RenderLegendItem(color [3]uint8, name, desc string) string {
	return fmt.Sprintf("  %s %s - %s", RenderPad(color), name, desc)
}

// RenderKeyHelp formats key bindings in a friendly way
func RenderKeyHelp(sections []KeySection) string {
	var lines []string
	for _, sec := range sections {
		if sec.Title != "" {
			lines = append(lines, sec.Title)
		}
		for _, k := range sec.Keys {
			lines = append(lines, fmt.Sprintf("  %-12s %s", k.Key, k.Desc))
		}
	}
	return strings.Join(lines, "\n")
}

// KeySection groups related key bindings
type KeySection struct {
	Title string
	Keys  []KeyBinding
}

// KeyBinding is a single key and its description
type KeyBinding struct {
	Key  string
	Desc string
}

func rgbToHex(c [3]uint8) string {
	return fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2])
}
