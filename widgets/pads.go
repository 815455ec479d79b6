package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"go-padloop/pads"
	"go-padloop/theme"
)

// Pad grid cell geometry in terminal cells
const (
	PadCellWidth  = 8 // 7 wide plus a gap
	PadCellHeight = 2 // label line plus a gap
)

// PadGrid renders the 6x6 pad grid
type PadGrid struct {
	Theme *theme.Theme
}

// View renders pads at their cells, grid row 1 at the top
func (g PadGrid) View(views []pads.PadView, cursor pads.Cell) string {
	var cells [pads.GridSize][pads.GridSize]string
	for _, p := range views {
		r, c := p.Cell.Row-1, p.Cell.Col-1
		if r < 0 || r >= pads.GridSize || c < 0 || c >= pads.GridSize {
			continue
		}
		cells[r][c] = g.cell(p, p.Cell == cursor)
	}

	var lines []string
	for r := 0; r < pads.GridSize; r++ {
		var line strings.Builder
		for c := 0; c < pads.GridSize; c++ {
			if c > 0 {
				line.WriteString(" ")
			}
			line.WriteString(cells[r][c])
		}
		lines = append(lines, line.String(), "")
	}
	return strings.Join(lines[:len(lines)-1], "\n")
}

func (g PadGrid) cell(p pads.PadView, cursor bool) string {
	sym := g.Theme.Symbols
	base := pads.CategoryColor(p.Key.Category)
	style := lipgloss.NewStyle().Width(PadCellWidth - 1)

	symbol := sym.PadIdle
	switch {
	case p.State == pads.StateActive:
		symbol = sym.PadActive
		style = style.Background(g.Theme.RGBColor(base)).Foreground(g.Theme.BG()).Bold(true)
	case p.State == pads.StateReleasing:
		symbol = sym.PadReleasing
		style = style.Background(g.Theme.RGBColor(halve(base))).Foreground(g.Theme.BG())
	case p.State == pads.StateQueued:
		symbol = sym.PadQueued
		style = style.Foreground(g.Theme.RGBColor(base)).Bold(true)
	case !p.Loaded:
		symbol = sym.PadMissing
		style = style.Foreground(g.Theme.Muted())
	default:
		style = style.Foreground(g.Theme.RGBColor(halve(base)))
	}
	if cursor {
		style = style.Underline(true)
	}
	return style.Render(fmt.Sprintf("%c %s", symbol, p.Key))
}

// PadGridHitTest maps a position relative to the grid's top-left corner
// to a pad cell
func PadGridHitTest(x, y int) (pads.Cell, bool) {
	if x < 0 || y < 0 || x%PadCellWidth == PadCellWidth-1 || y%PadCellHeight != 0 {
		return pads.Cell{}, false
	}
	c := pads.Cell{Row: y/PadCellHeight + 1, Col: x/PadCellWidth + 1}
	if c.Row > pads.GridSize || c.Col > pads.GridSize {
		return pads.Cell{}, false
	}
	return c, true
}

func halve(c [3]uint8) [3]uint8 {
	return [3]uint8{c[0] / 2, c[1] / 2, c[2] / 2}
}

// ProgressBar shows the beat within the cycle, one mark per beat. When
// the cycle has more beats than fit, it falls back to a phase bar.
func ProgressBar(th *theme.Theme, pos pads.Position, width int) string {
	sym := th.Symbols
	dim := lipgloss.NewStyle().Foreground(th.Muted())
	lit := lipgloss.NewStyle().Foreground(th.Accent())
	head := lipgloss.NewStyle().Foreground(th.Success())

	if !pos.Running {
		return dim.Render(strings.Repeat(string(sym.BarEmpty), width))
	}

	var b strings.Builder
	if pos.Beats <= width {
		for i := 0; i < pos.Beats; i++ {
			switch {
			case i == pos.Beat:
				b.WriteString(head.Render(string(sym.Beat)))
			case i < pos.Beat:
				b.WriteString(lit.Render(string(sym.BarFull)))
			default:
				b.WriteString(dim.Render(string(sym.BarEmpty)))
			}
		}
		return b.String()
	}

	filled := int(pos.Phase * float64(width))
	b.WriteString(lit.Render(strings.Repeat(string(sym.BarFull), filled)))
	b.WriteString(dim.Render(strings.Repeat(string(sym.BarEmpty), width-filled)))
	return b.String()
}

// ParamRows renders every effect parameter with a bar and its value.
// selected marks the row under keyboard control.
func ParamRows(th *theme.Theme, params pads.Params, selected int, width int) string {
	sym := th.Symbols
	label := lipgloss.NewStyle().Foreground(th.FG())
	cur := lipgloss.NewStyle().Foreground(th.Cursor()).Bold(true)
	bar := lipgloss.NewStyle().Foreground(th.Accent())
	rest := lipgloss.NewStyle().Foreground(th.Muted())

	var lines []string
	for i, p := range pads.AllParams {
		v, _ := params.Get(p)
		d, _ := pads.DomainOf(p)
		norm := (v - d.Min) / (d.Max - d.Min)
		filled := int(norm*float64(width) + 0.5)
		if filled < 0 {
			filled = 0
		}
		if filled > width {
			filled = width
		}

		marker, style := "  ", label
		if i == selected {
			marker, style = "> ", cur
		}
		lines = append(lines, fmt.Sprintf("%s%s %s%s %s",
			marker,
			style.Render(fmt.Sprintf("%-13s", p)),
			bar.Render(strings.Repeat(string(sym.BarFull), filled)),
			rest.Render(strings.Repeat(string(sym.BarEmpty), width-filled)),
			style.Render(pads.FormatParam(p, v)),
		))
	}
	return strings.Join(lines, "\n")
}

// LevelMeters renders one meter per category with slot usage
func LevelMeters(th *theme.Theme, v pads.View, width int) string {
	sym := th.Symbols
	rest := lipgloss.NewStyle().Foreground(th.Muted())

	var lines []string
	for _, c := range pads.Categories {
		color := lipgloss.NewStyle().Foreground(th.RGBColor(pads.CategoryColor(c)))
		filled := int(v.Levels[c]*float64(width) + 0.5)
		if filled > width {
			filled = width
		}
		slots := fmt.Sprintf("%d/%d", v.Active[c], c.Limit())
		if n := v.Pending[c]; n > 0 {
			slots += fmt.Sprintf(" +%d", n)
		}
		used := lipgloss.NewStyle().Foreground(th.Color(float64(v.Active[c]) / float64(c.Limit())))
		lines = append(lines, fmt.Sprintf("%-5s %s%s %s",
			c,
			color.Render(strings.Repeat(string(sym.BarFull), filled)),
			rest.Render(strings.Repeat(string(sym.BarEmpty), width-filled)),
			used.Render(slots),
		))
	}
	return strings.Join(lines, "\n")
}
