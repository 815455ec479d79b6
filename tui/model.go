package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go-padloop/midi"
	"go-padloop/pads"
	"go-padloop/theme"
	"go-padloop/widgets"
)

const (
	barWidth   = 24
	meterWidth = 16
)

// layoutBounds holds cached layout info
type layoutBounds struct {
	gridTop int
}

type inputMode int

const (
	modeNormal inputMode = iota
	modeSaveName
	modePresets
)

type Model struct {
	Manager   *pads.Manager
	DeviceMgr *midi.DeviceManager
	Theme     *theme.Theme

	ctx      context.Context
	grid     widgets.PadGrid
	cursor   pads.Cell
	param    int
	mode     inputMode
	input    string
	presets  []pads.Preset
	pick     int
	showHelp bool
	quitting bool
	tooltip  string
	bounds   *layoutBounds
	notice   string // startup notice, e.g. missing samples

	// LastPreset is the preset most recently saved or loaded
	LastPreset string
}

type UpdateMsg struct{}

type DeviceEventMsg midi.DeviceEvent

// NoticeMsg replaces the warning line, e.g. once samples finish loading
type NoticeMsg string

// devicesClosedMsg is sent once the device manager shuts down
type devicesClosedMsg struct{}

// NewModel creates the TUI. ctx bounds the controller listeners.
func NewModel(ctx context.Context, manager *pads.Manager, deviceMgr *midi.DeviceManager, th *theme.Theme, notice string) Model {
	return Model{
		Manager:   manager,
		DeviceMgr: deviceMgr,
		Theme:     th,
		ctx:       ctx,
		grid:      widgets.PadGrid{Theme: th},
		cursor:    pads.Cell{Row: 1, Col: 1},
		bounds:    &layoutBounds{},
		notice:    notice,
	}
}

func ListenForUpdates(manager *pads.Manager) tea.Cmd {
	return func() tea.Msg {
		<-manager.UpdateChan
		return UpdateMsg{}
	}
}

func ListenForDevices(deviceMgr *midi.DeviceManager) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-deviceMgr.Events()
		if !ok {
			return devicesClosedMsg{}
		}
		return DeviceEventMsg(event)
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{ListenForUpdates(m.Manager)}
	if m.DeviceMgr != nil {
		cmds = append(cmds, ListenForDevices(m.DeviceMgr))
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch m.mode {
		case modeSaveName:
			return m.updateSaveName(msg)
		case modePresets:
			return m.updatePresets(msg)
		}
		return m.updateNormal(msg)

	case tea.MouseMsg:
		cell, onGrid := widgets.PadGridHitTest(msg.X, msg.Y-m.bounds.gridTop)
		m.tooltip = ""
		if !onGrid {
			return m, nil
		}
		k, ok := m.Manager.Layout().KeyAt(cell)
		if !ok {
			return m, nil
		}
		m.tooltip = fmt.Sprintf("%s  %s", k, k.Name())
		if msg.Action != tea.MouseActionPress {
			return m, nil
		}
		m.cursor = cell
		switch msg.Button {
		case tea.MouseButtonLeft:
			m.Manager.Activate(k)
		case tea.MouseButtonRight:
			m.Manager.Release(k)
		}

	case UpdateMsg:
		return m, ListenForUpdates(m.Manager)

	case DeviceEventMsg:
		event := midi.DeviceEvent(msg)
		switch event.Type {
		case midi.DeviceConnected:
			c := event.Controller
			if c.Type() == midi.ControllerLaunchpad {
				m.Manager.SetController(c)
			}
			go m.Manager.Listen(m.ctx, c)
		case midi.DeviceDisconnected:
			m.Manager.DropController(event.ID)
			if lp := m.DeviceMgr.GetLaunchpad(); lp != nil {
				m.Manager.SetController(lp)
			}
		}
		return m, ListenForDevices(m.DeviceMgr)

	case NoticeMsg:
		m.notice = string(msg)

	case devicesClosedMsg:
		return m, nil
	}

	return m, nil
}

func (m Model) updateNormal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		m.Manager.StopAll()
		return m, tea.Quit

	case "up", "k":
		m.cursor.Row = clamp(m.cursor.Row-1, 1, pads.GridSize)
	case "down", "j":
		m.cursor.Row = clamp(m.cursor.Row+1, 1, pads.GridSize)
	case "left", "h":
		m.cursor.Col = clamp(m.cursor.Col-1, 1, pads.GridSize)
	case "right", "l":
		m.cursor.Col = clamp(m.cursor.Col+1, 1, pads.GridSize)

	case " ", "enter":
		m.Manager.ActivateCell(m.cursor)
	case "r":
		if k, ok := m.Manager.Layout().KeyAt(m.cursor); ok {
			m.Manager.Release(k)
		}
	case "x":
		m.Manager.StopAll()

	case "tab":
		m.param = (m.param + 1) % len(pads.AllParams)
	case "shift+tab":
		m.param = (m.param + len(pads.AllParams) - 1) % len(pads.AllParams)
	case "+", "=":
		m.Manager.NudgeParam(pads.AllParams[m.param], 1)
	case "-", "_":
		m.Manager.NudgeParam(pads.AllParams[m.param], -1)
	case "F":
		m.Manager.ResetEffects()

	case "R":
		m.Manager.ToggleRecording()

	case "S":
		m.mode = modeSaveName
		m.input = ""
	case "L":
		presets, err := m.Manager.Presets()
		if err != nil {
			m.notice = storageNotice(err)
			return m, nil
		}
		m.presets = presets
		m.pick = 0
		m.mode = modePresets

	case "?":
		m.showHelp = !m.showHelp
	}
	return m, nil
}

func (m Model) updateSaveName(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = modeNormal
	case tea.KeyEnter:
		err := m.Manager.SavePreset(m.input)
		switch {
		case err == nil:
			m.LastPreset = strings.TrimSpace(m.input)
			m.mode = modeNormal
		case pads.IsStorageError(err):
			m.notice = storageNotice(err)
			m.mode = modeNormal
		}
	case tea.KeyBackspace:
		if r := []rune(m.input); len(r) > 0 {
			m.input = string(r[:len(r)-1])
		}
	case tea.KeySpace:
		m.input += " "
	case tea.KeyRunes:
		m.input += string(msg.Runes)
	case tea.KeyCtrlC:
		m.quitting = true
		m.Manager.StopAll()
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) updatePresets(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "L":
		m.mode = modeNormal
	case "up", "k":
		m.pick = clamp(m.pick-1, 0, len(m.presets)-1)
	case "down", "j":
		m.pick = clamp(m.pick+1, 0, len(m.presets)-1)
	case "enter":
		if m.pick < len(m.presets) {
			name := m.presets[m.pick].Name
			if err := m.Manager.LoadPreset(name); err == nil {
				m.LastPreset = name
			}
		}
		m.mode = modeNormal
	case "d":
		if m.pick < len(m.presets) {
			if err := m.Manager.DeletePreset(m.presets[m.pick].Name); err == nil {
				m.presets, _ = m.Manager.Presets()
				m.pick = clamp(m.pick, 0, len(m.presets)-1)
			}
		}
	case "ctrl+c":
		m.quitting = true
		m.Manager.StopAll()
		return m, tea.Quit
	}
	return m, nil
}

// storageNotice keeps the session playing when the preset file is broken
func storageNotice(err error) string {
	if pads.IsStorageError(err) {
		return "presets unavailable: " + err.Error()
	}
	return err.Error()
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	v := m.Manager.Snapshot()

	// Styles
	headerStyle := lipgloss.NewStyle().Foreground(m.Theme.Accent())
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	fgStyle := lipgloss.NewStyle().Foreground(m.Theme.FG())
	recStyle := lipgloss.NewStyle().Foreground(m.Theme.Active()).Bold(true)
	warnStyle := lipgloss.NewStyle().Foreground(m.Theme.Warning())
	tooltipStyle := lipgloss.NewStyle().
		Foreground(m.Theme.FG()).
		Background(m.Theme.Muted()).
		Padding(0, 1)

	header := headerStyle.Render(m.headerText(v))
	if v.Recording {
		header += "  " + recStyle.Render(fmt.Sprintf("%c REC %s", m.Theme.Symbols.Record, clock(v.RecordTime)))
	}

	progress := widgets.ProgressBar(m.Theme, v.Position, barWidth)
	if v.Position.Running {
		progress += dimStyle.Render(fmt.Sprintf("  beat %d/%d  cycle %d", v.Position.Beat+1, v.Position.Beats, v.Position.Cycle+1))
	}

	gridView := m.grid.View(v.Pads, m.cursor)
	side := lipgloss.JoinVertical(lipgloss.Left,
		widgets.ParamRows(m.Theme, v.Params, m.param, meterWidth),
		"",
		widgets.LevelMeters(m.Theme, v, meterWidth),
	)
	body := lipgloss.JoinHorizontal(lipgloss.Top, gridView, "    ", side)

	// Compute layout bounds
	m.bounds.gridTop = 1 + lipgloss.Height(header) + 1 + lipgloss.Height(progress) + 1

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n\n")
	out.WriteString(progress)
	out.WriteString("\n\n")
	out.WriteString(body)
	out.WriteString("\n\n")

	switch m.mode {
	case modeSaveName:
		out.WriteString(fgStyle.Render("save preset: " + m.input + "_"))
		out.WriteString("\n")
	case modePresets:
		out.WriteString(m.presetList(fgStyle, dimStyle))
		out.WriteString("\n")
	}

	if v.Status != "" {
		out.WriteString(fgStyle.Render(v.Status))
		out.WriteString("\n")
	}
	if m.notice != "" {
		out.WriteString(warnStyle.Render(m.notice))
		out.WriteString("\n")
	}

	if m.showHelp {
		out.WriteString("\n")
		out.WriteString(m.helpView(v))
		out.WriteString("\n")
	} else {
		out.WriteString(dimStyle.Render("hjkl:move  space:toggle  r:release  x:stop  tab:param  +/-:adjust  R:rec  S/L:presets  ?:help  q:quit"))
	}

	if m.tooltip != "" {
		out.WriteString("\n")
		out.WriteString(tooltipStyle.Render(m.tooltip))
	}

	return out.String()
}

func (m Model) headerText(v pads.View) string {
	state := "IDLE"
	if v.Position.Running {
		state = "PLAY"
	}
	cycle := v.Effective
	text := fmt.Sprintf("go-padloop  %s  %.2fs  %s", state, cycle.Seconds(), pads.FormatParam(pads.PlaybackRate, v.Params.PlaybackRate))

	var names []string
	if m.DeviceMgr != nil {
		for id, c := range m.DeviceMgr.Controllers() {
			names = append(names, fmt.Sprintf("%s:%s", c.Type(), shortID(id)))
		}
	}
	sort.Strings(names)
	if len(names) > 0 {
		text += "  " + strings.Join(names, " ")
	}
	return text
}

func (m Model) presetList(fg, dim lipgloss.Style) string {
	if len(m.presets) == 0 {
		return dim.Render("no presets saved  (esc)")
	}
	var lines []string
	for i, p := range m.presets {
		marker := "  "
		if i == m.pick {
			marker = "> "
		}
		line := fmt.Sprintf("%s%-20s %s", marker, p.Name, p.SavedTime().Format("2006-01-02 15:04"))
		if i == m.pick {
			lines = append(lines, fg.Render(line))
		} else {
			lines = append(lines, dim.Render(line))
		}
	}
	lines = append(lines, dim.Render("enter:load  d:delete  esc:close"))
	return strings.Join(lines, "\n")
}

func (m Model) helpView(v pads.View) string {
	keys := widgets.RenderKeyHelp([]widgets.KeySection{
		{Title: "Pads", Keys: []widgets.KeyBinding{
			{Key: "hjkl/arrows", Desc: "move cursor"},
			{Key: "space/enter", Desc: "start, queue, cancel or stop"},
			{Key: "r", Desc: "release after this cycle"},
			{Key: "x", Desc: "stop everything"},
			{Key: "mouse", Desc: "left toggles, right releases"},
		}},
		{Title: "Effects", Keys: []widgets.KeyBinding{
			{Key: "tab/S-tab", Desc: "select parameter"},
			{Key: "+/-", Desc: "adjust parameter"},
			{Key: "F", Desc: "reset effects"},
		}},
		{Title: "Session", Keys: []widgets.KeyBinding{
			{Key: "R", Desc: "record / export take"},
			{Key: "S", Desc: "save preset"},
			{Key: "L", Desc: "load or delete presets"},
		}},
	})

	var legend []string
	for _, c := range pads.Categories {
		legend = append(legend, widgets.RenderLegendItem(pads.CategoryColor(c), string(c), fmt.Sprintf("%d pads, %d at once", c.Size(), c.Limit())))
	}

	mirror := widgets.LaunchpadMirror(pads.RenderLEDs(v))
	right := lipgloss.JoinVertical(lipgloss.Left, mirror, "", strings.Join(legend, "\n"))
	return lipgloss.JoinHorizontal(lipgloss.Top, keys, "    ", right)
}

func clock(d time.Duration) string {
	s := int(d.Seconds())
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

func shortID(id string) string {
	if len(id) > 16 {
		return id[:16]
	}
	return id
}
