package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gopxl/beep"
	"gitlab.com/gomidi/midi/v2/drivers"

	"go-padloop/audio"
	"go-padloop/config"
	"go-padloop/debug"
	"go-padloop/midi"
	"go-padloop/pads"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v (using defaults)\n", err)
		cfg = config.DefaultConfig()
	}
	if logPath, err := debug.Setup(cfg, false); err != nil {
		fmt.Fprintf(os.Stderr, "debug log: %v\n", err)
	} else if logPath != "" {
		fmt.Fprintf(os.Stderr, "debug log: %s\n", logPath)
	}
	defer debug.Disable()

	args := os.Args[2:]
	switch os.Args[1] {
	case "ports":
		err = listPorts(cfg, args)
	case "samples":
		err = checkSamples(cfg, args)
	case "presets":
		err = listPresets(cfg)
	case "leds":
		err = testLEDs()
	case "render":
		err = render(cfg, args)
	default:
		usage()
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("padtool - go-padloop utilities")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  ports [-save]           - List all MIDI ports, optionally saving Launchpads to config")
	fmt.Println("  samples [-dir DIR]      - Check the sample bank")
	fmt.Println("  presets                 - List saved presets")
	fmt.Println("  leds                    - Show the pad layout on a Launchpad")
	fmt.Println("  render [flags] PAD...   - Render pads or a preset to a WAV file")
}

func listPorts(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("ports", flag.ExitOnError)
	save := fs.Bool("save", false, "add detected Launchpads to the config with autoconnect")
	fs.Parse(args)

	fmt.Println("=== MIDI Input Ports ===")
	fmt.Println("(waiting up to 3 seconds...)")

	ins, outs, err := midi.ListPorts(3 * time.Second)
	if err != nil {
		fmt.Println("\nTIMEOUT! CoreMIDI is hung.")
		fmt.Println("Fix: sudo killall coreaudiod midiserver")
		return err
	}
	for i, p := range ins {
		mark := ""
		if midi.IsLaunchpad(p.String()) {
			mark = "  <- Launchpad"
		}
		fmt.Printf("  %d: %s%s\n", i, p.String(), mark)
	}
	fmt.Println("\n=== MIDI Output Ports ===")
	for i, p := range outs {
		fmt.Printf("  %d: %s\n", i, p.String())
	}

	if !*save {
		return nil
	}
	added := 0
	for _, p := range ins {
		name := p.String()
		if !midi.IsLaunchpad(name) || cfg.FindController(name) != nil {
			continue
		}
		cfg.AddController(config.ControllerConfig{
			PortName:    name,
			Type:        config.ControllerLaunchpadX,
			AutoConnect: true,
		})
		added++
	}
	if added == 0 {
		fmt.Println("\nNo new Launchpads to save")
		return nil
	}
	if err := cfg.Save(); err != nil {
		return err
	}
	fmt.Printf("\nSaved %d Launchpad(s) to the config\n", added)
	return nil
}

func checkSamples(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("samples", flag.ExitOnError)
	dir := fs.String("dir", cfg.Samples.Dir, "sample directory")
	fs.Parse(args)

	lib := audio.NewLibrary(*dir)
	started := time.Now()
	<-lib.LoadAll(context.Background(), pads.AllKeys(), nil)

	fmt.Printf("=== Samples in %s ===\n", lib.Dir())
	for _, k := range pads.AllKeys() {
		if d, ok := lib.Duration(k); ok {
			fmt.Printf("  %-6s %-18s %6.2fs\n", k, k.Name(), d.Seconds())
		}
	}

	missing := lib.Missing()
	fmt.Printf("\nloaded %d/%d in %v\n", lib.LoadedCount(), pads.NumPads, time.Since(started).Round(time.Millisecond))
	if len(missing) == 0 {
		return nil
	}
	fmt.Println("\n=== Missing ===")
	for _, m := range missing {
		fmt.Printf("  %-6s %v\n", m.Key, m.Err)
	}
	return fmt.Errorf("%d samples missing", len(missing))
}

func listPresets(cfg *config.Config) error {
	backend := &pads.FileBackend{Path: cfg.Presets.Path}
	presets, err := backend.ReadAll()
	if err != nil {
		return err
	}
	if len(presets) == 0 {
		fmt.Printf("No presets in %s\n", cfg.Presets.Path)
		return nil
	}
	for _, p := range presets {
		var names []string
		for _, k := range p.Keys() {
			names = append(names, k.String())
		}
		fmt.Printf("  %-20s %s  %-28s rate %s pitch %s\n",
			p.Name,
			p.SavedTime().Format("2006-01-02 15:04"),
			strings.Join(names, ", "),
			pads.FormatParam(pads.PlaybackRate, p.Effects.PlaybackRate),
			pads.FormatParam(pads.PitchShift, p.Effects.PitchShift),
		)
	}
	return nil
}

// testLEDs lights every pad in its category color until Enter
func testLEDs() error {
	ins, outs, err := midi.ListPorts(3 * time.Second)
	if err != nil {
		return err
	}

	var inPort drivers.In
	var outPort drivers.Out
	for _, p := range ins {
		if midi.IsLaunchpad(p.String()) {
			inPort = p
			break
		}
	}
	for _, p := range outs {
		if midi.IsLaunchpad(p.String()) {
			outPort = p
			break
		}
	}
	if inPort == nil || outPort == nil {
		return fmt.Errorf("no Launchpad found")
	}
	fmt.Printf("Using %s\n", outPort.String())

	lp, err := midi.NewLaunchpadController(inPort.String(), inPort, outPort)
	if err != nil {
		return err
	}
	defer lp.Close()

	layout := pads.NewLayout()
	view := pads.View{}
	for _, k := range pads.AllKeys() {
		cell, _ := layout.CellOf(k)
		view.Pads = append(view.Pads, pads.PadView{Key: k, Cell: cell, State: pads.StateActive, Loaded: true})
	}

	var updates []midi.LEDUpdate
	for _, led := range pads.RenderLEDs(view) {
		updates = append(updates, midi.LEDUpdate{Row: led.Row, Col: led.Col, Color: led.Color, Channel: led.Channel})
	}
	if err := lp.SetLEDBatch(updates); err != nil {
		return err
	}

	fmt.Println("Press Enter to clear...")
	fmt.Scanln()
	return lp.ClearLEDs()
}

// render plays pads through an offline graph, driving the boundary poll
// between chunks, and writes the output to a WAV file
func render(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	out := fs.String("o", "padloop-render.wav", "output file")
	seconds := fs.Float64("seconds", 8, "length to render")
	preset := fs.String("preset", "", "render a saved preset instead of pads")
	rate := fs.Float64("rate", 1, "playback rate")
	pitch := fs.Float64("pitch", 0, "pitch shift in semitones")
	dir := fs.String("dir", cfg.Samples.Dir, "sample directory")
	fs.Parse(args)

	var backend pads.PresetBackend
	name := *preset
	if name != "" {
		backend = &pads.FileBackend{Path: cfg.Presets.Path}
	} else {
		p, err := presetFromArgs(fs.Args())
		if err != nil {
			return err
		}
		backend = &pads.MemoryBackend{}
		if err := backend.WriteAll([]pads.Preset{p}); err != nil {
			return err
		}
		name = p.Name
	}

	lib := audio.NewLibrary(*dir)
	<-lib.LoadAll(context.Background(), pads.AllKeys(), nil)

	graph, err := audio.NewGraph(lib, audio.Config{
		SampleRate: beep.SampleRate(cfg.Audio.SampleRate),
		OutputGain: cfg.Audio.Gain(),
	})
	if err != nil {
		return err
	}
	manager := pads.NewManager(pads.Deps{
		Clock:   graph,
		Library: lib,
		Graph:   graph,
		Sink:    graph,
		Meter:   graph,
		Presets: backend,
	})
	if err := manager.LoadPreset(name); err != nil {
		return err
	}
	if *preset == "" {
		if err := manager.SetParam(pads.PlaybackRate, *rate); err != nil {
			return err
		}
		if err := manager.SetParam(pads.PitchShift, *pitch); err != nil {
			return err
		}
	}

	sr := graph.SampleRate()
	total := sr.N(time.Duration(*seconds * float64(time.Second)))
	s := beep.Take(total, beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		manager.Poll()
		copy(samples, graph.Render(len(samples)))
		return len(samples), true
	}))

	if err := audio.WriteWAV(*out, sr, s); err != nil {
		return err
	}
	v := manager.Snapshot()
	fmt.Printf("wrote %s (%.1fs, cycle %v, %d boundaries)\n", *out, *seconds, v.Effective.Round(time.Millisecond), v.Position.Cycle)
	return nil
}

// presetFromArgs builds an unsaved preset from pad file names or labels
// like drum.1.3.wav
func presetFromArgs(names []string) (pads.Preset, error) {
	if len(names) == 0 {
		return pads.Preset{}, fmt.Errorf("render needs pads or -preset")
	}
	p := pads.Preset{
		Name:       "render",
		ActivePads: make(map[pads.Category][]string),
		Effects:    pads.DefaultParams(),
	}
	for _, n := range names {
		if !strings.HasSuffix(n, ".wav") {
			n += ".wav"
		}
		k, err := pads.ParseKey(n)
		if err != nil {
			return pads.Preset{}, err
		}
		p.ActivePads[k.Category] = append(p.ActivePads[k.Category], k.Name())
	}
	return p, nil
}
