package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gopxl/beep"

	"go-padloop/audio"
	"go-padloop/config"
	"go-padloop/debug"
	"go-padloop/midi"
	"go-padloop/pads"
	"go-padloop/theme"
	"go-padloop/tui"
)

func main() {
	samplesDir := flag.String("samples", "", "sample directory (overrides config)")
	debugLog := flag.Bool("debug", false, "write a debug log to ~/.config/go-padloop/debug.log")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v (using defaults)\n", err)
		cfg = config.DefaultConfig()
	}
	if *samplesDir != "" {
		cfg.Samples.Dir = *samplesDir
	}
	if _, err := debug.Setup(cfg, *debugLog); err != nil {
		fmt.Fprintf(os.Stderr, "debug log: %v\n", err)
	}
	defer debug.Disable()

	// Load theme
	palette, err := theme.LoadGPL(cfg.UI.Palette)
	if err != nil {
		fmt.Fprintf(os.Stderr, "palette: %v (using default)\n", err)
		palette = theme.DefaultPalette()
	}
	th := theme.New(palette)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Samples load in the background; pads without a buffer stay silent
	lib := audio.NewLibrary(cfg.Samples.Dir)
	loaded := lib.LoadAll(ctx, pads.AllKeys(), nil)

	graph, err := audio.NewGraph(lib, audio.Config{
		SampleRate: beep.SampleRate(cfg.Audio.SampleRate),
		Buffer:     cfg.Audio.Buffer(),
		OutputGain: cfg.Audio.Gain(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "audio: %v\n", err)
		os.Exit(1)
	}
	notice := ""
	if err := graph.Start(); err != nil {
		notice = fmt.Sprintf("no audio output (%v), running silent", err)
	}
	defer graph.Close()

	manager := pads.NewManager(pads.Deps{
		Clock:    graph,
		Library:  lib,
		Graph:    graph,
		Sink:     graph,
		Meter:    graph,
		Recorder: graph.Recorder(),
		Presets:  &pads.FileBackend{Path: cfg.Presets.Path},
		Timing: pads.Timing{
			StartDelay:    cfg.Scheduler.StartDelay(),
			Lookahead:     cfg.Scheduler.Lookahead(),
			FallbackCycle: cfg.Scheduler.FallbackCycle(),
			BPM:           cfg.Scheduler.BPM,
		},
		PollInterval: cfg.Scheduler.PollInterval(),
		RecordDir:    cfg.Audio.RecordingsDir,
		NoteBase:     uint8(cfg.UI.NoteBase),
	})
	manager.StartRuntime(ctx)

	// Create MIDI device manager (handles hot-plug)
	deviceMgr := midi.NewDeviceManager()
	for _, c := range cfg.AutoConnectControllers() {
		if c.Type == config.ControllerKeyboard {
			deviceMgr.WatchKeyboard(c.PortName, c.InputChannel)
		}
	}
	go deviceMgr.Run(ctx)

	// Create and run TUI
	m := tui.NewModel(ctx, manager, deviceMgr, th, notice)
	m.LastPreset = cfg.UI.LastPreset
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())

	restore := cfg.UI.LastPreset
	go func() {
		select {
		case <-loaded:
		case <-ctx.Done():
			return
		}
		if missing := lib.Missing(); len(missing) > 0 {
			p.Send(tui.NoticeMsg(fmt.Sprintf("%d of %d samples missing from %s (padtool samples lists them)",
				len(missing), pads.NumPads, lib.Dir())))
		}
		if restore != "" {
			if err := manager.LoadPreset(restore); err != nil {
				debug.Log("preset", "restore %q: %v", restore, err)
			}
		}
	}()

	final, err := p.Run()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	// Remember the last preset for the next session
	if fm, ok := final.(tui.Model); ok && fm.LastPreset != cfg.UI.LastPreset {
		cfg.UI.LastPreset = fm.LastPreset
		if err := cfg.Save(); err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
		}
	}
}
