package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// ControllerType identifies the kind of controller
type ControllerType string

const (
	ControllerLaunchpadX    ControllerType = "launchpad-x"
	ControllerLaunchpadMini ControllerType = "launchpad-mini"
	ControllerLaunchpadPro  ControllerType = "launchpad-pro"
	ControllerKeyboard      ControllerType = "keyboard"
)

// ControllerConfig defines a saved controller configuration
type ControllerConfig struct {
	PortName     string         `json:"portName"`
	Type         ControllerType `json:"type"`
	AutoConnect  bool           `json:"autoConnect"`
	InputChannel int            `json:"inputChannel,omitempty"` // for keyboards, 0 = omni
}

// SamplesConfig locates the sample bank
type SamplesConfig struct {
	Dir string `json:"dir,omitempty"`
}

// PresetsConfig locates the preset file
type PresetsConfig struct {
	Path string `json:"path,omitempty"`
}

// AudioConfig sets up the output device
type AudioConfig struct {
	SampleRate    int    `json:"sampleRate,omitempty"`
	BufferMs      int    `json:"bufferMs,omitempty"`
	OutputVolume  int    `json:"outputVolume"` // 0-100 device trim
	RecordingsDir string `json:"recordingsDir,omitempty"`
}

// SchedulerConfig tunes the cycle clock
type SchedulerConfig struct {
	LookaheadMs     int     `json:"lookaheadMs,omitempty"`
	PollMs          int     `json:"pollMs,omitempty"`
	StartDelayMs    int     `json:"startDelayMs,omitempty"`
	FallbackCycleMs int     `json:"fallbackCycleMs,omitempty"`
	BPM             float64 `json:"bpm,omitempty"`
}

// UIConfig stores UI preferences
type UIConfig struct {
	Palette    string `json:"palette,omitempty"` // GPL file, empty = built-in
	NoteBase   int    `json:"noteBase,omitempty"`
	LastPreset string `json:"lastPreset,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	Controllers []ControllerConfig `json:"controllers,omitempty"`
	Samples     SamplesConfig      `json:"samples"`
	Presets     PresetsConfig      `json:"presets"`
	Audio       AudioConfig        `json:"audio"`
	Scheduler   SchedulerConfig    `json:"scheduler"`
	UI          UIConfig           `json:"ui,omitempty"`

	// Debug is set from the environment, never saved
	Debug bool `json:"-"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	dir, _ := ConfigDir()
	return &Config{
		Controllers: []ControllerConfig{
			{
				PortName:    "Launchpad X LPX MIDI",
				Type:        ControllerLaunchpadX,
				AutoConnect: true,
			},
		},
		Samples: SamplesConfig{Dir: "samples"},
		Presets: PresetsConfig{Path: filepath.Join(dir, "presets.json")},
		Audio: AudioConfig{
			SampleRate:    44100,
			BufferMs:      50,
			OutputVolume:  100,
			RecordingsDir: filepath.Join(dir, "recordings"),
		},
		Scheduler: SchedulerConfig{
			LookaheadMs:     120,
			PollMs:          40,
			StartDelayMs:    50,
			FallbackCycleMs: 4000,
			BPM:             110,
		},
		UI: UIConfig{
			NoteBase: 36,
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "go-padloop"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from disk, or returns defaults if not found.
// Fields missing from the file keep their defaults, and environment
// overrides are applied last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		cfg := DefaultConfig()
		cfg.ApplyEnv()
		return cfg, nil
	}
	return LoadFile(path)
}

// LoadFile reads a config from a specific path
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	cfg.ApplyEnv()
	cfg.clamp()
	return cfg, nil
}

// ApplyEnv applies PADLOOP_* environment overrides
func (c *Config) ApplyEnv() {
	if dir := os.Getenv("PADLOOP_SAMPLE_DIR"); dir != "" {
		c.Samples.Dir = dir
	}

	// Master volume (0-100)
	if volume := os.Getenv("PADLOOP_MASTER_VOLUME"); volume != "" {
		if val, err := strconv.Atoi(volume); err == nil {
			c.Audio.OutputVolume = val
		}
	}

	if sampleRate := os.Getenv("PADLOOP_SAMPLE_RATE"); sampleRate != "" {
		if val, err := strconv.Atoi(sampleRate); err == nil && val > 0 {
			c.Audio.SampleRate = val
		}
	}

	if dbg := os.Getenv("PADLOOP_DEBUG"); dbg != "" {
		if val, err := strconv.ParseBool(dbg); err == nil {
			c.Debug = val
		}
	}
}

func (c *Config) clamp() {
	if c.Audio.OutputVolume < 0 {
		c.Audio.OutputVolume = 0
	}
	if c.Audio.OutputVolume > 100 {
		c.Audio.OutputVolume = 100
	}
	if c.UI.NoteBase < 0 || c.UI.NoteBase > 127-36 {
		c.UI.NoteBase = DefaultConfig().UI.NoteBase
	}
}

// Save writes the config to disk
func (c *Config) Save() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	// Create directory if it doesn't exist
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	path, err := ConfigPath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// Lookahead returns the boundary commit lead
func (s SchedulerConfig) Lookahead() time.Duration { return ms(s.LookaheadMs) }

// PollInterval returns the boundary poll period
func (s SchedulerConfig) PollInterval() time.Duration { return ms(s.PollMs) }

// StartDelay returns the lead before a fresh cycle
func (s SchedulerConfig) StartDelay() time.Duration { return ms(s.StartDelayMs) }

// FallbackCycle returns the cycle length used when no sample has loaded
func (s SchedulerConfig) FallbackCycle() time.Duration { return ms(s.FallbackCycleMs) }

// Buffer returns the speaker buffer length
func (a AudioConfig) Buffer() time.Duration { return ms(a.BufferMs) }

// Gain returns OutputVolume as 0-1
func (a AudioConfig) Gain() float64 { return float64(a.OutputVolume) / 100 }

// FindController finds a controller config by port name
func (c *Config) FindController(portName string) *ControllerConfig {
	for i := range c.Controllers {
		if c.Controllers[i].PortName == portName {
			return &c.Controllers[i]
		}
	}
	return nil
}

// AddController adds or updates a controller config
func (c *Config) AddController(ctrl ControllerConfig) {
	for i := range c.Controllers {
		if c.Controllers[i].PortName == ctrl.PortName {
			c.Controllers[i] = ctrl
			return
		}
	}
	c.Controllers = append(c.Controllers, ctrl)
}

// AutoConnectControllers returns controllers with autoConnect enabled
func (c *Config) AutoConnectControllers() []ControllerConfig {
	var result []ControllerConfig
	for _, ctrl := range c.Controllers {
		if ctrl.AutoConnect {
			result = append(result, ctrl)
		}
	}
	return result
}
