package pads

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go-padloop/debug"
)

// Preset is a named snapshot of active pads and effect parameters
type Preset struct {
	Name       string                `json:"name"`
	ActivePads map[Category][]string `json:"activePads"`
	Effects    Params                `json:"effects"`
	SavedAt    int64                 `json:"savedAt"` // unix milliseconds
}

// SavedTime returns SavedAt as a time
func (p Preset) SavedTime() time.Time {
	return time.UnixMilli(p.SavedAt)
}

// Keys returns the preset's pads, at most limit per category. Names that
// don't parse, sit under the wrong category or repeat are skipped.
func (p Preset) Keys() []Key {
	var keys []Key
	seen := make(map[Key]bool)
	for _, c := range Categories {
		n := 0
		for _, name := range p.ActivePads[c] {
			if n >= c.Limit() {
				break
			}
			k, err := ParseKey(name)
			if err != nil || k.Category != c {
				debug.Log("preset", "%q: skipping pad %q", p.Name, name)
				continue
			}
			if seen[k] {
				continue
			}
			seen[k] = true
			keys = append(keys, k)
			n++
		}
	}
	return keys
}

// PresetBackend persists the whole preset list
type PresetBackend interface {
	ReadAll() ([]Preset, error)
	WriteAll([]Preset) error
}

// FileBackend stores presets as a JSON array in one file
type FileBackend struct {
	Path string
}

// ReadAll loads every preset. A missing file is an empty list.
func (b *FileBackend) ReadAll() ([]Preset, error) {
	data, err := os.ReadFile(b.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Preset{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	var presets []Preset
	if err := json.Unmarshal(data, &presets); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrStorage, b.Path, err)
	}
	return presets, nil
}

// WriteAll replaces the file contents
func (b *FileBackend) WriteAll(presets []Preset) error {
	if err := os.MkdirAll(filepath.Dir(b.Path), 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}

	data, err := json.MarshalIndent(presets, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}

	tmp := b.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if err := os.Rename(tmp, b.Path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

// MemoryBackend keeps presets in memory
type MemoryBackend struct {
	mu      sync.Mutex
	presets []Preset
	Err     error // returned by every call when set
}

func (b *MemoryBackend) ReadAll() ([]Preset, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, b.Err)
	}
	return append([]Preset{}, b.presets...), nil
}

func (b *MemoryBackend) WriteAll(presets []Preset) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, b.Err)
	}
	b.presets = append([]Preset(nil), presets...)
	return nil
}

// PresetStore captures, applies and persists presets
type PresetStore struct {
	backend PresetBackend
	slots   *SlotManager
	sched   *Scheduler
	effects *EffectsStore
	now     func() time.Time
}

// NewPresetStore creates a preset store
func NewPresetStore(backend PresetBackend, slots *SlotManager, sched *Scheduler, effects *EffectsStore) *PresetStore {
	return &PresetStore{
		backend: backend,
		slots:   slots,
		sched:   sched,
		effects: effects,
		now:     time.Now,
	}
}

// Capture snapshots the current active pads and effects. It has no side
// effects.
func (s *PresetStore) Capture(name string) Preset {
	p := Preset{
		Name:       name,
		ActivePads: make(map[Category][]string, len(Categories)),
		Effects:    s.effects.Snapshot(),
		SavedAt:    s.now().UnixMilli(),
	}
	for _, c := range Categories {
		names := []string{}
		for _, k := range s.slots.ActiveKeys(c) {
			names = append(names, k.Name())
		}
		p.ActivePads[c] = names
	}
	return p
}

// Apply pushes the preset's effects, silences everything and starts a fresh
// cycle with the preset's pads
func (s *PresetStore) Apply(p Preset) error {
	if err := s.effects.Apply(p.Effects); err != nil {
		debug.Log("preset", "%q: %v", p.Name, err)
	}

	s.sched.StopAll()

	keys := p.Keys()
	if len(keys) == 0 {
		return nil
	}
	return s.sched.StartNewCycle(keys)
}

// Save captures the current state under name, replacing any preset with
// the same name
func (s *PresetStore) Save(name string) (Preset, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Preset{}, ErrEmptyName
	}

	presets, err := s.backend.ReadAll()
	if err != nil {
		return Preset{}, err
	}

	p := s.Capture(name)
	presets = without(presets, name)
	presets = append(presets, p)
	if err := s.backend.WriteAll(presets); err != nil {
		return Preset{}, err
	}
	debug.Log("preset", "saved %q", name)
	return p, nil
}

// Load finds a preset by name and applies it
func (s *PresetStore) Load(name string) error {
	p, err := s.Find(name)
	if err != nil {
		return err
	}
	debug.Log("preset", "loading %q", name)
	return s.Apply(p)
}

// Find returns a stored preset by name
func (s *PresetStore) Find(name string) (Preset, error) {
	presets, err := s.backend.ReadAll()
	if err != nil {
		return Preset{}, err
	}
	for _, p := range presets {
		if p.Name == name {
			return p, nil
		}
	}
	return Preset{}, fmt.Errorf("%w: %q", ErrPresetNotFound, name)
}

// Delete removes a preset by name
func (s *PresetStore) Delete(name string) error {
	presets, err := s.backend.ReadAll()
	if err != nil {
		return err
	}
	kept := without(presets, name)
	if len(kept) == len(presets) {
		return fmt.Errorf("%w: %q", ErrPresetNotFound, name)
	}
	if err := s.backend.WriteAll(kept); err != nil {
		return err
	}
	debug.Log("preset", "deleted %q", name)
	return nil
}

// List returns every stored preset in save order
func (s *PresetStore) List() ([]Preset, error) {
	return s.backend.ReadAll()
}

func without(presets []Preset, name string) []Preset {
	kept := make([]Preset, 0, len(presets))
	for _, p := range presets {
		if p.Name != name {
			kept = append(kept, p)
		}
	}
	return kept
}

// IsStorageError reports whether err came from the preset backend
func IsStorageError(err error) bool {
	return errors.Is(err, ErrStorage)
}
