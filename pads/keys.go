package pads

import (
	"fmt"
	"strconv"
	"strings"
)

// Category groups pads that share a concurrency limit
type Category string

const (
	Drum  Category = "drum"
	Bass  Category = "bass"
	Sound Category = "sound"
)

// Categories in scheduling order
var Categories = [3]Category{Drum, Bass, Sound}

// Bank sizes per category
const (
	NumDrums  = 10
	NumBasses = 10
	NumSounds = 16
	NumPads   = NumDrums + NumBasses + NumSounds
)

// Limit returns how many keys of the category may be active at once
func (c Category) Limit() int {
	switch c {
	case Drum:
		return 1
	case Bass:
		return 1
	case Sound:
		return 3
	}
	return 0
}

// Size returns how many pads the category has
func (c Category) Size() int {
	switch c {
	case Drum:
		return NumDrums
	case Bass:
		return NumBasses
	case Sound:
		return NumSounds
	}
	return 0
}

// Valid reports whether c is one of the three known categories
func (c Category) Valid() bool {
	return c.Size() > 0
}

// filePrefix is the sample pack naming scheme (note the plural for sounds)
func (c Category) filePrefix() string {
	if c == Sound {
		return "sounds.1."
	}
	return string(c) + ".1."
}

// label is the short pad label shown in the grid
func (c Category) label() string {
	switch c {
	case Drum:
		return "DR"
	case Bass:
		return "BA"
	}
	return "SD"
}

// Key identifies one sample pad. Index is 1-based within its category.
type Key struct {
	Category Category
	Index    int
}

// Valid reports whether the key names a pad in the bank
func (k Key) Valid() bool {
	return k.Category.Valid() && k.Index >= 1 && k.Index <= k.Category.Size()
}

// Name returns the sample file name, e.g. "drum.1.3.wav"
func (k Key) Name() string {
	return k.Category.filePrefix() + strconv.Itoa(k.Index) + ".wav"
}

// String returns the pad label, e.g. "DR 3"
func (k Key) String() string {
	return fmt.Sprintf("%s %d", k.Category.label(), k.Index)
}

// ParseKey parses a sample file name back into a key
func ParseKey(name string) (Key, error) {
	for _, c := range Categories {
		prefix := c.filePrefix()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".wav") {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".wav"))
		if err != nil {
			return Key{}, fmt.Errorf("%w: %q", ErrUnknownKey, name)
		}
		k := Key{Category: c, Index: idx}
		if !k.Valid() {
			return Key{}, fmt.Errorf("%w: %q", ErrUnknownKey, name)
		}
		return k, nil
	}
	return Key{}, fmt.Errorf("%w: %q", ErrUnknownKey, name)
}

// KeysOf returns every key of a category in index order
func KeysOf(c Category) []Key {
	keys := make([]Key, 0, c.Size())
	for i := 1; i <= c.Size(); i++ {
		keys = append(keys, Key{Category: c, Index: i})
	}
	return keys
}

// AllKeys returns the whole bank: drums, basses, then sounds
func AllKeys() []Key {
	keys := make([]Key, 0, NumPads)
	for _, c := range Categories {
		keys = append(keys, KeysOf(c)...)
	}
	return keys
}
