package audio

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"go-padloop/debug"
	"go-padloop/pads"
)

// ErrMissing marks a sample that could not be loaded
var ErrMissing = errors.New("sample missing")

// loadConcurrency bounds parallel decodes
const loadConcurrency = 4

// Library decodes WAV samples into memory buffers keyed by pad. Loading is
// best effort: a failed key is recorded as missing and plays silently.
type Library struct {
	dir string

	mu      sync.RWMutex
	buffers map[pads.Key]*beep.Buffer
	missing map[pads.Key]error
}

// NewLibrary creates a library reading from dir
func NewLibrary(dir string) *Library {
	return &Library{
		dir:     dir,
		buffers: make(map[pads.Key]*beep.Buffer),
		missing: make(map[pads.Key]error),
	}
}

// Dir returns the sample directory
func (l *Library) Dir() string {
	return l.dir
}

// Path returns the file path for a key
func (l *Library) Path(k pads.Key) string {
	return filepath.Join(l.dir, k.Name())
}

// Load decodes one sample synchronously
func (l *Library) Load(k pads.Key) error {
	buf, err := decodeFile(l.Path(k))
	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.missing[k] = err
		delete(l.buffers, k)
		debug.Log("samples", "%s: %v", k.Name(), err)
		return err
	}
	l.buffers[k] = buf
	delete(l.missing, k)
	return nil
}

// LoadAll starts loading keys in the background and returns a channel
// closed once every key has been attempted. onLoaded, if set, runs after
// each key regardless of outcome.
func (l *Library) LoadAll(ctx context.Context, keys []pads.Key, onLoaded func(pads.Key)) <-chan struct{} {
	done := make(chan struct{})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)

	go func() {
		defer close(done)
		started := time.Now()
		for _, k := range keys {
			k := k
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				l.Load(k) // failures are recorded, not fatal
				if onLoaded != nil {
					onLoaded(k)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			debug.Log("samples", "load cancelled: %v", err)
			return
		}
		debug.Log("samples", "loaded %d/%d in %v", l.LoadedCount(), len(keys), time.Since(started).Round(time.Millisecond))
	}()

	return done
}

// Buffer returns the decoded buffer for a key
func (l *Library) Buffer(k pads.Key) (*beep.Buffer, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.buffers[k]
	return b, ok
}

// Duration returns the length of a loaded sample
func (l *Library) Duration(k pads.Key) (time.Duration, bool) {
	b, ok := l.Buffer(k)
	if !ok {
		return 0, false
	}
	return b.Format().SampleRate.D(b.Len()), true
}

// Loaded reports whether a key has a buffer
func (l *Library) Loaded(k pads.Key) bool {
	_, ok := l.Buffer(k)
	return ok
}

// LoadedCount returns how many keys have buffers
func (l *Library) LoadedCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buffers)
}

// MissingKey is a key that failed to load
type MissingKey struct {
	Key pads.Key
	Err error
}

// Missing returns every failed key in bank order
func (l *Library) Missing() []MissingKey {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]MissingKey, 0, len(l.missing))
	for k, err := range l.missing {
		out = append(out, MissingKey{Key: k, Err: err})
	}
	sort.Slice(out, func(i, j int) bool {
		return bankIndex(out[i].Key) < bankIndex(out[j].Key)
	})
	return out
}

func bankIndex(k pads.Key) int {
	idx := k.Index
	for _, c := range pads.Categories {
		if c == k.Category {
			return idx
		}
		idx += c.Size()
	}
	return idx
}

// decodeFile reads a whole WAV file into a buffer
func decodeFile(path string) (*beep.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ErrMissing, filepath.Base(path))
		}
		return nil, errors.Wrapf(err, "open %s", filepath.Base(path))
	}
	defer f.Close()

	s, format, err := wav.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", filepath.Base(path))
	}
	defer s.Close()

	buf := beep.NewBuffer(format)
	buf.Append(s)
	if err := s.Err(); err != nil {
		return nil, errors.Wrapf(err, "read %s", filepath.Base(path))
	}
	if buf.Len() == 0 {
		return nil, errors.Errorf("%s: no audio frames", filepath.Base(path))
	}
	return buf, nil
}
