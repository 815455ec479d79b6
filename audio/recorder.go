package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
	"github.com/pkg/errors"

	"go-padloop/debug"
)

// MaxTake caps a single recording
const MaxTake = 10 * time.Minute

// ErrNothingRecorded is returned when exporting an empty take
var ErrNothingRecorded = errors.New("nothing recorded")

// Recorder taps the master output into memory and exports WAV files
type Recorder struct {
	sr beep.SampleRate

	mu        sync.Mutex
	recording bool
	take      [][2]float32
	limit     int
	now       func() time.Time
}

// NewRecorder creates a recorder for a given output rate
func NewRecorder(sr beep.SampleRate) *Recorder {
	return &Recorder{sr: sr, limit: sr.N(MaxTake), now: time.Now}
}

// Start begins a new take, discarding the previous one
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recording {
		return nil
	}
	r.take = r.take[:0]
	r.recording = true
	debug.Log("record", "take started")
	return nil
}

// Stop ends the take and returns its length
func (r *Recorder) Stop() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recording = false
	d := r.sr.D(len(r.take))
	debug.Log("record", "take stopped at %v", d)
	return d
}

// Recording reports whether a take is in progress
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Elapsed returns the length of the current or last take
func (r *Recorder) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sr.D(len(r.take))
}

// capture appends output samples while recording
func (r *Recorder) capture(samples [][2]float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return
	}
	for _, s := range samples {
		if len(r.take) >= r.limit {
			r.recording = false
			debug.Log("record", "take reached %v, stopping", MaxTake)
			return
		}
		r.take = append(r.take, [2]float32{float32(s[0]), float32(s[1])})
	}
}

// Export writes the last take to dir as a 16-bit stereo WAV
func (r *Recorder) Export(dir string) (string, error) {
	r.mu.Lock()
	take := make([][2]float32, len(r.take))
	copy(take, r.take)
	r.mu.Unlock()

	if len(take) == 0 {
		return "", ErrNothingRecorded
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrap(err, "create recordings dir")
	}
	name := fmt.Sprintf("padloop-%s.wav", r.now().Format("2006-01-02_15-04-05"))
	path := filepath.Join(dir, name)

	if err := WriteWAV(path, r.sr, takeStreamer(take)); err != nil {
		return "", err
	}
	debug.Log("record", "exported %s (%v)", path, r.sr.D(len(take)))
	return path, nil
}

// WriteWAV encodes a finite streamer to a 16-bit stereo WAV file
func WriteWAV(path string, sr beep.SampleRate, s beep.Streamer) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", filepath.Base(path))
	}
	format := beep.Format{SampleRate: sr, NumChannels: 2, Precision: 2}
	if err := wav.Encode(f, s, format); err != nil {
		f.Close()
		return errors.Wrapf(err, "encode %s", filepath.Base(path))
	}
	return errors.Wrapf(f.Close(), "close %s", filepath.Base(path))
}

// takeStreamer plays a recorded take once
func takeStreamer(take [][2]float32) beep.Streamer {
	pos := 0
	return beep.StreamerFunc(func(samples [][2]float64) (n int, ok bool) {
		if pos >= len(take) {
			return 0, false
		}
		for n < len(samples) && pos < len(take) {
			samples[n] = [2]float64{float64(take[pos][0]), float64(take[pos][1])}
			n++
			pos++
		}
		return n, true
	})
}
