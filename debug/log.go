// Package debug writes a timestamped, category-tagged trace to a file in
// the padloop config directory. Logging is off until Enable or Setup turns
// it on; every call is a cheap no-op while off.
package debug

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"go-padloop/config"
)

// FileName is the log file inside the config directory
const FileName = "debug.log"

var (
	file     *os.File
	path     string
	mu       sync.Mutex
	enabled  bool
	counters = make(map[string]int)
)

// Setup enables logging when force is set (the -debug flag) or the config
// asks for it (config.json "debug" or PADLOOP_DEBUG). It returns the log
// path, empty when logging stays off.
func Setup(cfg *config.Config, force bool) (string, error) {
	if !force && (cfg == nil || !cfg.Debug) {
		return "", nil
	}
	dir, err := config.ConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "debug log dir")
	}
	if err := Enable(dir); err != nil {
		return "", err
	}
	return Path(), nil
}

// Enable starts logging to dir/debug.log, truncating any previous run
func Enable(dir string) error {
	mu.Lock()
	defer mu.Unlock()

	if enabled {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "debug log dir")
	}

	p := filepath.Join(dir, FileName)
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrap(err, "debug log")
	}

	file, path, enabled = f, p, true
	counters = make(map[string]int)
	write("debug", fmt.Sprintf("=== padloop debug log (pid %d) ===", os.Getpid()))
	return nil
}

// Disable stops logging and closes the file
func Disable() {
	mu.Lock()
	defer mu.Unlock()

	if file != nil {
		file.Close()
		file = nil
	}
	enabled = false
}

// Enabled reports whether logging is on
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// Path returns the current log file, empty when logging never started
func Path() string {
	mu.Lock()
	defer mu.Unlock()
	return path
}

// Log writes one line under a category
func Log(category, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()

	if !enabled || file == nil {
		return
	}
	write(category, fmt.Sprintf(format, args...))
}

// write requires mu. Each line is synced so a crash keeps the tail.
func write(category, msg string) {
	ts := time.Now().Format("15:04:05.000")
	fmt.Fprintf(file, "[%s] %-10s %s\n", ts, category, msg)
	file.Sync()
}

// LogEvery logs every nth call with the same category and format. Used for
// the boundary poll and the audio callback.
func LogEvery(n int, category, format string, args ...any) {
	mu.Lock()
	if !enabled || file == nil || n <= 0 {
		mu.Unlock()
		return
	}
	key := category + format
	counters[key]++
	count := counters[key]
	if count%n == 0 {
		write(category, fmt.Sprintf(format, args...)+fmt.Sprintf(" (every %d, count=%d)", n, count))
	}
	mu.Unlock()
}
