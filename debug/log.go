package debug

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	file    *os.File
	mu      sync.Mutex
	enabled bool

	// last lines logged, kept for the monitor even without a file
	recent     [64]string
	recentNext int
	recentLen  int
)

// Enable starts debug logging to ~/.config/drumbank/debug.log
func Enable() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	return EnableFile(filepath.Join(homeDir, ".config", "drumbank", "debug.log"))
}

// EnableFile starts debug logging to path, truncating it
func EnableFile(path string) error {
	mu.Lock()
	defer mu.Unlock()

	if enabled {
		return nil
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	file = f
	enabled = true

	// Write directly (can't call Log - we hold the mutex)
	writeLocked("debug", "=== Debug logging started ===")
	return nil
}

// Disable stops debug logging
func Disable() {
	mu.Lock()
	defer mu.Unlock()

	if file != nil {
		file.Close()
		file = nil
	}
	enabled = false
}

// Log writes a message to the debug log
func Log(category, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)

	mu.Lock()
	defer mu.Unlock()
	writeLocked(category, msg)
}

func writeLocked(category, msg string) {
	ts := time.Now().Format("15:04:05.000")
	line := fmt.Sprintf("[%s] %-10s %s", ts, category, msg)

	recent[recentNext] = line
	recentNext = (recentNext + 1) % len(recent)
	if recentLen < len(recent) {
		recentLen++
	}

	if !enabled || file == nil {
		return
	}
	fmt.Fprintln(file, line)
	file.Sync() // flush immediately so we see logs even on crash
}

// Recent returns up to n of the latest lines, oldest first
func Recent(n int) []string {
	mu.Lock()
	defer mu.Unlock()
	if n > recentLen {
		n = recentLen
	}
	out := make([]string, 0, n)
	for i := recentLen - n; i < recentLen; i++ {
		start := recentNext - recentLen
		out = append(out, recent[(start+i+len(recent))%len(recent)])
	}
	return out
}

// LogEvery logs only every N calls (use for high-frequency events)
var counters = make(map[string]int)

func LogEvery(n int, category, format string, args ...any) {
	mu.Lock()
	key := category + format
	counters[key]++
	count := counters[key]
	mu.Unlock()

	if count%n == 0 {
		Log(category, format+" (every %d, count=%d)", append(args, n, count)...)
	}
}
