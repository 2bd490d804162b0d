package tui

import (
	"fmt"
	"sync"
	"time"

	"go-drumbank/engine"
)

// Entry is one diagnostics report as shown in the monitor
type Entry struct {
	At     time.Time
	Report engine.Report
}

func (e Entry) String() string {
	r := e.Report
	s := fmt.Sprintf("%s t%d %-10s", e.At.Format("15:04:05"), r.Track+1, r.Op)
	if r.Index >= 0 {
		s += fmt.Sprintf(" idx %d", r.Index)
	}
	if r.Err != nil {
		s += " " + r.Err.Error()
	}
	if r.Detail != "" {
		s += " " + r.Detail
	}
	return s
}

// Feed keeps the latest reports for display. It implements
// engine.Diagnostics and never blocks the engine.
type Feed struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
	now     func() time.Time
	total   map[string]uint64

	Updates chan struct{}
}

// NewFeed keeps up to size entries
func NewFeed(size int) *Feed {
	if size < 1 {
		size = 1
	}
	return &Feed{
		entries: make([]Entry, size),
		now:     time.Now,
		total:   map[string]uint64{},
		Updates: make(chan struct{}, 1),
	}
}

// Report implements engine.Diagnostics
func (f *Feed) Report(r engine.Report) {
	f.mu.Lock()
	f.entries[f.next] = Entry{At: f.now(), Report: r}
	f.next = (f.next + 1) % len(f.entries)
	if f.next == 0 {
		f.full = true
	}
	f.total[r.Op]++
	f.mu.Unlock()

	select {
	case f.Updates <- struct{}{}:
	default:
	}
}

// Latest returns up to n entries, newest first
func (f *Feed) Latest(n int) []Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	size := f.next
	if f.full {
		size = len(f.entries)
	}
	if n > size {
		n = size
	}
	out := make([]Entry, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, f.entries[(f.next-i+len(f.entries))%len(f.entries)])
	}
	return out
}

// Count returns how many reports of an op were seen
func (f *Feed) Count(op string) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total[op]
}
