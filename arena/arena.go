// Package arena is the bounded memory region that holds resident sample
// payloads. The whole backing buffer is allocated once; loads reserve a
// contiguous extent, fill it, then commit or release it. When free space is
// split into gaps too small for a reservation, committed regions are moved
// down to close them.
package arena

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrBusy is returned when a reservation is requested while another one is
// still pending.
var ErrBusy = errors.New("arena: reservation already pending")

// CapacityError reports a request the arena cannot hold.
type CapacityError struct {
	Requested int
	Available int
	Limit     string // which bound was hit
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("arena: %d bytes requested, %d available (%s)", e.Requested, e.Available, e.Limit)
}

type extent struct {
	off, n int
}

// Arena is a fixed-capacity allocator over one preallocated buffer.
type Arena struct {
	mu      sync.Mutex
	buf     []byte
	ceiling int
	free    []extent  // sorted by offset, coalesced
	live    []*Region // committed regions
	used    int       // committed bytes
	pending *Reservation
	moves   int
}

// New allocates an arena of capacity bytes with a per-sample ceiling.
func New(capacity, ceiling int) (*Arena, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("arena capacity must be positive, got %d", capacity)
	}
	if ceiling <= 0 || ceiling >= capacity {
		return nil, fmt.Errorf("arena per-sample ceiling %d must be in (0, %d)", ceiling, capacity)
	}
	return &Arena{
		buf:     make([]byte, capacity),
		ceiling: ceiling,
		free:    []extent{{off: 0, n: capacity}},
	}, nil
}

// Capacity returns the total size in bytes
func (a *Arena) Capacity() int { return len(a.buf) }

// Ceiling returns the per-sample limit in bytes
func (a *Arena) Ceiling() int { return a.ceiling }

// Used returns the bytes held by committed samples. A pending reservation is
// not counted.
func (a *Arena) Used() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.used
}

// Free returns the bytes a new reservation could claim.
func (a *Arena) Free() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.freeLocked()
}

func (a *Arena) freeLocked() int {
	free := len(a.buf) - a.used
	if a.pending != nil {
		free -= a.pending.n
	}
	return free
}

// Pending reports whether a reservation is in flight
func (a *Arena) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending != nil
}

// Check reports whether n bytes could be reserved right now without reserving.
func (a *Arena) Check(n int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n > a.ceiling {
		return &CapacityError{Requested: n, Available: a.ceiling, Limit: "per-sample ceiling"}
	}
	if free := a.freeLocked(); n > free {
		return &CapacityError{Requested: n, Available: free, Limit: "free capacity"}
	}
	return nil
}

func (a *Arena) fitLocked(n int) (int, error) {
	if n > a.ceiling {
		return -1, &CapacityError{Requested: n, Available: a.ceiling, Limit: "per-sample ceiling"}
	}
	free := a.freeLocked()
	if n > free {
		return -1, &CapacityError{Requested: n, Available: free, Limit: "free capacity"}
	}
	for i, e := range a.free {
		if e.n >= n {
			return i, nil
		}
	}
	// Reserve only gets here with nothing pending, so every allocated byte
	// belongs to a committed region that may move
	a.compactLocked()
	return 0, nil
}

// compactLocked slides every committed region to the front of the buffer,
// leaving one free extent at the end.
func (a *Arena) compactLocked() {
	sort.Slice(a.live, func(i, j int) bool { return a.live[i].off < a.live[j].off })
	off := 0
	for _, g := range a.live {
		if g.off != off {
			copy(a.buf[off:off+g.n], a.buf[g.off:g.off+g.n])
			g.off = off
		}
		off += g.n
	}
	a.free = a.free[:0]
	if off < len(a.buf) {
		a.free = append(a.free, extent{off: off, n: len(a.buf) - off})
	}
	a.moves++
}

// Compactions returns how many times committed regions were moved
func (a *Arena) Compactions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.moves
}

// Reserve claims n contiguous bytes. Only one reservation may be pending.
func (a *Arena) Reserve(n int) (*Reservation, error) {
	if n <= 0 {
		return nil, fmt.Errorf("arena: invalid reservation size %d", n)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pending != nil {
		return nil, ErrBusy
	}
	i, err := a.fitLocked(n)
	if err != nil {
		return nil, err
	}

	e := a.free[i]
	if e.n == n {
		a.free = append(a.free[:i], a.free[i+1:]...)
	} else {
		a.free[i] = extent{off: e.off + n, n: e.n - n}
	}

	r := &Reservation{arena: a, off: e.off, n: n}
	a.pending = r
	return r, nil
}

// insertLocked returns an extent to the free list and merges neighbours.
func (a *Arena) insertLocked(x extent) {
	i := 0
	for i < len(a.free) && a.free[i].off < x.off {
		i++
	}
	a.free = append(a.free, extent{})
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = x

	if i+1 < len(a.free) && a.free[i].off+a.free[i].n == a.free[i+1].off {
		a.free[i].n += a.free[i+1].n
		a.free = append(a.free[:i+1], a.free[i+2:]...)
	}
	if i > 0 && a.free[i-1].off+a.free[i-1].n == a.free[i].off {
		a.free[i-1].n += a.free[i].n
		a.free = append(a.free[:i], a.free[i+1:]...)
	}
}

// Stats returns arena occupancy info.
func (a *Arena) Stats() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return fmt.Sprintf("arena: %d/%d bytes used, %d extents free, %d compactions, pending=%t",
		a.used, len(a.buf), len(a.free), a.moves, a.pending != nil)
}

// Reservation is the single in-flight allocation of a load. Its bytes belong
// to the loader until Commit or Release.
type Reservation struct {
	arena *Arena
	off   int
	n     int
	done  bool
}

// Len returns the reserved size
func (r *Reservation) Len() int { return r.n }

// Bytes returns the writable reserved region.
func (r *Reservation) Bytes() []byte {
	return r.arena.buf[r.off : r.off+r.n : r.off+r.n]
}

// Commit turns the reservation into a resident region.
func (r *Reservation) Commit() (*Region, error) {
	a := r.arena
	a.mu.Lock()
	defer a.mu.Unlock()

	if r.done || a.pending != r {
		return nil, errors.New("arena: commit of a finished reservation")
	}
	r.done = true
	a.pending = nil
	a.used += r.n
	g := &Region{arena: a, off: r.off, n: r.n}
	a.live = append(a.live, g)
	return g, nil
}

// Release gives the reserved bytes back. Safe to call after Commit, where it
// is a no-op.
func (r *Reservation) Release() {
	a := r.arena
	a.mu.Lock()
	defer a.mu.Unlock()

	if r.done {
		return
	}
	r.done = true
	if a.pending == r {
		a.pending = nil
	}
	a.insertLocked(extent{off: r.off, n: r.n})
}

// Region is a committed, read-only-by-convention resident payload.
type Region struct {
	arena    *Arena
	off      int
	n        int
	released bool
}

// Len returns the payload size
func (g *Region) Len() int { return g.n }

// Bytes returns the resident payload. The slice is only valid until the
// next Reserve, which may move the region; readers running alongside loads
// use View.
func (g *Region) Bytes() []byte {
	a := g.arena
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buf[g.off : g.off+g.n : g.off+g.n]
}

// View runs fn over the payload with the arena locked, so the region cannot
// move while fn runs. fn must not call back into the arena.
func (g *Region) View(fn func(p []byte)) {
	a := g.arena
	a.mu.Lock()
	defer a.mu.Unlock()
	if g.released {
		fn(nil)
		return
	}
	fn(a.buf[g.off : g.off+g.n : g.off+g.n])
}

// Release returns the region to the arena. Calling it twice is a no-op.
func (g *Region) Release() {
	a := g.arena
	a.mu.Lock()
	defer a.mu.Unlock()

	if g.released {
		return
	}
	g.released = true
	a.used -= g.n
	for i, l := range a.live {
		if l == g {
			a.live = append(a.live[:i], a.live[i+1:]...)
			break
		}
	}
	a.insertLocked(extent{off: g.off, n: g.n})
}
