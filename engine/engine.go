// Package engine turns note and program events into sample loads and voice
// triggers for a fixed set of drum tracks.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go-drumbank/bank"
	"go-drumbank/debug"
	"go-drumbank/stream"
)

// Config sizes the engine
type Config struct {
	Tracks   int      // number of drum tracks
	Inbox    int      // buffered events before Submit starts dropping
	Names    []string // optional track names, by index
	Channels []uint8  // optional MIDI channels, by index
}

// DefaultConfig returns four tracks on MIDI channels 10-13
func DefaultConfig() Config {
	return Config{Tracks: 4, Inbox: 64}
}

// Engine runs a single cooperative control loop. Only the loop goroutine
// touches track state; Snapshot takes the lock for readers on other
// goroutines.
type Engine struct {
	presets *bank.Presets
	sets    SampleSets
	loader  Loader
	out     Output
	diag    Diagnostics

	mu     sync.RWMutex
	tracks []*Track

	inbox   chan Event
	pending []Event        // deferred while a load runs, processed in order
	loading *stream.Request // the load the loop is inside, if any

	// Notify TUI of updates
	UpdateChan chan struct{}
}

// New creates an engine. diag may be nil.
func New(cfg Config, presets *bank.Presets, sets SampleSets, loader Loader, out Output, diag Diagnostics) (*Engine, error) {
	if cfg.Tracks <= 0 {
		return nil, fmt.Errorf("engine needs at least one track, got %d", cfg.Tracks)
	}
	if cfg.Inbox <= 0 {
		cfg.Inbox = DefaultConfig().Inbox
	}
	if presets == nil || sets == nil || loader == nil || out == nil {
		return nil, errors.New("engine requires presets, sample sets, a loader and an output")
	}
	if diag == nil {
		diag = DiagnosticsFunc(func(Report) {})
	}

	e := &Engine{
		presets:    presets,
		sets:       sets,
		loader:     loader,
		out:        out,
		diag:       diag,
		inbox:      make(chan Event, cfg.Inbox),
		UpdateChan: make(chan struct{}, 1),
	}
	for i := 0; i < cfg.Tracks; i++ {
		name, ch := fmt.Sprintf("Drum %d", i+1), uint8(10+i)
		if i < len(cfg.Names) && cfg.Names[i] != "" {
			name = cfg.Names[i]
		}
		if i < len(cfg.Channels) {
			ch = cfg.Channels[i]
		}
		e.tracks = append(e.tracks, NewTrack(i, name, ch))
	}
	return e, nil
}

// Tracks returns the number of tracks
func (e *Engine) Tracks() int { return len(e.tracks) }

func (e *Engine) track(id int) *Track {
	if id < 0 || id >= len(e.tracks) {
		return nil
	}
	return e.tracks[id]
}

func (e *Engine) notify() {
	select {
	case e.UpdateChan <- struct{}{}:
	default:
	}
}

func (e *Engine) report(r Report) {
	debug.Log("engine", "track=%d op=%s idx=%d err=%v %s", r.Track, r.Op, r.Index, r.Err, r.Detail)
	e.diag.Report(r)
}

// Submit queues an event for the loop without blocking. It returns false
// when the inbox is full and the event was dropped.
func (e *Engine) Submit(ev Event) bool {
	select {
	case e.inbox <- ev:
		return true
	default:
		debug.LogEvery(16, "engine", "inbox full, dropped %T for track %d", ev, ev.TrackID())
		return false
	}
}

// Run processes events until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	debug.Log("engine", "loop started with %d tracks", len(e.tracks))
	for {
		select {
		case <-ctx.Done():
			debug.Log("engine", "loop stopped: %v", ctx.Err())
			return ctx.Err()
		case ev := <-e.inbox:
			e.Handle(ctx, ev)
		}
	}
}

// Handle processes one event and everything deferred behind it. It must be
// called from the loop goroutine (or a test standing in for it).
func (e *Engine) Handle(ctx context.Context, ev Event) {
	e.dispatch(ctx, ev)
	for len(e.pending) > 0 && ctx.Err() == nil {
		next := e.pending[0]
		e.pending = e.pending[1:]
		e.dispatch(ctx, next)
	}
	e.notify()
}

func (e *Engine) dispatch(ctx context.Context, ev Event) {
	switch ev := ev.(type) {
	case NoteEvent:
		e.handleNote(ctx, ev)
	case ProgramEvent:
		// failures are already reported
		_ = e.SelectBank(ev.Track, ev.Program)
	default:
		e.report(Report{Track: ev.TrackID(), Op: "drop", Index: -1, Detail: fmt.Sprintf("unknown event %T", ev)})
	}
}

// SelectBank replaces a track's bank wholesale. On failure the track keeps
// its current bank.
func (e *Engine) SelectBank(trackID int, program uint8) error {
	t := e.track(trackID)
	if t == nil {
		err := fmt.Errorf("no track %d", trackID)
		e.report(Report{Track: trackID, Op: "bank", Index: -1, Err: err})
		return err
	}

	dt, alt := bank.SplitProgram(program)
	b, err := e.buildBank(dt, alt)
	if err != nil {
		e.mu.Lock()
		t.failures++
		e.mu.Unlock()
		e.report(Report{Track: trackID, Op: "bank", Index: -1, Err: err, Detail: fmt.Sprintf("program %d", program)})
		return err
	}

	e.mu.Lock()
	old := t.setBank(b, program)
	e.mu.Unlock()
	e.retire(old)

	min, max := b.Range()
	debug.Log("engine", "track=%d bank=%q alt=%d range=[%d,%d]", trackID, b.Name, alt, min, max)
	e.notify()
	return nil
}

func (e *Engine) buildBank(dt bank.DrumType, alt uint8) (*bank.Bank, error) {
	p, ok := e.presets.Get(dt)
	if !ok {
		return nil, fmt.Errorf("unknown drum type %d", dt)
	}
	set, ok := e.sets.SampleSet(dt, alt)
	if !ok {
		return nil, fmt.Errorf("no sample set for %s alt %d", p.Name, alt)
	}
	return bank.New(dt, alt, p, set)
}

func (e *Engine) handleNote(ctx context.Context, ev NoteEvent) {
	t := e.track(ev.Track)
	if t == nil {
		e.report(Report{Track: ev.Track, Op: "drop", Index: -1, Detail: "no such track"})
		return
	}
	if ev.isOff() {
		e.release(t)
		return
	}
	if ev.Note > MaxNote {
		e.report(Report{Track: ev.Track, Op: "drop", Index: -1, Detail: fmt.Sprintf("note %d above %d", ev.Note, MaxNote)})
		return
	}
	if e.muted(t) {
		return
	}
	b := t.bank
	if b == nil {
		e.report(Report{Track: ev.Track, Op: "drop", Index: -1, Detail: "no bank"})
		return
	}

	idx := b.Resolve(ev.Note)
	e.mu.Lock()
	t.lastNote = int(ev.Note)
	e.mu.Unlock()

	if t.isResident(idx) {
		e.trigger(t, t.resident, ev.Velocity)
		return
	}

	req := stream.NewRequest(t.ID, b, idx)
	e.loading = &req
	res, err := e.loader.Load(ctx, req)
	e.loading = nil

	if err != nil {
		op := "load"
		if errors.Is(err, stream.ErrSuperseded) {
			op = "superseded"
		} else {
			e.mu.Lock()
			t.failures++
			e.mu.Unlock()
		}
		e.report(Report{Track: t.ID, Op: op, Request: req.ID, Index: idx, Err: err})
		return
	}
	if t.bank != b {
		res.Release()
		e.report(Report{Track: t.ID, Op: "superseded", Request: req.ID, Index: idx, Detail: "bank replaced during load"})
		return
	}

	e.mu.Lock()
	old := t.setResident(res)
	e.mu.Unlock()
	e.retire(old)
	debug.Log("engine", "track=%d resident idx=%d voice=%d bytes=%d req=%s", t.ID, idx, res.Voice, res.Len(), req.ID)
	e.trigger(t, res, ev.Velocity)
}

// retire stops any playback of r and frees its memory.
func (e *Engine) retire(r *stream.Resident) {
	if r == nil {
		return
	}
	if ev, ok := e.out.(Evicter); ok {
		ev.Evict(r)
	}
	r.Release()
}

func (e *Engine) trigger(t *Track, r *stream.Resident, velocity uint8) {
	if err := e.out.Trigger(r.Voice, velocity, r); err != nil {
		e.report(Report{Track: t.ID, Op: "trigger", Request: r.ID, Index: r.Index, Err: err})
		return
	}
	e.mu.Lock()
	t.triggers++
	e.mu.Unlock()
}

// release stops a looping resident voice on note-off.
func (e *Engine) release(t *Track) {
	r := t.resident
	if r == nil || r.Flags&bank.FlagLoop == 0 {
		return
	}
	if rel, ok := e.out.(Releaser); ok {
		rel.Release(r.Voice)
	}
}

// Yield runs while a load is in flight, between chunks. Hits and note-offs
// are served at once; anything that needs a load or a bank change is
// deferred until the current load returns. A deferred load replaces any
// earlier deferred load and supersedes the running one.
func (e *Engine) Yield() {
	for {
		select {
		case ev := <-e.inbox:
			e.interleave(ev)
		default:
			return
		}
	}
}

func (e *Engine) interleave(ev Event) {
	switch ev := ev.(type) {
	case NoteEvent:
		if e.bankPending(ev.Track) {
			// the track's next bank is queued, keep its notes behind it
			e.pending = append(e.pending, ev)
			return
		}
		t := e.track(ev.Track)
		if t == nil || ev.isOff() || ev.Note > MaxNote || e.muted(t) || t.bank == nil {
			// none of these can start a load
			e.dispatch(context.Background(), ev)
			return
		}
		idx := t.bank.Resolve(ev.Note)
		if t.isResident(idx) {
			e.dispatch(context.Background(), ev)
			return
		}
		if l := e.loading; l != nil && l.Track == t.ID && l.Bank == t.bank && l.Index == idx {
			// same sample is already on its way, play it once it lands
			e.pending = append(e.pending, ev)
			return
		}
		e.dropPendingLoads(func(NoteEvent) bool { return true })
		e.pending = append(e.pending, ev)
		e.loader.Supersede()

	case ProgramEvent:
		e.dropPendingLoads(func(n NoteEvent) bool { return n.Track == ev.Track })
		e.pending = append(e.pending, ev)
		if l := e.loading; l != nil && l.Track == ev.Track {
			e.loader.Supersede()
		}

	default:
		e.pending = append(e.pending, ev)
	}
}

// bankPending reports whether a bank select for track is deferred
func (e *Engine) bankPending(track int) bool {
	for _, p := range e.pending {
		if pe, ok := p.(ProgramEvent); ok && pe.Track == track {
			return true
		}
	}
	return false
}

// dropPendingLoads removes deferred note-ons matching fn, reporting each.
func (e *Engine) dropPendingLoads(fn func(NoteEvent) bool) {
	kept := e.pending[:0]
	for _, p := range e.pending {
		if n, ok := p.(NoteEvent); ok && !n.isOff() && fn(n) {
			e.report(Report{Track: n.Track, Op: "superseded", Index: -1, Detail: fmt.Sprintf("queued note %d replaced", n.Note)})
			continue
		}
		kept = append(kept, p)
	}
	e.pending = kept
}

func (e *Engine) muted(t *Track) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return t.Muted
}

// SetMuted mutes or unmutes a track
func (e *Engine) SetMuted(trackID int, muted bool) {
	t := e.track(trackID)
	if t == nil {
		return
	}
	e.mu.Lock()
	t.Muted = muted
	e.mu.Unlock()
	e.notify()
}

// Snapshot returns the state of every track. Safe from any goroutine.
func (e *Engine) Snapshot() []TrackStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]TrackStatus, len(e.tracks))
	for i, t := range e.tracks {
		out[i] = t.status()
	}
	return out
}

// Close releases every resident sample. The loop must have stopped.
func (e *Engine) Close() {
	var old []*stream.Resident
	e.mu.Lock()
	for _, t := range e.tracks {
		if r := t.takeResident(); r != nil {
			old = append(old, r)
		}
	}
	e.mu.Unlock()
	for _, r := range old {
		e.retire(r)
	}
}
