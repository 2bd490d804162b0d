package midi

import (
	"sync"

	gomidi "gitlab.com/gomidi/midi/v2"

	"go-drumbank/engine"
)

// Router maps MIDI channels to drum tracks and turns channel messages into
// engine events. Channels are 1-16 at the API, 0-15 on the wire.
type Router struct {
	mu     sync.RWMutex
	tracks [16]int // track per wire channel, -1 when unassigned
}

// NewRouter creates a router where track i listens on channels[i].
func NewRouter(channels []uint8) *Router {
	r := &Router{}
	for i := range r.tracks {
		r.tracks[i] = -1
	}
	for track, ch := range channels {
		r.Assign(track, ch)
	}
	return r
}

// Assign moves a track onto a channel (1-16). Any other track on that
// channel is unassigned. Out of range channels are ignored.
func (r *Router) Assign(track int, channel uint8) {
	if channel < 1 || channel > 16 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, t := range r.tracks {
		if t == track {
			r.tracks[i] = -1
		}
	}
	r.tracks[channel-1] = track
}

// Track returns the track listening on a wire channel (0-15)
func (r *Router) Track(wireChannel uint8) (int, bool) {
	if wireChannel > 15 {
		return -1, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t := r.tracks[wireChannel]
	return t, t >= 0
}

// Translate converts note on/off and program change messages. Everything
// else, and messages on unassigned channels, return false.
func (r *Router) Translate(msg gomidi.Message) (engine.Event, bool) {
	var ch, key, vel, prog uint8
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		if t, ok := r.Track(ch); ok {
			return engine.NoteEvent{Track: t, Note: key, Velocity: vel}, true
		}
	case msg.GetNoteEnd(&ch, &key):
		if t, ok := r.Track(ch); ok {
			return engine.NoteEvent{Track: t, Note: key, Off: true}, true
		}
	case msg.GetProgramChange(&ch, &prog):
		if t, ok := r.Track(ch); ok {
			return engine.ProgramEvent{Track: t, Program: prog}, true
		}
	}
	return nil, false
}
