package engine

import (
	"context"

	"github.com/google/uuid"

	"go-drumbank/bank"
	"go-drumbank/stream"
)

// MaxNote is the highest note the drum tracks accept
const MaxNote uint8 = 63

// Event is an input to the engine loop
type Event interface {
	TrackID() int
}

// NoteEvent triggers (or releases) a drum hit on a track
type NoteEvent struct {
	Track    int
	Note     uint8 // 0-63
	Velocity uint8 // 0-127
	Off      bool
}

// TrackID implements Event
func (e NoteEvent) TrackID() int { return e.Track }

// isOff treats a zero-velocity note-on as a note-off
func (e NoteEvent) isOff() bool { return e.Off || e.Velocity == 0 }

// ProgramEvent selects a bank for a track. The program byte's upper bits
// pick the drum type and the low bits the alternate sample set.
type ProgramEvent struct {
	Track   int
	Program uint8
}

// TrackID implements Event
func (e ProgramEvent) TrackID() int { return e.Track }

// Output is the voice collaborator
type Output interface {
	Trigger(voice bank.VoiceID, velocity uint8, sample *stream.Resident) error
}

// Releaser is implemented by outputs that can stop a looping voice
type Releaser interface {
	Release(voice bank.VoiceID)
}

// Evicter is implemented by outputs that keep reading a resident after
// Trigger returns. Evict is called before the resident's memory is released.
type Evicter interface {
	Evict(sample *stream.Resident)
}

// Loader makes samples resident
type Loader interface {
	Load(ctx context.Context, req stream.Request) (*stream.Resident, error)
	Supersede()
}

// SampleSets resolves a drum type and alternate set to storage
type SampleSets interface {
	SampleSet(dt bank.DrumType, alt uint8) (bank.SampleSet, bool)
}

// Report is one diagnostics record
type Report struct {
	Track   int
	Op      string // "load", "trigger", "bank", "superseded", "drop"
	Request uuid.UUID
	Index   int
	Err     error
	Detail  string
}

// Diagnostics receives failures and notable events. It must not block.
type Diagnostics interface {
	Report(r Report)
}

// DiagnosticsFunc adapts a function to Diagnostics
type DiagnosticsFunc func(Report)

// Report implements Diagnostics
func (f DiagnosticsFunc) Report(r Report) { f(r) }
