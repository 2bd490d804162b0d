// Package voice plays resident samples on an audio backend, one player per
// voice.
package voice

import (
	"fmt"
	"io"
	"sync"

	"go-drumbank/bank"
	"go-drumbank/debug"
	"go-drumbank/stream"
)

// Player is one playing sound. *oto.Player satisfies it.
type Player interface {
	Play()
	Pause()
	SetVolume(volume float64)
	Close() error
}

// Backend creates players that pull frames from a reader
type Backend interface {
	NewPlayer(r io.Reader) Player
}

type playing struct {
	player   Player
	src      *sampleReader
	resident *stream.Resident
}

// Output routes triggers to per-voice players. A new trigger on a voice
// cuts whatever that voice was playing.
type Output struct {
	backend  Backend
	channels int
	swap     bool

	mu     sync.Mutex
	voices map[bank.VoiceID]*playing
}

// New creates an output mixing into channels-wide 16-bit frames. Set
// bigEndian when resident payloads were normalized to big-endian.
func New(b Backend, channels int, bigEndian bool) *Output {
	return &Output{
		backend:  b,
		channels: channels,
		swap:     bigEndian,
		voices:   make(map[bank.VoiceID]*playing),
	}
}

// Trigger implements engine.Output
func (o *Output) Trigger(v bank.VoiceID, velocity uint8, sample *stream.Resident) error {
	if sample.Header.BitDepth != 16 {
		return fmt.Errorf("voice %d: output plays 16-bit samples, got %d-bit", v, sample.Header.BitDepth)
	}
	if sample.Header.Channels == 0 {
		return fmt.Errorf("voice %d: sample has no channels", v)
	}

	src := newSampleReader(sample, int(sample.Header.Channels), o.channels,
		sample.LoopPoint, sample.Flags&bank.FlagLoop != 0, o.swap)
	p := o.backend.NewPlayer(src)
	p.SetVolume(float64(velocity) / 127)

	o.mu.Lock()
	old := o.voices[v]
	o.voices[v] = &playing{player: p, src: src, resident: sample}
	o.mu.Unlock()

	if old != nil {
		o.stop(old)
	}
	p.Play()
	debug.LogEvery(32, "voice", "voice %d idx %d vel %d", v, sample.Index, velocity)
	return nil
}

// Release implements engine.Releaser: a looping voice plays to its end
func (o *Output) Release(v bank.VoiceID) {
	o.mu.Lock()
	pl := o.voices[v]
	o.mu.Unlock()
	if pl != nil {
		pl.src.stopLoop()
	}
}

// Evict implements engine.Evicter: stop every voice reading sample
func (o *Output) Evict(sample *stream.Resident) {
	var gone []*playing
	o.mu.Lock()
	for v, pl := range o.voices {
		if pl.resident == sample {
			gone = append(gone, pl)
			delete(o.voices, v)
		}
	}
	o.mu.Unlock()
	for _, pl := range gone {
		o.stop(pl)
	}
}

func (o *Output) stop(pl *playing) {
	pl.src.stop()
	pl.player.Pause()
	if err := pl.player.Close(); err != nil {
		debug.Log("voice", "close player: %v", err)
	}
}

// Active returns how many voices hold a player
func (o *Output) Active() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.voices)
}

// Close stops every voice
func (o *Output) Close() error {
	o.mu.Lock()
	all := o.voices
	o.voices = make(map[bank.VoiceID]*playing)
	o.mu.Unlock()
	for _, pl := range all {
		o.stop(pl)
	}
	return nil
}

// Discard is an output that accepts every trigger and plays nothing
type Discard struct{}

// Trigger implements engine.Output
func (Discard) Trigger(bank.VoiceID, uint8, *stream.Resident) error { return nil }
