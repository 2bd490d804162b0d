// Package bank holds the per-track drum sample bank: pitch table, sample
// manifest and voice table, plus the pure index arithmetic over them.
package bank

import "fmt"

// VoiceID identifies a playback voice on the output side
type VoiceID uint8

// AssetFlags describe how a resident sample is played
type AssetFlags uint8

const (
	FlagLoop AssetFlags = 1 << iota // loop from LoopPoint until note-off
	FlagChoke                       // retrigger cuts the previous hit
)

// Asset describes one sample inside a sample set's storage object.
type Asset struct {
	Offset    int64      `json:"offset"`
	Length    int64      `json:"length"` // header + payload, bytes
	LoopPoint uint32     `json:"loopPoint,omitempty"`
	Flags     AssetFlags `json:"flags,omitempty"`
}

// Backed reports whether the descriptor points at real content.
func (a Asset) Backed() bool {
	return a.Length > 0
}

// SampleSet is the storage side of a bank: where the assets live and which
// voice each index plays on.
type SampleSet struct {
	Ref    string
	Assets []Asset
	Voices []VoiceID // optional, defaults to voice = index
}

// Bank is the immutable per-track configuration. A bank select builds a new
// Bank; nothing mutates one after New returns.
type Bank struct {
	DrumType DrumType
	Alt      uint8
	Name     string
	Ref      string

	table    PitchTable
	min, max int
	manifest [MaxSamples]Asset
	voices   [MaxSamples]VoiceID
}

// New assembles a bank from a preset and its sample set and derives the
// index envelope.
func New(dt DrumType, alt uint8, p Preset, set SampleSet) (*Bank, error) {
	if len(set.Assets) > MaxSamples {
		return nil, fmt.Errorf("sample set %q: %d assets exceeds capacity %d", set.Ref, len(set.Assets), MaxSamples)
	}
	if len(set.Voices) > MaxSamples {
		return nil, fmt.Errorf("sample set %q: %d voices exceeds capacity %d", set.Ref, len(set.Voices), MaxSamples)
	}

	b := &Bank{
		DrumType: dt,
		Alt:      alt,
		Name:     p.Name,
		Ref:      set.Ref,
		table:    p.Table,
	}
	copy(b.manifest[:], set.Assets)
	for i := range b.voices {
		if i < len(set.Voices) {
			b.voices[i] = set.Voices[i]
		} else {
			b.voices[i] = VoiceID(i)
		}
	}

	min, max, err := BuildRange(p.Table)
	if err != nil {
		return nil, err
	}
	b.min, b.max, err = narrowToBacked(p.Table, min, max, b.backed)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Bank) backed(i int) bool {
	return b.manifest[i].Backed()
}

// Table returns the bank's pitch table
func (b *Bank) Table() PitchTable { return b.table }

// Range returns the valid sample-index envelope
func (b *Bank) Range() (min, max int) { return b.min, b.max }

// Resolve maps a note to this bank's sample index.
func (b *Bank) Resolve(note uint8) int {
	return Resolve(b.table, b.min, b.max, note)
}

// VoiceOf returns the voice a sample index plays on.
func (b *Bank) VoiceOf(index int) VoiceID {
	return b.voices[index]
}

// Asset returns the manifest entry for a sample index.
func (b *Bank) Asset(index int) (Asset, bool) {
	if index < 0 || index >= MaxSamples {
		return Asset{}, false
	}
	a := b.manifest[index]
	return a, a.Backed()
}
