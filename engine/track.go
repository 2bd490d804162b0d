package engine

import (
	"go-drumbank/bank"
	"go-drumbank/stream"
)

// Track is one drum track: its active bank and at most one resident sample.
// A Track without a bank ignores notes until a bank select succeeds.
type Track struct {
	ID      int
	Name    string
	Channel uint8 // MIDI input channel (1-16)
	Muted   bool

	bank     *bank.Bank
	program  uint8
	resident *stream.Resident

	lastNote int
	triggers uint64
	failures uint64
}

// NewTrack creates a track with no bank assigned.
func NewTrack(id int, name string, channel uint8) *Track {
	return &Track{
		ID:       id,
		Name:     name,
		Channel:  channel,
		lastNote: -1,
	}
}

// HasBank returns true if a bank is active.
func (t *Track) HasBank() bool {
	return t.bank != nil
}

// Bank returns the active bank (nil when none)
func (t *Track) Bank() *bank.Bank { return t.bank }

// isResident reports whether index of the active bank is already loaded.
func (t *Track) isResident(index int) bool {
	r := t.resident
	return r != nil && r.Bank == t.bank && r.Index == index
}

// setBank swaps the bank wholesale and drops residency. The previous
// resident, if any, is returned for the caller to retire.
func (t *Track) setBank(b *bank.Bank, program uint8) *stream.Resident {
	t.bank = b
	t.program = program
	return t.takeResident()
}

// setResident installs a freshly loaded sample and returns the one it replaced.
func (t *Track) setResident(r *stream.Resident) *stream.Resident {
	old := t.takeResident()
	t.resident = r
	return old
}

func (t *Track) takeResident() *stream.Resident {
	r := t.resident
	t.resident = nil
	return r
}

// TrackStatus is a read-only view of a track for monitoring
type TrackStatus struct {
	ID            int
	Name          string
	Channel       uint8
	Muted         bool
	HasBank       bool
	Program       uint8
	DrumType      bank.DrumType
	Alt           uint8
	BankName      string
	Min, Max      int
	ResidentIndex int // -1 when nothing is resident
	ResidentVoice bank.VoiceID
	ResidentBytes int
	LastNote      int // -1 before the first note
	Triggers      uint64
	Failures      uint64
}

func (t *Track) status() TrackStatus {
	st := TrackStatus{
		ID:            t.ID,
		Name:          t.Name,
		Channel:       t.Channel,
		Muted:         t.Muted,
		HasBank:       t.bank != nil,
		Program:       t.program,
		ResidentIndex: -1,
		LastNote:      t.lastNote,
		Triggers:      t.triggers,
		Failures:      t.failures,
	}
	if t.bank != nil {
		st.DrumType = t.bank.DrumType
		st.Alt = t.bank.Alt
		st.BankName = t.bank.Name
		st.Min, st.Max = t.bank.Range()
	}
	if t.resident != nil {
		st.ResidentIndex = t.resident.Index
		st.ResidentVoice = t.resident.Voice
		st.ResidentBytes = t.resident.Len()
	}
	return st
}
