package bank

import "sort"

// DrumType selects a pitch-table preset
type DrumType uint8

// Preset is the fixed read-only pitch table for one drum type
type Preset struct {
	Name  string
	Table PitchTable
}

// Program byte layout: upper bits pick the drum type, low bits the alternate set.
const (
	AltBits = 2
	AltSets = 1 << AltBits
)

// SplitProgram decodes a program byte into drum type and alternate set.
func SplitProgram(program uint8) (DrumType, uint8) {
	return DrumType(program >> AltBits), program & (AltSets - 1)
}

// Program encodes a drum type and alternate set as a program byte.
func Program(dt DrumType, alt uint8) uint8 {
	return uint8(dt)<<AltBits | alt&(AltSets-1)
}

// Presets is the startup-loaded preset table. It is never mutated after
// NewPresets returns; lookups hand out copies.
type Presets struct {
	byType map[DrumType]Preset
}

// NewPresets copies the given table.
func NewPresets(table map[DrumType]Preset) *Presets {
	p := &Presets{byType: make(map[DrumType]Preset, len(table))}
	for dt, preset := range table {
		p.byType[dt] = preset
	}
	return p
}

// Get returns the preset for a drum type
func (p *Presets) Get(dt DrumType) (Preset, bool) {
	preset, ok := p.byType[dt]
	return preset, ok
}

// Types returns the known drum types in ascending order.
func (p *Presets) Types() []DrumType {
	types := make([]DrumType, 0, len(p.byType))
	for dt := range p.byType {
		types = append(types, dt)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Len returns the number of presets
func (p *Presets) Len() int { return len(p.byType) }

// Built-in drum types
const (
	DrumKick DrumType = iota
	DrumSnare
	DrumClosedHat
	DrumOpenHat
	DrumTom
	DrumClap
	DrumCowbell
	DrumPerc
)

// DefaultPresets contains the factory pitch tables
func DefaultPresets() *Presets {
	return NewPresets(map[DrumType]Preset{
		DrumKick:      {Name: "Kick", Table: 0x000000},      // no shift
		DrumSnare:     {Name: "Snare", Table: 0x555555},     // every semitone one down
		DrumClosedHat: {Name: "Closed HH", Table: 0xAAAAAA}, // every semitone one up
		DrumOpenHat:   {Name: "Open HH", Table: 0x041041},   // down on C, D#, F# and A
		DrumTom:       {Name: "Tom", Table: 0x208208},       // up on C#, E, G and A#
		DrumClap:      {Name: "Clap", Table: 0x000005},      // down on C and C#
		DrumCowbell:   {Name: "Cowbell", Table: 0xFFFFFF},   // alternate up code everywhere
		DrumPerc:      {Name: "Perc", Table: 0x999999},      // alternating down and up
	})
}
