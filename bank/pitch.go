package bank

// PitchTable packs 12 two-bit shift codes, one per chromatic semitone.
// The code for semitone s lives at bits 2*s and 2*s+1.
type PitchTable uint32

// Shift codes
const (
	CodeNone  uint8 = 0 // play the note's own index
	CodeDown  uint8 = 1 // one step down
	CodeUp    uint8 = 2 // one step up
	CodeUpAlt uint8 = 3 // behaves exactly like CodeUp
)

// Code returns the two-bit code for the semitone of n.
func (t PitchTable) Code(n int) uint8 {
	semitone := n % 12
	return uint8(t>>(2*uint(semitone))) & 0x3
}

// Shift returns the index offset selected for n: 0, -1 or +1.
func (t PitchTable) Shift(n int) int {
	switch t.Code(n) {
	case CodeNone:
		return 0
	case CodeDown:
		return -1
	default:
		return 1
	}
}

// adjusted applies the shift without clamping.
func (t PitchTable) adjusted(n int) int {
	return n + t.Shift(n)
}

// WithCode returns a copy of t with semitone's code replaced.
func (t PitchTable) WithCode(semitone int, code uint8) PitchTable {
	shift := 2 * uint(semitone%12)
	t &^= 0x3 << shift
	return t | PitchTable(code&0x3)<<shift
}

// Resolve maps a note to a sample index inside [min, max].
// It is called for every note event so it stays allocation free.
func Resolve(t PitchTable, min, max int, note uint8) int {
	candidate := t.adjusted(int(note))
	if candidate < min {
		return min
	}
	if candidate > max {
		return max
	}
	return candidate
}
