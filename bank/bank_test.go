package bank

import (
	"errors"
	"math/rand"
	"testing"
)

func fullSet() SampleSet {
	set := SampleSet{Ref: "test.bin"}
	for i := 0; i < MaxSamples; i++ {
		set.Assets = append(set.Assets, Asset{Offset: int64(i) * 128, Length: 128})
	}
	return set
}

func testTables() []PitchTable {
	tables := []PitchTable{0x000000, 0x555555, 0xAAAAAA, 0xFFFFFF, 0x041041, 0x999999}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		tables = append(tables, PitchTable(rng.Uint32()&0xFFFFFF))
	}
	return tables
}

func TestPitchTable_Codes(t *testing.T) {
	var table PitchTable
	table = table.WithCode(0, CodeNone).WithCode(1, CodeDown).WithCode(2, CodeUp).WithCode(3, CodeUpAlt)

	tests := []struct {
		note  int
		code  uint8
		shift int
	}{
		{0, CodeNone, 0},
		{1, CodeDown, -1},
		{2, CodeUp, 1},
		{3, CodeUpAlt, 1},
		{12, CodeNone, 0},
		{13, CodeDown, -1},
		{27, CodeUpAlt, 1},
	}
	for _, tt := range tests {
		if got := table.Code(tt.note); got != tt.code {
			t.Errorf("Code(%d) = %d, want %d", tt.note, got, tt.code)
		}
		if got := table.Shift(tt.note); got != tt.shift {
			t.Errorf("Shift(%d) = %d, want %d", tt.note, got, tt.shift)
		}
	}
}

func TestResolve_WithinEnvelope(t *testing.T) {
	for _, table := range testTables() {
		min, max, err := BuildRange(table)
		if err != nil {
			t.Fatalf("BuildRange(%#x): %v", table, err)
		}
		for n := 0; n <= 255; n++ {
			got := Resolve(table, min, max, uint8(n))
			if got < min || got > max {
				t.Fatalf("table %#x note %d: resolved %d outside [%d, %d]", table, n, got, min, max)
			}
		}
	}
}

func TestResolve_NoteZeroDownShift(t *testing.T) {
	table := PitchTable(0).WithCode(0, CodeDown)
	if got := Resolve(table, 0, 139, 0); got != 0 {
		t.Fatalf("Resolve(note 0, down) = %d, want 0 (clamped)", got)
	}
	if got := Resolve(table, 1, 139, 0); got != 1 {
		t.Fatalf("Resolve(note 0, down, min 1) = %d, want 1", got)
	}
}

func TestResolve_CodeNoneIsIdentity(t *testing.T) {
	for n := 0; n < MaxSamples; n++ {
		if got := Resolve(0, 0, MaxSamples-1, uint8(n)); got != n {
			t.Fatalf("Resolve(code 0, %d) = %d", n, got)
		}
	}
}

func TestResolve_UpCodesIdentical(t *testing.T) {
	for semitone := 0; semitone < 12; semitone++ {
		up := PitchTable(0).WithCode(semitone, CodeUp)
		alt := PitchTable(0).WithCode(semitone, CodeUpAlt)
		for n := 0; n <= 255; n++ {
			a := Resolve(up, 0, 255, uint8(n))
			b := Resolve(alt, 0, 255, uint8(n))
			if a != b {
				t.Fatalf("semitone %d note %d: code 2 -> %d, code 3 -> %d", semitone, n, a, b)
			}
		}
	}
}

func TestBuildRange_Presets(t *testing.T) {
	tests := []struct {
		name     string
		table    PitchTable
		min, max int
	}{
		{"no shift", 0x000000, 1, 139},
		{"all down", 0x555555, 1, 139},
		{"all up", 0xAAAAAA, 2, 138},
		{"all up alt", 0xFFFFFF, 2, 138},
		{"down on C and C#", 0x000005, 2, 139},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			min, max, err := BuildRange(tt.table)
			if err != nil {
				t.Fatalf("BuildRange: %v", err)
			}
			if min != tt.min || max != tt.max {
				t.Fatalf("BuildRange = (%d, %d), want (%d, %d)", min, max, tt.min, tt.max)
			}
		})
	}
}

func TestBuildRange_Idempotent(t *testing.T) {
	for _, table := range testTables() {
		min1, max1, err1 := BuildRange(table)
		min2, max2, err2 := BuildRange(table)
		if min1 != min2 || max1 != max2 || (err1 == nil) != (err2 == nil) {
			t.Fatalf("table %#x: (%d, %d, %v) then (%d, %d, %v)", table, min1, max1, err1, min2, max2, err2)
		}
		if min1 > max1 {
			t.Fatalf("table %#x: min %d > max %d", table, min1, max1)
		}
	}
}

func TestScanMin_Degenerate(t *testing.T) {
	// note 1 shifts down to 0 and the scan is not allowed to look further
	table := PitchTable(0).WithCode(1, CodeDown)
	_, err := scanMin(table, 1)
	var rde *RangeDegenerateError
	if !errors.As(err, &rde) {
		t.Fatalf("scanMin err = %v, want RangeDegenerateError", err)
	}
	if v, err := scanMin(table, MinScanLimit); err != nil || v != 2 {
		t.Fatalf("scanMin full = (%d, %v), want (2, nil)", v, err)
	}
}

func TestNew_NarrowsToBackedAssets(t *testing.T) {
	set := SampleSet{Ref: "sparse.bin", Assets: make([]Asset, 40)}
	set.Assets[5] = Asset{Offset: 0, Length: 100}
	set.Assets[30] = Asset{Offset: 100, Length: 100}

	b, err := New(DrumKick, 0, Preset{Name: "Kick", Table: 0}, set)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if min, max := b.Range(); min != 5 || max != 30 {
		t.Fatalf("Range = (%d, %d), want (5, 30)", min, max)
	}
	if got := b.Resolve(2); got != 5 {
		t.Errorf("Resolve(2) = %d, want 5", got)
	}
	if got := b.Resolve(60); got != 30 {
		t.Errorf("Resolve(60) = %d, want 30", got)
	}
}

func TestNew_NoBackedAssets(t *testing.T) {
	_, err := New(DrumKick, 0, Preset{Table: 0}, SampleSet{Ref: "empty.bin"})
	var rde *RangeDegenerateError
	if !errors.As(err, &rde) {
		t.Fatalf("New err = %v, want RangeDegenerateError", err)
	}
}

func TestNew_TooManyAssets(t *testing.T) {
	set := SampleSet{Assets: make([]Asset, MaxSamples+1)}
	if _, err := New(DrumKick, 0, Preset{}, set); err == nil {
		t.Fatal("expected capacity error")
	}
}

func TestVoiceOf(t *testing.T) {
	set := fullSet()
	set.Voices = []VoiceID{7, 7, 3}

	b, err := New(DrumSnare, 1, Preset{Name: "Snare", Table: 0x555555}, set)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := b.VoiceOf(0); got != 7 {
		t.Errorf("VoiceOf(0) = %d, want 7", got)
	}
	if got := b.VoiceOf(2); got != 3 {
		t.Errorf("VoiceOf(2) = %d, want 3", got)
	}
	if got := b.VoiceOf(100); got != 100 {
		t.Errorf("VoiceOf(100) = %d, want identity 100", got)
	}
}

func TestBank_Immutable(t *testing.T) {
	set := fullSet()
	b, err := New(DrumKick, 0, Preset{Table: 0}, set)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	set.Assets[10].Length = 0
	if _, ok := b.Asset(10); !ok {
		t.Fatal("bank manifest changed after caller mutated its sample set")
	}
}

func TestProgramRoundTrip(t *testing.T) {
	for p := 0; p < 128; p++ {
		dt, alt := SplitProgram(uint8(p))
		if got := Program(dt, alt); got != uint8(p) {
			t.Fatalf("Program(SplitProgram(%d)) = %d", p, got)
		}
	}
	if dt, alt := SplitProgram(0x0B); dt != 2 || alt != 3 {
		t.Fatalf("SplitProgram(0x0B) = (%d, %d), want (2, 3)", dt, alt)
	}
}

func TestDefaultPresets(t *testing.T) {
	p := DefaultPresets()
	types := p.Types()
	if len(types) != p.Len() || len(types) == 0 {
		t.Fatalf("Types() = %v", types)
	}
	for i := 1; i < len(types); i++ {
		if types[i-1] >= types[i] {
			t.Fatalf("Types not sorted: %v", types)
		}
	}
	for _, dt := range types {
		preset, _ := p.Get(dt)
		if _, _, err := BuildRange(preset.Table); err != nil {
			t.Errorf("preset %q: %v", preset.Name, err)
		}
	}
}
