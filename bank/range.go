package bank

import "fmt"

// MaxSamples is the manifest and voice table capacity of a bank.
const MaxSamples = 140

// MinScanLimit bounds the min_sample scan.
const MinScanLimit = 256

// RangeDegenerateError means a bank can never resolve to a usable index.
type RangeDegenerateError struct {
	Table  PitchTable
	Reason string
}

func (e *RangeDegenerateError) Error() string {
	return fmt.Sprintf("degenerate sample range for pitch table %#06x: %s", uint32(e.Table), e.Reason)
}

// BuildRange derives the valid sample-index envelope of a pitch table.
//
// min is the first nonzero adjusted value found scanning notes upward from 1.
// max is the first index, scanning down from MaxSamples-1, whose adjusted value
// stays below MaxSamples. The same shift rule serves both scans.
func BuildRange(t PitchTable) (min, max int, err error) {
	min, err = scanMin(t, MinScanLimit)
	if err != nil {
		return 0, 0, err
	}
	max, err = scanMax(t)
	if err != nil {
		return 0, 0, err
	}
	if min > max {
		return 0, 0, &RangeDegenerateError{Table: t, Reason: fmt.Sprintf("min %d above max %d", min, max)}
	}
	return min, max, nil
}

func scanMin(t PitchTable, limit int) (int, error) {
	for n := 1; n <= limit; n++ {
		if v := t.adjusted(n); v != 0 {
			return v, nil
		}
	}
	return 0, &RangeDegenerateError{Table: t, Reason: fmt.Sprintf("no nonzero index within %d notes", limit)}
}

func scanMax(t PitchTable) (int, error) {
	for i := MaxSamples - 1; i >= 0; i-- {
		if t.adjusted(i) < MaxSamples {
			return i, nil
		}
	}
	return 0, &RangeDegenerateError{Table: t, Reason: "no index below capacity"}
}

// narrowToBacked shrinks [min, max] to the outermost indices that have a
// backing asset.
func narrowToBacked(t PitchTable, min, max int, backed func(int) bool) (int, int, error) {
	lo, hi := min, max
	for lo <= hi && !backed(lo) {
		lo++
	}
	for hi >= lo && !backed(hi) {
		hi--
	}
	if lo > hi {
		return 0, 0, &RangeDegenerateError{Table: t, Reason: fmt.Sprintf("no backed sample in [%d, %d]", min, max)}
	}
	return lo, hi, nil
}
