package stream

import (
	"errors"
	"fmt"
)

// ErrSuperseded is returned by a load that a newer request replaced before it
// finished. Nothing of it becomes resident.
var ErrSuperseded = errors.New("load superseded by a newer request")

// FormatError is an unsupported or malformed asset.
type FormatError struct {
	Ref    string
	Index  int
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	msg := fmt.Sprintf("sample %d in %s: unsupported asset: %s", e.Index, e.Ref, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FormatError) Unwrap() error { return e.Err }

// CapacityError means the payload does not fit the arena.
type CapacityError struct {
	Ref   string
	Index int
	Size  int64
	Err   error // *arena.CapacityError when the arena refused
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("sample %d in %s: payload of %d bytes does not fit: %v", e.Index, e.Ref, e.Size, e.Err)
}

func (e *CapacityError) Unwrap() error { return e.Err }

// StorageError is a read failure that survived every retry.
type StorageError struct {
	Ref      string
	Offset   int64
	Chunk    int // -1 for the header read
	Attempts int
	Err      error
}

func (e *StorageError) Error() string {
	where := "header"
	if e.Chunk >= 0 {
		where = fmt.Sprintf("chunk %d", e.Chunk)
	}
	return fmt.Sprintf("reading %s %s at %d failed after %d attempts: %v", e.Ref, where, e.Offset, e.Attempts, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
