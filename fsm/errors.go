package fsm

import (
	"errors"
	"fmt"
)

// ErrMalformedTable is wrapped by every *TableError.
var ErrMalformedTable = errors.New("fsm: malformed transition table")

// TableError describes where and why a transition table failed to decode.
type TableError struct {
	// Offset is the cell index at which decoding went wrong.
	Offset int

	// Reason is a short description of the defect.
	Reason string
}

func (e *TableError) Error() string {
	return fmt.Sprintf("fsm: malformed transition table at cell %d: %s", e.Offset, e.Reason)
}

// Unwrap lets errors.Is match ErrMalformedTable.
func (e *TableError) Unwrap() error {
	return ErrMalformedTable
}

func tableErrorf(offset int, format string, args ...any) *TableError {
	return &TableError{Offset: offset, Reason: fmt.Sprintf(format, args...)}
}
