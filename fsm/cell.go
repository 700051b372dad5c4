package fsm

import "fmt"

// Cell is the set of integer types a transition table can be stored in.
// The compiler picks the narrowest type that fits every offset and value
// in the table.
//
// An accept cell with every bit set is NotAccepting in both signed and
// unsigned tables, so unsigned tables reserve their maximum value. Signed
// 8-bit tables can only hold bytes 0 to 127 as predicate values; tables
// that match bytes 0x80 and up need uint8 or a wider type.
type Cell interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~int |
		~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uint
}

const (
	// NoMatch is returned by Match when no route matches the path.
	NoMatch = -1

	// NotAccepting is the accept cell value of a state that does not
	// complete a route.
	NotAccepting = -1
)

// notAccepting returns the accept cell value of NotAccepting in T.
func notAccepting[T Cell]() T {
	return ^T(0)
}

func unsignedCell[T Cell]() bool {
	return notAccepting[T]() > 0
}

// acceptValue decodes an accept cell.
func acceptValue[T Cell](v T) int {
	if v == notAccepting[T]() {
		return NotAccepting
	}
	return int(v)
}

// ConvertCells narrows cells to the table cell type T. It fails when a
// value does not fit. For unsigned T, -1 becomes the all-ones
// NotAccepting cell and any other negative value is rejected.
func ConvertCells[T Cell](cells []int64) ([]T, error) {
	unsigned := unsignedCell[T]()
	out := make([]T, len(cells))
	for i, v := range cells {
		if unsigned && v < 0 {
			if v != NotAccepting {
				return nil, fmt.Errorf("fsm: cell %d value %d is negative in unsigned %T", i, v, T(0))
			}
			out[i] = notAccepting[T]()
			continue
		}
		c := T(v)
		if int64(c) != v {
			return nil, fmt.Errorf("fsm: cell %d value %d overflows %T", i, v, c)
		}
		out[i] = c
	}
	return out, nil
}
