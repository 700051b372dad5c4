package tablefile

import (
	"fmt"

	"github.com/vitalvas/pathfsm/fsm"
)

// Table is a built table ready for matching.
type Table struct {
	fsm.PathMatcher

	// Variant, CellBits and Unsigned describe the table encoding.
	Variant  fsm.Variant
	CellBits int
	Unsigned bool

	// Cells is the table length in cells.
	Cells int

	// AcceptIDs lists the handler indexes the table can produce.
	AcceptIDs []int
}

// Build lays out the table in the cell width the file declares and returns
// a matcher for it.
func (f *File) Build() (*Table, error) {
	switch bits := f.cellBits(); {
	case bits == 8 && f.Unsigned:
		return build[uint8](f)
	case bits == 8:
		return build[int8](f)
	case bits == 16 && f.Unsigned:
		return build[uint16](f)
	case bits == 16:
		return build[int16](f)
	case bits == 32 && f.Unsigned:
		return build[uint32](f)
	case bits == 32:
		return build[int32](f)
	case bits == 64 && f.Unsigned:
		return build[uint64](f)
	case bits == 64:
		return build[int64](f)
	default:
		return nil, invalidf("cell_bits must be 8, 16, 32 or 64, got %d", f.CellBits)
	}
}

func build[T fsm.Cell](f *File) (*Table, error) {
	variant, err := f.variant()
	if err != nil {
		return nil, invalidf("%v", err)
	}

	var table *fsm.Table[T]
	if len(f.Cells) > 0 {
		cells, err := fsm.ConvertCells[T](f.Cells)
		if err != nil {
			return nil, invalidf("%v", err)
		}
		table, err = fsm.NewTable(cells, variant)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFile, err)
		}
	} else {
		b, err := f.builder()
		if err != nil {
			return nil, err
		}
		table, err = fsm.Encode[T](b, variant)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFile, err)
		}
	}

	ids, err := table.AcceptIDs()
	if err != nil {
		return nil, err
	}
	return &Table{
		PathMatcher: fsm.NewMatcher(table),
		Variant:     variant,
		CellBits:    f.cellBits(),
		Unsigned:    f.Unsigned,
		Cells:       table.Len(),
		AcceptIDs:   ids,
	}, nil
}

func (f *File) builder() (*fsm.Builder, error) {
	b := fsm.NewBuilder()
	for range len(f.States) - 1 {
		b.State()
	}
	for i, s := range f.States {
		if s.Accept != nil {
			b.Accept(fsm.StateID(i), *s.Accept)
		}
		for j, tr := range s.Transitions {
			ranges, err := tr.byteRanges()
			if err != nil {
				return nil, invalidf("state %d transition %d: %v", i, j, err)
			}
			b.Transition(fsm.StateID(i), fsm.StateID(tr.Target), ranges...)
		}
	}
	return b, nil
}

func (f *File) variant() (fsm.Variant, error) {
	return fsm.ParseVariant(f.Variant)
}

func (f *File) cellBits() int {
	if f.CellBits == 0 {
		return 32
	}
	return f.CellBits
}

// byteRanges parses the predicates of a transition.
func (tr TransitionDef) byteRanges() ([]fsm.ByteRange, error) {
	ranges := make([]fsm.ByteRange, 0, len(tr.Bytes)+len(tr.Ranges))
	for i := 0; i < len(tr.Bytes); i++ {
		ranges = append(ranges, fsm.Byte(tr.Bytes[i]))
	}
	for _, s := range tr.Ranges {
		switch {
		case len(s) == 1:
			ranges = append(ranges, fsm.Byte(s[0]))
		case len(s) == 3 && s[1] == '-':
			if s[2] < s[0] {
				return nil, fmt.Errorf("range %q is inverted", s)
			}
			ranges = append(ranges, fsm.Span(s[0], s[2]))
		default:
			return nil, fmt.Errorf("range %q is not a byte or lo-hi pair", s)
		}
	}
	return ranges, nil
}
