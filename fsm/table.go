package fsm

import (
	"slices"
)

// Table is an immutable transition table. It is safe for concurrent use.
type Table[T Cell] struct {
	cells   []T
	variant Variant
	pred    Predicate[T]
}

// State is the decoded form of one table state.
type State struct {
	// Offset is the cell index the state starts at.
	Offset int

	// Accept is the handler index completed by this state, or NotAccepting.
	Accept int

	// Transitions are listed in table order.
	Transitions []Transition
}

// Accepting reports whether the state completes a route.
func (s State) Accepting() bool {
	return s.Accept >= 0
}

// Transition is the decoded form of one outgoing edge. Exact tables decode
// each value as a single-byte range.
type Transition struct {
	Target int
	Ranges []ByteRange
}

// NewTable copies cells into a new table and validates it.
func NewTable[T Cell](cells []T, variant Variant) (*Table[T], error) {
	t, err := newTable(cells, variant)
	if err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// NewTableUnchecked copies cells into a new table without validating it.
// It is meant for generated tables that are trusted build output. Matching
// against a malformed unchecked table panics with a *TableError.
func NewTableUnchecked[T Cell](cells []T, variant Variant) (*Table[T], error) {
	return newTable(cells, variant)
}

// MustTable is like NewTable but panics on error. It simplifies
// initialization of package-level tables.
func MustTable[T Cell](cells []T, variant Variant) *Table[T] {
	t, err := NewTable(cells, variant)
	if err != nil {
		panic(err)
	}
	return t
}

func newTable[T Cell](cells []T, variant Variant) (*Table[T], error) {
	pred, err := PredicateFor[T](variant)
	if err != nil {
		return nil, err
	}
	return &Table[T]{
		cells:   slices.Clone(cells),
		variant: variant,
		pred:    pred,
	}, nil
}

// Len returns the number of cells in the table.
func (t *Table[T]) Len() int {
	return len(t.cells)
}

// Variant returns the predicate encoding of the table.
func (t *Table[T]) Variant() Variant {
	return t.variant
}

// Cells returns a copy of the raw table cells.
func (t *Table[T]) Cells() []T {
	return slices.Clone(t.cells)
}

// States decodes the table sequentially from offset 0 to its last cell.
func (t *Table[T]) States() ([]State, error) {
	var states []State
	pos := 0
	for pos < len(t.cells) {
		s, next, err := t.decodeState(pos)
		if err != nil {
			return nil, err
		}
		states = append(states, s)
		pos = next
	}
	return states, nil
}

// decodeState decodes the state at pos and returns the offset right after
// it. Unlike the matcher's cursor it reports defects as errors.
func (t *Table[T]) decodeState(pos int) (State, int, error) {
	read := func() (int, error) {
		if pos >= len(t.cells) {
			return 0, tableErrorf(pos, "read past end of table")
		}
		v := int(t.cells[pos])
		pos++
		return v, nil
	}
	readCount := func() (int, error) {
		at := pos
		n, err := read()
		if err != nil {
			return 0, err
		}
		if n < 0 {
			return 0, tableErrorf(at, "negative count %d", n)
		}
		return n, nil
	}
	readByte := func() (byte, error) {
		at := pos
		v, err := read()
		if err != nil {
			return 0, err
		}
		if v < 0 || v > 0xff {
			return 0, tableErrorf(at, "predicate value %d is not a byte", v)
		}
		return byte(v), nil
	}

	s := State{Offset: pos}
	if pos >= len(t.cells) {
		return State{}, 0, tableErrorf(pos, "read past end of table")
	}
	s.Accept = acceptValue(t.cells[pos])
	pos++
	var err error
	if s.Accept < NotAccepting {
		return State{}, 0, tableErrorf(s.Offset, "accept id %d is neither a handler index nor %d", s.Accept, NotAccepting)
	}

	nt, err := readCount()
	if err != nil {
		return State{}, 0, err
	}
	s.Transitions = make([]Transition, 0, nt)
	for range nt {
		var tr Transition
		if tr.Target, err = read(); err != nil {
			return State{}, 0, err
		}
		np, err := readCount()
		if err != nil {
			return State{}, 0, err
		}
		tr.Ranges = make([]ByteRange, 0, np)
		for range np {
			var r ByteRange
			if r.Min, err = readByte(); err != nil {
				return State{}, 0, err
			}
			r.Max = r.Min
			if t.variant == Range {
				at := pos
				if r.Max, err = readByte(); err != nil {
					return State{}, 0, err
				}
				if r.Max < r.Min {
					return State{}, 0, tableErrorf(at, "range max %d below min %d", r.Max, r.Min)
				}
			}
			tr.Ranges = append(tr.Ranges, r)
		}
		s.Transitions = append(s.Transitions, tr)
	}
	return s, pos, nil
}

// Validate decodes the whole table and checks the invariants the matcher
// relies on: states tile the table with no gap, every target is a state
// boundary, and predicate entries are ascending and non-overlapping.
func (t *Table[T]) Validate() error {
	if len(t.cells) == 0 {
		return tableErrorf(0, "table has no root state")
	}
	states, err := t.States()
	if err != nil {
		return err
	}

	boundaries := make(map[int]struct{}, len(states))
	for _, s := range states {
		boundaries[s.Offset] = struct{}{}
	}

	for _, s := range states {
		for i, tr := range s.Transitions {
			if _, ok := boundaries[tr.Target]; !ok {
				return tableErrorf(s.Offset, "transition %d targets offset %d, which is not a state", i, tr.Target)
			}
			for j := 1; j < len(tr.Ranges); j++ {
				if tr.Ranges[j].Min <= tr.Ranges[j-1].Max {
					return tableErrorf(s.Offset, "transition %d predicates %s and %s are not ascending and disjoint",
						i, tr.Ranges[j-1], tr.Ranges[j])
				}
			}
		}
	}
	return nil
}

// AcceptIDs returns the distinct handler indexes the table can produce,
// in ascending order.
func (t *Table[T]) AcceptIDs() ([]int, error) {
	states, err := t.States()
	if err != nil {
		return nil, err
	}
	var ids []int
	for _, s := range states {
		if s.Accepting() {
			ids = append(ids, s.Accept)
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}
