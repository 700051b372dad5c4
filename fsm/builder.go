package fsm

import (
	"cmp"
	"fmt"
	"slices"
)

// StateID identifies a state inside a Builder. It is an index, not a table
// offset; offsets are assigned by Encode.
type StateID int

// Root is the StateID of the root state every Builder starts with.
const Root StateID = 0

// Builder assembles a state graph and encodes it into the flat table
// format. It does not compile route templates; callers describe states and
// transitions directly.
type Builder struct {
	states []builderState
}

type builderState struct {
	accept      int
	transitions []builderTransition
}

type builderTransition struct {
	to     StateID
	ranges []ByteRange
}

// NewBuilder returns a builder holding a non-accepting root state.
func NewBuilder() *Builder {
	return &Builder{states: []builderState{{accept: NotAccepting}}}
}

// State adds a new non-accepting state.
func (b *Builder) State() StateID {
	b.states = append(b.states, builderState{accept: NotAccepting})
	return StateID(len(b.states) - 1)
}

// Accept marks s as completing the route with the given handler index.
// Passing NotAccepting clears the mark.
func (b *Builder) Accept(s StateID, handlerIndex int) {
	b.states[s].accept = handlerIndex
}

// Transition adds an edge from one state to another, taken on any byte in
// ranges. Transitions are tried in the order they are added.
func (b *Builder) Transition(from, to StateID, ranges ...ByteRange) {
	b.states[from].transitions = append(b.states[from].transitions, builderTransition{
		to:     to,
		ranges: slices.Clone(ranges),
	})
}

// Literal follows or creates a chain of single-byte transitions spelling s,
// starting at from, and returns the state reached after the last byte.
func (b *Builder) Literal(from StateID, s string) StateID {
	cur := from
	for i := 0; i < len(s); i++ {
		next, ok := b.literalEdge(cur, s[i])
		if !ok {
			next = b.State()
			b.Transition(cur, next, Byte(s[i]))
		}
		cur = next
	}
	return cur
}

func (b *Builder) literalEdge(from StateID, c byte) (StateID, bool) {
	for _, tr := range b.states[from].transitions {
		if len(tr.ranges) == 1 && tr.ranges[0] == Byte(c) {
			return tr.to, true
		}
	}
	return 0, false
}

// Len returns the number of states in the builder.
func (b *Builder) Len() int {
	return len(b.states)
}

// Encode lays out the builder's states into a validated table of cell type
// T. Ranges of each transition are sorted and merged; exact tables store
// every byte of a range as its own entry.
func Encode[T Cell](b *Builder, variant Variant) (*Table[T], error) {
	pred, err := PredicateFor[T](variant)
	if err != nil {
		return nil, err
	}
	width := pred.Width()

	entries := make([][][][]int64, len(b.states))
	offsets := make([]int, len(b.states))
	size := 0
	for i, s := range b.states {
		offsets[i] = size
		size += 2
		entries[i] = make([][][]int64, len(s.transitions))
		for j, tr := range s.transitions {
			if int(tr.to) < 0 || int(tr.to) >= len(b.states) {
				return nil, fmt.Errorf("fsm: state %d transition %d targets unknown state %d", i, j, tr.to)
			}
			entries[i][j] = encodeRanges(normalizeRanges(tr.ranges), variant)
			size += 2 + len(entries[i][j])*width
		}
	}

	cells := make([]int64, 0, size)
	for i, s := range b.states {
		if unsignedCell[T]() && s.accept != NotAccepting && T(s.accept) == notAccepting[T]() {
			return nil, fmt.Errorf("fsm: state %d accept id %d is reserved for NotAccepting in %T tables", i, s.accept, T(0))
		}
		cells = append(cells, int64(s.accept), int64(len(s.transitions)))
		for j, tr := range s.transitions {
			cells = append(cells, int64(offsets[tr.to]), int64(len(entries[i][j])))
			for _, e := range entries[i][j] {
				cells = append(cells, e...)
			}
		}
	}

	narrowed, err := ConvertCells[T](cells)
	if err != nil {
		return nil, err
	}
	return NewTable(narrowed, variant)
}

// normalizeRanges sorts ranges and merges those that overlap or touch.
func normalizeRanges(ranges []ByteRange) []ByteRange {
	rs := slices.Clone(ranges)
	slices.SortFunc(rs, func(a, b ByteRange) int {
		return cmp.Compare(a.Min, b.Min)
	})
	out := rs[:0]
	for _, r := range rs {
		if n := len(out); n > 0 && int(r.Min) <= int(out[n-1].Max)+1 {
			if r.Max > out[n-1].Max {
				out[n-1].Max = r.Max
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

func encodeRanges(ranges []ByteRange, variant Variant) [][]int64 {
	var out [][]int64
	for _, r := range ranges {
		if variant == Range {
			out = append(out, []int64{int64(r.Min), int64(r.Max)})
			continue
		}
		for c := int(r.Min); c <= int(r.Max); c++ {
			out = append(out, []int64{int64(c)})
		}
	}
	return out
}
