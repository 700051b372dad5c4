package fsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTableValidation(t *testing.T) {
	tests := []struct {
		name    string
		cells   []int32
		variant Variant
		wantErr string
	}{
		{
			name:    "empty table",
			cells:   nil,
			variant: Exact,
			wantErr: "no root state",
		},
		{
			name:    "accept below sentinel",
			cells:   []int32{-2, 0},
			variant: Exact,
			wantErr: "accept id -2",
		},
		{
			name:    "truncated state",
			cells:   []int32{-1},
			variant: Exact,
			wantErr: "read past end",
		},
		{
			name:    "gap after last state",
			cells:   []int32{0, 0, 7},
			variant: Exact,
			wantErr: "read past end",
		},
		{
			name:    "target inside a state",
			cells:   []int32{-1, 1, 1, 1, 'a'},
			variant: Exact,
			wantErr: "not a state",
		},
		{
			name:    "value is not a byte",
			cells:   []int32{-1, 1, 0, 1, 300},
			variant: Exact,
			wantErr: "not a byte",
		},
		{
			name:    "unsorted exact values",
			cells:   []int32{-1, 1, 0, 2, 'b', 'a'},
			variant: Exact,
			wantErr: "not ascending",
		},
		{
			name:    "duplicate exact values",
			cells:   []int32{-1, 1, 0, 2, 'a', 'a'},
			variant: Exact,
			wantErr: "not ascending",
		},
		{
			name:    "overlapping ranges",
			cells:   []int32{-1, 1, 0, 2, 'a', 'f', 'c', 'h'},
			variant: Range,
			wantErr: "not ascending",
		},
		{
			name:    "inverted range",
			cells:   []int32{-1, 1, 0, 1, 'z', 'a'},
			variant: Range,
			wantErr: "below min",
		},
		{
			name:    "negative transition count",
			cells:   []int32{-1, -1},
			variant: Range,
			wantErr: "negative count",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.cells, tt.variant)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedTable)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewTableUnknownVariant(t *testing.T) {
	_, err := NewTable([]int32{0, 0}, Variant(9))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Variant(9)")
}

func TestNewTableCopiesCells(t *testing.T) {
	cells := []int32{-1, 1, 6, 1, '/', '/', 0, 0}
	table, err := NewTable(cells, Range)
	require.NoError(t, err)

	cells[4] = 'x'
	cells[5] = 'x'
	assert.Equal(t, 0, NewMatcher(table).Match("/"))

	out := table.Cells()
	out[0] = 99
	assert.Equal(t, int32(-1), table.Cells()[0])
}

func TestTableStates(t *testing.T) {
	cells := []int16{
		-1, 2,
		12, 2, 'a', 'c', 'x', 'z',
		14, 1, '0', '9',
		0, 0,
		1, 1, 14, 1, '0', '9',
	}
	table := MustTable(cells, Range)

	states, err := table.States()
	require.NoError(t, err)
	require.Len(t, states, 3)

	assert.Equal(t, State{
		Offset: 0,
		Accept: NotAccepting,
		Transitions: []Transition{
			{Target: 12, Ranges: []ByteRange{Span('a', 'c'), Span('x', 'z')}},
			{Target: 14, Ranges: []ByteRange{Span('0', '9')}},
		},
	}, states[0])
	assert.False(t, states[0].Accepting())

	assert.Equal(t, 12, states[1].Offset)
	assert.True(t, states[1].Accepting())
	assert.Empty(t, states[1].Transitions)

	assert.Equal(t, 14, states[2].Offset)
	assert.Equal(t, 1, states[2].Accept)

	ids, err := table.AcceptIDs()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, ids)

	assert.Equal(t, len(cells), table.Len())
	assert.Equal(t, Range, table.Variant())
}

func TestMustTablePanics(t *testing.T) {
	assert.Panics(t, func() {
		MustTable([]int32{-1, 1, 99, 0}, Exact)
	})
}

func TestConvertCells(t *testing.T) {
	t.Run("fits", func(t *testing.T) {
		out, err := ConvertCells[int8]([]int64{-1, 2, 127})
		require.NoError(t, err)
		assert.Equal(t, []int8{-1, 2, 127}, out)
	})

	t.Run("overflow", func(t *testing.T) {
		_, err := ConvertCells[int8]([]int64{-1, 200})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cell 1 value 200")
	})

	t.Run("unsigned not accepting", func(t *testing.T) {
		out, err := ConvertCells[uint8]([]int64{-1, 2, 200})
		require.NoError(t, err)
		assert.Equal(t, []uint8{0xff, 2, 200}, out)

		wide, err := ConvertCells[uint64]([]int64{-1, 7})
		require.NoError(t, err)
		assert.Equal(t, []uint64{^uint64(0), 7}, wide)
	})

	t.Run("unsigned rejects other negatives", func(t *testing.T) {
		_, err := ConvertCells[uint64]([]int64{-1, -2})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cell 1 value -2 is negative")
	})

	t.Run("unsigned overflow", func(t *testing.T) {
		_, err := ConvertCells[uint8]([]int64{256})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "overflows uint8")
	})
}

func TestUnsignedTableStates(t *testing.T) {
	// root (not accepting) --0xc8--> state 5 (accept 0)
	table, err := NewTable([]uint8{0xff, 1, 5, 1, 0xc8, 0, 0}, Exact)
	require.NoError(t, err)

	states, err := table.States()
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, NotAccepting, states[0].Accept)
	assert.Equal(t, []ByteRange{Byte(0xc8)}, states[0].Transitions[0].Ranges)
	assert.Equal(t, 0, states[1].Accept)

	ids, err := table.AcceptIDs()
	require.NoError(t, err)
	assert.Equal(t, []int{0}, ids)
}
