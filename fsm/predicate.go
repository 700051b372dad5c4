package fsm

import (
	"fmt"
	"strings"
)

// Variant selects how predicate entries are encoded in a table. A table
// commits to one variant for all of its transitions.
type Variant uint8

const (
	// Exact tables store one literal byte value per predicate entry.
	Exact Variant = iota + 1

	// Range tables store an inclusive min, max pair per predicate entry.
	Range
)

func (v Variant) String() string {
	switch v {
	case Exact:
		return "exact"
	case Range:
		return "range"
	default:
		return fmt.Sprintf("Variant(%d)", uint8(v))
	}
}

// ParseVariant returns the variant named by s ("exact" or "range").
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "exact":
		return Exact, nil
	case "range":
		return Range, nil
	default:
		return 0, fmt.Errorf("fsm: unknown table variant %q", s)
	}
}

// Order is the outcome of testing an input byte against one predicate entry.
type Order int8

const (
	// Below means the byte sorts before the entry. Entries are ascending,
	// so no later entry of the same transition can match either.
	Below Order = iota - 1

	// Hit means the entry matches the byte.
	Hit

	// Above means the byte sorts after the entry; later entries may match.
	Above
)

// Predicate decodes and tests one predicate entry. The engine only needs
// to know how many cells an entry occupies and how a byte compares to it.
type Predicate[T Cell] interface {
	// Width is the number of cells in one entry.
	Width() int

	// Test compares the input byte c against entry, which holds exactly
	// Width cells. c is negative at end of input and then sorts Below
	// every entry.
	Test(c int, entry []T) Order
}

// ExactPredicate matches a single byte value.
type ExactPredicate[T Cell] struct{}

func (ExactPredicate[T]) Width() int { return 1 }

func (ExactPredicate[T]) Test(c int, entry []T) Order {
	v := int(entry[0])
	switch {
	case c < v:
		return Below
	case c == v:
		return Hit
	default:
		return Above
	}
}

// RangePredicate matches an inclusive byte range.
type RangePredicate[T Cell] struct{}

func (RangePredicate[T]) Width() int { return 2 }

func (RangePredicate[T]) Test(c int, entry []T) Order {
	switch {
	case c < int(entry[0]):
		return Below
	case c <= int(entry[1]):
		return Hit
	default:
		return Above
	}
}

// PredicateFor returns the predicate implementation for v.
func PredicateFor[T Cell](v Variant) (Predicate[T], error) {
	switch v {
	case Exact:
		return ExactPredicate[T]{}, nil
	case Range:
		return RangePredicate[T]{}, nil
	default:
		return nil, fmt.Errorf("fsm: unsupported table variant %s", v)
	}
}

// ByteRange is an inclusive range of byte values. A single byte is a range
// whose Min equals its Max.
type ByteRange struct {
	Min byte
	Max byte
}

// Byte returns the range holding only c.
func Byte(c byte) ByteRange {
	return ByteRange{Min: c, Max: c}
}

// Span returns the inclusive range lo..hi.
func Span(lo, hi byte) ByteRange {
	return ByteRange{Min: lo, Max: hi}
}

// Contains reports whether c lies within the range.
func (r ByteRange) Contains(c byte) bool {
	return c >= r.Min && c <= r.Max
}

func (r ByteRange) String() string {
	if r.Min == r.Max {
		return fmt.Sprintf("%q", r.Min)
	}
	return fmt.Sprintf("%q-%q", r.Min, r.Max)
}
