// Package fsm implements a compact, table-driven finite-state matcher that
// maps an HTTP request path to a handler index.
//
// The matcher is a pure interpreter. The transition table is produced by an
// external compiler from route templates and is loaded once, before the
// router starts serving. The package never mutates a table after it has
// been constructed, so a single Matcher can be shared by any number of
// goroutines.
//
// # Table Format
//
// A table is a flat slice of integer cells. States are laid out
// back to back starting at offset 0 (the root state):
//
//	state:      accept, transition_count, transition...
//	transition: target_offset, predicate_count, predicate...
//	predicate:  value          (Exact variant)
//	            min, max       (Range variant)
//
// An accept with every bit set (-1 in signed tables, the maximum value in
// unsigned ones) marks a state that does not complete a route. Predicate
// entries within one transition are sorted ascending and do not overlap.
// Bytes 0x80 and up need unsigned or wider than 8-bit cells.
//
// # Matching
//
//	t, err := fsm.NewTable(cells, fsm.Range)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	m := fsm.NewMatcher(t)
//	idx := m.Match("/users/7?sort=asc") // query string is ignored
//	if idx == fsm.NoMatch {
//	    // fall back to the 404 handler
//	}
//
// The path ends at the first '?' or NUL byte. A match succeeds only when an
// accepting state is reached after at least one transition and no path
// bytes remain. When an attempt dies before reaching such a state, the
// search restarts from the root one byte further into the path, so a route
// may match a suffix of the path. Reaching an accepting state with bytes
// left over ends the search with NoMatch.
//
// # Malformed Tables
//
// Every cell read is bounds-checked. A table that sends the decoder outside
// its cells is a build defect, not a runtime input problem, and Match
// panics with a *TableError instead of returning a wrong handler index.
// NewTable validates the whole table up front so that such panics cannot
// happen for tables it accepts.
package fsm
