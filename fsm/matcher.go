package fsm

// PathMatcher maps a request path, optionally followed by a query string,
// to a handler index or NoMatch.
type PathMatcher interface {
	Match(pathAndQuery string) int
}

// Matcher interprets a transition table against request paths. It holds no
// per-call state and is safe for concurrent use.
type Matcher[T Cell] struct {
	table *Table[T]
}

// NewMatcher returns a matcher for t.
func NewMatcher[T Cell](t *Table[T]) *Matcher[T] {
	return &Matcher[T]{table: t}
}

// Table returns the table the matcher interprets.
func (m *Matcher[T]) Table() *Table[T] {
	return m.table
}

// Match returns the handler index of the route that matches the path part
// of pathAndQuery, or NoMatch. It panics with a *TableError if the table
// turns out to be malformed.
func (m *Matcher[T]) Match(pathAndQuery string) int {
	return match(m.table, pathAndQuery)
}

// MatchBytes is like Match but takes the request target as a byte slice.
func (m *Matcher[T]) MatchBytes(pathAndQuery []byte) int {
	return match(m.table, pathAndQuery)
}

// match runs one attempt per start offset until an attempt decides the
// result. A failed attempt moves the start one byte to the right.
func match[T Cell, S byteString](t *Table[T], pathAndQuery S) int {
	in := newStream(pathAndQuery)
	for start := 0; start < in.end; start++ {
		in.seek(start)
		if id, decided := attempt(t, &in); decided {
			return id
		}
	}
	return NoMatch
}

// attempt walks the table from the root state consuming bytes from in.
// decided is false when the attempt died before taking a transition or in
// a non-accepting state, so the search should retry at the next offset.
func attempt[T Cell, S byteString](t *Table[T], in *stream[S]) (id int, decided bool) {
	var (
		state = 0
		taken = false
		c     = in.next()
	)
	for {
		cur := newCursor(t.cells, state)
		accept := cur.accept()
		target, ok := step(t.pred, &cur, c)
		if ok {
			taken = true
			state = target
			c = in.next()
			continue
		}

		if accept < 0 || !taken {
			return NoMatch, false
		}
		if c == endOfInput && in.exhausted() {
			return accept, true
		}
		// Accepting, but path bytes are left over.
		return NoMatch, true
	}
}

// step scans the transitions of the state whose accept cell was just read
// and returns the target of the first transition whose predicates match c.
func step[T Cell](pred Predicate[T], cur *cursor[T], c int) (int, bool) {
	width := pred.Width()
	transitions := cur.count()
	for range transitions {
		target := cur.next()
		n := cur.count()
	entries:
		for j := 0; j < n; j++ {
			switch pred.Test(c, cur.take(width)) {
			case Hit:
				return target, true
			case Below:
				cur.skip((n - j - 1) * width)
				break entries
			}
		}
	}
	return 0, false
}
