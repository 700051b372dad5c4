package fsm

// cursor reads a transition table sequentially. Every read is checked
// against the table length; a read outside the table panics with a
// *TableError.
type cursor[T Cell] struct {
	cells []T
	pos   int
}

func newCursor[T Cell](cells []T, pos int) cursor[T] {
	if pos < 0 || pos >= len(cells) {
		panic(tableErrorf(pos, "state offset outside table of %d cells", len(cells)))
	}
	return cursor[T]{cells: cells, pos: pos}
}

// next returns the cell under the cursor and advances past it.
func (c *cursor[T]) next() int {
	if c.pos >= len(c.cells) {
		panic(tableErrorf(c.pos, "read past end of table"))
	}
	v := int(c.cells[c.pos])
	c.pos++
	return v
}

// accept reads an accept cell, mapping the all-ones value to NotAccepting.
func (c *cursor[T]) accept() int {
	if c.pos >= len(c.cells) {
		panic(tableErrorf(c.pos, "read past end of table"))
	}
	v := acceptValue(c.cells[c.pos])
	c.pos++
	return v
}

// count reads a transition or predicate count.
func (c *cursor[T]) count() int {
	at := c.pos
	n := c.next()
	if n < 0 {
		panic(tableErrorf(at, "negative count %d", n))
	}
	return n
}

// take returns the next n cells and advances past them.
func (c *cursor[T]) take(n int) []T {
	end := c.pos + n
	if end > len(c.cells) {
		panic(tableErrorf(c.pos, "predicate entry runs past end of table"))
	}
	entry := c.cells[c.pos:end]
	c.pos = end
	return entry
}

// skip advances past n cells without decoding them. The cursor may land
// exactly on the end of the table but not beyond it.
func (c *cursor[T]) skip(n int) {
	end := c.pos + n
	if n < 0 || end > len(c.cells) {
		panic(tableErrorf(c.pos, "skip of %d cells runs past end of table", n))
	}
	c.pos = end
}
