package fsm

// endOfInput is the byte code the stream yields once the path is consumed.
const endOfInput = -1

type byteString interface {
	~string | ~[]byte
}

// pathEnd returns the length of the path part of a request target: the
// index of the first NUL or '?', or len(s) when neither occurs.
func pathEnd[S byteString](s S) int {
	for i := 0; i < len(s); i++ {
		if s[i] == 0 || s[i] == '?' {
			return i
		}
	}
	return len(s)
}

// Path returns the path part of a request target, dropping the query
// string and anything after a NUL byte.
func Path(pathAndQuery string) string {
	return pathAndQuery[:pathEnd(pathAndQuery)]
}

// stream yields the path bytes of a request target one at a time. The
// terminator itself is never yielded.
type stream[S byteString] struct {
	src S
	pos int
	end int
}

func newStream[S byteString](src S) stream[S] {
	return stream[S]{src: src, end: pathEnd(src)}
}

// next returns the next path byte, or endOfInput once the path is consumed.
func (s *stream[S]) next() int {
	if s.pos >= s.end {
		return endOfInput
	}
	c := s.src[s.pos]
	s.pos++
	return int(c)
}

// seek moves the stream to the given path offset.
func (s *stream[S]) seek(pos int) {
	s.pos = pos
}

// exhausted reports whether every path byte has been consumed.
func (s *stream[S]) exhausted() bool {
	return s.pos >= s.end
}
