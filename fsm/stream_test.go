package fsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/", "/"},
		{"/home", "/home"},
		{"/home?x=1", "/home"},
		{"/home?", "/home"},
		{"?x=1", ""},
		{"/a\x00b", "/a"},
		{"/a\x00b?c", "/a"},
		{"/a?b\x00c", "/a"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Path(tt.in))
		})
	}
}

func TestStream(t *testing.T) {
	t.Run("yields path bytes then end of input", func(t *testing.T) {
		s := newStream("/ab?cd")
		assert.Equal(t, int('/'), s.next())
		assert.Equal(t, int('a'), s.next())
		assert.False(t, s.exhausted())
		assert.Equal(t, int('b'), s.next())
		assert.True(t, s.exhausted())
		assert.Equal(t, endOfInput, s.next())
		assert.Equal(t, endOfInput, s.next())
	})

	t.Run("string and bytes agree", func(t *testing.T) {
		for _, in := range []string{"/x/y?z", "plain", "", "?", "a\x00b"} {
			ss := newStream(in)
			bs := newStream([]byte(in))
			assert.Equal(t, ss.end, bs.end)
			for {
				a, b := ss.next(), bs.next()
				assert.Equal(t, a, b)
				if a == endOfInput {
					break
				}
			}
		}
	})

	t.Run("seek rewinds", func(t *testing.T) {
		s := newStream("/abc")
		s.next()
		s.next()
		s.seek(1)
		assert.Equal(t, int('a'), s.next())
	})

	t.Run("high bytes are not end of input", func(t *testing.T) {
		s := newStream("\xff")
		assert.Equal(t, 0xff, s.next())
	})
}
