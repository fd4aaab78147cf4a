package dex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckASCII(t *testing.T) {
	assert.NoError(t, CheckASCII(""))
	assert.NoError(t, CheckASCII("def f (x:Float) : Float = x * 2.0\n"))

	err := CheckASCII("a\x00b")
	assert.ErrorIs(t, err, ErrNonASCII)
	assert.ErrorContains(t, err, "offset 1")

	err = CheckASCII("π = 3")
	assert.ErrorIs(t, err, ErrNonASCII)
	assert.ErrorContains(t, err, "0xcf")
}

func TestDecodeASCII(t *testing.T) {
	s, err := decodeASCII([]byte("[1., 2.]"))
	require.NoError(t, err)
	assert.Equal(t, "[1., 2.]", s)

	_, err = decodeASCII([]byte{'o', 'k', 0xff})
	assert.ErrorIs(t, err, ErrNonASCII)
}

func TestSanitizeASCII(t *testing.T) {
	assert.Equal(t, "plain", sanitizeASCII([]byte("plain")))
	assert.Equal(t, "bad ��!", sanitizeASCII([]byte{'b', 'a', 'd', ' ', 0xc3, 0xa9, '!'}))
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "dex: eval: Type error", (&Error{Op: "eval", Message: "Type error"}).Error())
	assert.Equal(t, "dex: lookup: unknown error", (&Error{Op: "lookup"}).Error())

	le := &LayoutError{Type: "CAtom", Got: 40, Want: 32}
	assert.Equal(t, "dex: ABI layout mismatch for CAtom: got 40 bytes, want 32", le.Error())
}
