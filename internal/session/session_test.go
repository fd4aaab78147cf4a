package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dex "github.com/dex-lang/dex-go"
	"github.com/dex-lang/dex-go/internal/envconfig"
)

func TestValidateSource(t *testing.T) {
	assert.NoError(t, validateSource("x = 1\n"))
	assert.ErrorIs(t, validateSource(""), ErrInvalidRequest)
	assert.ErrorIs(t, validateSource("x = 1\x00"), ErrInvalidRequest)

	err := validateSource("x = \"\xe2\x82\xac\"")
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.ErrorIs(t, err, dex.ErrNonASCII)
	assert.ErrorContains(t, err, "offset 5")
}

func TestValidateNames(t *testing.T) {
	assert.NoError(t, validateNames(nil))
	assert.NoError(t, validateNames([]string{"x", "y"}))
	assert.ErrorIs(t, validateNames([]string{"x", ""}), ErrInvalidRequest)
}

func TestRequestValidation(t *testing.T) {
	s := &Session{}
	ctx := context.Background()

	_, err := s.Evaluate(ctx, "", []string{"x"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = s.Evaluate(ctx, "x = 1", []string{""})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = s.EvaluateBatch(ctx, []string{"x = 1", ""}, nil, 0)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.ErrorContains(t, err, "source 1")

	_, err = s.Signature(ctx, "def f (x:Float) : Float = x", "", dex.FlatCC)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = s.CompileJaxpr(ctx, "", dex.XLACC)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = s.RoundtripJaxpr(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestCanceledRequests(t *testing.T) {
	s := &Session{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Evaluate(ctx, "x = 1", nil)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = s.Signature(ctx, "x = 1", "x", dex.FlatCC)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = s.CompileJaxpr(ctx, "{}", dex.FlatCC)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = s.RoundtripJaxpr(ctx, "{}")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewFromFileMissingPrelude(t *testing.T) {
	_, err := NewFromFile(nil, filepath.Join(t.TempDir(), "prelude.dx"))
	assert.ErrorContains(t, err, "reading prelude")
}

func requireSession(t *testing.T, prelude string) *Session {
	t.Helper()
	if envconfig.Library == "" {
		t.Skip("DEX_LIBRARY not set")
	}
	rt, err := dex.Default()
	require.NoError(t, err)
	s, err := New(rt, prelude)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestEvaluate(t *testing.T) {
	s := requireSession(t, "base = 40\n")

	values, err := s.Evaluate(context.Background(), "answer = base + 2\n", []string{"answer", "base"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"answer": "42", "base": "40"}, values)

	// Each request runs in its own fork.
	_, err = s.Evaluate(context.Background(), "other = 1\n", []string{"answer"})
	assert.Error(t, err)
}

func TestEvaluateBatch(t *testing.T) {
	s := requireSession(t, "")

	out, err := s.EvaluateBatch(context.Background(), []string{"v = 1\n", "v = 2\n", "v = 3\n"}, []string{"v"}, 2)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i, want := range []string{"1", "2", "3"} {
		assert.Equal(t, want, out[i]["v"])
	}
}

func TestSignature(t *testing.T) {
	s := requireSession(t, "")

	sig, err := s.Signature(context.Background(), "def double (x: Float32) : Float32 = x * 2.0\n", "double", dex.FlatCC)
	require.NoError(t, err)
	require.Len(t, sig.Args, 1)
	assert.Equal(t, dex.Float32, sig.Args[0].Type)
}

func TestNewFromFile(t *testing.T) {
	if envconfig.Library == "" {
		t.Skip("DEX_LIBRARY not set")
	}
	path := filepath.Join(t.TempDir(), "prelude.dx")
	require.NoError(t, os.WriteFile(path, []byte("seed = 7\n"), 0o644))

	rt, err := dex.Default()
	require.NoError(t, err)
	s, err := NewFromFile(rt, path)
	require.NoError(t, err)
	defer s.Close()
	assert.Same(t, rt, s.Runtime())

	values, err := s.Evaluate(context.Background(), "twice = seed * 2\n", []string{"twice"})
	require.NoError(t, err)
	assert.Equal(t, "14", values["twice"])
}
