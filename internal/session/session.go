// Package session layers request-shaped operations over a dex.Runtime: each
// request runs in a fork of a shared base context so requests never see each
// other's definitions.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	dex "github.com/dex-lang/dex-go"
)

// ErrInvalidRequest marks errors caused by the request rather than libDex.
var ErrInvalidRequest = errors.New("invalid request")

type Session struct {
	rt   *dex.Runtime
	base *dex.Context
}

// New creates a session whose base context is seeded with prelude, which
// may be empty.
func New(rt *dex.Runtime, prelude string) (*Session, error) {
	base, err := rt.NewContext()
	if err != nil {
		return nil, err
	}
	if prelude != "" {
		if err := base.Eval(prelude); err != nil {
			base.Close()
			return nil, fmt.Errorf("evaluating prelude: %w", err)
		}
	}
	return &Session{rt: rt, base: base}, nil
}

// NewFromFile is New with the prelude read from path. An empty path means no
// prelude.
func NewFromFile(rt *dex.Runtime, path string) (*Session, error) {
	if path == "" {
		return New(rt, "")
	}
	prelude, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading prelude: %w", err)
	}
	slog.Debug("loading prelude", "path", path, "bytes", len(prelude))
	return New(rt, string(prelude))
}

func (s *Session) Runtime() *dex.Runtime {
	return s.rt
}

// Close releases the base context. The runtime is left running.
func (s *Session) Close() {
	s.base.Close()
}

func validateSource(source string) error {
	if source == "" {
		return fmt.Errorf("%w: source is empty", ErrInvalidRequest)
	}
	if err := dex.CheckASCII(source); err != nil {
		return fmt.Errorf("%w: source: %w", ErrInvalidRequest, err)
	}
	return nil
}

func validateNames(names []string) error {
	for _, name := range names {
		if name == "" {
			return fmt.Errorf("%w: empty name", ErrInvalidRequest)
		}
	}
	return nil
}

func (s *Session) fork(ctx context.Context, source string) (*dex.Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := s.base.Fork()
	if err != nil {
		return nil, err
	}
	if err := c.Eval(source); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func printNames(c *dex.Context, names []string) (map[string]string, error) {
	values := make(map[string]string, len(names))
	for _, name := range names {
		atom, err := c.Lookup(name)
		if err != nil {
			return nil, err
		}
		text, err := c.Print(atom)
		if err != nil {
			return nil, err
		}
		values[name] = text
	}
	return values, nil
}

// Evaluate runs source in a fresh fork of the base context and prints each
// requested name.
func (s *Session) Evaluate(ctx context.Context, source string, names []string) (map[string]string, error) {
	if err := validateSource(source); err != nil {
		return nil, err
	}
	if err := validateNames(names); err != nil {
		return nil, err
	}
	c, err := s.fork(ctx, source)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return printNames(c, names)
}

// EvaluateBatch is Evaluate for several programs at once. The same names are
// printed from every program.
func (s *Session) EvaluateBatch(ctx context.Context, sources []string, names []string, concurrency int) ([]map[string]string, error) {
	for i, source := range sources {
		if err := validateSource(source); err != nil {
			return nil, fmt.Errorf("source %d: %w", i, err)
		}
	}
	if err := validateNames(names); err != nil {
		return nil, err
	}

	contexts, err := s.rt.ParallelEval(ctx, s.base, sources, concurrency)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, c := range contexts {
			c.Close()
		}
	}()

	out := make([]map[string]string, len(contexts))
	for i, c := range contexts {
		values, err := printNames(c, names)
		if err != nil {
			return nil, fmt.Errorf("source %d: %w", i, err)
		}
		out[i] = values
	}
	return out, nil
}

// Signature compiles name from source and returns its parsed signature. The
// compiled code is unloaded before returning.
func (s *Session) Signature(ctx context.Context, source, name string, cc dex.ExportCC) (*dex.Signature, error) {
	if err := validateSource(source); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("%w: function name is empty", ErrInvalidRequest)
	}
	c, err := s.fork(ctx, source)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	atom, err := c.Lookup(name)
	if err != nil {
		return nil, err
	}
	fn, err := c.Compile(cc, atom)
	if err != nil {
		return nil, err
	}
	defer fn.Close()
	return fn.Signature()
}

// CompileJaxpr compiles a serialized jaxpr and returns its signature.
func (s *Session) CompileJaxpr(ctx context.Context, jaxpr string, cc dex.ExportCC) (*dex.Signature, error) {
	if jaxpr == "" {
		return nil, fmt.Errorf("%w: jaxpr is empty", ErrInvalidRequest)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := s.base.Fork()
	if err != nil {
		return nil, err
	}
	defer c.Close()

	fn, err := c.CompileJaxpr(cc, jaxpr)
	if err != nil {
		return nil, err
	}
	defer fn.Close()
	return fn.Signature()
}

// RoundtripJaxpr passes a serialized jaxpr through libDex's parser and
// printer.
func (s *Session) RoundtripJaxpr(ctx context.Context, jaxpr string) (string, error) {
	if jaxpr == "" {
		return "", fmt.Errorf("%w: jaxpr is empty", ErrInvalidRequest)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.rt.RoundtripJaxprJSON(jaxpr)
}
