package cli

import (
	"errors"
	"fmt"
	"os"

	dex "github.com/dex-lang/dex-go"
	"github.com/dex-lang/dex-go/internal/envconfig"
	"github.com/dex-lang/dex-go/internal/session"
)

// libraryPath returns the --library flag, or the library chosen from the
// environment and the search path.
func libraryPath(opts *RootOptions) (string, error) {
	explicit := opts.Library
	if explicit == "" {
		explicit = envconfig.Library
	}
	return dex.ResolveLibrary(explicit)
}

// openSession loads libDex and creates a session seeded with DEX_PRELUDE.
// The returned cleanup closes the session and finalizes the runtime.
func openSession(opts *RootOptions, f *OutputFormatter) (*session.Session, func(), error) {
	path, err := libraryPath(opts)
	if err != nil {
		return nil, nil, reportError(f, ErrCodeLoad, ExitCommandError, err)
	}
	f.VerboseLog("Loading %s", path)

	rt, err := dex.Load(path)
	if err != nil {
		return nil, nil, reportError(f, ErrCodeLoad, ExitCommandError, err)
	}
	s, err := session.NewFromFile(rt, envconfig.Prelude)
	if err != nil {
		rt.Shutdown()
		return nil, nil, commandError(f, err)
	}
	return s, func() {
		s.Close()
		rt.Shutdown()
	}, nil
}

// readSource reads a program file and checks that libDex can accept it.
func readSource(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	source := string(b)
	if err := dex.CheckASCII(source); err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return source, nil
}

func reportError(f *OutputFormatter, code string, exit int, err error) error {
	_ = f.Error(code, err.Error())
	return WrapExitError(exit, code, err)
}

// commandError reports err and picks the exit code: problems with the input
// are command errors, failures inside libDex are plain failures.
func commandError(f *OutputFormatter, err error) error {
	switch {
	case errors.Is(err, session.ErrInvalidRequest),
		errors.Is(err, dex.ErrNonASCII),
		errors.Is(err, dex.ErrInvalidJaxpr):
		return reportError(f, ErrCodeRequest, ExitCommandError, err)
	case errors.Is(err, dex.ErrFinalized), errors.Is(err, dex.ErrAlreadyLoaded), errors.Is(err, dex.ErrOptionMismatch):
		return reportError(f, ErrCodeLoad, ExitCommandError, err)
	}
	return reportError(f, ErrCodeDex, ExitFailure, err)
}
