package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("boom")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flag")))

	wrapped := fmt.Errorf("outer: %w", WrapExitError(ExitCommandError, "load", errors.New("missing")))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
}

func TestExitErrorMessage(t *testing.T) {
	inner := errors.New("missing")
	err := WrapExitError(ExitFailure, "E_LOAD", inner)
	assert.Equal(t, "E_LOAD: missing", err.Error())
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "plain", NewExitError(ExitFailure, "plain").Error())
}

func TestFormatterSuccessJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, f.Success(map[string]int{"n": 3}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"n": float64(3)}, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestFormatterErrorYAML(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "yaml", Writer: buf}

	require.NoError(t, f.Error(ErrCodeDex, "Type error"))

	var resp CLIResponse
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeDex, resp.Error.Code)
	assert.Equal(t, "Type error", resp.Error.Message)
}

func TestFormatterErrorText(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, f.Error(ErrCodeUsage, "no such file"))
	assert.Equal(t, "Error [E_USAGE]: no such file\n", buf.String())
}

func TestFormatterTable(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf}

	results := EvalResults{
		{File: "a.dx", Bindings: []Binding{{Name: "x", Value: "3"}}},
		{File: "b.dx", Bindings: []Binding{{Name: "x", Value: "4"}}},
	}
	require.NoError(t, f.Success(results))

	out := buf.String()
	assert.Contains(t, out, "FILE")
	assert.Contains(t, out, "a.dx")
	assert.Contains(t, out, "b.dx")
	assert.Contains(t, out, "4")
}

func TestFormatterUnsupported(t *testing.T) {
	f := &OutputFormatter{Format: "xml", Writer: &bytes.Buffer{}}
	assert.Error(t, f.Success("x"))
}

func TestVerboseLog(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut, Verbose: true}
	f.VerboseLog("loading %s", "libDex.so")
	assert.Empty(t, out.String())
	assert.Equal(t, "loading libDex.so\n", errOut.String())

	quiet := &OutputFormatter{Format: "text", Writer: out}
	quiet.VerboseLog("hidden")
	assert.Empty(t, out.String())
}
