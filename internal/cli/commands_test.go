package cli

import (
	"bytes"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestEvalMissingFile(t *testing.T) {
	cmd := NewEvalCommand(&RootOptions{Format: "text"})
	out, err := execute(t, cmd, filepath.Join(t.TempDir(), "missing.dx"))

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E_USAGE]")
}

func TestEvalRejectsNonASCIISource(t *testing.T) {
	path := writeFile(t, "prog.dx", "x = \"caf\xc3\xa9\"\n")
	cmd := NewEvalCommand(&RootOptions{Format: "json"})
	out, err := execute(t, cmd, path)

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "offset 8")
}

func TestEvalRejectsNegativeParallel(t *testing.T) {
	path := writeFile(t, "prog.dx", "x = 1\n")
	cmd := NewEvalCommand(&RootOptions{Format: "text"})
	_, err := execute(t, cmd, "--parallel", "-1", path)

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSignatureRejectsUnknownCC(t *testing.T) {
	cmd := NewSignatureCommand(&RootOptions{Format: "text"})
	out, err := execute(t, cmd, "--cc", "cuda", "missing.dx", "f")

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "cuda")
}

func TestSignatureArgs(t *testing.T) {
	cmd := NewSignatureCommand(&RootOptions{Format: "text"})
	_, err := execute(t, cmd, "only-one-arg.dx")
	require.Error(t, err)
}

func TestJaxprRejectsInvalidJSON(t *testing.T) {
	path := writeFile(t, "prog.json", "{not json")
	for _, sub := range []string{"roundtrip", "compile"} {
		t.Run(sub, func(t *testing.T) {
			cmd := NewJaxprCommand(&RootOptions{Format: "text"})
			out, err := execute(t, cmd, sub, path)

			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, "not valid JSON")
		})
	}
}

func TestJaxprCompileRejectsUnknownCC(t *testing.T) {
	path := writeFile(t, "prog.json", "{}")
	cmd := NewJaxprCommand(&RootOptions{Format: "text"})
	_, err := execute(t, cmd, "compile", "--cc", "gpu", path)

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestEnvText(t *testing.T) {
	cmd := NewEnvCommand(&RootOptions{Format: "text"})
	out, err := execute(t, cmd)

	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "DEX_LIBRARY")
	assert.Contains(t, out, "DEX_SERIALIZE")
}

func TestEnvJSON(t *testing.T) {
	cmd := NewEnvCommand(&RootOptions{Format: "json"})
	out, err := execute(t, cmd)
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   []EnvSetting `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	names := make([]string, len(resp.Data))
	for i, s := range resp.Data {
		names[i] = s.Name
	}
	assert.IsNonDecreasing(t, names)
	assert.Contains(t, names, "DEX_NUM_PARALLEL")
}

func TestInfoWithExplicitLibrary(t *testing.T) {
	lib := writeFile(t, "libDex.so", "")
	cmd := NewInfoCommand(&RootOptions{Format: "json", Library: lib})
	out, err := execute(t, cmd)
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   InfoResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, lib, resp.Data.Library)
	assert.False(t, resp.Data.Checked)
	assert.Equal(t, Layout{CLit: 16, CRectArray: 24, CAtom: 32}, resp.Data.Layout)
}

func TestInfoMissingLibrary(t *testing.T) {
	cmd := NewInfoCommand(&RootOptions{Format: "text", Library: filepath.Join(t.TempDir(), "libDex.so")})
	out, err := execute(t, cmd)

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "(not found)")
	assert.Contains(t, out, "CAtom=32")
}

func TestInfoCheckLoadFailure(t *testing.T) {
	lib := writeFile(t, "libDex.so", "not a shared object")
	cmd := NewInfoCommand(&RootOptions{Format: "json", Library: lib})
	out, err := execute(t, cmd, "--check")

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorContains(t, err, ErrCodeLoad)

	var resp struct {
		Data InfoResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.False(t, resp.Data.Checked)
	assert.NotEmpty(t, resp.Data.Error)
}

func TestServeAddrInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	// The port is bound before libDex is loaded, so no library is needed.
	cmd := NewServeCommand(&RootOptions{Format: "json", Library: filepath.Join(t.TempDir(), "libDex.so")})
	out, err := execute(t, cmd, "--addr", ln.Addr().String())

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeUsage)
}

func TestServeRejectsBadAddr(t *testing.T) {
	cmd := NewServeCommand(&RootOptions{Format: "text"})
	_, err := execute(t, cmd, "--addr", "localhost")

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestListenAddr(t *testing.T) {
	addr, err := listenAddr("0.0.0.0:9000")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", addr)

	_, err = listenAddr("no-port")
	assert.Error(t, err)
}
