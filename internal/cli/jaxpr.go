package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	dex "github.com/dex-lang/dex-go"
)

// NewJaxprCommand creates the jaxpr command group.
func NewJaxprCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jaxpr",
		Short: "Work with serialized JAX programs",
	}

	cmd.AddCommand(newJaxprRoundtripCommand(rootOpts))
	cmd.AddCommand(newJaxprCompileCommand(rootOpts))

	return cmd
}

func newJaxprRoundtripCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "roundtrip <file>",
		Short:         "Parse a jaxpr in libDex and print it back",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			jaxpr, err := readJaxpr(args[0])
			if err != nil {
				return reportError(f, ErrCodeUsage, ExitCommandError, err)
			}

			s, cleanup, err := openSession(rootOpts, f)
			if err != nil {
				return err
			}
			defer cleanup()

			out, err := s.RoundtripJaxpr(cmd.Context(), jaxpr)
			if err != nil {
				return commandError(f, err)
			}
			if f.Format == "text" {
				return f.Success(out)
			}
			if !json.Valid([]byte(out)) {
				return commandError(f, fmt.Errorf("runtime returned invalid JSON"))
			}
			return f.Success(json.RawMessage(out))
		},
	}
}

func newJaxprCompileCommand(rootOpts *RootOptions) *cobra.Command {
	var ccName string

	cmd := &cobra.Command{
		Use:           "compile <file>",
		Short:         "Compile a jaxpr and show the native signature",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			cc, err := dex.ParseExportCC(ccName)
			if err != nil {
				return reportError(f, ErrCodeUsage, ExitCommandError, err)
			}
			jaxpr, err := readJaxpr(args[0])
			if err != nil {
				return reportError(f, ErrCodeUsage, ExitCommandError, err)
			}

			s, cleanup, err := openSession(rootOpts, f)
			if err != nil {
				return err
			}
			defer cleanup()

			sig, err := s.CompileJaxpr(cmd.Context(), jaxpr, cc)
			if err != nil {
				return commandError(f, err)
			}
			return f.Success(&SignatureResult{Name: args[0], CC: cc, Signature: sig, Raw: sig.Raw()})
		},
	}

	cmd.Flags().StringVar(&ccName, "cc", "flat", "calling convention (flat|xla)")

	return cmd
}

func readJaxpr(path string) (string, error) {
	src, err := readSource(path)
	if err != nil {
		return "", err
	}
	if !json.Valid([]byte(src)) {
		return "", fmt.Errorf("%s: %w", path, dex.ErrInvalidJaxpr)
	}
	return src, nil
}
