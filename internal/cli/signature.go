package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	dex "github.com/dex-lang/dex-go"
)

// SignatureResult describes one compiled function.
type SignatureResult struct {
	Name      string           `json:"name" yaml:"name"`
	CC        dex.ExportCC     `json:"cc" yaml:"cc"`
	Signature *dex.Signature   `json:"signature" yaml:"signature"`
	Raw       dex.RawSignature `json:"raw" yaml:"raw"`
}

func (r *SignatureResult) Header() []string {
	return []string{"ROLE", "NAME", "TYPE", "SHAPE"}
}

func (r *SignatureResult) Rows() [][]string {
	var rows [][]string
	add := func(role string, bs []dex.Binder) {
		for _, b := range bs {
			name := b.Name
			if b.Implicit {
				name = "?" + name
			}
			rows = append(rows, []string{role, name, b.Type.String(), shapeString(b.Shape)})
		}
	}
	add("arg", r.Signature.Args)
	add("res", r.Signature.Results)
	for i, t := range r.Signature.CCall {
		rows = append(rows, []string{"ccall", strconv.Itoa(i), t.String(), ""})
	}
	return rows
}

func shapeString(shape []dex.Dim) string {
	if len(shape) == 0 {
		return ""
	}
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = d.String()
	}
	return "[" + strings.Join(parts, ",") + "]"
}

type signatureOptions struct {
	cc string
}

// NewSignatureCommand creates the signature command.
func NewSignatureCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &signatureOptions{}

	cmd := &cobra.Command{
		Use:   "signature <file> <name>",
		Short: "Compile a function and show its native signature",
		Long: `Evaluate a Dex source file, compile the named function for export and
print the argument, result and C calling sequence of the compiled code.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSignature(rootOpts, opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.cc, "cc", "flat", "calling convention (flat|xla)")

	return cmd
}

func runSignature(rootOpts *RootOptions, opts *signatureOptions, file, name string, cmd *cobra.Command) error {
	f := newFormatter(rootOpts, cmd)

	cc, err := dex.ParseExportCC(opts.cc)
	if err != nil {
		return reportError(f, ErrCodeUsage, ExitCommandError, err)
	}
	src, err := readSource(file)
	if err != nil {
		return reportError(f, ErrCodeUsage, ExitCommandError, err)
	}

	s, cleanup, err := openSession(rootOpts, f)
	if err != nil {
		return err
	}
	defer cleanup()

	sig, err := s.Signature(cmd.Context(), src, name, cc)
	if err != nil {
		return commandError(f, fmt.Errorf("%s: %w", name, err))
	}
	return f.Success(&SignatureResult{Name: name, CC: cc, Signature: sig, Raw: sig.Raw()})
}
