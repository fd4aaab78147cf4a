package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/dex-lang/dex-go/internal/envconfig"
	"github.com/dex-lang/dex-go/internal/logutil"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "text" | "json" | "yaml"
	Library string // overrides DEX_LIBRARY
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// Error codes reported in structured output.
const (
	ErrCodeUsage   = "E_USAGE"
	ErrCodeLoad    = "E_LOAD"
	ErrCodeRequest = "E_REQUEST"
	ErrCodeDex     = "E_DEX"
	ErrCodeServer  = "E_SERVER"
)

// NewRootCommand creates the root command for the dexgo CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "dexgo",
		Short: "dexgo - drive the Dex runtime from Go",
		Long:  "Evaluate Dex programs, inspect compiled signatures and serve libDex over HTTP.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			slog.SetDefault(logutil.NewLogger(cmd.ErrOrStderr(), logutil.Level(envconfig.Debug, opts.Verbose)))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().StringVar(&opts.Library, "library", "", "path to libDex (default $DEX_LIBRARY or search path)")

	cmd.AddCommand(NewEvalCommand(opts))
	cmd.AddCommand(NewSignatureCommand(opts))
	cmd.AddCommand(NewJaxprCommand(opts))
	cmd.AddCommand(NewEnvCommand(opts))
	cmd.AddCommand(NewInfoCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
