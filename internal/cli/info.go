package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	dex "github.com/dex-lang/dex-go"
)

// Layout is the ABI struct sizes this binding was built with.
type Layout struct {
	CLit       int `json:"clit" yaml:"clit"`
	CRectArray int `json:"crectarray" yaml:"crectarray"`
	CAtom      int `json:"catom" yaml:"catom"`
}

// InfoResult describes where libDex was found and whether it loads.
type InfoResult struct {
	Library    string   `json:"library,omitempty" yaml:"library,omitempty"`
	Candidates []string `json:"candidates" yaml:"candidates"`
	SearchDirs []string `json:"search_dirs" yaml:"search_dirs"`
	Layout     Layout   `json:"layout" yaml:"layout"`
	Checked    bool     `json:"checked" yaml:"checked"`
	Error      string   `json:"error,omitempty" yaml:"error,omitempty"`
}

func (r *InfoResult) String() string {
	var b strings.Builder
	library := r.Library
	if library == "" {
		library = "(not found)"
	}
	fmt.Fprintf(&b, "library:    %s\n", library)
	fmt.Fprintf(&b, "layout:     CLit=%d CRectArray=%d CAtom=%d\n", r.Layout.CLit, r.Layout.CRectArray, r.Layout.CAtom)
	for _, c := range r.Candidates {
		fmt.Fprintf(&b, "candidate:  %s\n", c)
	}
	if r.Checked {
		fmt.Fprintf(&b, "check:      ok\n")
	}
	if r.Error != "" {
		fmt.Fprintf(&b, "error:      %s\n", r.Error)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// NewInfoCommand creates the info command.
func NewInfoCommand(rootOpts *RootOptions) *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show which libDex would be loaded",
		Long: `Report the libDex library selected by --library, DEX_LIBRARY or the
search path, together with the ABI layout of this binding.

With --check the library is loaded, initialized and finalized.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			dirs := dex.SearchDirs()
			res := &InfoResult{
				Candidates: dex.FindLibraries(dirs),
				SearchDirs: dirs,
				Layout: Layout{
					CLit:       dex.LitSize,
					CRectArray: dex.RectArraySize,
					CAtom:      dex.CAtomSize,
				},
			}

			path, err := libraryPath(rootOpts)
			if err != nil {
				res.Error = err.Error()
				_ = f.Success(res)
				return NewExitError(ExitCommandError, err.Error())
			}
			res.Library = path

			if check {
				rt, err := dex.Load(path)
				if err != nil {
					res.Error = err.Error()
					_ = f.Success(res)
					return WrapExitError(ExitCommandError, ErrCodeLoad, err)
				}
				rt.Shutdown()
				res.Checked = true
			}
			return f.Success(res)
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "load and initialize the library")

	return cmd
}
