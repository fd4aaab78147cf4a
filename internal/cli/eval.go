package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Binding is one printed top-level name.
type Binding struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// EvalResult holds the printed names of one program.
type EvalResult struct {
	File     string    `json:"file" yaml:"file"`
	Bindings []Binding `json:"bindings,omitempty" yaml:"bindings,omitempty"`
}

// EvalResults renders as a FILE/NAME/VALUE table in text mode.
type EvalResults []EvalResult

func (r EvalResults) Header() []string {
	return []string{"FILE", "NAME", "VALUE"}
}

func (r EvalResults) Rows() [][]string {
	var rows [][]string
	for _, res := range r {
		for _, b := range res.Bindings {
			rows = append(rows, []string{res.File, b.Name, b.Value})
		}
	}
	return rows
}

type evalOptions struct {
	names    []string
	parallel int
}

// NewEvalCommand creates the eval command.
func NewEvalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &evalOptions{}

	cmd := &cobra.Command{
		Use:   "eval <file>...",
		Short: "Evaluate Dex programs",
		Long: `Evaluate one or more Dex source files, each in its own fork of the
session context, and print the requested top-level names.

Several files are evaluated concurrently; see --parallel and DEX_NUM_PARALLEL.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(rootOpts, opts, args, cmd)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.names, "print", "p", nil, "top-level names to print (repeatable)")
	cmd.Flags().IntVar(&opts.parallel, "parallel", 0, "maximum concurrent evaluations (default $DEX_NUM_PARALLEL or GOMAXPROCS)")

	return cmd
}

func runEval(rootOpts *RootOptions, opts *evalOptions, files []string, cmd *cobra.Command) error {
	f := newFormatter(rootOpts, cmd)

	if opts.parallel < 0 {
		return reportError(f, ErrCodeUsage, ExitCommandError, fmt.Errorf("--parallel must not be negative"))
	}
	sources := make([]string, len(files))
	for i, file := range files {
		src, err := readSource(file)
		if err != nil {
			return reportError(f, ErrCodeUsage, ExitCommandError, err)
		}
		sources[i] = src
	}

	s, cleanup, err := openSession(rootOpts, f)
	if err != nil {
		return err
	}
	defer cleanup()

	var values []map[string]string
	if len(sources) == 1 {
		v, err := s.Evaluate(cmd.Context(), sources[0], opts.names)
		if err != nil {
			return commandError(f, fmt.Errorf("%s: %w", files[0], err))
		}
		values = []map[string]string{v}
	} else {
		f.VerboseLog("Evaluating %d files", len(sources))
		values, err = s.EvaluateBatch(cmd.Context(), sources, opts.names, opts.parallel)
		if err != nil {
			return commandError(f, err)
		}
	}

	results := make(EvalResults, len(files))
	for i, file := range files {
		results[i] = EvalResult{File: file}
		for _, name := range opts.names {
			results[i].Bindings = append(results[i].Bindings, Binding{Name: name, Value: values[i][name]})
		}
	}

	if len(opts.names) == 0 && f.Format == "text" {
		return f.Success(fmt.Sprintf("evaluated %d file(s)", len(files)))
	}
	return f.Success(results)
}
