package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/dex-lang/dex-go/internal/envconfig"
)

// EnvSetting is one DEX_* variable and its effective value.
type EnvSetting struct {
	Name        string `json:"name" yaml:"name"`
	Value       string `json:"value" yaml:"value"`
	Description string `json:"description" yaml:"description"`
}

// EnvSettings renders as a NAME/VALUE/DESCRIPTION table in text mode.
type EnvSettings []EnvSetting

func (e EnvSettings) Header() []string {
	return []string{"NAME", "VALUE", "DESCRIPTION"}
}

func (e EnvSettings) Rows() [][]string {
	rows := make([][]string, len(e))
	for i, s := range e {
		rows[i] = []string{s.Name, s.Value, s.Description}
	}
	return rows
}

func currentEnv() EnvSettings {
	vars := envconfig.AsMap()
	out := make(EnvSettings, 0, len(vars))
	for _, v := range vars {
		out = append(out, EnvSetting{Name: v.Name, Value: fmt.Sprintf("%v", v.Value), Description: v.Description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// NewEnvCommand creates the env command.
func NewEnvCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "env",
		Short:         "Show the DEX_* environment settings",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return newFormatter(rootOpts, cmd).Success(currentEnv())
		},
	}
}
