package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/sysval/internal/store"
)

// LimboOptions holds flags for the limbo command.
type LimboOptions struct {
	*RootOptions
	Statuses []string
}

// NewLimboCommand creates the limbo command.
func NewLimboCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LimboOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "limbo",
		Short: "List validation limbo entries",
		Long: `List the ops in the validation limbo with their status and retry count.

Example:
  sysval limbo --db ./node.db
  sysval limbo --db ./node.db --status awaiting_sys_deps,pending`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLimbo(opts, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Statuses, "status", nil, "only list entries in these statuses")

	return cmd
}

func runLimbo(opts *LimboOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	cfg, err := opts.loadConfig()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}

	statuses := make([]store.Status, 0, len(opts.Statuses))
	for _, s := range opts.Statuses {
		st, err := store.ParseStatus(s)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeInput, "invalid --status", err)
		}
		statuses = append(statuses, st)
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	defer st.Close()

	entries, err := st.ReadLimboByStatus(cmd.Context(), statuses...)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to read limbo", err)
	}
	return formatter.PrintLimbo(entries)
}
