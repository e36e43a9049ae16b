package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/sysval/internal/store"
)

// NewRejectedCommand creates the rejected command.
func NewRejectedCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "rejected",
		Short:         "List ops rejected by system validation",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
			}
			st, err := store.Open(cfg.Database)
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
			}
			defer st.Close()

			rejected, err := st.ReadRejected(cmd.Context())
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to read rejected ops", err)
			}
			return formatter.PrintRejected(rejected)
		},
	}

	return cmd
}
