package cli

import (
	"github.com/spf13/cobra"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run one system validation pass",
		Long: `Run one system validation pass over the ops waiting in the
validation limbo and print what happened to each.

Exits 0 when the pass completes, whatever the ops' outcomes. Exits 1
when the pass is aborted by a storage or network fault; nothing is
written in that case.

Example:
  sysval validate --db ./node.db --manifest ./forum.cue
  sysval validate --db ./node.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	cfg, err := opts.loadConfig()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())

	defs, err := loadDefs(cfg, logger)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeManifest, "failed to load manifest", err)
	}
	n, err := openNode(cfg, defs, logger)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to open node", err)
	}
	defer n.Close()

	report, err := n.workflow.Run(cmd.Context())
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeRun, "validation run aborted", err)
	}
	return formatter.PrintReport(report)
}
