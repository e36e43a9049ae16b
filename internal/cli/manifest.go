package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/sysval/internal/appconfig"
)

// ManifestSummary describes a loaded manifest.
type ManifestSummary struct {
	Name      string   `json:"name"`
	Valid     bool     `json:"valid"`
	EntryDefs []string `json:"entry_defs"`
}

func (s ManifestSummary) String() string {
	return fmt.Sprintf("✓ manifest %q valid, %d entry def(s)\n  %s", s.Name, len(s.EntryDefs), strings.Join(s.EntryDefs, "\n  "))
}

// NewManifestCommand creates the manifest command.
func NewManifestCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest <file>",
		Short: "Check an app manifest",
		Long: `Load and validate an app manifest written in CUE or YAML and list
the entry types it declares as zome_id:entry_id.

Exits 1 when the manifest is invalid.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			m, err := appconfig.Load(args[0])
			if err != nil {
				return formatter.Fail(ExitFailure, ErrCodeManifest, "invalid manifest", err)
			}
			return formatter.Success(summarize(m))
		},
	}

	return cmd
}

func summarize(m *appconfig.Manifest) ManifestSummary {
	s := ManifestSummary{Name: m.Name, Valid: true, EntryDefs: []string{}}
	for zi, z := range m.Zomes {
		for di, d := range z.EntryDefs {
			line := fmt.Sprintf("%d:%d %s.%s", zi, di, z.Name, d.ID)
			if d.Private() {
				line += " (private)"
			}
			s.EntryDefs = append(s.EntryDefs, line)
		}
	}
	return s
}
