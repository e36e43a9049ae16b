package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/sysval/internal/dht"
	"github.com/roach88/sysval/internal/store"
)

// EnqueueResult reports what an enqueue did.
type EnqueueResult struct {
	Admitted []dht.OpHash `json:"admitted"`
	Skipped  []dht.OpHash `json:"already_present"`
	Rejected []dht.OpHash `json:"previously_rejected"`
}

func (r EnqueueResult) String() string {
	return fmt.Sprintf("admitted %d op(s), %d already present, %d previously rejected",
		len(r.Admitted), len(r.Skipped), len(r.Rejected))
}

// NewEnqueueCommand creates the enqueue command.
func NewEnqueueCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue <ops.json|->",
		Short: "Admit ops into the validation limbo",
		Long: `Admit a JSON array of ops into the validation limbo as pending.

Ops already in the limbo keep their status and retry count. Ops that were
rejected before are not admitted again. Ops are not checked here; malformed
ops are rejected by the next validation pass.

Example:
  sysval enqueue --db ./node.db ./incoming.json
  cat incoming.json | sysval enqueue --db ./node.db -`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnqueue(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runEnqueue(opts *RootOptions, source string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	cfg, err := opts.loadConfig()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}

	ops, err := readOps(source, cmd.InOrStdin())
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInput, "failed to read ops", err)
	}
	formatter.VerboseLog("read %d op(s) from %s", len(ops), source)

	st, err := store.Open(cfg.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	defer st.Close()

	now := dht.Now()
	result := EnqueueResult{Admitted: []dht.OpHash{}, Skipped: []dht.OpHash{}, Rejected: []dht.OpHash{}}
	for _, op := range ops {
		inserted, err := st.Enqueue(cmd.Context(), op, now)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to enqueue", err)
		}
		if inserted {
			result.Admitted = append(result.Admitted, op.Hash())
			continue
		}
		rejected, err := st.IsRejected(cmd.Context(), op.Hash())
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to enqueue", err)
		}
		if rejected {
			result.Rejected = append(result.Rejected, op.Hash())
		} else {
			result.Skipped = append(result.Skipped, op.Hash())
		}
	}
	return formatter.Success(result)
}

// readOps decodes a JSON array of ops from path, or from stdin when path is "-".
func readOps(path string, stdin io.Reader) ([]dht.Op, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var ops []dht.Op
	dec := json.NewDecoder(r)
	if err := dec.Decode(&ops); err != nil {
		return nil, fmt.Errorf("decode ops: %w", err)
	}
	return ops, nil
}
