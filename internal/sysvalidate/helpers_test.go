package sysvalidate

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/sysval/internal/appconfig"
	"github.com/roach88/sysval/internal/dht"
	"github.com/roach88/sysval/internal/store"
	"github.com/roach88/sysval/internal/testutil"
	"github.com/roach88/sysval/internal/workspace"
)

// enqueuedAt is the time_added of every op the fixture enqueues.
const enqueuedAt dht.Timestamp = 1_650_000_000_000_000

// testManifest declares zome 0 with a public "post" (id 0) and a private
// "draft" (id 1), and zome 1 with a public "profile".
func testManifest() *appconfig.Manifest {
	return &appconfig.Manifest{
		Name: "forum",
		Zomes: []appconfig.Zome{
			{Name: "posts", EntryDefs: []appconfig.EntryDef{
				{ID: "post", Visibility: dht.VisibilityPublic},
				{ID: "draft", Visibility: dht.VisibilityPrivate},
			}},
			{Name: "profiles", EntryDefs: []appconfig.EntryDef{
				{ID: "profile", Visibility: dht.VisibilityPublic},
			}},
		},
	}
}

type fixture struct {
	t       *testing.T
	ctx     context.Context
	store   *store.Store
	net     *testutil.FakeNetwork
	clock   *testutil.DeterministicClock
	metrics *Metrics
	app     *Trigger
	integ   *Trigger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return &fixture{
		t:       t,
		ctx:     context.Background(),
		store:   s,
		net:     testutil.NewFakeNetwork(),
		clock:   testutil.NewDeterministicClock(),
		metrics: NewMetrics(nil),
		app:     NewTrigger(),
		integ:   NewTrigger(),
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// workflow builds a workflow over the fixture with a fixed run id. Extra
// options are applied last.
func (f *fixture) workflow(opts ...Option) *Workflow {
	base := []Option{
		WithClock(f.clock),
		WithRunIDGenerator(testutil.NewFixedRunIDGenerator("golden-run")),
		WithMetrics(f.metrics),
		WithLogger(quietLogger()),
		WithAppValidationTrigger(f.app),
		WithIntegrationTrigger(f.integ),
	}
	return NewWorkflow(f.store, NewValidator(testManifest()), f.net, append(base, opts...)...)
}

// hold integrates elements into the vault.
func (f *fixture) hold(els ...dht.Element) {
	f.t.Helper()
	for _, el := range els {
		require.NoError(f.t, f.store.IntegrateElement(f.ctx, el))
	}
}

func (f *fixture) enqueue(ops ...dht.Op) {
	f.t.Helper()
	for _, op := range ops {
		inserted, err := f.store.Enqueue(f.ctx, op, enqueuedAt)
		require.NoError(f.t, err)
		require.True(f.t, inserted)
	}
}

func (f *fixture) run(w *Workflow) *Report {
	f.t.Helper()
	report, err := w.Run(f.ctx)
	require.NoError(f.t, err)
	return report
}

// limbo returns the stored limbo entry for op.
func (f *fixture) limbo(op dht.Op) (store.LimboEntry, bool) {
	f.t.Helper()
	entry, ok, err := f.store.ReadLimbo(f.ctx, op.Hash())
	require.NoError(f.t, err)
	return entry, ok
}

// validate runs the validator on op in a fresh workspace.
func (f *fixture) validate(v *Validator, op dht.Op) (Outcome, *workspace.Workspace) {
	f.t.Helper()
	ws := workspace.New(f.store)
	outcome, got, err := v.Validate(f.ctx, op, ws, f.net)
	require.NoError(f.t, err)
	require.Equal(f.t, op.Kind, got.Kind)
	return outcome, ws
}

func resultFor(t *testing.T, r *Report, op dht.Op) OpResult {
	t.Helper()
	for _, res := range r.Results {
		if res.Hash == op.Hash() {
			return res
		}
	}
	require.Failf(t, "op not in report", "%s %s", op.Kind, op.Hash())
	return OpResult{}
}

// requireRejected asserts the outcome is a rejection with code.
func requireRejected(t *testing.T, outcome Outcome, code ErrorCode) *ValidationError {
	t.Helper()
	rejected, ok := outcome.(Rejected)
	require.Truef(t, ok, "expected Rejected, got %#v", outcome)
	require.Equal(t, code, rejected.Err.Code, rejected.Err.Error())
	return rejected.Err
}

// requireAwaiting asserts the outcome waits on missing.
func requireAwaiting[H ~string](t *testing.T, outcome Outcome, missing H) {
	t.Helper()
	awaiting, ok := outcome.(AwaitingDeps)
	require.Truef(t, ok, "expected AwaitingDeps, got %#v", outcome)
	require.Equal(t, dht.AnyDhtHash(missing), awaiting.Missing)
	require.Equal(t, CodeDependencyMissing, awaiting.Err.Code)
}

func requireValidated(t *testing.T, outcome Outcome) {
	t.Helper()
	if _, ok := outcome.(Validated); !ok {
		require.Failf(t, "expected Validated", "got %#v", outcome)
	}
}
