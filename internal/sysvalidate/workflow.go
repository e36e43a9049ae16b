// Package sysvalidate is the system-validation stage of a node's DHT
// pipeline.
//
// A run drains every Pending and AwaitingSysDeps op from the validation
// limbo, orders them by kind, checks each one, and writes the whole batch
// back in one transaction:
//
//   - ops that pass are marked SysValidated for app validation, except dna
//     and agent_validation_pkg headers and agent activity, which skip app
//     validation and go straight to the integration limbo
//   - ops with a missing dependency are marked AwaitingSysDeps and retried
//   - ops that fail terminally leave the limbo and are recorded in the
//     rejected ops sink
//
// Every run increments num_tries and sets last_try on the ops it keeps.
// A storage or network fault aborts the run before anything is written,
// so the next run sees the same queue and reaches the same results.
//
// Runs are serialized by a Consumer reacting to a coalescing Trigger.
package sysvalidate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/sysval/internal/dht"
	"github.com/roach88/sysval/internal/network"
	"github.com/roach88/sysval/internal/store"
	"github.com/roach88/sysval/internal/workspace"
)

// DefaultRetryCeiling is the number of tries after which a missing
// dependency is logged as a warning.
const DefaultRetryCeiling = 10

// Clock supplies attempt timestamps.
type Clock interface {
	Now() dht.Timestamp
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() dht.Timestamp {
	return dht.Now()
}

// Workflow is one node's system-validation stage.
type Workflow struct {
	store        *store.Store
	validator    *Validator
	net          network.Network
	clock        Clock
	runIDs       RunIDGenerator
	metrics      *Metrics
	logger       *slog.Logger
	retryCeiling uint32
	appTrigger   *Trigger
	integTrigger *Trigger
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithClock sets the clock used for last_try and integration timestamps.
func WithClock(c Clock) Option {
	return func(w *Workflow) {
		w.clock = c
	}
}

// WithRunIDGenerator sets the run id source.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(w *Workflow) {
		w.runIDs = g
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(w *Workflow) {
		w.metrics = m
	}
}

// WithLogger sets the workflow's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Workflow) {
		w.logger = logger
	}
}

// WithRetryCeiling sets the try count past which waiting ops are logged
// as warnings and counted.
func WithRetryCeiling(n uint32) Option {
	return func(w *Workflow) {
		w.retryCeiling = n
	}
}

// WithAppValidationTrigger sets the trigger fired when ops are left
// SysValidated for app validation.
func WithAppValidationTrigger(t *Trigger) Option {
	return func(w *Workflow) {
		w.appTrigger = t
	}
}

// WithIntegrationTrigger sets the trigger fired when ops are written to
// the integration limbo.
func WithIntegrationTrigger(t *Trigger) Option {
	return func(w *Workflow) {
		w.integTrigger = t
	}
}

// NewWorkflow creates a workflow over s. A nil net behaves like network.Offline.
func NewWorkflow(s *store.Store, v *Validator, net network.Network, opts ...Option) *Workflow {
	if net == nil {
		net = network.Offline{}
	}
	w := &Workflow{
		store:        s,
		validator:    v,
		net:          net,
		clock:        SystemClock{},
		runIDs:       UUIDv7Generator{},
		metrics:      NewMetrics(nil),
		logger:       slog.Default(),
		retryCeiling: DefaultRetryCeiling,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run performs one validation pass over the limbo snapshot.
//
// On error nothing has been written and no trigger has fired.
func (w *Workflow) Run(ctx context.Context) (*Report, error) {
	started := time.Now()
	report := &Report{RunID: w.runIDs.Generate(), AttemptedAt: w.clock.Now(), Results: []OpResult{}}
	logger := w.logger.With("run_id", report.RunID)

	if err := w.run(ctx, report, logger); err != nil {
		w.metrics.recordFailure()
		logger.Error("sys validation run aborted", "error", err)
		return nil, err
	}

	w.metrics.recordRun(report.Drained, time.Since(started))
	if report.Drained == 0 {
		logger.Debug("sys validation run found no work")
		return report, nil
	}

	if report.Validated > report.ToIntegration && w.appTrigger != nil {
		w.appTrigger.Trigger()
	}
	if report.ToIntegration > 0 && w.integTrigger != nil {
		w.integTrigger.Trigger()
	}
	logger.Info("sys validation run complete",
		"drained", report.Drained,
		"sys_validated", report.Validated,
		"sent_to_integration", report.ToIntegration,
		"awaiting_sys_deps", report.AwaitingDeps,
		"rejected", report.Rejected,
		"already_integrated", report.Dropped,
		"already_rejected", report.AlreadyRejected,
	)
	return report, nil
}

func (w *Workflow) run(ctx context.Context, report *Report, logger *slog.Logger) error {
	ws := workspace.New(w.store)

	entries, err := ws.Limbo.DrainEligible(ctx)
	if err != nil {
		return err
	}
	report.Drained = len(entries)
	if len(entries) == 0 {
		return nil
	}

	SortBatch(entries)
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("sys validation cancelled: %w", err)
		}
		res, err := w.process(ctx, ws, entry, report.AttemptedAt, logger)
		if err != nil {
			return err
		}
		report.add(res)
	}

	logger.Debug("flushing workspace",
		"to_integration", ws.Integration.Len(),
		"rejected", ws.Rejected.Len(),
		"cached_elements", ws.Cache.Len(),
	)
	if err := ws.Flush(ctx); err != nil {
		return err
	}
	return nil
}

// process validates one drained entry and buffers its disposition.
func (w *Workflow) process(ctx context.Context, ws *workspace.Workspace, entry store.LimboEntry, now dht.Timestamp, logger *slog.Logger) (OpResult, error) {
	hash := entry.Hash()
	res := OpResult{Hash: hash, Kind: entry.Op.Kind, Rank: Rank(entry.Op), NumTries: entry.NumTries}

	integrated, err := ws.Integrated.Contains(ctx, hash)
	if err != nil {
		return res, err
	}
	if integrated {
		res.Outcome = OutcomeAlreadyIntegrated
		w.metrics.recordOp(entry.Op.Kind, res.Outcome)
		logger.Debug("dropping already integrated op", "op_hash", hash)
		return res, nil
	}
	rejected, err := ws.Rejected.Contains(ctx, hash)
	if err != nil {
		return res, err
	}
	if rejected {
		res.Outcome = OutcomeAlreadyRejected
		w.metrics.recordOp(entry.Op.Kind, res.Outcome)
		logger.Debug("dropping already rejected op", "op_hash", hash)
		return res, nil
	}

	outcome, op, err := w.validator.Validate(ctx, entry.Op, ws, w.net)
	if err != nil {
		return res, err
	}

	switch o := outcome.(type) {
	case Validated:
		res.Outcome = OutcomeSysValidated
		if bypassesAppValidation(op) {
			ws.Integration.Put(store.IntegrationLimboValue{
				Op:               op,
				ValidationStatus: store.IntegrationValid,
				TimeAdded:        now,
			})
			res.Next = NextIntegration
			res.NumTries++
			break
		}
		res.Next = NextAppValidation
		res.NumTries = w.requeue(ws, entry, op, o, now)

	case AwaitingDeps:
		res.Outcome = OutcomeAwaitingDeps
		res.Code = o.Err.Code
		res.Message = o.Err.Message
		res.Missing = o.Missing
		res.NumTries = w.requeue(ws, entry, op, o, now)
		if res.NumTries > w.retryCeiling {
			w.metrics.recordOverCeiling()
			logger.Warn("op still missing dependency past retry ceiling",
				"op_hash", hash,
				"kind", op.Kind,
				"missing", o.Missing,
				"num_tries", res.NumTries,
			)
		} else {
			logger.Debug("op awaiting dependency",
				"op_hash", hash,
				"kind", op.Kind,
				"missing", o.Missing,
				"num_tries", res.NumTries,
			)
		}

	case Rejected:
		res.Outcome = OutcomeRejected
		res.Code = o.Err.Code
		res.Message = o.Err.Message
		res.NumTries++
		ws.Rejected.Put(store.RejectedOp{
			Hash:       hash,
			Op:         op,
			Code:       string(o.Err.Code),
			Message:    o.Err.Message,
			RejectedAt: now,
		})
		w.metrics.recordRejected(o.Err.Code)
		logger.Warn("op rejected",
			"op_hash", hash,
			"kind", op.Kind,
			"code", o.Err.Code,
			"error", o.Err,
		)

	default:
		return res, fmt.Errorf("validate %s: unexpected outcome %T", hash, outcome)
	}

	w.metrics.recordOp(op.Kind, res.Outcome)
	return res, nil
}

// requeue puts the entry back into the validation limbo with its new
// status and retry bookkeeping. time_added is preserved.
func (w *Workflow) requeue(ws *workspace.Workspace, entry store.LimboEntry, op dht.Op, o Outcome, now dht.Timestamp) uint32 {
	status, _ := o.LimboStatus()
	entry.Op = op
	entry.Status = status
	entry.NumTries++
	entry.LastTry = &now
	ws.Limbo.Put(entry)
	return entry.NumTries
}

// bypassesAppValidation reports whether an op skips app validation once
// system validated. Genesis headers and agent activity carry nothing an
// app rule could judge.
func bypassesAppValidation(op dht.Op) bool {
	if op.Kind == dht.OpRegisterAgentActivity {
		return true
	}
	switch op.Header.Type {
	case dht.HeaderDna, dht.HeaderAgentValidationPkg:
		return true
	}
	return false
}
