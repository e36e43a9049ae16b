package sysvalidate

import (
	"context"
	"log/slog"
	"time"
)

// Trigger is a coalescing "there is new work" signal. It carries no
// payload: any number of calls to Trigger before the consumer wakes
// collapse into one wake-up.
//
// Thread-safety: Trigger is safe for concurrent use.
type Trigger struct {
	signal chan struct{} // buffered, size 1
}

// NewTrigger creates a trigger with no pending signal.
func NewTrigger() *Trigger {
	return &Trigger{signal: make(chan struct{}, 1)}
}

// Trigger requests a run. It never blocks.
func (t *Trigger) Trigger() {
	select {
	case t.signal <- struct{}{}:
	default:
	}
}

// C returns the channel that receives a value when a run was requested.
func (t *Trigger) C() <-chan struct{} {
	return t.signal
}

// pending reports whether a signal is waiting to be consumed.
func (t *Trigger) pending() bool {
	return len(t.signal) > 0
}

// Backoff returns the delay before retrying ops that have already been
// tried numTries times: base doubled per previous try, capped at limit.
func Backoff(numTries uint32, base, limit time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for i := uint32(1); i < numTries; i++ {
		if d >= limit/2 {
			return limit
		}
		d *= 2
	}
	if d > limit {
		return limit
	}
	return d
}

// Default retry backoff bounds.
const (
	DefaultBackoffBase = time.Second
	DefaultBackoffMax  = 5 * time.Minute
)

// Consumer runs the workflow once per trigger, one run at a time.
//
// Signals that arrive while a run is in flight collapse into a single
// follow-up run. When a run leaves ops waiting on dependencies, the
// consumer schedules its own retry after a backoff computed from the
// fewest tries among them. A run aborted by a fault is retried after the
// base backoff.
type Consumer struct {
	workflow    *Workflow
	trigger     *Trigger
	backoffBase time.Duration
	backoffMax  time.Duration
	logger      *slog.Logger
	onRun       func(*Report, error)
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithBackoff sets the retry backoff bounds.
func WithBackoff(base, limit time.Duration) ConsumerOption {
	return func(c *Consumer) {
		c.backoffBase = base
		c.backoffMax = limit
	}
}

// WithConsumerLogger sets the consumer's logger.
func WithConsumerLogger(logger *slog.Logger) ConsumerOption {
	return func(c *Consumer) {
		c.logger = logger
	}
}

// WithRunHook registers a function called after every run.
func WithRunHook(fn func(*Report, error)) ConsumerOption {
	return func(c *Consumer) {
		c.onRun = fn
	}
}

// NewConsumer creates a consumer that runs w whenever t fires.
func NewConsumer(w *Workflow, t *Trigger, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		workflow:    w,
		trigger:     t,
		backoffBase: DefaultBackoffBase,
		backoffMax:  DefaultBackoffMax,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run processes triggers until ctx is cancelled. It must be called from
// exactly one goroutine.
func (c *Consumer) Run(ctx context.Context) error {
	retry := time.NewTimer(0)
	if !retry.Stop() {
		<-retry.C
	}
	defer retry.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.trigger.C():
		case <-retry.C:
		}

		report, err := c.workflow.Run(ctx)
		if c.onRun != nil {
			c.onRun(report, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		retry.Stop()
		select {
		case <-retry.C:
		default:
		}

		var delay time.Duration
		switch {
		case err != nil:
			c.logger.Error("sys validation run failed", "error", err)
			delay = c.backoffBase
		case report.AwaitingDeps > 0:
			tries, _ := report.MinWaitingTries()
			delay = Backoff(tries, c.backoffBase, c.backoffMax)
		default:
			continue
		}
		retry.Reset(delay)
		c.logger.Debug("sys validation retry scheduled", "delay", delay)
	}
}
