package sysvalidate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sysval/internal/dht"
	"github.com/roach88/sysval/internal/testutil"
)

func TestTrigger_Coalesces(t *testing.T) {
	tr := NewTrigger()
	assert.False(t, tr.pending())

	for i := 0; i < 5; i++ {
		tr.Trigger()
	}
	assert.True(t, tr.pending())

	<-tr.C()
	assert.False(t, tr.pending(), "five signals collapse into one wake-up")
}

func TestTrigger_ConcurrentCallsNeverBlock(t *testing.T) {
	tr := NewTrigger()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Trigger()
		}()
	}
	wg.Wait()
	assert.True(t, tr.pending())
}

func TestBackoff(t *testing.T) {
	base, limit := time.Second, 5*time.Minute
	tests := []struct {
		tries uint32
		want  time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{9, 256 * time.Second},
		{10, limit},
		{1000, limit},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Backoff(tt.tries, base, limit), "tries=%d", tt.tries)
	}

	assert.Zero(t, Backoff(3, 0, limit))
	assert.Equal(t, time.Second, Backoff(1, 2*time.Second, time.Second), "base above limit is capped")
}

// runRecorder collects consumer runs.
type runRecorder struct {
	reports chan *Report
}

func newRunRecorder() *runRecorder {
	return &runRecorder{reports: make(chan *Report, 16)}
}

func (r *runRecorder) hook(report *Report, err error) {
	if err != nil {
		return
	}
	select {
	case r.reports <- report:
	default:
	}
}

func (r *runRecorder) next(t *testing.T) *Report {
	t.Helper()
	select {
	case report := <-r.reports:
		return report
	case <-time.After(5 * time.Second):
		require.FailNow(t, "timed out waiting for a run")
		return nil
	}
}

func startConsumer(t *testing.T, c *Consumer) (cancel func() error) {
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	return func() error {
		stop()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("consumer did not stop")
			return nil
		}
	}
}

func TestConsumer_RunsOnTrigger(t *testing.T) {
	f := newFixture(t)
	c := testutil.NewChain(t, 1)
	op := testutil.Op(t, dht.OpRegisterAgentActivity, c.Genesis())
	f.enqueue(op)

	rec := newRunRecorder()
	trigger := NewTrigger()
	consumer := NewConsumer(f.workflow(), trigger,
		WithConsumerLogger(quietLogger()),
		WithRunHook(rec.hook),
	)
	stop := startConsumer(t, consumer)

	trigger.Trigger()
	report := rec.next(t)
	assert.Equal(t, 1, report.Drained)
	assert.Equal(t, OutcomeSysValidated, resultFor(t, report, op).Outcome)

	assert.ErrorIs(t, stop(), context.Canceled)
}

func TestConsumer_RetriesWaitingOps(t *testing.T) {
	f := newFixture(t)
	c := testutil.NewChain(t, 1)
	c.Genesis()
	op := testutil.Op(t, dht.OpStoreElement, c.Create("a"))
	f.enqueue(op)

	rec := newRunRecorder()
	trigger := NewTrigger()
	consumer := NewConsumer(f.workflow(), trigger,
		WithBackoff(5*time.Millisecond, 20*time.Millisecond),
		WithConsumerLogger(quietLogger()),
		WithRunHook(rec.hook),
	)
	stop := startConsumer(t, consumer)

	trigger.Trigger()
	first := rec.next(t)
	assert.Equal(t, uint32(1), resultFor(t, first, op).NumTries)

	// No further trigger: the consumer schedules the retry itself.
	second := rec.next(t)
	assert.Equal(t, uint32(2), resultFor(t, second, op).NumTries)

	assert.ErrorIs(t, stop(), context.Canceled)
}

func TestConsumer_StopsWhenCancelled(t *testing.T) {
	f := newFixture(t)
	consumer := NewConsumer(f.workflow(), NewTrigger(), WithConsumerLogger(quietLogger()))
	stop := startConsumer(t, consumer)
	assert.ErrorIs(t, stop(), context.Canceled)
}
