// Package network defines the resolve-by-address capability system
// validation uses to reach peers, plus adapters around it.
//
// The peer-to-peer transport itself lives elsewhere; this package only
// shapes how its answers are interpreted.
package network

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/roach88/sysval/internal/dht"
)

// Network resolves a DHT address by asking the peers responsible for it.
//
// Get returns (nil, nil) when no peer holds the address. A non-nil error
// means the query itself failed.
//
// For a header hash the returned element carries that header. For an entry
// hash it carries a new-entry header whose entry hashes to the address.
type Network interface {
	Get(ctx context.Context, hash dht.AnyDhtHash) (*dht.Element, error)
}

// Func adapts an ordinary function to the Network interface.
type Func func(ctx context.Context, hash dht.AnyDhtHash) (*dht.Element, error)

// Get calls f.
func (f Func) Get(ctx context.Context, hash dht.AnyDhtHash) (*dht.Element, error) {
	return f(ctx, hash)
}

// Offline is a Network with no peers. Every address is absent.
type Offline struct{}

// Get always reports absence.
func (Offline) Get(context.Context, dht.AnyDhtHash) (*dht.Element, error) {
	return nil, nil
}

// DefaultTimeout bounds a single network query.
const DefaultTimeout = 10 * time.Second

// timeoutNetwork bounds every query with its own deadline.
type timeoutNetwork struct {
	next    Network
	timeout time.Duration
}

// WithTimeout wraps n so that each Get runs under a child context with the
// given timeout. A query that runs out of time is reported as absent, so the
// caller retries later. Cancellation of the caller's own context is still
// returned as an error.
//
// A non-positive timeout selects DefaultTimeout.
func WithTimeout(n Network, timeout time.Duration) Network {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &timeoutNetwork{next: n, timeout: timeout}
}

func (t *timeoutNetwork) Get(ctx context.Context, hash dht.AnyDhtHash) (*dht.Element, error) {
	qctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	el, err := t.next.Get(qctx, hash)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		slog.Debug("network query timed out",
			"hash", hash,
			"timeout", t.timeout,
		)
		return nil, nil
	}
	return el, err
}
