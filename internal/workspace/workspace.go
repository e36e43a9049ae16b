// Package workspace provides the transactional view one system-validation
// run works through.
//
// A Workspace buffers every mutation of a run in memory: validation limbo
// drains and upserts, integration limbo writes, network results memoized
// into the cache, and terminal rejections. Flush writes them all in a
// single store transaction. Nothing reaches the database before Flush, so
// a run that returns early leaves storage exactly as it found it.
//
// The vault and the integrated-ops store are read-only here.
package workspace

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/sysval/internal/cascade"
	"github.com/roach88/sysval/internal/network"
	"github.com/roach88/sysval/internal/store"
)

// ErrFlushed is returned when a workspace is used after Flush.
var ErrFlushed = errors.New("workspace already flushed")

// Workspace is owned by exactly one workflow run.
type Workspace struct {
	Limbo       *LimboBuf
	Integration *IntegrationBuf
	Integrated  *IntegratedOps
	Vault       *Vault
	Cache       *CacheBuf
	Rejected    *RejectedBuf

	store   *store.Store
	flushed bool
}

// New creates a workspace over s.
func New(s *store.Store) *Workspace {
	return &Workspace{
		Limbo:       newLimboBuf(s),
		Integration: newIntegrationBuf(),
		Integrated:  &IntegratedOps{store: s},
		Vault:       &Vault{store: s},
		Cache:       newCacheBuf(s),
		Rejected:    &RejectedBuf{store: s},
		store:       s,
	}
}

// Cascade returns a resolver over this workspace's vault and cache that
// falls back to net. Build one per validation call.
func (w *Workspace) Cascade(net network.Network) *cascade.Cascade {
	return cascade.New(w.Vault, w.Cache, net)
}

// Batch assembles the buffered mutations without writing them.
func (w *Workspace) Batch() *store.Batch {
	b := &store.Batch{
		LimboDeletes:    w.Limbo.deletes(),
		LimboPuts:       w.Limbo.pending(),
		IntegrationPuts: w.Integration.pending(),
		Rejected:        w.Rejected.pending(),
	}
	w.Cache.appendTo(b)
	return b
}

// Flush writes every buffered mutation in one transaction. On error
// nothing is written. A workspace can be flushed once.
func (w *Workspace) Flush(ctx context.Context) error {
	if w.flushed {
		return ErrFlushed
	}
	if err := w.store.Apply(ctx, w.Batch()); err != nil {
		return fmt.Errorf("flush workspace: %w", err)
	}
	w.flushed = true
	return nil
}
