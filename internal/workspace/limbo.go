package workspace

import (
	"context"
	"fmt"

	"github.com/roach88/sysval/internal/dht"
	"github.com/roach88/sysval/internal/store"
)

// LimboBuf buffers changes to the validation limbo.
type LimboBuf struct {
	store   *store.Store
	drained map[dht.OpHash]bool
	order   []dht.OpHash
	puts    map[dht.OpHash]store.LimboEntry
	putKeys []dht.OpHash
}

func newLimboBuf(s *store.Store) *LimboBuf {
	return &LimboBuf{
		store:   s,
		drained: make(map[dht.OpHash]bool),
		puts:    make(map[dht.OpHash]store.LimboEntry),
	}
}

// DrainEligible removes every Pending and AwaitingSysDeps entry from the
// buffered view and returns them. SysValidated and AwaitingAppDeps entries
// stay where they are. Entries not put back before Flush are deleted.
//
// Entries already drained by this buffer are not returned again.
func (b *LimboBuf) DrainEligible(ctx context.Context) ([]store.LimboEntry, error) {
	entries, err := b.store.ReadLimboByStatus(ctx, store.StatusPending, store.StatusAwaitingSysDeps)
	if err != nil {
		return nil, fmt.Errorf("drain validation limbo: %w", err)
	}

	drained := make([]store.LimboEntry, 0, len(entries))
	for _, e := range entries {
		hash := e.Hash()
		if b.drained[hash] {
			continue
		}
		b.drained[hash] = true
		b.order = append(b.order, hash)
		drained = append(drained, e)
	}
	return drained, nil
}

// Put upserts an entry keyed by its op hash.
func (b *LimboBuf) Put(entry store.LimboEntry) {
	hash := entry.Hash()
	if _, ok := b.puts[hash]; !ok {
		b.putKeys = append(b.putKeys, hash)
	}
	b.puts[hash] = entry
}

// get reads an entry through the buffer.
func (b *LimboBuf) get(ctx context.Context, hash dht.OpHash) (store.LimboEntry, bool, error) {
	if e, ok := b.puts[hash]; ok {
		return e, true, nil
	}
	if b.drained[hash] {
		return store.LimboEntry{}, false, nil
	}
	return b.store.ReadLimbo(ctx, hash)
}

func (b *LimboBuf) deletes() []dht.OpHash {
	return append([]dht.OpHash(nil), b.order...)
}

func (b *LimboBuf) pending() []store.LimboEntry {
	entries := make([]store.LimboEntry, 0, len(b.putKeys))
	for _, hash := range b.putKeys {
		entries = append(entries, b.puts[hash])
	}
	return entries
}

// IntegrationBuf buffers writes to the integration limbo.
type IntegrationBuf struct {
	puts    map[dht.OpHash]store.IntegrationLimboValue
	putKeys []dht.OpHash
}

func newIntegrationBuf() *IntegrationBuf {
	return &IntegrationBuf{puts: make(map[dht.OpHash]store.IntegrationLimboValue)}
}

// Put upserts a value keyed by its op hash.
func (b *IntegrationBuf) Put(v store.IntegrationLimboValue) {
	hash := v.Op.Hash()
	if _, ok := b.puts[hash]; !ok {
		b.putKeys = append(b.putKeys, hash)
	}
	b.puts[hash] = v
}

// Len returns the number of buffered writes.
func (b *IntegrationBuf) Len() int {
	return len(b.putKeys)
}

func (b *IntegrationBuf) pending() []store.IntegrationLimboValue {
	values := make([]store.IntegrationLimboValue, 0, len(b.putKeys))
	for _, hash := range b.putKeys {
		values = append(values, b.puts[hash])
	}
	return values
}

// IntegratedOps is a read-only view of ops that finished integration.
type IntegratedOps struct {
	store *store.Store
}

// Contains reports whether the op has been integrated.
func (o *IntegratedOps) Contains(ctx context.Context, hash dht.OpHash) (bool, error) {
	return o.store.IsIntegrated(ctx, hash)
}

// RejectedBuf collects terminal rejections for the audit sink.
type RejectedBuf struct {
	store    *store.Store
	rejected []store.RejectedOp
}

// Contains reports whether the op was rejected, by this run or earlier.
func (b *RejectedBuf) Contains(ctx context.Context, hash dht.OpHash) (bool, error) {
	for _, r := range b.rejected {
		if r.Hash == hash {
			return true, nil
		}
	}
	return b.store.IsRejected(ctx, hash)
}

// Put records a rejection.
func (b *RejectedBuf) Put(r store.RejectedOp) {
	b.rejected = append(b.rejected, r)
}

// Len returns the number of buffered rejections.
func (b *RejectedBuf) Len() int {
	return len(b.rejected)
}

func (b *RejectedBuf) pending() []store.RejectedOp {
	return append([]store.RejectedOp(nil), b.rejected...)
}
