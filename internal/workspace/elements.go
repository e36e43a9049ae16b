package workspace

import (
	"context"

	"github.com/roach88/sysval/internal/dht"
	"github.com/roach88/sysval/internal/store"
)

// Vault is a read-only view of the node's authoritative elements and
// metadata. System validation never writes to it.
type Vault struct {
	store *store.Store
}

// GetElement implements cascade.Source.
func (v *Vault) GetElement(ctx context.Context, hash dht.HeaderHash) (*dht.Element, error) {
	return v.store.ReadElement(ctx, store.ScopeVault, hash)
}

// GetEntry implements cascade.Source.
func (v *Vault) GetEntry(ctx context.Context, hash dht.EntryHash) (*dht.Entry, error) {
	return v.store.ReadEntry(ctx, store.ScopeVault, hash)
}

// Activity returns the author's chain activity held in the vault.
func (v *Vault) Activity(ctx context.Context, author dht.AgentPubKey) ([]store.ActivityItem, error) {
	return v.store.ReadActivity(ctx, store.ScopeVault, author)
}

// ActivityAt returns the headers the vault holds for author at seq.
func (v *Vault) ActivityAt(ctx context.Context, author dht.AgentPubKey, seq uint32) ([]store.ActivityItem, error) {
	return v.store.ReadActivityAt(ctx, store.ScopeVault, author, seq)
}

// Link returns the link index record for a create_link header.
func (v *Vault) Link(ctx context.Context, linkAdd dht.HeaderHash) (*store.LinkRecord, error) {
	return v.store.ReadLink(ctx, store.ScopeVault, linkAdd)
}

// CacheBuf is the network cache with buffered writes. Reads see buffered
// elements first.
type CacheBuf struct {
	store    *store.Store
	elements map[dht.HeaderHash]dht.Element
	entries  map[dht.EntryHash]dht.Entry
	order    []dht.HeaderHash
}

func newCacheBuf(s *store.Store) *CacheBuf {
	return &CacheBuf{
		store:    s,
		elements: make(map[dht.HeaderHash]dht.Element),
		entries:  make(map[dht.EntryHash]dht.Entry),
	}
}

// GetElement implements cascade.Source.
func (c *CacheBuf) GetElement(ctx context.Context, hash dht.HeaderHash) (*dht.Element, error) {
	if el, ok := c.elements[hash]; ok {
		return &el, nil
	}
	return c.store.ReadElement(ctx, store.ScopeCache, hash)
}

// GetEntry implements cascade.Source.
func (c *CacheBuf) GetEntry(ctx context.Context, hash dht.EntryHash) (*dht.Entry, error) {
	if e, ok := c.entries[hash]; ok {
		return &e, nil
	}
	return c.store.ReadEntry(ctx, store.ScopeCache, hash)
}

// PutElement implements cascade.Cache. The element, its entry and its
// activity item are written to the cache scope on flush.
func (c *CacheBuf) PutElement(el dht.Element) {
	hash := el.HeaderHash()
	if _, ok := c.elements[hash]; !ok {
		c.order = append(c.order, hash)
	}
	c.elements[hash] = el
	if el.Entry != nil {
		c.entries[el.Entry.Hash()] = *el.Entry
	}
}

// Len returns the number of buffered elements.
func (c *CacheBuf) Len() int {
	return len(c.order)
}

func (c *CacheBuf) appendTo(b *store.Batch) {
	for _, hash := range c.order {
		el := c.elements[hash]
		h := el.Header
		b.Elements = append(b.Elements, store.ElementRecord{Scope: store.ScopeCache, Element: el})
		b.Activity = append(b.Activity, store.ActivityRecord{Scope: store.ScopeCache, Item: store.ActivityItem{
			Author:     h.Author,
			Seq:        h.Seq,
			HeaderHash: hash,
		}})
		if h.Type == dht.HeaderCreateLink {
			b.Links = append(b.Links, store.LinkIndexRecord{Scope: store.ScopeCache, Link: store.LinkRecordFor(h)})
		}
	}
}
