// Package cascade resolves references to headers, elements and entries
// through the local vault, then the local cache, then the network.
//
// A Cascade is built for a single validation call from handles the caller
// owns (see workspace.Workspace.Cascade) and is not kept past that call.
// Absence is a normal result: every Retrieve method returns (nil, nil)
// when the address cannot be found anywhere. Errors are reserved for
// storage and transport faults.
package cascade

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/sysval/internal/dht"
	"github.com/roach88/sysval/internal/network"
)

// Source is a read view over one scope of held elements and entries.
type Source interface {
	GetElement(ctx context.Context, hash dht.HeaderHash) (*dht.Element, error)
	GetEntry(ctx context.Context, hash dht.EntryHash) (*dht.Entry, error)
}

// Cache is a Source that also memoizes elements fetched from the network.
// Writes are buffered by the owner and become durable only on its flush.
type Cache interface {
	Source
	PutElement(el dht.Element)
}

// Cascade resolves addresses in the order vault, cache, network.
type Cascade struct {
	vault Source
	cache Cache
	net   network.Network
}

// New creates a Cascade. A nil net behaves like network.Offline.
func New(vault Source, cache Cache, net network.Network) *Cascade {
	if net == nil {
		net = network.Offline{}
	}
	return &Cascade{vault: vault, cache: cache, net: net}
}

// RetrieveHeader resolves a header by hash.
func (c *Cascade) RetrieveHeader(ctx context.Context, hash dht.HeaderHash) (*dht.SignedHeader, error) {
	el, err := c.RetrieveElement(ctx, hash)
	if err != nil || el == nil {
		return nil, err
	}
	return &el.SignedHeader, nil
}

// RetrieveElement resolves an element by header hash.
func (c *Cascade) RetrieveElement(ctx context.Context, hash dht.HeaderHash) (*dht.Element, error) {
	for _, src := range c.local() {
		el, err := src.GetElement(ctx, hash)
		if err != nil {
			return nil, fmt.Errorf("retrieve element %s: %w", hash, err)
		}
		if el != nil {
			return el, nil
		}
	}

	el, err := c.net.Get(ctx, dht.AnyDhtHash(hash))
	if err != nil {
		return nil, fmt.Errorf("retrieve element %s from network: %w", hash, err)
	}
	if el == nil {
		return nil, nil
	}
	if got := el.HeaderHash(); got != hash {
		slog.Warn("network returned a different header",
			"requested", hash,
			"received", got,
		)
		return nil, nil
	}
	if !signed(el, hash) {
		return nil, nil
	}
	if el.Entry != nil && el.Entry.Hash() != el.Header.EntryHash {
		// Keep the header; the attached entry does not belong to it.
		el = &dht.Element{SignedHeader: el.SignedHeader}
	}
	c.cache.PutElement(*el)
	return el, nil
}

// RetrieveEntry resolves an entry by hash.
func (c *Cascade) RetrieveEntry(ctx context.Context, hash dht.EntryHash) (*dht.Entry, error) {
	for _, src := range c.local() {
		entry, err := src.GetEntry(ctx, hash)
		if err != nil {
			return nil, fmt.Errorf("retrieve entry %s: %w", hash, err)
		}
		if entry != nil {
			return entry, nil
		}
	}

	el, err := c.net.Get(ctx, dht.AnyDhtHash(hash))
	if err != nil {
		return nil, fmt.Errorf("retrieve entry %s from network: %w", hash, err)
	}
	if el == nil {
		return nil, nil
	}
	if el.Entry == nil || el.Entry.Hash() != hash || el.Header.EntryHash != hash {
		slog.Warn("network returned an element without the requested entry",
			"requested", hash,
			"header", el.HeaderHash(),
		)
		return nil, nil
	}
	if !signed(el, hash) {
		return nil, nil
	}
	c.cache.PutElement(*el)
	return el.Entry, nil
}

// signed reports whether a network answer carries a valid header
// signature. The header hash does not cover the signature.
func signed(el *dht.Element, requested any) bool {
	if err := dht.VerifyHeaderSignature(el.Signature, el.Header); err != nil {
		slog.Warn("network returned a header with a bad signature",
			"requested", requested,
			"header", el.HeaderHash(),
			"error", err,
		)
		return false
	}
	return true
}

func (c *Cascade) local() []Source {
	return []Source{c.vault, c.cache}
}
