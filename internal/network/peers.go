package network

import (
	"context"
	"fmt"

	"github.com/roach88/sysval/internal/dht"
	"github.com/roach88/sysval/internal/store"
)

// PeerStores answers queries from the vaults of other nodes' databases,
// asked in order. It lets several nodes on one host resolve each other's
// data without a transport.
type PeerStores struct {
	peers []*store.Store
}

// NewPeerStores creates a network over the given peer databases.
func NewPeerStores(peers ...*store.Store) *PeerStores {
	return &PeerStores{peers: peers}
}

// Get looks hash up as a header hash, then as an entry hash, in each peer's vault.
func (p *PeerStores) Get(ctx context.Context, hash dht.AnyDhtHash) (*dht.Element, error) {
	for i, s := range p.peers {
		el, err := s.ReadElement(ctx, store.ScopeVault, dht.HeaderHash(hash))
		if err != nil {
			return nil, fmt.Errorf("query peer %d: %w", i, err)
		}
		if el != nil {
			return el, nil
		}
		el, err = s.ReadElementByEntry(ctx, store.ScopeVault, dht.EntryHash(hash))
		if err != nil {
			return nil, fmt.Errorf("query peer %d: %w", i, err)
		}
		if el != nil {
			return el, nil
		}
	}
	return nil, nil
}
