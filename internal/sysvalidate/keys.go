package sysvalidate

import (
	"context"
	"sync"

	"github.com/roach88/sysval/internal/dht"
)

// AuthorKeys reports whether an agent key may still author headers.
type AuthorKeys interface {
	KeyValid(ctx context.Context, author dht.AgentPubKey) (bool, error)
}

// AllKeysValid accepts every key.
type AllKeysValid struct{}

// KeyValid always returns true.
func (AllKeysValid) KeyValid(context.Context, dht.AgentPubKey) (bool, error) {
	return true, nil
}

// RevocationList rejects keys that have been revoked.
//
// Thread-safety: RevocationList is safe for concurrent use.
type RevocationList struct {
	mu      sync.RWMutex
	revoked map[dht.AgentPubKey]bool
}

// NewRevocationList creates a list with the given keys already revoked.
func NewRevocationList(revoked ...dht.AgentPubKey) *RevocationList {
	l := &RevocationList{revoked: make(map[dht.AgentPubKey]bool, len(revoked))}
	for _, k := range revoked {
		l.revoked[k] = true
	}
	return l
}

// Revoke marks a key as revoked.
func (l *RevocationList) Revoke(author dht.AgentPubKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.revoked[author] = true
}

// KeyValid returns false for revoked keys.
func (l *RevocationList) KeyValid(_ context.Context, author dht.AgentPubKey) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return !l.revoked[author], nil
}
