package testutil

import (
	"context"
	"sync"

	"github.com/roach88/sysval/internal/dht"
)

// FakeNetwork is an in-memory network.Network for tests.
//
// Elements are reachable by header hash and, when they carry an entry, by
// entry hash. Every Get is counted. Fail makes subsequent calls return an
// error; Block makes them wait until the caller's context ends.
type FakeNetwork struct {
	mu       sync.Mutex
	elements map[dht.AnyDhtHash]dht.Element
	calls    map[dht.AnyDhtHash]int
	total    int
	err      error
	block    bool
}

// NewFakeNetwork creates a network holding the given elements.
func NewFakeNetwork(elements ...dht.Element) *FakeNetwork {
	n := &FakeNetwork{
		elements: make(map[dht.AnyDhtHash]dht.Element),
		calls:    make(map[dht.AnyDhtHash]int),
	}
	for _, el := range elements {
		n.Add(el)
	}
	return n
}

// Add makes el reachable.
func (n *FakeNetwork) Add(el dht.Element) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.elements[dht.AnyDhtHash(el.HeaderHash())] = el
	if el.Entry != nil {
		n.elements[dht.AnyDhtHash(el.Entry.Hash())] = el
	}
}

// Fail makes every later Get return err. Fail(nil) clears it.
func (n *FakeNetwork) Fail(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

// Block makes every later Get wait for its context to end.
func (n *FakeNetwork) Block() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.block = true
}

// Get implements network.Network.
func (n *FakeNetwork) Get(ctx context.Context, hash dht.AnyDhtHash) (*dht.Element, error) {
	n.mu.Lock()
	n.calls[hash]++
	n.total++
	err, block := n.err, n.block
	el, ok := n.elements[hash]
	n.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &el, nil
}

// Calls returns how many times hash was requested.
func (n *FakeNetwork) Calls(hash dht.AnyDhtHash) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[hash]
}

// TotalCalls returns the number of Get calls made.
func (n *FakeNetwork) TotalCalls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.total
}
