package testutil

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/sysval/internal/dht"
)

// ChainStart is the timestamp of the first header of every test chain.
const ChainStart dht.Timestamp = 1_600_000_000_000_000

// Chain builds a valid, signed source chain for one agent.
//
// Each append fills in author, sequence number, previous header and a
// timestamp one millisecond after the previous header, then signs.
type Chain struct {
	t        testing.TB
	Keys     dht.KeyPair
	Elements []dht.Element
}

// NewChain creates an empty chain for the agent derived from seed.
// Different seeds give different agents; the same seed always gives the same one.
func NewChain(t testing.TB, seed byte) *Chain {
	t.Helper()
	keys, err := dht.KeyPairFromSeed(bytes.Repeat([]byte{seed}, 32))
	require.NoError(t, err)
	return &Chain{t: t, Keys: keys}
}

// Author returns the chain's agent key.
func (c *Chain) Author() dht.AgentPubKey {
	return c.Keys.Public
}

// Last returns the most recently appended element.
func (c *Chain) Last() dht.Element {
	c.t.Helper()
	require.NotEmpty(c.t, c.Elements, "chain is empty")
	return c.Elements[len(c.Elements)-1]
}

// Append links h onto the chain and signs it.
func (c *Chain) Append(h dht.Header, entry *dht.Entry) dht.Element {
	c.t.Helper()
	h.Author = c.Author()
	if len(c.Elements) == 0 {
		h.Seq = 0
		h.PrevHeader = ""
		h.Timestamp = ChainStart
	} else {
		last := c.Last()
		h.Seq = last.Header.Seq + 1
		h.PrevHeader = last.HeaderHash()
		h.Timestamp = last.Header.Timestamp + 1000
	}
	el := c.Sign(h, entry)
	c.Elements = append(c.Elements, el)
	return el
}

// Sign signs h as-is without appending it. Used to build forks and
// malformed chains.
func (c *Chain) Sign(h dht.Header, entry *dht.Entry) dht.Element {
	c.t.Helper()
	h.Author = c.Author()
	sig, err := c.Keys.SignHeader(h)
	require.NoError(c.t, err)
	return dht.Element{
		SignedHeader: dht.SignedHeader{Header: h, Signature: sig},
		Entry:        entry,
	}
}

// Genesis appends the dna header.
func (c *Chain) Genesis() dht.Element {
	c.t.Helper()
	return c.Append(dht.Header{Type: dht.HeaderDna, DnaHash: "test-dna"}, nil)
}

// Create appends a create header for a public app entry of zome 0, type 0.
func (c *Chain) Create(content string) dht.Element {
	c.t.Helper()
	return c.CreateEntry(AppEntry(content), dht.AppType(0, 0, dht.VisibilityPublic))
}

// CreateEntry appends a create header for entry declared with et.
func (c *Chain) CreateEntry(entry dht.Entry, et dht.EntryType) dht.Element {
	c.t.Helper()
	return c.Append(dht.Header{
		Type:      dht.HeaderCreate,
		EntryType: &et,
		EntryHash: entry.Hash(),
	}, &entry)
}

// Update appends an update of original with new content of the same type.
func (c *Chain) Update(original dht.Element, content string) dht.Element {
	c.t.Helper()
	entry := AppEntry(content)
	et := *original.Header.EntryType
	return c.Append(dht.Header{
		Type:           dht.HeaderUpdate,
		EntryType:      &et,
		EntryHash:      entry.Hash(),
		OriginalHeader: original.HeaderHash(),
		OriginalEntry:  original.Header.EntryHash,
	}, &entry)
}

// Delete appends a delete of target.
func (c *Chain) Delete(target dht.Element) dht.Element {
	c.t.Helper()
	return c.Append(dht.Header{
		Type:          dht.HeaderDelete,
		DeletesHeader: target.HeaderHash(),
		DeletesEntry:  target.Header.EntryHash,
	}, nil)
}

// CreateLink appends a link from base to target.
func (c *Chain) CreateLink(base, target dht.EntryHash, tag []byte) dht.Element {
	c.t.Helper()
	return c.Append(dht.Header{
		Type:          dht.HeaderCreateLink,
		BaseAddress:   base,
		TargetAddress: target,
		Tag:           tag,
	}, nil)
}

// DeleteLink appends the removal of the link added by add.
func (c *Chain) DeleteLink(add dht.Element) dht.Element {
	c.t.Helper()
	return c.Append(dht.Header{
		Type:           dht.HeaderDeleteLink,
		LinkAddAddress: add.HeaderHash(),
		BaseAddress:    add.Header.BaseAddress,
	}, nil)
}

// AppEntry returns an app entry with the given content.
func AppEntry(content string) dht.Entry {
	return dht.Entry{Kind: dht.EntryApp, Content: []byte(content)}
}

// Op derives the op of the given kind from el. StoreElement and StoreEntry
// carry the element's entry; every other kind carries none.
func Op(t testing.TB, kind dht.OpKind, el dht.Element) dht.Op {
	t.Helper()
	var entry *dht.Entry
	if kind == dht.OpStoreElement || kind == dht.OpStoreEntry {
		entry = el.Entry
	}
	op, err := dht.NewOp(kind, el.Signature, el.Header, entry)
	require.NoError(t, err)
	return op
}
