package sysvalidate

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sysval/internal/dht"
	"github.com/roach88/sysval/internal/store"
	"github.com/roach88/sysval/internal/testutil"
)

func TestRank_Table(t *testing.T) {
	tests := []struct {
		kind dht.OpKind
		want int
	}{
		{dht.OpRegisterAgentActivity, 0},
		{dht.OpStoreEntry, 1},
		{dht.OpStoreElement, 2},
		{dht.OpRegisterUpdatedBy, 3},
		{dht.OpRegisterDeletedBy, 4},
		{dht.OpRegisterDeletedEntryHeader, 5},
		{dht.OpRegisterAddLink, 6},
		{dht.OpRegisterRemoveLink, 7},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, Rank(dht.Op{Kind: tt.kind}))
		})
	}
}

func TestRank_CoversEveryKind(t *testing.T) {
	seen := make(map[int]dht.OpKind)
	for _, k := range dht.AllOpKinds {
		r := Rank(dht.Op{Kind: k})
		require.Less(t, r, unknownRank, "kind %s has no rank", k)
		prev, dup := seen[r]
		require.False(t, dup, "%s and %s share rank %d", prev, k, r)
		seen[r] = k
	}
}

func TestRank_UnknownKindSortsLast(t *testing.T) {
	assert.Equal(t, len(dht.AllOpKinds), Rank(dht.Op{Kind: 99}))
}

// mixedBatch returns limbo entries of every kind, several per rank.
func mixedBatch(t *testing.T) []store.LimboEntry {
	var ops []dht.Op
	for seed := byte(1); seed <= 3; seed++ {
		c := testutil.NewChain(t, seed)
		dna := c.Genesis()
		create := c.Create("post")
		update := c.Update(create, "edited")
		del := c.Delete(update)
		link := c.CreateLink(create.Header.EntryHash, update.Header.EntryHash, []byte("tag"))
		unlink := c.DeleteLink(link)
		ops = append(ops,
			testutil.Op(t, dht.OpRegisterAgentActivity, dna),
			testutil.Op(t, dht.OpStoreEntry, create),
			testutil.Op(t, dht.OpStoreElement, create),
			testutil.Op(t, dht.OpRegisterUpdatedBy, update),
			testutil.Op(t, dht.OpRegisterDeletedBy, del),
			testutil.Op(t, dht.OpRegisterDeletedEntryHeader, del),
			testutil.Op(t, dht.OpRegisterAddLink, link),
			testutil.Op(t, dht.OpRegisterRemoveLink, unlink),
		)
	}
	entries := make([]store.LimboEntry, len(ops))
	for i, op := range ops {
		entries[i] = store.NewLimboEntry(op, enqueuedAt)
	}
	return entries
}

func hashes(entries []store.LimboEntry) []dht.OpHash {
	out := make([]dht.OpHash, len(entries))
	for i, e := range entries {
		out[i] = e.Hash()
	}
	return out
}

func TestSortBatch_NonDecreasingRank(t *testing.T) {
	entries := mixedBatch(t)
	SortBatch(entries)

	for i := 1; i < len(entries); i++ {
		prev, cur := entries[i-1], entries[i]
		require.LessOrEqual(t, Rank(prev.Op), Rank(cur.Op))
		if Rank(prev.Op) == Rank(cur.Op) {
			require.Less(t, prev.Hash(), cur.Hash(), "same rank ties break on op hash")
		}
	}
}

func TestSortBatch_InputOrderIrrelevant(t *testing.T) {
	entries := mixedBatch(t)
	SortBatch(entries)
	want := hashes(entries)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := mixedBatch(t)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		SortBatch(shuffled)
		require.Equal(t, want, hashes(shuffled), "permutation %d", i)
	}
}

func TestSortBatch_Empty(t *testing.T) {
	var entries []store.LimboEntry
	SortBatch(entries)
	assert.Empty(t, entries)
}
