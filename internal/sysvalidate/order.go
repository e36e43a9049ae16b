package sysvalidate

import (
	"sort"

	"github.com/roach88/sysval/internal/dht"
	"github.com/roach88/sysval/internal/store"
)

// rankTable fixes the processing precedence of op kinds. Agent activity
// establishes chain state first, entries come before the elements that
// reference them, and updates and deletes come before link changes.
var rankTable = map[dht.OpKind]int{
	dht.OpRegisterAgentActivity:      0,
	dht.OpStoreEntry:                 1,
	dht.OpStoreElement:               2,
	dht.OpRegisterUpdatedBy:          3,
	dht.OpRegisterDeletedBy:          4,
	dht.OpRegisterDeletedEntryHeader: 5,
	dht.OpRegisterAddLink:            6,
	dht.OpRegisterRemoveLink:         7,
}

// unknownRank places ops of unknown kind after every known kind. They are
// rejected as malformed when validated.
var unknownRank = len(rankTable)

// Rank returns the precedence class of an op.
func Rank(op dht.Op) int {
	if r, ok := rankTable[op.Kind]; ok {
		return r
	}
	return unknownRank
}

// SortBatch orders entries by rank, then by op hash. The result depends
// only on the set of entries, never on their input order.
func SortBatch(entries []store.LimboEntry) {
	type keyed struct {
		rank  int
		hash  dht.OpHash
		entry store.LimboEntry
	}
	batch := make([]keyed, len(entries))
	for i, e := range entries {
		batch[i] = keyed{rank: Rank(e.Op), hash: e.Hash(), entry: e}
	}

	sort.Slice(batch, func(i, j int) bool {
		if batch[i].rank != batch[j].rank {
			return batch[i].rank < batch[j].rank
		}
		return batch[i].hash < batch[j].hash
	})

	for i, k := range batch {
		entries[i] = k.entry
	}
}
