package store

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/roach88/sysval/internal/dht"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestOp creates an unsigned RegisterAddLink op; n makes it unique.
func createTestOp(n int) dht.Op {
	return dht.Op{
		Kind:      dht.OpRegisterAddLink,
		Signature: dht.Signature{byte(n)},
		Header: dht.Header{
			Type:          dht.HeaderCreateLink,
			Author:        "author",
			Timestamp:     dht.Timestamp(n),
			Seq:           uint32(n + 1),
			PrevHeader:    dht.HeaderHash(fmt.Sprintf("prev-%d", n)),
			BaseAddress:   "base",
			TargetAddress: dht.EntryHash(fmt.Sprintf("target-%d", n)),
			Tag:           []byte("tag"),
		},
	}
}

// createTestElement creates an unsigned create element carrying content.
func createTestElement(author dht.AgentPubKey, seq uint32, content string) dht.Element {
	entry := dht.Entry{Kind: dht.EntryApp, Content: []byte(content)}
	et := dht.AppType(0, 0, dht.VisibilityPublic)
	return dht.Element{
		SignedHeader: dht.SignedHeader{
			Header: dht.Header{
				Type:       dht.HeaderCreate,
				Author:     author,
				Timestamp:  dht.Timestamp(seq * 10),
				Seq:        seq,
				PrevHeader: dht.HeaderHash(fmt.Sprintf("prev-%d", seq)),
				EntryType:  &et,
				EntryHash:  entry.Hash(),
			},
			Signature: dht.Signature{1, 2, 3},
		},
		Entry: &entry,
	}
}
