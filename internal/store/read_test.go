package store

import (
	"context"
	"testing"

	"github.com/roach88/sysval/internal/dht"
)

func TestReadLimbo_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, ok, err := s.ReadLimbo(context.Background(), "missing")
	if err != nil {
		t.Fatalf("ReadLimbo() failed: %v", err)
	}
	if ok {
		t.Error("ReadLimbo() should report not found")
	}
}

func TestReadLimboByStatus_FiltersAndOrders(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	var entries []LimboEntry
	statuses := []Status{StatusPending, StatusAwaitingSysDeps, StatusSysValidated, StatusPending}
	for i, st := range statuses {
		op := createTestOp(i)
		entries = append(entries, LimboEntry{Op: op, Basis: op.Basis(), TimeAdded: 1, Status: st})
	}
	if err := s.Apply(ctx, &Batch{LimboPuts: entries}); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	got, err := s.ReadLimboByStatus(ctx, StatusPending, StatusAwaitingSysDeps)
	if err != nil {
		t.Fatalf("ReadLimboByStatus() failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Hash() >= got[i].Hash() {
			t.Errorf("entries not ordered by hash: %s before %s", got[i-1].Hash(), got[i].Hash())
		}
	}
	for _, e := range got {
		if !e.Status.Eligible() {
			t.Errorf("ineligible entry returned: %s", e.Status)
		}
	}

	all, err := s.ReadLimboByStatus(ctx)
	if err != nil {
		t.Fatalf("ReadLimboByStatus() failed: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("got %d entries with no filter, want 4", len(all))
	}
}

func TestReadLimboByStatus_EmptyNotNil(t *testing.T) {
	s := createTestStore(t)

	got, err := s.ReadLimboByStatus(context.Background(), StatusPending)
	if err != nil {
		t.Fatalf("ReadLimboByStatus() failed: %v", err)
	}
	if got == nil {
		t.Error("expected empty slice, got nil")
	}
}

func TestReadLimbo_RoundTripsLastTry(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	op := createTestOp(7)
	tried := dht.Timestamp(42)

	err := s.Apply(ctx, &Batch{LimboPuts: []LimboEntry{{
		Op: op, Basis: op.Basis(), TimeAdded: 1, LastTry: &tried, NumTries: 2, Status: StatusAwaitingSysDeps,
	}}})
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	got, ok, err := s.ReadLimbo(ctx, op.Hash())
	if err != nil || !ok {
		t.Fatalf("ReadLimbo() = ok %v, err %v", ok, err)
	}
	if got.LastTry == nil || *got.LastTry != 42 {
		t.Errorf("last_try = %v, want 42", got.LastTry)
	}
	if got.Op.Hash() != op.Hash() {
		t.Error("op changed across a storage round trip")
	}
}

func TestReadElement_WithoutEntry(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	op := createTestOp(1)
	el := dht.Element{SignedHeader: op.SignedHeader()}

	if err := s.IntegrateElement(ctx, el); err != nil {
		t.Fatalf("IntegrateElement() failed: %v", err)
	}
	got, err := s.ReadElement(ctx, ScopeVault, el.HeaderHash())
	if err != nil || got == nil {
		t.Fatalf("ReadElement() = %v, err %v", got, err)
	}
	if got.Entry != nil {
		t.Errorf("entry = %+v, want nil", got.Entry)
	}
	if got.HeaderHash() != el.HeaderHash() {
		t.Error("header changed across a storage round trip")
	}
}

func TestReadEntry_NotFound(t *testing.T) {
	s := createTestStore(t)

	got, err := s.ReadEntry(context.Background(), ScopeVault, "missing")
	if err != nil {
		t.Fatalf("ReadEntry() failed: %v", err)
	}
	if got != nil {
		t.Errorf("ReadEntry() = %+v, want nil", got)
	}
}

func TestReadActivity_DetectsFork(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	a := createTestElement("author", 3, "a")
	b := createTestElement("author", 3, "b")
	for _, el := range []dht.Element{a, b, createTestElement("author", 1, "c")} {
		if err := s.IntegrateElement(ctx, el); err != nil {
			t.Fatalf("IntegrateElement() failed: %v", err)
		}
	}

	at, err := s.ReadActivityAt(ctx, ScopeVault, "author", 3)
	if err != nil {
		t.Fatalf("ReadActivityAt() failed: %v", err)
	}
	if len(at) != 2 {
		t.Errorf("got %d headers at seq 3, want 2", len(at))
	}

	all, err := s.ReadActivity(ctx, ScopeVault, "author")
	if err != nil {
		t.Fatalf("ReadActivity() failed: %v", err)
	}
	if len(all) != 3 || all[0].Seq != 1 {
		t.Errorf("activity = %+v, want 3 items starting at seq 1", all)
	}
}

func TestReadElementByEntry(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	el := createTestElement("author", 2, "content")

	if err := s.IntegrateElement(ctx, el); err != nil {
		t.Fatalf("IntegrateElement() failed: %v", err)
	}

	got, err := s.ReadElementByEntry(ctx, ScopeVault, el.Entry.Hash())
	if err != nil || got == nil {
		t.Fatalf("ReadElementByEntry() = %v, err %v", got, err)
	}
	if got.HeaderHash() != el.HeaderHash() {
		t.Error("returned the wrong header")
	}
	if got.Entry == nil || got.Entry.Hash() != el.Entry.Hash() {
		t.Errorf("entry = %+v, want the stored entry", got.Entry)
	}

	got, err = s.ReadElementByEntry(ctx, ScopeCache, el.Entry.Hash())
	if err != nil {
		t.Fatalf("ReadElementByEntry(cache) failed: %v", err)
	}
	if got != nil {
		t.Error("vault element visible in cache scope")
	}
}
