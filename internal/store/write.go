package store

import (
	"context"
	"fmt"

	"github.com/roach88/sysval/internal/dht"
)

// ElementRecord is an element written to one scope.
type ElementRecord struct {
	Scope   Scope
	Element dht.Element
}

// ActivityRecord is an activity item written to one scope.
type ActivityRecord struct {
	Scope Scope
	Item  ActivityItem
}

// LinkIndexRecord is a link index record written to one scope.
type LinkIndexRecord struct {
	Scope Scope
	Link  LinkRecord
}

// Batch collects every mutation of one workflow run.
// Apply writes it in a single transaction.
type Batch struct {
	LimboPuts       []LimboEntry
	LimboDeletes    []dht.OpHash
	IntegrationPuts []IntegrationLimboValue
	Elements        []ElementRecord
	Activity        []ActivityRecord
	Links           []LinkIndexRecord
	Rejected        []RejectedOp
}

// Empty reports whether the batch has nothing to write.
func (b *Batch) Empty() bool {
	return len(b.LimboPuts) == 0 &&
		len(b.LimboDeletes) == 0 &&
		len(b.IntegrationPuts) == 0 &&
		len(b.Elements) == 0 &&
		len(b.Activity) == 0 &&
		len(b.Links) == 0 &&
		len(b.Rejected) == 0
}

// Apply atomically writes the batch. Deletes are applied before puts, so
// an op deleted and re-put in the same batch ends up present.
//
// On any error the transaction is rolled back and no row changes.
func (s *Store) Apply(ctx context.Context, b *Batch) error {
	if b == nil || b.Empty() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("apply batch: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, hash := range b.LimboDeletes {
		if _, err := tx.ExecContext(ctx, `DELETE FROM validation_limbo WHERE op_hash = ?`, string(hash)); err != nil {
			return fmt.Errorf("apply batch: delete limbo %s: %w", hash, err)
		}
	}
	for _, entry := range b.LimboPuts {
		if err := putLimbo(ctx, tx, entry); err != nil {
			return fmt.Errorf("apply batch: %w", err)
		}
	}
	for _, v := range b.IntegrationPuts {
		if err := putIntegrationLimbo(ctx, tx, v); err != nil {
			return fmt.Errorf("apply batch: %w", err)
		}
	}
	for _, rec := range b.Elements {
		if err := putElement(ctx, tx, rec.Scope, rec.Element); err != nil {
			return fmt.Errorf("apply batch: %w", err)
		}
	}
	for _, rec := range b.Activity {
		if err := putActivity(ctx, tx, rec.Scope, rec.Item); err != nil {
			return fmt.Errorf("apply batch: %w", err)
		}
	}
	for _, rec := range b.Links {
		if err := putLink(ctx, tx, rec.Scope, rec.Link); err != nil {
			return fmt.Errorf("apply batch: %w", err)
		}
	}
	for _, r := range b.Rejected {
		if err := putRejected(ctx, tx, r); err != nil {
			return fmt.Errorf("apply batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("apply batch: commit: %w", err)
	}
	return nil
}

// Enqueue admits an op into the validation limbo as pending.
// An op already in limbo keeps its status and retry bookkeeping, and an op
// in rejected_ops is never admitted again. Returns whether a new entry was
// inserted.
func (s *Store) Enqueue(ctx context.Context, op dht.Op, now dht.Timestamp) (bool, error) {
	entry := NewLimboEntry(op, now)
	opJSON, err := marshalOp(op)
	if err != nil {
		return false, fmt.Errorf("enqueue: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO validation_limbo
		(op_hash, op_kind, op, basis, time_added, last_try, num_tries, status)
		SELECT ?, ?, ?, ?, ?, NULL, 0, ?
		WHERE NOT EXISTS (SELECT 1 FROM rejected_ops WHERE op_hash = ?)
		ON CONFLICT(op_hash) DO NOTHING
	`,
		string(entry.Hash()),
		op.Kind.String(),
		opJSON,
		string(entry.Basis),
		int64(entry.TimeAdded),
		string(entry.Status),
		string(entry.Hash()),
	)
	if err != nil {
		return false, fmt.Errorf("enqueue: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("enqueue: rows affected: %w", err)
	}
	return n > 0, nil
}

// IntegrateElement writes an element into the vault together with its
// activity item and, for create_link headers, its link index record.
// Integration is a later pipeline stage; nodes and tests use this to hold
// data that system validation then reads.
func (s *Store) IntegrateElement(ctx context.Context, el dht.Element) error {
	h := el.Header
	b := &Batch{
		Elements: []ElementRecord{{Scope: ScopeVault, Element: el}},
		Activity: []ActivityRecord{{Scope: ScopeVault, Item: ActivityItem{
			Author:     h.Author,
			Seq:        h.Seq,
			HeaderHash: h.Hash(),
		}}},
	}
	if h.Type == dht.HeaderCreateLink {
		b.Links = append(b.Links, LinkIndexRecord{Scope: ScopeVault, Link: LinkRecordFor(h)})
	}
	if err := s.Apply(ctx, b); err != nil {
		return fmt.Errorf("integrate element %s: %w", h.Hash(), err)
	}
	return nil
}

// MarkIntegrated records an op as integrated.
func (s *Store) MarkIntegrated(ctx context.Context, op dht.Op, when dht.Timestamp) error {
	opJSON, err := marshalOp(op)
	if err != nil {
		return fmt.Errorf("mark integrated: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO integrated_ops (op_hash, op, basis, when_integrated)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(op_hash) DO NOTHING
	`, string(op.Hash()), opJSON, string(op.Basis()), int64(when))
	if err != nil {
		return fmt.Errorf("mark integrated: %w", err)
	}
	return nil
}

func putLimbo(ctx context.Context, q queryer, entry LimboEntry) error {
	opJSON, err := marshalOp(entry.Op)
	if err != nil {
		return fmt.Errorf("put limbo: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO validation_limbo
		(op_hash, op_kind, op, basis, time_added, last_try, num_tries, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(op_hash) DO UPDATE SET
			op = excluded.op,
			op_kind = excluded.op_kind,
			basis = excluded.basis,
			time_added = excluded.time_added,
			last_try = excluded.last_try,
			num_tries = excluded.num_tries,
			status = excluded.status
	`,
		string(entry.Hash()),
		entry.Op.Kind.String(),
		opJSON,
		string(entry.Basis),
		int64(entry.TimeAdded),
		nullableTimestamp(entry.LastTry),
		entry.NumTries,
		string(entry.Status),
	)
	if err != nil {
		return fmt.Errorf("put limbo %s: %w", entry.Hash(), err)
	}
	return nil
}

func putIntegrationLimbo(ctx context.Context, q queryer, v IntegrationLimboValue) error {
	opJSON, err := marshalOp(v.Op)
	if err != nil {
		return fmt.Errorf("put integration limbo: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO integration_limbo (op_hash, op, validation_status, time_added)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(op_hash) DO UPDATE SET
			validation_status = excluded.validation_status
	`, string(v.Op.Hash()), opJSON, string(v.ValidationStatus), int64(v.TimeAdded))
	if err != nil {
		return fmt.Errorf("put integration limbo %s: %w", v.Op.Hash(), err)
	}
	return nil
}

// putElement writes the header row and, if present, the entry row.
// Elements are immutable, so existing rows are left as they are.
func putElement(ctx context.Context, q queryer, scope Scope, el dht.Element) error {
	headerJSON, err := marshalSignedHeader(el.SignedHeader)
	if err != nil {
		return fmt.Errorf("put element: %w", err)
	}
	var entryHash any
	if el.Entry != nil {
		entryHash = string(el.Entry.Hash())
	}
	hash := el.HeaderHash()
	if _, err := q.ExecContext(ctx, `
		INSERT INTO elements (scope, header_hash, header, entry_hash)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(scope, header_hash) DO NOTHING
	`, string(scope), string(hash), headerJSON, entryHash); err != nil {
		return fmt.Errorf("put %s element %s: %w", scope, hash, err)
	}

	if el.Entry == nil {
		return nil
	}
	entryJSON, err := marshalEntry(*el.Entry)
	if err != nil {
		return fmt.Errorf("put element: %w", err)
	}
	if _, err := q.ExecContext(ctx, `
		INSERT INTO entries (scope, entry_hash, entry)
		VALUES (?, ?, ?)
		ON CONFLICT(scope, entry_hash) DO NOTHING
	`, string(scope), string(el.Entry.Hash()), entryJSON); err != nil {
		return fmt.Errorf("put %s entry %s: %w", scope, el.Entry.Hash(), err)
	}
	return nil
}

func putActivity(ctx context.Context, q queryer, scope Scope, item ActivityItem) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO agent_activity (scope, author, header_seq, header_hash)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, string(scope), string(item.Author), item.Seq, string(item.HeaderHash))
	if err != nil {
		return fmt.Errorf("put %s activity %s: %w", scope, item.HeaderHash, err)
	}
	return nil
}

func putLink(ctx context.Context, q queryer, scope Scope, link LinkRecord) error {
	tag := link.Tag
	if tag == nil {
		tag = []byte{}
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO links (scope, link_add_hash, base_address, target_address, zome_id, tag)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(scope, link_add_hash) DO NOTHING
	`, string(scope), string(link.LinkAddHash), string(link.BaseAddress), string(link.TargetAddress), link.ZomeID, tag)
	if err != nil {
		return fmt.Errorf("put %s link %s: %w", scope, link.LinkAddHash, err)
	}
	return nil
}

func putRejected(ctx context.Context, q queryer, r RejectedOp) error {
	opJSON, err := marshalOp(r.Op)
	if err != nil {
		return fmt.Errorf("put rejected: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO rejected_ops (op_hash, op, code, message, rejected_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(op_hash) DO NOTHING
	`, string(r.Hash), opJSON, r.Code, r.Message, int64(r.RejectedAt))
	if err != nil {
		return fmt.Errorf("put rejected %s: %w", r.Hash, err)
	}
	return nil
}
