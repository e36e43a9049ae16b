package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/sysval/internal/dht"
)

const limboColumns = `op, basis, time_added, last_try, num_tries, status`

// ReadLimbo retrieves a single validation limbo entry.
// Returns ok=false if no entry exists for the hash.
func (s *Store) ReadLimbo(ctx context.Context, hash dht.OpHash) (LimboEntry, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+limboColumns+`
		FROM validation_limbo
		WHERE op_hash = ?
	`, string(hash))

	entry, err := scanLimbo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return LimboEntry{}, false, nil
	}
	if err != nil {
		return LimboEntry{}, false, fmt.Errorf("read limbo %s: %w", hash, err)
	}
	return entry, true, nil
}

// ReadLimboByStatus returns the limbo entries in any of the given statuses,
// ordered by op hash. With no statuses, every entry is returned.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ReadLimboByStatus(ctx context.Context, statuses ...Status) ([]LimboEntry, error) {
	query := `SELECT ` + limboColumns + ` FROM validation_limbo`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY op_hash COLLATE BINARY ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query limbo: %w", err)
	}
	defer rows.Close()

	entries := []LimboEntry{}
	for rows.Next() {
		entry, err := scanLimbo(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate limbo: %w", err)
	}
	return entries, nil
}

// ReadIntegrationLimbo retrieves a single integration limbo value.
func (s *Store) ReadIntegrationLimbo(ctx context.Context, hash dht.OpHash) (IntegrationLimboValue, bool, error) {
	var opJSON, status string
	var added int64
	err := s.db.QueryRowContext(ctx, `
		SELECT op, validation_status, time_added
		FROM integration_limbo
		WHERE op_hash = ?
	`, string(hash)).Scan(&opJSON, &status, &added)
	if errors.Is(err, sql.ErrNoRows) {
		return IntegrationLimboValue{}, false, nil
	}
	if err != nil {
		return IntegrationLimboValue{}, false, fmt.Errorf("read integration limbo %s: %w", hash, err)
	}
	op, err := unmarshalOp(opJSON)
	if err != nil {
		return IntegrationLimboValue{}, false, err
	}
	return IntegrationLimboValue{
		Op:               op,
		ValidationStatus: IntegrationStatus(status),
		TimeAdded:        dht.Timestamp(added),
	}, true, nil
}

// CountIntegrationLimbo returns the number of ops awaiting integration.
func (s *Store) CountIntegrationLimbo(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM integration_limbo`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count integration limbo: %w", err)
	}
	return n, nil
}

// IsIntegrated reports whether the op has already been integrated.
func (s *Store) IsIntegrated(ctx context.Context, hash dht.OpHash) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM integrated_ops WHERE op_hash = ?
	`, string(hash)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check integrated: %w", err)
	}
	return count > 0, nil
}

// ReadElement retrieves an element by header hash from the given scope.
// Returns nil if the header is not held in that scope.
func (s *Store) ReadElement(ctx context.Context, scope Scope, hash dht.HeaderHash) (*dht.Element, error) {
	var headerJSON string
	var entryHash sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT header, entry_hash
		FROM elements
		WHERE scope = ? AND header_hash = ?
	`, string(scope), string(hash)).Scan(&headerJSON, &entryHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s element %s: %w", scope, hash, err)
	}

	sh, err := unmarshalSignedHeader(headerJSON)
	if err != nil {
		return nil, err
	}
	el := &dht.Element{SignedHeader: sh}
	if entryHash.Valid && entryHash.String != "" {
		entry, err := s.ReadEntry(ctx, scope, dht.EntryHash(entryHash.String))
		if err != nil {
			return nil, err
		}
		el.Entry = entry
	}
	return el, nil
}

// ReadElementByEntry retrieves an element whose header creates the given
// entry. When several headers create the same entry, the one with the
// lowest header hash is returned. Returns nil if none is held.
func (s *Store) ReadElementByEntry(ctx context.Context, scope Scope, hash dht.EntryHash) (*dht.Element, error) {
	var headerHash string
	err := s.db.QueryRowContext(ctx, `
		SELECT header_hash
		FROM elements
		WHERE scope = ? AND entry_hash = ?
		ORDER BY header_hash COLLATE BINARY ASC
		LIMIT 1
	`, string(scope), string(hash)).Scan(&headerHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s element for entry %s: %w", scope, hash, err)
	}
	return s.ReadElement(ctx, scope, dht.HeaderHash(headerHash))
}

// ReadEntry retrieves an entry by hash from the given scope.
// Returns nil if the entry is not held in that scope.
func (s *Store) ReadEntry(ctx context.Context, scope Scope, hash dht.EntryHash) (*dht.Entry, error) {
	var entryJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT entry FROM entries WHERE scope = ? AND entry_hash = ?
	`, string(scope), string(hash)).Scan(&entryJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s entry %s: %w", scope, hash, err)
	}
	entry, err := unmarshalEntry(entryJSON)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ReadActivity returns the author's chain activity in the given scope,
// ordered by header_seq then header hash.
func (s *Store) ReadActivity(ctx context.Context, scope Scope, author dht.AgentPubKey) ([]ActivityItem, error) {
	return s.queryActivity(ctx, `
		SELECT author, header_seq, header_hash
		FROM agent_activity
		WHERE scope = ? AND author = ?
		ORDER BY header_seq ASC, header_hash COLLATE BINARY ASC
	`, string(scope), string(author))
}

// ReadActivityAt returns every header the author's chain holds at seq.
// More than one item means the chain has forked.
func (s *Store) ReadActivityAt(ctx context.Context, scope Scope, author dht.AgentPubKey, seq uint32) ([]ActivityItem, error) {
	return s.queryActivity(ctx, `
		SELECT author, header_seq, header_hash
		FROM agent_activity
		WHERE scope = ? AND author = ? AND header_seq = ?
		ORDER BY header_hash COLLATE BINARY ASC
	`, string(scope), string(author), seq)
}

func (s *Store) queryActivity(ctx context.Context, query string, args ...any) ([]ActivityItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query activity: %w", err)
	}
	defer rows.Close()

	items := []ActivityItem{}
	for rows.Next() {
		var item ActivityItem
		var author, hash string
		if err := rows.Scan(&author, &item.Seq, &hash); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		item.Author = dht.AgentPubKey(author)
		item.HeaderHash = dht.HeaderHash(hash)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity: %w", err)
	}
	return items, nil
}

// ReadLink retrieves the link index record for a create_link header.
// Returns nil if the link is not indexed in that scope.
func (s *Store) ReadLink(ctx context.Context, scope Scope, linkAdd dht.HeaderHash) (*LinkRecord, error) {
	var rec LinkRecord
	var hash, base, target string
	err := s.db.QueryRowContext(ctx, `
		SELECT link_add_hash, base_address, target_address, zome_id, tag
		FROM links
		WHERE scope = ? AND link_add_hash = ?
	`, string(scope), string(linkAdd)).Scan(&hash, &base, &target, &rec.ZomeID, &rec.Tag)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s link %s: %w", scope, linkAdd, err)
	}
	rec.LinkAddHash = dht.HeaderHash(hash)
	rec.BaseAddress = dht.EntryHash(base)
	rec.TargetAddress = dht.EntryHash(target)
	return &rec, nil
}

// IsRejected reports whether the op was terminally rejected.
func (s *Store) IsRejected(ctx context.Context, hash dht.OpHash) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM rejected_ops WHERE op_hash = ?
	`, string(hash)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check rejected: %w", err)
	}
	return count > 0, nil
}

// ReadRejected returns every rejected op ordered by rejection time then hash.
func (s *Store) ReadRejected(ctx context.Context) ([]RejectedOp, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT op_hash, op, code, message, rejected_at
		FROM rejected_ops
		ORDER BY rejected_at ASC, op_hash COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query rejected ops: %w", err)
	}
	defer rows.Close()

	rejected := []RejectedOp{}
	for rows.Next() {
		var r RejectedOp
		var hash, opJSON string
		var at int64
		if err := rows.Scan(&hash, &opJSON, &r.Code, &r.Message, &at); err != nil {
			return nil, fmt.Errorf("scan rejected op: %w", err)
		}
		op, err := unmarshalOp(opJSON)
		if err != nil {
			return nil, err
		}
		r.Hash = dht.OpHash(hash)
		r.Op = op
		r.RejectedAt = dht.Timestamp(at)
		rejected = append(rejected, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rejected ops: %w", err)
	}
	return rejected, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanLimbo(row rowScanner) (LimboEntry, error) {
	var entry LimboEntry
	var opJSON, basis, status string
	var added int64
	var lastTry sql.NullInt64

	if err := row.Scan(&opJSON, &basis, &added, &lastTry, &entry.NumTries, &status); err != nil {
		return LimboEntry{}, err
	}

	op, err := unmarshalOp(opJSON)
	if err != nil {
		return LimboEntry{}, err
	}
	st, err := ParseStatus(status)
	if err != nil {
		return LimboEntry{}, err
	}

	entry.Op = op
	entry.Basis = dht.AnyDhtHash(basis)
	entry.TimeAdded = dht.Timestamp(added)
	entry.Status = st
	if lastTry.Valid {
		ts := dht.Timestamp(lastTry.Int64)
		entry.LastTry = &ts
	}
	return entry, nil
}
