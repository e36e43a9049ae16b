package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - limbo queues, vault/cache scopes, rejected_ops sink
const currentSchemaVersion = 1

// pragmas are applied to every connection before the schema.
var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA foreign_keys = ON",
}

// Store is a node's database: validation and integration limbo, vault,
// cache and the rejected-op sink. SQLite in WAL mode lets the CLI read
// while a consumer writes.
type Store struct {
	db *sql.DB
}

// Open creates or opens the node database at path, then applies the
// pragmas and the schema. Opening an existing database is a no-op apart
// from the version check.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}

	// SQLite allows one writer; a single connection keeps Apply serial.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := initialize(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func initialize(db *sql.DB) error {
	if err := db.Ping(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Summary counts what a node holds at each pipeline stage.
type Summary struct {
	Limbo         map[Status]int `json:"validation_limbo"`
	Integration   int            `json:"integration_limbo"`
	Integrated    int            `json:"integrated"`
	Rejected      int            `json:"rejected"`
	VaultElements int            `json:"vault_elements"`
	CacheElements int            `json:"cache_elements"`
}

// Summary counts limbo entries by status and the rows of every other stage.
// Every known status appears in Limbo, with zero when none are held.
func (s *Store) Summary(ctx context.Context) (Summary, error) {
	sum := Summary{Limbo: map[Status]int{
		StatusPending:         0,
		StatusAwaitingSysDeps: 0,
		StatusSysValidated:    0,
		StatusAwaitingAppDeps: 0,
	}}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM validation_limbo GROUP BY status`)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize limbo: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return Summary{}, fmt.Errorf("scan limbo summary: %w", err)
		}
		st, err := ParseStatus(status)
		if err != nil {
			return Summary{}, err
		}
		sum.Limbo[st] = n
	}
	if err := rows.Err(); err != nil {
		return Summary{}, fmt.Errorf("iterate limbo summary: %w", err)
	}
	// Release the single connection before the counts below.
	rows.Close()

	counts := []struct {
		dest  *int
		query string
	}{
		{&sum.Integration, `SELECT COUNT(*) FROM integration_limbo`},
		{&sum.Integrated, `SELECT COUNT(*) FROM integrated_ops`},
		{&sum.Rejected, `SELECT COUNT(*) FROM rejected_ops`},
		{&sum.VaultElements, `SELECT COUNT(*) FROM elements WHERE scope = 'vault'`},
		{&sum.CacheElements, `SELECT COUNT(*) FROM elements WHERE scope = 'cache'`},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return Summary{}, fmt.Errorf("summarize: %w", err)
		}
	}
	return sum, nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
