// Package sqlite implements domain.Store on SQLite (modernc.org/sqlite, no CGO).
// The database lives in <dir>/econ.db. One connection and IMMEDIATE
// transactions make every Atomic call a single writer.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tutu-network/econ/internal/domain"
)

// DB wraps the SQLite connection.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the economy database in dir and migrates it.
func Open(dir string) (*DB, error) {
	if dir == "" {
		return nil, errors.New("empty db dir")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	path := filepath.Join(dir, "econ.db")
	dsn := "file:" + path +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(1)" +
		"&_txlock=immediate"

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	sqlDB.SetMaxOpenConns(1)

	db := &DB{db: sqlDB}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) migrate() error {
	for _, stmt := range Migrations() {
		if _, err := db.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (db *DB) Close() error { return db.db.Close() }

// Atomic implements domain.Store.
func (db *DB) Atomic(ctx context.Context, fn func(tx domain.Tx) error) error {
	sqlTx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Unavailable("begin", err)
	}
	if err := fn(&tx{ctx: ctx, tx: sqlTx}); err != nil {
		sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return domain.Unavailable("commit", err)
	}
	return nil
}

// Accounts implements domain.Store.
func (db *DB) Accounts(ctx context.Context) ([]domain.Account, error) {
	rows, err := db.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY user_id`)
	if err != nil {
		return nil, domain.Unavailable("list accounts", err)
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, domain.Unavailable("scan account", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Unavailable("list accounts", err)
	}
	return out, nil
}

// Records implements domain.Store.
func (db *DB) Records(ctx context.Context, userID string, limit int) ([]domain.TransactionRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, user_id, kind, entry, amount, counterparty_id, request_id, balance_after, created_at, metadata
		FROM transactions WHERE user_id = ?
		ORDER BY seq DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, domain.Unavailable("list records", err)
	}
	defer rows.Close()

	var out []domain.TransactionRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, domain.Unavailable("scan record", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Unavailable("list records", err)
	}
	return out, nil
}

// ─── Time Helpers ───────────────────────────────────────────────────────────

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func timePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}
