// Package postgres implements domain.Store on PostgreSQL through a pgx pool.
// Account and clan rows are locked with SELECT ... FOR UPDATE inside the
// transaction, and every update is version checked, so several processes can
// share one database.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/tutu-network/econ/internal/domain"
)

// Executor is implemented by both *pgxpool.Pool and pgx.Tx.
type Executor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PoolConfig defines connection pool settings.
type PoolConfig struct {
	MinConns        int32
	MaxConns        int32
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultPoolConfig returns pool defaults sized for a chat bot.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MinConns:        1,
		MaxConns:        10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
	}
}

// Store wraps a PostgreSQL connection pool.
type Store struct {
	logger *zap.Logger
	pool   *pgxpool.Pool
}

// New connects to url, pings, and applies the schema.
func New(ctx context.Context, logger *zap.Logger, url string, pc PoolConfig) (*Store, error) {
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	config.MinConns = pc.MinConns
	config.MaxConns = pc.MaxConns
	config.MaxConnLifetime = pc.ConnMaxLifetime
	config.MaxConnIdleTime = pc.ConnMaxIdleTime

	connCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connCtx, config)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(connCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{logger: logger, pool: pool}
	if err := s.migrate(connCtx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("PostgreSQL connection pool configured",
		zap.Int32("min_conns", pc.MinConns),
		zap.Int32("max_conns", pc.MaxConns),
		zap.Duration("conn_max_lifetime", pc.ConnMaxLifetime),
	)
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range Migrations() {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Atomic implements domain.Store.
func (s *Store) Atomic(ctx context.Context, fn func(tx domain.Tx) error) error {
	pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return domain.Unavailable("begin", err)
	}
	if err := fn(&tx{ctx: ctx, tx: pgTx}); err != nil {
		if rbErr := pgTx.Rollback(ctx); rbErr != nil {
			s.logger.Warn("Rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		return domain.Unavailable("commit", err)
	}
	return nil
}

// Accounts implements domain.Store.
func (s *Store) Accounts(ctx context.Context) ([]domain.Account, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+accountColumns+` FROM econ_accounts ORDER BY user_id`)
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
func (s *Store) Records(ctx context.Context, userID string, limit int) ([]domain.TransactionRecord, error) {
	query := `
		SELECT id, user_id, kind, entry, amount, counterparty_id, request_id, balance_after, created_at, metadata
		FROM econ_transactions WHERE user_id = $1 ORDER BY seq DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
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
