/*
Package postgres provides a PostgreSQL-backed ledger.TxRepository on pgx.

PURPOSE:
  Same tables and semantics as store/sqlite with native types: amounts are
  NUMERIC, dates are DATE, timestamps are TIMESTAMPTZ.

CONCURRENCY:
  No process mutex. WithTx runs at SERIALIZABLE isolation so two
  check-then-write scopes for the same owner cannot both commit on a stale
  balance; serialization failures are retried a few times.

PENDING STAGING:
  Not implemented here. Deployments on PostgreSQL stage proposals in
  MongoDB or in process memory.

SEE ALSO:
  - store/sqlite: reference implementation of the same interfaces
*/
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/ledger"
)

// maxTxAttempts bounds retries of a serializable scope.
const maxTxAttempts = 3

// Store implements ledger.TxRepository on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
	queries
}

// New connects, pings and migrates.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	s := &Store{pool: pool, queries: queries{q: pool}}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// WithTx runs fn in one serializable transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Repository) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
			return fn(queries{q: tx})
		})
		if !isSerializationFailure(err) {
			return err
		}
	}
	return fmt.Errorf("transaction retried %d times: %w", maxTxAttempts, err)
}

// AppendBatch writes all rows in one transaction.
func (s *Store) AppendBatch(ctx context.Context, txs []ledger.Transaction) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return queries{q: tx}.AppendBatch(ctx, txs)
	})
}

// Reset truncates every table (tests).
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE transactions, wallets, savings_goals, allocation_events`)
	return err
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		amount NUMERIC(20, 2) NOT NULL,
		tx_type TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		wallet_id TEXT,
		goal_id TEXT,
		goal_name TEXT NOT NULL DEFAULT '',
		asset_name TEXT NOT NULL DEFAULT '',
		transfer_kind TEXT NOT NULL DEFAULT '',
		tx_date DATE NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_owner_date
		ON transactions(owner_id, tx_date DESC, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_transactions_owner_wallet
		ON transactions(owner_id, wallet_id) WHERE wallet_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_transactions_owner_type
		ON transactions(owner_id, tx_type);

	CREATE TABLE IF NOT EXISTS wallets (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		wallet_type TEXT NOT NULL,
		color TEXT NOT NULL DEFAULT '',
		icon TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE (owner_id, name)
	);

	CREATE TABLE IF NOT EXISTS savings_goals (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		target_amount NUMERIC(20, 2) NOT NULL,
		allocated_amount NUMERIC(20, 2) NOT NULL DEFAULT 0,
		target_date DATE,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS allocation_events (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		goal_id TEXT NOT NULL,
		wallet_id TEXT,
		delta NUMERIC(20, 2) NOT NULL,
		allocated_after NUMERIC(20, 2) NOT NULL,
		reason TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_allocation_events_goal
		ON allocation_events(owner_id, goal_id, created_at);
	`)
	return err
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// numeric parses a NUMERIC column selected as text.
func numeric(column, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("bad %s %q: %w", column, s, err)
	}
	return d, nil
}
