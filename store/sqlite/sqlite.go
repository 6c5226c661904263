/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements ledger.TxRepository and confirm.PendingStore on SQLite. The
  PostgreSQL implementation in store/postgres follows the same layout with
  dialect differences only.

INTERFACES IMPLEMENTED:
  ledger.TransactionStore: Ledger rows
  ledger.WalletStore:      Wallets
  ledger.GoalStore:        Savings goals and allocation events
  ledger.TxRepository:     Atomic scopes for paired operations
  confirm.PendingStore:    Staged proposals and batches (pending.go)

KEY TABLES:
  transactions:         Ledger rows. Balances are derived from these.
  wallets:              Owner-scoped wallets, unique name per owner
  savings_goals:        Goals with the allocation counter
  allocation_events:    Audit trail of allocation changes
  pending_transactions: Staged proposals with expiry
  pending_batches:      Token groups from one message

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. WithTx holds the write lock and
  routes every read in the callback through the open *sql.Tx, so checks
  and writes see one consistent state.

IN-MEMORY DATABASES:
  ":memory:" gives each pool connection its own empty database, so the pool
  is pinned to a single connection.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  l := ledger.NewLedger(store, ledger.NewBalanceCache(5*time.Second, 0))

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - ledger/store.go: Interface definitions
  - queries.go: SQL for the ledger tables
  - pending.go: SQL for the confirmation tables
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/ledger"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if strings.HasPrefix(dbPath, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	-- Ledger rows. No balance column anywhere: balances are derived.
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		wallet_id TEXT,
		goal_id TEXT,
		goal_name TEXT NOT NULL DEFAULT '',
		asset_name TEXT NOT NULL DEFAULT '',
		transfer_kind TEXT NOT NULL DEFAULT '',
		tx_date TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Listing (hot path for history views)
	CREATE INDEX IF NOT EXISTS idx_transactions_owner_date
		ON transactions(owner_id, tx_date DESC, created_at DESC);

	-- Wallet balance derivation
	CREATE INDEX IF NOT EXISTS idx_transactions_owner_wallet
		ON transactions(owner_id, wallet_id) WHERE wallet_id IS NOT NULL;

	-- Savings totals and goal progress
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
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_wallets_owner_name
		ON wallets(owner_id, name);

	CREATE TABLE IF NOT EXISTS savings_goals (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		target_amount TEXT NOT NULL,
		allocated_amount TEXT NOT NULL DEFAULT '0',
		target_date TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_goals_owner
		ON savings_goals(owner_id);

	CREATE TABLE IF NOT EXISTS allocation_events (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		goal_id TEXT NOT NULL,
		wallet_id TEXT,
		delta TEXT NOT NULL,
		allocated_after TEXT NOT NULL,
		reason TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_allocation_events_goal
		ON allocation_events(owner_id, goal_id, created_at);

	-- Confirmation flow
	CREATE TABLE IF NOT EXISTS pending_transactions (
		token TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		channel_id TEXT NOT NULL DEFAULT '',
		batch_id TEXT NOT NULL DEFAULT '',
		proposal_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		expires_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_pending_expires
		ON pending_transactions(expires_at);

	CREATE TABLE IF NOT EXISTS pending_batches (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		channel_id TEXT NOT NULL DEFAULT '',
		tokens_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		expires_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_pending_batches_expires
		ON pending_batches(expires_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxRepository interface)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(queries{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) read() queries {
	return queries{q: s.db}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (s *Store) Append(ctx context.Context, tx ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().Append(ctx, tx)
}

// AppendBatch adds multiple transactions atomically.
func (s *Store) AppendBatch(ctx context.Context, txs []ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := (queries{q: sqlTx}).AppendBatch(ctx, txs); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) GetTransaction(ctx context.Context, owner ledger.OwnerID, id ledger.TransactionID) (ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetTransaction(ctx, owner, id)
}

func (s *Store) ListByOwner(ctx context.Context, owner ledger.OwnerID, limit, offset int) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListByOwner(ctx, owner, limit, offset)
}

func (s *Store) ListByWallet(ctx context.Context, owner ledger.OwnerID, wallet ledger.WalletID) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListByWallet(ctx, owner, wallet)
}

func (s *Store) ListByType(ctx context.Context, owner ledger.OwnerID, typ ledger.TxType) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListByType(ctx, owner, typ)
}

func (s *Store) UpdateTransaction(ctx context.Context, tx ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().UpdateTransaction(ctx, tx)
}

func (s *Store) DeleteTransaction(ctx context.Context, owner ledger.OwnerID, id ledger.TransactionID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().DeleteTransaction(ctx, owner, id)
}

// =============================================================================
// WALLETS AND GOALS
// =============================================================================

func (s *Store) CreateWallet(ctx context.Context, w ledger.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().CreateWallet(ctx, w)
}

func (s *Store) GetWallet(ctx context.Context, owner ledger.OwnerID, id ledger.WalletID) (ledger.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetWallet(ctx, owner, id)
}

func (s *Store) ListWallets(ctx context.Context, owner ledger.OwnerID) ([]ledger.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListWallets(ctx, owner)
}

func (s *Store) SetWalletActive(ctx context.Context, owner ledger.OwnerID, id ledger.WalletID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().SetWalletActive(ctx, owner, id, active)
}

func (s *Store) CreateGoal(ctx context.Context, g ledger.SavingsGoal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().CreateGoal(ctx, g)
}

func (s *Store) GetGoal(ctx context.Context, owner ledger.OwnerID, id ledger.GoalID) (ledger.SavingsGoal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetGoal(ctx, owner, id)
}

func (s *Store) ListGoals(ctx context.Context, owner ledger.OwnerID) ([]ledger.SavingsGoal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListGoals(ctx, owner)
}

func (s *Store) DeleteGoal(ctx context.Context, owner ledger.OwnerID, id ledger.GoalID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().DeleteGoal(ctx, owner, id)
}

func (s *Store) SetGoalAllocation(ctx context.Context, owner ledger.OwnerID, id ledger.GoalID, allocated decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().SetGoalAllocation(ctx, owner, id, allocated)
}

func (s *Store) AppendAllocationEvent(ctx context.Context, ev ledger.AllocationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().AppendAllocationEvent(ctx, ev)
}

func (s *Store) ListAllocationEvents(ctx context.Context, owner ledger.OwnerID, goal ledger.GoalID) ([]ledger.AllocationEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListAllocationEvents(ctx, owner, goal)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"transactions", "wallets", "savings_goals", "allocation_events", "pending_transactions", "pending_batches"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}
