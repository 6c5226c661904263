/*
store.go - Persistence interfaces for the ledger

PURPOSE:
  Defines the boundary between domain logic and the database. Transactions,
  wallets and savings goals each get a narrow interface; Repository bundles
  them and TxRepository adds an atomic scope for paired operations.

LEDGER CONTRACT:
  Transactions are append-style. Update may only change description, amount
  and category; Delete removes exactly one row and never cascades to the
  other legs of a paired operation.

OWNER SCOPING:
  Every read and write takes the owner. A record that exists under another
  owner is reported as not found.

ATOMIC SCOPES:
  WithTx runs fn against a Repository bound to one storage transaction.
  All reads inside fn must go through that Repository so that checks and
  writes see the same state. fn returning an error rolls everything back.

IMPLEMENTATIONS:
  - ledger/store/memory.go: In-memory for tests and dev
  - store/sqlite/sqlite.go: SQLite
  - store/postgres/postgres.go: PostgreSQL via pgx

SEE ALSO:
  - ledger.go: Facade that assigns ids and invalidates the balance cache
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// TransactionStore persists ledger rows.
type TransactionStore interface {
	// Append persists a fully prepared row.
	Append(ctx context.Context, tx Transaction) error

	// AppendBatch persists rows atomically. Either all succeed or none do.
	AppendBatch(ctx context.Context, txs []Transaction) error

	// GetTransaction returns one row or a *NotFoundError.
	GetTransaction(ctx context.Context, owner OwnerID, id TransactionID) (Transaction, error)

	// ListByOwner returns rows ordered by Date desc, then CreatedAt desc.
	ListByOwner(ctx context.Context, owner OwnerID, limit, offset int) ([]Transaction, error)

	// ListByWallet returns every row bound to the wallet.
	ListByWallet(ctx context.Context, owner OwnerID, wallet WalletID) ([]Transaction, error)

	// ListByType returns every row of the given type for the owner.
	ListByType(ctx context.Context, owner OwnerID, typ TxType) ([]Transaction, error)

	// UpdateTransaction overwrites description, amount and category of the
	// row matching owner and id. Returns *NotFoundError when nothing matches.
	UpdateTransaction(ctx context.Context, tx Transaction) error

	// DeleteTransaction removes one row. Returns false when nothing matched.
	DeleteTransaction(ctx context.Context, owner OwnerID, id TransactionID) (bool, error)
}

// WalletStore persists wallets.
type WalletStore interface {
	CreateWallet(ctx context.Context, w Wallet) error
	GetWallet(ctx context.Context, owner OwnerID, id WalletID) (Wallet, error)
	ListWallets(ctx context.Context, owner OwnerID) ([]Wallet, error)

	// SetWalletActive flips the active flag. Returns *NotFoundError when
	// no wallet of owner has id.
	SetWalletActive(ctx context.Context, owner OwnerID, id WalletID, active bool) error
}

// GoalStore persists savings goals and their allocation audit trail.
type GoalStore interface {
	CreateGoal(ctx context.Context, g SavingsGoal) error
	GetGoal(ctx context.Context, owner OwnerID, id GoalID) (SavingsGoal, error)
	ListGoals(ctx context.Context, owner OwnerID) ([]SavingsGoal, error)
	DeleteGoal(ctx context.Context, owner OwnerID, id GoalID) (bool, error)

	// SetGoalAllocation overwrites the allocation counter.
	SetGoalAllocation(ctx context.Context, owner OwnerID, id GoalID, allocated decimal.Decimal) error

	AppendAllocationEvent(ctx context.Context, ev AllocationEvent) error
	ListAllocationEvents(ctx context.Context, owner OwnerID, goal GoalID) ([]AllocationEvent, error)
}

// Repository is the full persistence surface.
type Repository interface {
	TransactionStore
	WalletStore
	GoalStore
}

// TxRepository wraps Repository with transaction support.
type TxRepository interface {
	Repository

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(Repository) error) error
}
