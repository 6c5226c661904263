/*
ledger.go - Ledger facade over the repository

PURPOSE:
  The Ledger is the write path for transactions. It assigns ids and audit
  timestamps, validates rows, persists them and drops the owner's cached
  balances after every write. Reads pass straight through.

INVARIANTS:
  - Every write for an owner invalidates all of that owner's cached balances.
  - Balances are derived, never stored.
  - Update touches description, amount and category only.
  - Delete removes one row; paired legs are independent rows.

ATOMIC SCOPES:
  WithTx hands fn a Repository bound to one storage transaction. Callers
  prepare rows with AppendIn so ids and validation match the plain path.
  The owner's cache is invalidated when the scope ends, committed or not.

SEE ALSO:
  - store.go: Persistence interfaces
  - balance.go: Derived balances
  - pipeline/: Creation pipeline and paired operations
*/
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Ledger is the source of truth for all balance changes.
type Ledger struct {
	repo     TxRepository
	cache    *BalanceCache
	Balances *BalanceCalculator

	now   func() time.Time
	newID func() string
}

// NewLedger builds a ledger. cache may be nil to disable caching.
func NewLedger(repo TxRepository, cache *BalanceCache) *Ledger {
	return &Ledger{
		repo:     repo,
		cache:    cache,
		Balances: NewBalanceCalculator(repo, cache),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Repository exposes the underlying store for read-only collaborators.
func (l *Ledger) Repository() TxRepository {
	return l.repo
}

// SetClock overrides the time source. Used by tests.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

// Prepare fills defaults and validates a row without persisting it.
func (l *Ledger) Prepare(tx Transaction) (Transaction, error) {
	if tx.ID == "" {
		tx.ID = TransactionID(l.newID())
	}
	now := l.now().UTC()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	if tx.Date.IsZero() {
		tx.Date = Day(now)
	}
	if err := tx.Validate(); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// Append validates and persists a row.
func (l *Ledger) Append(ctx context.Context, tx Transaction) (Transaction, error) {
	out, err := l.AppendIn(ctx, l.repo, tx)
	if err != nil {
		return Transaction{}, err
	}
	l.invalidate(out.OwnerID)
	return out, nil
}

// AppendIn prepares and persists a row through repo, typically the
// Repository handed to a WithTx callback. The caller owns cache invalidation.
func (l *Ledger) AppendIn(ctx context.Context, repo TransactionStore, tx Transaction) (Transaction, error) {
	out, err := l.Prepare(tx)
	if err != nil {
		return Transaction{}, err
	}
	if err := repo.Append(ctx, out); err != nil {
		return Transaction{}, fmt.Errorf("append transaction: %w", err)
	}
	return out, nil
}

// AppendBatch persists rows atomically. All rows must share one owner.
func (l *Ledger) AppendBatch(ctx context.Context, txs []Transaction) ([]Transaction, error) {
	if len(txs) == 0 {
		return nil, nil
	}
	owner := txs[0].OwnerID
	out := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.OwnerID != owner {
			return nil, &ValidationError{Field: "owner_id", Message: "batch rows must share one owner"}
		}
		p, err := l.Prepare(tx)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := l.repo.AppendBatch(ctx, out); err != nil {
		return nil, fmt.Errorf("append batch: %w", err)
	}
	l.invalidate(owner)
	return out, nil
}

// WithTx runs fn in one storage transaction scoped to owner.
func (l *Ledger) WithTx(ctx context.Context, owner OwnerID, fn func(Repository) error) error {
	defer l.invalidate(owner)
	return l.repo.WithTx(ctx, fn)
}

func (l *Ledger) Get(ctx context.Context, owner OwnerID, id TransactionID) (Transaction, error) {
	return l.repo.GetTransaction(ctx, owner, id)
}

// ListByOwner pages through the owner's rows, newest first.
func (l *Ledger) ListByOwner(ctx context.Context, owner OwnerID, limit, offset int) ([]Transaction, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return l.repo.ListByOwner(ctx, owner, limit, offset)
}

func (l *Ledger) ListByWallet(ctx context.Context, owner OwnerID, wallet WalletID) ([]Transaction, error) {
	return l.repo.ListByWallet(ctx, owner, wallet)
}

// UpdateCheck vets a patched row inside the update's storage transaction,
// with the row as stored and as it would be written.
type UpdateCheck func(ctx context.Context, repo Repository, before, after Transaction) error

// Update applies patch to the row matching owner and id.
func (l *Ledger) Update(ctx context.Context, owner OwnerID, id TransactionID, patch TransactionPatch) (Transaction, error) {
	return l.UpdateChecked(ctx, owner, id, patch, nil)
}

// UpdateChecked is Update with check run after validation and before the
// write. A check error aborts the update.
func (l *Ledger) UpdateChecked(ctx context.Context, owner OwnerID, id TransactionID, patch TransactionPatch, check UpdateCheck) (Transaction, error) {
	if patch.Empty() {
		return Transaction{}, &ValidationError{Field: "patch", Message: "nothing to update"}
	}
	var out Transaction
	err := l.WithTx(ctx, owner, func(repo Repository) error {
		current, err := repo.GetTransaction(ctx, owner, id)
		if err != nil {
			return err
		}
		next := patch.Apply(current)
		if err := next.Validate(); err != nil {
			return err
		}
		if check != nil {
			if err := check(ctx, repo, current, next); err != nil {
				return err
			}
		}
		if err := repo.UpdateTransaction(ctx, next); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	return out, nil
}

// Delete removes one row. Other legs of a paired operation are left alone.
func (l *Ledger) Delete(ctx context.Context, owner OwnerID, id TransactionID) (bool, error) {
	ok, err := l.repo.DeleteTransaction(ctx, owner, id)
	if err != nil {
		return false, fmt.Errorf("delete transaction: %w", err)
	}
	if ok {
		l.invalidate(owner)
	}
	return ok, nil
}

func (l *Ledger) invalidate(owner OwnerID) {
	if l.cache != nil {
		l.cache.InvalidateOwner(owner)
	}
}
