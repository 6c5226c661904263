/*
balance.go - Derived balances

PURPOSE:
  Balances are never stored. A wallet balance is the sum of WalletEffect
  over the rows bound to the wallet; a goal's current amount is the sum of
  savings rows tagged with the goal; total savings is the sum of all savings
  rows.

SIGN POLICY:
  WalletEffect is the single place that decides how a row moves a wallet:

    income                 +amount
    transfer               +amount   (legs are already signed)
    expense                -amount
    savings, wallet bound  -amount   (deposit leaves the wallet)
    investment             0         (restatement, no wallet)
    anything unbound       0

  The withdrawal side of savings is a transfer leg into the wallet plus a
  negative savings row with no wallet, so both directions stay consistent.

CACHING:
  WalletBalance consults the BalanceCache when one is configured. Recompute,
  GoalCurrentAmount and TotalSavings always read the store.

SEE ALSO:
  - cache.go: BalanceCache
  - pipeline/: Funds checks before writes
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// WalletEffect returns how much tx moves the balance of the wallet it is
// bound to.
func WalletEffect(tx Transaction) decimal.Decimal {
	if !tx.HasWallet() {
		return decimal.Zero
	}
	switch tx.Type {
	case TxIncome, TxTransfer:
		return tx.Amount
	case TxExpense, TxSavings:
		return tx.Amount.Neg()
	default:
		return decimal.Zero
	}
}

// SumWalletEffect folds WalletEffect over rows of one wallet.
func SumWalletEffect(txs []Transaction, wallet WalletID) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		if tx.WalletID == wallet {
			total = total.Add(WalletEffect(tx))
		}
	}
	return total
}

// BalanceCalculator derives balances from a TransactionStore.
type BalanceCalculator struct {
	store TransactionStore
	cache *BalanceCache
}

// NewBalanceCalculator builds a calculator. cache may be nil, which is what
// callers inside a storage transaction want.
func NewBalanceCalculator(store TransactionStore, cache *BalanceCache) *BalanceCalculator {
	return &BalanceCalculator{store: store, cache: cache}
}

// WalletBalance returns the wallet's balance, cached for a few seconds.
func (c *BalanceCalculator) WalletBalance(ctx context.Context, owner OwnerID, wallet WalletID) (decimal.Decimal, error) {
	if c.cache == nil {
		return c.Recompute(ctx, owner, wallet)
	}
	if v, ok := c.cache.Get(owner, wallet); ok {
		return v, nil
	}
	gen := c.cache.Generation(owner)
	v, err := c.Recompute(ctx, owner, wallet)
	if err != nil {
		return decimal.Zero, err
	}
	c.cache.Put(owner, wallet, v, gen)
	return v, nil
}

// Recompute derives the wallet balance from the store, bypassing the cache.
func (c *BalanceCalculator) Recompute(ctx context.Context, owner OwnerID, wallet WalletID) (decimal.Decimal, error) {
	txs, err := c.store.ListByWallet(ctx, owner, wallet)
	if err != nil {
		return decimal.Zero, err
	}
	return SumWalletEffect(txs, wallet), nil
}

// GoalCurrentAmount sums savings rows tagged with the goal.
func (c *BalanceCalculator) GoalCurrentAmount(ctx context.Context, owner OwnerID, goal GoalID) (decimal.Decimal, error) {
	txs, err := c.store.ListByType(ctx, owner, TxSavings)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, tx := range txs {
		if tx.GoalID == goal {
			total = total.Add(tx.Amount)
		}
	}
	return total, nil
}

// GoalAmounts sums savings rows per goal in one pass.
func (c *BalanceCalculator) GoalAmounts(ctx context.Context, owner OwnerID) (map[GoalID]decimal.Decimal, error) {
	txs, err := c.store.ListByType(ctx, owner, TxSavings)
	if err != nil {
		return nil, err
	}
	out := make(map[GoalID]decimal.Decimal)
	for _, tx := range txs {
		if tx.GoalID == "" {
			continue
		}
		out[tx.GoalID] = out[tx.GoalID].Add(tx.Amount)
	}
	return out, nil
}

// TotalSavings sums every savings row, deposits and withdrawals alike.
func (c *BalanceCalculator) TotalSavings(ctx context.Context, owner OwnerID) (decimal.Decimal, error) {
	txs, err := c.store.ListByType(ctx, owner, TxSavings)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(tx.Amount)
	}
	return total, nil
}
