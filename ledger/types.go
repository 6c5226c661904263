/*
types.go - Core domain types for the personal ledger

PURPOSE:
  Defines the records every other package builds on: transactions, wallets,
  savings goals and allocation audit rows. Balances are never stored; they
  are derived from transactions by BalanceCalculator.

KEY CONCEPTS:
  Transaction:     One row of the append-style ledger. Amount is signed for
                   transfer and savings legs, positive for everything else.
  Wallet:          Owner-scoped container of funds. No stored balance.
  SavingsGoal:     Target plus an allocation counter. AllocatedAmount is the
                   only mutable numeric in the model.
  AllocationEvent: Audit row written whenever a goal's allocation changes.

SEE ALSO:
  - balance.go: WalletEffect sign policy
  - errors.go: Validation and domain errors
*/
package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type OwnerID string
type TransactionID string
type WalletID string
type GoalID string

// =============================================================================
// TRANSACTION TYPES
// =============================================================================

// TxType classifies a ledger row.
type TxType string

const (
	TxIncome     TxType = "income"
	TxExpense    TxType = "expense"
	TxTransfer   TxType = "transfer"
	TxSavings    TxType = "savings"
	TxInvestment TxType = "investment"
)

// Valid reports whether t is a known transaction type.
func (t TxType) Valid() bool {
	switch t {
	case TxIncome, TxExpense, TxTransfer, TxSavings, TxInvestment:
		return true
	}
	return false
}

// TransferKind records which side of a paired operation a leg belongs to.
type TransferKind string

const (
	KindNone            TransferKind = ""
	KindWalletToWallet  TransferKind = "wallet_to_wallet"
	KindWalletToSavings TransferKind = "wallet_to_savings"
	KindSavingsToWallet TransferKind = "savings_to_wallet"
)

func (k TransferKind) Valid() bool {
	switch k {
	case KindNone, KindWalletToWallet, KindWalletToSavings, KindSavingsToWallet:
		return true
	}
	return false
}

// CategoryBankCharges tags the admin fee leg of a transfer.
const CategoryBankCharges = "Transfer/Bank Charges"

// =============================================================================
// TRANSACTION
// =============================================================================

// Transaction is one ledger row.
type Transaction struct {
	ID           TransactionID
	OwnerID      OwnerID
	Description  string
	Amount       decimal.Decimal
	Type         TxType
	Category     string
	Source       string
	WalletID     WalletID // empty when the row is not bound to a wallet
	GoalID       GoalID   // resolved goal, empty when untagged
	GoalName     string   // display label only
	AssetName    string
	TransferKind TransferKind
	Date         time.Time
	CreatedAt    time.Time
}

// HasWallet reports whether the row is bound to a wallet.
func (t Transaction) HasWallet() bool {
	return t.WalletID != ""
}

// Validate checks the row-level invariants.
func (t Transaction) Validate() error {
	if t.OwnerID == "" {
		return &ValidationError{Field: "owner_id", Message: "owner is required"}
	}
	if !t.Type.Valid() {
		return &ValidationError{Field: "type", Message: "unknown transaction type " + string(t.Type)}
	}
	if !t.TransferKind.Valid() {
		return &ValidationError{Field: "transfer_kind", Message: "unknown transfer kind " + string(t.TransferKind)}
	}
	switch t.Type {
	case TxIncome, TxExpense, TxInvestment:
		if !t.Amount.IsPositive() {
			return &ValidationError{Field: "amount", Message: "amount must be positive"}
		}
	case TxTransfer, TxSavings:
		if t.Amount.IsZero() {
			return &ValidationError{Field: "amount", Message: "amount must be non-zero"}
		}
	}
	return nil
}

// TransactionPatch lists the fields an update may change.
// Nil fields are left untouched.
type TransactionPatch struct {
	Description *string
	Amount      *decimal.Decimal
	Category    *string
}

// Empty reports whether the patch changes nothing.
func (p TransactionPatch) Empty() bool {
	return p.Description == nil && p.Amount == nil && p.Category == nil
}

// Apply returns a copy of tx with the patch applied.
func (p TransactionPatch) Apply(tx Transaction) Transaction {
	if p.Description != nil {
		tx.Description = *p.Description
	}
	if p.Amount != nil {
		tx.Amount = *p.Amount
	}
	if p.Category != nil {
		tx.Category = *p.Category
	}
	return tx
}

// =============================================================================
// WALLETS
// =============================================================================

type WalletType string

const (
	WalletBankCard    WalletType = "bank_card"
	WalletEWallet     WalletType = "e_wallet"
	WalletCash        WalletType = "cash"
	WalletBankAccount WalletType = "bank_account"
)

func (t WalletType) Valid() bool {
	switch t {
	case WalletBankCard, WalletEWallet, WalletCash, WalletBankAccount:
		return true
	}
	return false
}

// Wallet is an owner-scoped container of funds.
type Wallet struct {
	ID        WalletID
	OwnerID   OwnerID
	Name      string
	Type      WalletType
	Color     string
	Icon      string
	Active    bool
	CreatedAt time.Time
}

func (w Wallet) Validate() error {
	if w.OwnerID == "" {
		return &ValidationError{Field: "owner_id", Message: "owner is required"}
	}
	if strings.TrimSpace(w.Name) == "" {
		return &ValidationError{Field: "name", Message: "wallet name is required"}
	}
	if !w.Type.Valid() {
		return &ValidationError{Field: "type", Message: "unknown wallet type " + string(w.Type)}
	}
	return nil
}

// WalletNames lists the names of active wallets, used in guidance messages.
func WalletNames(wallets []Wallet) []string {
	names := make([]string, 0, len(wallets))
	for _, w := range wallets {
		if w.Active {
			names = append(names, w.Name)
		}
	}
	return names
}

// =============================================================================
// SAVINGS GOALS
// =============================================================================

// SavingsGoal is a target the owner saves toward.
type SavingsGoal struct {
	ID              GoalID
	OwnerID         OwnerID
	Name            string
	TargetAmount    decimal.Decimal
	AllocatedAmount decimal.Decimal
	TargetDate      *time.Time
	CreatedAt       time.Time
}

func (g SavingsGoal) Validate() error {
	if g.OwnerID == "" {
		return &ValidationError{Field: "owner_id", Message: "owner is required"}
	}
	if strings.TrimSpace(g.Name) == "" {
		return &ValidationError{Field: "name", Message: "goal name is required"}
	}
	if !g.TargetAmount.IsPositive() {
		return &ValidationError{Field: "target_amount", Message: "target must be positive"}
	}
	if g.AllocatedAmount.IsNegative() {
		return &ValidationError{Field: "allocated_amount", Message: "allocation cannot be negative"}
	}
	return nil
}

// RemainingToTarget is how much more can be allocated before the target is met.
func (g SavingsGoal) RemainingToTarget() decimal.Decimal {
	r := g.TargetAmount.Sub(g.AllocatedAmount)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// AllocationReason labels an AllocationEvent.
type AllocationReason string

const (
	ReasonAllocate   AllocationReason = "allocate"
	ReasonDeallocate AllocationReason = "deallocate"
	ReasonReset      AllocationReason = "reset"
)

// AllocationEvent is the audit trail of allocation changes.
type AllocationEvent struct {
	ID             string
	OwnerID        OwnerID
	GoalID         GoalID
	WalletID       WalletID
	Delta          decimal.Decimal
	AllocatedAfter decimal.Decimal
	Reason         AllocationReason
	CreatedAt      time.Time
}

// Day truncates t to a calendar date in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
