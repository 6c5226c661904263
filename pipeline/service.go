/*
Package pipeline is the single write path for user-initiated transactions.

PURPOSE:
  Every create goes through the same steps: require and resolve the wallet
  inside the owner's wallets, check funds for outflows, then append. Paired
  operations (transfers, savings deposits and withdrawals) build all of
  their legs in one storage transaction.

SHARED SHAPE:
  1. Wallet reference required for wallet-bound types
     -> *ledger.ValidationError listing the owner's wallets
  2. Wallet must belong to the owner and be active
     -> *ledger.NotFoundError
  3. Outflows need balance >= amount
     -> *ledger.InsufficientFundsError{Current, Required}
  4. Append

  Steps 2 to 4 run inside ledger.WithTx, so the balance a check sees is the
  balance the write lands on.

ADMIN FEES:
  A transfer fee is a separate expense row written after the transfer
  commits. A failed fee is logged and reported on the result; the transfer
  itself stands.

SEE ALSO:
  - paired.go: Transfer, DepositToSavings, WithdrawFromSavings
  - savings/: WithdrawalGuard implementation
*/
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/logctx"
)

// WithdrawalGuard decides whether savings may be withdrawn. It runs inside
// the withdrawal's storage transaction and must read through repo.
type WithdrawalGuard interface {
	CheckWithdrawal(ctx context.Context, repo ledger.Repository, owner ledger.OwnerID, amount decimal.Decimal) error
}

// Service builds and commits transactions.
type Service struct {
	ledger *ledger.Ledger
	guard  WithdrawalGuard
}

// NewService creates a pipeline. guard may be nil, in which case
// withdrawals are only checked against total savings.
func NewService(l *ledger.Ledger, guard WithdrawalGuard) *Service {
	return &Service{ledger: l, guard: guard}
}

// Ledger exposes the underlying ledger for read paths.
func (s *Service) Ledger() *ledger.Ledger {
	return s.ledger
}

// =============================================================================
// REQUESTS
// =============================================================================

type ExpenseRequest struct {
	OwnerID     ledger.OwnerID
	WalletID    ledger.WalletID
	Amount      decimal.Decimal
	Description string
	Category    string
	Date        time.Time
}

type IncomeRequest struct {
	OwnerID     ledger.OwnerID
	WalletID    ledger.WalletID
	Amount      decimal.Decimal
	Description string
	Source      string
	Date        time.Time
}

// InvestmentRequest records a restatement of an investment position.
// Investments are never bound to a wallet.
type InvestmentRequest struct {
	OwnerID     ledger.OwnerID
	Amount      decimal.Decimal
	AssetName   string
	Description string
	Date        time.Time
}

// =============================================================================
// SINGLE-LEG OPERATIONS
// =============================================================================

// CreateExpense records money leaving a wallet.
func (s *Service) CreateExpense(ctx context.Context, req ExpenseRequest) (ledger.Transaction, error) {
	if err := requirePositive(req.Amount); err != nil {
		return ledger.Transaction{}, err
	}

	var out ledger.Transaction
	err := s.ledger.WithTx(ctx, req.OwnerID, func(repo ledger.Repository) error {
		if _, err := requireWallet(ctx, repo, req.OwnerID, req.WalletID); err != nil {
			return err
		}
		if err := requireFunds(ctx, repo, req.OwnerID, req.WalletID, req.Amount); err != nil {
			return err
		}
		tx, err := s.ledger.AppendIn(ctx, repo, ledger.Transaction{
			OwnerID:     req.OwnerID,
			Type:        ledger.TxExpense,
			Amount:      req.Amount,
			WalletID:    req.WalletID,
			Description: req.Description,
			Category:    req.Category,
			Date:        req.Date,
		})
		out = tx
		return err
	})
	if err != nil {
		return ledger.Transaction{}, err
	}
	logger(ctx).InfoContext(ctx, "expense recorded",
		"owner", req.OwnerID, "wallet", req.WalletID, "amount", req.Amount.String(), "tx", out.ID)
	return out, nil
}

// CreateIncome records money entering a wallet.
func (s *Service) CreateIncome(ctx context.Context, req IncomeRequest) (ledger.Transaction, error) {
	if err := requirePositive(req.Amount); err != nil {
		return ledger.Transaction{}, err
	}

	var out ledger.Transaction
	err := s.ledger.WithTx(ctx, req.OwnerID, func(repo ledger.Repository) error {
		if _, err := requireWallet(ctx, repo, req.OwnerID, req.WalletID); err != nil {
			return err
		}
		tx, err := s.ledger.AppendIn(ctx, repo, ledger.Transaction{
			OwnerID:     req.OwnerID,
			Type:        ledger.TxIncome,
			Amount:      req.Amount,
			WalletID:    req.WalletID,
			Description: req.Description,
			Source:      req.Source,
			Date:        req.Date,
		})
		out = tx
		return err
	})
	if err != nil {
		return ledger.Transaction{}, err
	}
	logger(ctx).InfoContext(ctx, "income recorded",
		"owner", req.OwnerID, "wallet", req.WalletID, "amount", req.Amount.String(), "tx", out.ID)
	return out, nil
}

// RecordInvestment stores a restatement row. It never moves a wallet.
func (s *Service) RecordInvestment(ctx context.Context, req InvestmentRequest) (ledger.Transaction, error) {
	if err := requirePositive(req.Amount); err != nil {
		return ledger.Transaction{}, err
	}
	return s.ledger.Append(ctx, ledger.Transaction{
		OwnerID:     req.OwnerID,
		Type:        ledger.TxInvestment,
		Amount:      req.Amount,
		AssetName:   req.AssetName,
		Description: req.Description,
		Date:        req.Date,
	})
}

// UpdateTransaction patches description, amount or category of one row.
// An amount change is held to the same funds rules as a new row: a wallet
// may not go negative and savings may not drop below what goals hold.
func (s *Service) UpdateTransaction(ctx context.Context, owner ledger.OwnerID, id ledger.TransactionID, patch ledger.TransactionPatch) (ledger.Transaction, error) {
	return s.ledger.UpdateChecked(ctx, owner, id, patch, s.checkUpdate)
}

func (s *Service) checkUpdate(ctx context.Context, repo ledger.Repository, before, after ledger.Transaction) error {
	if after.HasWallet() {
		if extra := ledger.WalletEffect(before).Sub(ledger.WalletEffect(after)); extra.IsPositive() {
			if err := requireFunds(ctx, repo, after.OwnerID, after.WalletID, extra); err != nil {
				return err
			}
		}
	}
	if after.Type == ledger.TxSavings {
		if drop := before.Amount.Sub(after.Amount); drop.IsPositive() {
			return s.checkWithdrawal(ctx, repo, after.OwnerID, drop)
		}
	}
	return nil
}

// DeleteTransaction removes one row. Paired legs are not touched.
func (s *Service) DeleteTransaction(ctx context.Context, owner ledger.OwnerID, id ledger.TransactionID) error {
	ok, err := s.ledger.Delete(ctx, owner, id)
	if err != nil {
		return err
	}
	if !ok {
		return &ledger.NotFoundError{Kind: "transaction", ID: string(id)}
	}
	return nil
}

// =============================================================================
// SHARED CHECKS
// =============================================================================

func requirePositive(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &ledger.ValidationError{Field: "amount", Message: "amount must be positive"}
	}
	return nil
}

// requireWallet resolves id inside the owner's wallets. An empty id yields
// a ValidationError listing what the owner can pick from.
func requireWallet(ctx context.Context, repo ledger.WalletStore, owner ledger.OwnerID, id ledger.WalletID) (ledger.Wallet, error) {
	if id == "" {
		wallets, err := repo.ListWallets(ctx, owner)
		if err != nil {
			return ledger.Wallet{}, err
		}
		return ledger.Wallet{}, &ledger.ValidationError{
			Field:   "wallet",
			Message: "please say which wallet this uses",
			Hint:    ledger.WalletNames(wallets),
		}
	}
	w, err := repo.GetWallet(ctx, owner, id)
	if err != nil {
		return ledger.Wallet{}, err
	}
	if !w.Active {
		return ledger.Wallet{}, &ledger.NotFoundError{Kind: "wallet", ID: string(id)}
	}
	return w, nil
}

func requireFunds(ctx context.Context, repo ledger.TransactionStore, owner ledger.OwnerID, wallet ledger.WalletID, amount decimal.Decimal) error {
	balance, err := ledger.NewBalanceCalculator(repo, nil).Recompute(ctx, owner, wallet)
	if err != nil {
		return err
	}
	if balance.LessThan(amount) {
		return &ledger.InsufficientFundsError{WalletID: wallet, Current: balance, Required: amount}
	}
	return nil
}

func logger(ctx context.Context) *slog.Logger {
	return logctx.From(ctx)
}
