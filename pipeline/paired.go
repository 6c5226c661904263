package pipeline

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// PAIRED OPERATIONS - All legs commit together or not at all
// =============================================================================

// TransferRequest moves money between two of the owner's wallets.
type TransferRequest struct {
	OwnerID      ledger.OwnerID
	FromWalletID ledger.WalletID
	ToWalletID   ledger.WalletID
	Amount       decimal.Decimal
	AdminFee     decimal.Decimal // zero for no fee
	Description  string
	Date         time.Time
}

// TransferResult carries both legs and the optional fee row. FeeError is
// set when the fee could not be written; the transfer still committed.
type TransferResult struct {
	Out      ledger.Transaction
	In       ledger.Transaction
	Fee      *ledger.Transaction
	FeeError error
}

// Transfer writes a negative leg on the source and a positive leg on the
// destination with the same date, then the admin fee if any.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	if err := requirePositive(req.Amount); err != nil {
		return TransferResult{}, err
	}
	if req.AdminFee.IsNegative() {
		return TransferResult{}, &ledger.ValidationError{Field: "admin_fee", Message: "fee cannot be negative"}
	}
	if req.FromWalletID != "" && req.FromWalletID == req.ToWalletID {
		return TransferResult{}, &ledger.ValidationError{Field: "to_wallet", Message: "source and destination must differ"}
	}
	date := req.Date
	if date.IsZero() {
		date = ledger.Day(time.Now())
	}

	var res TransferResult
	err := s.ledger.WithTx(ctx, req.OwnerID, func(repo ledger.Repository) error {
		from, err := requireWallet(ctx, repo, req.OwnerID, req.FromWalletID)
		if err != nil {
			return err
		}
		to, err := requireWallet(ctx, repo, req.OwnerID, req.ToWalletID)
		if err != nil {
			return err
		}
		if err := requireFunds(ctx, repo, req.OwnerID, from.ID, req.Amount); err != nil {
			return err
		}

		desc := req.Description
		if desc == "" {
			desc = "Transfer " + from.Name + " to " + to.Name
		}
		res.Out, err = s.ledger.AppendIn(ctx, repo, ledger.Transaction{
			OwnerID:      req.OwnerID,
			Type:         ledger.TxTransfer,
			Amount:       req.Amount.Neg(),
			WalletID:     from.ID,
			Description:  desc,
			TransferKind: ledger.KindWalletToWallet,
			Date:         date,
		})
		if err != nil {
			return err
		}
		res.In, err = s.ledger.AppendIn(ctx, repo, ledger.Transaction{
			OwnerID:      req.OwnerID,
			Type:         ledger.TxTransfer,
			Amount:       req.Amount,
			WalletID:     to.ID,
			Description:  desc,
			TransferKind: ledger.KindWalletToWallet,
			Date:         date,
		})
		return err
	})
	if err != nil {
		return TransferResult{}, err
	}

	logger(ctx).InfoContext(ctx, "transfer recorded",
		"owner", req.OwnerID, "from", req.FromWalletID, "to", req.ToWalletID, "amount", req.Amount.String())

	if req.AdminFee.IsPositive() {
		fee, err := s.CreateExpense(ctx, ExpenseRequest{
			OwnerID:     req.OwnerID,
			WalletID:    req.FromWalletID,
			Amount:      req.AdminFee,
			Description: "Admin fee: " + res.Out.Description,
			Category:    ledger.CategoryBankCharges,
			Date:        date,
		})
		if err != nil {
			logger(ctx).WarnContext(ctx, "transfer fee not recorded",
				"owner", req.OwnerID, "wallet", req.FromWalletID, "fee", req.AdminFee.String(), "error", err)
			res.FeeError = err
		} else {
			res.Fee = &fee
		}
	}
	return res, nil
}

// SavingsRequest moves money between a wallet and savings. GoalID is
// optional and tags the savings row for goal progress.
type SavingsRequest struct {
	OwnerID     ledger.OwnerID
	WalletID    ledger.WalletID
	GoalID      ledger.GoalID
	Amount      decimal.Decimal
	Description string
	Date        time.Time
}

// DepositToSavings writes one savings row bound to the source wallet. The
// sign policy turns it into an outflow for that wallet.
func (s *Service) DepositToSavings(ctx context.Context, req SavingsRequest) (ledger.Transaction, error) {
	if err := requirePositive(req.Amount); err != nil {
		return ledger.Transaction{}, err
	}

	var out ledger.Transaction
	err := s.ledger.WithTx(ctx, req.OwnerID, func(repo ledger.Repository) error {
		if _, err := requireWallet(ctx, repo, req.OwnerID, req.WalletID); err != nil {
			return err
		}
		goalName, err := goalLabel(ctx, repo, req.OwnerID, req.GoalID)
		if err != nil {
			return err
		}
		if err := requireFunds(ctx, repo, req.OwnerID, req.WalletID, req.Amount); err != nil {
			return err
		}
		out, err = s.ledger.AppendIn(ctx, repo, ledger.Transaction{
			OwnerID:      req.OwnerID,
			Type:         ledger.TxSavings,
			Amount:       req.Amount,
			WalletID:     req.WalletID,
			GoalID:       req.GoalID,
			GoalName:     goalName,
			Description:  descOr(req.Description, "Savings deposit"),
			TransferKind: ledger.KindWalletToSavings,
			Date:         req.Date,
		})
		return err
	})
	if err != nil {
		return ledger.Transaction{}, err
	}
	logger(ctx).InfoContext(ctx, "savings deposit recorded",
		"owner", req.OwnerID, "wallet", req.WalletID, "goal", req.GoalID, "amount", req.Amount.String())
	return out, nil
}

// WithdrawResult carries both legs of a savings withdrawal.
type WithdrawResult struct {
	Savings  ledger.Transaction // negative, no wallet
	Transfer ledger.Transaction // positive, into the wallet
}

// WithdrawFromSavings writes a negative savings row with no wallet and a
// positive transfer leg into the destination wallet.
func (s *Service) WithdrawFromSavings(ctx context.Context, req SavingsRequest) (WithdrawResult, error) {
	if err := requirePositive(req.Amount); err != nil {
		return WithdrawResult{}, err
	}
	date := req.Date
	if date.IsZero() {
		date = ledger.Day(time.Now())
	}

	var res WithdrawResult
	err := s.ledger.WithTx(ctx, req.OwnerID, func(repo ledger.Repository) error {
		if _, err := requireWallet(ctx, repo, req.OwnerID, req.WalletID); err != nil {
			return err
		}
		goalName, err := goalLabel(ctx, repo, req.OwnerID, req.GoalID)
		if err != nil {
			return err
		}
		if err := s.checkWithdrawal(ctx, repo, req.OwnerID, req.Amount); err != nil {
			return err
		}

		desc := descOr(req.Description, "Savings withdrawal")
		res.Savings, err = s.ledger.AppendIn(ctx, repo, ledger.Transaction{
			OwnerID:      req.OwnerID,
			Type:         ledger.TxSavings,
			Amount:       req.Amount.Neg(),
			GoalID:       req.GoalID,
			GoalName:     goalName,
			Description:  desc,
			TransferKind: ledger.KindSavingsToWallet,
			Date:         date,
		})
		if err != nil {
			return err
		}
		res.Transfer, err = s.ledger.AppendIn(ctx, repo, ledger.Transaction{
			OwnerID:      req.OwnerID,
			Type:         ledger.TxTransfer,
			Amount:       req.Amount,
			WalletID:     req.WalletID,
			Description:  desc,
			TransferKind: ledger.KindSavingsToWallet,
			Date:         date,
		})
		return err
	})
	if err != nil {
		return WithdrawResult{}, err
	}
	logger(ctx).InfoContext(ctx, "savings withdrawal recorded",
		"owner", req.OwnerID, "wallet", req.WalletID, "amount", req.Amount.String())
	return res, nil
}

func (s *Service) checkWithdrawal(ctx context.Context, repo ledger.Repository, owner ledger.OwnerID, amount decimal.Decimal) error {
	if s.guard != nil {
		return s.guard.CheckWithdrawal(ctx, repo, owner, amount)
	}
	total, err := ledger.NewBalanceCalculator(repo, nil).TotalSavings(ctx, owner)
	if err != nil {
		return err
	}
	if amount.GreaterThan(total) {
		return &ledger.InsufficientFundsError{Current: total, Required: amount}
	}
	return nil
}

// goalLabel verifies an optional goal reference and returns its name.
func goalLabel(ctx context.Context, repo ledger.GoalStore, owner ledger.OwnerID, id ledger.GoalID) (string, error) {
	if id == "" {
		return "", nil
	}
	g, err := repo.GetGoal(ctx, owner, id)
	if err != nil {
		return "", err
	}
	return g.Name, nil
}

func descOr(desc, fallback string) string {
	if desc == "" {
		return fallback
	}
	return desc
}
