package confirm

import (
	"context"
	"fmt"

	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/pipeline"
)

// PipelineExecutor routes confirmed proposals to the pipeline by action.
type PipelineExecutor struct {
	svc *pipeline.Service
}

func NewPipelineExecutor(svc *pipeline.Service) *PipelineExecutor {
	return &PipelineExecutor{svc: svc}
}

func (e *PipelineExecutor) Execute(ctx context.Context, owner ledger.OwnerID, p Proposal) (Result, error) {
	switch p.Action {
	case ActionExpense:
		tx, err := e.svc.CreateExpense(ctx, pipeline.ExpenseRequest{
			OwnerID:     owner,
			WalletID:    p.WalletID,
			Amount:      p.Amount,
			Description: p.Description,
			Category:    p.Category,
			Date:        p.Date,
		})
		return single(tx, err, "Expense recorded")

	case ActionIncome:
		tx, err := e.svc.CreateIncome(ctx, pipeline.IncomeRequest{
			OwnerID:     owner,
			WalletID:    p.WalletID,
			Amount:      p.Amount,
			Description: p.Description,
			Source:      p.Source,
			Date:        p.Date,
		})
		return single(tx, err, "Income recorded")

	case ActionInvestment:
		tx, err := e.svc.RecordInvestment(ctx, pipeline.InvestmentRequest{
			OwnerID:     owner,
			Amount:      p.Amount,
			AssetName:   p.AssetName,
			Description: p.Description,
			Date:        p.Date,
		})
		return single(tx, err, "Investment recorded")

	case ActionSavingsDeposit:
		tx, err := e.svc.DepositToSavings(ctx, pipeline.SavingsRequest{
			OwnerID:     owner,
			WalletID:    p.WalletID,
			GoalID:      p.GoalID,
			Amount:      p.Amount,
			Description: p.Description,
			Date:        p.Date,
		})
		return single(tx, err, "Savings deposit recorded")

	case ActionSavingsWithdraw:
		res, err := e.svc.WithdrawFromSavings(ctx, pipeline.SavingsRequest{
			OwnerID:     owner,
			WalletID:    p.WalletID,
			GoalID:      p.GoalID,
			Amount:      p.Amount,
			Description: p.Description,
			Date:        p.Date,
		})
		if err != nil {
			return Result{}, err
		}
		return Result{
			Message:      "Savings withdrawal recorded",
			Transactions: []ledger.Transaction{res.Savings, res.Transfer},
		}, nil

	case ActionTransfer:
		res, err := e.svc.Transfer(ctx, pipeline.TransferRequest{
			OwnerID:      owner,
			FromWalletID: p.WalletID,
			ToWalletID:   p.ToWalletID,
			Amount:       p.Amount,
			AdminFee:     p.AdminFee,
			Description:  p.Description,
			Date:         p.Date,
		})
		if err != nil {
			return Result{}, err
		}
		out := Result{
			Message:      "Transfer recorded",
			Transactions: []ledger.Transaction{res.Out, res.In},
		}
		if res.Fee != nil {
			out.Transactions = append(out.Transactions, *res.Fee)
		}
		if res.FeeError != nil {
			out.Warning = "admin fee not recorded: " + res.FeeError.Error()
		}
		return out, nil
	}
	return Result{}, &ledger.ValidationError{Field: "action", Message: fmt.Sprintf("unknown action %q", p.Action)}
}

func single(tx ledger.Transaction, err error, msg string) (Result, error) {
	if err != nil {
		return Result{}, err
	}
	return Result{Message: msg, Transactions: []ledger.Transaction{tx}}, nil
}
