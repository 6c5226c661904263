/*
Package savings manages savings goals and their allocations.

PURPOSE:
  Money in savings is one pool. Goals earmark parts of it through an
  allocation counter; goal progress is measured separately from savings
  rows tagged with the goal.

KEY QUANTITIES:
  totalSavings = sum of all savings rows
  allocated    = sum of every goal's AllocatedAmount
  unallocated  = totalSavings - allocated

ALLOCATION RULE:
  allocate(goal, amount) requires
      amount <= min(unallocated, goal.target - goal.allocated)
  so the sum of allocations never exceeds total savings, and no goal is
  allocated past its target.

WITHDRAWAL RULE:
  A withdrawal may only spend unallocated money. Asking for more than total
  savings is InsufficientFunds; asking for more than unallocated is an
  AllocatedMoneyError with the per-goal breakdown.

HEALTH CHECK:
  Diagnostic only. Reports goals whose tagged savings fell well below their
  allocation and an over-allocated pool. Never repairs anything.

SEE ALSO:
  - pipeline/paired.go: WithdrawFromSavings calls CheckWithdrawal
*/
package savings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/logctx"
)

// Allocator owns goal lifecycle and allocation accounting.
type Allocator struct {
	ledger *ledger.Ledger
	now    func() time.Time
}

func NewAllocator(l *ledger.Ledger) *Allocator {
	return &Allocator{ledger: l, now: time.Now}
}

// =============================================================================
// GOALS
// =============================================================================

// CreateGoalRequest describes a new goal.
type CreateGoalRequest struct {
	OwnerID      ledger.OwnerID
	Name         string
	TargetAmount decimal.Decimal
	TargetDate   *time.Time
}

func (a *Allocator) CreateGoal(ctx context.Context, req CreateGoalRequest) (ledger.SavingsGoal, error) {
	g := ledger.SavingsGoal{
		ID:              ledger.GoalID(uuid.NewString()),
		OwnerID:         req.OwnerID,
		Name:            req.Name,
		TargetAmount:    req.TargetAmount,
		AllocatedAmount: decimal.Zero,
		TargetDate:      req.TargetDate,
		CreatedAt:       a.now().UTC(),
	}
	if err := g.Validate(); err != nil {
		return ledger.SavingsGoal{}, err
	}
	if err := a.ledger.Repository().CreateGoal(ctx, g); err != nil {
		return ledger.SavingsGoal{}, err
	}
	return g, nil
}

func (a *Allocator) GetGoal(ctx context.Context, owner ledger.OwnerID, id ledger.GoalID) (ledger.SavingsGoal, error) {
	return a.ledger.Repository().GetGoal(ctx, owner, id)
}

func (a *Allocator) ListGoals(ctx context.Context, owner ledger.OwnerID) ([]ledger.SavingsGoal, error) {
	return a.ledger.Repository().ListGoals(ctx, owner)
}

// DeleteGoal removes a goal. Its allocation returns to the unallocated pool
// and tagged savings rows keep their label.
func (a *Allocator) DeleteGoal(ctx context.Context, owner ledger.OwnerID, id ledger.GoalID) error {
	ok, err := a.ledger.Repository().DeleteGoal(ctx, owner, id)
	if err != nil {
		return err
	}
	if !ok {
		return &ledger.NotFoundError{Kind: "goal", ID: string(id)}
	}
	return nil
}

// =============================================================================
// ALLOCATION
// =============================================================================

// Allocate earmarks amount of unallocated savings for the goal. wallet is
// optional; when given it must be one of the owner's wallets and is
// recorded on the audit event.
func (a *Allocator) Allocate(ctx context.Context, owner ledger.OwnerID, goal ledger.GoalID, wallet ledger.WalletID, amount decimal.Decimal) (ledger.SavingsGoal, error) {
	var out ledger.SavingsGoal
	err := a.ledger.WithTx(ctx, owner, func(repo ledger.Repository) error {
		g, err := a.allocate(ctx, repo, owner, goal, wallet, amount, ledger.ReasonAllocate)
		out = g
		return err
	})
	if err != nil {
		return ledger.SavingsGoal{}, err
	}
	logctx.From(ctx).InfoContext(ctx, "goal allocation increased",
		"owner", owner, "goal", goal, "amount", amount.String(), "allocated", out.AllocatedAmount.String())
	return out, nil
}

// Deallocate returns amount of the goal's allocation to the pool.
func (a *Allocator) Deallocate(ctx context.Context, owner ledger.OwnerID, goal ledger.GoalID, amount decimal.Decimal) (ledger.SavingsGoal, error) {
	var out ledger.SavingsGoal
	err := a.ledger.WithTx(ctx, owner, func(repo ledger.Repository) error {
		g, err := a.deallocate(ctx, repo, owner, goal, amount, ledger.ReasonDeallocate)
		out = g
		return err
	})
	if err != nil {
		return ledger.SavingsGoal{}, err
	}
	logctx.From(ctx).InfoContext(ctx, "goal allocation decreased",
		"owner", owner, "goal", goal, "amount", amount.String(), "allocated", out.AllocatedAmount.String())
	return out, nil
}

// SetAllocation makes the goal's allocation exactly target: release all of
// it, then allocate target, in one transaction. Calling it twice with the
// same target leaves the same state.
func (a *Allocator) SetAllocation(ctx context.Context, owner ledger.OwnerID, goal ledger.GoalID, target decimal.Decimal) (ledger.SavingsGoal, error) {
	if target.IsNegative() {
		return ledger.SavingsGoal{}, &ledger.ValidationError{Field: "amount", Message: "allocation cannot be negative"}
	}
	var out ledger.SavingsGoal
	err := a.ledger.WithTx(ctx, owner, func(repo ledger.Repository) error {
		g, err := repo.GetGoal(ctx, owner, goal)
		if err != nil {
			return err
		}
		if g.AllocatedAmount.IsPositive() {
			if g, err = a.deallocate(ctx, repo, owner, goal, g.AllocatedAmount, ledger.ReasonReset); err != nil {
				return err
			}
		}
		if target.IsPositive() {
			if g, err = a.allocate(ctx, repo, owner, goal, "", target, ledger.ReasonReset); err != nil {
				return err
			}
		}
		out = g
		return nil
	})
	if err != nil {
		return ledger.SavingsGoal{}, err
	}
	return out, nil
}

func (a *Allocator) allocate(ctx context.Context, repo ledger.Repository, owner ledger.OwnerID, goal ledger.GoalID, wallet ledger.WalletID, amount decimal.Decimal, reason ledger.AllocationReason) (ledger.SavingsGoal, error) {
	if !amount.IsPositive() {
		return ledger.SavingsGoal{}, &ledger.ValidationError{Field: "amount", Message: "amount must be positive"}
	}
	g, err := repo.GetGoal(ctx, owner, goal)
	if err != nil {
		return ledger.SavingsGoal{}, err
	}
	if wallet != "" {
		if _, err := repo.GetWallet(ctx, owner, wallet); err != nil {
			return ledger.SavingsGoal{}, err
		}
	}

	pool, err := readPool(ctx, repo, owner)
	if err != nil {
		return ledger.SavingsGoal{}, err
	}
	unallocated := pool.Unallocated()
	remaining := g.RemainingToTarget()
	available := decimal.Min(unallocated, remaining)
	if available.IsNegative() {
		available = decimal.Zero
	}
	if amount.GreaterThan(available) {
		return ledger.SavingsGoal{}, &ledger.AllocationExceededError{
			GoalID:            goal,
			Requested:         amount,
			Available:         available,
			Unallocated:       unallocated,
			RemainingToTarget: remaining,
		}
	}

	g.AllocatedAmount = g.AllocatedAmount.Add(amount)
	if err := repo.SetGoalAllocation(ctx, owner, goal, g.AllocatedAmount); err != nil {
		return ledger.SavingsGoal{}, err
	}
	return g, a.record(ctx, repo, g, wallet, amount, reason)
}

func (a *Allocator) deallocate(ctx context.Context, repo ledger.Repository, owner ledger.OwnerID, goal ledger.GoalID, amount decimal.Decimal, reason ledger.AllocationReason) (ledger.SavingsGoal, error) {
	if !amount.IsPositive() {
		return ledger.SavingsGoal{}, &ledger.ValidationError{Field: "amount", Message: "amount must be positive"}
	}
	g, err := repo.GetGoal(ctx, owner, goal)
	if err != nil {
		return ledger.SavingsGoal{}, err
	}
	if amount.GreaterThan(g.AllocatedAmount) {
		return ledger.SavingsGoal{}, &ledger.ValidationError{
			Field:   "amount",
			Message: "cannot release more than is allocated (" + g.AllocatedAmount.StringFixed(2) + ")",
		}
	}
	g.AllocatedAmount = g.AllocatedAmount.Sub(amount)
	if err := repo.SetGoalAllocation(ctx, owner, goal, g.AllocatedAmount); err != nil {
		return ledger.SavingsGoal{}, err
	}
	return g, a.record(ctx, repo, g, "", amount.Neg(), reason)
}

func (a *Allocator) record(ctx context.Context, repo ledger.GoalStore, g ledger.SavingsGoal, wallet ledger.WalletID, delta decimal.Decimal, reason ledger.AllocationReason) error {
	return repo.AppendAllocationEvent(ctx, ledger.AllocationEvent{
		ID:             uuid.NewString(),
		OwnerID:        g.OwnerID,
		GoalID:         g.ID,
		WalletID:       wallet,
		Delta:          delta,
		AllocatedAfter: g.AllocatedAmount,
		Reason:         reason,
		CreatedAt:      a.now().UTC(),
	})
}

// History returns the allocation audit trail of a goal, oldest first.
func (a *Allocator) History(ctx context.Context, owner ledger.OwnerID, goal ledger.GoalID) ([]ledger.AllocationEvent, error) {
	return a.ledger.Repository().ListAllocationEvents(ctx, owner, goal)
}

// =============================================================================
// WITHDRAWAL GUARD (pipeline.WithdrawalGuard)
// =============================================================================

// CheckWithdrawal blocks withdrawals that would spend allocated money.
func (a *Allocator) CheckWithdrawal(ctx context.Context, repo ledger.Repository, owner ledger.OwnerID, amount decimal.Decimal) error {
	pool, err := readPool(ctx, repo, owner)
	if err != nil {
		return err
	}
	if amount.GreaterThan(pool.Total) {
		return &ledger.InsufficientFundsError{Current: pool.Total, Required: amount}
	}
	available := pool.Unallocated()
	if available.IsNegative() {
		available = decimal.Zero
	}
	if amount.GreaterThan(available) {
		breakdown := make([]ledger.GoalAllocation, 0, len(pool.Goals))
		for _, g := range pool.Goals {
			if g.AllocatedAmount.IsPositive() {
				breakdown = append(breakdown, ledger.GoalAllocation{GoalID: g.ID, Name: g.Name, Allocated: g.AllocatedAmount})
			}
		}
		return &ledger.AllocatedMoneyError{
			Requested:    amount,
			Available:    available,
			TotalSavings: pool.Total,
			Breakdown:    breakdown,
		}
	}
	return nil
}

// =============================================================================
// POOL
// =============================================================================

type pool struct {
	Total     decimal.Decimal
	Allocated decimal.Decimal
	Goals     []ledger.SavingsGoal
}

func (p pool) Unallocated() decimal.Decimal {
	return p.Total.Sub(p.Allocated)
}

func readPool(ctx context.Context, repo ledger.Repository, owner ledger.OwnerID) (pool, error) {
	total, err := ledger.NewBalanceCalculator(repo, nil).TotalSavings(ctx, owner)
	if err != nil {
		return pool{}, err
	}
	goals, err := repo.ListGoals(ctx, owner)
	if err != nil {
		return pool{}, err
	}
	allocated := decimal.Zero
	for _, g := range goals {
		allocated = allocated.Add(g.AllocatedAmount)
	}
	return pool{Total: total, Allocated: allocated, Goals: goals}, nil
}
