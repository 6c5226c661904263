package savings

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/ledger"
)

// healthTolerance is how far a goal's tagged savings may sit below its
// allocation before the health check reports it.
var healthTolerance = decimal.RequireFromString("0.01")

// GoalStatus is one goal in a Summary.
type GoalStatus struct {
	Goal          ledger.SavingsGoal
	CurrentAmount decimal.Decimal
	Progress      decimal.Decimal // allocated / target, 0..1
}

// Summary describes the savings pool of one owner.
type Summary struct {
	TotalSavings   decimal.Decimal
	TotalAllocated decimal.Decimal
	Unallocated    decimal.Decimal
	Goals          []GoalStatus
}

func (a *Allocator) Summary(ctx context.Context, owner ledger.OwnerID) (Summary, error) {
	repo := a.ledger.Repository()
	p, err := readPool(ctx, repo, owner)
	if err != nil {
		return Summary{}, err
	}
	current, err := a.ledger.Balances.GoalAmounts(ctx, owner)
	if err != nil {
		return Summary{}, err
	}

	s := Summary{
		TotalSavings:   p.Total,
		TotalAllocated: p.Allocated,
		Unallocated:    p.Unallocated(),
		Goals:          make([]GoalStatus, 0, len(p.Goals)),
	}
	for _, g := range p.Goals {
		progress := decimal.Zero
		if g.TargetAmount.IsPositive() {
			progress = decimal.Min(g.AllocatedAmount.Div(g.TargetAmount), decimal.NewFromInt(1))
		}
		s.Goals = append(s.Goals, GoalStatus{
			Goal:          g,
			CurrentAmount: current[g.ID],
			Progress:      progress.Round(4),
		})
	}
	return s, nil
}

// Warning is one finding of the health check.
type Warning struct {
	Code    string // "goal_underfunded", "goal_funded_untagged", "over_allocated"
	GoalID  ledger.GoalID
	Message string
}

// HealthCheck compares allocations with the ledger and reports mismatches.
// It never changes data.
//
// A goal's current amount only counts savings rows tagged with it, so money
// deposited untagged and then allocated shows a gap that is not a problem.
// Such gaps are covered from the untagged pool, goal by goal, and reported
// as goal_funded_untagged; only what the pool cannot cover is
// goal_underfunded.
func (a *Allocator) HealthCheck(ctx context.Context, owner ledger.OwnerID) ([]Warning, error) {
	s, err := a.Summary(ctx, owner)
	if err != nil {
		return nil, err
	}

	untagged := s.TotalSavings
	for _, gs := range s.Goals {
		untagged = untagged.Sub(gs.CurrentAmount)
	}
	if untagged.IsNegative() {
		untagged = decimal.Zero
	}

	warnings := []Warning{}
	for _, gs := range s.Goals {
		allocated := gs.Goal.AllocatedAmount
		if !allocated.IsPositive() {
			continue
		}
		floor := allocated.Sub(allocated.Mul(healthTolerance))
		if !gs.CurrentAmount.LessThan(floor) {
			continue
		}
		gap := allocated.Sub(gs.CurrentAmount)
		if gap.LessThanOrEqual(untagged) {
			untagged = untagged.Sub(gap)
			warnings = append(warnings, Warning{
				Code:   "goal_funded_untagged",
				GoalID: gs.Goal.ID,
				Message: fmt.Sprintf("%s has %s allocated; %s of it comes from savings not tagged to the goal",
					gs.Goal.Name, allocated.StringFixed(2), gap.StringFixed(2)),
			})
			continue
		}
		warnings = append(warnings, Warning{
			Code:   "goal_underfunded",
			GoalID: gs.Goal.ID,
			Message: fmt.Sprintf("%s has %s allocated but only %s saved toward it",
				gs.Goal.Name, allocated.StringFixed(2), gs.CurrentAmount.StringFixed(2)),
		})
	}
	if s.TotalAllocated.GreaterThan(s.TotalSavings) {
		warnings = append(warnings, Warning{
			Code: "over_allocated",
			Message: fmt.Sprintf("allocations total %s but savings hold %s",
				s.TotalAllocated.StringFixed(2), s.TotalSavings.StringFixed(2)),
		})
	}
	return warnings, nil
}
