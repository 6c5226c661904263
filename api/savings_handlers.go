package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/pipeline"
	"github.com/warp/ledger-engine/savings"
)

// =============================================================================
// SAVINGS MOVEMENTS
// =============================================================================

// DepositToSavings moves money from a wallet into savings.
func (h *Handler) DepositToSavings(w http.ResponseWriter, r *http.Request) {
	req, ok := h.savingsRequest(w, r)
	if !ok {
		return
	}
	tx, err := h.Pipeline.DepositToSavings(r.Context(), req)
	if err != nil {
		fail(w, r, "Failed to deposit to savings", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// WithdrawFromSavings moves unallocated savings back into a wallet.
func (h *Handler) WithdrawFromSavings(w http.ResponseWriter, r *http.Request) {
	req, ok := h.savingsRequest(w, r)
	if !ok {
		return
	}
	res, err := h.Pipeline.WithdrawFromSavings(r.Context(), req)
	if err != nil {
		fail(w, r, "Failed to withdraw from savings", err)
		return
	}
	writeJSON(w, http.StatusCreated, WithdrawDTO{
		Savings:  toTransactionDTO(res.Savings),
		Transfer: toTransactionDTO(res.Transfer),
	})
}

// savingsRequest decodes the shared body of deposits and withdrawals and
// writes the error itself when it fails.
func (h *Handler) savingsRequest(w http.ResponseWriter, r *http.Request) (pipeline.SavingsRequest, bool) {
	ctx := r.Context()
	owner := ownerParam(r)

	var body SavingsRequest
	if err := decode(r, &body); err != nil {
		fail(w, r, "Invalid request body", err)
		return pipeline.SavingsRequest{}, false
	}
	date, err := parseDate("date", body.Date)
	if err != nil {
		fail(w, r, "Invalid date", err)
		return pipeline.SavingsRequest{}, false
	}
	wallet, err := h.walletRef(ctx, owner, body.WalletID, body.Wallet)
	if err != nil {
		fail(w, r, "Wallet not found", err)
		return pipeline.SavingsRequest{}, false
	}
	return pipeline.SavingsRequest{
		OwnerID:     owner,
		WalletID:    wallet,
		GoalID:      ledger.GoalID(body.GoalID),
		Amount:      body.Amount,
		Description: body.Description,
		Date:        date,
	}, true
}

// GetSavingsSummary reports totals and per-goal progress.
func (h *Handler) GetSavingsSummary(w http.ResponseWriter, r *http.Request) {
	s, err := h.Savings.Summary(r.Context(), ownerParam(r))
	if err != nil {
		fail(w, r, "Failed to summarize savings", err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(s))
}

// GetSavingsHealth runs the read-only allocation health check.
func (h *Handler) GetSavingsHealth(w http.ResponseWriter, r *http.Request) {
	warnings, err := h.Savings.HealthCheck(r.Context(), ownerParam(r))
	if err != nil {
		fail(w, r, "Failed to check savings", err)
		return
	}
	dtos := make([]WarningDTO, 0, len(warnings))
	for _, wn := range warnings {
		dtos = append(dtos, WarningDTO{Code: wn.Code, GoalID: string(wn.GoalID), Message: wn.Message})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// GOALS
// =============================================================================

func (h *Handler) ListGoals(w http.ResponseWriter, r *http.Request) {
	goals, err := h.Savings.ListGoals(r.Context(), ownerParam(r))
	if err != nil {
		fail(w, r, "Failed to list goals", err)
		return
	}
	dtos := make([]GoalDTO, 0, len(goals))
	for _, g := range goals {
		dtos = append(dtos, toGoalDTO(g))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateGoal(w http.ResponseWriter, r *http.Request) {
	var req CreateGoalRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "Invalid request body", err)
		return
	}
	date, err := parseDate("target_date", req.TargetDate)
	if err != nil {
		fail(w, r, "Invalid date", err)
		return
	}

	goalReq := savings.CreateGoalRequest{
		OwnerID:      ownerParam(r),
		Name:         req.Name,
		TargetAmount: req.TargetAmount,
	}
	if !date.IsZero() {
		goalReq.TargetDate = &date
	}
	g, err := h.Savings.CreateGoal(r.Context(), goalReq)
	if err != nil {
		fail(w, r, "Failed to create goal", err)
		return
	}
	writeJSON(w, http.StatusCreated, toGoalDTO(g))
}

func (h *Handler) DeleteGoal(w http.ResponseWriter, r *http.Request) {
	if err := h.Savings.DeleteGoal(r.Context(), ownerParam(r), goalParam(r)); err != nil {
		fail(w, r, "Failed to delete goal", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AllocateGoal earmarks unallocated savings for a goal.
func (h *Handler) AllocateGoal(w http.ResponseWriter, r *http.Request) {
	var req AllocationRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "Invalid request body", err)
		return
	}
	g, err := h.Savings.Allocate(r.Context(), ownerParam(r), goalParam(r), ledger.WalletID(req.WalletID), req.Amount)
	if err != nil {
		fail(w, r, "Failed to allocate", err)
		return
	}
	writeJSON(w, http.StatusOK, toGoalDTO(g))
}

// DeallocateGoal returns part of a goal's allocation to the pool.
func (h *Handler) DeallocateGoal(w http.ResponseWriter, r *http.Request) {
	var req AllocationRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "Invalid request body", err)
		return
	}
	g, err := h.Savings.Deallocate(r.Context(), ownerParam(r), goalParam(r), req.Amount)
	if err != nil {
		fail(w, r, "Failed to deallocate", err)
		return
	}
	writeJSON(w, http.StatusOK, toGoalDTO(g))
}

// SetGoalAllocation makes a goal's allocation exactly the given amount.
func (h *Handler) SetGoalAllocation(w http.ResponseWriter, r *http.Request) {
	var req AllocationRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "Invalid request body", err)
		return
	}
	g, err := h.Savings.SetAllocation(r.Context(), ownerParam(r), goalParam(r), req.Amount)
	if err != nil {
		fail(w, r, "Failed to set allocation", err)
		return
	}
	writeJSON(w, http.StatusOK, toGoalDTO(g))
}

// GetGoalHistory lists the allocation audit trail of one goal.
func (h *Handler) GetGoalHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := ownerParam(r)
	goal := goalParam(r)

	if _, err := h.Savings.GetGoal(ctx, owner, goal); err != nil {
		fail(w, r, "Goal not found", err)
		return
	}
	events, err := h.Savings.History(ctx, owner, goal)
	if err != nil {
		fail(w, r, "Failed to load history", err)
		return
	}
	dtos := make([]AllocationEventDTO, 0, len(events))
	for _, ev := range events {
		dtos = append(dtos, AllocationEventDTO{
			ID:             ev.ID,
			WalletID:       string(ev.WalletID),
			Delta:          ev.Delta,
			AllocatedAfter: ev.AllocatedAfter,
			Reason:         string(ev.Reason),
			CreatedAt:      ev.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

func goalParam(r *http.Request) ledger.GoalID {
	return ledger.GoalID(chi.URLParam(r, "goal"))
}
