/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate one owner with realistic
	data for demos and manual testing. Each scenario creates wallets and
	goes through the same pipeline, allocator and confirmation machine as
	real traffic, so the seeded rows obey every ledger rule.

AVAILABLE SCENARIOS:

	everyday:      BCA with 1,000,000 salary, cash with a lunch expense
	transfer-fee:  500,000 moved BCA -> GoPay with a 2,000 admin fee
	savings-goal:  3,000,000 in unallocated savings and a Laptop goal
	pending-batch: two staged proposals sharing one batch id

HOW SCENARIOS WORK:
 1. Refuse owners that already have wallets
 2. Create wallets
 3. Record transactions through the pipeline
 4. Optionally create goals or stage proposals

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "transfer-fee", "owner_id": "demo-1"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, owner)
 3. Add case to loadScenario

SEE ALSO:
  - handlers.go: Handler dependencies
  - pipeline/: The write path the loaders use
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/confirm"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/logctx"
	"github.com/warp/ledger-engine/pipeline"
	"github.com/warp/ledger-engine/savings"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "everyday",
		Name:        "Everyday",
		Description: "BCA with a 1,000,000 salary, cash wallet with a lunch expense",
	},
	{
		ID:          "transfer-fee",
		Name:        "Transfer With Fee",
		Description: "500,000 moved from BCA to GoPay with a 2,000 admin fee",
	},
	{
		ID:          "savings-goal",
		Name:        "Savings Goal",
		Description: "3,000,000 unallocated savings and a 10,000,000 Laptop goal",
	},
	{
		ID:          "pending-batch",
		Name:        "Pending Batch",
		Description: "Two proposals staged from one message, waiting for confirmation",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario seeds a predefined scenario for one fresh owner.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "Invalid request body", err)
		return
	}

	result, err := h.loadScenario(r.Context(), req.ScenarioID, ledger.OwnerID(strings.TrimSpace(req.OwnerID)))
	if err != nil {
		fail(w, r, "Failed to load scenario", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) loadScenario(ctx context.Context, id string, owner ledger.OwnerID) (map[string]string, error) {
	if owner == "" {
		return nil, &ledger.ValidationError{Field: "owner_id", Message: "owner is required"}
	}
	existing, err := h.Ledger.ListWallets(ctx, owner)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, &ledger.ValidationError{Field: "owner_id", Message: "owner already has wallets, use a fresh owner id"}
	}

	result := map[string]string{"status": "loaded", "scenario": id, "owner_id": string(owner)}
	switch id {
	case "everyday":
		err = h.loadEverydayScenario(ctx, owner)
	case "transfer-fee":
		err = h.loadTransferFeeScenario(ctx, owner)
	case "savings-goal":
		err = h.loadSavingsGoalScenario(ctx, owner)
	case "pending-batch":
		var batch string
		batch, err = h.loadPendingBatchScenario(ctx, owner)
		result["batch_id"] = batch
	default:
		return nil, &ledger.ValidationError{Field: "scenario_id", Message: fmt.Sprintf("unknown scenario %q", id)}
	}
	if err != nil {
		return nil, fmt.Errorf("loading scenario %s: %w", id, err)
	}

	logctx.From(ctx).InfoContext(ctx, "scenario loaded", "scenario", id, "owner", owner)
	return result, nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadEverydayScenario(ctx context.Context, owner ledger.OwnerID) error {
	w, err := h.seedWallets(ctx, owner, "BCA", "Cash")
	if err != nil {
		return err
	}
	if _, err := h.Pipeline.CreateIncome(ctx, pipeline.IncomeRequest{
		OwnerID: owner, WalletID: w["BCA"], Amount: rupiah(1000000), Source: "Salary", Description: "Monthly salary",
	}); err != nil {
		return err
	}
	if _, err := h.Pipeline.CreateIncome(ctx, pipeline.IncomeRequest{
		OwnerID: owner, WalletID: w["Cash"], Amount: rupiah(300000), Source: "ATM", Description: "Cash withdrawal",
	}); err != nil {
		return err
	}
	_, err = h.Pipeline.CreateExpense(ctx, pipeline.ExpenseRequest{
		OwnerID: owner, WalletID: w["Cash"], Amount: rupiah(45000), Category: "Food", Description: "Lunch",
	})
	return err
}

func (h *Handler) loadTransferFeeScenario(ctx context.Context, owner ledger.OwnerID) error {
	w, err := h.seedWallets(ctx, owner, "BCA", "GoPay")
	if err != nil {
		return err
	}
	if _, err := h.Pipeline.CreateIncome(ctx, pipeline.IncomeRequest{
		OwnerID: owner, WalletID: w["BCA"], Amount: rupiah(1000000), Source: "Salary",
	}); err != nil {
		return err
	}
	res, err := h.Pipeline.Transfer(ctx, pipeline.TransferRequest{
		OwnerID:      owner,
		FromWalletID: w["BCA"],
		ToWalletID:   w["GoPay"],
		Amount:       rupiah(500000),
		AdminFee:     rupiah(2000),
		Description:  "Top up GoPay",
	})
	if err != nil {
		return err
	}
	return res.FeeError
}

func (h *Handler) loadSavingsGoalScenario(ctx context.Context, owner ledger.OwnerID) error {
	w, err := h.seedWallets(ctx, owner, "BCA")
	if err != nil {
		return err
	}
	if _, err := h.Pipeline.CreateIncome(ctx, pipeline.IncomeRequest{
		OwnerID: owner, WalletID: w["BCA"], Amount: rupiah(5000000), Source: "Salary",
	}); err != nil {
		return err
	}
	if _, err := h.Pipeline.DepositToSavings(ctx, pipeline.SavingsRequest{
		OwnerID: owner, WalletID: w["BCA"], Amount: rupiah(3000000), Description: "Monthly savings",
	}); err != nil {
		return err
	}
	target := ledger.Day(time.Now().AddDate(1, 0, 0))
	_, err = h.Savings.CreateGoal(ctx, savings.CreateGoalRequest{
		OwnerID: owner, Name: "Laptop", TargetAmount: rupiah(10000000), TargetDate: &target,
	})
	return err
}

func (h *Handler) loadPendingBatchScenario(ctx context.Context, owner ledger.OwnerID) (string, error) {
	w, err := h.seedWallets(ctx, owner, "BCA")
	if err != nil {
		return "", err
	}
	if _, err := h.Pipeline.CreateIncome(ctx, pipeline.IncomeRequest{
		OwnerID: owner, WalletID: w["BCA"], Amount: rupiah(1000000), Source: "Salary",
	}); err != nil {
		return "", err
	}
	today := ledger.Day(time.Now())
	staged, err := h.Confirm.Stage(ctx, owner, "demo", []confirm.Proposal{
		{
			Action: confirm.ActionExpense, Amount: rupiah(50000), Description: "Lunch", Category: "Food",
			WalletID: w["BCA"], WalletName: "BCA", Date: today, Confidence: 0.92,
		},
		{
			Action: confirm.ActionExpense, Amount: rupiah(25000), Description: "Parking", Category: "Transport",
			WalletID: w["BCA"], WalletName: "BCA", Date: today, Confidence: 0.87,
		},
	})
	if err != nil {
		return "", err
	}
	return staged.BatchID, nil
}

// =============================================================================
// HELPERS
// =============================================================================

var walletTypes = map[string]ledger.WalletType{
	"BCA":   ledger.WalletBankAccount,
	"GoPay": ledger.WalletEWallet,
	"Cash":  ledger.WalletCash,
}

// seedWallets creates the named wallets and returns their ids by name.
func (h *Handler) seedWallets(ctx context.Context, owner ledger.OwnerID, names ...string) (map[string]ledger.WalletID, error) {
	ids := make(map[string]ledger.WalletID, len(names))
	for _, name := range names {
		w, err := h.Ledger.CreateWallet(ctx, ledger.Wallet{OwnerID: owner, Name: name, Type: walletTypes[name], Active: true})
		if err != nil {
			return nil, err
		}
		ids[name] = w.ID
	}
	return ids, nil
}

func rupiah(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}
