/*
handlers.go - HTTP API handlers for the personal ledger

PURPOSE:
  Exposes the ledger, the creation pipeline, the savings allocator and the
  confirmation flow via REST API. Handles HTTP request/response and JSON
  serialization, and delegates everything else to domain packages.

ENDPOINTS (all under /api/owners/{owner}):
  Wallets:
    GET    /wallets                        List wallets with balances
    POST   /wallets                        Create wallet
    PATCH  /wallets/{wallet}               Archive or restore (active flag)
    GET    /wallets/{wallet}/balance       Derived balance
    GET    /wallets/{wallet}/transactions  Rows bound to the wallet

  Transactions:
    GET    /transactions                   Page through rows, newest first
    POST   /transactions/expense           Record an expense
    POST   /transactions/income            Record income
    POST   /transactions/investment        Record an investment
    PATCH  /transactions/{id}              Update description/amount/category
    DELETE /transactions/{id}              Delete one row
    POST   /transfers                      Wallet-to-wallet transfer

  Savings (savings_handlers.go):
    POST   /savings/deposit, /savings/withdraw
    GET    /savings/summary, /savings/health
    GET|POST /goals, DELETE /goals/{goal}, allocation endpoints

  Chat and confirmation (chat.go):
    POST   /chat, /pending/{token}/..., /batches/{batch}/..., /callbacks

ARCHITECTURE:
  Handler struct holds all dependencies. The owner comes from the URL;
  authentication is the deployment's concern.

REQUEST FLOW:
  1. Parse HTTP request
  2. Resolve wallet names to ids where a name was given
  3. Call the pipeline, allocator or confirmation machine
  4. Serialize response
  5. Map errors through errors.go

SEE ALSO:
  - dto.go: Request/response data structures
  - errors.go: Error to status mapping
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/classifier"
	"github.com/warp/ledger-engine/confirm"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/pipeline"
	"github.com/warp/ledger-engine/resolve"
	"github.com/warp/ledger-engine/savings"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger     *ledger.Ledger
	Pipeline   *pipeline.Service
	Savings    *savings.Allocator
	Confirm    *confirm.Machine
	Normalizer *resolve.Normalizer

	// Classifier may be nil, in which case /chat answers 503.
	Classifier classifier.Classifier

	// Ping reports storage health for /healthz. Optional.
	Ping func(ctx context.Context) error
}

// NewHandler wires a handler around one pipeline.
func NewHandler(svc *pipeline.Service, alloc *savings.Allocator, machine *confirm.Machine, cls classifier.Classifier) *Handler {
	l := svc.Ledger()
	return &Handler{
		Ledger:     l,
		Pipeline:   svc,
		Savings:    alloc,
		Confirm:    machine,
		Normalizer: resolve.NewNormalizer(l.Repository()),
		Classifier: cls,
	}
}

// Health reports liveness and storage reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.Ping != nil {
		if err := h.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Storage unreachable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// WALLET HANDLERS
// =============================================================================

// ListWallets returns the owner's wallets with derived balances.
func (h *Handler) ListWallets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := ownerParam(r)

	wallets, err := h.Ledger.ListWallets(ctx, owner)
	if err != nil {
		fail(w, r, "Failed to list wallets", err)
		return
	}
	dtos := make([]WalletDTO, 0, len(wallets))
	for _, wl := range wallets {
		balance, err := h.Ledger.Balances.WalletBalance(ctx, owner, wl.ID)
		if err != nil {
			fail(w, r, "Failed to compute balance", err)
			return
		}
		dtos = append(dtos, toWalletDTO(wl, balance))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateWallet creates a wallet for the owner.
func (h *Handler) CreateWallet(w http.ResponseWriter, r *http.Request) {
	var req CreateWalletRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "Invalid request body", err)
		return
	}

	wl, err := h.Ledger.CreateWallet(r.Context(), ledger.Wallet{
		OwnerID: ownerParam(r),
		Name:    req.Name,
		Type:    ledger.WalletType(req.Type),
		Color:   req.Color,
		Icon:    req.Icon,
		Active:  true,
	})
	if err != nil {
		fail(w, r, "Failed to create wallet", err)
		return
	}
	writeJSON(w, http.StatusCreated, toWalletDTO(wl, decimal.Zero))
}

// UpdateWallet archives or restores a wallet.
func (h *Handler) UpdateWallet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := ownerParam(r)
	id := ledger.WalletID(chi.URLParam(r, "wallet"))

	var req UpdateWalletRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "Invalid request body", err)
		return
	}
	if req.Active == nil {
		fail(w, r, "Nothing to update", &ledger.ValidationError{Field: "active", Message: "active is required"})
		return
	}

	wl, err := h.Ledger.SetWalletActive(ctx, owner, id, *req.Active)
	if err != nil {
		fail(w, r, "Failed to update wallet", err)
		return
	}
	balance, err := h.Ledger.Balances.WalletBalance(ctx, owner, id)
	if err != nil {
		fail(w, r, "Failed to compute balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toWalletDTO(wl, balance))
}

// GetWalletBalance returns one wallet's derived balance.
func (h *Handler) GetWalletBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := ownerParam(r)
	id := ledger.WalletID(chi.URLParam(r, "wallet"))

	if _, err := h.Ledger.GetWallet(ctx, owner, id); err != nil {
		fail(w, r, "Wallet not found", err)
		return
	}
	balance, err := h.Ledger.Balances.WalletBalance(ctx, owner, id)
	if err != nil {
		fail(w, r, "Failed to compute balance", err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{WalletID: string(id), Balance: balance})
}

// GetWalletTransactions returns every row bound to one wallet.
func (h *Handler) GetWalletTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := ownerParam(r)
	id := ledger.WalletID(chi.URLParam(r, "wallet"))

	if _, err := h.Ledger.GetWallet(ctx, owner, id); err != nil {
		fail(w, r, "Wallet not found", err)
		return
	}
	txs, err := h.Ledger.ListByWallet(ctx, owner, id)
	if err != nil {
		fail(w, r, "Failed to list transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// ListTransactions pages through the owner's rows. Query: limit, offset.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", ledger.DefaultListLimit)
	if err != nil {
		fail(w, r, "Invalid query", err)
		return
	}
	offset, err := intQuery(r, "offset", 0)
	if err != nil {
		fail(w, r, "Invalid query", err)
		return
	}

	txs, err := h.Ledger.ListByOwner(r.Context(), ownerParam(r), limit, offset)
	if err != nil {
		fail(w, r, "Failed to list transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// CreateExpense records money leaving a wallet.
func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := ownerParam(r)

	var req ExpenseRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "Invalid request body", err)
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		fail(w, r, "Invalid date", err)
		return
	}
	wallet, err := h.walletRef(ctx, owner, req.WalletID, req.Wallet)
	if err != nil {
		fail(w, r, "Wallet not found", err)
		return
	}

	tx, err := h.Pipeline.CreateExpense(ctx, pipeline.ExpenseRequest{
		OwnerID:     owner,
		WalletID:    wallet,
		Amount:      req.Amount,
		Description: req.Description,
		Category:    req.Category,
		Date:        date,
	})
	if err != nil {
		fail(w, r, "Failed to record expense", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// CreateIncome records money entering a wallet.
func (h *Handler) CreateIncome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := ownerParam(r)

	var req IncomeRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "Invalid request body", err)
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		fail(w, r, "Invalid date", err)
		return
	}
	wallet, err := h.walletRef(ctx, owner, req.WalletID, req.Wallet)
	if err != nil {
		fail(w, r, "Wallet not found", err)
		return
	}

	tx, err := h.Pipeline.CreateIncome(ctx, pipeline.IncomeRequest{
		OwnerID:     owner,
		WalletID:    wallet,
		Amount:      req.Amount,
		Description: req.Description,
		Source:      req.Source,
		Date:        date,
	})
	if err != nil {
		fail(w, r, "Failed to record income", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// CreateInvestment records an investment position. No wallet involved.
func (h *Handler) CreateInvestment(w http.ResponseWriter, r *http.Request) {
	var req InvestmentRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "Invalid request body", err)
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		fail(w, r, "Invalid date", err)
		return
	}

	tx, err := h.Pipeline.RecordInvestment(r.Context(), pipeline.InvestmentRequest{
		OwnerID:     ownerParam(r),
		Amount:      req.Amount,
		AssetName:   req.AssetName,
		Description: req.Description,
		Date:        date,
	})
	if err != nil {
		fail(w, r, "Failed to record investment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// UpdateTransaction patches description, amount or category.
func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req UpdateTransactionRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "Invalid request body", err)
		return
	}

	tx, err := h.Pipeline.UpdateTransaction(r.Context(), ownerParam(r), ledger.TransactionID(chi.URLParam(r, "id")), ledger.TransactionPatch{
		Description: req.Description,
		Amount:      req.Amount,
		Category:    req.Category,
	})
	if err != nil {
		fail(w, r, "Failed to update transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(tx))
}

// DeleteTransaction removes one row. Other legs of a pair stay.
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	err := h.Pipeline.DeleteTransaction(r.Context(), ownerParam(r), ledger.TransactionID(chi.URLParam(r, "id")))
	if err != nil {
		fail(w, r, "Failed to delete transaction", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateTransfer moves money between two wallets, with an optional fee.
func (h *Handler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := ownerParam(r)

	var req TransferRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "Invalid request body", err)
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		fail(w, r, "Invalid date", err)
		return
	}
	from, err := h.walletRef(ctx, owner, req.FromWalletID, req.FromWallet)
	if err != nil {
		fail(w, r, "Wallet not found", err)
		return
	}
	to, err := h.walletRef(ctx, owner, req.ToWalletID, req.ToWallet)
	if err != nil {
		fail(w, r, "Wallet not found", err)
		return
	}

	res, err := h.Pipeline.Transfer(ctx, pipeline.TransferRequest{
		OwnerID:      owner,
		FromWalletID: from,
		ToWalletID:   to,
		Amount:       req.Amount,
		AdminFee:     req.AdminFee,
		Description:  req.Description,
		Date:         date,
	})
	if err != nil {
		fail(w, r, "Failed to transfer", err)
		return
	}

	dto := TransferDTO{Out: toTransactionDTO(res.Out), In: toTransactionDTO(res.In)}
	if res.Fee != nil {
		fee := toTransactionDTO(*res.Fee)
		dto.Fee = &fee
	}
	if res.FeeError != nil {
		dto.Warning = "transfer recorded, but the admin fee was not: " + res.FeeError.Error()
	}
	writeJSON(w, http.StatusCreated, dto)
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func ownerParam(r *http.Request) ledger.OwnerID {
	return ledger.OwnerID(chi.URLParam(r, "owner"))
}

// walletRef returns id when given, otherwise resolves name against the
// owner's wallets. Both empty yields an empty id so the pipeline can ask
// for one with the list of choices.
func (h *Handler) walletRef(ctx context.Context, owner ledger.OwnerID, id, name string) (ledger.WalletID, error) {
	if id != "" || strings.TrimSpace(name) == "" {
		return ledger.WalletID(id), nil
	}
	wallets, err := h.Ledger.ListWallets(ctx, owner)
	if err != nil {
		return "", err
	}
	if wl, ok := resolve.Wallet(name, wallets); ok {
		return wl.ID, nil
	}
	return "", &ledger.NotFoundError{Kind: "wallet", ID: name}
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &ledger.ValidationError{Field: "body", Message: "invalid JSON: " + err.Error()}
	}
	return nil
}

// parseDate reads an optional YYYY-MM-DD value. Empty means today.
func parseDate(field, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, &ledger.ValidationError{Field: field, Message: "expected a date like 2024-03-01"}
	}
	return d, nil
}

func intQuery(r *http.Request, key string, def int) (int, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, &ledger.ValidationError{Field: key, Message: "must be an integer"}
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
