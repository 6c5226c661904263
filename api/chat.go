package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/warp/ledger-engine/classifier"
	"github.com/warp/ledger-engine/confirm"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/logctx"
)

// =============================================================================
// CHAT - classify, resolve, stage
// =============================================================================

// Chat classifies a free-text message and stages whatever transactions it
// proposes. Nothing is written to the ledger here; the reply lists the
// tokens the user confirms, edits or cancels.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := ownerParam(r)

	if h.Classifier == nil {
		writeError(w, http.StatusServiceUnavailable, "Chat is not configured", nil)
		return
	}
	var req ChatRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		fail(w, r, "Invalid request body", &ledger.ValidationError{Field: "text", Message: "message is empty"})
		return
	}

	res, err := h.Classifier.Classify(ctx, owner, req.Text)
	if err != nil {
		fail(w, r, "Failed to classify message", err)
		return
	}
	resp := ChatResponse{Intent: res.Intent, Reply: res.Reply}
	if res.Intent != classifier.IntentTransaction {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	proposals, err := h.Normalizer.Normalize(ctx, owner, res.Transactions)
	if err != nil {
		fail(w, r, "Failed to resolve wallets", err)
		return
	}
	staged, err := h.Confirm.Stage(ctx, owner, req.ChannelID, proposals)
	resp.Rejected = toRejectionDTOs(staged.Rejected)
	if err != nil {
		if errors.Is(err, ledger.ErrValidation) {
			resp.NeedsClarification = true
			resp.Reply = err.Error()
			writeJSON(w, http.StatusOK, resp)
			return
		}
		fail(w, r, "Failed to stage transactions", err)
		return
	}

	resp.BatchID = staged.BatchID
	for _, p := range staged.Pending {
		resp.Pending = append(resp.Pending, PendingDTO{
			Token:     p.Token,
			BatchID:   p.BatchID,
			Summary:   confirm.Describe(p.Proposal),
			Proposal:  p.Proposal,
			ExpiresAt: p.ExpiresAt,
		})
	}
	if resp.Reply == "" {
		resp.Reply = fmt.Sprintf("%d transaction(s) waiting for confirmation.", len(resp.Pending))
	}
	logctx.From(ctx).InfoContext(ctx, "chat message staged",
		"owner", owner, "pending", len(resp.Pending), "rejected", len(resp.Rejected))
	writeJSON(w, http.StatusOK, resp)
}

func toRejectionDTOs(rs []confirm.Rejection) []RejectionDTO {
	if len(rs) == 0 {
		return nil
	}
	out := make([]RejectionDTO, len(rs))
	for i, rj := range rs {
		out[i] = RejectionDTO{Index: rj.Index, Reason: rj.Err.Error()}
	}
	return out
}

// =============================================================================
// PENDING TOKENS
// =============================================================================

// ConfirmPending commits one staged proposal.
func (h *Handler) ConfirmPending(w http.ResponseWriter, r *http.Request) {
	res, err := h.Confirm.Confirm(r.Context(), ownerParam(r), chi.URLParam(r, "token"))
	if err != nil {
		fail(w, r, "Failed to confirm", err)
		return
	}
	writeJSON(w, http.StatusCreated, toResultDTO(res))
}

// EditPending withdraws a proposal and returns it as an editable template.
func (h *Handler) EditPending(w http.ResponseWriter, r *http.Request) {
	tmpl, err := h.Confirm.Edit(r.Context(), ownerParam(r), chi.URLParam(r, "token"))
	if err != nil {
		fail(w, r, "Failed to edit", err)
		return
	}
	writeJSON(w, http.StatusOK, EditDTO{Message: "Edit the details and send them again.", Template: tmpl})
}

// CancelPending discards a proposal.
func (h *Handler) CancelPending(w http.ResponseWriter, r *http.Request) {
	if err := h.Confirm.Cancel(r.Context(), ownerParam(r), chi.URLParam(r, "token")); err != nil {
		fail(w, r, "Failed to cancel", err)
		return
	}
	writeJSON(w, http.StatusOK, MessageDTO{Message: "Cancelled."})
}

// ConfirmBatch attempts every token of a batch and reports each outcome.
// Partial success is still 200; the summary says what failed.
func (h *Handler) ConfirmBatch(w http.ResponseWriter, r *http.Request) {
	s, err := h.Confirm.ConfirmAll(r.Context(), ownerParam(r), chi.URLParam(r, "batch"))
	if err != nil {
		fail(w, r, "Failed to confirm batch", err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchSummaryDTO(s))
}

// CancelBatch discards every live token of a batch.
func (h *Handler) CancelBatch(w http.ResponseWriter, r *http.Request) {
	n, err := h.Confirm.CancelAll(r.Context(), ownerParam(r), chi.URLParam(r, "batch"))
	if err != nil {
		fail(w, r, "Failed to cancel batch", err)
		return
	}
	writeJSON(w, http.StatusOK, MessageDTO{Message: fmt.Sprintf("Cancelled %d transactions.", n)})
}

// HandleCallback serves channel button presses such as "confirm:<token>".
// Client mistakes come back as success=false with status 200 so the
// channel can echo the message; only system failures are errors.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	var req CallbackRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "Invalid request body", err)
		return
	}
	reply, err := h.Confirm.HandleCallback(r.Context(), ownerParam(r), req.Data)
	if err != nil {
		fail(w, r, "Failed to handle callback", err)
		return
	}
	writeJSON(w, http.StatusOK, toCallbackResponse(reply))
}
