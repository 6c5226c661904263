package api

import (
	"errors"
	"net/http"

	"github.com/warp/ledger-engine/classifier"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/logctx"
)

// =============================================================================
// ERROR MAPPING
// =============================================================================

// statusFor maps a domain error to its HTTP status.
//
//	validation, clarification   400
//	not found                   404
//	expired                     410
//	funds, allocation           409
//	classifier unavailable      502
//	anything else               500
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrExpired):
		return http.StatusGone
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrAllocationExceeded),
		errors.Is(err, ledger.ErrAllocatedMoney):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, classifier.ErrUnavailable), errors.Is(err, classifier.ErrMalformedResult):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// errorCode is the machine-readable tag clients switch on.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return "not_found"
	case errors.Is(err, ledger.ErrExpired):
		return "expired"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ledger.ErrAllocationExceeded):
		return "allocation_exceeded"
	case errors.Is(err, ledger.ErrAllocatedMoney):
		return "allocated_money"
	case errors.Is(err, ledger.ErrValidation):
		return "validation"
	case errors.Is(err, classifier.ErrUnavailable), errors.Is(err, classifier.ErrMalformedResult):
		return "classifier_unavailable"
	}
	return "internal"
}

// errorDetail extracts the numbers behind a structured error.
func errorDetail(err error) any {
	var (
		verr  *ledger.ValidationError
		nf    *ledger.NotFoundError
		funds *ledger.InsufficientFundsError
		alloc *ledger.AllocationExceededError
		held  *ledger.AllocatedMoneyError
	)
	switch {
	case errors.As(err, &funds):
		return FundsDetailDTO{
			WalletID: string(funds.WalletID),
			Current:  funds.Current,
			Required: funds.Required,
		}
	case errors.As(err, &alloc):
		return AllocationDetailDTO{
			GoalID:            string(alloc.GoalID),
			Requested:         alloc.Requested,
			Available:         alloc.Available,
			Unallocated:       alloc.Unallocated,
			RemainingToTarget: alloc.RemainingToTarget,
		}
	case errors.As(err, &held):
		d := AllocatedMoneyDetailDTO{
			Requested:    held.Requested,
			Available:    held.Available,
			TotalSavings: held.TotalSavings,
			Breakdown:    make([]GoalAllocationDTO, 0, len(held.Breakdown)),
		}
		for _, b := range held.Breakdown {
			d.Breakdown = append(d.Breakdown, GoalAllocationDTO{GoalID: string(b.GoalID), Name: b.Name, Allocated: b.Allocated})
		}
		return d
	case errors.As(err, &verr):
		return ValidationDetailDTO{Field: verr.Field, Hint: verr.Hint}
	case errors.As(err, &nf):
		return NotFoundDetailDTO{Kind: nf.Kind, ID: nf.ID}
	}
	return nil
}

// fail writes err with its mapped status. Internal errors are logged and
// reported without their text.
func fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logctx.From(r.Context()).ErrorContext(r.Context(), message, "error", err, "path", r.URL.Path)
		writeError(w, status, message, nil)
		return
	}
	writeJSON(w, status, ErrorResponse{
		Error:   message,
		Details: err.Error(),
		Code:    errorCode(err),
		Detail:  errorDetail(err),
	})
}
