/*
errors.go - Error types for the ledger engine

PURPOSE:
  All domain errors in one place. Sentinels are matched with errors.Is;
  structured errors carry the numbers a caller needs to render a useful
  message and unwrap to their sentinel.

ERROR CATEGORIES:
  1. Validation   - malformed input, missing wallet reference
  2. Not found    - wallet, goal, transaction, pending token
  3. Funds        - insufficient wallet balance or savings
  4. Allocation   - allocation exceeded, withdrawal touching allocated money
  5. Expiry       - pending confirmation no longer available

SEE ALSO:
  - api/errors.go: HTTP status mapping
*/
package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed or incomplete input.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced record is absent or belongs
	// to another owner.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientFunds is returned when a wallet or savings balance
	// cannot cover an outflow.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAllocationExceeded is returned when an allocation is larger than
	// unallocated savings or the goal's remaining target.
	ErrAllocationExceeded = errors.New("allocation exceeded")

	// ErrAllocatedMoney is returned when a savings withdrawal would reach
	// into money allocated to goals.
	ErrAllocatedMoney = errors.New("withdrawal touches allocated savings")

	// ErrExpired is returned when a pending confirmation is absent or expired.
	ErrExpired = errors.New("pending transaction expired")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes an invalid field. Hint carries guidance for the
// user, such as the list of wallets they can choose from.
type ValidationError struct {
	Field   string
	Message string
	Hint    []string
}

func (e *ValidationError) Error() string {
	if len(e.Hint) > 0 {
		return fmt.Sprintf("%s: %s (options: %s)", e.Field, e.Message, strings.Join(e.Hint, ", "))
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NotFoundError names the missing record.
type NotFoundError struct {
	Kind string // "wallet", "goal", "transaction"
	ID   string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Kind + " not found"
	}
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// InsufficientFundsError reports the balance that could not cover Required.
type InsufficientFundsError struct {
	WalletID WalletID // empty for savings
	Current  decimal.Decimal
	Required decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	where := "savings"
	if e.WalletID != "" {
		where = "wallet " + string(e.WalletID)
	}
	return fmt.Sprintf("insufficient funds in %s: current %s, required %s",
		where, e.Current.StringFixed(2), e.Required.StringFixed(2))
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// AllocationExceededError reports both bounds an allocation is checked against.
type AllocationExceededError struct {
	GoalID            GoalID
	Requested         decimal.Decimal
	Available         decimal.Decimal // min(Unallocated, RemainingToTarget)
	Unallocated       decimal.Decimal
	RemainingToTarget decimal.Decimal
}

func (e *AllocationExceededError) Error() string {
	return fmt.Sprintf("allocation of %s exceeds available %s (unallocated %s, remaining to target %s)",
		e.Requested.StringFixed(2), e.Available.StringFixed(2),
		e.Unallocated.StringFixed(2), e.RemainingToTarget.StringFixed(2))
}

func (e *AllocationExceededError) Unwrap() error {
	return ErrAllocationExceeded
}

// GoalAllocation is one line of an AllocatedMoneyError breakdown.
type GoalAllocation struct {
	GoalID    GoalID
	Name      string
	Allocated decimal.Decimal
}

// AllocatedMoneyError blocks a withdrawal that would spend allocated money.
type AllocatedMoneyError struct {
	Requested    decimal.Decimal
	Available    decimal.Decimal
	TotalSavings decimal.Decimal
	Breakdown    []GoalAllocation
}

func (e *AllocatedMoneyError) Error() string {
	return fmt.Sprintf("withdrawal of %s exceeds unallocated savings %s (total %s, %d goals hold allocations)",
		e.Requested.StringFixed(2), e.Available.StringFixed(2),
		e.TotalSavings.StringFixed(2), len(e.Breakdown))
}

func (e *AllocatedMoneyError) Unwrap() error {
	return ErrAllocatedMoney
}

// ExpiredError names the token or batch that is no longer pending.
type ExpiredError struct {
	Token string
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("pending transaction %s is no longer available", e.Token)
}

func (e *ExpiredError) Unwrap() error {
	return ErrExpired
}

// ClarificationError rejects a classifier proposal that needs the user to
// restate it.
type ClarificationError struct {
	Reason string
}

func (e *ClarificationError) Error() string {
	return "clarification needed: " + e.Reason
}

func (e *ClarificationError) Unwrap() error {
	return ErrValidation
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to the caller's input or
// the owner's current funds rather than a system failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrAllocationExceeded) ||
		errors.Is(err, ErrAllocatedMoney) ||
		errors.Is(err, ErrExpired)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
