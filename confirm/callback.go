package confirm

import (
	"context"
	"fmt"
	"strings"

	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// TEMPLATES
// =============================================================================

// FormatTemplate renders a proposal as editable text. Sending the edited
// text back through the chat entry point stages it again.
func FormatTemplate(p Proposal) string {
	var b strings.Builder
	line := func(k, v string) {
		if v != "" {
			fmt.Fprintf(&b, "%s: %s\n", k, v)
		}
	}
	line("type", string(p.Action))
	line("amount", p.Amount.String())
	line("description", p.Description)
	line("category", p.Category)
	line("source", p.Source)
	switch p.Action {
	case ActionTransfer:
		line("from", p.WalletName)
		line("to", p.ToWalletName)
		if p.AdminFee.IsPositive() {
			line("admin fee", p.AdminFee.String())
		}
	case ActionSavingsWithdraw:
		line("to", p.WalletName)
	default:
		line("wallet", p.WalletName)
	}
	line("goal", p.GoalName)
	line("asset", p.AssetName)
	if !p.Date.IsZero() {
		line("date", p.Date.Format("2006-01-02"))
	}
	return strings.TrimRight(b.String(), "\n")
}

// Describe is a one-line summary of a proposal for confirmation prompts.
func Describe(p Proposal) string {
	s := fmt.Sprintf("%s %s", p.Action, p.Amount.StringFixed(2))
	if p.Description != "" {
		s += " (" + p.Description + ")"
	}
	switch {
	case p.Action == ActionTransfer:
		s += " from " + p.WalletName + " to " + p.ToWalletName
	case p.WalletName != "":
		s += " via " + p.WalletName
	}
	if p.GoalName != "" {
		s += " for " + p.GoalName
	}
	return s
}

// =============================================================================
// CALLBACKS
// =============================================================================

// CallbackOp is the action a bot button carries.
type CallbackOp string

const (
	OpConfirm    CallbackOp = "confirm"
	OpEdit       CallbackOp = "edit"
	OpCancel     CallbackOp = "cancel"
	OpConfirmAll CallbackOp = "confirm_all"
	OpCancelAll  CallbackOp = "cancel_all"
)

// Callback is a parsed "<op>:<id>" payload.
type Callback struct {
	Op CallbackOp
	ID string // token, or batch id for the *_all ops
}

// ParseCallback parses bot callback data such as "confirm:<token>".
func ParseCallback(data string) (Callback, error) {
	op, id, ok := strings.Cut(strings.TrimSpace(data), ":")
	if !ok || id == "" {
		return Callback{}, &ledger.ValidationError{Field: "data", Message: fmt.Sprintf("malformed callback %q", data)}
	}
	switch CallbackOp(op) {
	case OpConfirm, OpEdit, OpCancel, OpConfirmAll, OpCancelAll:
		return Callback{Op: CallbackOp(op), ID: id}, nil
	}
	return Callback{}, &ledger.ValidationError{Field: "data", Message: fmt.Sprintf("unknown callback action %q", op)}
}

// Reply is what a channel adapter renders after a callback.
type Reply struct {
	Success  bool          `json:"success"`
	Message  string        `json:"message"`
	Template string        `json:"template,omitempty"`
	Result   *Result       `json:"result,omitempty"`
	Batch    *BatchSummary `json:"-"`
}

// HandleCallback parses data and runs the matching transition. Client
// errors become unsuccessful replies; only system failures are returned as
// errors.
func (m *Machine) HandleCallback(ctx context.Context, owner ledger.OwnerID, data string) (Reply, error) {
	cb, err := ParseCallback(data)
	if err != nil {
		return failure(err)
	}

	switch cb.Op {
	case OpConfirm:
		res, err := m.Confirm(ctx, owner, cb.ID)
		if err != nil {
			return failure(err)
		}
		return Reply{Success: true, Message: res.Message, Result: &res}, nil

	case OpEdit:
		tmpl, err := m.Edit(ctx, owner, cb.ID)
		if err != nil {
			return failure(err)
		}
		return Reply{Success: true, Message: "Edit the details and send them again.", Template: tmpl}, nil

	case OpCancel:
		if err := m.Cancel(ctx, owner, cb.ID); err != nil {
			return failure(err)
		}
		return Reply{Success: true, Message: "Cancelled."}, nil

	case OpConfirmAll:
		s, err := m.ConfirmAll(ctx, owner, cb.ID)
		if err != nil {
			return failure(err)
		}
		return Reply{Success: s.Failed == 0, Message: s.Message(), Batch: &s}, nil

	default: // OpCancelAll
		n, err := m.CancelAll(ctx, owner, cb.ID)
		if err != nil {
			return failure(err)
		}
		return Reply{Success: true, Message: fmt.Sprintf("Cancelled %d transactions.", n)}, nil
	}
}

func failure(err error) (Reply, error) {
	if ledger.IsClientError(err) || ledger.IsNotFound(err) {
		return Reply{Success: false, Message: err.Error()}, nil
	}
	return Reply{}, err
}
