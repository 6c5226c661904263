/*
Package confirm implements the pending-transaction confirmation flow.

PURPOSE:
  Classifier proposals are never committed directly. They are staged under a
  token, shown to the user, and committed only when the user confirms.

STATE MACHINE:

    Proposed --confirm--> Confirmed   (pipeline call succeeded, token gone)
    Proposed --confirm--> Proposed    (pipeline call failed, token kept)
    Proposed --edit-----> Edited      (token gone, template returned)
    Proposed --cancel---> Cancelled   (token gone, nothing written)
    Proposed --ttl------> Expired     (token gone)

  Confirmed, Edited and Cancelled are terminal for the token. An edited
  proposal comes back as a brand new staging with a new token.

BATCHES:
  Several proposals from one message share a batch id. ConfirmAll attempts
  each token independently and reports per-item outcomes; there is no
  all-or-nothing commit.

SEE ALSO:
  - machine.go: Stage, Confirm, ConfirmAll, Edit, Cancel, CancelAll
  - store.go: PendingStore and the in-memory implementation
  - store/sqlite, store/mongo: durable PendingStore implementations
*/
package confirm

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/ledger"
)

// MinConfidence is the classifier confidence below which a proposal is
// sent back for clarification.
const MinConfidence = 0.5

// DefaultTTL is how long a staged proposal stays confirmable.
const DefaultTTL = 15 * time.Minute

// Action selects the pipeline operation a proposal routes to.
type Action string

const (
	ActionExpense         Action = "expense"
	ActionIncome          Action = "income"
	ActionTransfer        Action = "transfer"
	ActionSavingsDeposit  Action = "savings_deposit"
	ActionSavingsWithdraw Action = "savings_withdraw"
	ActionInvestment      Action = "investment"
)

func (a Action) Valid() bool {
	switch a {
	case ActionExpense, ActionIncome, ActionTransfer, ActionSavingsDeposit, ActionSavingsWithdraw, ActionInvestment:
		return true
	}
	return false
}

// Proposal is a normalized classifier output with references resolved to
// ids. Names are kept for display and for regenerating edit templates.
// Problem names a field the classifier sent that could not be read.
type Proposal struct {
	Action       Action          `json:"action"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description,omitempty"`
	Category     string          `json:"category,omitempty"`
	Source       string          `json:"source,omitempty"`
	WalletID     ledger.WalletID `json:"wallet_id,omitempty"`
	WalletName   string          `json:"wallet_name,omitempty"`
	ToWalletID   ledger.WalletID `json:"to_wallet_id,omitempty"`
	ToWalletName string          `json:"to_wallet_name,omitempty"`
	GoalID       ledger.GoalID   `json:"goal_id,omitempty"`
	GoalName     string          `json:"goal_name,omitempty"`
	AssetName    string          `json:"asset_name,omitempty"`
	AdminFee     decimal.Decimal `json:"admin_fee"`
	Date         time.Time       `json:"date"`
	Confidence   float64         `json:"confidence"`
	Problem      string          `json:"problem,omitempty"`
}

// Pending is a staged proposal awaiting a decision.
type Pending struct {
	Token     string         `json:"token"`
	OwnerID   ledger.OwnerID `json:"owner_id"`
	ChannelID string         `json:"channel_id,omitempty"`
	BatchID   string         `json:"batch_id,omitempty"`
	Proposal  Proposal       `json:"proposal"`
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// Expired reports whether the entry can no longer be confirmed at now.
func (p Pending) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// Batch groups tokens staged from one message.
type Batch struct {
	ID        string         `json:"id"`
	OwnerID   ledger.OwnerID `json:"owner_id"`
	ChannelID string         `json:"channel_id,omitempty"`
	Tokens    []string       `json:"tokens"`
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}

func (b Batch) Expired(now time.Time) bool {
	return !now.Before(b.ExpiresAt)
}

// PendingStore keeps staged proposals until they are decided or expire.
// Get methods report ok=false for absent and for expired entries.
type PendingStore interface {
	SavePending(ctx context.Context, p Pending) error
	GetPending(ctx context.Context, token string, now time.Time) (Pending, bool, error)
	DeletePending(ctx context.Context, token string) error

	SaveBatch(ctx context.Context, b Batch) error
	GetBatch(ctx context.Context, id string, now time.Time) (Batch, bool, error)
	DeleteBatch(ctx context.Context, id string) error

	// PurgeExpired removes everything that expired at or before now and
	// reports how many entries were removed.
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}
