/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger's domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

AMOUNTS:
  Every amount is a shopspring decimal. Responses carry it as a JSON
  string ("1250000.5"); requests accept either a string or a number.

DATES:
  Logical dates travel as "2006-01-02". Audit timestamps are RFC 3339.

VALIDATION:
  Validation is done by the pipeline and allocator, not in DTOs. DTOs are
  pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - errors.go: Error detail types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/confirm"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/savings"
)

const dateLayout = "2006-01-02"

// =============================================================================
// WALLETS
// =============================================================================

// WalletDTO represents a wallet in API responses.
type WalletDTO struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Color     string          `json:"color,omitempty"`
	Icon      string          `json:"icon,omitempty"`
	Active    bool            `json:"active"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
}

// CreateWalletRequest is the body for creating a wallet.
type CreateWalletRequest struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Color string `json:"color"`
	Icon  string `json:"icon"`
}

// UpdateWalletRequest is the body for PATCH /wallets/{wallet}.
type UpdateWalletRequest struct {
	Active *bool `json:"active"`
}

// BalanceDTO is one derived wallet balance.
type BalanceDTO struct {
	WalletID string          `json:"wallet_id"`
	Balance  decimal.Decimal `json:"balance"`
}

func toWalletDTO(w ledger.Wallet, balance decimal.Decimal) WalletDTO {
	return WalletDTO{
		ID:        string(w.ID),
		Name:      w.Name,
		Type:      string(w.Type),
		Color:     w.Color,
		Icon:      w.Icon,
		Active:    w.Active,
		Balance:   balance,
		CreatedAt: w.CreatedAt,
	}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// TransactionDTO represents a ledger row in API responses.
type TransactionDTO struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description,omitempty"`
	Category     string          `json:"category,omitempty"`
	Source       string          `json:"source,omitempty"`
	WalletID     string          `json:"wallet_id,omitempty"`
	GoalID       string          `json:"goal_id,omitempty"`
	GoalName     string          `json:"goal_name,omitempty"`
	AssetName    string          `json:"asset_name,omitempty"`
	TransferKind string          `json:"transfer_kind,omitempty"`
	Date         string          `json:"date"`
	CreatedAt    time.Time       `json:"created_at"`
}

func toTransactionDTO(tx ledger.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:           string(tx.ID),
		Type:         string(tx.Type),
		Amount:       tx.Amount,
		Description:  tx.Description,
		Category:     tx.Category,
		Source:       tx.Source,
		WalletID:     string(tx.WalletID),
		GoalID:       string(tx.GoalID),
		GoalName:     tx.GoalName,
		AssetName:    tx.AssetName,
		TransferKind: string(tx.TransferKind),
		Date:         tx.Date.Format(dateLayout),
		CreatedAt:    tx.CreatedAt,
	}
}

func toTransactionDTOs(txs []ledger.Transaction) []TransactionDTO {
	out := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		out[i] = toTransactionDTO(tx)
	}
	return out
}

// ExpenseRequest is the body for POST /transactions/expense. Wallet may be
// given by id or by name.
type ExpenseRequest struct {
	WalletID    string          `json:"wallet_id"`
	Wallet      string          `json:"wallet"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Date        string          `json:"date"`
}

// IncomeRequest is the body for POST /transactions/income.
type IncomeRequest struct {
	WalletID    string          `json:"wallet_id"`
	Wallet      string          `json:"wallet"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Source      string          `json:"source"`
	Date        string          `json:"date"`
}

// InvestmentRequest is the body for POST /transactions/investment.
type InvestmentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	AssetName   string          `json:"asset_name"`
	Description string          `json:"description"`
	Date        string          `json:"date"`
}

// UpdateTransactionRequest patches description, amount and category.
// Absent fields are left alone.
type UpdateTransactionRequest struct {
	Description *string          `json:"description"`
	Amount      *decimal.Decimal `json:"amount"`
	Category    *string          `json:"category"`
}

// TransferRequest is the body for POST /transfers.
type TransferRequest struct {
	FromWalletID string          `json:"from_wallet_id"`
	FromWallet   string          `json:"from_wallet"`
	ToWalletID   string          `json:"to_wallet_id"`
	ToWallet     string          `json:"to_wallet"`
	Amount       decimal.Decimal `json:"amount"`
	AdminFee     decimal.Decimal `json:"admin_fee"`
	Description  string          `json:"description"`
	Date         string          `json:"date"`
}

// TransferDTO carries both legs and the optional fee row.
type TransferDTO struct {
	Out     TransactionDTO  `json:"out"`
	In      TransactionDTO  `json:"in"`
	Fee     *TransactionDTO `json:"fee,omitempty"`
	Warning string          `json:"warning,omitempty"`
}

// =============================================================================
// SAVINGS
// =============================================================================

// SavingsRequest is the body for deposits and withdrawals. WalletID is
// the source of a deposit or the destination of a withdrawal.
type SavingsRequest struct {
	WalletID    string          `json:"wallet_id"`
	Wallet      string          `json:"wallet"`
	GoalID      string          `json:"goal_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Date        string          `json:"date"`
}

// WithdrawDTO carries both legs of a savings withdrawal.
type WithdrawDTO struct {
	Savings  TransactionDTO `json:"savings"`
	Transfer TransactionDTO `json:"transfer"`
}

// GoalDTO represents a savings goal.
type GoalDTO struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	TargetAmount    decimal.Decimal `json:"target_amount"`
	AllocatedAmount decimal.Decimal `json:"allocated_amount"`
	TargetDate      string          `json:"target_date,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

func toGoalDTO(g ledger.SavingsGoal) GoalDTO {
	dto := GoalDTO{
		ID:              string(g.ID),
		Name:            g.Name,
		TargetAmount:    g.TargetAmount,
		AllocatedAmount: g.AllocatedAmount,
		CreatedAt:       g.CreatedAt,
	}
	if g.TargetDate != nil {
		dto.TargetDate = g.TargetDate.Format(dateLayout)
	}
	return dto
}

// CreateGoalRequest is the body for POST /goals.
type CreateGoalRequest struct {
	Name         string          `json:"name"`
	TargetAmount decimal.Decimal `json:"target_amount"`
	TargetDate   string          `json:"target_date"`
}

// AllocationRequest is the body for allocate, deallocate and set.
type AllocationRequest struct {
	WalletID string          `json:"wallet_id"`
	Amount   decimal.Decimal `json:"amount"`
}

// AllocationEventDTO is one entry of a goal's allocation history.
type AllocationEventDTO struct {
	ID             string          `json:"id"`
	WalletID       string          `json:"wallet_id,omitempty"`
	Delta          decimal.Decimal `json:"delta"`
	AllocatedAfter decimal.Decimal `json:"allocated_after"`
	Reason         string          `json:"reason"`
	CreatedAt      time.Time       `json:"created_at"`
}

// GoalStatusDTO is one goal inside a savings summary.
type GoalStatusDTO struct {
	GoalDTO
	CurrentAmount decimal.Decimal `json:"current_amount"`
	Progress      decimal.Decimal `json:"progress"`
}

// SavingsSummaryDTO describes the owner's savings pool.
type SavingsSummaryDTO struct {
	TotalSavings   decimal.Decimal `json:"total_savings"`
	TotalAllocated decimal.Decimal `json:"total_allocated"`
	Unallocated    decimal.Decimal `json:"unallocated"`
	Goals          []GoalStatusDTO `json:"goals"`
}

func toSummaryDTO(s savings.Summary) SavingsSummaryDTO {
	dto := SavingsSummaryDTO{
		TotalSavings:   s.TotalSavings,
		TotalAllocated: s.TotalAllocated,
		Unallocated:    s.Unallocated,
		Goals:          make([]GoalStatusDTO, 0, len(s.Goals)),
	}
	for _, g := range s.Goals {
		dto.Goals = append(dto.Goals, GoalStatusDTO{
			GoalDTO:       toGoalDTO(g.Goal),
			CurrentAmount: g.CurrentAmount,
			Progress:      g.Progress,
		})
	}
	return dto
}

// WarningDTO is one health check finding.
type WarningDTO struct {
	Code    string `json:"code"`
	GoalID  string `json:"goal_id,omitempty"`
	Message string `json:"message"`
}

// =============================================================================
// CHAT AND CONFIRMATION
// =============================================================================

// ChatRequest is a free-text message from a channel.
type ChatRequest struct {
	Text      string `json:"text"`
	ChannelID string `json:"channel_id"`
}

// PendingDTO is one staged proposal awaiting confirmation.
type PendingDTO struct {
	Token     string           `json:"token"`
	BatchID   string           `json:"batch_id,omitempty"`
	Summary   string           `json:"summary"`
	Proposal  confirm.Proposal `json:"proposal"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// RejectionDTO is a proposal that was not staged.
type RejectionDTO struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// ChatResponse answers a chat message. NeedsClarification is set when no
// proposal could be staged.
type ChatResponse struct {
	Intent             string         `json:"intent"`
	Reply              string         `json:"reply,omitempty"`
	NeedsClarification bool           `json:"needs_clarification,omitempty"`
	BatchID            string         `json:"batch_id,omitempty"`
	Pending            []PendingDTO   `json:"pending,omitempty"`
	Rejected           []RejectionDTO `json:"rejected,omitempty"`
}

// ResultDTO is the outcome of confirming one token.
type ResultDTO struct {
	Message      string           `json:"message"`
	Transactions []TransactionDTO `json:"transactions"`
	Warning      string           `json:"warning,omitempty"`
}

func toResultDTO(r confirm.Result) ResultDTO {
	return ResultDTO{
		Message:      r.Message,
		Transactions: toTransactionDTOs(r.Transactions),
		Warning:      r.Warning,
	}
}

// BatchItemDTO is one token's outcome inside a batch confirmation.
type BatchItemDTO struct {
	Token   string     `json:"token"`
	Success bool       `json:"success"`
	Result  *ResultDTO `json:"result,omitempty"`
	Error   string     `json:"error,omitempty"`
}

// BatchSummaryDTO reports a confirm-all.
type BatchSummaryDTO struct {
	BatchID   string         `json:"batch_id"`
	Message   string         `json:"message"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Items     []BatchItemDTO `json:"items"`
}

func toBatchSummaryDTO(s confirm.BatchSummary) BatchSummaryDTO {
	dto := BatchSummaryDTO{
		BatchID:   s.BatchID,
		Message:   s.Message(),
		Succeeded: s.Succeeded,
		Failed:    s.Failed,
		Items:     make([]BatchItemDTO, 0, len(s.Items)),
	}
	for _, it := range s.Items {
		item := BatchItemDTO{Token: it.Token, Success: it.Err == nil}
		if it.Err != nil {
			item.Error = it.Err.Error()
		} else {
			res := toResultDTO(it.Result)
			item.Result = &res
		}
		dto.Items = append(dto.Items, item)
	}
	return dto
}

// EditDTO returns the editable template of a withdrawn proposal.
type EditDTO struct {
	Message  string `json:"message"`
	Template string `json:"template"`
}

// MessageDTO is a plain acknowledgement.
type MessageDTO struct {
	Message string `json:"message"`
}

// CallbackRequest carries the opaque data of a channel button press,
// e.g. "confirm:<token>".
type CallbackRequest struct {
	Data string `json:"data"`
}

// CallbackResponse is what the channel adapter renders.
type CallbackResponse struct {
	Success  bool             `json:"success"`
	Message  string           `json:"message"`
	Template string           `json:"template,omitempty"`
	Result   *ResultDTO       `json:"result,omitempty"`
	Batch    *BatchSummaryDTO `json:"batch,omitempty"`
}

func toCallbackResponse(r confirm.Reply) CallbackResponse {
	out := CallbackResponse{Success: r.Success, Message: r.Message, Template: r.Template}
	if r.Result != nil {
		res := toResultDTO(*r.Result)
		out.Result = &res
	}
	if r.Batch != nil {
		b := toBatchSummaryDTO(*r.Batch)
		out.Batch = &b
	}
	return out
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest seeds a scenario for one owner.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
	OwnerID    string `json:"owner_id"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is returned for failed requests. Code and Detail are set for
// domain errors so clients can render them without parsing Details.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Code    string `json:"code,omitempty"`
	Detail  any    `json:"detail,omitempty"`
}

// FundsDetailDTO accompanies insufficient_funds.
type FundsDetailDTO struct {
	WalletID string          `json:"wallet_id,omitempty"`
	Current  decimal.Decimal `json:"current"`
	Required decimal.Decimal `json:"required"`
}

// AllocationDetailDTO accompanies allocation_exceeded.
type AllocationDetailDTO struct {
	GoalID            string          `json:"goal_id"`
	Requested         decimal.Decimal `json:"requested"`
	Available         decimal.Decimal `json:"available"`
	Unallocated       decimal.Decimal `json:"unallocated"`
	RemainingToTarget decimal.Decimal `json:"remaining_to_target"`
}

// GoalAllocationDTO is one line of an allocated_money breakdown.
type GoalAllocationDTO struct {
	GoalID    string          `json:"goal_id"`
	Name      string          `json:"name"`
	Allocated decimal.Decimal `json:"allocated"`
}

// AllocatedMoneyDetailDTO accompanies allocated_money.
type AllocatedMoneyDetailDTO struct {
	Requested    decimal.Decimal     `json:"requested"`
	Available    decimal.Decimal     `json:"available"`
	TotalSavings decimal.Decimal     `json:"total_savings"`
	Breakdown    []GoalAllocationDTO `json:"breakdown"`
}

// ValidationDetailDTO accompanies validation errors.
type ValidationDetailDTO struct {
	Field string   `json:"field"`
	Hint  []string `json:"hint,omitempty"`
}

// NotFoundDetailDTO accompanies not_found.
type NotFoundDetailDTO struct {
	Kind string `json:"kind"`
	ID   string `json:"id,omitempty"`
}
