package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/ledger"
)

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// queries implements ledger.Repository over whatever q is bound to.
type queries struct {
	q querier
}

const txColumns = `id, owner_id, description, amount::text, tx_type, category, source,
	wallet_id, goal_id, goal_name, asset_name, transfer_kind, tx_date, created_at`

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (r queries) Append(ctx context.Context, tx ledger.Transaction) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO transactions (id, owner_id, description, amount, tx_type, category, source,
			wallet_id, goal_id, goal_name, asset_name, transfer_kind, tx_date, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		string(tx.ID),
		string(tx.OwnerID),
		tx.Description,
		tx.Amount.String(),
		string(tx.Type),
		tx.Category,
		tx.Source,
		nullable(string(tx.WalletID)),
		nullable(string(tx.GoalID)),
		tx.GoalName,
		tx.AssetName,
		string(tx.TransferKind),
		tx.Date.UTC(),
		tx.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

func (r queries) AppendBatch(ctx context.Context, txs []ledger.Transaction) error {
	for _, tx := range txs {
		if err := r.Append(ctx, tx); err != nil {
			return err
		}
	}
	return nil
}

func (r queries) GetTransaction(ctx context.Context, owner ledger.OwnerID, id ledger.TransactionID) (ledger.Transaction, error) {
	txs, err := r.queryTransactions(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE owner_id = $1 AND id = $2`, string(owner), string(id))
	if err != nil {
		return ledger.Transaction{}, err
	}
	if len(txs) == 0 {
		return ledger.Transaction{}, &ledger.NotFoundError{Kind: "transaction", ID: string(id)}
	}
	return txs[0], nil
}

func (r queries) ListByOwner(ctx context.Context, owner ledger.OwnerID, limit, offset int) ([]ledger.Transaction, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	return r.queryTransactions(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE owner_id = $1
		ORDER BY tx_date DESC, created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, string(owner), lim, offset)
}

func (r queries) ListByWallet(ctx context.Context, owner ledger.OwnerID, wallet ledger.WalletID) ([]ledger.Transaction, error) {
	return r.queryTransactions(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE owner_id = $1 AND wallet_id = $2
		ORDER BY tx_date, created_at, id`, string(owner), string(wallet))
}

func (r queries) ListByType(ctx context.Context, owner ledger.OwnerID, typ ledger.TxType) ([]ledger.Transaction, error) {
	return r.queryTransactions(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE owner_id = $1 AND tx_type = $2
		ORDER BY tx_date, created_at, id`, string(owner), string(typ))
}

func (r queries) UpdateTransaction(ctx context.Context, tx ledger.Transaction) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE transactions SET description = $1, amount = $2::numeric, category = $3
		WHERE owner_id = $4 AND id = $5`,
		tx.Description, tx.Amount.String(), tx.Category, string(tx.OwnerID), string(tx.ID))
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ledger.NotFoundError{Kind: "transaction", ID: string(tx.ID)}
	}
	return nil
}

func (r queries) DeleteTransaction(ctx context.Context, owner ledger.OwnerID, id ledger.TransactionID) (bool, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM transactions WHERE owner_id = $1 AND id = $2`, string(owner), string(id))
	if err != nil {
		return false, fmt.Errorf("failed to delete transaction: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r queries) queryTransactions(ctx context.Context, query string, args ...any) ([]ledger.Transaction, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	transactions := []ledger.Transaction{}
	for rows.Next() {
		var (
			tx               ledger.Transaction
			id, owner        string
			amount, typ      string
			walletID, goalID *string
			kind             string
		)
		err := rows.Scan(
			&id, &owner, &tx.Description, &amount, &typ, &tx.Category, &tx.Source,
			&walletID, &goalID, &tx.GoalName, &tx.AssetName, &kind, &tx.Date, &tx.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.ID = ledger.TransactionID(id)
		tx.OwnerID = ledger.OwnerID(owner)
		if tx.Amount, err = numeric("amount", amount); err != nil {
			return nil, fmt.Errorf("transaction %s: %w", id, err)
		}
		tx.Type = ledger.TxType(typ)
		tx.TransferKind = ledger.TransferKind(kind)
		tx.WalletID = ledger.WalletID(deref(walletID))
		tx.GoalID = ledger.GoalID(deref(goalID))
		tx.Date = tx.Date.UTC()
		tx.CreatedAt = tx.CreatedAt.UTC()
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

// =============================================================================
// WALLETS
// =============================================================================

const walletColumns = `id, owner_id, name, wallet_type, color, icon, active, created_at`

func (r queries) CreateWallet(ctx context.Context, w ledger.Wallet) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO wallets (`+walletColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(w.ID), string(w.OwnerID), w.Name, string(w.Type), w.Color, w.Icon, w.Active, w.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return &ledger.ValidationError{Field: "name", Message: "a wallet with this name already exists"}
		}
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}

func (r queries) GetWallet(ctx context.Context, owner ledger.OwnerID, id ledger.WalletID) (ledger.Wallet, error) {
	ws, err := r.queryWallets(ctx, `SELECT `+walletColumns+` FROM wallets WHERE owner_id = $1 AND id = $2`,
		string(owner), string(id))
	if err != nil {
		return ledger.Wallet{}, err
	}
	if len(ws) == 0 {
		return ledger.Wallet{}, &ledger.NotFoundError{Kind: "wallet", ID: string(id)}
	}
	return ws[0], nil
}

func (r queries) SetWalletActive(ctx context.Context, owner ledger.OwnerID, id ledger.WalletID, active bool) error {
	tag, err := r.q.Exec(ctx, `UPDATE wallets SET active = $1 WHERE owner_id = $2 AND id = $3`,
		active, string(owner), string(id))
	if err != nil {
		return fmt.Errorf("failed to update wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ledger.NotFoundError{Kind: "wallet", ID: string(id)}
	}
	return nil
}

func (r queries) ListWallets(ctx context.Context, owner ledger.OwnerID) ([]ledger.Wallet, error) {
	return r.queryWallets(ctx, `SELECT `+walletColumns+` FROM wallets
		WHERE owner_id = $1 ORDER BY created_at, name`, string(owner))
}

func (r queries) queryWallets(ctx context.Context, query string, args ...any) ([]ledger.Wallet, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query wallets: %w", err)
	}
	defer rows.Close()

	wallets := []ledger.Wallet{}
	for rows.Next() {
		var (
			w              ledger.Wallet
			id, owner, typ string
		)
		if err := rows.Scan(&id, &owner, &w.Name, &typ, &w.Color, &w.Icon, &w.Active, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan wallet: %w", err)
		}
		w.ID, w.OwnerID, w.Type = ledger.WalletID(id), ledger.OwnerID(owner), ledger.WalletType(typ)
		w.CreatedAt = w.CreatedAt.UTC()
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// =============================================================================
// SAVINGS GOALS
// =============================================================================

const goalColumns = `id, owner_id, name, target_amount::text, allocated_amount::text, target_date, created_at`

func (r queries) CreateGoal(ctx context.Context, g ledger.SavingsGoal) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO savings_goals (id, owner_id, name, target_amount, allocated_amount, target_date, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7)`,
		string(g.ID), string(g.OwnerID), g.Name, g.TargetAmount.String(), g.AllocatedAmount.String(),
		g.TargetDate, g.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create goal: %w", err)
	}
	return nil
}

func (r queries) GetGoal(ctx context.Context, owner ledger.OwnerID, id ledger.GoalID) (ledger.SavingsGoal, error) {
	gs, err := r.queryGoals(ctx, `SELECT `+goalColumns+` FROM savings_goals WHERE owner_id = $1 AND id = $2`,
		string(owner), string(id))
	if err != nil {
		return ledger.SavingsGoal{}, err
	}
	if len(gs) == 0 {
		return ledger.SavingsGoal{}, &ledger.NotFoundError{Kind: "goal", ID: string(id)}
	}
	return gs[0], nil
}

func (r queries) ListGoals(ctx context.Context, owner ledger.OwnerID) ([]ledger.SavingsGoal, error) {
	return r.queryGoals(ctx, `SELECT `+goalColumns+` FROM savings_goals
		WHERE owner_id = $1 ORDER BY created_at, name`, string(owner))
}

func (r queries) DeleteGoal(ctx context.Context, owner ledger.OwnerID, id ledger.GoalID) (bool, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM savings_goals WHERE owner_id = $1 AND id = $2`, string(owner), string(id))
	if err != nil {
		return false, fmt.Errorf("failed to delete goal: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r queries) SetGoalAllocation(ctx context.Context, owner ledger.OwnerID, id ledger.GoalID, allocated decimal.Decimal) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE savings_goals SET allocated_amount = $1::numeric WHERE owner_id = $2 AND id = $3`,
		allocated.String(), string(owner), string(id))
	if err != nil {
		return fmt.Errorf("failed to set allocation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ledger.NotFoundError{Kind: "goal", ID: string(id)}
	}
	return nil
}

func (r queries) queryGoals(ctx context.Context, query string, args ...any) ([]ledger.SavingsGoal, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query goals: %w", err)
	}
	defer rows.Close()

	goals := []ledger.SavingsGoal{}
	for rows.Next() {
		var (
			g                 ledger.SavingsGoal
			id, owner         string
			target, allocated string
			targetDate        *time.Time
		)
		if err := rows.Scan(&id, &owner, &g.Name, &target, &allocated, &targetDate, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}
		g.ID, g.OwnerID = ledger.GoalID(id), ledger.OwnerID(owner)
		var err error
		if g.TargetAmount, err = numeric("target_amount", target); err != nil {
			return nil, fmt.Errorf("goal %s: %w", id, err)
		}
		if g.AllocatedAmount, err = numeric("allocated_amount", allocated); err != nil {
			return nil, fmt.Errorf("goal %s: %w", id, err)
		}
		if targetDate != nil {
			d := targetDate.UTC()
			g.TargetDate = &d
		}
		g.CreatedAt = g.CreatedAt.UTC()
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

func (r queries) AppendAllocationEvent(ctx context.Context, ev ledger.AllocationEvent) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO allocation_events
		(id, owner_id, goal_id, wallet_id, delta, allocated_after, reason, created_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8)`,
		ev.ID, string(ev.OwnerID), string(ev.GoalID), nullable(string(ev.WalletID)),
		ev.Delta.String(), ev.AllocatedAfter.String(), string(ev.Reason), ev.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to append allocation event: %w", err)
	}
	return nil
}

func (r queries) ListAllocationEvents(ctx context.Context, owner ledger.OwnerID, goal ledger.GoalID) ([]ledger.AllocationEvent, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, owner_id, goal_id, wallet_id, delta::text, allocated_after::text, reason, created_at
		FROM allocation_events
		WHERE owner_id = $1 AND ($2 = '' OR goal_id = $2)
		ORDER BY created_at`, string(owner), string(goal))
	if err != nil {
		return nil, fmt.Errorf("failed to query allocation events: %w", err)
	}
	defer rows.Close()

	events := []ledger.AllocationEvent{}
	for rows.Next() {
		var (
			ev                      ledger.AllocationEvent
			ownerID, goalID, reason string
			walletID                *string
			delta, after            string
		)
		if err := rows.Scan(&ev.ID, &ownerID, &goalID, &walletID, &delta, &after, &reason, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan allocation event: %w", err)
		}
		ev.OwnerID, ev.GoalID = ledger.OwnerID(ownerID), ledger.GoalID(goalID)
		ev.WalletID = ledger.WalletID(deref(walletID))
		var err error
		if ev.Delta, err = numeric("delta", delta); err != nil {
			return nil, fmt.Errorf("allocation event %s: %w", ev.ID, err)
		}
		if ev.AllocatedAfter, err = numeric("allocated_after", after); err != nil {
			return nil, fmt.Errorf("allocation event %s: %w", ev.ID, err)
		}
		ev.Reason = ledger.AllocationReason(reason)
		ev.CreatedAt = ev.CreatedAt.UTC()
		events = append(events, ev)
	}
	return events, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
