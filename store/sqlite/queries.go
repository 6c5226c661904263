package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/ledger"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements ledger.Repository without locking. Store wraps it with
// the mutex; WithTx hands one bound to the open *sql.Tx to the callback.
type queries struct {
	q querier
}

const (
	// timeLayout keeps a fixed width so text ordering matches time ordering.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
	dateLayout = "2006-01-02"
)

const txColumns = `id, owner_id, description, amount, tx_type, category, source,
	wallet_id, goal_id, goal_name, asset_name, transfer_kind, tx_date, created_at`

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (r queries) Append(ctx context.Context, tx ledger.Transaction) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO transactions (`+txColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID,
		tx.OwnerID,
		tx.Description,
		tx.Amount.String(),
		tx.Type,
		tx.Category,
		tx.Source,
		nullString(string(tx.WalletID)),
		nullString(string(tx.GoalID)),
		tx.GoalName,
		tx.AssetName,
		tx.TransferKind,
		tx.Date.UTC().Format(dateLayout),
		tx.CreatedAt.UTC().Format(timeLayout),
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
		`SELECT `+txColumns+` FROM transactions WHERE owner_id = ? AND id = ?`, owner, id)
	if err != nil {
		return ledger.Transaction{}, err
	}
	if len(txs) == 0 {
		return ledger.Transaction{}, &ledger.NotFoundError{Kind: "transaction", ID: string(id)}
	}
	return txs[0], nil
}

func (r queries) ListByOwner(ctx context.Context, owner ledger.OwnerID, limit, offset int) ([]ledger.Transaction, error) {
	if limit <= 0 {
		limit = -1 // no limit
	}
	return r.queryTransactions(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE owner_id = ?
		ORDER BY tx_date DESC, created_at DESC, id DESC
		LIMIT ? OFFSET ?`, owner, limit, offset)
}

func (r queries) ListByWallet(ctx context.Context, owner ledger.OwnerID, wallet ledger.WalletID) ([]ledger.Transaction, error) {
	return r.queryTransactions(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE owner_id = ? AND wallet_id = ?
		ORDER BY tx_date ASC, created_at ASC, id ASC`, owner, wallet)
}

func (r queries) ListByType(ctx context.Context, owner ledger.OwnerID, typ ledger.TxType) ([]ledger.Transaction, error) {
	return r.queryTransactions(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE owner_id = ? AND tx_type = ?
		ORDER BY tx_date ASC, created_at ASC, id ASC`, owner, typ)
}

func (r queries) UpdateTransaction(ctx context.Context, tx ledger.Transaction) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE transactions SET description = ?, amount = ?, category = ?
		WHERE owner_id = ? AND id = ?`,
		tx.Description, tx.Amount.String(), tx.Category, tx.OwnerID, tx.ID)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &ledger.NotFoundError{Kind: "transaction", ID: string(tx.ID)}
	}
	return nil
}

func (r queries) DeleteTransaction(ctx context.Context, owner ledger.OwnerID, id ledger.TransactionID) (bool, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM transactions WHERE owner_id = ? AND id = ?`, owner, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete transaction: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r queries) queryTransactions(ctx context.Context, query string, args ...any) ([]ledger.Transaction, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	transactions := []ledger.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

func scanTransaction(rows *sql.Rows) (ledger.Transaction, error) {
	var (
		tx        ledger.Transaction
		amount    string
		walletID  sql.NullString
		goalID    sql.NullString
		txDate    string
		createdAt string
	)
	err := rows.Scan(
		&tx.ID, &tx.OwnerID, &tx.Description, &amount, &tx.Type, &tx.Category, &tx.Source,
		&walletID, &goalID, &tx.GoalName, &tx.AssetName, &tx.TransferKind, &txDate, &createdAt,
	)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}
	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return tx, fmt.Errorf("transaction %s: bad amount %q: %w", tx.ID, amount, err)
	}
	tx.WalletID = ledger.WalletID(walletID.String)
	tx.GoalID = ledger.GoalID(goalID.String)
	tx.Date, _ = time.Parse(dateLayout, txDate)
	tx.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return tx, nil
}

// =============================================================================
// WALLETS
// =============================================================================

func (r queries) CreateWallet(ctx context.Context, w ledger.Wallet) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO wallets (id, owner_id, name, wallet_type, color, icon, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.OwnerID, w.Name, w.Type, w.Color, w.Icon, w.Active, w.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		if isUniqueConstraintError(err) {
			return &ledger.ValidationError{Field: "name", Message: "a wallet with this name already exists"}
		}
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}

func (r queries) GetWallet(ctx context.Context, owner ledger.OwnerID, id ledger.WalletID) (ledger.Wallet, error) {
	ws, err := r.queryWallets(ctx, `
		SELECT id, owner_id, name, wallet_type, color, icon, active, created_at
		FROM wallets WHERE owner_id = ? AND id = ?`, owner, id)
	if err != nil {
		return ledger.Wallet{}, err
	}
	if len(ws) == 0 {
		return ledger.Wallet{}, &ledger.NotFoundError{Kind: "wallet", ID: string(id)}
	}
	return ws[0], nil
}

func (r queries) SetWalletActive(ctx context.Context, owner ledger.OwnerID, id ledger.WalletID, active bool) error {
	res, err := r.q.ExecContext(ctx, `UPDATE wallets SET active = ? WHERE owner_id = ? AND id = ?`, active, owner, id)
	if err != nil {
		return fmt.Errorf("failed to update wallet: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update wallet: %w", err)
	}
	if n == 0 {
		return &ledger.NotFoundError{Kind: "wallet", ID: string(id)}
	}
	return nil
}

func (r queries) ListWallets(ctx context.Context, owner ledger.OwnerID) ([]ledger.Wallet, error) {
	return r.queryWallets(ctx, `
		SELECT id, owner_id, name, wallet_type, color, icon, active, created_at
		FROM wallets WHERE owner_id = ? ORDER BY created_at ASC, name ASC`, owner)
}

func (r queries) queryWallets(ctx context.Context, query string, args ...any) ([]ledger.Wallet, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query wallets: %w", err)
	}
	defer rows.Close()

	wallets := []ledger.Wallet{}
	for rows.Next() {
		var (
			w         ledger.Wallet
			createdAt string
		)
		if err := rows.Scan(&w.ID, &w.OwnerID, &w.Name, &w.Type, &w.Color, &w.Icon, &w.Active, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan wallet: %w", err)
		}
		w.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// =============================================================================
// SAVINGS GOALS
// =============================================================================

const goalColumns = `id, owner_id, name, target_amount, allocated_amount, target_date, created_at`

func (r queries) CreateGoal(ctx context.Context, g ledger.SavingsGoal) error {
	var targetDate sql.NullString
	if g.TargetDate != nil {
		targetDate = nullString(g.TargetDate.UTC().Format(dateLayout))
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO savings_goals (`+goalColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.OwnerID, g.Name, g.TargetAmount.String(), g.AllocatedAmount.String(),
		targetDate, g.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to create goal: %w", err)
	}
	return nil
}

func (r queries) GetGoal(ctx context.Context, owner ledger.OwnerID, id ledger.GoalID) (ledger.SavingsGoal, error) {
	gs, err := r.queryGoals(ctx, `SELECT `+goalColumns+` FROM savings_goals WHERE owner_id = ? AND id = ?`, owner, id)
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
		WHERE owner_id = ? ORDER BY created_at ASC, name ASC`, owner)
}

func (r queries) DeleteGoal(ctx context.Context, owner ledger.OwnerID, id ledger.GoalID) (bool, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM savings_goals WHERE owner_id = ? AND id = ?`, owner, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete goal: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r queries) SetGoalAllocation(ctx context.Context, owner ledger.OwnerID, id ledger.GoalID, allocated decimal.Decimal) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE savings_goals SET allocated_amount = ? WHERE owner_id = ? AND id = ?`,
		allocated.String(), owner, id)
	if err != nil {
		return fmt.Errorf("failed to set allocation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &ledger.NotFoundError{Kind: "goal", ID: string(id)}
	}
	return nil
}

func (r queries) queryGoals(ctx context.Context, query string, args ...any) ([]ledger.SavingsGoal, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query goals: %w", err)
	}
	defer rows.Close()

	goals := []ledger.SavingsGoal{}
	for rows.Next() {
		var (
			g                 ledger.SavingsGoal
			target, allocated string
			targetDate        sql.NullString
			createdAt         string
		)
		err := rows.Scan(&g.ID, &g.OwnerID, &g.Name, &target, &allocated, &targetDate, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}
		if g.TargetAmount, err = decimal.NewFromString(target); err != nil {
			return nil, fmt.Errorf("goal %s: bad target amount %q: %w", g.ID, target, err)
		}
		if g.AllocatedAmount, err = decimal.NewFromString(allocated); err != nil {
			return nil, fmt.Errorf("goal %s: bad allocated amount %q: %w", g.ID, allocated, err)
		}
		if targetDate.Valid {
			if d, err := time.Parse(dateLayout, targetDate.String); err == nil {
				g.TargetDate = &d
			}
		}
		g.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

func (r queries) AppendAllocationEvent(ctx context.Context, ev ledger.AllocationEvent) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO allocation_events
		(id, owner_id, goal_id, wallet_id, delta, allocated_after, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.OwnerID, ev.GoalID, nullString(string(ev.WalletID)), ev.Delta.String(),
		ev.AllocatedAfter.String(), ev.Reason, ev.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to append allocation event: %w", err)
	}
	return nil
}

func (r queries) ListAllocationEvents(ctx context.Context, owner ledger.OwnerID, goal ledger.GoalID) ([]ledger.AllocationEvent, error) {
	query := `SELECT id, owner_id, goal_id, wallet_id, delta, allocated_after, reason, created_at
		FROM allocation_events WHERE owner_id = ?`
	args := []any{owner}
	if goal != "" {
		query += ` AND goal_id = ?`
		args = append(args, goal)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocation events: %w", err)
	}
	defer rows.Close()

	events := []ledger.AllocationEvent{}
	for rows.Next() {
		var (
			ev                    ledger.AllocationEvent
			walletID              sql.NullString
			delta, after, created string
		)
		err := rows.Scan(&ev.ID, &ev.OwnerID, &ev.GoalID, &walletID, &delta, &after, &ev.Reason, &created)
		if err != nil {
			return nil, fmt.Errorf("failed to scan allocation event: %w", err)
		}
		ev.WalletID = ledger.WalletID(walletID.String)
		if ev.Delta, err = decimal.NewFromString(delta); err != nil {
			return nil, fmt.Errorf("allocation event %s: bad delta %q: %w", ev.ID, delta, err)
		}
		if ev.AllocatedAfter, err = decimal.NewFromString(after); err != nil {
			return nil, fmt.Errorf("allocation event %s: bad allocated_after %q: %w", ev.ID, after, err)
		}
		ev.CreatedAt, _ = time.Parse(timeLayout, created)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
