package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/warp/ledger-engine/confirm"
	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// PENDING STORE (confirm.PendingStore interface)
// =============================================================================

// Pending returns a PendingStore view over the same database.
func (s *Store) Pending() *PendingStore {
	return &PendingStore{s: s}
}

// PendingStore persists staged proposals so confirmations survive restarts.
type PendingStore struct {
	s *Store
}

func (p *PendingStore) SavePending(ctx context.Context, pt confirm.Pending) error {
	proposalJSON, err := json.Marshal(pt.Proposal)
	if err != nil {
		return fmt.Errorf("failed to encode proposal: %w", err)
	}

	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	_, err = p.s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO pending_transactions
		(token, owner_id, channel_id, batch_id, proposal_json, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pt.Token, pt.OwnerID, pt.ChannelID, pt.BatchID, string(proposalJSON),
		pt.CreatedAt.UTC().Format(timeLayout), pt.ExpiresAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to save pending transaction: %w", err)
	}
	return nil
}

func (p *PendingStore) GetPending(ctx context.Context, token string, now time.Time) (confirm.Pending, bool, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()

	var (
		pt                   confirm.Pending
		owner, proposalJSON  string
		createdAt, expiresAt string
	)
	err := p.s.db.QueryRowContext(ctx, `
		SELECT token, owner_id, channel_id, batch_id, proposal_json, created_at, expires_at
		FROM pending_transactions WHERE token = ? AND expires_at > ?`,
		token, now.UTC().Format(timeLayout),
	).Scan(&pt.Token, &owner, &pt.ChannelID, &pt.BatchID, &proposalJSON, &createdAt, &expiresAt)
	if isNoRows(err) {
		return confirm.Pending{}, false, nil
	}
	if err != nil {
		return confirm.Pending{}, false, fmt.Errorf("failed to load pending transaction: %w", err)
	}
	if err := json.Unmarshal([]byte(proposalJSON), &pt.Proposal); err != nil {
		return confirm.Pending{}, false, fmt.Errorf("failed to decode proposal %s: %w", token, err)
	}
	pt.OwnerID = ledger.OwnerID(owner)
	pt.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	pt.ExpiresAt, _ = time.Parse(timeLayout, expiresAt)
	return pt, true, nil
}

func (p *PendingStore) DeletePending(ctx context.Context, token string) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	_, err := p.s.db.ExecContext(ctx, `DELETE FROM pending_transactions WHERE token = ?`, token)
	return err
}

func (p *PendingStore) SaveBatch(ctx context.Context, b confirm.Batch) error {
	tokensJSON, err := json.Marshal(b.Tokens)
	if err != nil {
		return err
	}

	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	_, err = p.s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO pending_batches
		(id, owner_id, channel_id, tokens_json, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, b.OwnerID, b.ChannelID, string(tokensJSON),
		b.CreatedAt.UTC().Format(timeLayout), b.ExpiresAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to save batch: %w", err)
	}
	return nil
}

func (p *PendingStore) GetBatch(ctx context.Context, id string, now time.Time) (confirm.Batch, bool, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()

	var (
		b                    confirm.Batch
		owner, tokensJSON    string
		createdAt, expiresAt string
	)
	err := p.s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, channel_id, tokens_json, created_at, expires_at
		FROM pending_batches WHERE id = ? AND expires_at > ?`,
		id, now.UTC().Format(timeLayout),
	).Scan(&b.ID, &owner, &b.ChannelID, &tokensJSON, &createdAt, &expiresAt)
	if isNoRows(err) {
		return confirm.Batch{}, false, nil
	}
	if err != nil {
		return confirm.Batch{}, false, fmt.Errorf("failed to load batch: %w", err)
	}
	if err := json.Unmarshal([]byte(tokensJSON), &b.Tokens); err != nil {
		return confirm.Batch{}, false, fmt.Errorf("failed to decode batch %s: %w", id, err)
	}
	b.OwnerID = ledger.OwnerID(owner)
	b.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	b.ExpiresAt, _ = time.Parse(timeLayout, expiresAt)
	return b, true, nil
}

func (p *PendingStore) DeleteBatch(ctx context.Context, id string) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	_, err := p.s.db.ExecContext(ctx, `DELETE FROM pending_batches WHERE id = ?`, id)
	return err
}

func (p *PendingStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	cutoff := now.UTC().Format(timeLayout)
	total := 0
	for _, table := range []string{"pending_transactions", "pending_batches"} {
		res, err := p.s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE expires_at <= ?", cutoff)
		if err != nil {
			return total, fmt.Errorf("failed to purge %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += int(n)
	}
	return total, nil
}
