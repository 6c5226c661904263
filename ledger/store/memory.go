// Package store provides in-memory Repository implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// state holds the data and unlocked accessors. Memory guards it with a
// mutex; the WithTx view uses it directly while the lock is held.
type state struct {
	transactions map[ledger.TransactionID]ledger.Transaction
	wallets      map[ledger.WalletID]ledger.Wallet
	goals        map[ledger.GoalID]ledger.SavingsGoal
	events       []ledger.AllocationEvent
}

func newState() *state {
	return &state{
		transactions: make(map[ledger.TransactionID]ledger.Transaction),
		wallets:      make(map[ledger.WalletID]ledger.Wallet),
		goals:        make(map[ledger.GoalID]ledger.SavingsGoal),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.transactions {
		c.transactions[k] = v
	}
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	for k, v := range s.goals {
		c.goals[k] = v
	}
	c.events = append([]ledger.AllocationEvent{}, s.events...)
	return c
}

// Memory is a Repository backed by maps.
type Memory struct {
	mu sync.RWMutex
	s  *state
}

func NewMemory() *Memory {
	return &Memory{s: newState()}
}

func (m *Memory) Append(ctx context.Context, tx ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.Append(ctx, tx)
}

// AppendBatch adds multiple transactions atomically.
func (m *Memory) AppendBatch(ctx context.Context, txs []ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.AppendBatch(ctx, txs)
}

func (m *Memory) GetTransaction(ctx context.Context, owner ledger.OwnerID, id ledger.TransactionID) (ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.GetTransaction(ctx, owner, id)
}

func (m *Memory) ListByOwner(ctx context.Context, owner ledger.OwnerID, limit, offset int) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.ListByOwner(ctx, owner, limit, offset)
}

func (m *Memory) ListByWallet(ctx context.Context, owner ledger.OwnerID, wallet ledger.WalletID) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.ListByWallet(ctx, owner, wallet)
}

func (m *Memory) ListByType(ctx context.Context, owner ledger.OwnerID, typ ledger.TxType) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.ListByType(ctx, owner, typ)
}

func (m *Memory) UpdateTransaction(ctx context.Context, tx ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.UpdateTransaction(ctx, tx)
}

func (m *Memory) DeleteTransaction(ctx context.Context, owner ledger.OwnerID, id ledger.TransactionID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.DeleteTransaction(ctx, owner, id)
}

func (m *Memory) CreateWallet(ctx context.Context, w ledger.Wallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.CreateWallet(ctx, w)
}

func (m *Memory) GetWallet(ctx context.Context, owner ledger.OwnerID, id ledger.WalletID) (ledger.Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.GetWallet(ctx, owner, id)
}

func (m *Memory) ListWallets(ctx context.Context, owner ledger.OwnerID) ([]ledger.Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.ListWallets(ctx, owner)
}

func (m *Memory) SetWalletActive(ctx context.Context, owner ledger.OwnerID, id ledger.WalletID, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.SetWalletActive(ctx, owner, id, active)
}

func (m *Memory) CreateGoal(ctx context.Context, g ledger.SavingsGoal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.CreateGoal(ctx, g)
}

func (m *Memory) GetGoal(ctx context.Context, owner ledger.OwnerID, id ledger.GoalID) (ledger.SavingsGoal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.GetGoal(ctx, owner, id)
}

func (m *Memory) ListGoals(ctx context.Context, owner ledger.OwnerID) ([]ledger.SavingsGoal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.ListGoals(ctx, owner)
}

func (m *Memory) DeleteGoal(ctx context.Context, owner ledger.OwnerID, id ledger.GoalID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.DeleteGoal(ctx, owner, id)
}

func (m *Memory) SetGoalAllocation(ctx context.Context, owner ledger.OwnerID, id ledger.GoalID, allocated decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.SetGoalAllocation(ctx, owner, id, allocated)
}

func (m *Memory) AppendAllocationEvent(ctx context.Context, ev ledger.AllocationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.AppendAllocationEvent(ctx, ev)
}

func (m *Memory) ListAllocationEvents(ctx context.Context, owner ledger.OwnerID, goal ledger.GoalID) ([]ledger.AllocationEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.ListAllocationEvents(ctx, owner, goal)
}

// WithTx executes fn within a transaction.
// For the memory store this is a snapshot plus restore on error. The write
// lock is held for the whole scope, so fn must only use the Repository it
// is given.
func (m *Memory) WithTx(ctx context.Context, fn func(ledger.Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.s.clone()
	if err := fn(m.s); err != nil {
		m.s = snapshot
		return err
	}
	return nil
}

// =============================================================================
// UNLOCKED STATE - Implements ledger.Repository
// =============================================================================

func (s *state) Append(_ context.Context, tx ledger.Transaction) error {
	s.transactions[tx.ID] = tx
	return nil
}

func (s *state) AppendBatch(_ context.Context, txs []ledger.Transaction) error {
	for _, tx := range txs {
		s.transactions[tx.ID] = tx
	}
	return nil
}

func (s *state) GetTransaction(_ context.Context, owner ledger.OwnerID, id ledger.TransactionID) (ledger.Transaction, error) {
	tx, ok := s.transactions[id]
	if !ok || tx.OwnerID != owner {
		return ledger.Transaction{}, &ledger.NotFoundError{Kind: "transaction", ID: string(id)}
	}
	return tx, nil
}

func (s *state) ListByOwner(_ context.Context, owner ledger.OwnerID, limit, offset int) ([]ledger.Transaction, error) {
	all := s.filter(func(tx ledger.Transaction) bool { return tx.OwnerID == owner })
	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].Date.Equal(all[j].Date) {
			return all[i].Date.After(all[j].Date)
		}
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	if offset >= len(all) {
		return []ledger.Transaction{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (s *state) ListByWallet(_ context.Context, owner ledger.OwnerID, wallet ledger.WalletID) ([]ledger.Transaction, error) {
	return s.chronological(func(tx ledger.Transaction) bool {
		return tx.OwnerID == owner && tx.WalletID == wallet
	}), nil
}

func (s *state) ListByType(_ context.Context, owner ledger.OwnerID, typ ledger.TxType) ([]ledger.Transaction, error) {
	return s.chronological(func(tx ledger.Transaction) bool {
		return tx.OwnerID == owner && tx.Type == typ
	}), nil
}

func (s *state) UpdateTransaction(_ context.Context, tx ledger.Transaction) error {
	cur, ok := s.transactions[tx.ID]
	if !ok || cur.OwnerID != tx.OwnerID {
		return &ledger.NotFoundError{Kind: "transaction", ID: string(tx.ID)}
	}
	cur.Description = tx.Description
	cur.Amount = tx.Amount
	cur.Category = tx.Category
	s.transactions[tx.ID] = cur
	return nil
}

func (s *state) DeleteTransaction(_ context.Context, owner ledger.OwnerID, id ledger.TransactionID) (bool, error) {
	tx, ok := s.transactions[id]
	if !ok || tx.OwnerID != owner {
		return false, nil
	}
	delete(s.transactions, id)
	return true, nil
}

func (s *state) CreateWallet(_ context.Context, w ledger.Wallet) error {
	s.wallets[w.ID] = w
	return nil
}

func (s *state) GetWallet(_ context.Context, owner ledger.OwnerID, id ledger.WalletID) (ledger.Wallet, error) {
	w, ok := s.wallets[id]
	if !ok || w.OwnerID != owner {
		return ledger.Wallet{}, &ledger.NotFoundError{Kind: "wallet", ID: string(id)}
	}
	return w, nil
}

func (s *state) SetWalletActive(_ context.Context, owner ledger.OwnerID, id ledger.WalletID, active bool) error {
	w, ok := s.wallets[id]
	if !ok || w.OwnerID != owner {
		return &ledger.NotFoundError{Kind: "wallet", ID: string(id)}
	}
	w.Active = active
	s.wallets[id] = w
	return nil
}

func (s *state) ListWallets(_ context.Context, owner ledger.OwnerID) ([]ledger.Wallet, error) {
	out := []ledger.Wallet{}
	for _, w := range s.wallets {
		if w.OwnerID == owner {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *state) CreateGoal(_ context.Context, g ledger.SavingsGoal) error {
	s.goals[g.ID] = g
	return nil
}

func (s *state) GetGoal(_ context.Context, owner ledger.OwnerID, id ledger.GoalID) (ledger.SavingsGoal, error) {
	g, ok := s.goals[id]
	if !ok || g.OwnerID != owner {
		return ledger.SavingsGoal{}, &ledger.NotFoundError{Kind: "goal", ID: string(id)}
	}
	return g, nil
}

func (s *state) ListGoals(_ context.Context, owner ledger.OwnerID) ([]ledger.SavingsGoal, error) {
	out := []ledger.SavingsGoal{}
	for _, g := range s.goals {
		if g.OwnerID == owner {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *state) DeleteGoal(_ context.Context, owner ledger.OwnerID, id ledger.GoalID) (bool, error) {
	g, ok := s.goals[id]
	if !ok || g.OwnerID != owner {
		return false, nil
	}
	delete(s.goals, id)
	return true, nil
}

func (s *state) SetGoalAllocation(_ context.Context, owner ledger.OwnerID, id ledger.GoalID, allocated decimal.Decimal) error {
	g, ok := s.goals[id]
	if !ok || g.OwnerID != owner {
		return &ledger.NotFoundError{Kind: "goal", ID: string(id)}
	}
	g.AllocatedAmount = allocated
	s.goals[id] = g
	return nil
}

func (s *state) AppendAllocationEvent(_ context.Context, ev ledger.AllocationEvent) error {
	s.events = append(s.events, ev)
	return nil
}

func (s *state) ListAllocationEvents(_ context.Context, owner ledger.OwnerID, goal ledger.GoalID) ([]ledger.AllocationEvent, error) {
	out := []ledger.AllocationEvent{}
	for _, ev := range s.events {
		if ev.OwnerID == owner && (goal == "" || ev.GoalID == goal) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *state) filter(keep func(ledger.Transaction) bool) []ledger.Transaction {
	out := []ledger.Transaction{}
	for _, tx := range s.transactions {
		if keep(tx) {
			out = append(out, tx)
		}
	}
	return out
}

// chronological returns matching rows oldest first.
func (s *state) chronological(keep func(ledger.Transaction) bool) []ledger.Transaction {
	out := s.filter(keep)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
