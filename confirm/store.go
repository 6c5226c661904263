package confirm

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local PendingStore for tests and single-node dev.
type MemoryStore struct {
	mu      sync.Mutex
	pending map[string]Pending
	batches map[string]Batch
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pending: make(map[string]Pending),
		batches: make(map[string]Batch),
	}
}

func (m *MemoryStore) SavePending(_ context.Context, p Pending) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[p.Token] = p
	return nil
}

func (m *MemoryStore) GetPending(_ context.Context, token string, now time.Time) (Pending, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[token]
	if !ok {
		return Pending{}, false, nil
	}
	if p.Expired(now) {
		delete(m.pending, token)
		return Pending{}, false, nil
	}
	return p, true, nil
}

func (m *MemoryStore) DeletePending(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, token)
	return nil
}

func (m *MemoryStore) SaveBatch(_ context.Context, b Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.Tokens = append([]string(nil), b.Tokens...)
	m.batches[b.ID] = b
	return nil
}

func (m *MemoryStore) GetBatch(_ context.Context, id string, now time.Time) (Batch, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return Batch{}, false, nil
	}
	if b.Expired(now) {
		delete(m.batches, id)
		return Batch{}, false, nil
	}
	b.Tokens = append([]string(nil), b.Tokens...)
	return b, true, nil
}

func (m *MemoryStore) DeleteBatch(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.batches, id)
	return nil
}

func (m *MemoryStore) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, p := range m.pending {
		if p.Expired(now) {
			delete(m.pending, k)
			n++
		}
	}
	for k, b := range m.batches {
		if b.Expired(now) {
			delete(m.batches, k)
			n++
		}
	}
	return n, nil
}
