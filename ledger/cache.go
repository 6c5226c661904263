package ledger

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// BALANCE CACHE - Short-lived wallet balances keyed by owner and wallet
// =============================================================================

const (
	DefaultCacheTTL        = 5 * time.Second
	DefaultCacheMaxEntries = 10000
)

type cacheKey struct {
	owner  OwnerID
	wallet WalletID
}

type cacheEntry struct {
	value   decimal.Decimal
	expires time.Time
}

// BalanceCache holds derived wallet balances for a few seconds.
// Any write for an owner drops every entry of that owner. Writers bump a
// per-owner generation so a read that raced with a write cannot store a
// stale value.
type BalanceCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[cacheKey]cacheEntry
	generation map[OwnerID]uint64
	now        func() time.Time
}

func NewBalanceCache(ttl time.Duration, maxEntries int) *BalanceCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultCacheMaxEntries
	}
	return &BalanceCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[cacheKey]cacheEntry),
		generation: make(map[OwnerID]uint64),
		now:        time.Now,
	}
}

// Get returns a live entry.
func (c *BalanceCache) Get(owner OwnerID, wallet WalletID) (decimal.Decimal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[cacheKey{owner, wallet}]
	if !ok {
		return decimal.Zero, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, cacheKey{owner, wallet})
		return decimal.Zero, false
	}
	return e.value, true
}

// Generation returns the owner's write generation. Read it before computing
// a balance and hand it back to Put.
func (c *BalanceCache) Generation(owner OwnerID) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation[owner]
}

// Put stores a balance computed at generation gen. It is dropped when a
// write for the owner happened in between.
func (c *BalanceCache) Put(owner OwnerID, wallet WalletID, value decimal.Decimal, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation[owner] != gen {
		return
	}
	if len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}
	c.entries[cacheKey{owner, wallet}] = cacheEntry{value: value, expires: c.now().Add(c.ttl)}
}

// InvalidateOwner drops every entry of the owner.
func (c *BalanceCache) InvalidateOwner(owner OwnerID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation[owner]++
	for k := range c.entries {
		if k.owner == owner {
			delete(c.entries, k)
		}
	}
}

// Len reports the number of stored entries, live or not.
func (c *BalanceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictLocked drops expired entries, then the entry closest to expiry if
// the map is still full.
func (c *BalanceCache) evictLocked() {
	now := c.now()
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
		}
	}
	if len(c.entries) < c.maxEntries {
		return
	}
	var (
		oldest    cacheKey
		oldestExp time.Time
		found     bool
	)
	for k, e := range c.entries {
		if !found || e.expires.Before(oldestExp) {
			oldest, oldestExp, found = k, e.expires, true
		}
	}
	if found {
		delete(c.entries, oldest)
	}
}
