package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestBalanceCache_ExpiresAfterTTL(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewBalanceCache(5*time.Second, 10)
	c.now = func() time.Time { return now }

	c.Put("o", "w", decimal.NewFromInt(10), c.Generation("o"))
	v, ok := c.Get("o", "w")
	assert.True(t, ok)
	assert.True(t, decimal.NewFromInt(10).Equal(v))

	now = now.Add(5 * time.Second)
	_, ok = c.Get("o", "w")
	assert.False(t, ok)
}

func TestBalanceCache_InvalidateOwnerOnly(t *testing.T) {
	c := NewBalanceCache(time.Minute, 10)
	c.Put("a", "w1", decimal.NewFromInt(1), c.Generation("a"))
	c.Put("a", "w2", decimal.NewFromInt(2), c.Generation("a"))
	c.Put("b", "w1", decimal.NewFromInt(3), c.Generation("b"))

	c.InvalidateOwner("a")

	_, ok := c.Get("a", "w1")
	assert.False(t, ok)
	_, ok = c.Get("a", "w2")
	assert.False(t, ok)
	_, ok = c.Get("b", "w1")
	assert.True(t, ok)
}

func TestBalanceCache_StalePutDropped(t *testing.T) {
	c := NewBalanceCache(time.Minute, 10)

	gen := c.Generation("o")
	c.InvalidateOwner("o") // write lands while the read is in flight
	c.Put("o", "w", decimal.NewFromInt(5), gen)

	_, ok := c.Get("o", "w")
	assert.False(t, ok)
}

func TestBalanceCache_Bounded(t *testing.T) {
	c := NewBalanceCache(time.Minute, 3)
	for _, w := range []WalletID{"w1", "w2", "w3", "w4", "w5"} {
		c.Put("o", w, decimal.NewFromInt(1), c.Generation("o"))
	}
	assert.LessOrEqual(t, c.Len(), 3)
}
