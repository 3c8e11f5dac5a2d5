package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lojapos/backend/internal/checkout"
	"lojapos/backend/internal/domain"
	"lojapos/backend/internal/store"
)

func TestMemoryCartStoreRoundTripIsolatesCopies(t *testing.T) {
	ctx := context.Background()
	carts := NewMemoryCartStore(time.Hour)

	session := checkout.NewSession("cart-1", "seller", time.Now().UTC())
	session.AddLine(domain.Product{ID: "p1", Name: "Saia", PriceCents: 5000, Stock: 3})
	require.NoError(t, carts.Save(ctx, session))

	session.AddLine(domain.Product{ID: "p1", Name: "Saia", PriceCents: 5000, Stock: 3})

	stored, ok, err := carts.Get(ctx, "cart-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, stored.Lines, 1)
	assert.Equal(t, 1, stored.Lines[0].Quantity)
	assert.Equal(t, int64(5000), stored.Subtotal())
}

func TestMemoryCartStoreExpires(t *testing.T) {
	ctx := context.Background()
	carts := NewMemoryCartStore(time.Minute)
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	carts.now = func() time.Time { return now }

	require.NoError(t, carts.Save(ctx, checkout.NewSession("cart-1", "seller", now)))

	now = now.Add(2 * time.Minute)
	_, ok, err := carts.Get(ctx, "cart-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCartStoreDelete(t *testing.T) {
	ctx := context.Background()
	carts := NewMemoryCartStore(0)

	require.NoError(t, carts.Save(ctx, checkout.NewSession("cart-1", "seller", time.Now())))
	require.NoError(t, carts.Delete(ctx, "cart-1"))

	_, ok, err := carts.Get(ctx, "cart-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCartStoreLockIsExclusive(t *testing.T) {
	ctx := context.Background()
	carts := NewMemoryCartStore(time.Hour)

	unlock, err := carts.Lock(ctx, "cart-1")
	require.NoError(t, err)

	_, err = carts.Lock(ctx, "cart-1")
	require.ErrorIs(t, err, ErrCartLocked)
	require.ErrorIs(t, err, store.ErrConflict)

	other, err := carts.Lock(ctx, "cart-2")
	require.NoError(t, err)
	other()

	unlock()
	unlock()
	again, err := carts.Lock(ctx, "cart-1")
	require.NoError(t, err)
	again()
}

func TestNoopClosureCacheAlwaysMisses(t *testing.T) {
	ctx := context.Background()
	var c ClosureCache = NoopClosureCache{}

	require.NoError(t, c.Set(ctx, "2025-03-10", []domain.DailyClosure{{ID: "c1"}}, time.Minute))
	_, ok, err := c.Get(ctx, "2025-03-10")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, c.Invalidate(ctx, "2025-03-10"))
}

var (
	_ CartStore    = (*MemoryCartStore)(nil)
	_ CartStore    = (*RedisCartStore)(nil)
	_ ClosureCache = (*RedisClosureCache)(nil)
)
