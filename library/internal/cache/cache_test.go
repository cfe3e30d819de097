package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/Astemirdum/library-borrowing/library/internal/cache"
	"github.com/Astemirdum/library-borrowing/library/internal/model"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRedisCache(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	c := cache.NewRedisCache(rdb, time.Minute, zap.NewNop())

	_, ok := c.Books(ctx)
	require.False(t, ok)

	book := model.Book{ID: 1, Title: "Sample title", Author: "Sample author", Cover: model.CoverHard, Inventory: 5, DailyFee: decimal.RequireFromString("1.25")}
	gen := c.Generation(ctx)
	c.SetBooks(ctx, gen, []model.Book{book})
	c.SetBook(ctx, gen, book)

	books, ok := c.Books(ctx)
	require.True(t, ok)
	require.Len(t, books, 1)
	require.True(t, book.DailyFee.Equal(books[0].DailyFee))

	got, ok := c.Book(ctx, 1)
	require.True(t, ok)
	require.Equal(t, book.Title, got.Title)
	require.Equal(t, 5, got.Inventory)

	c.Invalidate(ctx, 1)
	_, ok = c.Books(ctx)
	require.False(t, ok)
	_, ok = c.Book(ctx, 1)
	require.False(t, ok)

	mr.FastForward(2 * time.Minute)
	c.SetBook(ctx, c.Generation(ctx), book)
	mr.FastForward(2 * time.Minute)
	_, ok = c.Book(ctx, 1)
	require.False(t, ok)
}

func TestRedisCache_StaleWriteSkipped(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	c := cache.NewRedisCache(rdb, time.Minute, zap.NewNop())
	stale := model.Book{ID: 1, Title: "Sample title", Author: "Sample author", Cover: model.CoverHard, Inventory: 5}

	// a borrow commits and invalidates after the read, before the write
	gen := c.Generation(ctx)
	c.Invalidate(ctx, 1)
	c.SetBooks(ctx, gen, []model.Book{stale})
	c.SetBook(ctx, gen, stale)

	_, ok := c.Books(ctx)
	require.False(t, ok)
	_, ok = c.Book(ctx, 1)
	require.False(t, ok)

	fresh := stale
	fresh.Inventory = 4
	c.SetBook(ctx, c.Generation(ctx), fresh)
	got, ok := c.Book(ctx, 1)
	require.True(t, ok)
	require.Equal(t, 4, got.Inventory)
}

func TestNopCache(t *testing.T) {
	t.Parallel()
	c := cache.NewNop()
	c.SetBook(context.Background(), c.Generation(context.Background()), model.Book{ID: 1})
	_, ok := c.Book(context.Background(), 1)
	require.False(t, ok)
}
