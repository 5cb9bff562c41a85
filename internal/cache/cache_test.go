package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	Score float64 `json:"score"`
	Bias  string  `json:"bias"`
}

func TestMemoryCacheTTL(t *testing.T) {
	now := time.Date(2026, 2, 20, 15, 0, 0, 0, time.UTC)
	c := NewMemoryCache(WithClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", snapshot{Score: 12.5, Bias: "bullish"}, 10*time.Second))

	got, ok := Lookup[snapshot](ctx, c, "k")
	require.True(t, ok)
	assert.Equal(t, "bullish", got.Bias)

	now = now.Add(10 * time.Second)
	_, ok = Lookup[snapshot](ctx, c, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCacheEvictsWhenFull(t *testing.T) {
	now := time.Date(2026, 2, 20, 15, 0, 0, 0, time.UTC)
	c := NewMemoryCache(WithMaxSize(2), WithClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", 1, time.Second))
	require.NoError(t, c.Set(ctx, "b", 2, time.Minute))
	require.NoError(t, c.Set(ctx, "c", 3, time.Minute))

	assert.Equal(t, 2, c.Len())
	var v int
	assert.ErrorIs(t, c.Get(ctx, "a", &v), ErrCacheMiss)
	require.NoError(t, c.Get(ctx, "c", &v))
	assert.Equal(t, 3, v)
}

func TestLookupNilCache(t *testing.T) {
	_, ok := Lookup[int](context.Background(), nil, "k")
	assert.False(t, ok)
	Store(context.Background(), nil, "k", 1, time.Second)
}

func TestRedisCacheGetSet(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedisCache(db, "spx")
	ctx := context.Background()

	mock.ExpectSet("spx:news", `{"score":-20,"bias":"bearish"}`, 300*time.Second).SetVal("OK")
	require.NoError(t, c.Set(ctx, "news", snapshot{Score: -20, Bias: "bearish"}, 300*time.Second))

	mock.ExpectGet("spx:news").SetVal(`{"score":-20,"bias":"bearish"}`)
	var got snapshot
	require.NoError(t, c.Get(ctx, "news", &got))
	assert.Equal(t, -20.0, got.Score)

	mock.ExpectGet("spx:missing").RedisNil()
	assert.ErrorIs(t, c.Get(ctx, "missing", &got), ErrCacheMiss)

	mock.ExpectGet("spx:broken").SetErr(errors.New("connection reset"))
	err := c.Get(ctx, "broken", &got)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)

	assert.NoError(t, mock.ExpectationsWereMet())
}
