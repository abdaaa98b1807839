package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/sensorql/pkg/models"
)

func rs(n int) *ResultSet {
	return &ResultSet{Columns: []string{"count"}, Rows: []map[string]any{{"count": int64(n)}}, RowCount: 1}
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewMemoryCache(2, time.Minute)
	ctx := context.Background()

	c.Set(ctx, "a", rs(1))
	c.Set(ctx, "b", rs(2))
	_, ok := c.Get(ctx, "a")
	require.True(t, ok)
	c.Set(ctx, "c", rs(3))

	_, ok = c.Get(ctx, "b")
	assert.False(t, ok, "b was least recently used")
	_, ok = c.Get(ctx, "a")
	assert.True(t, ok)
	_, ok = c.Get(ctx, "c")
	assert.True(t, ok)
}

func TestMemoryCache_Expires(t *testing.T) {
	now := time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC)
	c := newMemoryCache(4, time.Minute, func() time.Time { return now })
	ctx := context.Background()

	c.Set(ctx, "k", rs(1))
	now = now.Add(59 * time.Second)
	_, ok := c.Get(ctx, "k")
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Zero(t, c.Len(), "expired entries are dropped on read")
}

func TestMemoryCache_Overwrite(t *testing.T) {
	c := newMemoryCache(4, time.Minute, time.Now)
	ctx := context.Background()

	c.Set(ctx, "k", rs(1))
	c.Set(ctx, "k", rs(2))

	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.EqualValues(t, 2, got.Rows[0]["count"])
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCache_ZeroSizeStoresNothing(t *testing.T) {
	c := newMemoryCache(0, time.Minute, time.Now)
	c.Set(context.Background(), "k", rs(1))
	_, ok := c.Get(context.Background(), "k")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestCacheKey(t *testing.T) {
	day := time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC)
	base := &models.QueryPlan{
		Dialect: "sqlite",
		SQL:     `SELECT * FROM "AlertLog" t WHERE t."timestamp" >= $1 LIMIT $2`,
		Params:  []any{day, 100},
	}
	key := CacheKey(base)

	sameInstant := *base
	sameInstant.Params = []any{day.In(time.FixedZone("CET", 3600)), 100}
	assert.Equal(t, key, CacheKey(&sameInstant), "instants compare in UTC")

	tests := []struct {
		name string
		plan models.QueryPlan
	}{
		{name: "dialect", plan: models.QueryPlan{Dialect: "postgres", SQL: base.SQL, Params: base.Params}},
		{name: "sql", plan: models.QueryPlan{Dialect: base.Dialect, SQL: base.SQL + " ", Params: base.Params}},
		{name: "later day", plan: models.QueryPlan{Dialect: base.Dialect, SQL: base.SQL, Params: []any{day.AddDate(0, 0, 1), 100}}},
		{name: "param type", plan: models.QueryPlan{Dialect: base.Dialect, SQL: base.SQL, Params: []any{day, "100"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, key, CacheKey(&tt.plan))
		})
	}
}
