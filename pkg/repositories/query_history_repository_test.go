package repositories

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/sensorql/pkg/apperrors"
	"github.com/ekaya-inc/sensorql/pkg/database"
	"github.com/ekaya-inc/sensorql/pkg/models"
)

func newHistoryRepo(t *testing.T) QueryHistoryRepository {
	t.Helper()
	ctx := context.Background()
	db, err := database.OpenSQLite(ctx, filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.RunHistoryMigrations(db, zap.NewNop()))
	return NewQueryHistoryRepository(db)
}

func TestQueryHistoryRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := newHistoryRepo(t)

	created := time.Date(2024, 3, 1, 12, 30, 0, 123, time.UTC)
	entry := &models.QueryHistoryEntry{
		Question:  "how many critical alerts yesterday",
		Target:    "AlertLog",
		Operation: "COUNT",
		Source:    models.SourceRules,
		SQL:       `SELECT COUNT(*) AS "count" FROM "AlertLog"`,
		Success:   true,
		RowCount:  1,
		ElapsedMs: 4,
		CreatedAt: created,
	}
	require.NoError(t, repo.Create(ctx, entry))
	require.NotEqual(t, uuid.Nil, entry.ID)

	got, err := repo.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.Question, got.Question)
	assert.Equal(t, "AlertLog", got.Target)
	assert.Equal(t, models.SourceRules, got.Source)
	assert.True(t, got.Success)
	assert.Equal(t, int64(4), got.ElapsedMs)
	assert.True(t, created.Equal(got.CreatedAt))
	assert.Empty(t, got.ErrorKind)

	_, err = repo.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestQueryHistoryRepository_ListFilters(t *testing.T) {
	ctx := context.Background()
	repo := newHistoryRepo(t)
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, e := range []models.QueryHistoryEntry{
		{Question: "show readings", Target: "RepData", Success: true},
		{Question: "purple elephants", Success: false, ErrorKind: string(apperrors.KindAmbiguousIntent)},
		{Question: "show alerts", Target: "AlertLog", Success: true},
		{Question: "alerts by location", Target: "AlertLog", Success: false, ErrorKind: string(apperrors.KindBackend)},
	} {
		e.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, repo.Create(ctx, &e))
	}

	all, total, err := repo.List(ctx, models.QueryHistoryFilters{})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	require.Len(t, all, 4)
	assert.Equal(t, "alerts by location", all[0].Question, "newest first")

	alerts, total, err := repo.List(ctx, models.QueryHistoryFilters{Target: "alertlog"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, alerts, 2)

	failed, _, err := repo.List(ctx, models.QueryHistoryFilters{OnlyFailed: true})
	require.NoError(t, err)
	require.Len(t, failed, 2)
	assert.Equal(t, string(apperrors.KindBackend), failed[0].ErrorKind)

	succeeded, total, err := repo.List(ctx, models.QueryHistoryFilters{OnlySucceeded: true})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	for _, e := range succeeded {
		assert.True(t, e.Success, e.Question)
	}

	since := base.Add(2 * time.Hour)
	recent, total, err := repo.List(ctx, models.QueryHistoryFilters{Since: &since, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, recent, 1)

	deleted, err := repo.DeleteOlderThan(ctx, since)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
}

func TestQueryHistoryRepository_Stats(t *testing.T) {
	ctx := context.Background()
	repo := newHistoryRepo(t)
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	empty, err := repo.Stats(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.Zero(t, empty.SuccessRate)
	assert.Empty(t, empty.ByTarget)
	assert.Empty(t, empty.ByErrorKind)

	for i, e := range []models.QueryHistoryEntry{
		{Question: "show readings", Target: "RepData", Success: true, ElapsedMs: 10},
		{Question: "purple elephants", Success: false, ErrorKind: string(apperrors.KindAmbiguousIntent), ElapsedMs: 2},
		{Question: "show alerts", Target: "AlertLog", Success: true, ElapsedMs: 20},
		{Question: "alerts by location", Target: "AlertLog", Success: false, ErrorKind: string(apperrors.KindBackend), ElapsedMs: 40},
		{Question: "count alerts", Target: "AlertLog", Success: true, ElapsedMs: 8},
	} {
		e.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, repo.Create(ctx, &e))
	}

	stats, err := repo.Stats(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 3, stats.Succeeded)
	assert.Equal(t, 2, stats.Failed)
	assert.InDelta(t, 0.6, stats.SuccessRate, 1e-9)
	assert.InDelta(t, 16.0, stats.AvgElapsedMs, 1e-9)
	assert.Equal(t, []models.TargetStats{
		{Target: "AlertLog", Total: 3, Succeeded: 2},
		{Target: "", Total: 1, Succeeded: 0},
		{Target: "RepData", Total: 1, Succeeded: 1},
	}, stats.ByTarget)
	assert.Equal(t, map[string]int{
		string(apperrors.KindAmbiguousIntent): 1,
		string(apperrors.KindBackend):         1,
	}, stats.ByErrorKind)

	since := base.Add(3 * time.Hour)
	recent, err := repo.Stats(ctx, &since)
	require.NoError(t, err)
	assert.Equal(t, 2, recent.Total)
	assert.Equal(t, 1, recent.Succeeded)
	assert.InDelta(t, 0.5, recent.SuccessRate, 1e-9)
	assert.Equal(t, []models.TargetStats{{Target: "AlertLog", Total: 2, Succeeded: 1}}, recent.ByTarget)
	assert.Equal(t, map[string]int{string(apperrors.KindBackend): 1}, recent.ByErrorKind)
}
