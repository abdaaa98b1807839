//go:build integration

package testhelpers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresIoTDB_Seeded(t *testing.T) {
	db := GetPostgresIoTDB(t)
	ctx := context.Background()

	var readings, alerts int
	require.NoError(t, db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM "RepData"`).Scan(&readings))
	require.NoError(t, db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM "AlertLog"`).Scan(&alerts))

	assert.Equal(t, db.Counts.Readings, readings)
	assert.Equal(t, db.Counts.Alerts, alerts)
}
