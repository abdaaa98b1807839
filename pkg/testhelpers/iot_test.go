package testhelpers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSQLiteIoTDB(t *testing.T) {
	db := NewSQLiteIoTDB(t, SmallDataset())
	exec := db.Executor(t)
	ctx := context.Background()

	for table, want := range map[string]int{
		"LocRef":    5,
		"DevMap":    10,
		"ThreshSet": 9,
		"RepData":   db.Counts.Readings,
		"RepItem":   db.Counts.Logs,
		"AlertLog":  db.Counts.Alerts,
	} {
		res, err := exec.Query(ctx, `SELECT COUNT(*) AS n FROM "`+table+`"`, nil)
		require.NoError(t, err, table)
		assert.EqualValues(t, want, res.Rows[0]["n"], table)
	}

	res, err := exec.Query(ctx, `SELECT MIN("timestamp") AS first, MAX("timestamp") AS last FROM "RepData"`, nil)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-04 12:00:00", res.Rows[0]["first"])
	assert.Less(t, res.Rows[0]["last"], "2024-03-14 12:00:00")
}

func TestNewSQLiteIoTDB_Deterministic(t *testing.T) {
	a := NewSQLiteIoTDB(t, SmallDataset())
	b := NewSQLiteIoTDB(t, SmallDataset())
	ctx := context.Background()

	q := `SELECT "value" FROM "RepData" ORDER BY "id" LIMIT 20`
	ra, err := a.Executor(t).Query(ctx, q, nil)
	require.NoError(t, err)
	rb, err := b.Executor(t).Query(ctx, q, nil)
	require.NoError(t, err)
	assert.Equal(t, ra.Rows, rb.Rows)
}
