// Package testhelpers provides seeded IoT databases for tests.
package testhelpers

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/sensorql/pkg/adapters/datasource/sqlite"
	"github.com/ekaya-inc/sensorql/pkg/database"
	"github.com/ekaya-inc/sensorql/pkg/seed"
)

// FixtureEnd is where the small fixture's timeline ends: Thursday 2024-03-14 noon UTC.
var FixtureEnd = time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC)

// SmallDataset is quick to load and still covers every table and enum value.
// Readings are 28.8 minutes apart and alerts 6 hours apart over the ten days
// before FixtureEnd.
func SmallDataset() seed.Options {
	return seed.Options{
		Readings:  500,
		Logs:      40,
		Alerts:    40,
		End:       FixtureEnd,
		Window:    10 * 24 * time.Hour,
		Seed:      7,
		BatchSize: 100,
	}
}

// IoTDB is a seeded SQLite IoT database on disk.
type IoTDB struct {
	Path   string
	Counts *seed.Counts
}

// NewSQLiteIoTDB creates a temporary SQLite file with the IoT schema and the
// given dataset. The file is removed when the test ends.
func NewSQLiteIoTDB(t *testing.T, opts seed.Options) *IoTDB {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "iot.db")

	exec, err := sqlite.NewQueryExecutor(ctx, &sqlite.Config{Path: path, BusyTimeoutMs: sqlite.DefaultBusyTimeoutMs()})
	require.NoError(t, err)
	defer exec.Close()

	require.NoError(t, database.RunIoTMigrations(exec.DB(), "sqlite", zap.NewNop()))
	counts, err := seed.Load(ctx, exec, opts, zap.NewNop())
	require.NoError(t, err)

	return &IoTDB{Path: path, Counts: counts}
}

// Executor opens a read-only executor on the database, closed when the test ends.
func (db *IoTDB) Executor(t *testing.T) *sqlite.QueryExecutor {
	t.Helper()
	exec, err := sqlite.NewQueryExecutor(context.Background(), &sqlite.Config{
		Path:          db.Path,
		ReadOnly:      true,
		BusyTimeoutMs: sqlite.DefaultBusyTimeoutMs(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = exec.Close() })
	return exec
}
