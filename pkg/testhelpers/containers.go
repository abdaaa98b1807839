package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for golang-migrate
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/ekaya-inc/sensorql/pkg/adapters/datasource/postgres"
	"github.com/ekaya-inc/sensorql/pkg/database"
	"github.com/ekaya-inc/sensorql/pkg/seed"
)

const (
	// PostgresImage is the stock image the IoT schema is migrated into.
	PostgresImage = "postgres:16-alpine"
	// RedisImage backs the shared result cache in integration tests.
	RedisImage = "redis:7-alpine"
)

// shared starts a fixture at most once per test binary. Every caller gets the
// same value or the same failure.
type shared[T any] struct {
	once sync.Once
	val  T
	err  error
}

func (s *shared[T]) get(t *testing.T, what string, start func(context.Context) (T, error)) T {
	t.Helper()
	if testing.Short() {
		t.Skipf("%s needs Docker; skipped in short mode", what)
	}
	s.once.Do(func() {
		s.val, s.err = start(context.Background())
	})
	if s.err != nil {
		t.Fatalf("start %s: %v", what, s.err)
	}
	return s.val
}

// startContainer runs image and returns it with the host:port of its first
// exposed port.
func startContainer(ctx context.Context, req testcontainers.ContainerRequest) (testcontainers.Container, string, error) {
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("start %s: %w", req.Image, err)
	}
	host, err := c.Host(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("%s host: %w", req.Image, err)
	}
	port, err := c.MappedPort(ctx, nat.Port(req.ExposedPorts[0]))
	if err != nil {
		return nil, "", fmt.Errorf("%s port: %w", req.Image, err)
	}
	return c, net.JoinHostPort(host, port.Port()), nil
}

// PostgresIoTDB is a PostgreSQL container with the IoT schema migrated and
// SmallDataset loaded.
type PostgresIoTDB struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
	ConnStr   string
	Addr      string
	Counts    *seed.Counts
}

var sharedPostgres shared[*PostgresIoTDB]

// GetPostgresIoTDB returns the PostgreSQL fixture shared by every test in the
// binary. Tests must not write to it.
func GetPostgresIoTDB(t *testing.T) *PostgresIoTDB {
	t.Helper()
	return sharedPostgres.get(t, "postgres", startPostgres)
}

func startPostgres(ctx context.Context) (*PostgresIoTDB, error) {
	c, addr, err := startContainer(ctx, testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "iot",
			"POSTGRES_USER":     "sensorql",
			"POSTGRES_PASSWORD": "test_password",
		},
		// initdb restarts the server once; only the second banner means ready.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(time.Minute),
	})
	if err != nil {
		return nil, err
	}
	connStr := "postgres://sensorql:test_password@" + addr + "/iot?sslmode=disable"

	sqlDB, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("open migration connection: %w", err)
	}
	defer sqlDB.Close()
	if err := database.RunIoTMigrations(sqlDB, "postgres", zap.NewNop()); err != nil {
		return nil, fmt.Errorf("migrate iot schema: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	counts, err := seed.Load(ctx, postgres.NewQueryExecutorFromPool(pool), SmallDataset(), zap.NewNop())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("seed small dataset: %w", err)
	}
	return &PostgresIoTDB{Container: c, Pool: pool, ConnStr: connStr, Addr: addr, Counts: counts}, nil
}

var sharedRedis shared[string]

// GetRedisAddr returns the host:port of the Redis container shared by every
// test in the binary. Tests should use their own key prefix.
func GetRedisAddr(t *testing.T) string {
	t.Helper()
	return sharedRedis.get(t, "redis", func(ctx context.Context) (string, error) {
		_, addr, err := startContainer(ctx, testcontainers.ContainerRequest{
			Image:        RedisImage,
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		})
		return addr, err
	})
}
