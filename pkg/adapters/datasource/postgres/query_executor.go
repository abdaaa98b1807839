package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekaya-inc/sensorql/pkg/adapters/datasource"
	"github.com/ekaya-inc/sensorql/pkg/logging"
)

// typeMap names result columns from their type OIDs.
var typeMap = pgtype.NewMap()

// QueryExecutor runs queries over a pgx pool.
type QueryExecutor struct {
	config *Config
	pool   *pgxpool.Pool
}

// NewQueryExecutor creates the pool. Connections are established lazily;
// TestConnection forces the first one.
func NewQueryExecutor(ctx context.Context, cfg *Config) (*QueryExecutor, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config %s: %s",
			logging.SanitizeConnectionString(cfg.ConnectionString()), logging.SanitizeError(err))
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.ReadOnly {
		poolCfg.ConnConfig.RuntimeParams["default_transaction_read_only"] = "on"
	}
	poolCfg.ConnConfig.RuntimeParams["application_name"] = "sensorql"

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %s", logging.SanitizeError(err))
	}
	return &QueryExecutor{config: cfg, pool: pool}, nil
}

// NewQueryExecutorFromPool wraps a pool the caller owns, such as a test container's.
func NewQueryExecutorFromPool(pool *pgxpool.Pool) *QueryExecutor {
	return &QueryExecutor{pool: pool}
}

// TestConnection pings the server and checks the session landed in the
// configured database.
func (e *QueryExecutor) TestConnection(ctx context.Context) error {
	var currentDB string
	if err := e.pool.QueryRow(ctx, "SELECT current_database()").Scan(&currentDB); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}
	if e.config != nil && !strings.EqualFold(currentDB, e.config.Database) {
		return fmt.Errorf("connected to wrong database: expected %q but connected to %q", e.config.Database, currentDB)
	}
	return nil
}

// Query runs a parameterized SELECT. pgx binds $N placeholders natively.
func (e *QueryExecutor) Query(ctx context.Context, sqlQuery string, params []any) (*datasource.QueryExecutionResult, error) {
	rows, err := e.pool.Query(ctx, sqlQuery, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute parameterized query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	result := &datasource.QueryExecutionResult{
		Columns: make([]datasource.ColumnInfo, len(fields)),
		Rows:    make([]map[string]any, 0),
	}
	for i, fd := range fields {
		result.Columns[i] = datasource.ColumnInfo{Name: fd.Name, Type: typeName(fd.DataTypeOID)}
	}

	for rows.Next() {
		if len(result.Rows) >= datasource.MaxQueryLimit {
			result.Truncated = true
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row values: %w", err)
		}
		row := make(map[string]any, len(fields))
		for i, col := range result.Columns {
			row[col.Name] = datasource.NormalizeValue(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	result.RowCount = len(result.Rows)
	return result, nil
}

// ExecuteWithParams runs a parameterized DDL/DML statement.
func (e *QueryExecutor) ExecuteWithParams(ctx context.Context, sqlStatement string, params []any) (*datasource.ExecuteResult, error) {
	tag, err := e.pool.Exec(ctx, sqlStatement, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute statement: %w", err)
	}
	return &datasource.ExecuteResult{RowsAffected: tag.RowsAffected()}, nil
}

// Pool returns the underlying pool for migrations and bulk loading.
func (e *QueryExecutor) Pool() *pgxpool.Pool {
	return e.pool
}

// Close releases the pool.
func (e *QueryExecutor) Close() error {
	if e.pool != nil {
		e.pool.Close()
	}
	return nil
}

// QuoteIdentifier double-quotes name, escaping embedded quotes.
func (e *QueryExecutor) QuoteIdentifier(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// typeName returns the upper-case type name for oid, or "UNKNOWN".
func typeName(oid uint32) string {
	if t, ok := typeMap.TypeForOID(oid); ok {
		return strings.ToUpper(t.Name)
	}
	return "UNKNOWN"
}

var _ datasource.QueryExecutor = (*QueryExecutor)(nil)
