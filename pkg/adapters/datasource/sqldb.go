package datasource

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLDB implements the query half of QueryExecutor over database/sql for
// drivers that do not understand $N placeholders.
type SQLDB struct {
	db *sql.DB
	// rewrite turns $N placeholders into the driver's syntax.
	rewrite func(query string) string
	// bind converts parameter values for the driver.
	bind func(params []any) []any
	// typeName renames driver column types; nil keeps them.
	typeName func(driverType string) string
}

// SQLDBOption customizes an SQLDB.
type SQLDBOption func(*SQLDB)

// WithBinder converts parameter values before they reach the driver.
func WithBinder(bind func(params []any) []any) SQLDBOption {
	return func(s *SQLDB) { s.bind = bind }
}

// WithTypeNames renames the driver's column type names in results.
func WithTypeNames(typeName func(driverType string) string) SQLDBOption {
	return func(s *SQLDB) { s.typeName = typeName }
}

// NewSQLDB wraps db. rewrite is applied to every statement.
func NewSQLDB(db *sql.DB, rewrite func(query string) string, opts ...SQLDBOption) *SQLDB {
	s := &SQLDB{
		db:      db,
		rewrite: rewrite,
		bind:    func(params []any) []any { return params },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the wrapped handle.
func (s *SQLDB) DB() *sql.DB {
	return s.db
}

// Probe pings the server, then runs probe and scans its single value into dst.
func (s *SQLDB) Probe(ctx context.Context, probe string, dst any) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, probe).Scan(dst); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}
	return nil
}

// Query runs a parameterized SELECT and reads at most MaxQueryLimit rows.
func (s *SQLDB) Query(ctx context.Context, sqlQuery string, params []any) (*QueryExecutionResult, error) {
	rows, err := s.db.QueryContext(ctx, s.rewrite(sqlQuery), s.bind(params)...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	result, err := ScanRows(rows, MaxQueryLimit)
	if err != nil {
		return nil, err
	}
	if s.typeName != nil {
		for i := range result.Columns {
			result.Columns[i].Type = s.typeName(result.Columns[i].Type)
		}
	}
	return result, nil
}

// ExecuteWithParams runs a parameterized DDL/DML statement.
func (s *SQLDB) ExecuteWithParams(ctx context.Context, sqlStatement string, params []any) (*ExecuteResult, error) {
	res, err := s.db.ExecContext(ctx, s.rewrite(sqlStatement), s.bind(params)...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute statement: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return &ExecuteResult{RowsAffected: affected}, nil
}

// Close releases the handle.
func (s *SQLDB) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
