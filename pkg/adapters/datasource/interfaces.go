// Package datasource defines the executor contract every query backend
// implements and the registry the backends add themselves to.
package datasource

import "context"

// MaxQueryLimit caps the rows Query reads back. Generated plans carry their
// own LIMIT; this bounds a plan that does not.
const MaxQueryLimit = 1000

// QueryExecutor runs SQL on one backend. Statements use $1, $2, ...
// placeholders whatever the backend; adapters rewrite them for their driver.
// An executor owns its connection pool and must be closed.
type QueryExecutor interface {
	// TestConnection returns nil when the backend answers and the session is
	// in the configured database.
	TestConnection(ctx context.Context) error

	// Query runs one SELECT. Values are normalized with NormalizeValue.
	Query(ctx context.Context, sqlQuery string, params []any) (*QueryExecutionResult, error)

	// ExecuteWithParams runs DDL or DML. Only schema setup and seeding use it.
	ExecuteWithParams(ctx context.Context, sqlStatement string, params []any) (*ExecuteResult, error)

	// QuoteIdentifier quotes a table or column name for the backend's dialect.
	QuoteIdentifier(name string) string

	Close() error
}

// ExecuteResult reports the effect of a DDL/DML statement.
type ExecuteResult struct {
	RowsAffected int64 `json:"rows_affected"`
}

// ColumnInfo names a result column and its upper-case type as the backend reports it.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// QueryExecutionResult is a fully read result set.
type QueryExecutionResult struct {
	Columns  []ColumnInfo     `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
	// Truncated is set when rows beyond MaxQueryLimit were dropped.
	Truncated bool `json:"truncated,omitempty"`
}

// ColumnNames returns the result column names in select-list order.
func (r *QueryExecutionResult) ColumnNames() []string {
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}
