package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ekaya-inc/sensorql/pkg/adapters/datasource"
	sqlguard "github.com/ekaya-inc/sensorql/pkg/sql"
)

// TimeLayout is how timestamps are stored, and therefore compared, in SQLite.
const TimeLayout = "2006-01-02 15:04:05"

// QueryExecutor runs queries against a SQLite file.
type QueryExecutor struct {
	*datasource.SQLDB
	config *Config
}

// NewQueryExecutor opens the database file. Nothing is read until the first query.
func NewQueryExecutor(ctx context.Context, cfg *Config) (*QueryExecutor, error) {
	db, err := sql.Open("sqlite3", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if !cfg.ReadOnly {
		// SQLite only supports one writer at a time.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}
	return &QueryExecutor{
		SQLDB:  datasource.NewSQLDB(db, convertParams, datasource.WithBinder(bindValues)),
		config: cfg,
	}, nil
}

// TestConnection verifies the file opens and is a SQLite database.
func (e *QueryExecutor) TestConnection(ctx context.Context) error {
	var tables int
	if err := e.Probe(ctx, "SELECT count(*) FROM sqlite_master", &tables); err != nil {
		return fmt.Errorf("%s: %w", e.config.Path, err)
	}
	return nil
}

// QuoteIdentifier quotes an identifier with double quotes.
func (e *QueryExecutor) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func convertParams(query string) string {
	return sqlguard.RewritePlaceholders(query, func(n int) string { return "?" + strconv.Itoa(n) })
}

// bindValues formats timestamps the way they are stored so range filters
// compare like with like.
func bindValues(params []any) []any {
	out := make([]any, len(params))
	for i, p := range params {
		if t, ok := p.(time.Time); ok {
			out[i] = t.UTC().Format(TimeLayout)
			continue
		}
		out[i] = p
	}
	return out
}

// Ensure QueryExecutor implements datasource.QueryExecutor at compile time.
var _ datasource.QueryExecutor = (*QueryExecutor)(nil)
