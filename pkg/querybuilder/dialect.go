package querybuilder

import (
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/sensorql/pkg/apperrors"
)

// Dialect names the SQL flavor a plan is rendered for. The names match the
// datasource adapter types.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectMSSQL    Dialect = "mssql"
)

// ParseDialect validates a backend type name.
func ParseDialect(s string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(strings.TrimSpace(s))); d {
	case DialectSQLite, DialectPostgres, DialectMSSQL:
		return d, nil
	case "sqlserver":
		return DialectMSSQL, nil
	default:
		return "", apperrors.Configuration("unsupported backend dialect %q", s)
	}
}

// QuoteIdentifier quotes a table or column name for the dialect.
func (d Dialect) QuoteIdentifier(name string) string {
	if d == DialectMSSQL {
		return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
	}
	return pgx.Identifier{name}.Sanitize()
}

// limitClause renders the row cap bound to placeholder.
func (d Dialect) limitClause(placeholder string) string {
	if d == DialectMSSQL {
		return "OFFSET 0 ROWS FETCH NEXT " + placeholder + " ROWS ONLY"
	}
	return "LIMIT " + placeholder
}
