package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/microsoft/go-mssqldb"         // sqlserver driver
	_ "github.com/microsoft/go-mssqldb/azuread" // azuresql driver

	"github.com/ekaya-inc/sensorql/pkg/adapters/datasource"
)

// QueryExecutor runs queries against SQL Server or Azure SQL.
type QueryExecutor struct {
	*datasource.SQLDB
	config *Config
}

// NewQueryExecutor opens a pool for the configured auth method. The driver
// connects lazily; TestConnection forces the first connection.
func NewQueryExecutor(ctx context.Context, cfg *Config) (*QueryExecutor, error) {
	db, err := sql.Open(cfg.DriverName(), cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("open %s connection: %w", cfg.AuthMethod, err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &QueryExecutor{
		SQLDB:  datasource.NewSQLDB(db, convertPostgreSQLParamsToMSSQL, datasource.WithBinder(namedArgs), datasource.WithTypeNames(mapSQLServerType)),
		config: cfg,
	}, nil
}

// TestConnection checks the login landed in the configured database.
func (e *QueryExecutor) TestConnection(ctx context.Context) error {
	var current string
	if err := e.Probe(ctx, "SELECT DB_NAME()", &current); err != nil {
		return err
	}
	if !strings.EqualFold(current, e.config.Database) {
		return fmt.Errorf("connected to wrong database: expected %q but connected to %q", e.config.Database, current)
	}
	return nil
}

// QuoteIdentifier brackets name the way QUOTENAME() does.
func (e *QueryExecutor) QuoteIdentifier(name string) string {
	return quoteName(name)
}

var _ datasource.QueryExecutor = (*QueryExecutor)(nil)
