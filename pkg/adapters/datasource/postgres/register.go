package postgres

import "github.com/ekaya-inc/sensorql/pkg/adapters/datasource"

func init() {
	datasource.RegisterAdapter(datasource.DatasourceAdapterInfo{
		Type:        "postgres",
		DisplayName: "PostgreSQL",
		Description: "PostgreSQL 12+ over a pgx connection pool",
		Aliases:     []string{"postgresql", "pg"},
	}, FromMap, NewQueryExecutor)
}
