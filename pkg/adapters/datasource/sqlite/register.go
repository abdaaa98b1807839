package sqlite

import "github.com/ekaya-inc/sensorql/pkg/adapters/datasource"

func init() {
	datasource.RegisterAdapter(datasource.DatasourceAdapterInfo{
		Type:        "sqlite",
		DisplayName: "SQLite",
		Description: "Embedded single-file database",
		Aliases:     []string{"sqlite3"},
	}, FromMap, NewQueryExecutor)
}
