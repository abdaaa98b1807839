package mssql

import "github.com/ekaya-inc/sensorql/pkg/adapters/datasource"

func init() {
	datasource.RegisterAdapter(datasource.DatasourceAdapterInfo{
		Type:        "mssql",
		DisplayName: "Microsoft SQL Server",
		Description: "SQL Server 2019+ or Azure SQL Database",
		Aliases:     []string{"sqlserver"},
	}, FromMap, NewQueryExecutor)
}
