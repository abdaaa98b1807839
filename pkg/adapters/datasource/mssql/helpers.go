package mssql

import (
	"database/sql"
	"strconv"
	"strings"

	sqlguard "github.com/ekaya-inc/sensorql/pkg/sql"
)

// quoteName quotes an identifier the way QUOTENAME() does: [name] with ] escaped as ]].
func quoteName(identifier string) string {
	return "[" + strings.ReplaceAll(identifier, "]", "]]") + "]"
}

func paramName(n int) string {
	return "p" + strconv.Itoa(n)
}

// convertPostgreSQLParamsToMSSQL turns $N placeholders into @pN named parameters.
func convertPostgreSQLParamsToMSSQL(query string) string {
	return sqlguard.RewritePlaceholders(query, func(n int) string { return "@" + paramName(n) })
}

// namedArgs binds params positionally to @p1..@pN.
func namedArgs(params []any) []any {
	args := make([]any, len(params))
	for i, p := range params {
		args[i] = sql.Named(paramName(i+1), p)
	}
	return args
}

// sqlServerTypes renames driver type names to what the sqlite and postgres
// adapters report for the same columns.
var sqlServerTypes = map[string]string{
	"INT":              "INTEGER",
	"DECIMAL":          "NUMERIC",
	"MONEY":            "NUMERIC",
	"SMALLMONEY":       "NUMERIC",
	"FLOAT":            "DOUBLE",
	"BIT":              "BOOLEAN",
	"NCHAR":            "CHAR",
	"NVARCHAR":         "VARCHAR",
	"NTEXT":            "TEXT",
	"DATETIME":         "TIMESTAMP",
	"DATETIME2":        "TIMESTAMP",
	"SMALLDATETIME":    "TIMESTAMP",
	"DATETIMEOFFSET":   "TIMESTAMPTZ",
	"UNIQUEIDENTIFIER": "UUID",
}

func mapSQLServerType(sqlServerType string) string {
	t := strings.ToUpper(sqlServerType)
	if mapped, ok := sqlServerTypes[t]; ok {
		return mapped
	}
	return t
}
