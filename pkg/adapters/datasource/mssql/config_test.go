package mssql

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/sensorql/pkg/adapters/datasource"
)

func TestFromMap_SQLAuth(t *testing.T) {
	cfg, err := FromMap(map[string]any{
		"host":                     "sql.example.com",
		"port":                     float64(1444),
		"database":                 "iot",
		"user":                     "reader",
		"password":                 "p@ss/word",
		"trust_server_certificate": true,
	})
	require.NoError(t, err)

	assert.Equal(t, AuthSQL, cfg.AuthMethod)
	assert.Equal(t, "reader", cfg.Username)
	assert.Equal(t, 1444, cfg.Port)
	assert.True(t, cfg.Encrypt)
	assert.Equal(t, DefaultConnectionTimeout(), cfg.ConnectionTimeout)
	assert.Equal(t, "sqlserver", cfg.DriverName())

	connStr := cfg.ConnectionString()
	assert.Contains(t, connStr, "sqlserver://reader:p%40ss%2Fword@")
	assert.Contains(t, connStr, ":1444?")
	assert.Contains(t, connStr, "database=iot")
	assert.Contains(t, connStr, "TrustServerCertificate=true")
}

func TestFromMap_ServicePrincipal(t *testing.T) {
	cfg, err := FromMap(map[string]any{
		"host":          "iot.database.windows.net",
		"database":      "iot",
		"tenant_id":     "tenant",
		"client_id":     "client",
		"client_secret": "secret",
	})
	require.NoError(t, err)

	assert.Equal(t, AuthServicePrincipal, cfg.AuthMethod)
	assert.Equal(t, "azuresql", cfg.DriverName())
	assert.Contains(t, cfg.ConnectionString(), "fedauth=ActiveDirectoryServicePrincipal")
}

func TestFromMap_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  map[string]any
		want string
	}{
		{"missing host", map[string]any{"database": "iot", "user": "u"}, "host is required"},
		{"missing database", map[string]any{"host": "h", "user": "u"}, "database is required"},
		{"missing user", map[string]any{"host": "h", "database": "iot"}, "username is required"},
		{"bad port", map[string]any{"host": "h", "database": "iot", "user": "u", "port": 70000}, "invalid port"},
		{"partial principal", map[string]any{"host": "h", "database": "iot", "client_id": "c"}, "tenant_id is required"},
		{"unknown auth", map[string]any{"host": "h", "database": "iot", "auth_method": "kerberos"}, "invalid auth method"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromMap(tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConvertPostgreSQLParamsToMSSQL(t *testing.T) {
	assert.Equal(t,
		"SELECT * FROM [RepData] WHERE [value] > @p1 AND [timestamp] < @p12",
		convertPostgreSQLParamsToMSSQL("SELECT * FROM [RepData] WHERE [value] > $1 AND [timestamp] < $12"))
}

func TestNamedArgs(t *testing.T) {
	args := namedArgs([]any{"high", 30.0})
	require.Len(t, args, 2)
	assert.Equal(t, sql.Named("p1", "high"), args[0])
	assert.Equal(t, sql.Named("p2", 30.0), args[1])
}

func TestQuoteName(t *testing.T) {
	assert.Equal(t, "[AlertLog]", quoteName("AlertLog"))
	assert.Equal(t, "[a]]b]", quoteName("a]b"))
}

func TestMapSQLServerType(t *testing.T) {
	assert.Equal(t, "INTEGER", mapSQLServerType("int"))
	assert.Equal(t, "VARCHAR", mapSQLServerType("NVARCHAR"))
	assert.Equal(t, "BOOLEAN", mapSQLServerType("BIT"))
	assert.Equal(t, "TIMESTAMP", mapSQLServerType("DATETIME2"))
	assert.Equal(t, "XML", mapSQLServerType("xml"))
}

func TestRegistered(t *testing.T) {
	assert.True(t, datasource.IsRegistered("mssql"))
	assert.True(t, datasource.IsRegistered("sqlserver"))
}
