package mssql

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/ekaya-inc/sensorql/pkg/adapters/datasource"
	"github.com/ekaya-inc/sensorql/pkg/config"
)

// Auth methods supported by the backend.
const (
	AuthSQL              = "sql"
	AuthServicePrincipal = "service_principal"
)

// Config holds SQL Server connection options.
type Config struct {
	Host     string
	Port     int
	Database string

	// AuthMethod is AuthSQL or AuthServicePrincipal. FromMap picks the
	// service principal when a client_id is present and none is named.
	AuthMethod string
	Username   string
	Password   string

	// Azure AD service principal.
	TenantID     string
	ClientID     string
	ClientSecret string

	Encrypt                bool
	TrustServerCertificate bool
	// ConnectionTimeout is in seconds.
	ConnectionTimeout int
}

// DefaultPort returns the default SQL Server port.
func DefaultPort() int {
	return 1433
}

// DefaultConnectionTimeout returns the default connection timeout in seconds.
func DefaultConnectionTimeout() int {
	return 30
}

// FromMap builds a Config from the backend section of the configuration.
func FromMap(cfgMap map[string]any) (*Config, error) {
	opts := datasource.Options(cfgMap)
	cfg := &Config{
		Host:       opts.String("host"),
		Database:   opts.String("database"),
		AuthMethod: opts.String("auth_method"),
	}

	var err error
	if cfg.Port, err = opts.Int("port", DefaultPort()); err != nil {
		return nil, err
	}
	if cfg.ConnectionTimeout, err = opts.Int("connection_timeout", DefaultConnectionTimeout()); err != nil {
		return nil, err
	}
	if cfg.TrustServerCertificate, err = opts.Bool("trust_server_certificate", false); err != nil {
		return nil, err
	}
	// go-mssqldb also accepts "strict" (TDS 8.0), which still encrypts.
	if opts.String("encrypt") == "strict" {
		cfg.Encrypt = true
	} else if cfg.Encrypt, err = opts.Bool("encrypt", true); err != nil {
		return nil, err
	}

	if cfg.AuthMethod == "" {
		cfg.AuthMethod = AuthSQL
		if opts.Has("client_id") {
			cfg.AuthMethod = AuthServicePrincipal
		}
	}
	switch cfg.AuthMethod {
	case AuthSQL:
		cfg.Username = opts.String("username", "user")
		cfg.Password = opts.Secret("password")
	case AuthServicePrincipal:
		cfg.TenantID = opts.String("tenant_id")
		cfg.ClientID = opts.String("client_id")
		cfg.ClientSecret = opts.Secret("client_secret")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields the selected auth method needs.
func (c *Config) Validate() error {
	required := []struct{ name, value string }{
		{"host", c.Host},
		{"database", c.Database},
	}
	switch c.AuthMethod {
	case AuthSQL:
		required = append(required, struct{ name, value string }{"username", c.Username})
	case AuthServicePrincipal:
		required = append(required,
			struct{ name, value string }{"tenant_id", c.TenantID},
			struct{ name, value string }{"client_id", c.ClientID},
			struct{ name, value string }{"client_secret", c.ClientSecret})
	default:
		return fmt.Errorf("invalid auth method: %s (must be %s or %s)", c.AuthMethod, AuthSQL, AuthServicePrincipal)
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	for _, f := range required {
		if f.value == "" {
			return fmt.Errorf("%s is required for %s authentication", f.name, c.AuthMethod)
		}
	}
	return nil
}

// DriverName returns the database/sql driver for the auth method.
func (c *Config) DriverName() string {
	if c.AuthMethod == AuthServicePrincipal {
		return "azuresql"
	}
	return "sqlserver"
}

// ConnectionString builds the sqlserver:// URL. Credentials live in the query
// string for service principals and in the userinfo otherwise.
func (c *Config) ConnectionString() string {
	u := &url.URL{
		Scheme: "sqlserver",
		Host:   fmt.Sprintf("%s:%d", config.ResolveHostForDocker(c.Host), c.Port),
	}

	q := url.Values{}
	q.Set("database", c.Database)
	q.Set("encrypt", strconv.FormatBool(c.Encrypt))
	q.Set("app name", "sensorql")
	if c.TrustServerCertificate {
		q.Set("TrustServerCertificate", "true")
	}
	if c.ConnectionTimeout > 0 {
		q.Set("connection timeout", strconv.Itoa(c.ConnectionTimeout))
	}

	if c.AuthMethod == AuthServicePrincipal {
		q.Set("fedauth", "ActiveDirectoryServicePrincipal")
		q.Set("user id", c.ClientID)
		q.Set("password", c.ClientSecret)
		q.Set("tenant id", c.TenantID)
	} else {
		u.User = url.UserPassword(c.Username, c.Password)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
