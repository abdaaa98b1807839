package postgres

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/ekaya-inc/sensorql/pkg/adapters/datasource"
	"github.com/ekaya-inc/sensorql/pkg/config"
)

// Config holds PostgreSQL connection options.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	// SSLMode is a libpq sslmode: disable, require, verify-ca or verify-full.
	SSLMode string
	// MaxConns caps the pool; zero keeps the pgxpool default.
	MaxConns int32
	// ConnectTimeout is in seconds; zero waits for the context.
	ConnectTimeout int
	// ReadOnly sets default_transaction_read_only on every session.
	ReadOnly bool
}

// DefaultPort returns the default PostgreSQL port.
func DefaultPort() int {
	return 5432
}

// DefaultSSLMode returns the default SSL mode.
func DefaultSSLMode() string {
	return "require"
}

// FromMap builds a Config from the backend section of the configuration.
func FromMap(cfgMap map[string]any) (*Config, error) {
	opts := datasource.Options(cfgMap)
	cfg := &Config{
		Password: opts.Secret("password"),
		SSLMode:  opts.String("ssl_mode", "sslmode"),
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = DefaultSSLMode()
	}

	var err error
	if cfg.Host, err = opts.Required("host"); err != nil {
		return nil, err
	}
	if cfg.User, err = opts.Required("user", "username"); err != nil {
		return nil, err
	}
	if cfg.Database, err = opts.Required("database"); err != nil {
		return nil, err
	}
	if cfg.Port, err = opts.Int("port", DefaultPort()); err != nil {
		return nil, err
	}
	if cfg.ConnectTimeout, err = opts.Int("connect_timeout", 0); err != nil {
		return nil, err
	}
	if cfg.ReadOnly, err = opts.Bool("read_only", false); err != nil {
		return nil, err
	}
	maxConns, err := opts.Int("max_conns", 0)
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	return cfg, nil
}

// ConnectionString builds a postgresql:// URL. Credentials are escaped, so
// passwords may contain @, /, # or ?. When running in Docker, localhost
// resolves to host.docker.internal.
func (c *Config) ConnectionString() string {
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	if c.SSLMode == "" {
		q.Set("sslmode", DefaultSSLMode())
	}
	if c.ConnectTimeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(c.ConnectTimeout))
	}

	u := &url.URL{
		Scheme:   "postgresql",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", config.ResolveHostForDocker(c.Host), c.Port),
		Path:     "/" + c.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}
