package sqlite

import (
	"fmt"
	"net/url"

	"github.com/ekaya-inc/sensorql/pkg/adapters/datasource"
)

// Config contains SQLite-specific connection options.
type Config struct {
	Path string
	// ReadOnly opens the file with mode=ro; questions never need to write.
	ReadOnly bool
	// BusyTimeoutMs bounds how long a reader waits on a locked database.
	BusyTimeoutMs int
}

// DefaultBusyTimeoutMs returns the default lock wait.
func DefaultBusyTimeoutMs() int {
	return 5000
}

// FromMap builds a Config from the backend section of the configuration.
func FromMap(cfgMap map[string]any) (*Config, error) {
	opts := datasource.Options(cfgMap)
	path, err := opts.Required("path")
	if err != nil {
		return nil, err
	}
	cfg := &Config{Path: path}
	if cfg.ReadOnly, err = opts.Bool("read_only", false); err != nil {
		return nil, err
	}
	if cfg.BusyTimeoutMs, err = opts.Int("busy_timeout_ms", DefaultBusyTimeoutMs()); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DSN builds the go-sqlite3 data source name.
func (c *Config) DSN() string {
	q := url.Values{}
	q.Set("_busy_timeout", fmt.Sprint(c.BusyTimeoutMs))
	q.Set("_foreign_keys", "on")
	if c.ReadOnly {
		q.Set("mode", "ro")
	}
	return "file:" + c.Path + "?" + q.Encode()
}
