package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/ekaya-inc/sensorql/pkg/apperrors"
)

// backendAliases match the names each datasource adapter registers.
var backendAliases = map[string]string{
	"sqlite3":    "sqlite",
	"postgresql": "postgres",
	"pg":         "postgres",
	"sqlserver":  "mssql",
}

// DefaultPath is where Load looks for the YAML file when no path is given.
const DefaultPath = "config.yaml"

// Config holds all configuration for sensorql.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Backend  BackendConfig  `yaml:"backend"`
	Query    QueryConfig    `yaml:"query"`
	Cache    CacheConfig    `yaml:"cache"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Fallback FallbackConfig `yaml:"fallback"`
	History  HistoryConfig  `yaml:"history"`

	Version string `yaml:"-"` // Set at load time, not from config
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3480"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
}

// BackendConfig selects and configures the database questions are answered from.
type BackendConfig struct {
	// Type is sqlite, postgres or mssql. See backendAliases for other accepted names.
	Type string `yaml:"type" env:"BACKEND_TYPE" env-default:"sqlite"`

	// ReadOnly opens sqlite read-only and makes postgres sessions default to
	// read-only transactions.
	ReadOnly bool `yaml:"read_only" env:"BACKEND_READ_ONLY" env-default:"true"`

	// SQLite
	Path string `yaml:"path" env:"BACKEND_SQLITE_PATH" env-default:"data/iot.db"`

	// Networked backends
	Host     string `yaml:"host" env:"BACKEND_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"BACKEND_PORT" env-default:"0"` // 0 uses the driver default
	User     string `yaml:"user" env:"BACKEND_USER" env-default:""`
	Password string `yaml:"-" env:"BACKEND_PASSWORD"` // Secret - not in YAML
	Database string `yaml:"database" env:"BACKEND_DATABASE" env-default:"iot"`
	SSLMode  string `yaml:"ssl_mode" env:"BACKEND_SSL_MODE" env-default:"disable"`
	MaxConns int    `yaml:"max_conns" env:"BACKEND_MAX_CONNS" env-default:"10"`

	// SQL Server only
	TrustServerCertificate bool `yaml:"trust_server_certificate" env:"BACKEND_TRUST_SERVER_CERTIFICATE" env-default:"false"`
}

// QueryConfig bounds generated queries.
type QueryConfig struct {
	DefaultLimit int           `yaml:"default_limit" env:"QUERY_DEFAULT_LIMIT" env-default:"100"`
	MaxLimit     int           `yaml:"max_limit" env:"QUERY_MAX_LIMIT" env-default:"1000"`
	Timeout      time.Duration `yaml:"timeout" env:"QUERY_TIMEOUT" env-default:"30s"`
}

// CacheConfig controls the result cache. Size 0 disables it.
type CacheConfig struct {
	Size int           `yaml:"size" env:"CACHE_SIZE" env-default:"256"`
	TTL  time.Duration `yaml:"ttl" env:"CACHE_TTL" env-default:"5m"`
	// Backend is "memory" or "redis".
	Backend string      `yaml:"backend" env:"CACHE_BACKEND" env-default:"memory"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis connection settings for the shared result cache.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	// KeyPrefix namespaces cache entries when several deployments share one Redis.
	KeyPrefix string        `yaml:"key_prefix" env:"REDIS_KEY_PREFIX" env-default:"sensorql:"`
	PoolSize  int           `yaml:"pool_size" env:"REDIS_POOL_SIZE" env-default:"10"`
	Timeout   time.Duration `yaml:"timeout" env:"REDIS_TIMEOUT" env-default:"2s"`
}

// CatalogConfig points at the schema and vocabulary file. Empty uses the embedded IoT catalog.
type CatalogConfig struct {
	Path string `yaml:"path" env:"CATALOG_PATH" env-default:""`
}

// FallbackConfig configures the LLM interpreter used when rule-based extraction fails.
type FallbackConfig struct {
	// Provider is none, openai, anthropic or gemini.
	Provider          string        `yaml:"provider" env:"FALLBACK_PROVIDER" env-default:"none"`
	Model             string        `yaml:"model" env:"FALLBACK_MODEL" env-default:""`
	APIKey            string        `yaml:"-" env:"FALLBACK_API_KEY"` // Secret - not in YAML
	BaseURL           string        `yaml:"base_url" env:"FALLBACK_BASE_URL" env-default:""`
	RequestsPerMinute int           `yaml:"requests_per_minute" env:"FALLBACK_REQUESTS_PER_MINUTE" env-default:"30"`
	Timeout           time.Duration `yaml:"timeout" env:"FALLBACK_TIMEOUT" env-default:"20s"`
}

// Enabled reports whether a fallback provider is configured.
func (c *FallbackConfig) Enabled() bool {
	return c.Provider != "" && c.Provider != "none"
}

// HistoryConfig controls the query history store.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled" env:"HISTORY_ENABLED" env-default:"true"`
	Path    string `yaml:"path" env:"HISTORY_PATH" env-default:"data/history.db"`
	// Retention is how long entries are kept; 0 keeps them forever.
	Retention time.Duration `yaml:"retention" env:"HISTORY_RETENTION" env-default:"720h"`
}

// Load reads configuration from the YAML file at path with environment variable overrides.
// A missing file is not an error: defaults and environment variables are used.
// The version parameter is injected at build time and set on the returned Config.
func Load(path, version string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	cfg := &Config{Version: version}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("%w: failed to read %s: %w", apperrors.ErrConfiguration, path, err)
		}
	} else if errors.Is(err, fs.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("%w: failed to read environment: %w", apperrors.ErrConfiguration, err)
		}
	} else {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrConfiguration, err)
	}

	cfg.Backend.Type = strings.ToLower(strings.TrimSpace(cfg.Backend.Type))
	if canonical, ok := backendAliases[cfg.Backend.Type]; ok {
		cfg.Backend.Type = canonical
	}
	cfg.Fallback.Provider = strings.ToLower(strings.TrimSpace(cfg.Fallback.Provider))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Auto-derive BaseURL from Port if not explicitly set
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Server.Port,
		}).String()
	}
	return cfg, nil
}

// Validate checks cross-field constraints. All failures wrap apperrors.ErrConfiguration.
func (c *Config) Validate() error {
	switch c.Backend.Type {
	case "sqlite":
		if c.Backend.Path == "" {
			return apperrors.Configuration("backend.path is required for sqlite")
		}
	case "postgres", "mssql":
		if c.Backend.Host == "" {
			return apperrors.Configuration("backend.host is required for %s", c.Backend.Type)
		}
		if c.Backend.Database == "" {
			return apperrors.Configuration("backend.database is required for %s", c.Backend.Type)
		}
	default:
		return apperrors.Configuration("unsupported backend type %q (must be sqlite, postgres or mssql)", c.Backend.Type)
	}

	if c.Query.DefaultLimit <= 0 {
		return apperrors.Configuration("query.default_limit must be positive")
	}
	if c.Query.MaxLimit < c.Query.DefaultLimit {
		return apperrors.Configuration("query.max_limit (%d) is below query.default_limit (%d)", c.Query.MaxLimit, c.Query.DefaultLimit)
	}
	if c.Query.Timeout <= 0 {
		return apperrors.Configuration("query.timeout must be positive")
	}

	if c.Cache.Size < 0 {
		return apperrors.Configuration("cache.size must not be negative")
	}
	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.Redis.Host == "" {
			return apperrors.Configuration("cache.redis.host is required for the redis cache")
		}
	default:
		return apperrors.Configuration("unsupported cache backend %q (must be memory or redis)", c.Cache.Backend)
	}

	switch c.Fallback.Provider {
	case "", "none":
	case "openai", "anthropic", "gemini":
		if c.Fallback.APIKey == "" && c.Fallback.BaseURL == "" {
			return apperrors.Configuration("FALLBACK_API_KEY is required for the %s fallback", c.Fallback.Provider)
		}
		if c.Fallback.RequestsPerMinute <= 0 {
			return apperrors.Configuration("fallback.requests_per_minute must be positive")
		}
	default:
		return apperrors.Configuration("unsupported fallback provider %q (must be none, openai, anthropic or gemini)", c.Fallback.Provider)
	}

	if c.History.Enabled && c.History.Path == "" {
		return apperrors.Configuration("history.path is required when history is enabled")
	}
	if c.History.Retention < 0 {
		return apperrors.Configuration("history.retention must not be negative")
	}
	return nil
}

// BackendMap converts the backend section into the generic map the datasource
// adapters accept. Only keys relevant to the backend type are set.
func (c *BackendConfig) BackendMap() map[string]any {
	if c.Type == "sqlite" {
		return map[string]any{
			"path":      c.Path,
			"read_only": c.ReadOnly,
		}
	}

	m := map[string]any{
		"host":     c.Host,
		"user":     c.User,
		"password": c.Password,
		"database": c.Database,
	}
	if c.Port > 0 {
		m["port"] = c.Port
	}
	switch c.Type {
	case "postgres":
		m["ssl_mode"] = c.SSLMode
		m["max_conns"] = c.MaxConns
		m["read_only"] = c.ReadOnly
	case "mssql":
		m["encrypt"] = c.SSLMode != "disable"
		m["trust_server_certificate"] = c.TrustServerCertificate
	}
	return m
}

// Addr returns the listen address.
func (c *ServerConfig) Addr() string {
	return c.BindAddr + ":" + c.Port
}
