package database

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/sensorql/pkg/apperrors"
	"github.com/ekaya-inc/sensorql/pkg/config"
	"github.com/ekaya-inc/sensorql/pkg/logging"
	"github.com/ekaya-inc/sensorql/pkg/retry"
)

const defaultRedisTimeout = 5 * time.Second

// NewRedisClient connects to the Redis instance backing the shared result
// cache. It returns nil, nil when no host is configured. Transient dial
// failures are retried before giving up.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	if cfg.Host == "" {
		return nil, nil
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRedisTimeout
	}
	addr := net.JoinHostPort(config.ResolveHostForDocker(cfg.Host), strconv.Itoa(cfg.Port))
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})

	log := logger.Named("redis")
	retryCfg := retry.DefaultConfig()
	retryCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		log.Warn("Redis ping failed, retrying",
			zap.String("addr", addr),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.String("error", logging.SanitizeError(err)))
	}
	err := retry.DoIfRetryable(ctx, retryCfg, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return client.Ping(pingCtx).Err()
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: failed to connect to Redis at %s: %s", apperrors.ErrBackend, addr, logging.SanitizeError(err))
	}

	log.Info("Connected to Redis", zap.String("addr", addr), zap.Int("db", cfg.DB))
	return client, nil
}
