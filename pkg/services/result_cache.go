package services

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/sensorql/pkg/models"
)

// ResultSet is the backend's answer to one query plan. Values handed out by a
// ResultCache are shared and must be treated as read-only.
type ResultSet struct {
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	RowCount  int              `json:"row_count"`
	Truncated bool             `json:"truncated,omitempty"`
}

// ResultCache stores result sets keyed by CacheKey. Concurrent writers to the
// same key are last-write-wins.
type ResultCache interface {
	Get(ctx context.Context, key string) (*ResultSet, bool)
	Set(ctx context.Context, key string, rs *ResultSet)
}

// CacheKey identifies a plan by its dialect, SQL text and bound parameters.
// Relative time phrases are already resolved into the parameters, so two
// questions share an entry only when they ask for exactly the same rows.
func CacheKey(plan *models.QueryPlan) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s", plan.Dialect, plan.SQL)
	for _, p := range plan.Params {
		switch v := p.(type) {
		case time.Time:
			fmt.Fprintf(h, "\x00%T:%s", v, v.UTC().Format(time.RFC3339Nano))
		default:
			fmt.Fprintf(h, "\x00%T:%v", v, v)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// memoryCache is a size-capped LRU with a per-entry TTL.
type memoryCache struct {
	mu      sync.Mutex
	size    int
	ttl     time.Duration
	now     func() time.Time
	order   *list.List // front = most recently used
	entries map[string]*list.Element
}

type memoryEntry struct {
	key     string
	rs      *ResultSet
	expires time.Time
}

var _ ResultCache = (*memoryCache)(nil)

// NewMemoryCache returns an in-process cache holding at most size entries for ttl each.
func NewMemoryCache(size int, ttl time.Duration) ResultCache {
	return newMemoryCache(size, ttl, time.Now)
}

func newMemoryCache(size int, ttl time.Duration, now func() time.Time) *memoryCache {
	return &memoryCache{
		size:    size,
		ttl:     ttl,
		now:     now,
		order:   list.New(),
		entries: make(map[string]*list.Element, size),
	}
}

func (c *memoryCache) Get(_ context.Context, key string) (*ResultSet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*memoryEntry)
	if c.ttl > 0 && !c.now().Before(entry.expires) {
		c.order.Remove(el)
		delete(c.entries, key)
		return nil, false
	}
	c.order.MoveToFront(el)
	return entry.rs, true
}

func (c *memoryCache) Set(_ context.Context, key string, rs *ResultSet) {
	if c.size <= 0 || rs == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.now().Add(c.ttl)
	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*memoryEntry)
		entry.rs = rs
		entry.expires = expires
		c.order.MoveToFront(el)
		return
	}

	c.entries[key] = c.order.PushFront(&memoryEntry{key: key, rs: rs, expires: expires})
	for c.order.Len() > c.size {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*memoryEntry).key)
	}
}

// Len returns the number of entries, expired or not.
func (c *memoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// redisCache shares results between server instances. Numbers round-trip
// through JSON, so integer columns come back as float64.
type redisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

var _ ResultCache = (*redisCache)(nil)

// NewRedisCache stores results in Redis under prefix with the given TTL.
// Redis failures are logged and treated as cache misses.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) ResultCache {
	return &redisCache{
		client: client,
		prefix: prefix + "result:",
		ttl:    ttl,
		logger: logger.Named("result-cache"),
	}
}

func (c *redisCache) key(k string) string {
	return c.prefix + k
}

func (c *redisCache) Get(ctx context.Context, key string) (*ResultSet, bool) {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Result cache read failed", zap.Error(err))
		}
		return nil, false
	}

	var rs ResultSet
	if err := json.Unmarshal(data, &rs); err != nil {
		c.logger.Warn("Discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &rs, true
}

func (c *redisCache) Set(ctx context.Context, key string, rs *ResultSet) {
	data, err := json.Marshal(rs)
	if err != nil {
		c.logger.Warn("Result not cacheable", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, c.key(key), data, c.ttl).Err(); err != nil {
		c.logger.Warn("Result cache write failed", zap.Error(err))
	}
}
