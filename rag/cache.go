package rag

import (
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
)

// HashKey derives the idempotency key for one analysis request. Identical
// (agent, content) pairs within one mission share a key.
func HashKey(agentID, content, missionID string) string {
	sum := sha256.Sum256([]byte(agentID + "\x00" + content + "\x00" + missionID))
	return hex.EncodeToString(sum[:])
}

// ResponseCache is the fast path for idempotent replays. A miss is never an
// error: the pipeline falls back to the store's hash tags, so cache loss
// only costs latency.
type ResponseCache interface {
	Get(ctx context.Context, key string) (*Response, bool, error)
	Set(ctx context.Context, key string, resp *Response, ttl time.Duration) error
}

// RedisCache stores responses in Redis under a shared prefix.
type RedisCache struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisCache creates a Redis-backed response cache.
func NewRedisCache(client *redis.Client, prefix string, logger *zap.Logger) *RedisCache {
	if prefix == "" {
		prefix = "crewmind:answer:"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{
		client: client,
		prefix: prefix,
		logger: logger.With(zap.String("component", "response_cache")),
	}
}

// Get returns the cached response for key, if present.
func (c *RedisCache) Get(ctx context.Context, key string) (*Response, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		// A corrupt entry behaves like a miss; the store fallback still
		// guarantees idempotent replay.
		c.logger.Warn("dropping corrupt cache entry", zap.String("key", key), zap.Error(err))
		return nil, false, nil
	}
	return &resp, true, nil
}

// Set stores the response under key for ttl.
func (c *RedisCache) Set(ctx context.Context, key string, resp *Response, ttl time.Duration) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("cache marshal: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

type cacheEntry struct {
	resp      Response
	expiresAt time.Time
}

// InMemoryCache is a ResponseCache for tests and single-process deployments.
type InMemoryCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	now     func() time.Time
}

// NewInMemoryCache creates an empty in-memory response cache.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Get returns the cached response for key, if present and unexpired.
func (c *InMemoryCache) Get(ctx context.Context, key string) (*Response, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	resp := entry.resp
	return &resp, true, nil
}

// Set stores the response under key for ttl. Zero ttl means no expiry.
func (c *InMemoryCache) Set(ctx context.Context, key string, resp *Response, ttl time.Duration) error {
	entry := cacheEntry{resp: *resp}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
	return nil
}
