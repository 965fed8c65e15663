package chats

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/penzjakof/anchat-relay/internal/models"
)

// AccessCache bounds repeated authorization lookups under request
// bursts. Entries live for a short TTL keyed by (tenant, callerCode).
type AccessCache interface {
	Get(ctx context.Context, key string) ([]models.Account, bool)
	Set(ctx context.Context, key string, accounts []models.Account)
}

type memoryCacheEntry struct {
	accounts []models.Account
	storedAt time.Time
}

// MemoryAccessCache is the default in-process cache backend.
type MemoryAccessCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memoryCacheEntry
}

// NewMemoryAccessCache creates an in-memory cache with the given TTL.
func NewMemoryAccessCache(ttl time.Duration, now func() time.Time) *MemoryAccessCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryAccessCache{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]memoryCacheEntry),
	}
}

// Get returns the cached account set if present and fresh.
func (c *MemoryAccessCache) Get(ctx context.Context, key string) ([]models.Account, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.storedAt) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	out := make([]models.Account, len(e.accounts))
	copy(out, e.accounts)
	return out, true
}

// Set stores the account set, replacing any existing entry.
func (c *MemoryAccessCache) Set(ctx context.Context, key string, accounts []models.Account) {
	stored := make([]models.Account, len(accounts))
	copy(stored, accounts)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryCacheEntry{accounts: stored, storedAt: c.now()}
}

// RedisAccessCache shares the access cache across relay instances.
// Cache misses on redis errors: the aggregator just falls through to
// the authorization lookup.
type RedisAccessCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisAccessCache creates a redis-backed cache with the given TTL.
func NewRedisAccessCache(client *redis.Client, ttl time.Duration) *RedisAccessCache {
	return &RedisAccessCache{client: client, ttl: ttl}
}

func (c *RedisAccessCache) redisKey(key string) string {
	return "anchat:access:" + key
}

// Get returns the cached account set if present.
func (c *RedisAccessCache) Get(ctx context.Context, key string) ([]models.Account, bool) {
	raw, err := c.client.Get(ctx, c.redisKey(key)).Bytes()
	if err != nil {
		return nil, false
	}
	var accounts []models.Account
	if err := json.Unmarshal(raw, &accounts); err != nil {
		return nil, false
	}
	return accounts, true
}

// Set stores the account set with the cache TTL.
func (c *RedisAccessCache) Set(ctx context.Context, key string, accounts []models.Account) {
	raw, err := json.Marshal(accounts)
	if err != nil {
		return
	}
	c.client.Set(ctx, c.redisKey(key), raw, c.ttl)
}
