package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pandeptwidyaop/multisite/internal/db/models"
)

// Entry is a cached resolution. A nil Tenant is a negative entry: the host
// is known not to resolve.
type Entry struct {
	Tenant *models.Tenant `json:"tenant,omitempty"`
}

// Missing reports whether the entry records a miss.
func (e Entry) Missing() bool {
	return e.Tenant == nil
}

// Cache stores host resolutions.
type Cache interface {
	Get(ctx context.Context, host string) (Entry, bool, error)
	Set(ctx context.Context, host string, entry Entry, ttl time.Duration) error
	Delete(ctx context.Context, hosts ...string) error
}

// RedisClient is the subset of *redis.Client the cache uses.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	SetEx(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisCache shares resolutions between server instances.
type RedisCache struct {
	client RedisClient
	prefix string
}

// NewRedisCache creates a cache storing entries under prefix.
func NewRedisCache(client RedisClient, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "multisite:host:"
	}
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) Get(ctx context.Context, host string) (Entry, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+host).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		// Unreadable entries are treated as absent and overwritten.
		return Entry{}, false, nil
	}
	return entry, true, nil
}

func (c *RedisCache) Set(ctx context.Context, host string, entry Entry, ttl time.Duration) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.client.SetEx(ctx, c.prefix+host, raw, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, hosts ...string) error {
	if len(hosts) == 0 {
		return nil
	}
	keys := make([]string, len(hosts))
	for i, h := range hosts {
		keys[i] = c.prefix + h
	}
	return c.client.Del(ctx, keys...).Err()
}

type memoryItem struct {
	entry   Entry
	expires time.Time
}

// MemoryCache is a process-local cache used when redis is disabled.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	now   func() time.Time
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		items: make(map[string]memoryItem),
		now:   time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, host string) (Entry, bool, error) {
	c.mu.RLock()
	item, ok := c.items[host]
	c.mu.RUnlock()

	if !ok {
		return Entry{}, false, nil
	}
	if !c.now().Before(item.expires) {
		c.mu.Lock()
		delete(c.items, host)
		c.mu.Unlock()
		return Entry{}, false, nil
	}
	return item.entry, true, nil
}

func (c *MemoryCache) Set(_ context.Context, host string, entry Entry, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[host] = memoryItem{entry: entry, expires: c.now().Add(ttl)}
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, hosts ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range hosts {
		delete(c.items, h)
	}
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
