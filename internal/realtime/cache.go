package realtime

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultCacheTTL        = 60 * time.Second
	defaultCleanupInterval = 5 * time.Minute
	redisKeyPrefix         = "journey:realtime:"
)

type cacheEntry struct {
	value     interface{}
	expiresAt time.Time
}

// AnalyticsCache is an in-memory TTL cache for flushed analytics aggregates,
// mirrored to redis so the dashboard can read live values without touching
// this process. Redis is optional; with a nil client the cache is memory-only.
type AnalyticsCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry

	ttl             time.Duration
	cleanupInterval time.Duration
	redis           *redis.Client
	now             func() time.Time

	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewAnalyticsCache creates a cache with the default 60s TTL and 5-minute
// cleanup sweep.
func NewAnalyticsCache(redisClient *redis.Client) *AnalyticsCache {
	return &AnalyticsCache{
		entries:         make(map[string]cacheEntry),
		ttl:             defaultCacheTTL,
		cleanupInterval: defaultCleanupInterval,
		redis:           redisClient,
		now:             time.Now,
	}
}

// Start begins the periodic cleanup sweep.
func (c *AnalyticsCache) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.running = true
	c.ctx, c.cancel = context.WithCancel(context.Background())

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-c.ctx.Done():
				return
			case <-ticker.C:
				c.Cleanup()
			}
		}
	}()
}

// Stop halts the cleanup sweep.
func (c *AnalyticsCache) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

// Set stores a value under the default TTL and mirrors it to redis.
func (c *AnalyticsCache) Set(key string, value interface{}) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{value: value, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()

	c.mirrorToRedis(key, value)
}

// Get returns the cached value, or false if missing or expired.
func (c *AnalyticsCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || c.now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.value, true
}

// Cleanup removes expired entries. Get already treats expired entries as
// missing; the sweep just bounds memory between reads.
func (c *AnalyticsCache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var removed int
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	if removed > 0 {
		log.Printf("[AnalyticsCache] Cleaned up %d expired entries", removed)
	}
}

// Len reports how many entries are held, including not-yet-swept expired ones.
func (c *AnalyticsCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *AnalyticsCache) mirrorToRedis(key string, value interface{}) {
	if c.redis == nil {
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		log.Printf("[AnalyticsCache] Error marshaling %s for redis mirror: %v", key, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.redis.Set(ctx, redisKeyPrefix+key, data, c.ttl).Err(); err != nil {
		log.Printf("[AnalyticsCache] Error mirroring %s to redis: %v", key, err)
	}
}
