package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cacheClock struct{ t time.Time }

func (c *cacheClock) Now() time.Time          { return c.t }
func (c *cacheClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache() (*AnalyticsCache, *cacheClock) {
	clock := &cacheClock{t: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	c := NewAnalyticsCache(nil)
	c.now = clock.Now
	return c, clock
}

func TestCacheGetBeforeAndAfterTTL(t *testing.T) {
	c, clock := newTestCache()

	c.Set("conversion", 0.75)
	got, ok := c.Get("conversion")
	require.True(t, ok)
	assert.Equal(t, 0.75, got)

	clock.Advance(59 * time.Second)
	_, ok = c.Get("conversion")
	assert.True(t, ok)

	clock.Advance(2 * time.Second)
	_, ok = c.Get("conversion")
	assert.False(t, ok, "entries expire after 60s")
}

func TestCleanupSweepRemovesExpired(t *testing.T) {
	c, clock := newTestCache()

	c.Set("a", 1)
	c.Set("b", 2)
	clock.Advance(2 * time.Minute)
	c.Set("c", 3)

	c.Cleanup()
	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("c")
	assert.True(t, ok)
}

func TestRedisMirror(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	c := NewAnalyticsCache(client)
	c.Set("metrics", map[string]int{"drop_offs": 4})

	raw, err := mr.Get("journey:realtime:metrics")
	require.NoError(t, err)

	var mirrored map[string]int
	require.NoError(t, json.Unmarshal([]byte(raw), &mirrored))
	assert.Equal(t, 4, mirrored["drop_offs"])

	// The mirror carries the cache TTL so stale values age out of redis too.
	mr.FastForward(2 * time.Minute)
	_, err = mr.Get("journey:realtime:metrics")
	assert.Error(t, err)
}

func TestNilRedisIsMemoryOnly(t *testing.T) {
	c, _ := newTestCache()
	c.Set("k", "v")
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got)
}
