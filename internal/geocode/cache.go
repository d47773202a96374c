package geocode

import (
	"container/list"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Cache stores search results by normalized query.
type Cache interface {
	Get(ctx context.Context, key string) ([]Place, bool)
	Set(ctx context.Context, key string, places []Place)
}

// MemoryCache is an in-process LRU cache with TTL.
type MemoryCache struct {
	mu         sync.Mutex
	ll         *list.List
	items      map[string]*list.Element
	maxEntries int
	ttl        time.Duration
}

type memoryEntry struct {
	key     string
	places  []Place
	expires time.Time
}

// NewMemoryCache creates a cache of at most maxEntries results.
func NewMemoryCache(maxEntries int, ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ll:         list.New(),
		items:      make(map[string]*list.Element),
		maxEntries: maxEntries,
		ttl:        ttl,
	}
}

// Get returns cached places for key.
func (c *MemoryCache) Get(_ context.Context, key string) ([]Place, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*memoryEntry)
	if time.Now().After(e.expires) {
		c.ll.Remove(el)
		delete(c.items, key)
		return nil, false
	}
	c.ll.MoveToFront(el)
	return e.places, true
}

// Set stores places for key.
func (c *MemoryCache) Set(_ context.Context, key string, places []Place) {
	if c.maxEntries <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		e := el.Value.(*memoryEntry)
		e.places = places
		e.expires = time.Now().Add(c.ttl)
		c.ll.MoveToFront(el)
		return
	}
	c.items[key] = c.ll.PushFront(&memoryEntry{key: key, places: places, expires: time.Now().Add(c.ttl)})
	for c.ll.Len() > c.maxEntries {
		oldest := c.ll.Back()
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*memoryEntry).key)
	}
}

// Len returns the number of cached queries.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// RedisCache stores results in Redis as JSON with a TTL.
type RedisCache struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to the Redis server at url (redis://host:port/db).
func NewRedisCache(url string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: parse redis url")
	}
	return NewRedisCacheWithClient(redis.NewClient(opts), ttl), nil
}

// NewRedisCacheWithClient wraps an existing Redis client.
func NewRedisCacheWithClient(client redis.Cmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: "care:geocode:", ttl: ttl}
}

// Get returns cached places for key. Redis errors count as a miss.
func (c *RedisCache) Get(ctx context.Context, key string) ([]Place, bool) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !eris.Is(err, redis.Nil) {
			zap.L().Warn("geocode: redis get failed", zap.Error(err))
		}
		return nil, false
	}
	var places []Place
	if err := json.Unmarshal(data, &places); err != nil {
		return nil, false
	}
	return places, true
}

// Set stores places for key. Failures are logged and otherwise ignored.
func (c *RedisCache) Set(ctx context.Context, key string, places []Place) {
	data, err := json.Marshal(places)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		zap.L().Warn("geocode: redis set failed", zap.Error(err))
	}
}
