package basemap

import (
	"container/list"
	"sync"
	"time"
)

// TileCache holds upstream raster tiles in memory, least recently used
// first out, each entry living for at most ttl.
type TileCache struct {
	maxEntries int
	ttl        time.Duration
	now        func() time.Time

	mu     sync.Mutex
	ll     *list.List // front is most recently used
	tiles  map[tileID]*list.Element
	hits   int64
	misses int64
}

type tileID struct {
	provider string
	z, x, y  int
}

type cachedTile struct {
	id      tileID
	data    []byte
	expires time.Time
}

// CacheStats reports the tile cache's size and hit rate.
type CacheStats struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
}

// NewTileCache creates a cache holding at most maxEntries tiles for ttl.
func NewTileCache(maxEntries int, ttl time.Duration) *TileCache {
	return &TileCache{
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
		ll:         list.New(),
		tiles:      make(map[tileID]*list.Element),
	}
}

// Get returns a cached tile, or nil on miss or expiry.
func (c *TileCache) Get(provider string, z, x, y int) []byte {
	id := tileID{provider, z, x, y}

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.tiles[id]
	if !ok {
		c.misses++
		return nil
	}
	tile := el.Value.(*cachedTile)
	if c.now().After(tile.expires) {
		c.ll.Remove(el)
		delete(c.tiles, id)
		c.misses++
		return nil
	}
	c.ll.MoveToFront(el)
	c.hits++
	return tile.data
}

// Put stores a tile, evicting the least recently used entries when full.
func (c *TileCache) Put(provider string, z, x, y int, data []byte) {
	if c.maxEntries <= 0 {
		return
	}
	id := tileID{provider, z, x, y}
	expires := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.tiles[id]; ok {
		tile := el.Value.(*cachedTile)
		tile.data, tile.expires = data, expires
		c.ll.MoveToFront(el)
		return
	}
	c.tiles[id] = c.ll.PushFront(&cachedTile{id: id, data: data, expires: expires})
	for c.ll.Len() > c.maxEntries {
		oldest := c.ll.Back()
		c.ll.Remove(oldest)
		delete(c.tiles, oldest.Value.(*cachedTile).id)
	}
}

// Stats reports current cache statistics.
func (c *TileCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{Entries: c.ll.Len(), MaxEntries: c.maxEntries, Hits: c.hits, Misses: c.misses}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}
