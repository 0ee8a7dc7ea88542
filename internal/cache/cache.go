// Package cache provides caching for rendered tiles, query results and
// decoded image planes.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/spatialdata-io/server/internal/spatialdata"
)

// Config contains cache configuration.
type Config struct {
	TileCacheSizeMB   int
	TileTTL           time.Duration
	QueryCacheSize    int
	PlaneCacheEntries int
}

// Manager manages tile, query and plane caches.
type Manager struct {
	tileCache  *bigcache.BigCache
	queryCache *lru.Cache[string, []byte]
	planes     *PlaneCache
}

// NewManager creates a new cache manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.TileTTL <= 0 {
		cfg.TileTTL = 10 * time.Minute
	}
	if cfg.TileCacheSizeMB <= 0 {
		cfg.TileCacheSizeMB = 256
	}
	if cfg.QueryCacheSize <= 0 {
		cfg.QueryCacheSize = 1000
	}

	tileCacheConfig := bigcache.Config{
		Shards:             1024,
		LifeWindow:         cfg.TileTTL,
		CleanWindow:        cfg.TileTTL / 2,
		MaxEntriesInWindow: 100000,
		MaxEntrySize:       100 * 1024, // 100KB per tile
		HardMaxCacheSize:   cfg.TileCacheSizeMB,
		Verbose:            false,
	}

	tileCache, err := bigcache.New(context.Background(), tileCacheConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create tile cache: %w", err)
	}

	queryCache, err := lru.New[string, []byte](cfg.QueryCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create query cache: %w", err)
	}

	planes, err := NewPlaneCache(cfg.PlaneCacheEntries)
	if err != nil {
		return nil, err
	}

	return &Manager{
		tileCache:  tileCache,
		queryCache: queryCache,
		planes:     planes,
	}, nil
}

// GetTile retrieves a tile from cache.
func (m *Manager) GetTile(key string) ([]byte, bool) {
	data, err := m.tileCache.Get(key)
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetTile stores a tile in cache.
func (m *Manager) SetTile(key string, data []byte) error {
	return m.tileCache.Set(key, data)
}

// GetQuery retrieves a query result from cache.
func (m *Manager) GetQuery(key string) ([]byte, bool) {
	return m.queryCache.Get(key)
}

// SetQuery stores a query result in cache.
func (m *Manager) SetQuery(key string, data []byte) {
	m.queryCache.Add(key, data)
}

// Planes returns the shared decoded-plane cache.
func (m *Manager) Planes() *PlaneCache {
	return m.planes
}

// PointsTileKey generates a cache key for a points tile.
func PointsTileKey(dataset, layer string, z, x, y int, gene string) string {
	key := fmt.Sprintf("pts:%s:%s:%d/%d/%d", dataset, layer, z, x, y)
	if gene != "" {
		key += ":" + gene
	}
	return key
}

// ShapesTileKey generates a cache key for a shapes tile.
func ShapesTileKey(dataset, layer string, z, x, y int) string {
	return fmt.Sprintf("shp:%s:%s:%d/%d/%d", dataset, layer, z, x, y)
}

// ImageTileKey generates a cache key for an image tile.
func ImageTileKey(dataset, layer, channel string, z, x, y int, colormap string) string {
	return fmt.Sprintf("img:%s:%s:%s:%d/%d/%d:%s", dataset, layer, channel, z, x, y, colormap)
}

// Stats returns cache statistics.
func (m *Manager) Stats() map[string]interface{} {
	return map[string]interface{}{
		"tile_cache_len":  m.tileCache.Len(),
		"tile_cache_cap":  m.tileCache.Capacity(),
		"query_cache_len": m.queryCache.Len(),
		"plane_cache_len": m.planes.Len(),
	}
}

// Close closes the cache manager.
func (m *Manager) Close() error {
	m.planes.Purge()
	return m.tileCache.Close()
}

// PlaneCache keeps recently decoded image planes.
type PlaneCache struct {
	lru *lru.Cache[string, *spatialdata.Plane]
}

// NewPlaneCache creates a plane cache holding up to size planes.
func NewPlaneCache(size int) (*PlaneCache, error) {
	if size <= 0 {
		size = 64
	}
	c, err := lru.New[string, *spatialdata.Plane](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create plane cache: %w", err)
	}
	return &PlaneCache{lru: c}, nil
}

// Get returns a cached plane.
func (c *PlaneCache) Get(key string) (*spatialdata.Plane, bool) {
	if c == nil {
		return nil, false
	}
	return c.lru.Get(key)
}

// Add stores a plane.
func (c *PlaneCache) Add(key string, p *spatialdata.Plane) {
	if c == nil {
		return
	}
	c.lru.Add(key, p)
}

// Len returns the number of cached planes.
func (c *PlaneCache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

// Purge drops all cached planes.
func (c *PlaneCache) Purge() {
	if c == nil {
		return
	}
	c.lru.Purge()
}
