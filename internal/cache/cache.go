// Package cache provides caching for rendered tiles and DZI descriptors.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/allegro/bigcache/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Config contains cache configuration.
type Config struct {
	TileCacheSizeMB     int
	TileTTL             time.Duration
	DescriptorCacheSize int
}

// Manager manages the tile and descriptor caches.
type Manager struct {
	tileCache *bigcache.BigCache
	descCache *lru.Cache[string, []byte]
}

// NewManager creates a new cache manager.
func NewManager(cfg Config) (*Manager, error) {
	tileCacheConfig := bigcache.Config{
		Shards:             1024,
		LifeWindow:         cfg.TileTTL,
		CleanWindow:        cfg.TileTTL / 2,
		MaxEntriesInWindow: 100000,
		MaxEntrySize:       256 * 1024, // 256KB per JPEG tile
		HardMaxCacheSize:   cfg.TileCacheSizeMB,
		Verbose:            false,
	}

	tileCache, err := bigcache.New(context.Background(), tileCacheConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create tile cache: %w", err)
	}

	descCache, err := lru.New[string, []byte](cfg.DescriptorCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create descriptor cache: %w", err)
	}

	return &Manager{
		tileCache: tileCache,
		descCache: descCache,
	}, nil
}

// GetTile retrieves an encoded tile from cache.
func (m *Manager) GetTile(key string) ([]byte, bool) {
	data, err := m.tileCache.Get(key)
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetTile stores an encoded tile in cache.
func (m *Manager) SetTile(key string, data []byte) error {
	return m.tileCache.Set(key, data)
}

// GetDescriptor retrieves a DZI descriptor from cache.
func (m *Manager) GetDescriptor(key string) ([]byte, bool) {
	return m.descCache.Get(key)
}

// SetDescriptor stores a DZI descriptor in cache.
func (m *Manager) SetDescriptor(key string, data []byte) {
	m.descCache.Add(key, data)
}

// TileKey generates a cache key covering the full rendering recipe. Two
// requests for the same pixels with different channels, colors, gains or
// RGB mode must never share an entry.
func TileKey(location, file string, level, x, y int, channels []int, colors []string, gains []int, isRGB bool) string {
	var b strings.Builder
	b.WriteString("tile:")
	b.WriteString(location)
	b.WriteByte('/')
	b.WriteString(file)
	fmt.Fprintf(&b, ":%d/%d/%d:c=", level, x, y)
	for i, c := range channels {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(strconv.Itoa(c))
	}
	b.WriteString(":k=")
	b.WriteString(strings.Join(colors, ";"))
	b.WriteString(":g=")
	for i, g := range gains {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(strconv.Itoa(g))
	}
	b.WriteString(":rgb=")
	b.WriteString(strconv.FormatBool(isRGB))
	return b.String()
}

// DescriptorKey generates a cache key for a DZI descriptor.
func DescriptorKey(location, file string) string {
	return fmt.Sprintf("dzi:%s/%s", location, file)
}

// Stats returns cache statistics.
func (m *Manager) Stats() map[string]interface{} {
	return map[string]interface{}{
		"tile_cache_len": m.tileCache.Len(),
		"tile_cache_cap": m.tileCache.Capacity(),
		"desc_cache_len": m.descCache.Len(),
	}
}

// Close closes the cache manager.
func (m *Manager) Close() error {
	return m.tileCache.Close()
}
