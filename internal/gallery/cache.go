// Package gallery talks to the sticker gallery catalog and caches its
// existence answers so repeated checks for the same set do not hit the
// network.
package gallery

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/stixly/stickerbot/core/clock"
	"github.com/stixly/stickerbot/core/logger"
)

// Entry is one cached existence fact.
type Entry struct {
	Exists   bool
	SetID    int64
	CachedAt time.Time
}

// CacheStats is a point-in-time snapshot of cache counters.
type CacheStats struct {
	Size      int
	MaxSize   int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

type cacheItem struct {
	key   string
	entry Entry
}

// Cache is a TTL existence cache with a size bound. Expired entries are
// treated as misses on read regardless of sweep timing; the periodic sweep
// only reclaims memory. When full, the least recently used entry is evicted.
type Cache struct {
	mu      sync.Mutex
	clk     clock.Clock
	ttl     time.Duration
	maxSize int

	order *list.List // front = least recently used
	items map[string]*list.Element

	hits      uint64
	misses    uint64
	evictions uint64
}

// NewCache constructs an empty cache.
func NewCache(clk clock.Clock, ttl time.Duration, maxSize int) *Cache {
	return &Cache{
		clk:     clk,
		ttl:     ttl,
		maxSize: maxSize,
		order:   list.New(),
		items:   make(map[string]*list.Element),
	}
}

// Get returns the cached entry for key. An entry past its TTL is removed and
// reported as a miss even if the sweeper has not run yet.
func (c *Cache) Get(key string) (Entry, bool) {
	now := c.clk.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		return Entry{}, false
	}

	item := el.Value.(*cacheItem)
	if now.Sub(item.entry.CachedAt) > c.ttl {
		c.removeLocked(el)
		c.misses++
		return Entry{}, false
	}

	c.order.MoveToBack(el)
	c.hits++
	return item.entry, true
}

// Set stores or overwrites the entry for key, resetting its TTL. When the
// cache is full the least recently used entry is evicted first.
func (c *Cache) Set(key string, exists bool, setID int64) {
	now := c.clk.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*cacheItem).entry = Entry{Exists: exists, SetID: setID, CachedAt: now}
		c.order.MoveToBack(el)
		return
	}

	if c.maxSize > 0 && len(c.items) >= c.maxSize {
		if oldest := c.order.Front(); oldest != nil {
			c.removeLocked(oldest)
			c.evictions++
		}
	}

	item := &cacheItem{key: key, entry: Entry{Exists: exists, SetID: setID, CachedAt: now}}
	c.items[key] = c.order.PushBack(item)
}

// Invalidate removes the entry for key, reporting whether it was present.
func (c *Cache) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeLocked(el)
	return true
}

// SweepExpired removes every expired entry and returns how many were dropped.
func (c *Cache) SweepExpired() int {
	now := c.clk.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if now.Sub(el.Value.(*cacheItem).entry.CachedAt) > c.ttl {
			c.removeLocked(el)
			removed++
		}
		el = next
	}
	return removed
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Size:      len(c.items),
		MaxSize:   c.maxSize,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

func (c *Cache) removeLocked(el *list.Element) {
	item := el.Value.(*cacheItem)
	c.order.Remove(el)
	delete(c.items, item.key)
}

// RunSweeper periodically reclaims expired entries until ctx is done.
func (c *Cache) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := c.SweepExpired()
			stats := c.Stats()
			logger.Cache.Info("sweep finished",
				slog.String("event", "cache.sweep"),
				slog.Int("removed", removed),
				slog.Int("size", stats.Size),
				slog.Uint64("hits", stats.Hits),
				slog.Uint64("misses", stats.Misses),
				slog.Uint64("evictions", stats.Evictions),
			)
		}
	}
}
