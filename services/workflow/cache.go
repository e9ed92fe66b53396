package workflow

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/upb/workflow-runner/models"
)

type cacheEntry struct {
	workflow   *models.Workflow
	insertedAt time.Time
	element    *list.Element
}

func (e *cacheEntry) isExpired(ttl time.Duration) bool {
	return time.Since(e.insertedAt) > ttl
}

// Cache is an in-memory LRU cache with TTL for workflows, keyed by id.
// Entries are copies so callers cannot mutate cached state.
type Cache struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*cacheEntry
	lruList *list.List
	maxSize int
	ttl     time.Duration
	hits    uint64
	misses  uint64
}

// NewCache creates a new Cache with the given max size and TTL
func NewCache(maxSize int, ttl time.Duration) *Cache {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Cache{
		entries: make(map[uuid.UUID]*cacheEntry),
		lruList: list.New(),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// Get returns a cached workflow, or nil when absent or expired
func (c *Cache) Get(id uuid.UUID) *models.Workflow {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[id]
	if !exists || entry.isExpired(c.ttl) {
		c.misses++
		if exists {
			c.removeEntry(id)
		}
		return nil
	}

	c.lruList.MoveToFront(entry.element)
	c.hits++
	return clone(entry.workflow)
}

// Set stores a workflow
func (c *Cache) Set(wf *models.Workflow) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.entries[wf.ID]; exists {
		entry.workflow = clone(wf)
		entry.insertedAt = time.Now()
		c.lruList.MoveToFront(entry.element)
		return
	}

	if c.lruList.Len() >= c.maxSize {
		c.evictLRU()
	}

	entry := &cacheEntry{workflow: clone(wf), insertedAt: time.Now()}
	entry.element = c.lruList.PushFront(wf.ID)
	c.entries[wf.ID] = entry
}

// Invalidate removes a workflow from the cache
func (c *Cache) Invalidate(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeEntry(id)
}

// Stats returns cache statistics
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{
		Size:    c.lruList.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}

// CacheStats represents cache statistics
type CacheStats struct {
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// CleanupExpired removes all expired entries and returns how many were removed
func (c *Cache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for id, entry := range c.entries {
		if entry.isExpired(c.ttl) {
			c.removeEntry(id)
			removed++
		}
	}
	return removed
}

// RunCleanup removes expired entries every interval until ctx is done.
// A non-positive interval disables the sweep.
func (c *Cache) RunCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.CleanupExpired()
		case <-ctx.Done():
			return
		}
	}
}

// removeEntry must be called with the lock held
func (c *Cache) removeEntry(id uuid.UUID) {
	if entry, exists := c.entries[id]; exists {
		c.lruList.Remove(entry.element)
		delete(c.entries, id)
	}
}

// evictLRU must be called with the lock held
func (c *Cache) evictLRU() {
	back := c.lruList.Back()
	if back == nil {
		return
	}
	id := back.Value.(uuid.UUID)
	c.lruList.Remove(back)
	delete(c.entries, id)
}

func clone(wf *models.Workflow) *models.Workflow {
	cp := *wf
	cp.Steps = append([]string(nil), wf.Steps...)
	return &cp
}
