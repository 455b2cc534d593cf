// Package cache provides the content-addressed result cache: a process-local
// mapping from text fingerprint to a prior analysis result, bounded both by
// TTL and by entry count (LRU).
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/paperbridge/paperbridge/schemas"
)

const defaultCleanupInterval = 30 * time.Second

type entry struct {
	key       string
	result    schemas.AnalysisResult
	expiresAt int64 // unix nanos
}

// Cache is an in-memory TTL cache with an LRU bound on entry count. Get and
// Put are the whole contract, so a distributed backing store can be swapped
// in later without touching callers.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List // front = most recently used, values are *entry

	ttl        time.Duration
	maxEntries int

	stopCh   chan struct{}
	stopOnce sync.Once
	janitor  sync.WaitGroup
}

// New creates a cache whose entries expire ttl after write. maxEntries <= 0
// means no count bound; cleanupInterval <= 0 uses a 30s default.
func New(ttl time.Duration, maxEntries int, cleanupInterval time.Duration) *Cache {
	if cleanupInterval <= 0 {
		cleanupInterval = defaultCleanupInterval
	}

	c := &Cache{
		entries:    make(map[string]*list.Element),
		lru:        list.New(),
		ttl:        ttl,
		maxEntries: maxEntries,
		stopCh:     make(chan struct{}),
	}

	c.janitor.Add(1)
	go c.cleanupLoop(cleanupInterval)

	return c
}

// Get returns the cached result for key, refreshing its recency. Expired
// entries are treated as absent and dropped.
func (c *Cache) Get(key string) (schemas.AnalysisResult, bool) {
	now := time.Now().UnixNano()

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	if now >= e.expiresAt {
		c.removeLocked(el)
		return nil, false
	}
	c.lru.MoveToFront(el)
	return e.result, true
}

// Put stores result under key with the cache's TTL, evicting the least
// recently used entries if the count bound is exceeded.
func (c *Cache) Put(key string, result schemas.AnalysisResult) {
	expiresAt := time.Now().Add(c.ttl).UnixNano()

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		e := el.Value.(*entry)
		e.result = result
		e.expiresAt = expiresAt
		c.lru.MoveToFront(el)
		return
	}

	el := c.lru.PushFront(&entry{key: key, result: result, expiresAt: expiresAt})
	c.entries[key] = el

	if c.maxEntries > 0 {
		for c.lru.Len() > c.maxEntries {
			c.removeLocked(c.lru.Back())
		}
	}
}

// Len returns the current entry count, expired entries included until the
// janitor or a Get drops them.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Close stops the background janitor. The cache remains usable.
func (c *Cache) Close() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.janitor.Wait()
}

func (c *Cache) removeLocked(el *list.Element) {
	if el == nil {
		return
	}
	e := el.Value.(*entry)
	c.lru.Remove(el)
	delete(c.entries, e.key)
}

func (c *Cache) cleanupLoop(interval time.Duration) {
	defer c.janitor.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Cache) removeExpired() {
	now := time.Now().UnixNano()

	c.mu.Lock()
	defer c.mu.Unlock()

	var next *list.Element
	for el := c.lru.Front(); el != nil; el = next {
		next = el.Next()
		if now >= el.Value.(*entry).expiresAt {
			c.removeLocked(el)
		}
	}
}
