package cache

import (
	"sync"
	"time"
)

// Entry is a cached lookup result. Missing marks a tombstone: the key was
// looked up and the source had nothing for it.
type Entry[V any] struct {
	Value     V
	Missing   bool
	Timestamp time.Time
}

// Store is keyed lookup with optional-presence semantics. Resolvers depend on
// this interface so a bounded implementation can replace Cache.
type Store[V any] interface {
	Get(key string) (Entry[V], bool)
	Set(key string, value V)
	Tombstone(key string)
	Size() int
}

// Cache provides thread-safe caching with tombstones and an optional TTL.
// A zero TTL keeps entries for the lifetime of the process.
type Cache[V any] struct {
	data   map[string]*Entry[V]
	mutex  sync.RWMutex
	ttl    time.Duration
	stopCh chan struct{}
	once   sync.Once
}

// New creates a new Cache instance with the specified TTL
func New[V any](ttl time.Duration) *Cache[V] {
	c := &Cache[V]{
		data:   make(map[string]*Entry[V]),
		ttl:    ttl,
		stopCh: make(chan struct{}),
	}

	if ttl > 0 {
		go c.cleanup()
	}

	return c
}

// Get returns the entry for key. ok is false when the key has never been
// stored or its entry expired.
func (c *Cache[V]) Get(key string) (Entry[V], bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, exists := c.data[key]
	if !exists {
		return Entry[V]{}, false
	}

	if c.expired(entry, time.Now()) {
		return Entry[V]{}, false
	}

	return *entry, true
}

// Set stores a value in the cache with the current timestamp
func (c *Cache[V]) Set(key string, value V) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.data[key] = &Entry[V]{
		Value:     value,
		Timestamp: time.Now(),
	}
}

// Tombstone records that key has no data
func (c *Cache[V]) Tombstone(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.data[key] = &Entry[V]{
		Missing:   true,
		Timestamp: time.Now(),
	}
}

// Delete removes a key from the cache
func (c *Cache[V]) Delete(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.data, key)
}

// Clear removes all entries from the cache
func (c *Cache[V]) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.data = make(map[string]*Entry[V])
}

// Size returns the number of entries in the cache, tombstones included
func (c *Cache[V]) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return len(c.data)
}

func (c *Cache[V]) expired(entry *Entry[V], now time.Time) bool {
	return c.ttl > 0 && now.Sub(entry.Timestamp) > c.ttl
}

// cleanup runs periodically to remove expired entries
func (c *Cache[V]) cleanup() {
	ticker := time.NewTicker(c.ttl)
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

// removeExpired removes all expired entries from the cache
func (c *Cache[V]) removeExpired() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := time.Now()
	for key, entry := range c.data {
		if c.expired(entry, now) {
			delete(c.data, key)
		}
	}
}

// Stop stops the cleanup goroutine
func (c *Cache[V]) Stop() {
	c.once.Do(func() { close(c.stopCh) })
}
