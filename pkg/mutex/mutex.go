package mutex

import (
	"sort"
	"sync"
	"time"
)

// RequestMutex provides per-key locking so that concurrent lookups for the
// same coin type or address reach the upstream source only once
type RequestMutex struct {
	mutexes    map[string]*mutexEntry
	mapMutex   sync.Mutex
	cleanupTTL time.Duration
	stopCh     chan struct{}
	stopOnce   sync.Once
}

// mutexEntry holds a mutex and its last access time for cleanup
type mutexEntry struct {
	mutex      *sync.Mutex
	lastAccess time.Time
}

// New creates a new RequestMutex. A positive cleanupTTL starts a goroutine
// that drops mutexes idle for longer than the TTL.
func New(cleanupTTL time.Duration) *RequestMutex {
	rm := &RequestMutex{
		mutexes:    make(map[string]*mutexEntry),
		cleanupTTL: cleanupTTL,
		stopCh:     make(chan struct{}),
	}

	if cleanupTTL > 0 {
		go rm.cleanup()
	}

	return rm
}

// GetMutex returns the mutex for key, creating one if it doesn't exist
func (rm *RequestMutex) GetMutex(key string) *sync.Mutex {
	rm.mapMutex.Lock()
	defer rm.mapMutex.Unlock()

	if entry, exists := rm.mutexes[key]; exists {
		entry.lastAccess = time.Now()
		return entry.mutex
	}

	newEntry := &mutexEntry{
		mutex:      &sync.Mutex{},
		lastAccess: time.Now(),
	}
	rm.mutexes[key] = newEntry

	return newEntry.mutex
}

// Lock locks the mutex for the given key
func (rm *RequestMutex) Lock(key string) {
	rm.GetMutex(key).Lock()
}

// Unlock unlocks the mutex for the given key
func (rm *RequestMutex) Unlock(key string) {
	rm.mapMutex.Lock()
	entry, exists := rm.mutexes[key]
	rm.mapMutex.Unlock()

	if exists {
		entry.mutex.Unlock()
	}
}

// LockAll locks every key in ascending order and returns a function that
// releases them. Sorted acquisition keeps overlapping batches deadlock free.
func (rm *RequestMutex) LockAll(keys []string) (unlock func()) {
	sorted := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		sorted = append(sorted, key)
	}
	sort.Strings(sorted)

	held := make([]*sync.Mutex, 0, len(sorted))
	for _, key := range sorted {
		m := rm.GetMutex(key)
		m.Lock()
		held = append(held, m)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

// Size returns the number of mutexes currently stored
func (rm *RequestMutex) Size() int {
	rm.mapMutex.Lock()
	defer rm.mapMutex.Unlock()
	return len(rm.mutexes)
}

// cleanup runs periodically to remove unused mutexes
func (rm *RequestMutex) cleanup() {
	ticker := time.NewTicker(rm.cleanupTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rm.removeUnused()
		case <-rm.stopCh:
			return
		}
	}
}

// removeUnused removes mutexes that haven't been accessed recently
func (rm *RequestMutex) removeUnused() {
	rm.mapMutex.Lock()
	defer rm.mapMutex.Unlock()

	now := time.Now()
	for key, entry := range rm.mutexes {
		// Only remove if mutex is not locked and hasn't been accessed recently
		if now.Sub(entry.lastAccess) > rm.cleanupTTL {
			if entry.mutex.TryLock() {
				entry.mutex.Unlock()
				delete(rm.mutexes, key)
			}
		}
	}
}

// Stop stops the cleanup goroutine
func (rm *RequestMutex) Stop() {
	rm.stopOnce.Do(func() { close(rm.stopCh) })
}
