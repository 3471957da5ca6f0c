package store

import (
	"context"
	"sync"
)

// CachedArtifacts wraps an ArtifactStore with an in-memory LRU of payloads.
// Artifacts are write-once, so a cached payload never goes stale.
type CachedArtifacts struct {
	inner ArtifactStore
	cache *lruCache
}

// NewCachedArtifacts creates a cache decorator around an artifact store.
func NewCachedArtifacts(inner ArtifactStore, maxEntries int) *CachedArtifacts {
	return &CachedArtifacts{
		inner: inner,
		cache: newLRUCache(maxEntries),
	}
}

func (c *CachedArtifacts) Exists(ctx context.Context, key string) (bool, error) {
	if _, ok := c.cache.get(key); ok {
		return true, nil
	}
	return c.inner.Exists(ctx, key)
}

func (c *CachedArtifacts) Write(ctx context.Context, key string, payload []byte) (bool, error) {
	created, err := c.inner.Write(ctx, key, payload)
	if err != nil {
		return false, err
	}
	// Only cache what this call wrote; an existing artifact may differ.
	if created {
		c.cache.put(key, payload)
	}
	return created, nil
}

func (c *CachedArtifacts) Read(ctx context.Context, key string) ([]byte, error) {
	if payload, ok := c.cache.get(key); ok {
		return payload, nil
	}
	payload, err := c.inner.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	c.cache.put(key, payload)
	return payload, nil
}

// lruCache is a simple thread-safe LRU cache of artifact payloads.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value []byte
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
