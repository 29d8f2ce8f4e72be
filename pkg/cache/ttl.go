// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package cache provides small bounded memoization caches for read paths.
package cache

import (
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// TTL is a capacity-bounded cache whose entries expire after a fixed age.
// When full, expired entries are purged first, then the entry closest to
// expiry is evicted.
type TTL[V any] struct {
	mu       sync.Mutex
	items    *gocache.Cache
	capacity int
	maxAge   time.Duration
	// gen counts invalidations; a load that overlaps one is not stored.
	gen uint64
}

// New creates a cache holding at most capacity entries for maxAge each.
func New[V any](capacity int, maxAge time.Duration) *TTL[V] {
	if capacity < 1 {
		capacity = 1
	}
	return &TTL[V]{
		items:    gocache.New(maxAge, 2*maxAge),
		capacity: capacity,
		maxAge:   maxAge,
	}
}

// Get returns a live entry.
func (c *TTL[V]) Get(key string) (V, bool) {
	v, ok := c.items.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	return v.(V), true
}

// Set stores value under key, evicting if the cache is full.
func (c *TTL[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value)
}

func (c *TTL[V]) setLocked(key string, value V) {
	if _, exists := c.items.Get(key); !exists && c.items.ItemCount() >= c.capacity {
		c.items.DeleteExpired()
		if c.items.ItemCount() >= c.capacity {
			c.evictOldest()
		}
	}
	c.items.Set(key, value, gocache.DefaultExpiration)
}

func (c *TTL[V]) evictOldest() {
	var (
		oldestKey string
		oldestExp int64
	)
	for k, item := range c.items.Items() {
		if oldestKey == "" || item.Expiration < oldestExp {
			oldestKey, oldestExp = k, item.Expiration
		}
	}
	if oldestKey != "" {
		c.items.Delete(oldestKey)
	}
}

// GetOrLoad returns the cached value or stores the result of load.
// Errors are not cached, and neither is a result loaded while an entry was
// invalidated, since it may predate the write behind the invalidation.
func (c *TTL[V]) GetOrLoad(key string, load func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	v, err := load()
	if err != nil {
		return v, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen {
		c.setLocked(key, v)
	}
	return v, nil
}

// Delete removes one entry.
func (c *TTL[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.items.Delete(key)
}

// DeletePrefix removes every entry whose key starts with prefix.
func (c *TTL[V]) DeletePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	for k := range c.items.Items() {
		if strings.HasPrefix(k, prefix) {
			c.items.Delete(k)
		}
	}
}

// Len returns the number of stored entries, including ones not yet purged.
func (c *TTL[V]) Len() int {
	return c.items.ItemCount()
}
