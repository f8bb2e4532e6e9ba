package cache

import (
	"sync"
	"time"
)

// sweep when the map grows past this many live entries; keeps a
// long-running process from accumulating expired one-time codes
const sweepThreshold = 4096

// Cache is an in-process map with a fixed TTL per entry. It backs the
// one-time-code replay guard, where entries only need to outlive the
// code's validity window on a single process.
type Cache struct {
	mu  sync.RWMutex
	ttl time.Duration
	m   map[string]entry
}

type entry struct {
	val any
	exp time.Time
}

func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}

	return &Cache{
		ttl: ttl,
		m:   make(map[string]entry),
	}
}

func (c *Cache) Get(key string) (any, bool) {
	now := time.Now()

	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if now.After(e.exp) {
		c.mu.Lock()
		delete(c.m, key)
		c.mu.Unlock()
		return nil, false
	}

	return e.val, true
}

func (c *Cache) Set(key string, val any) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.m) >= sweepThreshold {
		for k, e := range c.m {
			if now.After(e.exp) {
				delete(c.m, k)
			}
		}
	}

	c.m[key] = entry{val: val, exp: now.Add(c.ttl)}
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.m, key)
	c.mu.Unlock()
}

func (c *Cache) Clear() {
	c.mu.Lock()
	c.m = make(map[string]entry)
	c.mu.Unlock()
}
