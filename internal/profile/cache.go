package profile

import (
	"sync"
	"time"

	"lens-backend/internal/domain"
)

// Cache is a TTL cache of profiles keyed by user id.
type Cache struct {
	mu    sync.RWMutex
	items map[string]cacheItem
	ttl   time.Duration
	now   func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

type cacheItem struct {
	value     domain.Profile
	expiresAt time.Time
}

// NewCache creates a cache whose entries live for ttl. A non-positive ttl
// disables caching. Expired entries are swept every sweep interval until
// Close.
func NewCache(ttl, sweep time.Duration) *Cache {
	c := &Cache{
		items:  make(map[string]cacheItem),
		ttl:    ttl,
		now:    time.Now,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	if ttl > 0 && sweep > 0 {
		go c.cleanupExpired(sweep)
	} else {
		close(c.doneCh)
	}
	return c
}

// Get retrieves a live entry.
func (c *Cache) Get(id string) (domain.Profile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[id]
	if !ok || c.now().After(item.expiresAt) {
		return domain.Profile{}, false
	}
	return item.value, true
}

// Set stores p under its id.
func (c *Cache) Set(p domain.Profile) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[p.ID] = cacheItem{value: p, expiresAt: c.now().Add(c.ttl)}
}

// Delete evicts id.
func (c *Cache) Delete(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, id)
}

// Len counts entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close stops the sweeper.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.stopCh) })
	<-c.doneCh
}

func (c *Cache) cleanupExpired(every time.Duration) {
	defer close(c.doneCh)
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, item := range c.items {
		if now.After(item.expiresAt) {
			delete(c.items, key)
		}
	}
}
