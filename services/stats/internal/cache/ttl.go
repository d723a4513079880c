package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/example/streamd/services/stats/internal/watchstats"
)

type cacheItem struct {
	val       watchstats.UserStats
	expiresAt time.Time
}

// TTLCache is an in-memory Cache with per-entry expiry and optional NATS invalidation.
type TTLCache struct {
	mu    sync.RWMutex
	items map[string]cacheItem
	ttl   time.Duration
	now   func() time.Time
	sub   *nats.Subscription
}

// NewTTLCache creates a TTLCache and wires up NATS key-level invalidation when nc is non-nil.
func NewTTLCache(ttl time.Duration, nc *nats.Conn) (*TTLCache, error) {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	c := &TTLCache{
		items: make(map[string]cacheItem),
		ttl:   ttl,
		now:   time.Now,
	}
	if nc != nil {
		sub, err := nc.Subscribe(InvalidateSubject, func(m *nats.Msg) {
			c.invalidate(string(m.Data))
		})
		if err != nil {
			return nil, err
		}
		c.sub = sub
	}
	return c, nil
}

func (c *TTLCache) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key = strings.TrimSpace(key)
	if key == "" || strings.EqualFold(key, FlushAll) {
		c.items = make(map[string]cacheItem)
		return
	}
	delete(c.items, key)
}

func (c *TTLCache) Get(_ context.Context, key string) (watchstats.UserStats, bool, error) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return watchstats.UserStats{}, false, nil
	}
	if c.now().After(it.expiresAt) {
		c.mu.Lock()
		if cur, ok2 := c.items[key]; ok2 && c.now().After(cur.expiresAt) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return watchstats.UserStats{}, false, nil
	}
	return clone(it.val), true, nil
}

func (c *TTLCache) Set(_ context.Context, key string, v watchstats.UserStats) error {
	c.mu.Lock()
	c.items[key] = cacheItem{val: clone(v), expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

func (c *TTLCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
	return nil
}

func (c *TTLCache) Flush(context.Context) error {
	c.invalidate(FlushAll)
	return nil
}

// Sweep evicts every expired entry and returns how many were dropped.
func (c *TTLCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for k, it := range c.items {
		if now.After(it.expiresAt) {
			delete(c.items, k)
			n++
		}
	}
	return n
}

// Close drops the NATS subscription, if any.
func (c *TTLCache) Close() error {
	if c.sub == nil {
		return nil
	}
	return c.sub.Unsubscribe()
}
