package config

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"botadmin/internal/domain"
)

// DefaultTTL bounds how stale a served config can be. Matches the original
// five-minute admin cache window.
const DefaultTTL = 300 * time.Second

// Invalidator removes one task's cache entry. It is the standalone hook
// shared by the put path and administrative tooling; implementations must
// be idempotent.
type Invalidator func(taskName string) error

// Cache is a read-through, time-bounded copy of the store. It never serves
// an entry past its TTL and never caches absence: freshness wins over
// availability.
type Cache struct {
	store Store
	items *ttlcache.Cache[string, domain.TaskConfig]

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewCache(store Store, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	items := ttlcache.New[string, domain.TaskConfig](
		ttlcache.WithTTL[string, domain.TaskConfig](ttl),
		ttlcache.WithDisableTouchOnHit[string, domain.TaskConfig](),
	)
	return &Cache{
		store: store,
		items: items,
		locks: make(map[string]*sync.Mutex),
	}
}

// Read returns the cached config when the entry is unexpired, otherwise
// refetches from the store and repopulates with a fresh TTL. Population is
// serialized per key against Invalidate, so a read that starts after an
// invalidation completes can never resurrect the pre-invalidation value.
func (c *Cache) Read(ctx context.Context, taskName string) (domain.TaskConfig, error) {
	if item := c.items.Get(taskName); item != nil {
		return item.Value(), nil
	}

	lock := c.keyLock(taskName)
	lock.Lock()
	defer lock.Unlock()

	if item := c.items.Get(taskName); item != nil {
		return item.Value(), nil
	}

	tc, err := c.store.Get(ctx, taskName)
	if err != nil {
		// ErrNotFound is deliberately not cached; StoreUnavailableError
		// propagates rather than serving anything stale.
		return domain.TaskConfig{}, err
	}
	c.items.Set(taskName, tc, ttlcache.DefaultTTL)
	return tc, nil
}

// Invalidate removes the entry for the task name. No-op when absent.
func (c *Cache) Invalidate(taskName string) {
	lock := c.keyLock(taskName)
	lock.Lock()
	defer lock.Unlock()
	c.items.Delete(taskName)
}

// Len reports the number of live entries; used by tests and the health
// endpoint.
func (c *Cache) Len() int { return c.items.Len() }

func (c *Cache) keyLock(taskName string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[taskName]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[taskName] = lock
	}
	return lock
}
