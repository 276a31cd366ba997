package memorycache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/hayashida/kengen/pkg/cache"
)

// defaultItemCost is the per-entry overhead assumed when no cost
// function is configured: map slot, list element and bookkeeping.
const defaultItemCost = 100

// item is one cached entry. Cost is the estimated memory footprint in
// bytes, charged against the configured budget.
type item struct {
	key       string
	value     interface{}
	expiresAt time.Time
	cost      int64
}

// Cache is an LRU cache with per-entry TTL and a byte budget. Reads
// promote entries; inserts evict from the cold end until the budget
// holds. It implements cache.Cache.
type Cache struct {
	mu sync.Mutex

	entries map[string]*list.Element
	lru     *list.List // front = hottest, back = next to evict

	budget int64
	ttl    time.Duration
	costOf func(value interface{}) int64

	used int64

	stats *counters
}

type counters struct {
	hits        uint64
	misses      uint64
	keysAdded   uint64
	keysEvicted uint64
}

// Config holds configuration for the memory cache.
type Config struct {
	// MaxSizeBytes is the cache's memory budget. Inserting past it
	// evicts least recently used entries until the budget holds.
	MaxSizeBytes int64

	// DefaultTTL is the time-to-live applied when Set is called with a
	// zero TTL.
	DefaultTTL time.Duration

	// CostOf estimates the memory footprint of a value in bytes. When
	// nil every entry is charged a flat overhead plus its key length,
	// which undercounts large resolution payloads.
	CostOf func(value interface{}) int64

	// EnableMetrics enables hit/miss/eviction counters.
	EnableMetrics bool
}

// New creates a memory cache with the given configuration.
func New(config *Config) (*Cache, error) {
	c := &Cache{
		entries: make(map[string]*list.Element),
		lru:     list.New(),
		budget:  config.MaxSizeBytes,
		ttl:     config.DefaultTTL,
		costOf:  config.CostOf,
	}

	if config.EnableMetrics {
		c.stats = &counters{}
	}

	return c, nil
}

// Get retrieves a value. A hit promotes the entry to the hot end; an
// expired entry is dropped and reported as a miss.
func (c *Cache) Get(ctx context.Context, key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.entries[key]
	if !exists {
		if c.stats != nil {
			c.stats.misses++
		}
		return nil, false
	}

	it := elem.Value.(*item)
	if time.Now().After(it.expiresAt) {
		c.removeElement(elem)
		if c.stats != nil {
			c.stats.misses++
		}
		return nil, false
	}

	c.lru.MoveToFront(elem)
	if c.stats != nil {
		c.stats.hits++
	}
	return it.value, true
}

// Set stores a value under the given TTL (the default TTL when zero)
// and evicts cold entries until the budget holds again.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		ttl = c.ttl
	}
	cost := c.entryCost(key, value)

	if elem, exists := c.entries[key]; exists {
		it := elem.Value.(*item)
		c.used += cost - it.cost
		it.value = value
		it.expiresAt = time.Now().Add(ttl)
		it.cost = cost
		c.lru.MoveToFront(elem)
		c.evictOverBudget()
		return nil
	}

	elem := c.lru.PushFront(&item{
		key:       key,
		value:     value,
		expiresAt: time.Now().Add(ttl),
		cost:      cost,
	})
	c.entries[key] = elem
	c.used += cost

	if c.stats != nil {
		c.stats.keysAdded++
	}

	c.evictOverBudget()
	return nil
}

// Delete removes a value from cache.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.entries[key]; exists {
		c.removeElement(elem)
	}

	return nil
}

// Clear removes all entries from cache.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.lru.Init()
	c.used = 0

	return nil
}

// Close releases resources (no-op for memory cache).
func (c *Cache) Close() error {
	return nil
}

// Metrics returns cache statistics.
func (c *Cache) Metrics() *cache.Metrics {
	if c.stats == nil {
		return &cache.Metrics{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return &cache.Metrics{
		Hits:        c.stats.hits,
		Misses:      c.stats.misses,
		KeysAdded:   c.stats.keysAdded,
		KeysEvicted: c.stats.keysEvicted,
	}
}

// ResetMetrics resets cache statistics.
func (c *Cache) ResetMetrics() {
	if c.stats == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	*c.stats = counters{}
}

// entryCost charges the configured estimator plus key overhead, or the
// flat fallback when no estimator is set.
func (c *Cache) entryCost(key string, value interface{}) int64 {
	cost := int64(defaultItemCost + len(key))
	if c.costOf != nil {
		cost += c.costOf(value)
	}
	return cost
}

// evictOverBudget drops cold entries until the budget holds. Must be
// called with the lock held.
func (c *Cache) evictOverBudget() {
	for c.used > c.budget && c.lru.Len() > 0 {
		coldest := c.lru.Back()
		if coldest == nil {
			return
		}
		c.removeElement(coldest)
		if c.stats != nil {
			c.stats.keysEvicted++
		}
	}
}

// removeElement removes an element. Must be called with the lock held.
func (c *Cache) removeElement(elem *list.Element) {
	c.lru.Remove(elem)
	it := elem.Value.(*item)
	delete(c.entries, it.key)
	c.used -= it.cost
}

// Len returns the current number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Size returns the current charged cost in bytes.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}
