package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/hayashida/kengen/pkg/cache"
)

// sizedCache is implemented by caches that can report their live entry
// count and charged byte cost, such as the in-memory resolution cache.
type sizedCache interface {
	Len() int
	Size() int64
}

// Collector aggregates request counters per route and snapshots the
// resolution cache's statistics. It is the single in-process source the
// Prometheus exporter reads from.
type Collector struct {
	requests  sync.Map // route -> *uint64
	errors    sync.Map // route -> *uint64, 5xx responses only
	durations sync.Map // route -> *durationTotal

	// Resolution cache, set when caching is enabled
	cache cache.Cache
}

// durationTotal accumulates request time for one route.
type durationTotal struct {
	mu           sync.Mutex
	totalSeconds float64
}

// CacheMetrics is a point-in-time snapshot of the resolution cache.
type CacheMetrics struct {
	Hits        uint64
	Misses      uint64
	HitRate     float64
	KeysCurrent int64
	MemoryBytes int64
	Evictions   uint64
}

// APIMetrics is a point-in-time snapshot of the HTTP counters.
type APIMetrics struct {
	RequestCounts        map[string]uint64
	ErrorCounts          map[string]uint64
	TotalDurationSeconds map[string]float64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{}
}

// SetCache registers the resolution cache so its statistics appear in
// cache snapshots.
func (c *Collector) SetCache(cache cache.Cache) {
	c.cache = cache
}

// RecordRequest counts one request against a route.
func (c *Collector) RecordRequest(route string) {
	atomic.AddUint64(c.counter(&c.requests, route), 1)
}

// RecordError counts one server-error response against a route.
func (c *Collector) RecordError(route string) {
	atomic.AddUint64(c.counter(&c.errors, route), 1)
}

// RecordDuration adds a request's wall time to a route's total.
func (c *Collector) RecordDuration(route string, durationSeconds float64) {
	val, _ := c.durations.LoadOrStore(route, &durationTotal{})
	total := val.(*durationTotal)

	total.mu.Lock()
	total.totalSeconds += durationSeconds
	total.mu.Unlock()
}

// GetCacheMetrics snapshots the resolution cache. Without a registered
// cache every field is zero.
func (c *Collector) GetCacheMetrics() *CacheMetrics {
	if c.cache == nil {
		return &CacheMetrics{}
	}

	stats := c.cache.Metrics()
	if stats == nil {
		return &CacheMetrics{}
	}

	snapshot := &CacheMetrics{
		Hits:      stats.Hits,
		Misses:    stats.Misses,
		HitRate:   stats.HitRate(),
		Evictions: stats.KeysEvicted,
	}

	if sized, ok := c.cache.(sizedCache); ok {
		snapshot.KeysCurrent = int64(sized.Len())
		snapshot.MemoryBytes = sized.Size()
	}

	return snapshot
}

// GetAPIMetrics snapshots the per-route HTTP counters.
func (c *Collector) GetAPIMetrics() *APIMetrics {
	snapshot := &APIMetrics{
		RequestCounts:        make(map[string]uint64),
		ErrorCounts:          make(map[string]uint64),
		TotalDurationSeconds: make(map[string]float64),
	}

	c.requests.Range(func(key, value interface{}) bool {
		snapshot.RequestCounts[key.(string)] = atomic.LoadUint64(value.(*uint64))
		return true
	})
	c.errors.Range(func(key, value interface{}) bool {
		snapshot.ErrorCounts[key.(string)] = atomic.LoadUint64(value.(*uint64))
		return true
	})
	c.durations.Range(func(key, value interface{}) bool {
		total := value.(*durationTotal)
		total.mu.Lock()
		snapshot.TotalDurationSeconds[key.(string)] = total.totalSeconds
		total.mu.Unlock()
		return true
	})

	return snapshot
}

func (c *Collector) counter(m *sync.Map, route string) *uint64 {
	val, _ := m.LoadOrStore(route, new(uint64))
	return val.(*uint64)
}
