// Package geomcache holds extracted item geometry in memory so repeated
// requests for the same item skip extraction.
package geomcache

import (
	"cmp"
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/bimview/xray/internal/build"
	"github.com/bimview/xray/pkg/geometry"
	"github.com/bimview/xray/pkg/logger"
	"github.com/bimview/xray/pkg/storage"
)

const (
	DefaultMaxSize = 1000
	DefaultExpiry  = 5 * time.Minute

	// evictFraction of the entries, oldest first, is dropped when the cache
	// is full and nothing has expired.
	evictFraction = 0.25
)

var (
	tracer = otel.Tracer("xray/pkg/geomcache")

	cacheHitCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "geometry_cache_hit_count",
		Help:      "The total number of geometry lookups answered from cache.",
	})

	cacheMissCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "geometry_cache_miss_count",
		Help:      "The total number of geometry lookups that required an extraction.",
	})

	cacheEvictionCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "geometry_cache_eviction_count",
		Help:      "The total number of geometry cache entries evicted.",
	}, []string{"reason"})
)

const (
	reasonExpired     = "expired"
	reasonCapacity    = "capacity"
	reasonInvalidated = "invalidated"
)

type entry struct {
	geometries []geometry.Extracted
	timestamp  time.Time
}

// orderKey orders entries by insertion time, ties broken by item.
type orderKey struct {
	ts   int64
	item storage.ItemKey
}

func compareOrderKeys(a, b interface{}) int {
	ka, kb := a.(orderKey), b.(orderKey)
	if c := cmp.Compare(ka.ts, kb.ts); c != 0 {
		return c
	}
	return cmp.Compare(ka.item, kb.item)
}

// Stats is a snapshot of the cache state.
type Stats struct {
	Entries   int
	Expired   int
	Valid     int
	MaxSize   int
	HitRate   float64
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

type Option func(*Cache)

// WithMaxSize sets the number of entries above which inserts evict.
func WithMaxSize(n int) Option {
	return func(c *Cache) {
		c.maxSize = n
	}
}

// WithExpiry sets how long an entry stays valid.
func WithExpiry(d time.Duration) Option {
	return func(c *Cache) {
		c.expiry = d
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithLogger sets the cache logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Cache) {
		c.logger = l
	}
}

// Cache maps items to their extracted geometry. Returned buffers are owned
// by the cache: callers must clone them before mutating, and must not
// release them.
type Cache struct {
	extractor Extractor
	maxSize   int
	expiry    time.Duration
	now       func() time.Time
	logger    logger.Logger
	sf        singleflight.Group

	mu        sync.Mutex
	entries   map[storage.ItemKey]*entry
	order     *redblacktree.Tree
	closed    bool
	hits      uint64
	misses    uint64
	evictions uint64
}

// New returns an empty Cache extracting through e.
func New(e Extractor, opts ...Option) *Cache {
	c := &Cache{
		extractor: e,
		maxSize:   DefaultMaxSize,
		expiry:    DefaultExpiry,
		now:       time.Now,
		logger:    logger.NewNoopLogger(),
		entries:   make(map[storage.ItemKey]*entry),
		order:     redblacktree.NewWith(compareOrderKeys),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Get returns the geometry of item, extracting it on a miss. Concurrent
// misses for the same item share one extraction. Items without geometry
// yield an empty result and are not cached.
func (c *Cache) Get(ctx context.Context, item storage.ItemKey) ([]geometry.Extracted, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, nil
	}
	if e := c.lookupLocked(item); e != nil {
		c.mu.Unlock()
		return e.geometries, nil
	}
	c.mu.Unlock()

	geoms, err := c.extractShared(ctx, item)
	if err != nil && isContextError(err) && ctx.Err() == nil {
		// joined a flight whose leader was cancelled
		geoms, err = c.extractShared(ctx, item)
	}
	if err != nil {
		c.logger.DebugWithContext(ctx, "geometry extraction failed",
			zap.Int64("item", int64(item)),
			zap.Error(err),
		)
		return nil, err
	}
	return geoms, nil
}

func (c *Cache) extractShared(ctx context.Context, item storage.ItemKey) ([]geometry.Extracted, error) {
	v, err, _ := c.sf.Do(strconv.FormatInt(int64(item), 10), func() (interface{}, error) {
		ctx, span := tracer.Start(ctx, "geomcache.extract")
		defer span.End()
		span.SetAttributes(attribute.Int64("item", int64(item)))

		res, err := c.extractor.Extract(ctx, []storage.ItemKey{item})
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		for k, geoms := range res {
			if k != item {
				geometry.ReleaseAll(geoms)
			}
		}
		return c.store(item, res[item]), nil
	})
	if err != nil {
		return nil, err
	}
	geoms, _ := v.([]geometry.Extracted)
	return geoms, nil
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// GetMany returns the geometry of every item it could obtain. Cached items
// are served directly; the rest are extracted in one batched call. Items
// that fail or have no geometry are absent from the result.
func (c *Cache) GetMany(ctx context.Context, items []storage.ItemKey) (map[storage.ItemKey][]geometry.Extracted, error) {
	out := make(map[storage.ItemKey][]geometry.Extracted, len(items))
	var missing []storage.ItemKey

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return out, nil
	}
	for _, item := range items {
		if e := c.lookupLocked(item); e != nil {
			out[item] = e.geometries
			continue
		}
		missing = append(missing, item)
	}
	c.mu.Unlock()

	if len(missing) == 0 {
		return out, nil
	}

	ctx, span := tracer.Start(ctx, "geomcache.extractMany")
	defer span.End()
	span.SetAttributes(
		attribute.Int("requested", len(items)),
		attribute.Int("missing", len(missing)),
	)

	res, err := c.extractor.Extract(ctx, missing)
	if err != nil {
		span.RecordError(err)
		c.logger.WarnWithContext(ctx, "batched geometry extraction failed",
			zap.Int("items", len(missing)),
			zap.Error(err),
		)
		return out, err
	}

	wanted := make(map[storage.ItemKey]struct{}, len(missing))
	for _, item := range missing {
		wanted[item] = struct{}{}
	}
	for item, geoms := range res {
		if _, ok := wanted[item]; !ok {
			geometry.ReleaseAll(geoms)
			continue
		}
		if stored := c.store(item, geoms); len(stored) > 0 {
			out[item] = stored
		}
	}

	return out, nil
}

// Preload warms the cache for items.
func (c *Cache) Preload(ctx context.Context, items []storage.ItemKey) error {
	_, err := c.GetMany(ctx, items)
	return err
}

// IsCached reports whether item has a valid entry. An expired entry found
// here is evicted.
func (c *Cache) IsCached(item storage.ItemKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[item]
	if !ok {
		return false
	}
	if c.expiredLocked(e) {
		c.evictLocked(item, reasonExpired)
		return false
	}
	return true
}

// Invalidate evicts item.
func (c *Cache) Invalidate(item storage.ItemKey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[item]; ok {
		c.evictLocked(item, reasonInvalidated)
	}
}

// Clear evicts every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearLocked()
}

// Stats returns a snapshot of the cache state.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Entries:   len(c.entries),
		MaxSize:   c.maxSize,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	for _, e := range c.entries {
		if c.expiredLocked(e) {
			s.Expired++
		}
	}
	s.Valid = s.Entries - s.Expired
	if s.Entries > 0 {
		s.HitRate = float64(s.Valid) / float64(s.Entries)
	}
	return s
}

// Close clears the cache. Later lookups return nothing and store nothing.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearLocked()
	c.closed = true
}

// store inserts geoms for item and returns what the cache now holds for it.
func (c *Cache) store(item storage.ItemKey, geoms []geometry.Extracted) []geometry.Extracted {
	if len(geoms) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return geoms
	}

	if existing, ok := c.entries[item]; ok {
		if !c.expiredLocked(existing) {
			// another extraction got there first
			geometry.ReleaseAll(geoms)
			return existing.geometries
		}
		c.evictLocked(item, reasonExpired)
	}

	if len(c.entries) >= c.maxSize {
		c.makeRoomLocked()
	}

	ts := c.now()
	c.entries[item] = &entry{geometries: geoms, timestamp: ts}
	c.order.Put(orderKey{ts: ts.UnixNano(), item: item}, nil)
	return geoms
}

// lookupLocked returns the valid entry for item, evicting it if expired.
func (c *Cache) lookupLocked(item storage.ItemKey) *entry {
	e, ok := c.entries[item]
	if ok && c.expiredLocked(e) {
		c.evictLocked(item, reasonExpired)
		ok = false
	}
	if !ok {
		c.misses++
		cacheMissCounter.Inc()
		return nil
	}
	c.hits++
	cacheHitCounter.Inc()
	return e
}

func (c *Cache) expiredLocked(e *entry) bool {
	return c.now().Sub(e.timestamp) >= c.expiry
}

// makeRoomLocked evicts every expired entry or, when none has expired, the
// oldest quarter of the cache. At least one entry is always evicted.
func (c *Cache) makeRoomLocked() {
	var expired []storage.ItemKey
	for item, e := range c.entries {
		if c.expiredLocked(e) {
			expired = append(expired, item)
		}
	}
	if len(expired) > 0 {
		for _, item := range expired {
			c.evictLocked(item, reasonExpired)
		}
		return
	}

	n := max(1, int(float64(len(c.entries))*evictFraction))
	victims := make([]storage.ItemKey, 0, n)
	it := c.order.Iterator()
	for len(victims) < n && it.Next() {
		victims = append(victims, it.Key().(orderKey).item)
	}
	for _, item := range victims {
		c.evictLocked(item, reasonCapacity)
	}
	c.logger.Debug("geometry cache full, evicted oldest entries", zap.Int("evicted", len(victims)))
}

func (c *Cache) evictLocked(item storage.ItemKey, reason string) {
	e, ok := c.entries[item]
	if !ok {
		return
	}
	geometry.ReleaseAll(e.geometries)
	delete(c.entries, item)
	c.order.Remove(orderKey{ts: e.timestamp.UnixNano(), item: item})
	c.evictions++
	cacheEvictionCounter.WithLabelValues(reason).Inc()
}

func (c *Cache) clearLocked() {
	for _, e := range c.entries {
		geometry.ReleaseAll(e.geometries)
	}
	clear(c.entries)
	c.order.Clear()
}
