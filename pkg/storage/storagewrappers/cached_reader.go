package storagewrappers

import (
	"context"
	"strconv"
	"time"

	"github.com/Yiling-J/theine-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/bimview/xray/internal/build"
	"github.com/bimview/xray/pkg/logger"
	"github.com/bimview/xray/pkg/storage"
)

var (
	tracer = otel.Tracer("xray/pkg/storagewrappers/cached_reader")

	_ storage.ModelReader = (*CachedModelReader)(nil)

	structureCacheTotalCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "structure_cache_total_count",
		Help:      "The total number of structure lookups served by the cached model reader.",
	}, []string{"operation"})

	structureCacheHitCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "structure_cache_hit_count",
		Help:      "The total number of structure lookups answered from cache.",
	}, []string{"operation"})
)

const storeysKey = -1

type CachedModelReaderOpt func(*CachedModelReader)

// WithCachedModelReaderLogger sets the logger for the CachedModelReader.
func WithCachedModelReaderLogger(logger logger.Logger) CachedModelReaderOpt {
	return func(c *CachedModelReader) {
		c.logger = logger
	}
}

// CachedModelReader is a wrapper over a model reader that caches storey
// listings and children lookups in memory. Geometry is never cached here.
type CachedModelReader struct {
	storage.ModelReader

	children *theine.Cache[storage.GroupKey, []storage.ItemKey]
	storeys  *theine.Cache[int, []storage.Storey]
	ttl      time.Duration
	sf       singleflight.Group
	logger   logger.Logger
}

// NewCachedModelReader returns a wrapper holding up to maxGroups children lists for ttl.
func NewCachedModelReader(
	inner storage.ModelReader,
	maxGroups int64,
	ttl time.Duration,
	opts ...CachedModelReaderOpt,
) (*CachedModelReader, error) {
	children, err := theine.NewBuilder[storage.GroupKey, []storage.ItemKey](maxGroups).Build()
	if err != nil {
		return nil, err
	}
	storeys, err := theine.NewBuilder[int, []storage.Storey](16).Build()
	if err != nil {
		children.Close()
		return nil, err
	}

	c := &CachedModelReader{
		ModelReader: inner,
		children:    children,
		storeys:     storeys,
		ttl:         ttl,
		logger:      logger.NewNoopLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Storeys see [storage.ModelReader].Storeys.
func (c *CachedModelReader) Storeys(ctx context.Context) ([]storage.Storey, error) {
	ctx, span := tracer.Start(ctx, "cache.Storeys")
	defer span.End()

	structureCacheTotalCounter.WithLabelValues("storeys").Inc()
	if v, ok := c.storeys.Get(storeysKey); ok {
		structureCacheHitCounter.WithLabelValues("storeys").Inc()
		span.SetAttributes(attribute.Bool("cached", true))
		return v, nil
	}

	v, err, _ := c.sf.Do("storeys", func() (interface{}, error) {
		storeys, err := c.ModelReader.Storeys(ctx)
		if err != nil {
			return nil, err
		}
		c.storeys.SetWithTTL(storeysKey, storeys, 1, c.ttl)
		return storeys, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]storage.Storey), nil
}

// ChildrenOf see [storage.ModelReader].ChildrenOf.
func (c *CachedModelReader) ChildrenOf(ctx context.Context, group storage.GroupKey) ([]storage.ItemKey, error) {
	ctx, span := tracer.Start(ctx, "cache.ChildrenOf")
	defer span.End()
	span.SetAttributes(attribute.Int64("group", int64(group)))

	structureCacheTotalCounter.WithLabelValues("children").Inc()
	if v, ok := c.children.Get(group); ok {
		structureCacheHitCounter.WithLabelValues("children").Inc()
		span.SetAttributes(attribute.Bool("cached", true))
		return v, nil
	}

	v, err, shared := c.sf.Do("children/"+strconv.FormatInt(int64(group), 10), func() (interface{}, error) {
		children, err := c.ModelReader.ChildrenOf(ctx, group)
		if err != nil {
			return nil, err
		}
		if !c.children.SetWithTTL(group, children, 1, c.ttl) {
			c.logger.Debug("children lookup not admitted to cache", zap.Int64("group", int64(group)))
		}
		return children, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		span.SetAttributes(attribute.Bool("shared", true))
	}
	return v.([]storage.ItemKey), nil
}

// Invalidate drops every cached lookup. Call it after the model is rewritten.
func (c *CachedModelReader) Invalidate() {
	c.storeys.Delete(storeysKey)
	c.children.Range(func(key storage.GroupKey, _ []storage.ItemKey) bool {
		c.children.Delete(key)
		return true
	})
}

// Close releases the cache resources.
func (c *CachedModelReader) Close() {
	c.children.Close()
	c.storeys.Close()
}
