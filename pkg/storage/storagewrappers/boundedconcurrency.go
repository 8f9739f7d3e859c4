package storagewrappers

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bimview/xray/internal/build"
	"github.com/bimview/xray/pkg/geometry"
	"github.com/bimview/xray/pkg/storage"
)

var _ storage.ModelReader = (*BoundedConcurrencyModelReader)(nil)

var (
	timeWaitingHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: build.ProjectName,
		Name:      "time_waiting_for_geometry_reads",
		Help:      "Time (in ms) spent waiting for GeometryOf calls to the datastore",
		Buckets:   []float64{1, 10, 25, 50, 100, 1000, 5000}, // milliseconds
	})
)

// BoundedConcurrencyModelReader makes sure that there are, at most, N
// concurrent GeometryOf calls to the wrapped reader. Mesh reads are the heavy
// ones; structure lookups pass straight through.
type BoundedConcurrencyModelReader struct {
	storage.ModelReader
	limiter chan struct{}
}

// NewBoundedConcurrencyModelReader returns a wrapper over a model reader that
// bounds concurrent geometry reads to n.
func NewBoundedConcurrencyModelReader(wrapped storage.ModelReader, n uint32) *BoundedConcurrencyModelReader {
	return &BoundedConcurrencyModelReader{
		ModelReader: wrapped,
		limiter:     make(chan struct{}, n),
	}
}

// GeometryOf see [storage.GeometryReader].GeometryOf.
func (b *BoundedConcurrencyModelReader) GeometryOf(ctx context.Context, items []storage.ItemKey) (map[storage.ItemKey][]geometry.MeshData, error) {
	start := time.Now()

	select {
	case b.limiter <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	timeWaiting := time.Since(start).Milliseconds()
	timeWaitingHistogram.Observe(float64(timeWaiting))
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.Int64("time_waiting", timeWaiting))

	defer func() {
		<-b.limiter
	}()

	return b.ModelReader.GeometryOf(ctx, items)
}
