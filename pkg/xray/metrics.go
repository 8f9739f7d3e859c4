package xray

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"

	"github.com/bimview/xray/internal/build"
)

var (
	tracer = otel.Tracer("xray/pkg/xray")

	unitsProcessedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "units_processed_count",
		Help:      "The total number of work units processed by the ambient drain.",
	})

	unitFailuresCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "unit_failures_count",
		Help:      "The total number of work units whose extraction failed or panicked.",
	})

	wireframesReadyCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "wireframes_ready_count",
		Help:      "The total number of storey wireframes that became ready.",
	}, []string{"source"})

	aggregateBuildDurationHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace:                       build.ProjectName,
		Name:                            "aggregate_build_duration_ms",
		Help:                            "Time spent merging and outlining one storey.",
		Buckets:                         []float64{1, 5, 10, 25, 50, 100, 250, 1000, 5000}, // milliseconds
		NativeHistogramBucketFactor:     1.1,
		NativeHistogramMaxBucketNumber:  100,
		NativeHistogramMinResetDuration: time.Hour,
	})
)

const (
	sourceDrain      = "drain"
	sourcePrioritize = "prioritize"
)
