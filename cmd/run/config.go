package run

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bimview/xray/pkg/geomcache"
	"github.com/bimview/xray/pkg/geometry"
	"github.com/bimview/xray/pkg/scheduler"
	"github.com/bimview/xray/pkg/storage"
)

type DatastoreConfig struct {
	// URI is the uri of the migrated sqlite model store (e.g. 'file:model.db').
	URI string

	// MaxOpenConns is the maximum number of open connections to the database.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of connections to the datastore in the idle connection
	// pool.
	MaxIdleConns int

	// ConnMaxIdleTime is the maximum amount of time a connection to the datastore may be idle.
	ConnMaxIdleTime time.Duration

	// ConnMaxLifetime is the maximum amount of time a connection to the datastore may be reused.
	ConnMaxLifetime time.Duration

	// MaxConcurrentReads bounds the geometry reads in flight against the store.
	MaxConcurrentReads uint32

	// DecodeConcurrency is the number of goroutines decoding mesh blobs of one read.
	DecodeConcurrency int

	// MaxCacheSize is the number of storey children lists kept in memory.
	MaxCacheSize int64

	// CacheTTL is how long a cached storey listing or children list is served.
	CacheTTL time.Duration

	// Metrics is configuration for the Datastore metrics.
	Metrics DatastoreMetricsConfig
}

type DatastoreMetricsConfig struct {
	// Enabled enables export of the Datastore metrics.
	Enabled bool
}

// GeometryCacheConfig configures the in-memory cache of extracted item geometry.
type GeometryCacheConfig struct {
	MaxSize int
	Expiry  time.Duration
}

type PipelineConfig struct {
	// Enabled shows the outlines as soon as they are ready.
	Enabled bool

	// Focus is the id of the storey built first and shown alone. Empty means none.
	Focus string

	// EdgeThresholdDegrees is the crease angle above which an edge is outlined.
	EdgeThresholdDegrees float64

	// IdleHost runs units on the frame loop idle slots instead of deferred callbacks.
	IdleHost bool

	FrameInterval time.Duration
	IdleTimeout   time.Duration
	DeferredDelay time.Duration

	// ProgressInterval is how often progress is logged while the run lasts.
	ProgressInterval time.Duration
}

// FocusGroup returns the parsed focus storey.
func (p PipelineConfig) FocusGroup() (storage.GroupKey, bool) {
	if p.Focus == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(p.Focus, 10, 64)
	if err != nil {
		return 0, false
	}
	return storage.GroupKey(id), true
}

type LogConfig struct {
	// Format is the log format to use in the log output (e.g. 'text' or 'json')
	Format string

	// Level is the log level to use in the log output (e.g. 'none', 'debug', or 'info')
	Level string
}

type OTLPTraceConfig struct {
	Endpoint string
	Insecure bool
}

type TraceConfig struct {
	Enabled     bool
	OTLP        OTLPTraceConfig `mapstructure:"otlp"`
	SampleRatio float64
	ServiceName string
}

// MetricsConfig defines configurations for serving custom metrics from the run.
type MetricsConfig struct {
	Enabled bool
	Addr    string
}

type Config struct {
	Datastore     DatastoreConfig
	GeometryCache GeometryCacheConfig
	Pipeline      PipelineConfig
	Log           LogConfig
	Trace         TraceConfig
	Metrics       MetricsConfig
}

// DefaultConfig is the default configuration of the run command.
func DefaultConfig() *Config {
	return &Config{
		Datastore: DatastoreConfig{
			MaxOpenConns:       10,
			MaxIdleConns:       10,
			MaxConcurrentReads: 4,
			DecodeConcurrency:  4,
			MaxCacheSize:       10000,
			CacheTTL:           time.Minute,
		},
		GeometryCache: GeometryCacheConfig{
			MaxSize: geomcache.DefaultMaxSize,
			Expiry:  geomcache.DefaultExpiry,
		},
		Pipeline: PipelineConfig{
			EdgeThresholdDegrees: geometry.DefaultEdgeThresholdDegrees,
			IdleHost:             true,
			FrameInterval:        scheduler.DefaultFrameInterval,
			IdleTimeout:          scheduler.DefaultIdleTimeout,
			DeferredDelay:        scheduler.MaxDeferredDelay,
			ProgressInterval:     time.Second,
		},
		Log: LogConfig{
			Format: "text",
			Level:  "info",
		},
		Trace: TraceConfig{
			Enabled: false,
			OTLP: OTLPTraceConfig{
				Endpoint: "0.0.0.0:4317",
				Insecure: true,
			},
			SampleRatio: 0.2,
			ServiceName: "xray",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "0.0.0.0:2112",
		},
	}
}

// Verify returns the first invalid setting of cfg.
func (cfg *Config) Verify() error {
	if cfg.Datastore.URI == "" {
		return errors.New("config 'datastore.uri' is required")
	}

	if cfg.Datastore.MaxConcurrentReads == 0 {
		return errors.New("config 'datastore.maxConcurrentReads' must be greater than zero")
	}

	if cfg.GeometryCache.MaxSize <= 0 {
		return fmt.Errorf("config 'geometryCache.maxSize' must be greater than zero, got %d", cfg.GeometryCache.MaxSize)
	}

	if cfg.GeometryCache.Expiry <= 0 {
		return errors.New("config 'geometryCache.expiry' must be greater than zero")
	}

	if cfg.Pipeline.Focus != "" {
		if _, err := strconv.ParseInt(cfg.Pipeline.Focus, 10, 64); err != nil {
			return fmt.Errorf("config 'pipeline.focus' must be a storey id: %w", err)
		}
	}

	if cfg.Pipeline.EdgeThresholdDegrees < 0 || cfg.Pipeline.EdgeThresholdDegrees > 180 {
		return fmt.Errorf("config 'pipeline.edgeThresholdDegrees' must be within [0, 180], got %v", cfg.Pipeline.EdgeThresholdDegrees)
	}

	if cfg.Pipeline.DeferredDelay < 0 || cfg.Pipeline.DeferredDelay > scheduler.MaxDeferredDelay {
		return fmt.Errorf("config 'pipeline.deferredDelay' must be within [0, %s]", scheduler.MaxDeferredDelay)
	}

	if cfg.Pipeline.FrameInterval <= 0 {
		return errors.New("config 'pipeline.frameInterval' must be greater than zero")
	}

	if cfg.Pipeline.ProgressInterval <= 0 {
		return errors.New("config 'pipeline.progressInterval' must be greater than zero")
	}

	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return fmt.Errorf("config 'log.format' must be one of ['text', 'json']")
	}

	if cfg.Log.Level != "none" &&
		cfg.Log.Level != "debug" &&
		cfg.Log.Level != "info" &&
		cfg.Log.Level != "warn" &&
		cfg.Log.Level != "error" {
		return fmt.Errorf(
			"config 'log.level' must be one of ['none', 'debug', 'info', 'warn', 'error']",
		)
	}

	if cfg.Trace.SampleRatio < 0 || cfg.Trace.SampleRatio > 1 {
		return fmt.Errorf("config 'trace.sampleRatio' must be within [0, 1]")
	}

	return nil
}
