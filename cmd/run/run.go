// Package run contains the command that builds the storey outlines of the
// model held by a sqlite model store.
package run

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/bimview/xray/pkg/geomcache"
	"github.com/bimview/xray/pkg/logger"
	"github.com/bimview/xray/pkg/scene"
	"github.com/bimview/xray/pkg/scheduler"
	"github.com/bimview/xray/pkg/storage"
	"github.com/bimview/xray/pkg/storage/sqlcommon"
	"github.com/bimview/xray/pkg/storage/sqlite"
	"github.com/bimview/xray/pkg/storage/storagewrappers"
	"github.com/bimview/xray/pkg/telemetry"
	"github.com/bimview/xray/pkg/xray"
)

func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build the storey outlines of the stored model",
		Long:  "Build the storey outlines of the model held by the sqlite model store, storey by storey, and report the result.",
		RunE:  run,
		Args:  cobra.NoArgs,
	}

	defaultConfig := DefaultConfig()
	flags := cmd.Flags()

	flags.String("datastore-uri", defaultConfig.Datastore.URI, "the uri of the migrated sqlite model store (e.g. 'file:model.db')")

	flags.Int("datastore-max-open-conns", defaultConfig.Datastore.MaxOpenConns, "the maximum number of open connections to the datastore")

	flags.Int("datastore-max-idle-conns", defaultConfig.Datastore.MaxIdleConns, "the maximum number of connections to the datastore in the idle connection pool")

	flags.Duration("datastore-conn-max-idle-time", defaultConfig.Datastore.ConnMaxIdleTime, "the maximum amount of time a connection to the datastore may be idle")

	flags.Duration("datastore-conn-max-lifetime", defaultConfig.Datastore.ConnMaxLifetime, "the maximum amount of time a connection to the datastore may be reused")

	flags.Uint32("datastore-max-concurrent-reads", defaultConfig.Datastore.MaxConcurrentReads, "the maximum number of geometry reads in flight against the datastore")

	flags.Int("datastore-decode-concurrency", defaultConfig.Datastore.DecodeConcurrency, "the number of goroutines decoding the meshes of one geometry read")

	flags.Int64("datastore-max-cache-size", defaultConfig.Datastore.MaxCacheSize, "the maximum number of storey children lists kept in memory")

	flags.Duration("datastore-cache-ttl", defaultConfig.Datastore.CacheTTL, "how long storey listings and children lists are served from memory")

	flags.Bool("datastore-metrics-enabled", defaultConfig.Datastore.Metrics.Enabled, "enable/disable sql connection pool metrics")

	flags.Int("geometry-cache-max-size", defaultConfig.GeometryCache.MaxSize, "the number of items whose geometry is kept in memory")

	flags.Duration("geometry-cache-expiry", defaultConfig.GeometryCache.Expiry, "how long extracted item geometry stays valid")

	flags.Bool("xray-enabled", defaultConfig.Pipeline.Enabled, "show the outlines as soon as they are ready")

	flags.String("focus", defaultConfig.Pipeline.Focus, "the id of the storey to build first and show alone")

	flags.Float64("edge-threshold-degrees", defaultConfig.Pipeline.EdgeThresholdDegrees, "the crease angle above which an edge is outlined")

	flags.Bool("idle-host", defaultConfig.Pipeline.IdleHost, "run units on frame loop idle slots instead of short deferred callbacks")

	flags.Duration("frame-interval", defaultConfig.Pipeline.FrameInterval, "the frame period of the idle host")

	flags.Duration("idle-timeout", defaultConfig.Pipeline.IdleTimeout, "the longest a unit waits for an idle frame")

	flags.Duration("deferred-delay", defaultConfig.Pipeline.DeferredDelay, "the delay between units without idle host")

	flags.Duration("progress-interval", defaultConfig.Pipeline.ProgressInterval, "how often progress is logged")

	flags.String("log-format", defaultConfig.Log.Format, "the log format to output logs in")

	flags.String("log-level", defaultConfig.Log.Level, "the log level to use")

	flags.Bool("trace-enabled", defaultConfig.Trace.Enabled, "enable tracing")

	flags.String("trace-otlp-endpoint", defaultConfig.Trace.OTLP.Endpoint, "the endpoint of the trace collector")

	flags.Bool("trace-otlp-insecure", defaultConfig.Trace.OTLP.Insecure, "send traces without transport security")

	flags.Float64("trace-sample-ratio", defaultConfig.Trace.SampleRatio, "the fraction of traces to sample. 1 means all, 0 means none.")

	flags.String("trace-service-name", defaultConfig.Trace.ServiceName, "the service name included in sampled traces")

	flags.Bool("metrics-enabled", defaultConfig.Metrics.Enabled, "enable/disable prometheus metrics on the '/metrics' endpoint")

	flags.String("metrics-addr", defaultConfig.Metrics.Addr, "the host:port address to serve the prometheus metrics server on")

	// NOTE: if you add a new flag here, update the function in flags.go, too

	cmd.PreRun = bindRunFlagsFunc(cmd)

	return cmd
}

// ReadConfig returns the run configuration based on the values provided in the 'config.yaml' file.
// The 'config.yaml' file is loaded from '/etc/xray', '$HOME/.xray', or the current working directory. If no configuration
// file is present, the default values are returned.
func ReadConfig() (*Config, error) {
	config := DefaultConfig()

	viper.SetTypeByDefaultValue(true)
	err := viper.ReadInConfig()
	if err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return config, nil
}

func run(cmd *cobra.Command, _ []string) error {
	config, err := ReadConfig()
	if err != nil {
		return err
	}

	if err := config.Verify(); err != nil {
		return err
	}

	log, err := logger.NewLogger(config.Log.Format, config.Log.Level)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runCtx := &RunContext{Logger: log, Out: cmd.OutOrStdout()}
	_, err = runCtx.Run(ctx, config)
	return err
}

// RunContext carries what a run reports through.
type RunContext struct {
	Logger logger.Logger
	Out    io.Writer
}

// StoreyReport is the outcome of one storey.
type StoreyReport struct {
	Storey   storage.Storey
	State    string
	Segments int
}

// Report is the outcome of a run.
type Report struct {
	Status  xray.Status
	Storeys []StoreyReport
}

// telemetryConfig returns the function that must be called to shut down tracing.
func (s *RunContext) telemetryConfig(config *Config) func() error {
	if config.Trace.Enabled {
		s.Logger.Info(fmt.Sprintf("tracing enabled: sampling ratio is %v and sending traces to '%s'", config.Trace.SampleRatio, config.Trace.OTLP.Endpoint))

		options := []telemetry.TracerOption{
			telemetry.WithOTLPEndpoint(config.Trace.OTLP.Endpoint),
			telemetry.WithServiceName(config.Trace.ServiceName),
			telemetry.WithSamplingRatio(config.Trace.SampleRatio),
		}
		if config.Trace.OTLP.Insecure {
			options = append(options, telemetry.WithOTLPInsecure())
		}

		tp := telemetry.MustNewTracerProvider(options...)
		return func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 6*time.Second)
			defer cancel()
			return errors.Join(tp.ForceFlush(ctx), tp.Shutdown(ctx))
		}
	}
	otel.SetTracerProvider(noop.NewTracerProvider())
	return func() error {
		return nil
	}
}

// metricsConfig serves the default prometheus registry when enabled and
// returns the function that stops the server.
func (s *RunContext) metricsConfig(config *Config) func() error {
	if !config.Metrics.Enabled {
		return func() error { return nil }
	}

	s.Logger.Info(fmt.Sprintf("prometheus metrics enabled on '%s/metrics'", config.Metrics.Addr))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              config.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Logger.Error("failed to start prometheus metrics server", zap.Error(err))
		}
	}()

	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}

func (s *RunContext) datastoreConfig(ctx context.Context, config *Config) (*sqlite.Datastore, error) {
	datastoreOptions := []sqlcommon.DatastoreOption{
		sqlcommon.WithLogger(s.Logger),
		sqlcommon.WithMaxOpenConns(config.Datastore.MaxOpenConns),
		sqlcommon.WithMaxIdleConns(config.Datastore.MaxIdleConns),
		sqlcommon.WithConnMaxIdleTime(config.Datastore.ConnMaxIdleTime),
		sqlcommon.WithConnMaxLifetime(config.Datastore.ConnMaxLifetime),
		sqlcommon.WithDecodeConcurrency(config.Datastore.DecodeConcurrency),
	}
	if config.Datastore.Metrics.Enabled {
		datastoreOptions = append(datastoreOptions, sqlcommon.WithMetrics())
	}

	ds, err := sqlite.New(config.Datastore.URI, sqlcommon.NewConfig(datastoreOptions...))
	if err != nil {
		return nil, fmt.Errorf("initialize sqlite datastore: %w", err)
	}

	status, err := ds.IsReady(ctx)
	if err != nil {
		ds.Close()
		return nil, fmt.Errorf("failed to check datastore readiness: %w", err)
	}
	if !status.IsReady {
		ds.Close()
		return nil, fmt.Errorf("datastore is not ready: %s", status.Message)
	}

	return ds, nil
}

// Run builds every storey outline of the stored model, waits until the run
// finished or ctx is done, and writes a report to s.Out.
func (s *RunContext) Run(ctx context.Context, config *Config) (*Report, error) {
	shutdownTracing := s.telemetryConfig(config)
	defer func() {
		if err := shutdownTracing(); err != nil {
			s.Logger.Error("failed to shut down tracing", zap.Error(err))
		}
	}()

	shutdownMetrics := s.metricsConfig(config)
	defer func() {
		if err := shutdownMetrics(); err != nil {
			s.Logger.Error("failed to shut down prometheus metrics server", zap.Error(err))
		}
	}()

	ds, err := s.datastoreConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	bounded := storagewrappers.NewBoundedConcurrencyModelReader(ds, config.Datastore.MaxConcurrentReads)
	reader, err := storagewrappers.NewCachedModelReader(bounded, config.Datastore.MaxCacheSize, config.Datastore.CacheTTL,
		storagewrappers.WithCachedModelReaderLogger(s.Logger),
	)
	if err != nil {
		return nil, fmt.Errorf("initialize model reader cache: %w", err)
	}
	defer reader.Close()

	cache := geomcache.New(geomcache.NewReaderExtractor(reader, s.Logger),
		geomcache.WithMaxSize(config.GeometryCache.MaxSize),
		geomcache.WithExpiry(config.GeometryCache.Expiry),
		geomcache.WithLogger(s.Logger),
	)
	defer cache.Close()

	var host scheduler.IdleHost
	if config.Pipeline.IdleHost {
		frames := scheduler.NewFrameLoop(config.Pipeline.FrameInterval)
		defer frames.Close()
		host = frames
	}
	sched := scheduler.New(host, config.Pipeline.IdleTimeout, config.Pipeline.DeferredDelay)
	defer sched.Close()

	root := scene.NewGroup("scene")
	pipeline := xray.New(cache, root,
		xray.WithScheduler(sched),
		xray.WithModelReader(reader),
		xray.WithEdgeThreshold(config.Pipeline.EdgeThresholdDegrees),
		xray.WithLogger(s.Logger),
	)
	defer pipeline.Dispose()

	start := time.Now()
	if err := pipeline.InitializeFromModel(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	if config.Pipeline.Enabled {
		pipeline.Toggle()
	}
	if focus, ok := config.Pipeline.FocusGroup(); ok {
		if !pipeline.Enabled() {
			s.Logger.Warn("focus ignored while outlines are hidden", zap.Int64("storey", int64(focus)))
		}
		if err := pipeline.SetFocus(ctx, focus); err != nil {
			return nil, fmt.Errorf("failed to focus storey %d: %w", focus, err)
		}
	}

	s.waitForRun(ctx, pipeline, config.Pipeline.ProgressInterval)

	report, err := s.report(ctx, reader, pipeline, root)
	if err != nil {
		return nil, err
	}

	s.Logger.Info("run finished",
		zap.Int("completed", report.Status.Completed),
		zap.Int("total", report.Status.Total),
		zap.Duration("elapsed", time.Since(start)),
	)
	s.writeReport(report)

	return report, ctx.Err()
}

func (s *RunContext) waitForRun(ctx context.Context, pipeline *xray.Pipeline, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-pipeline.Done():
			return
		case <-ctx.Done():
			s.Logger.Warn("run interrupted", zap.Error(ctx.Err()))
			return
		case <-ticker.C:
			status := pipeline.Status()
			s.Logger.Info("processing",
				zap.Int("completed", status.Completed),
				zap.Int("total", status.Total),
				zap.Float64("progress", status.Progress),
			)
		}
	}
}

func (s *RunContext) report(ctx context.Context, reader storage.ModelReader, pipeline *xray.Pipeline, root *scene.Group) (*Report, error) {
	storeys, err := reader.Storeys(context.WithoutCancel(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to list storeys: %w", err)
	}

	report := &Report{Status: pipeline.Status()}
	for _, st := range storeys {
		r := StoreyReport{Storey: st, State: "empty"}
		if state, ok := pipeline.GroupState(st.ID); ok {
			r.State = state.String()
		}
		if obj, ok := root.FindByName(xray.WireframeName(st.ID)); ok {
			if lines, ok := obj.(*scene.LineSegments); ok {
				r.Segments = lines.SegmentCount()
			}
		}
		report.Storeys = append(report.Storeys, r)
	}
	return report, nil
}

func (s *RunContext) writeReport(report *Report) {
	if s.Out == nil {
		return
	}

	w := tabwriter.NewWriter(s.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STOREY\tNAME\tELEVATION\tSTATE\tSEGMENTS")
	for _, r := range report.Storeys {
		fmt.Fprintf(w, "%d\t%s\t%.2f\t%s\t%d\n", r.Storey.ID, r.Storey.Name, r.Storey.Elevation, r.State, r.Segments)
	}
	fmt.Fprintf(w, "\n%d/%d storeys ready\n", report.Status.Completed, report.Status.Total)
	_ = w.Flush()
}
