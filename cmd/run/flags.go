package run

import (
	"github.com/spf13/cobra"

	"github.com/bimview/xray/cmd/util"
)

// bindRunFlags binds the cobra cmd flags to the equivalent config value being managed
// by viper. This bridges the config between cobra flags and viper flags.
func bindRunFlagsFunc(command *cobra.Command) func(*cobra.Command, []string) {
	return func(_ *cobra.Command, _ []string) {
		flags := command.Flags()

		util.MustBindPFlag("datastore.uri", flags.Lookup("datastore-uri"))
		util.MustBindEnv("datastore.uri", "XRAY_DATASTORE_URI")

		util.MustBindPFlag("datastore.maxOpenConns", flags.Lookup("datastore-max-open-conns"))
		util.MustBindEnv("datastore.maxOpenConns", "XRAY_DATASTORE_MAX_OPEN_CONNS", "XRAY_DATASTORE_MAXOPENCONNS")

		util.MustBindPFlag("datastore.maxIdleConns", flags.Lookup("datastore-max-idle-conns"))
		util.MustBindEnv("datastore.maxIdleConns", "XRAY_DATASTORE_MAX_IDLE_CONNS", "XRAY_DATASTORE_MAXIDLECONNS")

		util.MustBindPFlag("datastore.connMaxIdleTime", flags.Lookup("datastore-conn-max-idle-time"))
		util.MustBindEnv("datastore.connMaxIdleTime", "XRAY_DATASTORE_CONN_MAX_IDLE_TIME", "XRAY_DATASTORE_CONNMAXIDLETIME")

		util.MustBindPFlag("datastore.connMaxLifetime", flags.Lookup("datastore-conn-max-lifetime"))
		util.MustBindEnv("datastore.connMaxLifetime", "XRAY_DATASTORE_CONN_MAX_LIFETIME", "XRAY_DATASTORE_CONNMAXLIFETIME")

		util.MustBindPFlag("datastore.maxConcurrentReads", flags.Lookup("datastore-max-concurrent-reads"))
		util.MustBindEnv("datastore.maxConcurrentReads", "XRAY_DATASTORE_MAX_CONCURRENT_READS")

		util.MustBindPFlag("datastore.decodeConcurrency", flags.Lookup("datastore-decode-concurrency"))
		util.MustBindEnv("datastore.decodeConcurrency", "XRAY_DATASTORE_DECODE_CONCURRENCY")

		util.MustBindPFlag("datastore.maxCacheSize", flags.Lookup("datastore-max-cache-size"))
		util.MustBindEnv("datastore.maxCacheSize", "XRAY_DATASTORE_MAX_CACHE_SIZE", "XRAY_DATASTORE_MAXCACHESIZE")

		util.MustBindPFlag("datastore.cacheTTL", flags.Lookup("datastore-cache-ttl"))
		util.MustBindEnv("datastore.cacheTTL", "XRAY_DATASTORE_CACHE_TTL")

		util.MustBindPFlag("datastore.metrics.enabled", flags.Lookup("datastore-metrics-enabled"))
		util.MustBindEnv("datastore.metrics.enabled", "XRAY_DATASTORE_METRICS_ENABLED")

		util.MustBindPFlag("geometryCache.maxSize", flags.Lookup("geometry-cache-max-size"))
		util.MustBindEnv("geometryCache.maxSize", "XRAY_GEOMETRY_CACHE_MAX_SIZE")

		util.MustBindPFlag("geometryCache.expiry", flags.Lookup("geometry-cache-expiry"))
		util.MustBindEnv("geometryCache.expiry", "XRAY_GEOMETRY_CACHE_EXPIRY")

		util.MustBindPFlag("pipeline.enabled", flags.Lookup("xray-enabled"))
		util.MustBindEnv("pipeline.enabled", "XRAY_ENABLED")

		util.MustBindPFlag("pipeline.focus", flags.Lookup("focus"))
		util.MustBindEnv("pipeline.focus", "XRAY_FOCUS")

		util.MustBindPFlag("pipeline.edgeThresholdDegrees", flags.Lookup("edge-threshold-degrees"))
		util.MustBindEnv("pipeline.edgeThresholdDegrees", "XRAY_EDGE_THRESHOLD_DEGREES")

		util.MustBindPFlag("pipeline.idleHost", flags.Lookup("idle-host"))
		util.MustBindEnv("pipeline.idleHost", "XRAY_IDLE_HOST")

		util.MustBindPFlag("pipeline.frameInterval", flags.Lookup("frame-interval"))
		util.MustBindEnv("pipeline.frameInterval", "XRAY_FRAME_INTERVAL")

		util.MustBindPFlag("pipeline.idleTimeout", flags.Lookup("idle-timeout"))
		util.MustBindEnv("pipeline.idleTimeout", "XRAY_IDLE_TIMEOUT")

		util.MustBindPFlag("pipeline.deferredDelay", flags.Lookup("deferred-delay"))
		util.MustBindEnv("pipeline.deferredDelay", "XRAY_DEFERRED_DELAY")

		util.MustBindPFlag("pipeline.progressInterval", flags.Lookup("progress-interval"))
		util.MustBindEnv("pipeline.progressInterval", "XRAY_PROGRESS_INTERVAL")

		util.MustBindPFlag("log.format", flags.Lookup("log-format"))
		util.MustBindEnv("log.format", "XRAY_LOG_FORMAT")

		util.MustBindPFlag("log.level", flags.Lookup("log-level"))
		util.MustBindEnv("log.level", "XRAY_LOG_LEVEL")

		util.MustBindPFlag("trace.enabled", flags.Lookup("trace-enabled"))
		util.MustBindEnv("trace.enabled", "XRAY_TRACE_ENABLED")

		util.MustBindPFlag("trace.otlp.endpoint", flags.Lookup("trace-otlp-endpoint"))
		util.MustBindEnv("trace.otlp.endpoint", "XRAY_TRACE_OTLP_ENDPOINT")

		util.MustBindPFlag("trace.otlp.insecure", flags.Lookup("trace-otlp-insecure"))
		util.MustBindEnv("trace.otlp.insecure", "XRAY_TRACE_OTLP_INSECURE")

		util.MustBindPFlag("trace.sampleRatio", flags.Lookup("trace-sample-ratio"))
		util.MustBindEnv("trace.sampleRatio", "XRAY_TRACE_SAMPLE_RATIO")

		util.MustBindPFlag("trace.serviceName", flags.Lookup("trace-service-name"))
		util.MustBindEnv("trace.serviceName", "XRAY_TRACE_SERVICE_NAME")

		util.MustBindPFlag("metrics.enabled", flags.Lookup("metrics-enabled"))
		util.MustBindEnv("metrics.enabled", "XRAY_METRICS_ENABLED")

		util.MustBindPFlag("metrics.addr", flags.Lookup("metrics-addr"))
		util.MustBindEnv("metrics.addr", "XRAY_METRICS_ADDR")
	}
}
