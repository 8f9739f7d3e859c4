package run

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/bimview/xray/cmd"
	"github.com/bimview/xray/cmd/util"
	"github.com/bimview/xray/pkg/logger"
	"github.com/bimview/xray/pkg/storage"
	"github.com/bimview/xray/pkg/storage/importer"
)

func TestDefaultConfigIsValidOnceURIIsSet(t *testing.T) {
	cfg := DefaultConfig()
	require.Error(t, cfg.Verify())

	cfg.Datastore.URI = "file:model.db"
	require.NoError(t, cfg.Verify())

	_, ok := cfg.Pipeline.FocusGroup()
	require.False(t, ok)
}

func TestVerifyConfig(t *testing.T) {
	tests := map[string]func(*Config){
		"zero_concurrent_reads": func(c *Config) { c.Datastore.MaxConcurrentReads = 0 },
		"zero_cache_size":       func(c *Config) { c.GeometryCache.MaxSize = 0 },
		"zero_expiry":           func(c *Config) { c.GeometryCache.Expiry = 0 },
		"focus_not_a_number":    func(c *Config) { c.Pipeline.Focus = "ground" },
		"negative_threshold":    func(c *Config) { c.Pipeline.EdgeThresholdDegrees = -1 },
		"threshold_over_180":    func(c *Config) { c.Pipeline.EdgeThresholdDegrees = 181 },
		"deferred_delay_too_long": func(c *Config) {
			c.Pipeline.DeferredDelay = time.Second
		},
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Datastore.URI = "file:model.db"
			mutate(cfg)
			require.Error(t, cfg.Verify())
		})
	}
}

func TestFocusGroup(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pipeline.Focus = "42"
	group, ok := cfg.Pipeline.FocusGroup()
	require.True(t, ok)
	require.Equal(t, storage.GroupKey(42), group)
}

func TestRunCommandNoConfigDefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)
	util.PrepareTempConfigDir(t)

	runCmd := NewRunCommand()
	runCmd.RunE = func(_ *cobra.Command, _ []string) error {
		cfg, err := ReadConfig()
		require.NoError(t, err)

		want := DefaultConfig()
		require.Equal(t, want, cfg)
		return nil
	}

	rootCmd := cmd.NewRootCommand()
	rootCmd.AddCommand(runCmd)
	rootCmd.SetArgs([]string{"run"})
	require.NoError(t, rootCmd.Execute())
}

func TestRunCommandConfigFileValuesAreParsed(t *testing.T) {
	t.Cleanup(viper.Reset)
	config := `datastore:
    uri: file:configured.db
    maxConcurrentReads: 2
geometryCache:
    maxSize: 64
    expiry: 10s
pipeline:
    enabled: true
    focus: "3"
    edgeThresholdDegrees: 15
    idleHost: false
log:
    format: json
trace:
    enabled: true
    sampleRatio: 0.5
metrics:
    addr: 127.0.0.1:9090
`
	util.PrepareTempConfigFile(t, config)

	runCmd := NewRunCommand()
	runCmd.RunE = func(_ *cobra.Command, _ []string) error {
		cfg, err := ReadConfig()
		require.NoError(t, err)

		require.Equal(t, "file:configured.db", cfg.Datastore.URI)
		require.Equal(t, uint32(2), cfg.Datastore.MaxConcurrentReads)
		require.Equal(t, 64, cfg.GeometryCache.MaxSize)
		require.Equal(t, 10*time.Second, cfg.GeometryCache.Expiry)
		require.True(t, cfg.Pipeline.Enabled)
		require.InDelta(t, 15.0, cfg.Pipeline.EdgeThresholdDegrees, 1e-9)
		require.False(t, cfg.Pipeline.IdleHost)
		require.Equal(t, "json", cfg.Log.Format)
		require.True(t, cfg.Trace.Enabled)
		require.InDelta(t, 0.5, cfg.Trace.SampleRatio, 1e-9)
		require.Equal(t, "127.0.0.1:9090", cfg.Metrics.Addr)

		group, ok := cfg.Pipeline.FocusGroup()
		require.True(t, ok)
		require.Equal(t, storage.GroupKey(3), group)
		return nil
	}

	rootCmd := cmd.NewRootCommand()
	rootCmd.AddCommand(runCmd)
	rootCmd.SetArgs([]string{"run"})
	require.NoError(t, rootCmd.Execute())
}

func TestRunCommandEnvAndFlags(t *testing.T) {
	t.Cleanup(viper.Reset)
	util.PrepareTempConfigFile(t, `datastore:
    uri: file:configured.db
`)
	t.Setenv("XRAY_DATASTORE_URI", "file:env.db")
	t.Setenv("XRAY_ENABLED", "true")
	t.Setenv("XRAY_GEOMETRY_CACHE_MAX_SIZE", "12")

	runCmd := NewRunCommand()
	runCmd.RunE = func(_ *cobra.Command, _ []string) error {
		cfg, err := ReadConfig()
		require.NoError(t, err)

		require.Equal(t, "file:env.db", cfg.Datastore.URI)
		require.True(t, cfg.Pipeline.Enabled)
		require.Equal(t, 12, cfg.GeometryCache.MaxSize)
		require.Equal(t, "debug", cfg.Log.Level)
		require.Equal(t, 250*time.Millisecond, cfg.Pipeline.ProgressInterval)
		return nil
	}

	rootCmd := cmd.NewRootCommand()
	rootCmd.AddCommand(runCmd)
	rootCmd.SetArgs([]string{"run", "--log-level", "debug", "--progress-interval", "250ms"})
	require.NoError(t, rootCmd.Execute())
}

func TestRunCommandRejectsInvalidConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	util.PrepareTempConfigDir(t)

	rootCmd := cmd.NewRootCommand()
	rootCmd.AddCommand(NewRunCommand())
	rootCmd.SetArgs([]string{"run"})
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true

	err := rootCmd.Execute()
	require.ErrorContains(t, err, "datastore.uri")
}

func mustImportHouse(t *testing.T) string {
	t.Helper()

	uri, ds := util.MustBootstrapDatastore(t)

	f, err := os.Open("../importer/testdata/house.json")
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	_, err = importer.New().Import(context.Background(), ds, f)
	require.NoError(t, err)

	return uri
}

func testConfig(uri string) *Config {
	cfg := DefaultConfig()
	cfg.Datastore.URI = uri
	cfg.Pipeline.IdleHost = false
	cfg.Pipeline.DeferredDelay = time.Millisecond
	cfg.Pipeline.ProgressInterval = 5 * time.Millisecond
	return cfg
}

func TestRunBuildsEveryStorey(t *testing.T) {
	uri := mustImportHouse(t)

	cfg := testConfig(uri)
	cfg.Pipeline.Enabled = true

	log, logs := logger.NewObserverLogger("info")
	var out bytes.Buffer
	runCtx := &RunContext{Logger: log, Out: &out}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	report, err := runCtx.Run(ctx, cfg)
	require.NoError(t, err)

	require.Equal(t, 2, report.Status.Completed)
	require.Equal(t, 2, report.Status.Total)
	require.False(t, report.Status.IsProcessing)

	require.Len(t, report.Storeys, 3)
	require.Equal(t, StoreyReport{
		Storey:   storage.Storey{ID: 1, Name: "ground", Elevation: 0},
		State:    "ready",
		Segments: 8,
	}, report.Storeys[0])
	require.Equal(t, StoreyReport{
		Storey:   storage.Storey{ID: 2, Name: "first", Elevation: 3},
		State:    "ready",
		Segments: 3,
	}, report.Storeys[1])
	require.Equal(t, StoreyReport{
		Storey: storage.Storey{ID: 3, Name: "roof", Elevation: 6},
		State:  "empty",
	}, report.Storeys[2])

	require.Equal(t, 1, logs.FilterMessage("run finished").Len())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Contains(t, lines[0], "STOREY")
	require.Contains(t, lines[1], "ground")
	require.Contains(t, lines[1], "ready")
	require.Contains(t, lines[3], "roof")
	require.Contains(t, lines[3], "empty")
	require.Equal(t, "2/2 storeys ready", lines[len(lines)-1])
}

func TestRunWithFocusOnIdleHost(t *testing.T) {
	uri := mustImportHouse(t)

	cfg := testConfig(uri)
	cfg.Pipeline.Enabled = true
	cfg.Pipeline.Focus = "2"
	cfg.Pipeline.IdleHost = true
	cfg.Pipeline.FrameInterval = time.Millisecond
	cfg.Pipeline.IdleTimeout = 5 * time.Millisecond

	runCtx := &RunContext{Logger: logger.NewNoopLogger()}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	report, err := runCtx.Run(ctx, cfg)
	require.NoError(t, err)
	require.Equal(t, 2, report.Status.Completed)
	require.Equal(t, "ready", report.Storeys[1].State)
}

func TestRunFailsOnUnmigratedStore(t *testing.T) {
	cfg := testConfig("file:" + t.TempDir() + "/empty.db")

	runCtx := &RunContext{Logger: logger.NewNoopLogger()}
	_, err := runCtx.Run(context.Background(), cfg)
	require.Error(t, err)
}
