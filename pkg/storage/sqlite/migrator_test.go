package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bimview/xray/pkg/storage"
)

func TestSQLiteMigrationProvider(t *testing.T) {
	provider := NewSQLiteMigrationProvider()

	t.Run("GetSupportedEngine", func(t *testing.T) {
		require.Equal(t, "sqlite", provider.GetSupportedEngine())
	})

	t.Run("ConnectionFailure", func(t *testing.T) {
		config := storage.MigrationConfig{
			Engine:  "sqlite",
			URI:     "/invalid/path/that/does/not/exist/db.sqlite",
			Timeout: 1 * time.Second,
		}

		err := provider.RunMigrations(context.Background(), config)
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to initialize sqlite connection")
	})

	t.Run("UpToLatest", func(t *testing.T) {
		ctx := context.Background()
		config := storage.MigrationConfig{
			Engine:  "sqlite",
			URI:     "file:" + filepath.Join(t.TempDir(), "migrate.db"),
			Timeout: 5 * time.Second,
		}

		require.NoError(t, provider.RunMigrations(ctx, config))
		version, err := provider.GetCurrentVersion(ctx, config)
		require.NoError(t, err)
		require.Equal(t, int64(1), version)

		// running again is a no-op
		require.NoError(t, provider.RunMigrations(ctx, config))

		config.TargetVersion = 1
		require.NoError(t, provider.RunMigrations(ctx, config))
	})
}
