package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/bimview/xray/assets"
	"github.com/bimview/xray/pkg/logger"
	"github.com/bimview/xray/pkg/storage"
)

// SQLiteMigrationProvider implements MigrationProvider for SQLite.
type SQLiteMigrationProvider struct{}

var _ storage.MigrationProvider = (*SQLiteMigrationProvider)(nil)

// NewSQLiteMigrationProvider creates a new SQLite migration provider.
func NewSQLiteMigrationProvider() *SQLiteMigrationProvider {
	return &SQLiteMigrationProvider{}
}

// GetSupportedEngine returns the database engine this provider supports.
func (s *SQLiteMigrationProvider) GetSupportedEngine() string {
	return "sqlite"
}

// RunMigrations executes SQLite database migrations.
func (s *SQLiteMigrationProvider) RunMigrations(ctx context.Context, config storage.MigrationConfig) error {
	goose.SetLogger(goose.NopLogger())
	goose.SetVerbose(config.Verbose)

	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("failed to set sqlite dialect: %w", err)
	}

	uri, err := PrepareDSN(config.URI)
	if err != nil {
		return err
	}

	db, err := goose.OpenDBWithDriver("sqlite", uri)
	if err != nil {
		return fmt.Errorf("failed to open sqlite connection: %w", err)
	}
	defer db.Close()

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = config.Timeout
	err = backoff.Retry(func() error {
		return db.PingContext(ctx)
	}, policy)
	if err != nil {
		return fmt.Errorf("failed to initialize sqlite connection: %w", err)
	}

	goose.SetBaseFS(assets.EmbedMigrations)

	return s.executeMigrations(ctx, db, config)
}

// GetCurrentVersion returns the current migration version.
func (s *SQLiteMigrationProvider) GetCurrentVersion(ctx context.Context, config storage.MigrationConfig) (int64, error) {
	uri, err := PrepareDSN(config.URI)
	if err != nil {
		return 0, err
	}

	db, err := goose.OpenDBWithDriver("sqlite", uri)
	if err != nil {
		return 0, fmt.Errorf("failed to open sqlite connection: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(assets.EmbedMigrations)
	return goose.GetDBVersionContext(ctx, db)
}

func (s *SQLiteMigrationProvider) executeMigrations(ctx context.Context, db *sql.DB, config storage.MigrationConfig) error {
	log := config.Logger
	if log == nil {
		log = logger.NewNoopLogger()
	}
	migrationsPath := assets.SqliteMigrationDir

	currentVersion, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to get sqlite db version: %w", err)
	}

	log.Info("sqlite current version", zap.Int64("version", currentVersion))

	if config.TargetVersion == 0 {
		log.Info("running all sqlite migrations")
		if err := goose.UpContext(ctx, db, migrationsPath); err != nil {
			return fmt.Errorf("failed to run sqlite migrations: %w", err)
		}
		log.Info("sqlite migration done")
		return nil
	}

	targetVersion := int64(config.TargetVersion)
	log.Info("migrating sqlite", zap.Int64("target_version", targetVersion))

	switch {
	case targetVersion < currentVersion:
		if err := goose.DownToContext(ctx, db, migrationsPath, targetVersion); err != nil {
			return fmt.Errorf("failed to run sqlite migrations down to %v: %w", targetVersion, err)
		}
	case targetVersion > currentVersion:
		if err := goose.UpToContext(ctx, db, migrationsPath, targetVersion); err != nil {
			return fmt.Errorf("failed to run sqlite migrations up to %v: %w", targetVersion, err)
		}
	default:
		log.Info("sqlite nothing to do")
		return nil
	}

	log.Info("sqlite migration done")
	return nil
}
