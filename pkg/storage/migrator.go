package storage

import (
	"context"
	"time"

	"github.com/bimview/xray/pkg/logger"
)

// MigrationProvider runs schema migrations for one datastore engine.
type MigrationProvider interface {
	// RunMigrations executes database migrations with the provided configuration
	RunMigrations(ctx context.Context, config MigrationConfig) error

	// GetCurrentVersion returns the current migration version of the database
	GetCurrentVersion(ctx context.Context, config MigrationConfig) (int64, error)

	// GetSupportedEngine returns the database engine this provider supports
	GetSupportedEngine() string
}

// MigrationConfig contains the configuration needed for running migrations.
type MigrationConfig struct {
	Engine string
	URI    string

	// TargetVersion of 0 migrates to the latest version.
	TargetVersion uint
	Timeout       time.Duration
	Verbose       bool
	Logger        logger.Logger
}
