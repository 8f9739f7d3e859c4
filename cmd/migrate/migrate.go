// Package migrate contains the command to perform model store migrations.
package migrate

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/bimview/xray/pkg/logger"
	"github.com/bimview/xray/pkg/storage"
	"github.com/bimview/xray/pkg/storage/sqlite"
)

const (
	datastoreURIFlag     = "datastore-uri"
	versionFlag          = "version"
	timeoutFlag          = "timeout"
	verboseMigrationFlag = "verbose"
	logFormatFlag        = "log-format"
	logLevelFlag         = "log-level"
)

func NewMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run the schema migrations of the sqlite model store",
		Long:  `The migrate command creates or upgrades the schema of the sqlite model store.`,
		RunE:  runMigration,
		Args:  cobra.NoArgs,
	}

	flags := cmd.Flags()

	flags.String(datastoreURIFlag, "", "(required) the uri of the sqlite model store (e.g. 'file:model.db')")
	flags.Uint(versionFlag, 0, "the version to migrate to (if omitted the latest schema will be used)")
	flags.Duration(timeoutFlag, 1*time.Minute, "a timeout for the time it takes the migrate process to connect to the database")
	flags.Bool(verboseMigrationFlag, false, "enable verbose migration logs (default false)")
	flags.String(logFormatFlag, "text", "the log format to output logs in")
	flags.String(logLevelFlag, "info", "the log level to use")

	// NOTE: if you add a new flag here, update the function below, too

	cmd.PreRun = bindRunFlags

	return cmd
}

func runMigration(cmd *cobra.Command, _ []string) error {
	uri := viper.GetString(datastoreURIFlag)
	if uri == "" {
		return errors.New("missing datastore uri")
	}

	log, err := logger.NewLogger(viper.GetString(logFormatFlag), viper.GetString(logLevelFlag))
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	provider := sqlite.NewSQLiteMigrationProvider()
	cfg := storage.MigrationConfig{
		Engine:        provider.GetSupportedEngine(),
		URI:           uri,
		TargetVersion: viper.GetUint(versionFlag),
		Timeout:       viper.GetDuration(timeoutFlag),
		Verbose:       viper.GetBool(verboseMigrationFlag),
		Logger:        log,
	}

	if err := provider.RunMigrations(cmd.Context(), cfg); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, err := provider.GetCurrentVersion(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	log.Info("migration done", zap.Int64("version", version))
	return nil
}
