// Package importer contains the command to load a JSON model dump into the
// sqlite model store.
package importer

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/bimview/xray/pkg/logger"
	modelimporter "github.com/bimview/xray/pkg/storage/importer"
	"github.com/bimview/xray/pkg/storage/sqlcommon"
	"github.com/bimview/xray/pkg/storage/sqlite"
)

const (
	datastoreURIFlag = "datastore-uri"
	fileFlag         = "file"
	concurrencyFlag  = "concurrency"
	logFormatFlag    = "log-format"
	logLevelFlag     = "log-level"
)

func NewImportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a JSON model dump into the sqlite model store",
		Long:  "The import command replaces the model held by the sqlite model store with the one read from a JSON dump.",
		RunE:  runImport,
		Args:  cobra.NoArgs,
	}

	flags := cmd.Flags()

	flags.String(datastoreURIFlag, "", "(required) the uri of the migrated sqlite model store (e.g. 'file:model.db')")
	flags.String(fileFlag, "", "(required) the path of the JSON model dump")
	flags.Int(concurrencyFlag, 4, "the number of storeys parsed in parallel")
	flags.String(logFormatFlag, "text", "the log format to output logs in")
	flags.String(logLevelFlag, "info", "the log level to use")

	cmd.PreRun = bindRunFlags

	return cmd
}

func runImport(cmd *cobra.Command, _ []string) error {
	uri := viper.GetString(datastoreURIFlag)
	if uri == "" {
		return errors.New("missing datastore uri")
	}
	path := viper.GetString(fileFlag)
	if path == "" {
		return errors.New("missing model file")
	}

	log, err := logger.NewLogger(viper.GetString(logFormatFlag), viper.GetString(logLevelFlag))
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open model file: %w", err)
	}
	defer f.Close()

	ds, err := sqlite.New(uri, sqlcommon.NewConfig(sqlcommon.WithLogger(log)))
	if err != nil {
		return fmt.Errorf("initialize sqlite datastore: %w", err)
	}
	defer ds.Close()

	ctx := cmd.Context()
	status, err := ds.IsReady(ctx)
	if err != nil {
		return fmt.Errorf("failed to check datastore readiness: %w", err)
	}
	if !status.IsReady {
		return fmt.Errorf("datastore is not ready: %s", status.Message)
	}

	imp := modelimporter.New(
		modelimporter.WithLogger(log),
		modelimporter.WithConcurrency(viper.GetInt(concurrencyFlag)),
	)
	model, err := imp.Import(ctx, ds, f)
	if err != nil {
		return fmt.Errorf("failed to import %s: %w", path, err)
	}

	log.Info("import done",
		zap.String("file", path),
		zap.String("model", model.Name),
		zap.Int("storeys", len(model.Storeys)),
	)
	return nil
}
