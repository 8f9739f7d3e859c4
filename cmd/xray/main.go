package main

import (
	"os"

	"github.com/bimview/xray/cmd"
	"github.com/bimview/xray/cmd/importer"
	"github.com/bimview/xray/cmd/migrate"
	"github.com/bimview/xray/cmd/run"
)

func main() {
	rootCmd := cmd.NewRootCommand()

	rootCmd.AddCommand(run.NewRunCommand())
	rootCmd.AddCommand(migrate.NewMigrateCommand())
	rootCmd.AddCommand(importer.NewImportCommand())
	rootCmd.AddCommand(cmd.NewVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
