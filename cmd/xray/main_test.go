package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bimview/xray/cmd"
	"github.com/bimview/xray/cmd/importer"
	"github.com/bimview/xray/cmd/migrate"
	"github.com/bimview/xray/cmd/run"
)

func TestHelpListsCommands(t *testing.T) {
	rootCmd := cmd.NewRootCommand()
	rootCmd.AddCommand(run.NewRunCommand(), migrate.NewMigrateCommand(), importer.NewImportCommand(), cmd.NewVersionCommand())

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--help"})
	require.NoError(t, rootCmd.Execute())

	for _, name := range []string{"run", "migrate", "import", "version"} {
		require.Contains(t, out.String(), name)
	}
}
