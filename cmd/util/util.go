// Package util provides common utilities for spf13/cobra CLI utilities
// that can be used for various commands within this project.
package util

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/bimview/xray/pkg/storage"
	"github.com/bimview/xray/pkg/storage/sqlcommon"
	"github.com/bimview/xray/pkg/storage/sqlite"
)

// MustBindPFlag attempts to bind a specific key to a pflag (as used by cobra) and panics
// if the binding fails with a non-nil error.
func MustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic("failed to bind pflag: " + err.Error())
	}
}

func MustBindEnv(input ...string) {
	if err := viper.BindEnv(input...); err != nil {
		panic("failed to bind env key: " + err.Error())
	}
}

// MustBootstrapDatastore returns the uri of a migrated sqlite model store in
// a temporary directory, and the store opened on it.
func MustBootstrapDatastore(t testing.TB) (string, *sqlite.Datastore) {
	t.Helper()

	uri := "file:" + filepath.Join(t.TempDir(), "model.db")
	err := sqlite.NewSQLiteMigrationProvider().RunMigrations(context.Background(), storage.MigrationConfig{
		Engine:  "sqlite",
		URI:     uri,
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)

	ds, err := sqlite.New(uri, sqlcommon.NewConfig())
	require.NoError(t, err)
	t.Cleanup(ds.Close)

	return uri, ds
}

func PrepareTempConfigDir(t *testing.T) string {
	_, err := os.Stat("/etc/xray/config.yaml")
	require.ErrorIs(t, err, os.ErrNotExist, "Config file at /etc/xray/config.yaml would disturb test result.")

	homedir := t.TempDir()
	t.Setenv("HOME", homedir)

	confdir := filepath.Join(homedir, ".xray")
	require.NoError(t, os.Mkdir(confdir, 0750))

	return confdir
}

func PrepareTempConfigFile(t *testing.T, config string) {
	confdir := PrepareTempConfigDir(t)
	confFile, err := os.Create(filepath.Join(confdir, "config.yaml"))
	require.NoError(t, err)
	_, err = confFile.WriteString(config)
	require.NoError(t, err)
	require.NoError(t, confFile.Close())
}
