// Package cmd contains all the commands included in the binary file.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bimview/xray/internal/build"
)

const (
	datastoreURIFlag = "datastore-uri"
	datastoreURIConf = "datastore.uri"
)

// NewRootCommand enables all children commands to read flags from CLI flags, environment variables prefixed with XRAY, or config.yaml (in that order).
func NewRootCommand() *cobra.Command {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("XRAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	configPaths := []string{"/etc/xray", "$HOME/.xray", "."}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	viper.SetDefault(datastoreURIFlag, "")
	err := viper.ReadInConfig()
	if err == nil {
		viper.SetDefault(datastoreURIFlag, viper.Get(datastoreURIConf))
	}

	return &cobra.Command{
		Use:     build.ProjectName,
		Short:   "Build storey outlines of a building model in the background",
		Long:    "Imports building models into a local store and builds one outline per storey, storey by storey, without blocking the host.",
		Version: build.Version,
	}
}

// NewVersionCommand returns the command printing build information.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Reports the current version of " + build.ProjectName,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s version `%s` build from `%s` on `%s`\n", build.ProjectName, build.Version, build.Commit, build.Date)
		},
	}
}
