package main

import (
	"fmt"
	"os"

	"github.com/resizr/resizr/internal/errutil"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "resizr",
	Short: "A caching image resize service",
	Long:  `resizr serves resized images fetched from remote URLs, caching originals and resize variants on disk.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if _, printErr := fmt.Fprintln(os.Stderr, err); printErr != nil {
			errutil.ReportError(printErr, "Failed to print error to stderr")
		}
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	viper.SetEnvPrefix("RESIZR")
	viper.AutomaticEnv()
}
