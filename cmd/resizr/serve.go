package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/resizr/resizr/internal/app"
	"github.com/resizr/resizr/internal/errutil"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the HTTP server",
	Run: func(cmd *cobra.Command, args []string) {
		server, cleanup, err := app.NewServer(app.Config{
			Port:                    viper.GetInt("port"),
			CacheDir:                viper.GetString("cache-dir"),
			FetchTimeout:            viper.GetDuration("fetch-timeout"),
			Quality:                 viper.GetInt("quality"),
			QualityAboveWidth:       viper.GetInt("quality-above-width"),
			MaxCacheSize:            viper.GetInt64("max-cache-size"),
			MinFreeSpace:            viper.GetInt64("min-free-space"),
			EvictionInterval:        viper.GetDuration("eviction-interval"),
			EvictionStrategy:        viper.GetString("eviction-strategy"),
			MaxConcurrentTransforms: viper.GetInt64("max-transforms"),
			Metrics:                 true,
		})
		if err != nil {
			errutil.ReportError(err, "Failed to initialize server")
			os.Exit(1)
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				errutil.ReportError(err, "Server failed")
				os.Exit(1)
			}
		case <-ctx.Done():
			slog.Info("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			errutil.LogMsg(server.Shutdown(shutdownCtx), "Graceful shutdown failed")
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 3000, "Port to run the server on")
	serveCmd.Flags().String("cache-dir", "./images", "Directory for cached originals and variants")
	serveCmd.Flags().Duration("fetch-timeout", 30*time.Second, "Timeout for upstream image fetches")
	serveCmd.Flags().Int("quality", 94, "Encoder quality for large outputs")
	serveCmd.Flags().Int("quality-above-width", 800, "Apply explicit quality only above this requested width")
	serveCmd.Flags().Int64("max-cache-size", 0, "Max cache size in bytes (0 = unbounded)")
	serveCmd.Flags().Int64("min-free-space", 0, "Min free disk space in bytes (0 = disabled)")
	serveCmd.Flags().Duration("eviction-interval", time.Minute, "Interval to check for evictions")
	serveCmd.Flags().String("eviction-strategy", "lru", "Eviction strategy to use (lru)")
	serveCmd.Flags().Int64("max-transforms", 0, "Max concurrent image transforms (0 = one per CPU)")

	for _, flag := range []string{
		"port", "cache-dir", "fetch-timeout", "quality", "quality-above-width",
		"max-cache-size", "min-free-space", "eviction-interval",
		"eviction-strategy", "max-transforms",
	} {
		errutil.LogMsg(viper.BindPFlag(flag, serveCmd.Flags().Lookup(flag)), "Failed to bind flag", "flag", flag)
	}
}
