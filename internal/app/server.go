// Package app assembles the service: cache store, eviction manager,
// fetcher, pipeline, coordinator and HTTP routes.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/resizr/resizr/internal/errutil"
	"github.com/resizr/resizr/internal/eviction"
	_ "github.com/resizr/resizr/internal/eviction/lru"
	"github.com/resizr/resizr/internal/eviction/policy"
	"github.com/resizr/resizr/internal/eviction/policy/maxsize"
	"github.com/resizr/resizr/internal/eviction/policy/minfree"
	"github.com/resizr/resizr/internal/fetch"
	"github.com/resizr/resizr/internal/handler"
	"github.com/resizr/resizr/internal/imageproc"
	"github.com/resizr/resizr/internal/metrics"
	"github.com/resizr/resizr/internal/resizer"
	"github.com/resizr/resizr/internal/store"
)

type Config struct {
	Port              int
	CacheDir          string
	FetchTimeout      time.Duration
	Quality           int
	QualityAboveWidth int
	MaxCacheSize      int64
	MinFreeSpace      int64
	EvictionInterval  time.Duration
	EvictionStrategy  string

	// MaxConcurrentTransforms bounds parallel decode/encode work.
	// 0 means one per CPU.
	MaxConcurrentTransforms int64

	// Metrics disables the /metrics endpoint and all collectors when
	// false (used by the one-shot CLI).
	Metrics bool
}

// NewServer wires the service and returns the HTTP server plus a cleanup
// function stopping the background eviction loop.
func NewServer(cfg Config) (*http.Server, func(), error) {
	strat, err := eviction.GetStrategy(cfg.EvictionStrategy)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize eviction strategy: %w", err)
	}

	var policies []policy.Policy
	if cfg.MaxCacheSize > 0 {
		slog.Info("Adding max cache size policy", "max_size", cfg.MaxCacheSize)
		policies = append(policies, &maxsize.Policy{MaxBytes: cfg.MaxCacheSize})
	}
	if cfg.MinFreeSpace > 0 {
		slog.Info("Adding min free space policy", "min_free", cfg.MinFreeSpace)
		policies = append(policies, &minfree.Policy{
			Path:         cfg.CacheDir,
			MinFreeBytes: cfg.MinFreeSpace,
		})
	}
	if len(policies) == 0 {
		slog.Info("No eviction policies configured (unbounded cache)")
	}

	var m *metrics.Metrics
	if cfg.Metrics {
		m = metrics.New(nil, "resizr")
	}

	mgr := eviction.NewManager(policies, cfg.EvictionInterval, strat)
	if m != nil {
		mgr.SetObserver(m)
	}

	st := store.New(cfg.CacheDir, mgr)
	mgr.SetStore(st)
	if err := mgr.LoadInitialState(); err != nil {
		errutil.LogMsg(err, "Failed to load initial cache state")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go mgr.Start(ctx)

	rz := resizer.New(resizer.Config{
		Store:                   st,
		Fetcher:                 fetch.NewFetcher(nil, cfg.FetchTimeout),
		Pipeline:                imageproc.Pipeline{Policy: policyFromConfig(cfg)},
		Policy:                  policyFromConfig(cfg),
		Metrics:                 m,
		MaxConcurrentTransforms: cfg.MaxConcurrentTransforms,
	})

	mux := http.NewServeMux()
	mux.Handle("/resize", handler.NewResizeHandler(rz, m))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.Metrics {
		mux.Handle("/metrics", promhttp.Handler())
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	slog.Info("Starting server", "addr", addr, "cache_dir", cfg.CacheDir)

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	return server, cancel, nil
}

func policyFromConfig(cfg Config) imageproc.Policy {
	p := imageproc.DefaultPolicy()
	if cfg.Quality > 0 {
		p.Quality = cfg.Quality
	}
	if cfg.QualityAboveWidth > 0 {
		p.QualityAboveWidth = cfg.QualityAboveWidth
	}
	return p
}
