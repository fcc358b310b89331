package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/utils/clock"

	"github.com/opscart/ng-market-monitor/pkg/cache"
	"github.com/opscart/ng-market-monitor/pkg/config"
	"github.com/opscart/ng-market-monitor/pkg/datasource"
	"github.com/opscart/ng-market-monitor/pkg/monitor"
	"github.com/opscart/ng-market-monitor/pkg/storage"
)

// app is the wired set of components every command shares
type app struct {
	cfg     *config.Config
	static  *config.Static
	log     logr.Logger
	clock   clock.WithTicker
	cache   *cache.Cache
	monitor *monitor.Monitor
	store   storage.Store
}

// newApp wires config, fetchers, cache, journal and monitor. reg receives the
// refresh metrics; nil leaves them unregistered.
func newApp(ctx context.Context, cfg *config.Config, log logr.Logger, reg prometheus.Registerer) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	static, err := config.LoadStatic(cfg.StaticConfigPath)
	if err != nil {
		return nil, err
	}

	clk := clock.RealClock{}
	if !cfg.EIAConfigured() {
		fmt.Fprintln(os.Stderr, "[WARN] EIA_API_KEY not set, EIA datasets will report not configured")
	}

	fetchers := map[string]datasource.Fetcher{
		config.SourceEIA: datasource.NewEIAClient(datasource.EIAConfig{
			BaseURL:           cfg.EIABaseURL,
			APIKey:            cfg.EIAAPIKey,
			LookbackDays:      cfg.LookbackDays,
			RequestsPerSecond: cfg.RequestsPerSecond,
		}, clk, log),
	}
	if cfg.PrometheusURL != "" {
		lookback := time.Duration(cfg.LookbackDays) * 24 * time.Hour
		prom, err := datasource.NewPrometheusSource(cfg.PrometheusURL, lookback, 0, clk, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus source: %w", err)
		}
		fetchers[config.SourcePrometheus] = prom
	}
	loader := datasource.NewLoader(fetchers, clk, log)

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.StorageBackend, err)
	}

	a := &app{
		cfg:    cfg,
		static: static,
		log:    log,
		clock:  clk,
		store:  store,
	}

	// The hook closes over a so the cache can be built before the monitor
	a.cache = cache.New(cache.Options{
		Clock:          clk,
		Logger:         log,
		TickInterval:   cfg.SchedulerTick,
		RefreshTimeout: cfg.RefreshTimeout,
		Metrics:        cache.NewMetrics(reg),
		OnRefresh: func(r cache.RefreshResult) {
			a.monitor.HandleRefresh(r)
		},
	})
	for _, spec := range static.Datasets {
		if err := a.cache.Register(spec.Name, spec.RefreshInterval(), loader.RefreshFunc(spec)); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to register dataset %s: %w", spec.Name, err)
		}
	}

	a.monitor = monitor.New(monitor.Options{
		Cache:  a.cache,
		Static: static,
		Store:  store,
		Clock:  clk,
		Logger: log,
	})
	return a, nil
}

// refreshAll loads every dataset once, in order. Failures are reported and
// skipped so a partial report can still be produced.
func (a *app) refreshAll(ctx context.Context) int {
	failed := 0
	for _, name := range a.cache.Names() {
		if err := a.cache.RefreshOne(ctx, name); err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] %s: %v\n", name, err)
			failed++
			continue
		}
		logVerbose("refreshed %s", name)
	}
	return failed
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Error(err, "failed to close store")
	}
}
