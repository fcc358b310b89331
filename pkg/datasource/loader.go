package datasource

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/opscart/ng-market-monitor/pkg/config"
	"github.com/opscart/ng-market-monitor/pkg/models"
)

// DefaultConcurrency bounds parallel sub-series fetches per dataset
const DefaultConcurrency = 4

// Loader assembles a full dataset snapshot from its sub-series
type Loader struct {
	fetchers    map[string]Fetcher // by config source name
	concurrency int
	clock       clock.PassiveClock
	log         logr.Logger
}

func NewLoader(fetchers map[string]Fetcher, clk clock.PassiveClock, log logr.Logger) *Loader {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Loader{
		fetchers:    fetchers,
		concurrency: DefaultConcurrency,
		clock:       clk,
		log:         log.WithName("loader"),
	}
}

// Load fetches every sub-series of spec. A sub-series that fails is logged
// and left out; the dataset fails only when nothing could be fetched.
func (l *Loader) Load(ctx context.Context, spec config.DatasetSpec) (*models.Dataset, error) {
	fetcher, ok := l.fetchers[spec.Source]
	if !ok || fetcher == nil {
		return nil, fmt.Errorf("dataset %s: source %s: %w", spec.Name, spec.Source, ErrNotConfigured)
	}

	var (
		mu       sync.Mutex
		series   = make(map[string]models.TimeSeries, len(spec.Series))
		failures []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)

	for _, key := range spec.SeriesKeys() {
		id := spec.Series[key]
		g.Go(func() error {
			ts, err := fetcher.Fetch(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				l.log.V(1).Info("sub-series fetch failed", "dataset", spec.Name, "series", key, "reason", Reason(err), "err", err.Error())
				failures = append(failures, err)
				return nil
			}
			ts.Name = key
			if ts.Unit == "" {
				ts.Unit = spec.Unit
			}
			series[key] = ts
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(series) == 0 {
		if len(failures) == 0 {
			return nil, fmt.Errorf("dataset %s: %w", spec.Name, ErrEmptyResult)
		}
		return nil, fmt.Errorf("dataset %s: %w", spec.Name, errors.Join(failures...))
	}

	if len(failures) > 0 {
		l.log.Info("dataset loaded with missing series", "dataset", spec.Name, "loaded", len(series), "failed", len(failures))
	}

	return &models.Dataset{
		Name:            spec.Name,
		Series:          series,
		RefreshInterval: spec.RefreshInterval(),
		LastRefreshedAt: l.clock.Now(),
	}, nil
}

// RefreshFunc binds spec to the loader for use with the refresh cache
func (l *Loader) RefreshFunc(spec config.DatasetSpec) func(context.Context) (*models.Dataset, error) {
	return func(ctx context.Context) (*models.Dataset, error) {
		return l.Load(ctx, spec)
	}
}
