package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"

	"github.com/opscart/ng-market-monitor/pkg/analyzer"
	"github.com/opscart/ng-market-monitor/pkg/cache"
	"github.com/opscart/ng-market-monitor/pkg/config"
	"github.com/opscart/ng-market-monitor/pkg/models"
	"github.com/opscart/ng-market-monitor/pkg/storage"
)

var (
	// ErrUnknownSeries means no configured dataset carries the series
	ErrUnknownSeries = errors.New("unknown series")

	// ErrSeriesUnavailable means the dataset is loaded but that series failed to fetch
	ErrSeriesUnavailable = errors.New("series unavailable in current snapshot")
)

// Result wraps computed data with the freshness of the snapshot it came from
type Result[T any] struct {
	Data        T             `json:"data"`
	Dataset     string        `json:"dataset"`
	Series      string        `json:"series,omitempty"`
	RefreshedAt time.Time     `json:"refreshed_at"`
	Age         time.Duration `json:"-"`
	Stale       bool          `json:"stale"`
}

// Options configures a Monitor
type Options struct {
	Cache  *cache.Cache
	Static *config.Static
	Store  storage.Store // optional alert journal
	Clock  clock.PassiveClock
	Logger logr.Logger
}

// Monitor answers consumer queries from cached snapshots. It never triggers
// a refresh; analytics are recomputed from the snapshot on every call.
type Monitor struct {
	cache      *cache.Cache
	static     *config.Static
	store      storage.Store
	thresholds analyzer.AnomalyThresholds
	clock      clock.PassiveClock
	log        logr.Logger
}

func New(opts Options) *Monitor {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	return &Monitor{
		cache:      opts.Cache,
		static:     opts.Static,
		store:      opts.Store,
		thresholds: analyzer.AnomalyThresholdsFrom(opts.Static.Thresholds),
		clock:      opts.Clock,
		log:        opts.Logger.WithName("monitor"),
	}
}

// Static returns the lookup tables the monitor was built with
func (m *Monitor) Static() *config.Static {
	return m.static
}

// Status reports refresh state for every dataset
func (m *Monitor) Status() []cache.DatasetStatus {
	return m.cache.Status()
}

// GetDataset returns the raw snapshot of a dataset
func (m *Monitor) GetDataset(name string) (*cache.Lookup, error) {
	return m.cache.Get(name)
}

// GetPercentiles ranks every observation of series against its seasonal history
func (m *Monitor) GetPercentiles(series string) (Result[[]models.PercentileRecord], error) {
	ts, lookup, dataset, err := m.series(series)
	if err != nil {
		return Result[[]models.PercentileRecord]{}, err
	}
	records := analyzer.ComputePercentiles(ts, m.static.Analytics.ReferenceYears)
	return newResult(records, dataset, series, lookup), nil
}

// GetAnomalies runs the level and change detectors on the latest percentile records
func (m *Monitor) GetAnomalies(series string) (Result[models.AnomalyReport], error) {
	ts, lookup, dataset, err := m.series(series)
	if err != nil {
		return Result[models.AnomalyReport]{}, err
	}
	records := analyzer.ComputePercentiles(ts, m.static.Analytics.ReferenceYears)
	report := analyzer.DetectAnomalies(records, m.thresholds)
	return newResult(report, dataset, series, lookup), nil
}

// GetUtilization computes facility utilization from the facility dataset
func (m *Monitor) GetUtilization() (Result[[]models.UtilizationRecord], error) {
	lookup, dataset, err := m.facilitySnapshot()
	if err != nil {
		return Result[[]models.UtilizationRecord]{}, err
	}
	records := analyzer.ComputeUtilization(lookup.Dataset.Series, m.static.Facilities)
	return newResult(records, dataset, "", lookup), nil
}

// GetUtilizationAlerts flags facilities outside the configured utilization band
func (m *Monitor) GetUtilizationAlerts() (Result[[]models.UtilizationAlert], error) {
	lookup, dataset, err := m.facilitySnapshot()
	if err != nil {
		return Result[[]models.UtilizationAlert]{}, err
	}
	records := analyzer.ComputeUtilization(lookup.Dataset.Series, m.static.Facilities)
	alerts := analyzer.DetectUtilizationAlerts(records, m.static.Thresholds.UtilizationHigh, m.static.Thresholds.UtilizationLow)
	return newResult(alerts, dataset, "", lookup), nil
}

// GetGrowth computes trend statistics for series, or the configured growth
// series when series is empty.
func (m *Monitor) GetGrowth(series string) (Result[[]models.GrowthRecord], error) {
	if series == "" {
		series = m.static.Analytics.GrowthSeries
	}
	ts, lookup, dataset, err := m.series(series)
	if err != nil {
		return Result[[]models.GrowthRecord]{}, err
	}
	return newResult(analyzer.ComputeGrowth(ts), dataset, series, lookup), nil
}

// Alerts lists journaled alerts, newest first
func (m *Monitor) Alerts(ctx context.Context, series string, limit int) ([]*models.AlertEvent, error) {
	if m.store == nil {
		return []*models.AlertEvent{}, nil
	}
	return m.store.ListAlerts(ctx, series, limit)
}

func (m *Monitor) series(name string) (models.TimeSeries, *cache.Lookup, string, error) {
	spec, ok := m.static.DatasetFor(name)
	if !ok {
		return models.TimeSeries{}, nil, "", fmt.Errorf("%w: %s", ErrUnknownSeries, name)
	}

	lookup, err := m.cache.Get(spec.Name)
	if err != nil {
		return models.TimeSeries{}, nil, spec.Name, err
	}

	ts, ok := lookup.Dataset.Series[name]
	if !ok {
		return models.TimeSeries{}, lookup, spec.Name, fmt.Errorf("%w: %s", ErrSeriesUnavailable, name)
	}
	return ts, lookup, spec.Name, nil
}

func (m *Monitor) facilitySnapshot() (*cache.Lookup, string, error) {
	spec, err := m.static.FacilityDataset()
	if err != nil {
		return nil, "", err
	}
	lookup, err := m.cache.Get(spec.Name)
	if err != nil {
		return nil, spec.Name, err
	}
	return lookup, spec.Name, nil
}

func newResult[T any](data T, dataset, series string, lookup *cache.Lookup) Result[T] {
	return Result[T]{
		Data:        data,
		Dataset:     dataset,
		Series:      series,
		RefreshedAt: lookup.RefreshedAt,
		Age:         lookup.Age,
		Stale:       lookup.Stale,
	}
}
