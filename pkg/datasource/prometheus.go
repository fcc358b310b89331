package datasource

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"k8s.io/utils/clock"

	"github.com/opscart/ng-market-monitor/pkg/models"
)

// PrometheusSource reads series from a Prometheus-compatible store, for
// datasets whose source is "prometheus". The series id is a PromQL query.
type PrometheusSource struct {
	client   v1.API
	url      string
	lookback time.Duration
	step     time.Duration
	clock    clock.PassiveClock
	log      logr.Logger
}

func NewPrometheusSource(url string, lookback, step time.Duration, clk clock.PassiveClock, log logr.Logger) (*PrometheusSource, error) {
	if url == "" {
		return nil, ErrNotConfigured
	}
	client, err := api.NewClient(api.Config{
		Address: url,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}
	if lookback <= 0 {
		lookback = 730 * 24 * time.Hour
	}
	if step <= 0 {
		step = 24 * time.Hour
	}
	if clk == nil {
		clk = clock.RealClock{}
	}

	return &PrometheusSource{
		client:   v1.NewAPI(client),
		url:      url,
		lookback: lookback,
		step:     step,
		clock:    clk,
		log:      log.WithName("prometheus"),
	}, nil
}

// Fetch runs a range query over the lookback window. Samples from multiple
// result series are summed per timestamp.
func (p *PrometheusSource) Fetch(ctx context.Context, query string) (models.TimeSeries, error) {
	end := p.clock.Now()
	r := v1.Range{
		Start: end.Add(-p.lookback),
		End:   end,
		Step:  p.step,
	}

	result, warnings, err := p.client.QueryRange(ctx, query, r)
	if err != nil {
		return models.TimeSeries{}, &FetchError{Series: query, Err: fmt.Errorf("prometheus query failed: %w", err)}
	}
	if len(warnings) > 0 {
		p.log.Info("prometheus returned warnings", "query", query, "warnings", warnings)
	}

	series, err := parseMatrix(query, result)
	if err != nil {
		return models.TimeSeries{}, &FetchError{Series: query, Err: err}
	}
	if series.Len() == 0 {
		return models.TimeSeries{}, fmt.Errorf("query %s: %w", query, ErrEmptyResult)
	}
	return series, nil
}

func parseMatrix(name string, result model.Value) (models.TimeSeries, error) {
	matrix, ok := result.(model.Matrix)
	if !ok {
		return models.TimeSeries{}, fmt.Errorf("unexpected result type: %T", result)
	}

	sums := make(map[int64]float64)
	for _, stream := range matrix {
		for _, pair := range stream.Values {
			v := float64(pair.Value)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			sums[int64(pair.Timestamp)] += v
		}
	}

	series := models.TimeSeries{Name: name}
	for ms, v := range sums {
		series.Observations = append(series.Observations, models.Observation{
			Timestamp: time.UnixMilli(ms).UTC(),
			Value:     v,
		})
	}
	return series.Sorted(), nil
}

// IsAvailable checks connectivity with a trivial instant query
func (p *PrometheusSource) IsAvailable(ctx context.Context) bool {
	_, _, err := p.client.Query(ctx, "up", p.clock.Now())
	return err == nil
}

func (p *PrometheusSource) Name() string {
	return "prometheus"
}
