package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/opscart/ng-market-monitor/pkg/datasource"
	"github.com/opscart/ng-market-monitor/pkg/models"
)

var epoch = time.Date(2024, time.May, 15, 9, 0, 0, 0, time.UTC)

func newTestCache(t *testing.T, opts Options) (*Cache, *testingclock.FakeClock) {
	clk := testingclock.NewFakeClock(epoch)
	opts.Clock = clk
	opts.Logger = testr.New(t)
	return New(opts), clk
}

func testDataset(name string, value float64) *models.Dataset {
	return &models.Dataset{
		Name: name,
		Series: map[string]models.TimeSeries{
			name + "_total": {
				Name:         name + "_total",
				Observations: []models.Observation{{Timestamp: epoch, Value: value}},
			},
		},
	}
}

// countingRefresh returns successive datasets and counts calls
type countingRefresh struct {
	name  string
	calls atomic.Int32
	err   error
}

func (r *countingRefresh) fn(ctx context.Context) (*models.Dataset, error) {
	n := r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return testDataset(r.name, float64(n)), nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRegisterValidation(t *testing.T) {
	c, _ := newTestCache(t, Options{})
	noop := func(ctx context.Context) (*models.Dataset, error) { return nil, nil }

	if err := c.Register("storage", time.Hour, noop); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	tests := []struct {
		name     string
		dataset  string
		interval time.Duration
		fn       RefreshFunc
		want     error
	}{
		{"duplicate", "storage", time.Hour, noop, ErrAlreadyRegistered},
		{"zero interval", "lng", 0, noop, ErrInvalidInterval},
		{"negative interval", "lng", -time.Minute, noop, ErrInvalidInterval},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Register(tt.dataset, tt.interval, tt.fn); !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}

	if err := c.Register("lng", time.Hour, nil); err == nil {
		t.Error("Expected error for nil refresh function")
	}
	if names := c.Names(); len(names) != 1 || names[0] != "storage" {
		t.Errorf("Expected only storage registered, got %v", names)
	}
}

func TestGetErrors(t *testing.T) {
	c, _ := newTestCache(t, Options{})
	r := &countingRefresh{name: "storage"}
	c.Register("storage", time.Hour, r.fn)

	if _, err := c.Get("weather"); !errors.Is(err, ErrUnknownDataset) {
		t.Errorf("Expected ErrUnknownDataset, got %v", err)
	}
	if _, err := c.Get("storage"); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Expected ErrNotLoaded, got %v", err)
	}
	if r.calls.Load() != 0 {
		t.Error("Get must never trigger a refresh")
	}
}

func TestRefreshOneAndStaleness(t *testing.T) {
	c, clk := newTestCache(t, Options{})
	r := &countingRefresh{name: "storage"}
	c.Register("storage", time.Hour, r.fn)

	if err := c.RefreshOne(context.Background(), "storage"); err != nil {
		t.Fatalf("RefreshOne failed: %v", err)
	}

	lookup, err := c.Get("storage")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if lookup.Stale || lookup.Age != 0 {
		t.Errorf("Expected fresh snapshot, got age=%v stale=%v", lookup.Age, lookup.Stale)
	}
	if !lookup.RefreshedAt.Equal(epoch) {
		t.Errorf("Expected refreshed at %v, got %v", epoch, lookup.RefreshedAt)
	}

	// Exactly one interval old is not yet stale
	clk.Step(time.Hour)
	lookup, _ = c.Get("storage")
	if lookup.Stale {
		t.Error("Expected not stale at exactly the interval")
	}

	// Past the interval the data is stale but still served
	clk.Step(time.Hour)
	lookup, err = c.Get("storage")
	if err != nil {
		t.Fatalf("Expected stale data to be served, got %v", err)
	}
	if !lookup.Stale || lookup.Age != 2*time.Hour {
		t.Errorf("Expected stale at 2h, got age=%v stale=%v", lookup.Age, lookup.Stale)
	}
	if lookup.Dataset == nil || lookup.Dataset.Name != "storage" {
		t.Error("Expected stale dataset to be returned")
	}
}

func TestFailedRefreshKeepsSnapshot(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	c, clk := newTestCache(t, Options{Metrics: metrics})

	var fail atomic.Bool
	var mode atomic.Int32
	refresh := func(ctx context.Context) (*models.Dataset, error) {
		if !fail.Load() {
			return testDataset("storage", 2500), nil
		}
		switch mode.Load() {
		case 0:
			return nil, &datasource.FetchError{Series: "NG.NW2_EPG0_SWO_R48_BCF.W", StatusCode: 503, Err: errors.New("unavailable")}
		case 1:
			return nil, nil
		default:
			return &models.Dataset{Name: "storage", Series: map[string]models.TimeSeries{}}, nil
		}
	}
	c.Register("storage", time.Hour, refresh)

	if err := c.RefreshOne(context.Background(), "storage"); err != nil {
		t.Fatalf("Initial refresh failed: %v", err)
	}
	original, _ := c.Get("storage")

	fail.Store(true)
	for i := int32(0); i < 3; i++ {
		mode.Store(i)
		clk.Step(2 * time.Hour)
		if err := c.RefreshOne(context.Background(), "storage"); err == nil {
			t.Fatalf("Mode %d: expected refresh error", i)
		}

		lookup, err := c.Get("storage")
		if err != nil {
			t.Fatalf("Mode %d: expected previous snapshot, got %v", i, err)
		}
		if lookup.Dataset != original.Dataset {
			t.Errorf("Mode %d: snapshot was replaced", i)
		}
		if !lookup.RefreshedAt.Equal(original.RefreshedAt) {
			t.Errorf("Mode %d: timestamp changed to %v", i, lookup.RefreshedAt)
		}
		if !lookup.Stale {
			t.Errorf("Mode %d: expected stale after failed refresh", i)
		}
	}

	status := c.Status()
	if len(status) != 1 || status[0].LastError == "" || !status[0].Loaded {
		t.Errorf("Expected loaded status with last error, got %+v", status)
	}

	if got := testutil.ToFloat64(metrics.attempts.WithLabelValues("storage")); got != 4 {
		t.Errorf("Expected 4 attempts, got %.0f", got)
	}
	if got := testutil.ToFloat64(metrics.failures.WithLabelValues("storage", "fetch_error")); got != 1 {
		t.Errorf("Expected 1 fetch_error failure, got %.0f", got)
	}
	if got := testutil.ToFloat64(metrics.failures.WithLabelValues("storage", "empty_result")); got != 1 {
		t.Errorf("Expected 1 empty_result failure, got %.0f", got)
	}
	if got := testutil.ToFloat64(metrics.lastSuccess.WithLabelValues("storage")); got != float64(epoch.Unix()) {
		t.Errorf("Expected last success %d, got %.0f", epoch.Unix(), got)
	}
}

func TestTickRefreshesOnlyDueDatasets(t *testing.T) {
	c, clk := newTestCache(t, Options{})
	lng := &countingRefresh{name: "lng"}
	storage := &countingRefresh{name: "storage"}
	c.Register("lng", time.Hour, lng.fn)
	c.Register("storage", 24*time.Hour, storage.fn)

	// Cold start: everything is due
	c.Tick(context.Background())
	c.Wait()
	if lng.calls.Load() != 1 || storage.calls.Load() != 1 {
		t.Fatalf("Expected one refresh each, got lng=%d storage=%d", lng.calls.Load(), storage.calls.Load())
	}

	// Not yet due
	clk.Step(30 * time.Minute)
	c.Tick(context.Background())
	c.Wait()
	if lng.calls.Load() != 1 {
		t.Errorf("Expected lng not refreshed early, got %d calls", lng.calls.Load())
	}

	clk.Step(30 * time.Minute)
	c.Tick(context.Background())
	c.Wait()
	if lng.calls.Load() != 2 {
		t.Errorf("Expected lng refreshed at its interval, got %d calls", lng.calls.Load())
	}
	if storage.calls.Load() != 1 {
		t.Errorf("Expected storage untouched, got %d calls", storage.calls.Load())
	}

	lookup, _ := c.Get("lng")
	if v := lookup.Dataset.Series["lng_total"].Observations[0].Value; v != 2 {
		t.Errorf("Expected the second snapshot, got value %.0f", v)
	}
}

func TestFailedDatasetRetriedEveryTick(t *testing.T) {
	c, clk := newTestCache(t, Options{})
	r := &countingRefresh{name: "lng", err: datasource.ErrNotConfigured}
	c.Register("lng", 24*time.Hour, r.fn)

	for i := 0; i < 3; i++ {
		c.Tick(context.Background())
		c.Wait()
		clk.Step(time.Minute)
	}
	if r.calls.Load() != 3 {
		t.Errorf("Expected a retry on every tick while never loaded, got %d", r.calls.Load())
	}
}

func TestRefreshInFlightIsSkipped(t *testing.T) {
	c, _ := newTestCache(t, Options{})

	release := make(chan struct{})
	var calls atomic.Int32
	c.Register("storage", time.Hour, func(ctx context.Context) (*models.Dataset, error) {
		calls.Add(1)
		<-release
		return testDataset("storage", 1), nil
	})

	c.Tick(context.Background())
	c.Tick(context.Background())

	if err := c.RefreshOne(context.Background(), "storage"); !errors.Is(err, ErrRefreshInFlight) {
		t.Errorf("Expected ErrRefreshInFlight, got %v", err)
	}
	if st := c.Status(); !st[0].Refreshing {
		t.Error("Expected status to report refreshing")
	}

	close(release)
	c.Wait()

	if calls.Load() != 1 {
		t.Errorf("Expected a single in-flight refresh, got %d", calls.Load())
	}
	if _, err := c.Get("storage"); err != nil {
		t.Errorf("Expected snapshot after release, got %v", err)
	}
}

func TestSlowDatasetDoesNotBlockOthers(t *testing.T) {
	c, _ := newTestCache(t, Options{})

	release := make(chan struct{})
	c.Register("storage", time.Hour, func(ctx context.Context) (*models.Dataset, error) {
		<-release
		return testDataset("storage", 1), nil
	})
	lng := &countingRefresh{name: "lng"}
	c.Register("lng", time.Hour, lng.fn)

	c.Tick(context.Background())
	defer func() {
		close(release)
		c.Wait()
	}()

	waitFor(t, "lng snapshot", func() bool {
		_, err := c.Get("lng")
		return err == nil
	})
	if _, err := c.Get("storage"); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Expected storage still loading, got %v", err)
	}
}

func TestRefreshTimeout(t *testing.T) {
	c, _ := newTestCache(t, Options{RefreshTimeout: 20 * time.Millisecond})
	c.Register("storage", time.Hour, func(ctx context.Context) (*models.Dataset, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	err := c.RefreshOne(context.Background(), "storage")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if _, err := c.Get("storage"); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Expected ErrNotLoaded after timeout, got %v", err)
	}
}

func TestOnRefreshCallback(t *testing.T) {
	var mu sync.Mutex
	var results []RefreshResult
	c, _ := newTestCache(t, Options{OnRefresh: func(r RefreshResult) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, r)
	}})

	ok := &countingRefresh{name: "storage"}
	bad := &countingRefresh{name: "lng", err: datasource.ErrEmptyResult}
	c.Register("storage", time.Hour, ok.fn)
	c.Register("lng", time.Hour, bad.fn)

	c.Tick(context.Background())
	c.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		switch r.Dataset {
		case "storage":
			if r.Err != nil || r.Snapshot == nil {
				t.Errorf("Expected storage success, got %+v", r)
			}
		case "lng":
			if !errors.Is(r.Err, datasource.ErrEmptyResult) || r.Snapshot != nil {
				t.Errorf("Expected lng failure, got %+v", r)
			}
		default:
			t.Errorf("Unexpected dataset %s", r.Dataset)
		}
	}
}

func TestStartStop(t *testing.T) {
	c, clk := newTestCache(t, Options{TickInterval: time.Minute})
	r := &countingRefresh{name: "lng"}
	c.Register("lng", time.Minute, r.fn)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := c.Start(context.Background()); err == nil {
		t.Error("Expected error starting twice")
	}

	waitFor(t, "cold start refresh", func() bool {
		_, err := c.Get("lng")
		return err == nil && !c.Status()[0].Refreshing
	})
	waitFor(t, "ticker", clk.HasWaiters)

	clk.Step(time.Minute)
	waitFor(t, "tick refresh", func() bool { return r.calls.Load() >= 2 })

	c.Stop()
	c.Stop()

	lookup, err := c.Get("lng")
	if err != nil {
		t.Fatalf("Expected snapshot after stop, got %v", err)
	}
	if lookup.Dataset == nil {
		t.Error("Expected dataset after stop")
	}
}
