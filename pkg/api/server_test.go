package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/prometheus/client_golang/prometheus"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/opscart/ng-market-monitor/pkg/cache"
	"github.com/opscart/ng-market-monitor/pkg/config"
	"github.com/opscart/ng-market-monitor/pkg/datasource"
	"github.com/opscart/ng-market-monitor/pkg/models"
	"github.com/opscart/ng-market-monitor/pkg/monitor"
	"github.com/opscart/ng-market-monitor/pkg/storage"
)

var now = time.Date(2024, time.May, 15, 9, 0, 0, 0, time.UTC)

func weekDate(year, week int) time.Time {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(jan4.Weekday()) + 6) % 7
	return jan4.AddDate(0, 0, -offset+(week-1)*7)
}

func storageSnapshot() *models.Dataset {
	var obs []models.Observation
	for i, v := range []float64{100, 110, 120, 130, 140, 200} {
		obs = append(obs, models.Observation{Timestamp: weekDate(2019+i, 19), Value: v})
	}
	return &models.Dataset{
		Name: "storage",
		Series: map[string]models.TimeSeries{
			"storage_total": {Name: "storage_total", Unit: "Bcf", Observations: obs},
		},
	}
}

type testEnv struct {
	server *Server
	cache  *cache.Cache
	store  *storage.MemoryStore
	mon    *monitor.Monitor
}

func newTestEnv(t *testing.T) *testEnv {
	static, err := config.DefaultStatic()
	if err != nil {
		t.Fatalf("Failed to load defaults: %v", err)
	}

	clk := testingclock.NewFakeClock(now)
	c := cache.New(cache.Options{Clock: clk, Logger: testr.New(t)})
	for _, spec := range static.Datasets {
		name := spec.Name
		c.Register(name, spec.RefreshInterval(), func(ctx context.Context) (*models.Dataset, error) {
			if name == "storage" {
				return storageSnapshot(), nil
			}
			return nil, datasource.ErrNotConfigured
		})
	}

	store := storage.NewMemoryStore()
	mon := monitor.New(monitor.Options{Cache: c, Static: static, Store: store, Clock: clk, Logger: testr.New(t)})

	reg := prometheus.NewRegistry()
	srv := NewServer(Options{
		Monitor:  mon,
		Logger:   testr.New(t),
		Metrics:  NewHTTPMetrics(reg),
		Gatherer: reg,
	})
	return &testEnv{server: srv, cache: c, store: store, mon: mon}
}

func (e *testEnv) get(t *testing.T, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)

	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s: invalid JSON: %v", path, err)
		}
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.get(t, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if body["status"] != "ok" || body["datasets"].(float64) != 4 || body["datasets_loaded"].(float64) != 0 {
		t.Errorf("Unexpected health body: %v", body)
	}
}

func TestSeriesEndpointsBeforeLoad(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		path   string
		status int
	}{
		{"/api/series/storage_total/anomalies", http.StatusServiceUnavailable},
		{"/api/series/storage_total/percentiles", http.StatusServiceUnavailable},
		{"/api/utilization", http.StatusServiceUnavailable},
		{"/api/growth", http.StatusServiceUnavailable},
		{"/api/series/henry_hub/anomalies", http.StatusNotFound},
		{"/api/datasets/weather", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec, body := env.get(t, tt.path)
			if rec.Code != tt.status {
				t.Errorf("Expected %d, got %d", tt.status, rec.Code)
			}
			if tt.status == http.StatusServiceUnavailable && body["status"] != "unavailable" {
				t.Errorf("Expected unavailable status, got %v", body)
			}
		})
	}
}

func TestSeriesEndpointsAfterLoad(t *testing.T) {
	env := newTestEnv(t)
	if err := env.cache.RefreshOne(context.Background(), "storage"); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	rec, body := env.get(t, "/api/series/storage_total/anomalies")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body["stale"] != false || body["dataset"] != "storage" || body["series"] != "storage_total" {
		t.Errorf("Unexpected envelope: %v", body)
	}
	if _, ok := body["age_seconds"]; !ok {
		t.Error("Expected age_seconds in response")
	}
	data := body["data"].(map[string]any)
	if high := data["high_value"].([]any); len(high) != 1 {
		t.Errorf("Expected 1 high-value alert, got %d", len(high))
	}
	if change := data["rapid_change"].([]any); len(change) != 0 {
		t.Errorf("Expected empty rapid_change list, got %d", len(change))
	}

	rec, body = env.get(t, "/api/series/storage_total/percentiles")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if records := body["data"].([]any); len(records) != 3 {
		t.Errorf("Expected 3 percentile records, got %d", len(records))
	}

	// Sub-series that was not part of the snapshot
	rec, _ = env.get(t, "/api/series/storage_east/percentiles")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 for missing sub-series, got %d", rec.Code)
	}

	rec, body = env.get(t, "/api/datasets/storage")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if series := body["data"].(map[string]any)["series"].(map[string]any); len(series) != 1 {
		t.Errorf("Expected 1 series in dataset, got %d", len(series))
	}
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t)
	env.cache.RefreshOne(context.Background(), "storage")
	env.cache.RefreshOne(context.Background(), "lng")

	rec, body := env.get(t, "/api/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	datasets := body["datasets"].([]any)
	if len(datasets) != 4 {
		t.Fatalf("Expected 4 datasets, got %d", len(datasets))
	}
	byName := make(map[string]map[string]any)
	for _, d := range datasets {
		m := d.(map[string]any)
		byName[m["name"].(string)] = m
	}
	if byName["storage"]["loaded"] != true {
		t.Error("Expected storage loaded")
	}
	if byName["lng"]["loaded"] != false || byName["lng"]["last_error"] == nil {
		t.Errorf("Expected lng failed with error, got %v", byName["lng"])
	}
	if byName["lng"]["interval_seconds"].(float64) != 3600 {
		t.Errorf("Expected 3600s interval, got %v", byName["lng"]["interval_seconds"])
	}
}

func TestAlertsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.mon.EvaluateAlerts(ctx, cache.RefreshResult{Dataset: "storage", Snapshot: storageSnapshot(), RefreshedAt: now})
	if err != nil {
		t.Fatalf("EvaluateAlerts failed: %v", err)
	}

	rec, body := env.get(t, "/api/alerts?series=storage_total&limit=5")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	alerts := body["alerts"].([]any)
	if len(alerts) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(alerts))
	}
	if kind := alerts[0].(map[string]any)["kind"]; kind != "HIGH_VALUE" {
		t.Errorf("Expected HIGH_VALUE, got %v", kind)
	}

	rec, _ = env.get(t, "/api/alerts?limit=abc")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad limit, got %d", rec.Code)
	}

	_, body = env.get(t, "/api/alerts?series=lng_total")
	if alerts := body["alerts"].([]any); len(alerts) != 0 {
		t.Errorf("Expected no lng alerts, got %d", len(alerts))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.get(t, "/api/series/storage_total/anomalies")
	env.get(t, "/health")

	rec, _ := env.get(t, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	if !strings.Contains(text, `route="/api/series/{series}/anomalies"`) {
		t.Errorf("Expected route template label in metrics output")
	}
	if !strings.Contains(text, `status="503"`) {
		t.Errorf("Expected 503 status label in metrics output")
	}
}
