package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opscart/ng-market-monitor/pkg/monitor"
)

const shutdownTimeout = 10 * time.Second

// Options configures the API server
type Options struct {
	Monitor  *monitor.Monitor
	Logger   logr.Logger
	Metrics  *HTTPMetrics
	Gatherer prometheus.Gatherer // served at /metrics; nil uses the default gatherer
	// AccessLog receives Apache-style access lines when set
	AccessLog io.Writer
}

// Server exposes the monitor's read API over HTTP
type Server struct {
	monitor   *monitor.Monitor
	log       logr.Logger
	metrics   *HTTPMetrics
	gatherer  prometheus.Gatherer
	accessLog io.Writer
}

func NewServer(opts Options) *Server {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		monitor:   opts.Monitor,
		log:       opts.Logger.WithName("api"),
		metrics:   opts.Metrics,
		gatherer:  opts.Gatherer,
		accessLog: opts.AccessLog,
	}
}

// Handler returns the routed, instrumented handler
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/datasets/{name}", s.handleDataset).Methods(http.MethodGet)
	api.HandleFunc("/series/{series}/percentiles", s.handlePercentiles).Methods(http.MethodGet)
	api.HandleFunc("/series/{series}/anomalies", s.handleAnomalies).Methods(http.MethodGet)
	api.HandleFunc("/series/{series}/growth", s.handleGrowth).Methods(http.MethodGet)
	api.HandleFunc("/growth", s.handleGrowth).Methods(http.MethodGet)
	api.HandleFunc("/utilization", s.handleUtilization).Methods(http.MethodGet)
	api.HandleFunc("/utilization/alerts", s.handleUtilizationAlerts).Methods(http.MethodGet)
	api.HandleFunc("/alerts", s.handleAlerts).Methods(http.MethodGet)

	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}

	var h http.Handler = r
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{s.log}))(h)
	if s.accessLog != nil {
		h = handlers.LoggingHandler(s.accessLog, h)
	}
	return h
}

// ListenAndServe serves until ctx is done, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.log.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// recoveryLogger adapts logr to gorilla's recovery logger
type recoveryLogger struct {
	log logr.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.log.Error(errors.New(fmt.Sprint(v...)), "panic serving request")
}
