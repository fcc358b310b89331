package cache

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/opscart/ng-market-monitor/pkg/datasource"
)

// Metrics instruments refresh attempts per dataset
type Metrics struct {
	attempts    *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	seriesCount *prometheus.GaugeVec
}

// NewMetrics creates refresh metrics and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ngmon_refresh_attempts_total",
			Help: "Total dataset refresh attempts.",
		}, []string{"dataset"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ngmon_refresh_failures_total",
			Help: "Total failed dataset refreshes by reason.",
		}, []string{"dataset", "reason"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ngmon_refresh_duration_seconds",
			Help:    "Histogram of dataset refresh durations.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"dataset"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ngmon_refresh_last_success_timestamp_seconds",
			Help: "Unix time of the last successful refresh.",
		}, []string{"dataset"}),
		seriesCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ngmon_dataset_series",
			Help: "Number of sub-series in the current snapshot.",
		}, []string{"dataset"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.attempts,
			m.failures,
			m.duration,
			m.lastSuccess,
			m.seriesCount,
		)
	}
	return m
}

func (m *Metrics) observe(r RefreshResult) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(r.Dataset).Inc()
	m.duration.WithLabelValues(r.Dataset).Observe(r.Duration.Seconds())

	if r.Err != nil {
		m.failures.WithLabelValues(r.Dataset, datasource.Reason(r.Err)).Inc()
		return
	}
	m.lastSuccess.WithLabelValues(r.Dataset).Set(float64(r.RefreshedAt.UnixNano()) / float64(time.Second))
	m.seriesCount.WithLabelValues(r.Dataset).Set(float64(len(r.Snapshot.Series)))
}
