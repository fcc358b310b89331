package monitor

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/opscart/ng-market-monitor/pkg/analyzer"
	"github.com/opscart/ng-market-monitor/pkg/cache"
	"github.com/opscart/ng-market-monitor/pkg/models"
)

const journalTimeout = 10 * time.Second

// HandleRefresh is the cache refresh hook. It journals the attempt and, on
// success, any new alerts in the fresh snapshot.
func (m *Monitor) HandleRefresh(r cache.RefreshResult) {
	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()

	if _, err := m.EvaluateAlerts(ctx, r); err != nil {
		m.log.Error(err, "failed to journal refresh", "dataset", r.Dataset)
	}
}

// EvaluateAlerts records a refresh outcome and runs the anomaly and
// utilization detectors against a successful snapshot. It returns the
// alerts that were not already journaled.
func (m *Monitor) EvaluateAlerts(ctx context.Context, r cache.RefreshResult) ([]*models.AlertEvent, error) {
	if m.store == nil {
		return nil, nil
	}

	event := &models.RefreshEvent{
		Dataset:  r.Dataset,
		At:       r.RefreshedAt,
		Success:  r.Err == nil,
		Duration: r.Duration,
	}
	if r.Err != nil {
		event.Error = r.Err.Error()
	} else if r.Snapshot != nil {
		event.SeriesCount = len(r.Snapshot.Series)
	}
	if err := m.store.RecordRefresh(ctx, event); err != nil {
		return nil, err
	}

	if r.Err != nil || r.Snapshot == nil {
		return nil, nil
	}

	candidates := m.detect(r.Dataset, r.Snapshot)

	var (
		created []*models.AlertEvent
		errs    []error
	)
	for _, alert := range candidates {
		isNew, err := m.store.SaveAlert(ctx, alert)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if isNew {
			m.log.Info("new alert", "series", alert.Series, "kind", alert.Kind, "date", alert.Date.Format("2006-01-02"), "message", alert.Message)
			created = append(created, alert)
		}
	}
	return created, errors.Join(errs...)
}

func (m *Monitor) detect(dataset string, snapshot *models.Dataset) []*models.AlertEvent {
	now := m.clock.Now()
	var alerts []*models.AlertEvent

	if slices.Contains(m.static.Analytics.AnomalyDatasets, dataset) {
		for _, key := range snapshot.SeriesNames() {
			records := analyzer.ComputePercentiles(snapshot.Series[key], m.static.Analytics.ReferenceYears)
			report := analyzer.DetectAnomalies(records, m.thresholds)
			alerts = append(alerts, anomalyEvents(key, report, now)...)
		}
	}

	if spec, err := m.static.FacilityDataset(); err == nil && spec.Name == dataset {
		records := analyzer.ComputeUtilization(snapshot.Series, m.static.Facilities)
		found := analyzer.DetectUtilizationAlerts(records, m.static.Thresholds.UtilizationHigh, m.static.Thresholds.UtilizationLow)

		seriesOf := make(map[string]string, len(m.static.Facilities))
		for _, f := range m.static.Facilities {
			seriesOf[f.Name] = f.Series
		}
		for _, a := range found {
			kind := models.AlertUtilizationHigh
			if a.Kind == models.UtilizationLow {
				kind = models.AlertUtilizationLow
			}
			alerts = append(alerts, &models.AlertEvent{
				Series:     seriesOf[a.Facility],
				Kind:       kind,
				Date:       a.Period,
				Value:      a.UtilizationPercent,
				Detail:     a.UtilizationPercent,
				Message:    a.Message,
				DetectedAt: now,
			})
		}
	}

	return alerts
}

func anomalyEvents(series string, report models.AnomalyReport, now time.Time) []*models.AlertEvent {
	var events []*models.AlertEvent
	for _, a := range report.HighValue {
		events = append(events, &models.AlertEvent{
			Series: series, Kind: models.AlertHighValue, Date: a.Date,
			Value: a.Value, Detail: a.Percentile, Message: a.Message, DetectedAt: now,
		})
	}
	for _, a := range report.LowValue {
		events = append(events, &models.AlertEvent{
			Series: series, Kind: models.AlertLowValue, Date: a.Date,
			Value: a.Value, Detail: a.Percentile, Message: a.Message, DetectedAt: now,
		})
	}
	for _, a := range report.RapidChange {
		events = append(events, &models.AlertEvent{
			Series: series, Kind: models.AlertRapidChange, Date: a.Date,
			Value: a.Current, Detail: a.Change, Message: a.Message, DetectedAt: now,
		})
	}
	return events
}
