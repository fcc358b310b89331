package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/opscart/ng-market-monitor/pkg/cache"
	"github.com/opscart/ng-market-monitor/pkg/config"
	"github.com/opscart/ng-market-monitor/pkg/models"
	"github.com/opscart/ng-market-monitor/pkg/monitor"
)

// ReportFormat represents the output format
type ReportFormat string

const (
	FormatText ReportFormat = "text"
	FormatJSON ReportFormat = "json"
	FormatCSV  ReportFormat = "csv"
	FormatHTML ReportFormat = "html"
)

// growthWindow is how many trailing months of growth a report shows
const growthWindow = 12

// ParseFormat validates a user-supplied format name
func ParseFormat(s string) (ReportFormat, error) {
	switch f := ReportFormat(s); f {
	case FormatText, FormatJSON, FormatCSV, FormatHTML:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown report format: %s (valid: text, json, csv, html)", s)
	}
}

// Source is the read side a report is built from
type Source interface {
	Static() *config.Static
	Status() []cache.DatasetStatus
	GetPercentiles(series string) (monitor.Result[[]models.PercentileRecord], error)
	GetAnomalies(series string) (monitor.Result[models.AnomalyReport], error)
	GetUtilization() (monitor.Result[[]models.UtilizationRecord], error)
	GetUtilizationAlerts() (monitor.Result[[]models.UtilizationAlert], error)
	GetGrowth(series string) (monitor.Result[[]models.GrowthRecord], error)
}

// Report contains all data for generating reports
type Report struct {
	GeneratedAt       time.Time                  `json:"generated_at"`
	Datasets          []DatasetSummary           `json:"datasets"`
	Storage           []SeriesSummary            `json:"storage"`
	Utilization       []models.UtilizationRecord `json:"utilization"`
	UtilizationAlerts []models.UtilizationAlert  `json:"utilization_alerts"`
	GrowthSeries      string                     `json:"growth_series"`
	Growth            []models.GrowthRecord      `json:"growth"`
	AlertCount        int                        `json:"alert_count"`
	Warnings          []string                   `json:"warnings"`
}

// DatasetSummary holds freshness for one dataset
type DatasetSummary struct {
	Name        string    `json:"name"`
	Loaded      bool      `json:"loaded"`
	RefreshedAt time.Time `json:"refreshed_at"`
	AgeSeconds  float64   `json:"age_seconds"`
	Stale       bool      `json:"stale"`
	SeriesCount int       `json:"series_count"`
	LastError   string    `json:"last_error,omitempty"`
}

// SeriesSummary holds the latest seasonal position and alerts of one series
type SeriesSummary struct {
	Series    string                   `json:"series"`
	Dataset   string                   `json:"dataset"`
	Stale     bool                     `json:"stale"`
	Latest    *models.PercentileRecord `json:"latest"`
	Anomalies models.AnomalyReport     `json:"anomalies"`
}

// Reporter generates market reports
type Reporter struct {
	format ReportFormat
}

// New creates a new reporter
func New(format ReportFormat) *Reporter {
	return &Reporter{
		format: format,
	}
}

// Generate collects every engine's output from src. Data that is not
// available yet becomes a warning, not an error.
func (r *Reporter) Generate(src Source, now time.Time) *Report {
	static := src.Static()
	report := &Report{
		GeneratedAt:       now,
		Storage:           []SeriesSummary{},
		Utilization:       []models.UtilizationRecord{},
		UtilizationAlerts: []models.UtilizationAlert{},
		Growth:            []models.GrowthRecord{},
		Warnings:          []string{},
	}

	for _, st := range src.Status() {
		report.Datasets = append(report.Datasets, DatasetSummary{
			Name:        st.Name,
			Loaded:      st.Loaded,
			RefreshedAt: st.RefreshedAt,
			AgeSeconds:  st.Age.Seconds(),
			Stale:       st.Stale,
			SeriesCount: st.SeriesCount,
			LastError:   st.LastError,
		})
		if st.Stale {
			report.warn("dataset %s is stale (last refreshed %s ago)", st.Name, st.Age.Round(time.Minute))
		}
	}

	for _, name := range static.Analytics.AnomalyDatasets {
		spec, _ := static.Dataset(name)
		for _, series := range spec.SeriesKeys() {
			r.addSeries(report, src, series)
		}
	}

	if util, err := src.GetUtilization(); err != nil {
		report.warn("utilization unavailable: %v", err)
	} else {
		report.Utilization = latestPerFacility(util.Data)
	}
	if alerts, err := src.GetUtilizationAlerts(); err == nil {
		report.UtilizationAlerts = alerts.Data
		report.AlertCount += len(alerts.Data)
	}

	report.GrowthSeries = static.Analytics.GrowthSeries
	if report.GrowthSeries != "" {
		if growth, err := src.GetGrowth(report.GrowthSeries); err != nil {
			report.warn("growth unavailable: %v", err)
		} else {
			report.Growth = tail(growth.Data, growthWindow)
		}
	}

	return report
}

func (r *Reporter) addSeries(report *Report, src Source, series string) {
	percentiles, err := src.GetPercentiles(series)
	if err != nil {
		report.warn("%s unavailable: %v", series, err)
		return
	}
	anomalies, err := src.GetAnomalies(series)
	if err != nil {
		report.warn("%s anomalies unavailable: %v", series, err)
		return
	}

	summary := SeriesSummary{
		Series:    series,
		Dataset:   percentiles.Dataset,
		Stale:     percentiles.Stale,
		Anomalies: anomalies.Data,
	}
	if n := len(percentiles.Data); n > 0 {
		latest := percentiles.Data[n-1]
		summary.Latest = &latest
	} else {
		report.warn("%s has too little history for seasonal comparison", series)
	}

	report.AlertCount += len(anomalies.Data.HighValue) + len(anomalies.Data.LowValue) + len(anomalies.Data.RapidChange)
	report.Storage = append(report.Storage, summary)
}

func (report *Report) warn(format string, args ...any) {
	report.Warnings = append(report.Warnings, fmt.Sprintf(format, args...))
}

// Write renders the report in the reporter's format
func (r *Reporter) Write(report *Report, w io.Writer) error {
	switch r.format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case FormatCSV:
		return GenerateCSV(report, w)
	case FormatHTML:
		return GenerateHTML(report, w)
	default:
		return GenerateText(report, w)
	}
}

// latestPerFacility keeps the newest record of each facility, in facility order
func latestPerFacility(records []models.UtilizationRecord) []models.UtilizationRecord {
	latest := []models.UtilizationRecord{}
	for _, rec := range records {
		if n := len(latest); n > 0 && latest[n-1].Facility == rec.Facility {
			if rec.Period.After(latest[n-1].Period) {
				latest[n-1] = rec
			}
			continue
		}
		latest = append(latest, rec)
	}
	return latest
}

func tail[T any](items []T, n int) []T {
	if len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}
