package reporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"
)

// GenerateCSV creates a CSV report, one section per engine
func GenerateCSV(report *Report, writer io.Writer) error {
	w := csv.NewWriter(writer)

	rows := [][]string{
		{"DATASETS"},
		{"Dataset", "Loaded", "Refreshed At", "Age (s)", "Stale", "Series", "Last Error"},
	}
	for _, d := range report.Datasets {
		refreshed := ""
		if d.Loaded {
			refreshed = d.RefreshedAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, []string{
			d.Name,
			fmt.Sprintf("%t", d.Loaded),
			refreshed,
			fmt.Sprintf("%.0f", d.AgeSeconds),
			fmt.Sprintf("%t", d.Stale),
			fmt.Sprintf("%d", d.SeriesCount),
			d.LastError,
		})
	}

	rows = append(rows,
		[]string{},
		[]string{"STORAGE"},
		[]string{"Series", "Period", "Value", "Percentile", "Z-Score", "Historical Mean", "Historical Min", "Historical Max", "Alerts"},
	)
	for _, s := range report.Storage {
		if s.Latest == nil {
			rows = append(rows, []string{s.Series, "", "", "", "", "", "", "", ""})
			continue
		}
		alerts := len(s.Anomalies.HighValue) + len(s.Anomalies.LowValue) + len(s.Anomalies.RapidChange)
		rows = append(rows, []string{
			s.Series,
			s.Latest.Period.Format("2006-01-02"),
			fmt.Sprintf("%.1f", s.Latest.CurrentValue),
			fmt.Sprintf("%.1f", s.Latest.Percentile),
			optional(s.Latest.ZScore, "%.3f"),
			fmt.Sprintf("%.1f", s.Latest.HistoricalMean),
			fmt.Sprintf("%.1f", s.Latest.HistoricalMin),
			fmt.Sprintf("%.1f", s.Latest.HistoricalMax),
			fmt.Sprintf("%d", alerts),
		})
	}

	rows = append(rows,
		[]string{},
		[]string{"UTILIZATION"},
		[]string{"Facility", "Period", "Daily Rate (Bcf/d)", "Capacity (Bcf/d)", "Future Capacity (Bcf/d)", "Utilization (%)", "Operator", "Location"},
	)
	for _, u := range report.Utilization {
		rows = append(rows, []string{
			u.Facility,
			u.Period.Format("2006-01"),
			fmt.Sprintf("%.3f", u.DailyRate),
			fmt.Sprintf("%.2f", u.Capacity),
			fmt.Sprintf("%.2f", u.FutureCapacity),
			fmt.Sprintf("%.1f", u.UtilizationPercent),
			u.Operator,
			u.Location,
		})
	}

	rows = append(rows,
		[]string{},
		[]string{"GROWTH", report.GrowthSeries},
		[]string{"Period", "Value", "YoY (%)", "MoM (%)", "MA3", "MA12"},
	)
	for _, g := range report.Growth {
		rows = append(rows, []string{
			g.Period.Format("2006-01"),
			fmt.Sprintf("%.1f", g.Value),
			optional(g.YoYGrowthPercent, "%.2f"),
			optional(g.MoMGrowthPercent, "%.2f"),
			optional(g.MovingAvg3, "%.1f"),
			optional(g.MovingAvg12, "%.1f"),
		})
	}

	// Write summary rows
	rows = append(rows,
		[]string{},
		[]string{"SUMMARY"},
		[]string{"Generated At", report.GeneratedAt.UTC().Format(time.RFC3339)},
		[]string{"Total Alerts", fmt.Sprintf("%d", report.AlertCount)},
	)
	for _, warning := range report.Warnings {
		rows = append(rows, []string{"Warning", warning})
	}

	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write CSV: %w", err)
	}
	return nil
}

// optional formats an undefined metric as an empty cell
func optional(v *float64, format string) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf(format, *v)
}
