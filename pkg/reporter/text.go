package reporter

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"
)

// GenerateText writes a plain-text report for terminals
func GenerateText(report *Report, writer io.Writer) error {
	out := &errWriter{w: writer}

	out.printf("Natural Gas Market Report\n")
	out.printf("Generated: %s\n", report.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"))
	out.printf("%s\n\n", strings.Repeat("=", 60))

	out.printf("DATASETS\n")
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, d := range report.Datasets {
		state := "not loaded"
		switch {
		case d.Loaded && d.Stale:
			state = "STALE"
		case d.Loaded:
			state = "fresh"
		}
		refreshed := "-"
		if d.Loaded {
			refreshed = fmt.Sprintf("%s (age %s)", d.RefreshedAt.UTC().Format("2006-01-02 15:04"), formatAge(d.AgeSeconds))
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%d series\n", d.Name, state, refreshed, d.SeriesCount)
	}
	tw.Flush()

	out.printf("\nSTORAGE VS SEASONAL HISTORY\n")
	if len(report.Storage) == 0 {
		out.printf("  no data\n")
	}
	tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, s := range report.Storage {
		if s.Latest == nil {
			fmt.Fprintf(tw, "  %s\tinsufficient history\n", s.Series)
			continue
		}
		z := "n/a"
		if s.Latest.ZScore != nil {
			z = fmt.Sprintf("%+.2f", *s.Latest.ZScore)
		}
		fmt.Fprintf(tw, "  %s\t%s\t%.0f\t%.0fth pct\tz %s\t5y range %.0f-%.0f\n",
			s.Series, s.Latest.Period.Format("2006-01-02"), s.Latest.CurrentValue,
			s.Latest.Percentile, z, s.Latest.HistoricalMin, s.Latest.HistoricalMax)
	}
	tw.Flush()
	for _, s := range report.Storage {
		for _, a := range s.Anomalies.HighValue {
			out.printf("  [ALERT] %s: %s\n", s.Series, a.Message)
		}
		for _, a := range s.Anomalies.LowValue {
			out.printf("  [ALERT] %s: %s\n", s.Series, a.Message)
		}
		for _, a := range s.Anomalies.RapidChange {
			out.printf("  [ALERT] %s: %s\n", s.Series, a.Message)
		}
	}

	out.printf("\nLNG TERMINAL UTILIZATION (latest month)\n")
	if len(report.Utilization) == 0 {
		out.printf("  no data\n")
	}
	tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, u := range report.Utilization {
		fmt.Fprintf(tw, "  %s\t%s\t%.2f / %.2f Bcf/d\t%.1f%%\t%s\n",
			u.Facility, u.Period.Format("2006-01"), u.DailyRate, u.Capacity, u.UtilizationPercent, u.Operator)
	}
	tw.Flush()
	for _, a := range report.UtilizationAlerts {
		out.printf("  [ALERT] %s\n", a.Message)
	}

	if report.GrowthSeries != "" {
		out.printf("\nGROWTH (%s)\n", report.GrowthSeries)
		if len(report.Growth) == 0 {
			out.printf("  no data\n")
		}
		tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "  period\tvalue\tYoY\tMoM\tMA3\tMA12\n")
		for _, g := range report.Growth {
			fmt.Fprintf(tw, "  %s\t%.0f\t%s\t%s\t%s\t%s\n",
				g.Period.Format("2006-01"), g.Value,
				formatPct(g.YoYGrowthPercent), formatPct(g.MoMGrowthPercent),
				formatOpt(g.MovingAvg3), formatOpt(g.MovingAvg12))
		}
		tw.Flush()
	}

	if len(report.Warnings) > 0 {
		out.printf("\n")
		for _, w := range report.Warnings {
			out.printf("[WARN] %s\n", w)
		}
	}

	out.printf("\nAlerts: %d\n", report.AlertCount)
	return out.err
}

func formatAge(seconds float64) string {
	return (time.Duration(seconds) * time.Second).Round(time.Second).String()
}

func formatPct(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%+.1f%%", *v)
}

func formatOpt(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.0f", *v)
}

// errWriter remembers the first write error so rendering code stays linear
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	if err != nil {
		e.err = err
	}
	return n, err
}

func (e *errWriter) printf(format string, args ...any) {
	fmt.Fprintf(e, format, args...)
}
