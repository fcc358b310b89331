package analyzer

import (
	"fmt"
	"math"

	"github.com/opscart/ng-market-monitor/pkg/config"
	"github.com/opscart/ng-market-monitor/pkg/models"
)

// AnomalyThresholds configures DetectAnomalies
type AnomalyThresholds struct {
	HighPercentile float64
	LowPercentile  float64
	RapidChange    float64 // absolute change between the two newest values
}

// DefaultAnomalyThresholds returns 80/20 percentile bands and a 100 Bcf change limit
func DefaultAnomalyThresholds() AnomalyThresholds {
	return AnomalyThresholds{
		HighPercentile: 80,
		LowPercentile:  20,
		RapidChange:    100,
	}
}

// AnomalyThresholdsFrom maps the static alert thresholds
func AnomalyThresholdsFrom(t config.Thresholds) AnomalyThresholds {
	return AnomalyThresholds{
		HighPercentile: t.StorageHighPercentile,
		LowPercentile:  t.StorageLowPercentile,
		RapidChange:    t.RapidChange,
	}
}

// DetectAnomalies inspects the newest percentile record (and the one before
// it for rate of change). The three checks are independent.
func DetectAnomalies(records []models.PercentileRecord, thresholds AnomalyThresholds) models.AnomalyReport {
	report := models.NewAnomalyReport()
	if len(records) == 0 {
		return report
	}

	latest := records[len(records)-1]

	if latest.Percentile > thresholds.HighPercentile {
		report.HighValue = append(report.HighValue, models.LevelAlert{
			Date:       latest.Period,
			Percentile: latest.Percentile,
			Value:      latest.CurrentValue,
			Message: fmt.Sprintf("Storage at %s percentile - potential bearish pressure",
				ordinal(latest.Percentile)),
		})
	}

	if latest.Percentile < thresholds.LowPercentile {
		report.LowValue = append(report.LowValue, models.LevelAlert{
			Date:       latest.Period,
			Percentile: latest.Percentile,
			Value:      latest.CurrentValue,
			Message: fmt.Sprintf("Storage at %s percentile - potential bullish pressure",
				ordinal(latest.Percentile)),
		})
	}

	if len(records) >= 2 {
		previous := records[len(records)-2]
		change := latest.CurrentValue - previous.CurrentValue

		if math.Abs(change) > thresholds.RapidChange {
			report.RapidChange = append(report.RapidChange, models.ChangeAlert{
				Date:     latest.Period,
				Previous: previous.CurrentValue,
				Current:  latest.CurrentValue,
				Change:   change,
				Message:  fmt.Sprintf("Large storage change: %+.0f Bcf week-over-week", change),
			})
		}
	}

	return report
}

// ordinal formats a percentile as "1st", "22nd", "83rd", "95th"
func ordinal(p float64) string {
	n := int(math.Round(p))
	suffix := "th"
	switch {
	case n%100 >= 11 && n%100 <= 13:
	case n%10 == 1:
		suffix = "st"
	case n%10 == 2:
		suffix = "nd"
	case n%10 == 3:
		suffix = "rd"
	}
	return fmt.Sprintf("%d%s", n, suffix)
}
