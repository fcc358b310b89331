package analyzer

import (
	"github.com/opscart/ng-market-monitor/pkg/models"
)

type monthKey struct {
	year  int
	month int
}

// ComputeGrowth derives year-over-year and month-over-month growth and
// trailing 3 and 12 period moving averages for an aggregate series.
func ComputeGrowth(series models.TimeSeries) []models.GrowthRecord {
	observations := usableObservations(series)

	// Prior-year lookup: shift every observation forward by one year so it
	// lines up with the (year, month) it is compared against.
	priorYear := make(map[monthKey]float64, len(observations))
	for _, obs := range observations {
		priorYear[monthKey{year: obs.Timestamp.Year() + 1, month: int(obs.Timestamp.Month())}] = obs.Value
	}

	records := make([]models.GrowthRecord, len(observations))
	for i, obs := range observations {
		rec := models.GrowthRecord{
			Period: obs.Timestamp,
			Value:  obs.Value,
		}

		key := monthKey{year: obs.Timestamp.Year(), month: int(obs.Timestamp.Month())}
		if prev, ok := priorYear[key]; ok {
			rec.YoYGrowthPercent = percentChange(prev, obs.Value)
		}

		if i > 0 {
			rec.MoMGrowthPercent = percentChange(observations[i-1].Value, obs.Value)
		}

		rec.MovingAvg3 = trailingMean(observations, i, 3)
		rec.MovingAvg12 = trailingMean(observations, i, 12)

		records[i] = rec
	}

	return records
}

// percentChange is undefined (nil) for a zero base
func percentChange(from, to float64) *float64 {
	if from == 0 {
		return nil
	}
	return models.Float((to - from) / from * 100)
}

// trailingMean averages the window observations ending at index i
func trailingMean(observations []models.Observation, i, window int) *float64 {
	if i+1 < window {
		return nil
	}
	sum := 0.0
	for _, obs := range observations[i+1-window : i+1] {
		sum += obs.Value
	}
	return models.Float(sum / float64(window))
}
