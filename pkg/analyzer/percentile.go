package analyzer

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"github.com/opscart/ng-market-monitor/pkg/models"
)

const (
	// DefaultReferenceYears is the trailing window used for seasonal history
	DefaultReferenceYears = 5

	// MinHistory is the smallest seasonal pool a percentile is computed from
	MinHistory = 3
)

// seasonKey identifies an ISO week of an ISO year
type seasonKey struct {
	year int
	week int
}

// ComputePercentiles ranks every observation against the values recorded in
// the same ISO week over the preceding referenceYears years. Observations
// with fewer than MinHistory seasonal values are left out.
func ComputePercentiles(series models.TimeSeries, referenceYears int) []models.PercentileRecord {
	if referenceYears <= 0 {
		referenceYears = DefaultReferenceYears
	}

	observations := usableObservations(series)

	// Group values by season so each pool is a handful of lookups
	seasons := make(map[seasonKey][]float64)
	for _, obs := range observations {
		year, week := obs.Timestamp.ISOWeek()
		key := seasonKey{year: year, week: week}
		seasons[key] = append(seasons[key], obs.Value)
	}

	records := make([]models.PercentileRecord, 0, len(observations))
	for _, obs := range observations {
		year, week := obs.Timestamp.ISOWeek()

		var pool []float64
		for y := year - referenceYears; y < year; y++ {
			pool = append(pool, seasons[seasonKey{year: y, week: week}]...)
		}
		if len(pool) < MinHistory {
			continue
		}

		summary, err := summarize(pool)
		if err != nil {
			continue
		}

		record := models.PercentileRecord{
			Period:           obs.Timestamp,
			CurrentValue:     obs.Value,
			Percentile:       PercentileOfScore(pool, obs.Value),
			HistoricalMin:    summary.min,
			HistoricalMax:    summary.max,
			HistoricalMean:   summary.mean,
			HistoricalStdDev: summary.stdDev,
			WeekOfYear:       week,
			Year:             year,
			PoolSize:         len(pool),
		}
		if summary.stdDev != 0 {
			record.ZScore = models.Float((obs.Value - summary.mean) / summary.stdDev)
		}

		records = append(records, record)
	}

	return records
}

// PercentileOfScore returns the percentage of pool values at or below score.
// Values equal to score count half, matching the "rank" convention:
// (below + atOrBelow + [atOrBelow > below]) * 50 / n.
func PercentileOfScore(pool []float64, score float64) float64 {
	if len(pool) == 0 {
		return 0
	}

	below, atOrBelow := 0, 0
	for _, v := range pool {
		if v < score {
			below++
		}
		if v <= score {
			atOrBelow++
		}
	}

	extra := 0
	if atOrBelow > below {
		extra = 1
	}

	return float64(below+atOrBelow+extra) * 50.0 / float64(len(pool))
}

type poolSummary struct {
	mean   float64
	stdDev float64
	min    float64
	max    float64
}

// summarize computes the pool statistics. The standard deviation is the
// sample (n-1) estimate and is exactly zero when every value is identical.
func summarize(values []float64) (poolSummary, error) {
	data := stats.Float64Data(values)

	mean, err := stats.Mean(data)
	if err != nil {
		return poolSummary{}, fmt.Errorf("failed to compute mean: %w", err)
	}
	lo, err := stats.Min(data)
	if err != nil {
		return poolSummary{}, fmt.Errorf("failed to compute min: %w", err)
	}
	hi, err := stats.Max(data)
	if err != nil {
		return poolSummary{}, fmt.Errorf("failed to compute max: %w", err)
	}

	summary := poolSummary{mean: mean, min: lo, max: hi}
	if lo == hi {
		return summary, nil
	}

	summary.stdDev, err = stats.StandardDeviationSample(data)
	if err != nil {
		return poolSummary{}, fmt.Errorf("failed to compute standard deviation: %w", err)
	}
	return summary, nil
}

// usableObservations returns the series in order without non-finite values
func usableObservations(series models.TimeSeries) []models.Observation {
	sorted := series.Sorted().Observations
	usable := sorted[:0]
	for _, obs := range sorted {
		if math.IsNaN(obs.Value) || math.IsInf(obs.Value, 0) {
			continue
		}
		usable = append(usable, obs)
	}
	return usable
}
