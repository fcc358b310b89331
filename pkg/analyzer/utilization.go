package analyzer

import (
	"fmt"
	"sort"

	"github.com/opscart/ng-market-monitor/pkg/config"
	"github.com/opscart/ng-market-monitor/pkg/models"
)

// ComputeUtilization converts each facility's monthly export volumes into
// daily rates (Bcf/d) and compares them with nameplate capacity.
// Facilities without a series, or whose series unit is unknown, are skipped.
// Output is ordered by facility name, then period.
func ComputeUtilization(seriesByKey map[string]models.TimeSeries, facilities []config.Facility) []models.UtilizationRecord {
	var records []models.UtilizationRecord

	for _, facility := range facilities {
		series, ok := seriesByKey[facility.Series]
		if !ok || series.Len() == 0 {
			continue
		}

		scale, err := models.BcfPerUnit(series.Unit)
		if err != nil {
			continue
		}

		for _, obs := range series.Sorted().Observations {
			dailyRate := obs.Value / models.DaysPerMonth * scale

			records = append(records, models.UtilizationRecord{
				Facility:           facility.Name,
				Period:             obs.Timestamp,
				RawValue:           obs.Value,
				DailyRate:          dailyRate,
				UtilizationPercent: dailyRate / facility.CurrentCapacity * 100,
				Capacity:           facility.CurrentCapacity,
				FutureCapacity:     facility.FutureCapacity,
				Operator:           facility.Operator,
				Location:           facility.Location,
			})
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Facility != records[j].Facility {
			return records[i].Facility < records[j].Facility
		}
		return records[i].Period.Before(records[j].Period)
	})

	return records
}

// DetectUtilizationAlerts flags facilities whose most recent month is above
// high or below low percent utilization.
func DetectUtilizationAlerts(records []models.UtilizationRecord, high, low float64) []models.UtilizationAlert {
	latest := make(map[string]models.UtilizationRecord)
	for _, rec := range records {
		if cur, ok := latest[rec.Facility]; !ok || rec.Period.After(cur.Period) {
			latest[rec.Facility] = rec
		}
	}

	names := make([]string, 0, len(latest))
	for name := range latest {
		names = append(names, name)
	}
	sort.Strings(names)

	alerts := []models.UtilizationAlert{}
	for _, name := range names {
		rec := latest[name]
		switch {
		case rec.UtilizationPercent > high:
			alerts = append(alerts, models.UtilizationAlert{
				Facility:           rec.Facility,
				Period:             rec.Period,
				UtilizationPercent: rec.UtilizationPercent,
				Kind:               models.UtilizationHigh,
				Message: fmt.Sprintf("%s running at %.1f%% of capacity (%.2f of %.2f Bcf/d)",
					rec.Facility, rec.UtilizationPercent, rec.DailyRate, rec.Capacity),
			})
		case rec.UtilizationPercent < low:
			alerts = append(alerts, models.UtilizationAlert{
				Facility:           rec.Facility,
				Period:             rec.Period,
				UtilizationPercent: rec.UtilizationPercent,
				Kind:               models.UtilizationLow,
				Message: fmt.Sprintf("%s underutilized at %.1f%% of capacity (%.2f of %.2f Bcf/d)",
					rec.Facility, rec.UtilizationPercent, rec.DailyRate, rec.Capacity),
			})
		}
	}

	return alerts
}
