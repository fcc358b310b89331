package analyzer

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/opscart/ng-market-monitor/pkg/config"
	"github.com/opscart/ng-market-monitor/pkg/models"
)

func percentileRecords(pairs ...float64) []models.PercentileRecord {
	start := time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)
	var records []models.PercentileRecord
	for i := 0; i+1 < len(pairs); i += 2 {
		records = append(records, models.PercentileRecord{
			Period:       start.AddDate(0, 0, 7*i/2),
			CurrentValue: pairs[i],
			Percentile:   pairs[i+1],
		})
	}
	return records
}

func TestDetectAnomaliesHighValue(t *testing.T) {
	// value, percentile pairs: 98 at 40th, then 150 at 100th
	records := percentileRecords(98, 40, 150, 100)

	report := DetectAnomalies(records, DefaultAnomalyThresholds())

	if len(report.HighValue) != 1 {
		t.Fatalf("Expected 1 high-value alert, got %d", len(report.HighValue))
	}
	if len(report.LowValue) != 0 {
		t.Errorf("Expected no low-value alert, got %d", len(report.LowValue))
	}
	// |150-98| = 52 is under the 100 limit
	if len(report.RapidChange) != 0 {
		t.Errorf("Expected no rapid-change alert, got %d", len(report.RapidChange))
	}

	alert := report.HighValue[0]
	if alert.Value != 150 || alert.Percentile != 100 {
		t.Errorf("Expected alert for 150 at 100th, got %.0f at %.0f", alert.Value, alert.Percentile)
	}
	if !strings.Contains(alert.Message, "100th percentile") {
		t.Errorf("Unexpected message: %s", alert.Message)
	}
}

func TestDetectAnomaliesAllFire(t *testing.T) {
	records := percentileRecords(300, 50, 150, 5)
	thresholds := AnomalyThresholds{HighPercentile: 1, LowPercentile: 10, RapidChange: 100}

	report := DetectAnomalies(records, thresholds)

	if len(report.HighValue) != 1 || len(report.LowValue) != 1 || len(report.RapidChange) != 1 {
		t.Fatalf("Expected all three alerts, got high=%d low=%d change=%d",
			len(report.HighValue), len(report.LowValue), len(report.RapidChange))
	}

	change := report.RapidChange[0]
	if change.Change != -150 {
		t.Errorf("Expected signed change -150, got %.0f", change.Change)
	}
	if !strings.Contains(change.Message, "-150 Bcf") {
		t.Errorf("Unexpected message: %s", change.Message)
	}
}

func TestDetectAnomaliesInjectableChangeLimit(t *testing.T) {
	records := percentileRecords(100, 50, 160, 50)

	if r := DetectAnomalies(records, DefaultAnomalyThresholds()); len(r.RapidChange) != 0 {
		t.Errorf("Expected no change alert at default limit, got %d", len(r.RapidChange))
	}

	thresholds := DefaultAnomalyThresholds()
	thresholds.RapidChange = 50
	if r := DetectAnomalies(records, thresholds); len(r.RapidChange) != 1 {
		t.Errorf("Expected change alert with limit 50, got %d", len(r.RapidChange))
	}
}

func TestDetectAnomaliesQuiet(t *testing.T) {
	tests := []struct {
		name    string
		records []models.PercentileRecord
	}{
		{"no records", nil},
		{"single normal record", percentileRecords(100, 50)},
		{"boundary percentiles", percentileRecords(100, 80, 100, 20)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := DetectAnomalies(tt.records, DefaultAnomalyThresholds())
			if !report.Empty() {
				t.Errorf("Expected empty report, got %+v", report)
			}
			if report.HighValue == nil || report.LowValue == nil || report.RapidChange == nil {
				t.Error("Expected non-nil empty lists")
			}
		})
	}
}

func TestDetectAnomaliesIsPure(t *testing.T) {
	records := ComputePercentiles(seasonalSeries(), 5)

	first := DetectAnomalies(records, DefaultAnomalyThresholds())
	second := DetectAnomalies(records, DefaultAnomalyThresholds())

	if !reflect.DeepEqual(first, second) {
		t.Errorf("Expected identical reports, got %+v and %+v", first, second)
	}
	if len(first.HighValue) != 1 {
		t.Errorf("Expected high-value alert for 150, got %d", len(first.HighValue))
	}
}

func TestAnomalyThresholdsFrom(t *testing.T) {
	th := AnomalyThresholdsFrom(config.Thresholds{
		StorageHighPercentile: 90,
		StorageLowPercentile:  10,
		RapidChange:           75,
	})
	if th.HighPercentile != 90 || th.LowPercentile != 10 || th.RapidChange != 75 {
		t.Errorf("Unexpected thresholds: %+v", th)
	}
}

func TestOrdinal(t *testing.T) {
	cases := map[float64]string{1: "1st", 2: "2nd", 3: "3rd", 4: "4th", 11: "11th", 12: "12th", 13: "13th", 21: "21st", 83.4: "83rd", 100: "100th"}
	for in, want := range cases {
		if got := ordinal(in); got != want {
			t.Errorf("ordinal(%v): expected %s, got %s", in, want, got)
		}
	}
}
