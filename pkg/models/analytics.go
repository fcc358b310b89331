package models

import "time"

// PercentileRecord ranks one observation against same-week history
type PercentileRecord struct {
	Period       time.Time `json:"period"`
	CurrentValue float64   `json:"current_value"`
	Percentile   float64   `json:"percentile"`
	// ZScore is nil when the historical pool has zero spread
	ZScore           *float64 `json:"z_score"`
	HistoricalMin    float64  `json:"historical_min"`
	HistoricalMax    float64  `json:"historical_max"`
	HistoricalMean   float64  `json:"historical_mean"`
	HistoricalStdDev float64  `json:"historical_std_dev"`
	WeekOfYear       int      `json:"week_of_year"`
	Year             int      `json:"year"`
	PoolSize         int      `json:"pool_size"`
}

// LevelAlert flags a latest value sitting outside the normal percentile band
type LevelAlert struct {
	Date       time.Time `json:"date"`
	Percentile float64   `json:"percentile"`
	Value      float64   `json:"value"`
	Message    string    `json:"message"`
}

// ChangeAlert flags a large move between the two newest observations
type ChangeAlert struct {
	Date     time.Time `json:"date"`
	Previous float64   `json:"previous"`
	Current  float64   `json:"current"`
	Change   float64   `json:"change"`
	Message  string    `json:"message"`
}

// AnomalyReport groups the three independent alert lists
type AnomalyReport struct {
	HighValue   []LevelAlert  `json:"high_value"`
	LowValue    []LevelAlert  `json:"low_value"`
	RapidChange []ChangeAlert `json:"rapid_change"`
}

// NewAnomalyReport returns a report with empty, non-nil lists
func NewAnomalyReport() AnomalyReport {
	return AnomalyReport{
		HighValue:   []LevelAlert{},
		LowValue:    []LevelAlert{},
		RapidChange: []ChangeAlert{},
	}
}

// Empty reports whether no alert fired
func (r AnomalyReport) Empty() bool {
	return len(r.HighValue) == 0 && len(r.LowValue) == 0 && len(r.RapidChange) == 0
}

// UtilizationRecord is one facility-month of export throughput against capacity
type UtilizationRecord struct {
	Facility           string    `json:"facility"`
	Period             time.Time `json:"period"`
	RawValue           float64   `json:"raw_value"`
	DailyRate          float64   `json:"daily_rate_bcfd"`
	UtilizationPercent float64   `json:"utilization_percent"`
	Capacity           float64   `json:"capacity_bcfd"`
	FutureCapacity     float64   `json:"future_capacity_bcfd"`
	Operator           string    `json:"operator"`
	Location           string    `json:"location"`
}

// UtilizationAlertKind distinguishes over- and under-utilization
type UtilizationAlertKind string

const (
	UtilizationHigh UtilizationAlertKind = "HIGH"
	UtilizationLow  UtilizationAlertKind = "LOW"
)

// UtilizationAlert flags a facility whose latest month is outside the normal band
type UtilizationAlert struct {
	Facility           string               `json:"facility"`
	Period             time.Time            `json:"period"`
	UtilizationPercent float64              `json:"utilization_percent"`
	Kind               UtilizationAlertKind `json:"kind"`
	Message            string               `json:"message"`
}

// GrowthRecord carries trend statistics for one period of an aggregate series.
// Nil fields are undefined (not enough history, or a zero denominator).
type GrowthRecord struct {
	Period           time.Time `json:"period"`
	Value            float64   `json:"value"`
	YoYGrowthPercent *float64  `json:"yoy_growth_percent"`
	MoMGrowthPercent *float64  `json:"mom_growth_percent"`
	MovingAvg3       *float64  `json:"moving_avg_3"`
	MovingAvg12      *float64  `json:"moving_avg_12"`
}
