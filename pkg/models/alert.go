package models

import "time"

// AlertKind identifies which detector produced an alert
type AlertKind string

const (
	AlertHighValue       AlertKind = "HIGH_VALUE"
	AlertLowValue        AlertKind = "LOW_VALUE"
	AlertRapidChange     AlertKind = "RAPID_CHANGE"
	AlertUtilizationHigh AlertKind = "UTILIZATION_HIGH"
	AlertUtilizationLow  AlertKind = "UTILIZATION_LOW"
)

// AlertEvent is a journaled alert. Series, Kind and Date identify it; the
// same alert detected on a later refresh is not journaled twice.
type AlertEvent struct {
	ID         string    `json:"id"`
	Series     string    `json:"series"`
	Kind       AlertKind `json:"kind"`
	Date       time.Time `json:"date"`
	Value      float64   `json:"value"`
	Detail     float64   `json:"detail"` // percentile, signed change or utilization %
	Message    string    `json:"message"`
	DetectedAt time.Time `json:"detected_at"`
}

// Key returns the identity used for de-duplication
func (a *AlertEvent) Key() string {
	return a.Series + "|" + string(a.Kind) + "|" + a.Date.UTC().Format("2006-01-02")
}
