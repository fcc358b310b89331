package models

import (
	"sort"
	"time"
)

// Dataset is a named snapshot of related series, keyed by sub-series name
// (facility key, region key). A snapshot is replaced as a whole, never edited.
type Dataset struct {
	Name            string                `json:"name"`
	Series          map[string]TimeSeries `json:"series"`
	RefreshInterval time.Duration         `json:"refresh_interval"`
	LastRefreshedAt time.Time             `json:"last_refreshed_at"`
}

// SeriesNames returns the sub-series keys present in the snapshot, sorted
func (d *Dataset) SeriesNames() []string {
	if d == nil {
		return nil
	}
	names := make([]string, 0, len(d.Series))
	for name := range d.Series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RefreshEvent records the outcome of one refresh attempt
type RefreshEvent struct {
	ID          string        `json:"id"`
	Dataset     string        `json:"dataset"`
	At          time.Time     `json:"at"`
	Success     bool          `json:"success"`
	Error       string        `json:"error,omitempty"`
	SeriesCount int           `json:"series_count"`
	Duration    time.Duration `json:"duration"`
}
