package models

import (
	"sort"
	"time"
)

// Observation represents a single dated value of a series
type Observation struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// TimeSeries is an ascending sequence of observations for one named quantity
// (one storage region, one LNG facility, one national total).
type TimeSeries struct {
	Name         string        `json:"name"`
	Unit         string        `json:"unit,omitempty"`
	Observations []Observation `json:"observations"`
}

// Len returns the number of observations
func (ts TimeSeries) Len() int {
	return len(ts.Observations)
}

// Latest returns the newest observation, if any
func (ts TimeSeries) Latest() (Observation, bool) {
	if len(ts.Observations) == 0 {
		return Observation{}, false
	}
	return ts.Observations[len(ts.Observations)-1], true
}

// Values extracts the observation values in order
func (ts TimeSeries) Values() []float64 {
	values := make([]float64, len(ts.Observations))
	for i, obs := range ts.Observations {
		values[i] = obs.Value
	}
	return values
}

// Sorted returns a copy ordered by timestamp with duplicate timestamps
// collapsed. The last value seen for a timestamp wins.
func (ts TimeSeries) Sorted() TimeSeries {
	obs := make([]Observation, len(ts.Observations))
	copy(obs, ts.Observations)

	sort.SliceStable(obs, func(i, j int) bool {
		return obs[i].Timestamp.Before(obs[j].Timestamp)
	})

	deduped := obs[:0]
	for _, o := range obs {
		if n := len(deduped); n > 0 && deduped[n-1].Timestamp.Equal(o.Timestamp) {
			deduped[n-1] = o
			continue
		}
		deduped = append(deduped, o)
	}

	return TimeSeries{
		Name:         ts.Name,
		Unit:         ts.Unit,
		Observations: deduped,
	}
}

// Float returns a pointer to v, used for metrics that may be undefined
func Float(v float64) *float64 {
	return &v
}
