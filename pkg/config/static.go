package config

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultStatic []byte

// Upstream sources a dataset can be fetched from
const (
	SourceEIA        = "eia"
	SourcePrometheus = "prometheus"
)

// Static holds the read-only lookup tables loaded once at startup
type Static struct {
	Thresholds Thresholds    `yaml:"thresholds"`
	Analytics  Analytics     `yaml:"analytics"`
	Datasets   []DatasetSpec `yaml:"datasets"`
	Facilities []Facility    `yaml:"facilities"`
}

// Thresholds are the global alert thresholds
type Thresholds struct {
	StorageHighPercentile float64 `yaml:"storage_high_percentile"`
	StorageLowPercentile  float64 `yaml:"storage_low_percentile"`
	UtilizationHigh       float64 `yaml:"utilization_high"`
	UtilizationLow        float64 `yaml:"utilization_low"`
	RapidChange           float64 `yaml:"rapid_change"`
}

// Analytics tunes the engines
type Analytics struct {
	ReferenceYears  int      `yaml:"reference_years"`
	GrowthSeries    string   `yaml:"growth_series"`
	AnomalyDatasets []string `yaml:"anomaly_datasets"`
}

// DatasetSpec describes one independently refreshed dataset
type DatasetSpec struct {
	Name           string            `yaml:"name"`
	RefreshMinutes int               `yaml:"refresh_minutes"`
	Source         string            `yaml:"source"`
	Unit           string            `yaml:"unit"`
	Series         map[string]string `yaml:"series"` // sub-series key -> upstream id or query
}

// RefreshInterval returns the refresh cadence as a duration
func (d DatasetSpec) RefreshInterval() time.Duration {
	return time.Duration(d.RefreshMinutes) * time.Minute
}

// SeriesKeys returns the sub-series keys in a stable order
func (d DatasetSpec) SeriesKeys() []string {
	keys := make([]string, 0, len(d.Series))
	for k := range d.Series {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Facility is static LNG export terminal metadata (capacities in Bcf/d)
type Facility struct {
	Name            string  `yaml:"name"`
	Series          string  `yaml:"series"`
	CurrentCapacity float64 `yaml:"current_capacity"`
	FutureCapacity  float64 `yaml:"future_capacity"`
	Operator        string  `yaml:"operator"`
	Location        string  `yaml:"location"`
}

// DefaultStatic returns the embedded lookup tables
func DefaultStatic() (*Static, error) {
	return ParseStatic(defaultStatic)
}

// LoadStatic reads lookup tables from path, or the embedded defaults when path is empty
func LoadStatic(path string) (*Static, error) {
	if path == "" {
		return DefaultStatic()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read static config: %w", err)
	}
	return ParseStatic(data)
}

// ParseStatic decodes, normalizes and validates lookup tables
func ParseStatic(data []byte) (*Static, error) {
	var s Static
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse static config: %w", err)
	}
	s.normalize()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Static) normalize() {
	if s.Analytics.ReferenceYears == 0 {
		s.Analytics.ReferenceYears = 5
	}
	if s.Thresholds.RapidChange == 0 {
		s.Thresholds.RapidChange = 100
	}
	for i := range s.Datasets {
		if s.Datasets[i].Source == "" {
			s.Datasets[i].Source = SourceEIA
		}
	}
	for i := range s.Facilities {
		f := &s.Facilities[i]
		if f.Series == "" {
			f.Series = "lng_" + strings.ReplaceAll(strings.ToLower(f.Name), " ", "_")
		}
		if f.FutureCapacity == 0 {
			f.FutureCapacity = f.CurrentCapacity
		}
	}
}

// Validate checks the lookup tables for consistency
func (s *Static) Validate() error {
	t := s.Thresholds
	if t.StorageLowPercentile < 0 || t.StorageHighPercentile > 100 || t.StorageLowPercentile >= t.StorageHighPercentile {
		return fmt.Errorf("storage percentile thresholds must satisfy 0 <= low < high <= 100")
	}
	if t.UtilizationLow < 0 || t.UtilizationLow >= t.UtilizationHigh {
		return fmt.Errorf("utilization thresholds must satisfy 0 <= low < high")
	}
	if t.RapidChange <= 0 {
		return fmt.Errorf("rapid change threshold must be > 0")
	}
	if s.Analytics.ReferenceYears < 1 {
		return fmt.Errorf("reference years must be at least 1")
	}
	if len(s.Datasets) == 0 {
		return fmt.Errorf("at least one dataset must be configured")
	}

	datasets := make(map[string]bool)
	owners := make(map[string]string)
	for _, d := range s.Datasets {
		if d.Name == "" {
			return fmt.Errorf("dataset name must not be empty")
		}
		if datasets[d.Name] {
			return fmt.Errorf("duplicate dataset: %s", d.Name)
		}
		datasets[d.Name] = true
		if d.RefreshMinutes < 1 {
			return fmt.Errorf("dataset %s: refresh interval must be at least 1 minute", d.Name)
		}
		if d.Source != SourceEIA && d.Source != SourcePrometheus {
			return fmt.Errorf("dataset %s: unknown source %q", d.Name, d.Source)
		}
		if len(d.Series) == 0 {
			return fmt.Errorf("dataset %s: no series configured", d.Name)
		}
		for key, id := range d.Series {
			if strings.TrimSpace(id) == "" {
				return fmt.Errorf("dataset %s: series %s has no identifier", d.Name, key)
			}
			if other, exists := owners[key]; exists {
				return fmt.Errorf("series %s configured in both %s and %s", key, other, d.Name)
			}
			owners[key] = d.Name
		}
	}

	for _, name := range s.Analytics.AnomalyDatasets {
		if !datasets[name] {
			return fmt.Errorf("anomaly dataset %s is not configured", name)
		}
	}
	if g := s.Analytics.GrowthSeries; g != "" {
		if _, ok := owners[g]; !ok {
			return fmt.Errorf("growth series %s is not configured", g)
		}
	}

	seen := make(map[string]bool)
	for _, f := range s.Facilities {
		if seen[f.Name] {
			return fmt.Errorf("duplicate facility: %s", f.Name)
		}
		seen[f.Name] = true
		if f.CurrentCapacity <= 0 {
			return fmt.Errorf("facility %s: capacity must be > 0", f.Name)
		}
		if _, ok := owners[f.Series]; !ok {
			return fmt.Errorf("facility %s: series %s is not configured", f.Name, f.Series)
		}
	}
	return nil
}

// Dataset returns the dataset spec with the given name
func (s *Static) Dataset(name string) (DatasetSpec, bool) {
	for _, d := range s.Datasets {
		if d.Name == name {
			return d, true
		}
	}
	return DatasetSpec{}, false
}

// DatasetFor returns the dataset that owns a sub-series key
func (s *Static) DatasetFor(series string) (DatasetSpec, bool) {
	for _, d := range s.Datasets {
		if _, ok := d.Series[series]; ok {
			return d, true
		}
	}
	return DatasetSpec{}, false
}

// FacilityDataset returns the dataset holding facility export series.
// All facilities must live in one dataset for utilization to be computed from a single snapshot.
func (s *Static) FacilityDataset() (DatasetSpec, error) {
	if len(s.Facilities) == 0 {
		return DatasetSpec{}, fmt.Errorf("no facilities configured")
	}
	first, _ := s.DatasetFor(s.Facilities[0].Series)
	for _, f := range s.Facilities[1:] {
		d, _ := s.DatasetFor(f.Series)
		if d.Name != first.Name {
			return DatasetSpec{}, fmt.Errorf("facility series span datasets %s and %s", first.Name, d.Name)
		}
	}
	return first, nil
}
