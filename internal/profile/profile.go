// Package profile maintains one adaptive duration profile per
// (mode, sub_mode) key: EWMA mean/spread estimation, analytic
// percentiles, and trend detection over recent observations.
package profile

import (
	"time"

	"github.com/wardenhq/warden/internal/modes"
)

// Trend describes how recent durations compare to the learned mean.
type Trend string

const (
	TrendStable           Trend = "stable"
	TrendIncreasing       Trend = "increasing"
	TrendDecreasing       Trend = "decreasing"
	TrendInsufficientData Trend = "insufficient_data"
)

// Profile is the adaptive duration profile for one (mode, sub_mode)
// key. All duration figures are seconds. Percentiles are derived from
// a normal approximation of the learned mean/spread, not from raw
// samples; this keeps memory O(1) per profile at the cost of accuracy
// on skewed distributions.
type Profile struct {
	Mode        modes.Mode `json:"mode"`
	SubMode     string     `json:"subMode"`
	SampleCount int        `json:"sampleCount"`
	Mean        float64    `json:"mean"`
	Std         float64    `json:"std"`
	Min         float64    `json:"min"`
	Max         float64    `json:"max"`
	P50         float64    `json:"p50"`
	P75         float64    `json:"p75"`
	P95         float64    `json:"p95"`
	P99         float64    `json:"p99"`
	Trend       Trend      `json:"trend"`
	TrendSlope  float64    `json:"trendSlope"`
	LastUpdated time.Time  `json:"lastUpdated"`
}

// Key returns the profile's map/store key.
func (p Profile) Key() string { return modes.Key(p.Mode, p.SubMode) }

// Clone returns a copy safe to hand across goroutines.
func (p *Profile) Clone() Profile { return *p }

// Thresholds are the duration alarm rungs for one key, in seconds.
type Thresholds struct {
	Warning   float64 `yaml:"warning" json:"warning"`
	Critical  float64 `yaml:"critical" json:"critical"`
	Emergency float64 `yaml:"emergency" json:"emergency"`
}
