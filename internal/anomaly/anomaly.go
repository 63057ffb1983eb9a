// Package anomaly evaluates the tracker's live figures against learned
// duration profiles and emits anomaly records for the escalation and
// break-out machinery.
package anomaly

import (
	"time"

	"github.com/wardenhq/warden/internal/modes"
)

// Severity ranks how bad an anomaly is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the severity's position in the ordering, zero for
// unknown values.
func (s Severity) Rank() int { return severityRank[s] }

// Type identifies the anomaly check that fired.
type Type string

const (
	TypeDurationExtreme   Type = "duration_extreme"
	TypeDurationHigh      Type = "duration_high"
	TypeDurationEmergency Type = "duration_emergency"
	TypeDurationCritical  Type = "duration_critical"
	TypeDurationDefault   Type = "duration_default_exceeded"

	TypeCumulativeSessionEmergency Type = "cumulative_session_emergency"
	TypeCumulativeSessionCritical  Type = "cumulative_session_critical"
	TypeCumulativeHourEmergency    Type = "cumulative_hour_emergency"
	TypeCumulativeHourCritical     Type = "cumulative_hour_critical"
	TypeCumulativeDayEmergency     Type = "cumulative_day_emergency"
	TypeCumulativeDayCritical      Type = "cumulative_day_critical"

	TypeModeStickiness  Type = "mode_stickiness"
	TypeModeOscillation Type = "mode_oscillation"

	TypeDurationTrendIncreasing Type = "duration_trend_increasing"
)

// Recommended actions attached to anomalies. The break-out manager
// maps these onto strategies; monitoring actions are advisory.
const (
	ActionBreakOutImmediate  = "break_out_immediate"
	ActionBreakOutAggressive = "break_out_aggressive"
	ActionForceBreakOut      = "force_break_out"
	ActionIncreaseMonitoring = "increase_monitoring"
	ActionMonitorClosely     = "monitor_closely"
)

// Anomaly is one detector finding. Anomalies are ephemeral: produced
// fresh each tick, consumed immediately, never persisted.
type Anomaly struct {
	Type              Type       `json:"type"`
	Severity          Severity   `json:"severity"`
	Description       string     `json:"description"`
	Mode              modes.Mode `json:"mode"`
	SubMode           string     `json:"subMode"`
	Value             float64    `json:"value"`
	Threshold         float64    `json:"threshold"`
	Deviation         float64    `json:"deviation,omitempty"` // z-score where applicable
	Window            string     `json:"window,omitempty"`    // session/hour/day for cumulative checks
	RecommendedAction string     `json:"recommendedAction,omitempty"`
	DetectedAt        time.Time  `json:"detectedAt"`
}

// MaxSeverity returns the highest severity present in the list, or
// empty when the list has no anomalies.
func MaxSeverity(anoms []Anomaly) Severity {
	var max Severity
	for _, a := range anoms {
		if a.Severity.Rank() > max.Rank() {
			max = a.Severity
		}
	}
	return max
}
