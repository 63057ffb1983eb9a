package anomaly

import (
	"fmt"
	"math"
	"time"

	"github.com/wardenhq/warden/internal/clock"
	"github.com/wardenhq/warden/internal/modes"
	"github.com/wardenhq/warden/internal/profile"
	"github.com/wardenhq/warden/internal/tracking"
)

// z-score rungs for the duration ladder.
const (
	zExtreme = 4.0
	zHigh    = 3.0
)

// cumulativeLimits are the fixed per-window alarm rungs, in seconds.
type cumulativeLimits struct {
	warning   float64
	critical  float64
	emergency float64
}

var cumulativeTable = map[tracking.Window]cumulativeLimits{
	tracking.WindowSession: {warning: 1800, critical: 3600, emergency: 7200},
	tracking.WindowHour:    {warning: 900, critical: 1800, emergency: 3600},
	tracking.WindowDay:     {warning: 7200, critical: 14400, emergency: 28800},
}

// sequence-check parameters.
const (
	stickinessWindow      = 10
	stickinessMinHistory  = 5
	stickinessFraction    = 0.8
	oscillationMinHistory = 6
	oscillationFraction   = 0.8
)

// Input is everything the detector needs for one tick, captured from
// the tracker and learner so the detector itself stays stateless.
type Input struct {
	Mode       modes.Mode
	SubMode    string
	Duration   time.Duration // time in the current mode so far
	Session    time.Duration // cumulative figures for the current key
	Hour       time.Duration
	Day        time.Duration
	Profile    profile.Profile
	HasProfile bool // false when the key has never been observed
	Warm       bool // profile has enough samples to trust
	Thresholds profile.Thresholds
	Recent     []modes.Mode // transition history, oldest first
}

// Detector runs the four anomaly checks each tick. It holds no
// per-tick mutable state and is safe to share.
type Detector struct {
	clock clock.Clock
}

// NewDetector returns a detector using the given clock for timestamps.
func NewDetector(c clock.Clock) *Detector {
	return &Detector{clock: c}
}

// Check runs every check independently and concatenates the findings.
// Checks never short-circuit each other; multiple windows and multiple
// checks may fire in the same tick.
func (d *Detector) Check(in Input) []Anomaly {
	now := d.clock.Now()
	var out []Anomaly
	out = append(out, d.checkDuration(in, now)...)
	out = append(out, d.checkCumulative(in, now)...)
	out = append(out, d.checkSequence(in, now)...)
	out = append(out, d.checkTrend(in, now)...)
	return out
}

func (d *Detector) checkDuration(in Input, now time.Time) []Anomaly {
	seconds := in.Duration.Seconds()
	if seconds <= 0 {
		return nil
	}

	if !in.Warm {
		// Cold profile: only the default emergency rung applies.
		if seconds > in.Thresholds.Emergency {
			return []Anomaly{{
				Type:              TypeDurationDefault,
				Severity:          SeverityHigh,
				Description:       fmt.Sprintf("%s/%s running %.0fs with no learned profile (default emergency %.0fs)", in.Mode, in.SubMode, seconds, in.Thresholds.Emergency),
				Mode:              in.Mode,
				SubMode:           in.SubMode,
				Value:             seconds,
				Threshold:         in.Thresholds.Emergency,
				RecommendedAction: ActionBreakOutAggressive,
				DetectedAt:        now,
			}}
		}
		return nil
	}

	// A zero spread means every observation was identical; anything
	// above the mean is then infinitely unusual.
	z := 0.0
	if in.Profile.Std > 0 {
		z = (seconds - in.Profile.Mean) / in.Profile.Std
	} else if seconds > in.Profile.Mean {
		z = math.Inf(1)
	}

	switch {
	case z > zExtreme:
		return []Anomaly{{
			Type:              TypeDurationExtreme,
			Severity:          SeverityCritical,
			Description:       fmt.Sprintf("%s/%s at %.0fs is %.1f standard deviations above the %.0fs mean", in.Mode, in.SubMode, seconds, z, in.Profile.Mean),
			Mode:              in.Mode,
			SubMode:           in.SubMode,
			Value:             seconds,
			Threshold:         in.Profile.Mean + zExtreme*in.Profile.Std,
			Deviation:         z,
			RecommendedAction: ActionBreakOutImmediate,
			DetectedAt:        now,
		}}
	case z > zHigh:
		return []Anomaly{{
			Type:              TypeDurationHigh,
			Severity:          SeverityHigh,
			Description:       fmt.Sprintf("%s/%s at %.0fs is %.1f standard deviations above the %.0fs mean", in.Mode, in.SubMode, seconds, z, in.Profile.Mean),
			Mode:              in.Mode,
			SubMode:           in.SubMode,
			Value:             seconds,
			Threshold:         in.Profile.Mean + zHigh*in.Profile.Std,
			Deviation:         z,
			RecommendedAction: ActionBreakOutAggressive,
			DetectedAt:        now,
		}}
	case seconds > in.Thresholds.Emergency:
		return []Anomaly{{
			Type:              TypeDurationEmergency,
			Severity:          SeverityHigh,
			Description:       fmt.Sprintf("%s/%s at %.0fs exceeded the %.0fs emergency threshold", in.Mode, in.SubMode, seconds, in.Thresholds.Emergency),
			Mode:              in.Mode,
			SubMode:           in.SubMode,
			Value:             seconds,
			Threshold:         in.Thresholds.Emergency,
			Deviation:         z,
			RecommendedAction: ActionBreakOutAggressive,
			DetectedAt:        now,
		}}
	case seconds > in.Thresholds.Critical:
		return []Anomaly{{
			Type:              TypeDurationCritical,
			Severity:          SeverityMedium,
			Description:       fmt.Sprintf("%s/%s at %.0fs exceeded the %.0fs critical threshold", in.Mode, in.SubMode, seconds, in.Thresholds.Critical),
			Mode:              in.Mode,
			SubMode:           in.SubMode,
			Value:             seconds,
			Threshold:         in.Thresholds.Critical,
			Deviation:         z,
			RecommendedAction: ActionIncreaseMonitoring,
			DetectedAt:        now,
		}}
	}
	return nil
}

func (d *Detector) checkCumulative(in Input, now time.Time) []Anomaly {
	windows := []struct {
		window tracking.Window
		total  time.Duration
		emerg  Type
		crit   Type
	}{
		{tracking.WindowSession, in.Session, TypeCumulativeSessionEmergency, TypeCumulativeSessionCritical},
		{tracking.WindowHour, in.Hour, TypeCumulativeHourEmergency, TypeCumulativeHourCritical},
		{tracking.WindowDay, in.Day, TypeCumulativeDayEmergency, TypeCumulativeDayCritical},
	}

	var out []Anomaly
	for _, w := range windows {
		limits := cumulativeTable[w.window]
		seconds := w.total.Seconds()
		switch {
		case seconds > limits.emergency:
			out = append(out, Anomaly{
				Type:              w.emerg,
				Severity:          SeverityHigh,
				Description:       fmt.Sprintf("%s/%s accumulated %.0fs this %s (emergency %.0fs)", in.Mode, in.SubMode, seconds, w.window, limits.emergency),
				Mode:              in.Mode,
				SubMode:           in.SubMode,
				Value:             seconds,
				Threshold:         limits.emergency,
				Window:            string(w.window),
				RecommendedAction: ActionForceBreakOut,
				DetectedAt:        now,
			})
		case seconds > limits.critical:
			out = append(out, Anomaly{
				Type:              w.crit,
				Severity:          SeverityMedium,
				Description:       fmt.Sprintf("%s/%s accumulated %.0fs this %s (critical %.0fs)", in.Mode, in.SubMode, seconds, w.window, limits.critical),
				Mode:              in.Mode,
				SubMode:           in.SubMode,
				Value:             seconds,
				Threshold:         limits.critical,
				Window:            string(w.window),
				RecommendedAction: ActionIncreaseMonitoring,
				DetectedAt:        now,
			})
		}
	}
	return out
}

func (d *Detector) checkSequence(in Input, now time.Time) []Anomaly {
	var out []Anomaly

	if len(in.Recent) >= stickinessMinHistory {
		window := in.Recent
		if len(window) > stickinessWindow {
			window = window[len(window)-stickinessWindow:]
		}
		counts := make(map[modes.Mode]int)
		for _, m := range window {
			counts[m]++
		}
		for m, c := range counts {
			frac := float64(c) / float64(len(window))
			if frac >= stickinessFraction {
				out = append(out, Anomaly{
					Type:              TypeModeStickiness,
					Severity:          SeverityMedium,
					Description:       fmt.Sprintf("mode %s appears in %d of the last %d transitions", m, c, len(window)),
					Mode:              m,
					Value:             frac,
					Threshold:         stickinessFraction,
					RecommendedAction: ActionIncreaseMonitoring,
					DetectedAt:        now,
				})
				break
			}
		}
	}

	if len(in.Recent) >= oscillationMinHistory {
		changes := 0
		positions := len(in.Recent) - 2
		for i := 0; i < positions; i++ {
			if in.Recent[i] != in.Recent[i+1] && in.Recent[i+1] != in.Recent[i+2] {
				changes++
			}
		}
		frac := float64(changes) / float64(positions)
		if frac > oscillationFraction {
			out = append(out, Anomaly{
				Type:              TypeModeOscillation,
				Severity:          SeverityLow,
				Description:       fmt.Sprintf("%.0f%% of recent transitions oscillate between modes", frac*100),
				Mode:              in.Mode,
				Value:             frac,
				Threshold:         oscillationFraction,
				RecommendedAction: ActionMonitorClosely,
				DetectedAt:        now,
			})
		}
	}

	return out
}

func (d *Detector) checkTrend(in Input, now time.Time) []Anomaly {
	if !in.HasProfile || in.Profile.Trend != profile.TrendIncreasing {
		return nil
	}
	if in.Profile.TrendSlope <= in.Profile.Std {
		return nil
	}
	return []Anomaly{{
		Type:              TypeDurationTrendIncreasing,
		Severity:          SeverityLow,
		Description:       fmt.Sprintf("%s/%s durations trending up %.1fs against a %.1fs spread", in.Mode, in.SubMode, in.Profile.TrendSlope, in.Profile.Std),
		Mode:              in.Mode,
		SubMode:           in.SubMode,
		Value:             in.Profile.TrendSlope,
		Threshold:         in.Profile.Std,
		RecommendedAction: ActionMonitorClosely,
		DetectedAt:        now,
	}}
}
