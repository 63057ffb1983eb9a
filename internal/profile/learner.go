package profile

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wardenhq/warden/internal/clock"
	"github.com/wardenhq/warden/internal/modes"
)

const (
	// minSamples is the observation count below which a profile is
	// considered cold and default thresholds apply.
	minSamples = 5

	// learningRate is the EWMA alpha for mean/spread updates.
	learningRate = 0.3

	// outlierZ rejects samples beyond this z-score once the profile
	// is warm, so a single catastrophic stall cannot drag the mean.
	outlierZ = 3.0

	// driftOutlierZ is the widened rejection gate used while the
	// trend is increasing, so a genuine slow regression is absorbed
	// into the profile instead of being filtered forever.
	driftOutlierZ = 4.0

	// trendWindow is how far back recent samples count toward trend.
	trendWindow = time.Hour
	// trendMinRecent is the minimum recent samples for a verdict.
	trendMinRecent = 5
	// trendSlopeSigma is the slope threshold in units of std.
	trendSlopeSigma = 0.5
)

// Normal-distribution quantile offsets used for analytic percentiles.
const (
	z75 = 0.67
	z95 = 1.645
	z99 = 2.326
)

type recentSample struct {
	at      time.Time
	seconds float64
}

// Learner maintains the adaptive profiles for one monitored run.
// It is single-writer: Observe must only be called from the run's own
// tick loop. Reads are safe from other goroutines.
type Learner struct {
	mu       sync.RWMutex
	clock    clock.Clock
	profiles map[string]*Profile
	recent   map[string][]recentSample
	defaults DefaultThresholds
}

// NewLearner returns a learner with the given cold-start thresholds.
func NewLearner(c clock.Clock, defaults DefaultThresholds) *Learner {
	return &Learner{
		clock:    c,
		profiles: make(map[string]*Profile),
		recent:   make(map[string][]recentSample),
		defaults: defaults,
	}
}

// Seed installs previously persisted profiles. Existing in-memory
// profiles for the same key are not overwritten.
func (l *Learner) Seed(profiles []Profile) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range profiles {
		key := p.Key()
		if _, ok := l.profiles[key]; ok {
			continue
		}
		cp := p
		l.profiles[key] = &cp
	}
}

// Observe folds one completed mode duration into the key's profile and
// returns the updated profile. Malformed durations (negative or NaN)
// are discarded without touching the profile, as are warm-profile
// outliers. The returned bool is false when the sample was discarded
// as malformed.
func (l *Learner) Observe(mode modes.Mode, subMode string, duration time.Duration) (Profile, bool) {
	seconds := duration.Seconds()
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		log.Warn().
			Str("key", modes.Key(mode, subMode)).
			Float64("seconds", seconds).
			Msg("Discarding malformed duration sample")
		return Profile{}, false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	key := modes.Key(mode, subMode)

	// Recent samples feed trend detection even when the profile
	// update itself rejects the sample; otherwise drift could never
	// be observed at all.
	l.recordRecentLocked(key, now, seconds)

	p, ok := l.profiles[key]
	if !ok {
		p = &Profile{
			Mode:        mode,
			SubMode:     modes.NormalizeSubMode(subMode),
			SampleCount: 1,
			Mean:        seconds,
			Std:         0,
			Min:         seconds,
			Max:         seconds,
			P50:         seconds,
			P75:         seconds,
			P95:         seconds,
			P99:         seconds,
			Trend:       TrendInsufficientData,
			LastUpdated: now,
		}
		l.profiles[key] = p
		return *p, true
	}

	if p.SampleCount > minSamples && p.Std > 0 {
		gate := outlierZ
		if p.Trend == TrendIncreasing {
			gate = driftOutlierZ
		}
		z := math.Abs(seconds-p.Mean) / p.Std
		if z > gate {
			log.Debug().
				Str("key", key).
				Float64("seconds", seconds).
				Float64("z", z).
				Msg("Rejecting outlier duration sample")
			l.updateTrendLocked(p, key)
			return *p, true
		}
	}

	deviation := seconds - p.Mean
	p.Mean += learningRate * deviation
	p.Std = (1-learningRate)*p.Std + learningRate*math.Abs(deviation)
	p.SampleCount++
	if seconds < p.Min {
		p.Min = seconds
	}
	if seconds > p.Max {
		p.Max = seconds
	}

	p.P50 = p.Mean
	p.P75 = p.Mean + z75*p.Std
	p.P95 = p.Mean + z95*p.Std
	p.P99 = p.Mean + z99*p.Std
	p.LastUpdated = now

	l.updateTrendLocked(p, key)
	return *p, true
}

func (l *Learner) recordRecentLocked(key string, now time.Time, seconds float64) {
	samples := append(l.recent[key], recentSample{at: now, seconds: seconds})
	cutoff := now.Add(-trendWindow)
	idx := 0
	for idx < len(samples) && samples[idx].at.Before(cutoff) {
		idx++
	}
	l.recent[key] = samples[idx:]
}

// updateTrendLocked compares the mean of the last hour's samples to
// the learned mean. A gap beyond trendSlopeSigma standard deviations
// flips the trend.
func (l *Learner) updateTrendLocked(p *Profile, key string) {
	samples := l.recent[key]
	if len(samples) < trendMinRecent {
		p.Trend = TrendInsufficientData
		p.TrendSlope = 0
		return
	}

	var sum float64
	for _, s := range samples {
		sum += s.seconds
	}
	recentMean := sum / float64(len(samples))
	slope := recentMean - p.Mean
	p.TrendSlope = slope

	threshold := trendSlopeSigma * p.Std
	switch {
	case p.Std > 0 && slope > threshold:
		p.Trend = TrendIncreasing
	case p.Std > 0 && slope < -threshold:
		p.Trend = TrendDecreasing
	default:
		p.Trend = TrendStable
	}
}

// Get returns a copy of the profile for a key.
func (l *Learner) Get(mode modes.Mode, subMode string) (Profile, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.profiles[modes.Key(mode, subMode)]
	if !ok {
		return Profile{}, false
	}
	return *p, true
}

// All returns copies of every profile, for persistence and dashboards.
func (l *Learner) All() []Profile {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Profile, 0, len(l.profiles))
	for _, p := range l.profiles {
		out = append(out, *p)
	}
	return out
}

// ThresholdsFor returns the alarm rungs for a key: the learned
// p75/p95/p99 once the profile is warm, the cold-start defaults
// otherwise.
func (l *Learner) ThresholdsFor(mode modes.Mode, subMode string) Thresholds {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.profiles[modes.Key(mode, subMode)]
	if !ok || p.SampleCount < minSamples {
		return l.defaults.For(mode)
	}
	return Thresholds{Warning: p.P75, Critical: p.P95, Emergency: p.P99}
}

// Warm reports whether the key has enough samples to trust its
// learned statistics.
func (l *Learner) Warm(mode modes.Mode, subMode string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.profiles[modes.Key(mode, subMode)]
	return ok && p.SampleCount >= minSamples
}
