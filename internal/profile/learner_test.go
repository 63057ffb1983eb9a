package profile

import (
	"math"
	"testing"
	"time"

	"github.com/wardenhq/warden/internal/clock"
	"github.com/wardenhq/warden/internal/modes"
)

func newTestLearner(t *testing.T) (*Learner, *clock.Manual) {
	t.Helper()
	mc := clock.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return NewLearner(mc, BuiltinDefaults()), mc
}

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func TestObserve_FirstSampleSeedsProfile(t *testing.T) {
	l, _ := newTestLearner(t)

	p, ok := l.Observe(modes.ModeBattle, "wild_easy", 90*time.Second)
	if !ok {
		t.Fatal("Observe rejected a valid first sample")
	}
	if p.SampleCount != 1 {
		t.Errorf("sampleCount = %d, want 1", p.SampleCount)
	}
	if p.Mean != 90 || p.Std != 0 {
		t.Errorf("mean/std = %.1f/%.1f, want 90/0", p.Mean, p.Std)
	}
	for name, v := range map[string]float64{"p50": p.P50, "p75": p.P75, "p95": p.P95, "p99": p.P99} {
		if v != 90 {
			t.Errorf("%s = %.1f, want 90 on first observation", name, v)
		}
	}
	if p.Min != 90 || p.Max != 90 {
		t.Errorf("min/max = %.1f/%.1f, want 90/90", p.Min, p.Max)
	}
}

func TestObserve_SecondSampleEWMA(t *testing.T) {
	l, _ := newTestLearner(t)

	l.Observe(modes.ModeBattle, "wild_easy", 90*time.Second)
	p, ok := l.Observe(modes.ModeBattle, "wild_easy", 110*time.Second)
	if !ok {
		t.Fatal("Observe rejected a valid second sample")
	}
	if !almostEqual(p.Mean, 96, 1e-9) {
		t.Errorf("mean = %.4f, want 96 (alpha=0.3 EWMA)", p.Mean)
	}
	if !almostEqual(p.Std, 6, 1e-9) {
		t.Errorf("std = %.4f, want 6", p.Std)
	}
	if p.SampleCount != 2 {
		t.Errorf("sampleCount = %d, want 2", p.SampleCount)
	}
}

func TestObserve_AnalyticPercentiles(t *testing.T) {
	l, _ := newTestLearner(t)

	l.Observe(modes.ModeBattle, "wild", 90*time.Second)
	p, _ := l.Observe(modes.ModeBattle, "wild", 110*time.Second)

	// mean=96, std=6
	if !almostEqual(p.P50, 96, 1e-9) {
		t.Errorf("p50 = %.3f, want mean", p.P50)
	}
	if !almostEqual(p.P75, 96+0.67*6, 1e-9) {
		t.Errorf("p75 = %.3f, want mean+0.67*std", p.P75)
	}
	if !almostEqual(p.P95, 96+1.645*6, 1e-9) {
		t.Errorf("p95 = %.3f, want mean+1.645*std", p.P95)
	}
	if !almostEqual(p.P99, 96+2.326*6, 1e-9) {
		t.Errorf("p99 = %.3f, want mean+2.326*std", p.P99)
	}
}

func TestObserve_RejectsOutlierOnWarmProfile(t *testing.T) {
	l, _ := newTestLearner(t)
	l.Seed([]Profile{{
		Mode:        modes.ModeBattle,
		SubMode:     "wild",
		SampleCount: 10,
		Mean:        60,
		Std:         10,
	}})

	// z = (240-60)/10 = 18, far past the rejection gate.
	p, ok := l.Observe(modes.ModeBattle, "wild", 240*time.Second)
	if !ok {
		t.Fatal("Observe returned ok=false for an outlier (should discard silently)")
	}
	if p.Mean != 60 || p.Std != 10 || p.SampleCount != 10 {
		t.Errorf("profile changed on outlier: mean=%.1f std=%.1f count=%d, want 60/10/10",
			p.Mean, p.Std, p.SampleCount)
	}
}

func TestObserve_AcceptsWithinGateOnWarmProfile(t *testing.T) {
	l, _ := newTestLearner(t)
	l.Seed([]Profile{{
		Mode:        modes.ModeBattle,
		SubMode:     "wild",
		SampleCount: 10,
		Mean:        60,
		Std:         10,
	}})

	// z = 2.5, inside the gate.
	p, _ := l.Observe(modes.ModeBattle, "wild", 85*time.Second)
	if p.SampleCount != 11 {
		t.Errorf("sampleCount = %d, want 11", p.SampleCount)
	}
	if !almostEqual(p.Mean, 60+0.3*25, 1e-9) {
		t.Errorf("mean = %.3f, want 67.5", p.Mean)
	}
}

func TestObserve_WidensGateWhenTrendIncreasing(t *testing.T) {
	l, _ := newTestLearner(t)
	l.Seed([]Profile{{
		Mode:        modes.ModeBattle,
		SubMode:     "wild",
		SampleCount: 10,
		Mean:        60,
		Std:         10,
		Trend:       TrendIncreasing,
	}})

	// z = 3.5: rejected under the normal 3.0 gate, accepted under the
	// widened 4.0 drift gate.
	p, _ := l.Observe(modes.ModeBattle, "wild", 95*time.Second)
	if p.SampleCount != 11 {
		t.Errorf("sampleCount = %d, want 11 (drift gate should accept z=3.5)", p.SampleCount)
	}
}

func TestObserve_RejectsMalformedDurations(t *testing.T) {
	l, _ := newTestLearner(t)
	l.Observe(modes.ModeBattle, "wild", 60*time.Second)

	if _, ok := l.Observe(modes.ModeBattle, "wild", -5*time.Second); ok {
		t.Error("negative duration was accepted")
	}
	p, _ := l.Get(modes.ModeBattle, "wild")
	if p.SampleCount != 1 {
		t.Errorf("sampleCount = %d after malformed sample, want 1", p.SampleCount)
	}
}

func TestTrend_IncreasingWhenRecentSamplesRunHot(t *testing.T) {
	l, mc := newTestLearner(t)
	l.Seed([]Profile{{
		Mode:        modes.ModeBattle,
		SubMode:     "wild",
		SampleCount: 50,
		Mean:        60,
		Std:         10,
	}})

	// Five rejected stalls still land in the recent window, so the
	// drift they represent is visible to trend detection even though
	// the mean never moved.
	var p Profile
	for i := 0; i < 5; i++ {
		mc.Advance(time.Minute)
		p, _ = l.Observe(modes.ModeBattle, "wild", 240*time.Second)
	}
	if p.Mean != 60 {
		t.Fatalf("mean = %.1f, want 60 (all samples rejected as outliers)", p.Mean)
	}
	if p.Trend != TrendIncreasing {
		t.Errorf("trend = %s, want increasing", p.Trend)
	}
	if !almostEqual(p.TrendSlope, 180, 1e-9) {
		t.Errorf("trendSlope = %.2f, want 180 (recent mean 240 vs learned 60)", p.TrendSlope)
	}
}

func TestTrend_InsufficientDataUnderFiveRecent(t *testing.T) {
	l, _ := newTestLearner(t)

	var p Profile
	for i := 0; i < 4; i++ {
		p, _ = l.Observe(modes.ModeDialog, "npc", 30*time.Second)
	}
	if p.Trend != TrendInsufficientData {
		t.Errorf("trend = %s with 4 recent samples, want insufficient_data", p.Trend)
	}
}

func TestThresholdsFor_ColdUsesDefaults(t *testing.T) {
	l, _ := newTestLearner(t)

	got := l.ThresholdsFor(modes.ModeBattle, "wild")
	want := BuiltinDefaults().For(modes.ModeBattle)
	if got != want {
		t.Errorf("cold thresholds = %+v, want defaults %+v", got, want)
	}
}

func TestThresholdsFor_WarmUsesPercentiles(t *testing.T) {
	l, _ := newTestLearner(t)
	l.Seed([]Profile{{
		Mode:        modes.ModeBattle,
		SubMode:     "wild",
		SampleCount: 10,
		Mean:        60,
		Std:         10,
		P75:         66.7,
		P95:         76.45,
		P99:         83.26,
	}})

	got := l.ThresholdsFor(modes.ModeBattle, "wild")
	if got.Warning != 66.7 || got.Critical != 76.45 || got.Emergency != 83.26 {
		t.Errorf("warm thresholds = %+v, want p75/p95/p99", got)
	}
}

func TestSeed_DoesNotOverwriteLiveProfiles(t *testing.T) {
	l, _ := newTestLearner(t)
	l.Observe(modes.ModeBattle, "wild", 90*time.Second)

	l.Seed([]Profile{{Mode: modes.ModeBattle, SubMode: "wild", SampleCount: 99, Mean: 5}})

	p, _ := l.Get(modes.ModeBattle, "wild")
	if p.SampleCount != 1 || p.Mean != 90 {
		t.Errorf("seed overwrote live profile: count=%d mean=%.1f", p.SampleCount, p.Mean)
	}
}
