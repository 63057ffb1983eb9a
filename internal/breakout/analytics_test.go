package breakout

import (
	"testing"
	"time"

	"github.com/wardenhq/warden/internal/clock"
	"github.com/wardenhq/warden/internal/modes"
)

func newTestAnalytics(t *testing.T) *Analytics {
	t.Helper()
	return NewAnalytics(clock.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
}

func record(a *Analytics, s Strategy, m modes.Mode, success bool, n int) {
	for i := 0; i < n; i++ {
		a.Record(s, m, "press_b", success, 1, time.Second)
	}
}

func TestSuccessRate_ZeroBelowMinimumSamples(t *testing.T) {
	a := newTestAnalytics(t)

	record(a, StrategyStandard, modes.ModeBattle, true, 4)
	if rate := a.SuccessRate(StrategyStandard, modes.ModeBattle); rate != 0 {
		t.Errorf("rate with 4 samples = %.2f, want 0", rate)
	}

	record(a, StrategyStandard, modes.ModeBattle, true, 1)
	if rate := a.SuccessRate(StrategyStandard, modes.ModeBattle); rate != 1.0 {
		t.Errorf("rate with 5 successes = %.2f, want 1.0", rate)
	}
}

func TestSuccessRate_RollingWindow(t *testing.T) {
	a := newTestAnalytics(t)

	// 20 failures, then 20 successes: the rolling window forgets the
	// failures entirely.
	record(a, StrategyImmediate, modes.ModeDialog, false, 20)
	record(a, StrategyImmediate, modes.ModeDialog, true, 20)

	if rate := a.SuccessRate(StrategyImmediate, modes.ModeDialog); rate != 1.0 {
		t.Errorf("rate after window rollover = %.2f, want 1.0", rate)
	}
}

func TestSuccessRate_KeysAreIndependent(t *testing.T) {
	a := newTestAnalytics(t)

	record(a, StrategyStandard, modes.ModeBattle, true, 10)
	record(a, StrategyStandard, modes.ModeDialog, false, 10)

	if rate := a.SuccessRate(StrategyStandard, modes.ModeBattle); rate != 1.0 {
		t.Errorf("battle rate = %.2f, want 1.0", rate)
	}
	if rate := a.SuccessRate(StrategyStandard, modes.ModeDialog); rate != 0 {
		t.Errorf("dialog rate = %.2f, want 0", rate)
	}
	if rate := a.SuccessRate(StrategyImmediate, modes.ModeBattle); rate != 0 {
		t.Errorf("unrecorded strategy rate = %.2f, want 0", rate)
	}
}

func TestRecommendedStrategy_PicksBestRate(t *testing.T) {
	a := newTestAnalytics(t)

	record(a, StrategyStandard, modes.ModeBattle, false, 8)
	record(a, StrategyStandard, modes.ModeBattle, true, 2)
	record(a, StrategyImmediate, modes.ModeBattle, true, 9)
	record(a, StrategyImmediate, modes.ModeBattle, false, 1)

	if s := a.RecommendedStrategy(modes.ModeBattle); s != StrategyImmediate {
		t.Errorf("recommended = %s, want immediate", s)
	}
}

func TestRecommendedStrategy_DefaultsToStandard(t *testing.T) {
	a := newTestAnalytics(t)

	if s := a.RecommendedStrategy(modes.ModeBattle); s != StrategyStandard {
		t.Errorf("recommended with no history = %s, want standard", s)
	}

	// Below the sample minimum every rate reads zero, so the default
	// holds even with a perfect record.
	record(a, StrategyForce, modes.ModeBattle, true, 3)
	if s := a.RecommendedStrategy(modes.ModeBattle); s != StrategyStandard {
		t.Errorf("recommended under sample minimum = %s, want standard", s)
	}
}

func TestRates_ReportsAllKeys(t *testing.T) {
	a := newTestAnalytics(t)

	record(a, StrategyStandard, modes.ModeBattle, true, 6)
	record(a, StrategyForce, modes.ModeMenu, true, 2)

	rates := a.Rates()
	if len(rates) != 2 {
		t.Fatalf("got %d keys, want 2", len(rates))
	}
	if rates["standard|battle"] != 1.0 {
		t.Errorf("standard|battle = %.2f, want 1.0", rates["standard|battle"])
	}
	if rates["force|menu"] != 0 {
		t.Errorf("force|menu below sample minimum = %.2f, want 0", rates["force|menu"])
	}
}
