package escalation

import (
	"testing"
	"time"

	"github.com/wardenhq/warden/internal/anomaly"
	"github.com/wardenhq/warden/internal/clock"
)

type recordingSink struct {
	transitions []Transition
}

func (r *recordingSink) OnTierChange(t Transition) { r.transitions = append(r.transitions, t) }

func newTestController(t *testing.T) (*Controller, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	c := NewController(clock.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)), sink)
	return c, sink
}

func anomsOf(severities ...anomaly.Severity) []anomaly.Anomaly {
	out := make([]anomaly.Anomaly, len(severities))
	for i, s := range severities {
		out[i] = anomaly.Anomaly{Type: anomaly.TypeDurationHigh, Severity: s}
	}
	return out
}

func TestTierFromAnomalies(t *testing.T) {
	tests := []struct {
		name  string
		anoms []anomaly.Anomaly
		want  Tier
	}{
		{"no anomalies", nil, TierNone},
		{"low", anomsOf(anomaly.SeverityLow), TierEnhancedMonitoring},
		{"medium", anomsOf(anomaly.SeverityMedium), TierPlanSimplification},
		{"high", anomsOf(anomaly.SeverityHigh), TierEmergencyProtocol},
		{"critical", anomsOf(anomaly.SeverityCritical), TierResetCondition},
		{"worst wins", anomsOf(anomaly.SeverityLow, anomaly.SeverityHigh, anomaly.SeverityMedium), TierEmergencyProtocol},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TierFromAnomalies(tt.anoms); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTierFromConfidence(t *testing.T) {
	tests := []struct {
		confidence float64
		ok         bool
		want       Tier
	}{
		{95, true, TierNone},
		{80, true, TierNone},
		{79.9, true, TierEnhancedMonitoring},
		{60, true, TierEnhancedMonitoring},
		{59.9, true, TierPlanSimplification},
		{40, true, TierPlanSimplification},
		{39.9, true, TierEmergencyProtocol},
		{20, true, TierEmergencyProtocol},
		{19.9, true, TierResetCondition},
		{0, true, TierResetCondition},
		{100, false, TierResetCondition}, // score unavailable: assume the worst
	}
	for _, tt := range tests {
		if got := TierFromConfidence(tt.confidence, tt.ok); got != tt.want {
			t.Errorf("TierFromConfidence(%.1f, %v) = %s, want %s", tt.confidence, tt.ok, got, tt.want)
		}
	}
}

func TestEvaluate_FusionTakesWorseSignal(t *testing.T) {
	c, _ := newTestController(t)

	// Anomalies say plan simplification, confidence says fine.
	if got := c.Evaluate(anomsOf(anomaly.SeverityMedium), 95, true); got != TierPlanSimplification {
		t.Errorf("tier = %s, want plan_simplification from anomalies", got)
	}

	c2, _ := newTestController(t)
	// No anomalies, but confidence has collapsed.
	if got := c2.Evaluate(nil, 25, true); got != TierEmergencyProtocol {
		t.Errorf("tier = %s, want emergency_protocol from confidence", got)
	}
}

func TestEvaluate_EscalatesImmediately(t *testing.T) {
	c, sink := newTestController(t)

	got := c.Evaluate(anomsOf(anomaly.SeverityCritical), 90, true)
	if got != TierResetCondition {
		t.Fatalf("tier = %s, want reset_condition after one critical tick", got)
	}
	if len(sink.transitions) != 1 {
		t.Fatalf("sink saw %d transitions, want 1", len(sink.transitions))
	}
	tr := sink.transitions[0]
	if tr.From != TierNone || tr.To != TierResetCondition {
		t.Errorf("transition %s -> %s, want none -> reset_condition", tr.From, tr.To)
	}
	if tr.ID == "" {
		t.Error("transition has no id")
	}
}

func TestEvaluate_StepDownIsDebounced(t *testing.T) {
	c, sink := newTestController(t)

	c.Evaluate(anomsOf(anomaly.SeverityHigh), 90, true)
	if c.Current() != TierEmergencyProtocol {
		t.Fatalf("setup: tier = %s", c.Current())
	}

	// Two clean ticks are not enough to step down.
	for i := 0; i < 2; i++ {
		if got := c.Evaluate(nil, 90, true); got != TierEmergencyProtocol {
			t.Fatalf("tier = %s after %d clean ticks, want emergency_protocol held", got, i+1)
		}
	}
	// The third consecutive clean tick releases it.
	if got := c.Evaluate(nil, 90, true); got != TierNone {
		t.Errorf("tier = %s after 3 clean ticks, want none", got)
	}
	if len(sink.transitions) != 2 {
		t.Errorf("sink saw %d transitions, want 2 (up and down)", len(sink.transitions))
	}
}

func TestEvaluate_EscalationResetsStepDownCounter(t *testing.T) {
	c, _ := newTestController(t)

	c.Evaluate(anomsOf(anomaly.SeverityHigh), 90, true)
	c.Evaluate(nil, 90, true)
	c.Evaluate(nil, 90, true)
	// A recurrence wipes the progress toward stepping down.
	c.Evaluate(anomsOf(anomaly.SeverityHigh), 90, true)
	c.Evaluate(nil, 90, true)
	c.Evaluate(nil, 90, true)
	if got := c.Evaluate(nil, 90, true); got != TierNone {
		t.Errorf("tier = %s, want none only after 3 fresh clean ticks", got)
	}
	if got := c.Current(); got != TierNone {
		t.Errorf("Current() = %s, want none", got)
	}
}

func TestEvaluate_ChangedDownCandidateRestartsDebounce(t *testing.T) {
	c, _ := newTestController(t)

	c.Evaluate(anomsOf(anomaly.SeverityCritical), 90, true) // reset_condition

	// Two ticks computing emergency, then the target drops to none:
	// the debounce restarts for the new candidate.
	c.Evaluate(anomsOf(anomaly.SeverityHigh), 90, true)
	c.Evaluate(anomsOf(anomaly.SeverityHigh), 90, true)
	c.Evaluate(nil, 90, true)
	c.Evaluate(nil, 90, true)
	if got := c.Current(); got != TierResetCondition {
		t.Errorf("tier = %s, want reset_condition still held", got)
	}
	if got := c.Evaluate(nil, 90, true); got != TierNone {
		t.Errorf("tier = %s, want none after 3 consecutive ticks at the same candidate", got)
	}
}

func TestHistory_BoundedAndOrdered(t *testing.T) {
	c, _ := newTestController(t)

	c.Evaluate(anomsOf(anomaly.SeverityHigh), 90, true)
	for i := 0; i < 3; i++ {
		c.Evaluate(nil, 90, true)
	}

	hist := c.History(0)
	if len(hist) != 2 {
		t.Fatalf("history has %d entries, want 2", len(hist))
	}
	if hist[0].To != TierEmergencyProtocol || hist[1].To != TierNone {
		t.Errorf("history order = %s, %s; want emergency_protocol then none", hist[0].To, hist[1].To)
	}

	if got := c.History(1); len(got) != 1 || got[0].To != TierNone {
		t.Errorf("History(1) = %+v, want just the latest transition", got)
	}
}

func TestCheckInterval_TightensWithTier(t *testing.T) {
	prev := CheckInterval(TierNone)
	for _, tier := range []Tier{TierEnhancedMonitoring, TierPlanSimplification, TierEmergencyProtocol, TierResetCondition} {
		cur := CheckInterval(tier)
		if cur > prev {
			t.Errorf("interval at %s (%v) is slower than the tier below (%v)", tier, cur, prev)
		}
		prev = cur
	}
}
