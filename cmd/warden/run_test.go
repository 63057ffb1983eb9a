package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wardenhq/warden/internal/anomaly"
	"github.com/wardenhq/warden/internal/breakout"
	"github.com/wardenhq/warden/internal/clock"
	"github.com/wardenhq/warden/internal/escalation"
	"github.com/wardenhq/warden/internal/modes"
	"github.com/wardenhq/warden/internal/monitor"
	"github.com/wardenhq/warden/internal/profile"
	"github.com/wardenhq/warden/internal/tracking"
	"github.com/wardenhq/warden/internal/websocket"
)

func newTickHarness(t *testing.T, statePath string) (*monitor.Monitor, *stateFileSource, *clock.Manual, *websocket.Hub) {
	t.Helper()

	clk := clock.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	source := newStateFileSource(statePath)
	mon := monitor.New(monitor.Options{
		Clock:      clk,
		Classifier: modes.NewRuleClassifier(),
		Tracker:    tracking.New(clk),
		Learner:    profile.NewLearner(clk, profile.BuiltinDefaults()),
		Detector:   anomaly.NewDetector(clk),
		Analytics:  breakout.NewAnalytics(clk),
		Scorer:     source,
		Config:     monitor.Config{AnomalyLogSize: 10},
	})
	hub := websocket.NewHub(func() interface{} { return nil })
	return mon, source, clk, hub
}

func writeState(t *testing.T, path string, tick uint64, screen string, confidence float64) {
	t.Helper()
	data, err := json.Marshal(stateFile{
		Tick:       tick,
		Screen:     screen,
		Confidence: &confidence,
		UpdatedAt:  time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestObserveOnce_MissingStateFileStillEscalates(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	mon, source, _, hub := newTickHarness(t, statePath)

	// The state file never appeared: no classification, but the dark
	// confidence signal must still reach the escalation controller.
	report := observeOnce(context.Background(), mon, source, nil, hub)
	if report.Classified {
		t.Error("classified with no state file")
	}
	if report.Tier != escalation.TierResetCondition {
		t.Errorf("tier = %s, want reset_condition when the state source is dark", report.Tier)
	}
}

func TestObserveOnce_StaleTickKeepsEvaluatingOpenMode(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	mon, source, clk, hub := newTickHarness(t, statePath)

	writeState(t, statePath, 1, "battle", 90)
	report := observeOnce(context.Background(), mon, source, nil, hub)
	if !report.Classified || report.Mode != modes.ModeBattle {
		t.Fatalf("report = %+v, want classified battle", report)
	}

	// The agent wedges: the file never advances. The open battle mode
	// must keep aging past the cold-profile emergency threshold even
	// though every read comes back stale.
	clk.Advance(400 * time.Second)
	report = observeOnce(context.Background(), mon, source, nil, hub)
	if report.Classified {
		t.Error("stale tick ran transition logic")
	}
	if len(report.Anomalies) == 0 {
		t.Fatal("no anomalies for a 400s stuck battle mode")
	}
	if report.Tier != escalation.TierEmergencyProtocol {
		t.Errorf("tier = %s, want emergency_protocol", report.Tier)
	}
	if st := mon.Status(0); st.Mode != "battle" {
		t.Errorf("status mode = %s, want battle still open", st.Mode)
	}
}
