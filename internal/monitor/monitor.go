// Package monitor ties the classifier, tracker, learner, anomaly
// detector, escalation controller, and break-out machinery into the
// single per-tick Update entry point the outer run loop calls.
package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wardenhq/warden/internal/anomaly"
	"github.com/wardenhq/warden/internal/breakout"
	"github.com/wardenhq/warden/internal/clock"
	"github.com/wardenhq/warden/internal/escalation"
	"github.com/wardenhq/warden/internal/modes"
	"github.com/wardenhq/warden/internal/profile"
	"github.com/wardenhq/warden/internal/telemetry"
	"github.com/wardenhq/warden/internal/tracking"
)

// ConfidenceScorer supplies the external 0-100 confidence signal. The
// second return is false when the score is unavailable this tick.
type ConfidenceScorer interface {
	CurrentConfidence() (float64, bool)
}

// ProfileSaver receives updated profiles for persistence.
type ProfileSaver interface {
	Save(profile.Profile)
}

// ResetSignal is notified when the controller reaches the reset tier;
// the outer system reloads from checkpoint in response.
type ResetSignal func(escalation.Transition)

// Config tunes the monitor.
type Config struct {
	AnomalyLogSize int // recent-anomaly record size for dashboards
}

// TickReport summarizes what one Update call did.
type TickReport struct {
	Classified bool
	Mode       modes.Mode
	SubMode    string
	Anomalies  []anomaly.Anomaly
	Tier       escalation.Tier
	Breakout   *breakout.Result
}

type pendingExit struct {
	reason modes.ExitReason
}

// Monitor owns one monitored run's health state. Each run gets a fully
// isolated Monitor; nothing here is shared between runs except the
// profile store, which is torn-write safe by key.
type Monitor struct {
	mu sync.Mutex

	clock      clock.Clock
	classifier modes.Classifier
	tracker    *tracking.Tracker
	learner    *profile.Learner
	saver      ProfileSaver
	detector   *anomaly.Detector
	controller *escalation.Controller
	breakouts  *breakout.Manager
	analytics  *breakout.Analytics
	scorer     ConfidenceScorer
	metrics    *telemetry.Metrics
	anomalies  *anomalyLog
	onReset    ResetSignal

	tick           uint64
	startedAt      time.Time
	breakoutActive bool
	pendingExits   []pendingExit
}

// Options are the monitor's collaborators. Classifier, Tracker,
// Learner, Detector, and Analytics are required; the rest may be nil
// and degrade gracefully.
type Options struct {
	Clock      clock.Clock
	Classifier modes.Classifier
	Tracker    *tracking.Tracker
	Learner    *profile.Learner
	Saver      ProfileSaver
	Detector   *anomaly.Detector
	Breakouts  *breakout.Manager
	Analytics  *breakout.Analytics
	Scorer     ConfidenceScorer
	Metrics    *telemetry.Metrics
	OnReset    ResetSignal
	Config     Config
}

// New assembles a monitor. The escalation controller is created here
// so the monitor can act as its action sink.
func New(opts Options) *Monitor {
	m := &Monitor{
		clock:      opts.Clock,
		classifier: opts.Classifier,
		tracker:    opts.Tracker,
		learner:    opts.Learner,
		saver:      opts.Saver,
		detector:   opts.Detector,
		breakouts:  opts.Breakouts,
		analytics:  opts.Analytics,
		scorer:     opts.Scorer,
		metrics:    opts.Metrics,
		anomalies:  newAnomalyLog(opts.Config.AnomalyLogSize),
		onReset:    opts.OnReset,
		startedAt:  opts.Clock.Now(),
	}
	m.controller = escalation.NewController(opts.Clock, tierSink{m})
	return m
}

// tierSink routes controller transitions back into the monitor.
type tierSink struct{ m *Monitor }

func (s tierSink) OnTierChange(tr escalation.Transition) {
	s.m.metrics.ObserveEscalation(tr.To.String())
	if tr.To == escalation.TierResetCondition && s.m.onReset != nil {
		s.m.onReset(tr)
	}
}

// OnAnomaly registers a callback fired for each recorded anomaly.
func (m *Monitor) OnAnomaly(cb AnomalyCallback) {
	m.anomalies.onAnomaly(cb)
}

// Update is the per-tick entry point. It classifies the snapshot,
// applies any mode transition, runs anomaly detection and escalation
// fusion, and executes a break-out when an anomaly calls for one.
//
// Break-out execution may block for its inter-attempt waits; the
// monitor's lock is released for its duration and mode-exit signals
// arriving meanwhile are queued and applied afterward.
func (m *Monitor) Update(ctx context.Context, snap modes.Snapshot) TickReport {
	m.mu.Lock()

	m.tick++
	tick := m.tick
	m.metrics.ObserveTick()

	report := TickReport{}

	cls, ok := m.classifier.Classify(snap)
	if ok {
		report.Classified = true
		report.Mode = cls.Mode
		report.SubMode = cls.SubMode
		m.applyClassificationLocked(cls, tick, snap)
	} else {
		log.Debug().Uint64("tick", tick).Msg("Classifier produced no verdict; skipping transition logic")
	}

	report.Anomalies = m.detectLocked()
	m.mu.Unlock()

	m.anomalies.record(report.Anomalies)
	for _, a := range report.Anomalies {
		m.metrics.ObserveAnomaly(string(a.Type), string(a.Severity))
	}

	confidence, confOK := 0.0, false
	if m.scorer != nil {
		confidence, confOK = m.scorer.CurrentConfidence()
	}
	// The monitor lock is released here so tier sinks (reset signals,
	// metrics) can block or call back into the monitor freely.
	report.Tier = m.controller.Evaluate(report.Anomalies, confidence, confOK)
	m.metrics.SetTier(int(report.Tier))
	if current, has := m.tracker.Current(); has {
		m.metrics.SetModeDuration(current.Mode.String(), m.tracker.CurrentDuration().Seconds())
	}

	strategy, mode, wantBreakout := pickBreakout(report.Anomalies)
	if !wantBreakout || m.breakouts == nil {
		return report
	}

	// Run the break-out without holding the monitor lock so concurrent
	// exit signals are queued, not blocked.
	m.mu.Lock()
	m.breakoutActive = true
	m.mu.Unlock()

	result, err := m.breakouts.Execute(ctx, strategy, mode)
	if err != nil {
		log.Warn().Err(err).Str("strategy", string(strategy)).Msg("Breakout aborted")
	} else {
		report.Breakout = &result
		m.metrics.ObserveBreakout(string(result.Strategy), mode.String(), result.Success)
	}

	m.mu.Lock()
	m.breakoutActive = false
	m.drainPendingLocked()
	m.mu.Unlock()
	return report
}

// applyClassificationLocked opens or switches the tracked mode to
// match the classifier's verdict. A changed verdict is a natural exit
// of the previous mode.
func (m *Monitor) applyClassificationLocked(cls modes.Classification, tick uint64, snap modes.Snapshot) {
	current, has := m.tracker.Current()
	if has && current.Mode == cls.Mode && current.SubMode == cls.SubMode {
		return
	}

	if has {
		if exit, ok := m.tracker.ExitMode(modes.ExitNatural); ok {
			m.processExitLocked(exit)
		}
	}
	m.tracker.EnterMode(cls.Mode, cls.SubMode, tick, snap.Labels)
}

// OnNaturalExit is the explicit "this mode just ended cleanly" signal
// from the outer loop, bypassing forced-interrupt inference. Exits
// arriving while a break-out is in flight are queued and applied once
// it concludes.
func (m *Monitor) OnNaturalExit(reason modes.ExitReason) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.breakoutActive {
		m.pendingExits = append(m.pendingExits, pendingExit{reason: reason})
		return
	}
	if exit, ok := m.tracker.ExitMode(reason); ok {
		m.processExitLocked(exit)
	}
}

func (m *Monitor) drainPendingLocked() {
	for _, pe := range m.pendingExits {
		if exit, ok := m.tracker.ExitMode(pe.reason); ok {
			m.processExitLocked(exit)
		}
	}
	m.pendingExits = m.pendingExits[:0]
}

// processExitLocked feeds natural exits into the profile learner and
// queues the updated profile for persistence. Interrupted and errored
// exits never train the profile.
func (m *Monitor) processExitLocked(exit modes.Exit) {
	if exit.Reason != modes.ExitNatural {
		return
	}
	p, ok := m.learner.Observe(exit.Mode, exit.SubMode, exit.Duration)
	if !ok {
		return
	}
	if m.saver != nil {
		m.saver.Save(p)
	}
}

func (m *Monitor) detectLocked() []anomaly.Anomaly {
	current, has := m.tracker.Current()
	if !has {
		return nil
	}

	prof, hasProfile := m.learner.Get(current.Mode, current.SubMode)
	transitions := m.tracker.Transitions(0)
	recent := make([]modes.Mode, len(transitions))
	for i, tr := range transitions {
		recent[i] = tr.Mode
	}

	in := anomaly.Input{
		Mode:       current.Mode,
		SubMode:    current.SubMode,
		Duration:   m.tracker.CurrentDuration(),
		Session:    m.tracker.CurrentCumulative(tracking.WindowSession),
		Hour:       m.tracker.CurrentCumulative(tracking.WindowHour),
		Day:        m.tracker.CurrentCumulative(tracking.WindowDay),
		Profile:    prof,
		HasProfile: hasProfile,
		Warm:       m.learner.Warm(current.Mode, current.SubMode),
		Thresholds: m.learner.ThresholdsFor(current.Mode, current.SubMode),
		Recent:     recent,
	}
	return m.detector.Check(in)
}

// pickBreakout selects the break-out strategy demanded by the most
// severe anomaly that carries a break-out action.
func pickBreakout(anoms []anomaly.Anomaly) (breakout.Strategy, modes.Mode, bool) {
	sorted := append([]anomaly.Anomaly(nil), anoms...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Severity.Rank() > sorted[j].Severity.Rank()
	})
	for _, a := range sorted {
		if strategy, ok := breakout.StrategyFor(a.RecommendedAction); ok {
			return strategy, a.Mode, true
		}
	}
	return "", "", false
}

// Status is the dashboard snapshot.
type Status struct {
	Tier        string                  `json:"tier"`
	Tick        uint64                  `json:"tick"`
	Uptime      float64                 `json:"uptimeSeconds"`
	Mode        string                  `json:"mode,omitempty"`
	SubMode     string                  `json:"subMode,omitempty"`
	Duration    float64                 `json:"durationSeconds"`
	Session     float64                 `json:"sessionSeconds"`
	Hour        float64                 `json:"hourSeconds"`
	Day         float64                 `json:"daySeconds"`
	Anomalies   []anomaly.Anomaly       `json:"anomalies"`
	Escalations []escalation.Transition `json:"escalations"`
	Strategies  map[string]float64      `json:"strategySuccessRates"`
}

// Status returns a cloned snapshot for the query surface.
func (m *Monitor) Status(lastN int) Status {
	m.mu.Lock()
	tick := m.tick
	m.mu.Unlock()

	st := Status{
		Tier:        m.controller.Current().String(),
		Tick:        tick,
		Uptime:      m.clock.Now().Sub(m.startedAt).Seconds(),
		Duration:    m.tracker.CurrentDuration().Seconds(),
		Session:     m.tracker.CurrentCumulative(tracking.WindowSession).Seconds(),
		Hour:        m.tracker.CurrentCumulative(tracking.WindowHour).Seconds(),
		Day:         m.tracker.CurrentCumulative(tracking.WindowDay).Seconds(),
		Anomalies:   m.anomalies.recent(lastN),
		Escalations: m.controller.History(lastN),
		Strategies:  m.analytics.Rates(),
	}
	if current, has := m.tracker.Current(); has {
		st.Mode = current.Mode.String()
		st.SubMode = current.SubMode
	}
	return st
}

// Tier returns the current escalation tier.
func (m *Monitor) Tier() escalation.Tier { return m.controller.Current() }

// Profiles returns the learner's current profile set.
func (m *Monitor) Profiles() []profile.Profile { return m.learner.All() }
