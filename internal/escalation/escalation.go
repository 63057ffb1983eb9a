// Package escalation fuses anomaly severity with an external
// confidence signal into an ordered escalation tier and dispatches
// tier changes to the outer system.
package escalation

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/wardenhq/warden/internal/anomaly"
	"github.com/wardenhq/warden/internal/clock"
)

// Tier is the ordered escalation level. Higher is worse.
type Tier int

const (
	TierNone Tier = iota
	TierEnhancedMonitoring
	TierPlanSimplification
	TierEmergencyProtocol
	TierResetCondition
)

func (t Tier) String() string {
	switch t {
	case TierNone:
		return "none"
	case TierEnhancedMonitoring:
		return "enhanced_monitoring"
	case TierPlanSimplification:
		return "plan_simplification"
	case TierEmergencyProtocol:
		return "emergency_protocol"
	case TierResetCondition:
		return "reset_condition"
	default:
		return "unknown"
	}
}

// Confidence bands, on a 0-100 scale.
const (
	confidenceNone      = 80.0
	confidenceEnhanced  = 60.0
	confidenceSimplify  = 40.0
	confidenceEmergency = 20.0
)

// stepDownTicks is the de-escalation debounce: the fused tier must
// compute lower for this many consecutive ticks before the controller
// steps down. Escalation upward is immediate.
const stepDownTicks = 3

// Transition is one audit record of a tier change.
type Transition struct {
	ID           string    `json:"id"`
	From         Tier      `json:"from"`
	To           Tier      `json:"to"`
	At           time.Time `json:"at"`
	Confidence   float64   `json:"confidence"`
	ConfidenceOK bool      `json:"confidenceOk"`
	AnomalyTypes []string  `json:"anomalyTypes"`
}

// maxTransitions bounds the audit history.
const maxTransitions = 200

// ActionSink receives tier changes. Implementations shorten check
// intervals, request plan simplification, or signal the external
// checkpoint/reset collaborator depending on the new tier.
type ActionSink interface {
	OnTierChange(t Transition)
}

// Controller owns the current tier for one monitored run.
type Controller struct {
	mu      sync.RWMutex
	clock   clock.Clock
	sink    ActionSink
	current Tier

	// downTicks counts consecutive ticks whose fused tier was below
	// the current one.
	downTicks     int
	downCandidate Tier

	history []Transition
}

// NewController starts at TierNone.
func NewController(c clock.Clock, sink ActionSink) *Controller {
	return &Controller{clock: c, sink: sink, current: TierNone}
}

// TierFromAnomalies maps the worst severity in the list to a tier.
func TierFromAnomalies(anoms []anomaly.Anomaly) Tier {
	switch anomaly.MaxSeverity(anoms) {
	case anomaly.SeverityCritical:
		return TierResetCondition
	case anomaly.SeverityHigh:
		return TierEmergencyProtocol
	case anomaly.SeverityMedium:
		return TierPlanSimplification
	case anomaly.SeverityLow:
		return TierEnhancedMonitoring
	default:
		return TierNone
	}
}

// TierFromConfidence maps a 0-100 confidence score to a tier. An
// unavailable score (ok=false) is treated as low confidence, the
// conservative reading.
func TierFromConfidence(confidence float64, ok bool) Tier {
	if !ok {
		return TierResetCondition
	}
	switch {
	case confidence >= confidenceNone:
		return TierNone
	case confidence >= confidenceEnhanced:
		return TierEnhancedMonitoring
	case confidence >= confidenceSimplify:
		return TierPlanSimplification
	case confidence >= confidenceEmergency:
		return TierEmergencyProtocol
	default:
		return TierResetCondition
	}
}

// Evaluate fuses the two signals for one tick and applies the result.
// Escalation upward is immediate; stepping down is debounced over
// stepDownTicks consecutive lower readings. Returns the tier in
// effect after the tick.
func (c *Controller) Evaluate(anoms []anomaly.Anomaly, confidence float64, confidenceOK bool) Tier {
	fromAnomalies := TierFromAnomalies(anoms)
	fromConfidence := TierFromConfidence(confidence, confidenceOK)
	fused := fromAnomalies
	if fromConfidence > fused {
		fused = fromConfidence
	}

	c.mu.Lock()
	var dispatched *Transition
	switch {
	case fused > c.current:
		dispatched = c.transitionLocked(fused, anoms, confidence, confidenceOK)
		c.downTicks = 0
	case fused < c.current:
		if fused != c.downCandidate {
			c.downCandidate = fused
			c.downTicks = 0
		}
		c.downTicks++
		if c.downTicks >= stepDownTicks {
			dispatched = c.transitionLocked(fused, anoms, confidence, confidenceOK)
			c.downTicks = 0
		}
	default:
		c.downTicks = 0
	}
	current := c.current
	c.mu.Unlock()

	// Dispatch outside the lock so sinks can query the controller.
	if dispatched != nil && c.sink != nil {
		c.sink.OnTierChange(*dispatched)
	}
	return current
}

func (c *Controller) transitionLocked(to Tier, anoms []anomaly.Anomaly, confidence float64, confidenceOK bool) *Transition {
	types := make([]string, 0, len(anoms))
	for _, a := range anoms {
		types = append(types, string(a.Type))
	}

	tr := Transition{
		ID:           ulid.Make().String(),
		From:         c.current,
		To:           to,
		At:           c.clock.Now(),
		Confidence:   confidence,
		ConfidenceOK: confidenceOK,
		AnomalyTypes: types,
	}
	c.history = append(c.history, tr)
	if len(c.history) > maxTransitions {
		c.history = c.history[len(c.history)-maxTransitions:]
	}
	c.current = to

	log.Info().
		Str("from", tr.From.String()).
		Str("to", tr.To.String()).
		Float64("confidence", confidence).
		Strs("anomalies", types).
		Msg("Escalation tier changed")
	return &tr
}

// Current returns the tier in effect.
func (c *Controller) Current() Tier {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// History returns the most recent n transitions, oldest first.
func (c *Controller) History(n int) []Transition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if n <= 0 || n > len(c.history) {
		n = len(c.history)
	}
	out := make([]Transition, n)
	copy(out, c.history[len(c.history)-n:])
	return out
}

// CheckInterval suggests how often the outer loop should tick at a
// given tier. Higher tiers watch the run more closely.
func CheckInterval(t Tier) time.Duration {
	switch t {
	case TierNone:
		return 5 * time.Second
	case TierEnhancedMonitoring:
		return 2 * time.Second
	case TierPlanSimplification:
		return 2 * time.Second
	case TierEmergencyProtocol:
		return time.Second
	case TierResetCondition:
		return time.Second
	default:
		return 5 * time.Second
	}
}
