// Package breakout executes graduated recovery strategies against a
// stuck monitored run and learns which strategy works best per mode.
package breakout

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wardenhq/warden/internal/clock"
	"github.com/wardenhq/warden/internal/modes"
)

const (
	// rateWindow is how many recent attempts per (strategy, mode)
	// key feed the success rate.
	rateWindow = 20
	// rateMinSamples is the attempt count below which a key's rate
	// is reported as zero (not enough confidence to recommend).
	rateMinSamples = 5
)

// Attempt is one recorded strategy execution outcome.
type Attempt struct {
	ID       string        `json:"id"`
	Strategy Strategy      `json:"strategy"`
	Mode     modes.Mode    `json:"mode"`
	Action   string        `json:"action"`
	Success  bool          `json:"success"`
	Tries    int           `json:"tries"`
	Elapsed  time.Duration `json:"elapsed"`
	At       time.Time     `json:"at"`
}

// Analytics keeps a rolling outcome history per (strategy, mode) key
// and answers which strategy has historically worked best for a mode.
type Analytics struct {
	mu      sync.RWMutex
	clock   clock.Clock
	history map[string][]Attempt // key: strategy|mode
}

// NewAnalytics returns empty analytics.
func NewAnalytics(c clock.Clock) *Analytics {
	return &Analytics{
		clock:   c,
		history: make(map[string][]Attempt),
	}
}

func attemptKey(s Strategy, m modes.Mode) string {
	return string(s) + "|" + string(m)
}

// Record appends one outcome, trimming the key's history to the
// rolling window.
func (a *Analytics) Record(s Strategy, mode modes.Mode, action string, success bool, tries int, elapsed time.Duration) Attempt {
	attempt := Attempt{
		ID:       uuid.New().String(),
		Strategy: s,
		Mode:     mode,
		Action:   action,
		Success:  success,
		Tries:    tries,
		Elapsed:  elapsed,
		At:       a.clock.Now(),
	}

	a.mu.Lock()
	key := attemptKey(s, mode)
	hist := append(a.history[key], attempt)
	if len(hist) > rateWindow {
		hist = hist[len(hist)-rateWindow:]
	}
	a.history[key] = hist
	a.mu.Unlock()
	return attempt
}

// SuccessRate returns successes/attempts over the most recent window
// for the key, or zero when fewer than rateMinSamples attempts exist.
func (a *Analytics) SuccessRate(s Strategy, mode modes.Mode) float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	hist := a.history[attemptKey(s, mode)]
	if len(hist) < rateMinSamples {
		return 0
	}
	successes := 0
	for _, at := range hist {
		if at.Success {
			successes++
		}
	}
	return float64(successes) / float64(len(hist))
}

// RecommendedStrategy returns the historically best-performing
// strategy for a mode, defaulting to standard when nothing has a
// better-than-zero record.
func (a *Analytics) RecommendedStrategy(mode modes.Mode) Strategy {
	best := StrategyStandard
	bestRate := 0.0
	for _, s := range []Strategy{StrategyStandard, StrategyImmediate, StrategyAggressive, StrategyForce} {
		if rate := a.SuccessRate(s, mode); rate > bestRate {
			best = s
			bestRate = rate
		}
	}
	return best
}

// Rates returns the success rate for every (strategy, mode) key with
// recorded history, for the dashboard surface.
func (a *Analytics) Rates() map[string]float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make(map[string]float64, len(a.history))
	for key, hist := range a.history {
		if len(hist) < rateMinSamples {
			out[key] = 0
			continue
		}
		successes := 0
		for _, at := range hist {
			if at.Success {
				successes++
			}
		}
		out[key] = float64(successes) / float64(len(hist))
	}
	return out
}
