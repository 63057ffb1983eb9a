package breakout

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wardenhq/warden/internal/anomaly"
	"github.com/wardenhq/warden/internal/clock"
	"github.com/wardenhq/warden/internal/modes"
)

// Strategy names a recovery approach, ordered roughly by force.
type Strategy string

const (
	StrategyStandard   Strategy = "standard"
	StrategyImmediate  Strategy = "immediate"
	StrategyAggressive Strategy = "aggressive"
	StrategyForce      Strategy = "force"
)

// maxAttempts caps the retry loop per strategy.
var maxAttempts = map[Strategy]int{
	StrategyStandard:   3,
	StrategyImmediate:  3,
	StrategyAggressive: 5,
	StrategyForce:      1,
}

// Executor delivers a primitive recovery action to the monitored run
// and reports whether the mode changed as a result.
type Executor interface {
	Execute(ctx context.Context, action string) (bool, error)
}

// Snapshots is the external checkpoint collaborator used by the force
// strategy.
type Snapshots interface {
	Latest() (string, error)
	Restore(ctx context.Context, id string) error
}

// Result is the outcome of one strategy execution.
type Result struct {
	Success  bool     `json:"success"`
	Strategy Strategy `json:"strategy"`
	Action   string   `json:"action"`
	Attempts int      `json:"attempts"`
}

// escapeSequences maps modes to the primitive actions that usually
// dislodge them, tried in order within one attempt.
var escapeSequences = map[modes.Mode][]string{
	modes.ModeBattle:     {"press_b", "press_b", "press_a"},
	modes.ModeDialog:     {"press_a", "press_a", "press_b"},
	modes.ModeMenu:       {"press_b", "press_b", "press_start"},
	modes.ModeNavigation: {"press_b", "move_random", "press_start"},
	modes.ModeEvolution:  {"press_a", "press_a"},
	modes.ModeHealing:    {"press_a", "press_b"},
	modes.ModeShopping:   {"press_b", "press_b"},
	modes.ModeTransition: {"press_a", "press_b"},
	modes.ModeUnknown:    {"press_b", "press_a", "press_start"},
}

// immediateSequences are the harder variants used by the immediate
// strategy: longer, noisier sequences for runs that ignore the polite
// version.
var immediateSequences = map[modes.Mode][]string{
	modes.ModeBattle:     {"press_b", "press_b", "press_b", "press_a", "press_start"},
	modes.ModeDialog:     {"press_a", "press_a", "press_a", "press_b", "press_b"},
	modes.ModeMenu:       {"press_b", "press_b", "press_b", "press_start", "press_select"},
	modes.ModeNavigation: {"move_random", "move_random", "press_b", "press_start"},
	modes.ModeUnknown:    {"press_b", "press_b", "press_a", "press_start", "press_select"},
}

// Manager executes break-out strategies. Execution may block for the
// duration of inter-attempt waits; it must never be called while
// holding tracker state.
type Manager struct {
	clock     clock.Clock
	sleeper   clock.Sleeper
	executor  Executor
	snapshots Snapshots
	analytics *Analytics
}

// NewManager wires a manager to its collaborators.
func NewManager(c clock.Clock, s clock.Sleeper, executor Executor, snapshots Snapshots, analytics *Analytics) *Manager {
	return &Manager{
		clock:     c,
		sleeper:   s,
		executor:  executor,
		snapshots: snapshots,
		analytics: analytics,
	}
}

// StrategyFor maps an anomaly's recommended action onto a strategy.
func StrategyFor(action string) (Strategy, bool) {
	switch action {
	case anomaly.ActionBreakOutImmediate:
		return StrategyImmediate, true
	case anomaly.ActionBreakOutAggressive:
		return StrategyAggressive, true
	case anomaly.ActionForceBreakOut:
		return StrategyForce, true
	default:
		return "", false
	}
}

// Execute runs the named strategy against the given stuck mode. A
// context cancellation mid-attempt aborts without recording the
// attempt; completed attempts (success or failure) are always
// recorded.
func (m *Manager) Execute(ctx context.Context, strategy Strategy, mode modes.Mode) (Result, error) {
	start := m.clock.Now()

	var result Result
	var err error
	switch strategy {
	case StrategyAggressive:
		result, err = m.runAggressive(ctx, mode)
	case StrategyImmediate, StrategyStandard:
		result, err = m.runSequenced(ctx, strategy, mode, maxAttempts[strategy])
	case StrategyForce:
		result, err = m.runForce(ctx, mode)
	default:
		return Result{}, fmt.Errorf("unknown breakout strategy %q", strategy)
	}
	if err != nil {
		// Aborted: no analytics credit either way.
		return result, err
	}

	m.analytics.Record(strategy, mode, result.Action, result.Success, result.Attempts, m.clock.Now().Sub(start))
	log.Info().
		Str("strategy", string(strategy)).
		Str("mode", mode.String()).
		Bool("success", result.Success).
		Int("attempts", result.Attempts).
		Msg("Breakout strategy finished")
	return result, nil
}

// runSequenced is the shared retry loop for the standard and immediate
// strategies: issue the mode's escape sequence, checking after each
// primitive whether the mode changed, with exponential backoff between
// attempts.
func (m *Manager) runSequenced(ctx context.Context, strategy Strategy, mode modes.Mode, limit int) (Result, error) {
	sequence := escapeSequences[mode]
	if strategy == StrategyImmediate {
		if seq, ok := immediateSequences[mode]; ok {
			sequence = seq
		}
	}
	if len(sequence) == 0 {
		sequence = escapeSequences[modes.ModeUnknown]
	}

	result := Result{Strategy: strategy}
	for attempt := 1; attempt <= limit; attempt++ {
		result.Attempts = attempt
		for _, action := range sequence {
			if err := ctx.Err(); err != nil {
				return result, fmt.Errorf("breakout aborted: %w", err)
			}
			result.Action = action
			changed, err := m.executor.Execute(ctx, action)
			if err != nil {
				log.Warn().Err(err).Str("action", action).Msg("Primitive recovery action failed")
				continue
			}
			if changed {
				result.Success = true
				return result, nil
			}
		}
		if attempt < limit {
			m.sleeper.Sleep(backoffWait(attempt))
		}
	}
	return result, nil
}

// runAggressive composes standard, immediate, and force in order,
// stopping at the first success. The sequenced sub-strategies share
// the aggressive cap with the final slot reserved for the force shot,
// so the checkpoint restore always gets its turn when nothing softer
// works.
func (m *Manager) runAggressive(ctx context.Context, mode modes.Mode) (Result, error) {
	result := Result{Strategy: StrategyAggressive}
	budget := maxAttempts[StrategyAggressive] - maxAttempts[StrategyForce]

	for _, sub := range []Strategy{StrategyStandard, StrategyImmediate} {
		if budget <= 0 {
			break
		}
		limit := maxAttempts[sub]
		if budget < limit {
			limit = budget
		}
		subResult, err := m.runSequenced(ctx, sub, mode, limit)
		result.Attempts += subResult.Attempts
		if err != nil {
			return result, err
		}
		result.Action = subResult.Action
		budget -= subResult.Attempts
		if subResult.Success {
			result.Success = true
			return result, nil
		}
	}

	subResult, err := m.runForce(ctx, mode)
	result.Attempts += subResult.Attempts
	if err != nil {
		return result, err
	}
	result.Action = subResult.Action
	result.Success = subResult.Success
	return result, nil
}

// runForce restores the latest known-good checkpoint. One shot only.
func (m *Manager) runForce(ctx context.Context, mode modes.Mode) (Result, error) {
	result := Result{Strategy: StrategyForce, Action: "restore_checkpoint", Attempts: 1}

	if err := ctx.Err(); err != nil {
		result.Attempts = 0
		return result, fmt.Errorf("breakout aborted: %w", err)
	}

	id, err := m.snapshots.Latest()
	if err != nil {
		log.Error().Err(err).Msg("No checkpoint available for force breakout")
		return result, nil
	}
	if err := m.snapshots.Restore(ctx, id); err != nil {
		log.Error().Err(err).Str("snapshot", id).Msg("Checkpoint restore failed")
		return result, nil
	}
	result.Success = true
	log.Warn().Str("snapshot", id).Str("mode", mode.String()).Msg("Restored checkpoint to break out of stuck mode")
	return result, nil
}

// backoffWait is the inter-attempt delay: 2s, 4s, 6s, ...
func backoffWait(attempt int) time.Duration {
	return time.Duration(attempt) * 2 * time.Second
}
