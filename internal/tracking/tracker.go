// Package tracking owns mode entry/exit bookkeeping: instantaneous
// durations, session/hour/day cumulative counters with independent
// window rollover, and a bounded transition and exit history.
package tracking

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wardenhq/warden/internal/clock"
	"github.com/wardenhq/warden/internal/modes"
)

// Window selects one of the three cumulative accumulators.
type Window string

const (
	WindowSession Window = "session"
	WindowHour    Window = "hour"
	WindowDay     Window = "day"
)

const (
	hourWindow = time.Hour
	dayWindow  = 24 * time.Hour

	// maxTransitions bounds the mode-transition ring buffer.
	maxTransitions = 100
	// historyRetention is how long exit records are kept.
	historyRetention = 24 * time.Hour
)

// Transition is one element of the transition ring.
type Transition struct {
	Mode    modes.Mode
	SubMode string
	At      time.Time
}

// Tracker tracks the current mode and time-in-mode accumulators for a
// single monitored run. All operations are pure in-memory state
// transitions; none can fail or block.
//
// The tracker is driven by a single tick loop but may be read
// concurrently by the dashboard query surface, hence the RWMutex.
type Tracker struct {
	mu    sync.RWMutex
	clock clock.Clock

	current *modes.Entry

	session map[string]time.Duration
	hour    map[string]time.Duration
	day     map[string]time.Duration

	sessionStart time.Time
	hourStart    time.Time
	dayStart     time.Time

	transitions []Transition
	history     []modes.Exit
}

// New returns a tracker using the given clock.
func New(c clock.Clock) *Tracker {
	now := c.Now()
	return &Tracker{
		clock:        c,
		session:      make(map[string]time.Duration),
		hour:         make(map[string]time.Duration),
		day:          make(map[string]time.Duration),
		sessionStart: now,
		hourStart:    now,
		dayStart:     now,
	}
}

// EnterMode opens a new mode entry. If another mode is current it is
// first force-exited with reason interrupt.
func (t *Tracker) EnterMode(mode modes.Mode, subMode string, tick uint64, context map[string]string) {
	if !mode.Valid() {
		log.Warn().Str("mode", mode.String()).Msg("Rejecting entry for unknown mode")
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current != nil {
		t.exitLocked(modes.ExitInterrupt)
	}

	subMode = modes.NormalizeSubMode(subMode)
	t.current = &modes.Entry{
		Mode:      mode,
		SubMode:   subMode,
		EntryTime: t.clock.Now(),
		EntryTick: tick,
		Context:   context,
	}

	t.transitions = append(t.transitions, Transition{Mode: mode, SubMode: subMode, At: t.current.EntryTime})
	if len(t.transitions) > maxTransitions {
		t.transitions = t.transitions[len(t.transitions)-maxTransitions:]
	}
}

// ExitMode closes the current entry. It is a no-op when nothing is
// current. The returned Exit reflects the post-rollover cumulative
// windows.
func (t *Tracker) ExitMode(reason modes.ExitReason) (modes.Exit, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exitLocked(reason)
}

func (t *Tracker) exitLocked(reason modes.ExitReason) (modes.Exit, bool) {
	if t.current == nil {
		return modes.Exit{}, false
	}

	now := t.clock.Now()
	duration := now.Sub(t.current.EntryTime)
	if duration < 0 {
		// Clock went backwards; record zero rather than corrupting
		// the accumulators.
		log.Warn().Time("entry", t.current.EntryTime).Time("now", now).Msg("Negative mode duration clamped to zero")
		duration = 0
	}

	// Roll windows before reading cumulative values so the record
	// reflects the post-rollover window.
	t.rolloverLocked(now)

	key := t.current.Key()
	t.session[key] += duration
	t.hour[key] += duration
	t.day[key] += duration

	exit := modes.Exit{
		Mode:              t.current.Mode,
		SubMode:           t.current.SubMode,
		Duration:          duration,
		CumulativeSession: t.session[key],
		CumulativeHour:    t.hour[key],
		CumulativeDay:     t.day[key],
		Reason:            reason,
		ExitTime:          now,
	}

	t.history = append(t.history, exit)
	t.pruneHistoryLocked(now)
	t.current = nil
	return exit, true
}

func (t *Tracker) rolloverLocked(now time.Time) {
	if now.Sub(t.hourStart) > hourWindow {
		t.hour = make(map[string]time.Duration)
		t.hourStart = now
	}
	if now.Sub(t.dayStart) > dayWindow {
		t.day = make(map[string]time.Duration)
		t.dayStart = now
	}
}

func (t *Tracker) pruneHistoryLocked(now time.Time) {
	cutoff := now.Add(-historyRetention)
	idx := 0
	for idx < len(t.history) && t.history[idx].ExitTime.Before(cutoff) {
		idx++
	}
	if idx > 0 {
		t.history = append([]modes.Exit(nil), t.history[idx:]...)
	}
}

// Current returns a copy of the current entry, if any.
func (t *Tracker) Current() (modes.Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.current == nil {
		return modes.Entry{}, false
	}
	return *t.current, true
}

// CurrentDuration returns how long the current mode has been active,
// or zero when no mode is current.
func (t *Tracker) CurrentDuration() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.current == nil {
		return 0
	}
	d := t.clock.Now().Sub(t.current.EntryTime)
	if d < 0 {
		return 0
	}
	return d
}

// CurrentCumulative returns the cumulative time for the current mode's
// key within the given window, including the in-progress duration.
// Returns zero when no mode is current.
func (t *Tracker) CurrentCumulative(w Window) time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.current == nil {
		return 0
	}
	key := t.current.Key()
	live := t.clock.Now().Sub(t.current.EntryTime)
	if live < 0 {
		live = 0
	}
	switch w {
	case WindowSession:
		return t.session[key] + live
	case WindowHour:
		if t.clock.Now().Sub(t.hourStart) > hourWindow {
			return live
		}
		return t.hour[key] + live
	case WindowDay:
		if t.clock.Now().Sub(t.dayStart) > dayWindow {
			return live
		}
		return t.day[key] + live
	default:
		return 0
	}
}

// Cumulative returns the recorded cumulative duration for an arbitrary
// key within a window, without the in-progress entry.
func (t *Tracker) Cumulative(w Window, key string) time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	switch w {
	case WindowSession:
		return t.session[key]
	case WindowHour:
		return t.hour[key]
	case WindowDay:
		return t.day[key]
	default:
		return 0
	}
}

// Transitions returns the most recent n transitions, oldest first.
func (t *Tracker) Transitions(n int) []Transition {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if n <= 0 || n > len(t.transitions) {
		n = len(t.transitions)
	}
	out := make([]Transition, n)
	copy(out, t.transitions[len(t.transitions)-n:])
	return out
}

// History returns a copy of the retained exit records, oldest first.
func (t *Tracker) History() []modes.Exit {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]modes.Exit, len(t.history))
	copy(out, t.history)
	return out
}
