// Package modes defines the closed mode taxonomy for the monitored run
// and the entry/exit records produced as the run moves between modes.
package modes

import (
	"fmt"
	"strings"
	"time"
)

// Mode is the coarse classification of what the monitored process is
// currently doing. The set is closed; fine-grained variation lives in
// the open SubMode string.
type Mode string

const (
	ModeBattle     Mode = "battle"
	ModeDialog     Mode = "dialog"
	ModeNavigation Mode = "navigation"
	ModeMenu       Mode = "menu"
	ModeEvolution  Mode = "evolution"
	ModeHealing    Mode = "healing"
	ModeShopping   Mode = "shopping"
	ModeTransition Mode = "transition"
	ModeUnknown    Mode = "unknown"
)

// AllModes lists every valid mode, unknown last.
var AllModes = []Mode{
	ModeBattle, ModeDialog, ModeNavigation, ModeMenu,
	ModeEvolution, ModeHealing, ModeShopping, ModeTransition,
	ModeUnknown,
}

// Valid reports whether m is a member of the closed mode set.
func (m Mode) Valid() bool {
	switch m {
	case ModeBattle, ModeDialog, ModeNavigation, ModeMenu,
		ModeEvolution, ModeHealing, ModeShopping, ModeTransition,
		ModeUnknown:
		return true
	}
	return false
}

func (m Mode) String() string { return string(m) }

// NormalizeSubMode validates and canonicalizes an open sub-mode label.
// Empty or malformed labels collapse to "default".
func NormalizeSubMode(sub string) string {
	sub = strings.TrimSpace(strings.ToLower(sub))
	if sub == "" {
		return "default"
	}
	// Sub-modes participate in profile keys; keep them key-safe.
	sub = strings.ReplaceAll(sub, "/", "_")
	sub = strings.ReplaceAll(sub, " ", "_")
	return sub
}

// Key identifies a (mode, sub_mode) pair; it is the profile and
// cumulative-counter key throughout the subsystem.
func Key(mode Mode, subMode string) string {
	return fmt.Sprintf("%s/%s", mode, NormalizeSubMode(subMode))
}

// ExitReason describes why a mode entry ended.
type ExitReason string

const (
	// ExitNatural means the classifier reported a different mode.
	ExitNatural ExitReason = "natural"
	// ExitInterrupt means a new entry superseded this one without a
	// clean exit.
	ExitInterrupt ExitReason = "interrupt"
	ExitError     ExitReason = "error"
	ExitManual    ExitReason = "manual"
)

// Entry records a transition into a (mode, sub_mode) pair. Exactly one
// entry may be current at a time; the tracker owns it exclusively.
type Entry struct {
	Mode      Mode              `json:"mode"`
	SubMode   string            `json:"subMode"`
	EntryTime time.Time         `json:"entryTime"`
	EntryTick uint64            `json:"entryTick"`
	Context   map[string]string `json:"context,omitempty"`
}

// Key returns the profile key for the entry.
func (e Entry) Key() string { return Key(e.Mode, e.SubMode) }

// Exit is the immutable record produced when an Entry ends.
type Exit struct {
	Mode              Mode          `json:"mode"`
	SubMode           string        `json:"subMode"`
	Duration          time.Duration `json:"duration"`
	CumulativeSession time.Duration `json:"cumulativeSession"`
	CumulativeHour    time.Duration `json:"cumulativeHour"`
	CumulativeDay     time.Duration `json:"cumulativeDay"`
	Reason            ExitReason    `json:"reason"`
	ExitTime          time.Time     `json:"exitTime"`
}

// Key returns the profile key for the exit.
func (e Exit) Key() string { return Key(e.Mode, e.SubMode) }
