package modes

import (
	"strings"
)

// Snapshot is the raw per-tick observation of the monitored process,
// assembled by external state/vision collaborators.
type Snapshot struct {
	Tick       uint64            `json:"tick"`
	Screen     string            `json:"screen"`     // coarse screen label from the vision source
	Flags      map[string]bool   `json:"flags"`      // boolean state flags (in_battle, dialog_open, ...)
	Labels     map[string]string `json:"labels"`     // free-form labels (battle_kind, location, ...)
	Confidence float64           `json:"confidence"` // classifier confidence in [0,100]
}

// Classification is the classifier's verdict for one snapshot.
type Classification struct {
	Mode       Mode
	SubMode    string
	Confidence float64
}

// Classifier turns raw snapshots into (mode, sub_mode, confidence).
type Classifier interface {
	Classify(snap Snapshot) (Classification, bool)
}

// rule maps a snapshot predicate to a classification.
type rule struct {
	match   func(Snapshot) bool
	mode    Mode
	subMode func(Snapshot) string
}

// RuleClassifier is the built-in classifier: an ordered rule table,
// first match wins. Screen labels beat flags, flags beat fallback.
type RuleClassifier struct {
	rules []rule
}

// NewRuleClassifier returns a classifier covering the default screens
// and flags the state source emits.
func NewRuleClassifier() *RuleClassifier {
	labelOr := func(key, fallback string) func(Snapshot) string {
		return func(s Snapshot) string {
			if v, ok := s.Labels[key]; ok && v != "" {
				return v
			}
			return fallback
		}
	}
	screenIs := func(name string) func(Snapshot) bool {
		return func(s Snapshot) bool { return strings.EqualFold(s.Screen, name) }
	}
	flagSet := func(name string) func(Snapshot) bool {
		return func(s Snapshot) bool { return s.Flags[name] }
	}

	return &RuleClassifier{rules: []rule{
		{screenIs("battle"), ModeBattle, labelOr("battle_kind", "default")},
		{screenIs("evolution"), ModeEvolution, labelOr("species", "default")},
		{screenIs("pokecenter"), ModeHealing, labelOr("facility", "default")},
		{screenIs("mart"), ModeShopping, labelOr("facility", "default")},
		{flagSet("in_battle"), ModeBattle, labelOr("battle_kind", "default")},
		{flagSet("dialog_open"), ModeDialog, labelOr("speaker", "default")},
		{flagSet("menu_open"), ModeMenu, labelOr("menu_kind", "default")},
		{flagSet("screen_transition"), ModeTransition, labelOr("transition", "default")},
		{screenIs("overworld"), ModeNavigation, labelOr("location", "default")},
	}}
}

// Classify applies the rule table. The second return is false when no
// rule matched and confidence was too low to trust the fallback; the
// caller skips mode-transition logic for that tick.
func (c *RuleClassifier) Classify(snap Snapshot) (Classification, bool) {
	for _, r := range c.rules {
		if r.match(snap) {
			return Classification{
				Mode:       r.mode,
				SubMode:    NormalizeSubMode(r.subMode(snap)),
				Confidence: snap.Confidence,
			}, true
		}
	}
	if snap.Confidence < 20 {
		return Classification{}, false
	}
	return Classification{Mode: ModeUnknown, SubMode: "default", Confidence: snap.Confidence}, true
}
