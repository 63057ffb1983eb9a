package profile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wardenhq/warden/internal/modes"
)

// DefaultThresholds holds the cold-start alarm rungs used until a
// profile reaches minSamples observations, keyed by mode.
type DefaultThresholds struct {
	Modes    map[modes.Mode]Thresholds `yaml:"modes"`
	Fallback Thresholds                `yaml:"fallback"`
}

// BuiltinDefaults returns the compiled-in cold-start table.
func BuiltinDefaults() DefaultThresholds {
	return DefaultThresholds{
		Modes: map[modes.Mode]Thresholds{
			modes.ModeBattle:     {Warning: 90, Critical: 180, Emergency: 300},
			modes.ModeDialog:     {Warning: 30, Critical: 60, Emergency: 120},
			modes.ModeNavigation: {Warning: 60, Critical: 120, Emergency: 240},
			modes.ModeEvolution:  {Warning: 60, Critical: 120, Emergency: 180},
			modes.ModeHealing:    {Warning: 30, Critical: 60, Emergency: 120},
			modes.ModeShopping:   {Warning: 45, Critical: 90, Emergency: 180},
			modes.ModeTransition: {Warning: 15, Critical: 30, Emergency: 60},
		},
		Fallback: Thresholds{Warning: 60, Critical: 120, Emergency: 300},
	}
}

// LoadDefaults reads a threshold table from a YAML file, filling any
// gaps from the builtin table. A missing path returns the builtins.
func LoadDefaults(path string) (DefaultThresholds, error) {
	builtin := BuiltinDefaults()
	if path == "" {
		return builtin, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return builtin, nil
		}
		return builtin, fmt.Errorf("failed to read thresholds file: %w", err)
	}

	var loaded DefaultThresholds
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return builtin, fmt.Errorf("failed to parse thresholds file: %w", err)
	}

	if loaded.Fallback == (Thresholds{}) {
		loaded.Fallback = builtin.Fallback
	}
	if loaded.Modes == nil {
		loaded.Modes = make(map[modes.Mode]Thresholds)
	}
	for mode, th := range builtin.Modes {
		if _, ok := loaded.Modes[mode]; !ok {
			loaded.Modes[mode] = th
		}
	}
	for mode := range loaded.Modes {
		if !mode.Valid() {
			return builtin, fmt.Errorf("thresholds file references unknown mode %q", mode)
		}
	}
	return loaded, nil
}

// For returns the cold-start thresholds for a mode.
func (d DefaultThresholds) For(mode modes.Mode) Thresholds {
	if th, ok := d.Modes[mode]; ok {
		return th
	}
	return d.Fallback
}
