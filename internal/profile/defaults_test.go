package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/wardenhq/warden/internal/modes"
)

func TestBuiltinDefaults_CoverEveryMode(t *testing.T) {
	d := BuiltinDefaults()
	for _, mode := range modes.AllModes {
		th := d.For(mode)
		if th.Warning <= 0 || th.Critical <= th.Warning || th.Emergency <= th.Critical {
			t.Errorf("mode %s thresholds not strictly increasing: %+v", mode, th)
		}
	}
}

func TestLoadDefaults_MissingFileReturnsBuiltins(t *testing.T) {
	d, err := LoadDefaults(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadDefaults error: %v", err)
	}
	if d.For(modes.ModeBattle) != BuiltinDefaults().For(modes.ModeBattle) {
		t.Error("missing file did not fall back to builtins")
	}
}

func TestLoadDefaults_OverridesAndFills(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thresholds.yaml")
	content := `
modes:
  battle:
    warning: 120
    critical: 240
    emergency: 480
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	d, err := LoadDefaults(path)
	if err != nil {
		t.Fatalf("LoadDefaults error: %v", err)
	}

	battle := d.For(modes.ModeBattle)
	if battle.Warning != 120 || battle.Critical != 240 || battle.Emergency != 480 {
		t.Errorf("battle thresholds = %+v, want overridden values", battle)
	}

	// Unlisted modes keep their builtin values.
	if d.For(modes.ModeDialog) != BuiltinDefaults().For(modes.ModeDialog) {
		t.Error("dialog thresholds not filled from builtins")
	}
	if d.Fallback != BuiltinDefaults().Fallback {
		t.Error("fallback thresholds not filled from builtins")
	}
}

func TestLoadDefaults_RejectsUnknownMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thresholds.yaml")
	content := `
modes:
  flying:
    warning: 1
    critical: 2
    emergency: 3
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadDefaults(path); err == nil {
		t.Error("unknown mode in thresholds file did not error")
	}
}
