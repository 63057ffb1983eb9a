package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wardenhq/warden/internal/modes"
)

// stateFile is the agent-side contract: the agent overwrites this JSON
// document every tick.
type stateFile struct {
	Tick       uint64            `json:"tick"`
	Screen     string            `json:"screen"`
	Flags      map[string]bool   `json:"flags"`
	Labels     map[string]string `json:"labels"`
	Confidence *float64          `json:"confidence"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// stateFileSource reads agent snapshots from the shared state file. It
// doubles as the confidence scorer: the agent reports its own decision
// confidence alongside the state.
type stateFileSource struct {
	mu       sync.Mutex
	path     string
	lastTick uint64
	lastConf *float64
}

func newStateFileSource(path string) *stateFileSource {
	return &stateFileSource{path: path}
}

// ReadSnapshot returns the latest agent state, false when the file is
// missing, malformed, or has not advanced since the previous read.
func (s *stateFileSource) ReadSnapshot() (modes.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", s.path).Msg("Failed to read agent state file")
		}
		s.lastConf = nil
		return modes.Snapshot{}, false
	}

	var st stateFile
	if err := json.Unmarshal(raw, &st); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("Malformed agent state file")
		s.lastConf = nil
		return modes.Snapshot{}, false
	}

	s.lastConf = st.Confidence
	if st.Tick != 0 && st.Tick == s.lastTick {
		return modes.Snapshot{}, false
	}
	s.lastTick = st.Tick

	conf := 0.0
	if st.Confidence != nil {
		conf = *st.Confidence
	}
	return modes.Snapshot{
		Tick:       st.Tick,
		Screen:     st.Screen,
		Flags:      st.Flags,
		Labels:     st.Labels,
		Confidence: conf,
	}, true
}

// CurrentConfidence implements monitor.ConfidenceScorer from the last
// read state. A missing confidence field reports unavailable.
func (s *stateFileSource) CurrentConfidence() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastConf == nil {
		return 0, false
	}
	return *s.lastConf, true
}

// currentMode reads the mode label straight off the state file, used
// by the executor to tell whether a recovery action worked.
func (s *stateFileSource) currentScreen() string {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return ""
	}
	var st stateFile
	if err := json.Unmarshal(raw, &st); err != nil {
		return ""
	}
	return st.Screen
}

// actionFileExecutor delivers primitive recovery actions by appending
// them to a command file the agent tails. Whether the action worked is
// judged by watching the state file's screen label.
type actionFileExecutor struct {
	mu     sync.Mutex
	path   string
	source *stateFileSource
}

func newActionFileExecutor(path, stateFilePath string) *actionFileExecutor {
	return &actionFileExecutor{path: path, source: newStateFileSource(stateFilePath)}
}

type actionRecord struct {
	Action   string    `json:"action"`
	IssuedAt time.Time `json:"issuedAt"`
}

// Execute appends the action and reports whether the agent's screen
// changed shortly after.
func (e *actionFileExecutor) Execute(ctx context.Context, action string) (bool, error) {
	before := e.source.currentScreen()

	e.mu.Lock()
	err := e.appendAction(action)
	e.mu.Unlock()
	if err != nil {
		return false, err
	}

	// Give the agent one beat to react.
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-time.After(500 * time.Millisecond):
	}

	after := e.source.currentScreen()
	return after != "" && after != before, nil
}

func (e *actionFileExecutor) appendAction(action string) error {
	f, err := os.OpenFile(e.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open action file: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(actionRecord{Action: action, IssuedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("failed to marshal action: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append action: %w", err)
	}
	return nil
}

// checkpointDir is the external snapshot collaborator: the agent drops
// checkpoint files into a directory; warden asks for the newest one
// back by writing a restore request beside them.
type checkpointDir struct {
	dir string
}

func newCheckpointDir(dir string) *checkpointDir {
	return &checkpointDir{dir: dir}
}

// Latest returns the newest checkpoint file name.
func (c *checkpointDir) Latest() (string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return "", fmt.Errorf("failed to list checkpoints: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".state" {
			continue
		}
		names = append(names, entry.Name())
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no checkpoints in %s", c.dir)
	}
	sort.Strings(names)
	return names[len(names)-1], nil
}

type restoreRequest struct {
	Snapshot    string    `json:"snapshot,omitempty"`
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requestedAt"`
}

// Restore asks the agent to reload the named checkpoint.
func (c *checkpointDir) Restore(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.writeRequest(restoreRequest{
		Snapshot:    id,
		Reason:      "breakout_force",
		RequestedAt: time.Now(),
	})
}

// RequestReset signals the terminal reset condition.
func (c *checkpointDir) RequestReset(transitionID string) error {
	return c.writeRequest(restoreRequest{
		Reason:      "reset_condition:" + transitionID,
		RequestedAt: time.Now(),
	})
}

func (c *checkpointDir) writeRequest(req restoreRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal restore request: %w", err)
	}
	path := filepath.Join(c.dir, "restore-request.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write restore request: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to publish restore request: %w", err)
	}
	return nil
}
