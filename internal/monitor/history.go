package monitor

import (
	"sync"

	"github.com/wardenhq/warden/internal/anomaly"
)

// AnomalyCallback is invoked for every recorded anomaly. This lets
// external systems (websocket hub, pattern detection) follow along.
type AnomalyCallback func(anomaly.Anomaly)

// anomalyLog keeps a bounded in-memory record of recent anomalies for
// the dashboard surface. Anomalies are ephemeral and never persisted;
// this log exists only to answer "what fired recently".
type anomalyLog struct {
	mu        sync.RWMutex
	entries   []anomaly.Anomaly
	limit     int
	callbacks []AnomalyCallback
}

func newAnomalyLog(limit int) *anomalyLog {
	if limit <= 0 {
		limit = 200
	}
	return &anomalyLog{limit: limit}
}

func (l *anomalyLog) onAnomaly(cb AnomalyCallback) {
	l.mu.Lock()
	l.callbacks = append(l.callbacks, cb)
	l.mu.Unlock()
}

func (l *anomalyLog) record(anoms []anomaly.Anomaly) {
	if len(anoms) == 0 {
		return
	}
	l.mu.Lock()
	l.entries = append(l.entries, anoms...)
	if len(l.entries) > l.limit {
		l.entries = l.entries[len(l.entries)-l.limit:]
	}
	callbacks := append([]AnomalyCallback(nil), l.callbacks...)
	l.mu.Unlock()

	for _, cb := range callbacks {
		for _, a := range anoms {
			cb(a)
		}
	}
}

func (l *anomalyLog) recent(n int) []anomaly.Anomaly {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]anomaly.Anomaly, n)
	copy(out, l.entries[len(l.entries)-n:])
	return out
}
