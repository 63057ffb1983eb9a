package profile

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/wardenhq/warden/internal/modes"
)

// schemaVersion tags persisted rows; bumped when the profile record
// shape changes.
const schemaVersion = 1

// StoreConfig holds configuration for the profile store.
type StoreConfig struct {
	DBPath        string
	FlushInterval time.Duration // max time a dirty profile waits before being written
}

// DefaultStoreConfig returns sensible defaults for profile storage.
func DefaultStoreConfig(dataDir string) StoreConfig {
	return StoreConfig{
		DBPath:        filepath.Join(dataDir, "profiles.db"),
		FlushInterval: 5 * time.Second,
	}
}

// Store persists duration profiles across restarts. Each profile is
// written as a single upserted row, so a write for one key is never
// torn. Writes are buffered and flushed by a background worker, the
// latest version of a key winning.
type Store struct {
	db     *sql.DB
	config StoreConfig

	bufferMu sync.Mutex
	buffer   map[string]Profile

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewStore opens (creating if needed) the profile database.
func NewStore(config StoreConfig) (*Store, error) {
	dir := filepath.Dir(config.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}

	db, err := sql.Open("sqlite", config.DBPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open profile database: %w", err)
	}

	// SQLite works best with a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &Store{
		db:     db,
		config: config,
		buffer: make(map[string]Profile),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	go store.flushWorker()

	log.Info().Str("path", config.DBPath).Msg("Profile store initialized")
	return store, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS profiles (
			key TEXT PRIMARY KEY,
			mode TEXT NOT NULL,
			sub_mode TEXT NOT NULL,
			sample_count INTEGER NOT NULL,
			mean REAL NOT NULL,
			std REAL NOT NULL,
			min REAL NOT NULL,
			max REAL NOT NULL,
			p50 REAL NOT NULL,
			p75 REAL NOT NULL,
			p95 REAL NOT NULL,
			p99 REAL NOT NULL,
			trend TEXT NOT NULL,
			trend_slope REAL NOT NULL,
			last_updated INTEGER NOT NULL,
			schema_version INTEGER NOT NULL
		)
	`)
	return err
}

// Save queues a profile for persistence. The write happens on the
// background flusher; only the newest queued version of a key is
// written.
func (s *Store) Save(p Profile) {
	s.bufferMu.Lock()
	s.buffer[p.Key()] = p
	s.bufferMu.Unlock()
}

// LoadAll returns every persisted profile.
func (s *Store) LoadAll() ([]Profile, error) {
	rows, err := s.db.Query(`
		SELECT mode, sub_mode, sample_count, mean, std, min, max,
		       p50, p75, p95, p99, trend, trend_slope, last_updated
		FROM profiles
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		var p Profile
		var mode, trend string
		var lastUpdated int64
		if err := rows.Scan(&mode, &p.SubMode, &p.SampleCount, &p.Mean, &p.Std,
			&p.Min, &p.Max, &p.P50, &p.P75, &p.P95, &p.P99,
			&trend, &p.TrendSlope, &lastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		p.Mode = modes.Mode(mode)
		p.Trend = Trend(trend)
		p.LastUpdated = time.Unix(lastUpdated, 0).UTC()
		if !p.Mode.Valid() {
			log.Warn().Str("mode", mode).Msg("Skipping persisted profile with unknown mode")
			continue
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func (s *Store) flushWorker() {
	defer close(s.doneCh)

	interval := s.config.FlushInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Flush(); err != nil {
				log.Error().Err(err).Msg("Failed to flush profiles")
			}
		case <-s.stopCh:
			if err := s.Flush(); err != nil {
				log.Error().Err(err).Msg("Failed to flush profiles during shutdown")
			}
			return
		}
	}
}

// Flush writes all dirty profiles. Each profile is one upsert; a
// failure re-queues the batch so no update is silently dropped.
func (s *Store) Flush() error {
	s.bufferMu.Lock()
	if len(s.buffer) == 0 {
		s.bufferMu.Unlock()
		return nil
	}
	batch := s.buffer
	s.buffer = make(map[string]Profile)
	s.bufferMu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		s.requeue(batch)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO profiles (key, mode, sub_mode, sample_count, mean, std,
			min, max, p50, p75, p95, p99, trend, trend_slope, last_updated, schema_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			sample_count = excluded.sample_count,
			mean = excluded.mean,
			std = excluded.std,
			min = excluded.min,
			max = excluded.max,
			p50 = excluded.p50,
			p75 = excluded.p75,
			p95 = excluded.p95,
			p99 = excluded.p99,
			trend = excluded.trend,
			trend_slope = excluded.trend_slope,
			last_updated = excluded.last_updated,
			schema_version = excluded.schema_version
	`)
	if err != nil {
		tx.Rollback()
		s.requeue(batch)
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for key, p := range batch {
		if _, err := stmt.Exec(key, string(p.Mode), p.SubMode, p.SampleCount,
			p.Mean, p.Std, p.Min, p.Max, p.P50, p.P75, p.P95, p.P99,
			string(p.Trend), p.TrendSlope, p.LastUpdated.Unix(), schemaVersion); err != nil {
			tx.Rollback()
			s.requeue(batch)
			return fmt.Errorf("failed to upsert profile %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		s.requeue(batch)
		return fmt.Errorf("failed to commit profiles: %w", err)
	}
	return nil
}

// requeue puts a failed batch back without clobbering newer updates.
func (s *Store) requeue(batch map[string]Profile) {
	s.bufferMu.Lock()
	for key, p := range batch {
		if _, ok := s.buffer[key]; !ok {
			s.buffer[key] = p
		}
	}
	s.bufferMu.Unlock()
}

// Close flushes outstanding writes and closes the database.
func (s *Store) Close() error {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	<-s.doneCh
	return s.db.Close()
}
