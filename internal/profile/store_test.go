package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/modes"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := DefaultStoreConfig(t.TempDir())
	cfg.FlushInterval = time.Hour // flush manually in tests
	store, err := NewStore(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testProfile(subMode string, count int) Profile {
	return Profile{
		Mode:        modes.ModeBattle,
		SubMode:     subMode,
		SampleCount: count,
		Mean:        60,
		Std:         10,
		Min:         40,
		Max:         95,
		P50:         60,
		P75:         66.7,
		P95:         76.45,
		P99:         83.26,
		Trend:       TrendStable,
		TrendSlope:  1.5,
		LastUpdated: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestStore_SaveAndLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)

	store.Save(testProfile("wild", 10))
	store.Save(testProfile("trainer", 4))
	require.NoError(t, store.Flush())

	loaded, err := store.LoadAll()
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	byKey := make(map[string]Profile)
	for _, p := range loaded {
		byKey[p.Key()] = p
	}

	wild := byKey["battle/wild"]
	assert.Equal(t, 10, wild.SampleCount)
	assert.Equal(t, 60.0, wild.Mean)
	assert.Equal(t, 10.0, wild.Std)
	assert.Equal(t, 76.45, wild.P95)
	assert.Equal(t, TrendStable, wild.Trend)
	assert.Equal(t, 1.5, wild.TrendSlope)
}

func TestStore_LatestWriteWinsPerKey(t *testing.T) {
	store := newTestStore(t)

	p := testProfile("wild", 10)
	store.Save(p)
	p.SampleCount = 11
	p.Mean = 62
	store.Save(p)
	require.NoError(t, store.Flush())

	loaded, err := store.LoadAll()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, 11, loaded[0].SampleCount)
	assert.Equal(t, 62.0, loaded[0].Mean)
}

func TestStore_UpsertAcrossFlushes(t *testing.T) {
	store := newTestStore(t)

	p := testProfile("wild", 10)
	store.Save(p)
	require.NoError(t, store.Flush())

	p.SampleCount = 20
	store.Save(p)
	require.NoError(t, store.Flush())

	loaded, err := store.LoadAll()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, 20, loaded[0].SampleCount)
}

func TestStore_EmptyLoad(t *testing.T) {
	store := newTestStore(t)

	loaded, err := store.LoadAll()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}
