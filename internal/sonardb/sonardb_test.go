package sonardb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reef-data/sonar.report/internal/config"
	"github.com/reef-data/sonar.report/internal/sonar"
)

func newTestDB(t *testing.T) *SonarDB {
	t.Helper()
	db, err := NewSonarDB(filepath.Join(t.TempDir(), "sonar.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sonar.db")

	db, err := NewSonarDB(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Reopening an already-migrated database must be a no-op.
	db, err = NewSonarDB(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestSessionLifecycle(t *testing.T) {
	db := newTestDB(t)

	id, err := db.BeginSession(config.MediumWater, config.EmptyTuningConfig())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	sessions, err := db.Sessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, id, sessions[0].ID)
	require.Equal(t, config.MediumWater, sessions[0].Medium)
	require.False(t, sessions[0].StartedAt.IsZero())

	latest, err := db.LatestSession()
	require.NoError(t, err)
	require.Equal(t, id, latest.ID)
}

func TestLatestSessionEmpty(t *testing.T) {
	db := newTestDB(t)

	_, err := db.LatestSession()
	require.Error(t, err)
}

func TestCycleRoundTrip(t *testing.T) {
	db := newTestDB(t)

	id, err := db.BeginSession(config.MediumWater, nil)
	require.NoError(t, err)

	recs := []sonar.CycleRecord{
		{
			TimeMs:     200,
			EchoMicros: 1350,
			Valid:      true,
			RawCM:      100.0,
			FilteredCM: 100.0,
			BaselineCM: 100.0,
			EnterCM:    40.0,
			ExitCM:     60.0,
		},
		{
			TimeMs:     400,
			EchoMicros: 540,
			Valid:      true,
			RawCM:      40.0,
			FilteredCM: 41.2,
			BaselineCM: 100.0,
			EnterCM:    40.0,
			ExitCM:     60.0,
			Intensity:  0.98,
			Event:      sonar.EventEntered,
			InDanger:   true,
		},
		{
			TimeMs:     600,
			EchoMicros: int64(sonar.NoEcho),
			FilteredCM: 41.2,
			BaselineCM: 100.0,
			EnterCM:    40.0,
			ExitCM:     60.0,
			Intensity:  0.98,
			InDanger:   true,
		},
	}
	// Out of order on purpose; reads must come back time-ordered.
	for _, i := range []int{1, 0, 2} {
		require.NoError(t, db.RecordCycle(id, recs[i]))
	}

	got, err := db.SessionCycles(id)
	require.NoError(t, err)
	require.Equal(t, recs, got)
}

func TestSessionCyclesIsolation(t *testing.T) {
	db := newTestDB(t)

	a, err := db.BeginSession(config.MediumWater, nil)
	require.NoError(t, err)
	b, err := db.BeginSession(config.MediumAir, nil)
	require.NoError(t, err)

	require.NoError(t, db.RecordCycle(a, sonar.CycleRecord{TimeMs: 200, Valid: true}))
	require.NoError(t, db.RecordCycle(b, sonar.CycleRecord{TimeMs: 200, Valid: true}))
	require.NoError(t, db.RecordCycle(b, sonar.CycleRecord{TimeMs: 400, Valid: true}))

	cyclesA, err := db.SessionCycles(a)
	require.NoError(t, err)
	require.Len(t, cyclesA, 1)

	cyclesB, err := db.SessionCycles(b)
	require.NoError(t, err)
	require.Len(t, cyclesB, 2)
}
