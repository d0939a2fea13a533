// Package sonardb persists per-cycle sonar telemetry to a local sqlite
// database, one session row per daemon run and one cycle row per pipeline
// cycle. The history is local only; nothing here talks to the network.
package sonardb

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/reef-data/sonar.report/internal/sonar"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type SonarDB struct {
	*sql.DB
}

// NewSonarDB opens (creating if needed) the sonar database at path and runs
// any pending schema migrations.
func NewSonarDB(path string) (*SonarDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	sdb := &SonarDB{db}
	if err := sdb.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return sdb, nil
}

// migrateUp applies all pending migrations from the embedded migration files.
// Returns nil when the schema is already at the latest version.
func (db *SonarDB) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	// Note: we don't close m because it would close the underlying DB
	// connection.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// Session describes one daemon run.
type Session struct {
	ID        string
	StartedAt time.Time
	Medium    string
}

// BeginSession creates a session row for the current run and returns its ID.
// tuning is stored as a JSON snapshot so a recorded session stays
// interpretable after the config file changes.
func (db *SonarDB) BeginSession(medium string, tuning any) (string, error) {
	id := uuid.NewString()

	var tuningJSON []byte
	if tuning != nil {
		var err error
		tuningJSON, err = json.Marshal(tuning)
		if err != nil {
			return "", fmt.Errorf("marshal tuning snapshot: %w", err)
		}
	}

	_, err := db.Exec(
		"INSERT INTO sessions (session_id, started_unix, medium, tuning_json) VALUES (?, ?, ?, ?)",
		id, time.Now().Unix(), medium, string(tuningJSON))
	if err != nil {
		return "", err
	}
	return id, nil
}

// RecordCycle persists one cycle record against a session.
func (db *SonarDB) RecordCycle(sessionID string, rec sonar.CycleRecord) error {
	_, err := db.Exec(`INSERT INTO cycles
		(session_id, time_ms, echo_us, valid, raw_cm, filtered_cm, baseline_cm, enter_cm, exit_cm, intensity, event, in_danger)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, rec.TimeMs, rec.EchoMicros, boolToInt(rec.Valid),
		rec.RawCM, rec.FilteredCM, rec.BaselineCM, rec.EnterCM, rec.ExitCM,
		rec.Intensity, int(rec.Event), boolToInt(rec.InDanger))
	return err
}

// SessionCycles returns a session's cycle records in time order.
func (db *SonarDB) SessionCycles(sessionID string) ([]sonar.CycleRecord, error) {
	rows, err := db.Query(`SELECT time_ms, echo_us, valid, raw_cm, filtered_cm, baseline_cm, enter_cm, exit_cm, intensity, event, in_danger
		FROM cycles WHERE session_id = ? ORDER BY time_ms ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []sonar.CycleRecord
	for rows.Next() {
		var rec sonar.CycleRecord
		var valid, event, inDanger int
		if err := rows.Scan(&rec.TimeMs, &rec.EchoMicros, &valid, &rec.RawCM,
			&rec.FilteredCM, &rec.BaselineCM, &rec.EnterCM, &rec.ExitCM,
			&rec.Intensity, &event, &inDanger); err != nil {
			return nil, err
		}
		rec.Valid = valid != 0
		rec.Event = sonar.DangerEvent(event)
		rec.InDanger = inDanger != 0
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

// Sessions returns all recorded sessions, newest first.
func (db *SonarDB) Sessions() ([]Session, error) {
	rows, err := db.Query("SELECT session_id, started_unix, medium FROM sessions ORDER BY started_unix DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		var startedUnix int64
		if err := rows.Scan(&s.ID, &startedUnix, &s.Medium); err != nil {
			return nil, err
		}
		s.StartedAt = time.Unix(startedUnix, 0)
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// LatestSession returns the most recently started session.
func (db *SonarDB) LatestSession() (Session, error) {
	sessions, err := db.Sessions()
	if err != nil {
		return Session{}, err
	}
	if len(sessions) == 0 {
		return Session{}, fmt.Errorf("no sessions recorded")
	}
	return sessions[0], nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
