// Package store persists phase transitions, posture events and sent
// notifications in a local SQLite database.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS transitions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	at          INTEGER NOT NULL,
	from_phase  TEXT NOT NULL,
	to_phase    TEXT NOT NULL,
	dwell_s     INTEGER NOT NULL,
	notified    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transitions_at ON transitions(at);

CREATE TABLE IF NOT EXISTS events (
	id      TEXT PRIMARY KEY,
	at      INTEGER NOT NULL,
	kind    TEXT NOT NULL,
	detail  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_events_at ON events(at);
`

// Store wraps the SQLite session record database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply store schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordTransition stores one phase change. dwell is the time spent in the
// phase that just ended.
func (s *Store) RecordTransition(at time.Time, fromPhase, toPhase string, dwell time.Duration, notified bool) error {
	_, err := s.db.Exec(
		`INSERT INTO transitions (at, from_phase, to_phase, dwell_s, notified) VALUES (?, ?, ?, ?, ?)`,
		at.Unix(), fromPhase, toPhase, int64(dwell.Seconds()), notified,
	)
	if err != nil {
		return fmt.Errorf("record transition: %w", err)
	}
	return nil
}

// RecordEvent stores one posture/notification event under its identifier.
func (s *Store) RecordEvent(id string, at time.Time, kind, detail string) error {
	_, err := s.db.Exec(
		`INSERT INTO events (id, at, kind, detail) VALUES (?, ?, ?, ?)`,
		id, at.Unix(), kind, detail,
	)
	if err != nil {
		return fmt.Errorf("record event %s: %w", kind, err)
	}
	return nil
}

// DailySummary aggregates one calendar day (in day's location): seconds spent
// per phase and events counted per kind.
type DailySummary struct {
	Day          string           `json:"day"`
	PhaseSeconds map[string]int64 `json:"phase_seconds"`
	EventCounts  map[string]int64 `json:"event_counts"`
}

// Summarize returns the summary for the day containing t.
func (s *Store) Summarize(t time.Time) (DailySummary, error) {
	dayStart := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	out := DailySummary{
		Day:          dayStart.Format("2006-01-02"),
		PhaseSeconds: map[string]int64{},
		EventCounts:  map[string]int64{},
	}

	rows, err := s.db.Query(
		`SELECT from_phase, SUM(dwell_s) FROM transitions WHERE at >= ? AND at < ? GROUP BY from_phase`,
		dayStart.Unix(), dayEnd.Unix(),
	)
	if err != nil {
		return out, fmt.Errorf("summarize transitions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var phase string
		var secs int64
		if err := rows.Scan(&phase, &secs); err != nil {
			return out, fmt.Errorf("scan transition row: %w", err)
		}
		out.PhaseSeconds[phase] = secs
	}
	if err := rows.Err(); err != nil {
		return out, err
	}

	eventRows, err := s.db.Query(
		`SELECT kind, COUNT(*) FROM events WHERE at >= ? AND at < ? GROUP BY kind`,
		dayStart.Unix(), dayEnd.Unix(),
	)
	if err != nil {
		return out, fmt.Errorf("summarize events: %w", err)
	}
	defer eventRows.Close()
	for eventRows.Next() {
		var kind string
		var n int64
		if err := eventRows.Scan(&kind, &n); err != nil {
			return out, fmt.Errorf("scan event row: %w", err)
		}
		out.EventCounts[kind] = n
	}
	return out, eventRows.Err()
}
