// Package store persists recordings, raw segments, carried remainders,
// sentences and the internal fact-check database in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a requested record does not exist
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write lost a race with another writer
	ErrConflict = errors.New("conflicting update")
)

const schema = `
CREATE TABLE IF NOT EXISTS recordings (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	created_at      REAL NOT NULL,
	last_changed_at REAL NOT NULL,
	next_segment    INTEGER NOT NULL DEFAULT 1,
	version         INTEGER NOT NULL DEFAULT 0,
	fault           TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS raw_segments (
	recording_id  TEXT NOT NULL REFERENCES recordings(id) ON DELETE CASCADE,
	segment_index INTEGER NOT NULL,
	text          TEXT NOT NULL,
	words         TEXT NOT NULL,
	received_at   REAL NOT NULL,
	PRIMARY KEY (recording_id, segment_index)
);

CREATE TABLE IF NOT EXISTS remainders (
	recording_id  TEXT NOT NULL REFERENCES recordings(id) ON DELETE CASCADE,
	segment_index INTEGER NOT NULL,
	text          TEXT NOT NULL,
	words         TEXT NOT NULL,
	PRIMARY KEY (recording_id, segment_index)
);

CREATE TABLE IF NOT EXISTS sentences (
	recording_id    TEXT NOT NULL REFERENCES recordings(id) ON DELETE CASCADE,
	number          INTEGER NOT NULL,
	source_segment  INTEGER NOT NULL,
	start_offset_ms INTEGER NOT NULL,
	start_seconds   INTEGER NOT NULL,
	text            TEXT NOT NULL,
	words           TEXT NOT NULL,
	claims          TEXT,
	status          TEXT NOT NULL,
	speaker         TEXT NOT NULL DEFAULT '',
	annotation      TEXT NOT NULL DEFAULT '',
	created_at      REAL NOT NULL,
	updated_at      REAL NOT NULL,
	PRIMARY KEY (recording_id, number)
);

CREATE TABLE IF NOT EXISTS fact_checks (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	claim      TEXT NOT NULL,
	claimant   TEXT NOT NULL DEFAULT '',
	rating     TEXT NOT NULL,
	summary    TEXT NOT NULL DEFAULT '',
	url        TEXT NOT NULL DEFAULT '',
	publisher  TEXT NOT NULL DEFAULT '',
	created_at REAL NOT NULL
);
`

// SQLite is the persistent store backed by a single SQLite database
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (and migrates) the database at path. Use ":memory:" for an
// ephemeral store.
func Open(path string) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection serializes writers and keeps an in-memory database alive
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &SQLite{db: db, now: time.Now}, nil
}

// Close closes the database connection
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func expectOne(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if n != 1 {
		return fmt.Errorf("%s: %w", what, ErrConflict)
	}
	return nil
}

func unixFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(f float64) time.Time {
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9))
}

func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func likePattern(keyword string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(keyword)) + "%"
}
