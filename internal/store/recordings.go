package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ppiankov/claimstream/internal/model"
)

const recordingColumns = `id, name, created_at, last_changed_at, next_segment, version, fault`

// CreateRecording inserts a new recording with its segment counter at 1
func (s *SQLite) CreateRecording(ctx context.Context, id, name string) (*model.RecordingState, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO recordings (id, name, created_at, last_changed_at, next_segment, version)
		VALUES (?, ?, ?, ?, 1, 0)
	`, id, name, unixFromTime(now), unixFromTime(now))
	if err != nil {
		return nil, fmt.Errorf("insert recording: %w", err)
	}
	if err := expectOne(res, "insert recording"); err != nil {
		return nil, err
	}
	return s.GetRecording(ctx, id)
}

// EnsureRecording returns the recording, creating it when it does not exist.
// The boolean reports whether it was created.
func (s *SQLite) EnsureRecording(ctx context.Context, id, name string) (*model.RecordingState, bool, error) {
	rec, err := s.CreateRecording(ctx, id, name)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, ErrConflict) {
		return nil, false, err
	}
	rec, err = s.GetRecording(ctx, id)
	return rec, false, err
}

// GetRecording returns the recording state or ErrNotFound
func (s *SQLite) GetRecording(ctx context.Context, id string) (*model.RecordingState, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordingColumns+` FROM recordings WHERE id = ?`, id)
	rec, err := scanRecording(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("recording %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("scan recording: %w", err)
	}
	return rec, nil
}

// ListRecordings returns all recordings, most recently changed first
func (s *SQLite) ListRecordings(ctx context.Context) ([]model.RecordingState, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordingColumns+` FROM recordings ORDER BY last_changed_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query recordings: %w", err)
	}
	defer rows.Close()

	var recs []model.RecordingState
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recording: %w", err)
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

// RenameRecording changes the display name of a recording
func (s *SQLite) RenameRecording(ctx context.Context, id, name string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE recordings SET name = ?, last_changed_at = ? WHERE id = ?`,
		name, unixFromTime(s.now()), id)
	if err != nil {
		return fmt.Errorf("rename recording: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("recording %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteRecording removes a recording and everything it owns
func (s *SQLite) DeleteRecording(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM recordings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete recording: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("recording %s: %w", id, ErrNotFound)
	}
	return nil
}

// SetFault records a fatal pipeline condition for operator attention
func (s *SQLite) SetFault(ctx context.Context, id, fault string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE recordings SET fault = ?, last_changed_at = ? WHERE id = ?`,
		fault, unixFromTime(s.now()), id)
	if err != nil {
		return fmt.Errorf("set fault: %w", err)
	}
	return nil
}

// AdvanceSegment moves the segment counter from expectSegment to
// expectSegment+1, provided nobody else changed the recording since it was
// read at expectVersion.
func (s *SQLite) AdvanceSegment(ctx context.Context, id string, expectSegment int, expectVersion int64) error {
	return advance(ctx, s.db, id, expectSegment, expectVersion, unixFromTime(s.now()))
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func advance(ctx context.Context, db execer, id string, expectSegment int, expectVersion int64, now float64) error {
	res, err := db.ExecContext(ctx, `
		UPDATE recordings
		SET next_segment = next_segment + 1, version = version + 1, last_changed_at = ?
		WHERE id = ? AND next_segment = ? AND version = ?
	`, now, id, expectSegment, expectVersion)
	if err != nil {
		return fmt.Errorf("advance segment counter: %w", err)
	}
	return expectOne(res, "advance segment counter")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecording(row scanner) (*model.RecordingState, error) {
	var rec model.RecordingState
	var createdAt, changedAt float64
	if err := row.Scan(&rec.ID, &rec.Name, &createdAt, &changedAt, &rec.NextSegment, &rec.Version, &rec.Fault); err != nil {
		return nil, err
	}
	rec.CreatedAt = timeFromUnix(createdAt)
	rec.LastChangedAt = timeFromUnix(changedAt)
	return &rec, nil
}
