package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ppiankov/claimstream/internal/model"
)

const sentenceColumns = `recording_id, number, source_segment, start_offset_ms, start_seconds,
	text, words, claims, status, speaker, annotation, created_at, updated_at`

// GetSentence returns one sentence or ErrNotFound
func (s *SQLite) GetSentence(ctx context.Context, recordingID string, number int) (*model.Sentence, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sentenceColumns+`
		FROM sentences WHERE recording_id = ? AND number = ?`, recordingID, number)
	sent, err := scanSentence(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("sentence %s/%d: %w", recordingID, number, ErrNotFound)
		}
		return nil, fmt.Errorf("scan sentence: %w", err)
	}
	return sent, nil
}

// PutSentence updates an existing sentence in place. Sentence numbers are
// only ever assigned by the commit operations.
func (s *SQLite) PutSentence(ctx context.Context, sent model.Sentence) error {
	args, err := s.sentenceArgs(sent)
	if err != nil {
		return err
	}
	// args follow sentenceColumns; reorder for the UPDATE
	update := make([]any, 0, len(args))
	update = append(update, args[2:11]...)
	update = append(update, args[12], args[0], args[1])

	res, err := s.db.ExecContext(ctx, `
		UPDATE sentences SET
			source_segment = ?, start_offset_ms = ?, start_seconds = ?, text = ?, words = ?,
			claims = ?, status = ?, speaker = ?, annotation = ?, updated_at = ?
		WHERE recording_id = ? AND number = ?
	`, update...)
	if err != nil {
		return fmt.Errorf("update sentence: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sentence %s/%d: %w", sent.RecordingID, sent.Number, ErrNotFound)
	}
	return nil
}

// ListSentences returns all sentences of a recording in number order
func (s *SQLite) ListSentences(ctx context.Context, recordingID string) ([]model.Sentence, error) {
	return s.querySentences(ctx, `SELECT `+sentenceColumns+`
		FROM sentences WHERE recording_id = ? ORDER BY number ASC`, recordingID)
}

// PrecedingSentences returns up to limit sentences numbered below before,
// most recent first.
func (s *SQLite) PrecedingSentences(ctx context.Context, recordingID string, before, limit int) ([]model.Sentence, error) {
	return s.querySentences(ctx, `SELECT `+sentenceColumns+`
		FROM sentences WHERE recording_id = ? AND number < ?
		ORDER BY number DESC LIMIT ?`, recordingID, before, limit)
}

// LatestSentence returns the highest-numbered sentence, or nil
func (s *SQLite) LatestSentence(ctx context.Context, recordingID string) (*model.Sentence, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sentenceColumns+`
		FROM sentences WHERE recording_id = ? ORDER BY number DESC LIMIT 1`, recordingID)
	sent, err := scanSentence(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan sentence: %w", err)
	}
	return sent, nil
}

// MaxSentenceNumber returns the highest sentence number, 0 when there are none
func (s *SQLite) MaxSentenceNumber(ctx context.Context, recordingID string) (int, error) {
	return maxSentenceNumber(ctx, s.db, recordingID)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func maxSentenceNumber(ctx context.Context, db queryRower, recordingID string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(number), 0) FROM sentences WHERE recording_id = ?`, recordingID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("max sentence number: %w", err)
	}
	return n, nil
}

func (s *SQLite) querySentences(ctx context.Context, query string, args ...any) ([]model.Sentence, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sentences: %w", err)
	}
	defer rows.Close()

	var sentences []model.Sentence
	for rows.Next() {
		sent, err := scanSentence(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sentence: %w", err)
		}
		sentences = append(sentences, *sent)
	}
	return sentences, rows.Err()
}

// sentenceArgs returns values in sentenceColumns order
func (s *SQLite) sentenceArgs(sent model.Sentence) ([]any, error) {
	words, err := encodeJSON(nonNilWords(sent.Words))
	if err != nil {
		return nil, fmt.Errorf("encode words: %w", err)
	}
	var claims sql.NullString
	if sent.Claims != nil {
		encoded, err := encodeJSON(sent.Claims)
		if err != nil {
			return nil, fmt.Errorf("encode claims: %w", err)
		}
		claims = sql.NullString{String: encoded, Valid: true}
	}
	if sent.Status == "" {
		sent.Status = model.StatusPending
	}
	now := s.now()
	if sent.CreatedAt.IsZero() {
		sent.CreatedAt = now
	}
	if sent.UpdatedAt.IsZero() {
		sent.UpdatedAt = now
	}

	return []any{
		sent.RecordingID, sent.Number, sent.SourceSegment, sent.StartOffsetMs, sent.StartSeconds,
		sent.Text, words, claims, string(sent.Status), sent.Speaker, sent.Annotation,
		unixFromTime(sent.CreatedAt), unixFromTime(sent.UpdatedAt),
	}, nil
}

func scanSentence(row scanner) (*model.Sentence, error) {
	var sent model.Sentence
	var words, status string
	var claims sql.NullString
	var createdAt, updatedAt float64
	if err := row.Scan(&sent.RecordingID, &sent.Number, &sent.SourceSegment, &sent.StartOffsetMs,
		&sent.StartSeconds, &sent.Text, &words, &claims, &status, &sent.Speaker, &sent.Annotation,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(words), &sent.Words); err != nil {
		return nil, fmt.Errorf("decode sentence words: %w", err)
	}
	if claims.Valid {
		if err := json.Unmarshal([]byte(claims.String), &sent.Claims); err != nil {
			return nil, fmt.Errorf("decode claims: %w", err)
		}
	}
	sent.Status = model.SentenceStatus(status)
	sent.CreatedAt = timeFromUnix(createdAt)
	sent.UpdatedAt = timeFromUnix(updatedAt)
	return &sent, nil
}
