package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ppiankov/claimstream/internal/model"
)

// PutRawSegment stores (or replaces) a raw segment
func (s *SQLite) PutRawSegment(ctx context.Context, seg model.RawSegment) error {
	words, err := encodeJSON(nonNilWords(seg.Words))
	if err != nil {
		return fmt.Errorf("encode words: %w", err)
	}
	if seg.Text == "" {
		seg.Text = model.JoinWords(seg.Words)
	}
	if seg.ReceivedAt.IsZero() {
		seg.ReceivedAt = s.now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO raw_segments (recording_id, segment_index, text, words, received_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (recording_id, segment_index) DO UPDATE SET
			text = excluded.text, words = excluded.words, received_at = excluded.received_at
	`, seg.RecordingID, seg.SegmentIndex, seg.Text, words, unixFromTime(seg.ReceivedAt))
	if err != nil {
		return fmt.Errorf("put raw segment: %w", err)
	}
	return nil
}

// GetRawSegment returns the raw segment, or nil if it does not exist
func (s *SQLite) GetRawSegment(ctx context.Context, recordingID string, index int) (*model.RawSegment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT recording_id, segment_index, text, words, received_at
		FROM raw_segments WHERE recording_id = ? AND segment_index = ?
	`, recordingID, index)

	seg, err := scanRawSegment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan raw segment: %w", err)
	}
	return seg, nil
}

// ListRawSegments returns the unconsumed raw segments of a recording in index order
func (s *SQLite) ListRawSegments(ctx context.Context, recordingID string) ([]model.RawSegment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT recording_id, segment_index, text, words, received_at
		FROM raw_segments WHERE recording_id = ? ORDER BY segment_index ASC
	`, recordingID)
	if err != nil {
		return nil, fmt.Errorf("query raw segments: %w", err)
	}
	defer rows.Close()

	var segs []model.RawSegment
	for rows.Next() {
		seg, err := scanRawSegment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan raw segment: %w", err)
		}
		segs = append(segs, *seg)
	}
	return segs, rows.Err()
}

// GetRemainder returns the remainder carried from segment index, or nil
func (s *SQLite) GetRemainder(ctx context.Context, recordingID string, index int) (*model.RemainderSentence, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT recording_id, segment_index, text, words
		FROM remainders WHERE recording_id = ? AND segment_index = ?
	`, recordingID, index)
	return scanRemainderRow(row)
}

// LatestRemainder returns the remainder with the highest segment index, or nil
func (s *SQLite) LatestRemainder(ctx context.Context, recordingID string) (*model.RemainderSentence, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT recording_id, segment_index, text, words
		FROM remainders WHERE recording_id = ? ORDER BY segment_index DESC LIMIT 1
	`, recordingID)
	return scanRemainderRow(row)
}

func scanRemainderRow(row scanner) (*model.RemainderSentence, error) {
	var rem model.RemainderSentence
	var words string
	if err := row.Scan(&rem.RecordingID, &rem.SegmentIndex, &rem.Text, &words); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan remainder: %w", err)
	}
	if err := json.Unmarshal([]byte(words), &rem.Words); err != nil {
		return nil, fmt.Errorf("decode remainder words: %w", err)
	}
	return &rem, nil
}

func scanRawSegment(row scanner) (*model.RawSegment, error) {
	var seg model.RawSegment
	var words string
	var receivedAt float64
	if err := row.Scan(&seg.RecordingID, &seg.SegmentIndex, &seg.Text, &words, &receivedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(words), &seg.Words); err != nil {
		return nil, fmt.Errorf("decode segment words: %w", err)
	}
	seg.ReceivedAt = timeFromUnix(receivedAt)
	return &seg, nil
}

func nonNilWords(words []model.WordToken) []model.WordToken {
	if words == nil {
		return []model.WordToken{}
	}
	return words
}
