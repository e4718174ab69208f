package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ppiankov/claimstream/internal/model"
)

// StitchCommit describes the writes produced by consuming one segment
type StitchCommit struct {
	RecordingID string

	// Predecessor that was stitched against
	PrevIndex         int
	PrevFromRemainder bool

	// Consumed segment and what it produced
	CurIndex  int
	Remainder model.RemainderSentence
	Sentences []model.Sentence // Unnumbered; numbers are assigned inside the transaction

	// Counter advance, applied only when Advance is set
	Advance       bool
	ExpectVersion int64
}

// CommitStitch atomically deletes both consumed records, stores the new
// remainder under the current index, appends the sentences with dense
// numbers and optionally advances the segment counter. If another writer
// consumed either record first the whole commit fails with ErrConflict.
func (s *SQLite) CommitStitch(ctx context.Context, c StitchCommit) ([]model.Sentence, error) {
	var numbered []model.Sentence

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		prevTable := "raw_segments"
		if c.PrevFromRemainder {
			prevTable = "remainders"
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM `+prevTable+` WHERE recording_id = ? AND segment_index = ?`,
			c.RecordingID, c.PrevIndex)
		if err != nil {
			return fmt.Errorf("delete predecessor: %w", err)
		}
		if err := expectOne(res, "delete predecessor"); err != nil {
			return err
		}

		res, err = tx.ExecContext(ctx, `DELETE FROM raw_segments WHERE recording_id = ? AND segment_index = ?`,
			c.RecordingID, c.CurIndex)
		if err != nil {
			return fmt.Errorf("delete consumed segment: %w", err)
		}
		if err := expectOne(res, "delete consumed segment"); err != nil {
			return err
		}

		if err := putRemainder(ctx, tx, c.RecordingID, c.CurIndex, c.Remainder); err != nil {
			return err
		}

		numbered, err = s.appendSentences(ctx, tx, c.RecordingID, c.Sentences)
		if err != nil {
			return err
		}

		now := unixFromTime(s.now())
		if c.Advance {
			return advance(ctx, tx, c.RecordingID, c.CurIndex, c.ExpectVersion, now)
		}
		return touch(ctx, tx, c.RecordingID, now)
	})
	if err != nil {
		return nil, err
	}
	return numbered, nil
}

// ImportCommit describes the writes produced by a free-text import
type ImportCommit struct {
	RecordingID string
	ExpectMax   int             // Highest sentence number the import was computed against
	Updated     *model.Sentence // Previously open sentence that was extended
	Created     []model.Sentence
}

// CommitImport stores an imported batch. It fails with ErrConflict when
// sentences were appended since the batch was computed.
func (s *SQLite) CommitImport(ctx context.Context, c ImportCommit) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		top, err := maxSentenceNumber(ctx, tx, c.RecordingID)
		if err != nil {
			return err
		}
		if top != c.ExpectMax {
			return fmt.Errorf("sentence numbering moved from %d to %d: %w", c.ExpectMax, top, ErrConflict)
		}

		if c.Updated != nil {
			if err := s.updateSentenceTx(ctx, tx, *c.Updated); err != nil {
				return err
			}
		}
		for i, sent := range c.Created {
			if sent.Number != top+i+1 {
				return fmt.Errorf("imported sentence %d out of sequence: %w", sent.Number, ErrConflict)
			}
			sent.RecordingID = c.RecordingID
			if err := s.insertSentence(ctx, tx, sent); err != nil {
				return err
			}
		}
		return touch(ctx, tx, c.RecordingID, unixFromTime(s.now()))
	})
}

// FlushRemainder turns the most recent carried remainder into a final
// sentence. It returns nil when there is nothing left to flush.
func (s *SQLite) FlushRemainder(ctx context.Context, recordingID string, build func(model.RemainderSentence) model.Sentence) (*model.Sentence, error) {
	var flushed *model.Sentence

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT recording_id, segment_index, text, words
			FROM remainders WHERE recording_id = ? ORDER BY segment_index DESC LIMIT 1
		`, recordingID)
		rem, err := scanRemainderRow(row)
		if err != nil || rem == nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM remainders WHERE recording_id = ?`, recordingID); err != nil {
			return fmt.Errorf("delete remainders: %w", err)
		}
		if len(rem.Words) == 0 {
			return nil
		}

		numbered, err := s.appendSentences(ctx, tx, recordingID, []model.Sentence{build(*rem)})
		if err != nil {
			return err
		}
		flushed = &numbered[0]
		return touch(ctx, tx, recordingID, unixFromTime(s.now()))
	})
	if err != nil {
		return nil, err
	}
	return flushed, nil
}

func (s *SQLite) appendSentences(ctx context.Context, tx *sql.Tx, recordingID string, sentences []model.Sentence) ([]model.Sentence, error) {
	top, err := maxSentenceNumber(ctx, tx, recordingID)
	if err != nil {
		return nil, err
	}
	numbered := make([]model.Sentence, len(sentences))
	for i, sent := range sentences {
		sent.RecordingID = recordingID
		sent.Number = top + i + 1
		if err := s.insertSentence(ctx, tx, sent); err != nil {
			return nil, err
		}
		numbered[i] = sent
	}
	return numbered, nil
}

func (s *SQLite) insertSentence(ctx context.Context, tx *sql.Tx, sent model.Sentence) error {
	args, err := s.sentenceArgs(sent)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO sentences (`+sentenceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return fmt.Errorf("insert sentence %d: %w", sent.Number, err)
	}
	return nil
}

func (s *SQLite) updateSentenceTx(ctx context.Context, tx *sql.Tx, sent model.Sentence) error {
	args, err := s.sentenceArgs(sent)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE sentences SET text = ?, words = ?, status = ?, updated_at = ?
		WHERE recording_id = ? AND number = ?
	`, args[5], args[6], args[8], args[12], args[0], args[1])
	if err != nil {
		return fmt.Errorf("update sentence %d: %w", sent.Number, err)
	}
	return expectOne(res, "update sentence")
}

func putRemainder(ctx context.Context, tx *sql.Tx, recordingID string, index int, rem model.RemainderSentence) error {
	words, err := encodeJSON(nonNilWords(rem.Words))
	if err != nil {
		return fmt.Errorf("encode remainder words: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO remainders (recording_id, segment_index, text, words) VALUES (?, ?, ?, ?)
		ON CONFLICT (recording_id, segment_index) DO UPDATE SET text = excluded.text, words = excluded.words
	`, recordingID, index, model.JoinWords(rem.Words), words)
	if err != nil {
		return fmt.Errorf("put remainder: %w", err)
	}
	return nil
}

func touch(ctx context.Context, tx *sql.Tx, recordingID string, now float64) error {
	_, err := tx.ExecContext(ctx, `UPDATE recordings SET last_changed_at = ? WHERE id = ?`, now, recordingID)
	if err != nil {
		return fmt.Errorf("touch recording: %w", err)
	}
	return nil
}
