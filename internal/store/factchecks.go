package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/claimstream/internal/model"
)

// AddFactCheck stores a curated verdict in the internal fact-check database
func (s *SQLite) AddFactCheck(ctx context.Context, entry model.FactCheckEntry) (int64, error) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO fact_checks (claim, claimant, rating, summary, url, publisher, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.Claim, entry.Claimant, entry.Rating, entry.Summary, entry.URL, entry.Publisher, unixFromTime(entry.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("insert fact check: %w", err)
	}
	return res.LastInsertId()
}

// SearchFactChecks returns entries whose claim contains any of the keywords,
// newest first. Ranking is left to the caller.
func (s *SQLite) SearchFactChecks(ctx context.Context, keywords []string, limit int) ([]model.FactCheckEntry, error) {
	if len(keywords) == 0 {
		return nil, nil
	}

	conds := make([]string, len(keywords))
	args := make([]any, 0, len(keywords)+1)
	for i, kw := range keywords {
		conds[i] = `LOWER(claim) LIKE ? ESCAPE '\'`
		args = append(args, likePattern(kw))
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, claim, claimant, rating, summary, url, publisher, created_at
		FROM fact_checks WHERE `+strings.Join(conds, " OR ")+`
		ORDER BY created_at DESC LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("query fact checks: %w", err)
	}
	defer rows.Close()

	var entries []model.FactCheckEntry
	for rows.Next() {
		var e model.FactCheckEntry
		var createdAt float64
		if err := rows.Scan(&e.ID, &e.Claim, &e.Claimant, &e.Rating, &e.Summary, &e.URL, &e.Publisher, &createdAt); err != nil {
			return nil, fmt.Errorf("scan fact check: %w", err)
		}
		e.CreatedAt = timeFromUnix(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
