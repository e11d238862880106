package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const runColumns = `id, feed, started_at, duration_ms, trips, stories, story_stops, rejected, stations`

// LatestRun returns the most recent run whose feed path contains feed (case-insensitive).
func (s *Store) LatestRun(ctx context.Context, feed string) (Run, error) {
	feed = strings.TrimSpace(feed)
	if feed == "" {
		return Run{}, fmt.Errorf("feed is required")
	}
	q := rebind(s.driver, `
SELECT `+runColumns+`
FROM runs
WHERE LOWER(feed) LIKE '%' || LOWER(?) || '%'
ORDER BY started_at DESC, id DESC
LIMIT 1`)
	run, err := scanRun(s.DB.QueryRowContext(ctx, q, feed))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("no run found for feed like %q", feed)
	}
	return run, err
}

// Runs returns up to limit runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	q := rebind(s.driver, `SELECT `+runColumns+` FROM runs ORDER BY id DESC LIMIT ?`)
	rows, err := s.DB.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var r Run
	var started, ms int64
	if err := sc.Scan(&r.ID, &r.Feed, &started, &ms, &r.Trips, &r.Stories, &r.StoryStops, &r.Rejected, &r.Stations); err != nil {
		return Run{}, err
	}
	r.StartedAt = time.Unix(started, 0).UTC()
	r.Duration = time.Duration(ms) * time.Millisecond
	return r, nil
}
