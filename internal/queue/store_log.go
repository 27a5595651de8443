package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

func insertEntry(ctx context.Context, tx *sql.Tx, entry Entry, timestamp string) error {
	if entry.Action == "" {
		return errors.New("activity entry requires an action")
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO activity_log (timestamp, job_id, action, from_state, event, to_state, details, success)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		timestamp,
		nullableString(entry.JobID),
		string(entry.Action),
		nullableString(string(entry.FromState)),
		nullableString(string(entry.Event)),
		nullableString(string(entry.ToState)),
		nullableString(entry.Details),
		boolToInt(entry.Success),
	)
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

// AppendLog records a free-standing activity entry such as a daemon
// lifecycle event or a deferred publish. Transitions write their own entries.
func (s *Store) AppendLog(ctx context.Context, entry Entry) error {
	if entry.ToState != "" || entry.Event != "" {
		return errors.New("transition entries are written by Advance")
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertEntry(ctx, tx, entry, formatTime(s.clock()))
	})
}

// History returns every activity entry for a job in append order.
func (s *Store) History(ctx context.Context, jobID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT "+entryColumns+" FROM activity_log WHERE job_id = ? ORDER BY id", jobID)
	if err != nil {
		return nil, fmt.Errorf("job history: %w", err)
	}
	return collectEntries(rows)
}

// RecentActivity returns the newest entries across all jobs, newest first.
func (s *Store) RecentActivity(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT "+entryColumns+" FROM activity_log ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("recent activity: %w", err)
	}
	return collectEntries(rows)
}

func collectEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// PublishedSince reports how many jobs reached PUBLISHED at or after since,
// plus the time of the most recent publish overall. The activity log is the
// source so counts survive reprocessing and restarts.
func (s *Store) PublishedSince(ctx context.Context, since time.Time) (int, time.Time, error) {
	ctx = ensureContext(ctx)
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM activity_log WHERE to_state = ? AND timestamp >= ?",
		string(StatePublished), formatTime(since),
	).Scan(&count)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("count publishes: %w", err)
	}

	var lastRaw sql.NullString
	err = s.db.QueryRowContext(ctx,
		"SELECT MAX(timestamp) FROM activity_log WHERE to_state = ?",
		string(StatePublished),
	).Scan(&lastRaw)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("last publish: %w", err)
	}
	var last time.Time
	if lastRaw.Valid {
		if parsed, err := parseTimeString(lastRaw.String); err == nil {
			last = parsed
		}
	}
	return count, last, nil
}
