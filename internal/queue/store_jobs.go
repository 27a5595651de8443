package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"
)

// IngestRequest describes a new unit of content entering the pipeline.
type IngestRequest struct {
	Kind       SourceKind
	SourceRef  string
	SourcePath string
	Idea       string
}

// Ingest creates a job in NEW for the request. When a job with the same
// source reference already exists it is returned with created=false and no
// log entry is written.
func (s *Store) Ingest(ctx context.Context, req IngestRequest) (*Job, bool, error) {
	if !req.Kind.Valid() {
		return nil, false, fmt.Errorf("ingest: unknown source kind %q", req.Kind)
	}
	ref := strings.TrimSpace(req.SourceRef)
	if ref == "" {
		return nil, false, errors.New("ingest: source reference is required")
	}
	if req.Kind == SourceTextIdea && strings.TrimSpace(req.Idea) == "" {
		return nil, false, errors.New("ingest: idea text is required")
	}
	if req.Kind != SourceTextIdea && strings.TrimSpace(req.SourcePath) == "" {
		return nil, false, errors.New("ingest: source path is required")
	}

	var (
		job     *Job
		created bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := formatTime(s.clock())
		id := ulid.Make().String()
		res, err := tx.ExecContext(ctx,
			`INSERT INTO jobs (id, source_kind, source_ref, source_path, source_idea, state, attempt_count, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
			 ON CONFLICT(source_ref) DO NOTHING`,
			id, string(req.Kind), ref, nullableString(req.SourcePath), nullableString(strings.TrimSpace(req.Idea)),
			string(StateNew), now, now,
		)
		if err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert job rows affected: %w", err)
		}
		created = affected > 0
		if created {
			if err := insertEntry(ctx, tx, Entry{
				JobID:   id,
				Action:  ActionJobCreated,
				ToState: StateNew,
				Details: fmt.Sprintf("%s %s", req.Kind, ref),
				Success: true,
			}, now); err != nil {
				return err
			}
		}
		row := tx.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE source_ref = ?", ref)
		job, err = scanJob(row)
		if err != nil {
			return fmt.Errorf("read ingested job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return job, created, nil
}

// GetByID fetches a job by identifier. It returns nil, nil when absent.
func (s *Store) GetByID(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), "SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// FindBySourceRef fetches the job created for a source reference, or nil.
func (s *Store) FindBySourceRef(ctx context.Context, ref string) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), "SELECT "+jobColumns+" FROM jobs WHERE source_ref = ?", ref)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find job by source: %w", err)
	}
	return job, nil
}

// ListByState returns jobs in the given states, oldest first. With no states
// every job is returned.
func (s *Store) ListByState(ctx context.Context, states ...State) ([]*Job, error) {
	query := "SELECT " + jobColumns + " FROM jobs"
	args := make([]any, 0, len(states))
	if len(states) > 0 {
		query += " WHERE state IN (" + makePlaceholders(len(states)) + ")"
		for _, state := range states {
			args = append(args, string(state))
		}
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Stats returns a count of jobs grouped by state.
func (s *Store) Stats(ctx context.Context) (map[State]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT state, COUNT(1) FROM jobs GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[State]int)
	for rows.Next() {
		var state State
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		stats[state] = count
	}
	return stats, rows.Err()
}

// Health aggregates job state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for state, count := range stats {
		health.Total += count
		switch state {
		case StateAwaitingReview:
			health.AwaitingReview += count
		case StateApproved:
			health.Approved += count
		case StateUploading:
			health.Uploading += count
		case StatePublished:
			health.Published += count
		case StateRejected:
			health.Rejected += count
		case StateFailed:
			health.Failed += count
		default:
			health.InPipeline += count
		}
	}
	err = s.db.QueryRowContext(ensureContext(ctx),
		"SELECT COUNT(1) FROM jobs WHERE claim_owner IS NOT NULL").Scan(&health.Claimed)
	if err != nil {
		return health, fmt.Errorf("count claimed jobs: %w", err)
	}
	return health, nil
}
