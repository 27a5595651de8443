package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Transition describes one state-machine step applied through Advance.
type Transition struct {
	JobID string
	// From pins the expected current state. When empty the state read inside
	// the transaction is used, so the event is validated against it.
	From  State
	Event Event
	// Owner is the claim the caller holds. Empty means the job must be unclaimed.
	Owner     string
	Artifacts map[Artifact]string
	Details   *Details
	Review    *Review
	Publish   *PublishRecord
	Note      string
}

// Failure describes a provider failure reported by a worker.
type Failure struct {
	JobID       string
	State       State
	Owner       string
	Message     string
	MaxAttempts int
	RetryAfter  time.Duration
}

// claimableClause skips jobs still inside their retry delay, so a newer job in
// the same state can be claimed ahead of an older one that is backing off.
const claimableClause = "(claim_owner IS NULL OR claimed_at < ?) AND (retry_after IS NULL OR retry_after <= ?)"

// ClaimNext leases the oldest claimable job in state for owner. Claims older
// than staleBefore are treated as abandoned. It returns nil, nil when nothing
// is claimable and ErrConflict when another worker took the candidate first.
func (s *Store) ClaimNext(ctx context.Context, state State, owner string, staleBefore time.Time) (*Job, error) {
	if err := validateClaim(state, owner); err != nil {
		return nil, err
	}
	var claimed *Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.clock()
		row := tx.QueryRowContext(ctx,
			"SELECT "+jobColumns+" FROM jobs WHERE state = ? AND "+claimableClause+" ORDER BY created_at, id LIMIT 1",
			string(state), formatTime(staleBefore), formatTime(now),
		)
		candidate, err := scanJob(row)
		if errors.Is(err, sql.ErrNoRows) {
			claimed = nil
			return nil
		}
		if err != nil {
			return fmt.Errorf("select claim candidate: %w", err)
		}
		claimed, err = s.claimTx(ctx, tx, candidate, owner, staleBefore, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Claim leases a specific job. It returns ErrConflict when the job is not in
// state or is held by a live claim, and ErrNotFound for unknown ids.
func (s *Store) Claim(ctx context.Context, id string, state State, owner string, staleBefore time.Time) (*Job, error) {
	if err := validateClaim(state, owner); err != nil {
		return nil, err
	}
	var claimed *Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getJobTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.State != state {
			return fmt.Errorf("%w: job %s is %s, not %s", ErrConflict, id, current.State, state)
		}
		claimed, err = s.claimTx(ctx, tx, current, owner, staleBefore, s.clock())
		return err
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func validateClaim(state State, owner string) error {
	if !WorkerBound(state) {
		return fmt.Errorf("%w: state %s has no worker", ErrInvalidTransition, state)
	}
	if strings.TrimSpace(owner) == "" {
		return errors.New("claim owner is required")
	}
	return nil
}

func (s *Store) claimTx(ctx context.Context, tx *sql.Tx, job *Job, owner string, staleBefore, now time.Time) (*Job, error) {
	nowRaw := formatTime(now)
	res, err := tx.ExecContext(ctx,
		"UPDATE jobs SET claim_owner = ?, claimed_at = ?, updated_at = ? WHERE id = ? AND state = ? AND "+claimableClause,
		owner, nowRaw, nowRaw, job.ID, string(job.State), formatTime(staleBefore), nowRaw,
	)
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("claim rows affected: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: job %s already claimed", ErrConflict, job.ID)
	}
	if job.ClaimOwner != "" && job.ClaimOwner != owner {
		if err := insertEntry(ctx, tx, Entry{
			JobID:     job.ID,
			Action:    ActionClaimExpired,
			FromState: job.State,
			Details:   fmt.Sprintf("lease held by %s expired; reclaimed by %s", job.ClaimOwner, owner),
			Success:   true,
		}, nowRaw); err != nil {
			return nil, err
		}
	}
	return getJobTx(ctx, tx, job.ID)
}

// Advance applies a transition atomically: it validates the event against
// the state machine, checks artifact ordering, performs a conditional update
// and appends a STATE_CHANGE entry.
func (s *Store) Advance(ctx context.Context, t Transition) (*Job, error) {
	var updated *Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getJobTx(ctx, tx, t.JobID)
		if err != nil {
			return err
		}
		from := t.From
		if from == "" {
			from = current.State
		}
		to, err := Next(from, t.Event)
		if err != nil {
			return err
		}
		if current.State != from {
			return fmt.Errorf("%w: job %s moved to %s", ErrConflict, current.ID, current.State)
		}
		if current.ClaimOwner != t.Owner {
			return fmt.Errorf("%w: job %s claim held by %q", ErrConflict, current.ID, current.ClaimOwner)
		}

		next, err := applyTransition(current, from, to, t, s.clock())
		if err != nil {
			return err
		}
		if err := updateJobTx(ctx, tx, next, from, t.Owner); err != nil {
			return err
		}
		if err := insertEntry(ctx, tx, Entry{
			JobID:     current.ID,
			Action:    ActionStateChange,
			FromState: from,
			Event:     t.Event,
			ToState:   to,
			Details:   t.Note,
			Success:   true,
		}, formatTime(next.UpdatedAt)); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func applyTransition(current *Job, from, to State, t Transition, now time.Time) (*Job, error) {
	next := *current
	next.State = to
	next.AttemptCount = 0
	next.ErrorMessage = ""
	next.ClaimOwner = ""
	next.ClaimedAt = nil
	next.RetryAfter = nil
	next.UpdatedAt = now

	if t.Event == EventReprocess {
		next.Artifacts = Artifacts{}
		next.Details = Details{}
		next.Review = Review{}
		next.Publish = PublishRecord{}
	}

	produced, producesArtifact := ArtifactFor(from)
	for kind, value := range t.Artifacts {
		if value == "" {
			continue
		}
		if t.Event != EventComplete || !producesArtifact || kind != produced {
			return nil, fmt.Errorf("%w: %s cannot write %s artifact", ErrArtifactOrder, from, kind)
		}
		if existing := current.Artifacts.Get(kind); existing != "" && existing != value {
			return nil, fmt.Errorf("%w: %s artifact already set", ErrArtifactOrder, kind)
		}
		next.Artifacts.Set(kind, value)
	}
	if err := CheckArtifacts(to, next.Artifacts); err != nil {
		return nil, err
	}

	if t.Details != nil {
		merged := next.Details
		if t.Details.Title != "" {
			merged.Title = t.Details.Title
		}
		if t.Details.Description != "" {
			merged.Description = t.Details.Description
		}
		if len(t.Details.Hashtags) > 0 {
			merged.Hashtags = append([]string(nil), t.Details.Hashtags...)
		}
		if t.Details.DurationSeconds > 0 {
			merged.DurationSeconds = t.Details.DurationSeconds
		}
		next.Details = merged
	}

	switch t.Event {
	case EventApprove, EventReject:
		if t.Review == nil {
			return nil, fmt.Errorf("%w: review decision requires reviewer details", ErrInvalidTransition)
		}
		review := *t.Review
		review.Decision = DecisionApproved
		if t.Event == EventReject {
			review.Decision = DecisionRejected
		}
		if review.DecidedAt == nil {
			stamp := now
			review.DecidedAt = &stamp
		}
		next.Review = review
	default:
		if t.Review != nil {
			return nil, fmt.Errorf("%w: review fields only change at the review gate", ErrInvalidTransition)
		}
	}

	if t.Publish != nil {
		if from != StateUploading || to != StatePublished {
			return nil, fmt.Errorf("%w: publish fields only change on upload completion", ErrInvalidTransition)
		}
		record := *t.Publish
		if record.PublishedAt == nil {
			stamp := now
			record.PublishedAt = &stamp
		}
		next.Publish = record
	}
	return &next, nil
}

// RecordFailure increments the attempt counter for a claimed job and logs a
// STAGE_FAILED entry. Once the counter reaches MaxAttempts the job moves to
// FAILED; otherwise the claim is released for a later retry.
func (s *Store) RecordFailure(ctx context.Context, f Failure) (*Job, error) {
	if f.MaxAttempts <= 0 {
		f.MaxAttempts = 1
	}
	var updated *Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getJobTx(ctx, tx, f.JobID)
		if err != nil {
			return err
		}
		if current.State != f.State || current.ClaimOwner != f.Owner {
			return fmt.Errorf("%w: job %s is %s held by %q", ErrConflict, current.ID, current.State, current.ClaimOwner)
		}

		now := s.clock()
		nowRaw := formatTime(now)
		next := *current
		next.AttemptCount = current.AttemptCount + 1
		next.ErrorMessage = f.Message
		next.ClaimOwner = ""
		next.ClaimedAt = nil
		next.RetryAfter = nil
		next.UpdatedAt = now
		if f.RetryAfter > 0 {
			retry := now.Add(f.RetryAfter)
			next.RetryAfter = &retry
		}

		if err := insertEntry(ctx, tx, Entry{
			JobID:     current.ID,
			Action:    ActionStageFailed,
			FromState: current.State,
			Details:   fmt.Sprintf("attempt %d/%d: %s", next.AttemptCount, f.MaxAttempts, f.Message),
			Success:   false,
		}, nowRaw); err != nil {
			return err
		}

		exhausted := next.AttemptCount >= f.MaxAttempts
		if exhausted {
			to, err := Next(current.State, EventExhaust)
			if err != nil {
				return err
			}
			next.State = to
			next.RetryAfter = nil
		}
		if err := updateJobTx(ctx, tx, &next, current.State, f.Owner); err != nil {
			return err
		}
		if exhausted {
			if err := insertEntry(ctx, tx, Entry{
				JobID:     current.ID,
				Action:    ActionStateChange,
				FromState: current.State,
				Event:     EventExhaust,
				ToState:   next.State,
				Details:   f.Message,
				Success:   false,
			}, nowRaw); err != nil {
				return err
			}
		}
		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ReleaseClaims clears every lease, or only those held by the listed owners.
// It is meant for startup, when no other process can hold a live claim.
func (s *Store) ReleaseClaims(ctx context.Context, owners ...string) (int, error) {
	released := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		released = 0
		query := "SELECT id, state, claim_owner FROM jobs WHERE claim_owner IS NOT NULL"
		args := make([]any, 0, len(owners))
		if len(owners) > 0 {
			query += " AND claim_owner IN (" + makePlaceholders(len(owners)) + ")"
			for _, owner := range owners {
				args = append(args, owner)
			}
		}
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("select claims: %w", err)
		}
		type held struct {
			id, state, owner string
		}
		var claims []held
		for rows.Next() {
			var h held
			if err := rows.Scan(&h.id, &h.state, &h.owner); err != nil {
				rows.Close()
				return fmt.Errorf("scan claim: %w", err)
			}
			claims = append(claims, h)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		nowRaw := formatTime(s.clock())
		for _, h := range claims {
			if _, err := tx.ExecContext(ctx,
				"UPDATE jobs SET claim_owner = NULL, claimed_at = NULL, updated_at = ? WHERE id = ? AND claim_owner = ?",
				nowRaw, h.id, h.owner,
			); err != nil {
				return fmt.Errorf("release claim: %w", err)
			}
			if err := insertEntry(ctx, tx, Entry{
				JobID:     h.id,
				Action:    ActionClaimReleased,
				FromState: State(h.state),
				Details:   "released lease held by " + h.owner,
				Success:   true,
			}, nowRaw); err != nil {
				return err
			}
			released++
		}
		return nil
	})
	return released, err
}

// RenewClaim refreshes the lease timestamp on a job still held by owner so a
// long provider run is not mistaken for an abandoned claim. It returns
// ErrConflict when the claim was lost.
func (s *Store) RenewClaim(ctx context.Context, id, owner string) error {
	if strings.TrimSpace(owner) == "" {
		return fmt.Errorf("renew claim: owner is required")
	}
	nowRaw := formatTime(s.clock())
	res, err := s.execWithRetry(ctx,
		"UPDATE jobs SET claimed_at = ? WHERE id = ? AND claim_owner = ?",
		nowRaw, id, owner,
	)
	if err != nil {
		return fmt.Errorf("renew claim: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("renew claim rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: job %s no longer held by %s", ErrConflict, id, owner)
	}
	return nil
}

func getJobTx(ctx context.Context, tx *sql.Tx, id string) (*Job, error) {
	row := tx.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("read job: %w", err)
	}
	return job, nil
}

// updateJobTx writes every mutable column of job, guarded by the expected
// state and claim owner. A guard miss surfaces as ErrConflict.
func updateJobTx(ctx context.Context, tx *sql.Tx, job *Job, expectState State, expectOwner string) error {
	ownerClause := "claim_owner IS NULL"
	args := []any{
		string(job.State),
		job.AttemptCount,
		nullableString(job.ErrorMessage),
		nullableString(job.ClaimOwner),
		nullableTime(job.ClaimedAt),
		nullableTime(job.RetryAfter),
		nullableString(job.Artifacts.Origin),
		nullableString(job.Artifacts.Cut),
		nullableString(job.Artifacts.Formatted),
		nullableString(job.Artifacts.Captions),
		nullableString(job.Artifacts.Metadata),
		nullableString(job.Artifacts.Final),
		nullableString(job.Details.Title),
		nullableString(job.Details.Description),
		nullableString(joinHashtags(job.Details.Hashtags)),
		nullableFloat(job.Details.DurationSeconds),
		nullableString(string(job.Review.Decision)),
		nullableString(job.Review.Reviewer),
		nullableString(job.Review.Note),
		nullableTime(job.Review.DecidedAt),
		nullableString(job.Publish.PlatformID),
		nullableString(job.Publish.URL),
		nullableTime(job.Publish.PublishedAt),
		formatTime(job.UpdatedAt),
		job.ID,
		string(expectState),
	}
	if expectOwner != "" {
		ownerClause = "claim_owner = ?"
		args = append(args, expectOwner)
	}
	res, err := tx.ExecContext(ctx, `UPDATE jobs SET
		state = ?, attempt_count = ?, error_message = ?, claim_owner = ?, claimed_at = ?, retry_after = ?,
		origin_artifact = ?, cut_artifact = ?, formatted_artifact = ?, captions_artifact = ?, metadata_artifact = ?, final_artifact = ?,
		title = ?, description = ?, hashtags = ?, duration_seconds = ?,
		review_decision = ?, reviewer = ?, review_note = ?, reviewed_at = ?,
		publish_id = ?, publish_url = ?, published_at = ?,
		updated_at = ?
		WHERE id = ? AND state = ? AND `+ownerClause, args...)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: job %s changed concurrently", ErrConflict, job.ID)
	}
	return nil
}
