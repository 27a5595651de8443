package queue

import (
	"database/sql"
	"errors"
	"strings"
	"time"
)

const jobColumns = "id, source_kind, source_ref, source_path, source_idea, state, attempt_count, error_message, claim_owner, claimed_at, retry_after, origin_artifact, cut_artifact, formatted_artifact, captions_artifact, metadata_artifact, final_artifact, title, description, hashtags, duration_seconds, review_decision, reviewer, review_note, reviewed_at, publish_id, publish_url, published_at, created_at, updated_at"

const entryColumns = "id, timestamp, job_id, action, from_state, event, to_state, details, success"

// timeLayout is fixed width so that lexical order of stored timestamps
// matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(scanner rowScanner) (*Job, error) {
	var (
		id             string
		sourceKind     string
		sourceRef      string
		sourcePath     sql.NullString
		sourceIdea     sql.NullString
		state          string
		attempts       int
		errorMessage   sql.NullString
		claimOwner     sql.NullString
		claimedRaw     sql.NullString
		retryAfterRaw  sql.NullString
		origin         sql.NullString
		cut            sql.NullString
		formatted      sql.NullString
		captions       sql.NullString
		metadata       sql.NullString
		final          sql.NullString
		title          sql.NullString
		description    sql.NullString
		hashtags       sql.NullString
		duration       sql.NullFloat64
		decision       sql.NullString
		reviewer       sql.NullString
		reviewNote     sql.NullString
		reviewedRaw    sql.NullString
		publishID      sql.NullString
		publishURL     sql.NullString
		publishedRaw   sql.NullString
		createdRaw     string
		updatedRaw     string
	)

	if err := scanner.Scan(
		&id,
		&sourceKind,
		&sourceRef,
		&sourcePath,
		&sourceIdea,
		&state,
		&attempts,
		&errorMessage,
		&claimOwner,
		&claimedRaw,
		&retryAfterRaw,
		&origin,
		&cut,
		&formatted,
		&captions,
		&metadata,
		&final,
		&title,
		&description,
		&hashtags,
		&duration,
		&decision,
		&reviewer,
		&reviewNote,
		&reviewedRaw,
		&publishID,
		&publishURL,
		&publishedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:           id,
		SourceKind:   SourceKind(sourceKind),
		SourceRef:    sourceRef,
		SourcePath:   sourcePath.String,
		SourceIdea:   sourceIdea.String,
		State:        State(state),
		AttemptCount: attempts,
		ErrorMessage: errorMessage.String,
		ClaimOwner:   claimOwner.String,
		ClaimedAt:    parseNullableTime(claimedRaw),
		RetryAfter:   parseNullableTime(retryAfterRaw),
		Artifacts: Artifacts{
			Origin:    origin.String,
			Cut:       cut.String,
			Formatted: formatted.String,
			Captions:  captions.String,
			Metadata:  metadata.String,
			Final:     final.String,
		},
		Details: Details{
			Title:           title.String,
			Description:     description.String,
			Hashtags:        splitHashtags(hashtags.String),
			DurationSeconds: duration.Float64,
		},
		Review: Review{
			Decision:  ReviewDecision(decision.String),
			Reviewer:  reviewer.String,
			Note:      reviewNote.String,
			DecidedAt: parseNullableTime(reviewedRaw),
		},
		Publish: PublishRecord{
			PlatformID:  publishID.String,
			URL:         publishURL.String,
			PublishedAt: parseNullableTime(publishedRaw),
		},
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}

func scanEntry(scanner rowScanner) (Entry, error) {
	var (
		entry   Entry
		tsRaw   string
		jobID   sql.NullString
		action  string
		from    sql.NullString
		event   sql.NullString
		to      sql.NullString
		details sql.NullString
		success int
	)
	if err := scanner.Scan(&entry.ID, &tsRaw, &jobID, &action, &from, &event, &to, &details, &success); err != nil {
		return Entry{}, err
	}
	if ts, err := parseTimeString(tsRaw); err == nil {
		entry.Timestamp = ts
	}
	entry.JobID = jobID.String
	entry.Action = Action(action)
	entry.FromState = State(from.String)
	entry.Event = Event(event.String)
	entry.ToState = State(to.String)
	entry.Details = details.String
	entry.Success = success != 0
	return entry, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil || value.IsZero() {
		return nil
	}
	return formatTime(*value)
}

func nullableFloat(value float64) any {
	if value == 0 {
		return nil
	}
	return value
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(timeLayout, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	t, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &t
}

func joinHashtags(tags []string) string {
	cleaned := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			cleaned = append(cleaned, tag)
		}
	}
	return strings.Join(cleaned, " ")
}

func splitHashtags(value string) []string {
	return strings.Fields(value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
