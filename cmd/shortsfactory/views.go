package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"

	"shortsfactory/internal/daemon"
	"shortsfactory/internal/queue"
)

const titleWidth = 48

func buildStateRows(counts map[queue.State]int) [][]string {
	rows := make([][]string, 0, len(counts))
	for _, state := range queue.AllStates() {
		if n := counts[state]; n > 0 {
			rows = append(rows, []string{formatStateLabel(state), fmt.Sprintf("%d", n)})
		}
	}
	return rows
}

func buildJobRows(jobs []daemon.JobView) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			job.ID,
			text.Trim(job.Title, titleWidth),
			string(job.SourceKind),
			formatStateLabel(job.State),
			fmt.Sprintf("%d", job.AttemptCount),
			formatDisplayTime(job.UpdatedAt),
		})
	}
	return rows
}

func buildHistoryRows(entries []queue.Entry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		transition := ""
		if e.FromState != "" || e.ToState != "" {
			transition = fmt.Sprintf("%s -> %s", orDash(string(e.FromState)), orDash(string(e.ToState)))
		}
		result := "ok"
		if !e.Success {
			result = "failed"
		}
		rows = append(rows, []string{
			formatDisplayTime(e.Timestamp),
			string(e.Action),
			transition,
			result,
			e.Details,
		})
	}
	return rows
}

func jobDetailLines(job *daemon.JobView) []string {
	lines := []string{
		fmt.Sprintf("ID:        %s", job.ID),
		fmt.Sprintf("Title:     %s", job.Title),
		fmt.Sprintf("State:     %s", formatStateLabel(job.State)),
		fmt.Sprintf("Source:    %s (%s)", job.SourceRef, job.SourceKind),
		fmt.Sprintf("Attempts:  %d", job.AttemptCount),
		fmt.Sprintf("Created:   %s", formatDisplayTime(job.CreatedAt)),
		fmt.Sprintf("Updated:   %s", formatDisplayTime(job.UpdatedAt)),
	}
	if job.ErrorMessage != "" {
		lines = append(lines, fmt.Sprintf("Error:     %s", job.ErrorMessage))
	}
	if job.ClaimOwner != "" {
		lines = append(lines, fmt.Sprintf("Claimed:   %s", job.ClaimOwner))
	}
	if len(job.Details.Hashtags) > 0 {
		lines = append(lines, fmt.Sprintf("Hashtags:  %s", strings.Join(job.Details.Hashtags, " ")))
	}
	if job.Details.DurationSeconds > 0 {
		lines = append(lines, fmt.Sprintf("Duration:  %.1fs", job.Details.DurationSeconds))
	}
	if job.Review.Decision != "" {
		review := fmt.Sprintf("Review:    %s by %s", job.Review.Decision, job.Review.Reviewer)
		if job.Review.Note != "" {
			review += ": " + job.Review.Note
		}
		lines = append(lines, review)
	}
	if job.Publish.PlatformID != "" {
		lines = append(lines, fmt.Sprintf("Published: %s %s", job.Publish.PlatformID, job.Publish.URL))
	}
	for _, kind := range queue.AllArtifacts() {
		if ref := job.Artifacts.Get(kind); ref != "" {
			lines = append(lines, fmt.Sprintf("  %-10s %s", string(kind)+":", ref))
		}
	}
	return lines
}

func formatStateLabel(state queue.State) string {
	parts := strings.Split(strings.TrimSpace(string(state)), "_")
	for i, part := range parts {
		lower := strings.ToLower(part)
		if lower == "" {
			continue
		}
		parts[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(parts, " ")
}

func formatDisplayTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04")
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
