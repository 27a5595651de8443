package logs

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"shortsfactory/internal/logging"
)

// Record is one decoded log line. Raw always holds the original text.
type Record struct {
	Time    time.Time
	Level   slog.Level
	Message string
	JobID   string
	Stage   string
	Attrs   map[string]any
	Raw     string
	JSON    bool
}

// Parse decodes a line written by the daemon's JSON handler. Anything else
// becomes a raw INFO record.
func Parse(line string) Record {
	line = strings.TrimRight(line, "\r")
	rec := Record{Raw: line, Level: slog.LevelInfo}
	if !strings.HasPrefix(line, "{") {
		rec.Message = line
		return rec
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		rec.Message = line
		return rec
	}
	rec.JSON = true
	raw, ok := fields[logging.JSONTimeKey].(string)
	if !ok {
		raw, ok = fields[slog.TimeKey].(string)
	}
	if ok {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			rec.Time = ts
		}
	}
	if name, ok := fields[slog.LevelKey].(string); ok {
		var level slog.Level
		if level.UnmarshalText([]byte(name)) == nil {
			rec.Level = level
		}
	}
	rec.Message, _ = fields[slog.MessageKey].(string)
	rec.JobID, _ = fields[logging.FieldJobID].(string)
	rec.Stage, _ = fields[logging.FieldStage].(string)
	for _, key := range []string{logging.JSONTimeKey, slog.TimeKey, slog.LevelKey, slog.MessageKey, logging.FieldJobID, logging.FieldStage} {
		delete(fields, key)
	}
	if len(fields) > 0 {
		rec.Attrs = fields
	}
	return rec
}

// Format renders a record as a single human readable line.
func Format(rec Record) string {
	if !rec.JSON {
		return rec.Raw
	}
	var b strings.Builder
	if !rec.Time.IsZero() {
		b.WriteString(rec.Time.Local().Format("2006-01-02 15:04:05"))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "%-5s %s", rec.Level.String(), rec.Message)
	if rec.JobID != "" {
		fmt.Fprintf(&b, " job=%s", rec.JobID)
	}
	if rec.Stage != "" {
		fmt.Fprintf(&b, " stage=%s", rec.Stage)
	}
	keys := make([]string, 0, len(rec.Attrs))
	for key := range rec.Attrs {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%v", key, rec.Attrs[key])
	}
	return b.String()
}

// Filter narrows records. Zero values match everything.
type Filter struct {
	JobID    string
	Stage    string
	MinLevel slog.Leveler
}

// Match reports whether rec passes every populated predicate.
func (f Filter) Match(rec Record) bool {
	if f.MinLevel != nil && rec.Level < f.MinLevel.Level() {
		return false
	}
	if f.JobID != "" && rec.JobID != f.JobID {
		return false
	}
	if f.Stage != "" && !strings.EqualFold(rec.Stage, f.Stage) {
		return false
	}
	return true
}

// ParseLevel accepts slog level names, case-insensitively. Empty returns nil
// so nothing is hidden.
func ParseLevel(raw string) (slog.Leveler, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return nil, fmt.Errorf("unknown log level %q", raw)
	}
	return level, nil
}
