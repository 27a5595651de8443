package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNewFanoutHandlerCollapses(t *testing.T) {
	if _, ok := newFanoutHandler(nil, nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler when every handler is nil")
	}
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	if h := newFanoutHandler(nil, inner); h != inner {
		t.Fatal("expected a single handler to be returned unwrapped")
	}
}

func TestFanoutHandlerRespectsPerHandlerLevel(t *testing.T) {
	var terminal, file bytes.Buffer
	h := newFanoutHandler(
		slog.NewTextHandler(&terminal, &slog.HandlerOptions{Level: slog.LevelWarn}),
		slog.NewJSONHandler(&file, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected fanout enabled when any handler accepts debug")
	}

	logger := slog.New(h).With(JobID("job-1"))
	logger.Debug("claimed")
	logger.Warn("retry scheduled")

	if strings.Contains(terminal.String(), "claimed") {
		t.Fatalf("warn handler received debug record: %q", terminal.String())
	}
	if !strings.Contains(terminal.String(), "retry scheduled") {
		t.Fatalf("warn handler missing warn record: %q", terminal.String())
	}
	out := file.String()
	if !strings.Contains(out, "claimed") || !strings.Contains(out, "retry scheduled") {
		t.Fatalf("debug handler missing records: %q", out)
	}
	if strings.Count(out, `"job_id":"job-1"`) != 2 {
		t.Fatalf("expected job_id on both records, got %q", out)
	}
}

func TestFanoutHandlerWithGroup(t *testing.T) {
	var a, b bytes.Buffer
	h := newFanoutHandler(slog.NewJSONHandler(&a, nil), slog.NewJSONHandler(&b, nil))
	slog.New(h).WithGroup("publish").Info("uploaded", slog.String("url", "https://example.test/x"))
	for _, out := range []string{a.String(), b.String()} {
		if !strings.Contains(out, `"publish":{"url":"https://example.test/x"}`) {
			t.Fatalf("expected grouped attr, got %q", out)
		}
	}
}

func TestWithLevelOverrideReplacesFloor(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	quiet := WithLevelOverride(base, slog.LevelError)
	quiet.Warn("hidden")
	loud := WithLevelOverride(quiet, slog.LevelDebug)
	loud.Debug("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("warn passed an error floor: %q", out)
	}
	if !strings.Contains(out, "visible") {
		t.Fatalf("second override should replace the first: %q", out)
	}
	if _, nested := loud.Handler().(floorHandler).inner.(floorHandler); nested {
		t.Fatal("overrides should not stack")
	}
}

func TestJSONHandlerKeys(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	slog.New(newJSONHandler(&buf, lvl, false)).Warn("clip rendered")
	out := buf.String()
	if !strings.Contains(out, `"`+JSONTimeKey+`":"`) || !strings.Contains(out, `"level":"warn"`) {
		t.Fatalf("unexpected json record %q", out)
	}
}
