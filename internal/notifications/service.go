package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"shortsfactory/internal/config"
)

const userAgent = "shortsfactory/0.1"

// Event identifies a notification category.
type Event string

const (
	EventReviewReady Event = "review_ready"
	EventPublished   Event = "published"
	EventJobFailed   Event = "job_failed"
	EventDailyLimit  Event = "daily_limit"
	EventTest        Event = "test"
)

// Payload carries event-specific values. Recognized keys: jobID, title,
// state, error, url, count.
type Payload map[string]any

// Service publishes workflow events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventReviewReady: cfg.Notifications.Review,
			EventPublished:   cfg.Notifications.Published,
			EventDailyLimit:  cfg.Notifications.Published,
			EventJobFailed:   cfg.Notifications.Errors,
			EventTest:        true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	label := jobLabel(payload)
	switch event {
	case EventReviewReady:
		return message{
			title: "ShortsFactory - Ready for Review",
			body:  fmt.Sprintf("👀 Awaiting review: %s", label),
			tags:  []string{"shortsfactory", "review"},
		}, true
	case EventPublished:
		body := fmt.Sprintf("✅ Published: %s", label)
		if url := payloadString(payload, "url"); url != "" {
			body += "\n" + url
		}
		return message{
			title: "ShortsFactory - Published",
			body:  body,
			tags:  []string{"shortsfactory", "publish", "completed"},
		}, true
	case EventDailyLimit:
		return message{
			title: "ShortsFactory - Daily Limit Reached",
			body:  fmt.Sprintf("Published %s shorts today; remaining approvals wait for tomorrow", payloadString(payload, "count")),
			tags:  []string{"shortsfactory", "publish", "limit"},
		}, true
	case EventJobFailed:
		var b strings.Builder
		b.WriteString("❌ Failed")
		if state := payloadString(payload, "state"); state != "" {
			b.WriteString(" in ")
			b.WriteString(state)
		}
		b.WriteString(": ")
		b.WriteString(label)
		if errText := payloadString(payload, "error"); errText != "" {
			b.WriteString("\n")
			b.WriteString(errText)
		}
		return message{
			title:    "ShortsFactory - Job Failed",
			body:     b.String(),
			tags:     []string{"shortsfactory", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "ShortsFactory - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"shortsfactory", "test"},
			priority: "low",
		}, true
	}
	return message{}, false
}

func jobLabel(payload Payload) string {
	title := payloadString(payload, "title")
	id := payloadString(payload, "jobID")
	switch {
	case title != "" && id != "":
		return fmt.Sprintf("%s (%s)", title, id)
	case title != "":
		return title
	case id != "":
		return id
	default:
		return "unknown job"
	}
}

func payloadString(payload Payload, key string) string {
	if payload == nil {
		return ""
	}
	switch v := payload[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
