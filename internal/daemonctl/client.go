// Package daemonctl talks to a running shortsfactory daemon over its HTTP API
// and manages the daemon process from the CLI.
package daemonctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"shortsfactory/internal/config"
	"shortsfactory/internal/daemon"
	"shortsfactory/internal/queue"
)

// ErrUnavailable reports that no daemon answered on the configured bind.
var ErrUnavailable = errors.New("daemon not reachable")

// APIError is a non-2xx answer from the daemon.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned %d", e.Status)
	}
	return fmt.Sprintf("daemon returned %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Client calls the daemon API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient targets cfg.Paths.APIBind. A wildcard host is dialled on loopback.
func NewClient(cfg *config.Config) (*Client, error) {
	if cfg == nil || strings.TrimSpace(cfg.Paths.APIBind) == "" {
		return nil, errors.New("api_bind is not configured")
	}
	host, port, err := net.SplitHostPort(strings.TrimSpace(cfg.Paths.APIBind))
	if err != nil {
		return nil, fmt.Errorf("parse api_bind: %w", err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return NewClientURL("http://"+net.JoinHostPort(host, port), cfg.Paths.APIToken), nil
}

// NewClientURL targets an explicit base URL.
func NewClientURL(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Status returns the daemon status.
func (c *Client) Status(ctx context.Context) (*daemon.Status, error) {
	var out daemon.Status
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Jobs lists jobs, optionally filtered by state.
func (c *Client) Jobs(ctx context.Context, states ...queue.State) ([]daemon.JobView, error) {
	path := "/api/jobs"
	if len(states) > 0 {
		names := make([]string, 0, len(states))
		for _, s := range states {
			names = append(names, string(s))
		}
		path += "?state=" + url.QueryEscape(strings.Join(names, ","))
	}
	var out daemon.JobListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

// Job fetches one job.
func (c *Client) Job(ctx context.Context, id string) (*daemon.JobView, error) {
	var out daemon.JobResponse
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out.Job, nil
}

// History returns the activity log of one job.
func (c *Client) History(ctx context.Context, id string) ([]queue.Entry, error) {
	var out daemon.HistoryResponse
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id)+"/history", nil, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// Pending lists jobs awaiting review.
func (c *Client) Pending(ctx context.Context) ([]daemon.JobView, error) {
	var out daemon.JobListResponse
	if err := c.do(ctx, http.MethodGet, "/api/review", nil, &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

// Approve records an approval.
func (c *Client) Approve(ctx context.Context, id, reviewer, note string) (*daemon.JobView, error) {
	return c.decide(ctx, id, "approve", reviewer, note)
}

// Reject records a rejection.
func (c *Client) Reject(ctx context.Context, id, reviewer, note string) (*daemon.JobView, error) {
	return c.decide(ctx, id, "reject", reviewer, note)
}

func (c *Client) decide(ctx context.Context, id, action, reviewer, note string) (*daemon.JobView, error) {
	var out daemon.JobResponse
	body := daemon.DecisionRequest{Reviewer: reviewer, Note: note}
	if err := c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(id)+"/"+action, body, &out); err != nil {
		return nil, err
	}
	return &out.Job, nil
}

// Reprocess sends a job back to NEW.
func (c *Client) Reprocess(ctx context.Context, id string) (*daemon.JobView, error) {
	var out daemon.JobResponse
	if err := c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(id)+"/reprocess", nil, &out); err != nil {
		return nil, err
	}
	return &out.Job, nil
}

// AddIdea submits a text idea. created is false when the idea already had a job.
func (c *Client) AddIdea(ctx context.Context, idea string) (*daemon.JobView, bool, error) {
	var out daemon.JobResponse
	if err := c.do(ctx, http.MethodPost, "/api/ideas", daemon.IdeaRequest{Idea: idea}, &out); err != nil {
		return nil, false, err
	}
	created := out.Created != nil && *out.Created
	return &out.Job, created, nil
}

// AddFile asks the daemon to ingest a local media file.
func (c *Client) AddFile(ctx context.Context, path string, kind queue.SourceKind) (*daemon.JobView, bool, error) {
	var out daemon.JobResponse
	body := daemon.FileRequest{Path: path, Kind: string(kind)}
	if err := c.do(ctx, http.MethodPost, "/api/files", body, &out); err != nil {
		return nil, false, err
	}
	created := out.Created != nil && *out.Created
	return &out.Job, created, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isDaemonUnavailable(err) {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &apiErr)
		return &APIError{Status: resp.StatusCode, Message: apiErr.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func isDaemonUnavailable(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.EHOSTUNREACH)
}
