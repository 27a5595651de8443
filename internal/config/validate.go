package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validatePublish(); err != nil {
		return err
	}
	if err := c.validateVideo(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.poll_interval":        c.Workflow.PollInterval,
		"workflow.batch_limit":          c.Workflow.BatchLimit,
		"workflow.max_retries":          c.Workflow.MaxRetries,
		"workflow.claim_timeout":        c.Workflow.ClaimTimeout,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePublish() error {
	p := c.Publish
	if p.MaxPerDay <= 0 {
		return errors.New("publish.max_per_day must be positive")
	}
	if p.MinDelayMinutes < 0 {
		return errors.New("publish.min_delay_minutes must be >= 0")
	}
	if p.MaxDelayMinutes < p.MinDelayMinutes {
		return errors.New("publish.max_delay_minutes must be >= publish.min_delay_minutes")
	}
	switch p.PrivacyStatus {
	case "private", "unlisted", "public":
	default:
		return fmt.Errorf("publish.privacy_status %q must be one of private, unlisted, public", p.PrivacyStatus)
	}
	switch p.Backend {
	case "stub":
	case "s3":
		if p.S3.Endpoint == "" {
			return errors.New("publish.s3.endpoint must be set when publish.backend is s3")
		}
		if p.S3.Bucket == "" {
			return errors.New("publish.s3.bucket must be set when publish.backend is s3")
		}
		if p.S3.AccessKey == "" || p.S3.SecretKey == "" {
			return errors.New("publish.s3 credentials must be set when publish.backend is s3 (or set SHORTSFACTORY_S3_ACCESS_KEY and SHORTSFACTORY_S3_SECRET_KEY)")
		}
	default:
		return fmt.Errorf("publish.backend %q must be stub or s3", p.Backend)
	}
	return nil
}

func (c *Config) validateVideo() error {
	if err := ensurePositiveMap(map[string]int{
		"video.width":        c.Video.Width,
		"video.height":       c.Video.Height,
		"video.fps":          c.Video.FPS,
		"video.min_duration": c.Video.MinDuration,
		"video.max_duration": c.Video.MaxDuration,
	}); err != nil {
		return err
	}
	if c.Video.MaxDuration < c.Video.MinDuration {
		return errors.New("video.max_duration must be >= video.min_duration")
	}
	return nil
}

func (c *Config) validateLogging() error {
	for stage, level := range c.Logging.StageOverrides {
		switch strings.ToLower(strings.TrimSpace(level)) {
		case "debug", "info", "warn", "warning", "error":
		default:
			return fmt.Errorf("logging.stage_overrides.%s: unknown level %q", stage, level)
		}
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
