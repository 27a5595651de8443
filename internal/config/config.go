package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	LogDir     string `toml:"log_dir"`
	InboxDir   string `toml:"inbox_dir"`
	StorageDir string `toml:"storage_dir"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
}

// Workflow contains configuration for coordinator timing and retry policy.
type Workflow struct {
	PollInterval       int `toml:"poll_interval"`
	BatchLimit         int `toml:"batch_limit"`
	MaxRetries         int `toml:"max_retries"`
	ClaimTimeout       int `toml:"claim_timeout"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
}

// S3 contains the object storage target used by the s3 publish backend.
type S3 struct {
	Endpoint  string `toml:"endpoint"`
	Bucket    string `toml:"bucket"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	UseSSL    bool   `toml:"use_ssl"`
	Prefix    string `toml:"prefix"`
	PublicURL string `toml:"public_url"`
}

// Publish contains the publishing cadence and backend selection.
type Publish struct {
	Enabled         bool   `toml:"enabled"`
	MaxPerDay       int    `toml:"max_per_day"`
	MinDelayMinutes int    `toml:"min_delay_minutes"`
	MaxDelayMinutes int    `toml:"max_delay_minutes"`
	Backend         string `toml:"backend"`
	PrivacyStatus   string `toml:"privacy_status"`
	CategoryID      string `toml:"category_id"`
	S3              S3     `toml:"s3"`
}

// Video contains output constraints and the external tools used to meet them.
type Video struct {
	Width         int    `toml:"width"`
	Height        int    `toml:"height"`
	FPS           int    `toml:"fps"`
	MinDuration   int    `toml:"min_duration"`
	MaxDuration   int    `toml:"max_duration"`
	VideoCodec    string `toml:"video_codec"`
	AudioCodec    string `toml:"audio_codec"`
	FFmpegBinary  string `toml:"ffmpeg_binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
	FontFile      string `toml:"font_file"`
}

// Ingest controls the inbox watcher.
type Ingest struct {
	Enabled       bool `toml:"enabled"`
	SettleSeconds int  `toml:"settle_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Review         bool   `toml:"review"`
	Published      bool   `toml:"published"`
	Errors         bool   `toml:"errors"`
}

// Metrics toggles the Prometheus endpoint on the daemon API.
type Metrics struct {
	Enabled bool `toml:"enabled"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format         string            `toml:"format"`
	Level          string            `toml:"level"`
	RetentionDays  int               `toml:"retention_days"`
	StageOverrides map[string]string `toml:"stage_overrides"`
}

// Config encapsulates all configuration values for shortsfactory.
//
// Configuration sections by subsystem:
//   - Paths: directories and API bind address
//   - Workflow: coordinator polling, batch size and retry limits
//   - Publish: throttle cadence and upload backend
//   - Video: output dimensions, duration bounds and ffmpeg settings
//   - Ingest: inbox watcher behaviour
//   - Notifications: ntfy push notification settings
//   - Metrics: Prometheus exposition
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Workflow      Workflow      `toml:"workflow"`
	Publish       Publish       `toml:"publish"`
	Video         Video         `toml:"video"`
	Ingest        Ingest        `toml:"ingest"`
	Notifications Notifications `toml:"notifications"`
	Metrics       Metrics       `toml:"metrics"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/shortsfactory/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("shortsfactory.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation,
// including the inbox layout the watcher expects.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.DataDir,
		c.Paths.LogDir,
		c.Paths.StorageDir,
		c.LongVideoInbox(),
		c.ClipInbox(),
	}
	for _, sub := range StorageSubdirs {
		dirs = append(dirs, filepath.Join(c.Paths.StorageDir, sub))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// StorageSubdirs lists the per-artifact directories created under storage_dir.
var StorageSubdirs = []string{"originals", "cuts", "formatted", "captions", "metadata", "final", "published"}

// StoragePath returns the artifact directory for the named kind.
func (c *Config) StoragePath(kind string) string {
	return filepath.Join(c.Paths.StorageDir, kind)
}

// DatabasePath returns the location of the job store.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "jobs.db")
}

// LongVideoInbox returns the inbox directory for raw long-form media.
func (c *Config) LongVideoInbox() string {
	return filepath.Join(c.Paths.InboxDir, "long_videos")
}

// ClipInbox returns the inbox directory for pre-cut clips.
func (c *Config) ClipInbox() string {
	return filepath.Join(c.Paths.InboxDir, "clips")
}

// IdeasFile returns the path of the inbox ideas file.
func (c *Config) IdeasFile() string {
	return filepath.Join(c.Paths.InboxDir, "ideas.txt")
}

// PollInterval returns the coordinator poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Workflow.PollInterval) * time.Second
}

// ClaimTimeout returns the lease duration after which a claim is considered abandoned.
func (c *Config) ClaimTimeout() time.Duration {
	return time.Duration(c.Workflow.ClaimTimeout) * time.Second
}

// PublishMinDelay returns the minimum spacing between publishes.
func (c *Config) PublishMinDelay() time.Duration {
	return time.Duration(c.Publish.MinDelayMinutes) * time.Minute
}

// PublishMaxDelay returns the upper bound of the randomized publish spacing.
func (c *Config) PublishMaxDelay() time.Duration {
	return time.Duration(c.Publish.MaxDelayMinutes) * time.Minute
}

// FFmpegBinary returns the ffmpeg executable name.
func (c *Config) FFmpegBinary() string {
	if strings.TrimSpace(c.Video.FFmpegBinary) == "" {
		return defaultFFmpegBinary
	}
	return c.Video.FFmpegBinary
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	if strings.TrimSpace(c.Video.FFprobeBinary) == "" {
		return defaultFFprobeBinary
	}
	return c.Video.FFprobeBinary
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
