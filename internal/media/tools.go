package media

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"shortsfactory/internal/config"
	"shortsfactory/internal/media/ffprobe"
	"shortsfactory/internal/services"
)

// Runner executes an external command and returns its output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes name with args and returns combined output.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Tools binds the configured ffmpeg and ffprobe binaries to a Runner.
type Tools struct {
	Runner  Runner
	FFmpeg  string
	FFprobe string
}

// NewTools resolves binaries from cfg. A nil runner selects ExecRunner.
func NewTools(cfg *config.Config, runner Runner) *Tools {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Tools{Runner: runner, FFmpeg: cfg.FFmpegBinary(), FFprobe: cfg.FFprobeBinary()}
}

// Transcode runs ffmpeg with args. "-y" and "-hide_banner" are prepended.
func (t *Tools) Transcode(ctx context.Context, args ...string) error {
	full := append([]string{"-y", "-hide_banner", "-loglevel", "error"}, args...)
	output, err := t.Runner.Run(ctx, t.FFmpeg, full...)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "", "ffmpeg", tail(output, 400), err)
	}
	return nil
}

// Probe inspects path with ffprobe.
func (t *Tools) Probe(ctx context.Context, path string) (ffprobe.Result, error) {
	output, err := t.Runner.Run(ctx, t.FFprobe, ffprobe.Args(path)...)
	if err != nil {
		return ffprobe.Result{}, services.Wrap(services.ErrExternalTool, "", "ffprobe", tail(output, 400), err)
	}
	result, err := ffprobe.Parse(output)
	if err != nil {
		return ffprobe.Result{}, services.Wrap(services.ErrExternalTool, "", "ffprobe", "unreadable output", err)
	}
	return result, nil
}

// tail keeps the last limit bytes of tool output, where ffmpeg prints the cause.
func tail(output []byte, limit int) string {
	text := strings.TrimSpace(string(output))
	if len(text) > limit {
		text = "..." + text[len(text)-limit:]
	}
	return text
}

func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func encodeArgs(cfg *config.Config) []string {
	return []string{
		"-c:v", cfg.Video.VideoCodec,
		"-pix_fmt", "yuv420p",
		"-c:a", cfg.Video.AudioCodec,
	}
}

func videoSize(cfg *config.Config) string {
	return fmt.Sprintf("%dx%d", cfg.Video.Width, cfg.Video.Height)
}
