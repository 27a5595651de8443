package ffprobe

import (
	"testing"
)

const sample = `{
  "streams": [
    {"index": 0, "codec_type": "video", "codec_name": "h264", "width": 1080, "height": 1920, "duration": "42.000"},
    {"index": 1, "codec_type": "audio", "codec_name": "aac", "channels": 2, "duration": "41.980"}
  ],
  "format": {"filename": "final.mp4", "nb_streams": 2, "duration": "42.016", "size": "1000"}
}`

func TestParseAndHelpers(t *testing.T) {
	result, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if result.VideoStreamCount() != 1 || result.AudioStreamCount() != 1 {
		t.Fatalf("unexpected stream counts %d/%d", result.VideoStreamCount(), result.AudioStreamCount())
	}
	if result.DurationSeconds() != 42.016 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
	if w, h := result.Dimensions(); w != 1080 || h != 1920 {
		t.Fatalf("unexpected dimensions %dx%d", w, h)
	}
	if result.SizeBytes() != 1000 {
		t.Fatalf("unexpected size: %d", result.SizeBytes())
	}
}

func TestDurationFallsBackToStreams(t *testing.T) {
	result := Result{
		Streams: []Stream{{CodecType: "video", Duration: "12.5"}, {CodecType: "audio", Duration: "bad"}},
		Format:  Format{Duration: "N/A"},
	}
	if result.DurationSeconds() != 12.5 {
		t.Fatalf("expected stream fallback, got %v", result.DurationSeconds())
	}
}

func TestHelpersHandleInvalidNumbers(t *testing.T) {
	result := Result{Format: Format{Duration: "bad", Size: "-1"}}
	if result.DurationSeconds() != 0 {
		t.Fatalf("expected duration 0, got %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 0 {
		t.Fatalf("expected size 0, got %d", result.SizeBytes())
	}
	if _, err := Parse([]byte("not json")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestArgsEndWithPath(t *testing.T) {
	args := Args("/tmp/-odd.mp4")
	if args[len(args)-2] != "--" || args[len(args)-1] != "/tmp/-odd.mp4" {
		t.Fatalf("unexpected args %v", args)
	}
}
