package media

import (
	"encoding/json"
	"fmt"
	"os"

	"shortsfactory/internal/fileutil"
)

// CaptionSegment is one timed caption line.
type CaptionSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// CaptionPayload is the captions artifact.
type CaptionPayload struct {
	JobID    string           `json:"job_id"`
	Duration float64          `json:"duration"`
	Segments []CaptionSegment `json:"segments"`
}

// MetadataPayload is the metadata artifact handed to the uploader.
type MetadataPayload struct {
	JobID         string   `json:"job_id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Hashtags      []string `json:"hashtags"`
	PrivacyStatus string   `json:"privacy_status"`
	CategoryID    string   `json:"category_id"`
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return fileutil.WriteFileAtomic(path, append(data, '\n'), 0o644)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// ReadCaptions loads a captions artifact.
func ReadCaptions(path string) (CaptionPayload, error) {
	var payload CaptionPayload
	err := readJSON(path, &payload)
	return payload, err
}

// ReadMetadata loads a metadata artifact.
func ReadMetadata(path string) (MetadataPayload, error) {
	var payload MetadataPayload
	err := readJSON(path, &payload)
	return payload, err
}
