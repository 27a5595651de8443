package ingest

import (
	"bufio"
	"bytes"
	"path/filepath"
	"strings"
)

var tempSuffixes = []string{".tmp", ".part", ".crdownload"}

var videoExtensions = map[string]struct{}{
	".mp4": {}, ".mov": {}, ".avi": {}, ".mkv": {}, ".wmv": {}, ".flv": {}, ".webm": {},
}

// IsTempFile reports whether path looks like an in-progress download or copy.
func IsTempFile(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	if strings.HasPrefix(name, ".") {
		return true
	}
	for _, suffix := range tempSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// IsVideoFile reports whether path has an accepted video extension.
func IsVideoFile(path string) bool {
	_, ok := videoExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// ParseIdeas returns the non-empty lines of an ideas file, skipping lines
// that start with '#'.
func ParseIdeas(data []byte) []string {
	var ideas []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ideas = append(ideas, line)
	}
	return ideas
}
