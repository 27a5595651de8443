package preflight

import (
	"context"
	"strings"

	"shortsfactory/internal/config"
)

// MinFreeBytes is the free space required under storage_dir.
const MinFreeBytes uint64 = 1 << 30

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Storage directory", cfg.Paths.StorageDir),
		CheckDirectoryAccess("Long video inbox", cfg.LongVideoInbox()),
		CheckDirectoryAccess("Clip inbox", cfg.ClipInbox()),
		CheckFreeSpace("Storage free space", cfg.Paths.StorageDir, MinFreeBytes),
	}
	for _, status := range CheckSystemDeps(ctx, cfg) {
		result := Result{Name: status.Name, Passed: status.Available, Detail: status.Path}
		if !status.Available {
			result.Detail = status.Detail
		}
		results = append(results, result)
	}
	if cfg.Publish.Enabled && strings.EqualFold(cfg.Publish.Backend, "s3") {
		results = append(results, CheckS3Target(cfg.Publish.S3))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
