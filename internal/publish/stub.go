package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"shortsfactory/internal/fileutil"
	"shortsfactory/internal/preflight"
)

// StubBackend "publishes" by copying the clip and its metadata into a
// local directory. It is the default backend and the one used in tests.
type StubBackend struct {
	dir string
}

// NewStubBackend publishes into dir.
func NewStubBackend(dir string) *StubBackend {
	return &StubBackend{dir: dir}
}

func (b *StubBackend) Name() string { return "stub" }

// Check verifies the target directory is writable.
func (b *StubBackend) Check(context.Context) error {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return err
	}
	if result := preflight.CheckDirectoryAccess("published", b.dir); !result.Passed {
		return fmt.Errorf("%s", result.Detail)
	}
	return nil
}

// Upload copies the clip to <dir>/<job>.mp4 next to a metadata sidecar.
func (b *StubBackend) Upload(_ context.Context, upload Upload) (Receipt, error) {
	target := filepath.Join(b.dir, upload.JobID+filepath.Ext(upload.VideoPath))
	if err := fileutil.CopyFileVerified(upload.VideoPath, target); err != nil {
		return Receipt{}, err
	}
	sidecar, err := json.MarshalIndent(upload.Metadata, "", "  ")
	if err != nil {
		return Receipt{}, err
	}
	if err := fileutil.WriteFileAtomic(filepath.Join(b.dir, upload.JobID+".json"), sidecar, 0o644); err != nil {
		return Receipt{}, err
	}
	return Receipt{
		PlatformID: "local-" + upload.JobID,
		URL:        "file://" + target,
	}, nil
}
