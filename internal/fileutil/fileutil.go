// Package fileutil holds the file helpers providers use to stage artifacts.
package fileutil

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CopyFileVerified copies src to dst through a temp file, then re-reads the
// temp file and compares its size and SHA-256 with what was read from src
// before renaming it into place. dst is never left half written.
func CopyFileVerified(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	srcSum := sha256.New()
	return atomicWrite(dst, 0o644, func(tmp *os.File) error {
		copied, err := io.Copy(tmp, io.TeeReader(in, srcSum))
		if err != nil {
			return fmt.Errorf("copy: %w", err)
		}
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			return err
		}
		dstSum := sha256.New()
		verified, err := io.Copy(dstSum, tmp)
		if err != nil {
			return fmt.Errorf("verify copy: %w", err)
		}
		if verified != copied {
			return fmt.Errorf("copy size mismatch: read %d bytes, wrote %d bytes", copied, verified)
		}
		if !bytes.Equal(srcSum.Sum(nil), dstSum.Sum(nil)) {
			return fmt.Errorf("copy hash mismatch: file corrupted during copy")
		}
		return nil
	})
}

// WriteFileAtomic replaces path with data so readers never see a partial
// payload.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	return atomicWrite(path, perm, func(tmp *os.File) error {
		_, err := tmp.Write(data)
		return err
	})
}

// atomicWrite lets fill populate a hidden temp file next to path and renames
// it over path on success. Any failure removes the temp file.
func atomicWrite(path string, perm os.FileMode, fill func(*os.File) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := fill(tmp); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// Exists reports whether path names an existing regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
