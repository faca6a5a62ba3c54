// Package atomicfile provides the write-to-temp-then-rename helper used
// anywhere a full document must never be observed half-written: C2's
// session-state document and C9's full-overwrite memory files
// (latest-summary.md, agents-index.json, current_focus.md).
package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// Write creates dir (if needed), writes data to path+".tmp", and renames it
// onto path. A crash mid-write leaves only the stale .tmp file behind; path
// itself is always either the old or the new complete contents.
func Write(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("atomicfile: create dir %s: %w", dir, err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, perm); err != nil {
		return fmt.Errorf("atomicfile: write temp file %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("atomicfile: rename %s to %s: %w", tmpPath, path, err)
	}
	return nil
}

// Append creates dir (if needed) and appends data to path, creating it if
// it doesn't exist. Append-only files tolerate a partial write on crash:
// the next append still produces a valid document, so no rename is needed.
func Append(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("atomicfile: create dir %s: %w", dir, err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, perm)
	if err != nil {
		return fmt.Errorf("atomicfile: open %s for append: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("atomicfile: append to %s: %w", path, err)
	}
	return nil
}
