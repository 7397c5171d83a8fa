package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrS3NotConfigured is returned when S3 operations are attempted
// without proper configuration.
var ErrS3NotConfigured = errors.New("S3 storage is not configured")

// PartialSuffix marks files left behind by an interrupted download.
const PartialSuffix = ".part"

// Recovery describes what RecoverPartial did.
type Recovery struct {
	// Promoted is the partial file renamed to the final path, if any.
	Promoted string
	// Removed lists stale partial files deleted because the final file existed.
	Removed []string
}

// LocalStorage implements the Storage interface using local disk.
// It does not support uploads unless wrapped with S3Storage.
type LocalStorage struct{}

// NewLocalStorage creates a new LocalStorage instance.
func NewLocalStorage() *LocalStorage {
	return &LocalStorage{}
}

// EnsureDir creates path and any missing parents.
func (s *LocalStorage) EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0750); err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	return nil
}

// RecoverPartial scans dir for files named base*PartialSuffix.
//
// If finalPath does not exist, the first match (directory order) is renamed
// to finalPath. If finalPath exists, the matches are stale and are removed,
// so a final file and a partial file never coexist for the same base.
// A missing dir is not an error.
func (s *LocalStorage) RecoverPartial(dir, base, finalPath string) (Recovery, error) {
	var rec Recovery

	partials, err := findPartials(dir, base)
	if err != nil {
		return rec, err
	}
	if len(partials) == 0 {
		return rec, nil
	}

	if _, err := os.Stat(finalPath); err == nil {
		for _, p := range partials {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				return rec, fmt.Errorf("remove stale partial %s: %w", p, err)
			}
			rec.Removed = append(rec.Removed, p)
		}
		return rec, nil
	} else if !os.IsNotExist(err) {
		return rec, fmt.Errorf("stat %s: %w", finalPath, err)
	}

	if err := os.Rename(partials[0], finalPath); err != nil {
		return rec, fmt.Errorf("promote partial %s: %w", partials[0], err)
	}
	rec.Promoted = partials[0]
	return rec, nil
}

func findPartials(dir, base string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}

	var matches []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, base) || !strings.HasSuffix(name, PartialSuffix) {
			continue
		}
		matches = append(matches, filepath.Join(dir, name))
	}
	return matches, nil
}

// Upload is not supported by LocalStorage and returns ErrS3NotConfigured.
func (s *LocalStorage) Upload(_ context.Context, _, _ string) (string, error) {
	return "", ErrS3NotConfigured
}
