// Package storage manages the on-disk layout of a capture and optional
// publishing of its artifacts. It defines the Storage interface (port) and
// implementations for local disk and S3.
package storage

import "context"

// Storage defines how capture artifacts are laid out and published.
type Storage interface {
	// EnsureDir creates path and any missing parents. It succeeds if the
	// directory already exists.
	EnsureDir(path string) error

	// RecoverPartial promotes an interrupted download to finalPath.
	// See LocalStorage.RecoverPartial.
	RecoverPartial(dir, base, finalPath string) (Recovery, error)

	// Upload copies the local file at path to key and returns its URL.
	// Returns ErrS3NotConfigured if no remote store is configured.
	Upload(ctx context.Context, key, path string) (url string, err error)
}
