// Package storage abstracts file IO for data, manifest and metadata files.
package storage

import (
	"context"
	"path"
	"path/filepath"
	"strings"
)

// Storage abstracts file I/O for Iceberg data, manifest, and metadata files.
// Paths are full locations: local paths or s3://bucket/key URIs.
type Storage interface {
	Write(ctx context.Context, path string, data []byte) error
	Read(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) (bool, error)
	Delete(ctx context.Context, path string) error
}

// Join appends elements to a location, keeping any URI scheme intact.
func Join(base string, elem ...string) string {
	if scheme, rest, ok := strings.Cut(base, "://"); ok {
		return scheme + "://" + path.Join(append([]string{rest}, elem...)...)
	}
	return filepath.Join(append([]string{base}, elem...)...)
}

// IsObjectStore reports whether the location addresses an S3-compatible store.
func IsObjectStore(location string) bool {
	return strings.HasPrefix(location, "s3://") || strings.HasPrefix(location, "s3a://") || strings.HasPrefix(location, "s3n://")
}
