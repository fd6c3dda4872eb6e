package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage implements Storage using the local filesystem. file:// URIs
// are accepted.
type LocalStorage struct{}

func localPath(p string) string {
	return strings.TrimPrefix(p, "file://")
}

func (s *LocalStorage) Write(_ context.Context, path string, data []byte) error {
	path = localPath(path)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (s *LocalStorage) Read(_ context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(localPath(path))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func (s *LocalStorage) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(localPath(path))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", path, err)
}

func (s *LocalStorage) Delete(_ context.Context, path string) error {
	if err := os.Remove(localPath(path)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}
