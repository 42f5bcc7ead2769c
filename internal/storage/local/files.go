// Package local keeps exported recordings in a directory on disk.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"hearme/internal/domain"
)

type FileStore struct {
	dir string
}

// New creates dir if needed.
func New(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("recordings directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recordings directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// resolve maps a key of the form "name" or "owner/name" into the store
// directory and rejects anything that could escape it.
func (s *FileStore) resolve(key string) (string, error) {
	segments := strings.Split(key, "/")
	if len(segments) > 2 {
		return "", domain.NewValidationError("name", "invalid file name")
	}
	for _, seg := range segments {
		if seg == "" || strings.HasPrefix(seg, ".") || strings.Contains(seg, `\`) || seg != filepath.Base(seg) {
			return "", domain.NewValidationError("name", "invalid file name")
		}
	}
	return filepath.Join(append([]string{s.dir}, segments...)...), nil
}

// Save writes r under key atomically.
func (s *FileStore) Save(ctx context.Context, name string, r io.Reader) (int64, error) {
	path, err := s.resolve(name)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, r)
	if err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("store %s: %w", name, err)
	}
	return n, nil
}

func (s *FileStore) Open(_ context.Context, name string) (io.ReadCloser, error) {
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return f, nil
}
