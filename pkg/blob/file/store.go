// Package file implements blob.Store on the local filesystem.
package file

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/3leaps/mediagrab/pkg/blob"
)

// Store keeps artifacts as regular files under a base directory.
//
// Keys are treated as relative paths under BaseDir. Writes go through a
// temp file in the destination directory followed by a rename, so a
// crash mid-save never leaves a partially written artifact at its final
// path.
type Store struct {
	baseDir string
}

var _ blob.Store = (*Store)(nil)

type Config struct {
	BaseDir string
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseDir) == "" {
		return fmt.Errorf("base dir is required")
	}
	return nil
}

func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base := filepath.Clean(cfg.BaseDir)
	if err := os.MkdirAll(base, 0755); err != nil {
		return nil, fmt.Errorf("create base dir: %w", err)
	}
	return &Store{baseDir: base}, nil
}

func (s *Store) Close() error { return nil }

// BaseDir returns the root directory artifacts are stored under.
func (s *Store) BaseDir() string { return s.baseDir }

func (s *Store) Save(ctx context.Context, key string, r io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.fullPath(key)
	if err != nil {
		return s.wrapError("Save", key, err)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return s.wrapError("Save", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".partial.*")
	if err != nil {
		return s.wrapError("Save", key, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	written, err := io.Copy(tmp, r)
	if err != nil {
		_ = tmp.Close()
		return s.wrapError("Save", key, err)
	}
	if err := tmp.Close(); err != nil {
		return s.wrapError("Save", key, err)
	}
	if size > 0 && written != size {
		return s.wrapError("Save", key, fmt.Errorf("short write: %d of %d bytes", written, size))
	}

	if err := os.Rename(tmpName, full); err != nil {
		return s.wrapError("Save", key, err)
	}
	return nil
}

func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	full, err := s.fullPath(key)
	if err != nil {
		return nil, 0, s.wrapError("Open", key, err)
	}
	st, err := os.Stat(full)
	if err != nil {
		return nil, 0, s.wrapError("Open", key, err)
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, 0, s.wrapError("Open", key, err)
	}
	return f, st.Size(), nil
}

func (s *Store) Stat(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	full, err := s.fullPath(key)
	if err != nil {
		return 0, s.wrapError("Stat", key, err)
	}
	st, err := os.Stat(full)
	if err != nil {
		return 0, s.wrapError("Stat", key, err)
	}
	return st.Size(), nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.fullPath(key)
	if err != nil {
		return s.wrapError("Delete", key, err)
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return s.wrapError("Delete", key, err)
	}
	return nil
}

// fullPath resolves a key under baseDir, rejecting traversal outside it.
func (s *Store) fullPath(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	full := filepath.Join(s.baseDir, clean)
	if !strings.HasPrefix(full, s.baseDir+string(filepath.Separator)) && full != s.baseDir {
		return "", fmt.Errorf("key escapes base dir: %s", key)
	}
	return full, nil
}

func (s *Store) wrapError(op, key string, err error) error {
	wrapped := &blob.StoreError{Op: op, Backend: "file", Key: key, Err: err}
	if os.IsNotExist(err) {
		wrapped.Err = blob.ErrNotFound
	}
	if os.IsPermission(err) {
		wrapped.Err = blob.ErrAccessDenied
	}
	return wrapped
}
