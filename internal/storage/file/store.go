// Package file implements a storage.Store on a billy filesystem.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/tiercache/tiercache/internal/storage"
)

const (
	dirPerm  = 0750
	filePerm = 0600

	tempPrefix = "cache"
	tmpSuffix  = ".tmp"
)

// Store keeps a tier image in a single regular file. Saves write a sibling
// temporary file and rename it over the target.
type Store struct {
	fs   billy.Filesystem
	path string
}

var _ storage.Store = (*Store)(nil)

// NewStore creates a store for path on fs. The parent directory is created
// on first save.
func NewStore(fs billy.Filesystem, path string) (*Store, error) {
	if fs == nil {
		return nil, fmt.Errorf("filesystem cannot be nil")
	}
	if path == "" {
		return nil, fmt.Errorf("path cannot be empty")
	}
	return &Store{fs: fs, path: filepath.Clean(path)}, nil
}

// NewTempStore creates dir if needed and reserves a uniquely named file in
// it. The file is created empty, which loads as an empty image.
func NewTempStore(fs billy.Filesystem, dir string) (*Store, error) {
	if fs == nil {
		return nil, fmt.Errorf("filesystem cannot be nil")
	}
	if dir == "" {
		dir = "."
	}
	if err := fs.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}

	f, err := util.TempFile(fs, dir, tempPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to create tier file in %s: %w", dir, err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close tier file %s: %w", name, err)
	}

	return &Store{fs: fs, path: name}, nil
}

// Load reads the whole file.
func (s *Store) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := util.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, storage.ErrNotExist
		}
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	return data, nil
}

// Save atomically replaces the file contents.
func (s *Store) Save(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := s.fs.MkdirAll(dir, dirPerm); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	tmp := s.path + tmpSuffix
	if err := util.WriteFile(s.fs, tmp, data, filePerm); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	return nil
}

// Remove deletes the file.
func (s *Store) Remove(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.fs.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", s.path, err)
	}
	return nil
}

// Location returns the file path.
func (s *Store) Location() string {
	return s.path
}
