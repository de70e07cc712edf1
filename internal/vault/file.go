package vault

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/alanyoungcy/boldengine/internal/domain"
)

// FileBackend stores the mapping in a single local file. Replace writes a
// temporary file in the same directory, syncs it and renames it over the
// target, so readers never observe a partial write.
type FileBackend struct {
	path string
}

// NewFileBackend creates a FileBackend for path. The parent directory is
// created on first write.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Name returns the backend identifier.
func (f *FileBackend) Name() string { return "file" }

// Path returns the target file path.
func (f *FileBackend) Path() string { return f.path }

// Load reads the whole file.
func (f *FileBackend) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("vault/file: read %s: %w", f.path, err)
	}
	return data, nil
}

// Replace atomically swaps data into place.
func (f *FileBackend) Replace(_ context.Context, data []byte) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("vault/file: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("vault/file: create temp: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("vault/file: chmod temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("vault/file: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("vault/file: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("vault/file: close temp: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("vault/file: rename into place: %w", err)
	}
	committed = true

	// Persist the rename itself. Not all platforms support syncing a
	// directory, so failures here are ignored.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
