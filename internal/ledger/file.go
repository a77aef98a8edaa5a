package ledger

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ScreenshotsDir is the data subdirectory holding claim diagnostics.
const ScreenshotsDir = "screenshots"

// FileBackend stores each collection as a JSON document under a data directory.
type FileBackend struct {
	dir string
}

// NewFileBackend prepares the data directory, its screenshots subdirectory and
// an empty document for every collection that does not exist yet.
func NewFileBackend(dir string) (*FileBackend, error) {
	if dir == "" {
		return nil, fmt.Errorf("data dir is required")
	}
	if err := os.MkdirAll(filepath.Join(dir, ScreenshotsDir), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	b := &FileBackend{dir: dir}
	for _, kind := range Kinds {
		path := b.path(kind)
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			if err := os.WriteFile(path, []byte("[]"), 0o644); err != nil {
				return nil, fmt.Errorf("seed %s: %w", kind, err)
			}
		} else if err != nil {
			return nil, fmt.Errorf("stat %s: %w", kind, err)
		}
	}
	return b, nil
}

// Dir returns the data directory.
func (b *FileBackend) Dir() string {
	return b.dir
}

func (b *FileBackend) Load(_ context.Context, kind Kind) ([]byte, error) {
	doc, err := os.ReadFile(b.path(kind))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return doc, err
}

// Save writes to a temporary file in the same directory and renames it over the
// previous document so readers never observe a partial write.
func (b *FileBackend) Save(_ context.Context, kind Kind, document []byte) error {
	tmp, err := os.CreateTemp(b.dir, "."+string(kind)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // nolint:errcheck

	if _, err := tmp.Write(document); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, b.path(kind))
}

func (b *FileBackend) path(kind Kind) string {
	return filepath.Join(b.dir, string(kind)+".json")
}
