package share

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var ErrNotFound = errors.New("file not found")
var ErrInvalidName = errors.New("invalid blob name")

const maxNameLength = 512

// FSStorage implements Storage using the local filesystem. Blobs live flat in
// one directory under their stored names.
type FSStorage struct {
	basePath string
}

// NewFSStorage creates a new filesystem-based storage.
func NewFSStorage(basePath string) (*FSStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, err
	}
	return &FSStorage{basePath: basePath}, nil
}

// validateName rejects anything that could escape the base directory. Stored
// names carry user-chosen filenames, so the charset is open; path separators
// and dot-only names are not.
func validateName(name string) error {
	if name == "" || len(name) > maxNameLength {
		return ErrInvalidName
	}
	if strings.ContainsAny(name, "/\\") || strings.ContainsRune(name, 0) {
		return ErrInvalidName
	}
	if name == "." || name == ".." {
		return ErrInvalidName
	}
	return nil
}

func (s *FSStorage) path(name string) string {
	return filepath.Join(s.basePath, name)
}

func (s *FSStorage) Save(ctx context.Context, name string, data io.Reader) (int64, error) {
	if err := validateName(name); err != nil {
		return 0, err
	}
	f, err := os.Create(s.path(name))
	if err != nil {
		return 0, err
	}
	defer f.Close()

	return io.Copy(f, data)
}

func (s *FSStorage) Load(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

func (s *FSStorage) Delete(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	err := os.Remove(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

// List returns every blob in the directory with its size and modification
// time. Entries that vanish or fail to stat mid-scan are skipped.
func (s *FSStorage) List(ctx context.Context) ([]ObjectInfo, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, err
	}

	objects := make([]ObjectInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		objects = append(objects, ObjectInfo{
			Name:    entry.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return objects, nil
}
