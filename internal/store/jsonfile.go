package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// JSONStore implements Store as a mutex-guarded in-memory map mirrored to a
// single human-readable JSON document. The document is loaded once at startup
// and rewritten wholesale on every mutation, via a temp file and rename so a
// crash mid-write never leaves a truncated map behind.
type JSONStore struct {
	path string

	mu     sync.RWMutex
	groups map[string][]string
}

// NewJSONStore opens (or creates) the store backed by the document at path.
func NewJSONStore(path string) (*JSONStore, error) {
	s := &JSONStore{
		path:   path,
		groups: make(map[string][]string),
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.groups); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *JSONStore) SaveGroup(ctx context.Context, groupID string, storedNames []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.groups[groupID]
	s.groups[groupID] = append([]string(nil), storedNames...)
	if err := s.persistLocked(); err != nil {
		// Keep memory matching the document: an overwrite rolls back to the
		// previous membership, a fresh group disappears.
		if existed {
			s.groups[groupID] = prev
		} else {
			delete(s.groups, groupID)
		}
		return err
	}
	return nil
}

func (s *JSONStore) GetGroup(ctx context.Context, groupID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names, ok := s.groups[groupID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]string(nil), names...), nil
}

func (s *JSONStore) DeleteGroup(ctx context.Context, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[groupID]; !ok {
		return ErrNotFound
	}
	delete(s.groups, groupID)
	return s.persistLocked()
}

func (s *JSONStore) GroupIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.groups))
	for id := range s.groups {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *JSONStore) Close() error {
	return nil
}

// persistLocked rewrites the backing document. Callers hold the write lock.
func (s *JSONStore) persistLocked() error {
	raw, err := json.MarshalIndent(s.groups, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".groups-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
