package share

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"droplink/internal/logging"
	"droplink/internal/store"
)

var ErrNoFiles = errors.New("no files in batch")
var ErrGroupNotFound = errors.New("group not found")

// TooManyFilesError reports a batch exceeding the file count limit.
type TooManyFilesError struct {
	Max int
}

func (e *TooManyFilesError) Error() string {
	return fmt.Sprintf("too many files (max %d)", e.Max)
}

// FileTooLargeError reports a single file exceeding the size limit.
type FileTooLargeError struct {
	Name string
	Max  int64
}

func (e *FileTooLargeError) Error() string {
	return fmt.Sprintf("file %q too large (max %s)", e.Name, humanize.IBytes(uint64(e.Max)))
}

// DuplicateNameError reports a batch containing the same filename twice. All
// files of a batch share one token, so a repeated name would collide on the
// stored name and overwrite the earlier blob.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("duplicate filename %q in batch", e.Name)
}

// Limits bounds an upload batch.
type Limits struct {
	MaxFiles    int
	MaxFileSize int64
}

// Service coordinates uploads, retrieval, and archiving over a blob storage
// and a retention store.
type Service struct {
	storage Storage
	store   store.Store
	limits  Limits
}

// NewService creates a new share service.
func NewService(storage Storage, st store.Store, limits Limits) *Service {
	return &Service{
		storage: storage,
		store:   st,
		limits:  limits,
	}
}

// Limits returns the configured batch limits.
func (s *Service) Limits() Limits {
	return s.limits
}

// Entry pairs a blob's stored name with its recovered original filename.
type Entry struct {
	StoredName   string
	OriginalName string
	Size         int64
}

// UploadResult describes a committed batch. GroupID is empty for single-file
// batches, which are addressed directly by stored name.
type UploadResult struct {
	GroupID string
	Files   []Entry
}

// Batch accumulates the files of one upload request. Files stream to storage
// as they are added; Commit finalizes the batch, Discard rolls written blobs
// back.
type Batch struct {
	svc   *Service
	token string
	files []Entry
	done  bool
}

// NewBatch starts an upload batch with a fresh token. All files added to the
// batch share the token, which becomes the group ID for multi-file batches.
func (s *Service) NewBatch() (*Batch, error) {
	token, err := NewToken()
	if err != nil {
		return nil, err
	}
	return &Batch{svc: s, token: token}, nil
}

// Add streams one file into storage under its stored name. On a size or count
// violation the batch is left consistent: nothing over the limit remains in
// storage.
func (b *Batch) Add(ctx context.Context, originalName string, data io.Reader) error {
	if b.done {
		return errors.New("batch already finalized")
	}
	if len(b.files) >= b.svc.limits.MaxFiles {
		return &TooManyFilesError{Max: b.svc.limits.MaxFiles}
	}

	cleaned, err := CleanOriginalName(originalName)
	if err != nil {
		return err
	}
	for _, f := range b.files {
		if f.OriginalName == cleaned {
			return &DuplicateNameError{Name: cleaned}
		}
	}
	storedName := StoredName(b.token, cleaned)

	// Read one byte past the limit so an oversized file is detected without
	// trusting client-declared sizes.
	limited := io.LimitReader(data, b.svc.limits.MaxFileSize+1)
	n, err := b.svc.storage.Save(ctx, storedName, limited)
	if err != nil {
		return err
	}
	if n > b.svc.limits.MaxFileSize {
		if derr := b.svc.storage.Delete(ctx, storedName); derr != nil {
			logging.Internal.Printf("failed to remove oversized blob %s: %v", storedName, derr)
		}
		return &FileTooLargeError{Name: cleaned, Max: b.svc.limits.MaxFileSize}
	}

	b.files = append(b.files, Entry{
		StoredName:   storedName,
		OriginalName: cleaned,
		Size:         n,
	})
	return nil
}

// Commit finalizes the batch. Multi-file batches write the retention entry,
// which is persisted before Commit returns; single-file batches create no
// group. A failed retention write rolls the blobs back.
func (b *Batch) Commit(ctx context.Context) (*UploadResult, error) {
	if b.done {
		return nil, errors.New("batch already finalized")
	}
	if len(b.files) == 0 {
		return nil, ErrNoFiles
	}
	b.done = true

	if len(b.files) == 1 {
		return &UploadResult{Files: b.files}, nil
	}

	storedNames := make([]string, len(b.files))
	for i, f := range b.files {
		storedNames[i] = f.StoredName
	}
	if err := b.svc.store.SaveGroup(ctx, b.token, storedNames); err != nil {
		b.rollback(ctx)
		return nil, err
	}

	return &UploadResult{GroupID: b.token, Files: b.files}, nil
}

// Discard abandons the batch and removes any blobs it wrote. Safe to call
// after a failed Add.
func (b *Batch) Discard(ctx context.Context) {
	if b.done {
		return
	}
	b.done = true
	b.rollback(ctx)
}

func (b *Batch) rollback(ctx context.Context) {
	for _, f := range b.files {
		if err := b.svc.storage.Delete(ctx, f.StoredName); err != nil && !errors.Is(err, ErrNotFound) {
			// Leftovers are reclaimed by the sweeper.
			logging.Internal.Printf("rollback: failed to delete blob %s: %v", f.StoredName, err)
		}
	}
	b.files = nil
}

// Open returns the blob contents and recovered original filename for a stored
// name. Malformed names report ErrNotFound so the caller cannot distinguish
// probing from expiry.
func (s *Service) Open(ctx context.Context, storedName string) (io.ReadCloser, string, error) {
	_, originalName, err := ParseStoredName(storedName)
	if err != nil {
		return nil, "", ErrNotFound
	}
	rc, err := s.storage.Load(ctx, storedName)
	if err != nil {
		if errors.Is(err, ErrInvalidName) {
			return nil, "", ErrNotFound
		}
		return nil, "", err
	}
	return rc, originalName, nil
}

// GroupFiles returns the entries of a group in upload order, without touching
// blob content. Unknown and empty groups both report ErrGroupNotFound.
func (s *Service) GroupFiles(ctx context.Context, groupID string) ([]Entry, error) {
	if !validToken(groupID) {
		return nil, ErrGroupNotFound
	}
	storedNames, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, err
	}
	if len(storedNames) == 0 {
		return nil, ErrGroupNotFound
	}

	entries := make([]Entry, 0, len(storedNames))
	for _, name := range storedNames {
		_, originalName, err := ParseStoredName(name)
		if err != nil {
			logging.Internal.Printf("group %s: skipping malformed stored name %q", groupID, name)
			continue
		}
		entries = append(entries, Entry{StoredName: name, OriginalName: originalName})
	}
	if len(entries) == 0 {
		return nil, ErrGroupNotFound
	}
	return entries, nil
}
