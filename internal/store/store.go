package store

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("not found")

// Store defines the interface for group persistence: a durable mapping from
// group ID to its member stored names, in upload order. Implementations must
// persist every mutation before returning so a restart never loses a group a
// client already holds a link for.
type Store interface {
	SaveGroup(ctx context.Context, groupID string, storedNames []string) error
	GetGroup(ctx context.Context, groupID string) ([]string, error)
	DeleteGroup(ctx context.Context, groupID string) error
	GroupIDs(ctx context.Context) ([]string, error)
	Close() error
}
