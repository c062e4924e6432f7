package share

import (
	"context"
	"errors"
	"time"

	"droplink/internal/logging"
	"droplink/internal/store"
)

// Sweeper periodically deletes blobs older than the retention window. It is
// stateless between runs and shares storage with in-flight requests; a read
// losing the race against a sweep sees a missing blob, which every read path
// tolerates.
type Sweeper struct {
	Storage  Storage
	MaxAge   time.Duration
	Interval time.Duration

	// Store is consulted only when PruneGroups is set: after a sweep, groups
	// whose blobs are all gone are dropped from the retention store. Off by
	// default; dangling entries are harmless hints.
	Store       store.Store
	PruneGroups bool
}

// Run sweeps immediately, then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	logging.Sweep.Printf("starting (max_age=%s, interval=%s)", s.MaxAge, s.Interval)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			logging.Sweep.Printf("shutting down")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs one pass and returns the number of blobs deleted. Per-file
// errors are logged and do not abort the rest of the pass.
func (s *Sweeper) Sweep(ctx context.Context) int {
	objects, err := s.Storage.List(ctx)
	if err != nil {
		logging.Sweep.Printf("list failed: %v", err)
		return 0
	}

	now := time.Now()
	deleted := 0
	surviving := make(map[string]bool, len(objects))

	for _, obj := range objects {
		if now.Sub(obj.ModTime) <= s.MaxAge {
			surviving[obj.Name] = true
			continue
		}
		if err := s.Storage.Delete(ctx, obj.Name); err != nil && !errors.Is(err, ErrNotFound) {
			logging.Sweep.Printf("failed to delete %s: %v", obj.Name, err)
			surviving[obj.Name] = true
			continue
		}
		deleted++
	}

	if deleted > 0 {
		logging.Sweep.Printf("deleted %d expired blobs", deleted)
	}

	if s.PruneGroups && s.Store != nil {
		s.prune(ctx, surviving)
	}
	return deleted
}

// prune drops retention entries whose blobs have all been swept. Groups with
// at least one surviving blob are kept so partial archives stay reachable.
func (s *Sweeper) prune(ctx context.Context, surviving map[string]bool) {
	groupIDs, err := s.Store.GroupIDs(ctx)
	if err != nil {
		logging.Sweep.Printf("prune: listing groups failed: %v", err)
		return
	}

	pruned := 0
	for _, id := range groupIDs {
		members, err := s.Store.GetGroup(ctx, id)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				logging.Sweep.Printf("prune: reading group %s failed: %v", id, err)
			}
			continue
		}
		alive := false
		for _, name := range members {
			if surviving[name] {
				alive = true
				break
			}
		}
		if !alive {
			// The snapshot is stale for groups committed after List; confirm
			// against storage before dropping the entry.
			alive = s.anyBlobPresent(ctx, members)
		}
		if alive {
			continue
		}
		if err := s.Store.DeleteGroup(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
			logging.Sweep.Printf("prune: deleting group %s failed: %v", id, err)
			continue
		}
		pruned++
	}

	if pruned > 0 {
		logging.Sweep.Printf("pruned %d empty groups", pruned)
	}
}

// anyBlobPresent reports whether at least one member blob still exists. Errors
// other than a clean not-found keep the group; pruning can retry next pass.
func (s *Sweeper) anyBlobPresent(ctx context.Context, members []string) bool {
	for _, name := range members {
		rc, err := s.Storage.Load(ctx, name)
		if err == nil {
			rc.Close()
			return true
		}
		if !errors.Is(err, ErrNotFound) {
			logging.Sweep.Printf("prune: checking blob %s failed: %v", name, err)
			return true
		}
	}
	return false
}
