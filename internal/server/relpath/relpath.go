// Package relpath allocates globally unique relative-path identifiers
// within a top directory and implements the RPC-visible advisory lock
// that serializes edits to a single logical path.
package relpath

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/vipinj/lockbox/internal/server/store"
)

var ErrLockNotHeld = errors.New("relpath: path lock not held")

// creationLockKey scopes the allocator's internal mutex to one top
// directory, so different top directories allocate without contention.
const creationLockKey = "create"

type Service struct {
	store *store.Store
}

func NewService(s *store.Store) *Service {
	return &Service{store: s}
}

// Key returns the storage key for a relative path scoped to a top
// directory.
func Key(topDir int64, relPath string) string {
	return fmt.Sprintf("%d/%s", topDir, relPath)
}

// Allocate returns a fresh relative-path identifier for topDir. A
// per-top-dir mutex plus a check-then-reserve loop makes the
// uniqueness guarantee exact rather than probabilistic: a candidate
// GUID already present in the head table is discarded and a new one
// drawn.
func (s *Service) Allocate(ctx context.Context, topDir int64) (string, error) {
	lock := s.store.LockFor(store.TableRelPathHead, fmt.Sprintf("%d/%s", topDir, creationLockKey))
	lock.Lock()
	defer lock.Unlock()

	for {
		candidate := uuid.NewString()
		_, taken, err := s.store.Get(ctx, store.TableRelPathHead, Key(topDir, candidate))
		if err != nil {
			return "", fmt.Errorf("relpath: check candidate: %w", err)
		}
		if taken {
			slog.Warn("relpath guid collision, retrying", "topDir", topDir, "relPath", candidate)
			continue
		}

		// reserve with an empty head so later uploads can tell a known
		// path with no versions from an unknown path
		if err := s.store.Put(ctx, store.TableRelPathHead, Key(topDir, candidate), []byte{}); err != nil {
			return "", fmt.Errorf("relpath: reserve candidate: %w", err)
		}
		return candidate, nil
	}
}

// AcquireLock grants the advisory path lock if no one holds it. It
// returns the collaborators who should be told about the lock so the
// client can prompt them. holder identifies the requesting user and is
// recorded for release checking.
func (s *Service) AcquireLock(ctx context.Context, topDir int64, relPath, holder string) (bool, []string, error) {
	key := Key(topDir, relPath)

	mu := s.store.LockFor(store.TablePathLock, key)
	mu.Lock()
	defer mu.Unlock()

	_, held, err := s.store.Get(ctx, store.TablePathLock, key)
	if err != nil {
		return false, nil, fmt.Errorf("relpath: read lock state: %w", err)
	}
	if held {
		return false, nil, nil
	}

	if err := s.store.Put(ctx, store.TablePathLock, key, []byte(holder)); err != nil {
		return false, nil, fmt.Errorf("relpath: set lock: %w", err)
	}

	notify, err := s.editors(ctx, topDir)
	if err != nil {
		return false, nil, err
	}
	return true, notify, nil
}

// ReleaseLock clears the hold state so a subsequent acquire succeeds.
// Releasing a lock that is not held reports ErrLockNotHeld.
func (s *Service) ReleaseLock(ctx context.Context, topDir int64, relPath string) error {
	key := Key(topDir, relPath)

	mu := s.store.LockFor(store.TablePathLock, key)
	mu.Lock()
	defer mu.Unlock()

	_, held, err := s.store.Get(ctx, store.TablePathLock, key)
	if err != nil {
		return fmt.Errorf("relpath: read lock state: %w", err)
	}
	if !held {
		return ErrLockNotHeld
	}

	return s.store.Delete(ctx, store.TablePathLock, key)
}

func (s *Service) editors(ctx context.Context, topDir int64) ([]string, error) {
	value, ok, err := s.store.Get(ctx, store.TableTopDirEditors, fmt.Sprintf("%d", topDir))
	if err != nil {
		return nil, fmt.Errorf("relpath: read editors: %w", err)
	}
	if !ok || len(value) == 0 {
		return nil, nil
	}
	return strings.Split(string(value), ","), nil
}
