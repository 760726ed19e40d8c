// Package versions is the content-addressed version store. Each
// accepted upload becomes one link in a per-path chain of content
// hashes, with the raw payload stored once per hash, and enqueues a
// pending-change tuple for the propagation engine.
package versions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/vipinj/lockbox/internal/change"
	"github.com/vipinj/lockbox/internal/server/relpath"
	"github.com/vipinj/lockbox/internal/server/store"
)

var (
	ErrUnknownRelPath = errors.New("versions: relative path not registered for top directory")
	ErrNoSuchVersion  = errors.New("versions: no such version")
	ErrEmptyPayload   = errors.New("versions: empty payload")
)

// maxChainWalk bounds Prev traversal so a corrupted chain cannot spin
// forever.
const maxChainWalk = 1 << 16

// Notifier is signalled after a tuple lands in the pending queue.
type Notifier interface {
	SignalNonEmpty()
}

type Service struct {
	store    *store.Store
	notifier Notifier
}

func NewService(s *store.Store, n Notifier) *Service {
	return &Service{store: s, notifier: n}
}

// Digest computes the content address of a payload.
func Digest(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Upload accepts one version of one path. The blob and prev-pointer
// writes are write-once, so re-uploading identical content is
// idempotent at the storage layer. The change tuple is enqueued only
// after every chain write has completed, so a worker that dequeues it
// can always resolve head, prev and blob consistently.
func (s *Service) Upload(ctx context.Context, topDir int64, relPath string, payload []byte) (string, error) {
	if len(payload) == 0 {
		return "", ErrEmptyPayload
	}

	headKey := relpath.Key(topDir, relPath)
	previous, known, err := s.store.Get(ctx, store.TableRelPathHead, headKey)
	if err != nil {
		return "", fmt.Errorf("versions: read head: %w", err)
	}
	if !known {
		return "", fmt.Errorf("%w: %s", ErrUnknownRelPath, headKey)
	}

	hash := Digest(payload)
	if len(previous) == 0 {
		slog.Debug("first upload for path", "topDir", topDir, "relPath", relPath)
	}

	if err := s.store.PutOnce(ctx, store.TablePrev, hash, previous); err != nil {
		return "", fmt.Errorf("versions: write prev pointer: %w", err)
	}
	if err := s.store.PutOnce(ctx, store.TableBlob, hash, payload); err != nil {
		return "", fmt.Errorf("versions: write blob: %w", err)
	}
	if err := s.store.Put(ctx, store.TableRelPathHead, headKey, []byte(hash)); err != nil {
		return "", fmt.Errorf("versions: move head: %w", err)
	}

	tuple := change.New(topDir, relPath, hash)
	if err := s.store.Put(ctx, store.TableQueue, tuple.Key(), []byte{}); err != nil {
		return "", fmt.Errorf("versions: enqueue change: %w", err)
	}
	if s.notifier != nil {
		s.notifier.SignalNonEmpty()
	}

	slog.Info("package uploaded",
		"topDir", topDir,
		"relPath", relPath,
		"hash", hash[:12],
		"size", humanize.Bytes(uint64(len(payload))))
	return hash, nil
}

// Download returns the payload for hash, or for the current head of
// the path when hash is empty.
func (s *Service) Download(ctx context.Context, topDir int64, relPath, hash string) ([]byte, error) {
	if hash == "" {
		head, err := s.Head(ctx, topDir, relPath)
		if err != nil {
			return nil, err
		}
		if head == "" {
			return nil, ErrNoSuchVersion
		}
		hash = head
	}

	payload, ok, err := s.store.Get(ctx, store.TableBlob, hash)
	if err != nil {
		return nil, fmt.Errorf("versions: read blob: %w", err)
	}
	if !ok {
		return nil, ErrNoSuchVersion
	}
	return payload, nil
}

// Head returns the most recently accepted hash for the path, empty if
// the path has no versions yet.
func (s *Service) Head(ctx context.Context, topDir int64, relPath string) (string, error) {
	value, known, err := s.store.Get(ctx, store.TableRelPathHead, relpath.Key(topDir, relPath))
	if err != nil {
		return "", fmt.Errorf("versions: read head: %w", err)
	}
	if !known {
		return "", fmt.Errorf("%w: %d/%s", ErrUnknownRelPath, topDir, relPath)
	}
	return string(value), nil
}

// History walks the prev chain from the current head back to the
// first version, newest first. The walk is bounded and refuses cycles.
func (s *Service) History(ctx context.Context, topDir int64, relPath string) ([]string, error) {
	head, err := s.Head(ctx, topDir, relPath)
	if err != nil {
		return nil, err
	}

	var chain []string
	seen := make(map[string]bool)
	for hash := head; hash != ""; {
		if seen[hash] || len(chain) >= maxChainWalk {
			return nil, fmt.Errorf("versions: version chain corrupt at %s", hash)
		}
		seen[hash] = true
		chain = append(chain, hash)

		prev, ok, err := s.store.Get(ctx, store.TablePrev, hash)
		if err != nil {
			return nil, fmt.Errorf("versions: read prev pointer: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("versions: dangling prev pointer at %s", hash)
		}
		hash = string(prev)
	}
	return chain, nil
}
