package updater

import (
	"context"
	"fmt"
	"sync"

	"github.com/vipinj/lockbox/internal/change"
	"github.com/vipinj/lockbox/internal/server/store"
)

// Queue wraps the durable pending-change table with the single
// monitor (one lock, one condition) that workers and producers share.
// Owning both here means correctness never depends on lock acquisition
// order across separate mutexes.
type Queue struct {
	store *store.Store
	mu    sync.Mutex
	cond  *sync.Cond
}

func NewQueue(s *store.Store) *Queue {
	q := &Queue{store: s}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// SignalNonEmpty wakes every waiting worker. Producers call it after
// enqueueing; Shutdown calls it so cancelled workers can observe their
// context. The broadcast happens under the monitor lock so it cannot
// slip between a waiter's emptiness check and its wait.
func (q *Queue) SignalNonEmpty() {
	q.mu.Lock()
	q.cond.Broadcast()
	q.mu.Unlock()
}

// WaitNonEmpty blocks until the queue has at least one entry or ctx is
// cancelled. Spurious wakeups are tolerated by re-checking emptiness.
func (q *Queue) WaitNonEmpty(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := q.store.Count(ctx, store.TableQueue)
		if err != nil {
			return fmt.Errorf("updater: queue count: %w", err)
		}
		if n > 0 {
			return nil
		}

		q.cond.Wait()
	}
}

// TakeFirst dequeues the lexicographically smallest key, appending it
// to the change log before removing it from the queue. The whole
// dequeue-and-log step holds the queue lock, so no two workers can
// claim the same entry.
func (q *Queue) TakeFirst(ctx context.Context) (*change.Tuple, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	key, ok, err := q.store.First(ctx, store.TableQueue)
	if err != nil {
		return nil, false, fmt.Errorf("updater: queue first: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	if err := q.store.Put(ctx, store.TableLog, key, []byte{}); err != nil {
		return nil, false, fmt.Errorf("updater: append change log: %w", err)
	}
	if err := q.store.Delete(ctx, store.TableQueue, key); err != nil {
		return nil, false, fmt.Errorf("updater: remove queue entry: %w", err)
	}

	tuple, err := change.ParseKey(key)
	if err != nil {
		// logged and removed, but undecodable: skip it rather than
		// wedging the queue on a poison entry
		return nil, false, fmt.Errorf("updater: %w", err)
	}
	return tuple, true, nil
}

// Pending returns the number of entries awaiting propagation.
func (q *Queue) Pending(ctx context.Context) (int64, error) {
	return q.store.Count(ctx, store.TableQueue)
}
