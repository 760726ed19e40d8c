package updater

import (
	"context"
	"fmt"

	"github.com/vipinj/lockbox/internal/change"
	"github.com/vipinj/lockbox/internal/server/store"
)

// DeviceQueue reads the per-device sync queues the engine appends to.
type DeviceQueue struct {
	store *store.Store
}

func NewDeviceQueue(s *store.Store) *DeviceQueue {
	return &DeviceQueue{store: s}
}

// Drain returns and clears every tuple pending for device. The read
// and the clear run under the device key's lock so a concurrent
// fan-out append is never lost between them.
func (d *DeviceQueue) Drain(ctx context.Context, device string) ([]*change.Tuple, error) {
	mu := d.store.LockFor(store.TableDeviceSync, device)
	mu.Lock()
	defer mu.Unlock()

	value, ok, err := d.store.Get(ctx, store.TableDeviceSync, device)
	if err != nil {
		return nil, fmt.Errorf("updater: read device queue %s: %w", device, err)
	}
	if !ok || len(value) == 0 {
		return nil, nil
	}

	if err := d.store.Delete(ctx, store.TableDeviceSync, device); err != nil {
		return nil, fmt.Errorf("updater: clear device queue %s: %w", device, err)
	}
	return change.SplitList(string(value)), nil
}

// Peek returns the pending tuples without consuming them.
func (d *DeviceQueue) Peek(ctx context.Context, device string) ([]*change.Tuple, error) {
	value, ok, err := d.store.Get(ctx, store.TableDeviceSync, device)
	if err != nil {
		return nil, fmt.Errorf("updater: read device queue %s: %w", device, err)
	}
	if !ok {
		return nil, nil
	}
	return change.SplitList(string(value)), nil
}
