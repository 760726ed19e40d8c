// Package updater is the update-propagation engine: a supervised,
// dynamically sized pool of workers that drains the pending-change
// queue, archives processed entries to the change log, and fans each
// change out to the sync queues of every device of every editor of the
// affected top directory.
package updater

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/vipinj/lockbox/internal/change"
	"github.com/vipinj/lockbox/internal/server/store"
)

const (
	// pacing delay between iterations, a cheap backpressure valve so a
	// hot loop cannot starve the queue lock under heavy write load
	defaultPace = 100 * time.Millisecond

	resolveCacheSize = 1024
	resolveCacheTTL  = 5 * time.Second
)

// DeviceNotifier is nudged after a tuple lands on a device's sync
// queue, so connected devices poll immediately instead of on a timer.
type DeviceNotifier interface {
	Nudge(deviceID string)
}

type worker struct {
	cancel context.CancelFunc
}

type Engine struct {
	store    *store.Store
	queue    *Queue
	notifier DeviceNotifier
	pace     time.Duration

	// editor and device lists change rarely relative to fan-out volume;
	// a short TTL keeps shares visible quickly without a store read per
	// tuple per worker
	editors *expirable.LRU[string, []string]
	devices *expirable.LRU[string, []string]

	mu      sync.Mutex
	workers []worker
	wg      sync.WaitGroup
}

type Option func(*Engine)

// WithNotifier attaches a hub that is nudged per device after fan-out.
func WithNotifier(n DeviceNotifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

// WithPace overrides the per-iteration pacing delay.
func WithPace(d time.Duration) Option {
	return func(e *Engine) {
		e.pace = d
	}
}

func New(s *store.Store, q *Queue, opts ...Option) *Engine {
	e := &Engine{
		store:   s,
		queue:   q,
		pace:    defaultPace,
		editors: expirable.NewLRU[string, []string](resolveCacheSize, nil, resolveCacheTTL),
		devices: expirable.NewLRU[string, []string](resolveCacheSize, nil, resolveCacheTTL),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start spawns n workers and re-signals any entries a previous run
// left in the durable queue, so a crash between enqueue and dequeue
// loses nothing.
func (e *Engine) Start(ctx context.Context, n int) error {
	pending, err := e.queue.Pending(ctx)
	if err != nil {
		return fmt.Errorf("updater: start: %w", err)
	}
	if pending > 0 {
		slog.Info("updater recovering queued changes", "pending", pending)
	}

	for range n {
		e.Increment()
	}
	e.queue.SignalNonEmpty()
	return nil
}

// Increment adds one worker to the pool.
func (e *Engine) Increment() {
	ctx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	e.workers = append(e.workers, worker{cancel: cancel})
	n := len(e.workers)
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run(ctx)
	}()

	slog.Info("updater worker added", "workers", n)
}

// Decrement signals the most recently added worker to stop after its
// current iteration. Cancellation is cooperative, never mid-operation.
func (e *Engine) Decrement() {
	e.mu.Lock()
	if len(e.workers) == 0 {
		e.mu.Unlock()
		return
	}
	w := e.workers[len(e.workers)-1]
	e.workers = e.workers[:len(e.workers)-1]
	n := len(e.workers)
	e.mu.Unlock()

	w.cancel()
	// wake it if it is parked on the condition
	e.queue.SignalNonEmpty()
	slog.Info("updater worker removed", "workers", n)
}

// Workers reports the current pool size.
func (e *Engine) Workers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.workers)
}

// Shutdown cancels every worker and waits for them to exit, bounded by
// ctx.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	for _, w := range e.workers {
		w.cancel()
	}
	e.workers = nil
	e.mu.Unlock()

	e.queue.SignalNonEmpty()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("updater stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("updater: shutdown: %w", ctx.Err())
	}
}

func (e *Engine) run(ctx context.Context) {
	for {
		if err := e.queue.WaitNonEmpty(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			// store hiccup: log and retry, a dead worker would silently
			// shrink the pool
			slog.Error("updater wait failed", "error", err)
			e.sleep(ctx)
			continue
		}

		tuple, ok, err := e.queue.TakeFirst(ctx)
		if err != nil {
			slog.Error("updater dequeue failed", "error", err)
			e.sleep(ctx)
			continue
		}
		if ok {
			if err := e.fanOut(ctx, tuple); err != nil {
				slog.Error("updater fan-out failed", "tuple", tuple, "error", err)
			}
		}

		if ctx.Err() != nil {
			return
		}
		e.sleep(ctx)
	}
}

func (e *Engine) sleep(ctx context.Context) {
	select {
	case <-time.After(e.pace):
	case <-ctx.Done():
	}
}

// fanOut appends the tuple to the sync queue of every device of every
// editor of the tuple's top directory. Device queues are independently
// locked, so workers fanning out different tuples only contend when
// they touch the same device.
func (e *Engine) fanOut(ctx context.Context, tuple *change.Tuple) error {
	editors, err := e.resolveEditors(ctx, tuple.TopDir)
	if err != nil {
		return err
	}

	for _, editor := range editors {
		devices, err := e.resolveDevices(ctx, editor)
		if err != nil {
			return err
		}

		for _, device := range devices {
			mu := e.store.LockFor(store.TableDeviceSync, device)
			mu.Lock()
			err := e.store.Update(ctx, store.TableDeviceSync, device, []byte(tuple.Key()))
			mu.Unlock()
			if err != nil {
				return fmt.Errorf("updater: append device queue %s: %w", device, err)
			}

			slog.Debug("change propagated", "device", device, "editor", editor, "tuple", tuple)
			if e.notifier != nil {
				e.notifier.Nudge(device)
			}
		}
	}
	return nil
}

func (e *Engine) resolveEditors(ctx context.Context, topDir int64) ([]string, error) {
	key := fmt.Sprintf("%d", topDir)
	if editors, ok := e.editors.Get(key); ok {
		return editors, nil
	}

	value, ok, err := e.store.Get(ctx, store.TableTopDirEditors, key)
	if err != nil {
		return nil, fmt.Errorf("updater: resolve editors of %d: %w", topDir, err)
	}
	if !ok || len(value) == 0 {
		return nil, nil
	}

	editors := strings.Split(string(value), ",")
	e.editors.Add(key, editors)
	return editors, nil
}

func (e *Engine) resolveDevices(ctx context.Context, editor string) ([]string, error) {
	if devices, ok := e.devices.Get(editor); ok {
		return devices, nil
	}

	value, ok, err := e.store.Get(ctx, store.TableUserDevice, editor)
	if err != nil {
		return nil, fmt.Errorf("updater: resolve devices of %s: %w", editor, err)
	}
	if !ok || len(value) == 0 {
		return nil, nil
	}

	devices := strings.Split(string(value), ",")
	e.devices.Add(editor, devices)
	return devices, nil
}
