package updater

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vipinj/lockbox/internal/change"
	"github.com/vipinj/lockbox/internal/db"
	"github.com/vipinj/lockbox/internal/server/store"
)

type recordingNotifier struct {
	mu     sync.Mutex
	nudges []string
}

func (n *recordingNotifier) Nudge(device string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nudges = append(n.nudges, device)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.nudges)
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *Queue, *store.Store) {
	t.Helper()

	database, err := db.NewSqliteDB(db.WithMaxOpenConns(1))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	st, err := store.New(database)
	require.NoError(t, err)

	queue := NewQueue(st)
	opts = append([]Option{WithPace(time.Millisecond)}, opts...)
	engine := New(st, queue, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		engine.Shutdown(ctx)
	})
	return engine, queue, st
}

func seedTopDir(t *testing.T, st *store.Store, topDir int64, editors map[string][]string) {
	t.Helper()
	ctx := context.Background()

	var editorList string
	for editor, devices := range editors {
		if editorList != "" {
			editorList += ","
		}
		editorList += editor
		for _, d := range devices {
			require.NoError(t, st.Update(ctx, store.TableUserDevice, editor, []byte(d)))
		}
	}
	require.NoError(t, st.Put(ctx, store.TableTopDirEditors, fmt.Sprintf("%d", topDir), []byte(editorList)))
}

func enqueue(t *testing.T, st *store.Store, q *Queue, tuple *change.Tuple) {
	t.Helper()
	require.NoError(t, st.Put(context.Background(), store.TableQueue, tuple.Key(), []byte{}))
	q.SignalNonEmpty()
}

func TestEngineFansOutToAllDevices(t *testing.T) {
	notifier := &recordingNotifier{}
	engine, queue, st := newTestEngine(t, WithNotifier(notifier))
	ctx := context.Background()

	// topDir T1 edited by a (devices D1, D2) and b (device D3)
	seedTopDir(t, st, 1, map[string][]string{
		"a@x.com": {"1", "2"},
		"b@x.com": {"3"},
	})

	tuple := change.New(1, "R1", "H1")
	enqueue(t, st, queue, tuple)

	require.NoError(t, engine.Start(ctx, 1))

	assert.Eventually(t, func() bool {
		n, err := queue.Pending(ctx)
		return err == nil && n == 0 && notifier.count() == 3
	}, 5*time.Second, 10*time.Millisecond)

	// log holds the processed tuple, queue is empty
	_, ok, err := st.Get(ctx, store.TableLog, tuple.Key())
	require.NoError(t, err)
	assert.True(t, ok)

	// each device queue holds exactly the one tuple
	for _, device := range []string{"1", "2", "3"} {
		value, ok, err := st.Get(ctx, store.TableDeviceSync, device)
		require.NoError(t, err)
		require.True(t, ok, "device %s", device)

		tuples := change.SplitList(string(value))
		require.Len(t, tuples, 1, "device %s", device)
		assert.Equal(t, "R1", tuples[0].RelPath)
		assert.Equal(t, "H1", tuples[0].Hash)
	}
}

func TestEngineDrainsEverythingExactlyOnce(t *testing.T) {
	engine, queue, st := newTestEngine(t)
	ctx := context.Background()

	seedTopDir(t, st, 1, map[string][]string{"a@x.com": {"1"}})

	const n = 25
	keys := make(map[string]bool, n)
	for i := range n {
		tuple := change.New(1, fmt.Sprintf("R%d", i), fmt.Sprintf("H%d", i))
		enqueue(t, st, queue, tuple)
		keys[tuple.Key()] = true
	}

	// several workers share the queue
	require.NoError(t, engine.Start(ctx, 3))

	assert.Eventually(t, func() bool {
		pending, err := queue.Pending(ctx)
		return err == nil && pending == 0
	}, 10*time.Second, 10*time.Millisecond)

	// every entry appears exactly once in the log
	logged, err := st.Count(ctx, store.TableLog)
	require.NoError(t, err)
	assert.EqualValues(t, n, logged)
	for key := range st.Iterate(ctx, store.TableLog) {
		assert.True(t, keys[key], "unexpected log entry %s", key)
	}

	// the device received all n tuples
	assert.Eventually(t, func() bool {
		value, _, err := st.Get(ctx, store.TableDeviceSync, "1")
		return err == nil && len(change.SplitList(string(value))) == n
	}, 10*time.Second, 10*time.Millisecond)
}

func TestEngineIncrementDecrement(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	assert.Equal(t, 0, engine.Workers())

	engine.Increment()
	engine.Increment()
	assert.Equal(t, 2, engine.Workers())

	engine.Decrement()
	assert.Equal(t, 1, engine.Workers())

	engine.Decrement()
	assert.Equal(t, 0, engine.Workers())

	// decrement on an empty pool is a no-op
	engine.Decrement()
	assert.Equal(t, 0, engine.Workers())
}

func TestEngineShutdownStopsWorkers(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	require.NoError(t, engine.Start(context.Background(), 2))
	assert.Equal(t, 2, engine.Workers())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, engine.Shutdown(ctx))
	assert.Equal(t, 0, engine.Workers())
}

func TestEngineProcessesChronologically(t *testing.T) {
	engine, queue, st := newTestEngine(t)
	ctx := context.Background()

	seedTopDir(t, st, 1, map[string][]string{"a@x.com": {"9"}})

	t0 := time.Now().UTC()
	older := &change.Tuple{Timestamp: t0.Add(-time.Hour), TopDir: 1, RelPath: "old", Hash: "h-old"}
	newer := &change.Tuple{Timestamp: t0, TopDir: 1, RelPath: "new", Hash: "h-new"}

	// enqueue newest first: the worker must still take the oldest key
	enqueue(t, st, queue, newer)
	enqueue(t, st, queue, older)

	require.NoError(t, engine.Start(ctx, 1))

	assert.Eventually(t, func() bool {
		pending, err := queue.Pending(ctx)
		return err == nil && pending == 0
	}, 5*time.Second, 10*time.Millisecond)

	value, ok, err := st.Get(ctx, store.TableDeviceSync, "9")
	require.NoError(t, err)
	require.True(t, ok)

	tuples := change.SplitList(string(value))
	require.Len(t, tuples, 2)
	assert.Equal(t, "old", tuples[0].RelPath)
	assert.Equal(t, "new", tuples[1].RelPath)
}

func TestQueueTakeFirstEmpty(t *testing.T) {
	_, queue, _ := newTestEngine(t)

	_, ok, err := queue.TakeFirst(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeviceQueueDrain(t *testing.T) {
	_, _, st := newTestEngine(t)
	ctx := context.Background()
	dq := NewDeviceQueue(st)

	// empty drain
	tuples, err := dq.Drain(ctx, "5")
	require.NoError(t, err)
	assert.Empty(t, tuples)

	a := change.New(1, "ra", "ha")
	b := change.New(1, "rb", "hb")
	require.NoError(t, st.Update(ctx, store.TableDeviceSync, "5", []byte(a.Key())))
	require.NoError(t, st.Update(ctx, store.TableDeviceSync, "5", []byte(b.Key())))

	// peek leaves entries in place
	tuples, err = dq.Peek(ctx, "5")
	require.NoError(t, err)
	assert.Len(t, tuples, 2)

	// drain consumes them
	tuples, err = dq.Drain(ctx, "5")
	require.NoError(t, err)
	require.Len(t, tuples, 2)
	assert.Equal(t, "ra", tuples[0].RelPath)

	tuples, err = dq.Drain(ctx, "5")
	require.NoError(t, err)
	assert.Empty(t, tuples)
}
