package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vipinj/lockbox/internal/db"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	database, err := db.NewSqliteDB(db.WithMaxOpenConns(1))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	s, err := New(database)
	require.NoError(t, err)
	return s
}

func TestStoreGetPut(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, TableBlob, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, TableBlob, "k", []byte("v1")))
	v, ok, err := s.Get(ctx, TableBlob, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v1"), v)

	// overwrite
	require.NoError(t, s.Put(ctx, TableBlob, "k", []byte("v2")))
	v, _, err = s.Get(ctx, TableBlob, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), v)
}

func TestStorePutOnceIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutOnce(ctx, TableBlob, "h", []byte("payload")))
	require.NoError(t, s.PutOnce(ctx, TableBlob, "h", []byte("different")))

	v, ok, err := s.Get(ctx, TableBlob, "h")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("payload"), v, "first write wins")
}

func TestStoreUpdateAppends(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, TableUserDevice, "a@x.com", []byte("1")))
	require.NoError(t, s.Update(ctx, TableUserDevice, "a@x.com", []byte("2")))
	require.NoError(t, s.Update(ctx, TableUserDevice, "a@x.com", []byte("3")))

	v, ok, err := s.Get(ctx, TableUserDevice, "a@x.com")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1,2,3", string(v))
}

func TestStoreTablesAreIsolated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, TableQueue, "k", []byte("queue")))
	require.NoError(t, s.Put(ctx, TableLog, "k", []byte("log")))

	v, _, err := s.Get(ctx, TableQueue, "k")
	require.NoError(t, err)
	assert.Equal(t, "queue", string(v))

	require.NoError(t, s.Delete(ctx, TableQueue, "k"))
	_, ok, err := s.Get(ctx, TableQueue, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	// deleting from the queue must not touch the log
	v, ok, err = s.Get(ctx, TableLog, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "log", string(v))
}

func TestStoreFirstAndIterateOrdered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.First(ctx, TableQueue)
	require.NoError(t, err)
	assert.False(t, ok)

	for _, k := range []string{"b", "c", "a"} {
		require.NoError(t, s.Put(ctx, TableQueue, k, []byte{}))
	}

	first, ok, err := s.First(ctx, TableQueue)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a", first)

	var keys []string
	for k := range s.Iterate(ctx, TableQueue) {
		keys = append(keys, k)
	}
	assert.Equal(t, []string{"a", "b", "c"}, keys)

	n, err := s.Count(ctx, TableQueue)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestStoreNewIDMonotonic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var users []int64
	for range 5 {
		id, err := s.NewID(ctx, IDUser)
		require.NoError(t, err)
		users = append(users, id)
	}
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, users)

	// separate kinds count independently
	id, err := s.NewID(ctx, IDDevice)
	require.NoError(t, err)
	assert.EqualValues(t, 1, id)
}

func TestStoreNewIDConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const n = 64
	ids := make(chan int64, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for range n {
		go func() {
			defer wg.Done()
			id, err := s.NewID(ctx, IDTopDir)
			assert.NoError(t, err)
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestLockForSameKeySameMutex(t *testing.T) {
	s := newTestStore(t)

	a := s.LockFor(TableDeviceSync, "7")
	b := s.LockFor(TableDeviceSync, "7")
	c := s.LockFor(TableDeviceSync, "8")
	d := s.LockFor(TableQueue, "7")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.NotSame(t, a, d, "same key in different tables must not share a lock")
}

func TestStoreUpdateConcurrentAppendsLoseNothing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const n = 32
	var wg sync.WaitGroup
	wg.Add(n)
	for i := range n {
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Update(ctx, TableDeviceSync, "dev", []byte(fmt.Sprintf("e%d", i))))
		}(i)
	}
	wg.Wait()

	v, ok, err := s.Get(ctx, TableDeviceSync, "dev")
	require.NoError(t, err)
	require.True(t, ok)

	seen := make(map[string]bool)
	for _, e := range splitComma(string(v)) {
		seen[e] = true
	}
	assert.Len(t, seen, n)
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return out
}
