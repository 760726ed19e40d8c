package versions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vipinj/lockbox/internal/db"
	"github.com/vipinj/lockbox/internal/server/relpath"
	"github.com/vipinj/lockbox/internal/server/store"
)

type countingNotifier struct {
	signals int
}

func (n *countingNotifier) SignalNonEmpty() {
	n.signals++
}

func newTestService(t *testing.T) (*Service, *store.Store, *countingNotifier) {
	t.Helper()

	database, err := db.NewSqliteDB(db.WithMaxOpenConns(1))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	st, err := store.New(database)
	require.NoError(t, err)

	notifier := &countingNotifier{}
	return NewService(st, notifier), st, notifier
}

func registerPath(t *testing.T, st *store.Store, topDir int64) string {
	t.Helper()
	id, err := relpath.NewService(st).Allocate(context.Background(), topDir)
	require.NoError(t, err)
	return id
}

func TestUploadRejectsUnknownRelPath(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Upload(context.Background(), 1, "not-registered", []byte("data"))
	assert.ErrorIs(t, err, ErrUnknownRelPath)
}

func TestUploadBuildsChain(t *testing.T) {
	svc, st, notifier := newTestService(t)
	ctx := context.Background()
	rel := registerPath(t, st, 1)

	h1, err := svc.Upload(ctx, 1, rel, []byte("v1"))
	require.NoError(t, err)
	assert.Equal(t, Digest([]byte("v1")), h1)

	h2, err := svc.Upload(ctx, 1, rel, []byte("v2"))
	require.NoError(t, err)

	head, err := svc.Head(ctx, 1, rel)
	require.NoError(t, err)
	assert.Equal(t, h2, head)

	chain, err := svc.History(ctx, 1, rel)
	require.NoError(t, err)
	assert.Equal(t, []string{h2, h1}, chain)

	// one pending tuple and one signal per upload
	n, err := st.Count(ctx, store.TableQueue)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.Equal(t, 2, notifier.signals)
}

func TestUploadIdenticalContentIsIdempotent(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	rel := registerPath(t, st, 1)

	h1, err := svc.Upload(ctx, 1, rel, []byte("same"))
	require.NoError(t, err)
	h2, err := svc.Upload(ctx, 1, rel, []byte("same"))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	// one blob entry, prev pointer still the original (write-once)
	prev, ok, err := st.Get(ctx, store.TablePrev, h1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, prev, "prev of the first version stays the empty sentinel")

	// but both uploads enqueued a propagation tuple
	n, err := st.Count(ctx, store.TableQueue)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestUploadRejectsEmptyPayload(t *testing.T) {
	svc, st, _ := newTestService(t)
	rel := registerPath(t, st, 1)

	_, err := svc.Upload(context.Background(), 1, rel, nil)
	assert.ErrorIs(t, err, ErrEmptyPayload)
}

func TestDownload(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	rel := registerPath(t, st, 1)

	h1, err := svc.Upload(ctx, 1, rel, []byte("v1"))
	require.NoError(t, err)
	_, err = svc.Upload(ctx, 1, rel, []byte("v2"))
	require.NoError(t, err)

	// by hash
	payload, err := svc.Download(ctx, 1, rel, h1)
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), payload)

	// head when hash omitted
	payload, err = svc.Download(ctx, 1, rel, "")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), payload)

	_, err = svc.Download(ctx, 1, rel, "missinghash")
	assert.ErrorIs(t, err, ErrNoSuchVersion)
}

func TestDownloadNoVersionsYet(t *testing.T) {
	svc, st, _ := newTestService(t)
	rel := registerPath(t, st, 1)

	_, err := svc.Download(context.Background(), 1, rel, "")
	assert.ErrorIs(t, err, ErrNoSuchVersion)
}

func TestHistoryChainIsAcyclic(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	rel := registerPath(t, st, 1)

	var last string
	for _, payload := range []string{"a", "b", "c", "d"} {
		h, err := svc.Upload(ctx, 1, rel, []byte(payload))
		require.NoError(t, err)
		last = h
	}

	chain, err := svc.History(ctx, 1, rel)
	require.NoError(t, err)
	require.Len(t, chain, 4)
	assert.Equal(t, last, chain[0])

	seen := make(map[string]bool)
	for _, h := range chain {
		assert.False(t, seen[h])
		seen[h] = true
	}
}

func TestHistoryDetectsCorruptChain(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	rel := registerPath(t, st, 1)

	h, err := svc.Upload(ctx, 1, rel, []byte("v1"))
	require.NoError(t, err)

	// sabotage: point the hash at itself
	require.NoError(t, st.Put(ctx, store.TablePrev, h, []byte(h)))

	_, err = svc.History(ctx, 1, rel)
	assert.Error(t, err)
}
