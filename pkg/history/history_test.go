package history_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/fedlens/runwatch/pkg/errors"
	"github.com/fedlens/runwatch/pkg/history"
	"github.com/fedlens/runwatch/run"
)

func backends(t *testing.T) map[string]history.Store {
	t.Helper()

	badgerStore, err := history.NewBadger(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = badgerStore.Close() })

	return map[string]history.Store{
		"memory": history.NewInMemory(),
		"badger": badgerStore,
	}
}

func session(id, runID string, createdAt time.Time) run.Session {
	return run.Session{
		ID:        id,
		RunID:     runID,
		Status:    run.Ready,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
		Rounds: []run.RoundRecord{
			{Round: 1, GlobalLoss: 0.9, RunID: runID},
		},
	}
}

func TestStoreSaveAndGet(t *testing.T) {
	t.Parallel()

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sess := session("s1", "abc", time.Now().UTC().Truncate(time.Second))

			require.NoError(t, store.Save(ctx, sess))

			got, err := store.Get(ctx, "abc")
			require.NoError(t, err)
			assert.Equal(t, sess.ID, got.ID)
			assert.Equal(t, run.Ready, got.Status)
			require.Len(t, got.Rounds, 1)
			assert.Equal(t, 1, got.Rounds[0].Round)
		})
	}
}

func TestStoreSaveUpserts(t *testing.T) {
	t.Parallel()

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sess := session("s1", "abc", time.Now().UTC())

			require.NoError(t, store.Save(ctx, sess))

			sess.Status = run.Failed
			require.NoError(t, store.Save(ctx, sess))

			got, err := store.Get(ctx, "abc")
			require.NoError(t, err)
			assert.Equal(t, run.Failed, got.Status)

			_, total, err := store.List(ctx, 0, 10)
			require.NoError(t, err)
			assert.Equal(t, uint64(1), total)
		})
	}
}

func TestStoreListNewestFirst(t *testing.T) {
	t.Parallel()

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now().UTC().Truncate(time.Second)

			require.NoError(t, store.Save(ctx, session("s1", "run-1", base)))
			require.NoError(t, store.Save(ctx, session("s2", "run-2", base.Add(time.Minute))))
			require.NoError(t, store.Save(ctx, session("s3", "run-3", base.Add(2*time.Minute))))

			got, total, err := store.List(ctx, 0, 2)
			require.NoError(t, err)
			assert.Equal(t, uint64(3), total)
			require.Len(t, got, 2)
			assert.Equal(t, "run-3", got[0].RunID)
			assert.Equal(t, "run-2", got[1].RunID)

			rest, _, err := store.List(ctx, 2, 2)
			require.NoError(t, err)
			require.Len(t, rest, 1)
			assert.Equal(t, "run-1", rest[0].RunID)

			none, _, err := store.List(ctx, 10, 2)
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestStoreErrors(t *testing.T) {
	t.Parallel()

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			assert.ErrorIs(t, store.Save(ctx, run.Session{}), pkgerrors.ErrInvalidData)

			_, err := store.Get(ctx, "")
			assert.ErrorIs(t, err, pkgerrors.ErrEmptyRunID)

			_, err = store.Get(ctx, "missing")
			assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
		})
	}
}

func TestBadgerPersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	store, err := history.NewBadger(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, session("s1", "abc", time.Now().UTC())))
	require.NoError(t, store.Close())

	reopened, err := history.NewBadger(dir)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)
}

func TestNewStoreSelectsBackend(t *testing.T) {
	t.Parallel()

	mem, err := history.NewStore("")
	require.NoError(t, err)
	assert.NoError(t, mem.Close())

	persistent, err := history.NewStore(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, persistent.Close())
}
