package checkpoint_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/meridianlabs-io/convoy/pkg/convoy/checkpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactories builds every Store implementation for contract tests.
func storeFactories(t *testing.T) map[string]func(t *testing.T) checkpoint.Store {
	return map[string]func(t *testing.T) checkpoint.Store{
		"memory": func(t *testing.T) checkpoint.Store {
			s := checkpoint.NewMemoryStore()
			t.Cleanup(func() { s.Close() })
			return s
		},
		"sqlite": func(t *testing.T) checkpoint.Store {
			s, err := checkpoint.NewSQLiteStore(filepath.Join(t.TempDir(), "cp.db"))
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func TestStore_PutAndLatest(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			_, err := store.Latest(ctx, "t1")
			assert.ErrorIs(t, err, checkpoint.ErrNotFound)

			first := checkpoint.New("t1", 1, []byte(`{"phase":"init"}`))
			require.NoError(t, store.Put(ctx, first))

			second := checkpoint.New("t1", 2, []byte(`{"phase":"discovery"}`))
			second.WithParent(first.ID)
			require.NoError(t, store.Put(ctx, second))

			latest, err := store.Latest(ctx, "t1")
			require.NoError(t, err)
			assert.Equal(t, second.ID, latest.ID)
			assert.Equal(t, 2, latest.Sequence)
			assert.Equal(t, first.ID, latest.ParentID)
			assert.JSONEq(t, `{"phase":"discovery"}`, string(latest.State))
		})
	}
}

func TestStore_PutRejectsDuplicateID(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			cp := checkpoint.New("t1", 1, []byte(`{}`))
			require.NoError(t, store.Put(ctx, cp))
			assert.ErrorIs(t, store.Put(ctx, cp), checkpoint.ErrDuplicateID)
		})
	}
}

func TestStore_Get(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			cp := checkpoint.New("t1", 1, []byte(`{"phase":"init"}`))
			cp.WithPending("payment_confirm", "apr-1234")
			require.NoError(t, store.Put(ctx, cp))

			got, err := store.Get(ctx, cp.ID)
			require.NoError(t, err)
			assert.Equal(t, checkpoint.StatusAwaitingApproval, got.Status)
			assert.Equal(t, "payment_confirm", got.PendingNode)
			assert.Equal(t, "apr-1234", got.ApprovalID)

			_, err = store.Get(ctx, "cp-missing")
			assert.ErrorIs(t, err, checkpoint.ErrNotFound)
		})
	}
}

func TestStore_ListOrdersBySequence(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			// Insert out of order.
			for _, seq := range []int{3, 1, 2} {
				cp := checkpoint.New("t1", seq, []byte(`{}`))
				require.NoError(t, store.Put(ctx, cp))
			}
			require.NoError(t, store.Put(ctx, checkpoint.New("t2", 1, []byte(`{}`))))

			infos, err := store.List(ctx, "t1")
			require.NoError(t, err)
			require.Len(t, infos, 3)
			for i, info := range infos {
				assert.Equal(t, i+1, info.Sequence)
				assert.Equal(t, "t1", info.ThreadID)
				assert.Positive(t, info.Size)
			}
		})
	}
}

func TestStore_DeleteThread(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			require.NoError(t, store.Put(ctx, checkpoint.New("t1", 1, []byte(`{}`))))
			require.NoError(t, store.Put(ctx, checkpoint.New("t2", 1, []byte(`{}`))))

			require.NoError(t, store.DeleteThread(ctx, "t1"))

			_, err := store.Latest(ctx, "t1")
			assert.ErrorIs(t, err, checkpoint.ErrNotFound)
			_, err = store.Latest(ctx, "t2")
			assert.NoError(t, err)
		})
	}
}

func TestStore_LatestPicksHighestSequence(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			for seq := 1; seq <= 5; seq++ {
				require.NoError(t, store.Put(ctx, checkpoint.New("t1", seq, []byte(`{}`))))
			}

			latest, err := store.Latest(ctx, "t1")
			require.NoError(t, err)
			assert.Equal(t, 5, latest.Sequence)
		})
	}
}

func TestStore_PersistsFormatVersion(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			// A checkpoint written by a different format version must
			// come back with its own version, not the current one, or
			// the engine's mismatch guard can never fire.
			cp := checkpoint.New("t1", 1, []byte(`{}`))
			cp.Version = checkpoint.Version + 1
			require.NoError(t, store.Put(ctx, cp))

			got, err := store.Latest(ctx, "t1")
			require.NoError(t, err)
			assert.Equal(t, checkpoint.Version+1, got.Version)
		})
	}
}

func TestCheckpoint_MarshalRoundTrip(t *testing.T) {
	cp := checkpoint.New("t1", 7, []byte(`{"phase":"offer"}`))
	cp.WithParent("cp-parent")

	data, err := cp.Marshal()
	require.NoError(t, err)

	back, err := checkpoint.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, cp.ID, back.ID)
	assert.Equal(t, cp.Sequence, back.Sequence)
	assert.Equal(t, cp.ParentID, back.ParentID)
	assert.Equal(t, checkpoint.Version, back.Version)
}
