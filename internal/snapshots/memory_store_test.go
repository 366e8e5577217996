package snapshots

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/avi3tal/flowscope/internal/types"
	"github.com/stretchr/testify/require"
)

func snapshot(id string, status types.ExecutionStatus) *types.ExecutionSnapshot {
	return &types.ExecutionSnapshot{ExecutionID: id, Status: status}
}

// fakeClock hands out strictly increasing times.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestStore(capacity int) *MemoryStore {
	store := NewMemoryStore(capacity)
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	store.now = clock.Now
	return store
}

func TestMemoryStoreSaveLoad(t *testing.T) {
	t.Parallel()
	store := newTestStore(4)
	ctx := context.Background()

	first := snapshot("x1", types.ExecutionRunning)
	require.NoError(t, store.Save(ctx, first))

	second := snapshot("x1", types.ExecutionCompleted)
	require.NoError(t, store.Save(ctx, second))

	entry, err := store.Load(ctx, "x1")
	require.NoError(t, err)
	require.Same(t, second, entry.Snapshot)
	require.Equal(t, 2, entry.Meta.Polls)
	require.True(t, entry.Meta.UpdatedAt.After(entry.Meta.CreatedAt))
}

func TestMemoryStoreEdgeCases(t *testing.T) {
	t.Parallel()
	store := newTestStore(4)
	ctx := context.Background()

	_, err := store.Load(ctx, "missing")
	require.Error(t, err)
	require.Contains(t, err.Error(), "snapshot not found")
	require.Contains(t, err.Error(), "missing")

	require.Error(t, store.Save(ctx, nil))
	require.Error(t, store.Save(ctx, snapshot("", types.ExecutionRunning)))

	require.NoError(t, store.Save(ctx, snapshot("x1", types.ExecutionRunning)))
	require.NoError(t, store.Delete(ctx, "x1"))
	_, err = store.Load(ctx, "x1")
	require.Error(t, err)

	// deleting twice is fine
	require.NoError(t, store.Delete(ctx, "x1"))
}

func TestMemoryStoreEvictsLeastRecentlyUpdated(t *testing.T) {
	t.Parallel()
	store := newTestStore(2)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, snapshot("x1", types.ExecutionRunning)))
	require.NoError(t, store.Save(ctx, snapshot("x2", types.ExecutionRunning)))
	// touch x1 so x2 becomes the oldest
	require.NoError(t, store.Save(ctx, snapshot("x1", types.ExecutionCompleted)))
	require.NoError(t, store.Save(ctx, snapshot("x3", types.ExecutionRunning)))

	_, err := store.Load(ctx, "x2")
	require.Error(t, err)

	entries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "x3", entries[0].Snapshot.ExecutionID)
	require.Equal(t, "x1", entries[1].Snapshot.ExecutionID)
}

func TestLastValueReplacesWholesale(t *testing.T) {
	t.Parallel()
	lv := NewLastValue()
	require.Nil(t, lv.Read())

	first := snapshot("x1", types.ExecutionRunning)
	lv.Write(first)
	require.Same(t, first, lv.Read())

	second := snapshot("x1", types.ExecutionCompleted)
	lv.Write(second)
	require.Same(t, second, lv.Read())
	require.Equal(t, types.ExecutionRunning, first.Status)

	lv.Clear()
	require.Nil(t, lv.Read())
}
