package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	store := NewMemoryStore()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "pool", []byte("v1"), time.Minute))
	require.NoError(t, store.Set(ctx, "forever", []byte("v2"), 0))

	got, ok, err := store.Get(ctx, "pool")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v1"), got)

	got[0] = 'x'
	again, _, _ := store.Get(ctx, "pool")
	assert.Equal(t, []byte("v1"), again, "callers get a copy")

	now = now.Add(2 * time.Minute)
	_, ok, err = store.Get(ctx, "pool")
	require.NoError(t, err)
	assert.False(t, ok, "entry expired")

	_, ok, _ = store.Get(ctx, "forever")
	assert.True(t, ok)

	require.NoError(t, store.Delete(ctx, "forever"))
	_, ok, _ = store.Get(ctx, "forever")
	assert.False(t, ok)
}

func TestMemoryLocker(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	locker := NewMemoryLocker()
	locker.now = func() time.Time { return now }

	release, err := locker.Acquire(ctx, "job", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "job", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)

	_, err = locker.Acquire(ctx, "other", time.Minute)
	assert.NoError(t, err)

	release()
	release()
	second, err := locker.Acquire(ctx, "job", time.Minute)
	require.NoError(t, err)

	// An expired lock can be taken over.
	now = now.Add(2 * time.Minute)
	third, err := locker.Acquire(ctx, "job", time.Minute)
	require.NoError(t, err)

	// A stale release does not free the new owner's lock.
	second()
	_, err = locker.Acquire(ctx, "job", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)
	third()
}
