package kvstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnwise/backend/core"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, store.Set(ctx, "b", []byte("2"), 0))

	val, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), val)

	// returned values are copies
	val[0] = 'x'
	val, _ = store.Get(ctx, "a")
	assert.Equal(t, []byte("1"), val)

	_, err = store.Get(ctx, "missing")
	assert.Equal(t, core.ErrKeyNotFound, err)

	now = now.Add(time.Minute)
	_, err = store.Get(ctx, "a")
	assert.Equal(t, core.ErrKeyNotFound, err, "expired")

	val, err = store.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), val, "no ttl")

	require.NoError(t, store.Delete(ctx, "b"))
	_, err = store.Get(ctx, "b")
	assert.Equal(t, core.ErrKeyNotFound, err)
}

func TestMemoryStore_Purge(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return now }

	_ = store.Set(ctx, "short", []byte("1"), time.Second)
	_ = store.Set(ctx, "long", []byte("2"), time.Hour)
	now = now.Add(time.Minute)
	store.Purge()

	assert.Len(t, store.entries, 1)
	_, ok := store.entries["long"]
	assert.True(t, ok)
}
