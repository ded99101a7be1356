package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/converse/core"
)

func TestMemoryStoreSetGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Set(ctx, "nonce:0xabc", "message-1", 0))

	value, err := s.Get(ctx, "nonce:0xabc")
	require.NoError(t, err)
	assert.Equal(t, "message-1", value)

	require.NoError(t, s.Delete(ctx, "nonce:0xabc"))

	_, err = s.Get(ctx, "nonce:0xabc")
	assert.ErrorIs(t, err, core.ErrKeyNotFound)

	// deleting again is fine
	require.NoError(t, s.Delete(ctx, "nonce:0xabc"))
}

func TestMemoryStoreOverwrite(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Set(ctx, "k", "old", 0))
	require.NoError(t, s.Set(ctx, "k", "new", 0))

	value, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "new", value)
}

func TestMemoryStoreTTL(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Set(ctx, "ephemeral", "v", 20*time.Millisecond))

	value, err := s.Get(ctx, "ephemeral")
	require.NoError(t, err)
	assert.Equal(t, "v", value)

	time.Sleep(40 * time.Millisecond)

	_, err = s.Get(ctx, "ephemeral")
	assert.ErrorIs(t, err, core.ErrKeyNotFound)
}

func TestMemoryStoreReplaceExtendsTTL(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Set(ctx, "k", "short", 20*time.Millisecond))
	require.NoError(t, s.Set(ctx, "k", "long", time.Minute))

	time.Sleep(40 * time.Millisecond)

	value, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "long", value, "cleanup of the replaced entry must not remove the new one")
}

func TestMemoryStoreReplaceDropsTTL(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Set(ctx, "k", "short", 20*time.Millisecond))
	require.NoError(t, s.Set(ctx, "k", "forever", 0))

	time.Sleep(40 * time.Millisecond)

	value, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "forever", value, "no-expiry entry must survive the stale cleanup timer")
}
