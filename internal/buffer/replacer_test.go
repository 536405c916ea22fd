package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grove/internal/base"
)

func TestReplacerHistoryThenCache(t *testing.T) {
	t.Parallel()

	r := NewLRUKReplacer(7, 2)

	for _, f := range []base.FrameID{0, 1, 2, 3} {
		require.NoError(t, r.RecordAccess(f))
	}
	for _, f := range []base.FrameID{1, 2, 3} {
		require.NoError(t, r.SetEvictable(f, true))
	}
	assert.Equal(t, 3, r.Size())

	// Frame 1 arrived earliest among the evictable sub-k frames.
	victim, ok := r.Evict()
	require.True(t, ok)
	assert.Equal(t, base.FrameID(1), victim)

	// Frame 0 crosses k and moves to the cache list; frames 2 and 3
	// still wait on the history list and go first.
	require.NoError(t, r.RecordAccess(0))
	require.NoError(t, r.RecordAccess(0))
	require.NoError(t, r.SetEvictable(0, true))

	victim, ok = r.Evict()
	require.True(t, ok)
	assert.Equal(t, base.FrameID(2), victim)

	victim, ok = r.Evict()
	require.True(t, ok)
	assert.Equal(t, base.FrameID(3), victim)

	victim, ok = r.Evict()
	require.True(t, ok)
	assert.Equal(t, base.FrameID(0), victim)

	_, ok = r.Evict()
	assert.False(t, ok)
	assert.Equal(t, 0, r.Size())
}

func TestReplacerCacheListLRU(t *testing.T) {
	t.Parallel()

	r := NewLRUKReplacer(4, 2)

	// Promote frames 0 and 1 into the cache list.
	for _, f := range []base.FrameID{0, 1, 0, 1} {
		require.NoError(t, r.RecordAccess(f))
	}
	// Touch 0 again: 1 becomes the least recently touched.
	require.NoError(t, r.RecordAccess(0))
	require.NoError(t, r.SetEvictable(0, true))
	require.NoError(t, r.SetEvictable(1, true))

	victim, ok := r.Evict()
	require.True(t, ok)
	assert.Equal(t, base.FrameID(1), victim)
}

func TestReplacerHistoryDoesNotReorder(t *testing.T) {
	t.Parallel()

	r := NewLRUKReplacer(4, 3)

	require.NoError(t, r.RecordAccess(0))
	require.NoError(t, r.RecordAccess(1))
	// A second sub-k access must not refresh frame 0's arrival slot.
	require.NoError(t, r.RecordAccess(0))
	require.NoError(t, r.SetEvictable(0, true))
	require.NoError(t, r.SetEvictable(1, true))

	victim, ok := r.Evict()
	require.True(t, ok)
	assert.Equal(t, base.FrameID(0), victim)
}

func TestReplacerInvalidFrame(t *testing.T) {
	t.Parallel()

	r := NewLRUKReplacer(4, 2)

	assert.ErrorIs(t, r.RecordAccess(4), base.ErrInvalidFrame)
	assert.ErrorIs(t, r.RecordAccess(-1), base.ErrInvalidFrame)
	assert.ErrorIs(t, r.SetEvictable(99, true), base.ErrInvalidFrame)
	assert.ErrorIs(t, r.Remove(99), base.ErrInvalidFrame)
	// Remove of a frame that was never accessed is unknown too.
	assert.ErrorIs(t, r.Remove(2), base.ErrInvalidFrame)
}

func TestReplacerSetEvictableUnknownIsNoop(t *testing.T) {
	t.Parallel()

	r := NewLRUKReplacer(4, 2)
	require.NoError(t, r.SetEvictable(1, true))
	assert.Equal(t, 0, r.Size())
}

func TestReplacerRemove(t *testing.T) {
	t.Parallel()

	r := NewLRUKReplacer(4, 2)
	require.NoError(t, r.RecordAccess(0))
	require.NoError(t, r.RecordAccess(1))

	// Pinned frames cannot be force-removed.
	assert.ErrorIs(t, r.Remove(0), base.ErrFrameNotEvictable)

	require.NoError(t, r.SetEvictable(0, true))
	require.NoError(t, r.SetEvictable(1, true))
	require.NoError(t, r.Remove(1))
	assert.Equal(t, 1, r.Size())

	victim, ok := r.Evict()
	require.True(t, ok)
	assert.Equal(t, base.FrameID(0), victim)
	_, ok = r.Evict()
	assert.False(t, ok)
}

func TestReplacerEvictRestartsAccounting(t *testing.T) {
	t.Parallel()

	r := NewLRUKReplacer(4, 2)
	require.NoError(t, r.RecordAccess(0))
	require.NoError(t, r.SetEvictable(0, true))

	victim, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, base.FrameID(0), victim)

	// The frame restarts from scratch: one access puts it back on the
	// history list, not the cache list.
	require.NoError(t, r.RecordAccess(0))
	require.NoError(t, r.RecordAccess(1))
	require.NoError(t, r.SetEvictable(0, true))
	require.NoError(t, r.SetEvictable(1, true))

	victim, ok = r.Evict()
	require.True(t, ok)
	assert.Equal(t, base.FrameID(0), victim)
}
