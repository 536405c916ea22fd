package grove

import (
	"encoding/binary"
	"math/rand"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grove/internal/base"
	"grove/internal/buffer"
	"grove/internal/storage"
)

func newTestPool(t *testing.T, frames int) *buffer.PoolManager {
	t.Helper()
	disk, err := storage.Open(filepath.Join(t.TempDir(), "test.idx"))
	require.NoError(t, err)
	pool := buffer.NewPoolManager(frames, buffer.DefaultK, disk)
	t.Cleanup(func() { pool.Close() })
	return pool
}

func newTestTree(t *testing.T, leafMax, internalMax int) *BPlusTree {
	t.Helper()
	tree, err := New("test_idx", newTestPool(t, 64), CompareBytes, leafMax, internalMax)
	require.NoError(t, err)
	return tree
}

func intKey(i int) []byte {
	b := make([]byte, DefaultKeySize)
	binary.BigEndian.PutUint64(b, uint64(i))
	return b
}

func intRID(i int) RID {
	return RID{PageID: PageID(i), SlotNum: uint32(i)}
}

func mustInsert(t *testing.T, tree *BPlusTree, keys ...int) {
	t.Helper()
	for _, i := range keys {
		ok, err := tree.Insert(intKey(i), intRID(i))
		require.NoError(t, err)
		require.True(t, ok, "insert %d", i)
	}
}

// collectKeys drains a full scan into decoded ints.
func collectKeys(t *testing.T, tree *BPlusTree) []int {
	t.Helper()
	it, err := tree.Begin()
	require.NoError(t, err)
	defer it.Close()

	var keys []int
	for ; it.Valid(); require.NoError(t, it.Next()) {
		keys = append(keys, int(binary.BigEndian.Uint64(it.Key())))
	}
	return keys
}

// verifyTree walks the whole structure checking search-path ranges,
// parent back-pointers, slot counts, uniform leaf depth, and the sorted
// leaf chain. Latch-free; call it only with no concurrent writers.
func verifyTree(t *testing.T, tree *BPlusTree) {
	t.Helper()
	if tree.IsEmpty() {
		return
	}
	depths := map[int]struct{}{}
	verifyNode(t, tree, tree.RootPageID(), base.InvalidPageID, nil, nil, 0, depths)
	require.Len(t, depths, 1, "leaves at unequal depths")

	keys := collectKeys(t, tree)
	require.True(t, sort.IntsAreSorted(keys), "leaf chain out of order: %v", keys)
	assert.Equal(t, 0, tree.pool.PinnedPages(), "pins leaked")
}

func verifyNode(t *testing.T, tree *BPlusTree, id, parent base.PageID, lo, hi []byte, depth int, depths map[int]struct{}) {
	t.Helper()
	page, err := tree.pool.FetchPage(id)
	require.NoError(t, err)
	defer tree.pool.UnpinPage(id, false)

	node := base.NodeOf(page)
	assert.Equal(t, parent, node.Parent(), "page %d parent pointer", id)
	require.LessOrEqual(t, node.Size(), node.MaxSize(), "page %d overfull", id)
	if parent != base.InvalidPageID {
		require.GreaterOrEqual(t, node.Size(), 1, "page %d empty", id)
	}

	if node.IsLeaf() {
		leaf := base.AsLeaf(page)
		for i := 0; i < leaf.Size(); i++ {
			k := leaf.KeyAt(i)
			if i > 0 {
				require.Negative(t, tree.cmp(leaf.KeyAt(i-1), k), "page %d keys unsorted", id)
			}
			if lo != nil {
				require.GreaterOrEqual(t, tree.cmp(k, lo), 0, "page %d key below range", id)
			}
			if hi != nil {
				require.Negative(t, tree.cmp(k, hi), "page %d key above range", id)
			}
		}
		depths[depth] = struct{}{}
		return
	}

	in := base.AsInternal(page)
	for i := 1; i < in.Size(); i++ {
		if i > 1 {
			require.Negative(t, tree.cmp(in.KeyAt(i-1), in.KeyAt(i)), "page %d separators unsorted", id)
		}
	}
	for i := 0; i < in.Size(); i++ {
		childLo, childHi := lo, hi
		if i > 0 {
			childLo = append([]byte(nil), in.KeyAt(i)...)
		}
		if i < in.Size()-1 {
			childHi = append([]byte(nil), in.KeyAt(i+1)...)
		}
		verifyNode(t, tree, in.ChildAt(i), id, childLo, childHi, depth+1, depths)
	}
}

func TestInsertAndGet(t *testing.T) {
	t.Parallel()

	tree := newTestTree(t, 3, 3)
	assert.True(t, tree.IsEmpty())
	assert.Equal(t, InvalidPageID, tree.RootPageID())

	mustInsert(t, tree, 1, 2, 3, 4, 5)
	assert.False(t, tree.IsEmpty())
	assert.NotEqual(t, InvalidPageID, tree.RootPageID())

	for i := 1; i <= 5; i++ {
		rid, found, err := tree.GetValue(intKey(i))
		require.NoError(t, err)
		require.True(t, found, "key %d", i)
		assert.Equal(t, intRID(i), rid)
	}

	_, found, err := tree.GetValue(intKey(99))
	require.NoError(t, err)
	assert.False(t, found)

	assert.Equal(t, []int{1, 2, 3, 4, 5}, collectKeys(t, tree))
	verifyTree(t, tree)
}

func TestInsertDuplicate(t *testing.T) {
	t.Parallel()

	tree := newTestTree(t, 3, 3)
	ok, err := tree.Insert(intKey(7), intRID(7))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = tree.Insert(intKey(7), intRID(70))
	require.NoError(t, err)
	assert.False(t, ok)

	rid, found, err := tree.GetValue(intKey(7))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, intRID(7), rid)
	assert.Equal(t, []int{7}, collectKeys(t, tree))
}

func TestKeySizeValidation(t *testing.T) {
	t.Parallel()

	tree := newTestTree(t, 3, 3)

	_, err := tree.Insert([]byte("short"), intRID(1))
	assert.ErrorIs(t, err, ErrKeySize)
	_, _, err = tree.GetValue([]byte("short"))
	assert.ErrorIs(t, err, ErrKeySize)
	assert.ErrorIs(t, tree.Remove([]byte("short")), ErrKeySize)
	_, err = tree.BeginAt([]byte("short"))
	assert.ErrorIs(t, err, ErrKeySize)
}

func TestSplitGrowsLevels(t *testing.T) {
	t.Parallel()

	tree := newTestTree(t, 3, 3)
	mustInsert(t, tree, 1, 2, 3, 4, 5)

	// The root must have become an internal node.
	page, err := tree.pool.FetchPage(tree.RootPageID())
	require.NoError(t, err)
	assert.False(t, base.NodeOf(page).IsLeaf())
	require.NoError(t, tree.pool.UnpinPage(page.ID(), false))

	assert.Equal(t, []int{1, 2, 3, 4, 5}, collectKeys(t, tree))
	verifyTree(t, tree)
}

func TestDeleteWithRebalance(t *testing.T) {
	t.Parallel()

	tree := newTestTree(t, 3, 3)
	mustInsert(t, tree, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)

	for _, i := range []int{5, 6, 7} {
		require.NoError(t, tree.Remove(intKey(i)))
		verifyTree(t, tree)
	}

	_, found, err := tree.GetValue(intKey(5))
	require.NoError(t, err)
	assert.False(t, found)

	assert.Equal(t, []int{1, 2, 3, 4, 8, 9, 10}, collectKeys(t, tree))
}

func TestRemoveAbsentKeyIsSilent(t *testing.T) {
	t.Parallel()

	tree := newTestTree(t, 3, 3)
	require.NoError(t, tree.Remove(intKey(1)))

	mustInsert(t, tree, 1, 2, 3)
	require.NoError(t, tree.Remove(intKey(9)))
	assert.Equal(t, []int{1, 2, 3}, collectKeys(t, tree))
}

func TestInsertThenRemoveAll(t *testing.T) {
	t.Parallel()

	tree := newTestTree(t, 3, 3)
	const n = 50
	for i := 1; i <= n; i++ {
		mustInsert(t, tree, i)
	}
	verifyTree(t, tree)

	for i := 1; i <= n; i++ {
		require.NoError(t, tree.Remove(intKey(i)))
	}

	assert.True(t, tree.IsEmpty())
	assert.Equal(t, InvalidPageID, tree.RootPageID())
	assert.Equal(t, 0, tree.pool.PinnedPages())

	// The tree is usable again after emptying.
	mustInsert(t, tree, 3, 1, 2)
	assert.Equal(t, []int{1, 2, 3}, collectKeys(t, tree))
}

func TestRandomInsertDelete(t *testing.T) {
	t.Parallel()

	tree := newTestTree(t, 4, 5)
	rng := rand.New(rand.NewSource(7))

	const n = 300
	perm := rng.Perm(n)
	for _, i := range perm {
		mustInsert(t, tree, i+1)
	}
	verifyTree(t, tree)

	alive := map[int]bool{}
	for i := 1; i <= n; i++ {
		alive[i] = true
	}
	for _, i := range rng.Perm(n)[:n/2] {
		require.NoError(t, tree.Remove(intKey(i+1)))
		delete(alive, i+1)
	}
	verifyTree(t, tree)

	var want []int
	for k := range alive {
		want = append(want, k)
	}
	sort.Ints(want)
	assert.Equal(t, want, collectKeys(t, tree))
}

func TestNoPinsHeldAfterCalls(t *testing.T) {
	t.Parallel()

	tree := newTestTree(t, 3, 3)
	for i := 1; i <= 30; i++ {
		mustInsert(t, tree, i)
		assert.Equal(t, 0, tree.pool.PinnedPages(), "after insert %d", i)
	}
	for i := 1; i <= 30; i += 2 {
		_, _, err := tree.GetValue(intKey(i))
		require.NoError(t, err)
		require.NoError(t, tree.Remove(intKey(i)))
		assert.Equal(t, 0, tree.pool.PinnedPages(), "after remove %d", i)
	}
}

func TestReopenFindsRootInHeader(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "idx.db")

	disk, err := storage.Open(path)
	require.NoError(t, err)
	pool := buffer.NewPoolManager(64, buffer.DefaultK, disk)
	tree, err := New("orders_pk", pool, CompareBytes, 3, 3)
	require.NoError(t, err)
	for i := 1; i <= 20; i++ {
		mustInsert(t, tree, i)
	}
	root := tree.RootPageID()
	require.NoError(t, pool.Close())

	disk, err = storage.Open(path)
	require.NoError(t, err)
	pool = buffer.NewPoolManager(64, buffer.DefaultK, disk)
	defer pool.Close()

	reopened, err := New("orders_pk", pool, CompareBytes, 3, 3)
	require.NoError(t, err)
	assert.Equal(t, root, reopened.RootPageID())
	for i := 1; i <= 20; i++ {
		_, found, err := reopened.GetValue(intKey(i))
		require.NoError(t, err)
		assert.True(t, found, "key %d", i)
	}
	assert.Equal(t, 0, reopened.pool.PinnedPages())
}

func TestTwoIndexesShareOneFile(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, 64)
	a, err := New("idx_a", pool, CompareBytes, 3, 3)
	require.NoError(t, err)
	b, err := New("idx_b", pool, CompareBytes, 3, 3)
	require.NoError(t, err)

	mustInsert(t, a, 1, 2, 3)
	mustInsert(t, b, 10, 20, 30)

	assert.Equal(t, []int{1, 2, 3}, collectKeys(t, a))
	assert.Equal(t, []int{10, 20, 30}, collectKeys(t, b))

	_, found, err := a.GetValue(intKey(10))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNameTooLong(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, 64)
	long := make([]byte, base.IndexNameSize+1)
	for i := range long {
		long[i] = 'n'
	}
	_, err := New(string(long), pool, CompareBytes, 3, 3)
	assert.ErrorIs(t, err, ErrNameTooLong)
}

func TestCustomKeySize(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, 64)
	tree, err := New("wide_keys", pool, CompareBytes, 3, 3, WithKeySize(16))
	require.NoError(t, err)

	wideKey := func(i int) []byte {
		b := make([]byte, 16)
		binary.BigEndian.PutUint64(b[8:], uint64(i))
		return b
	}

	for i := 1; i <= 20; i++ {
		ok, err := tree.Insert(wideKey(i), intRID(i))
		require.NoError(t, err)
		require.True(t, ok)
	}
	for i := 1; i <= 20; i++ {
		rid, found, err := tree.GetValue(wideKey(i))
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, intRID(i), rid)
	}

	// Eight-byte keys are now the wrong width.
	_, err = tree.Insert(intKey(1), intRID(1))
	assert.ErrorIs(t, err, ErrKeySize)

	_, err = New("bad", pool, CompareBytes, 3, 3, WithKeySize(0))
	assert.ErrorIs(t, err, ErrKeySize)
	_, err = New("bad", pool, CompareBytes, 3, 3, WithKeySize(MaxKeySize+1))
	assert.ErrorIs(t, err, ErrKeySize)
}

func TestDefaultSizesFromCapacity(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, 64)
	tree, err := New("wide", pool, CompareBytes, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, base.LeafCapacity(DefaultKeySize), tree.leafMaxSize)
	assert.Equal(t, base.InternalCapacity(DefaultKeySize)-1, tree.internalMaxSize)

	for i := 1; i <= 500; i++ {
		mustInsert(t, tree, i)
	}
	verifyTree(t, tree)
}
