package grove

import (
	"grove/internal/base"
	"grove/internal/buffer"
)

// Iterator walks the leaf chain in key order. It keeps exactly one leaf
// pinned at a time and latches a leaf only momentarily while hopping,
// so iteration does not block writers; the position is not restartable
// across a concurrent structural change.
//
// Callers must Close an iterator they are done with to return the pin.
type Iterator struct {
	pool *buffer.PoolManager
	page *base.Page
	idx  int
}

// Begin returns an iterator positioned on the smallest key.
func (t *BPlusTree) Begin() (*Iterator, error) {
	return t.seekLeaf(true, nil)
}

// BeginAt returns an iterator positioned on the smallest key >= key.
func (t *BPlusTree) BeginAt(key []byte) (*Iterator, error) {
	if len(key) != t.keySize {
		return nil, ErrKeySize
	}
	return t.seekLeaf(false, key)
}

// seekLeaf descends read-latched to the leftmost leaf, or to the leaf
// owning key, and seeds an iterator there.
func (t *BPlusTree) seekLeaf(leftMost bool, key []byte) (*Iterator, error) {
	t.rootLatch.RLock()
	if t.rootID == base.InvalidPageID {
		t.rootLatch.RUnlock()
		return &Iterator{pool: t.pool}, nil
	}

	page, err := t.pool.FetchPage(t.rootID)
	if err != nil {
		t.rootLatch.RUnlock()
		return nil, err
	}
	page.RLatch()
	t.rootLatch.RUnlock()

	for {
		node := base.NodeOf(page)
		if node.IsLeaf() {
			break
		}
		childID := base.AsInternal(page).Lookup(key, t.cmp, leftMost, false)
		child, err := t.pool.FetchPage(childID)
		if err != nil {
			page.RUnlatch()
			t.pool.UnpinPage(page.ID(), false)
			return nil, err
		}
		child.RLatch()
		page.RUnlatch()
		t.pool.UnpinPage(page.ID(), false)
		page = child
	}

	idx := 0
	if !leftMost {
		idx = base.AsLeaf(page).KeyIndex(key, t.cmp)
	}
	page.RUnlatch()

	it := &Iterator{pool: t.pool, page: page, idx: idx}
	if err := it.normalize(); err != nil {
		return nil, err
	}
	return it, nil
}

// Valid reports whether the iterator is positioned on a pair.
func (it *Iterator) Valid() bool { return it.page != nil }

// Key returns the current key as a slice into the pinned leaf, valid
// until the next Next or Close.
func (it *Iterator) Key() []byte {
	return base.AsLeaf(it.page).KeyAt(it.idx)
}

// RID returns the current record identifier.
func (it *Iterator) RID() RID {
	return base.AsLeaf(it.page).RIDAt(it.idx)
}

// Next advances to the following pair, hopping the leaf chain when the
// current leaf is exhausted.
func (it *Iterator) Next() error {
	if it.page == nil {
		return nil
	}
	it.idx++
	return it.normalize()
}

// normalize hops forward until the cursor rests on a pair or the chain
// ends. The old leaf's pin is swapped for the next leaf's.
func (it *Iterator) normalize() error {
	for it.page != nil {
		leaf := base.AsLeaf(it.page)
		it.page.RLatch()
		size := leaf.Size()
		next := leaf.Next()
		it.page.RUnlatch()

		if it.idx < size {
			return nil
		}

		it.pool.UnpinPage(it.page.ID(), false)
		it.page = nil
		if next == base.InvalidPageID {
			return nil
		}
		np, err := it.pool.FetchPage(next)
		if err != nil {
			return err
		}
		it.page = np
		it.idx = 0
	}
	return nil
}

// Close releases the pinned leaf. Safe to call twice.
func (it *Iterator) Close() {
	if it.page != nil {
		it.pool.UnpinPage(it.page.ID(), false)
		it.page = nil
	}
}
