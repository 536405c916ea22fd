// Package grove implements a concurrent, disk-backed B+Tree index
// mapping fixed-length keys to record identifiers. All key-value pairs
// live in leaves chained for ordered scans; pages move through a
// bounded buffer pool with LRU-K eviction, and operations descend the
// tree under latch crabbing.
package grove

import (
	"bytes"
	"sync"

	"grove/internal/base"
	"grove/internal/buffer"
)

type (
	PageID     = base.PageID
	RID        = base.RID
	Comparator = base.Comparator
)

const (
	InvalidPageID = base.InvalidPageID
	HeaderPageID  = base.HeaderPageID
	PageSize      = base.PageSize
	MaxKeySize    = base.MaxKeySize
)

// CompareBytes orders keys lexicographically by their raw bytes.
var CompareBytes Comparator = bytes.Compare

// BPlusTree is a unique-key index over fixed-length keys. All state
// lives in pages owned by the buffer pool; the struct itself holds only
// the root pointer and configuration.
type BPlusTree struct {
	name            string
	pool            *buffer.PoolManager
	cmp             Comparator
	keySize         int
	leafMaxSize     int
	internalMaxSize int

	// rootLatch guards rootID. Reads hold it shared just until the root
	// page latch is acquired; writes hold it exclusive for the whole
	// operation, since any write may end up replacing the root.
	rootLatch sync.RWMutex
	rootID    base.PageID

	log Logger
}

// New opens the index called name inside the pool's file, creating its
// header record lazily on first insert. Zero leafMaxSize or
// internalMaxSize selects the page-capacity maximum for the key width.
func New(name string, pool *buffer.PoolManager, cmp Comparator, leafMaxSize, internalMaxSize int, opts ...Option) (*BPlusTree, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if len(name) > base.IndexNameSize {
		return nil, ErrNameTooLong
	}
	if o.keySize < 1 || o.keySize > base.MaxKeySize {
		return nil, ErrKeySize
	}

	leafCap := base.LeafCapacity(o.keySize)
	if leafMaxSize <= 0 || leafMaxSize > leafCap {
		leafMaxSize = leafCap
	}
	if leafMaxSize < 2 {
		leafMaxSize = 2
	}
	// Internal nodes need one spare physical slot: a split-pending
	// insert overfills them by one before the split runs.
	internalCap := base.InternalCapacity(o.keySize) - 1
	if internalMaxSize <= 0 || internalMaxSize > internalCap {
		internalMaxSize = internalCap
	}
	if internalMaxSize < 3 {
		internalMaxSize = 3
	}

	t := &BPlusTree{
		name:            name,
		pool:            pool,
		cmp:             cmp,
		keySize:         o.keySize,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
		rootID:          base.InvalidPageID,
		log:             o.logger,
	}

	hp, err := pool.FetchPage(base.HeaderPageID)
	if err != nil {
		return nil, err
	}
	hp.RLatch()
	if rootID, ok := base.AsHeader(hp).GetRootPageID(name); ok {
		t.rootID = rootID
	}
	hp.RUnlatch()
	if err := pool.UnpinPage(base.HeaderPageID, false); err != nil {
		return nil, err
	}

	return t, nil
}

// Name returns the index name recorded in the header page.
func (t *BPlusTree) Name() string { return t.name }

// IsEmpty reports whether the tree holds no keys.
func (t *BPlusTree) IsEmpty() bool {
	t.rootLatch.RLock()
	defer t.rootLatch.RUnlock()
	return t.rootID == base.InvalidPageID
}

// RootPageID returns the current root page id, or InvalidPageID when
// the tree is empty.
func (t *BPlusTree) RootPageID() PageID {
	t.rootLatch.RLock()
	defer t.rootLatch.RUnlock()
	return t.rootID
}

// GetValue looks up key and returns its RID.
func (t *BPlusTree) GetValue(key []byte) (RID, bool, error) {
	if len(key) != t.keySize {
		return RID{}, false, ErrKeySize
	}

	t.rootLatch.RLock()
	if t.rootID == base.InvalidPageID {
		t.rootLatch.RUnlock()
		return RID{}, false, nil
	}

	page, err := t.findLeaf(key, opRead, nil)
	if err != nil {
		return RID{}, false, err
	}
	rid, found := base.AsLeaf(page).Lookup(key, t.cmp)
	page.RUnlatch()
	if err := t.pool.UnpinPage(page.ID(), false); err != nil {
		return RID{}, false, err
	}
	return rid, found, nil
}

// opMode selects the latch discipline of a descent.
type opMode int

const (
	opRead opMode = iota
	opInsert
	opDelete
)

// opContext carries one write operation's held state: the FIFO of
// write-latched, pinned ancestor frames whose safety is unproven, and
// the pages vacated by merges, deleted only after every latch drops.
type opContext struct {
	latched []*base.Page
	deleted []base.PageID
}

func (c *opContext) add(p *base.Page) {
	c.latched = append(c.latched, p)
}

// releaseLatched unlatches and unpins the queued ancestors in FIFO
// order. Ancestors mutated later (split or merge targets) are pinned
// again by those paths, which record their own dirty unpins.
func (t *BPlusTree) releaseLatched(ctx *opContext) {
	for _, p := range ctx.latched {
		p.WUnlatch()
		t.pool.UnpinPage(p.ID(), false)
	}
	ctx.latched = ctx.latched[:0]
}

// isSafe reports whether a change in this node cannot propagate to its
// parent: an insert will not split it, a delete will not underflow it.
func (t *BPlusTree) isSafe(n base.Node, mode opMode) bool {
	if mode == opInsert {
		return n.Size() < n.MaxSize()
	}
	return n.Size() > n.MinSize()
}

// findLeaf descends from the root to the leaf owning key and returns
// its frame with the mode-appropriate latch held. Read mode couples
// latches parent to child and releases rootLatch once the root page is
// latched. Write modes keep unsafe ancestors write-latched in ctx; a
// safe child releases the whole queue.
//
// The caller must hold rootLatch in the matching mode and have checked
// the tree is non-empty.
func (t *BPlusTree) findLeaf(key []byte, mode opMode, ctx *opContext) (*base.Page, error) {
	page, err := t.pool.FetchPage(t.rootID)
	if err != nil {
		if mode == opRead {
			t.rootLatch.RUnlock()
		}
		return nil, err
	}
	if mode == opRead {
		page.RLatch()
		t.rootLatch.RUnlock()
	} else {
		page.WLatch()
	}

	for {
		node := base.NodeOf(page)
		if node.IsLeaf() {
			return page, nil
		}

		childID := base.AsInternal(page).Lookup(key, t.cmp, false, false)
		child, err := t.pool.FetchPage(childID)
		if err != nil {
			if mode == opRead {
				page.RUnlatch()
			} else {
				page.WUnlatch()
			}
			t.pool.UnpinPage(page.ID(), false)
			return nil, err
		}

		if mode == opRead {
			child.RLatch()
			page.RUnlatch()
			t.pool.UnpinPage(page.ID(), false)
		} else {
			child.WLatch()
			ctx.add(page)
			if t.isSafe(base.NodeOf(child), mode) {
				t.releaseLatched(ctx)
			}
		}
		page = child
	}
}

// updateRootRecord writes the current root id into the header page,
// inserting the record the first time this index's root is set.
// Caller holds rootLatch exclusively.
func (t *BPlusTree) updateRootRecord() error {
	hp, err := t.pool.FetchPage(base.HeaderPageID)
	if err != nil {
		return err
	}
	hp.WLatch()
	h := base.AsHeader(hp)
	if !h.UpdateRecord(t.name, t.rootID) {
		h.InsertRecord(t.name, t.rootID)
	}
	hp.WUnlatch()
	return t.pool.UnpinPage(base.HeaderPageID, true)
}

// reparent rewrites a child's parent pointer, pinning it just long
// enough for the write.
func (t *BPlusTree) reparent(childID, parentID base.PageID) error {
	cp, err := t.pool.FetchPage(childID)
	if err != nil {
		return err
	}
	base.NodeOf(cp).SetParent(parentID)
	return t.pool.UnpinPage(childID, true)
}
