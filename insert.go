package grove

import (
	"grove/internal/base"
)

// Insert adds the pair under the unique-key rule. Returns false when
// the key is already present.
func (t *BPlusTree) Insert(key []byte, rid RID) (bool, error) {
	if len(key) != t.keySize {
		return false, ErrKeySize
	}

	t.rootLatch.Lock()
	defer t.rootLatch.Unlock()

	if t.rootID == base.InvalidPageID {
		if err := t.startNewTree(key, rid); err != nil {
			return false, err
		}
		return true, nil
	}

	ctx := &opContext{}
	page, err := t.findLeaf(key, opInsert, ctx)
	if err != nil {
		t.releaseLatched(ctx)
		return false, err
	}
	leaf := base.AsLeaf(page)

	if _, dup := leaf.Lookup(key, t.cmp); dup {
		page.WUnlatch()
		t.pool.UnpinPage(page.ID(), false)
		t.releaseLatched(ctx)
		return false, nil
	}

	if leaf.Size() < leaf.MaxSize() {
		leaf.Insert(key, rid, t.cmp)
		page.WUnlatch()
		t.pool.UnpinPage(page.ID(), true)
		t.releaseLatched(ctx)
		return true, nil
	}

	// Leaf full: split, route the new pair by the sibling's first key,
	// then post the separator upward.
	newPage, err := t.splitLeaf(page)
	if err != nil {
		page.WUnlatch()
		t.pool.UnpinPage(page.ID(), false)
		t.releaseLatched(ctx)
		return false, err
	}
	newLeaf := base.AsLeaf(newPage)
	if t.cmp(key, newLeaf.KeyAt(0)) < 0 {
		leaf.Insert(key, rid, t.cmp)
	} else {
		newLeaf.Insert(key, rid, t.cmp)
	}

	err = t.insertIntoParent(page, newLeaf.KeyAt(0), newPage, ctx)

	page.WUnlatch()
	t.pool.UnpinPage(page.ID(), true)
	t.pool.UnpinPage(newPage.ID(), true)
	t.releaseLatched(ctx)
	return err == nil, err
}

// startNewTree allocates a root leaf holding the first pair and records
// the new root in the header page.
func (t *BPlusTree) startNewTree(key []byte, rid RID) error {
	page, err := t.pool.NewPage()
	if err != nil {
		return err
	}
	leaf := base.InitLeaf(page, base.InvalidPageID, t.leafMaxSize, t.keySize)
	leaf.Insert(key, rid, t.cmp)
	t.rootID = page.ID()
	if err := t.pool.UnpinPage(page.ID(), true); err != nil {
		return err
	}
	return t.updateRootRecord()
}

// splitLeaf allocates a right sibling, moves the upper half of the full
// leaf into it, and links it into the forward chain. The sibling comes
// back pinned but unlatched: nothing can reach it until its separator
// is posted to the parent, whose latch this operation holds.
func (t *BPlusTree) splitLeaf(page *base.Page) (*base.Page, error) {
	leaf := base.AsLeaf(page)
	newPage, err := t.pool.NewPage()
	if err != nil {
		return nil, err
	}
	newLeaf := base.InitLeaf(newPage, leaf.Parent(), t.leafMaxSize, t.keySize)
	leaf.MoveHalfTo(newLeaf)
	newLeaf.SetNext(leaf.Next())
	leaf.SetNext(newPage.ID())
	return newPage, nil
}

// splitInternal moves the upper half of an overfull internal node into
// a fresh right sibling and reparents the moved children. The promoted
// separator is left in the sibling's sentinel slot.
func (t *BPlusTree) splitInternal(page *base.Page) (*base.Page, error) {
	node := base.AsInternal(page)
	newPage, err := t.pool.NewPage()
	if err != nil {
		return nil, err
	}
	newNode := base.InitInternal(newPage, node.Parent(), t.internalMaxSize, t.keySize)
	node.MoveHalfTo(newNode)
	for i := 0; i < newNode.Size(); i++ {
		if err := t.reparent(newNode.ChildAt(i), newPage.ID()); err != nil {
			t.pool.UnpinPage(newPage.ID(), true)
			return nil, err
		}
	}
	return newPage, nil
}

// insertIntoParent posts the separator between left and its new right
// sibling. A root split grows the tree by one level; an overfull parent
// splits and recurses. Ancestor latches are already held through ctx,
// so parents are fetched for the pin only.
func (t *BPlusTree) insertIntoParent(left *base.Page, key []byte, right *base.Page, ctx *opContext) error {
	leftNode := base.NodeOf(left)
	if leftNode.Parent() == base.InvalidPageID {
		rootPage, err := t.pool.NewPage()
		if err != nil {
			return err
		}
		root := base.InitInternal(rootPage, base.InvalidPageID, t.internalMaxSize, t.keySize)
		root.InitAsRoot(left.ID(), key, right.ID())
		leftNode.SetParent(rootPage.ID())
		base.NodeOf(right).SetParent(rootPage.ID())
		t.rootID = rootPage.ID()
		if err := t.pool.UnpinPage(rootPage.ID(), true); err != nil {
			return err
		}
		return t.updateRootRecord()
	}

	parentID := leftNode.Parent()
	parentPage, err := t.pool.FetchPage(parentID)
	if err != nil {
		return err
	}
	parent := base.AsInternal(parentPage)
	parent.InsertAfter(left.ID(), key, right.ID())

	if parent.Size() > parent.MaxSize() {
		newParentPage, err := t.splitInternal(parentPage)
		if err != nil {
			t.pool.UnpinPage(parentID, true)
			return err
		}
		newParent := base.AsInternal(newParentPage)
		err = t.insertIntoParent(parentPage, newParent.KeyAt(0), newParentPage, ctx)
		t.pool.UnpinPage(newParentPage.ID(), true)
		if err != nil {
			t.pool.UnpinPage(parentID, true)
			return err
		}
	}
	return t.pool.UnpinPage(parentID, true)
}
