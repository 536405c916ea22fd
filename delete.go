package grove

import (
	"errors"

	"grove/internal/base"
)

// Remove deletes key from the index, rebalancing as needed. Absent keys
// are a silent no-op.
func (t *BPlusTree) Remove(key []byte) error {
	if len(key) != t.keySize {
		return ErrKeySize
	}

	t.rootLatch.Lock()
	defer t.rootLatch.Unlock()

	if t.rootID == base.InvalidPageID {
		return nil
	}

	ctx := &opContext{}
	page, err := t.findLeaf(key, opDelete, ctx)
	if err != nil {
		t.releaseLatched(ctx)
		return err
	}
	leaf := base.AsLeaf(page)

	if !leaf.Remove(key, t.cmp) {
		page.WUnlatch()
		t.pool.UnpinPage(page.ID(), false)
		t.releaseLatched(ctx)
		return nil
	}

	if leaf.Size() < leaf.MinSize() {
		err = t.coalesceOrRedistribute(page, ctx)
	}

	page.WUnlatch()
	t.pool.UnpinPage(page.ID(), true)
	t.releaseLatched(ctx)

	// Vacated pages are deleted only now, with every latch released and
	// this operation's pins returned. An iterator may still pin a
	// vacated leaf; the page then simply stays allocated.
	for _, id := range ctx.deleted {
		if derr := t.pool.DeletePage(id); derr != nil && !errors.Is(derr, base.ErrPagePinned) && err == nil {
			err = derr
		}
	}
	return err
}

// coalesceOrRedistribute repairs an underflowing node: borrow from a
// sibling when it can spare entries, merge with it otherwise. The left
// sibling is chosen whenever one exists, so any two contending threads
// latch the pair in the same order through the shared parent latch.
func (t *BPlusTree) coalesceOrRedistribute(page *base.Page, ctx *opContext) error {
	node := base.NodeOf(page)
	if node.Parent() == base.InvalidPageID {
		return t.adjustRoot(page, ctx)
	}

	// The parent's write latch is already held through ctx.
	parentPage, err := t.pool.FetchPage(node.Parent())
	if err != nil {
		return err
	}
	parent := base.AsInternal(parentPage)

	idx := parent.ValueIndex(page.ID())
	sibIdx := idx - 1
	if idx == 0 {
		sibIdx = 1
	}
	sibPage, err := t.pool.FetchPage(parent.ChildAt(sibIdx))
	if err != nil {
		t.pool.UnpinPage(parentPage.ID(), false)
		return err
	}
	sibPage.WLatch()
	sib := base.NodeOf(sibPage)

	need := node.MinSize() - node.Size()
	if sib.Size()-need >= sib.MinSize() {
		err = t.redistribute(sibPage, page, parentPage, idx, need)
		sibPage.WUnlatch()
		t.pool.UnpinPage(sibPage.ID(), true)
		t.pool.UnpinPage(parentPage.ID(), true)
		return err
	}

	// Merge the pair into its left node; the right page is vacated.
	left, right, rightIdx := sibPage, page, idx
	if idx == 0 {
		left, right, rightIdx = page, sibPage, 1
	}
	err = t.coalesce(left, right, parentPage, rightIdx, ctx)

	sibPage.WUnlatch()
	t.pool.UnpinPage(sibPage.ID(), true)
	t.pool.UnpinPage(parentPage.ID(), true)
	return err
}

// redistribute moves need entries from the sibling into the node and
// refreshes the parent separator between them. idx is the node's slot
// in the parent: 0 borrows from the right sibling's front, anything
// else from the left sibling's back.
func (t *BPlusTree) redistribute(sibPage, page, parentPage *base.Page, idx, need int) error {
	parent := base.AsInternal(parentPage)

	if base.NodeOf(page).IsLeaf() {
		node, sib := base.AsLeaf(page), base.AsLeaf(sibPage)
		if idx == 0 {
			for i := 0; i < need; i++ {
				sib.MoveFirstToEndOf(node)
			}
			parent.SetKeyAt(1, sib.KeyAt(0))
		} else {
			for i := 0; i < need; i++ {
				sib.MoveLastToFrontOf(node)
			}
			parent.SetKeyAt(idx, node.KeyAt(0))
		}
		return nil
	}

	node, sib := base.AsInternal(page), base.AsInternal(sibPage)
	if idx == 0 {
		for i := 0; i < need; i++ {
			moved := sib.MoveFirstToEndOf(node, parent.KeyAt(1))
			parent.SetKeyAt(1, sib.KeyAt(0))
			if err := t.reparent(moved, page.ID()); err != nil {
				return err
			}
		}
	} else {
		for i := 0; i < need; i++ {
			moved := sib.MoveLastToFrontOf(node, parent.KeyAt(idx))
			parent.SetKeyAt(idx, node.KeyAt(0))
			if err := t.reparent(moved, page.ID()); err != nil {
				return err
			}
		}
	}
	return nil
}

// coalesce merges right into left, drops right's slot from the parent,
// and queues right's page for deletion. An underflowing parent recurses
// up the held-latch chain.
func (t *BPlusTree) coalesce(left, right, parentPage *base.Page, rightIdx int, ctx *opContext) error {
	parent := base.AsInternal(parentPage)

	if base.NodeOf(left).IsLeaf() {
		l, r := base.AsLeaf(left), base.AsLeaf(right)
		r.MoveAllToEndOf(l)
		l.SetNext(r.Next())
	} else {
		l, r := base.AsInternal(left), base.AsInternal(right)
		for i := 0; i < r.Size(); i++ {
			if err := t.reparent(r.ChildAt(i), left.ID()); err != nil {
				return err
			}
		}
		r.MoveAllToEndOf(l, parent.KeyAt(rightIdx))
	}

	parent.RemoveAt(rightIdx)
	ctx.deleted = append(ctx.deleted, right.ID())

	if parent.Size() < parent.MinSize() {
		return t.coalesceOrRedistribute(parentPage, ctx)
	}
	return nil
}

// adjustRoot handles the two root special cases after deletion: an
// emptied root leaf empties the tree, and a single-child internal root
// hands the tree to that child.
func (t *BPlusTree) adjustRoot(page *base.Page, ctx *opContext) error {
	node := base.NodeOf(page)

	if node.IsLeaf() {
		if node.Size() == 0 {
			ctx.deleted = append(ctx.deleted, page.ID())
			t.rootID = base.InvalidPageID
			return t.updateRootRecord()
		}
		return nil
	}

	if node.Size() == 1 {
		only := base.AsInternal(page).RemoveAndReturnOnlyChild()
		if err := t.reparent(only, base.InvalidPageID); err != nil {
			return err
		}
		ctx.deleted = append(ctx.deleted, page.ID())
		t.rootID = only
		return t.updateRootRecord()
	}
	return nil
}
