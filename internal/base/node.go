package base

import "encoding/binary"

// Node is the view common to both node kinds, dispatching on the
// page-type flag rather than on any in-memory vtable: the frame is raw
// memory and may be evicted and reloaded from disk between operations.
type Node struct {
	page *Page
}

func NodeOf(p *Page) Node { return Node{page: p} }

func (n Node) Page() *Page  { return n.page }
func (n Node) ID() PageID   { return n.page.ID() }
func (n Node) IsLeaf() bool { return n.page.Header().Flags&LeafPageFlag != 0 }

func (n Node) Size() int     { return int(n.page.Header().Size) }
func (n Node) SetSize(s int) { n.page.Header().Size = uint16(s) }

func (n Node) MaxSize() int { return int(n.page.Header().MaxSize) }

// MinSize is the occupancy floor for non-root nodes. For internal
// nodes the count includes the left-sentinel child.
func (n Node) MinSize() int { return (n.MaxSize() + 1) / 2 }

func (n Node) KeySize() int { return int(n.page.Header().KeySize) }

func (n Node) Parent() PageID      { return n.page.Header().Parent }
func (n Node) SetParent(id PageID) { n.page.Header().Parent = id }

// LeafNode views a page as an ordered sequence of (key, RID) slots
// threaded into the forward leaf chain.
type LeafNode struct {
	Node
}

func AsLeaf(p *Page) LeafNode { return LeafNode{NodeOf(p)} }

// InitLeaf formats a fresh page as an empty leaf.
func InitLeaf(p *Page, parent PageID, maxSize, keySize int) LeafNode {
	h := p.Header()
	h.Flags = LeafPageFlag
	h.Size = 0
	h.MaxSize = uint16(maxSize)
	h.KeySize = uint16(keySize)
	h.Parent = parent
	h.Next = InvalidPageID
	return AsLeaf(p)
}

func (l LeafNode) Next() PageID      { return l.page.Header().Next }
func (l LeafNode) SetNext(id PageID) { l.page.Header().Next = id }

func (l LeafNode) slotSize() int { return l.KeySize() + RIDSize }

func (l LeafNode) slotRange(i, j int) []byte {
	lo := NodeHeaderSize + i*l.slotSize()
	hi := NodeHeaderSize + j*l.slotSize()
	return l.page.data[lo:hi]
}

// KeyAt returns the key in slot i as a slice into the page, valid only
// while the frame stays pinned.
func (l LeafNode) KeyAt(i int) []byte {
	return l.slotRange(i, i+1)[:l.KeySize()]
}

func (l LeafNode) RIDAt(i int) RID {
	s := l.slotRange(i, i+1)[l.KeySize():]
	return RID{
		PageID:  PageID(binary.LittleEndian.Uint64(s)),
		SlotNum: binary.LittleEndian.Uint32(s[8:]),
	}
}

func (l LeafNode) setSlot(i int, key []byte, rid RID) {
	s := l.slotRange(i, i+1)
	copy(s[:l.KeySize()], key)
	binary.LittleEndian.PutUint64(s[l.KeySize():], uint64(rid.PageID))
	binary.LittleEndian.PutUint32(s[l.KeySize()+8:], rid.SlotNum)
}

// KeyIndex returns the first index whose key is >= key, or Size() when
// every key is smaller.
func (l LeafNode) KeyIndex(key []byte, cmp Comparator) int {
	lo, hi := 0, l.Size()
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(l.KeyAt(mid), key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Lookup binary-searches for key and returns its RID.
func (l LeafNode) Lookup(key []byte, cmp Comparator) (RID, bool) {
	idx := l.KeyIndex(key, cmp)
	if idx < l.Size() && cmp(l.KeyAt(idx), key) == 0 {
		return l.RIDAt(idx), true
	}
	return RID{}, false
}

// Insert places the pair at its sorted position. Returns false on a
// duplicate key.
func (l LeafNode) Insert(key []byte, rid RID, cmp Comparator) bool {
	idx := l.KeyIndex(key, cmp)
	if idx < l.Size() && cmp(l.KeyAt(idx), key) == 0 {
		return false
	}
	l.shiftRight(idx, 1)
	l.setSlot(idx, key, rid)
	l.SetSize(l.Size() + 1)
	return true
}

// Remove deletes key if present, shifting the tail left.
func (l LeafNode) Remove(key []byte, cmp Comparator) bool {
	idx := l.KeyIndex(key, cmp)
	if idx >= l.Size() || cmp(l.KeyAt(idx), key) != 0 {
		return false
	}
	l.RemoveAt(idx)
	return true
}

func (l LeafNode) RemoveAt(i int) {
	copy(l.slotRange(i, l.Size()-1), l.slotRange(i+1, l.Size()))
	l.SetSize(l.Size() - 1)
}

func (l LeafNode) shiftRight(from, by int) {
	copy(l.slotRange(from+by, l.Size()+by), l.slotRange(from, l.Size()))
}

// MoveHalfTo moves the upper half (Size()/2 onward) into the fresh
// right sibling dst.
func (l LeafNode) MoveHalfTo(dst LeafNode) {
	start := l.Size() / 2
	n := l.Size() - start
	copy(dst.slotRange(0, n), l.slotRange(start, l.Size()))
	dst.SetSize(n)
	l.SetSize(start)
}

// MoveAllToEndOf appends every slot to dst, emptying the receiver.
// Used when the right node of a merge pair is absorbed into the left.
func (l LeafNode) MoveAllToEndOf(dst LeafNode) {
	n := l.Size()
	base := dst.Size()
	copy(dst.slotRange(base, base+n), l.slotRange(0, n))
	dst.SetSize(base + n)
	l.SetSize(0)
}

// MoveAllToFrontOf prepends every slot to dst, emptying the receiver.
func (l LeafNode) MoveAllToFrontOf(dst LeafNode) {
	n := l.Size()
	dst.shiftRight(0, n)
	copy(dst.slotRange(0, n), l.slotRange(0, n))
	dst.SetSize(dst.Size() + n)
	l.SetSize(0)
}

// MoveFirstToEndOf transfers the receiver's first pair to the back of
// dst. Used when dst borrows from its right sibling.
func (l LeafNode) MoveFirstToEndOf(dst LeafNode) {
	base := dst.Size()
	copy(dst.slotRange(base, base+1), l.slotRange(0, 1))
	dst.SetSize(base + 1)
	l.RemoveAt(0)
}

// MoveLastToFrontOf transfers the receiver's last pair to the front of
// dst. Used when dst borrows from its left sibling.
func (l LeafNode) MoveLastToFrontOf(dst LeafNode) {
	last := l.Size() - 1
	dst.shiftRight(0, 1)
	copy(dst.slotRange(0, 1), l.slotRange(last, last+1))
	dst.SetSize(dst.Size() + 1)
	l.SetSize(last)
}

// InternalNode views a page as size children separated by size-1 keys.
// Slot 0 stores only the left-sentinel child; its key bytes hold
// whatever key last occupied the slot and are never consulted by
// search.
type InternalNode struct {
	Node
}

func AsInternal(p *Page) InternalNode { return InternalNode{NodeOf(p)} }

// InitInternal formats a fresh page as an empty internal node.
func InitInternal(p *Page, parent PageID, maxSize, keySize int) InternalNode {
	h := p.Header()
	h.Flags = InternalPageFlag
	h.Size = 0
	h.MaxSize = uint16(maxSize)
	h.KeySize = uint16(keySize)
	h.Parent = parent
	h.Next = InvalidPageID
	return AsInternal(p)
}

func (in InternalNode) slotSize() int { return in.KeySize() + childIDSize }

func (in InternalNode) slotRange(i, j int) []byte {
	lo := NodeHeaderSize + i*in.slotSize()
	hi := NodeHeaderSize + j*in.slotSize()
	return in.page.data[lo:hi]
}

// Capacity is the physical slot limit for this node's key width. The
// tree keeps MaxSize below it so a split-pending insert still fits.
func (in InternalNode) Capacity() int { return InternalCapacity(in.KeySize()) }

func (in InternalNode) KeyAt(i int) []byte {
	return in.slotRange(i, i+1)[:in.KeySize()]
}

func (in InternalNode) SetKeyAt(i int, key []byte) {
	copy(in.slotRange(i, i+1)[:in.KeySize()], key)
}

func (in InternalNode) ChildAt(i int) PageID {
	return PageID(binary.LittleEndian.Uint64(in.slotRange(i, i+1)[in.KeySize():]))
}

func (in InternalNode) SetChildAt(i int, id PageID) {
	binary.LittleEndian.PutUint64(in.slotRange(i, i+1)[in.KeySize():], uint64(id))
}

func (in InternalNode) setSlot(i int, key []byte, child PageID) {
	in.SetKeyAt(i, key)
	in.SetChildAt(i, child)
}

// Lookup returns the child whose subtree contains key. leftMost and
// rightMost force the outermost children for iterator construction.
func (in InternalNode) Lookup(key []byte, cmp Comparator, leftMost, rightMost bool) PageID {
	if leftMost {
		return in.ChildAt(0)
	}
	if rightMost {
		return in.ChildAt(in.Size() - 1)
	}
	// First separator strictly greater than key; the child before it
	// owns the range.
	lo, hi := 1, in.Size()
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(key, in.KeyAt(mid)) < 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return in.ChildAt(lo - 1)
}

// Insert places (key, child) at its separator rank. Returns false if
// the key is already present or the page is physically full.
func (in InternalNode) Insert(key []byte, child PageID, cmp Comparator) bool {
	if in.Size() >= in.Capacity() {
		return false
	}
	lo, hi := 1, in.Size()
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(in.KeyAt(mid), key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < in.Size() && cmp(in.KeyAt(lo), key) == 0 {
		return false
	}
	in.shiftRight(lo, 1)
	in.setSlot(lo, key, child)
	in.SetSize(in.Size() + 1)
	return true
}

// InsertAfter places (key, child) in the slot immediately after the
// one holding leftChild. Splits post their separator positionally:
// rank insertion could misplace the slot next to a stale separator
// left behind by a deleted-then-reinserted key.
func (in InternalNode) InsertAfter(leftChild PageID, key []byte, child PageID) bool {
	if in.Size() >= in.Capacity() {
		return false
	}
	idx := in.ValueIndex(leftChild)
	if idx < 0 {
		return false
	}
	in.shiftRight(idx+1, 1)
	in.setSlot(idx+1, key, child)
	in.SetSize(in.Size() + 1)
	return true
}

// ValueIndex returns the slot holding child, or -1.
func (in InternalNode) ValueIndex(child PageID) int {
	for i := 0; i < in.Size(); i++ {
		if in.ChildAt(i) == child {
			return i
		}
	}
	return -1
}

func (in InternalNode) RemoveAt(i int) {
	copy(in.slotRange(i, in.Size()-1), in.slotRange(i+1, in.Size()))
	in.SetSize(in.Size() - 1)
}

func (in InternalNode) shiftRight(from, by int) {
	copy(in.slotRange(from+by, in.Size()+by), in.slotRange(from, in.Size()))
}

// RemoveAndReturnOnlyChild shrinks a size-1 node to empty and yields
// its single child, for root collapse.
func (in InternalNode) RemoveAndReturnOnlyChild() PageID {
	child := in.ChildAt(0)
	in.SetSize(0)
	return child
}

// InitAsRoot populates a fresh internal node with exactly two children
// separated by key.
func (in InternalNode) InitAsRoot(left PageID, key []byte, right PageID) {
	in.SetChildAt(0, left)
	in.setSlot(1, key, right)
	in.SetSize(2)
}

// MoveHalfTo moves slots Size()/2 onward into the fresh right sibling
// dst. The key landing in dst's sentinel slot is the separator to
// promote; read it from dst.KeyAt(0).
func (in InternalNode) MoveHalfTo(dst InternalNode) {
	mid := in.Size() / 2
	n := in.Size() - mid
	copy(dst.slotRange(0, n), in.slotRange(mid, in.Size()))
	dst.SetSize(n)
	in.SetSize(mid)
}

// MoveFirstToEndOf appends (middleKey, first child) to dst and drops
// the receiver's sentinel slot. Returns the moved child for the caller
// to reparent.
func (in InternalNode) MoveFirstToEndOf(dst InternalNode, middleKey []byte) PageID {
	moved := in.ChildAt(0)
	dst.setSlot(dst.Size(), middleKey, moved)
	dst.SetSize(dst.Size() + 1)
	in.RemoveAt(0)
	return moved
}

// MoveLastToFrontOf prepends the receiver's last child as dst's new
// sentinel; dst's previous sentinel child is re-keyed with middleKey.
// Returns the moved child for the caller to reparent.
func (in InternalNode) MoveLastToFrontOf(dst InternalNode, middleKey []byte) PageID {
	last := in.Size() - 1
	moved := in.ChildAt(last)
	dst.shiftRight(0, 1)
	dst.setSlot(0, in.KeyAt(last), moved)
	dst.SetKeyAt(1, middleKey)
	dst.SetSize(dst.Size() + 1)
	in.SetSize(last)
	return moved
}

// MoveAllToEndOf appends the receiver's slots to dst, routing the
// sentinel child under middleKey (the parent separator between the two
// nodes). The caller reparents the moved children.
func (in InternalNode) MoveAllToEndOf(dst InternalNode, middleKey []byte) {
	n := in.Size()
	base := dst.Size()
	dst.setSlot(base, middleKey, in.ChildAt(0))
	copy(dst.slotRange(base+1, base+n), in.slotRange(1, n))
	dst.SetSize(base + n)
	in.SetSize(0)
}

// MoveAllToFrontOf prepends the receiver's slots to dst; dst's old
// sentinel child is re-keyed with middleKey.
func (in InternalNode) MoveAllToFrontOf(dst InternalNode, middleKey []byte) {
	n := in.Size()
	dst.shiftRight(0, n)
	copy(dst.slotRange(0, n), in.slotRange(0, n))
	dst.SetKeyAt(n, middleKey)
	dst.SetSize(dst.Size() + n)
	in.SetSize(0)
}
