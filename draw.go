package grove

import (
	"fmt"
	"io"

	"grove/internal/base"
)

// Draw writes a GraphViz DOT rendering of the tree. Read-only and
// latch-free: the caller must ensure no writers are running.
func (t *BPlusTree) Draw(w io.Writer) error {
	if t.IsEmpty() {
		t.log.Warn("draw on empty tree", "index", t.name)
		return nil
	}
	if _, err := fmt.Fprintln(w, "digraph G {"); err != nil {
		return err
	}
	if err := t.drawNode(w, t.RootPageID()); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, "}")
	return err
}

func (t *BPlusTree) drawNode(w io.Writer, id base.PageID) error {
	page, err := t.pool.FetchPage(id)
	if err != nil {
		return err
	}
	defer t.pool.UnpinPage(id, false)

	node := base.NodeOf(page)
	if node.IsLeaf() {
		leaf := base.AsLeaf(page)
		fmt.Fprintf(w, "  LEAF_%d [shape=record label=\"{P=%d size=%d/%d|", id, id, leaf.Size(), leaf.MaxSize())
		for i := 0; i < leaf.Size(); i++ {
			if i > 0 {
				fmt.Fprint(w, "|")
			}
			fmt.Fprintf(w, "%x", leaf.KeyAt(i))
		}
		fmt.Fprintln(w, "}\"];")
		if next := leaf.Next(); next != base.InvalidPageID {
			fmt.Fprintf(w, "  LEAF_%d -> LEAF_%d;\n", id, next)
			fmt.Fprintf(w, "  {rank=same LEAF_%d LEAF_%d};\n", id, next)
		}
		return nil
	}

	in := base.AsInternal(page)
	fmt.Fprintf(w, "  INT_%d [shape=record label=\"{P=%d size=%d/%d|", id, id, in.Size(), in.MaxSize())
	for i := 0; i < in.Size(); i++ {
		if i > 0 {
			fmt.Fprint(w, "|")
		}
		if i == 0 {
			fmt.Fprintf(w, "<p%d> ", in.ChildAt(i))
		} else {
			fmt.Fprintf(w, "<p%d> %x", in.ChildAt(i), in.KeyAt(i))
		}
	}
	fmt.Fprintln(w, "}\"];")

	for i := 0; i < in.Size(); i++ {
		child := in.ChildAt(i)
		prefix := "INT"
		cp, err := t.pool.FetchPage(child)
		if err != nil {
			return err
		}
		if base.NodeOf(cp).IsLeaf() {
			prefix = "LEAF"
		}
		t.pool.UnpinPage(child, false)
		fmt.Fprintf(w, "  INT_%d:p%d -> %s_%d;\n", id, child, prefix, child)
		if err := t.drawNode(w, child); err != nil {
			return err
		}
	}
	return nil
}

// Print dumps every node to w in descent order. Read-only and
// latch-free like Draw.
func (t *BPlusTree) Print(w io.Writer) error {
	if t.IsEmpty() {
		t.log.Warn("print on empty tree", "index", t.name)
		return nil
	}
	return t.printNode(w, t.RootPageID())
}

func (t *BPlusTree) printNode(w io.Writer, id base.PageID) error {
	page, err := t.pool.FetchPage(id)
	if err != nil {
		return err
	}
	defer t.pool.UnpinPage(id, false)

	node := base.NodeOf(page)
	if node.IsLeaf() {
		leaf := base.AsLeaf(page)
		fmt.Fprintf(w, "leaf page %d parent %d next %d:", id, leaf.Parent(), leaf.Next())
		for i := 0; i < leaf.Size(); i++ {
			fmt.Fprintf(w, " %x", leaf.KeyAt(i))
		}
		fmt.Fprintln(w)
		return nil
	}

	in := base.AsInternal(page)
	fmt.Fprintf(w, "internal page %d parent %d:", id, in.Parent())
	for i := 0; i < in.Size(); i++ {
		if i == 0 {
			fmt.Fprintf(w, " <%d>", in.ChildAt(i))
		} else {
			fmt.Fprintf(w, " %x<%d>", in.KeyAt(i), in.ChildAt(i))
		}
	}
	fmt.Fprintln(w)

	for i := 0; i < in.Size(); i++ {
		if err := t.printNode(w, in.ChildAt(i)); err != nil {
			return err
		}
	}
	return nil
}
