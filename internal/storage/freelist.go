package storage

import "grove/internal/base"

// FreeList tracks deallocated page ids for reuse. Purely in memory: the
// index file is append-grown and freed pages are simply handed out
// again before the file grows further.
type FreeList struct {
	ids []base.PageID
}

func NewFreeList() *FreeList {
	return &FreeList{}
}

// Allocate pops the most recently freed page id, or InvalidPageID when
// the list is empty.
func (f *FreeList) Allocate() base.PageID {
	if len(f.ids) == 0 {
		return base.InvalidPageID
	}
	id := f.ids[len(f.ids)-1]
	f.ids = f.ids[:len(f.ids)-1]
	return id
}

func (f *FreeList) Free(id base.PageID) {
	f.ids = append(f.ids, id)
}

func (f *FreeList) Len() int { return len(f.ids) }
