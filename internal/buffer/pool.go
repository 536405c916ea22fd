package buffer

import (
	"sync"

	"grove/internal/base"
	"grove/internal/storage"
)

const (
	// DefaultPoolSize holds 1024 frames, 4MB of pages.
	DefaultPoolSize = 1024
	// MinPoolSize must cover one root-to-leaf path plus the pages a
	// single structural change touches.
	MinPoolSize = 16
	// DefaultK is the recurrence threshold for the LRU-K replacer.
	DefaultK = 2
)

// PoolManager is the page store: a fixed set of in-memory frames backed
// by the disk manager, with pin counts deciding residency and the LRU-K
// replacer deciding eviction. Callers pair every FetchPage/NewPage with
// exactly one UnpinPage on every control-flow exit.
type PoolManager struct {
	mu        sync.Mutex
	disk      *storage.DiskManager
	frames    []*base.Page
	pageTable map[base.PageID]base.FrameID
	freeList  []base.FrameID
	replacer  *LRUKReplacer
}

// NewPoolManager builds a pool of poolSize frames over disk, evicting
// with LRU-k.
func NewPoolManager(poolSize, k int, disk *storage.DiskManager) *PoolManager {
	if poolSize < MinPoolSize {
		poolSize = MinPoolSize
	}
	if k < 1 {
		k = DefaultK
	}

	b := &PoolManager{
		disk:      disk,
		frames:    make([]*base.Page, poolSize),
		pageTable: make(map[base.PageID]base.FrameID, poolSize),
		freeList:  make([]base.FrameID, 0, poolSize),
		replacer:  NewLRUKReplacer(poolSize, k),
	}
	for i := range b.frames {
		b.frames[i] = &base.Page{}
		b.freeList = append(b.freeList, base.FrameID(i))
	}
	return b
}

// FetchPage pins the page and returns its frame, faulting it in from
// disk when not resident. Fails with ErrNoFreeFrames when every frame
// is pinned.
func (b *PoolManager) FetchPage(id base.PageID) (*base.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if fid, ok := b.pageTable[id]; ok {
		p := b.frames[fid]
		p.IncPin()
		b.replacer.RecordAccess(fid)
		b.replacer.SetEvictable(fid, false)
		return p, nil
	}

	fid, err := b.takeFrame()
	if err != nil {
		return nil, err
	}
	p := b.frames[fid]
	if err := b.disk.ReadPage(id, p); err != nil {
		// Frame stays clean; hand it back.
		b.freeList = append(b.freeList, fid)
		return nil, err
	}
	p.SetID(id)
	p.IncPin()
	b.pageTable[id] = fid
	b.replacer.RecordAccess(fid)
	b.replacer.SetEvictable(fid, false)
	return p, nil
}

// NewPage allocates a page on disk and pins a zeroed frame for it.
func (b *PoolManager) NewPage() (*base.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	fid, err := b.takeFrame()
	if err != nil {
		return nil, err
	}
	id, err := b.disk.Allocate()
	if err != nil {
		b.freeList = append(b.freeList, fid)
		return nil, err
	}
	p := b.frames[fid]
	p.SetID(id)
	p.IncPin()
	// A fresh page must reach disk even if the caller never writes it:
	// a reused id would otherwise resurrect stale bytes on fault-in.
	p.SetDirty(true)
	b.pageTable[id] = fid
	b.replacer.RecordAccess(fid)
	b.replacer.SetEvictable(fid, false)
	return p, nil
}

// UnpinPage drops one pin, recording dirtiness. The frame becomes
// evictable when the last pin is released.
func (b *PoolManager) UnpinPage(id base.PageID, dirty bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	fid, ok := b.pageTable[id]
	if !ok {
		return base.ErrPageNotFound
	}
	p := b.frames[fid]
	if dirty {
		p.SetDirty(true)
	}
	if p.PinCount() <= 0 {
		return base.ErrPageNotPinned
	}
	p.DecPin()
	if p.PinCount() == 0 {
		b.replacer.SetEvictable(fid, true)
	}
	return nil
}

// DeletePage evicts the page from the pool and returns its id to the
// disk manager's free list. Fails with ErrPagePinned while pins remain.
func (b *PoolManager) DeletePage(id base.PageID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	fid, ok := b.pageTable[id]
	if ok {
		p := b.frames[fid]
		if p.PinCount() > 0 {
			return base.ErrPagePinned
		}
		if err := b.replacer.Remove(fid); err != nil {
			return err
		}
		delete(b.pageTable, id)
		p.Reset()
		b.freeList = append(b.freeList, fid)
	}
	b.disk.Deallocate(id)
	return nil
}

// FlushPage writes the page to disk regardless of dirtiness.
func (b *PoolManager) FlushPage(id base.PageID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	fid, ok := b.pageTable[id]
	if !ok {
		return base.ErrPageNotFound
	}
	p := b.frames[fid]
	if err := b.disk.WritePage(id, p); err != nil {
		return err
	}
	p.SetDirty(false)
	return nil
}

// FlushAll writes every resident page to disk.
func (b *PoolManager) FlushAll() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, fid := range b.pageTable {
		p := b.frames[fid]
		if err := b.disk.WritePage(id, p); err != nil {
			return err
		}
		p.SetDirty(false)
	}
	return nil
}

// PinnedPages counts frames with outstanding pins.
func (b *PoolManager) PinnedPages() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, p := range b.frames {
		if p.PinCount() > 0 {
			n++
		}
	}
	return n
}

// PoolSize is the frame count.
func (b *PoolManager) PoolSize() int { return len(b.frames) }

// Disk exposes the backing disk manager.
func (b *PoolManager) Disk() *storage.DiskManager { return b.disk }

// Close flushes all resident pages, syncs, and closes the file.
func (b *PoolManager) Close() error {
	if err := b.FlushAll(); err != nil {
		b.disk.Close()
		return err
	}
	return b.disk.Close()
}

// takeFrame pops a free frame or evicts a victim, flushing it first if
// dirty. Caller holds the pool mutex.
func (b *PoolManager) takeFrame() (base.FrameID, error) {
	if n := len(b.freeList); n > 0 {
		fid := b.freeList[n-1]
		b.freeList = b.freeList[:n-1]
		return fid, nil
	}

	fid, ok := b.replacer.Evict()
	if !ok {
		return 0, base.ErrNoFreeFrames
	}
	victim := b.frames[fid]
	if victim.IsDirty() {
		if err := b.disk.WritePage(victim.ID(), victim); err != nil {
			// Put the victim back so the pool stays consistent.
			b.replacer.RecordAccess(fid)
			b.replacer.SetEvictable(fid, true)
			return 0, err
		}
	}
	delete(b.pageTable, victim.ID())
	victim.Reset()
	return fid, nil
}
