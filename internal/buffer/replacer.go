package buffer

import (
	"container/list"
	"sync"

	"grove/internal/base"
)

// LRUKReplacer picks eviction victims among unpinned frames. Frames
// with fewer than k recorded accesses live on the history list, ordered
// by first access; frames with k or more live on the cache list,
// ordered by most recent access. Eviction drains the history list
// first, so a frame must prove k recurrences before it is treated as
// part of the working set. A plain LRU would let a single scan flush
// hot pages.
type LRUKReplacer struct {
	mu        sync.Mutex
	k         int
	numFrames int
	evictable int

	frames  map[base.FrameID]*frameState
	history *list.List // front = most recent arrival
	cache   *list.List // front = most recently touched
}

type frameState struct {
	count     int
	evictable bool
	elem      *list.Element
	inCache   bool
}

func NewLRUKReplacer(numFrames, k int) *LRUKReplacer {
	return &LRUKReplacer{
		k:         k,
		numFrames: numFrames,
		frames:    make(map[base.FrameID]*frameState, numFrames),
		history:   list.New(),
		cache:     list.New(),
	}
}

// RecordAccess notes one access to frame. Crossing the k-th access
// moves the frame from the history list to the cache list; accesses
// below k never reorder the history list.
func (r *LRUKReplacer) RecordAccess(id base.FrameID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id < 0 || int(id) >= r.numFrames {
		return base.ErrInvalidFrame
	}

	s := r.frames[id]
	if s == nil {
		s = &frameState{}
		r.frames[id] = s
	}
	s.count++

	switch {
	case s.count == r.k:
		if s.elem != nil {
			r.history.Remove(s.elem)
		}
		s.elem = r.cache.PushFront(id)
		s.inCache = true
	case s.count > r.k:
		r.cache.MoveToFront(s.elem)
	default:
		if s.elem == nil {
			s.elem = r.history.PushFront(id)
		}
	}
	return nil
}

// SetEvictable flags whether frame may be chosen as a victim. A no-op
// for frames that were never accessed.
func (r *LRUKReplacer) SetEvictable(id base.FrameID, evictable bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id < 0 || int(id) >= r.numFrames {
		return base.ErrInvalidFrame
	}

	s := r.frames[id]
	if s == nil {
		return nil
	}
	if evictable && !s.evictable {
		r.evictable++
	}
	if !evictable && s.evictable {
		r.evictable--
	}
	s.evictable = evictable
	return nil
}

// Evict removes and returns the best victim: the oldest-arrival
// evictable frame from the history list, else the least recently
// touched evictable frame from the cache list.
func (r *LRUKReplacer) Evict() (base.FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, l := range []*list.List{r.history, r.cache} {
		for e := l.Back(); e != nil; e = e.Prev() {
			id := e.Value.(base.FrameID)
			if r.frames[id].evictable {
				l.Remove(e)
				delete(r.frames, id)
				r.evictable--
				return id, true
			}
		}
	}
	return 0, false
}

// Remove forcibly drops frame from the replacer. Unlike Evict the
// caller names the frame; it must be known and evictable.
func (r *LRUKReplacer) Remove(id base.FrameID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id < 0 || int(id) >= r.numFrames {
		return base.ErrInvalidFrame
	}
	s := r.frames[id]
	if s == nil || s.count == 0 {
		return base.ErrInvalidFrame
	}
	if !s.evictable {
		return base.ErrFrameNotEvictable
	}
	if s.inCache {
		r.cache.Remove(s.elem)
	} else {
		r.history.Remove(s.elem)
	}
	delete(r.frames, id)
	r.evictable--
	return nil
}

// Size is the count of currently evictable frames.
func (r *LRUKReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evictable
}
