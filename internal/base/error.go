package base

import "errors"

var (
	ErrChecksum = errors.New("page checksum mismatch")

	ErrInvalidFrame      = errors.New("frame id out of range")
	ErrFrameNotEvictable = errors.New("frame is not evictable")

	ErrNoFreeFrames  = errors.New("buffer pool exhausted: all frames pinned")
	ErrPagePinned    = errors.New("page is pinned")
	ErrPageNotFound  = errors.New("page not resident in buffer pool")
	ErrPageNotPinned = errors.New("page has no outstanding pins")
)
