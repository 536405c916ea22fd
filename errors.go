package grove

import (
	"errors"

	"grove/internal/base"
)

var (
	ErrKeySize     = errors.New("key length does not match index key width")
	ErrNameTooLong = errors.New("index name exceeds header record width")

	ErrChecksum          = base.ErrChecksum
	ErrInvalidFrame      = base.ErrInvalidFrame
	ErrFrameNotEvictable = base.ErrFrameNotEvictable
	ErrNoFreeFrames      = base.ErrNoFreeFrames
	ErrPagePinned        = base.ErrPagePinned
	ErrPageNotFound      = base.ErrPageNotFound
	ErrPageNotPinned     = base.ErrPageNotPinned
)
