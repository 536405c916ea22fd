package storage

import (
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"

	"grove/internal/base"
)

// DiskManager reads and writes fixed-size pages of a single index file.
// Every written page carries an xxhash64 seal in its first eight bytes;
// a zero seal marks a page that was never written (reads past EOF and
// freshly allocated pages come back zeroed).
type DiskManager struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	numPages uint64
	free     *FreeList
}

// Open opens or creates the index file at path. Page 0 is always
// reserved for the header page.
func Open(path string) (*DiskManager, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, errors.Wrapf(err, "open index file %s", path)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "stat index file %s", path)
	}

	numPages := uint64(info.Size()) / base.PageSize
	if numPages == 0 {
		numPages = 1 // header page
	}

	return &DiskManager{
		file:     file,
		path:     path,
		numPages: numPages,
		free:     NewFreeList(),
	}, nil
}

// ReadPage fills p with the contents of page id. Reads beyond the
// current file size yield a zeroed page.
func (d *DiskManager) ReadPage(id base.PageID, p *base.Page) error {
	data := p.Data()
	n, err := d.file.ReadAt(data, int64(id)*base.PageSize)
	if err == io.EOF {
		clear(data[n:])
		err = nil
	}
	if err != nil {
		return errors.Wrapf(err, "read page %d", id)
	}

	if stored := binary.LittleEndian.Uint64(data[:base.ChecksumSize]); stored != 0 {
		if xxhash.Sum64(data[base.ChecksumSize:]) != stored {
			return errors.Wrapf(base.ErrChecksum, "page %d", id)
		}
	}
	return nil
}

// WritePage seals p with its checksum and writes it at page id.
func (d *DiskManager) WritePage(id base.PageID, p *base.Page) error {
	data := p.Data()
	binary.LittleEndian.PutUint64(data[:base.ChecksumSize], xxhash.Sum64(data[base.ChecksumSize:]))
	if _, err := d.file.WriteAt(data, int64(id)*base.PageSize); err != nil {
		return errors.Wrapf(err, "write page %d", id)
	}
	return nil
}

// Allocate hands out a page id, reusing freed pages before growing the
// file.
func (d *DiskManager) Allocate() (base.PageID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if id := d.free.Allocate(); id != base.InvalidPageID {
		return id, nil
	}
	id := base.PageID(d.numPages)
	d.numPages++
	return id, nil
}

// Deallocate returns a page id to the free list.
func (d *DiskManager) Deallocate(id base.PageID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.free.Free(id)
}

// NumPages is the high-water page count, free pages included.
func (d *DiskManager) NumPages() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.numPages
}

// FreePages is the count of deallocated pages awaiting reuse.
func (d *DiskManager) FreePages() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.free.Len()
}

// Size reports the index file size in bytes.
func (d *DiskManager) Size() (int64, error) {
	info, err := d.file.Stat()
	if err != nil {
		return 0, errors.Wrapf(err, "stat index file %s", d.path)
	}
	return info.Size(), nil
}

// Sync flushes written pages to stable storage.
func (d *DiskManager) Sync() error {
	if err := fdatasync(d.file); err != nil {
		return errors.Wrapf(err, "sync index file %s", d.path)
	}
	return nil
}

func (d *DiskManager) Close() error {
	if err := d.Sync(); err != nil {
		d.file.Close()
		return err
	}
	return errors.Wrapf(d.file.Close(), "close index file %s", d.path)
}
