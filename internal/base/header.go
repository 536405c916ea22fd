package base

import (
	"bytes"
	"encoding/binary"
)

// The header page (page 0) is a flat record table mapping index names
// to root page ids. Layout after the checksum word:
//
//	[RecordCount: 4][pad: 4] then RecordCount records of
//	[Name: IndexNameSize, zero padded][RootPageID: 8]
const (
	headerCountOffset  = ChecksumSize
	headerRecordsStart = ChecksumSize + 8
	headerRecordSize   = IndexNameSize + 8
)

// HeaderRecordCapacity is how many index records fit in the header page.
const HeaderRecordCapacity = (PageSize - headerRecordsStart) / headerRecordSize

// HeaderPage views page 0's record table.
type HeaderPage struct {
	page *Page
}

func AsHeader(p *Page) HeaderPage { return HeaderPage{page: p} }

func (h HeaderPage) RecordCount() int {
	return int(binary.LittleEndian.Uint32(h.page.data[headerCountOffset:]))
}

func (h HeaderPage) setRecordCount(n int) {
	binary.LittleEndian.PutUint32(h.page.data[headerCountOffset:], uint32(n))
}

func (h HeaderPage) record(i int) []byte {
	off := headerRecordsStart + i*headerRecordSize
	return h.page.data[off : off+headerRecordSize]
}

func (h HeaderPage) find(name string) int {
	padded := padName(name)
	for i := 0; i < h.RecordCount(); i++ {
		if bytes.Equal(h.record(i)[:IndexNameSize], padded) {
			return i
		}
	}
	return -1
}

// GetRootPageID looks up the root recorded for name.
func (h HeaderPage) GetRootPageID(name string) (PageID, bool) {
	i := h.find(name)
	if i < 0 {
		return InvalidPageID, false
	}
	return PageID(binary.LittleEndian.Uint64(h.record(i)[IndexNameSize:])), true
}

// InsertRecord adds a record for name. False if the name exists, is too
// long, or the table is full.
func (h HeaderPage) InsertRecord(name string, root PageID) bool {
	if len(name) > IndexNameSize || h.RecordCount() >= HeaderRecordCapacity {
		return false
	}
	if h.find(name) >= 0 {
		return false
	}
	rec := h.record(h.RecordCount())
	copy(rec[:IndexNameSize], padName(name))
	binary.LittleEndian.PutUint64(rec[IndexNameSize:], uint64(root))
	h.setRecordCount(h.RecordCount() + 1)
	return true
}

// UpdateRecord rewrites the root for an existing record. False when the
// name is unknown.
func (h HeaderPage) UpdateRecord(name string, root PageID) bool {
	i := h.find(name)
	if i < 0 {
		return false
	}
	binary.LittleEndian.PutUint64(h.record(i)[IndexNameSize:], uint64(root))
	return true
}

// DeleteRecord drops the record for name, compacting the table.
func (h HeaderPage) DeleteRecord(name string) bool {
	i := h.find(name)
	if i < 0 {
		return false
	}
	n := h.RecordCount()
	copy(h.page.data[headerRecordsStart+i*headerRecordSize:],
		h.page.data[headerRecordsStart+(i+1)*headerRecordSize:headerRecordsStart+n*headerRecordSize])
	h.setRecordCount(n - 1)
	return true
}

// HeaderRecord is one decoded entry of the header page table.
type HeaderRecord struct {
	Name string
	Root PageID
}

// Records decodes the whole table, for inspection tooling.
func (h HeaderPage) Records() []HeaderRecord {
	records := make([]HeaderRecord, 0, h.RecordCount())
	for i := 0; i < h.RecordCount(); i++ {
		rec := h.record(i)
		name := string(bytes.TrimRight(rec[:IndexNameSize], "\x00"))
		records = append(records, HeaderRecord{
			Name: name,
			Root: PageID(binary.LittleEndian.Uint64(rec[IndexNameSize:])),
		})
	}
	return records
}

func padName(name string) []byte {
	padded := make([]byte, IndexNameSize)
	copy(padded, name)
	return padded
}
