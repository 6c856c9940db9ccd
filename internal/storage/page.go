// Package storage implements NanoDB's paged file layer: the file-header
// codec (DBFile), the slotted-page tuple layout (Page) and the LRU
// buffer pool sitting on top of both. It generalizes the teacher's
// storage/page.go and storage/disk.go — both built around a hardcoded
// 4096-byte page — to spec.md's configurable power-of-two page size.
package storage

import (
	"encoding/binary"
	"math/bits"

	"github.com/nanodb/nanodb/internal/dberr"
	"github.com/nanodb/nanodb/pkg/types"
)

// PageHeaderSize is the fixed-width header every page carries before its
// slotted tuple region:
// PageID(4) + PageType(1) + Reserved(3) + LSN(8) + SlotCount(2) +
// FreeSpaceOffset(2) + FreeSpaceEnd(2) + NextPageID(4) + Reserved(2).
const PageHeaderSize = 28

// Page types.
const (
	PageTypeData    = 1
	PageTypeCatalog = 3
	PageTypeHeader  = 4
)

// MinPageSize and MaxPageSize bound spec.md's valid page sizes: powers of
// two from 512 to 65536, which is what the single page-size-encoding byte
// (log2(pageSize)-9) can address.
const (
	MinPageSize = 512
	MaxPageSize = 65536
)

// IsValidPageSize reports whether size is a power of two in [512, 65536],
// implementing the Open Question decision recorded in SPEC_FULL.md §E.1.
func IsValidPageSize(size int) bool {
	if size < MinPageSize || size > MaxPageSize {
		return false
	}
	return size&(size-1) == 0
}

// EncodePageSize converts a valid page size to its single-byte header
// encoding: log2(pageSize) - 9, so 512 -> 0 and 65536 -> 7.
func EncodePageSize(size int) (byte, error) {
	if !IsValidPageSize(size) {
		return 0, dberr.StorageFormatf("storage.EncodePageSize", "invalid page size %d", size)
	}
	return byte(bits.TrailingZeros(uint(size)) - 9), nil
}

// DecodePageSize is the inverse of EncodePageSize.
func DecodePageSize(b byte) int {
	return 1 << (uint(b) + 9)
}

// Page is a fixed-size disk page using a slot directory that grows forward
// from the header and a tuple heap that grows backward from the end of the
// page, meeting in the middle as the page fills.
type Page struct {
	ID         types.PageID
	Type       uint8
	PageSize   int
	LSN        types.LSN
	NextPageID types.PageID
	IsDirty    bool
	PinCount   int
	Data       []byte
}

// NewPage creates a new, empty page of the given size.
func NewPage(id types.PageID, pageType uint8, pageSize int) *Page {
	p := &Page{ID: id, Type: pageType, PageSize: pageSize, Data: make([]byte, pageSize)}
	p.init()
	return p
}

func (p *Page) init() {
	binary.LittleEndian.PutUint32(p.Data[0:4], uint32(p.ID))
	p.Data[4] = p.Type
	binary.LittleEndian.PutUint64(p.Data[8:16], uint64(p.LSN))
	binary.LittleEndian.PutUint16(p.Data[16:18], 0)
	binary.LittleEndian.PutUint16(p.Data[18:20], uint16(PageHeaderSize))
	binary.LittleEndian.PutUint16(p.Data[20:22], uint16(p.PageSize))
	p.NextPageID = types.InvalidPageID
	binary.LittleEndian.PutUint32(p.Data[22:26], uint32(types.InvalidPageID))
}

func (p *Page) GetSlotCount() uint16 { return binary.LittleEndian.Uint16(p.Data[16:18]) }

func (p *Page) setSlotCount(count uint16) { binary.LittleEndian.PutUint16(p.Data[16:18], count) }

func (p *Page) GetFreeSpaceOffset() uint16 { return binary.LittleEndian.Uint16(p.Data[18:20]) }

func (p *Page) setFreeSpaceOffset(offset uint16) {
	binary.LittleEndian.PutUint16(p.Data[18:20], offset)
}

func (p *Page) GetFreeSpaceEnd() uint16 { return binary.LittleEndian.Uint16(p.Data[20:22]) }

func (p *Page) setFreeSpaceEnd(end uint16) { binary.LittleEndian.PutUint16(p.Data[20:22], end) }

func (p *Page) SetLSN(lsn types.LSN) {
	p.LSN = lsn
	binary.LittleEndian.PutUint64(p.Data[8:16], uint64(lsn))
}

func (p *Page) GetLSN() types.LSN {
	return types.LSN(binary.LittleEndian.Uint64(p.Data[8:16]))
}

func (p *Page) GetNextPageID() types.PageID {
	return types.PageID(binary.LittleEndian.Uint32(p.Data[22:26]))
}

func (p *Page) SetNextPageID(nextID types.PageID) {
	p.NextPageID = nextID
	binary.LittleEndian.PutUint32(p.Data[22:26], uint32(nextID))
	p.IsDirty = true
}

const slotSize = 4 // Offset(2) + Length(2)

func (p *Page) getSlot(slotNum uint16) (offset, length uint16) {
	slotPos := PageHeaderSize + int(slotNum)*slotSize
	offset = binary.LittleEndian.Uint16(p.Data[slotPos : slotPos+2])
	length = binary.LittleEndian.Uint16(p.Data[slotPos+2 : slotPos+4])
	return
}

func (p *Page) setSlot(slotNum uint16, offset, length uint16) {
	slotPos := PageHeaderSize + int(slotNum)*slotSize
	binary.LittleEndian.PutUint16(p.Data[slotPos:slotPos+2], offset)
	binary.LittleEndian.PutUint16(p.Data[slotPos+2:slotPos+4], length)
}

// FreeSpace returns the bytes available for a new tuple, after reserving
// room for the slot entry a new insert would also need.
func (p *Page) FreeSpace() int {
	return int(p.GetFreeSpaceEnd()) - int(p.GetFreeSpaceOffset()) - slotSize
}

// InsertTuple writes data into the tuple heap and allocates a new slot for
// it, reusing the first deleted (zero-length) slot if one exists so
// repeated insert/delete cycles don't grow the slot directory unboundedly.
func (p *Page) InsertTuple(data []byte) (uint16, error) {
	dataLen := len(data)

	if slotNum, ok := p.findDeletedSlot(); ok {
		if p.GetFreeSpaceEnd()-p.GetFreeSpaceOffset() < uint16(dataLen) {
			return 0, dberr.NoRoomf("storage.Page.InsertTuple", "page %d has no room for %d bytes", p.ID, dataLen)
		}
		freeEnd := p.GetFreeSpaceEnd()
		newEnd := freeEnd - uint16(dataLen)
		p.setFreeSpaceEnd(newEnd)
		copy(p.Data[newEnd:freeEnd], data)
		p.setSlot(slotNum, newEnd, uint16(dataLen))
		p.IsDirty = true
		return slotNum, nil
	}

	if p.FreeSpace() < dataLen {
		return 0, dberr.NoRoomf("storage.Page.InsertTuple", "page %d has no room for %d bytes", p.ID, dataLen)
	}

	freeEnd := p.GetFreeSpaceEnd()
	newEnd := freeEnd - uint16(dataLen)
	p.setFreeSpaceEnd(newEnd)
	copy(p.Data[newEnd:freeEnd], data)

	slotNum := p.GetSlotCount()
	p.setSlot(slotNum, newEnd, uint16(dataLen))
	p.setSlotCount(slotNum + 1)
	p.setFreeSpaceOffset(uint16(PageHeaderSize + (int(slotNum)+1)*slotSize))

	p.IsDirty = true
	return slotNum, nil
}

// findDeletedSlot looks for a slot marked deleted (length 0), as
// DeleteTuple leaves it, so new inserts reuse the slot directory entry
// instead of appending one.
func (p *Page) findDeletedSlot() (uint16, bool) {
	count := p.GetSlotCount()
	for i := uint16(0); i < count; i++ {
		_, length := p.getSlot(i)
		if length == 0 {
			return i, true
		}
	}
	return 0, false
}

// GetTuple returns the tuple bytes at slotNum, or dberr.InvalidPointer if
// the slot doesn't exist or was deleted.
func (p *Page) GetTuple(slotNum uint16) ([]byte, error) {
	if slotNum >= p.GetSlotCount() {
		return nil, dberr.InvalidPointerf("storage.Page.GetTuple", "slot %d out of range on page %d", slotNum, p.ID)
	}
	offset, length := p.getSlot(slotNum)
	if length == 0 {
		return nil, dberr.InvalidPointerf("storage.Page.GetTuple", "slot %d on page %d is deleted", slotNum, p.ID)
	}
	data := make([]byte, length)
	copy(data, p.Data[offset:offset+length])
	return data, nil
}

// UpdateTuple overwrites the tuple at slotNum. If the new data is no larger
// than the old, it's written in place; otherwise the old bytes are
// abandoned (to be reclaimed by the next Compact) and new space is
// allocated from the free region.
func (p *Page) UpdateTuple(slotNum uint16, data []byte) error {
	if slotNum >= p.GetSlotCount() {
		return dberr.InvalidPointerf("storage.Page.UpdateTuple", "slot %d out of range on page %d", slotNum, p.ID)
	}

	offset, oldLen := p.getSlot(slotNum)
	newLen := uint16(len(data))

	if newLen <= oldLen {
		copy(p.Data[offset:], data)
		p.setSlot(slotNum, offset, newLen)
		p.IsDirty = true
		return nil
	}

	if p.FreeSpace() < int(newLen) {
		return dberr.NoRoomf("storage.Page.UpdateTuple", "page %d has no room to grow slot %d to %d bytes", p.ID, slotNum, newLen)
	}

	freeEnd := p.GetFreeSpaceEnd()
	newEnd := freeEnd - newLen
	p.setFreeSpaceEnd(newEnd)
	copy(p.Data[newEnd:freeEnd], data)
	p.setSlot(slotNum, newEnd, newLen)
	p.IsDirty = true
	return nil
}

// DeleteTuple marks a slot as deleted (length 0). The bytes it occupied in
// the tuple heap are reclaimed later by Compact.
func (p *Page) DeleteTuple(slotNum uint16) error {
	if slotNum >= p.GetSlotCount() {
		return dberr.InvalidPointerf("storage.Page.DeleteTuple", "slot %d out of range on page %d", slotNum, p.ID)
	}
	offset, _ := p.getSlot(slotNum)
	p.setSlot(slotNum, offset, 0)
	p.IsDirty = true
	return nil
}

// Compact rewrites the tuple heap to squeeze out the gaps left by deleted
// and shrunk tuples, without renumbering slots (a FilePointer pointing at
// a live slot stays valid across a compaction). Spec §4.2 requires heap
// deletes to reclaim space; the teacher's DeleteTuple never does this.
func (p *Page) Compact() {
	type slotInfo struct {
		num    uint16
		offset uint16
		length uint16
	}
	count := p.GetSlotCount()
	live := make([]slotInfo, 0, count)
	for i := uint16(0); i < count; i++ {
		offset, length := p.getSlot(i)
		if length > 0 {
			live = append(live, slotInfo{i, offset, length})
		}
	}

	// Highest offset first so copies never overlap the region we still need
	// to read from.
	for i := 0; i < len(live); i++ {
		for j := i + 1; j < len(live); j++ {
			if live[j].offset > live[i].offset {
				live[i], live[j] = live[j], live[i]
			}
		}
	}

	writeEnd := uint16(p.PageSize)
	buf := make([]byte, p.PageSize)
	for _, s := range live {
		data := p.Data[s.offset : s.offset+s.length]
		newStart := writeEnd - s.length
		copy(buf[newStart:writeEnd], data)
		p.setSlot(s.num, newStart, s.length)
		writeEnd = newStart
	}
	copy(p.Data[writeEnd:p.PageSize], buf[writeEnd:p.PageSize])
	p.setFreeSpaceEnd(writeEnd)
	p.IsDirty = true
}

// SlotEntry pairs a slot number with its tuple bytes, as returned by
// GetAllTuples.
type SlotEntry struct {
	SlotNum uint16
	Data    []byte
}

// GetAllTuples returns every non-deleted tuple on the page, in slot order.
func (p *Page) GetAllTuples() []SlotEntry {
	var tuples []SlotEntry
	count := p.GetSlotCount()
	for i := uint16(0); i < count; i++ {
		offset, length := p.getSlot(i)
		if length > 0 {
			data := make([]byte, length)
			copy(data, p.Data[offset:offset+length])
			tuples = append(tuples, SlotEntry{i, data})
		}
	}
	return tuples
}

// Serialize returns the raw page bytes ready for writing to disk.
func (p *Page) Serialize() []byte {
	data := make([]byte, p.PageSize)
	copy(data, p.Data)
	return data
}

// Deserialize loads a page's fields from raw bytes previously produced by
// Serialize.
func (p *Page) Deserialize(data []byte) {
	p.PageSize = len(data)
	p.Data = make([]byte, p.PageSize)
	copy(p.Data, data)
	p.ID = types.PageID(binary.LittleEndian.Uint32(p.Data[0:4]))
	p.Type = p.Data[4]
	p.LSN = types.LSN(binary.LittleEndian.Uint64(p.Data[8:16]))
	p.NextPageID = types.PageID(binary.LittleEndian.Uint32(p.Data[22:26]))
}
