// Package heap implements NanoDB's heap table manager: a table's rows as
// an unordered, forward-linked chain of storage.Page frames, addressed by
// types.FilePointer (page + slot). It generalizes the teacher's
// storage.TableHeap — which moved an opaque JSON-encoded types.Tuple and
// tracked only a first/last page pair — to the schema-driven tuple codec
// in internal/tuple and to explicit slot reuse and page compaction (spec
// §4.2).
package heap

import (
	"io"

	"github.com/nanodb/nanodb/internal/dberr"
	"github.com/nanodb/nanodb/internal/schema"
	"github.com/nanodb/nanodb/internal/storage"
	"github.com/nanodb/nanodb/internal/tuple"
	"github.com/nanodb/nanodb/pkg/types"
)

// HeapFile is one table's row storage: a chain of data pages linked via
// Page.NextPageID, with inserts always attempted against the last page
// first.
type HeapFile struct {
	bufferPool *storage.BufferPool
	tableID    uint32
	table      *schema.TableSchema
	firstPage  types.PageID
	lastPage   types.PageID
}

// NewHeapFile allocates the first page of a new table.
func NewHeapFile(bp *storage.BufferPool, tableID uint32, table *schema.TableSchema) (*HeapFile, error) {
	page, err := bp.NewPage(storage.PageTypeData)
	if err != nil {
		return nil, err
	}
	bp.UnpinPage(page.ID, true)

	return &HeapFile{
		bufferPool: bp,
		tableID:    tableID,
		table:      table,
		firstPage:  page.ID,
		lastPage:   page.ID,
	}, nil
}

// LoadHeapFile attaches to an existing table's page chain, as recorded in
// the catalog.
func LoadHeapFile(bp *storage.BufferPool, tableID uint32, table *schema.TableSchema, firstPage, lastPage types.PageID) *HeapFile {
	return &HeapFile{bufferPool: bp, tableID: tableID, table: table, firstPage: firstPage, lastPage: lastPage}
}

func (h *HeapFile) TableID() uint32          { return h.tableID }
func (h *HeapFile) FirstPage() types.PageID  { return h.firstPage }
func (h *HeapFile) LastPage() types.PageID   { return h.lastPage }
func (h *HeapFile) Schema() *schema.TableSchema { return h.table }

// Insert appends a new row, allocating a fresh page when the last page has
// no room.
func (h *HeapFile) Insert(values []any) (types.FilePointer, error) {
	data, err := tuple.Encode(h.table.Schema, values)
	if err != nil {
		return types.InvalidFilePointer, err
	}

	page, err := h.bufferPool.FetchPage(h.lastPage)
	if err != nil {
		return types.InvalidFilePointer, err
	}

	slotNum, err := page.InsertTuple(data)
	if err == nil {
		h.bufferPool.UnpinPage(page.ID, true)
		return types.FilePointer{PageNo: page.ID, SlotNo: slotNum}, nil
	}
	if !dberr.Is(err, dberr.NoRoom) {
		h.bufferPool.UnpinPage(page.ID, false)
		return types.InvalidFilePointer, err
	}
	h.bufferPool.UnpinPage(page.ID, false)

	newPage, err := h.bufferPool.NewPage(storage.PageTypeData)
	if err != nil {
		return types.InvalidFilePointer, err
	}
	page.SetNextPageID(newPage.ID)
	h.bufferPool.UnpinPage(page.ID, true)
	h.lastPage = newPage.ID

	slotNum, err = newPage.InsertTuple(data)
	if err != nil {
		h.bufferPool.UnpinPage(newPage.ID, true)
		return types.InvalidFilePointer, err
	}
	h.bufferPool.UnpinPage(newPage.ID, true)
	return types.FilePointer{PageNo: newPage.ID, SlotNo: slotNum}, nil
}

// Get fetches the row at ptr, as a PageTuple over a copy of the slot's
// bytes. The page is unpinned before Get returns, so the caller has
// nothing to unpin.
func (h *HeapFile) Get(ptr types.FilePointer) (*tuple.PageTuple, error) {
	page, err := h.bufferPool.FetchPage(ptr.PageNo)
	if err != nil {
		return nil, err
	}
	data, err := page.GetTuple(ptr.SlotNo)
	if err != nil {
		h.bufferPool.UnpinPage(ptr.PageNo, false)
		return nil, err
	}
	pt, err := tuple.NewPageTuple(h.table.Schema, ptr, data)
	h.bufferPool.UnpinPage(ptr.PageNo, false)
	return pt, err
}

// Update overwrites the row at ptr. If the new encoding no longer fits in
// its original slot, the row is deleted from ptr and reinserted elsewhere;
// the caller must use the returned FilePointer for any subsequent access.
func (h *HeapFile) Update(ptr types.FilePointer, values []any) (types.FilePointer, error) {
	data, err := tuple.Encode(h.table.Schema, values)
	if err != nil {
		return types.InvalidFilePointer, err
	}

	page, err := h.bufferPool.FetchPage(ptr.PageNo)
	if err != nil {
		return types.InvalidFilePointer, err
	}

	err = page.UpdateTuple(ptr.SlotNo, data)
	if err == nil {
		h.bufferPool.UnpinPage(ptr.PageNo, true)
		return ptr, nil
	}
	if !dberr.Is(err, dberr.NoRoom) {
		h.bufferPool.UnpinPage(ptr.PageNo, false)
		return types.InvalidFilePointer, err
	}

	if derr := page.DeleteTuple(ptr.SlotNo); derr != nil {
		h.bufferPool.UnpinPage(ptr.PageNo, true)
		return types.InvalidFilePointer, derr
	}
	h.bufferPool.UnpinPage(ptr.PageNo, true)

	return h.Insert(values)
}

// Delete marks the row at ptr as deleted. The bytes it occupied are
// reclaimed by a later CompactPage, not immediately.
func (h *HeapFile) Delete(ptr types.FilePointer) error {
	page, err := h.bufferPool.FetchPage(ptr.PageNo)
	if err != nil {
		return err
	}
	defer h.bufferPool.UnpinPage(ptr.PageNo, true)
	return page.DeleteTuple(ptr.SlotNo)
}

// PageCount walks the page chain and returns its length, the numDataPages
// term spec §4.5's file-scan cost formula needs.
func (h *HeapFile) PageCount() (int, error) {
	count := 0
	id := h.firstPage
	for id != types.InvalidPageID {
		page, err := h.bufferPool.FetchPage(id)
		if err != nil {
			return 0, err
		}
		count++
		next := page.GetNextPageID()
		h.bufferPool.UnpinPage(id, false)
		if id == h.lastPage {
			break
		}
		id = next
	}
	return count, nil
}

// CompactPage reclaims the space deleted and shrunk rows left behind on
// one page (spec §4.2). It's a maintenance operation, not run implicitly
// on every delete.
func (h *HeapFile) CompactPage(pageID types.PageID) error {
	page, err := h.bufferPool.FetchPage(pageID)
	if err != nil {
		return err
	}
	defer h.bufferPool.UnpinPage(pageID, true)
	page.Compact()
	return nil
}

// Scanner walks every live row of a HeapFile in page/slot order.
type Scanner struct {
	h                  *HeapFile
	currentID          types.PageID
	pageOfCurrentBatch types.PageID
	slots              []storage.SlotEntry
	slotIdx            int
	done               bool
}

// NewScanner starts a scan at the table's first page.
func (h *HeapFile) NewScanner() *Scanner {
	return &Scanner{h: h, currentID: h.firstPage}
}

// Next returns the next live row, or io.EOF once the scan is exhausted.
func (s *Scanner) Next() (*tuple.PageTuple, types.FilePointer, error) {
	for {
		if s.slotIdx < len(s.slots) {
			entry := s.slots[s.slotIdx]
			s.slotIdx++
			ptr := types.FilePointer{PageNo: s.pageOfCurrentBatch, SlotNo: entry.SlotNum}
			pt, err := tuple.NewPageTuple(s.h.table.Schema, ptr, entry.Data)
			if err != nil {
				return nil, types.InvalidFilePointer, err
			}
			return pt, ptr, nil
		}

		if s.done {
			return nil, types.InvalidFilePointer, io.EOF
		}

		page, err := s.h.bufferPool.FetchPage(s.currentID)
		if err != nil {
			s.done = true
			return nil, types.InvalidFilePointer, io.EOF
		}
		s.slots = page.GetAllTuples()
		s.slotIdx = 0
		s.pageOfCurrentBatch = s.currentID
		next := page.GetNextPageID()
		s.h.bufferPool.UnpinPage(s.currentID, false)

		if s.currentID == s.h.lastPage || next == types.InvalidPageID {
			s.done = true
		} else {
			s.currentID = next
		}
	}
}
