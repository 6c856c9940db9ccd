package storage

import (
	"container/list"
	"sync"

	"github.com/nanodb/nanodb/internal/dberr"
	"github.com/nanodb/nanodb/pkg/types"
)

// Forcer is implemented by the WAL writer. The buffer pool calls ForceLSN
// before writing a dirty page back to disk so the page's changes are never
// visible on disk ahead of the log records that describe them (spec
// §4.1's WAL-before-flush invariant). The teacher's BufferPool.evictOne
// flushes dirty pages with no such call at all; that omission is fixed
// here.
type Forcer interface {
	ForceLSN(lsn types.LSN) error
}

// BufferPool caches pages from a DBFile with LRU eviction.
type BufferPool struct {
	mu     sync.Mutex
	file   *DBFile
	forcer Forcer

	pages    map[types.PageID]*Page
	capacity int

	lruList *list.List
	lruMap  map[types.PageID]*list.Element

	hits   uint64
	misses uint64
}

func NewBufferPool(file *DBFile, capacity int) *BufferPool {
	return &BufferPool{
		file:     file,
		pages:    make(map[types.PageID]*Page),
		capacity: capacity,
		lruList:  list.New(),
		lruMap:   make(map[types.PageID]*list.Element),
	}
}

// SetForcer wires the WAL writer in. Called once during engine
// construction, after both the buffer pool and the WAL writer exist.
func (bp *BufferPool) SetForcer(f Forcer) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	bp.forcer = f
}

func (bp *BufferPool) FetchPage(pageID types.PageID) (*Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if page, ok := bp.pages[pageID]; ok {
		bp.hits++
		bp.touchLRU(pageID)
		page.PinCount++
		return page, nil
	}

	bp.misses++

	page, err := bp.file.ReadPage(pageID)
	if err != nil {
		return nil, err
	}

	if len(bp.pages) >= bp.capacity {
		if err := bp.evictOne(); err != nil {
			return nil, err
		}
	}

	bp.pages[pageID] = page
	bp.addToLRU(pageID)
	page.PinCount = 1

	return page, nil
}

func (bp *BufferPool) NewPage(pageType uint8) (*Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	pageID, err := bp.file.AllocatePage()
	if err != nil {
		return nil, err
	}

	if len(bp.pages) >= bp.capacity {
		if err := bp.evictOne(); err != nil {
			return nil, err
		}
	}

	page := NewPage(pageID, pageType, bp.file.PageSize())
	page.IsDirty = true
	page.PinCount = 1

	bp.pages[pageID] = page
	bp.addToLRU(pageID)

	return page, nil
}

func (bp *BufferPool) UnpinPage(pageID types.PageID, isDirty bool) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if page, ok := bp.pages[pageID]; ok {
		if isDirty {
			page.IsDirty = true
		}
		if page.PinCount > 0 {
			page.PinCount--
		}
	}
}

func (bp *BufferPool) forceFor(page *Page) error {
	if bp.forcer == nil {
		return nil
	}
	return bp.forcer.ForceLSN(page.GetLSN())
}

func (bp *BufferPool) FlushPage(pageID types.PageID) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	page, ok := bp.pages[pageID]
	if !ok {
		return nil
	}

	if page.IsDirty {
		if err := bp.forceFor(page); err != nil {
			return err
		}
		if err := bp.file.WritePage(page); err != nil {
			return err
		}
		page.IsDirty = false
	}
	return nil
}

func (bp *BufferPool) FlushAllPages() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	for _, page := range bp.pages {
		if page.IsDirty {
			if err := bp.forceFor(page); err != nil {
				return err
			}
			if err := bp.file.WritePage(page); err != nil {
				return err
			}
			page.IsDirty = false
		}
	}
	return bp.file.Sync()
}

// evictOne evicts the least-recently-used unpinned page. Must be called
// with bp.mu held.
func (bp *BufferPool) evictOne() error {
	for e := bp.lruList.Back(); e != nil; e = e.Prev() {
		pageID := e.Value.(types.PageID)
		page := bp.pages[pageID]

		if page.PinCount == 0 {
			if page.IsDirty {
				if err := bp.forceFor(page); err != nil {
					return err
				}
				if err := bp.file.WritePage(page); err != nil {
					return err
				}
			}
			delete(bp.pages, pageID)
			bp.lruList.Remove(e)
			delete(bp.lruMap, pageID)
			return nil
		}
	}
	return dberr.NoRoomf("storage.BufferPool.evictOne", "all %d buffer pool frames are pinned", bp.capacity)
}

func (bp *BufferPool) addToLRU(pageID types.PageID) {
	e := bp.lruList.PushFront(pageID)
	bp.lruMap[pageID] = e
}

func (bp *BufferPool) touchLRU(pageID types.PageID) {
	if e, ok := bp.lruMap[pageID]; ok {
		bp.lruList.MoveToFront(e)
	}
}

func (bp *BufferPool) GetPage(pageID types.PageID) *Page {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.pages[pageID]
}

func (bp *BufferPool) GetDirtyPages() map[types.PageID]types.LSN {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	dirty := make(map[types.PageID]types.LSN)
	for pageID, page := range bp.pages {
		if page.IsDirty {
			dirty[pageID] = page.LSN
		}
	}
	return dirty
}

func (bp *BufferPool) Stats() (hits, misses uint64, cached int) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.hits, bp.misses, len(bp.pages)
}

func (bp *BufferPool) MarkDirty(pageID types.PageID) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if page, ok := bp.pages[pageID]; ok {
		page.IsDirty = true
	}
}

func (bp *BufferPool) SetPageLSN(pageID types.PageID, lsn types.LSN) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if page, ok := bp.pages[pageID]; ok {
		page.SetLSN(lsn)
		page.IsDirty = true
	}
}

func (bp *BufferPool) GetPageLSN(pageID types.PageID) types.LSN {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if page, ok := bp.pages[pageID]; ok {
		return page.GetLSN()
	}
	return types.InvalidLSN
}
