// Package catalog implements NanoDB's table-name registry: the
// TableSchema/heap-chain pair backing each table, and the DDL operations
// (CREATE TABLE, DROP TABLE, CREATE INDEX, ANALYZE) spec §4.2 names.
//
// It generalizes the teacher's storage.Catalog — a header-page directory
// mapping table name to a flat []types.Column plus a first/last page pair
// — to store a full schema.TableSchema (keys, foreign keys, ANALYZE
// statistics) and to back each table with an internal/heap.HeapFile
// instead of the teacher's storage.TableHeap.
package catalog

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/nanodb/nanodb/internal/dberr"
	"github.com/nanodb/nanodb/internal/dblog"
	"github.com/nanodb/nanodb/internal/heap"
	"github.com/nanodb/nanodb/internal/schema"
	"github.com/nanodb/nanodb/internal/storage"
	"github.com/nanodb/nanodb/pkg/types"
)

// TableInfo is everything the catalog tracks about one table: its schema,
// its row storage, and the B-Tree root spec's index Non-goal stubs out.
type TableInfo struct {
	TableID   uint32
	Schema    *schema.TableSchema
	Heap      *heap.HeapFile
	IndexRoot types.PageID // always types.InvalidPageID: CreateIndex builds no index
}

// Catalog is the table directory for one database file: table name to
// TableInfo, persisted across a chain of catalog-type pages rooted at
// catalogPage.
type Catalog struct {
	mu sync.RWMutex

	bufferPool  *storage.BufferPool
	catalogPage types.PageID

	tables      map[string]*TableInfo
	nextTableID uint32
}

// NewCatalog allocates a fresh, empty catalog page and returns a Catalog
// backed by it. The caller (internal/session) is responsible for
// remembering GetCatalogPageID() across restarts, the way the teacher's
// engine.saveMeta does.
func NewCatalog(bp *storage.BufferPool) (*Catalog, error) {
	page, err := bp.NewPage(storage.PageTypeCatalog)
	if err != nil {
		return nil, err
	}
	bp.UnpinPage(page.ID, true)

	return &Catalog{
		bufferPool:  bp,
		catalogPage: page.ID,
		tables:      make(map[string]*TableInfo),
		nextTableID: 1,
	}, nil
}

// LoadCatalog reconstructs a Catalog from the page chain rooted at
// catalogPageID, as written by a prior persistLocked().
func LoadCatalog(bp *storage.BufferPool, catalogPageID types.PageID) (*Catalog, error) {
	c := &Catalog{
		bufferPool:  bp,
		catalogPage: catalogPageID,
		tables:      make(map[string]*TableInfo),
		nextTableID: 1,
	}

	cur := catalogPageID
	for cur != types.InvalidPageID {
		page, err := bp.FetchPage(cur)
		if err != nil {
			return nil, err
		}
		for _, slot := range page.GetAllTuples() {
			entry, err := decodeEntry(slot.Data)
			if err != nil {
				bp.UnpinPage(cur, false)
				return nil, err
			}
			c.tables[entry.schema.TableName] = &TableInfo{
				TableID:   entry.tableID,
				Schema:    entry.schema,
				Heap:      heap.LoadHeapFile(bp, entry.tableID, entry.schema, entry.firstPage, entry.lastPage),
				IndexRoot: entry.indexRoot,
			}
			if entry.tableID >= c.nextTableID {
				c.nextTableID = entry.tableID + 1
			}
		}
		next := page.GetNextPageID()
		bp.UnpinPage(cur, false)
		cur = next
	}

	return c, nil
}

// GetCatalogPageID returns the root of the catalog's page chain, for the
// caller to persist alongside the data file path.
func (c *Catalog) GetCatalogPageID() types.PageID {
	return c.catalogPage
}

// CreateTable registers a new table under ts.TableName, allocating its
// heap file's first page and persisting the updated catalog.
func (c *Catalog) CreateTable(ts *schema.TableSchema) (*TableInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.tables[ts.TableName]; exists {
		return nil, dberr.Schemaf("catalog.Catalog.CreateTable", "table %q already exists", ts.TableName)
	}

	tableID := c.nextTableID
	c.nextTableID++

	h, err := heap.NewHeapFile(c.bufferPool, tableID, ts)
	if err != nil {
		return nil, err
	}

	info := &TableInfo{TableID: tableID, Schema: ts, Heap: h, IndexRoot: types.InvalidPageID}
	c.tables[ts.TableName] = info

	if err := c.persistLocked(); err != nil {
		delete(c.tables, ts.TableName)
		return nil, err
	}

	dblog.WithComponent("catalog").Debug().Str("table", ts.TableName).Uint32("table_id", tableID).Msg("table created")
	return info, nil
}

// DropTable removes a table from the directory. The heap pages it owned
// are not reclaimed (no VACUUM — see DESIGN.md's dropped-modules list).
func (c *Catalog) DropTable(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.tables[name]; !ok {
		return dberr.Schemaf("catalog.Catalog.DropTable", "unknown table %q", name)
	}
	delete(c.tables, name)
	return c.persistLocked()
}

// GetTable looks up a table by name.
func (c *Catalog) GetTable(name string) (*TableInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.tables[name]
	return info, ok
}

// TableNames returns every registered table name, sorted for deterministic
// output (e.g. a \dt-style listing).
func (c *Catalog) TableNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CreateIndex is an existence-only stub (spec's index Non-goal,
// SPEC_FULL.md §C): it checks that the table and column exist and then
// returns dberr.Unsupported. It records nothing in the catalog and builds
// no B-Tree body.
func (c *Catalog) CreateIndex(tableName string, columnIdx int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, ok := c.tables[tableName]
	if !ok {
		return dberr.Schemaf("catalog.Catalog.CreateIndex", "unknown table %q", tableName)
	}
	if columnIdx < 0 || columnIdx >= info.Schema.Schema.NumColumns() {
		return dberr.Schemaf("catalog.Catalog.CreateIndex", "column index %d out of range for table %q", columnIdx, tableName)
	}
	return dberr.Unsupportedf("catalog.Catalog.CreateIndex", "index bodies are not implemented; see internal/index")
}

// AnalyzeTable scans every row of a table to refresh its planner
// statistics (spec §4.2/§4.5): RowCount and, per column, the exact count
// of distinct non-NULL values, used by Planner's selectivity formulas.
func (c *Catalog) AnalyzeTable(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, ok := c.tables[name]
	if !ok {
		return dberr.Schemaf("catalog.Catalog.AnalyzeTable", "unknown table %q", name)
	}

	numCols := info.Schema.Schema.NumColumns()
	distinct := make([]map[string]struct{}, numCols)
	for i := range distinct {
		distinct[i] = make(map[string]struct{})
	}

	var rowCount int64
	scanner := info.Heap.NewScanner()
	for {
		t, _, err := scanner.Next()
		if err != nil {
			break
		}
		rowCount++
		for i := 0; i < numCols; i++ {
			v, err := t.GetColumnValue(i)
			if err != nil || v == nil {
				continue
			}
			distinct[i][formatDistinctKey(v)] = struct{}{}
		}
	}

	info.Schema.RowCount = rowCount
	for i := 0; i < numCols; i++ {
		info.Schema.NumDistinctStats[i] = int64(len(distinct[i]))
	}

	dblog.WithComponent("catalog").Debug().Str("table", name).Int64("row_count", rowCount).Msg("table analyzed")
	return c.persistLocked()
}

// formatDistinctKey turns a column value into a hashable string for the
// distinct-value set ANALYZE builds per column.
func formatDistinctKey(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// catalogEntry is the decoded form of one table's persisted directory
// record.
type catalogEntry struct {
	tableID   uint32
	firstPage types.PageID
	lastPage  types.PageID
	indexRoot types.PageID
	schema    *schema.TableSchema
}

func encodeEntry(info *TableInfo) []byte {
	schemaBytes := info.Schema.Serialize()

	buf := make([]byte, 0, 16+len(schemaBytes))
	tmp4 := make([]byte, 4)

	binary.LittleEndian.PutUint32(tmp4, info.TableID)
	buf = append(buf, tmp4...)

	binary.LittleEndian.PutUint32(tmp4, uint32(info.Heap.FirstPage()))
	buf = append(buf, tmp4...)

	binary.LittleEndian.PutUint32(tmp4, uint32(info.Heap.LastPage()))
	buf = append(buf, tmp4...)

	binary.LittleEndian.PutUint32(tmp4, uint32(info.IndexRoot))
	buf = append(buf, tmp4...)

	binary.LittleEndian.PutUint32(tmp4, uint32(len(schemaBytes)))
	buf = append(buf, tmp4...)
	buf = append(buf, schemaBytes...)

	return buf
}

func decodeEntry(buf []byte) (*catalogEntry, error) {
	if len(buf) < 20 {
		return nil, dberr.StorageFormatf("catalog.decodeEntry", "truncated catalog entry header")
	}
	tableID := binary.LittleEndian.Uint32(buf[0:4])
	firstPage := types.PageID(binary.LittleEndian.Uint32(buf[4:8]))
	lastPage := types.PageID(binary.LittleEndian.Uint32(buf[8:12]))
	indexRoot := types.PageID(binary.LittleEndian.Uint32(buf[12:16]))
	schemaLen := binary.LittleEndian.Uint32(buf[16:20])

	if len(buf) < 20+int(schemaLen) {
		return nil, dberr.StorageFormatf("catalog.decodeEntry", "truncated catalog schema body")
	}
	ts, _, err := schema.DeserializeTableSchema(buf[20 : 20+schemaLen])
	if err != nil {
		return nil, err
	}

	return &catalogEntry{
		tableID:   tableID,
		firstPage: firstPage,
		lastPage:  lastPage,
		indexRoot: indexRoot,
		schema:    ts,
	}, nil
}

// persistLocked rewrites the catalog's page chain with every current
// table's entry. Every existing page in the chain is cleared first (so a
// DropTable or a shrinking ANALYZE doesn't leave a stale entry behind),
// then entries are reinserted, growing the chain with a fresh page via
// NextPageID when the existing pages run out of room — the same
// no-room-grow-the-chain pattern internal/heap.HeapFile.Insert uses.
// Caller must hold c.mu.
func (c *Catalog) persistLocked() error {
	var pageIDs []types.PageID
	cur := c.catalogPage
	for cur != types.InvalidPageID {
		pageIDs = append(pageIDs, cur)
		page, err := c.bufferPool.FetchPage(cur)
		if err != nil {
			return err
		}
		count := page.GetSlotCount()
		for i := uint16(0); i < count; i++ {
			page.DeleteTuple(i)
		}
		next := page.GetNextPageID()
		c.bufferPool.UnpinPage(cur, true)
		cur = next
	}

	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([][]byte, 0, len(names))
	for _, name := range names {
		entries = append(entries, encodeEntry(c.tables[name]))
	}

	pageIdx := 0
	for _, entryData := range entries {
		for {
			if pageIdx >= len(pageIDs) {
				newPage, err := c.bufferPool.NewPage(storage.PageTypeCatalog)
				if err != nil {
					return err
				}
				prevID := pageIDs[len(pageIDs)-1]
				prevPage, err := c.bufferPool.FetchPage(prevID)
				if err != nil {
					return err
				}
				prevPage.SetNextPageID(newPage.ID)
				c.bufferPool.UnpinPage(prevID, true)
				c.bufferPool.UnpinPage(newPage.ID, true)
				pageIDs = append(pageIDs, newPage.ID)
			}

			page, err := c.bufferPool.FetchPage(pageIDs[pageIdx])
			if err != nil {
				return err
			}
			_, err = page.InsertTuple(entryData)
			if err == nil {
				c.bufferPool.UnpinPage(pageIDs[pageIdx], true)
				break
			}
			c.bufferPool.UnpinPage(pageIDs[pageIdx], false)
			if !dberr.Is(err, dberr.NoRoom) {
				return err
			}
			pageIdx++
		}
	}

	return nil
}
