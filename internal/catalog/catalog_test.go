package catalog

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/nanodb/nanodb/internal/dberr"
	"github.com/nanodb/nanodb/internal/schema"
	"github.com/nanodb/nanodb/internal/storage"
	"github.com/nanodb/nanodb/pkg/types"
)

func newTestCatalogSetup(t *testing.T) *storage.BufferPool {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")
	file, err := storage.NewDBFile(path, 512, uuid.New())
	if err != nil {
		t.Fatalf("NewDBFile() error = %v", err)
	}
	return storage.NewBufferPool(file, 100)
}

func usersSchema() *schema.TableSchema {
	s := schema.New(
		schema.ColumnInfo{Name: "id", Type: schema.ColumnType{Base: types.TypeInteger}},
		schema.ColumnInfo{Name: "name", Type: schema.ColumnType{Base: types.TypeVarChar, Length: 32}},
	)
	ts := schema.NewTableSchema("users", s)
	ts.PrimaryKey = []int{0}
	return ts
}

func TestCreateTableAndGetTable(t *testing.T) {
	bp := newTestCatalogSetup(t)
	c, err := NewCatalog(bp)
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}

	info, err := c.CreateTable(usersSchema())
	if err != nil {
		t.Fatalf("CreateTable() error = %v", err)
	}
	if info.TableID != 1 {
		t.Errorf("TableID = %d, want 1", info.TableID)
	}

	got, ok := c.GetTable("users")
	if !ok {
		t.Fatal("GetTable() did not find users")
	}
	if got.TableID != info.TableID {
		t.Errorf("GetTable() returned TableID %d, want %d", got.TableID, info.TableID)
	}
}

func TestCreateTableRejectsDuplicateName(t *testing.T) {
	bp := newTestCatalogSetup(t)
	c, _ := NewCatalog(bp)

	if _, err := c.CreateTable(usersSchema()); err != nil {
		t.Fatalf("CreateTable() error = %v", err)
	}
	if _, err := c.CreateTable(usersSchema()); err == nil {
		t.Fatal("expected error creating a duplicate table name")
	}
}

func TestCreateTableAssignsIncreasingIDs(t *testing.T) {
	bp := newTestCatalogSetup(t)
	c, _ := NewCatalog(bp)

	info1, _ := c.CreateTable(usersSchema())

	other := schema.New(schema.ColumnInfo{Name: "x", Type: schema.ColumnType{Base: types.TypeInteger}})
	ts2 := schema.NewTableSchema("others", other)
	info2, err := c.CreateTable(ts2)
	if err != nil {
		t.Fatalf("CreateTable() error = %v", err)
	}
	if info2.TableID <= info1.TableID {
		t.Errorf("second table id %d should exceed first %d", info2.TableID, info1.TableID)
	}
}

func TestTableNamesSorted(t *testing.T) {
	bp := newTestCatalogSetup(t)
	c, _ := NewCatalog(bp)

	c.CreateTable(usersSchema())
	other := schema.New(schema.ColumnInfo{Name: "x", Type: schema.ColumnType{Base: types.TypeInteger}})
	c.CreateTable(schema.NewTableSchema("accounts", other))

	names := c.TableNames()
	if len(names) != 2 || names[0] != "accounts" || names[1] != "users" {
		t.Errorf("TableNames() = %v, want [accounts users]", names)
	}
}

func TestDropTableRemovesFromDirectory(t *testing.T) {
	bp := newTestCatalogSetup(t)
	c, _ := NewCatalog(bp)
	c.CreateTable(usersSchema())

	if err := c.DropTable("users"); err != nil {
		t.Fatalf("DropTable() error = %v", err)
	}
	if _, ok := c.GetTable("users"); ok {
		t.Error("table should be gone after DropTable")
	}
}

func TestDropTableUnknownFails(t *testing.T) {
	bp := newTestCatalogSetup(t)
	c, _ := NewCatalog(bp)

	if err := c.DropTable("ghost"); err == nil {
		t.Fatal("expected error dropping an unknown table")
	}
}

func TestLoadCatalogRoundTrip(t *testing.T) {
	bp := newTestCatalogSetup(t)
	c, _ := NewCatalog(bp)
	info, _ := c.CreateTable(usersSchema())

	ptr, err := info.Heap.Insert([]any{int32(1), "alice"})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	loaded, err := LoadCatalog(bp, c.GetCatalogPageID())
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}

	got, ok := loaded.GetTable("users")
	if !ok {
		t.Fatal("LoadCatalog() did not recover the users table")
	}
	if got.TableID != info.TableID {
		t.Errorf("TableID = %d, want %d", got.TableID, info.TableID)
	}
	if len(got.Schema.PrimaryKey) != 1 || got.Schema.PrimaryKey[0] != 0 {
		t.Errorf("PrimaryKey = %v, want [0]", got.Schema.PrimaryKey)
	}

	row, err := got.Heap.Get(ptr)
	if err != nil {
		t.Fatalf("Get() after reload error = %v", err)
	}
	v, _ := row.GetColumnValue(1)
	if v.(string) != "alice" {
		t.Errorf("name = %q, want alice", v)
	}
}

func TestLoadCatalogAfterDropDoesNotResurrectTable(t *testing.T) {
	bp := newTestCatalogSetup(t)
	c, _ := NewCatalog(bp)
	c.CreateTable(usersSchema())
	c.DropTable("users")

	loaded, err := LoadCatalog(bp, c.GetCatalogPageID())
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	if _, ok := loaded.GetTable("users"); ok {
		t.Error("dropped table should not reappear after reload")
	}
}

func TestLoadCatalogManyTablesGrowsChain(t *testing.T) {
	bp := newTestCatalogSetup(t)
	c, _ := NewCatalog(bp)

	for i := 0; i < 20; i++ {
		s := schema.New(schema.ColumnInfo{Name: "x", Type: schema.ColumnType{Base: types.TypeInteger}})
		name := "t" + string(rune('a'+i))
		if _, err := c.CreateTable(schema.NewTableSchema(name, s)); err != nil {
			t.Fatalf("CreateTable(%d) error = %v", i, err)
		}
	}

	loaded, err := LoadCatalog(bp, c.GetCatalogPageID())
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	if len(loaded.TableNames()) != 20 {
		t.Errorf("reloaded %d tables, want 20", len(loaded.TableNames()))
	}
}

func TestAnalyzeTableComputesStats(t *testing.T) {
	bp := newTestCatalogSetup(t)
	c, _ := NewCatalog(bp)
	info, _ := c.CreateTable(usersSchema())

	info.Heap.Insert([]any{int32(1), "alice"})
	info.Heap.Insert([]any{int32(2), "bob"})
	info.Heap.Insert([]any{int32(3), "alice"})

	if err := c.AnalyzeTable("users"); err != nil {
		t.Fatalf("AnalyzeTable() error = %v", err)
	}

	got, _ := c.GetTable("users")
	if got.Schema.RowCount != 3 {
		t.Errorf("RowCount = %d, want 3", got.Schema.RowCount)
	}
	if got.Schema.NumDistinctStats[0] != 3 {
		t.Errorf("distinct ids = %d, want 3", got.Schema.NumDistinctStats[0])
	}
	if got.Schema.NumDistinctStats[1] != 2 {
		t.Errorf("distinct names = %d, want 2", got.Schema.NumDistinctStats[1])
	}
}

func TestAnalyzeTableUnknownFails(t *testing.T) {
	bp := newTestCatalogSetup(t)
	c, _ := NewCatalog(bp)

	if err := c.AnalyzeTable("ghost"); err == nil {
		t.Fatal("expected error analyzing an unknown table")
	}
}

func TestCreateIndexIsUnsupportedStub(t *testing.T) {
	bp := newTestCatalogSetup(t)
	c, _ := NewCatalog(bp)
	c.CreateTable(usersSchema())

	err := c.CreateIndex("users", 0)
	if err == nil {
		t.Fatal("expected CreateIndex to report unsupported")
	}
	if !dberr.Is(err, dberr.Unsupported) {
		t.Errorf("error kind = %v, want Unsupported", err)
	}
}

func TestCreateIndexUnknownColumnFails(t *testing.T) {
	bp := newTestCatalogSetup(t)
	c, _ := NewCatalog(bp)
	c.CreateTable(usersSchema())

	if err := c.CreateIndex("users", 99); err == nil {
		t.Fatal("expected error for out-of-range column index")
	}
}
