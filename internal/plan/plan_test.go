package plan

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/nanodb/nanodb/internal/catalog"
	"github.com/nanodb/nanodb/internal/expr"
	"github.com/nanodb/nanodb/internal/schema"
	"github.com/nanodb/nanodb/internal/storage"
	"github.com/nanodb/nanodb/pkg/types"
)

func newTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")
	file, err := storage.NewDBFile(path, 512, uuid.New())
	if err != nil {
		t.Fatalf("NewDBFile() error = %v", err)
	}
	bp := storage.NewBufferPool(file, 100)
	c, err := catalog.NewCatalog(bp)
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	return c
}

func usersTable(t *testing.T, c *catalog.Catalog) *catalog.TableInfo {
	t.Helper()
	s := schema.New(
		schema.ColumnInfo{Name: "id", Table: "users", Type: schema.ColumnType{Base: types.TypeInteger}},
		schema.ColumnInfo{Name: "name", Table: "users", Type: schema.ColumnType{Base: types.TypeVarChar, Length: 32}},
	)
	ts := schema.NewTableSchema("users", s)
	info, err := c.CreateTable(ts)
	if err != nil {
		t.Fatalf("CreateTable() error = %v", err)
	}
	return info
}

func ordersTable(t *testing.T, c *catalog.Catalog) *catalog.TableInfo {
	t.Helper()
	s := schema.New(
		schema.ColumnInfo{Name: "order_id", Table: "orders", Type: schema.ColumnType{Base: types.TypeInteger}},
		schema.ColumnInfo{Name: "user_id", Table: "orders", Type: schema.ColumnType{Base: types.TypeInteger}},
		schema.ColumnInfo{Name: "amount", Table: "orders", Type: schema.ColumnType{Base: types.TypeInteger}},
	)
	ts := schema.NewTableSchema("orders", s)
	info, err := c.CreateTable(ts)
	if err != nil {
		t.Fatalf("CreateTable() error = %v", err)
	}
	return info
}

func drainAll(t *testing.T, n PlanNode) []tupleRow {
	t.Helper()
	if err := n.Prepare(); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if err := n.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	var rows []tupleRow
	for {
		row, err := n.GetNextTuple()
		if err != nil {
			t.Fatalf("GetNextTuple() error = %v", err)
		}
		if row == nil {
			break
		}
		values := make([]any, row.ColumnCount())
		for i := range values {
			v, err := row.GetColumnValue(i)
			if err != nil {
				t.Fatalf("GetColumnValue(%d) error = %v", i, err)
			}
			values[i] = v
		}
		rows = append(rows, values)
	}
	if err := n.CleanUp(); err != nil {
		t.Fatalf("CleanUp() error = %v", err)
	}
	return rows
}

type tupleRow = []any

func TestFileScanReturnsInsertedRows(t *testing.T) {
	c := newTestCatalog(t)
	info := usersTable(t, c)
	info.Heap.Insert([]any{int32(1), "alice"})
	info.Heap.Insert([]any{int32(2), "bob"})

	scan := NewFileScan(info.Heap, nil)
	rows := drainAll(t, scan)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
}

func TestFileScanPushedDownPredicate(t *testing.T) {
	c := newTestCatalog(t)
	info := usersTable(t, c)
	info.Heap.Insert([]any{int32(1), "alice"})
	info.Heap.Insert([]any{int32(2), "bob"})

	pred := expr.Compare(expr.OpEQ, expr.Col("name"), expr.Lit(types.TypeVarChar, "bob"))
	scan := NewFileScan(info.Heap, pred)
	rows := drainAll(t, scan)
	if len(rows) != 1 || rows[0][1] != "bob" {
		t.Fatalf("rows = %v, want one row for bob", rows)
	}
}

func TestFilterNarrowsRows(t *testing.T) {
	c := newTestCatalog(t)
	info := usersTable(t, c)
	info.Heap.Insert([]any{int32(1), "alice"})
	info.Heap.Insert([]any{int32(2), "bob"})
	info.Heap.Insert([]any{int32(3), "carol"})

	scan := NewFileScan(info.Heap, nil)
	pred := expr.Compare(expr.OpGT, expr.Col("id"), expr.Lit(types.TypeInteger, int32(1)))
	f := NewFilter(scan, pred)
	rows := drainAll(t, f)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
}

func TestProjectWildcard(t *testing.T) {
	c := newTestCatalog(t)
	info := usersTable(t, c)
	info.Heap.Insert([]any{int32(1), "alice"})

	scan := NewFileScan(info.Heap, nil)
	p := NewProject(scan, []SelectValue{{Wildcard: true}})
	rows := drainAll(t, p)
	if len(rows) != 1 || len(rows[0]) != 2 {
		t.Fatalf("rows = %v, want 1 row of 2 columns", rows)
	}
}

func TestProjectExpressionWithAlias(t *testing.T) {
	c := newTestCatalog(t)
	info := usersTable(t, c)
	info.Heap.Insert([]any{int32(1), "alice"})

	scan := NewFileScan(info.Heap, nil)
	p := NewProject(scan, []SelectValue{{Expr: expr.Col("name"), Alias: "who"}})
	if err := p.Prepare(); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if p.GetSchema().Columns[0].Name != "who" {
		t.Errorf("projected column name = %q, want who", p.GetSchema().Columns[0].Name)
	}
	rows := drainAll(t, p)
	if len(rows) != 1 || rows[0][0] != "alice" {
		t.Fatalf("rows = %v, want [[alice]]", rows)
	}
}

func TestRenameRetagsSchema(t *testing.T) {
	c := newTestCatalog(t)
	info := usersTable(t, c)

	scan := NewFileScan(info.Heap, nil)
	r := NewRename(scan, "u")
	if err := r.Prepare(); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	for _, col := range r.GetSchema().Columns {
		if col.Table != "u" {
			t.Errorf("column %q table = %q, want u", col.Name, col.Table)
		}
	}
}

func TestSortOrdersRows(t *testing.T) {
	c := newTestCatalog(t)
	info := usersTable(t, c)
	info.Heap.Insert([]any{int32(3), "carol"})
	info.Heap.Insert([]any{int32(1), "alice"})
	info.Heap.Insert([]any{int32(2), "bob"})

	scan := NewFileScan(info.Heap, nil)
	s := NewSort(scan, []OrderByTerm{{Expr: expr.Col("id"), Ascending: true}})
	rows := drainAll(t, s)
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	for i, want := range []int32{1, 2, 3} {
		if rows[i][0] != want {
			t.Errorf("row %d id = %v, want %d", i, rows[i][0], want)
		}
	}
}

func TestSortDescending(t *testing.T) {
	c := newTestCatalog(t)
	info := usersTable(t, c)
	info.Heap.Insert([]any{int32(1), "alice"})
	info.Heap.Insert([]any{int32(2), "bob"})

	scan := NewFileScan(info.Heap, nil)
	s := NewSort(scan, []OrderByTerm{{Expr: expr.Col("id"), Ascending: false}})
	rows := drainAll(t, s)
	if rows[0][0] != int32(2) || rows[1][0] != int32(1) {
		t.Fatalf("rows = %v, want descending by id", rows)
	}
}

func TestNestedLoopsJoinCross(t *testing.T) {
	c := newTestCatalog(t)
	u := usersTable(t, c)
	o := ordersTable(t, c)
	u.Heap.Insert([]any{int32(1), "alice"})
	o.Heap.Insert([]any{int32(100), int32(1), int32(50)})
	o.Heap.Insert([]any{int32(101), int32(1), int32(75)})

	left := NewFileScan(u.Heap, nil)
	right := NewFileScan(o.Heap, nil)
	j := NewNestedLoopsJoin(left, right, JoinCross, nil)
	rows := drainAll(t, j)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2 (1 left x 2 right)", len(rows))
	}
	if len(rows[0]) != 5 {
		t.Fatalf("joined row has %d columns, want 5", len(rows[0]))
	}
}

func TestNestedLoopsJoinInnerWithPredicate(t *testing.T) {
	c := newTestCatalog(t)
	u := usersTable(t, c)
	o := ordersTable(t, c)
	u.Heap.Insert([]any{int32(1), "alice"})
	u.Heap.Insert([]any{int32(2), "bob"})
	o.Heap.Insert([]any{int32(100), int32(1), int32(50)})

	left := NewRename(NewFileScan(u.Heap, nil), "users")
	right := NewRename(NewFileScan(o.Heap, nil), "orders")
	pred := expr.Compare(expr.OpEQ, expr.Col("id"), expr.Col("user_id"))
	j := NewNestedLoopsJoin(left, right, JoinInner, pred)
	rows := drainAll(t, j)
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
}

func TestNestedLoopsJoinRejectsOuterJoin(t *testing.T) {
	c := newTestCatalog(t)
	u := usersTable(t, c)
	o := ordersTable(t, c)

	j := NewNestedLoopsJoin(NewFileScan(u.Heap, nil), NewFileScan(o.Heap, nil), JoinLeftOuter, nil)
	if err := j.Prepare(); err == nil {
		t.Fatal("expected an error preparing an unsupported join type")
	}
}

func TestGroupAggregateCountAndSum(t *testing.T) {
	c := newTestCatalog(t)
	o := ordersTable(t, c)
	o.Heap.Insert([]any{int32(1), int32(1), int32(50)})
	o.Heap.Insert([]any{int32(2), int32(1), int32(75)})
	o.Heap.Insert([]any{int32(3), int32(2), int32(10)})

	scan := NewFileScan(o.Heap, nil)
	ga := NewGroupAggregate(scan, []expr.Expression{expr.Col("user_id")}, []AggregateSpec{
		{Func: AggCount, Alias: "n"},
		{Func: AggSum, Arg: expr.Col("amount"), Alias: "total"},
	})
	rows := drainAll(t, ga)
	if len(rows) != 2 {
		t.Fatalf("got %d groups, want 2", len(rows))
	}

	totals := map[int32]int64{}
	for _, r := range rows {
		totals[r[0].(int32)] = r[1].(int64)
	}
	if totals[1] != 2 {
		t.Errorf("count for user 1 = %d, want 2", totals[1])
	}
}

func TestPlannerSimpleSelect(t *testing.T) {
	c := newTestCatalog(t)
	info := usersTable(t, c)
	info.Heap.Insert([]any{int32(1), "alice"})
	info.Heap.Insert([]any{int32(2), "bob"})

	p := NewPlanner(c)
	clause := &SelectClause{
		From:   []FromItem{{Table: "users"}},
		Where:  expr.Compare(expr.OpGT, expr.Col("id"), expr.Lit(types.TypeInteger, int32(1))),
		Values: []SelectValue{{Wildcard: true}},
	}
	node, err := p.MakePlan(clause)
	if err != nil {
		t.Fatalf("MakePlan() error = %v", err)
	}
	rows := drainAll(t, node)
	if len(rows) != 1 || rows[0][0] != int32(2) {
		t.Fatalf("rows = %v, want just bob", rows)
	}
}

func TestPlannerJoinsTwoTables(t *testing.T) {
	c := newTestCatalog(t)
	u := usersTable(t, c)
	o := ordersTable(t, c)
	u.Heap.Insert([]any{int32(1), "alice"})
	u.Heap.Insert([]any{int32(2), "bob"})
	o.Heap.Insert([]any{int32(100), int32(1), int32(50)})
	o.Heap.Insert([]any{int32(101), int32(2), int32(75)})

	p := NewPlanner(c)
	clause := &SelectClause{
		From:      []FromItem{{Table: "users"}, {Table: "orders"}},
		JoinPreds: []expr.Expression{expr.Compare(expr.OpEQ, expr.Col("id"), expr.Col("user_id"))},
		Values:    []SelectValue{{Wildcard: true}},
	}
	node, err := p.MakePlan(clause)
	if err != nil {
		t.Fatalf("MakePlan() error = %v", err)
	}
	rows := drainAll(t, node)
	if len(rows) != 2 {
		t.Fatalf("got %d joined rows, want 2", len(rows))
	}
}
