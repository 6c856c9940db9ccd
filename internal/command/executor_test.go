package command

import (
	"testing"

	"github.com/nanodb/nanodb/internal/config"
	"github.com/nanodb/nanodb/internal/expr"
	"github.com/nanodb/nanodb/internal/plan"
	"github.com/nanodb/nanodb/internal/schema"
	"github.com/nanodb/nanodb/internal/session"
	"github.com/nanodb/nanodb/pkg/types"
)

func newTestExecutor(t *testing.T) (*Executor, *session.Session) {
	t.Helper()
	cfg := config.Defaults()
	cfg.DataDir = t.TempDir()
	cfg.PageSize = 512
	cfg.BufferPoolPages = 64

	db, err := session.Open(cfg)
	if err != nil {
		t.Fatalf("session.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sess := session.NewSession(db)
	return NewExecutor(sess), sess
}

func usersTableSchema() *schema.TableSchema {
	s := schema.New(
		schema.ColumnInfo{Name: "id", Type: schema.ColumnType{Base: types.TypeInteger}},
		schema.ColumnInfo{Name: "name", Type: schema.ColumnType{Base: types.TypeVarChar, Length: 32}},
	)
	ts := schema.NewTableSchema("users", s)
	ts.PrimaryKey = []int{0}
	return ts
}

func TestExecuteCreateTableAndInsertAndSelect(t *testing.T) {
	e, _ := newTestExecutor(t)

	if _, err := e.Execute(&CreateTableCommand{Schema: usersTableSchema()}); err != nil {
		t.Fatalf("CreateTableCommand error = %v", err)
	}
	if _, err := e.Execute(&InsertCommand{Table: "users", Values: []any{int32(1), "alice"}}); err != nil {
		t.Fatalf("InsertCommand error = %v", err)
	}
	if _, err := e.Execute(&InsertCommand{Table: "users", Values: []any{int32(2), "bob"}}); err != nil {
		t.Fatalf("InsertCommand error = %v", err)
	}

	clause := &plan.SelectClause{
		From:   []plan.FromItem{{Table: "users"}},
		Values: []plan.SelectValue{{Wildcard: true}},
	}
	res, err := e.Execute(&SelectCommand{Clause: clause})
	if err != nil {
		t.Fatalf("SelectCommand error = %v", err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("len(Rows) = %d, want 2", len(res.Rows))
	}
}

func TestExecuteUpdateAndDelete(t *testing.T) {
	e, _ := newTestExecutor(t)

	if _, err := e.Execute(&CreateTableCommand{Schema: usersTableSchema()}); err != nil {
		t.Fatalf("CreateTableCommand error = %v", err)
	}
	if _, err := e.Execute(&InsertCommand{Table: "users", Values: []any{int32(1), "alice"}}); err != nil {
		t.Fatalf("InsertCommand error = %v", err)
	}

	where := expr.Compare(expr.OpEQ, expr.Col("id"), expr.Lit(types.TypeInteger, int32(1)))
	updRes, err := e.Execute(&UpdateCommand{
		Table:       "users",
		Where:       where,
		Assignments: []Assignment{{ColumnIndex: 1, Value: expr.Lit(types.TypeVarChar, "alicia")}},
	})
	if err != nil {
		t.Fatalf("UpdateCommand error = %v", err)
	}
	if updRes.RowsAffected != 1 {
		t.Fatalf("RowsAffected = %d, want 1", updRes.RowsAffected)
	}

	selRes, err := e.Execute(&SelectCommand{Clause: &plan.SelectClause{
		From:   []plan.FromItem{{Table: "users"}},
		Values: []plan.SelectValue{{Wildcard: true}},
	}})
	if err != nil {
		t.Fatalf("SelectCommand error = %v", err)
	}
	if len(selRes.Rows) != 1 || selRes.Rows[0][1] != "alicia" {
		t.Fatalf("Rows = %v, want one row with name alicia", selRes.Rows)
	}

	delRes, err := e.Execute(&DeleteCommand{Table: "users", Where: where})
	if err != nil {
		t.Fatalf("DeleteCommand error = %v", err)
	}
	if delRes.RowsAffected != 1 {
		t.Fatalf("RowsAffected = %d, want 1", delRes.RowsAffected)
	}

	selRes2, err := e.Execute(&SelectCommand{Clause: &plan.SelectClause{
		From:   []plan.FromItem{{Table: "users"}},
		Values: []plan.SelectValue{{Wildcard: true}},
	}})
	if err != nil {
		t.Fatalf("SelectCommand error = %v", err)
	}
	if len(selRes2.Rows) != 0 {
		t.Fatalf("Rows after delete = %v, want none", selRes2.Rows)
	}
}

func TestExecuteCreateIndexIsUnsupported(t *testing.T) {
	e, _ := newTestExecutor(t)
	if _, err := e.Execute(&CreateTableCommand{Schema: usersTableSchema()}); err != nil {
		t.Fatalf("CreateTableCommand error = %v", err)
	}
	if _, err := e.Execute(&CreateIndexCommand{Table: "users", ColumnIndex: 0}); err == nil {
		t.Fatalf("CreateIndexCommand should fail (index bodies are a stub)")
	}
}
