package command

import (
	"github.com/nanodb/nanodb/internal/dberr"
	"github.com/nanodb/nanodb/internal/expr"
	"github.com/nanodb/nanodb/internal/heap"
	"github.com/nanodb/nanodb/internal/plan"
	"github.com/nanodb/nanodb/internal/session"
	"github.com/nanodb/nanodb/internal/tuple"
	"github.com/nanodb/nanodb/pkg/types"
)

// Result is what Execute returns for any command: Rows/ColumnNames for a
// SELECT, RowsAffected for a write, or just Message for a DDL statement.
type Result struct {
	ColumnNames  []string
	Rows         [][]any
	RowsAffected int
	Message      string
}

// Executor runs a Command against one session's DatabaseContext. It plays
// the role the teacher's sql.Executor plays, narrowed to dispatching
// already-built commands instead of interpreting freshly parsed ones, and
// delegating SELECT entirely to plan.Planner rather than hand-walking the
// heap table by table.
type Executor struct {
	sess *session.Session
}

// NewExecutor creates an Executor bound to sess.
func NewExecutor(sess *session.Session) *Executor {
	return &Executor{sess: sess}
}

// Execute dispatches cmd to the matching handler.
func (e *Executor) Execute(cmd Command) (*Result, error) {
	switch c := cmd.(type) {
	case *SelectCommand:
		return e.execSelect(c)
	case *InsertCommand:
		return e.execInsert(c)
	case *UpdateCommand:
		return e.execUpdate(c)
	case *DeleteCommand:
		return e.execDelete(c)
	case *CreateTableCommand:
		return e.execCreateTable(c)
	case *DropTableCommand:
		return e.execDropTable(c)
	case *CreateIndexCommand:
		return e.execCreateIndex(c)
	case *AnalyzeCommand:
		return e.execAnalyze(c)
	default:
		return nil, dberr.Unsupportedf("command.Executor.Execute", "unknown command type %T", cmd)
	}
}

func (e *Executor) execSelect(c *SelectCommand) (*Result, error) {
	planner := plan.NewPlanner(e.sess.DB().Catalog)
	root, err := planner.MakePlan(c.Clause)
	if err != nil {
		return nil, err
	}
	if err := root.Initialize(); err != nil {
		return nil, err
	}
	defer root.CleanUp()

	sch := root.GetSchema()
	names := make([]string, sch.NumColumns())
	for i := range names {
		names[i] = sch.GetColumnInfo(i).Name
	}

	var rows [][]any
	for {
		t, err := root.GetNextTuple()
		if err != nil {
			return nil, err
		}
		if t == nil {
			break
		}
		row := make([]any, t.ColumnCount())
		for i := range row {
			v, err := t.GetColumnValue(i)
			if err != nil {
				return nil, err
			}
			row[i] = v
		}
		rows = append(rows, row)
	}

	return &Result{ColumnNames: names, Rows: rows}, nil
}

func (e *Executor) execInsert(c *InsertCommand) (*Result, error) {
	table, ok := e.sess.DB().Catalog.GetTable(c.Table)
	if !ok {
		return nil, dberr.Schemaf("command.Executor.execInsert", "unknown table %q", c.Table)
	}
	if _, err := e.sess.InsertRow(table, c.Values); err != nil {
		return nil, err
	}
	return &Result{RowsAffected: 1}, nil
}

// matchingPointers runs a file scan filtered by pred and collects
// the FilePointer of every row it yields, for UPDATE/DELETE to revisit
// by pointer afterward. It deliberately bypasses plan.Planner — there is
// only ever one table and no join, group or sort to plan around — and
// wraps it in plan.Filter only when pred is non-nil so a bare "UPDATE t
// SET ..." with no WHERE doesn't pay a needless selectivity estimate.
func matchingPointers(h *heap.HeapFile, pred expr.Expression) ([]types.FilePointer, error) {
	var scan plan.PlanNode = plan.NewFileScan(h, nil)
	if pred != nil {
		scan = plan.NewFilter(scan, pred)
	}
	if err := scan.Prepare(); err != nil {
		return nil, err
	}
	if err := scan.Initialize(); err != nil {
		return nil, err
	}
	defer scan.CleanUp()

	var ptrs []types.FilePointer
	for {
		t, err := scan.GetNextTuple()
		if err != nil {
			return nil, err
		}
		if t == nil {
			break
		}
		ptrs = append(ptrs, t.Pointer())
	}
	return ptrs, nil
}

func (e *Executor) execUpdate(c *UpdateCommand) (*Result, error) {
	table, ok := e.sess.DB().Catalog.GetTable(c.Table)
	if !ok {
		return nil, dberr.Schemaf("command.Executor.execUpdate", "unknown table %q", c.Table)
	}

	ptrs, err := matchingPointers(table.Heap, c.Where)
	if err != nil {
		return nil, err
	}

	affected := 0
	for _, ptr := range ptrs {
		row, err := table.Heap.Get(ptr)
		if err != nil {
			return nil, err
		}
		values := make([]any, row.ColumnCount())
		for i := range values {
			v, err := row.GetColumnValue(i)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}

		env := tuple.NewEnvironment()
		env.Push(table.Schema.Schema, row)
		for _, a := range c.Assignments {
			v, err := a.Value.Evaluate(env)
			if err != nil {
				return nil, err
			}
			values[a.ColumnIndex] = v
		}

		if _, err := e.sess.UpdateRow(table, ptr, values); err != nil {
			return nil, err
		}
		affected++
	}
	return &Result{RowsAffected: affected}, nil
}

func (e *Executor) execDelete(c *DeleteCommand) (*Result, error) {
	table, ok := e.sess.DB().Catalog.GetTable(c.Table)
	if !ok {
		return nil, dberr.Schemaf("command.Executor.execDelete", "unknown table %q", c.Table)
	}

	ptrs, err := matchingPointers(table.Heap, c.Where)
	if err != nil {
		return nil, err
	}

	for _, ptr := range ptrs {
		if err := e.sess.DeleteRow(table, ptr); err != nil {
			return nil, err
		}
	}
	return &Result{RowsAffected: len(ptrs)}, nil
}

func (e *Executor) execCreateTable(c *CreateTableCommand) (*Result, error) {
	if _, err := e.sess.DB().Catalog.CreateTable(c.Schema); err != nil {
		return nil, err
	}
	return &Result{Message: "table " + c.Schema.TableName + " created"}, nil
}

func (e *Executor) execDropTable(c *DropTableCommand) (*Result, error) {
	if err := e.sess.DB().Catalog.DropTable(c.Table); err != nil {
		return nil, err
	}
	return &Result{Message: "table " + c.Table + " dropped"}, nil
}

func (e *Executor) execCreateIndex(c *CreateIndexCommand) (*Result, error) {
	if err := e.sess.DB().Catalog.CreateIndex(c.Table, c.ColumnIndex); err != nil {
		return nil, err
	}
	return &Result{Message: "index created"}, nil
}

func (e *Executor) execAnalyze(c *AnalyzeCommand) (*Result, error) {
	if err := e.sess.DB().Catalog.AnalyzeTable(c.Table); err != nil {
		return nil, err
	}
	return &Result{Message: "table " + c.Table + " analyzed"}, nil
}
