// Package command is the AST surface NanoDB's core executes: spec.md's
// grammar/lexer/parser Non-goal means nothing in this module turns SQL
// text into these types, so callers (cmd/nanodb's REPL today, a real
// parser tomorrow) build them directly in Go.
//
// Grounded on the teacher's sql package statement types
// (SelectStmt/InsertStmt/UpdateStmt/DeleteStmt/CreateTableStmt/...), kept
// as the same sum-type-of-statements shape but with sql/lexer.go and
// sql/parser.go dropped entirely — a Command value is handed to the
// Executor already built.
package command

import (
	"github.com/nanodb/nanodb/internal/expr"
	"github.com/nanodb/nanodb/internal/plan"
	"github.com/nanodb/nanodb/internal/schema"
)

// Command is the marker every statement type implements, the same way
// the teacher's sql.Stmt does.
type Command interface {
	isCommand()
}

// SelectCommand names a query in terms plan.Planner.MakePlan already
// understands: this package adds no AST shape of its own for FROM/WHERE/
// SELECT-list/GROUP BY/ORDER BY, it just forwards a plan.SelectClause.
type SelectCommand struct {
	Clause *plan.SelectClause
}

// InsertCommand appends one row of Values to Table, in column order.
type InsertCommand struct {
	Table  string
	Values []any
}

// Assignment is one SET clause target of an UpdateCommand: column index
// (resolved against the table's schema by the caller building the
// command) to the expression computing its new value.
type Assignment struct {
	ColumnIndex int
	Value       expr.Expression
}

// UpdateCommand rewrites every row of Table matching Where (nil matches
// every row) by applying Assignments.
type UpdateCommand struct {
	Table       string
	Assignments []Assignment
	Where       expr.Expression
}

// DeleteCommand removes every row of Table matching Where (nil matches
// every row).
type DeleteCommand struct {
	Table string
	Where expr.Expression
}

// CreateTableCommand registers a new table under its full schema
// (columns, primary/candidate/foreign keys).
type CreateTableCommand struct {
	Schema *schema.TableSchema
}

// DropTableCommand removes a table from the catalog.
type DropTableCommand struct {
	Table string
}

// CreateIndexCommand requests an index on one column. The catalog
// implements this as an existence-only stub (spec's index Non-goal, see
// internal/index), so Executor always gets back an Unsupported error —
// the command type exists so that boundary is visible at the AST level
// rather than silently absent.
type CreateIndexCommand struct {
	Table       string
	ColumnIndex int
}

// AnalyzeCommand refreshes Table's planner statistics.
type AnalyzeCommand struct {
	Table string
}

func (*SelectCommand) isCommand()      {}
func (*InsertCommand) isCommand()      {}
func (*UpdateCommand) isCommand()      {}
func (*DeleteCommand) isCommand()      {}
func (*CreateTableCommand) isCommand() {}
func (*DropTableCommand) isCommand()   {}
func (*CreateIndexCommand) isCommand() {}
func (*AnalyzeCommand) isCommand()     {}
