package main

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nanodb/nanodb/internal/command"
	"github.com/nanodb/nanodb/internal/dberr"
	"github.com/nanodb/nanodb/internal/expr"
	"github.com/nanodb/nanodb/internal/schema"
	"github.com/nanodb/nanodb/pkg/types"
)

// scriptCommand is the YAML shape `.exec`/`nanodb exec` reads. It is not a
// SQL dialect — there is no expression grammar, only single-column
// equality predicates — it exists only so the exec path has something
// concrete to decode with yaml.v3 (the same dependency internal/config
// uses) instead of inventing one more ad-hoc text format.
type scriptCommand struct {
	Type    string          `yaml:"type"`
	Table   string          `yaml:"table"`
	Columns []scriptColumn  `yaml:"columns,omitempty"`
	Values  []any           `yaml:"values,omitempty"`
	Set     map[string]any  `yaml:"set,omitempty"`
	Where   *scriptEquality `yaml:"where,omitempty"`
	Column  string          `yaml:"column,omitempty"`
}

type scriptColumn struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Length  int    `yaml:"length,omitempty"`
	Primary bool   `yaml:"primary,omitempty"`
}

type scriptEquality struct {
	Column string `yaml:"column"`
	Value  any    `yaml:"value"`
}

func loadScriptCommand(path string) (command.Command, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, dberr.IOWrap("script.loadScriptCommand", err)
	}
	var sc scriptCommand
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, dberr.IOWrap("script.loadScriptCommand", err)
	}
	return sc.toCommand()
}

func (sc scriptCommand) toCommand() (command.Command, error) {
	switch sc.Type {
	case "select":
		return nil, dberr.Unsupportedf("script.toCommand", "use .explain for SELECT preview; row output needs a live plan.SelectClause the script format does not cover yet")
	case "insert":
		return &command.InsertCommand{Table: sc.Table, Values: sc.Values}, nil
	case "create_table":
		ts, err := sc.tableSchema()
		if err != nil {
			return nil, err
		}
		return &command.CreateTableCommand{Schema: ts}, nil
	case "drop_table":
		return &command.DropTableCommand{Table: sc.Table}, nil
	case "create_index":
		return &command.CreateIndexCommand{Table: sc.Table, ColumnIndex: sc.columnIndex()}, nil
	case "analyze":
		return &command.AnalyzeCommand{Table: sc.Table}, nil
	case "delete":
		where, err := sc.wherePredicate()
		if err != nil {
			return nil, err
		}
		return &command.DeleteCommand{Table: sc.Table, Where: where}, nil
	case "update":
		where, err := sc.wherePredicate()
		if err != nil {
			return nil, err
		}
		assignments, err := sc.assignments()
		if err != nil {
			return nil, err
		}
		return &command.UpdateCommand{Table: sc.Table, Where: where, Assignments: assignments}, nil
	default:
		return nil, dberr.Unsupportedf("script.toCommand", "unknown script command type %q", sc.Type)
	}
}

func (sc scriptCommand) columnIndex() int {
	for i, c := range sc.Columns {
		if c.Name == sc.Column {
			return i
		}
	}
	return 0
}

func (sc scriptCommand) tableSchema() (*schema.TableSchema, error) {
	cols := make([]schema.ColumnInfo, len(sc.Columns))
	var primaryKey []int
	for i, c := range sc.Columns {
		base, err := parseSQLType(c.Type)
		if err != nil {
			return nil, err
		}
		cols[i] = schema.ColumnInfo{Name: c.Name, Type: schema.ColumnType{Base: base, Length: c.Length}}
		if c.Primary {
			primaryKey = append(primaryKey, i)
		}
	}
	ts := schema.NewTableSchema(sc.Table, schema.New(cols...))
	ts.PrimaryKey = primaryKey
	return ts, nil
}

// wherePredicate only supports a single-column equality, deliberately:
// this is a script format for exercising the executor, not a where-clause
// expression grammar (that would mean reinventing the parser the spec
// excludes).
func (sc scriptCommand) wherePredicate() (expr.Expression, error) {
	if sc.Where == nil {
		return nil, nil
	}
	lit, err := literalForColumn(sc.Table, sc.Where.Column, sc.Where.Value)
	if err != nil {
		return nil, err
	}
	return expr.Compare(expr.OpEQ, expr.Col(sc.Where.Column), lit), nil
}

func (sc scriptCommand) assignments() ([]command.Assignment, error) {
	assignments := make([]command.Assignment, 0, len(sc.Set))
	for col, val := range sc.Set {
		idx := -1
		for i, c := range sc.Columns {
			if c.Name == col {
				idx = i
				break
			}
		}
		if idx == -1 {
			return nil, dberr.Schemaf("script.assignments", "set target %q is not listed under columns", col)
		}
		lit, err := literalForColumn(sc.Table, col, val)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, command.Assignment{ColumnIndex: idx, Value: lit})
	}
	return assignments, nil
}

// literalForColumn infers a types.SQLType from val's decoded YAML Go type
// (string/bool/int/float64) since a script file has no column-type
// context of its own to consult at this point in decoding.
func literalForColumn(_, _ string, val any) (*expr.LiteralValue, error) {
	switch v := val.(type) {
	case string:
		return expr.Lit(types.TypeVarChar, v), nil
	case bool:
		return expr.Lit(types.TypeBoolean, v), nil
	case int:
		return expr.Lit(types.TypeInteger, int32(v)), nil
	case float64:
		return expr.Lit(types.TypeDouble, v), nil
	default:
		return nil, dberr.Typef("script.literalForColumn", "unsupported literal type %T", val)
	}
}

func parseSQLType(name string) (types.SQLType, error) {
	switch name {
	case "INTEGER", "INT":
		return types.TypeInteger, nil
	case "BIGINT":
		return types.TypeBigInt, nil
	case "FLOAT":
		return types.TypeFloat, nil
	case "DOUBLE":
		return types.TypeDouble, nil
	case "CHAR":
		return types.TypeChar, nil
	case "VARCHAR":
		return types.TypeVarChar, nil
	case "BOOLEAN", "BOOL":
		return types.TypeBoolean, nil
	case "DATE":
		return types.TypeDate, nil
	case "TIMESTAMP":
		return types.TypeTimestamp, nil
	default:
		return 0, dberr.Schemaf("script.parseSQLType", "unknown column type %q", name)
	}
}
