package tuple

import (
	"github.com/nanodb/nanodb/internal/dberr"
	"github.com/nanodb/nanodb/internal/schema"
)

// Environment is the stack-based binding context expressions evaluate
// column references against. Plan nodes push their current tuple (and its
// schema) before evaluating a predicate or projection, and pop it once
// they move to the next row — a join node pushes one tuple, the
// concatenation of both children's rows under the combined schema, so a
// predicate can reference columns from either side.
type Environment struct {
	frames []frame
}

type frame struct {
	schema *schema.Schema
	tuple  Tuple
}

func NewEnvironment() *Environment {
	return &Environment{}
}

// Push binds a tuple (and its schema) into the environment.
func (e *Environment) Push(s *schema.Schema, t Tuple) {
	e.frames = append(e.frames, frame{schema: s, tuple: t})
}

// Pop removes the most recently pushed binding.
func (e *Environment) Pop() {
	if len(e.frames) > 0 {
		e.frames = e.frames[:len(e.frames)-1]
	}
}

// Resolve looks up a possibly-qualified column name against every bound
// frame, most recently pushed first. A frame in which the name is unknown
// or ambiguous is skipped; dberr.Schema is returned only when no frame
// resolves it.
func (e *Environment) Resolve(name string) (any, error) {
	for i := len(e.frames) - 1; i >= 0; i-- {
		f := e.frames[i]
		idx, err := f.schema.ColumnIndex(name)
		if err != nil {
			continue
		}
		return f.tuple.GetColumnValue(idx)
	}
	return nil, dberr.Schemaf("tuple.Environment.Resolve", "unknown column %q", name)
}

// ResolveType returns the declared SQLType of a resolved column, needed by
// expression type-checking ahead of evaluation.
func (e *Environment) ResolveType(name string) (schema.ColumnType, error) {
	for i := len(e.frames) - 1; i >= 0; i-- {
		f := e.frames[i]
		idx, err := f.schema.ColumnIndex(name)
		if err != nil {
			continue
		}
		return f.schema.GetColumnInfo(idx).Type, nil
	}
	return schema.ColumnType{}, dberr.Schemaf("tuple.Environment.ResolveType", "unknown column %q", name)
}
