package plan

import (
	"github.com/nanodb/nanodb/internal/schema"
	"github.com/nanodb/nanodb/internal/tuple"
)

// Rename re-tags every column of its child's schema with a new table
// name (spec §4.3), passing tuples through unchanged. It's how a FROM
// clause's "AS alias" on a table reference, or a subquery, gets its
// output columns addressed as alias.col further up the plan tree.
type Rename struct {
	baseNode

	child   PlanNode
	newName string
}

func NewRename(child PlanNode, newName string) *Rename {
	return &Rename{child: child, newName: newName}
}

func (r *Rename) Prepare() error {
	if r.state >= StatePrepared {
		return nil
	}
	if err := r.child.Prepare(); err != nil {
		return err
	}
	r.outSchema = r.child.GetSchema().WithTable(r.newName)
	r.columnStats = r.child.GetColumnStats()
	r.cost = r.child.GetCost()
	r.state = StatePrepared
	return nil
}

func (r *Rename) Initialize() error {
	if err := requireState("plan.Rename.Initialize", r.state, StatePrepared, StateInitialized, StateIterating, StateExhausted); err != nil {
		return err
	}
	if err := r.child.Initialize(); err != nil {
		return err
	}
	r.state = StateInitialized
	return nil
}

func (r *Rename) GetNextTuple() (tuple.Tuple, error) {
	if err := requireState("plan.Rename.GetNextTuple", r.state, StateInitialized, StateIterating); err != nil {
		return nil, err
	}
	r.state = StateIterating

	t, err := r.child.GetNextTuple()
	if err != nil {
		return nil, err
	}
	if t == nil {
		r.state = StateExhausted
		return nil, nil
	}
	return renamedTuple{Tuple: t, schema: r.outSchema}, nil
}

func (r *Rename) SupportsMarking() bool      { return r.child.SupportsMarking() }
func (r *Rename) MarkCurrentPosition() error { return r.child.MarkCurrentPosition() }
func (r *Rename) ResetToLastMark() error     { return r.child.ResetToLastMark() }

func (r *Rename) CleanUp() error {
	r.state = StateCleanedUp
	return r.child.CleanUp()
}

// renamedTuple wraps a child tuple to report a renamed schema while
// delegating every value access to the wrapped tuple.
type renamedTuple struct {
	tuple.Tuple
	schema *schema.Schema
}

func (r renamedTuple) Schema() *schema.Schema { return r.schema }

func (r renamedTuple) GetColumnInfo(i int) schema.ColumnInfo {
	return r.schema.GetColumnInfo(i)
}
