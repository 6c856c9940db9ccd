package plan

import (
	"github.com/nanodb/nanodb/internal/expr"
	"github.com/nanodb/nanodb/internal/schema"
	"github.com/nanodb/nanodb/internal/tuple"
)

// Filter wraps any child node and applies a predicate, spec §4.3's
// "simple filter": cost is the child's cost scaled by the predicate's
// estimated selectivity, block I/O unchanged (the child already paid it).
type Filter struct {
	baseNode

	child     PlanNode
	predicate expr.Expression
}

func NewFilter(child PlanNode, predicate expr.Expression) *Filter {
	return &Filter{child: child, predicate: predicate}
}

func (f *Filter) Prepare() error {
	if f.state >= StatePrepared {
		return nil
	}
	if err := f.child.Prepare(); err != nil {
		return err
	}
	f.outSchema = f.child.GetSchema()
	f.columnStats = f.child.GetColumnStats()

	childCost := f.child.GetCost()
	sel := selectivityOf(f.predicate, f.outSchema, f.columnStats)
	f.cost = PlanCost{
		NumTuples:   childCost.NumTuples * float32(sel),
		TupleSize:   childCost.TupleSize,
		CPUCost:     childCost.CPUCost + childCost.NumTuples,
		NumBlockIOs: childCost.NumBlockIOs,
	}
	f.state = StatePrepared
	return nil
}

func (f *Filter) Initialize() error {
	if err := requireState("plan.Filter.Initialize", f.state, StatePrepared, StateInitialized, StateIterating, StateExhausted); err != nil {
		return err
	}
	if err := f.child.Initialize(); err != nil {
		return err
	}
	f.state = StateInitialized
	return nil
}

func (f *Filter) GetNextTuple() (tuple.Tuple, error) {
	if err := requireState("plan.Filter.GetNextTuple", f.state, StateInitialized, StateIterating); err != nil {
		return nil, err
	}
	f.state = StateIterating

	for {
		t, err := f.child.GetNextTuple()
		if err != nil {
			return nil, err
		}
		if t == nil {
			f.state = StateExhausted
			return nil, nil
		}
		env := tuple.NewEnvironment()
		env.Push(f.outSchema, t)
		ok, err := evalPredicate(f.predicate, env)
		if err != nil {
			return nil, err
		}
		if ok {
			return t, nil
		}
	}
}

func (f *Filter) CleanUp() error {
	f.state = StateCleanedUp
	return f.child.CleanUp()
}

// selectivityOf estimates a predicate's fraction-passed (spec §4.5),
// resolving each comparison's column against sch/stats, which share
// index positions.
func selectivityOf(e expr.Expression, sch *schema.Schema, stats []ColumnStat) float64 {
	if e == nil {
		return 1.0
	}
	switch n := e.(type) {
	case *expr.BooleanOperator:
		return n.Selectivity(func(inner expr.Expression) expr.ColumnStats {
			return statsForExpr(inner, sch, stats)
		})
	case *expr.CompareOperator:
		return n.Selectivity(statsForExpr(e, sch, stats))
	default:
		return 0.25
	}
}

// statsForExpr resolves a comparison's left-hand column (after
// normalizing to column-op-literal form) to its planner statistics. A
// comparison not in that shape, or whose column can't be resolved in
// sch, gets zero-value stats — each Selectivity implementation already
// has a sane default for that case.
func statsForExpr(e expr.Expression, sch *schema.Schema, stats []ColumnStat) expr.ColumnStats {
	cmp, ok := e.(*expr.CompareOperator)
	if !ok || sch == nil {
		return expr.ColumnStats{}
	}
	cmp.Normalize()
	col, ok := cmp.Left.(*expr.ColumnValue)
	if !ok {
		return expr.ColumnStats{}
	}
	idx, err := sch.ColumnIndex(col.Name)
	if err != nil || idx < 0 || idx >= len(stats) {
		return expr.ColumnStats{}
	}
	return stats[idx].toExprStats()
}
