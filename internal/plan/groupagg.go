package plan

import (
	"fmt"

	"github.com/nanodb/nanodb/internal/expr"
	"github.com/nanodb/nanodb/internal/schema"
	"github.com/nanodb/nanodb/internal/tuple"
	"github.com/nanodb/nanodb/pkg/types"
)

// AggregateFunc names the aggregate functions GroupAggregate computes
// per group (spec §4.3).
type AggregateFunc int

const (
	AggCount AggregateFunc = iota
	AggSum
	AggAvg
	AggMin
	AggMax
)

// AggregateSpec is one SELECT-list aggregate: Func applied to Arg,
// surfaced in the output under Alias.
type AggregateSpec struct {
	Func  AggregateFunc
	Arg   expr.Expression // nil for COUNT(*)
	Alias string
}

// GroupAggregate groups its child's rows by equality of GroupBy's
// expression tuple (NULLs forming their own group, same as any other
// equal value in this context) and computes one row of Aggregates per
// group. A wildcard or subquery in the surrounding SELECT list is an
// explicit Non-goal here; callers validate that before constructing
// this node (ValidateNoWildcardUnderGrouping).
//
// Grouping is done with an in-memory hash table keyed by the group
// expressions' formatted values, buffered on Initialize — mirroring
// Sort's fully-materializing approach, since both are blocking
// operators over a child that must be drained before any output row
// can be produced.
type GroupAggregate struct {
	baseNode

	child      PlanNode
	groupBy    []expr.Expression
	aggregates []AggregateSpec

	rows []groupRow
	idx  int
}

type groupRow struct {
	groupValues []any
	aggValues   []any
}

func NewGroupAggregate(child PlanNode, groupBy []expr.Expression, aggregates []AggregateSpec) *GroupAggregate {
	return &GroupAggregate{child: child, groupBy: groupBy, aggregates: aggregates}
}

func (g *GroupAggregate) Prepare() error {
	if g.state >= StatePrepared {
		return nil
	}
	if err := g.child.Prepare(); err != nil {
		return err
	}

	childSchema := g.child.GetSchema()
	env := tuple.NewEnvironment()
	env.Push(childSchema, nil)

	var cols []schema.ColumnInfo
	for _, ge := range g.groupBy {
		t, err := ge.Type(env)
		if err != nil {
			return err
		}
		name := ge.String()
		if col, ok := ge.(*expr.ColumnValue); ok {
			name = col.Name
		}
		cols = append(cols, schema.ColumnInfo{Name: name, Type: schema.ColumnType{Base: t}, Nullable: true})
	}
	for _, a := range g.aggregates {
		t := types.TypeInteger
		if a.Func == AggAvg {
			t = types.TypeFloat
		} else if a.Arg != nil && a.Func != AggCount {
			at, err := a.Arg.Type(env)
			if err == nil {
				t = at
			}
		}
		cols = append(cols, schema.ColumnInfo{Name: a.Alias, Type: schema.ColumnType{Base: t}, Nullable: true})
	}
	g.outSchema = &schema.Schema{Columns: cols}
	g.columnStats = make([]ColumnStat, len(cols))

	childCost := g.child.GetCost()
	g.cost = PlanCost{
		NumTuples:   childCost.NumTuples * 0.1, // rough: unknown cardinality of distinct groups
		TupleSize:   estimateRowSize(g.outSchema),
		CPUCost:     childCost.CPUCost + childCost.NumTuples*2,
		NumBlockIOs: childCost.NumBlockIOs,
	}
	g.state = StatePrepared
	return nil
}

func (g *GroupAggregate) Initialize() error {
	if err := requireState("plan.GroupAggregate.Initialize", g.state, StatePrepared, StateInitialized, StateIterating, StateExhausted); err != nil {
		return err
	}
	if err := g.child.Initialize(); err != nil {
		return err
	}

	childSchema := g.child.GetSchema()
	groups := make(map[string]*groupState)
	var order []string

	for {
		t, err := g.child.GetNextTuple()
		if err != nil {
			return err
		}
		if t == nil {
			break
		}

		env := tuple.NewEnvironment()
		env.Push(childSchema, t)

		groupValues := make([]any, len(g.groupBy))
		key := ""
		for i, ge := range g.groupBy {
			v, err := ge.Evaluate(env)
			if err != nil {
				return err
			}
			groupValues[i] = v
			key += groupKeyPart(v)
		}

		gs, ok := groups[key]
		if !ok {
			gs = newGroupState(g.aggregates, groupValues)
			groups[key] = gs
			order = append(order, key)
		}
		if err := gs.accumulate(g.aggregates, env); err != nil {
			return err
		}
	}

	g.rows = g.rows[:0]
	for _, key := range order {
		gs := groups[key]
		g.rows = append(g.rows, groupRow{groupValues: gs.groupValues, aggValues: gs.finalValues(g.aggregates)})
	}

	g.idx = 0
	g.state = StateInitialized
	return nil
}

func (g *GroupAggregate) GetNextTuple() (tuple.Tuple, error) {
	if err := requireState("plan.GroupAggregate.GetNextTuple", g.state, StateInitialized, StateIterating); err != nil {
		return nil, err
	}
	g.state = StateIterating

	if g.idx >= len(g.rows) {
		g.state = StateExhausted
		return nil, nil
	}
	row := g.rows[g.idx]
	g.idx++

	values := append(append([]any{}, row.groupValues...), row.aggValues...)
	return tuple.NewTupleLiteral(g.outSchema, values), nil
}

func (g *GroupAggregate) CleanUp() error {
	g.rows = nil
	g.state = StateCleanedUp
	return g.child.CleanUp()
}

// groupState accumulates one group's running aggregate state, so every
// function needs only one value (or sum+count, for AVG) carried across
// rows instead of buffering every row of the group.
type groupState struct {
	groupValues []any
	count       []int64
	sum         []float64
	min         []any
	max         []any
}

func newGroupState(aggs []AggregateSpec, groupValues []any) *groupState {
	return &groupState{
		groupValues: groupValues,
		count:       make([]int64, len(aggs)),
		sum:         make([]float64, len(aggs)),
		min:         make([]any, len(aggs)),
		max:         make([]any, len(aggs)),
	}
}

func (gs *groupState) accumulate(aggs []AggregateSpec, env *tuple.Environment) error {
	for i, a := range aggs {
		if a.Func == AggCount && a.Arg == nil {
			gs.count[i]++
			continue
		}
		v, err := a.Arg.Evaluate(env)
		if err != nil {
			return err
		}
		if v == nil {
			continue
		}
		gs.count[i]++
		if f, ok := asFloat(v); ok {
			gs.sum[i] += f
			if gs.min[i] == nil || f < mustFloat(gs.min[i]) {
				gs.min[i] = v
			}
			if gs.max[i] == nil || f > mustFloat(gs.max[i]) {
				gs.max[i] = v
			}
		}
	}
	return nil
}

func (gs *groupState) finalValues(aggs []AggregateSpec) []any {
	out := make([]any, len(aggs))
	for i, a := range aggs {
		switch a.Func {
		case AggCount:
			out[i] = gs.count[i]
		case AggSum:
			out[i] = gs.sum[i]
		case AggAvg:
			if gs.count[i] == 0 {
				out[i] = nil
			} else {
				out[i] = gs.sum[i] / float64(gs.count[i])
			}
		case AggMin:
			out[i] = gs.min[i]
		case AggMax:
			out[i] = gs.max[i]
		}
	}
	return out
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func mustFloat(v any) float64 {
	f, _ := asFloat(v)
	return f
}

func groupKeyPart(v any) string {
	if v == nil {
		return "\x00"
	}
	return "\x01" + toKeyString(v)
}

func toKeyString(v any) string {
	switch n := v.(type) {
	case string:
		return n
	default:
		return fmt.Sprintf("%v", n)
	}
}
