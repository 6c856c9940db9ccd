package plan

import (
	"github.com/nanodb/nanodb/internal/dberr"
	"github.com/nanodb/nanodb/internal/expr"
	"github.com/nanodb/nanodb/internal/schema"
	"github.com/nanodb/nanodb/internal/tuple"
)

// SelectValue is one entry of a SELECT list (spec §4.3's Project
// contract): either a wildcard (`*` or `t.*`) or an expression with an
// optional alias. Scalar subqueries are an explicit Non-goal; callers
// that need one must fail before constructing a SelectValue.
type SelectValue struct {
	Wildcard      bool
	WildcardTable string // "" for a bare "*", otherwise the "t" of "t.*"
	Expr          expr.Expression
	Alias         string
}

// Project evaluates a SELECT list against each child tuple, producing a
// new TupleLiteral per row. Wildcards expand the child schema in place;
// an alias overrides the projected column's name and clears its table
// tag (spec §4.3).
type Project struct {
	baseNode

	child  PlanNode
	values []SelectValue

	// plan holds, per output column, either the source child column
	// index (for an expanded wildcard, a pass-through copy) or the
	// SelectValue index to evaluate.
	plan []projectStep
}

type projectStep struct {
	fromChildCol int // >= 0 for a wildcard-expanded column, -1 otherwise
	valueIdx     int // index into values, for non-wildcard steps
}

func NewProject(child PlanNode, values []SelectValue) *Project {
	return &Project{child: child, values: values}
}

func (p *Project) Prepare() error {
	if p.state >= StatePrepared {
		return nil
	}
	if err := p.child.Prepare(); err != nil {
		return err
	}
	childSchema := p.child.GetSchema()

	var cols []schema.ColumnInfo
	for vi, v := range p.values {
		if v.Wildcard {
			for ci, c := range childSchema.Columns {
				if v.WildcardTable != "" && c.Table != v.WildcardTable {
					continue
				}
				cols = append(cols, c)
				p.plan = append(p.plan, projectStep{fromChildCol: ci, valueIdx: -1})
			}
			continue
		}

		env := tuple.NewEnvironment()
		env.Push(childSchema, nil)
		sqlType, err := v.Expr.Type(env)
		if err != nil {
			return err
		}
		name := v.Alias
		table := ""
		if name == "" {
			name = v.Expr.String()
			if col, ok := v.Expr.(*expr.ColumnValue); ok {
				name = col.Name
			}
		}
		cols = append(cols, schema.ColumnInfo{Name: name, Table: table, Type: schema.ColumnType{Base: sqlType}, Nullable: true})
		p.plan = append(p.plan, projectStep{fromChildCol: -1, valueIdx: vi})
	}

	p.outSchema = &schema.Schema{Columns: cols}
	p.columnStats = make([]ColumnStat, len(cols))

	childCost := p.child.GetCost()
	p.cost = PlanCost{
		NumTuples:   childCost.NumTuples,
		TupleSize:   estimateRowSize(p.outSchema),
		CPUCost:     childCost.CPUCost + childCost.NumTuples,
		NumBlockIOs: childCost.NumBlockIOs,
	}
	p.state = StatePrepared
	return nil
}

func (p *Project) Initialize() error {
	if err := requireState("plan.Project.Initialize", p.state, StatePrepared, StateInitialized, StateIterating, StateExhausted); err != nil {
		return err
	}
	if err := p.child.Initialize(); err != nil {
		return err
	}
	p.state = StateInitialized
	return nil
}

func (p *Project) GetNextTuple() (tuple.Tuple, error) {
	if err := requireState("plan.Project.GetNextTuple", p.state, StateInitialized, StateIterating); err != nil {
		return nil, err
	}
	p.state = StateIterating

	t, err := p.child.GetNextTuple()
	if err != nil {
		return nil, err
	}
	if t == nil {
		p.state = StateExhausted
		return nil, nil
	}

	env := tuple.NewEnvironment()
	env.Push(p.child.GetSchema(), t)

	values := make([]any, len(p.plan))
	for i, step := range p.plan {
		if step.fromChildCol >= 0 {
			v, err := t.GetColumnValue(step.fromChildCol)
			if err != nil {
				return nil, err
			}
			values[i] = v
			continue
		}
		v, err := p.values[step.valueIdx].Expr.Evaluate(env)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}

	out := tuple.NewTupleLiteral(p.outSchema, values)
	out.SetPointer(t.Pointer())
	return out, nil
}

func (p *Project) CleanUp() error {
	p.state = StateCleanedUp
	return p.child.CleanUp()
}

// ValidateNoWildcardUnderGrouping enforces spec §4.3's rule that a
// wildcard (or, by the same rule, a scalar subquery) select-value is
// illegal once grouping is present, since a wildcard has no fixed
// per-group meaning.
func ValidateNoWildcardUnderGrouping(values []SelectValue) error {
	for _, v := range values {
		if v.Wildcard {
			return dberr.Unsupportedf("plan.ValidateNoWildcardUnderGrouping", "wildcard select values are not allowed with GROUP BY")
		}
	}
	return nil
}
