package plan

import (
	"github.com/nanodb/nanodb/internal/catalog"
	"github.com/nanodb/nanodb/internal/dberr"
	"github.com/nanodb/nanodb/internal/expr"
)

// FromItem is one leaf or join node of a FROM clause, as the planner
// sees it (spec §4.4). A leaf is either a base table (Table non-empty)
// or a subquery (Subquery non-nil); Alias renames its output columns.
// JOIN_EXPR nodes are not represented here: the planner only needs the
// flattened set of leaves plus the separately-collected join
// predicates, per step 1 of the DP algorithm.
type FromItem struct {
	Table    string
	Alias    string
	Subquery *SelectClause
}

// SelectClause is the minimal input the Planner needs to build a plan,
// standing in for the AST a future SQL front end would hand it (spec
// §4.4's "Input"). internal/command constructs these once the grammar
// front end exists; until then callers build them directly.
type SelectClause struct {
	From       []FromItem
	JoinPreds  []expr.Expression // one per JOIN_EXPR collected from the FROM tree
	Where      expr.Expression
	Values     []SelectValue
	GroupBy    []expr.Expression
	Aggregates []AggregateSpec
	OrderBy    []OrderByTerm
}

// Planner builds a PlanNode tree from a SelectClause using the DP
// left-deep algorithm of spec §4.4, resolving base tables against cat.
type Planner struct {
	cat *catalog.Catalog
}

func NewPlanner(cat *catalog.Catalog) *Planner {
	return &Planner{cat: cat}
}

// joinComponent is one entry of the DP table: the best plan found so
// far for exactly this set of leaves, along with which leaves and
// which conjuncts it has already consumed.
type joinComponent struct {
	plan          PlanNode
	leaves        map[int]bool
	conjunctsUsed map[int]bool
}

func (jc *joinComponent) key() string {
	// a leaf-index set, in increasing order, uniquely identifies a DP
	// table slot regardless of how the component was assembled.
	key := make([]byte, 0, len(jc.leaves))
	for i := 0; i < 64; i++ {
		if jc.leaves[i] {
			key = append(key, byte('a'+i))
		}
	}
	return string(key)
}

// MakePlan runs the 8-step algorithm of spec §4.4 and returns a
// prepared PlanNode ready for Initialize/GetNextTuple.
func (p *Planner) MakePlan(sel *SelectClause) (PlanNode, error) {
	if len(sel.From) == 0 {
		return nil, dberr.Unsupportedf("plan.Planner.MakePlan", "SELECT with no FROM clause is not supported")
	}

	// Step 1: collect top-level WHERE conjuncts (AND split only at the
	// top level; OR/NOT stay whole).
	conjuncts := splitConjuncts(sel.Where)
	conjuncts = append(conjuncts, sel.JoinPreds...)

	// Step 2: leaf plans, with single-leaf conjuncts pushed down.
	leafPlans := make([]PlanNode, len(sel.From))
	usedConjunct := make([]bool, len(conjuncts))
	for i, item := range sel.From {
		leafPlan, err := p.buildLeaf(item)
		if err != nil {
			return nil, err
		}
		if err := leafPlan.Prepare(); err != nil {
			return nil, err
		}
		leafSchema := leafPlan.GetSchema()

		var pushed expr.Expression
		for ci, c := range conjuncts {
			if usedConjunct[ci] {
				continue
			}
			if symbolsCoveredBy(c, leafSchema) {
				pushed = andTogether(pushed, c)
				usedConjunct[ci] = true
			}
		}
		if pushed != nil {
			leafPlan = NewFilter(leafPlan, pushed)
			if err := leafPlan.Prepare(); err != nil {
				return nil, err
			}
		}
		leafPlans[i] = leafPlan
	}

	// Step 3: DP join enumeration, keyed by set-of-leaves.
	dp := make(map[string]*joinComponent, len(leafPlans))
	for i, lp := range leafPlans {
		jc := &joinComponent{plan: lp, leaves: map[int]bool{i: true}, conjunctsUsed: map[int]bool{}}
		for ci, used := range usedConjunct {
			if used && symbolsCoveredBy(conjuncts[ci], lp.GetSchema()) {
				jc.conjunctsUsed[ci] = true
			}
		}
		dp[jc.key()] = jc
	}

	n := len(leafPlans)
	for size := 1; size < n; size++ {
		next := make(map[string]*joinComponent)
		for _, cur := range dp {
			if len(cur.leaves) != size {
				continue
			}
			for li := 0; li < n; li++ {
				if cur.leaves[li] {
					continue
				}
				rightPlan := leafPlans[li]
				combinedSchema := schemaOf(cur.plan, rightPlan)

				var joinPred expr.Expression
				used := map[int]bool{}
				for ci, c := range conjuncts {
					if usedConjunct[ci] || cur.conjunctsUsed[ci] {
						continue
					}
					if symbolsCoveredBy(c, combinedSchema) {
						joinPred = andTogether(joinPred, c)
						used[ci] = true
					}
				}

				candidate := NewNestedLoopsJoin(cur.plan, rightPlan, JoinInner, joinPred)
				if joinPred == nil {
					candidate.joinType = JoinCross
				}
				if err := candidate.Prepare(); err != nil {
					return nil, err
				}

				newLeaves := map[int]bool{}
				for k := range cur.leaves {
					newLeaves[k] = true
				}
				newLeaves[li] = true
				newUsed := map[int]bool{}
				for k := range cur.conjunctsUsed {
					newUsed[k] = true
				}
				for k := range used {
					newUsed[k] = true
				}

				nc := &joinComponent{plan: candidate, leaves: newLeaves, conjunctsUsed: newUsed}
				key := nc.key()
				if best, ok := next[key]; !ok || candidate.GetCost().CPUCost < best.plan.GetCost().CPUCost {
					next[key] = nc
				}
			}
		}
		for k, v := range next {
			dp[k] = v
		}
	}

	var final *joinComponent
	for _, jc := range dp {
		if len(jc.leaves) == n {
			if final == nil || jc.plan.GetCost().CPUCost < final.plan.GetCost().CPUCost {
				final = jc
			}
		}
	}
	if final == nil {
		return nil, dberr.Unsupportedf("plan.Planner.MakePlan", "join enumeration produced no plan covering every table")
	}

	planNode := final.plan

	// Step 4: residual predicate, for any conjunct DP never consumed.
	var residual expr.Expression
	for ci, c := range conjuncts {
		if usedConjunct[ci] || final.conjunctsUsed[ci] {
			continue
		}
		residual = andTogether(residual, c)
	}
	if residual != nil {
		planNode = NewFilter(planNode, residual)
		if err := planNode.Prepare(); err != nil {
			return nil, err
		}
	}

	// Step 5: grouping/aggregation.
	if len(sel.GroupBy) > 0 || len(sel.Aggregates) > 0 {
		if err := ValidateNoWildcardUnderGrouping(sel.Values); err != nil {
			return nil, err
		}
		planNode = NewGroupAggregate(planNode, sel.GroupBy, sel.Aggregates)
		if err := planNode.Prepare(); err != nil {
			return nil, err
		}
	}

	// Step 6: projection.
	if len(sel.Values) > 0 && !isTrivialStar(sel.Values) {
		planNode = NewProject(planNode, sel.Values)
		if err := planNode.Prepare(); err != nil {
			return nil, err
		}
	}

	// Step 7: ordering.
	if len(sel.OrderBy) > 0 {
		planNode = NewSort(planNode, sel.OrderBy)
		if err := planNode.Prepare(); err != nil {
			return nil, err
		}
	}

	// Step 8: final prepare (a no-op for everything already prepared
	// above, but the top node may not have been if no clauses applied).
	if err := planNode.Prepare(); err != nil {
		return nil, err
	}
	return planNode, nil
}

func (p *Planner) buildLeaf(item FromItem) (PlanNode, error) {
	var leafPlan PlanNode
	if item.Subquery != nil {
		sub, err := p.MakePlan(item.Subquery)
		if err != nil {
			return nil, err
		}
		leafPlan = sub
	} else {
		info, ok := p.cat.GetTable(item.Table)
		if !ok {
			return nil, dberr.Schemaf("plan.Planner.buildLeaf", "unknown table %q", item.Table)
		}
		leafPlan = NewFileScan(info.Heap, nil)
	}
	if item.Alias != "" {
		leafPlan = NewRename(leafPlan, item.Alias)
	}
	return leafPlan, nil
}

// splitConjuncts implements step 1(a): split AND at the top level only,
// leaving OR/NOT whole.
func splitConjuncts(e expr.Expression) []expr.Expression {
	if e == nil {
		return nil
	}
	b, ok := e.(*expr.BooleanOperator)
	if !ok || b.Op != expr.OpAnd {
		return []expr.Expression{e}
	}
	var out []expr.Expression
	for _, t := range b.Terms {
		out = append(out, splitConjuncts(t)...)
	}
	return out
}

func andTogether(a, b expr.Expression) expr.Expression {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return expr.And(a, b)
}

// symbolsCoveredBy reports whether every column e references resolves
// in sch, i.e. whether e can be evaluated using only sch's columns.
func symbolsCoveredBy(e expr.Expression, sch interface{ ColumnIndex(string) (int, error) }) bool {
	for _, sym := range e.Symbols() {
		if _, err := sch.ColumnIndex(sym); err != nil {
			return false
		}
	}
	return true
}

func schemaOf(left, right PlanNode) *leafUnionSchema {
	leftSchema := left.GetSchema()
	return &leafUnionSchema{left: leftSchema, right: right.GetSchema(), leftWidth: leftSchema.NumColumns()}
}

// leafUnionSchema answers ColumnIndex for the concatenation of two
// schemas without materializing a combined schema.Schema, matching what
// NestedLoopsJoin's own Prepare will build once the join is chosen.
// Only symbolsCoveredBy calls this today, and it only checks the error,
// but the index is offset to stay a correct "as if concatenated" answer.
type leafUnionSchema struct {
	left, right interface {
		ColumnIndex(string) (int, error)
	}
	leftWidth int
}

func (u *leafUnionSchema) ColumnIndex(name string) (int, error) {
	if idx, err := u.left.ColumnIndex(name); err == nil {
		return idx, nil
	}
	idx, err := u.right.ColumnIndex(name)
	if err != nil {
		return 0, err
	}
	return u.leftWidth + idx, nil
}

func isTrivialStar(values []SelectValue) bool {
	return len(values) == 1 && values[0].Wildcard && values[0].WildcardTable == ""
}
