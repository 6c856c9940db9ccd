package plan

import (
	"github.com/nanodb/nanodb/internal/dberr"
	"github.com/nanodb/nanodb/internal/expr"
	"github.com/nanodb/nanodb/internal/schema"
	"github.com/nanodb/nanodb/internal/tuple"
)

// JoinType names the join kinds NestedLoopsJoin accepts. Only Cross and
// Inner are implemented; every other value fails at Prepare with an
// Unsupported error (spec §4.3).
type JoinType int

const (
	JoinCross JoinType = iota
	JoinInner
	JoinLeftOuter
	JoinRightOuter
	JoinFullOuter
)

// NestedLoopsJoin is spec §4.3's theta join: for each left row, scan
// every right row and emit the concatenation wherever predicate holds
// (or unconditionally, for a Cross join with a nil predicate).
//
// The teacher's ThetaJoin carries a mutable "swapped" flag so a single
// node can serve either join order, flipped by whichever side the
// planner decided to probe first. NanoDB's planner instead always
// constructs the join with its children already in the final desired
// output order (left first, right second) — so there is no swap state
// to carry, and the output schema is always left-schema ++ right-schema.
type NestedLoopsJoin struct {
	baseNode

	left, right PlanNode
	joinType    JoinType
	predicate   expr.Expression

	leftTuple tuple.Tuple
}

func NewNestedLoopsJoin(left, right PlanNode, joinType JoinType, predicate expr.Expression) *NestedLoopsJoin {
	return &NestedLoopsJoin{left: left, right: right, joinType: joinType, predicate: predicate}
}

func (j *NestedLoopsJoin) Prepare() error {
	if j.state >= StatePrepared {
		return nil
	}
	if j.joinType != JoinCross && j.joinType != JoinInner {
		return dberr.Unsupportedf("plan.NestedLoopsJoin.Prepare", "join type %d is not supported", j.joinType)
	}
	if err := j.left.Prepare(); err != nil {
		return err
	}
	if err := j.right.Prepare(); err != nil {
		return err
	}

	leftSchema := j.left.GetSchema()
	rightSchema := j.right.GetSchema()
	cols := make([]schema.ColumnInfo, 0, len(leftSchema.Columns)+len(rightSchema.Columns))
	cols = append(cols, leftSchema.Columns...)
	cols = append(cols, rightSchema.Columns...)
	j.outSchema = &schema.Schema{Columns: cols}
	j.columnStats = append(append([]ColumnStat{}, j.left.GetColumnStats()...), j.right.GetColumnStats()...)

	leftCost := j.left.GetCost()
	rightCost := j.right.GetCost()
	sel := 1.0
	if j.joinType == JoinInner {
		sel = selectivityOf(j.predicate, j.outSchema, j.columnStats)
	}
	numPairs := leftCost.NumTuples * rightCost.NumTuples
	j.cost = PlanCost{
		NumTuples:   numPairs * float32(sel),
		TupleSize:   leftCost.TupleSize + rightCost.TupleSize,
		CPUCost:     leftCost.CPUCost + leftCost.NumTuples*rightCost.CPUCost + numPairs,
		NumBlockIOs: leftCost.NumBlockIOs + uint64(leftCost.NumTuples)*rightCost.NumBlockIOs,
	}
	j.state = StatePrepared
	return nil
}

func (j *NestedLoopsJoin) Initialize() error {
	if err := requireState("plan.NestedLoopsJoin.Initialize", j.state, StatePrepared, StateInitialized, StateIterating, StateExhausted); err != nil {
		return err
	}
	if err := j.left.Initialize(); err != nil {
		return err
	}
	if err := j.right.Initialize(); err != nil {
		return err
	}
	j.leftTuple = nil
	j.state = StateInitialized
	return nil
}

func (j *NestedLoopsJoin) GetNextTuple() (tuple.Tuple, error) {
	if err := requireState("plan.NestedLoopsJoin.GetNextTuple", j.state, StateInitialized, StateIterating); err != nil {
		return nil, err
	}
	j.state = StateIterating

	for {
		if j.leftTuple == nil {
			t, err := j.left.GetNextTuple()
			if err != nil {
				return nil, err
			}
			if t == nil {
				j.state = StateExhausted
				return nil, nil
			}
			j.leftTuple = t
			if err := j.right.Initialize(); err != nil {
				return nil, err
			}
		}

		rt, err := j.right.GetNextTuple()
		if err != nil {
			return nil, err
		}
		if rt == nil {
			j.leftTuple = nil
			continue
		}

		combined, err := tuple.Concat(j.outSchema, j.leftTuple, rt)
		if err != nil {
			return nil, err
		}
		if j.predicate == nil {
			return combined, nil
		}

		env := tuple.NewEnvironment()
		env.Push(j.outSchema, combined)
		ok, err := evalPredicate(j.predicate, env)
		if err != nil {
			return nil, err
		}
		if ok {
			return combined, nil
		}
	}
}

func (j *NestedLoopsJoin) CleanUp() error {
	j.state = StateCleanedUp
	if err := j.left.CleanUp(); err != nil {
		return err
	}
	return j.right.CleanUp()
}
