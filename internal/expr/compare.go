package expr

import (
	"fmt"

	"github.com/nanodb/nanodb/internal/dberr"
	"github.com/nanodb/nanodb/internal/tuple"
	"github.com/nanodb/nanodb/pkg/types"
)

// CompareOp is the comparison operator a CompareOperator applies.
type CompareOp int

const (
	OpEQ CompareOp = iota
	OpNE
	OpLT
	OpLE
	OpGT
	OpGE
)

func (op CompareOp) String() string {
	return [...]string{"=", "!=", "<", "<=", ">", ">="}[op]
}

// flip returns the operator that holds when its operands are swapped, e.g.
// "a < b" flipped is "b > a".
func (op CompareOp) flip() CompareOp {
	switch op {
	case OpLT:
		return OpGT
	case OpLE:
		return OpGE
	case OpGT:
		return OpLT
	case OpGE:
		return OpLE
	default:
		return op
	}
}

// CompareOperator compares two expressions.
type CompareOperator struct {
	Op          CompareOp
	Left, Right Expression
}

func Compare(op CompareOp, left, right Expression) *CompareOperator {
	return &CompareOperator{Op: op, Left: left, Right: right}
}

// Normalize rewrites "literal OP column" into "column OP' literal" so cost
// estimation and index matching always see the column on the left. It is
// a no-op if the expression is already in that shape or doesn't match it
// at all (e.g. column-to-column comparisons).
func (c *CompareOperator) Normalize() {
	_, leftIsCol := c.Left.(*ColumnValue)
	_, rightIsLit := c.Right.(*LiteralValue)
	if leftIsCol && rightIsLit {
		return
	}
	_, leftIsLit := c.Left.(*LiteralValue)
	_, rightIsCol := c.Right.(*ColumnValue)
	if leftIsLit && rightIsCol {
		c.Left, c.Right = c.Right, c.Left
		c.Op = c.Op.flip()
	}
}

func (c *CompareOperator) Evaluate(env *tuple.Environment) (any, error) {
	lv, err := c.Left.Evaluate(env)
	if err != nil {
		return nil, err
	}
	rv, err := c.Right.Evaluate(env)
	if err != nil {
		return nil, err
	}
	if lv == nil || rv == nil {
		return nil, nil // SQL three-valued logic: comparisons against NULL are unknown
	}

	cmp, err := compareValues(lv, rv)
	if err != nil {
		return nil, err
	}

	switch c.Op {
	case OpEQ:
		return cmp == 0, nil
	case OpNE:
		return cmp != 0, nil
	case OpLT:
		return cmp < 0, nil
	case OpLE:
		return cmp <= 0, nil
	case OpGT:
		return cmp > 0, nil
	case OpGE:
		return cmp >= 0, nil
	default:
		return nil, dberr.Unsupportedf("expr.CompareOperator.Evaluate", "unknown operator")
	}
}

func compareValues(lv, rv any) (int, error) {
	if lf, lok := asFloat(lv); lok {
		if rf, rok := asFloat(rv); rok {
			switch {
			case lf < rf:
				return -1, nil
			case lf > rf:
				return 1, nil
			default:
				return 0, nil
			}
		}
	}
	if ls, lok := lv.(string); lok {
		if rs, rok := rv.(string); rok {
			switch {
			case ls < rs:
				return -1, nil
			case ls > rs:
				return 1, nil
			default:
				return 0, nil
			}
		}
	}
	if lb, lok := lv.(bool); lok {
		if rb, rok := rv.(bool); rok {
			if lb == rb {
				return 0, nil
			}
			if !lb {
				return -1, nil
			}
			return 1, nil
		}
	}
	return 0, dberr.Typef("expr.compareValues", "cannot compare %T and %T", lv, rv)
}

func (c *CompareOperator) Type(*tuple.Environment) (types.SQLType, error) {
	return types.TypeBoolean, nil
}
func (c *CompareOperator) Symbols() []string {
	return append(c.Left.Symbols(), c.Right.Symbols()...)
}
func (c *CompareOperator) Duplicate() Expression {
	return &CompareOperator{Op: c.Op, Left: c.Left.Duplicate(), Right: c.Right.Duplicate()}
}
func (c *CompareOperator) String() string {
	return fmt.Sprintf("(%s %s %s)", c.Left, c.Op, c.Right)
}

// Selectivity estimates the fraction of rows this comparison passes,
// using the per-column distinct-value count and, for range predicates
// against a literal, a normalized position within [min, max]. Spec §4.5's
// selectivity estimation hook: callers that have column statistics
// (internal/plan's cost model) pass them in; callers that don't get the
// generic defaults.
func (c *CompareOperator) Selectivity(stats ColumnStats) float64 {
	c.Normalize()

	lit, ok := c.Right.(*LiteralValue)
	if !ok {
		// Column-to-column comparisons: classic fixed estimate.
		if c.Op == OpEQ {
			return 1.0 / maxFloat(float64(stats.NumDistinct), 1)
		}
		return 1.0 / 3.0
	}

	switch c.Op {
	case OpEQ:
		if stats.NumDistinct > 0 {
			return 1.0 / float64(stats.NumDistinct)
		}
		return 0.1
	case OpNE:
		if stats.NumDistinct > 0 {
			return 1.0 - 1.0/float64(stats.NumDistinct)
		}
		return 0.9
	case OpLT, OpLE, OpGT, OpGE:
		return rangeSelectivity(c.Op, lit.Value, stats)
	default:
		return 1.0 / 3.0
	}
}

// ColumnStats is the slice of catalog per-column statistics selectivity
// estimation needs: distinct-value count plus the observed value range.
type ColumnStats struct {
	NumDistinct int64
	Min, Max    float64
	HasRange    bool
}

func rangeSelectivity(op CompareOp, litValue any, stats ColumnStats) float64 {
	if !stats.HasRange {
		return 1.0 / 3.0
	}
	v, ok := asFloat(litValue)
	if !ok || stats.Max <= stats.Min {
		return 1.0 / 3.0
	}
	frac := (v - stats.Min) / (stats.Max - stats.Min)
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	switch op {
	case OpLT, OpLE:
		return frac
	case OpGT, OpGE:
		return 1 - frac
	default:
		return 1.0 / 3.0
	}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
