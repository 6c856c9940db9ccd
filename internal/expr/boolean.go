package expr

import (
	"strings"

	"github.com/nanodb/nanodb/internal/dberr"
	"github.com/nanodb/nanodb/internal/tuple"
	"github.com/nanodb/nanodb/pkg/types"
)

// BooleanOp is the connective a BooleanOperator applies.
type BooleanOp int

const (
	OpAnd BooleanOp = iota
	OpOr
	OpNot
)

func (op BooleanOp) String() string {
	return [...]string{"AND", "OR", "NOT"}[op]
}

// BooleanOperator is an N-ary AND/OR, or a unary NOT (Terms[0] only).
type BooleanOperator struct {
	Op    BooleanOp
	Terms []Expression
}

func And(terms ...Expression) *BooleanOperator { return &BooleanOperator{Op: OpAnd, Terms: terms} }
func Or(terms ...Expression) *BooleanOperator   { return &BooleanOperator{Op: OpOr, Terms: terms} }
func Not(term Expression) *BooleanOperator      { return &BooleanOperator{Op: OpNot, Terms: []Expression{term}} }

// AddTerm appends another operand to an AND/OR, used by predicate
// push-down when it merges two separately-derived conjuncts.
func (b *BooleanOperator) AddTerm(e Expression) {
	b.Terms = append(b.Terms, e)
}

func (b *BooleanOperator) Evaluate(env *tuple.Environment) (any, error) {
	switch b.Op {
	case OpNot:
		v, err := b.Terms[0].Evaluate(env)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, nil
		}
		bv, ok := v.(bool)
		if !ok {
			return nil, dberr.Typef("expr.BooleanOperator.Evaluate", "NOT operand is not boolean")
		}
		return !bv, nil

	case OpAnd:
		sawNull := false
		for _, t := range b.Terms {
			v, err := t.Evaluate(env)
			if err != nil {
				return nil, err
			}
			if v == nil {
				sawNull = true
				continue
			}
			bv, ok := v.(bool)
			if !ok {
				return nil, dberr.Typef("expr.BooleanOperator.Evaluate", "AND operand is not boolean")
			}
			if !bv {
				return false, nil
			}
		}
		if sawNull {
			return nil, nil
		}
		return true, nil

	case OpOr:
		sawNull := false
		for _, t := range b.Terms {
			v, err := t.Evaluate(env)
			if err != nil {
				return nil, err
			}
			if v == nil {
				sawNull = true
				continue
			}
			bv, ok := v.(bool)
			if !ok {
				return nil, dberr.Typef("expr.BooleanOperator.Evaluate", "OR operand is not boolean")
			}
			if bv {
				return true, nil
			}
		}
		if sawNull {
			return nil, nil
		}
		return false, nil

	default:
		return nil, dberr.Unsupportedf("expr.BooleanOperator.Evaluate", "unknown boolean operator")
	}
}

func (b *BooleanOperator) Type(*tuple.Environment) (types.SQLType, error) {
	return types.TypeBoolean, nil
}

func (b *BooleanOperator) Symbols() []string {
	var syms []string
	for _, t := range b.Terms {
		syms = append(syms, t.Symbols()...)
	}
	return syms
}

// GetAllSymbols is a named alias for Symbols matching spec §3's vocabulary
// for this capability.
func (b *BooleanOperator) GetAllSymbols() []string { return b.Symbols() }

func (b *BooleanOperator) Duplicate() Expression {
	terms := make([]Expression, len(b.Terms))
	for i, t := range b.Terms {
		terms[i] = t.Duplicate()
	}
	return &BooleanOperator{Op: b.Op, Terms: terms}
}

func (b *BooleanOperator) String() string {
	if b.Op == OpNot {
		return "NOT (" + b.Terms[0].String() + ")"
	}
	parts := make([]string, len(b.Terms))
	for i, t := range b.Terms {
		parts[i] = t.String()
	}
	return "(" + strings.Join(parts, " "+b.Op.String()+" ") + ")"
}

// Selectivity estimates the fraction of rows this boolean expression
// passes, combining each term's own selectivity under an independence
// assumption: AND multiplies, OR uses inclusion-exclusion via the
// complement, NOT takes 1 minus the inner selectivity (spec §4.5).
func (b *BooleanOperator) Selectivity(statsOf func(Expression) ColumnStats) float64 {
	switch b.Op {
	case OpNot:
		return 1.0 - selectivityOf(b.Terms[0], statsOf)
	case OpAnd:
		sel := 1.0
		for _, t := range b.Terms {
			sel *= selectivityOf(t, statsOf)
		}
		return sel
	case OpOr:
		// P(A or B) = 1 - P(not A)*P(not B)*... under independence.
		product := 1.0
		for _, t := range b.Terms {
			product *= 1.0 - selectivityOf(t, statsOf)
		}
		return 1.0 - product
	default:
		return 1.0 / 3.0
	}
}

func selectivityOf(e Expression, statsOf func(Expression) ColumnStats) float64 {
	switch n := e.(type) {
	case *CompareOperator:
		return n.Selectivity(statsOf(e))
	case *BooleanOperator:
		return n.Selectivity(statsOf)
	default:
		return 1.0 / 3.0
	}
}
