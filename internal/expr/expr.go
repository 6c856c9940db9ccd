// Package expr implements the expression sum type of spec §3/§4.5:
// LiteralValue, ColumnValue, ArithmeticOperator, CompareOperator (with
// Normalize) and BooleanOperator, each evaluated against a
// tuple.Environment. It generalizes the teacher's sql.Expr/LiteralExpr/
// ColumnExpr/BinaryExpr sum type (same dispatch idea in
// sql.Executor.evaluateExpr/evaluateCondition) to arithmetic operators,
// N-ary boolean connectives and comparison normalization.
package expr

import (
	"fmt"

	"github.com/nanodb/nanodb/internal/dberr"
	"github.com/nanodb/nanodb/internal/tuple"
	"github.com/nanodb/nanodb/pkg/types"
)

// Expression is the common interface every node of the sum type satisfies.
type Expression interface {
	// Evaluate computes the expression's value against env.
	Evaluate(env *tuple.Environment) (any, error)
	// Type returns the SQLType the expression produces, given the schemas
	// currently visible (used ahead of evaluation for type-checking).
	Type(env *tuple.Environment) (types.SQLType, error)
	// Symbols returns every column name the expression references,
	// duplicates included, used by predicate push-down to decide which
	// side of a join an expression can run on.
	Symbols() []string
	// Duplicate returns a deep copy, used when the planner needs to graft
	// the same predicate onto two different plan nodes.
	Duplicate() Expression
	String() string
}

// LiteralValue is a constant.
type LiteralValue struct {
	SQLType types.SQLType
	Value   any
}

func Lit(sqlType types.SQLType, value any) *LiteralValue {
	return &LiteralValue{SQLType: sqlType, Value: value}
}

func (l *LiteralValue) Evaluate(*tuple.Environment) (any, error) { return l.Value, nil }
func (l *LiteralValue) Type(*tuple.Environment) (types.SQLType, error) {
	return l.SQLType, nil
}
func (l *LiteralValue) Symbols() []string     { return nil }
func (l *LiteralValue) Duplicate() Expression { cp := *l; return &cp }
func (l *LiteralValue) String() string        { return fmt.Sprintf("%v", l.Value) }

// ColumnValue references a (possibly table-qualified) column by name.
type ColumnValue struct {
	Name string
}

func Col(name string) *ColumnValue { return &ColumnValue{Name: name} }

func (c *ColumnValue) Evaluate(env *tuple.Environment) (any, error) {
	return env.Resolve(c.Name)
}
func (c *ColumnValue) Type(env *tuple.Environment) (types.SQLType, error) {
	ct, err := env.ResolveType(c.Name)
	if err != nil {
		return types.TypeNull, err
	}
	return ct.Base, nil
}
func (c *ColumnValue) Symbols() []string     { return []string{c.Name} }
func (c *ColumnValue) Duplicate() Expression { cp := *c; return &cp }
func (c *ColumnValue) String() string        { return c.Name }

// ArithmeticOp is the operator an ArithmeticOperator applies.
type ArithmeticOp int

const (
	OpAdd ArithmeticOp = iota
	OpSub
	OpMul
	OpDiv
)

func (op ArithmeticOp) String() string {
	return [...]string{"+", "-", "*", "/"}[op]
}

// ArithmeticOperator applies a binary arithmetic operator over integer or
// floating-point operands.
type ArithmeticOperator struct {
	Op          ArithmeticOp
	Left, Right Expression
}

func Arith(op ArithmeticOp, left, right Expression) *ArithmeticOperator {
	return &ArithmeticOperator{Op: op, Left: left, Right: right}
}

func (a *ArithmeticOperator) Evaluate(env *tuple.Environment) (any, error) {
	lv, err := a.Left.Evaluate(env)
	if err != nil {
		return nil, err
	}
	rv, err := a.Right.Evaluate(env)
	if err != nil {
		return nil, err
	}
	if lv == nil || rv == nil {
		return nil, nil
	}

	lf, lok := asFloat(lv)
	rf, rok := asFloat(rv)
	if !lok || !rok {
		return nil, dberr.Typef("expr.ArithmeticOperator.Evaluate", "non-numeric operand to %s", a.Op)
	}

	switch a.Op {
	case OpAdd:
		return combineNumeric(lv, rv, lf+rf), nil
	case OpSub:
		return combineNumeric(lv, rv, lf-rf), nil
	case OpMul:
		return combineNumeric(lv, rv, lf*rf), nil
	case OpDiv:
		if rf == 0 {
			return nil, dberr.Typef("expr.ArithmeticOperator.Evaluate", "division by zero")
		}
		return lf / rf, nil
	default:
		return nil, dberr.Unsupportedf("expr.ArithmeticOperator.Evaluate", "unknown operator")
	}
}

// combineNumeric preserves integer results when both operands were
// integral and the operator wasn't division.
func combineNumeric(lv, rv any, f float64) any {
	_, l32 := lv.(int32)
	_, r32 := rv.(int32)
	_, l64 := lv.(int64)
	_, r64 := rv.(int64)
	if l32 && r32 {
		return int32(f)
	}
	if (l32 || l64) && (r32 || r64) {
		return int64(f)
	}
	return f
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}

func (a *ArithmeticOperator) Type(env *tuple.Environment) (types.SQLType, error) {
	lt, err := a.Left.Type(env)
	if err != nil {
		return types.TypeNull, err
	}
	rt, err := a.Right.Type(env)
	if err != nil {
		return types.TypeNull, err
	}
	if lt == types.TypeDouble || rt == types.TypeDouble {
		return types.TypeDouble, nil
	}
	if lt == types.TypeFloat || rt == types.TypeFloat {
		return types.TypeFloat, nil
	}
	if lt == types.TypeBigInt || rt == types.TypeBigInt {
		return types.TypeBigInt, nil
	}
	return types.TypeInteger, nil
}
func (a *ArithmeticOperator) Symbols() []string {
	return append(a.Left.Symbols(), a.Right.Symbols()...)
}
func (a *ArithmeticOperator) Duplicate() Expression {
	return &ArithmeticOperator{Op: a.Op, Left: a.Left.Duplicate(), Right: a.Right.Duplicate()}
}
func (a *ArithmeticOperator) String() string {
	return fmt.Sprintf("(%s %s %s)", a.Left, a.Op, a.Right)
}
