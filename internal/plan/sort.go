package plan

import (
	"math"
	"sort"

	"github.com/nanodb/nanodb/internal/tuple"
)

// Sort buffers its entire child stream on Initialize and returns it back
// in order, stably broken left-to-right across terms (spec §4.3). It is
// strictly in-memory: there is no external-merge fallback for a child
// too large to fit, matching the spec's stated scope.
type Sort struct {
	baseNode

	child PlanNode
	terms []OrderByTerm

	rows []tuple.Tuple
	idx  int
	mark int
}

func NewSort(child PlanNode, terms []OrderByTerm) *Sort {
	return &Sort{child: child, terms: terms}
}

func (s *Sort) Prepare() error {
	if s.state >= StatePrepared {
		return nil
	}
	if err := s.child.Prepare(); err != nil {
		return err
	}
	s.outSchema = s.child.GetSchema()
	s.columnStats = s.child.GetColumnStats()

	childCost := s.child.GetCost()
	n := childCost.NumTuples
	cpuSort := float32(0)
	if n > 1 {
		cpuSort = n * float32(math.Log2(float64(n)))
	}
	s.cost = PlanCost{
		NumTuples:   n,
		TupleSize:   childCost.TupleSize,
		CPUCost:     childCost.CPUCost + cpuSort,
		NumBlockIOs: childCost.NumBlockIOs,
	}
	s.state = StatePrepared
	return nil
}

func (s *Sort) Initialize() error {
	if err := requireState("plan.Sort.Initialize", s.state, StatePrepared, StateInitialized, StateIterating, StateExhausted); err != nil {
		return err
	}
	if err := s.child.Initialize(); err != nil {
		return err
	}

	s.rows = s.rows[:0]
	for {
		t, err := s.child.GetNextTuple()
		if err != nil {
			return err
		}
		if t == nil {
			break
		}
		s.rows = append(s.rows, t)
	}

	var sortErr error
	sort.SliceStable(s.rows, func(i, j int) bool {
		less, err := s.less(s.rows[i], s.rows[j])
		if err != nil {
			sortErr = err
		}
		return less
	})
	if sortErr != nil {
		return sortErr
	}

	s.idx = 0
	s.state = StateInitialized
	return nil
}

func (s *Sort) less(a, b tuple.Tuple) (bool, error) {
	for _, term := range s.terms {
		envA := tuple.NewEnvironment()
		envA.Push(s.outSchema, a)
		va, err := term.Expr.Evaluate(envA)
		if err != nil {
			return false, err
		}

		envB := tuple.NewEnvironment()
		envB.Push(s.outSchema, b)
		vb, err := term.Expr.Evaluate(envB)
		if err != nil {
			return false, err
		}

		c := compareAny(va, vb)
		if c == 0 {
			continue
		}
		if term.Ascending {
			return c < 0, nil
		}
		return c > 0, nil
	}
	return false, nil
}

func (s *Sort) GetNextTuple() (tuple.Tuple, error) {
	if err := requireState("plan.Sort.GetNextTuple", s.state, StateInitialized, StateIterating); err != nil {
		return nil, err
	}
	s.state = StateIterating

	if s.idx >= len(s.rows) {
		s.state = StateExhausted
		return nil, nil
	}
	t := s.rows[s.idx]
	s.idx++
	return t, nil
}

func (s *Sort) ResultsOrderedBy() []OrderByTerm { return s.terms }
func (s *Sort) SupportsMarking() bool           { return true }

func (s *Sort) MarkCurrentPosition() error {
	s.mark = s.idx
	return nil
}

func (s *Sort) ResetToLastMark() error {
	s.idx = s.mark
	return nil
}

func (s *Sort) CleanUp() error {
	s.rows = nil
	s.state = StateCleanedUp
	return s.child.CleanUp()
}

// compareAny orders two column values of matching dynamic type; nil
// sorts before any non-nil value.
func compareAny(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}
	if af, aok := numericValue(a); aok {
		if bf, bok := numericValue(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}

	switch av := a.(type) {
	case string:
		bv, _ := b.(string)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case bool:
		bv, _ := b.(bool)
		if av == bv {
			return 0
		}
		if !av && bv {
			return -1
		}
		return 1
	default:
		return 0
	}
}

func numericValue(v any) (float64, bool) {
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

