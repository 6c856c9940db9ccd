package plan

import (
	"io"

	"github.com/nanodb/nanodb/internal/expr"
	"github.com/nanodb/nanodb/internal/heap"
	"github.com/nanodb/nanodb/internal/tuple"
	"github.com/nanodb/nanodb/pkg/types"
)

// FileScan is spec §4.3's leaf node: a sequential scan over a table's
// heap file, optionally filtering rows through a predicate pushed down
// by the planner. Supports marking by remembering the current row's
// FilePointer and reopening a fresh heap.Scanner positioned after it on
// ResetToLastMark.
type FileScan struct {
	baseNode

	table     *heap.HeapFile
	predicate expr.Expression

	scanner   *heap.Scanner
	current   tuple.Tuple
	markedPtr types.FilePointer
	hasMark   bool
}

// NewFileScan builds a scan over table, optionally filtering through
// predicate (nil means every row is returned).
func NewFileScan(table *heap.HeapFile, predicate expr.Expression) *FileScan {
	return &FileScan{table: table, predicate: predicate}
}

func (f *FileScan) Prepare() error {
	if f.state >= StatePrepared {
		return nil
	}
	f.outSchema = f.table.Schema().Schema

	numPages, err := f.table.PageCount()
	if err != nil {
		return err
	}
	stats := tableStatsFrom(f.table.Schema(), numPages)
	f.columnStats = stats.ColumnStats
	f.cost = PlanCost{
		NumTuples:   float32(stats.NumTuples),
		TupleSize:   stats.AvgTupleSize,
		CPUCost:     float32(stats.NumTuples),
		NumBlockIOs: uint64(stats.NumDataPages),
	}
	f.state = StatePrepared
	return nil
}

func (f *FileScan) Initialize() error {
	if err := requireState("plan.FileScan.Initialize", f.state, StatePrepared, StateInitialized, StateIterating, StateExhausted); err != nil {
		return err
	}
	f.scanner = f.table.NewScanner()
	f.current = nil
	f.state = StateInitialized
	return nil
}

func (f *FileScan) GetNextTuple() (tuple.Tuple, error) {
	if err := requireState("plan.FileScan.GetNextTuple", f.state, StateInitialized, StateIterating); err != nil {
		return nil, err
	}
	f.state = StateIterating

	for {
		pt, _, err := f.scanner.Next()
		if err == io.EOF {
			f.state = StateExhausted
			f.current = nil
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		if f.predicate != nil {
			env := tuple.NewEnvironment()
			env.Push(f.outSchema, pt)
			ok, err := evalPredicate(f.predicate, env)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}

		f.current = pt
		return pt, nil
	}
}

func (f *FileScan) SupportsMarking() bool { return true }

func (f *FileScan) MarkCurrentPosition() error {
	if f.current == nil {
		return nil
	}
	f.markedPtr = f.current.Pointer()
	f.hasMark = true
	return nil
}

// ResetToLastMark restarts a fresh scan and fast-forwards past the marked
// row, since heap.Scanner only walks forward.
func (f *FileScan) ResetToLastMark() error {
	if !f.hasMark {
		return nil
	}
	f.scanner = f.table.NewScanner()
	for {
		pt, ptr, err := f.scanner.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if ptr == f.markedPtr {
			break
		}
	}
	f.state = StateInitialized
	return nil
}

func (f *FileScan) CleanUp() error {
	f.scanner = nil
	f.current = nil
	f.state = StateCleanedUp
	return nil
}
