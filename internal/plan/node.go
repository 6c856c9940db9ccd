// Package plan implements NanoDB's query execution core (spec §4.3-§4.5):
// a pull-based iterator tree of PlanNodes, a DP left-deep Planner that
// builds one from a FROM/WHERE/SELECT/GROUP-BY/ORDER-BY clause, and the
// cost/selectivity model the planner's search uses to compare candidates.
//
// The teacher has no query planner at all — sql.Executor interprets each
// parsed statement directly against the heap table by table. This
// package is grounded structurally on the synchronous, explicit-error,
// no-panic, no-goroutine style every other NanoDB package (storage, wal,
// txn) already establishes, and on the pull-based getNextTuple
// convention of dynajoe-tinydb's and firefly-oss-flydb's executor trees.
package plan

import (
	"github.com/nanodb/nanodb/internal/dberr"
	"github.com/nanodb/nanodb/internal/expr"
	"github.com/nanodb/nanodb/internal/schema"
	"github.com/nanodb/nanodb/internal/tuple"
	"github.com/nanodb/nanodb/pkg/types"
)

// NodeState tracks a plan node's position in spec §4.3's state machine:
// Fresh -> Prepared -> Initialized -> Iterating -> Exhausted -> CleanedUp.
type NodeState int

const (
	StateFresh NodeState = iota
	StatePrepared
	StateInitialized
	StateIterating
	StateExhausted
	StateCleanedUp
)

// ColumnStat is one column's planner statistics, read off a TableSchema
// refreshed by catalog.Catalog.AnalyzeTable.
type ColumnStat struct {
	NumDistinct int64
	Min, Max    float64
	HasRange    bool
}

func (cs ColumnStat) toExprStats() expr.ColumnStats {
	return expr.ColumnStats{NumDistinct: cs.NumDistinct, Min: cs.Min, Max: cs.Max, HasRange: cs.HasRange}
}

// PlanCost is spec §4.5's four-field cost estimate, carried per node.
type PlanCost struct {
	NumTuples   float32
	TupleSize   float32
	CPUCost     float32
	NumBlockIOs uint64
}

// OrderByTerm pairs an expression with its sort direction, used by both
// Sort's own ORDER BY list and a node's resultsOrderedBy() report.
type OrderByTerm struct {
	Expr      expr.Expression
	Ascending bool
}

// PlanNode is the common contract spec §4.3 names for every iterator:
// one-time preparation, iteration reset, pull-based row production,
// optional position marking, and the metadata the planner's cost model
// and EXPLAIN-style diagnostics read back.
type PlanNode interface {
	// Prepare computes schema, statistics and cost exactly once; it must
	// be idempotent (a second call is a no-op returning the same result).
	Prepare() error
	// Initialize (re)starts iteration from the beginning.
	Initialize() error
	// GetNextTuple returns the next tuple, or (nil, nil) once exhausted.
	// It is only legal to call after Initialize.
	GetNextTuple() (tuple.Tuple, error)
	// SupportsMarking reports whether MarkCurrentPosition/ResetToLastMark
	// are implemented for this node.
	SupportsMarking() bool
	MarkCurrentPosition() error
	ResetToLastMark() error
	// CleanUp releases any resources (pinned pages, in-memory buffers)
	// held by this node and its children.
	CleanUp() error

	GetSchema() *schema.Schema
	GetCost() PlanCost
	GetColumnStats() []ColumnStat
	// ResultsOrderedBy reports the ordering this node's output already
	// satisfies, possibly empty.
	ResultsOrderedBy() []OrderByTerm
}

// baseNode factors the state-machine bookkeeping and Prepare-is-idempotent
// guard every concrete node shares.
type baseNode struct {
	state       NodeState
	outSchema   *schema.Schema
	cost        PlanCost
	columnStats []ColumnStat
}

func (b *baseNode) GetSchema() *schema.Schema      { return b.outSchema }
func (b *baseNode) GetCost() PlanCost              { return b.cost }
func (b *baseNode) GetColumnStats() []ColumnStat   { return b.columnStats }
func (b *baseNode) ResultsOrderedBy() []OrderByTerm { return nil }
func (b *baseNode) SupportsMarking() bool           { return false }
func (b *baseNode) MarkCurrentPosition() error {
	return dberr.Unsupportedf("plan.baseNode.MarkCurrentPosition", "this node does not support marking")
}
func (b *baseNode) ResetToLastMark() error {
	return dberr.Unsupportedf("plan.baseNode.ResetToLastMark", "this node does not support marking")
}

// requireState returns an error unless the node is in one of the given
// states, the guard every GetNextTuple implementation opens with.
func requireState(op string, s NodeState, allowed ...NodeState) error {
	for _, a := range allowed {
		if s == a {
			return nil
		}
	}
	return dberr.Transactionf(op, "illegal call in state %d", s)
}

// evalPredicate evaluates a possibly-nil predicate against env, treating
// NULL as false (spec §3's evaluatePredicate contract) and a nil
// predicate as always-true (a Cartesian product / unfiltered scan).
func evalPredicate(pred expr.Expression, env *tuple.Environment) (bool, error) {
	if pred == nil {
		return true, nil
	}
	v, err := pred.Evaluate(env)
	if err != nil {
		return false, err
	}
	b, _ := v.(bool)
	return b, nil
}

// TableStats is the per-table statistics the file scan's Prepare reads
// off a schema.TableSchema to seed spec §4.5's cost formulas.
type TableStats struct {
	NumTuples    int64
	NumDataPages int64
	AvgTupleSize float32
	ColumnStats  []ColumnStat
}

func tableStatsFrom(ts *schema.TableSchema, numPages int) TableStats {
	stats := make([]ColumnStat, ts.Schema.NumColumns())
	for i := range stats {
		stats[i] = ColumnStat{NumDistinct: ts.NumDistinctStats[i]}
	}
	return TableStats{
		NumTuples:    ts.RowCount,
		NumDataPages: int64(numPages),
		AvgTupleSize: estimateRowSize(ts.Schema),
		ColumnStats:  stats,
	}
}

func estimateRowSize(s *schema.Schema) float32 {
	var size int
	for _, c := range s.Columns {
		if c.Type.Base == types.TypeVarChar {
			size += 16 // rough average for an unconstrained varchar
			continue
		}
		size += c.Type.Size()
	}
	return float32(size)
}
