// Package txn implements NanoDB's per-session transaction state and the
// single-coarse-lock transaction manager that logs, commits and rolls
// transactions back through the write-ahead log.
//
// It narrows the teacher's txn.Manager, which coordinated MVCC snapshot
// visibility (see mvcc.go) across concurrently-writing transactions, to
// spec.md §5's simplified model: only one session writes at a time under
// a single mutex, so a session is implicitly serializable and rollback
// can undo physically (reapplying WAL before-images) instead of hiding
// an old tuple version behind a snapshot.
package txn

import (
	"sync"

	"github.com/nanodb/nanodb/internal/dberr"
	"github.com/nanodb/nanodb/internal/dblog"
	"github.com/nanodb/nanodb/internal/wal"
	"github.com/nanodb/nanodb/pkg/types"
)

// TransactionState is the per-session bookkeeping spec.md §3 describes:
// the active transaction id (InvalidTxnID when none), whether the
// session's own BEGIN started it (vs. an implicit single-statement
// transaction), the LSN of its most recently emitted record (the head
// of its undo chain), and whether START_TXN has been logged yet.
type TransactionState struct {
	TransactionID  types.TxnID
	UserStartedTxn bool
	LastLSN        types.LSN
	LoggedTxnStart bool
}

// InProgress reports whether the session currently has a transaction open.
func (s *TransactionState) InProgress() bool {
	return s.TransactionID != types.InvalidTxnID
}

// undoEntry is one link of a transaction's in-memory undo chain: the
// before-image needed to physically reverse a single page/slot write.
// It mirrors the record a Rollback would otherwise have to re-read back
// out of the WAL file by following PrevLSN.
type undoEntry struct {
	pageNo types.PageID
	slotNo uint16
	before []byte
}

// ApplyUndo restores a page/slot to the bytes given in before, called by
// Rollback once per undone write.
type ApplyUndo func(pageNo types.PageID, slotNo uint16, before []byte) error

// Manager implements spec §5's locking discipline: "a single session is
// implicitly serializable because only one session writes at a time
// under the coarse-grained lock." There is no (file,page) lock table and
// no waiter queues; mu alone serializes every state mutation below.
type Manager struct {
	mu sync.Mutex

	nextTxnID  uint64
	wal        *wal.Writer
	applyUndo  ApplyUndo
	undoChains map[types.TxnID][]undoEntry
}

// NewManager creates a transaction manager writing through w. applyUndo
// may be nil for callers that only ever commit (e.g. read-only sessions
// or tests exercising the WAL in isolation).
func NewManager(w *wal.Writer, applyUndo ApplyUndo) *Manager {
	return &Manager{
		nextTxnID:  uint64(types.FirstTxnID),
		wal:        w,
		applyUndo:  applyUndo,
		undoChains: make(map[types.TxnID][]undoEntry),
	}
}

// StartTransaction assigns state a fresh transaction id. It does not log
// START_TXN yet — spec §4.6 defers that to the first actual write, so a
// read-only transaction never appears in the WAL at all.
func (m *Manager) StartTransaction(state *TransactionState, userStarted bool) error {
	if state.InProgress() {
		return dberr.Transactionf("txn.Manager.StartTransaction", "a transaction is already active for this session")
	}

	m.mu.Lock()
	txnID := types.TxnID(m.nextTxnID)
	m.nextTxnID++
	m.undoChains[txnID] = nil
	m.mu.Unlock()

	state.TransactionID = txnID
	state.UserStartedTxn = userStarted
	state.LastLSN = types.InvalidLSN
	state.LoggedTxnStart = false
	return nil
}

// RecordPageUpdate logs a page modification under state's transaction,
// writing START_TXN first if this is the transaction's first logged
// write, and appends the before-image to the in-memory undo chain
// Rollback walks.
func (m *Manager) RecordPageUpdate(state *TransactionState, pageNo types.PageID, slotNo uint16, before, after []byte) (types.LSN, error) {
	if !state.InProgress() {
		return types.InvalidLSN, dberr.Transactionf("txn.Manager.RecordPageUpdate", "no active transaction")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !state.LoggedTxnStart {
		m.wal.LogStartTxn(state.TransactionID)
		state.LoggedTxnStart = true
	}

	lsn := m.wal.LogUpdatePage(state.TransactionID, pageNo, slotNo, before, after)
	state.LastLSN = lsn
	m.undoChains[state.TransactionID] = append(m.undoChains[state.TransactionID], undoEntry{pageNo, slotNo, before})
	return lsn, nil
}

// Commit writes COMMIT_TXN and forces the WAL to at least the commit
// LSN, then clears state. If nothing was logged, no record is written
// at all (spec §4.6).
func (m *Manager) Commit(state *TransactionState) error {
	if !state.InProgress() {
		return dberr.Transactionf("txn.Manager.Commit", "no active transaction")
	}

	if state.LoggedTxnStart {
		if _, err := m.wal.LogCommitTxn(state.TransactionID); err != nil {
			return err
		}
	}

	m.mu.Lock()
	delete(m.undoChains, state.TransactionID)
	m.mu.Unlock()

	dblog.WithTxn(uint64(state.TransactionID)).Debug().Msg("transaction committed")
	*state = TransactionState{}
	return nil
}

// Rollback walks the undo chain from LastLSN backward, applying each
// before-image and emitting a matching UPDATE_PAGE_REDO_ONLY record (so
// the undo is itself crash-safe), then writes ABORT_TXN.
func (m *Manager) Rollback(state *TransactionState) error {
	if !state.InProgress() {
		return dberr.Transactionf("txn.Manager.Rollback", "no active transaction")
	}

	m.mu.Lock()
	chain := m.undoChains[state.TransactionID]
	delete(m.undoChains, state.TransactionID)
	m.mu.Unlock()

	for i := len(chain) - 1; i >= 0; i-- {
		entry := chain[i]
		if m.applyUndo != nil {
			if err := m.applyUndo(entry.pageNo, entry.slotNo, entry.before); err != nil {
				return err
			}
		}
		if state.LoggedTxnStart {
			m.wal.LogUpdatePageRedoOnly(state.TransactionID, entry.pageNo, entry.slotNo, entry.before)
		}
	}

	if state.LoggedTxnStart {
		m.wal.LogAbortTxn(state.TransactionID)
	}

	dblog.WithTxn(uint64(state.TransactionID)).Debug().Int("undone_writes", len(chain)).Msg("transaction rolled back")
	*state = TransactionState{}
	return nil
}

// ActiveTxnCount reports how many transactions currently have an open
// undo chain, for diagnostics and tests.
func (m *Manager) ActiveTxnCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undoChains)
}

// Checkpoint forces the WAL buffer durable. NanoDB folds checkpointing
// into a plain flush rather than a distinct log record — see
// internal/wal's package doc and DESIGN.md's Open Question decisions.
func (m *Manager) Checkpoint() error {
	return m.wal.Flush()
}

// RestoreNextTxnID bumps the id counter past the highest transaction id
// observed during recovery, so a freshly started transaction never
// reuses an id already present in the WAL (spec §4.6 step 4).
func (m *Manager) RestoreNextTxnID(maxSeen types.TxnID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if next := uint64(maxSeen) + 1; next > m.nextTxnID {
		m.nextTxnID = next
	}
}
