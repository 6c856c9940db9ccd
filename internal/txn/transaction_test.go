package txn

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/nanodb/nanodb/internal/wal"
	"github.com/nanodb/nanodb/pkg/types"
)

func newTestManager(t *testing.T, applyUndo ApplyUndo) (*Manager, *wal.Writer) {
	t.Helper()
	dir := t.TempDir()
	walPath := filepath.Join(dir, "wal.log")
	w, err := wal.NewWriter(walPath, uuid.New())
	if err != nil {
		t.Fatalf("wal.NewWriter() error = %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return NewManager(w, applyUndo), w
}

func TestStartTransactionAssignsIncreasingIDs(t *testing.T) {
	m, _ := newTestManager(t, nil)

	var s1, s2 TransactionState
	if err := m.StartTransaction(&s1, true); err != nil {
		t.Fatalf("StartTransaction() error = %v", err)
	}
	if err := m.StartTransaction(&s2, true); err != nil {
		t.Fatalf("StartTransaction() error = %v", err)
	}

	if !s1.InProgress() || !s2.InProgress() {
		t.Fatal("both sessions should be InProgress")
	}
	if s2.TransactionID <= s1.TransactionID {
		t.Errorf("second txn id %d should exceed first %d", s2.TransactionID, s1.TransactionID)
	}
}

func TestStartTransactionRejectsNested(t *testing.T) {
	m, _ := newTestManager(t, nil)

	var s TransactionState
	m.StartTransaction(&s, true)
	if err := m.StartTransaction(&s, true); err == nil {
		t.Fatal("expected error starting a transaction while one is active")
	}
}

func TestCommitWithoutWritesLogsNothing(t *testing.T) {
	m, w := newTestManager(t, nil)

	var s TransactionState
	m.StartTransaction(&s, true)
	if err := m.Commit(&s); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if s.InProgress() {
		t.Error("state should be cleared after commit")
	}
	if w.GetCurrentLSN() != 1 {
		t.Errorf("no record should have been logged, CurrentLSN = %d", w.GetCurrentLSN())
	}
}

func TestRecordPageUpdateLogsStartOnFirstWrite(t *testing.T) {
	m, w := newTestManager(t, nil)

	var s TransactionState
	m.StartTransaction(&s, true)

	if _, err := m.RecordPageUpdate(&s, types.PageID(1), 0, []byte("old"), []byte("new")); err != nil {
		t.Fatalf("RecordPageUpdate() error = %v", err)
	}
	if !s.LoggedTxnStart {
		t.Error("LoggedTxnStart should be true after first write")
	}
	// START_TXN (LSN 1) + UPDATE_PAGE (LSN 2) -> next is 3.
	if w.GetCurrentLSN() != 3 {
		t.Errorf("CurrentLSN = %d, want 3", w.GetCurrentLSN())
	}
}

func TestCommitForcesWAL(t *testing.T) {
	m, w := newTestManager(t, nil)

	var s TransactionState
	m.StartTransaction(&s, true)
	m.RecordPageUpdate(&s, types.PageID(1), 0, []byte("old"), []byte("new"))

	if err := m.Commit(&s); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if w.GetFlushedLSN() < 3 {
		t.Errorf("commit should force WAL durable, FlushedLSN = %d", w.GetFlushedLSN())
	}
}

func TestRollbackAppliesUndoInReverseOrder(t *testing.T) {
	var applied [][]byte
	applyUndo := func(pageNo types.PageID, slotNo uint16, before []byte) error {
		applied = append(applied, before)
		return nil
	}
	m, _ := newTestManager(t, applyUndo)

	var s TransactionState
	m.StartTransaction(&s, true)
	m.RecordPageUpdate(&s, types.PageID(1), 0, []byte("v1"), []byte("v2"))
	m.RecordPageUpdate(&s, types.PageID(1), 0, []byte("v2"), []byte("v3"))

	if err := m.Rollback(&s); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if s.InProgress() {
		t.Error("state should be cleared after rollback")
	}
	if len(applied) != 2 {
		t.Fatalf("applied %d undo entries, want 2", len(applied))
	}
	if string(applied[0]) != "v2" || string(applied[1]) != "v1" {
		t.Errorf("undo order = %q, %q; want v2, v1", applied[0], applied[1])
	}
}

func TestRollbackWithoutWritesNoops(t *testing.T) {
	m, _ := newTestManager(t, nil)

	var s TransactionState
	m.StartTransaction(&s, true)
	if err := m.Rollback(&s); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if s.InProgress() {
		t.Error("state should be cleared after rollback")
	}
}

func TestCommitWithNoActiveTransactionFails(t *testing.T) {
	m, _ := newTestManager(t, nil)

	var s TransactionState
	if err := m.Commit(&s); err == nil {
		t.Fatal("expected error committing with no active transaction")
	}
}

func TestRollbackWithNoActiveTransactionFails(t *testing.T) {
	m, _ := newTestManager(t, nil)

	var s TransactionState
	if err := m.Rollback(&s); err == nil {
		t.Fatal("expected error rolling back with no active transaction")
	}
}

func TestActiveTxnCount(t *testing.T) {
	m, _ := newTestManager(t, nil)

	var s1, s2 TransactionState
	m.StartTransaction(&s1, true)
	m.StartTransaction(&s2, true)

	if m.ActiveTxnCount() != 2 {
		t.Errorf("ActiveTxnCount() = %d, want 2", m.ActiveTxnCount())
	}

	m.Commit(&s1)
	if m.ActiveTxnCount() != 1 {
		t.Errorf("after commit, ActiveTxnCount() = %d, want 1", m.ActiveTxnCount())
	}

	m.Rollback(&s2)
	if m.ActiveTxnCount() != 0 {
		t.Errorf("after rollback, ActiveTxnCount() = %d, want 0", m.ActiveTxnCount())
	}
}

func TestRestoreNextTxnID(t *testing.T) {
	m, _ := newTestManager(t, nil)

	m.RestoreNextTxnID(types.TxnID(100))

	var s TransactionState
	m.StartTransaction(&s, true)
	if s.TransactionID <= types.TxnID(100) {
		t.Errorf("txn id = %d, want > 100", s.TransactionID)
	}
}

func TestCheckpointFlushesWAL(t *testing.T) {
	m, w := newTestManager(t, nil)

	var s TransactionState
	m.StartTransaction(&s, true)
	m.RecordPageUpdate(&s, types.PageID(1), 0, nil, []byte("data"))

	if err := m.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint() error = %v", err)
	}
	if w.GetFlushedLSN() == 0 {
		t.Error("checkpoint should have flushed buffered records")
	}
}
