package wal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/nanodb/nanodb/pkg/types"
)

func newTestWriter(t *testing.T) (*Writer, string, uuid.UUID) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")
	id := uuid.New()
	w, err := NewWriter(path, id)
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}
	return w, path, id
}

func TestNewWriterInitialState(t *testing.T) {
	w, _, _ := newTestWriter(t)
	defer w.Close()

	if w.GetCurrentLSN() != 1 {
		t.Errorf("CurrentLSN = %d, want 1", w.GetCurrentLSN())
	}
	if w.GetFlushedLSN() != 0 {
		t.Errorf("FlushedLSN = %d, want 0", w.GetFlushedLSN())
	}
}

func TestAppendAssignsLSN(t *testing.T) {
	w, _, _ := newTestWriter(t)
	defer w.Close()

	lsn1 := w.Append(&LogRecord{TxnID: 1, Type: types.LogRecordStartTxn})
	if lsn1 != 1 {
		t.Errorf("first LSN = %d, want 1", lsn1)
	}
	lsn2 := w.Append(&LogRecord{TxnID: 1, Type: types.LogRecordUpdatePage})
	if lsn2 != 2 {
		t.Errorf("second LSN = %d, want 2", lsn2)
	}
	if w.GetCurrentLSN() != 3 {
		t.Errorf("CurrentLSN = %d, want 3", w.GetCurrentLSN())
	}
}

func TestAppendPrevLSNChain(t *testing.T) {
	w, _, _ := newTestWriter(t)
	defer w.Close()

	r1 := &LogRecord{TxnID: 1, Type: types.LogRecordStartTxn}
	w.Append(r1)
	if r1.PrevLSN != types.InvalidLSN {
		t.Errorf("first PrevLSN = %d, want InvalidLSN", r1.PrevLSN)
	}

	r2 := &LogRecord{TxnID: 1, Type: types.LogRecordUpdatePage}
	w.Append(r2)
	if r2.PrevLSN != 1 {
		t.Errorf("second PrevLSN = %d, want 1", r2.PrevLSN)
	}

	r3 := &LogRecord{TxnID: 1, Type: types.LogRecordUpdatePage}
	w.Append(r3)
	if r3.PrevLSN != 2 {
		t.Errorf("third PrevLSN = %d, want 2", r3.PrevLSN)
	}
}

func TestFlush(t *testing.T) {
	w, _, _ := newTestWriter(t)
	defer w.Close()

	w.Append(&LogRecord{TxnID: 1, Type: types.LogRecordStartTxn})
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if w.GetFlushedLSN() != 1 {
		t.Errorf("FlushedLSN after flush = %d, want 1", w.GetFlushedLSN())
	}
}

func TestForce(t *testing.T) {
	w, _, _ := newTestWriter(t)
	defer w.Close()

	lsn := w.Append(&LogRecord{TxnID: 1, Type: types.LogRecordStartTxn})
	if err := w.Force(lsn); err != nil {
		t.Fatalf("Force() error = %v", err)
	}
	if w.GetFlushedLSN() < lsn {
		t.Errorf("FlushedLSN = %d, want >= %d", w.GetFlushedLSN(), lsn)
	}
	if err := w.Force(lsn); err != nil {
		t.Fatalf("Force(already flushed) error = %v", err)
	}
}

func TestLogCommitTxnForcesToDisk(t *testing.T) {
	w, _, _ := newTestWriter(t)
	defer w.Close()

	w.LogStartTxn(types.TxnID(1))
	lsn, err := w.LogCommitTxn(types.TxnID(1))
	if err != nil {
		t.Fatalf("LogCommitTxn() error = %v", err)
	}
	if w.GetFlushedLSN() < lsn {
		t.Errorf("commit not forced: FlushedLSN = %d, commitLSN = %d", w.GetFlushedLSN(), lsn)
	}
}

func TestLogAbortTxn(t *testing.T) {
	w, _, _ := newTestWriter(t)
	defer w.Close()

	w.LogStartTxn(types.TxnID(1))
	lsn := w.LogAbortTxn(types.TxnID(1))
	if lsn == 0 {
		t.Error("LogAbortTxn() returned 0")
	}
}

func TestLogUpdatePage(t *testing.T) {
	w, _, _ := newTestWriter(t)
	defer w.Close()

	lsn := w.LogUpdatePage(types.TxnID(1), types.PageID(0), 0, []byte("old"), []byte("new"))
	if lsn == 0 {
		t.Error("LogUpdatePage() returned 0")
	}
}

func TestLogUpdatePageRedoOnly(t *testing.T) {
	w, _, _ := newTestWriter(t)
	defer w.Close()

	lsn := w.LogUpdatePageRedoOnly(types.TxnID(1), types.PageID(0), 0, []byte("undo-image"))
	if lsn == 0 {
		t.Error("LogUpdatePageRedoOnly() returned 0")
	}
}

func TestCloseReopenContinuesLSN(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")
	id := uuid.New()

	w, err := NewWriter(path, id)
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}

	w.LogStartTxn(types.TxnID(1))
	w.LogUpdatePage(types.TxnID(1), types.PageID(0), 0, nil, []byte("data"))
	w.LogCommitTxn(types.TxnID(1))
	lastLSN := w.GetCurrentLSN()
	w.Close()

	w2, err := NewWriter(path, id)
	if err != nil {
		t.Fatalf("Reopen NewWriter() error = %v", err)
	}
	defer w2.Close()

	if w2.GetCurrentLSN() != lastLSN {
		t.Errorf("CurrentLSN after reopen = %d, want %d", w2.GetCurrentLSN(), lastLSN)
	}
}

func TestCloseReopenReconstructsTxnLastLSN(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")
	id := uuid.New()

	w, _ := NewWriter(path, id)
	w.LogStartTxn(types.TxnID(1))
	w.LogUpdatePage(types.TxnID(1), types.PageID(0), 0, nil, []byte("data"))
	w.Flush()
	w.Close()

	w2, _ := NewWriter(path, id)
	defer w2.Close()

	if w2.GetTxnLastLSN(types.TxnID(1)) == 0 {
		t.Error("txnLastLSN not reconstructed for active txn")
	}
}

func TestReopenWithWrongInstallIDFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")

	w, _ := NewWriter(path, uuid.New())
	w.Close()

	if _, err := NewWriter(path, uuid.New()); err == nil {
		t.Fatal("expected error reopening WAL with mismatched install id")
	}
}

func TestGetMaxTxnID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")
	id := uuid.New()

	w, _ := NewWriter(path, id)
	w.LogStartTxn(types.TxnID(5))
	w.LogStartTxn(types.TxnID(10))
	w.LogCommitTxn(types.TxnID(10))
	w.Close()

	w2, _ := NewWriter(path, id)
	defer w2.Close()

	if w2.GetMaxTxnID() < types.TxnID(10) {
		t.Errorf("MaxTxnID = %d, want >= 10", w2.GetMaxTxnID())
	}
}

func TestInvalidWALMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.wal")

	os.WriteFile(path, make([]byte, walFileHeader), 0644)

	if _, err := NewWriter(path, uuid.New()); err == nil {
		t.Fatal("expected error for invalid WAL magic")
	}
}
