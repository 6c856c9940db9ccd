package session

import (
	"github.com/google/uuid"

	"github.com/nanodb/nanodb/internal/catalog"
	"github.com/nanodb/nanodb/internal/dberr"
	"github.com/nanodb/nanodb/internal/heap"
	"github.com/nanodb/nanodb/internal/txn"
	"github.com/nanodb/nanodb/pkg/types"
)

// Session is one client's connection to a DatabaseContext: a stable
// identity (uuid, spec §9/A.6) plus the per-session transaction
// bookkeeping internal/txn.Manager needs. Nothing on Session is shared
// across goroutines — spec §5's single-writer model means only one
// Session is ever mutating the database at a time.
type Session struct {
	ID uuid.UUID

	db    *DatabaseContext
	state txn.TransactionState
}

// NewSession creates a session bound to db.
func NewSession(db *DatabaseContext) *Session {
	return &Session{ID: uuid.New(), db: db}
}

// DB returns the DatabaseContext this session operates against, for
// command execution and the planner to build File scans and catalog
// lookups against.
func (s *Session) DB() *DatabaseContext { return s.db }

// InTransaction reports whether the session has an open transaction,
// either one it started explicitly (BEGIN) or one an in-flight statement
// opened implicitly.
func (s *Session) InTransaction() bool { return s.state.InProgress() }

// Begin starts an explicit, user-visible transaction. Statements run
// afterward share it instead of each opening and closing their own.
func (s *Session) Begin() error {
	if s.state.InProgress() {
		return dberr.Transactionf("session.Session.Begin", "a transaction is already active")
	}
	return s.db.Txn.StartTransaction(&s.state, true)
}

// Commit ends the session's current explicit transaction.
func (s *Session) Commit() error {
	if !s.state.UserStartedTxn {
		return dberr.Transactionf("session.Session.Commit", "no explicit transaction is active")
	}
	return s.db.Txn.Commit(&s.state)
}

// Rollback aborts the session's current explicit transaction, undoing
// every write it logged.
func (s *Session) Rollback() error {
	if !s.state.UserStartedTxn {
		return dberr.Transactionf("session.Session.Rollback", "no explicit transaction is active")
	}
	return s.db.Txn.Rollback(&s.state)
}

// ensureTxn opens an implicit, single-statement transaction when the
// session has no explicit one open, returning whether this call is the
// one that should close it again once the statement finishes.
func (s *Session) ensureTxn() (implicit bool, err error) {
	if s.state.InProgress() {
		return false, nil
	}
	if err := s.db.Txn.StartTransaction(&s.state, false); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Session) endImplicit(implicit bool, failed bool) error {
	if !implicit {
		return nil
	}
	if failed {
		return s.db.Txn.Rollback(&s.state)
	}
	return s.db.Txn.Commit(&s.state)
}

// InsertRow inserts values into table, wrapping the heap write in a
// transaction (implicit if the session has none open) and logging the
// write to the WAL so a crash mid-insert can be redone or undone.
func (s *Session) InsertRow(table *catalog.TableInfo, values []any) (types.FilePointer, error) {
	implicit, err := s.ensureTxn()
	if err != nil {
		return types.InvalidFilePointer, err
	}

	ptr, err := table.Heap.Insert(values)
	if err != nil {
		s.endImplicit(implicit, true)
		return types.InvalidFilePointer, err
	}

	after, err := readSlotBytes(table.Heap, ptr)
	if err != nil {
		s.endImplicit(implicit, true)
		return types.InvalidFilePointer, err
	}
	if _, err := s.db.Txn.RecordPageUpdate(&s.state, ptr.PageNo, ptr.SlotNo, nil, after); err != nil {
		s.endImplicit(implicit, true)
		return types.InvalidFilePointer, err
	}

	if err := s.endImplicit(implicit, false); err != nil {
		return types.InvalidFilePointer, err
	}
	return ptr, nil
}

// UpdateRow updates the row at ptr to values, logging the before-image
// read off the page prior to the write.
func (s *Session) UpdateRow(table *catalog.TableInfo, ptr types.FilePointer, values []any) (types.FilePointer, error) {
	implicit, err := s.ensureTxn()
	if err != nil {
		return types.InvalidFilePointer, err
	}

	before, err := readSlotBytes(table.Heap, ptr)
	if err != nil {
		s.endImplicit(implicit, true)
		return types.InvalidFilePointer, err
	}

	newPtr, err := table.Heap.Update(ptr, values)
	if err != nil {
		s.endImplicit(implicit, true)
		return types.InvalidFilePointer, err
	}

	after, err := readSlotBytes(table.Heap, newPtr)
	if err != nil {
		s.endImplicit(implicit, true)
		return types.InvalidFilePointer, err
	}

	if ptr == newPtr {
		if _, err := s.db.Txn.RecordPageUpdate(&s.state, ptr.PageNo, ptr.SlotNo, before, after); err != nil {
			s.endImplicit(implicit, true)
			return types.InvalidFilePointer, err
		}
	} else {
		// HeapFile.Update's delete-then-reinsert fallback: log the old slot's
		// tombstone and the new slot's insert as two separate writes.
		if _, err := s.db.Txn.RecordPageUpdate(&s.state, ptr.PageNo, ptr.SlotNo, before, nil); err != nil {
			s.endImplicit(implicit, true)
			return types.InvalidFilePointer, err
		}
		if _, err := s.db.Txn.RecordPageUpdate(&s.state, newPtr.PageNo, newPtr.SlotNo, nil, after); err != nil {
			s.endImplicit(implicit, true)
			return types.InvalidFilePointer, err
		}
	}

	if err := s.endImplicit(implicit, false); err != nil {
		return types.InvalidFilePointer, err
	}
	return newPtr, nil
}

// DeleteRow deletes the row at ptr.
func (s *Session) DeleteRow(table *catalog.TableInfo, ptr types.FilePointer) error {
	implicit, err := s.ensureTxn()
	if err != nil {
		return err
	}

	before, err := readSlotBytes(table.Heap, ptr)
	if err != nil {
		s.endImplicit(implicit, true)
		return err
	}

	if err := table.Heap.Delete(ptr); err != nil {
		s.endImplicit(implicit, true)
		return err
	}

	if _, err := s.db.Txn.RecordPageUpdate(&s.state, ptr.PageNo, ptr.SlotNo, before, nil); err != nil {
		s.endImplicit(implicit, true)
		return err
	}

	return s.endImplicit(implicit, false)
}

func readSlotBytes(h *heap.HeapFile, ptr types.FilePointer) ([]byte, error) {
	pt, err := h.Get(ptr)
	if err != nil {
		return nil, err
	}
	return pt.Bytes(), nil
}
