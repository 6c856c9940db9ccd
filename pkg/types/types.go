// Package types provides the scalar identifiers shared across every layer of
// NanoDB: page and transaction addressing, log sequencing, and the base SQL
// value types a column can carry.
package types

import "fmt"

// PageID identifies a page within a single data file.
type PageID uint32

// TxnID identifies a transaction.
type TxnID uint64

// LSN (Log Sequence Number) identifies a position in the WAL.
type LSN uint64

// CommandID orders operations within a single transaction.
type CommandID uint32

const (
	InvalidPageID = PageID(0)
	InvalidTxnID  = TxnID(0)
	InvalidLSN    = LSN(0)
	FirstTxnID    = TxnID(1)
	MaxTxnID      = TxnID(^uint64(0))
)

// FilePointer addresses a tuple: the page it lives on plus its slot within
// that page's slot directory. Heap, index and plan code pass FilePointers
// around instead of raw (page, slot) pairs so callers can't transpose them.
type FilePointer struct {
	PageNo PageID
	SlotNo uint16
}

// InvalidFilePointer is returned by lookups that find nothing.
var InvalidFilePointer = FilePointer{PageNo: InvalidPageID, SlotNo: 0xFFFF}

func (fp FilePointer) IsValid() bool {
	return fp.PageNo != InvalidPageID
}

func (fp FilePointer) String() string {
	return fmt.Sprintf("(%d:%d)", fp.PageNo, fp.SlotNo)
}

// TxnStatus is the lifecycle state of a transaction.
type TxnStatus int

const (
	TxnStatusRunning TxnStatus = iota
	TxnStatusCommitted
	TxnStatusAborted
)

func (s TxnStatus) String() string {
	switch s {
	case TxnStatusRunning:
		return "RUNNING"
	case TxnStatusCommitted:
		return "COMMITTED"
	case TxnStatusAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// LogRecordType enumerates the five WAL record kinds NanoDB recognizes.
// Checkpoints are not a distinct record type; session's
// DatabaseContext.Checkpoint reduces to a WAL force plus a buffer-pool
// flush (see DESIGN.md).
type LogRecordType uint8

const (
	LogRecordStartTxn LogRecordType = iota
	LogRecordUpdatePage
	LogRecordUpdatePageRedoOnly
	LogRecordCommitTxn
	LogRecordAbortTxn
)

func (t LogRecordType) String() string {
	switch t {
	case LogRecordStartTxn:
		return "START_TXN"
	case LogRecordUpdatePage:
		return "UPDATE_PAGE"
	case LogRecordUpdatePageRedoOnly:
		return "UPDATE_PAGE_REDO_ONLY"
	case LogRecordCommitTxn:
		return "COMMIT_TXN"
	case LogRecordAbortTxn:
		return "ABORT_TXN"
	default:
		return "UNKNOWN"
	}
}

// SQLType identifies the base storage type of a column value.
type SQLType uint8

const (
	TypeNull SQLType = iota
	TypeInteger
	TypeBigInt
	TypeFloat
	TypeDouble
	TypeChar
	TypeVarChar
	TypeBoolean
	TypeDate
	TypeTimestamp
)

func (t SQLType) String() string {
	switch t {
	case TypeNull:
		return "NULL"
	case TypeInteger:
		return "INTEGER"
	case TypeBigInt:
		return "BIGINT"
	case TypeFloat:
		return "FLOAT"
	case TypeDouble:
		return "DOUBLE"
	case TypeChar:
		return "CHAR"
	case TypeVarChar:
		return "VARCHAR"
	case TypeBoolean:
		return "BOOLEAN"
	case TypeDate:
		return "DATE"
	case TypeTimestamp:
		return "TIMESTAMP"
	default:
		return "UNKNOWN"
	}
}

// IsFixedLength reports whether values of this type occupy a constant number
// of bytes regardless of content (everything except VARCHAR; CHAR counts
// as fixed at its declared length).
func (t SQLType) IsFixedLength() bool {
	switch t {
	case TypeVarChar:
		return false
	default:
		return true
	}
}

// FixedSize returns the on-page byte width of a fixed-length type. For
// CHAR, whose width is its declared length modifier, it returns -1; it
// panics for VARCHAR and any other type with no fixed size.
func (t SQLType) FixedSize() int {
	switch t {
	case TypeInteger:
		return 4
	case TypeBigInt:
		return 8
	case TypeFloat:
		return 4
	case TypeDouble:
		return 8
	case TypeBoolean:
		return 1
	case TypeDate:
		return 4
	case TypeTimestamp:
		return 8
	case TypeChar:
		return -1 // caller must supply the declared length
	default:
		panic(fmt.Sprintf("types: %s has no fixed size", t))
	}
}
