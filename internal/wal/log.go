// Package wal implements NanoDB's write-ahead log: an ARIES-lite record
// format (StartTxn/UpdatePage/UpdatePageRedoOnly/CommitTxn/AbortTxn), a
// Writer that assigns LSNs and chains each transaction's records via
// PrevLSN, and a RecoveryManager running the Analysis/Redo/Undo passes.
//
// It generalizes the teacher's wal package — which logged TableID/RowID
// and carried a CHECKPOINT record type and a CLR record type — to
// page/slot addressing (matching internal/heap's types.FilePointer) and
// folds checkpointing into a plain log-flush-and-sync operation instead
// of a record type (SPEC_FULL.md §C; DESIGN.md Open Question decisions).
// Undo is logged as UPDATE_PAGE_REDO_ONLY records rather than a distinct
// CLR type: recovery's redo pass treats them identically to ordinary
// UPDATE_PAGE records, which is all a CLR needs here.
package wal

import (
	"encoding/binary"

	"github.com/nanodb/nanodb/internal/dberr"
	"github.com/nanodb/nanodb/pkg/types"
)

// LogRecord is a single WAL entry.
type LogRecord struct {
	LSN     types.LSN
	PrevLSN types.LSN
	TxnID   types.TxnID
	Type    types.LogRecordType

	PageNo types.PageID
	SlotNo uint16

	// BeforeImage is the undo image, present on UPDATE_PAGE records.
	// AfterImage is the redo image, present on both UPDATE_PAGE and
	// UPDATE_PAGE_REDO_ONLY records.
	BeforeImage []byte
	AfterImage  []byte
}

// logRecordHeaderSize: LSN(8)+PrevLSN(8)+TxnID(8)+Type(1)+PageNo(4)+SlotNo(2)+BeforeLen(4)+AfterLen(4).
const logRecordHeaderSize = 39

// Serialize converts the log record into its on-disk byte form.
func (r *LogRecord) Serialize() []byte {
	beforeLen := len(r.BeforeImage)
	afterLen := len(r.AfterImage)
	buf := make([]byte, logRecordHeaderSize+beforeLen+afterLen)

	off := 0
	binary.BigEndian.PutUint64(buf[off:], uint64(r.LSN))
	off += 8
	binary.BigEndian.PutUint64(buf[off:], uint64(r.PrevLSN))
	off += 8
	binary.BigEndian.PutUint64(buf[off:], uint64(r.TxnID))
	off += 8
	buf[off] = byte(r.Type)
	off++
	binary.BigEndian.PutUint32(buf[off:], uint32(r.PageNo))
	off += 4
	binary.BigEndian.PutUint16(buf[off:], r.SlotNo)
	off += 2
	binary.BigEndian.PutUint32(buf[off:], uint32(beforeLen))
	off += 4
	binary.BigEndian.PutUint32(buf[off:], uint32(afterLen))
	off += 4
	copy(buf[off:], r.BeforeImage)
	off += beforeLen
	copy(buf[off:], r.AfterImage)

	return buf
}

// Deserialize decodes a LogRecord previously produced by Serialize,
// returning the number of bytes consumed.
func Deserialize(buf []byte) (*LogRecord, int, error) {
	if len(buf) < logRecordHeaderSize {
		return nil, 0, dberr.StorageFormatf("wal.Deserialize", "truncated log record header")
	}

	off := 0
	r := &LogRecord{}
	r.LSN = types.LSN(binary.BigEndian.Uint64(buf[off:]))
	off += 8
	r.PrevLSN = types.LSN(binary.BigEndian.Uint64(buf[off:]))
	off += 8
	r.TxnID = types.TxnID(binary.BigEndian.Uint64(buf[off:]))
	off += 8
	r.Type = types.LogRecordType(buf[off])
	off++
	r.PageNo = types.PageID(binary.BigEndian.Uint32(buf[off:]))
	off += 4
	r.SlotNo = binary.BigEndian.Uint16(buf[off:])
	off += 2
	beforeLen := binary.BigEndian.Uint32(buf[off:])
	off += 4
	afterLen := binary.BigEndian.Uint32(buf[off:])
	off += 4

	if len(buf) < off+int(beforeLen)+int(afterLen) {
		return nil, 0, dberr.StorageFormatf("wal.Deserialize", "truncated log record body")
	}
	if beforeLen > 0 {
		r.BeforeImage = make([]byte, beforeLen)
		copy(r.BeforeImage, buf[off:off+int(beforeLen)])
		off += int(beforeLen)
	}
	if afterLen > 0 {
		r.AfterImage = make([]byte, afterLen)
		copy(r.AfterImage, buf[off:off+int(afterLen)])
		off += int(afterLen)
	}

	return r, off, nil
}

func (r *LogRecord) String() string {
	return r.Type.String()
}
