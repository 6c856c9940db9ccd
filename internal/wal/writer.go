package wal

import (
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/nanodb/nanodb/internal/dberr"
	"github.com/nanodb/nanodb/internal/dblog"
	"github.com/nanodb/nanodb/pkg/types"
)

const (
	walBufferSize  = 64 * 1024
	walFileHeader  = 28 // Magic(8) + Version(4) + InstallID(16)
	walMagic       = uint64(0x4E414E4F44424C47) // "NANODBLG"
	walVersion     = uint32(1)
)

// Writer appends LogRecords, assigns LSNs, chains each transaction's
// records via PrevLSN, and buffers writes up to 64KB before flushing
// (grounded on the teacher's wal.Writer, whose ring-buffer-then-flush
// shape this keeps unchanged).
type Writer struct {
	mu       sync.Mutex
	file     *os.File
	filePath string

	currentLSN types.LSN
	flushedLSN types.LSN

	buffer []byte

	txnLastLSN map[types.TxnID]types.LSN
	maxTxnID   types.TxnID
}

// NewWriter creates or opens a WAL file at path, stamped with installID.
// Opening an existing WAL whose stamped ID differs from installID fails,
// so a WAL is never replayed against the wrong data file.
func NewWriter(path string, installID uuid.UUID) (*Writer, error) {
	w := &Writer{
		filePath:   path,
		currentLSN: 1,
		buffer:     make([]byte, 0, walBufferSize),
		txnLastLSN: make(map[types.TxnID]types.LSN),
	}

	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
		if err != nil {
			return nil, dberr.IOWrap("wal.NewWriter", err)
		}
		w.file = f
		if err := w.writeHeader(installID); err != nil {
			f.Close()
			return nil, err
		}
		return w, nil
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, dberr.IOWrap("wal.NewWriter", err)
	}
	w.file = f
	if err := w.readHeader(installID); err != nil {
		f.Close()
		return nil, err
	}
	if err := w.findLastLSN(); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) writeHeader(installID uuid.UUID) error {
	header := make([]byte, walFileHeader)
	binary.LittleEndian.PutUint64(header[0:8], walMagic)
	binary.LittleEndian.PutUint32(header[8:12], walVersion)
	idBytes, _ := installID.MarshalBinary()
	copy(header[12:28], idBytes)
	if _, err := w.file.Write(header); err != nil {
		return dberr.IOWrap("wal.Writer.writeHeader", err)
	}
	return nil
}

func (w *Writer) readHeader(wantInstallID uuid.UUID) error {
	header := make([]byte, walFileHeader)
	n, err := w.file.Read(header)
	if err != nil || n < walFileHeader {
		return dberr.StorageFormatf("wal.Writer.readHeader", "truncated WAL header")
	}

	magic := binary.LittleEndian.Uint64(header[0:8])
	if magic != walMagic {
		return dberr.StorageFormatf("wal.Writer.readHeader", "bad WAL magic number")
	}
	version := binary.LittleEndian.Uint32(header[8:12])
	if version != walVersion {
		return dberr.StorageFormatf("wal.Writer.readHeader", "unsupported WAL version %d", version)
	}

	var gotID uuid.UUID
	if err := gotID.UnmarshalBinary(header[12:28]); err != nil {
		return dberr.StorageFormatf("wal.Writer.readHeader", "bad install id: %v", err)
	}
	if gotID != wantInstallID {
		return dberr.StorageFormatf("wal.Writer.readHeader", "WAL belongs to a different data file (install id mismatch)")
	}
	return nil
}

func (w *Writer) findLastLSN() error {
	info, err := w.file.Stat()
	if err != nil {
		return dberr.IOWrap("wal.Writer.findLastLSN", err)
	}
	if info.Size() <= walFileHeader {
		w.currentLSN = 1
		w.flushedLSN = 0
		return nil
	}

	w.file.Seek(walFileHeader, io.SeekStart)
	lastLSN := types.LSN(0)

	for {
		lenBuf := make([]byte, 4)
		if _, err := io.ReadFull(w.file, lenBuf); err != nil {
			break
		}
		recordLen := binary.LittleEndian.Uint32(lenBuf)
		recordBuf := make([]byte, recordLen)
		if _, err := io.ReadFull(w.file, recordBuf); err != nil {
			break
		}
		record, _, err := Deserialize(recordBuf)
		if err != nil {
			break
		}

		lastLSN = record.LSN
		if record.TxnID > w.maxTxnID {
			w.maxTxnID = record.TxnID
		}
		w.txnLastLSN[record.TxnID] = record.LSN
		if record.Type == types.LogRecordCommitTxn || record.Type == types.LogRecordAbortTxn {
			delete(w.txnLastLSN, record.TxnID)
		}
	}

	w.currentLSN = lastLSN + 1
	w.flushedLSN = lastLSN
	w.file.Seek(0, io.SeekEnd)
	return nil
}

// Append assigns the record an LSN and PrevLSN, buffers it, and
// auto-flushes once the buffer fills.
func (w *Writer) Append(record *LogRecord) types.LSN {
	w.mu.Lock()
	defer w.mu.Unlock()

	record.LSN = w.currentLSN
	w.currentLSN++

	if prev, ok := w.txnLastLSN[record.TxnID]; ok {
		record.PrevLSN = prev
	} else {
		record.PrevLSN = types.InvalidLSN
	}
	w.txnLastLSN[record.TxnID] = record.LSN

	data := record.Serialize()
	lenBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(data)))
	w.buffer = append(w.buffer, lenBuf...)
	w.buffer = append(w.buffer, data...)

	if len(w.buffer) >= walBufferSize {
		w.flushLocked()
	}

	return record.LSN
}

// ForceLSN satisfies storage.Forcer, letting the buffer pool force the WAL
// durable up to a page's LSN before flushing that page to disk.
func (w *Writer) ForceLSN(lsn types.LSN) error {
	return w.Force(lsn)
}

// Force guarantees every record up to lsn is durable on disk, the
// WAL-before-flush invariant the buffer pool's Forcer hook relies on.
func (w *Writer) Force(lsn types.LSN) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if lsn <= w.flushedLSN {
		return nil
	}
	return w.flushLocked()
}

func (w *Writer) flushLocked() error {
	if len(w.buffer) == 0 {
		return nil
	}
	if _, err := w.file.Write(w.buffer); err != nil {
		return dberr.IOWrap("wal.Writer.flushLocked", err)
	}
	if err := w.file.Sync(); err != nil {
		return dberr.IOWrap("wal.Writer.flushLocked", err)
	}
	w.flushedLSN = w.currentLSN - 1
	w.buffer = w.buffer[:0]
	return nil
}

// Flush writes every buffered record to disk without waiting for the
// buffer to fill, used by Checkpoint.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

func (w *Writer) LogStartTxn(txnID types.TxnID) types.LSN {
	return w.Append(&LogRecord{TxnID: txnID, Type: types.LogRecordStartTxn})
}

// LogCommitTxn logs and forces a commit record, the durability point a
// client's COMMIT waits on.
func (w *Writer) LogCommitTxn(txnID types.TxnID) (types.LSN, error) {
	lsn := w.Append(&LogRecord{TxnID: txnID, Type: types.LogRecordCommitTxn})
	if err := w.Force(lsn); err != nil {
		return lsn, err
	}
	w.mu.Lock()
	delete(w.txnLastLSN, txnID)
	w.mu.Unlock()
	return lsn, nil
}

func (w *Writer) LogAbortTxn(txnID types.TxnID) types.LSN {
	lsn := w.Append(&LogRecord{TxnID: txnID, Type: types.LogRecordAbortTxn})
	w.mu.Lock()
	delete(w.txnLastLSN, txnID)
	w.mu.Unlock()
	return lsn
}

// LogUpdatePage logs a page modification with both a before-image (for
// UNDO) and an after-image (for REDO).
func (w *Writer) LogUpdatePage(txnID types.TxnID, pageNo types.PageID, slotNo uint16, before, after []byte) types.LSN {
	return w.Append(&LogRecord{
		TxnID:       txnID,
		Type:        types.LogRecordUpdatePage,
		PageNo:      pageNo,
		SlotNo:      slotNo,
		BeforeImage: before,
		AfterImage:  after,
	})
}

// LogUpdatePageRedoOnly logs a compensating write made while undoing a
// transaction: it carries only an after-image, since redo-only records
// are never themselves undone.
func (w *Writer) LogUpdatePageRedoOnly(txnID types.TxnID, pageNo types.PageID, slotNo uint16, after []byte) types.LSN {
	return w.Append(&LogRecord{
		TxnID:      txnID,
		Type:       types.LogRecordUpdatePageRedoOnly,
		PageNo:     pageNo,
		SlotNo:     slotNo,
		AfterImage: after,
	})
}

// GetCurrentLSN returns the next LSN that will be assigned.
func (w *Writer) GetCurrentLSN() types.LSN {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.currentLSN
}

// GetFlushedLSN returns the last LSN guaranteed durable on disk.
func (w *Writer) GetFlushedLSN() types.LSN {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushedLSN
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.flushLocked(); err != nil {
		return err
	}
	dblog.WithComponent("wal").Debug().Str("path", w.filePath).Msg("WAL writer closed")
	return w.file.Close()
}

// GetTxnLastLSN returns the last LSN logged for txnID, the starting point
// for its UNDO chain.
func (w *Writer) GetTxnLastLSN(txnID types.TxnID) types.LSN {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.txnLastLSN[txnID]
}

func (w *Writer) GetMaxTxnID() types.TxnID {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.maxTxnID
}
