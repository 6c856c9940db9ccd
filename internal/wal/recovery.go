package wal

import (
	"encoding/binary"
	"io"
	"os"
	"sort"

	"github.com/nanodb/nanodb/internal/dblog"
	"github.com/nanodb/nanodb/pkg/types"
)

// RecoveryManager runs ARIES-lite crash recovery: an Analysis pass that
// rebuilds the Active Transaction Table and Dirty Page Table, a Redo pass
// that replays every logged change from the oldest RecLSN forward, and an
// Undo pass that rolls back transactions still active at crash time.
//
// It narrows the teacher's RecoveryManager by dropping checkpoint
// analysis (NanoDB has no CHECKPOINT record type; every recovery scans
// the whole log — see SPEC_FULL.md §C) and by logging compensations as
// UPDATE_PAGE_REDO_ONLY records instead of a distinct CLR type.
type RecoveryManager struct {
	walPath string

	activeTxnTable map[types.TxnID]*TxnEntry
	dirtyPageTable map[types.PageID]types.LSN

	redoCallback func(record *LogRecord) error
	undoCallback func(record *LogRecord) error

	pageLSNCallback func(types.PageID) types.LSN

	walWriter *Writer
}

// TxnEntry is one row of the Active Transaction Table.
type TxnEntry struct {
	TxnID   types.TxnID
	Status  types.TxnStatus
	LastLSN types.LSN
}

func NewRecoveryManager(walPath string, walWriter *Writer) *RecoveryManager {
	return &RecoveryManager{
		walPath:        walPath,
		activeTxnTable: make(map[types.TxnID]*TxnEntry),
		dirtyPageTable: make(map[types.PageID]types.LSN),
		walWriter:      walWriter,
	}
}

func (rm *RecoveryManager) SetCallbacks(redo, undo func(*LogRecord) error) {
	rm.redoCallback = redo
	rm.undoCallback = undo
}

func (rm *RecoveryManager) SetPageLSNCallback(cb func(types.PageID) types.LSN) {
	rm.pageLSNCallback = cb
}

// Recover runs Analysis, Redo then Undo in sequence.
func (rm *RecoveryManager) Recover() error {
	log := dblog.WithComponent("recovery")
	log.Info().Msg("starting recovery")

	if err := rm.analysisPhase(); err != nil {
		return err
	}
	log.Info().
		Int("active_txns", len(rm.activeTxnTable)).
		Int("dirty_pages", len(rm.dirtyPageTable)).
		Msg("analysis phase complete")

	if err := rm.redoPhase(); err != nil {
		return err
	}
	if err := rm.undoPhase(); err != nil {
		return err
	}

	log.Info().Msg("recovery complete")
	return nil
}

func (rm *RecoveryManager) analysisPhase() error {
	records, err := rm.readLog()
	if err != nil {
		return err
	}

	for _, record := range records {
		switch record.Type {
		case types.LogRecordStartTxn:
			rm.activeTxnTable[record.TxnID] = &TxnEntry{TxnID: record.TxnID, Status: types.TxnStatusRunning, LastLSN: record.LSN}

		case types.LogRecordCommitTxn:
			delete(rm.activeTxnTable, record.TxnID)

		case types.LogRecordAbortTxn:
			delete(rm.activeTxnTable, record.TxnID)

		case types.LogRecordUpdatePage, types.LogRecordUpdatePageRedoOnly:
			if entry, ok := rm.activeTxnTable[record.TxnID]; ok {
				entry.LastLSN = record.LSN
			}
			if _, exists := rm.dirtyPageTable[record.PageNo]; !exists {
				rm.dirtyPageTable[record.PageNo] = record.LSN
			}
		}
	}
	return nil
}

func (rm *RecoveryManager) redoPhase() error {
	log := dblog.WithComponent("recovery")
	if len(rm.dirtyPageTable) == 0 {
		log.Debug().Msg("no dirty pages, skipping redo")
		return nil
	}

	minRecLSN := types.LSN(^uint64(0))
	for _, recLSN := range rm.dirtyPageTable {
		if recLSN < minRecLSN {
			minRecLSN = recLSN
		}
	}

	records, err := rm.readLog()
	if err != nil {
		return err
	}

	redoCount := 0
	for _, record := range records {
		if record.LSN < minRecLSN {
			continue
		}
		if record.Type != types.LogRecordUpdatePage && record.Type != types.LogRecordUpdatePageRedoOnly {
			continue
		}

		recLSN, inDPT := rm.dirtyPageTable[record.PageNo]
		if !inDPT || record.LSN < recLSN {
			continue
		}
		if rm.pageLSNCallback != nil && rm.pageLSNCallback(record.PageNo) >= record.LSN {
			continue
		}

		if rm.redoCallback != nil {
			if err := rm.redoCallback(record); err != nil {
				return err
			}
			redoCount++
		}
	}

	log.Info().Int("count", redoCount).Msg("redo phase complete")
	return nil
}

func (rm *RecoveryManager) undoPhase() error {
	log := dblog.WithComponent("recovery")
	if len(rm.activeTxnTable) == 0 {
		log.Debug().Msg("no active transactions, skipping undo")
		return nil
	}

	toUndo := make([]types.LSN, 0, len(rm.activeTxnTable))
	for _, entry := range rm.activeTxnTable {
		if entry.LastLSN != 0 {
			toUndo = append(toUndo, entry.LastLSN)
		}
	}

	records, err := rm.readLog()
	if err != nil {
		return err
	}
	recordMap := make(map[types.LSN]*LogRecord, len(records))
	for _, record := range records {
		recordMap[record.LSN] = record
	}

	undoCount := 0
	for len(toUndo) > 0 {
		sort.Slice(toUndo, func(i, j int) bool { return toUndo[i] > toUndo[j] })
		lsn := toUndo[0]
		toUndo = toUndo[1:]

		record, ok := recordMap[lsn]
		if !ok {
			continue
		}

		if record.Type != types.LogRecordUpdatePage {
			// Redo-only compensations and non-data records carry no undo
			// work of their own; just keep walking the chain.
			if record.PrevLSN != 0 {
				toUndo = append(toUndo, record.PrevLSN)
			}
			continue
		}

		if rm.undoCallback != nil {
			if err := rm.undoCallback(record); err != nil {
				return err
			}
			undoCount++
		}

		if rm.walWriter != nil {
			rm.walWriter.LogUpdatePageRedoOnly(record.TxnID, record.PageNo, record.SlotNo, record.BeforeImage)
		}

		if record.PrevLSN != 0 {
			toUndo = append(toUndo, record.PrevLSN)
		}
	}

	if rm.walWriter != nil {
		for txnID := range rm.activeTxnTable {
			rm.walWriter.LogAbortTxn(txnID)
		}
	}

	log.Info().Int("count", undoCount).Msg("undo phase complete")
	return nil
}

func (rm *RecoveryManager) readLog() ([]*LogRecord, error) {
	file, err := os.Open(rm.walPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	file.Seek(walFileHeader, io.SeekStart)

	var records []*LogRecord
	for {
		lenBuf := make([]byte, 4)
		if _, err := io.ReadFull(file, lenBuf); err != nil {
			break
		}
		recordLen := binary.LittleEndian.Uint32(lenBuf)
		recordBuf := make([]byte, recordLen)
		if _, err := io.ReadFull(file, recordBuf); err != nil {
			break
		}
		record, _, err := Deserialize(recordBuf)
		if err != nil {
			break
		}
		records = append(records, record)
	}
	return records, nil
}

func (rm *RecoveryManager) GetActiveTxnTable() map[types.TxnID]*TxnEntry { return rm.activeTxnTable }
func (rm *RecoveryManager) GetDirtyPageTable() map[types.PageID]types.LSN { return rm.dirtyPageTable }
