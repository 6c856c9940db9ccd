package wal

import (
	"bytes"
	"testing"

	"github.com/nanodb/nanodb/pkg/types"
)

func TestLogRecordSerializeDeserialize(t *testing.T) {
	tests := []struct {
		name   string
		record *LogRecord
	}{
		{
			name: "START_TXN",
			record: &LogRecord{
				LSN:   1,
				TxnID: types.TxnID(1),
				Type:  types.LogRecordStartTxn,
			},
		},
		{
			name: "COMMIT_TXN",
			record: &LogRecord{
				LSN:     2,
				PrevLSN: 1,
				TxnID:   types.TxnID(1),
				Type:    types.LogRecordCommitTxn,
			},
		},
		{
			name: "ABORT_TXN",
			record: &LogRecord{
				LSN:   3,
				TxnID: types.TxnID(2),
				Type:  types.LogRecordAbortTxn,
			},
		},
		{
			name: "UPDATE_PAGE",
			record: &LogRecord{
				LSN:         5,
				PrevLSN:     4,
				TxnID:       types.TxnID(1),
				Type:        types.LogRecordUpdatePage,
				PageNo:      types.PageID(5),
				SlotNo:      2,
				BeforeImage: []byte("old data"),
				AfterImage:  []byte("new data"),
			},
		},
		{
			name: "UPDATE_PAGE_REDO_ONLY",
			record: &LogRecord{
				LSN:        7,
				PrevLSN:    5,
				TxnID:      types.TxnID(1),
				Type:       types.LogRecordUpdatePageRedoOnly,
				PageNo:     types.PageID(5),
				SlotNo:     2,
				AfterImage: []byte("compensation"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := tt.record.Serialize()
			got, consumed, err := Deserialize(buf)
			if err != nil {
				t.Fatalf("Deserialize() error = %v", err)
			}
			if consumed != len(buf) {
				t.Errorf("consumed = %d, want %d", consumed, len(buf))
			}
			if got.LSN != tt.record.LSN {
				t.Errorf("LSN = %d, want %d", got.LSN, tt.record.LSN)
			}
			if got.PrevLSN != tt.record.PrevLSN {
				t.Errorf("PrevLSN = %d, want %d", got.PrevLSN, tt.record.PrevLSN)
			}
			if got.TxnID != tt.record.TxnID {
				t.Errorf("TxnID = %d, want %d", got.TxnID, tt.record.TxnID)
			}
			if got.Type != tt.record.Type {
				t.Errorf("Type = %d, want %d", got.Type, tt.record.Type)
			}
			if got.PageNo != tt.record.PageNo {
				t.Errorf("PageNo = %d, want %d", got.PageNo, tt.record.PageNo)
			}
			if got.SlotNo != tt.record.SlotNo {
				t.Errorf("SlotNo = %d, want %d", got.SlotNo, tt.record.SlotNo)
			}
			if !bytes.Equal(got.BeforeImage, tt.record.BeforeImage) {
				t.Errorf("BeforeImage mismatch")
			}
			if !bytes.Equal(got.AfterImage, tt.record.AfterImage) {
				t.Errorf("AfterImage mismatch")
			}
		})
	}
}

func TestDeserializeTruncatedHeader(t *testing.T) {
	_, _, err := Deserialize(make([]byte, 10))
	if err == nil {
		t.Fatal("expected error for truncated header")
	}
}

func TestDeserializeTruncatedBody(t *testing.T) {
	record := &LogRecord{
		LSN:        1,
		TxnID:      1,
		Type:       types.LogRecordUpdatePage,
		AfterImage: []byte("test"),
	}
	buf := record.Serialize()
	_, _, err := Deserialize(buf[:logRecordHeaderSize])
	if err == nil {
		t.Fatal("expected error for truncated body")
	}
}

func TestLogRecordString(t *testing.T) {
	r := &LogRecord{
		LSN:    1,
		TxnID:  types.TxnID(42),
		Type:   types.LogRecordUpdatePage,
		PageNo: types.PageID(3),
	}
	s := r.String()
	if s == "" {
		t.Error("String() should not return empty string")
	}
}
