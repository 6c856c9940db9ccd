package index

import (
	"bytes"
	"testing"

	"github.com/nanodb/nanodb/internal/dberr"
	"github.com/nanodb/nanodb/pkg/types"
)

func TestEncodeKeyPreservesIntegerOrdering(t *testing.T) {
	neg, err := EncodeKey(int32(-5), types.TypeInteger)
	if err != nil {
		t.Fatalf("EncodeKey(-5) failed: %v", err)
	}
	zero, err := EncodeKey(int32(0), types.TypeInteger)
	if err != nil {
		t.Fatalf("EncodeKey(0) failed: %v", err)
	}
	pos, err := EncodeKey(int32(5), types.TypeInteger)
	if err != nil {
		t.Fatalf("EncodeKey(5) failed: %v", err)
	}

	if bytes.Compare(neg, zero) >= 0 {
		t.Fatalf("expected encode(-5) < encode(0)")
	}
	if bytes.Compare(zero, pos) >= 0 {
		t.Fatalf("expected encode(0) < encode(5)")
	}
}

func TestEncodeKeyPreservesStringOrdering(t *testing.T) {
	a, err := EncodeKey("alice", types.TypeVarChar)
	if err != nil {
		t.Fatalf("EncodeKey(alice) failed: %v", err)
	}
	b, err := EncodeKey("bob", types.TypeVarChar)
	if err != nil {
		t.Fatalf("EncodeKey(bob) failed: %v", err)
	}
	if bytes.Compare(a, b) >= 0 {
		t.Fatalf("expected encode(alice) < encode(bob)")
	}
	if len(a) != KeySize || len(b) != KeySize {
		t.Fatalf("expected both keys padded to KeySize %d, got %d and %d", KeySize, len(a), len(b))
	}
}

func TestEncodeKeyRejectsTypeMismatch(t *testing.T) {
	_, err := EncodeKey("not an int", types.TypeInteger)
	if !dberr.Is(err, dberr.Schema) {
		t.Fatalf("expected a dberr.Schema error for a type mismatch, got %v", err)
	}

	_, err = EncodeKey(int32(1), types.TypeDouble)
	if !dberr.Is(err, dberr.Unsupported) {
		t.Fatalf("expected a dberr.Unsupported error for an unencodable type, got %v", err)
	}
}
