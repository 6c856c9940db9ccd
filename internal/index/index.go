// Package index is an existence-only stub for NanoDB's secondary index
// support. spec.md's index Non-goal excludes a working B-Tree body:
// catalog.Catalog.CreateIndex checks its arguments and reports
// dberr.Unsupported rather than pretending to build one, and records
// nothing (catalog.TableInfo.IndexRoot stays types.InvalidPageID). What
// survives here is the sort-order-preserving key codec a real B-Tree body
// would need, kept because it's a small, self-contained piece worth
// keeping correct even with no tree above it. No other package imports it.
package index

import (
	"encoding/binary"

	"github.com/nanodb/nanodb/internal/dberr"
	"github.com/nanodb/nanodb/pkg/types"
)

// KeySize is the fixed width EncodeKey pads every key to, wide enough for
// a big-endian int64 or a short string prefix. A real B-Tree body would
// need a variable-width scheme for long text keys; that's out of scope
// here along with the rest of the tree.
const KeySize = 16

// EncodeKey encodes a single column value into a byte slice that preserves
// the value's natural ordering under bytes.Compare, the way the teacher's
// btree.go did for its own tagged-union types.Value. Integers get their
// sign bit flipped so negatives sort before positives in unsigned
// byte-order; strings are copied and zero-padded; booleans occupy one byte.
func EncodeKey(v any, base types.SQLType) ([]byte, error) {
	key := make([]byte, KeySize)
	switch base {
	case types.TypeInteger:
		n, ok := asInt64(v)
		if !ok {
			return nil, dberr.Schemaf("index.EncodeKey", "value %v is not an integer", v)
		}
		u := uint64(n) ^ (1 << 63)
		binary.BigEndian.PutUint64(key[0:8], u)
	case types.TypeVarChar, types.TypeChar:
		s, ok := v.(string)
		if !ok {
			return nil, dberr.Schemaf("index.EncodeKey", "value %v is not a string", v)
		}
		copy(key, []byte(s))
	case types.TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, dberr.Schemaf("index.EncodeKey", "value %v is not a boolean", v)
		}
		if b {
			key[0] = 0x01
		}
	default:
		return nil, dberr.Unsupportedf("index.EncodeKey", "no key encoding for column type %s", base)
	}
	return key, nil
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int32:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}

// Entry is the (key, tuple location) pair a B-Tree body would store at its
// leaves. It has no home yet — nothing builds, walks or persists a tree of
// these — but the shape is fixed here so a future body and any code
// written against it (planner index-scan costing, catalog bookkeeping)
// agree on what an index entry is.
type Entry struct {
	Key     []byte
	Pointer types.FilePointer
}
