// Package tuple implements spec §3's tuple capability set: a Tuple
// interface with two implementations — PageTuple, which decodes column
// values lazily out of a pinned page's byte range, and TupleLiteral, which
// owns its values independently of any page — plus Environment, the
// stack-based binding context expressions evaluate against.
//
// This generalizes the teacher's storage.Page.GetTuple/InsertTuple (which
// moves an opaque, JSON-encoded []byte) into a schema-driven column codec:
// a leading null bitmap, fixed-width columns inline, and a trailing
// offset/length table for variable-width (VARCHAR) columns.
package tuple

import (
	"encoding/binary"
	"math"

	"github.com/nanodb/nanodb/internal/dberr"
	"github.com/nanodb/nanodb/internal/schema"
	"github.com/nanodb/nanodb/pkg/types"
)

// Tuple is the capability set both PageTuple and TupleLiteral satisfy:
// column count, typed value access, null testing and the schema describing
// the tuple's shape. Plan nodes and expressions operate purely against
// this interface.
type Tuple interface {
	ColumnCount() int
	GetColumnValue(i int) (any, error)
	GetColumnInfo(i int) schema.ColumnInfo
	Schema() *schema.Schema
	IsNull(i int) bool
	Pointer() types.FilePointer
}

func nullBitmapSize(n int) int { return (n + 7) / 8 }

// Encode lays a row of values out in NanoDB's on-page tuple format:
//
//	[null bitmap][uint16 var-column count][fixed-width columns inline][var-column offset/len table][var column bytes]
//
// CHAR columns are treated as fixed-width (padded/truncated to their
// declared length); VARCHAR columns go in the trailing variable region.
func Encode(s *schema.Schema, values []any) ([]byte, error) {
	if len(values) != s.NumColumns() {
		return nil, dberr.Typef("tuple.Encode", "expected %d values, got %d", s.NumColumns(), len(values))
	}

	bitmapLen := nullBitmapSize(s.NumColumns())
	bitmap := make([]byte, bitmapLen)

	fixed := make([]byte, 0, 64)
	var varCols []int
	var varData [][]byte

	for i, col := range s.Columns {
		v := values[i]
		if v == nil {
			bitmap[i/8] |= 1 << uint(i%8)
			if col.Type.Base == types.TypeVarChar {
				varCols = append(varCols, i)
				varData = append(varData, nil)
			} else {
				fixed = append(fixed, make([]byte, fixedWidth(col.Type))...)
			}
			continue
		}

		switch col.Type.Base {
		case types.TypeVarChar:
			b, err := encodeScalar(col.Type, v)
			if err != nil {
				return nil, err
			}
			varCols = append(varCols, i)
			varData = append(varData, b)
		default:
			b, err := encodeScalar(col.Type, v)
			if err != nil {
				return nil, err
			}
			fixed = append(fixed, b...)
		}
	}

	// Variable-column table: for each var column, offset(4)+length(4)
	// relative to the start of the variable data region.
	varTable := make([]byte, 8*len(varCols))
	varBlob := make([]byte, 0, 64)
	offset := uint32(0)
	for idx, data := range varData {
		binary.LittleEndian.PutUint32(varTable[idx*8:], offset)
		binary.LittleEndian.PutUint32(varTable[idx*8+4:], uint32(len(data)))
		varBlob = append(varBlob, data...)
		offset += uint32(len(data))
	}

	buf := make([]byte, 0, bitmapLen+len(fixed)+len(varTable)+len(varBlob)+2)
	buf = append(buf, bitmap...)
	tmp2 := make([]byte, 2)
	binary.LittleEndian.PutUint16(tmp2, uint16(len(varCols)))
	buf = append(buf, tmp2...)
	buf = append(buf, fixed...)
	buf = append(buf, varTable...)
	buf = append(buf, varBlob...)

	return buf, nil
}

func fixedWidth(ct schema.ColumnType) int {
	if ct.Base == types.TypeChar {
		return ct.Length
	}
	return ct.Base.FixedSize()
}

func encodeScalar(ct schema.ColumnType, v any) ([]byte, error) {
	switch ct.Base {
	case types.TypeInteger:
		i, ok := v.(int32)
		if !ok {
			if i64, ok2 := v.(int); ok2 {
				i = int32(i64)
			} else {
				return nil, dberr.Typef("tuple.encodeScalar", "expected int for INTEGER, got %T", v)
			}
		}
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(i))
		return b, nil
	case types.TypeBigInt:
		i, ok := v.(int64)
		if !ok {
			return nil, dberr.Typef("tuple.encodeScalar", "expected int64 for BIGINT, got %T", v)
		}
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, uint64(i))
		return b, nil
	case types.TypeFloat:
		f, ok := v.(float32)
		if !ok {
			return nil, dberr.Typef("tuple.encodeScalar", "expected float32 for FLOAT, got %T", v)
		}
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, math.Float32bits(f))
		return b, nil
	case types.TypeDouble:
		f, ok := v.(float64)
		if !ok {
			return nil, dberr.Typef("tuple.encodeScalar", "expected float64 for DOUBLE, got %T", v)
		}
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, math.Float64bits(f))
		return b, nil
	case types.TypeBoolean:
		bv, ok := v.(bool)
		if !ok {
			return nil, dberr.Typef("tuple.encodeScalar", "expected bool for BOOLEAN, got %T", v)
		}
		if bv {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case types.TypeChar:
		s, ok := v.(string)
		if !ok {
			return nil, dberr.Typef("tuple.encodeScalar", "expected string for CHAR, got %T", v)
		}
		b := make([]byte, ct.Length)
		copy(b, s)
		return b, nil
	case types.TypeVarChar:
		s, ok := v.(string)
		if !ok {
			return nil, dberr.Typef("tuple.encodeScalar", "expected string for VARCHAR, got %T", v)
		}
		return []byte(s), nil
	case types.TypeDate, types.TypeTimestamp:
		i, ok := v.(int64)
		if !ok {
			return nil, dberr.Typef("tuple.encodeScalar", "expected int64 timestamp, got %T", v)
		}
		b := make([]byte, ct.Base.FixedSize())
		if ct.Base == types.TypeDate {
			binary.LittleEndian.PutUint32(b, uint32(i))
		} else {
			binary.LittleEndian.PutUint64(b, uint64(i))
		}
		return b, nil
	default:
		return nil, dberr.Unsupportedf("tuple.encodeScalar", "unsupported column type %s", ct.Base)
	}
}

func decodeScalar(ct schema.ColumnType, b []byte) any {
	switch ct.Base {
	case types.TypeInteger:
		return int32(binary.LittleEndian.Uint32(b))
	case types.TypeBigInt:
		return int64(binary.LittleEndian.Uint64(b))
	case types.TypeFloat:
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	case types.TypeDouble:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	case types.TypeBoolean:
		return b[0] != 0
	case types.TypeChar:
		return trimTrailingZeros(string(b))
	case types.TypeVarChar:
		return string(b)
	case types.TypeDate:
		return int64(binary.LittleEndian.Uint32(b))
	case types.TypeTimestamp:
		return int64(binary.LittleEndian.Uint64(b))
	default:
		return nil
	}
}

func trimTrailingZeros(s string) string {
	i := len(s)
	for i > 0 && s[i-1] == 0 {
		i--
	}
	return s[:i]
}

// PageTuple is a Tuple view onto bytes borrowed from a pinned page. It
// decodes lazily: the byte slice is kept around and GetColumnValue decodes
// on every call rather than eagerly building a []any.
type PageTuple struct {
	s       *schema.Schema
	ptr     types.FilePointer
	data    []byte
	bitmap  []byte
	fixed   []byte
	varTbl  []byte
	varBlob []byte
}

// NewPageTuple decodes the layout header of raw bytes read from a page
// slot (via Page.GetTuple) into a PageTuple.
func NewPageTuple(s *schema.Schema, ptr types.FilePointer, data []byte) (*PageTuple, error) {
	bitmapLen := nullBitmapSize(s.NumColumns())
	if len(data) < bitmapLen+2 {
		return nil, dberr.StorageFormatf("tuple.NewPageTuple", "truncated tuple header")
	}
	bitmap := data[:bitmapLen]
	numVar := int(binary.LittleEndian.Uint16(data[bitmapLen:]))
	rest := data[bitmapLen+2:]

	fixedLen := 0
	for _, col := range s.Columns {
		if col.Type.Base != types.TypeVarChar {
			fixedLen += fixedWidth(col.Type)
		}
	}
	if len(rest) < fixedLen+8*numVar {
		return nil, dberr.StorageFormatf("tuple.NewPageTuple", "truncated tuple body")
	}
	fixed := rest[:fixedLen]
	varTbl := rest[fixedLen : fixedLen+8*numVar]
	varBlob := rest[fixedLen+8*numVar:]

	return &PageTuple{s: s, ptr: ptr, data: data, bitmap: bitmap, fixed: fixed, varTbl: varTbl, varBlob: varBlob}, nil
}

func (pt *PageTuple) ColumnCount() int                       { return pt.s.NumColumns() }
func (pt *PageTuple) Schema() *schema.Schema                 { return pt.s }
func (pt *PageTuple) GetColumnInfo(i int) schema.ColumnInfo  { return pt.s.GetColumnInfo(i) }
func (pt *PageTuple) Pointer() types.FilePointer             { return pt.ptr }

// Bytes returns the raw encoded tuple bytes this PageTuple views, the same
// bytes Page.GetTuple returned them in. A session logging a WAL before- or
// after-image needs the encoded form, not a decoded column value, so it
// calls this instead of re-encoding via Encode.
func (pt *PageTuple) Bytes() []byte { return pt.data }

func (pt *PageTuple) IsNull(i int) bool {
	return pt.bitmap[i/8]&(1<<uint(i%8)) != 0
}

func (pt *PageTuple) GetColumnValue(i int) (any, error) {
	if i < 0 || i >= pt.s.NumColumns() {
		return nil, dberr.Typef("tuple.PageTuple.GetColumnValue", "column index %d out of range", i)
	}
	if pt.IsNull(i) {
		return nil, nil
	}

	fixedOff := 0
	varIdx := 0
	for j, col := range pt.s.Columns {
		if col.Type.Base == types.TypeVarChar {
			if j == i {
				offset := binary.LittleEndian.Uint32(pt.varTbl[varIdx*8:])
				length := binary.LittleEndian.Uint32(pt.varTbl[varIdx*8+4:])
				return string(pt.varBlob[offset : offset+length]), nil
			}
			varIdx++
			continue
		}
		width := fixedWidth(col.Type)
		if j == i {
			return decodeScalar(col.Type, pt.fixed[fixedOff:fixedOff+width]), nil
		}
		fixedOff += width
	}
	return nil, dberr.Typef("tuple.PageTuple.GetColumnValue", "column index %d out of range", i)
}

// Materialize converts a PageTuple into a TupleLiteral that owns its
// values independently of the page it was read from — needed whenever a
// tuple must outlive the pin on its source page (e.g. a Sort buffering
// tuples across many fetches).
func (pt *PageTuple) Materialize() (*TupleLiteral, error) {
	values := make([]any, pt.ColumnCount())
	for i := range values {
		v, err := pt.GetColumnValue(i)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return &TupleLiteral{s: pt.s, ptr: pt.ptr, values: values}, nil
}

// TupleLiteral is a Tuple that owns its values directly, used for
// intermediate results (filtered, projected, joined, sorted, or
// aggregated rows) that are no longer backed by any one page.
type TupleLiteral struct {
	s      *schema.Schema
	ptr    types.FilePointer
	values []any
}

func NewTupleLiteral(s *schema.Schema, values []any) *TupleLiteral {
	return &TupleLiteral{s: s, values: values}
}

func (tl *TupleLiteral) ColumnCount() int                      { return tl.s.NumColumns() }
func (tl *TupleLiteral) Schema() *schema.Schema                { return tl.s }
func (tl *TupleLiteral) GetColumnInfo(i int) schema.ColumnInfo { return tl.s.GetColumnInfo(i) }
func (tl *TupleLiteral) Pointer() types.FilePointer            { return tl.ptr }
func (tl *TupleLiteral) IsNull(i int) bool                     { return tl.values[i] == nil }

func (tl *TupleLiteral) GetColumnValue(i int) (any, error) {
	if i < 0 || i >= len(tl.values) {
		return nil, dberr.Typef("tuple.TupleLiteral.GetColumnValue", "column index %d out of range", i)
	}
	return tl.values[i], nil
}

// SetPointer attaches the FilePointer a literal tuple was read from,
// letting UPDATE/DELETE plan nodes address the origin row of a projected
// or filtered tuple.
func (tl *TupleLiteral) SetPointer(ptr types.FilePointer) { tl.ptr = ptr }

// Concat builds a new TupleLiteral combining left and right column
// values under the combined schema, used by NestedLoopsJoin.
func Concat(combined *schema.Schema, left, right Tuple) (*TupleLiteral, error) {
	values := make([]any, 0, combined.NumColumns())
	for i := 0; i < left.ColumnCount(); i++ {
		v, err := left.GetColumnValue(i)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	for i := 0; i < right.ColumnCount(); i++ {
		v, err := right.GetColumnValue(i)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return &TupleLiteral{s: combined, values: values}, nil
}

// ToPage is a convenience for callers inserting a row: build the schema,
// encode it and hand the bytes to storage.Page.InsertTuple.
func ToPage(s *schema.Schema, values []any) ([]byte, error) {
	return Encode(s, values)
}

