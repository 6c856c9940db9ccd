// Package schema implements the column and table schema model of spec §3:
// ColumnType, ColumnInfo, Schema (an ordered column list with name
// resolution) and TableSchema (a Schema plus key constraints). It
// generalizes the teacher's flat types.Column (name/type/nullable only,
// backing a JSON-blob row) into the schema-driven model the rest of NanoDB
// needs to lay tuples out on a page.
package schema

import (
	"encoding/binary"
	"fmt"

	"github.com/nanodb/nanodb/internal/dberr"
	"github.com/nanodb/nanodb/pkg/types"
)

// ColumnType describes the storage shape of a column: its base SQLType plus
// the length/precision/scale modifiers CHAR/VARCHAR/DECIMAL-like types need.
type ColumnType struct {
	Base      types.SQLType
	Length    int // CHAR/VARCHAR declared length, in bytes
	Precision int // reserved for future fixed-point types
	Scale     int
}

// Size returns the on-page width of a value of this type. VARCHAR has no
// fixed width; callers must consult the variable-length segment instead.
func (ct ColumnType) Size() int {
	if ct.Base == types.TypeChar {
		return ct.Length
	}
	if ct.Base == types.TypeVarChar {
		return -1
	}
	return ct.Base.FixedSize()
}

func (ct ColumnType) String() string {
	switch ct.Base {
	case types.TypeChar, types.TypeVarChar:
		return fmt.Sprintf("%s(%d)", ct.Base, ct.Length)
	default:
		return ct.Base.String()
	}
}

// ColumnInfo names a column and, optionally, the table it was declared on
// (used to resolve "table.column" references in joined environments).
type ColumnInfo struct {
	Name     string
	Table    string
	Type     ColumnType
	Nullable bool
}

func (ci ColumnInfo) QualifiedName() string {
	if ci.Table == "" {
		return ci.Name
	}
	return ci.Table + "." + ci.Name
}

// Schema is an ordered list of columns with name-resolution support. It
// detects ambiguous unqualified column names the way a join of two tables
// sharing a column name would produce one.
type Schema struct {
	Columns []ColumnInfo
}

func New(columns ...ColumnInfo) *Schema {
	return &Schema{Columns: columns}
}

func (s *Schema) NumColumns() int { return len(s.Columns) }

func (s *Schema) GetColumnInfo(i int) ColumnInfo { return s.Columns[i] }

// ColumnIndex resolves a possibly-qualified column name to its index.
// Returns dberr.Schema when the name is unknown or ambiguous.
func (s *Schema) ColumnIndex(name string) (int, error) {
	found := -1
	for i, c := range s.Columns {
		if c.Name == name || c.QualifiedName() == name {
			if found != -1 {
				return -1, dberr.Schemaf("schema.ColumnIndex", "column %q is ambiguous", name)
			}
			found = i
		}
	}
	if found == -1 {
		return -1, dberr.Schemaf("schema.ColumnIndex", "unknown column %q", name)
	}
	return found, nil
}

// Append returns a new Schema with other's columns appended after s's own,
// used when a join node combines its children's output schemas.
func (s *Schema) Append(other *Schema) *Schema {
	cols := make([]ColumnInfo, 0, len(s.Columns)+len(other.Columns))
	cols = append(cols, s.Columns...)
	cols = append(cols, other.Columns...)
	return &Schema{Columns: cols}
}

// WithTable returns a copy of s with every column's Table field set,
// used by Rename plan nodes (spec §4.3).
func (s *Schema) WithTable(table string) *Schema {
	cols := make([]ColumnInfo, len(s.Columns))
	for i, c := range s.Columns {
		c.Table = table
		cols[i] = c
	}
	return &Schema{Columns: cols}
}

// ForeignKeyInfo describes a foreign key constraint: the local column
// indexes and the referenced table/columns they must match.
type ForeignKeyInfo struct {
	ColumnIndexes    []int
	RefTable         string
	RefColumnIndexes []int
}

// TableSchema is a Schema plus the key metadata spec §3 names: a primary
// key, zero or more candidate keys, and foreign keys.
type TableSchema struct {
	TableName        string
	Schema           *Schema
	PrimaryKey       []int // column indexes, empty if none declared
	CandidateKeys    [][]int
	ForeignKeys      []ForeignKeyInfo
	NumDistinctStats map[int]int64 // per-column distinct-value estimate, filled by ANALYZE
	RowCount         int64
}

func NewTableSchema(name string, s *Schema) *TableSchema {
	return &TableSchema{
		TableName:        name,
		Schema:           s.WithTable(name),
		NumDistinctStats: make(map[int]int64),
	}
}

// IsPrimaryKey reports whether columnIdx participates in the primary key.
func (ts *TableSchema) IsPrimaryKey(columnIdx int) bool {
	for _, i := range ts.PrimaryKey {
		if i == columnIdx {
			return true
		}
	}
	return false
}

// Serialize encodes the table schema (name, keys, columns) for storage in a
// catalog page, following the length-prefixed field idiom the teacher's
// storage.Catalog.serialize uses for its flat []types.Column.
func (ts *TableSchema) Serialize() []byte {
	buf := make([]byte, 0, 256)

	buf = appendString(buf, ts.TableName)

	buf = appendUint16(buf, uint16(len(ts.Schema.Columns)))
	for _, c := range ts.Schema.Columns {
		buf = appendString(buf, c.Name)
		buf = append(buf, byte(c.Type.Base))
		buf = appendUint32(buf, uint32(c.Type.Length))
		if c.Nullable {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	}

	buf = appendUint16(buf, uint16(len(ts.PrimaryKey)))
	for _, i := range ts.PrimaryKey {
		buf = appendUint16(buf, uint16(i))
	}

	buf = appendUint16(buf, uint16(len(ts.CandidateKeys)))
	for _, key := range ts.CandidateKeys {
		buf = appendUint16(buf, uint16(len(key)))
		for _, i := range key {
			buf = appendUint16(buf, uint16(i))
		}
	}

	buf = appendUint16(buf, uint16(len(ts.ForeignKeys)))
	for _, fk := range ts.ForeignKeys {
		buf = appendUint16(buf, uint16(len(fk.ColumnIndexes)))
		for _, i := range fk.ColumnIndexes {
			buf = appendUint16(buf, uint16(i))
		}
		buf = appendString(buf, fk.RefTable)
		buf = appendUint16(buf, uint16(len(fk.RefColumnIndexes)))
		for _, i := range fk.RefColumnIndexes {
			buf = appendUint16(buf, uint16(i))
		}
	}

	return buf
}

// DeserializeTableSchema decodes a TableSchema written by Serialize and
// returns the number of bytes consumed.
func DeserializeTableSchema(buf []byte) (*TableSchema, int, error) {
	off := 0
	name, n, err := readString(buf[off:])
	if err != nil {
		return nil, 0, err
	}
	off += n

	ts := &TableSchema{TableName: name, NumDistinctStats: make(map[int]int64)}

	if len(buf) < off+2 {
		return nil, 0, dberr.StorageFormatf("schema.Deserialize", "truncated column count")
	}
	numCols := int(binary.LittleEndian.Uint16(buf[off:]))
	off += 2

	cols := make([]ColumnInfo, numCols)
	for i := 0; i < numCols; i++ {
		colName, n, err := readString(buf[off:])
		if err != nil {
			return nil, 0, err
		}
		off += n
		if len(buf) < off+6 {
			return nil, 0, dberr.StorageFormatf("schema.Deserialize", "truncated column descriptor")
		}
		base := types.SQLType(buf[off])
		off++
		length := int(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
		nullable := buf[off] == 1
		off++
		cols[i] = ColumnInfo{
			Name:     colName,
			Table:    name,
			Type:     ColumnType{Base: base, Length: length},
			Nullable: nullable,
		}
	}
	ts.Schema = &Schema{Columns: cols}

	numPK := int(binary.LittleEndian.Uint16(buf[off:]))
	off += 2
	ts.PrimaryKey = make([]int, numPK)
	for i := 0; i < numPK; i++ {
		ts.PrimaryKey[i] = int(binary.LittleEndian.Uint16(buf[off:]))
		off += 2
	}

	numCK := int(binary.LittleEndian.Uint16(buf[off:]))
	off += 2
	ts.CandidateKeys = make([][]int, numCK)
	for i := 0; i < numCK; i++ {
		keyLen := int(binary.LittleEndian.Uint16(buf[off:]))
		off += 2
		key := make([]int, keyLen)
		for j := 0; j < keyLen; j++ {
			key[j] = int(binary.LittleEndian.Uint16(buf[off:]))
			off += 2
		}
		ts.CandidateKeys[i] = key
	}

	numFK := int(binary.LittleEndian.Uint16(buf[off:]))
	off += 2
	ts.ForeignKeys = make([]ForeignKeyInfo, numFK)
	for i := 0; i < numFK; i++ {
		colLen := int(binary.LittleEndian.Uint16(buf[off:]))
		off += 2
		colIdx := make([]int, colLen)
		for j := 0; j < colLen; j++ {
			colIdx[j] = int(binary.LittleEndian.Uint16(buf[off:]))
			off += 2
		}
		refTable, n, err := readString(buf[off:])
		if err != nil {
			return nil, 0, err
		}
		off += n
		refLen := int(binary.LittleEndian.Uint16(buf[off:]))
		off += 2
		refIdx := make([]int, refLen)
		for j := 0; j < refLen; j++ {
			refIdx[j] = int(binary.LittleEndian.Uint16(buf[off:]))
			off += 2
		}
		ts.ForeignKeys[i] = ForeignKeyInfo{ColumnIndexes: colIdx, RefTable: refTable, RefColumnIndexes: refIdx}
	}

	return ts, off, nil
}

func appendString(buf []byte, s string) []byte {
	buf = appendUint16(buf, uint16(len(s)))
	return append(buf, s...)
}

func readString(buf []byte) (string, int, error) {
	if len(buf) < 2 {
		return "", 0, dberr.StorageFormatf("schema.readString", "truncated string length")
	}
	n := int(binary.LittleEndian.Uint16(buf))
	if len(buf) < 2+n {
		return "", 0, dberr.StorageFormatf("schema.readString", "truncated string body")
	}
	return string(buf[2 : 2+n]), 2 + n, nil
}

func appendUint16(buf []byte, v uint16) []byte {
	tmp := make([]byte, 2)
	binary.LittleEndian.PutUint16(tmp, v)
	return append(buf, tmp...)
}

func appendUint32(buf []byte, v uint32) []byte {
	tmp := make([]byte, 4)
	binary.LittleEndian.PutUint32(tmp, v)
	return append(buf, tmp...)
}
