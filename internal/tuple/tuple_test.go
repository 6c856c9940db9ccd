package tuple

import (
	"testing"

	"github.com/nanodb/nanodb/internal/schema"
	"github.com/nanodb/nanodb/pkg/types"
)

func testSchema() *schema.Schema {
	return schema.New(
		schema.ColumnInfo{Name: "id", Type: schema.ColumnType{Base: types.TypeInteger}},
		schema.ColumnInfo{Name: "name", Type: schema.ColumnType{Base: types.TypeVarChar, Length: 32}},
		schema.ColumnInfo{Name: "active", Type: schema.ColumnType{Base: types.TypeBoolean}, Nullable: true},
	)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	s := testSchema()
	values := []any{int32(7), "alice", true}

	data, err := Encode(s, values)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	pt, err := NewPageTuple(s, types.FilePointer{PageNo: 1, SlotNo: 0}, data)
	if err != nil {
		t.Fatalf("NewPageTuple: %v", err)
	}

	got0, _ := pt.GetColumnValue(0)
	if got0.(int32) != 7 {
		t.Errorf("column 0 = %v, want 7", got0)
	}
	got1, _ := pt.GetColumnValue(1)
	if got1.(string) != "alice" {
		t.Errorf("column 1 = %q, want alice", got1)
	}
	got2, _ := pt.GetColumnValue(2)
	if got2.(bool) != true {
		t.Errorf("column 2 = %v, want true", got2)
	}
}

func TestEncodeDecodeNull(t *testing.T) {
	s := testSchema()
	values := []any{int32(1), "bob", nil}

	data, err := Encode(s, values)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	pt, err := NewPageTuple(s, types.FilePointer{}, data)
	if err != nil {
		t.Fatalf("NewPageTuple: %v", err)
	}

	if !pt.IsNull(2) {
		t.Errorf("column 2 should be null")
	}
	v, err := pt.GetColumnValue(2)
	if err != nil || v != nil {
		t.Errorf("GetColumnValue(2) = %v, %v; want nil, nil", v, err)
	}
}

func TestMaterializeProducesIndependentLiteral(t *testing.T) {
	s := testSchema()
	data, err := Encode(s, []any{int32(3), "carol", false})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	pt, err := NewPageTuple(s, types.FilePointer{PageNo: 2, SlotNo: 1}, data)
	if err != nil {
		t.Fatalf("NewPageTuple: %v", err)
	}

	lit, err := pt.Materialize()
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if lit.Pointer() != (types.FilePointer{PageNo: 2, SlotNo: 1}) {
		t.Errorf("literal pointer = %v, want (2:1)", lit.Pointer())
	}
	v, _ := lit.GetColumnValue(1)
	if v.(string) != "carol" {
		t.Errorf("literal column 1 = %v, want carol", v)
	}
}

func TestConcat(t *testing.T) {
	leftSchema := schema.New(schema.ColumnInfo{Name: "a", Type: schema.ColumnType{Base: types.TypeInteger}})
	rightSchema := schema.New(schema.ColumnInfo{Name: "b", Type: schema.ColumnType{Base: types.TypeInteger}})
	combined := leftSchema.Append(rightSchema)

	left := NewTupleLiteral(leftSchema, []any{int32(1)})
	right := NewTupleLiteral(rightSchema, []any{int32(2)})

	out, err := Concat(combined, left, right)
	if err != nil {
		t.Fatalf("Concat: %v", err)
	}
	if out.ColumnCount() != 2 {
		t.Fatalf("ColumnCount = %d, want 2", out.ColumnCount())
	}
	v0, _ := out.GetColumnValue(0)
	v1, _ := out.GetColumnValue(1)
	if v0.(int32) != 1 || v1.(int32) != 2 {
		t.Errorf("concat values = %v, %v; want 1, 2", v0, v1)
	}
}

func TestEnvironmentResolve(t *testing.T) {
	s := testSchema()
	lit := NewTupleLiteral(s, []any{int32(9), "dana", true})

	env := NewEnvironment()
	env.Push(s, lit)

	v, err := env.Resolve("name")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if v.(string) != "dana" {
		t.Errorf("Resolve(name) = %v, want dana", v)
	}

	if _, err := env.Resolve("nope"); err == nil {
		t.Errorf("Resolve(nope) should fail")
	}
}
