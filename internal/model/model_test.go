package model

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	apperrors "github.com/koltyakov/pgindexhealth/internal/errors"
)

func TestKeysIgnoreCounters(t *testing.T) {
	a := UnusedIndex{Index: Index{TableName: "t", IndexName: "idx1", IndexSizeInBytes: 10}, IndexScans: 0}
	b := UnusedIndex{Index: Index{TableName: "t", IndexName: "idx1", IndexSizeInBytes: 20}, IndexScans: 5}
	if a.Key() != b.Key() {
		t.Errorf("keys differ: %q vs %q", a.Key(), b.Key())
	}

	m1 := TableWithMissingIndex{Table: Table{TableName: "orders"}, SeqScans: 100}
	m2 := TableWithMissingIndex{Table: Table{TableName: "orders"}, SeqScans: 300}
	if m1.Key() != m2.Key() {
		t.Error("missing index findings for the same table should share a key")
	}
}

func TestKeysDistinguishObjects(t *testing.T) {
	tests := []struct {
		name string
		a, b Finding
	}{
		{"index on other table", Index{TableName: "a", IndexName: "i"}, Index{TableName: "b", IndexName: "i"}},
		{"separator collision", Index{TableName: "a.b", IndexName: "c"}, Index{TableName: "a", IndexName: "b.c"}},
		{"column", Column{TableName: "t", ColumnName: "x"}, Column{TableName: "t", ColumnName: "y"}},
		{"function overload", StoredFunction{FunctionName: "f", FunctionSignature: "a integer"}, StoredFunction{FunctionName: "f", FunctionSignature: "a text"}},
		{"object type", AnyObject{ObjName: "x", ObjectType: "table"}, AnyObject{ObjName: "x", ObjectType: "index"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.a.Key() == tt.b.Key() {
				t.Errorf("expected distinct keys, both %q", tt.a.Key())
			}
		})
	}
}

func TestDuplicatedIndexes(t *testing.T) {
	d := DuplicatedIndexes{
		TableName: "accounts",
		Indexes: []Index{
			{TableName: "accounts", IndexName: "i_a", IndexSizeInBytes: 100},
			{TableName: "accounts", IndexName: "i_b", IndexSizeInBytes: 50},
		},
	}
	if got := d.IndexSize(); got != 150 {
		t.Errorf("IndexSize() = %d, expected 150", got)
	}
	if got := d.ObjectName(); got != "i_a, i_b" {
		t.Errorf("ObjectName() = %q", got)
	}
	if !cmp.Equal(d.IndexNames(), []string{"i_a", "i_b"}) {
		t.Errorf("IndexNames() = %v", d.IndexNames())
	}
}

func TestSortByKey(t *testing.T) {
	fs := []Finding{
		Table{TableName: "c"},
		Table{TableName: "a"},
		Table{TableName: "b"},
	}
	SortByKey(fs)
	var got []string
	for _, f := range fs {
		got = append(got, f.ObjectName())
	}
	if !cmp.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("unexpected order %v", got)
	}
}

func TestOptionalInterfaces(t *testing.T) {
	var f Finding = TableWithBloat{Table: Table{TableName: "t", TableSizeInBytes: 1}, BloatSizeInBytes: 2, BloatPercentage: 3}
	if _, ok := f.(BloatAware); !ok {
		t.Error("TableWithBloat should be BloatAware")
	}
	if _, ok := f.(TableSizeAware); !ok {
		t.Error("TableWithBloat should be TableSizeAware")
	}
	if _, ok := f.(IndexSizeAware); ok {
		t.Error("TableWithBloat should not be IndexSizeAware")
	}
	f = IndexWithBloat{Index: Index{IndexName: "i"}}
	if _, ok := f.(IndexSizeAware); !ok {
		t.Error("IndexWithBloat should be IndexSizeAware")
	}
}

func TestNewSchemaContext(t *testing.T) {
	tests := []struct {
		name      string
		schema    string
		bloat     float64
		remaining float64
		want      SchemaContext
		wantErr   bool
	}{
		{"lowercased", " Custom ", 25, 5, SchemaContext{"custom", 25, 5}, false},
		{"bounds", "public", 0, 100, SchemaContext{"public", 0, 100}, false},
		{"blank schema", "  ", 10, 10, SchemaContext{}, true},
		{"negative bloat", "public", -1, 10, SchemaContext{}, true},
		{"remaining over 100", "public", 10, 100.5, SchemaContext{}, true},
		{"nan", "public", math.NaN(), 10, SchemaContext{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewSchemaContext(tt.schema, tt.bloat, tt.remaining)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewSchemaContext() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, apperrors.ErrInvalidConfig) {
					t.Errorf("expected ErrInvalidConfig, got %v", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("NewSchemaContext() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultSchemaContext(t *testing.T) {
	sc := DefaultSchemaContext()
	if sc.SchemaName != "public" || sc.BloatPercentageThreshold != 10 || sc.RemainingPercentageThreshold != 10 {
		t.Errorf("unexpected defaults %v", sc)
	}
	if !sc.IsDefaultSchema() {
		t.Error("public should be the default schema")
	}
	if err := sc.Validate(); err != nil {
		t.Errorf("defaults should be valid: %v", err)
	}
}

func TestEnrichWithSchema(t *testing.T) {
	custom, err := NewSchemaContext("custom", 10, 10)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name     string
		sc       SchemaContext
		object   string
		expected string
	}{
		{"public untouched", DefaultSchemaContext(), "accounts", "accounts"},
		{"custom prefixed", custom, "accounts", "custom.accounts"},
		{"already qualified", custom, "custom.accounts", "custom.accounts"},
		{"qualified case insensitive", custom, "CUSTOM.accounts", "CUSTOM.accounts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sc.EnrichWithSchema(tt.object); got != tt.expected {
				t.Errorf("EnrichWithSchema(%q) = %q, expected %q", tt.object, got, tt.expected)
			}
		})
	}
}
