package model

import "strings"

// Table is a table and its size.
type Table struct {
	TableName        string `json:"table_name"`
	TableSizeInBytes int64  `json:"table_size"`
}

func (t Table) Key() string        { return key(t.TableName) }
func (t Table) ObjectName() string { return t.TableName }
func (t Table) OnTable() string    { return t.TableName }
func (t Table) TableSize() int64   { return t.TableSizeInBytes }

// TableWithBloat is a table with an estimated amount of bloat.
type TableWithBloat struct {
	Table
	BloatSizeInBytes int64   `json:"bloat_size"`
	BloatPercentage  float64 `json:"bloat_percentage"`
}

func (t TableWithBloat) BloatSize() int64  { return t.BloatSizeInBytes }
func (t TableWithBloat) BloatPct() float64 { return t.BloatPercentage }

// TableWithMissingIndex is a table read mostly by sequential scans.
type TableWithMissingIndex struct {
	Table
	SeqScans   int64 `json:"seq_scans"`
	IndexScans int64 `json:"index_scans"`
}

// Index is an index on a table.
type Index struct {
	TableName        string `json:"table_name"`
	IndexName        string `json:"index_name"`
	IndexSizeInBytes int64  `json:"index_size"`
}

func (i Index) Key() string        { return key(i.TableName, i.IndexName) }
func (i Index) ObjectName() string { return i.IndexName }
func (i Index) OnTable() string    { return i.TableName }
func (i Index) IndexSize() int64   { return i.IndexSizeInBytes }

// UnusedIndex is an index with no recorded scans on a host.
type UnusedIndex struct {
	Index
	IndexScans int64 `json:"index_scans"`
}

// IndexWithBloat is an index with an estimated amount of bloat.
type IndexWithBloat struct {
	Index
	BloatSizeInBytes int64   `json:"bloat_size"`
	BloatPercentage  float64 `json:"bloat_percentage"`
}

func (i IndexWithBloat) BloatSize() int64  { return i.BloatSizeInBytes }
func (i IndexWithBloat) BloatPct() float64 { return i.BloatPercentage }

// IndexWithColumns is an index together with the columns that make it
// suspicious (nullable, boolean, array).
type IndexWithColumns struct {
	Index
	Columns []Column `json:"columns"`
}

// DuplicatedIndexes is a group of indexes on one table that cover the same
// or overlapping columns.
type DuplicatedIndexes struct {
	TableName string  `json:"table_name"`
	Indexes   []Index `json:"indexes"`
}

func (d DuplicatedIndexes) Key() string {
	return key(d.TableName, strings.Join(d.IndexNames(), ","))
}

func (d DuplicatedIndexes) ObjectName() string { return strings.Join(d.IndexNames(), ", ") }
func (d DuplicatedIndexes) OnTable() string    { return d.TableName }

// IndexSize returns the total size of the group.
func (d DuplicatedIndexes) IndexSize() int64 {
	var total int64
	for _, i := range d.Indexes {
		total += i.IndexSizeInBytes
	}
	return total
}

// IndexNames returns the names of the indexes in the group.
func (d DuplicatedIndexes) IndexNames() []string {
	out := make([]string, len(d.Indexes))
	for i, idx := range d.Indexes {
		out[i] = idx.IndexName
	}
	return out
}

// Column is a table column.
type Column struct {
	TableName  string `json:"table_name"`
	ColumnName string `json:"column_name"`
	NotNull    bool   `json:"not_null"`
}

func (c Column) Key() string        { return key(c.TableName, c.ColumnName) }
func (c Column) ObjectName() string { return c.TableName + "." + c.ColumnName }
func (c Column) OnTable() string    { return c.TableName }

// ColumnWithType is a column reported because of its data type.
type ColumnWithType struct {
	Column
	ColumnType string `json:"column_type"`
}

// ColumnWithSerialType is a column backed by a serial sequence.
type ColumnWithSerialType struct {
	Column
	SerialType   string `json:"serial_type"`
	SequenceName string `json:"sequence_name"`
}

// ForeignKey is a foreign key constraint and its columns.
type ForeignKey struct {
	TableName      string   `json:"table_name"`
	ConstraintName string   `json:"constraint_name"`
	Columns        []Column `json:"columns"`
}

func (f ForeignKey) Key() string        { return key(f.TableName, f.ConstraintName) }
func (f ForeignKey) ObjectName() string { return f.ConstraintName }
func (f ForeignKey) OnTable() string    { return f.TableName }

// DuplicatedForeignKeys is a group of foreign keys on one table that
// reference the same or overlapping columns.
type DuplicatedForeignKeys struct {
	TableName       string   `json:"table_name"`
	ConstraintNames []string `json:"constraint_names"`
}

func (d DuplicatedForeignKeys) Key() string {
	return key(d.TableName, strings.Join(d.ConstraintNames, ","))
}

func (d DuplicatedForeignKeys) ObjectName() string { return strings.Join(d.ConstraintNames, ", ") }
func (d DuplicatedForeignKeys) OnTable() string    { return d.TableName }

// Constraint is a table constraint.
type Constraint struct {
	TableName      string `json:"table_name"`
	ConstraintName string `json:"constraint_name"`
	ConstraintType string `json:"constraint_type"`
}

func (c Constraint) Key() string        { return key(c.TableName, c.ConstraintName) }
func (c Constraint) ObjectName() string { return c.ConstraintName }
func (c Constraint) OnTable() string    { return c.TableName }

// StoredFunction is a function or procedure.
type StoredFunction struct {
	FunctionName      string `json:"function_name"`
	FunctionSignature string `json:"function_signature"`
}

func (f StoredFunction) Key() string { return key(f.FunctionName, f.FunctionSignature) }

func (f StoredFunction) ObjectName() string {
	if f.FunctionSignature == "" {
		return f.FunctionName
	}
	return f.FunctionName + "(" + f.FunctionSignature + ")"
}

// SequenceState is a sequence close to exhausting its range.
type SequenceState struct {
	SequenceName        string  `json:"sequence_name"`
	DataType            string  `json:"data_type"`
	RemainingPercentage float64 `json:"remaining_percentage"`
}

func (s SequenceState) Key() string        { return key(s.SequenceName) }
func (s SequenceState) ObjectName() string { return s.SequenceName }

// AnyObject is a database object of any kind.
type AnyObject struct {
	ObjName    string `json:"object_name"`
	ObjectType string `json:"object_type"`
}

func (o AnyObject) Key() string        { return key(o.ObjName, o.ObjectType) }
func (o AnyObject) ObjectName() string { return o.ObjName }
