package diagnostic

import (
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/koltyakov/pgindexhealth/internal/model"
)

// Column order in every mapper matches the select list of its templates.

func mapTable(row pgx.CollectableRow) (model.Finding, error) {
	var t model.Table
	err := row.Scan(&t.TableName, &t.TableSizeInBytes)
	return t, err
}

func mapTableWithBloat(row pgx.CollectableRow) (model.Finding, error) {
	var t model.TableWithBloat
	err := row.Scan(&t.TableName, &t.TableSizeInBytes, &t.BloatSizeInBytes, &t.BloatPercentage)
	return t, err
}

func mapTableWithMissingIndex(row pgx.CollectableRow) (model.Finding, error) {
	var t model.TableWithMissingIndex
	err := row.Scan(&t.TableName, &t.TableSizeInBytes, &t.SeqScans, &t.IndexScans)
	return t, err
}

func mapIndex(row pgx.CollectableRow) (model.Finding, error) {
	var i model.Index
	err := row.Scan(&i.TableName, &i.IndexName, &i.IndexSizeInBytes)
	return i, err
}

func mapUnusedIndex(row pgx.CollectableRow) (model.Finding, error) {
	var i model.UnusedIndex
	err := row.Scan(&i.TableName, &i.IndexName, &i.IndexSizeInBytes, &i.IndexScans)
	return i, err
}

func mapIndexWithBloat(row pgx.CollectableRow) (model.Finding, error) {
	var i model.IndexWithBloat
	err := row.Scan(&i.TableName, &i.IndexName, &i.IndexSizeInBytes, &i.BloatSizeInBytes, &i.BloatPercentage)
	return i, err
}

func mapIndexWithColumn(row pgx.CollectableRow) (model.Finding, error) {
	var (
		i model.IndexWithColumns
		c model.Column
	)
	if err := row.Scan(&i.TableName, &i.IndexName, &i.IndexSizeInBytes, &c.ColumnName, &c.NotNull); err != nil {
		return nil, err
	}
	c.TableName = i.TableName
	i.Columns = []model.Column{c}
	return i, nil
}

func mapDuplicatedIndexes(row pgx.CollectableRow) (model.Finding, error) {
	var (
		table string
		names []string
		sizes []int64
	)
	if err := row.Scan(&table, &names, &sizes); err != nil {
		return nil, err
	}
	if len(names) != len(sizes) {
		return nil, fmt.Errorf("duplicated indexes on %s: %d names but %d sizes", table, len(names), len(sizes))
	}
	d := model.DuplicatedIndexes{TableName: table, Indexes: make([]model.Index, len(names))}
	for i := range names {
		d.Indexes[i] = model.Index{TableName: table, IndexName: names[i], IndexSizeInBytes: sizes[i]}
	}
	return d, nil
}

func mapForeignKey(row pgx.CollectableRow) (model.Finding, error) {
	var (
		fk      model.ForeignKey
		names   []string
		notNull []bool
	)
	if err := row.Scan(&fk.TableName, &fk.ConstraintName, &names, &notNull); err != nil {
		return nil, err
	}
	if len(names) != len(notNull) {
		return nil, fmt.Errorf("foreign key %s: %d columns but %d nullability flags", fk.ConstraintName, len(names), len(notNull))
	}
	fk.Columns = make([]model.Column, len(names))
	for i := range names {
		fk.Columns[i] = model.Column{TableName: fk.TableName, ColumnName: names[i], NotNull: notNull[i]}
	}
	return fk, nil
}

func mapDuplicatedForeignKeys(row pgx.CollectableRow) (model.Finding, error) {
	var d model.DuplicatedForeignKeys
	err := row.Scan(&d.TableName, &d.ConstraintNames)
	return d, err
}

func mapColumn(row pgx.CollectableRow) (model.Finding, error) {
	var c model.Column
	err := row.Scan(&c.TableName, &c.ColumnName, &c.NotNull)
	return c, err
}

func mapColumnWithType(row pgx.CollectableRow) (model.Finding, error) {
	var c model.ColumnWithType
	err := row.Scan(&c.TableName, &c.ColumnName, &c.NotNull, &c.ColumnType)
	return c, err
}

func mapColumnWithSerialType(row pgx.CollectableRow) (model.Finding, error) {
	var c model.ColumnWithSerialType
	err := row.Scan(&c.TableName, &c.ColumnName, &c.NotNull, &c.SerialType, &c.SequenceName)
	return c, err
}

func mapStoredFunction(row pgx.CollectableRow) (model.Finding, error) {
	var f model.StoredFunction
	err := row.Scan(&f.FunctionName, &f.FunctionSignature)
	return f, err
}

func mapSequenceState(row pgx.CollectableRow) (model.Finding, error) {
	var s model.SequenceState
	err := row.Scan(&s.SequenceName, &s.DataType, &s.RemainingPercentage)
	return s, err
}

func mapConstraint(row pgx.CollectableRow) (model.Finding, error) {
	var c model.Constraint
	err := row.Scan(&c.TableName, &c.ConstraintName, &c.ConstraintType)
	return c, err
}

func mapAnyObject(row pgx.CollectableRow) (model.Finding, error) {
	var o model.AnyObject
	err := row.Scan(&o.ObjName, &o.ObjectType)
	return o, err
}
