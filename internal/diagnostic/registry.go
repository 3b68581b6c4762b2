package diagnostic

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"sync"

	apperrors "github.com/koltyakov/pgindexhealth/internal/errors"
	"github.com/koltyakov/pgindexhealth/internal/sqlparams"
)

// Diagnostic names.
const (
	BloatedIndexes                      = "bloated_indexes"
	BloatedTables                       = "bloated_tables"
	DuplicatedIndexes                   = "duplicated_indexes"
	ForeignKeysWithoutIndex             = "foreign_keys_without_index"
	IndexesWithNullValues               = "indexes_with_null_values"
	IntersectedIndexes                  = "intersected_indexes"
	InvalidIndexes                      = "invalid_indexes"
	TablesWithMissingIndexes            = "tables_with_missing_indexes"
	TablesWithoutPrimaryKey             = "tables_without_primary_key"
	UnusedIndexes                       = "unused_indexes"
	TablesWithoutDescription            = "tables_without_description"
	ColumnsWithoutDescription           = "columns_without_description"
	ColumnsWithJSONType                 = "columns_with_json_type"
	ColumnsWithSerialTypes              = "columns_with_serial_types"
	FunctionsWithoutDescription         = "functions_without_description"
	IndexesWithBoolean                  = "indexes_with_boolean"
	NotValidConstraints                 = "not_valid_constraints"
	BtreeIndexesOnArrayColumns          = "btree_indexes_on_array_columns"
	SequenceOverflow                    = "sequence_overflow"
	PrimaryKeysWithSerialTypes          = "primary_keys_with_serial_types"
	DuplicatedForeignKeys               = "duplicated_foreign_keys"
	IntersectedForeignKeys              = "intersected_foreign_keys"
	PossibleObjectNameOverflow          = "possible_object_name_overflow"
	TablesNotLinkedToOthers             = "tables_not_linked_to_others"
	ForeignKeysWithUnmatchedColumnType  = "foreign_keys_with_unmatched_column_type"
	TablesWithZeroOrOneColumn           = "tables_with_zero_or_one_column"
	ObjectsNotFollowingNamingConvention = "objects_not_following_naming_convention"
	ColumnsNotFollowingNamingConvention = "columns_not_following_naming_convention"
	PrimaryKeysWithVarchar              = "primary_keys_with_varchar"
	ColumnsWithMoneyType                = "columns_with_money_type"
)

// TemplateDir is the directory templates are read from.
const TemplateDir = "queries"

//go:embed queries/*.sql
var queries embed.FS

func staticCheck(name string, m Mapper) Descriptor {
	return Descriptor{Name: name, Topology: OnPrimary, Binding: BindSchema, Reconcile: Single, Map: m}
}

func runtimeCheck(name string, b Binding, m Mapper) Descriptor {
	return Descriptor{Name: name, Topology: OnPrimary, Runtime: true, Binding: b, Reconcile: Single, Map: m}
}

func clusterCheck(name string, r Reconcile, m Mapper) Descriptor {
	return Descriptor{Name: name, Topology: AcrossCluster, Runtime: true, Binding: BindSchema, Reconcile: r, Map: m}
}

// Catalogue returns the diagnostics without templates, in registry order.
func Catalogue() []Descriptor {
	return []Descriptor{
		runtimeCheck(BloatedIndexes, BindSchemaAndBloat, mapIndexWithBloat),
		runtimeCheck(BloatedTables, BindSchemaAndBloat, mapTableWithBloat),
		staticCheck(DuplicatedIndexes, mapDuplicatedIndexes),
		staticCheck(ForeignKeysWithoutIndex, mapForeignKey),
		staticCheck(IndexesWithNullValues, mapIndexWithColumn),
		staticCheck(IntersectedIndexes, mapDuplicatedIndexes),
		staticCheck(InvalidIndexes, mapIndex),
		clusterCheck(TablesWithMissingIndexes, Union, mapTableWithMissingIndex),
		staticCheck(TablesWithoutPrimaryKey, mapTable),
		clusterCheck(UnusedIndexes, Intersection, mapUnusedIndex),
		staticCheck(TablesWithoutDescription, mapTable),
		staticCheck(ColumnsWithoutDescription, mapColumn),
		staticCheck(ColumnsWithJSONType, mapColumnWithType),
		staticCheck(ColumnsWithSerialTypes, mapColumnWithSerialType),
		staticCheck(FunctionsWithoutDescription, mapStoredFunction),
		staticCheck(IndexesWithBoolean, mapIndexWithColumn),
		staticCheck(NotValidConstraints, mapConstraint),
		staticCheck(BtreeIndexesOnArrayColumns, mapIndexWithColumn),
		runtimeCheck(SequenceOverflow, BindSchemaAndRemaining, mapSequenceState),
		staticCheck(PrimaryKeysWithSerialTypes, mapColumnWithSerialType),
		staticCheck(DuplicatedForeignKeys, mapDuplicatedForeignKeys),
		staticCheck(IntersectedForeignKeys, mapDuplicatedForeignKeys),
		staticCheck(PossibleObjectNameOverflow, mapAnyObject),
		staticCheck(TablesNotLinkedToOthers, mapTable),
		staticCheck(ForeignKeysWithUnmatchedColumnType, mapForeignKey),
		staticCheck(TablesWithZeroOrOneColumn, mapTable),
		staticCheck(ObjectsNotFollowingNamingConvention, mapAnyObject),
		staticCheck(ColumnsNotFollowingNamingConvention, mapColumn),
		staticCheck(PrimaryKeysWithVarchar, mapColumnWithType),
		staticCheck(ColumnsWithMoneyType, mapColumnWithType),
	}
}

// Registry is the immutable set of diagnostics available to a session.
type Registry struct {
	all    []Descriptor
	byName map[string]int
}

// Default returns the registry built from the embedded templates.
var Default = sync.OnceValues(func() (*Registry, error) {
	return NewRegistry(queries, Catalogue())
})

// NewRegistry reads "queries/<name>.sql" from fsys for every descriptor,
// lexes it and checks it against the descriptor. Any failure is fatal.
func NewRegistry(fsys fs.FS, catalogue []Descriptor) (*Registry, error) {
	r := &Registry{
		all:    make([]Descriptor, 0, len(catalogue)),
		byName: make(map[string]int, len(catalogue)),
	}
	for _, d := range catalogue {
		if _, dup := r.byName[d.Name]; dup {
			return nil, apperrors.NewValidationError("diagnostic", d.Name, "registered twice")
		}
		if err := load(fsys, &d); err != nil {
			return nil, err
		}
		r.byName[d.Name] = len(r.all)
		r.all = append(r.all, d)
	}
	return r, nil
}

func load(fsys fs.FS, d *Descriptor) error {
	if d.Name == "" {
		return apperrors.NewValidationError("diagnostic", "", "name cannot be blank")
	}
	if d.Map == nil {
		return apperrors.NewValidationError("diagnostic", d.Name, "row mapper is required")
	}
	switch {
	case d.Topology == AcrossCluster && !d.Runtime:
		return apperrors.NewValidationError("diagnostic", d.Name, "cluster-wide diagnostics must be runtime diagnostics")
	case d.Topology == AcrossCluster && d.Reconcile == Single:
		return apperrors.NewValidationError("diagnostic", d.Name, "cluster-wide diagnostics need union or intersection")
	case d.Topology == OnPrimary && d.Reconcile != Single:
		return apperrors.NewValidationError("diagnostic", d.Name, "primary-only diagnostics cannot be reconciled")
	}

	d.Template = path.Join(TemplateDir, d.Name+".sql")
	raw, err := fs.ReadFile(fsys, d.Template)
	if err != nil {
		return apperrors.NewTemplateError(d.Template, err)
	}
	names, err := sqlparams.Names(string(raw))
	if err != nil {
		return apperrors.NewTemplateError(d.Template, err)
	}
	sql, n, err := sqlparams.ParseNumbered(string(raw))
	if err != nil {
		return apperrors.NewTemplateError(d.Template, err)
	}
	if n != len(names) {
		return apperrors.NewTemplateError(d.Template, fmt.Errorf("lexer found %d placeholders but %d names", n, len(names)))
	}

	supplied := d.Binding.Params()
	for _, name := range names {
		if !slices.Contains(supplied, name) {
			return apperrors.NewTemplateError(d.Template, fmt.Errorf("placeholder :%s is not bound by %v", name, supplied))
		}
	}
	for _, name := range supplied {
		if !slices.Contains(names, name) {
			return apperrors.NewTemplateError(d.Template, fmt.Errorf("bound parameter :%s is never used", name))
		}
	}

	d.SQL = sql
	d.params = names
	return nil
}

// All returns every diagnostic in registry order.
func (r *Registry) All() []Descriptor {
	return slices.Clone(r.all)
}

// ByName looks a diagnostic up by name.
func (r *Registry) ByName(name string) (Descriptor, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Descriptor{}, false
	}
	return r.all[i], true
}

// Filter narrows a selection by classification.
type Filter uint8

const (
	// All selects every diagnostic.
	All Filter = iota
	// StaticOnly selects diagnostics that only read the system catalog.
	StaticOnly
	// RuntimeOnly selects diagnostics that depend on collected statistics.
	RuntimeOnly
)

func (f Filter) match(d Descriptor) bool {
	switch f {
	case StaticOnly:
		return !d.Runtime
	case RuntimeOnly:
		return d.Runtime
	}
	return true
}

// Select returns the diagnostics matching f, restricted to names when any
// are given. Unknown names are an error.
func (r *Registry) Select(f Filter, names ...string) ([]Descriptor, error) {
	if len(names) == 0 {
		out := make([]Descriptor, 0, len(r.all))
		for _, d := range r.all {
			if f.match(d) {
				out = append(out, d)
			}
		}
		return out, nil
	}

	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := r.byName[n]; !ok {
			return nil, apperrors.NewValidationError("diagnostic", n, "unknown diagnostic")
		}
		want[n] = struct{}{}
	}
	var out []Descriptor
	for _, d := range r.all {
		if _, ok := want[d.Name]; ok && f.match(d) {
			out = append(out, d)
		}
	}
	return out, nil
}
