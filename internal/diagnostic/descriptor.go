// Package diagnostic holds the fixed catalogue of named diagnostics.
//
// A diagnostic is data: a name, where it must run, how its per-host results
// are merged, which context values it binds and how a result row maps to a
// finding. Templates are read from embedded SQL files once, when the
// registry is built, and lexed into pgx "$n" form at that point.
package diagnostic

import (
	"github.com/jackc/pgx/v5"

	"github.com/koltyakov/pgindexhealth/internal/model"
)

// Topology says which hosts a diagnostic runs on.
type Topology uint8

const (
	// OnPrimary diagnostics are structural and run once, on the primary.
	OnPrimary Topology = iota
	// AcrossCluster diagnostics depend on host-local statistics and run on
	// every host.
	AcrossCluster
)

func (t Topology) String() string {
	switch t {
	case OnPrimary:
		return "on_primary"
	case AcrossCluster:
		return "across_cluster"
	}
	return "unknown"
}

// Reconcile is the merge algebra for per-host results.
type Reconcile uint8

const (
	// Single keeps the primary's own result.
	Single Reconcile = iota
	// Union keeps a finding reported by any host.
	Union
	// Intersection keeps a finding only when every host reports it.
	Intersection
)

func (r Reconcile) String() string {
	switch r {
	case Single:
		return "single"
	case Union:
		return "union"
	case Intersection:
		return "intersection"
	}
	return "unknown"
}

// Placeholder names understood by the bindings.
const (
	ParamSchema    = "schema_name_param"
	ParamBloat     = "bloat_percentage_threshold"
	ParamRemaining = "remaining_percentage_threshold"
)

// Binding selects which SchemaContext values a template receives.
type Binding uint8

const (
	BindSchema Binding = iota
	BindSchemaAndBloat
	BindSchemaAndRemaining
)

// Params returns the placeholder names the binding supplies.
func (b Binding) Params() []string {
	switch b {
	case BindSchemaAndBloat:
		return []string{ParamSchema, ParamBloat}
	case BindSchemaAndRemaining:
		return []string{ParamSchema, ParamRemaining}
	default:
		return []string{ParamSchema}
	}
}

func (b Binding) value(name string, sc model.SchemaContext) (any, bool) {
	switch {
	case name == ParamSchema:
		return sc.SchemaName, true
	case name == ParamBloat && b == BindSchemaAndBloat:
		return sc.BloatPercentageThreshold, true
	case name == ParamRemaining && b == BindSchemaAndRemaining:
		return sc.RemainingPercentageThreshold, true
	}
	return nil, false
}

// Mapper turns one result row into a finding.
type Mapper func(row pgx.CollectableRow) (model.Finding, error)

// Descriptor is one immutable catalogue entry.
type Descriptor struct {
	Name      string
	Topology  Topology
	Runtime   bool
	Binding   Binding
	Reconcile Reconcile
	Map       Mapper

	// Template is the resource the SQL was read from.
	Template string
	// SQL is the lexed statement with "$n" placeholders.
	SQL string

	params []string
}

// Params returns the placeholder names in statement order.
func (d Descriptor) Params() []string {
	out := make([]string, len(d.params))
	copy(out, d.params)
	return out
}

// Args returns the positional arguments for sc.
func (d Descriptor) Args(sc model.SchemaContext) []any {
	args := make([]any, len(d.params))
	for i, name := range d.params {
		args[i], _ = d.Binding.value(name, sc)
	}
	return args
}

// Static reports whether the diagnostic only reads the catalog.
func (d Descriptor) Static() bool { return !d.Runtime }
