package check

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/koltyakov/pgindexhealth/internal/connection"
	"github.com/koltyakov/pgindexhealth/internal/diagnostic"
	apperrors "github.com/koltyakov/pgindexhealth/internal/errors"
	"github.com/koltyakov/pgindexhealth/internal/model"
	"github.com/koltyakov/pgindexhealth/internal/stats"
)

// DefaultLimit is the number of diagnostics CheckAll runs at once.
const DefaultLimit = 4

// Topology is the read-only view of a cluster the runner needs.
// *connection.Cluster implements it.
type Topology interface {
	Primary() *connection.Handle
	Hosts() []*connection.Handle
}

// Runner executes diagnostics from a registry against one cluster.
type Runner struct {
	topology Topology
	registry *diagnostic.Registry
	stats    *stats.Maintenance
	limit    int
}

// Option configures a Runner.
type Option func(*Runner)

// WithClock sets the time source used for statistics reset messages.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.stats = stats.NewMaintenance(now) }
}

// WithLimit bounds how many diagnostics CheckAll runs concurrently.
// Values below one are ignored.
func WithLimit(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.limit = n
		}
	}
}

// NewRunner returns a runner over topology using diagnostics from registry.
func NewRunner(topology Topology, registry *diagnostic.Registry, opts ...Option) *Runner {
	r := &Runner{
		topology: topology,
		registry: registry,
		stats:    stats.NewMaintenance(nil),
		limit:    DefaultLimit,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Check runs d and returns its cluster-level result.
//
// Primary-only diagnostics return the primary's own result. Cluster-wide
// diagnostics run on every host concurrently and are merged by d.Reconcile;
// the first host failure aborts the diagnostic.
func (r *Runner) Check(ctx context.Context, d diagnostic.Descriptor, sc model.SchemaContext) ([]model.Finding, error) {
	sc, err := schemaContext(sc)
	if err != nil {
		return nil, err
	}
	if d.Topology == diagnostic.OnPrimary {
		return Dispatch(ctx, r.topology.Primary(), sc, d)
	}

	hosts := r.topology.Hosts()
	if d.Reconcile == diagnostic.Intersection {
		// Intersected results rely on counters that a reset clears.
		r.stats.LogLastReset(ctx, hosts)
	}

	perHost := make([][]model.Finding, len(hosts))
	g, gctx := errgroup.WithContext(ctx)
	for i, h := range hosts {
		g.Go(func() error {
			found, err := Dispatch(gctx, h, sc, d)
			if err != nil {
				return err
			}
			slog.DebugContext(gctx, "host result", "diagnostic", d.Name, "host", h.Addr(), "findings", len(found))
			perHost[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []model.Finding
	switch d.Reconcile {
	case diagnostic.Union:
		out = Union(perHost)
	case diagnostic.Intersection:
		out = Intersect(perHost)
	default:
		out = perHost[0]
	}
	slog.DebugContext(ctx, "reconciled", "diagnostic", d.Name, "reconcile", d.Reconcile.String(), "hosts", len(hosts), "findings", len(out))
	return out, nil
}

// schemaContext replaces the zero value with the default context and
// validates anything else.
func schemaContext(sc model.SchemaContext) (model.SchemaContext, error) {
	if sc == (model.SchemaContext{}) {
		return model.DefaultSchemaContext(), nil
	}
	if err := sc.Validate(); err != nil {
		return model.SchemaContext{}, err
	}
	return sc, nil
}

// CheckByName looks name up in the registry and runs it.
func (r *Runner) CheckByName(ctx context.Context, name string, sc model.SchemaContext) ([]model.Finding, error) {
	d, ok := r.registry.ByName(name)
	if !ok {
		return nil, apperrors.NewValidationError("diagnostic", name, "unknown diagnostic")
	}
	return r.Check(ctx, d, sc)
}

// Result is the outcome of one diagnostic in CheckAll.
type Result struct {
	Diagnostic diagnostic.Descriptor
	Findings   []model.Finding
	Err        error
}

// CheckAll runs the selected diagnostics concurrently, bounded by the
// runner's limit. Results are in registry order. A failed diagnostic keeps
// its error in its Result and in the returned *errors.MultiError; the other
// results are unaffected.
func (r *Runner) CheckAll(ctx context.Context, sc model.SchemaContext, f diagnostic.Filter, names ...string) ([]Result, error) {
	sc, err := schemaContext(sc)
	if err != nil {
		return nil, err
	}
	selected, err := r.registry.Select(f, names...)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(selected))
	var g errgroup.Group
	g.SetLimit(r.limit)
	for i, d := range selected {
		g.Go(func() error {
			found, err := r.Check(ctx, d, sc)
			results[i] = Result{Diagnostic: d, Findings: found, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	var errs apperrors.MultiError
	for _, res := range results {
		if res.Err != nil {
			slog.WarnContext(ctx, "diagnostic failed", "diagnostic", res.Diagnostic.Name, "reason", res.Err)
		}
		errs.Add(res.Err)
	}
	return results, errs.ErrorOrNil()
}
