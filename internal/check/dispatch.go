// Package check executes diagnostics against a cluster and reconciles the
// per-host answers into one cluster-level result.
package check

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/koltyakov/pgindexhealth/internal/connection"
	"github.com/koltyakov/pgindexhealth/internal/diagnostic"
	apperrors "github.com/koltyakov/pgindexhealth/internal/errors"
	"github.com/koltyakov/pgindexhealth/internal/model"
)

// Dispatch runs d on h under sc and maps every row into a finding.
//
// Any failure, including one while reading rows, is returned as a
// *errors.QueryError and no findings are returned with it. An invalid sc is
// rejected before anything is sent.
func Dispatch(ctx context.Context, h *connection.Handle, sc model.SchemaContext, d diagnostic.Descriptor) (_ []model.Finding, err error) {
	if sc, err = schemaContext(sc); err != nil {
		return nil, err
	}
	addr := h.Addr()
	ctx, span := tracer.Start(ctx, "Dispatch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("diagnostic", d.Name),
			attribute.String("host", addr),
		))
	start := time.Now()
	defer func() {
		ok := strconv.FormatBool(err == nil)
		queryCounter.WithLabelValues(d.Name, addr, ok).Inc()
		queryDuration.WithLabelValues(d.Name, addr, ok).Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "dispatch failed")
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}()

	slog.DebugContext(ctx, "dispatch", "diagnostic", d.Name, "host", addr, "schema", sc.SchemaName)

	rows, err := h.Pool().Query(ctx, d.SQL, d.Args(sc)...)
	if err != nil {
		return nil, apperrors.NewQueryError(d.Name, addr, d.Template, err)
	}
	found, err := pgx.CollectRows(rows, pgx.RowToFunc[model.Finding](d.Map))
	if err != nil {
		return nil, apperrors.NewQueryError(d.Name, addr, d.Template, err)
	}
	span.SetAttributes(attribute.Int("findings", len(found)))
	return found, nil
}
