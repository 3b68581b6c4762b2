// Package stats reads and resets the cumulative statistics that runtime
// diagnostics depend on.
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/koltyakov/pgindexhealth/internal/connection"
)

const (
	lastResetQuery = `select stats_reset from pg_stat_database where datname = current_database()`
	resetQuery     = `select pg_stat_reset()`
)

// LastReset returns when statistics of the current database were last reset
// on h, or nil if they never were.
func LastReset(ctx context.Context, h *connection.Handle) (*time.Time, error) {
	var ts *time.Time
	if err := h.Pool().QueryRow(ctx, lastResetQuery).Scan(&ts); err != nil {
		return nil, fmt.Errorf("stats reset time on %s: %w", h.Addr(), err)
	}
	return ts, nil
}

// ResetMessage describes a reset timestamp relative to now.
func ResetMessage(last *time.Time, now time.Time) string {
	if last == nil {
		return "Statistics have never been reset on this host"
	}
	days := int64(now.Sub(*last) / (24 * time.Hour))
	return fmt.Sprintf("Last statistics reset on this host was %d days ago (%s)", days, last.Format(time.RFC3339))
}

// Maintenance reads and resets statistics on a set of hosts.
type Maintenance struct {
	now func() time.Time
}

// NewMaintenance returns a Maintenance using now as its clock. A nil now
// means time.Now.
func NewMaintenance(now func() time.Time) *Maintenance {
	if now == nil {
		now = time.Now
	}
	return &Maintenance{now: now}
}

// LogLastReset logs the reset age of every host. Failures are logged and
// do not stop the caller.
func (m *Maintenance) LogLastReset(ctx context.Context, hosts []*connection.Handle) {
	for _, h := range hosts {
		ts, err := LastReset(ctx, h)
		if err != nil {
			slog.WarnContext(ctx, "cannot read statistics reset time", "host", h.Addr(), "reason", err)
			continue
		}
		slog.InfoContext(ctx, ResetMessage(ts, m.now()), "host", h.Addr())
	}
}

// ResetStatistics runs pg_stat_reset on every host concurrently. It returns
// the first error once all hosts finished.
func (m *Maintenance) ResetStatistics(ctx context.Context, hosts []*connection.Handle) error {
	var g errgroup.Group
	for _, h := range hosts {
		g.Go(func() error {
			var ignored any
			if err := h.Pool().QueryRow(ctx, resetQuery).Scan(&ignored); err != nil {
				return fmt.Errorf("reset statistics on %s: %w", h.Addr(), err)
			}
			slog.InfoContext(ctx, "statistics reset", "host", h.Addr(), "at", m.now().Format(time.RFC3339))
			return nil
		})
	}
	return g.Wait()
}
