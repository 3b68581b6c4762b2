package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	apperrors "github.com/koltyakov/pgindexhealth/internal/errors"
	"github.com/koltyakov/pgindexhealth/internal/pgurl"
)

// Factory opens a Handle for a single host.
type Factory interface {
	Open(ctx context.Context, host pgurl.Host, creds Credentials) (*Handle, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, host pgurl.Host, creds Credentials) (*Handle, error)

// Open implements Factory.
func (f FactoryFunc) Open(ctx context.Context, host pgurl.Host, creds Credentials) (*Handle, error) {
	return f(ctx, host, creds)
}

// PoolFactory opens pgxpool pools. Pools connect lazily, so Open only fails
// on configuration problems.
type PoolFactory struct {
	Options PoolOptions

	// Registerer receives a pool statistics collector per host when set.
	Registerer prometheus.Registerer
}

var _ Factory = (*PoolFactory)(nil)

// NewPoolFactory returns a PoolFactory with the given options.
func NewPoolFactory(opts PoolOptions, reg prometheus.Registerer) (*PoolFactory, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &PoolFactory{Options: opts, Registerer: reg}, nil
}

// Open implements Factory.
func (f *PoolFactory) Open(ctx context.Context, host pgurl.Host, creds Credentials) (*Handle, error) {
	cfg, err := pgxpool.ParseConfig(host.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse config for %s: %w", apperrors.ErrConnectionFailed, host, err)
	}
	cfg.ConnConfig.User = creds.User
	cfg.ConnConfig.Password = creds.Password
	// A single-host URL inherits target_session_attrs from the cluster URL;
	// replicas still have to be reachable so the probe can classify them.
	cfg.ConnConfig.ValidateConnect = nil

	opts := f.Options
	if opts.MaxConns == 0 {
		opts = DefaultPoolOptions()
	}
	cfg.MaxConns = opts.MaxConns
	if opts.ConnectTimeout > 0 {
		cfg.ConnConfig.ConnectTimeout = opts.ConnectTimeout
	}
	const appnameKey = `application_name`
	params := cfg.ConnConfig.RuntimeParams
	if _, ok := params[appnameKey]; !ok && opts.ApplicationName != "" {
		params[appnameKey] = opts.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: create pool for %s: %w", apperrors.ErrConnectionFailed, host, err)
	}

	h := NewHandle(host, pool)
	if f.Registerer != nil {
		c := NewPoolCollector(pool, host.Addr())
		err := f.Registerer.Register(c)
		var are prometheus.AlreadyRegisteredError
		switch {
		case err == nil:
			reg := f.Registerer
			h.release = func() { reg.Unregister(c) }
		case errors.As(err, &are):
			slog.InfoContext(ctx, "pool metrics already registered", "host", host.Addr())
		default:
			slog.WarnContext(ctx, "unable to register pool metrics", "host", host.Addr(), "reason", err)
		}
	}
	return h, nil
}

// PrimaryDeterminer classifies a handle as primary or replica.
type PrimaryDeterminer interface {
	IsPrimary(ctx context.Context, h *Handle) (bool, error)
}

// PrimaryDeterminerFunc adapts a function to PrimaryDeterminer.
type PrimaryDeterminerFunc func(ctx context.Context, h *Handle) (bool, error)

// IsPrimary implements PrimaryDeterminer.
func (f PrimaryDeterminerFunc) IsPrimary(ctx context.Context, h *Handle) (bool, error) {
	return f(ctx, h)
}

const primaryProbe = `select not pg_is_in_recovery()`

// PgPrimaryDeterminer asks the server whether it is in recovery.
type PgPrimaryDeterminer struct{}

var _ PrimaryDeterminer = PgPrimaryDeterminer{}

// IsPrimary implements PrimaryDeterminer.
func (PgPrimaryDeterminer) IsPrimary(ctx context.Context, h *Handle) (bool, error) {
	var primary bool
	if err := h.Pool().QueryRow(ctx, primaryProbe).Scan(&primary); err != nil {
		return false, fmt.Errorf("probe %s: %w", h.Addr(), err)
	}
	return primary, nil
}
