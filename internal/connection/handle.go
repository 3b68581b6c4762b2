package connection

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/koltyakov/pgindexhealth/internal/pgurl"
)

// Pool is the subset of *pgxpool.Pool the rest of the module uses.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Handle owns the pool for one host. Two handles are equal when they point at
// the same host:port.
type Handle struct {
	host pgurl.Host
	pool Pool

	// release runs after the pool is closed.
	release   func()
	closeOnce sync.Once
}

// NewHandle pairs a host with its pool.
func NewHandle(host pgurl.Host, pool Pool) *Handle {
	return &Handle{host: host, pool: pool}
}

// Host returns the host descriptor.
func (h *Handle) Host() pgurl.Host { return h.host }

// Pool returns the underlying pool.
func (h *Handle) Pool() Pool { return h.pool }

// Addr returns the host identity.
func (h *Handle) Addr() string { return h.host.Addr() }

// Equal reports whether h and o refer to the same host.
func (h *Handle) Equal(o *Handle) bool {
	if h == nil || o == nil {
		return h == o
	}
	return h.Addr() == o.Addr()
}

// Close releases the pool and unregisters its metrics. It is safe to call
// more than once.
func (h *Handle) Close() {
	h.closeOnce.Do(func() {
		if h.pool != nil {
			h.pool.Close()
		}
		if h.release != nil {
			h.release()
		}
	})
}

func (h *Handle) String() string { return h.Addr() }
