// Package connection opens one pooled connection per cluster host and finds
// the primary among them.
//
// The package covers:
//   - Credentials and pool options supplied by the hosting process
//   - Connection handles that pair a host descriptor with its pool
//   - Primary detection via pg_is_in_recovery()
//   - Cluster topology construction over one or more multi-host URLs
//   - Prometheus collection of per-host pool statistics
package connection

import (
	"sort"
	"strings"
	"time"

	apperrors "github.com/koltyakov/pgindexhealth/internal/errors"
	"github.com/koltyakov/pgindexhealth/internal/pgurl"
)

// Default pool values.
const (
	// DefaultMaxConns is the number of concurrent statements per host.
	DefaultMaxConns = 1

	// DefaultApplicationName is reported to the server unless the URL sets one.
	DefaultApplicationName = "pgindexhealth"

	// DefaultConnectTimeout bounds a single connection attempt.
	DefaultConnectTimeout = 5 * time.Second
)

// Credentials holds the cluster URLs and the login used for every host.
type Credentials struct {
	// URLs are multi-host connection strings.
	// Format: postgres://host1:5432,host2:5432/database?sslmode=require
	URLs []string `json:"urls" yaml:"urls"`

	// User is the database role used on every host.
	User string `json:"user" yaml:"user"`

	// Password for User. Never logged.
	Password string `json:"-" yaml:"password"`
}

// NewCredentials validates the input and returns Credentials whose URLs are
// trimmed, deduplicated and sorted.
func NewCredentials(user, password string, urls ...string) (Credentials, error) {
	c := Credentials{User: user, Password: password, URLs: normalizeURLs(urls)}
	if err := c.Validate(); err != nil {
		return Credentials{}, err
	}
	return c, nil
}

// Validate checks that the credentials are usable.
func (c Credentials) Validate() error {
	if len(c.URLs) == 0 {
		return apperrors.NewValidationError("urls", "", "at least one connection url is required")
	}
	for _, u := range c.URLs {
		if strings.TrimSpace(u) == "" {
			return apperrors.NewValidationError("urls", "", "connection url cannot be blank")
		}
		if _, err := pgurl.ParseHosts(u); err != nil {
			return err
		}
	}
	if strings.TrimSpace(c.User) == "" {
		return apperrors.NewValidationError("user", "", "cannot be blank")
	}
	if strings.TrimSpace(c.Password) == "" {
		return apperrors.NewValidationError("password", "", "cannot be blank")
	}
	return nil
}

func normalizeURLs(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// PoolOptions tunes the pool opened for each host.
type PoolOptions struct {
	// MaxConns caps concurrent statements per host. Excess callers wait for
	// a free slot.
	MaxConns int32 `json:"max_conns" yaml:"max_conns"`

	// ApplicationName is sent as application_name when the URL has none.
	ApplicationName string `json:"application_name" yaml:"application_name"`

	// ConnectTimeout bounds each connection attempt.
	ConnectTimeout time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
}

// DefaultPoolOptions returns the options used when none are given.
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxConns:        DefaultMaxConns,
		ApplicationName: DefaultApplicationName,
		ConnectTimeout:  DefaultConnectTimeout,
	}
}

// Validate checks that the options are in range.
func (o PoolOptions) Validate() error {
	if o.MaxConns < 1 {
		return apperrors.NewValidationError("max_conns", "", "must be at least 1")
	}
	if o.ConnectTimeout < 0 {
		return apperrors.NewValidationError("connect_timeout", o.ConnectTimeout.String(), "cannot be negative")
	}
	return nil
}
