package connection

import (
	"context"
	"fmt"
	"log/slog"

	apperrors "github.com/koltyakov/pgindexhealth/internal/errors"
	"github.com/koltyakov/pgindexhealth/internal/pgurl"
)

// Cluster is the topology of one session: the primary handle plus every host
// handle, primary included. It is read-only after NewCluster returns.
type Cluster struct {
	primary *Handle
	hosts   []*Handle
}

// NewCluster parses every URL in creds, opens one handle per distinct host
// and probes them in discovery order. The first host that reports itself as
// primary wins; later hosts are not checked for a second primary.
//
// If no host is primary, every opened handle is closed and a
// *errors.TopologyError naming all attempted hosts is returned.
func NewCluster(ctx context.Context, creds Credentials, factory Factory, determiner PrimaryDeterminer) (*Cluster, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	hosts, err := discover(creds.URLs)
	if err != nil {
		return nil, err
	}

	handles := make([]*Handle, 0, len(hosts))
	closeAll := func() {
		for _, h := range handles {
			h.Close()
		}
	}
	for _, host := range hosts {
		h, err := factory.Open(ctx, host, creds)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("open %s: %w", host, err)
		}
		handles = append(handles, h)
	}

	var probeErrs []error
	for _, h := range handles {
		ok, err := determiner.IsPrimary(ctx, h)
		if err != nil {
			slog.WarnContext(ctx, "primary probe failed", "host", h.Addr(), "reason", err)
			probeErrs = append(probeErrs, err)
			continue
		}
		if ok {
			slog.InfoContext(ctx, "primary found", "host", h.Addr(), "hosts", len(handles))
			return &Cluster{primary: h, hosts: handles}, nil
		}
		slog.DebugContext(ctx, "host is a replica", "host", h.Addr())
	}

	closeAll()
	addrs := make([]string, len(hosts))
	for i, h := range hosts {
		addrs[i] = h.Addr()
	}
	return nil, apperrors.NewTopologyError(addrs, probeErrs)
}

// discover returns the distinct hosts of all urls, first occurrence wins.
func discover(urls []string) ([]pgurl.Host, error) {
	seen := make(map[string]struct{})
	var out []pgurl.Host
	for _, u := range urls {
		hosts, err := pgurl.ParseHosts(u)
		if err != nil {
			return nil, err
		}
		for _, h := range hosts {
			if _, ok := seen[h.Addr()]; ok {
				continue
			}
			seen[h.Addr()] = struct{}{}
			out = append(out, h)
		}
	}
	return out, nil
}

// Primary returns the designated primary handle.
func (c *Cluster) Primary() *Handle { return c.primary }

// Hosts returns every handle in discovery order, primary included.
func (c *Cluster) Hosts() []*Handle {
	out := make([]*Handle, len(c.hosts))
	copy(out, c.hosts)
	return out
}

// Addrs returns the host:port of every handle in discovery order.
func (c *Cluster) Addrs() []string {
	out := make([]string, len(c.hosts))
	for i, h := range c.hosts {
		out[i] = h.Addr()
	}
	return out
}

// Close releases every pool.
func (c *Cluster) Close() {
	for _, h := range c.hosts {
		h.Close()
	}
}
