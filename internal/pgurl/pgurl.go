// Package pgurl splits multi-host PostgreSQL connection URLs into per-host
// descriptors.
//
// A cluster URL has the form
//
//	postgres://host1:port1,host2:port2,.../database?params
//
// Every comma-separated host before the first "/" is a cluster member. Each
// member gets a synthesized single-host URL that carries the original path and
// query unchanged. Credentials are supplied separately, so any "user:pass@"
// userinfo in the host list is dropped.
package pgurl

import (
	"errors"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/koltyakov/pgindexhealth/internal/errors"
)

// DefaultPort is used for hosts listed without an explicit port.
const DefaultPort = 5432

const schemeSep = "://"

// Host describes one cluster member. Two Hosts are the same member when their
// Addr values match; URL is informational.
type Host struct {
	Name string // lowercased host name or IP literal
	Port int
	URL  string // single-host URL with the original path and query
}

// Addr returns the normalized "host:port" identity of h.
func (h Host) Addr() string {
	return net.JoinHostPort(h.Name, strconv.Itoa(h.Port))
}

// String implements fmt.Stringer.
func (h Host) String() string {
	return h.Addr()
}

// ParseHosts returns one Host per distinct host:port found in rawURL, sorted
// by Addr so that permuted inputs yield identical results.
func ParseHosts(rawURL string) ([]Host, error) {
	p, err := split(rawURL)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(p.hosts))
	out := make([]Host, 0, len(p.hosts))
	for _, entry := range p.hosts {
		name, port, err := splitHostPort(entry)
		if err != nil {
			return nil, apperrors.NewValidationError("url", redact(rawURL), err.Error())
		}
		h := Host{Name: name, Port: port}
		addr := h.Addr()
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		h.URL = p.scheme + schemeSep + addr + p.tail
		out = append(out, h)
	}
	if len(out) == 0 {
		return nil, apperrors.NewValidationError("url", redact(rawURL), "no hosts found")
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Addr() < out[j].Addr() })
	return out, nil
}

// IsReplicaURL reports whether rawURL explicitly asks for a standby via
// target_session_attrs.
func IsReplicaURL(rawURL string) (bool, error) {
	p, err := split(rawURL)
	if err != nil {
		return false, err
	}
	q, err := p.query()
	if err != nil {
		return false, apperrors.NewValidationError("url", redact(rawURL), "malformed query: "+err.Error())
	}
	switch strings.ToLower(q.Get("target_session_attrs")) {
	case "standby", "read-only", "prefer-standby":
		return true, nil
	}
	return false, nil
}

// Database returns the database name in the path of rawURL.
func Database(rawURL string) (string, error) {
	p, err := split(rawURL)
	if err != nil {
		return "", err
	}
	return p.database(), nil
}

// DefaultPrimaryParams are added by BuildCommonURLToPrimary unless overridden.
var DefaultPrimaryParams = map[string]string{
	"target_session_attrs": "read-write",
	"connect_timeout":      "1",
}

// BuildCommonURLToPrimary joins the hosts of every URL into a single
// multi-host URL that lets the driver pick the writable member. The database
// name is taken from the first URL; params override DefaultPrimaryParams.
func BuildCommonURLToPrimary(urls []string, params map[string]string) (string, error) {
	if len(urls) == 0 {
		return "", apperrors.NewValidationError("urls", "", "at least one url is required")
	}
	first, err := split(urls[0])
	if err != nil {
		return "", err
	}
	db := first.database()
	if db == "" {
		return "", apperrors.NewValidationError("url", redact(urls[0]), "database name is missing")
	}

	var addrs []string
	seen := make(map[string]struct{})
	for _, u := range urls {
		hosts, err := ParseHosts(u)
		if err != nil {
			return "", err
		}
		for _, h := range hosts {
			if _, ok := seen[h.Addr()]; ok {
				continue
			}
			seen[h.Addr()] = struct{}{}
			addrs = append(addrs, h.Addr())
		}
	}
	sort.Strings(addrs)

	merged := url.Values{}
	for k, v := range DefaultPrimaryParams {
		merged.Set(k, v)
	}
	for k, v := range params {
		merged.Set(k, v)
	}
	return first.scheme + schemeSep + strings.Join(addrs, ",") + "/" + db + "?" + merged.Encode(), nil
}

type parts struct {
	scheme string
	hosts  []string
	tail   string // "/database?params"
}

func (p parts) database() string {
	db, _, _ := strings.Cut(strings.TrimPrefix(p.tail, "/"), "?")
	return db
}

func (p parts) query() (url.Values, error) {
	_, q, ok := strings.Cut(p.tail, "?")
	if !ok {
		return url.Values{}, nil
	}
	return url.ParseQuery(q)
}

func split(rawURL string) (parts, error) {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return parts{}, apperrors.NewValidationError("url", "", "cannot be blank")
	}
	idx := strings.Index(raw, schemeSep)
	if idx <= 0 {
		return parts{}, apperrors.NewValidationError("url", redact(raw), "missing scheme prefix")
	}
	scheme := strings.ToLower(raw[:idx])
	switch scheme {
	case "postgres", "postgresql":
	default:
		return parts{}, apperrors.NewValidationError("url", redact(raw), "unsupported scheme "+scheme)
	}

	rest := raw[idx+len(schemeSep):]
	start, slash := authority(rest)
	if slash < 0 {
		return parts{}, apperrors.NewValidationError("url", redact(raw), "missing database path")
	}
	hostList := rest[start:slash]

	var hosts []string
	for _, h := range strings.Split(hostList, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return parts{scheme: scheme, hosts: hosts, tail: rest[slash:]}, nil
}

func splitHostPort(entry string) (string, int, error) {
	host, portStr := entry, ""
	switch {
	case strings.HasPrefix(entry, "["):
		if strings.Contains(entry, "]:") {
			h, p, err := net.SplitHostPort(entry)
			if err != nil {
				return "", 0, err
			}
			host, portStr = h, p
		} else {
			host = strings.TrimSuffix(strings.TrimPrefix(entry, "["), "]")
		}
	case strings.Count(entry, ":") == 1:
		host, portStr, _ = strings.Cut(entry, ":")
	}

	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return "", 0, errors.New("host name cannot be blank in " + strconv.Quote(entry))
	}
	if portStr == "" {
		return host, DefaultPort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, errors.New("port must be a number in the range from 1 to 65535 in " + strconv.Quote(entry))
	}
	return host, port, nil
}

// authority returns where the host list starts in rest, just past any
// userinfo, and the offset of the '/' that ends it (-1 when there is none).
// Userinfo runs to the last '@' before the query, so an unescaped '/' in a
// password stays out of the host list.
func authority(rest string) (start, slash int) {
	q := strings.IndexByte(rest, '?')
	if q < 0 {
		q = len(rest)
	}
	start = strings.LastIndexByte(rest[:q], '@') + 1
	slash = strings.IndexByte(rest[start:], '/')
	if slash >= 0 {
		slash += start
	}
	return start, slash
}

// redact drops userinfo so that passwords never end up in error messages.
func redact(raw string) string {
	idx := strings.Index(raw, schemeSep)
	if idx < 0 {
		return raw
	}
	rest := raw[idx+len(schemeSep):]
	if start, _ := authority(rest); start > 0 {
		return raw[:idx+len(schemeSep)] + rest[start:]
	}
	return raw
}
