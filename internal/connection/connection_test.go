package connection

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/koltyakov/pgindexhealth/internal/connection/conntest"
	apperrors "github.com/koltyakov/pgindexhealth/internal/errors"
	"github.com/koltyakov/pgindexhealth/internal/pgurl"
)

// fakeFactory opens conntest pools and remembers them by address.
type fakeFactory struct {
	mu    sync.Mutex
	pools map[string]*conntest.Pool
	order []string
	fail  map[string]error
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{pools: map[string]*conntest.Pool{}, fail: map[string]error{}}
}

func (f *fakeFactory) Open(_ context.Context, host pgurl.Host, _ Credentials) (*Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[host.Addr()]; err != nil {
		return nil, err
	}
	p := conntest.NewPool(conntest.Static(nil))
	f.pools[host.Addr()] = p
	f.order = append(f.order, host.Addr())
	return NewHandle(host, p), nil
}

// primaries returns a determiner that reports the given addresses as primary.
func primaries(addrs ...string) PrimaryDeterminerFunc {
	set := map[string]bool{}
	for _, a := range addrs {
		set[a] = true
	}
	return func(_ context.Context, h *Handle) (bool, error) {
		return set[h.Addr()], nil
	}
}

func mustCreds(t *testing.T, urls ...string) Credentials {
	t.Helper()
	c, err := NewCredentials("postgres", "secret", urls...)
	if err != nil {
		t.Fatalf("NewCredentials: %v", err)
	}
	return c
}

func TestCredentialsValidate(t *testing.T) {
	tests := []struct {
		name    string
		creds   Credentials
		wantErr bool
	}{
		{"valid", Credentials{URLs: []string{"postgres://h:5432/db"}, User: "u", Password: "p"}, false},
		{"no urls", Credentials{User: "u", Password: "p"}, true},
		{"blank url", Credentials{URLs: []string{" "}, User: "u", Password: "p"}, true},
		{"bad url", Credentials{URLs: []string{"h:5432/db"}, User: "u", Password: "p"}, true},
		{"blank user", Credentials{URLs: []string{"postgres://h:5432/db"}, User: " ", Password: "p"}, true},
		{"blank password", Credentials{URLs: []string{"postgres://h:5432/db"}, User: "u"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.creds.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, apperrors.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestNewCredentialsNormalizesURLs(t *testing.T) {
	c := mustCreds(t, " postgres://b:1/db", "postgres://a:1/db", "", "postgres://b:1/db")
	want := []string{"postgres://a:1/db", "postgres://b:1/db"}
	if !cmp.Equal(c.URLs, want) {
		t.Error(cmp.Diff(c.URLs, want))
	}
}

func TestPoolOptionsValidate(t *testing.T) {
	if err := DefaultPoolOptions().Validate(); err != nil {
		t.Errorf("default options invalid: %v", err)
	}
	if err := (PoolOptions{MaxConns: 0}).Validate(); !errors.Is(err, apperrors.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for zero MaxConns, got %v", err)
	}
	if err := (PoolOptions{MaxConns: 1, ConnectTimeout: -time.Second}).Validate(); err == nil {
		t.Error("expected error for negative timeout")
	}
}

func TestHandleEqualAndClose(t *testing.T) {
	p := conntest.NewPool(conntest.Static(nil))
	a := NewHandle(pgurl.Host{Name: "h", Port: 5432, URL: "postgres://h:5432/a"}, p)
	b := NewHandle(pgurl.Host{Name: "h", Port: 5432, URL: "postgres://h:5432/b"}, conntest.NewPool(conntest.Static(nil)))
	c := NewHandle(pgurl.Host{Name: "h", Port: 5433}, nil)

	if !a.Equal(b) {
		t.Error("handles to the same host:port should be equal")
	}
	if a.Equal(c) {
		t.Error("handles to different ports should differ")
	}

	a.Close()
	a.Close()
	if p.Closed() != 1 {
		t.Errorf("expected pool closed once, got %d", p.Closed())
	}
	c.Close() // nil pool must not panic
}

func TestNewClusterDedupAcrossURLs(t *testing.T) {
	f := newFakeFactory()
	creds := mustCreds(t,
		"postgres://host-b:5432,host-a:5432/db",
		"postgres://host-c:5432,host-b:5432/db",
	)

	cl, err := NewCluster(context.Background(), creds, f, primaries("host-b:5432"))
	if err != nil {
		t.Fatal(err)
	}
	defer cl.Close()

	want := []string{"host-a:5432", "host-b:5432", "host-c:5432"}
	if !cmp.Equal(cl.Addrs(), want) {
		t.Error(cmp.Diff(cl.Addrs(), want))
	}
	if !cmp.Equal(f.order, want) {
		t.Errorf("expected one open per distinct host: %s", cmp.Diff(f.order, want))
	}
	if cl.Primary().Addr() != "host-b:5432" {
		t.Errorf("primary = %s, expected host-b:5432", cl.Primary().Addr())
	}
	found := false
	for _, h := range cl.Hosts() {
		if h.Equal(cl.Primary()) {
			found = true
		}
	}
	if !found {
		t.Error("primary should be part of Hosts()")
	}
}

func TestNewClusterOrderIndependent(t *testing.T) {
	a, err := NewCluster(context.Background(), mustCreds(t, "postgres://host-b:1,host-a:1/db"), newFakeFactory(), primaries("host-a:1"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewCluster(context.Background(), mustCreds(t, "postgres://host-a:1,host-b:1/db"), newFakeFactory(), primaries("host-a:1"))
	if err != nil {
		t.Fatal(err)
	}
	if !cmp.Equal(a.Addrs(), b.Addrs()) {
		t.Error(cmp.Diff(a.Addrs(), b.Addrs()))
	}
}

func TestNewClusterSplitBrainFirstWins(t *testing.T) {
	var probed []string
	det := PrimaryDeterminerFunc(func(_ context.Context, h *Handle) (bool, error) {
		probed = append(probed, h.Addr())
		return true, nil
	})
	cl, err := NewCluster(context.Background(), mustCreds(t, "postgres://h2:5432,h1:5432/db"), newFakeFactory(), det)
	if err != nil {
		t.Fatal(err)
	}
	if cl.Primary().Addr() != "h1:5432" {
		t.Errorf("primary = %s, expected earliest discovered h1:5432", cl.Primary().Addr())
	}
	if len(probed) != 1 {
		t.Errorf("probing should stop at the first primary, probed %v", probed)
	}
}

func TestNewClusterNoPrimary(t *testing.T) {
	f := newFakeFactory()
	probeErr := errors.New("connection refused")
	det := PrimaryDeterminerFunc(func(_ context.Context, h *Handle) (bool, error) {
		if h.Addr() == "h2:5432" {
			return false, probeErr
		}
		return false, nil
	})

	cl, err := NewCluster(context.Background(), mustCreds(t, "postgres://h1:5432,h2:5432,h3:5432/db"), f, det)
	if cl != nil {
		t.Error("expected no cluster")
	}
	if !errors.Is(err, apperrors.ErrNoPrimary) {
		t.Fatalf("expected ErrNoPrimary, got %v", err)
	}
	var te *apperrors.TopologyError
	if !errors.As(err, &te) {
		t.Fatalf("expected TopologyError, got %T", err)
	}
	want := []string{"h1:5432", "h2:5432", "h3:5432"}
	if !cmp.Equal(te.Hosts, want) {
		t.Error(cmp.Diff(te.Hosts, want))
	}
	if len(te.Probes) != 1 || !errors.Is(te.Probes[0], probeErr) {
		t.Errorf("expected probe error to be recorded, got %v", te.Probes)
	}
	for addr, p := range f.pools {
		if p.Closed() != 1 {
			t.Errorf("pool for %s closed %d times, expected 1", addr, p.Closed())
		}
	}
}

func TestNewClusterOpenFailureClosesOpened(t *testing.T) {
	f := newFakeFactory()
	f.fail["h2:5432"] = errors.New("bad config")

	_, err := NewCluster(context.Background(), mustCreds(t, "postgres://h1:5432,h2:5432/db"), f, primaries("h1:5432"))
	if err == nil || !strings.Contains(err.Error(), "h2:5432") {
		t.Fatalf("expected open error naming h2:5432, got %v", err)
	}
	if f.pools["h1:5432"].Closed() != 1 {
		t.Error("already opened pool should be closed")
	}
}

func TestNewClusterInvalidCredentials(t *testing.T) {
	_, err := NewCluster(context.Background(), Credentials{}, newFakeFactory(), primaries())
	if !errors.Is(err, apperrors.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestPgPrimaryDeterminer(t *testing.T) {
	tests := []struct {
		name    string
		handler conntest.Handler
		want    bool
		wantErr bool
	}{
		{"primary", conntest.Static([]string{"?column?"}, []any{true}), true, false},
		{"replica", conntest.Static([]string{"?column?"}, []any{false}), false, false},
		{"failure", conntest.Failing(errors.New("dial tcp: refused")), false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := conntest.NewPool(tt.handler)
			h := NewHandle(pgurl.Host{Name: "h", Port: 5432}, p)
			got, err := PgPrimaryDeterminer{}.IsPrimary(context.Background(), h)
			if (err != nil) != tt.wantErr {
				t.Fatalf("IsPrimary() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("IsPrimary() = %v, want %v", got, tt.want)
			}
			if calls := p.Calls(); len(calls) != 1 || calls[0].SQL != primaryProbe {
				t.Errorf("unexpected calls %v", calls)
			}
		})
	}
}

func TestPoolFactoryOpen(t *testing.T) {
	reg := prometheus.NewRegistry()
	f, err := NewPoolFactory(DefaultPoolOptions(), reg)
	if err != nil {
		t.Fatal(err)
	}
	host := pgurl.Host{Name: "localhost", Port: 5432, URL: "postgres://localhost:5432/db?target_session_attrs=read-write"}

	h, err := f.Open(context.Background(), host, Credentials{User: "u", Password: "p"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h.Close()

	if h.Addr() != "localhost:5432" {
		t.Errorf("Addr() = %s", h.Addr())
	}
	if n, err := testutil.GatherAndCount(reg); err != nil || n != 8 {
		t.Errorf("expected 8 pool metrics, got %d (%v)", n, err)
	}
}

func TestPoolFactoryCloseUnregisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	f, err := NewPoolFactory(DefaultPoolOptions(), reg)
	if err != nil {
		t.Fatal(err)
	}
	host := pgurl.Host{Name: "localhost", Port: 5432, URL: "postgres://localhost:5432/db"}

	for i := range 2 {
		h, err := f.Open(context.Background(), host, Credentials{User: "u", Password: "p"})
		if err != nil {
			t.Fatalf("Open #%d: %v", i, err)
		}
		if n, err := testutil.GatherAndCount(reg); err != nil || n != 8 {
			t.Errorf("open #%d: expected 8 pool metrics, got %d (%v)", i, n, err)
		}
		h.Close()
		h.Close()
		if n, err := testutil.GatherAndCount(reg); err != nil || n != 0 {
			t.Errorf("close #%d: expected no pool metrics, got %d (%v)", i, n, err)
		}
	}
}

func TestPoolFactoryOpenInvalidURL(t *testing.T) {
	f := &PoolFactory{Options: DefaultPoolOptions()}
	_, err := f.Open(context.Background(), pgurl.Host{Name: "h", Port: 1, URL: "postgres://h:1/db?sslmode=bogus"}, Credentials{})
	if !errors.Is(err, apperrors.ErrConnectionFailed) {
		t.Errorf("expected ErrConnectionFailed, got %v", err)
	}
}

type statMock struct{ max int32 }

func (statMock) AcquireCount() int64            { return 3 }
func (statMock) AcquireDuration() time.Duration { return 2 * time.Second }
func (statMock) AcquiredConns() int32           { return 1 }
func (statMock) CanceledAcquireCount() int64    { return 0 }
func (statMock) EmptyAcquireCount() int64       { return 1 }
func (statMock) IdleConns() int32               { return 0 }
func (s statMock) MaxConns() int32              { return s.max }
func (statMock) TotalConns() int32              { return 1 }

func TestPoolCollector(t *testing.T) {
	c := newPoolCollector(func() poolStat { return statMock{max: 4} }, "h:5432")
	if n := testutil.CollectAndCount(c); n != 8 {
		t.Errorf("expected 8 metrics, got %d", n)
	}
	expected := `
# HELP pgindexhealth_pool_max_conns Maximum size of the pool.
# TYPE pgindexhealth_pool_max_conns gauge
pgindexhealth_pool_max_conns{host="h:5432"} 4
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected), "pgindexhealth_pool_max_conns"); err != nil {
		t.Error(err)
	}
}
