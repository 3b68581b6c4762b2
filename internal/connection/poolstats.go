package connection

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	_ prometheus.Collector = (*PoolCollector)(nil)
	_ poolStat             = (*pgxpool.Stat)(nil)
)

// poolStat is the interface implemented by pgxpool.Stat.
type poolStat interface {
	AcquireCount() int64
	AcquireDuration() time.Duration
	AcquiredConns() int32
	CanceledAcquireCount() int64
	EmptyAcquireCount() int64
	IdleConns() int32
	MaxConns() int32
	TotalConns() int32
}

// Stater is implemented by *pgxpool.Pool.
type Stater interface {
	Stat() *pgxpool.Stat
}

// PoolCollector exports pgxpool statistics for one cluster host.
type PoolCollector struct {
	host string
	stat func() poolStat

	acquireCount         *prometheus.Desc
	acquireDuration      *prometheus.Desc
	acquiredConns        *prometheus.Desc
	canceledAcquireCount *prometheus.Desc
	emptyAcquireCount    *prometheus.Desc
	idleConns            *prometheus.Desc
	maxConns             *prometheus.Desc
	totalConns           *prometheus.Desc
}

// NewPoolCollector returns a collector for the pool of host.
func NewPoolCollector(s Stater, host string) *PoolCollector {
	return newPoolCollector(func() poolStat { return s.Stat() }, host)
}

func newPoolCollector(fn func() poolStat, host string) *PoolCollector {
	labels := prometheus.Labels{"host": host}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("pgindexhealth_pool_"+name, help, nil, labels)
	}
	return &PoolCollector{
		host:                 host,
		stat:                 fn,
		acquireCount:         desc("acquire_count", "Cumulative count of successful acquires from the pool."),
		acquireDuration:      desc("acquire_duration_seconds_total", "Total duration of all successful acquires from the pool."),
		acquiredConns:        desc("acquired_conns", "Number of currently acquired connections in the pool."),
		canceledAcquireCount: desc("canceled_acquire_count", "Cumulative count of acquires canceled by a context."),
		emptyAcquireCount:    desc("empty_acquire_count", "Cumulative count of acquires that waited for a free connection."),
		idleConns:            desc("idle_conns", "Number of currently idle connections in the pool."),
		maxConns:             desc("max_conns", "Maximum size of the pool."),
		totalConns:           desc("total_conns", "Total number of connections currently in the pool."),
	}
}

// Describe implements prometheus.Collector.
func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

// Collect implements prometheus.Collector.
func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stat()
	ch <- prometheus.MustNewConstMetric(c.acquireCount, prometheus.CounterValue, float64(s.AcquireCount()))
	ch <- prometheus.MustNewConstMetric(c.acquireDuration, prometheus.CounterValue, s.AcquireDuration().Seconds())
	ch <- prometheus.MustNewConstMetric(c.acquiredConns, prometheus.GaugeValue, float64(s.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(c.canceledAcquireCount, prometheus.CounterValue, float64(s.CanceledAcquireCount()))
	ch <- prometheus.MustNewConstMetric(c.emptyAcquireCount, prometheus.CounterValue, float64(s.EmptyAcquireCount()))
	ch <- prometheus.MustNewConstMetric(c.idleConns, prometheus.GaugeValue, float64(s.IdleConns()))
	ch <- prometheus.MustNewConstMetric(c.maxConns, prometheus.GaugeValue, float64(s.MaxConns()))
	ch <- prometheus.MustNewConstMetric(c.totalConns, prometheus.GaugeValue, float64(s.TotalConns()))
}
