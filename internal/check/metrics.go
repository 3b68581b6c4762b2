package check

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var (
	queryCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pgindexhealth",
			Subsystem: "check",
			Name:      "query_total",
			Help:      "Total number of diagnostic queries dispatched.",
		},
		[]string{"diagnostic", "host", "success"},
	)
	queryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pgindexhealth",
			Subsystem: "check",
			Name:      "query_duration_seconds",
			Help:      "The duration of diagnostic queries, including row mapping.",
		},
		[]string{"diagnostic", "host", "success"},
	)
)

var tracer = otel.Tracer("github.com/koltyakov/pgindexhealth/internal/check")
