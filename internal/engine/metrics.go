package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedquery_queries_total",
			Help: "Federated queries by outcome",
		},
		[]string{"status"},
	)

	queryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fedquery_query_duration_seconds",
			Help:    "Wall-clock time from query start to the last result",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
	)

	serviceRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedquery_service_requests_total",
			Help: "Service leaf retrievals by outcome",
		},
		[]string{"status"},
	)

	resultsEmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fedquery_results_emitted_total",
			Help: "Solutions delivered to callers",
		},
	)

	workersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fedquery_workers_active",
			Help: "Operator workers currently running",
		},
	)
)
