package sparql

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedquery_sparql_requests_total",
			Help: "SPARQL protocol requests by operation and outcome",
		},
		[]string{"op", "status"},
	)

	pageDegradations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fedquery_sparql_page_degradations_total",
			Help: "Times a paginated query halved its page size after an error",
		},
	)

	paginationOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedquery_sparql_pagination_total",
			Help: "Paginated retrievals by final status",
		},
		[]string{"status"},
	)
)
