package decompose

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var decompositionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fedquery_decompositions_total",
		Help: "Query decompositions by outcome",
	},
	[]string{"status"},
)
