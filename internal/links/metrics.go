package links

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pairsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedquery_links_pairs_total",
			Help: "Source pairs explored by link discovery, by outcome",
		},
		[]string{"status"},
	)

	linksFound = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fedquery_links_found_total",
			Help: "Distinct interlinks discovered",
		},
	)

	pairsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fedquery_links_pairs_in_flight",
			Help: "Pair workers currently running",
		},
	)
)
