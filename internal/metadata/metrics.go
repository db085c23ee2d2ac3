package metadata

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	writesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedquery_metadata_writes_total",
			Help: "Metadata write calls by operation and outcome",
		},
		[]string{"op", "status"},
	)

	samplingFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fedquery_metadata_sampling_fallbacks_total",
			Help: "Predicate discoveries answered by sampling a random instance",
		},
	)

	moleculesDiscovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fedquery_metadata_molecules_discovered_total",
			Help: "Molecule templates described from data sources",
		},
	)
)
