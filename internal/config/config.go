// Package config loads federation definitions written in CUE.
//
// A definition directory holds one or more .cue files of a single package
// declaring federations under the top-level "federation" field:
//
//	federation: lslod: {
//		name: "Life science linked open data"
//		sources: [
//			{id: "drugbank", url: "http://drugbank.example/sparql"},
//			{id: "kegg", url: "http://kegg.example/sparql"},
//		]
//		options: {page_size: 5000, timeout: "30s"}
//	}
//
// Every federation is checked against the embedded schema before it is
// compiled into a Federation.
package config

import (
	"time"

	"github.com/roach88/fedquery/internal/ir"
	"github.com/roach88/fedquery/internal/links"
	"github.com/roach88/fedquery/internal/metadata"
	"github.com/roach88/fedquery/internal/planner"
	"github.com/roach88/fedquery/internal/sparql"
)

// Federation is a compiled federation definition.
type Federation struct {
	ID          string
	Name        string
	Description string
	Sources     []ir.DataSource
	Options     Options
}

// Info returns the federation record stored in the metadata store.
func (f *Federation) Info() ir.Federation {
	return ir.Federation{ID: f.ID, Name: f.Name, Description: f.Description}
}

// Options tune how a federation is queried and described.
type Options struct {
	// PageSize is the initial LIMIT of paginated retrievals.
	PageSize int

	// Timeout bounds every request to a source.
	Timeout time.Duration

	// MaxLinkWorkers caps concurrently explored source pairs.
	MaxLinkWorkers int

	// WriteBatchSize is the largest number of triples per metadata write.
	WriteBatchSize int

	// LinkSampleLimit caps the objects sampled per predicate during link
	// discovery, and LinkBatchSize the IRIs typed per request.
	LinkSampleLimit int
	LinkBatchSize   int

	JoinStrategy planner.Strategy
}

// DefaultOptions returns the options used for fields a definition omits.
func DefaultOptions() Options {
	return Options{
		PageSize:        sparql.DefaultPageSize,
		Timeout:         sparql.DefaultTimeout,
		MaxLinkWorkers:  links.DefaultWorkers,
		WriteBatchSize:  metadata.DefaultBatchSize,
		LinkSampleLimit: links.DefaultSampleLimit,
		LinkBatchSize:   links.DefaultBatchSize,
		JoinStrategy:    planner.StrategyBushy,
	}
}
