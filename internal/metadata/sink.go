package metadata

import (
	"context"
	"fmt"

	"github.com/cayleygraph/quad"

	"github.com/roach88/fedquery/internal/querysparql"
	"github.com/roach88/fedquery/internal/sparql"
)

// Sink is a metadata store that accepts triple writes into named graphs.
// store.Store and EndpointSink implement it.
type Sink interface {
	Insert(ctx context.Context, graph string, quads []quad.Quad) error
	DeleteInsert(ctx context.Context, graph string, del, ins []quad.Quad) error
}

// EndpointSink writes metadata to a SPARQL 1.1 update endpoint.
type EndpointSink struct {
	client   sparql.Client
	endpoint string
}

// NewEndpointSink creates a sink sending updates to endpoint.
func NewEndpointSink(client sparql.Client, endpoint string) *EndpointSink {
	return &EndpointSink{client: client, endpoint: endpoint}
}

// Insert sends an INSERT DATA update.
func (s *EndpointSink) Insert(ctx context.Context, graph string, quads []quad.Quad) error {
	if err := s.client.Update(ctx, s.endpoint, querysparql.InsertData(graph, quads)); err != nil {
		return fmt.Errorf("insert into %s: %w", graph, err)
	}
	return nil
}

// DeleteInsert sends a DELETE/INSERT/WHERE update.
func (s *EndpointSink) DeleteInsert(ctx context.Context, graph string, del, ins []quad.Quad) error {
	if err := s.client.Update(ctx, s.endpoint, querysparql.DeleteInsert(graph, del, ins)); err != nil {
		return fmt.Errorf("update %s: %w", graph, err)
	}
	return nil
}
