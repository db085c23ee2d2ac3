package metadata

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cayleygraph/quad"
)

// DefaultBatchSize is the largest number of triples sent in one write.
const DefaultBatchSize = 49

// Batches returns the number of write calls needed for n triples.
func Batches(n, size int) int {
	if n <= 0 {
		return 0
	}
	return (n + size - 1) / size
}

// BatchWriter splits metadata writes into sequential calls of at most Size
// triples each.
//
// Thread-safety: calls are serialized by an internal mutex, so concurrent
// discoverers sharing one writer never interleave batches.
type BatchWriter struct {
	sink   Sink
	size   int
	logger *slog.Logger

	mu sync.Mutex
}

// NewBatchWriter creates a writer. A non-positive size means
// DefaultBatchSize; a nil logger means slog.Default().
func NewBatchWriter(sink Sink, size int, logger *slog.Logger) *BatchWriter {
	if size <= 0 {
		size = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchWriter{sink: sink, size: size, logger: logger}
}

// Size returns the batch size.
func (w *BatchWriter) Size() int {
	return w.size
}

// Write inserts quads into graph in Batches(len(quads), Size()) calls.
// The first failing batch stops the write; earlier batches stay written.
func (w *BatchWriter) Write(ctx context.Context, graph string, quads []quad.Quad) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.insert(ctx, graph, quads)
}

func (w *BatchWriter) insert(ctx context.Context, graph string, quads []quad.Quad) error {
	total := Batches(len(quads), w.size)
	for i := 0; i < total; i++ {
		start := i * w.size
		end := min(start+w.size, len(quads))
		if err := w.sink.Insert(ctx, graph, quads[start:end]); err != nil {
			writesTotal.WithLabelValues("insert", "error").Inc()
			w.logger.Error("metadata write failed",
				"graph", graph,
				"batch", i+1,
				"batches", total,
				"error", err)
			return fmt.Errorf("write batch %d/%d: %w", i+1, total, err)
		}
		writesTotal.WithLabelValues("insert", "ok").Inc()
	}
	return nil
}

// Update deletes del and inserts ins. When both fit in one batch they are
// sent as a single delete/insert call; otherwise deletes go first in
// batches, followed by batched inserts.
func (w *BatchWriter) Update(ctx context.Context, graph string, del, ins []quad.Quad) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(del)+len(ins) <= w.size {
		if err := w.sink.DeleteInsert(ctx, graph, del, ins); err != nil {
			writesTotal.WithLabelValues("update", "error").Inc()
			w.logger.Error("metadata update failed", "graph", graph, "error", err)
			return fmt.Errorf("update: %w", err)
		}
		writesTotal.WithLabelValues("update", "ok").Inc()
		return nil
	}

	total := Batches(len(del), w.size)
	for i := 0; i < total; i++ {
		start := i * w.size
		end := min(start+w.size, len(del))
		if err := w.sink.DeleteInsert(ctx, graph, del[start:end], nil); err != nil {
			writesTotal.WithLabelValues("update", "error").Inc()
			w.logger.Error("metadata delete failed",
				"graph", graph,
				"batch", i+1,
				"batches", total,
				"error", err)
			return fmt.Errorf("delete batch %d/%d: %w", i+1, total, err)
		}
		writesTotal.WithLabelValues("update", "ok").Inc()
	}
	return w.insert(ctx, graph, ins)
}
