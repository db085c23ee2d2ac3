package engine

import (
	"context"
	"sort"
	"sync"
)

// workerHandle is one outstanding worker of an execution.
type workerHandle struct {
	seq    int64
	name   string
	cancel context.CancelFunc
}

// registry tracks the workers of one execution so they can be cancelled
// together and awaited.
type registry struct {
	clock *Clock

	mu      sync.Mutex
	workers map[int64]workerHandle
	wg      sync.WaitGroup
}

func newRegistry() *registry {
	return &registry{clock: NewClock(), workers: make(map[int64]workerHandle)}
}

// start runs fn on a new goroutine under its own cancellable context.
func (r *registry) start(ctx context.Context, name string, fn func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(ctx)
	h := workerHandle{seq: r.clock.Next(), name: name, cancel: cancel}

	r.mu.Lock()
	r.workers[h.seq] = h
	r.mu.Unlock()

	r.wg.Add(1)
	workersActive.Inc()
	go func() {
		defer r.wg.Done()
		defer workersActive.Dec()
		defer r.finish(h)
		fn(ctx)
	}()
}

func (r *registry) finish(h workerHandle) {
	h.cancel()
	r.mu.Lock()
	delete(r.workers, h.seq)
	r.mu.Unlock()
}

// cancelAll cancels every outstanding worker and returns how many there were.
func (r *registry) cancelAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range r.workers {
		h.cancel()
	}
	return len(r.workers)
}

// outstanding returns the names of running workers in start order.
func (r *registry) outstanding() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	handles := make([]workerHandle, 0, len(r.workers))
	for _, h := range r.workers {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i].seq < handles[j].seq })
	out := make([]string, len(handles))
	for i, h := range handles {
		out[i] = h.name
	}
	return out
}

func (r *registry) wait() {
	r.wg.Wait()
}
