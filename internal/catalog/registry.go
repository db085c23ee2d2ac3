package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/golang/groupcache/lru"
	"golang.org/x/sync/singleflight"
)

// DefaultRegistrySize is the number of federation catalogs kept in memory.
const DefaultRegistrySize = 16

// Loader produces a fresh catalog for a federation.
type Loader interface {
	LoadCatalog(ctx context.Context, federation string) (*Catalog, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, federation string) (*Catalog, error)

// LoadCatalog implements Loader.
func (f LoaderFunc) LoadCatalog(ctx context.Context, federation string) (*Catalog, error) {
	return f(ctx, federation)
}

// Revisioner reports a counter that changes whenever a federation's
// catalog changes in the underlying storage.
type Revisioner interface {
	CatalogRevision(ctx context.Context, federation string) (int64, error)
}

type entry struct {
	catalog  *Catalog
	revision int64
	// checked is false when the revision could not be read at load time.
	checked bool
}

// Registry caches one catalog per federation.
//
// Concurrent Get calls for the same missing federation share one load.
// Invalidate drops the cached catalog; a load that was in flight when the
// federation was invalidated is returned to its callers but not cached.
// When the loader is also a Revisioner, Get reloads a cached catalog whose
// revision has moved, so writes by other processes are picked up.
//
// Thread-safety: Registry is safe for concurrent use.
type Registry struct {
	loader Loader
	logger *slog.Logger

	mu         sync.Mutex
	cache      *lru.Cache
	generation map[string]uint64
	epoch      uint64
	group      singleflight.Group
}

// NewRegistry creates a registry holding at most size catalogs.
// A nil logger means slog.Default().
func NewRegistry(loader Loader, size int, logger *slog.Logger) *Registry {
	if size <= 0 {
		size = DefaultRegistrySize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		loader:     loader,
		logger:     logger,
		cache:      lru.New(size),
		generation: make(map[string]uint64),
	}
}

// Get returns the catalog of a federation, loading it on a miss.
func (r *Registry) Get(ctx context.Context, federation string) (*Catalog, error) {
	r.mu.Lock()
	v, ok := r.cache.Get(federation)
	r.mu.Unlock()
	if ok {
		e := v.(entry)
		if r.fresh(ctx, federation, e) {
			return e.catalog, nil
		}
		r.logger.Debug("catalog changed in store, reloading", "federation", federation)
		r.Invalidate(federation)
	}

	r.mu.Lock()
	gen, epoch := r.generation[federation], r.epoch
	r.mu.Unlock()

	v, err, shared := r.group.Do(federation, func() (any, error) {
		// Read the revision first so a write racing the load is seen as a
		// change on the next Get.
		rev, checked := r.revision(ctx, federation)
		c, err := r.loader.LoadCatalog(ctx, federation)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		if r.generation[federation] == gen && r.epoch == epoch {
			r.cache.Add(federation, entry{catalog: c, revision: rev, checked: checked})
		}
		r.mu.Unlock()
		r.logger.Debug("catalog loaded",
			"federation", federation,
			"molecules", c.Len())
		return c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", federation, err)
	}
	if shared {
		r.logger.Debug("catalog load shared", "federation", federation)
	}
	return v.(*Catalog), nil
}

func (r *Registry) revision(ctx context.Context, federation string) (int64, bool) {
	rv, ok := r.loader.(Revisioner)
	if !ok {
		return 0, false
	}
	rev, err := rv.CatalogRevision(ctx, federation)
	if err != nil {
		r.logger.Warn("read catalog revision", "federation", federation, "error", err)
		return 0, false
	}
	return rev, true
}

// fresh reports whether a cached entry still matches storage. Entries
// whose revision is unknown are served as they are.
func (r *Registry) fresh(ctx context.Context, federation string, e entry) bool {
	if !e.checked {
		return true
	}
	rev, ok := r.revision(ctx, federation)
	return !ok || rev == e.revision
}

// Invalidate drops the cached catalog of a federation.
func (r *Registry) Invalidate(federation string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation[federation]++
	r.cache.Remove(federation)
	r.group.Forget(federation)
}

// InvalidateAll drops every cached catalog.
func (r *Registry) InvalidateAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.epoch++
	r.cache.Clear()
}

// Cached reports whether a federation's catalog is in memory.
func (r *Registry) Cached(federation string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.cache.Get(federation)
	return ok
}
