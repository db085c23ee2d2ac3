package server

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long Watch waits for more changes before it
// reports them.
const DefaultDebounce = 500 * time.Millisecond

// Invalidator drops cached catalogs. Implemented by *catalog.Registry.
type Invalidator interface {
	InvalidateAll()
}

// Watcher reports changes to the .cue files of a directory. Bursts of
// events are coalesced into one call of the change handler.
type Watcher struct {
	dir      string
	debounce time.Duration
	logger   *slog.Logger
	onChange func(ctx context.Context) error
}

// NewWatcher creates a watcher calling onChange after dir's definitions
// change. A nil logger means slog.Default().
func NewWatcher(dir string, onChange func(ctx context.Context) error, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{dir: dir, debounce: DefaultDebounce, logger: logger, onChange: onChange}
}

// WithDebounce sets the coalescing delay.
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	w.debounce = d
	return w
}

// InvalidateOnChange returns a change handler that first calls reload,
// when non-nil, and then drops every cached catalog of reg.
func InvalidateOnChange(reg Invalidator, reload func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if reload != nil {
			if err := reload(ctx); err != nil {
				return err
			}
		}
		reg.InvalidateAll()
		return nil
	}
}

// Run watches until ctx is done. It returns an error only when the
// watch cannot be set up.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()
	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching federation definitions", "dir", w.dir)

	var (
		mu      sync.Mutex
		timer   *time.Timer
		pending []string
	)
	fire := func() {
		mu.Lock()
		names := pending
		pending = nil
		mu.Unlock()
		w.logger.Info("federation definitions changed", "files", names)
		if err := w.onChange(ctx); err != nil {
			w.logger.Error("failed to apply definition change", "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			mu.Unlock()
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(event.Name) != ".cue" || event.Op == fsnotify.Chmod {
				continue
			}
			mu.Lock()
			pending = append(pending, filepath.Base(event.Name))
			if timer == nil {
				timer = time.AfterFunc(w.debounce, fire)
			} else {
				timer.Reset(w.debounce)
			}
			mu.Unlock()
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}
