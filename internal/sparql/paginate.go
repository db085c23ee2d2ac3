package sparql

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/fedquery/internal/ir"
	"github.com/roach88/fedquery/internal/querysparql"
)

// DefaultPageSize is the initial LIMIT of a paginated retrieval.
const DefaultPageSize = 10000

// Status is the outcome of a paginated retrieval.
type Status int

const (
	// StatusComplete means a page shorter than the page size ended the retrieval.
	StatusComplete Status = iota

	// StatusCapped means MaxRequests or MaxAnswers stopped the retrieval early.
	StatusCapped

	// StatusFailed means the page size was halved below 1 after repeated errors.
	// Pages retrieved before the failure have already been emitted.
	StatusFailed
)

// String returns the lowercase name of the status.
func (s Status) String() string {
	switch s {
	case StatusComplete:
		return "complete"
	case StatusCapped:
		return "capped"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// PageOptions bound a paginated retrieval. Zero caps mean unlimited.
type PageOptions struct {
	PageSize    int
	MaxRequests int
	MaxAnswers  int
}

// Paginator runs base queries page by page with LIMIT/OFFSET.
//
// On an error the page size is halved and the same offset is retried; once
// the page size drops below 1 the retrieval ends with StatusFailed. A page
// shorter than the current page size ends it with StatusComplete.
type Paginator struct {
	client Client
	logger *slog.Logger
}

// NewPaginator creates a paginator. A nil logger means slog.Default().
func NewPaginator(client Client, logger *slog.Logger) *Paginator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Paginator{client: client, logger: logger}
}

// Client returns the underlying client.
func (p *Paginator) Client() Client {
	return p.client
}

// Run retrieves every page of base and passes each non-empty page to emit in
// order of increasing offset.
//
// The returned error is non-nil only when ctx is done or emit fails; source
// errors are reported through the status.
func (p *Paginator) Run(ctx context.Context, endpoint, base string, opts PageOptions, emit func([]ir.Binding) error) (Status, error) {
	status, err := p.run(ctx, endpoint, base, opts, emit)
	paginationOutcomes.WithLabelValues(status.String()).Inc()
	return status, err
}

func (p *Paginator) run(ctx context.Context, endpoint, base string, opts PageOptions, emit func([]ir.Binding) error) (Status, error) {
	limit := opts.PageSize
	if limit <= 0 {
		limit = DefaultPageSize
	}
	offset, requests, answers := 0, 0, 0

	for {
		if err := ctx.Err(); err != nil {
			return StatusFailed, err
		}
		if limit < 1 {
			p.logger.Warn("paginated query failed",
				"endpoint", endpoint,
				"offset", offset,
				"answers", answers)
			return StatusFailed, nil
		}
		if opts.MaxRequests > 0 && requests >= opts.MaxRequests {
			return StatusCapped, nil
		}
		requests++

		res, err := p.client.Query(ctx, endpoint, querysparql.Paginate(base, limit, offset))
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return StatusFailed, ctxErr
			}
			pageDegradations.Inc()
			p.logger.Debug("halving page size after error",
				"endpoint", endpoint,
				"offset", offset,
				"page_size", limit,
				"next_page_size", limit/2,
				"error", err)
			limit /= 2
			continue
		}

		page := res.Bindings
		capped := false
		if opts.MaxAnswers > 0 && answers+len(page) >= opts.MaxAnswers {
			page = page[:opts.MaxAnswers-answers]
			capped = true
		}
		if len(page) > 0 {
			if err := emit(page); err != nil {
				return StatusFailed, err
			}
		}
		answers += len(page)

		if len(res.Bindings) < limit {
			return StatusComplete, nil
		}
		if capped {
			return StatusCapped, nil
		}
		offset += limit
	}
}

// Collect runs base to completion and returns every binding.
func (p *Paginator) Collect(ctx context.Context, endpoint, base string, opts PageOptions) ([]ir.Binding, Status, error) {
	var out []ir.Binding
	status, err := p.Run(ctx, endpoint, base, opts, func(page []ir.Binding) error {
		out = append(out, page...)
		return nil
	})
	return out, status, err
}

// Values runs base to completion and returns the distinct values bound to name,
// in retrieval order.
func (p *Paginator) Values(ctx context.Context, endpoint, base, name string, opts PageOptions) ([]string, Status, error) {
	seen := make(map[string]bool)
	var out []string
	status, err := p.Run(ctx, endpoint, base, opts, func(page []ir.Binding) error {
		for _, b := range page {
			v, ok := b[name]
			if !ok || seen[v.Value] {
				continue
			}
			seen[v.Value] = true
			out = append(out, v.Value)
		}
		return nil
	})
	return out, status, err
}
