package config

import (
	_ "embed"
	"fmt"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/fedquery/internal/ir"
	"github.com/roach88/fedquery/internal/planner"
)

//go:embed schema.cue
var schemaSource string

// CompileError is a problem in a federation definition.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type sourceDoc struct {
	ID     string            `json:"id"`
	URL    string            `json:"url"`
	Name   string            `json:"name"`
	Type   string            `json:"type"`
	Params map[string]string `json:"params"`
}

type optionsDoc struct {
	PageSize        int    `json:"page_size"`
	Timeout         string `json:"timeout"`
	MaxLinkWorkers  int    `json:"max_link_workers"`
	WriteBatchSize  int    `json:"write_batch_size"`
	LinkSampleLimit int    `json:"link_sample_limit"`
	LinkBatchSize   int    `json:"link_batch_size"`
	JoinStrategy    string `json:"join_strategy"`
}

type federationDoc struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Sources     []sourceDoc `json:"sources"`
	Options     optionsDoc  `json:"options"`
}

// CompileFederation checks v, the value of federation.<id>, against the
// schema and converts it into a Federation.
//
// Example:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`federation: lab: {sources: [{id: "s1", url: "http://s1/sparql"}]}`)
//	fed, err := CompileFederation("lab", v.LookupPath(cue.ParsePath("federation.lab")))
func CompileFederation(id string, v cue.Value) (*Federation, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if id == "" {
		return nil, &CompileError{Field: "federation", Message: "federation id is required", Pos: v.Pos()}
	}

	schema := v.Context().CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	checked := schema.LookupPath(cue.ParsePath("#Federation")).Unify(v)
	if err := checked.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var doc federationDoc
	if err := checked.Decode(&doc); err != nil {
		return nil, formatCUEError(err)
	}

	fed := &Federation{ID: id, Name: doc.Name, Description: doc.Description}
	if fed.Name == "" {
		fed.Name = id
	}

	var err error
	fed.Sources, err = compileSources(v, doc.Sources)
	if err != nil {
		return nil, err
	}
	fed.Options, err = compileOptions(v, doc.Options)
	if err != nil {
		return nil, err
	}
	return fed, nil
}

func compileSources(v cue.Value, docs []sourceDoc) ([]ir.DataSource, error) {
	if len(docs) == 0 {
		return nil, &CompileError{
			Field:   "sources",
			Message: "at least one source is required",
			Pos:     v.Pos(),
		}
	}
	seenIDs := make(map[string]bool, len(docs))
	seenURLs := make(map[string]bool, len(docs))
	out := make([]ir.DataSource, 0, len(docs))
	for i, d := range docs {
		pos := v.LookupPath(cue.ParsePath(fmt.Sprintf("sources[%d]", i))).Pos()
		if seenIDs[d.ID] {
			return nil, &CompileError{
				Field:   fmt.Sprintf("sources[%d].id", i),
				Message: fmt.Sprintf("duplicate source id %q", d.ID),
				Pos:     pos,
			}
		}
		if seenURLs[d.URL] {
			return nil, &CompileError{
				Field:   fmt.Sprintf("sources[%d].url", i),
				Message: fmt.Sprintf("duplicate source url %q", d.URL),
				Pos:     pos,
			}
		}
		seenIDs[d.ID] = true
		seenURLs[d.URL] = true

		src := ir.DataSource{
			ID:      d.ID,
			URL:     d.URL,
			Type:    ir.SourceType(d.Type),
			Name:    d.Name,
			Params:  d.Params,
			Triples: -1,
		}
		if src.Name == "" {
			src.Name = d.ID
		}
		out = append(out, src)
	}
	return out, nil
}

func compileOptions(v cue.Value, d optionsDoc) (Options, error) {
	opts := DefaultOptions()
	if d.PageSize > 0 {
		opts.PageSize = d.PageSize
	}
	if d.MaxLinkWorkers > 0 {
		opts.MaxLinkWorkers = d.MaxLinkWorkers
	}
	if d.WriteBatchSize > 0 {
		opts.WriteBatchSize = d.WriteBatchSize
	}
	if d.LinkSampleLimit > 0 {
		opts.LinkSampleLimit = d.LinkSampleLimit
	}
	if d.LinkBatchSize > 0 {
		opts.LinkBatchSize = d.LinkBatchSize
	}
	if d.Timeout != "" {
		timeout, err := time.ParseDuration(d.Timeout)
		if err != nil || timeout <= 0 {
			return opts, &CompileError{
				Field:   "options.timeout",
				Message: fmt.Sprintf("invalid timeout %q: must be a positive duration such as \"60s\"", d.Timeout),
				Pos:     v.LookupPath(cue.ParsePath("options.timeout")).Pos(),
			}
		}
		opts.Timeout = timeout
	}
	if d.JoinStrategy != "" {
		s, err := planner.ParseStrategy(d.JoinStrategy)
		if err != nil {
			return opts, &CompileError{
				Field:   "options.join_strategy",
				Message: err.Error(),
				Pos:     v.LookupPath(cue.ParsePath("options.join_strategy")).Pos(),
			}
		}
		opts.JoinStrategy = s
	}
	return opts, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
