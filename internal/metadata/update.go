package metadata

import (
	"context"
	"fmt"
	"time"

	"github.com/cayleygraph/quad"

	"github.com/roach88/fedquery/internal/catalog"
	"github.com/roach88/fedquery/internal/ir"
	"github.com/roach88/fedquery/internal/vocab"
)

// Update rewrites a stored molecule: triples of old missing from fresh are
// deleted, triples of fresh missing from old are inserted, and the
// modification timestamp is replaced. Nothing is written when the two
// molecules encode identically. The returned molecule carries the new stamp.
func (b *Builder) Update(ctx context.Context, federation string, old, fresh ir.Molecule) (ir.Molecule, error) {
	oldQuads := catalog.Encode(unstamped(old), time.Time{})
	newQuads := catalog.Encode(unstamped(fresh), time.Time{})
	del := minus(oldQuads, newQuads)
	ins := minus(newQuads, oldQuads)
	if len(del) == 0 && len(ins) == 0 {
		return old, nil
	}

	stamp := catalog.Stamp(b.now())
	if old.Modified != "" {
		del = append(del, catalog.ModifiedQuad(old.ID, old.Modified))
	}
	ins = append(ins, catalog.ModifiedQuad(fresh.ID, stamp))

	if err := b.writer.Update(ctx, vocab.GraphFor(federation), del, ins); err != nil {
		return old, fmt.Errorf("update %s: %w", fresh.ID, err)
	}
	b.logger.Debug("molecule updated",
		"federation", federation,
		"molecule", fresh.ID,
		"deleted", len(del),
		"inserted", len(ins))

	out := catalog.Clone(fresh)
	out.Modified = stamp
	return out, nil
}

// CarryLinks returns fresh with the interlinks recorded on old added back:
// molecule-level linkedTo edges and link-derived ranges (unknown
// cardinality) of properties fresh still has.
func CarryLinks(old, fresh ir.Molecule) ir.Molecule {
	out := catalog.Clone(fresh)
	for _, l := range old.LinkedTo {
		if !contains(out.LinkedTo, l) {
			out.LinkedTo = append(out.LinkedTo, l)
		}
	}
	for _, op := range old.Properties {
		for i := range out.Properties {
			np := &out.Properties[i]
			if np.Predicate != op.Predicate {
				continue
			}
			for _, r := range op.Ranges {
				if r.Cardinality < 0 && !r.Datatype && !np.HasRange(r.IRI) {
					np.Ranges = append(np.Ranges, r)
				}
			}
		}
	}
	return out
}

func unstamped(m ir.Molecule) ir.Molecule {
	m.Modified = ""
	return m
}

// minus returns the quads of a that are not in b.
func minus(a, b []quad.Quad) []quad.Quad {
	skip := make(map[string]bool, len(b))
	for _, q := range b {
		skip[q.String()] = true
	}
	var out []quad.Quad
	for _, q := range a {
		if !skip[q.String()] {
			out = append(out, q)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
