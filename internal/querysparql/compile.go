// Package querysparql renders query tree leaves, metadata probes and metadata
// updates as SPARQL 1.1 text.
package querysparql

import (
	"fmt"
	"strings"

	"github.com/roach88/fedquery/internal/ir"
	"github.com/roach88/fedquery/internal/queryir"
)

// Compiler compiles Service leaves to SPARQL SELECT queries.
//
// When Ordered is set, every query carries an ORDER BY over its projected
// variables so that LIMIT/OFFSET pages are stable across requests.
type Compiler struct {
	Ordered  bool
	Distinct bool
}

// NewCompiler creates a compiler with ordered output.
func NewCompiler() *Compiler {
	return &Compiler{Ordered: true}
}

// CompileService converts a Service leaf into a SPARQL SELECT query.
// The projection is every variable of the service's triples.
func (c *Compiler) CompileService(s *queryir.Service) (string, error) {
	if s == nil {
		return "", fmt.Errorf("cannot compile nil service")
	}
	if len(s.Triples) == 0 {
		return "", fmt.Errorf("service %s has no triple patterns", s.Endpoint)
	}
	vars := s.Vars()
	if len(vars) == 0 {
		return "", fmt.Errorf("service %s binds no variables", s.Endpoint)
	}
	return c.compileSelect(vars, s.Triples, s.Filters), nil
}

// CompileBGP compiles triples plus filters with an explicit projection.
func (c *Compiler) CompileBGP(vars []string, triples []ir.TriplePattern, filters []*queryir.Filter) (string, error) {
	if len(triples) == 0 {
		return "", fmt.Errorf("cannot compile an empty basic graph pattern")
	}
	if len(vars) == 0 {
		vars = ir.PatternVars(triples)
	}
	return c.compileSelect(vars, triples, filters), nil
}

func (c *Compiler) compileSelect(vars []string, triples []ir.TriplePattern, filters []*queryir.Filter) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	if c.Distinct {
		b.WriteString("DISTINCT ")
	}
	b.WriteString(varList(vars))
	b.WriteString(" WHERE {\n")
	b.WriteString(ir.FormatPatterns(triples, "  "))
	for _, f := range filters {
		b.WriteString("  ")
		b.WriteString(f.String())
		b.WriteString("\n")
	}
	b.WriteString("}")
	if c.Ordered {
		b.WriteString(" ORDER BY ")
		b.WriteString(varList(vars))
	}
	return b.String()
}

// Paginate appends a LIMIT/OFFSET window to a base query.
func Paginate(base string, limit, offset int) string {
	return fmt.Sprintf("%s\nLIMIT %d OFFSET %d", base, limit, offset)
}

func varList(vars []string) string {
	parts := make([]string, len(vars))
	for i, v := range vars {
		parts[i] = "?" + v
	}
	return strings.Join(parts, " ")
}

func iri(s string) string {
	return ir.IRI(s).String()
}
