package queryir

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/fedquery/internal/ir"
	"github.com/roach88/fedquery/internal/vocab"
)

// Document is the structured form in which queries reach the engine.
// It is decoded from YAML, and JSON bodies decode through the same path.
//
// Example:
//
//	prefixes: {ex: "http://ex.org/"}
//	select: [n, c]
//	where:
//	  - triple: [?p, a, ex:Person]
//	  - triple: [?p, ex:knows, ?x]
//	  - optional:
//	      - triple: [?x, ex:name, ?c]
//	  - filter: {op: "!=", args: [?n, '"Bob"']}
type Document struct {
	Prefixes map[string]string `yaml:"prefixes,omitempty" json:"prefixes,omitempty"`
	Select   []string          `yaml:"select,omitempty" json:"select,omitempty"`
	Distinct bool              `yaml:"distinct,omitempty" json:"distinct,omitempty"`
	Limit    int               `yaml:"limit,omitempty" json:"limit,omitempty"`
	Where    []ElementDoc      `yaml:"where" json:"where"`
}

// ElementDoc is one entry of a where list. Exactly one field is set.
type ElementDoc struct {
	Triple   []string       `yaml:"triple,omitempty" json:"triple,omitempty"`
	Filter   *FilterDoc     `yaml:"filter,omitempty" json:"filter,omitempty"`
	Optional []ElementDoc   `yaml:"optional,omitempty" json:"optional,omitempty"`
	Union    [][]ElementDoc `yaml:"union,omitempty" json:"union,omitempty"`
	Group    []ElementDoc   `yaml:"group,omitempty" json:"group,omitempty"`
}

// FilterDoc is a filter expression.
// Comparisons and function calls use Args; && || and ! use Exprs.
type FilterDoc struct {
	Op    string      `yaml:"op" json:"op"`
	Args  []string    `yaml:"args,omitempty" json:"args,omitempty"`
	Exprs []FilterDoc `yaml:"exprs,omitempty" json:"exprs,omitempty"`
}

// ParseDocument decodes a YAML or JSON query document and builds the query tree.
func ParseDocument(data []byte) (*Query, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode query document: %w", err)
	}
	return doc.Build()
}

// Build converts the document into a parsed query tree.
func (d *Document) Build() (*Query, error) {
	if len(d.Where) == 0 {
		return nil, fmt.Errorf("query document has an empty where list")
	}
	b := &builder{prefixes: d.Prefixes}
	body, err := b.group(d.Where, "where")
	if err != nil {
		return nil, err
	}
	q := &Query{
		Distinct: d.Distinct,
		Limit:    d.Limit,
		Body:     body,
	}
	for _, name := range d.Select {
		if name == "*" {
			q.Projection = nil
			break
		}
		q.Projection = append(q.Projection, strings.TrimLeft(name, "?$"))
	}
	return q, nil
}

type builder struct {
	prefixes map[string]string
}

// group turns a where list into a single-branch union over one join block.
func (b *builder) group(elements []ElementDoc, path string) (*UnionBlock, error) {
	jb := &JoinBlock{}
	for i, el := range elements {
		child, err := b.element(el, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		jb.Elements = append(jb.Elements, child)
	}
	return &UnionBlock{Branches: []Element{jb}}, nil
}

func (b *builder) element(el ElementDoc, path string) (Element, error) {
	switch {
	case el.Triple != nil:
		if len(el.Triple) != 3 {
			return nil, fmt.Errorf("%s: triple needs 3 terms, got %d", path, len(el.Triple))
		}
		var terms [3]ir.Term
		for i, raw := range el.Triple {
			t, err := ParseTerm(raw, b.prefixes)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			terms[i] = t
		}
		return T(terms[0], terms[1], terms[2]), nil
	case el.Filter != nil:
		expr, err := b.expr(*el.Filter, path+".filter")
		if err != nil {
			return nil, err
		}
		return &Filter{Expr: expr}, nil
	case el.Optional != nil:
		body, err := b.group(el.Optional, path+".optional")
		if err != nil {
			return nil, err
		}
		return &Optional{Body: body}, nil
	case el.Union != nil:
		ub := &UnionBlock{}
		for i, branch := range el.Union {
			g, err := b.group(branch, fmt.Sprintf("%s.union[%d]", path, i))
			if err != nil {
				return nil, err
			}
			ub.Branches = append(ub.Branches, g.Branches...)
		}
		return ub, nil
	case el.Group != nil:
		g, err := b.group(el.Group, path+".group")
		if err != nil {
			return nil, err
		}
		return g.Branches[0], nil
	default:
		return nil, fmt.Errorf("%s: empty element", path)
	}
}

func (b *builder) expr(f FilterDoc, path string) (Expr, error) {
	op := strings.TrimSpace(f.Op)
	switch op {
	case OpAnd, OpOr:
		l := &Logical{Op: op}
		for i, sub := range f.Exprs {
			e, err := b.expr(sub, fmt.Sprintf("%s.exprs[%d]", path, i))
			if err != nil {
				return nil, err
			}
			l.Args = append(l.Args, e)
		}
		if len(l.Args) < 2 {
			return nil, fmt.Errorf("%s: %s needs at least two exprs", path, op)
		}
		return l, nil
	case "!":
		if len(f.Exprs) != 1 {
			return nil, fmt.Errorf("%s: ! needs exactly one expr", path)
		}
		e, err := b.expr(f.Exprs[0], path+".exprs[0]")
		if err != nil {
			return nil, err
		}
		return &Not{Arg: e}, nil
	}

	args := make([]ir.Term, len(f.Args))
	for i, raw := range f.Args {
		t, err := ParseTerm(raw, b.prefixes)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		args[i] = t
	}

	switch op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		if len(args) != 2 {
			return nil, fmt.Errorf("%s: %s needs two args, got %d", path, op, len(args))
		}
		return &Compare{Op: op, Left: args[0], Right: args[1]}, nil
	}
	if !IsBuiltin(op) {
		return nil, fmt.Errorf("%s: unsupported filter operator %q", path, op)
	}
	return &Call{Func: strings.ToLower(op), Args: args}, nil
}

// ParseTerm parses one term of a query document.
//
// Accepted forms: ?v and $v variables, a (rdf:type), <iri>, bare http(s) IRIs,
// prefix:local names, _:label blank nodes, "lit", "lit"@lang, "lit"^^<dt>,
// "lit"^^prefix:dt, integers, decimals and true/false.
func ParseTerm(raw string, prefixes map[string]string) (ir.Term, error) {
	s := strings.TrimSpace(raw)
	switch {
	case s == "":
		return ir.Term{}, fmt.Errorf("empty term")
	case s[0] == '?' || s[0] == '$':
		if len(s) == 1 {
			return ir.Term{}, fmt.Errorf("variable without a name")
		}
		return ir.Var(s[1:]), nil
	case s == "a":
		return ir.IRI(vocab.RDFType), nil
	case s[0] == '<':
		if !strings.HasSuffix(s, ">") {
			return ir.Term{}, fmt.Errorf("unterminated IRI %q", s)
		}
		return ir.IRI(s[1 : len(s)-1]), nil
	case strings.HasPrefix(s, "_:"):
		return ir.Term{Kind: ir.TermBlank, Value: s[2:]}, nil
	case s[0] == '"':
		return parseLiteral(s, prefixes)
	case s == "true" || s == "false":
		return ir.TypedLiteral(s, vocab.XSDBoolean), nil
	case strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://"):
		return ir.IRI(s), nil
	}

	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ir.TypedLiteral(s, vocab.XSDInteger), nil
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return ir.TypedLiteral(s, vocab.XSDNamespace+"decimal"), nil
	}
	if iri, ok := expand(s, prefixes); ok {
		return ir.IRI(iri), nil
	}
	return ir.Term{}, fmt.Errorf("cannot parse term %q", s)
}

func parseLiteral(s string, prefixes map[string]string) (ir.Term, error) {
	end := strings.LastIndex(s, `"`)
	if end <= 0 {
		return ir.Term{}, fmt.Errorf("unterminated literal %q", s)
	}
	lexical, err := strconv.Unquote(s[:end+1])
	if err != nil {
		lexical = s[1:end]
	}
	suffix := s[end+1:]
	switch {
	case suffix == "":
		return ir.Literal(lexical), nil
	case strings.HasPrefix(suffix, "@"):
		return ir.LangLiteral(lexical, suffix[1:]), nil
	case strings.HasPrefix(suffix, "^^"):
		dt, err := ParseTerm(suffix[2:], prefixes)
		if err != nil || dt.Kind != ir.TermIRI {
			return ir.Term{}, fmt.Errorf("bad datatype in literal %q", s)
		}
		return ir.TypedLiteral(lexical, dt.Value), nil
	default:
		return ir.Term{}, fmt.Errorf("unexpected suffix after literal %q", s)
	}
}

// expand resolves prefix:local against the document prefixes and the
// built-in rdf, rdfs and xsd prefixes.
func expand(s string, prefixes map[string]string) (string, bool) {
	i := strings.Index(s, ":")
	if i < 0 {
		return "", false
	}
	prefix, local := s[:i], s[i+1:]
	if ns, ok := prefixes[prefix]; ok {
		return ns + local, true
	}
	switch prefix {
	case "rdf":
		return vocab.RDFNamespace + local, true
	case "rdfs":
		return vocab.RDFSNamespace + local, true
	case "xsd":
		return vocab.XSDNamespace + local, true
	}
	return "", false
}
