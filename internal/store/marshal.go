package store

import (
	"encoding/json"
	"fmt"

	"github.com/cayleygraph/quad"

	"github.com/roach88/fedquery/internal/ir"
)

// Object kinds stored in triples.object_kind.
const (
	kindIRI     = "iri"
	kindLiteral = "literal"
	kindBNode   = "bnode"
)

// encodeObject splits an object value into its stored columns.
func encodeObject(v quad.Value) (object, kind, datatype, lang string, err error) {
	t := ir.TermFromQuad(v)
	switch t.Kind {
	case ir.TermIRI:
		return t.Value, kindIRI, "", "", nil
	case ir.TermBlank:
		return t.Value, kindBNode, "", "", nil
	case ir.TermLiteral:
		return t.Value, kindLiteral, t.Datatype, t.Lang, nil
	default:
		return "", "", "", "", fmt.Errorf("encode object: unsupported term %v", v)
	}
}

// decodeObject is the inverse of encodeObject.
func decodeObject(object, kind, datatype, lang string) (quad.Value, error) {
	switch kind {
	case kindIRI:
		return quad.IRI(object), nil
	case kindBNode:
		return quad.BNode(object), nil
	case kindLiteral:
		return ir.Term{Kind: ir.TermLiteral, Value: object, Datatype: datatype, Lang: lang}.Quad(), nil
	default:
		return nil, fmt.Errorf("decode object: unknown kind %q", kind)
	}
}

// subjectIRI returns the IRI of a triple subject. Metadata subjects are
// always IRIs.
func subjectIRI(v quad.Value) (string, error) {
	switch s := v.(type) {
	case quad.IRI:
		return string(s), nil
	case quad.BNode:
		return "_:" + string(s), nil
	default:
		return "", fmt.Errorf("subject %v is not an IRI", v)
	}
}

func decodeSubject(s string) quad.Value {
	if len(s) > 2 && s[:2] == "_:" {
		return quad.BNode(s[2:])
	}
	return quad.IRI(s)
}

// marshalParams converts source parameters to canonical JSON TEXT.
func marshalParams(params map[string]string) (string, error) {
	if params == nil {
		params = map[string]string{}
	}
	data, err := ir.MarshalCanonical(params)
	if err != nil {
		return "", fmt.Errorf("marshal params: %w", err)
	}
	return string(data), nil
}

func unmarshalParams(data string) (map[string]string, error) {
	if data == "" || data == "{}" {
		return nil, nil
	}
	var params map[string]string
	if err := json.Unmarshal([]byte(data), &params); err != nil {
		return nil, fmt.Errorf("unmarshal params: %w", err)
	}
	return params, nil
}
