// Package schema loads an OpenAPI 3.x document into a resolved schema graph.
//
// Every schema is stored once, keyed by the JSON Pointer of its definition.
// A $ref resolves to the instance at its target, so diamond references share
// one Node and recursive schemas form cycles in the graph. Traversals bound
// recursion with a Trail.
package schema

import (
	"bytes"
	"fmt"
	"math"
	"slices"

	specdrift "github.com/robinmordasiewicz/specdrift"
	"github.com/robinmordasiewicz/specdrift/document"
)

var knownTypes = []string{"string", "number", "integer", "boolean", "object", "array", "null"}

type builder struct {
	doc    *document.Node
	nodes  map[string]*Node
	order  []string
	diag   *simpleDiag
	issues specdrift.Issues
	sites  map[string]string
	ops    []*Operation
}

// Load parses raw JSON or YAML and builds the schema graph. A document that
// is not a structurally valid OpenAPI 3.x description fails with
// *specdrift.MalformedSpecError.
func Load(raw []byte, opts Options) (*Model, error) {
	doc, format, err := document.Parse(raw)
	if err != nil {
		return nil, err
	}
	m, err := FromDocument(doc, format, opts)
	if err != nil {
		return nil, err
	}
	m.src, m.loaded = bytes.Clone(raw), doc.Clone()
	return m, nil
}

// FromDocument builds a model over an already parsed tree. The model takes
// ownership of doc.
func FromDocument(doc *document.Node, format document.Format, opts Options) (*Model, error) {
	opts = opts.withDefaults()
	if doc == nil || doc.Kind != document.KindObject {
		return nil, specdrift.Malformed(specdrift.Issue{Code: specdrift.CodeInvalidType, Message: "document root must be an object"})
	}
	if !opts.SkipEnvelope {
		if iss := validateEnvelope(doc); len(iss) > 0 {
			return nil, specdrift.Malformed(iss...)
		}
	}
	version, _ := doc.Get("openapi").Str()
	b := &builder{
		doc:   doc,
		nodes: make(map[string]*Node),
		sites: make(map[string]string),
		diag:  &simpleDiag{},
	}
	b.buildOperations()
	b.buildComponents()
	b.markCompositionCycles()
	if len(b.issues) > 0 {
		return nil, specdrift.Malformed(b.issues...)
	}
	return &Model{
		doc:     doc,
		format:  format,
		version: version,
		opts:    opts,
		nodes:   b.nodes,
		order:   b.order,
		sites:   b.sites,
		ops:     b.ops,
		diag:    b.diag,
	}, nil
}

func (b *builder) buildComponents() {
	schemas := b.doc.Get("components").Get("schemas")
	if schemas == nil {
		return
	}
	base := specdrift.Pointer{"components", "schemas"}
	for _, name := range schemas.Keys() {
		b.schemaAt(base.Field(name))
	}
}

// schemaAt returns the node for the schema located at p, following $refs.
func (b *builder) schemaAt(p specdrift.Pointer) *Node {
	site := p.String()
	target, external, err := b.refTarget(p)
	if err != nil {
		if _, ok := err.(*danglingRefError); ok {
			b.refIssue(p, err)
		}
		n := &Node{Path: site, Err: err}
		if _, exists := b.nodes[site]; !exists {
			b.nodes[site] = n
			b.order = append(b.order, site)
		}
		return n
	}
	key := target.String()
	if key != site {
		b.sites[site] = key
	}
	if n, ok := b.nodes[key]; ok {
		return n
	}
	raw, _ := b.doc.Lookup(target)
	n := &Node{Path: key, raw: raw, Constraints: map[specdrift.Kind]any{}}
	b.nodes[key] = n
	b.order = append(b.order, key)
	if external {
		n.Opaque = true
		return n
	}
	b.fill(n, target, raw)
	return n
}

func (b *builder) issue(p specdrift.Pointer, code, format string, args ...any) {
	b.issues = specdrift.AppendIssues(b.issues, specdrift.Issue{Path: p.String(), Code: code, Message: fmt.Sprintf(format, args...)})
}

func (b *builder) fill(n *Node, p specdrift.Pointer, raw *document.Node) {
	switch {
	case raw == nil:
		return
	case raw.Kind == document.KindBool:
		// 3.1 boolean schema: true accepts anything, false nothing
		return
	case raw.Kind != document.KindObject:
		b.issue(p, specdrift.CodeInvalidType, "schema must be an object, got %s", raw.Kind)
		return
	}

	b.fillType(n, p, raw)
	if f, ok := raw.Get("format").Str(); ok {
		n.Format = f
	}
	if v, ok := raw.Get("nullable").Bool(); ok && v {
		n.Nullable = true
	}

	for _, k := range []specdrift.Kind{specdrift.KindMinLength, specdrift.KindMaxLength, specdrift.KindMinItems, specdrift.KindMaxItems} {
		if v := raw.Get(string(k)); v != nil {
			f, ok := v.Float()
			if !ok || f < 0 || math.Trunc(f) != f {
				b.issue(p.Field(string(k)), specdrift.CodeInvalidKeyword, "%s must be a non-negative integer", k)
				continue
			}
			n.Constraints[k] = f
		}
	}
	for _, k := range []specdrift.Kind{specdrift.KindMinimum, specdrift.KindMaximum} {
		if v := raw.Get(string(k)); v != nil {
			f, ok := v.Float()
			if !ok {
				b.issue(p.Field(string(k)), specdrift.CodeInvalidKeyword, "%s must be a number", k)
				continue
			}
			n.Constraints[k] = f
		}
	}
	b.fillExclusive(n, p, raw, specdrift.KindExclusiveMinimum, specdrift.KindMinimum)
	b.fillExclusive(n, p, raw, specdrift.KindExclusiveMaximum, specdrift.KindMaximum)

	if v := raw.Get("pattern"); v != nil {
		s, ok := v.Str()
		if !ok {
			b.issue(p.Field("pattern"), specdrift.CodeInvalidKeyword, "pattern must be a string")
		} else {
			n.Constraints[specdrift.KindPattern] = s
		}
	}
	if v := raw.Get("enum"); v != nil {
		if v.Kind != document.KindArray {
			b.issue(p.Field("enum"), specdrift.CodeInvalidKeyword, "enum must be an array")
		} else {
			n.Constraints[specdrift.KindEnum] = v.Value()
		}
	}
	if v := raw.Get("uniqueItems"); v != nil {
		u, ok := v.Bool()
		if !ok {
			b.issue(p.Field("uniqueItems"), specdrift.CodeInvalidKeyword, "uniqueItems must be a boolean")
		} else if u {
			n.Constraints[specdrift.KindUniqueItems] = true
		}
	}
	if v := raw.Get("required"); v != nil {
		if v.Kind != document.KindArray {
			// parameter-style boolean required is not a schema keyword
			b.issue(p.Field("required"), specdrift.CodeInvalidKeyword, "required must be an array of property names")
		} else {
			for i, it := range v.Items {
				s, ok := it.Str()
				if !ok {
					b.issue(p.Field("required").Index(i), specdrift.CodeInvalidKeyword, "required entries must be strings")
					continue
				}
				if !slices.Contains(n.Required, s) {
					n.Required = append(n.Required, s)
				}
			}
		}
	}

	if props := raw.Get("properties"); props != nil {
		if props.Kind != document.KindObject {
			b.issue(p.Field("properties"), specdrift.CodeInvalidKeyword, "properties must be an object")
		} else {
			for _, name := range props.Keys() {
				site := p.Field("properties").Field(name)
				n.Properties = append(n.Properties, Property{Name: name, Site: site.String(), Node: b.schemaAt(site)})
			}
		}
	}
	if it := raw.Get("items"); it != nil {
		switch it.Kind {
		case document.KindObject, document.KindBool:
			n.Items = b.schemaAt(p.Field("items"))
		default:
			b.diag.warnf("tuple items at %s not supported", p.String())
		}
	}
	if ap := raw.Get("additionalProperties"); ap != nil {
		switch ap.Kind {
		case document.KindBool:
			if v, _ := ap.Bool(); !v {
				n.Constraints[specdrift.KindAdditionalProperties] = false
			}
		case document.KindObject:
			n.Additional = b.schemaAt(p.Field("additionalProperties"))
		default:
			b.issue(p.Field("additionalProperties"), specdrift.CodeInvalidKeyword, "additionalProperties must be a boolean or schema")
		}
	}

	for _, ck := range []CompositionKind{OneOf, AnyOf, AllOf} {
		v := raw.Get(string(ck))
		if v == nil {
			continue
		}
		if v.Kind != document.KindArray {
			b.issue(p.Field(string(ck)), specdrift.CodeInvalidKeyword, "%s must be an array", ck)
			continue
		}
		if n.Composition != nil {
			b.diag.warnf("%s at %s ignored: node already composed with %s", ck, p.String(), n.Composition.Kind)
			continue
		}
		c := &Composition{Kind: ck}
		for i := range v.Items {
			c.Branches = append(c.Branches, b.schemaAt(p.Field(string(ck)).Index(i)))
		}
		n.Composition = c
	}
}

func (b *builder) fillType(n *Node, p specdrift.Pointer, raw *document.Node) {
	t := raw.Get("type")
	if t == nil {
		return
	}
	var types []string
	switch t.Kind {
	case document.KindString:
		types = []string{t.Scalar}
	case document.KindArray:
		for _, it := range t.Items {
			if s, ok := it.Str(); ok {
				types = append(types, s)
			}
		}
	default:
		b.issue(p.Field("type"), specdrift.CodeInvalidKeyword, "type must be a string or array of strings")
		return
	}
	for _, s := range types {
		if !slices.Contains(knownTypes, s) {
			b.issue(p.Field("type"), specdrift.CodeInvalidKeyword, "unknown type %q", s)
			continue
		}
		if s == "null" {
			n.Nullable = true
			continue
		}
		if n.Type == "" {
			n.Type = s
		} else {
			b.diag.warnf("multi-type schema at %s: using %s", p.String(), n.Type)
		}
	}
	if n.Type == "" && n.Nullable {
		n.Type = "null"
	}
}

// fillExclusive reads exclusiveMinimum/exclusiveMaximum in either form. The
// 3.0 boolean modifier turns the sibling bound exclusive.
func (b *builder) fillExclusive(n *Node, p specdrift.Pointer, raw *document.Node, k, sibling specdrift.Kind) {
	v := raw.Get(string(k))
	if v == nil {
		return
	}
	switch v.Kind {
	case document.KindBool:
		on, _ := v.Bool()
		if !on {
			return
		}
		bound, ok := n.Constraints[sibling]
		if !ok {
			b.diag.warnf("%s at %s has no %s to modify", k, p.String(), sibling)
			return
		}
		delete(n.Constraints, sibling)
		n.Constraints[k] = bound
		if n.legacy == nil {
			n.legacy = map[specdrift.Kind]bool{}
		}
		n.legacy[k] = true
	case document.KindNumber:
		f, _ := v.Float()
		n.Constraints[k] = f
	default:
		b.issue(p.Field(string(k)), specdrift.CodeInvalidKeyword, "%s must be a number or boolean", k)
	}
}
