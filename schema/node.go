package schema

import (
	"slices"

	specdrift "github.com/robinmordasiewicz/specdrift"
	"github.com/robinmordasiewicz/specdrift/document"
)

// CompositionKind tags a composed schema.
type CompositionKind string

const (
	OneOf CompositionKind = "oneOf"
	AnyOf CompositionKind = "anyOf"
	AllOf CompositionKind = "allOf"
)

// Composition is an ordered list of branches under one composition keyword.
type Composition struct {
	Kind     CompositionKind
	Branches []*Node
}

// Property is one declared object member. Site is the pointer of the
// property entry itself, which differs from Node.Path when the member is a
// $ref.
type Property struct {
	Name string
	Site string
	Node *Node
}

// Node is one resolved schema. Nodes reached through $ref share the
// instance stored at the reference target.
type Node struct {
	Path     string
	Type     string
	Format   string
	Nullable bool

	// Constraints maps each declared constraint kind to its value:
	// float64 for bounds, string for pattern, []any for enum, true for
	// uniqueItems, false for additionalProperties.
	Constraints map[specdrift.Kind]any

	Required    []string
	Properties  []Property
	Items       *Node
	Additional  *Node
	Composition *Composition

	// Opaque marks schemas behind an external $ref; they carry no constraints.
	Opaque bool
	// Err is set on placeholders for references that never reach a concrete schema.
	Err error

	legacy map[specdrift.Kind]bool
	raw    *document.Node
}

// Constraint returns the declared value for kind.
func (n *Node) Constraint(k specdrift.Kind) (any, bool) {
	if n == nil {
		return nil, false
	}
	v, ok := n.Constraints[k]
	return v, ok
}

// Bound returns a numeric constraint as float64.
func (n *Node) Bound(k specdrift.Kind) (float64, bool) {
	v, ok := n.Constraint(k)
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// Pattern returns the declared pattern, if any.
func (n *Node) Pattern() (string, bool) {
	v, ok := n.Constraint(specdrift.KindPattern)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Enum returns the declared enum members.
func (n *Node) Enum() ([]any, bool) {
	v, ok := n.Constraint(specdrift.KindEnum)
	if !ok {
		return nil, false
	}
	e, ok := v.([]any)
	return e, ok
}

// Property returns the named property schema.
func (n *Node) Property(name string) (Property, bool) {
	if n == nil {
		return Property{}, false
	}
	for _, p := range n.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// IsRequired reports whether name is listed in the node's required set.
func (n *Node) IsRequired(name string) bool {
	return n != nil && slices.Contains(n.Required, name)
}

// Keyword returns the document key that carries kind on this node. OpenAPI
// 3.0 spells exclusive bounds as a boolean modifier next to minimum/maximum.
func (n *Node) Keyword(k specdrift.Kind) string {
	if n != nil && n.legacy[k] {
		switch k {
		case specdrift.KindExclusiveMinimum:
			return string(specdrift.KindMinimum)
		case specdrift.KindExclusiveMaximum:
			return string(specdrift.KindMaximum)
		}
	}
	return string(k)
}

// LegacyExclusive reports whether kind is expressed in the 3.0 boolean form.
func (n *Node) LegacyExclusive(k specdrift.Kind) bool { return n != nil && n.legacy[k] }

// Raw returns the document subtree the node was built from.
func (n *Node) Raw() *document.Node {
	if n == nil {
		return nil
	}
	return n.raw
}

// Concrete reports whether the node declares anything beyond composition.
func (n *Node) Concrete() bool {
	if n == nil {
		return false
	}
	return n.Type != "" || len(n.Constraints) > 0 || len(n.Properties) > 0 || n.Items != nil ||
		len(n.Required) > 0 || n.Opaque
}

// IsObject reports whether the node describes an object.
func (n *Node) IsObject() bool {
	return n != nil && (n.Type == "object" || (n.Type == "" && len(n.Properties) > 0))
}

// IsArray reports whether the node describes an array.
func (n *Node) IsArray() bool {
	return n != nil && (n.Type == "array" || (n.Type == "" && n.Items != nil))
}
