// Package document holds an ordered, format-neutral tree for JSON and YAML
// documents. Object key order, scalar literals, YAML comments and styles, and
// JSON indentation survive a decode/encode round trip so that rewritten
// documents diff minimally against their input.
package document

import (
	"math"
	"sort"
	"strconv"

	j "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	specdrift "github.com/robinmordasiewicz/specdrift"
)

// Kind represents node kinds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindObject
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return "null"
	}
}

// Node is one value in the tree. Scalar holds the string value, the number
// literal exactly as written, or "true"/"false".
type Node struct {
	Kind   Kind
	Scalar string
	Fields []Field
	Items  []*Node

	layout layout
	doc    *docLayout // root only
}

// Field is an object member. Fields keep their input order.
type Field struct {
	Key   string
	Value *Node

	keyLayout layout
}

// layout records how a node was written so that untouched content encodes
// back the way it was read. The zero value means default formatting.
type layout struct {
	style yaml.Style
	head  string
	line  string
	foot  string

	// raw is the source literal of a scalar. It is only used while the
	// node still holds rawOf.
	raw   string
	rawOf string

	// tag is the resolved YAML tag of a mapping key that was not a string,
	// such as an unquoted status code.
	tag string

	// inline marks a JSON container written on a single line.
	inline bool
}

func (l layout) literal(scalar string) (string, bool) {
	if l.raw != "" && l.rawOf == scalar {
		return l.raw, true
	}
	return "", false
}

// docLayout holds whole-document formatting.
type docLayout struct {
	jsonIndent string
	colon      string
	comma      string
	newline    bool
	yamlIndent int
	head       string
	foot       string
}

var defaultDocLayout = docLayout{jsonIndent: "  ", colon: ": ", comma: ", ", newline: true, yamlIndent: 2}

func (n *Node) docLayout() docLayout {
	if n == nil || n.doc == nil {
		return defaultDocLayout
	}
	return *n.doc
}

// NewObject returns an empty object node.
func NewObject() *Node { return &Node{Kind: KindObject} }

// NewString returns a string node.
func NewString(s string) *Node { return &Node{Kind: KindString, Scalar: s} }

// Get returns the value stored under key, or nil.
func (n *Node) Get(key string) *Node {
	if n == nil || n.Kind != KindObject {
		return nil
	}
	for _, f := range n.Fields {
		if f.Key == key {
			return f.Value
		}
	}
	return nil
}

// Has reports whether the object has the key.
func (n *Node) Has(key string) bool { return n.Get(key) != nil }

// Set replaces the value under key in place, or appends a new member. A
// replacement keeps the comments attached to the old value.
func (n *Node) Set(key string, v *Node) {
	for i := range n.Fields {
		if n.Fields[i].Key == key {
			if old := n.Fields[i].Value; old != nil && v != nil && v.layout == (layout{}) {
				v.layout = layout{head: old.layout.head, line: old.layout.line, foot: old.layout.foot}
				if old.Kind == v.Kind {
					v.layout.style = old.layout.style
					v.layout.inline = old.layout.inline
				}
			}
			n.Fields[i].Value = v
			return
		}
	}
	n.Fields = append(n.Fields, Field{Key: key, Value: v})
}

// SetAfter inserts key directly after the member named after (or at the end
// when after is absent). Existing keys are replaced in place.
func (n *Node) SetAfter(after, key string, v *Node) {
	if n.Has(key) {
		n.Set(key, v)
		return
	}
	for i := range n.Fields {
		if n.Fields[i].Key == after {
			n.Fields = append(n.Fields, Field{})
			copy(n.Fields[i+2:], n.Fields[i+1:])
			n.Fields[i+1] = Field{Key: key, Value: v}
			return
		}
	}
	n.Fields = append(n.Fields, Field{Key: key, Value: v})
}

// Delete removes key and reports whether it was present.
func (n *Node) Delete(key string) bool {
	for i := range n.Fields {
		if n.Fields[i].Key == key {
			n.Fields = append(n.Fields[:i], n.Fields[i+1:]...)
			return true
		}
	}
	return false
}

// Keys returns the object keys in document order.
func (n *Node) Keys() []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Fields))
	for _, f := range n.Fields {
		out = append(out, f.Key)
	}
	return out
}

// Lookup walks a JSON Pointer from n.
func (n *Node) Lookup(p specdrift.Pointer) (*Node, bool) {
	cur := n
	for _, seg := range p {
		if cur == nil {
			return nil, false
		}
		switch cur.Kind {
		case KindObject:
			cur = cur.Get(seg)
		case KindArray:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(cur.Items) {
				return nil, false
			}
			cur = cur.Items[i]
		default:
			return nil, false
		}
	}
	return cur, cur != nil
}

// Clone returns a deep, independent copy.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := &Node{Kind: n.Kind, Scalar: n.Scalar, layout: n.layout}
	if n.doc != nil {
		d := *n.doc
		c.doc = &d
	}
	if n.Fields != nil {
		c.Fields = make([]Field, len(n.Fields))
		for i, f := range n.Fields {
			c.Fields[i] = Field{Key: f.Key, Value: f.Value.Clone(), keyLayout: f.keyLayout}
		}
	}
	if n.Items != nil {
		c.Items = make([]*Node, len(n.Items))
		for i, it := range n.Items {
			c.Items[i] = it.Clone()
		}
	}
	return c
}

// Equal reports structural equality. Object members must appear in the same
// order; numbers compare by value.
func (n *Node) Equal(o *Node) bool {
	if n == nil || o == nil {
		return n == o
	}
	if n.Kind != o.Kind {
		return false
	}
	switch n.Kind {
	case KindNumber:
		a, _ := n.Float()
		b, _ := o.Float()
		return a == b
	case KindObject:
		if len(n.Fields) != len(o.Fields) {
			return false
		}
		for i := range n.Fields {
			if n.Fields[i].Key != o.Fields[i].Key || !n.Fields[i].Value.Equal(o.Fields[i].Value) {
				return false
			}
		}
		return true
	case KindArray:
		if len(n.Items) != len(o.Items) {
			return false
		}
		for i := range n.Items {
			if !n.Items[i].Equal(o.Items[i]) {
				return false
			}
		}
		return true
	default:
		return n.Scalar == o.Scalar
	}
}

// Str returns the string value.
func (n *Node) Str() (string, bool) {
	if n == nil || n.Kind != KindString {
		return "", false
	}
	return n.Scalar, true
}

// Bool returns the boolean value.
func (n *Node) Bool() (bool, bool) {
	if n == nil || n.Kind != KindBool {
		return false, false
	}
	return n.Scalar == "true", true
}

// Float returns the numeric value.
func (n *Node) Float() (float64, bool) {
	if n == nil || n.Kind != KindNumber {
		return 0, false
	}
	f, err := strconv.ParseFloat(n.Scalar, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Int returns the numeric value when it is integral.
func (n *Node) Int() (int64, bool) {
	f, ok := n.Float()
	if !ok || math.Trunc(f) != f || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int64(f), true
}

// Value converts the node to plain Go values: map[string]any, []any, string,
// bool, nil, and int64 or float64 for numbers.
func (n *Node) Value() any {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case KindBool:
		return n.Scalar == "true"
	case KindNumber:
		if i, err := strconv.ParseInt(n.Scalar, 10, 64); err == nil {
			return i
		}
		f, _ := n.Float()
		return f
	case KindString:
		return n.Scalar
	case KindObject:
		m := make(map[string]any, len(n.Fields))
		for _, f := range n.Fields {
			m[f.Key] = f.Value.Value()
		}
		return m
	case KindArray:
		arr := make([]any, len(n.Items))
		for i, it := range n.Items {
			arr[i] = it.Value()
		}
		return arr
	default:
		return nil
	}
}

// FromValue converts plain Go values into a node. Map keys are sorted so the
// result is deterministic.
func FromValue(v any) *Node {
	switch t := v.(type) {
	case nil:
		return &Node{Kind: KindNull}
	case *Node:
		return t.Clone()
	case bool:
		if t {
			return &Node{Kind: KindBool, Scalar: "true"}
		}
		return &Node{Kind: KindBool, Scalar: "false"}
	case string:
		return NewString(t)
	case int:
		return &Node{Kind: KindNumber, Scalar: strconv.Itoa(t)}
	case int64:
		return &Node{Kind: KindNumber, Scalar: strconv.FormatInt(t, 10)}
	case float64:
		return &Node{Kind: KindNumber, Scalar: FormatNumber(t)}
	case j.Number:
		return &Node{Kind: KindNumber, Scalar: string(t)}
	case []any:
		n := &Node{Kind: KindArray, Items: make([]*Node, 0, len(t))}
		for _, it := range t {
			n.Items = append(n.Items, FromValue(it))
		}
		return n
	case []string:
		n := &Node{Kind: KindArray, Items: make([]*Node, 0, len(t))}
		for _, it := range t {
			n.Items = append(n.Items, NewString(it))
		}
		return n
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		n := NewObject()
		for _, k := range keys {
			n.Fields = append(n.Fields, Field{Key: k, Value: FromValue(t[k])})
		}
		return n
	default:
		return &Node{Kind: KindNull}
	}
}

// FormatNumber renders a float as a JSON number literal, using integer form
// whenever the value is integral and exactly representable.
func FormatNumber(f float64) string {
	if math.Trunc(f) == f && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
