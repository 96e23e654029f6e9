package probe

import (
	"fmt"
	"math"
	"strings"

	specdrift "github.com/robinmordasiewicz/specdrift"
	"github.com/robinmordasiewicz/specdrift/schema"
)

var formatSamples = map[string]string{
	"date-time": "2024-01-01T00:00:00Z",
	"date":      "2024-01-01",
	"time":      "00:00:00Z",
	"email":     "user@example.com",
	"uuid":      "00000000-0000-4000-8000-000000000000",
	"uri":       "https://example.com",
	"url":       "https://example.com",
	"hostname":  "example.com",
	"ipv4":      "192.0.2.1",
	"ipv6":      "2001:db8::1",
	"byte":      "YQ==",
	"password":  "secret",
}

// Minimal synthesizes a value that satisfies every constraint declared on
// n. Objects carry all declared properties so that an undocumented required
// sibling cannot confound a probe.
func (g *Generator) Minimal(n *schema.Node) any {
	return g.minimal(n, g.model.NewTrail())
}

func (g *Generator) minimal(n *schema.Node, tr *schema.Trail) any {
	if n == nil || n.Opaque || n.Err != nil {
		return "x"
	}
	if !tr.Enter(n) {
		return nil
	}
	defer tr.Leave(n)

	if members, ok := n.Enum(); ok && len(members) > 0 {
		return members[0]
	}
	if n.Composition != nil && !n.Concrete() {
		return g.composed(n, tr)
	}
	switch {
	case n.Type == "string":
		s, _ := g.stringOfLength(n, g.preferredLength(n))
		return s
	case n.Type == "integer" || n.Type == "number":
		return g.number(n)
	case n.Type == "boolean":
		return true
	case n.Type == "null":
		return nil
	case n.IsArray():
		count := 0
		if v, ok := n.Bound(specdrift.KindMinItems); ok {
			count = int(v)
		}
		arr, _ := g.array(n, count, tr)
		return arr
	case n.IsObject() || n.Composition == nil:
		obj := g.object(n, tr)
		if n.Composition != nil {
			if extra, ok := g.composed(n, tr).(map[string]any); ok {
				for k, v := range extra {
					if _, exists := obj[k]; !exists {
						obj[k] = v
					}
				}
			}
		}
		if len(obj) == 0 && n.Type == "" && len(n.Properties) == 0 {
			return "x"
		}
		return obj
	}
	return g.composed(n, tr)
}

func (g *Generator) composed(n *schema.Node, tr *schema.Trail) any {
	c := n.Composition
	if len(c.Branches) == 0 {
		return "x"
	}
	if c.Kind != schema.AllOf {
		return g.minimal(c.Branches[0], tr)
	}
	var merged map[string]any
	var first any
	for _, br := range c.Branches {
		v := g.minimal(br, tr)
		if m, ok := v.(map[string]any); ok {
			if merged == nil {
				merged = map[string]any{}
			}
			for k, x := range m {
				merged[k] = x
			}
			continue
		}
		if first == nil {
			first = v
		}
	}
	if merged != nil {
		return merged
	}
	return first
}

func (g *Generator) object(n *schema.Node, tr *schema.Trail) map[string]any {
	obj := map[string]any{}
	for _, p := range n.Properties {
		if p.Node != nil && !p.Node.Concrete() && p.Node.Composition == nil && !n.IsRequired(p.Name) {
			// unconstrained optional members add nothing
			continue
		}
		v := g.minimal(p.Node, tr)
		if v == nil && p.Node != nil && !p.Node.Nullable && p.Node.Type != "null" {
			// recursion limit reached
			continue
		}
		obj[p.Name] = v
	}
	for _, r := range n.Required {
		if _, ok := obj[r]; !ok {
			if _, declared := n.Property(r); !declared {
				obj[r] = "x"
			}
		}
	}
	return obj
}

func (g *Generator) array(n *schema.Node, count int, tr *schema.Trail) ([]any, bool) {
	if count == 0 {
		return []any{}, true
	}
	if _, unique := n.Constraint(specdrift.KindUniqueItems); unique {
		vs := g.variants(n.Items, count, tr)
		if len(vs) < count {
			return nil, false
		}
		return vs, true
	}
	item := g.minimal(n.Items, tr)
	arr := make([]any, count)
	for i := range arr {
		arr[i] = item
	}
	return arr, true
}

// variants returns up to k distinct valid values for n.
func (g *Generator) variants(n *schema.Node, k int, tr *schema.Trail) []any {
	var out []any
	seen := map[string]bool{}
	add := func(v any) bool {
		key := fmt.Sprintf("%#v", v)
		if seen[key] {
			return len(out) >= k
		}
		seen[key] = true
		out = append(out, v)
		return len(out) >= k
	}
	if n == nil {
		for i := 0; i < k; i++ {
			add(fmt.Sprintf("x%d", i))
		}
		return out
	}
	if members, ok := n.Enum(); ok {
		for _, m := range members {
			if add(m) {
				return out
			}
		}
		return out
	}
	switch n.Type {
	case "string":
		l := g.preferredLength(n)
		for _, c := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "A", "B", "0", "1", "2", "3"} {
			if s, ok := g.stringWith(n, l, c); ok && add(s) {
				return out
			}
		}
		for i := 0; len(out) < k && i < k*4; i++ {
			if s, ok := g.stringWith(n, l, fmt.Sprintf("%c", 'a'+rune(i%26))); ok {
				add(s)
			}
		}
		return out
	case "integer", "number":
		lo, hi := g.numericRange(n)
		start := g.number(n)
		v := toFloat(start)
		for i := 0; i < k*2; i++ {
			c := v + float64(i)
			if c > hi || c < lo {
				break
			}
			if add(g.numberValue(n, c)) {
				return out
			}
		}
		return out
	case "boolean":
		add(true)
		add(false)
		return out
	}
	base := g.minimal(n, tr)
	add(base)
	if obj, ok := base.(map[string]any); ok {
		for _, p := range n.Properties {
			for _, alt := range g.variants(p.Node, k, tr) {
				c := make(map[string]any, len(obj))
				for key, val := range obj {
					c[key] = val
				}
				c[p.Name] = alt
				if add(c) {
					return out
				}
			}
		}
	}
	return out
}

// preferredLength is the shortest non-empty length the string constraints allow.
func (g *Generator) preferredLength(n *schema.Node) int {
	l := 1
	if v, ok := n.Bound(specdrift.KindMinLength); ok {
		l = int(v)
	}
	if v, ok := n.Bound(specdrift.KindMaxLength); ok && l > int(v) {
		l = int(v)
	}
	if f, ok := formatSamples[n.Format]; ok {
		if ln := runeLen(f); g.lengthAllowed(n, ln) {
			return ln
		}
	}
	return l
}

func (g *Generator) lengthAllowed(n *schema.Node, l int) bool {
	if v, ok := n.Bound(specdrift.KindMinLength); ok && l < int(v) {
		return false
	}
	if v, ok := n.Bound(specdrift.KindMaxLength); ok && l > int(v) {
		return false
	}
	return true
}

// stringOfLength synthesizes a string of exactly l runes that honors the
// node's pattern and format when possible.
func (g *Generator) stringOfLength(n *schema.Node, l int) (string, bool) {
	if f, ok := formatSamples[n.Format]; ok && runeLen(f) == l {
		if m := g.matcherFor(n); m == nil || m.match(f) {
			return f, true
		}
	}
	return g.stringWith(n, l, "a")
}

func (g *Generator) stringWith(n *schema.Node, l int, fill string) (string, bool) {
	if l < 0 {
		return "", false
	}
	m := g.matcherFor(n)
	if m == nil {
		return strings.Repeat(fill, l), true
	}
	if fill == "a" {
		s, err := m.synth(l, l)
		if err == nil {
			return s, true
		}
	}
	c := strings.Repeat(fill, l)
	if m.match(c) {
		return c, true
	}
	if fill != "a" {
		return "", false
	}
	s, err := m.synth(l, -1)
	return s, err == nil
}

func (g *Generator) matcherFor(n *schema.Node) *matcher {
	p, ok := n.Pattern()
	if !ok {
		return nil
	}
	m, err := g.compile(p)
	if err != nil {
		return nil
	}
	return m
}

// numericRange returns the closed range of values allowed by n's bounds.
func (g *Generator) numericRange(n *schema.Node) (lo, hi float64) {
	lo, hi = math.Inf(-1), math.Inf(1)
	if v, ok := n.Bound(specdrift.KindMinimum); ok {
		lo = v
	}
	if v, ok := n.Bound(specdrift.KindExclusiveMinimum); ok && g.above(n, v) > lo {
		lo = g.above(n, v)
	}
	if v, ok := n.Bound(specdrift.KindMaximum); ok {
		hi = v
	}
	if v, ok := n.Bound(specdrift.KindExclusiveMaximum); ok && g.below(n, v) < hi {
		hi = g.below(n, v)
	}
	if n.Type == "integer" {
		lo, hi = math.Ceil(lo), math.Floor(hi)
	}
	return lo, hi
}

func (g *Generator) number(n *schema.Node) any {
	lo, hi := g.numericRange(n)
	var v float64
	switch {
	case !math.IsInf(lo, -1):
		v = lo
	case !math.IsInf(hi, 1) && hi < 1:
		v = hi
	default:
		v = 1
	}
	return g.numberValue(n, v)
}

// maxExactInteger bounds the magnitudes for which float64 holds every
// integer exactly. 2^53 itself is excluded because larger literals round to it.
const maxExactInteger = 1 << 53

func (g *Generator) numberValue(n *schema.Node, v float64) any {
	if v == math.Trunc(v) && math.Abs(v) < maxExactInteger {
		return int64(v)
	}
	return v
}

// exact reports whether v can be sent and compared without rounding.
// Integers beyond 2^53 are not: neighbouring values collapse in float64 and
// the int64 conversion overflows past 2^63.
func (g *Generator) exact(n *schema.Node, v float64) bool {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return false
	}
	if n != nil && n.Type == "integer" {
		return math.Abs(v) < maxExactInteger
	}
	return true
}

// step is the smallest distance between two distinct values of n's type.
func (g *Generator) step(n *schema.Node) float64 {
	if n != nil && n.Type == "integer" {
		return 1
	}
	return 0
}

// above returns the smallest representable value greater than v.
func (g *Generator) above(n *schema.Node, v float64) float64 {
	if g.step(n) == 1 {
		return math.Floor(v) + 1
	}
	return math.Nextafter(v, math.Inf(1))
}

// below returns the largest representable value less than v.
func (g *Generator) below(n *schema.Node, v float64) float64 {
	if g.step(n) == 1 {
		return math.Ceil(v) - 1
	}
	return math.Nextafter(v, math.Inf(-1))
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case int64:
		return float64(t)
	case int:
		return float64(t)
	case float64:
		return t
	}
	return 0
}

func runeLen(s string) int { return len([]rune(s)) }
