// Package probe derives boundary test values from constraint descriptors.
//
// Each descriptor yields an ordered Set of probes: values just inside the
// declared constraint (expected to be accepted) and just outside it
// (expected to be rejected). Everything else in the request is filled with
// synthesized valid values so a probe isolates one constraint.
package probe

import (
	"fmt"
	"math"
	"sync"

	specdrift "github.com/robinmordasiewicz/specdrift"
	"github.com/robinmordasiewicz/specdrift/extract"
	"github.com/robinmordasiewicz/specdrift/schema"
)

// DefaultSearchLimit bounds the extra probes spent locating a moved bound.
const DefaultSearchLimit = 12

// Probe is one test value for one descriptor.
type Probe struct {
	Key    specdrift.Key
	Value  any
	Omit   bool // required probes: the field or parameter is left out
	Expect specdrift.Expectation
	// Measure is the numeric position of the value for bound kinds
	// (string length, item count or the number itself); NaN otherwise.
	Measure float64
	Label   string
	Search  bool
}

// Set is the ordered probe list for a descriptor.
type Set struct {
	Descriptor extract.Descriptor
	Probes     []Probe
	// Contradiction explains why the constraint can never be satisfied.
	// Such descriptors get no probes.
	Contradiction string
}

// Static reports whether the set is a static contradiction.
func (s Set) Static() bool { return s.Contradiction != "" }

// Options tunes value synthesis.
type Options struct {
	// Params supplies values for path, query and header parameters by name.
	Params map[string]string
	// SearchLimit caps bound discovery probes; zero selects DefaultSearchLimit.
	SearchLimit int
}

// Generator produces probes for descriptors of one model. It is safe for
// concurrent use.
type Generator struct {
	model *schema.Model
	opts  Options

	mu       sync.Mutex
	patterns map[string]*matcher
	perrs    map[string]error
}

// New returns a generator for m.
func New(m *schema.Model, opts Options) *Generator {
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = DefaultSearchLimit
	}
	return &Generator{model: m, opts: opts, patterns: map[string]*matcher{}, perrs: map[string]error{}}
}

func (g *Generator) compile(p string) (*matcher, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if m, ok := g.patterns[p]; ok {
		return m, nil
	}
	if err, ok := g.perrs[p]; ok {
		return nil, err
	}
	m, err := compilePattern(p)
	if err != nil {
		g.perrs[p] = err
		return nil, err
	}
	g.patterns[p] = m
	return m, nil
}

// Generate builds the probe set for d.
func (g *Generator) Generate(d extract.Descriptor) Set {
	set := Set{Descriptor: d}
	if d.Key.Kind != specdrift.KindRequired {
		if why := g.Contradiction(d.Node); why != "" {
			set.Contradiction = why
			return set
		}
	}
	add := func(v any, exp specdrift.Expectation, measure float64, label string) {
		set.Probes = append(set.Probes, Probe{Key: d.Key, Value: v, Expect: exp, Measure: measure, Label: label})
	}
	n := d.Node
	nan := math.NaN()

	switch k := d.Key.Kind; k {
	case specdrift.KindType:
		add(g.Minimal(n), specdrift.ShouldAccept, nan, "type="+n.Type)
		for _, alt := range g.foreignValues(n, d.Context.Location) {
			add(alt.value, specdrift.ShouldReject, nan, "type="+alt.name)
		}

	case specdrift.KindRequired:
		g.requiredProbes(d, &set)

	case specdrift.KindMinLength, specdrift.KindMaxLength, specdrift.KindMinItems, specdrift.KindMaxItems:
		bound, _ := n.Bound(k)
		b := int(bound)
		inside, outside := b, b+1
		if k.IsLower() {
			outside = b - 1
		}
		if v, ok := g.valueAt(d, float64(inside)); ok {
			add(v, specdrift.ShouldAccept, float64(inside), fmt.Sprintf("%s=%d", measureName(k), inside))
		}
		if outside >= 0 {
			if v, ok := g.valueAt(d, float64(outside)); ok {
				add(v, specdrift.ShouldReject, float64(outside), fmt.Sprintf("%s=%d", measureName(k), outside))
			}
		}

	case specdrift.KindMinimum, specdrift.KindMaximum, specdrift.KindExclusiveMinimum, specdrift.KindExclusiveMaximum:
		bound, _ := n.Bound(k)
		var inside, outside float64
		switch k {
		case specdrift.KindMinimum:
			inside, outside = bound, g.below(n, bound)
		case specdrift.KindMaximum:
			inside, outside = bound, g.above(n, bound)
		case specdrift.KindExclusiveMinimum:
			inside, outside = g.above(n, bound), bound
		case specdrift.KindExclusiveMaximum:
			inside, outside = g.below(n, bound), bound
		}
		if !g.exact(n, inside) || !g.exact(n, outside) {
			break
		}
		add(g.numberValue(n, inside), specdrift.ShouldAccept, inside, fmt.Sprintf("value=%v", inside))
		add(g.numberValue(n, outside), specdrift.ShouldReject, outside, fmt.Sprintf("value=%v", outside))

	case specdrift.KindEnum:
		members, _ := n.Enum()
		for _, m := range members {
			add(m, specdrift.ShouldAccept, nan, fmt.Sprintf("member=%v", m))
		}
		if v, ok := absentFrom(members, n.Type); ok {
			add(v, specdrift.ShouldReject, nan, fmt.Sprintf("non-member=%v", v))
		}

	case specdrift.KindPattern:
		m := g.matcherFor(n)
		if m == nil {
			break
		}
		lo, hi := g.lengthRange(n)
		good, err := m.synth(lo, hi)
		if err == nil {
			add(good, specdrift.ShouldAccept, nan, fmt.Sprintf("match=%q", good))
		}
		like := good
		if err != nil {
			like = "a"
		}
		if bad, ok := m.violate(like, lo, hi); ok {
			add(bad, specdrift.ShouldReject, nan, fmt.Sprintf("mismatch=%q", bad))
		}

	case specdrift.KindUniqueItems:
		count := 2
		if v, ok := n.Bound(specdrift.KindMinItems); ok && int(v) > count {
			count = int(v)
		}
		if v, ok := n.Bound(specdrift.KindMaxItems); ok && int(v) < count {
			break
		}
		tr := g.model.NewTrail()
		if vs := g.variants(n.Items, count, tr); len(vs) == count {
			add(vs, specdrift.ShouldAccept, nan, "distinct items")
		}
		item := g.minimal(n.Items, g.model.NewTrail())
		dup := make([]any, count)
		for i := range dup {
			dup[i] = item
		}
		add(dup, specdrift.ShouldReject, nan, "duplicate items")

	case specdrift.KindAdditionalProperties:
		obj, _ := g.Minimal(n).(map[string]any)
		if obj == nil {
			obj = map[string]any{}
		}
		add(obj, specdrift.ShouldAccept, nan, "declared properties only")
		extra := make(map[string]any, len(obj)+1)
		for key, v := range obj {
			extra[key] = v
		}
		name := "specdriftUnexpected"
		for {
			if _, taken := n.Property(name); !taken {
				break
			}
			name += "X"
		}
		extra[name] = "x"
		add(extra, specdrift.ShouldReject, nan, "undeclared property "+name)
	}
	return set
}

func (g *Generator) requiredProbes(d extract.Descriptor, set *Set) {
	declared, _ := d.Declared.(bool)
	omitExpect := specdrift.ShouldAccept
	if declared {
		omitExpect = specdrift.ShouldReject
	}
	if d.Param != nil {
		set.Probes = append(set.Probes,
			Probe{Key: d.Key, Value: g.Minimal(d.Param.Schema), Expect: specdrift.ShouldAccept, Measure: math.NaN(), Label: "present"},
			Probe{Key: d.Key, Omit: true, Expect: omitExpect, Measure: math.NaN(), Label: "omitted"},
		)
		return
	}
	full, _ := g.Minimal(d.Object).(map[string]any)
	if full == nil {
		full = map[string]any{}
	}
	present := make(map[string]any, len(full)+1)
	omitted := make(map[string]any, len(full))
	for k, v := range full {
		present[k] = v
		if k != d.Property {
			omitted[k] = v
		}
	}
	if _, ok := present[d.Property]; !ok {
		present[d.Property] = g.Minimal(d.Node)
	}
	set.Probes = append(set.Probes,
		Probe{Key: d.Key, Value: present, Expect: specdrift.ShouldAccept, Measure: math.NaN(), Label: "present"},
		Probe{Key: d.Key, Value: omitted, Omit: true, Expect: omitExpect, Measure: math.NaN(), Label: "omitted"},
	)
}

// Contradiction reports why no value can satisfy n, or "" when some can.
func (g *Generator) Contradiction(n *schema.Node) string {
	if n == nil {
		return ""
	}
	minL, hasMinL := n.Bound(specdrift.KindMinLength)
	maxL, hasMaxL := n.Bound(specdrift.KindMaxLength)
	if hasMinL && hasMaxL && minL > maxL {
		return fmt.Sprintf("minLength %v exceeds maxLength %v", minL, maxL)
	}
	minI, hasMinI := n.Bound(specdrift.KindMinItems)
	maxI, hasMaxI := n.Bound(specdrift.KindMaxItems)
	if hasMinI && hasMaxI && minI > maxI {
		return fmt.Sprintf("minItems %v exceeds maxItems %v", minI, maxI)
	}
	if lo, hi := g.numericRange(n); lo > hi {
		return fmt.Sprintf("numeric range [%v, %v] is empty", lo, hi)
	}
	if members, ok := n.Enum(); ok && len(members) == 0 {
		return "enum has no members"
	}
	if p, ok := n.Pattern(); ok {
		m, err := g.compile(p)
		if err != nil {
			return fmt.Sprintf("pattern %q does not compile: %v", p, err)
		}
		ml := m.minLen()
		if ml < 0 {
			return fmt.Sprintf("pattern %q matches no string", p)
		}
		if hasMaxL && float64(ml) > maxL && anchored(m) {
			return fmt.Sprintf("pattern %q needs at least %d characters, maxLength is %v", p, ml, maxL)
		}
	}
	return ""
}

// anchored reports whether every match must consume the whole string, so
// the minimal match length is a lower bound on the string length.
func anchored(m *matcher) bool {
	s := m.src
	return len(s) >= 2 && s[0] == '^' && s[len(s)-1] == '$'
}

func (g *Generator) lengthRange(n *schema.Node) (lo, hi int) {
	hi = -1
	if v, ok := n.Bound(specdrift.KindMinLength); ok {
		lo = int(v)
	}
	if v, ok := n.Bound(specdrift.KindMaxLength); ok {
		hi = int(v)
	}
	if lo == 0 {
		lo = 1
		if hi == 0 {
			lo = 0
		}
	}
	return lo, hi
}

type typedValue struct {
	name  string
	value any
}

// foreignValues returns one value of each primitive type other than n's.
func (g *Generator) foreignValues(n *schema.Node, loc specdrift.Location) []typedValue {
	if loc != specdrift.InBody {
		// parameters travel as text: only non-string types can be violated
		if n.Type == "string" {
			return nil
		}
		return []typedValue{{"string", "specdrift"}}
	}
	all := []typedValue{
		{"string", "specdrift"},
		{"integer", int64(7)},
		{"number", 1.5},
		{"boolean", true},
		{"null", nil},
	}
	var out []typedValue
	for _, tv := range all {
		switch {
		case tv.name == n.Type:
		case n.Type == "number" && tv.name == "integer":
		case tv.name == "null" && n.Nullable:
		default:
			out = append(out, tv)
		}
	}
	switch n.Type {
	case "object":
		out = append(out, typedValue{"array", []any{}})
	case "array":
		out = append(out, typedValue{"object", map[string]any{}})
	}
	return out
}

// absentFrom synthesizes a value of the enum's type that is not a member.
func absentFrom(members []any, typ string) (any, bool) {
	has := func(v any) bool {
		for _, m := range members {
			if fmt.Sprint(m) == fmt.Sprint(v) {
				return true
			}
		}
		return false
	}
	switch typ {
	case "integer", "number":
		maxv := 0.0
		for _, m := range members {
			if f := toFloat(m); f > maxv {
				maxv = f
			}
		}
		v := int64(maxv) + 1
		for has(v) {
			v++
		}
		return v, true
	case "boolean":
		for _, b := range []bool{true, false} {
			if !has(b) {
				return b, true
			}
		}
		return nil, false
	default:
		v := "specdrift-not-a-member"
		for has(v) {
			v += "-x"
		}
		return v, true
	}
}

// valueAt builds the value whose measure (length, count or number) is m.
func (g *Generator) valueAt(d extract.Descriptor, m float64) (any, bool) {
	n := d.Node
	switch d.Key.Kind {
	case specdrift.KindMinLength, specdrift.KindMaxLength:
		s, ok := g.stringOfLength(n, int(m))
		if !ok {
			s = repeatA(int(m))
		}
		return s, true
	case specdrift.KindMinItems, specdrift.KindMaxItems:
		arr, ok := g.array(n, int(m), g.model.NewTrail())
		return arr, ok
	default:
		return g.numberValue(n, m), true
	}
}

func measureName(k specdrift.Kind) string {
	switch k {
	case specdrift.KindMinItems, specdrift.KindMaxItems:
		return "items"
	}
	return "length"
}

func repeatA(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'a'
	}
	return string(b)
}
