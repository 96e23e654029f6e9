package probe

import (
	"fmt"
	"math"

	specdrift "github.com/robinmordasiewicz/specdrift"
	"github.com/robinmordasiewicz/specdrift/extract"
)

// Search locates where a bound actually sits once edge probes showed it
// moved. It gallops away from the anchor, doubling the stride until the
// outcome flips, then bisects the bracket down to a resolution of one unit.
type Search struct {
	g      *Generator
	d      extract.Descriptor
	dir    float64
	anchor float64
	want   specdrift.Outcome
	far    float64
	closed bool
	stride float64
	left   int
	floor  float64
	done   bool

	// numeric is set for value bounds, whose probes must stay exact.
	numeric bool
}

// NewSearch starts a search from a probe whose outcome contradicted its
// expectation. It returns nil for kinds without a numeric bound.
func (g *Generator) NewSearch(d extract.Descriptor, from Probe, outcome specdrift.Outcome) *Search {
	k := d.Key.Kind
	if !k.IsBound() || math.IsNaN(from.Measure) || outcome == specdrift.Inconclusive {
		return nil
	}
	// widen moves away from the declared range, narrow moves into it
	dir := 1.0
	if k.IsLower() {
		dir = -1
	}
	if from.Expect == specdrift.ShouldAccept {
		dir = -dir
	}
	s := &Search{
		g:      g,
		d:      d,
		dir:    dir,
		anchor: from.Measure,
		want:   outcome,
		stride: 1,
		left:   g.opts.SearchLimit,
		floor:  math.Inf(-1),
	}
	switch k {
	case specdrift.KindMinLength, specdrift.KindMaxLength, specdrift.KindMinItems, specdrift.KindMaxItems:
		s.floor = 0
	default:
		s.numeric = true
	}
	return s
}

// Next returns the next probe, or false when the search is finished.
func (s *Search) Next() (Probe, bool) {
	if s == nil || s.done || s.left <= 0 {
		return Probe{}, false
	}
	var v float64
	if !s.closed {
		v = s.snap(s.anchor + s.dir*s.stride)
		s.stride *= 2
		if v < s.floor {
			if s.anchor <= s.floor {
				s.done = true
				return Probe{}, false
			}
			v = s.floor
		}
	} else {
		gap := math.Abs(s.far - s.anchor)
		if gap <= 1 {
			s.done = true
			return Probe{}, false
		}
		v = s.anchor + s.dir*math.Floor(gap/2)
	}
	if s.numeric && !s.g.exact(s.d.Node, v) {
		s.done = true
		return Probe{}, false
	}
	s.left--
	return s.At(v), true
}

// Observe feeds back the outcome of the probe at measure v.
func (s *Search) Observe(v float64, o specdrift.Outcome) {
	if s == nil {
		return
	}
	switch {
	case o == specdrift.Inconclusive:
		s.done = true
	case o == s.want:
		s.anchor = v
		if v <= s.floor && s.dir < 0 {
			s.done = true
		}
	default:
		s.far = v
		s.closed = true
	}
}

// snap keeps gallop values on the integer grid.
func (s *Search) snap(v float64) float64 {
	if s.dir > 0 {
		if f := math.Floor(v); f > s.anchor {
			return f
		}
		return v
	}
	if c := math.Ceil(v); c < s.anchor {
		return c
	}
	return v
}

// At builds the probe for measure v with the expectation the declared
// constraint implies.
func (s *Search) At(v float64) Probe {
	val, ok := s.g.valueAt(s.d, v)
	if !ok {
		val = nil
	}
	return Probe{
		Key:     s.d.Key,
		Value:   val,
		Expect:  Expect(s.d, v),
		Measure: v,
		Label:   fmt.Sprintf("search %s=%v", searchName(s.d.Key.Kind), v),
		Search:  true,
	}
}

// Expect says whether a value at measure v satisfies the declared bound.
func Expect(d extract.Descriptor, v float64) specdrift.Expectation {
	bound, _ := d.Node.Bound(d.Key.Kind)
	var inside bool
	switch d.Key.Kind {
	case specdrift.KindMinLength, specdrift.KindMinItems, specdrift.KindMinimum:
		inside = v >= bound
	case specdrift.KindMaxLength, specdrift.KindMaxItems, specdrift.KindMaximum:
		inside = v <= bound
	case specdrift.KindExclusiveMinimum:
		inside = v > bound
	case specdrift.KindExclusiveMaximum:
		inside = v < bound
	}
	if inside {
		return specdrift.ShouldAccept
	}
	return specdrift.ShouldReject
}

func searchName(k specdrift.Kind) string {
	switch k {
	case specdrift.KindMinimum, specdrift.KindMaximum, specdrift.KindExclusiveMinimum, specdrift.KindExclusiveMaximum:
		return "value"
	}
	return measureName(k)
}
