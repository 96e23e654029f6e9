// Package classify compares declared constraints with live evidence.
//
// The decision table is order independent: results are aggregated by
// expectation and outcome, never by sequence.
package classify

import (
	"math"
	"reflect"
	"slices"
	"strings"

	specdrift "github.com/robinmordasiewicz/specdrift"
	"github.com/robinmordasiewicz/specdrift/extract"
	"github.com/robinmordasiewicz/specdrift/probe"
	"github.com/robinmordasiewicz/specdrift/prober"
)

// Discrepancy is the verdict for one (path, kind) pair.
type Discrepancy struct {
	Key        specdrift.Key
	Declared   any
	Observed   any // corrected value; nil when none could be computed or the constraint should go
	Verdict    specdrift.Verdict
	Confidence float64
	// Correctable is true when Observed (or removal) can be written back
	// to the document.
	Correctable bool
	Reason      string
	Evidence    []prober.ProbeResult
	Descriptor  extract.Descriptor
}

// EvidenceCount is the number of conclusive results.
func (d Discrepancy) EvidenceCount() int {
	n := 0
	for _, r := range d.Evidence {
		if r.Outcome != specdrift.Inconclusive {
			n++
		}
	}
	return n
}

// All classifies every key that has a probe set, in canonical key order.
// Sets for the same key in different contexts share one verdict.
func All(sets []probe.Set, ev prober.Evidence) []Discrepancy {
	first := map[specdrift.Key]probe.Set{}
	var keys []specdrift.Key
	for _, s := range sets {
		k := s.Descriptor.Key
		prev, seen := first[k]
		if !seen {
			keys = append(keys, k)
			first[k] = s
			continue
		}
		if s.Static() && !prev.Static() {
			first[k] = s
		}
	}
	slices.SortFunc(keys, func(a, b specdrift.Key) int {
		if a.Less(b) {
			return -1
		}
		if b.Less(a) {
			return 1
		}
		return 0
	})
	out := make([]Discrepancy, 0, len(keys))
	for _, k := range keys {
		s := first[k]
		out = append(out, Classify(s.Descriptor, s.Contradiction, ev[k]))
	}
	return out
}

// Classify applies the decision table to one descriptor's results.
// contradiction is non-empty for static contradictions, which are
// conflicting with zero confidence and never probed.
func Classify(d extract.Descriptor, contradiction string, results []prober.ProbeResult) Discrepancy {
	out := Discrepancy{
		Key:        d.Key,
		Declared:   d.Declared,
		Evidence:   results,
		Descriptor: d,
	}
	if contradiction != "" {
		out.Verdict = specdrift.VerdictConflicting
		out.Reason = "static contradiction: " + contradiction
		return out
	}
	var conclusive, widen, narrow []prober.ProbeResult
	for _, r := range results {
		if r.Outcome == specdrift.Inconclusive {
			continue
		}
		conclusive = append(conclusive, r)
		switch {
		case r.Probe.Expect == specdrift.ShouldReject && r.Outcome == specdrift.Accepted:
			widen = append(widen, r)
		case r.Probe.Expect == specdrift.ShouldAccept && r.Outcome == specdrift.Rejected:
			narrow = append(narrow, r)
		}
	}
	total := float64(len(conclusive))
	switch {
	case len(conclusive) == 0:
		out.Verdict = specdrift.VerdictConflicting
		out.Reason = "no conclusive evidence"
	case len(widen) == 0 && len(narrow) == 0:
		out.Verdict = specdrift.VerdictConfirmed
		out.Observed = d.Declared
		out.Confidence = 1
	case len(widen) > 0 && len(narrow) > 0:
		out.Verdict = specdrift.VerdictConflicting
		out.Confidence = 0.5 * float64(len(widen)+len(narrow)) / total
		out.Reason = "evidence points both ways"
	default:
		c := correct(d, conclusive, len(widen) > 0)
		out.Verdict = c.verdict
		out.Observed = c.observed
		out.Correctable = c.correctable
		out.Reason = c.reason
		if c.reason == "" && !c.correctable {
			out.Reason = "no correction can be computed"
		}
		supporting := 0
		for _, r := range conclusive {
			if c.consistent(r) {
				supporting++
			}
		}
		out.Confidence = float64(supporting) / total
		if c.verdict == specdrift.VerdictConflicting {
			out.Confidence = 0
		}
	}
	return out
}

type correction struct {
	verdict     specdrift.Verdict
	observed    any
	correctable bool
	reason      string
	consistent  func(prober.ProbeResult) bool
}

func accepted(r prober.ProbeResult) bool { return r.Outcome == specdrift.Accepted }

// correct derives the corrected constraint from one-directional evidence.
func correct(d extract.Descriptor, rs []prober.ProbeResult, widen bool) correction {
	k := d.Key.Kind
	verdict := specdrift.VerdictNarrow
	if widen {
		verdict = specdrift.VerdictWiden
	}
	removal := correction{
		verdict:     specdrift.VerdictRemove,
		correctable: true,
		consistent:  accepted,
	}
	// evidence that merely agrees with the verdict direction
	uncorrectable := correction{
		verdict: verdict,
		consistent: func(r prober.ProbeResult) bool {
			if widen {
				return r.Probe.Expect == specdrift.ShouldReject && accepted(r)
			}
			return r.Probe.Expect == specdrift.ShouldAccept && !accepted(r)
		},
	}

	switch {
	case k.IsBound():
		return boundCorrection(d, rs, widen)

	case k == specdrift.KindRequired:
		declared, _ := d.Declared.(bool)
		switch {
		case declared && widen:
			removal.observed = false
			return removal
		case !declared && !widen && omissionRejected(rs):
			return correction{
				verdict:     specdrift.VerdictNarrow,
				observed:    true,
				correctable: true,
				consistent:  func(r prober.ProbeResult) bool { return accepted(r) == !r.Probe.Omit },
			}
		}
		uncorrectable.reason = "rejection does not depend on the field's presence"
		return uncorrectable

	case k == specdrift.KindEnum:
		if widen {
			removal.reason = "values outside the enum are accepted"
			return removal
		}
		members, _ := d.Declared.([]any)
		var kept []any
		for _, m := range members {
			for _, r := range rs {
				if accepted(r) && r.Probe.Expect == specdrift.ShouldAccept && equalValue(r.Probe.Value, m) {
					kept = append(kept, m)
					break
				}
			}
		}
		if len(kept) == 0 {
			return correction{verdict: specdrift.VerdictConflicting, reason: "no declared member was accepted", consistent: accepted}
		}
		return correction{
			verdict:     specdrift.VerdictNarrow,
			observed:    kept,
			correctable: true,
			consistent: func(r prober.ProbeResult) bool {
				in := slices.ContainsFunc(kept, func(m any) bool { return equalValue(r.Probe.Value, m) })
				return accepted(r) == in
			},
		}

	case k == specdrift.KindPattern, k == specdrift.KindUniqueItems, k == specdrift.KindAdditionalProperties:
		if widen {
			return removal
		}
		uncorrectable.reason = string(k) + " is stricter than declared"
		return uncorrectable

	case k == specdrift.KindType:
		if !widen {
			uncorrectable.reason = "values of the declared type are rejected"
			return uncorrectable
		}
		declared, _ := d.Declared.(string)
		types := []string{declared}
		for _, r := range rs {
			if t := strings.TrimPrefix(r.Probe.Label, "type="); accepted(r) && !slices.Contains(types, t) {
				types = append(types, t)
			}
		}
		return correction{
			verdict:  specdrift.VerdictWiden,
			observed: types,
			reason:   "type changes need manual review",
			consistent: func(r prober.ProbeResult) bool {
				return accepted(r) == slices.Contains(types, strings.TrimPrefix(r.Probe.Label, "type="))
			},
		}
	}
	return uncorrectable
}

func omissionRejected(rs []prober.ProbeResult) bool {
	for _, r := range rs {
		if r.Probe.Omit && !accepted(r) {
			return true
		}
	}
	return false
}

// boundCorrection finds the bound implied by the boundary between accepted
// and rejected measures.
func boundCorrection(d extract.Descriptor, rs []prober.ProbeResult, widen bool) correction {
	k := d.Key.Kind
	unit := 1.0
	if d.Node != nil && d.Node.Type == "number" && (k == specdrift.KindMinimum || k == specdrift.KindMaximum ||
		k == specdrift.KindExclusiveMinimum || k == specdrift.KindExclusiveMaximum) {
		unit = 0
	}
	upper := !k.IsLower()
	exclusive := k == specdrift.KindExclusiveMinimum || k == specdrift.KindExclusiveMaximum

	// Mirror lower bounds so the logic below only deals with upper bounds.
	sign := 1.0
	if !upper {
		sign = -1
	}
	var acc, rej []float64
	for _, r := range rs {
		if math.IsNaN(r.Probe.Measure) {
			continue
		}
		if accepted(r) {
			acc = append(acc, sign*r.Probe.Measure)
		} else {
			rej = append(rej, sign*r.Probe.Measure)
		}
	}
	next := func(v float64) float64 {
		if unit == 0 {
			return math.Nextafter(v, math.Inf(1))
		}
		return v + unit
	}
	prev := func(v float64) float64 {
		if unit == 0 {
			return math.Nextafter(v, math.Inf(-1))
		}
		return v - unit
	}

	var bound float64
	if widen {
		a := slices.Max(acc)
		if exclusive {
			bound = next(a)
			if above := valuesAbove(rej, a); len(above) > 0 {
				bound = slices.Min(above)
			}
		} else {
			bound = a
		}
	} else {
		r := slices.Min(rej)
		if exclusive {
			bound = r
		} else {
			below := valuesBelow(acc, r)
			if len(below) > 0 {
				bound = slices.Max(below)
			} else {
				bound = prev(r)
			}
		}
	}
	bound *= sign
	if k == specdrift.KindMinLength || k == specdrift.KindMinItems {
		bound = math.Max(bound, 0)
	}

	inside := func(m float64) bool {
		switch k {
		case specdrift.KindMinLength, specdrift.KindMinItems, specdrift.KindMinimum:
			return m >= bound
		case specdrift.KindExclusiveMinimum:
			return m > bound
		case specdrift.KindExclusiveMaximum:
			return m < bound
		default:
			return m <= bound
		}
	}
	verdict := specdrift.VerdictNarrow
	if widen {
		verdict = specdrift.VerdictWiden
	}
	return correction{
		verdict:     verdict,
		observed:    bound,
		correctable: true,
		consistent: func(r prober.ProbeResult) bool {
			return accepted(r) == inside(r.Probe.Measure)
		},
	}
}

func valuesAbove(vs []float64, x float64) []float64 {
	var out []float64
	for _, v := range vs {
		if v > x {
			out = append(out, v)
		}
	}
	return out
}

func valuesBelow(vs []float64, x float64) []float64 {
	var out []float64
	for _, v := range vs {
		if v < x {
			out = append(out, v)
		}
	}
	return out
}

func equalValue(a, b any) bool {
	fa, aNum := number(a)
	fb, bNum := number(b)
	if aNum && bNum {
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}
