// Package reconcile writes accepted discrepancies back into a copy of the
// loaded document.
package reconcile

import (
	"fmt"
	"reflect"
	"slices"

	specdrift "github.com/robinmordasiewicz/specdrift"
	"github.com/robinmordasiewicz/specdrift/classify"
	"github.com/robinmordasiewicz/specdrift/document"
	"github.com/robinmordasiewicz/specdrift/schema"
)

// DefaultThreshold requires unanimous evidence before a correction is applied.
const DefaultThreshold = 1.0

// Options controls which discrepancies are applied automatically.
type Options struct {
	// Threshold is the minimum confidence for automatic application.
	// Zero means DefaultThreshold.
	Threshold float64
	// Allow further restricts application; nil allows everything that
	// passes the threshold.
	Allow func(classify.Discrepancy) (bool, error)
}

// Document is the reconciled working copy next to its untouched baseline.
type Document struct {
	Baseline *schema.Model
	Model    *schema.Model
	Applied  []classify.Discrepancy
	// Review holds non-confirmed discrepancies that were not applied.
	Review []classify.Discrepancy
}

// Serialize renders the reconciled document in the input format.
func (d *Document) Serialize() ([]byte, error) { return d.Model.Serialize() }

// SerializeAs renders the reconciled document in format f.
func (d *Document) SerializeAs(f document.Format) ([]byte, error) {
	return document.Encode(d.Model.Document(), f)
}

// Apply patches a clone of m with every eligible discrepancy. Patches are
// applied in key order, so the result does not depend on the order of ds.
// m is never modified.
func Apply(m *schema.Model, ds []classify.Discrepancy, opts Options) (*Document, error) {
	if opts.Threshold == 0 {
		opts.Threshold = DefaultThreshold
	}
	sorted := slices.Clone(ds)
	slices.SortStableFunc(sorted, func(a, b classify.Discrepancy) int {
		switch {
		case a.Key.Less(b.Key):
			return -1
		case b.Key.Less(a.Key):
			return 1
		}
		return 0
	})

	out := &Document{Baseline: m}
	doc := m.Document().Clone()
	for _, d := range sorted {
		if d.Verdict == specdrift.VerdictConfirmed {
			continue
		}
		ok, err := eligible(d, opts)
		if err != nil {
			return nil, fmt.Errorf("reconcile: %s: %w", d.Key, err)
		}
		if !ok {
			out.Review = append(out.Review, d)
			continue
		}
		if err := patch(doc, m, d); err != nil {
			return nil, fmt.Errorf("reconcile: %s: %w", d.Key, err)
		}
		out.Applied = append(out.Applied, d)
	}

	if len(out.Applied) == 0 {
		out.Model = m.Clone()
		return out, nil
	}
	next, err := m.Reload(doc)
	if err != nil {
		return nil, fmt.Errorf("reconcile: patched document does not load: %w", err)
	}
	out.Model = next
	return out, nil
}

func eligible(d classify.Discrepancy, opts Options) (bool, error) {
	switch d.Verdict {
	case specdrift.VerdictWiden, specdrift.VerdictNarrow, specdrift.VerdictRemove:
	default:
		return false, nil
	}
	if !d.Correctable || d.Key.Kind == specdrift.KindType || d.Confidence < opts.Threshold {
		return false, nil
	}
	if opts.Allow == nil {
		return true, nil
	}
	return opts.Allow(d)
}

// patch rewrites exactly one (path, kind) pair in doc.
func patch(doc *document.Node, m *schema.Model, d classify.Discrepancy) error {
	if d.Key.Kind == specdrift.KindRequired {
		return patchRequired(doc, d)
	}
	n, ok := m.NodeAt(d.Key.Path)
	if !ok {
		return fmt.Errorf("no schema at %s", d.Key.Path)
	}
	raw, ok := doc.Lookup(specdrift.ParsePointer(n.Path))
	if !ok || raw.Kind != document.KindObject {
		return fmt.Errorf("no schema object at %s", n.Path)
	}
	keyword := n.Keyword(d.Key.Kind)

	if d.Verdict == specdrift.VerdictRemove {
		raw.Delete(keyword)
		return nil
	}

	switch k := d.Key.Kind; {
	case k.IsBound():
		v, ok := d.Observed.(float64)
		if !ok {
			return fmt.Errorf("observed value %v is not numeric", d.Observed)
		}
		if !raw.Has(keyword) {
			return fmt.Errorf("%s is not declared", keyword)
		}
		raw.Set(keyword, &document.Node{Kind: document.KindNumber, Scalar: document.FormatNumber(v)})
	case k == specdrift.KindEnum:
		kept, _ := d.Observed.([]any)
		enum := raw.Get(keyword)
		if enum == nil || enum.Kind != document.KindArray {
			return fmt.Errorf("enum is not declared")
		}
		var items []*document.Node
		for _, it := range enum.Items {
			v := it.Value()
			if slices.ContainsFunc(kept, func(k any) bool { return reflect.DeepEqual(k, v) }) {
				items = append(items, it)
			}
		}
		enum.Items = items
	default:
		return fmt.Errorf("%s cannot be %s", k, d.Verdict)
	}
	return nil
}

// patchRequired edits the parent's required array for properties, or the
// parameter's required flag.
func patchRequired(doc *document.Node, d classify.Discrepancy) error {
	want, _ := d.Observed.(bool)
	desc := d.Descriptor

	if desc.Param != nil {
		raw, ok := doc.Lookup(specdrift.ParsePointer(desc.Param.Pointer))
		if !ok || raw.Kind != document.KindObject {
			return fmt.Errorf("no parameter at %s", desc.Param.Pointer)
		}
		if want {
			raw.SetAfter("in", "required", &document.Node{Kind: document.KindBool, Scalar: "true"})
		} else {
			raw.Delete("required")
		}
		return nil
	}

	obj := desc.Object
	if obj == nil {
		return fmt.Errorf("required has no owning object")
	}
	raw, ok := doc.Lookup(specdrift.ParsePointer(obj.Path))
	if !ok || raw.Kind != document.KindObject {
		return fmt.Errorf("no schema object at %s", obj.Path)
	}
	names := requiredNames(raw)
	has := slices.Contains(names, desc.Property)
	switch {
	case want && !has:
		order := map[string]int{}
		for i, p := range obj.Properties {
			order[p.Name] = i
		}
		at := len(names)
		for i, name := range names {
			if j, ok := order[name]; ok && j > order[desc.Property] {
				at = i
				break
			}
		}
		insertRequired(raw, slices.Insert(names, at, desc.Property))
	case !want && has:
		names = slices.DeleteFunc(names, func(s string) bool { return s == desc.Property })
		if len(names) == 0 {
			raw.Delete("required")
			return nil
		}
		insertRequired(raw, names)
	}
	return nil
}

func requiredNames(raw *document.Node) []string {
	arr := raw.Get("required")
	if arr == nil || arr.Kind != document.KindArray {
		return nil
	}
	var out []string
	for _, it := range arr.Items {
		if s, ok := it.Str(); ok {
			out = append(out, s)
		}
	}
	return out
}

func insertRequired(raw *document.Node, names []string) {
	if arr := raw.Get("required"); arr != nil && arr.Kind == document.KindArray {
		arr.Items = document.FromValue(names).Items
		return
	}
	raw.SetAfter("properties", "required", document.FromValue(names))
}
