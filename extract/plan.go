package extract

import (
	"slices"

	specdrift "github.com/robinmordasiewicz/specdrift"
	"github.com/robinmordasiewicz/specdrift/schema"
)

// DefaultMaxContexts is how many endpoint contexts are kept per key.
const DefaultMaxContexts = 2

// Options filters and bounds a Plan.
type Options struct {
	// Operations restricts extraction to these operationIds (or
	// "METHOD path" names). Empty means all.
	Operations []string
	// MaxContexts caps contexts per key; zero selects DefaultMaxContexts.
	MaxContexts int
}

// Skipped records an operation left out of the plan.
type Skipped struct {
	Operation string
	Err       error
}

// Plan is the extraction result over a whole document.
type Plan struct {
	Descriptors []Descriptor
	Skipped     []Skipped
}

// All extracts every operation independently. An operation that fails
// extraction is recorded in Skipped and the rest of the document is still
// planned.
func All(m *schema.Model, opts Options) Plan {
	if opts.MaxContexts <= 0 {
		opts.MaxContexts = DefaultMaxContexts
	}
	var plan Plan
	perKey := map[specdrift.Key]int{}
	for _, op := range m.Operations() {
		if len(opts.Operations) > 0 && !slices.Contains(opts.Operations, op.ID) && !slices.Contains(opts.Operations, op.Method+" "+op.Path) {
			continue
		}
		ds, err := Extract(m, op)
		if err != nil {
			plan.Skipped = append(plan.Skipped, Skipped{Operation: op.Name(), Err: err})
			continue
		}
		for _, d := range ds {
			if d.Context.Location.Probeable() {
				if perKey[d.Key] >= opts.MaxContexts {
					continue
				}
				perKey[d.Key]++
			}
			plan.Descriptors = append(plan.Descriptors, d)
		}
	}
	return plan
}

// Probeable returns the descriptors that can be tested with a request.
func (p Plan) Probeable() []Descriptor {
	var out []Descriptor
	for _, d := range p.Descriptors {
		if d.Context.Location.Probeable() {
			out = append(out, d)
		}
	}
	return out
}

// Keys returns the distinct probeable keys in first-seen order.
func (p Plan) Keys() []specdrift.Key {
	seen := map[specdrift.Key]bool{}
	var out []specdrift.Key
	for _, d := range p.Descriptors {
		if !d.Context.Location.Probeable() || seen[d.Key] {
			continue
		}
		seen[d.Key] = true
		out = append(out, d.Key)
	}
	return out
}
