// Package extract turns a schema model into constraint descriptors. It never
// touches live data: the output is a pure function of the model.
package extract

import (
	"fmt"
	"strings"

	specdrift "github.com/robinmordasiewicz/specdrift"
	"github.com/robinmordasiewicz/specdrift/schema"
)

// StepKind says how a Step descends from its parent schema.
type StepKind int

const (
	StepProperty StepKind = iota
	StepItem
	StepBranch
)

// Step is one hop from the root schema of a request location to the node
// under test.
type Step struct {
	Kind        StepKind
	Name        string                 // property name for StepProperty
	Index       int                    // branch index for StepBranch
	Composition schema.CompositionKind // for StepBranch
	Parent      *schema.Node
}

func (s Step) String() string {
	switch s.Kind {
	case StepItem:
		return "[]"
	case StepBranch:
		return fmt.Sprintf("%s[%d]", s.Composition, s.Index)
	default:
		return "." + s.Name
	}
}

// Context identifies where in which operation a constraint is exercised.
type Context struct {
	Operation *schema.Operation
	Location  specdrift.Location
	Param     string // parameter name, or response status
	Root      *schema.Node
	Steps     []Step
}

// Branch returns the innermost composition branch index, or -1.
func (c Context) Branch() int {
	for i := len(c.Steps) - 1; i >= 0; i-- {
		if c.Steps[i].Kind == StepBranch {
			return c.Steps[i].Index
		}
	}
	return -1
}

func (c Context) String() string {
	b := &strings.Builder{}
	b.WriteString(c.Operation.Name())
	b.WriteString(" ")
	b.WriteString(string(c.Location))
	if c.Param != "" {
		b.WriteString(":" + c.Param)
	}
	for _, s := range c.Steps {
		b.WriteString(s.String())
	}
	return b.String()
}

func (c Context) with(s Step) Context {
	c.Steps = append(append([]Step(nil), c.Steps...), s)
	return c
}

// Descriptor is one declared constraint in one endpoint context.
type Descriptor struct {
	Key      specdrift.Key
	Declared any
	Context  Context
	// Node carries the constraint. For required descriptors it is the
	// property's schema (nil for parameters).
	Node *schema.Node
	// Object and Property are set for required descriptors on object
	// members.
	Object   *schema.Node
	Property string
	// Param is set for required descriptors on parameters.
	Param *schema.Parameter
}

// Extract lists the descriptors reachable from op. Cyclic references that
// never reach a concrete schema fail the operation.
func Extract(m *schema.Model, op *schema.Operation) ([]Descriptor, error) {
	if err := m.CheckReachable(op); err != nil {
		return nil, err
	}
	w := &walker{trail: m.NewTrail(), seen: map[string]bool{}}
	for i := range op.Parameters {
		p := &op.Parameters[i]
		ctx := Context{Operation: op, Location: p.In, Param: p.Name, Root: p.Schema}
		if p.In != specdrift.InPath {
			w.emit(Descriptor{
				Key:      specdrift.Key{Path: p.Pointer, Kind: specdrift.KindRequired},
				Declared: p.Required,
				Context:  ctx,
				Node:     p.Schema,
				Param:    p,
			})
		}
		w.walk(p.Schema, ctx)
	}
	if op.Body != nil && op.Body.Schema != nil {
		w.walk(op.Body.Schema, Context{Operation: op, Location: specdrift.InBody, Root: op.Body.Schema})
	}
	for _, r := range op.Responses {
		w.walk(r.Schema, Context{Operation: op, Location: specdrift.InResponse, Param: r.Status, Root: r.Schema})
	}
	return w.out, nil
}

type walker struct {
	trail *schema.Trail
	seen  map[string]bool
	out   []Descriptor
}

// emit keeps the first (shallowest) occurrence of a key per location.
func (w *walker) emit(d Descriptor) {
	id := fmt.Sprintf("%s|%s|%s", d.Key, d.Context.Location, d.Context.Param)
	if w.seen[id] {
		return
	}
	w.seen[id] = true
	w.out = append(w.out, d)
}

func (w *walker) walk(n *schema.Node, ctx Context) {
	if n == nil || n.Opaque || n.Err != nil {
		return
	}
	if !w.trail.Enter(n) {
		return
	}
	defer w.trail.Leave(n)

	if n.Type != "" && n.Type != "null" {
		w.emit(Descriptor{Key: specdrift.Key{Path: n.Path, Kind: specdrift.KindType}, Declared: n.Type, Context: ctx, Node: n})
	}
	for _, k := range specdrift.Kinds {
		if k == specdrift.KindType || k == specdrift.KindRequired {
			continue
		}
		if v, ok := n.Constraints[k]; ok {
			w.emit(Descriptor{Key: specdrift.Key{Path: n.Path, Kind: k}, Declared: v, Context: ctx, Node: n})
		}
	}
	for _, p := range n.Properties {
		w.emit(Descriptor{
			Key:      specdrift.Key{Path: p.Site, Kind: specdrift.KindRequired},
			Declared: n.IsRequired(p.Name),
			Context:  ctx,
			Node:     p.Node,
			Object:   n,
			Property: p.Name,
		})
		w.walk(p.Node, ctx.with(Step{Kind: StepProperty, Name: p.Name, Parent: n}))
	}
	if n.Items != nil {
		w.walk(n.Items, ctx.with(Step{Kind: StepItem, Parent: n}))
	}
	if n.Composition != nil {
		for i, br := range n.Composition.Branches {
			w.walk(br, ctx.with(Step{Kind: StepBranch, Index: i, Composition: n.Composition.Kind, Parent: n}))
		}
	}
}
