package probe

import (
	"net/url"
	"strconv"
	"strings"

	j "github.com/goccy/go-json"

	specdrift "github.com/robinmordasiewicz/specdrift"
	"github.com/robinmordasiewicz/specdrift/document"
	"github.com/robinmordasiewicz/specdrift/extract"
	"github.com/robinmordasiewicz/specdrift/schema"
)

// Request is a probe rendered against its operation. Path is the expanded
// template, relative to the API base URL.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Header  map[string]string
	Body    any
	HasBody bool
}

// Request embeds p into a complete request for d's operation. Parameters
// that are required or configured get values; the body carries the probe
// value at the descriptor's position and synthesized values elsewhere.
func (g *Generator) Request(d extract.Descriptor, p Probe) Request {
	ctx := d.Context
	op := ctx.Operation
	req := Request{
		Method: op.Method,
		Query:  url.Values{},
		Header: map[string]string{},
	}
	path := op.Path
	for _, prm := range op.Parameters {
		target := ctx.Location == prm.In && ctx.Param == prm.Name
		var (
			text    string
			present bool
		)
		switch {
		case target && p.Omit:
			present = false
		case target && len(ctx.Steps) == 0:
			text, present = render(p.Value), true
		case target:
			text, present = render(g.place(prm.Schema, ctx.Steps, 0, p.Value)), true
		default:
			if v, ok := g.opts.Params[prm.Name]; ok {
				text, present = v, true
			} else if prm.Required {
				text, present = render(g.Minimal(prm.Schema)), true
			}
		}
		if !present {
			continue
		}
		switch prm.In {
		case specdrift.InPath:
			path = strings.ReplaceAll(path, "{"+prm.Name+"}", url.PathEscape(text))
		case specdrift.InQuery:
			req.Query.Set(prm.Name, text)
		case specdrift.InHeader:
			req.Header[prm.Name] = text
		}
	}
	req.Path = path
	if op.Body != nil && op.Body.Schema != nil {
		req.HasBody = true
		if ctx.Location == specdrift.InBody {
			req.Body = g.place(op.Body.Schema, ctx.Steps, 0, p.Value)
		} else {
			req.Body = g.Minimal(op.Body.Schema)
		}
	}
	return req
}

// place builds a value for n in which the node reached by steps[i:] is
// replaced with leaf.
func (g *Generator) place(n *schema.Node, steps []extract.Step, i int, leaf any) any {
	if i == len(steps) {
		return leaf
	}
	st := steps[i]
	parent := st.Parent
	if parent == nil {
		parent = n
	}
	switch st.Kind {
	case extract.StepProperty:
		base, _ := g.Minimal(parent).(map[string]any)
		obj := make(map[string]any, len(base)+1)
		for k, v := range base {
			obj[k] = v
		}
		prop, _ := parent.Property(st.Name)
		obj[st.Name] = g.place(prop.Node, steps, i+1, leaf)
		return obj
	case extract.StepItem:
		base, _ := g.Minimal(parent).([]any)
		arr := append([]any(nil), base...)
		if len(arr) == 0 {
			arr = []any{nil}
		}
		arr[0] = g.place(parent.Items, steps, i+1, leaf)
		return arr
	case extract.StepBranch:
		br := parent.Composition.Branches[st.Index]
		sub := g.place(br, steps, i+1, leaf)
		if st.Composition != schema.AllOf {
			return sub
		}
		base, ok := g.Minimal(parent).(map[string]any)
		subObj, subOK := sub.(map[string]any)
		if !ok || !subOK {
			return sub
		}
		merged := make(map[string]any, len(base)+len(subObj))
		for k, v := range base {
			merged[k] = v
		}
		for k, v := range subObj {
			merged[k] = v
		}
		// a required omission inside the branch must survive the merge
		for k := range base {
			if _, kept := subObj[k]; !kept && branchDeclares(br, k) {
				delete(merged, k)
			}
		}
		return merged
	}
	return leaf
}

func branchDeclares(n *schema.Node, name string) bool {
	_, ok := n.Property(name)
	return ok
}

// render converts a value into parameter text: scalars verbatim, arrays as
// comma separated lists, objects as JSON.
func render(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return document.FormatNumber(t)
	case []any:
		parts := make([]string, len(t))
		for i, it := range t {
			parts[i] = render(it)
		}
		return strings.Join(parts, ",")
	default:
		b, err := j.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
