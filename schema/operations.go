package schema

import (
	"strings"

	specdrift "github.com/robinmordasiewicz/specdrift"
	"github.com/robinmordasiewicz/specdrift/document"
)

var methods = map[string]bool{
	"get": true, "put": true, "post": true, "delete": true,
	"options": true, "head": true, "patch": true, "trace": true,
}

// Operation is one method on one path template.
type Operation struct {
	ID         string
	Method     string // upper case
	Path       string // template, e.g. /pets/{id}
	Pointer    string // e.g. /paths/~1pets~1{id}/get
	Parameters []Parameter
	Body       *Body
	Responses  []Response
}

// Name returns the operationId, or "METHOD path" when none is declared.
func (o *Operation) Name() string {
	if o.ID != "" {
		return o.ID
	}
	return o.Method + " " + o.Path
}

// Parameter is a path, query or header parameter.
type Parameter struct {
	Name     string
	In       specdrift.Location
	Required bool
	Pointer  string // the parameter object, after $ref resolution
	Schema   *Node
}

// Body is the request body schema for the preferred media type.
type Body struct {
	Pointer   string
	MediaType string
	Required  bool
	Schema    *Node
}

// Response is a response schema for one status code.
type Response struct {
	Status    string
	MediaType string
	Schema    *Node
}

func (b *builder) buildOperations() {
	paths := b.doc.Get("paths")
	if paths == nil {
		return
	}
	for _, tmpl := range paths.Keys() {
		if !strings.HasPrefix(tmpl, "/") {
			continue
		}
		itemPtr := specdrift.Pointer{"paths", tmpl}
		item := paths.Get(tmpl)
		if _, isRef := refOf(item); isRef {
			b.diag.warnf("path item $ref at %s not supported", itemPtr.String())
			continue
		}
		shared := b.parameters(itemPtr.Field("parameters"), item.Get("parameters"))
		for _, m := range item.Keys() {
			if !methods[m] {
				continue
			}
			opPtr := itemPtr.Field(m)
			raw := item.Get(m)
			op := &Operation{
				Method:  strings.ToUpper(m),
				Path:    tmpl,
				Pointer: opPtr.String(),
			}
			op.ID, _ = raw.Get("operationId").Str()
			op.Parameters = mergeParameters(shared, b.parameters(opPtr.Field("parameters"), raw.Get("parameters")))
			if rb := raw.Get("requestBody"); rb != nil {
				op.Body = b.requestBody(opPtr.Field("requestBody"))
			}
			if rs := raw.Get("responses"); rs != nil {
				for _, status := range rs.Keys() {
					if r, ok := b.response(opPtr.Field("responses").Field(status), status); ok {
						op.Responses = append(op.Responses, r)
					}
				}
			}
			b.ops = append(b.ops, op)
		}
	}
}

func (b *builder) parameters(p specdrift.Pointer, raw *document.Node) []Parameter {
	if raw == nil || raw.Kind != document.KindArray {
		return nil
	}
	var out []Parameter
	for i := range raw.Items {
		target, obj, ok := b.resolveObject(p.Index(i))
		if !ok || obj == nil {
			continue
		}
		name, _ := obj.Get("name").Str()
		in, _ := obj.Get("in").Str()
		loc := specdrift.Location(in)
		switch loc {
		case specdrift.InPath, specdrift.InQuery, specdrift.InHeader:
		default:
			// cookie parameters are not probed
			continue
		}
		prm := Parameter{Name: name, In: loc, Pointer: target.String()}
		prm.Required, _ = obj.Get("required").Bool()
		if loc == specdrift.InPath {
			prm.Required = true
		}
		if obj.Has("schema") {
			prm.Schema = b.schemaAt(target.Field("schema"))
		}
		out = append(out, prm)
	}
	return out
}

// mergeParameters lets operation parameters override path-level ones with
// the same name and location.
func mergeParameters(shared, own []Parameter) []Parameter {
	out := make([]Parameter, 0, len(shared)+len(own))
	for _, s := range shared {
		overridden := false
		for _, o := range own {
			if o.Name == s.Name && o.In == s.In {
				overridden = true
				break
			}
		}
		if !overridden {
			out = append(out, s)
		}
	}
	return append(out, own...)
}

func (b *builder) requestBody(p specdrift.Pointer) *Body {
	target, obj, ok := b.resolveObject(p)
	if !ok || obj == nil {
		return nil
	}
	mt, ok := preferredMediaType(obj.Get("content"))
	if !ok {
		return nil
	}
	body := &Body{Pointer: target.String(), MediaType: mt}
	body.Required, _ = obj.Get("required").Bool()
	schemaPtr := target.Field("content").Field(mt).Field("schema")
	if _, ok := b.doc.Lookup(schemaPtr); ok {
		body.Schema = b.schemaAt(schemaPtr)
	}
	return body
}

func (b *builder) response(p specdrift.Pointer, status string) (Response, bool) {
	target, obj, ok := b.resolveObject(p)
	if !ok || obj == nil {
		return Response{}, false
	}
	mt, ok := preferredMediaType(obj.Get("content"))
	if !ok {
		return Response{}, false
	}
	schemaPtr := target.Field("content").Field(mt).Field("schema")
	if _, ok := b.doc.Lookup(schemaPtr); !ok {
		return Response{}, false
	}
	return Response{Status: status, MediaType: mt, Schema: b.schemaAt(schemaPtr)}, true
}

// preferredMediaType picks application/json, then any JSON media type, then
// the first declared one.
func preferredMediaType(content *document.Node) (string, bool) {
	keys := content.Keys()
	if len(keys) == 0 {
		return "", false
	}
	for _, k := range keys {
		if k == "application/json" {
			return k, true
		}
	}
	for _, k := range keys {
		if strings.Contains(k, "json") {
			return k, true
		}
	}
	return keys[0], true
}
