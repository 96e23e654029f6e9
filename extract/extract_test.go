package extract_test

import (
	"os"
	"testing"

	specdrift "github.com/robinmordasiewicz/specdrift"
	"github.com/robinmordasiewicz/specdrift/extract"
	"github.com/robinmordasiewicz/specdrift/schema"
)

func load(t *testing.T) *schema.Model {
	t.Helper()
	b, err := os.ReadFile("../schema/testdata/pets.yaml")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	m, err := schema.Load(b, schema.Options{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return m
}

func find(ds []extract.Descriptor, path string, k specdrift.Kind) (extract.Descriptor, bool) {
	for _, d := range ds {
		if d.Key.Path == path && d.Key.Kind == k {
			return d, true
		}
	}
	return extract.Descriptor{}, false
}

func TestExtractBodyConstraints(t *testing.T) {
	m := load(t)
	op, _ := m.Operation("createPet")
	ds, err := extract.Extract(m, op)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	d, ok := find(ds, "/components/schemas/Pet/properties/name", specdrift.KindMaxLength)
	if !ok || d.Declared != 10.0 || d.Context.Location != specdrift.InBody {
		t.Fatalf("maxLength descriptor = %+v, %v", d, ok)
	}
	if len(d.Context.Steps) != 1 || d.Context.Steps[0].Name != "name" {
		t.Fatalf("steps = %+v", d.Context.Steps)
	}
	req, ok := find(ds, "/components/schemas/Pet/properties/name", specdrift.KindRequired)
	if !ok || req.Declared != true || req.Property != "name" {
		t.Fatalf("required(name) = %+v", req)
	}
	opt, ok := find(ds, "/components/schemas/Pet/properties/owner", specdrift.KindRequired)
	if !ok || opt.Declared != false {
		t.Fatalf("required(owner) = %+v", opt)
	}
	if _, ok := find(ds, "/components/schemas/Pet", specdrift.KindAdditionalProperties); !ok {
		t.Fatalf("additionalProperties descriptor missing")
	}
	if _, ok := find(ds, "/components/schemas/Pet", specdrift.KindType); !ok {
		t.Fatalf("type descriptor missing")
	}
}

func TestBranchesExtractedIndependently(t *testing.T) {
	m := load(t)
	op, _ := m.Operation("createPet")
	ds, _ := extract.Extract(m, op)
	enum, ok := find(ds, "/components/schemas/Pet/properties/kind/oneOf/0", specdrift.KindEnum)
	if !ok || enum.Context.Branch() != 0 {
		t.Fatalf("enum branch = %+v", enum)
	}
	max, ok := find(ds, "/components/schemas/Pet/properties/kind/oneOf/1", specdrift.KindMaximum)
	if !ok || max.Context.Branch() != 1 {
		t.Fatalf("maximum branch = %+v", max)
	}
	if _, ok := find(ds, "/components/schemas/Pet/properties/kind/oneOf/0", specdrift.KindMaximum); ok {
		t.Fatalf("sibling branch constraint leaked")
	}
}

func TestParametersAndResponses(t *testing.T) {
	m := load(t)
	op, _ := m.Operation("createPet")
	ds, _ := extract.Extract(m, op)
	trace, ok := find(ds, "/components/parameters/Trace", specdrift.KindRequired)
	if !ok || trace.Declared != false || trace.Param == nil {
		t.Fatalf("header required = %+v", trace)
	}
	limit, ok := find(ds, "/paths/~1pets/parameters/0/schema", specdrift.KindMaximum)
	if !ok || limit.Context.Location != specdrift.InQuery || limit.Context.Param != "limit" {
		t.Fatalf("limit maximum = %+v", limit)
	}
	get, _ := m.Operation("getPet")
	gds, _ := extract.Extract(m, get)
	if _, ok := find(gds, "/paths/~1pets~1{id}/get/parameters/0", specdrift.KindRequired); ok {
		t.Fatalf("path parameters have no required descriptor")
	}
	var resp int
	for _, d := range gds {
		if d.Context.Location == specdrift.InResponse {
			resp++
		}
	}
	if resp == 0 {
		t.Fatalf("response descriptors should be extracted")
	}
}

func TestAllIsDeterministicAndFiltered(t *testing.T) {
	m := load(t)
	a := extract.All(m, extract.Options{})
	b := extract.All(m, extract.Options{})
	if len(a.Descriptors) != len(b.Descriptors) {
		t.Fatalf("length differs")
	}
	for i := range a.Descriptors {
		if a.Descriptors[i].Key != b.Descriptors[i].Key {
			t.Fatalf("order differs at %d", i)
		}
	}
	only := extract.All(m, extract.Options{Operations: []string{"getPet"}})
	for _, d := range only.Descriptors {
		if d.Context.Operation.ID != "getPet" {
			t.Fatalf("filter leaked %s", d.Context.Operation.Name())
		}
	}
	for _, d := range only.Probeable() {
		if d.Context.Location == specdrift.InResponse {
			t.Fatalf("response descriptor reported probeable")
		}
	}
}

func TestMaxContextsPerKey(t *testing.T) {
	m := load(t)
	plan := extract.All(m, extract.Options{MaxContexts: 1})
	count := map[specdrift.Key]int{}
	for _, d := range plan.Probeable() {
		count[d.Key]++
		if count[d.Key] > 1 {
			t.Fatalf("key %s kept more than one context", d.Key)
		}
	}
}

func TestCyclicOperationSkipped(t *testing.T) {
	doc := `{"openapi":"3.0.0","info":{"title":"x","version":"1"},
"paths":{
 "/a":{"post":{"operationId":"a","requestBody":{"content":{"application/json":{"schema":{"$ref":"#/components/schemas/A"}}}}}},
 "/b":{"post":{"operationId":"b","requestBody":{"content":{"application/json":{"schema":{"type":"string","maxLength":3}}}}}}},
"components":{"schemas":{"A":{"$ref":"#/components/schemas/B"},"B":{"$ref":"#/components/schemas/A"}}}}`
	m, err := schema.Load([]byte(doc), schema.Options{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	plan := extract.All(m, extract.Options{})
	if len(plan.Skipped) != 1 || plan.Skipped[0].Operation != "a" {
		t.Fatalf("skipped = %+v", plan.Skipped)
	}
	if len(plan.Descriptors) == 0 {
		t.Fatalf("operation b should still be planned")
	}
}
