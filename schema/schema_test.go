package schema_test

import (
	"bytes"
	"errors"
	"os"
	"slices"
	"testing"

	specdrift "github.com/robinmordasiewicz/specdrift"
	"github.com/robinmordasiewicz/specdrift/schema"
)

func loadPets(t *testing.T) *schema.Model {
	t.Helper()
	b, err := os.ReadFile("testdata/pets.yaml")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	m, err := schema.Load(b, schema.Options{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return m
}

func TestLoadResolvesRefsToSharedNodes(t *testing.T) {
	m := loadPets(t)
	pet, ok := m.NodeAt("/components/schemas/Pet")
	if !ok {
		t.Fatalf("Pet not found")
	}
	owner, _ := pet.Property("owner")
	keeper, _ := pet.Property("keeper")
	if owner.Node != keeper.Node {
		t.Fatalf("diamond references should share one node")
	}
	if owner.Node.Path != "/components/schemas/Person" {
		t.Fatalf("owner path = %s", owner.Node.Path)
	}
	if owner.Site != "/components/schemas/Pet/properties/owner" {
		t.Fatalf("owner site = %s", owner.Site)
	}
	site, ok := m.NodeAt("/components/schemas/Pet/properties/owner")
	if !ok || site != owner.Node {
		t.Fatalf("ref site should resolve to target node")
	}
	op, ok := m.Operation("createPet")
	if !ok || op.Body == nil || op.Body.Schema != pet {
		t.Fatalf("request body should share the Pet node")
	}
}

func TestLoadConstraints(t *testing.T) {
	m := loadPets(t)
	name, ok := m.NodeAt("/components/schemas/Pet/properties/name")
	if !ok {
		t.Fatalf("name not found")
	}
	if v, _ := name.Bound(specdrift.KindMaxLength); v != 10 {
		t.Fatalf("maxLength = %v", v)
	}
	pet, _ := m.NodeAt("/components/schemas/Pet")
	if v, ok := pet.Constraint(specdrift.KindAdditionalProperties); !ok || v != false {
		t.Fatalf("additionalProperties = %v, %v", v, ok)
	}
	if !pet.IsRequired("name") || pet.IsRequired("owner") {
		t.Fatalf("required set wrong: %v", pet.Required)
	}
	weight, _ := m.NodeAt("/components/schemas/Pet/properties/weight")
	if _, ok := weight.Constraint(specdrift.KindMinimum); ok {
		t.Fatalf("3.0 exclusive minimum should replace minimum")
	}
	if v, _ := weight.Bound(specdrift.KindExclusiveMinimum); v != 0 || !weight.LegacyExclusive(specdrift.KindExclusiveMinimum) {
		t.Fatalf("exclusiveMinimum not normalized")
	}
	if weight.Keyword(specdrift.KindExclusiveMinimum) != "minimum" {
		t.Fatalf("legacy keyword = %s", weight.Keyword(specdrift.KindExclusiveMinimum))
	}
	kind, _ := m.NodeAt("/components/schemas/Pet/properties/kind")
	if kind.Composition == nil || kind.Composition.Kind != schema.OneOf || len(kind.Composition.Branches) != 2 {
		t.Fatalf("composition not built: %+v", kind.Composition)
	}
	if kind.Composition.Branches[1].Path != "/components/schemas/Pet/properties/kind/oneOf/1" {
		t.Fatalf("branch path = %s", kind.Composition.Branches[1].Path)
	}
}

func TestOperationsAndParameters(t *testing.T) {
	m := loadPets(t)
	ops := m.Operations()
	if len(ops) != 2 || ops[0].ID != "createPet" || ops[1].ID != "getPet" {
		t.Fatalf("unexpected operations")
	}
	create := ops[0]
	if len(create.Parameters) != 2 {
		t.Fatalf("want path-level + own parameter, got %d", len(create.Parameters))
	}
	trace := create.Parameters[1]
	if trace.Name != "X-Trace" || trace.In != specdrift.InHeader || trace.Pointer != "/components/parameters/Trace" {
		t.Fatalf("unexpected trace param: %+v", trace)
	}
	get := ops[1]
	if !get.Parameters[0].Required {
		t.Fatalf("path parameters are always required")
	}
	if len(create.Responses) != 1 || create.Responses[0].Status != "201" {
		t.Fatalf("responses not built")
	}
}

func TestRecursiveSchemaIsLegal(t *testing.T) {
	m := loadPets(t)
	tree, _ := m.NodeAt("/components/schemas/Tree")
	children, _ := tree.Property("children")
	if children.Node.Items != tree {
		t.Fatalf("recursive items should point back at Tree")
	}
	op, _ := m.Operation("getPet")
	if err := m.CheckReachable(op); err != nil {
		t.Fatalf("recursion is not an error: %v", err)
	}
	tr := m.NewTrail()
	depth := 0
	for cur := tree; cur != nil && tr.Enter(cur); depth++ {
		p, _ := cur.Property("children")
		cur = p.Node.Items
	}
	if depth != schema.DefaultUnrollDepth {
		t.Fatalf("unrolled %d times, want %d", depth, schema.DefaultUnrollDepth)
	}
}

func TestAllPathsDeterministic(t *testing.T) {
	a := loadPets(t).AllPaths()
	b := loadPets(t).AllPaths()
	if !slices.Equal(a, b) {
		t.Fatalf("AllPaths not stable")
	}
	if len(a) == 0 || a[0] != "/paths/~1pets/parameters/0/schema" {
		t.Fatalf("first path = %v", a[0])
	}
	seen := map[string]bool{}
	for _, p := range a {
		if seen[p] {
			t.Fatalf("duplicate path %s", p)
		}
		seen[p] = true
	}
}

func TestCloneIsIndependent(t *testing.T) {
	m := loadPets(t)
	c := m.Clone()
	cn, _ := c.NodeAt("/components/schemas/Pet/properties/name")
	cn.Raw().Set("maxLength", cn.Raw().Get("minLength"))
	on, _ := m.NodeAt("/components/schemas/Pet/properties/name")
	if v, _ := on.Raw().Get("maxLength").Float(); v != 10 {
		t.Fatalf("mutating the clone changed the original")
	}
}

func TestRoundTripSerialize(t *testing.T) {
	b, _ := os.ReadFile("testdata/pets.yaml")
	m := loadPets(t)
	out, err := m.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if !bytes.Equal(out, b) {
		t.Fatalf("unchanged model should serialize to its input")
	}
	again, err := schema.Load(out, schema.Options{})
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	orig, _ := schema.Load(b, schema.Options{})
	if !orig.Document().Equal(again.Document()) {
		t.Fatalf("round trip changed the document")
	}
}

func TestMalformedEnvelope(t *testing.T) {
	cases := map[string]string{
		"missing info": `{"openapi":"3.0.0","paths":{}}`,
		"bad version":  `{"openapi":"2.0","info":{"title":"x","version":"1"},"paths":{}}`,
		"bad param":    `{"openapi":"3.1.0","info":{"title":"x","version":"1"},"paths":{"/a":{"get":{"parameters":[{"name":"q","in":"body"}]}}}}`,
	}
	for name, doc := range cases {
		_, err := schema.Load([]byte(doc), schema.Options{})
		var mse *specdrift.MalformedSpecError
		if !errors.As(err, &mse) {
			t.Fatalf("%s: want MalformedSpecError, got %v", name, err)
		}
	}
	_, err := schema.Load([]byte(`{"openapi":"2.0","info":{"title":"x","version":"1"},"paths":{}}`), schema.Options{})
	iss, _ := specdrift.AsIssues(err)
	if iss[0].Code != specdrift.CodeInvalidVersion || iss[0].Path != "/openapi" {
		t.Fatalf("first issue = %+v", iss[0])
	}
}

func TestDanglingRefIsMalformed(t *testing.T) {
	doc := `{"openapi":"3.0.0","info":{"title":"x","version":"1"},"paths":{},
"components":{"schemas":{"A":{"$ref":"#/components/schemas/Missing"}}}}`
	_, err := schema.Load([]byte(doc), schema.Options{})
	iss, ok := specdrift.AsIssues(err)
	if !ok || iss[0].Code != specdrift.CodeDanglingRef {
		t.Fatalf("want dangling_ref issue, got %v", err)
	}
}

func TestPureRefCycleIsPerOperation(t *testing.T) {
	doc := `{"openapi":"3.0.0","info":{"title":"x","version":"1"},
"paths":{
 "/a":{"post":{"operationId":"a","requestBody":{"content":{"application/json":{"schema":{"$ref":"#/components/schemas/A"}}}}}},
 "/b":{"post":{"operationId":"b","requestBody":{"content":{"application/json":{"schema":{"type":"string"}}}}}}},
"components":{"schemas":{
 "A":{"$ref":"#/components/schemas/B"},
 "B":{"$ref":"#/components/schemas/A"},
 "C":{"allOf":[{"$ref":"#/components/schemas/C"}]}}}}`
	m, err := schema.Load([]byte(doc), schema.Options{})
	if err != nil {
		t.Fatalf("cycles must not fail the whole load: %v", err)
	}
	a, _ := m.Operation("a")
	var cre *specdrift.CyclicReferenceError
	if err := m.CheckReachable(a); !errors.As(err, &cre) {
		t.Fatalf("want CyclicReferenceError, got %v", err)
	}
	b, _ := m.Operation("b")
	if err := m.CheckReachable(b); err != nil {
		t.Fatalf("unrelated operation affected: %v", err)
	}
	c, _ := m.NodeAt("/components/schemas/C")
	if !errors.As(c.Err, &cre) {
		t.Fatalf("composition-only cycle not detected: %v", c.Err)
	}
}

func TestInvalidKeywordIsMalformed(t *testing.T) {
	doc := `{"openapi":"3.1.0","info":{"title":"x","version":"1"},"paths":{},
"components":{"schemas":{"A":{"type":"string","maxLength":-1}}}}`
	_, err := schema.Load([]byte(doc), schema.Options{})
	iss, ok := specdrift.AsIssues(err)
	if !ok || iss[0].Code != specdrift.CodeInvalidKeyword || iss[0].Path != "/components/schemas/A/maxLength" {
		t.Fatalf("unexpected: %v", err)
	}
}
