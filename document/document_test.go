package document_test

import (
	"errors"
	"strings"
	"testing"

	specdrift "github.com/robinmordasiewicz/specdrift"
	"github.com/robinmordasiewicz/specdrift/document"
)

func TestJSONRoundTripPreservesOrderAndLiterals(t *testing.T) {
	in := `{
  "zeta": 1,
  "alpha": {
    "max": 1.50,
    "big": 12345678901234567890,
    "list": [
      true,
      null,
      "x<y"
    ]
  },
  "empty": {},
  "none": []
}
`
	n, f, err := document.Parse([]byte(in))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f != document.FormatJSON {
		t.Fatalf("format = %v, want json", f)
	}
	if got := strings.Join(n.Keys(), ","); got != "zeta,alpha,empty,none" {
		t.Fatalf("keys = %s", got)
	}
	out, err := document.Encode(n, f)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(out) != in {
		t.Fatalf("round trip mismatch:\n%s", out)
	}
}

func TestJSONDuplicateKeyRejected(t *testing.T) {
	_, _, err := document.Parse([]byte(`{"a":{"b":1,"b":2}}`))
	var mse *specdrift.MalformedSpecError
	if !errors.As(err, &mse) {
		t.Fatalf("want MalformedSpecError, got %v", err)
	}
	if mse.Issues[0].Code != specdrift.CodeDuplicateKey || mse.Issues[0].Path != "/a/b" {
		t.Fatalf("unexpected issue: %+v", mse.Issues[0])
	}
}

func TestJSONTrailingDataRejected(t *testing.T) {
	if _, err := document.DecodeJSON([]byte(`{} {}`)); err == nil {
		t.Fatalf("expected error for trailing data")
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	in := `openapi: 3.0.3
info:
  title: Pets
  version: "1.0"
paths:
  /pets:
    post:
      requestBody:
        content:
          application/json:
            schema:
              type: object
              properties:
                name:
                  type: string
                  maxLength: 10
                tags:
                  type: array
                  items:
                    type: string
`
	n, f, err := document.Parse([]byte(in))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f != document.FormatYAML {
		t.Fatalf("format = %v, want yaml", f)
	}
	v, _ := n.Get("info").Get("version").Str()
	if v != "1.0" {
		t.Fatalf("quoted version should stay a string, got %q", v)
	}
	out, err := document.Encode(n, f)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	again, _, err := document.Parse(out)
	if err != nil {
		t.Fatalf("reparse: %v\n%s", err, out)
	}
	if !n.Equal(again) {
		t.Fatalf("yaml round trip not structurally equal:\n%s", out)
	}
}

func TestYAMLDuplicateKeyReportsPath(t *testing.T) {
	in := "a:\n  b: 1\n  b: 2\n"
	_, err := document.DecodeYAML([]byte(in))
	iss, ok := specdrift.AsIssues(err)
	if !ok || len(iss) == 0 {
		t.Fatalf("want issues, got %v", err)
	}
	if iss[0].Code != specdrift.CodeDuplicateKey || iss[0].Path != "/a/b" {
		t.Fatalf("unexpected issue: %+v", iss[0])
	}
}

func TestYAMLNumberForms(t *testing.T) {
	n, err := document.DecodeYAML([]byte("hex: 0x10\nf: 1.5\nb: yes\nt: true\n"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n.Get("hex").Scalar != "16" {
		t.Fatalf("hex = %q", n.Get("hex").Scalar)
	}
	if f, _ := n.Get("f").Float(); f != 1.5 {
		t.Fatalf("f = %v", f)
	}
	// YAML 1.2 keeps "yes" a string
	if n.Get("b").Kind != document.KindString {
		t.Fatalf("yes should be a string, got %v", n.Get("b").Kind)
	}
	if v, ok := n.Get("t").Bool(); !ok || !v {
		t.Fatalf("t should be true")
	}
}

func TestSetAfterAndDelete(t *testing.T) {
	n := document.NewObject()
	n.Set("type", document.NewString("object"))
	n.Set("properties", document.NewObject())
	n.SetAfter("type", "required", document.FromValue([]string{"name"}))
	if got := strings.Join(n.Keys(), ","); got != "type,required,properties" {
		t.Fatalf("keys = %s", got)
	}
	if !n.Delete("required") || n.Has("required") {
		t.Fatalf("delete failed")
	}
	if n.Delete("missing") {
		t.Fatalf("delete of missing key reported true")
	}
}

func TestLookupAndClone(t *testing.T) {
	n, err := document.DecodeJSON([]byte(`{"a/b":{"c~d":[1,2,{"e":"f"}]}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, ok := n.Lookup(specdrift.ParsePointer("/a~1b/c~0d/2/e"))
	if !ok || got.Scalar != "f" {
		t.Fatalf("lookup = %+v, %v", got, ok)
	}
	c := n.Clone()
	got.Scalar = "changed"
	if again, _ := c.Lookup(specdrift.ParsePointer("/a~1b/c~0d/2/e")); again.Scalar != "f" {
		t.Fatalf("clone shares storage with original")
	}
	if _, ok := n.Lookup(specdrift.ParsePointer("/a~1b/c~0d/9")); ok {
		t.Fatalf("out of range index should not resolve")
	}
}

func TestEqualComparesNumbersByValue(t *testing.T) {
	a, _ := document.DecodeJSON([]byte(`{"x":1.0}`))
	b, _ := document.DecodeJSON([]byte(`{"x":1}`))
	if !a.Equal(b) {
		t.Fatalf("1.0 and 1 should be equal")
	}
	c, _ := document.DecodeJSON([]byte(`{"y":1}`))
	if a.Equal(c) {
		t.Fatalf("different keys compared equal")
	}
}

func TestFromValueAndValue(t *testing.T) {
	n := document.FromValue(map[string]any{"b": []any{int64(1), 2.5, "s"}, "a": nil})
	if got := strings.Join(n.Keys(), ","); got != "a,b" {
		t.Fatalf("keys not sorted: %s", got)
	}
	v := n.Value().(map[string]any)
	arr := v["b"].([]any)
	if arr[0] != int64(1) || arr[1] != 2.5 || arr[2] != "s" {
		t.Fatalf("unexpected values: %#v", arr)
	}
	if document.FormatNumber(150) != "150" || document.FormatNumber(0.5) != "0.5" {
		t.Fatalf("FormatNumber mismatch")
	}
}

func TestYAMLKeepsCommentsAndQuoting(t *testing.T) {
	in := `# owned by the payments team

openapi: 3.1.0
info:
  title: 'Pay' # display name
  version: "1.0"
paths: {}
`
	n, f, err := document.Parse([]byte(in))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	out, err := document.Encode(n, f)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for _, want := range []string{"# owned by the payments team", "title: 'Pay' # display name", `version: "1.0"`, "paths: {}"} {
		if !strings.Contains(string(out), want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}

	n.Get("info").Set("version", document.NewString("2.0"))
	out, _ = document.Encode(n, f)
	if !strings.Contains(string(out), `version: "2.0"`) {
		t.Fatalf("replaced value lost its quoting:\n%s", out)
	}
}

func TestJSONKeepsIndentAndInlineContainers(t *testing.T) {
	in := "{\n" +
		"    \"openapi\": \"3.1.0\",\n" +
		"    \"tags\": [\"a\", \"b\"],\n" +
		"    \"x\": \"caf\\u00e9\",\n" +
		"    \"n\": {\"k\": 1}\n" +
		"}\n"
	n, f, err := document.Parse([]byte(in))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s, _ := n.Get("x").Str(); s != "café" {
		t.Fatalf("decoded string = %q", s)
	}
	out, _ := document.Encode(n, f)
	if string(out) != in {
		t.Fatalf("round trip mismatch:\n%s", out)
	}

	compact := `{"a":1,"b":[true,false]}`
	n, f, _ = document.Parse([]byte(compact))
	if out, _ := document.Encode(n, f); string(out) != compact {
		t.Fatalf("compact round trip = %s", out)
	}
}
