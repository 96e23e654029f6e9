package schema

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	specdrift "github.com/robinmordasiewicz/specdrift"
	"github.com/robinmordasiewicz/specdrift/document"
)

// envelopeSchema is the subset of the OpenAPI 3.x document structure the
// loader depends on.
const envelopeSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["openapi", "info", "paths"],
  "properties": {
    "openapi": {"type": "string", "pattern": "^3\\.[0-9]+\\.[0-9]+"},
    "info": {
      "type": "object",
      "required": ["title", "version"],
      "properties": {
        "title": {"type": "string"},
        "version": {"type": "string"}
      }
    },
    "paths": {
      "type": "object",
      "propertyNames": {"pattern": "^(/|x-)"},
      "additionalProperties": {
        "type": "object",
        "properties": {
          "parameters": {"$ref": "#/$defs/parameters"},
          "get": {"$ref": "#/$defs/operation"},
          "put": {"$ref": "#/$defs/operation"},
          "post": {"$ref": "#/$defs/operation"},
          "delete": {"$ref": "#/$defs/operation"},
          "options": {"$ref": "#/$defs/operation"},
          "head": {"$ref": "#/$defs/operation"},
          "patch": {"$ref": "#/$defs/operation"},
          "trace": {"$ref": "#/$defs/operation"}
        }
      }
    },
    "components": {
      "type": "object",
      "properties": {
        "schemas": {
          "type": "object",
          "additionalProperties": {"type": ["object", "boolean"]}
        }
      }
    }
  },
  "$defs": {
    "operation": {
      "type": "object",
      "properties": {
        "operationId": {"type": "string"},
        "parameters": {"$ref": "#/$defs/parameters"},
        "requestBody": {"type": "object"},
        "responses": {"type": "object"}
      }
    },
    "parameters": {
      "type": "array",
      "items": {
        "type": "object",
        "if": {"not": {"required": ["$ref"]}},
        "then": {
          "required": ["name", "in"],
          "properties": {
            "name": {"type": "string"},
            "in": {"enum": ["query", "header", "path", "cookie"]}
          }
        }
      }
    }
  }
}`

const envelopeURL = "openapi-envelope.json"

var (
	envelopeOnce sync.Once
	envelope     *sjsonschema.Schema
	envelopeErr  error
)

func compiledEnvelope() (*sjsonschema.Schema, error) {
	envelopeOnce.Do(func() {
		doc, err := sjsonschema.UnmarshalJSON(strings.NewReader(envelopeSchema))
		if err != nil {
			envelopeErr = fmt.Errorf("schema: envelope: %w", err)
			return
		}
		c := sjsonschema.NewCompiler()
		if err := c.AddResource(envelopeURL, doc); err != nil {
			envelopeErr = fmt.Errorf("schema: envelope: %w", err)
			return
		}
		envelope, envelopeErr = c.Compile(envelopeURL)
	})
	return envelope, envelopeErr
}

// validateEnvelope checks the top-level OpenAPI structure and returns the
// violations ordered by location.
func validateEnvelope(doc *document.Node) specdrift.Issues {
	sch, err := compiledEnvelope()
	if err != nil {
		return specdrift.Issues{{Code: specdrift.CodeSchemaViolation, Message: err.Error()}}
	}
	err = sch.Validate(instance(doc))
	if err == nil {
		return nil
	}
	ve, ok := err.(*sjsonschema.ValidationError)
	if !ok {
		return specdrift.Issues{{Code: specdrift.CodeSchemaViolation, Message: err.Error()}}
	}
	p := message.NewPrinter(language.English)
	var out specdrift.Issues
	for _, cause := range flattenValidationErrors(ve) {
		loc := specdrift.Pointer(cause.InstanceLocation)
		is := specdrift.Issue{Path: loc.String(), Code: specdrift.CodeSchemaViolation, Message: cause.ErrorKind.LocalizedString(p)}
		switch k := cause.ErrorKind.(type) {
		case *kind.Required:
			is.Code = specdrift.CodeRequired
			if len(k.Missing) > 0 {
				is.Path = loc.Field(k.Missing[0]).String()
			}
		case *kind.Type:
			is.Code = specdrift.CodeInvalidType
		}
		if len(loc) == 1 && loc[0] == "openapi" && is.Code != specdrift.CodeInvalidType {
			is.Code = specdrift.CodeInvalidVersion
		}
		out = append(out, is)
	}
	slices.SortStableFunc(out, func(a, b specdrift.Issue) int { return strings.Compare(a.Path, b.Path) })
	return out
}

// flattenValidationErrors recursively collects all leaf validation errors.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

// instance converts the tree into the value shapes the validator expects,
// keeping number literals as json.Number.
func instance(n *document.Node) any {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case document.KindNumber:
		return json.Number(n.Scalar)
	case document.KindObject:
		m := make(map[string]any, len(n.Fields))
		for _, f := range n.Fields {
			m[f.Key] = instance(f.Value)
		}
		return m
	case document.KindArray:
		arr := make([]any, len(n.Items))
		for i, it := range n.Items {
			arr[i] = instance(it)
		}
		return arr
	default:
		return n.Value()
	}
}
