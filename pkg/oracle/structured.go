package oracle

import (
	"encoding/json"
	"reflect"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
)

const structuredSystemPrompt = "You are a helpful assistant that generates structured JSON output according to the specified schema. Always respond with valid JSON only, no additional text or explanations."

var schemaCache sync.Map // reflect.Type -> string

// SchemaFor returns the indented JSON Schema of v's type.
func SchemaFor(v any) string {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	if cached, ok := schemaCache.Load(t); ok {
		return cached.(string)
	}

	r := new(jsonschema.Reflector)
	r.ExpandedStruct = true
	r.DoNotReference = true
	r.RequiredFromJSONSchemaTags = true

	data, err := json.MarshalIndent(r.ReflectFromType(t), "", "  ")
	if err != nil {
		return ""
	}
	schema := string(data)
	schemaCache.Store(t, schema)
	return schema
}

// WithSchema appends the JSON-only instructions for schema to prompt.
func WithSchema(prompt, schema string) string {
	var parts []string
	parts = append(parts, prompt)
	if schema != "" {
		parts = append(parts, "\n\nIMPORTANT: You must respond with valid JSON that exactly matches this schema:")
		parts = append(parts, "\nSchema:\n")
		parts = append(parts, schema)
	} else {
		parts = append(parts, "\n\nIMPORTANT: You must respond with valid JSON that matches the expected structure.")
	}
	parts = append(parts, "\n\nCRITICAL: Return ONLY the JSON object. No markdown, no explanations.")
	return strings.Join(parts, "")
}
