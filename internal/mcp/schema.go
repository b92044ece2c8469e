package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// emptyObjectSchema is the parameterless schema substituted for
// incompatible remote schemas.
func emptyObjectSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

// NormalizeSchema turns a remote inputSchema into an object-rooted schema.
// Anything whose root type is not "object" (including a missing or
// unparseable schema) is replaced by an empty-object schema and
// ErrSchemaIncompatible is returned with it. The replacement is lossy:
// the tool stays callable but the model sees no parameters.
func NormalizeSchema(raw json.RawMessage) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return emptyObjectSchema(), nil
	}

	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return emptyObjectSchema(), fmt.Errorf("%w: %v", ErrSchemaIncompatible, err)
	}

	typ, hasType := schema["type"]
	if !hasType {
		// No declared type but object keywords present: treat as object.
		if _, ok := schema["properties"]; !ok {
			return emptyObjectSchema(), fmt.Errorf("%w: no type declared", ErrSchemaIncompatible)
		}
		schema["type"] = "object"
	} else if s, ok := typ.(string); !ok || s != "object" {
		return emptyObjectSchema(), fmt.Errorf("%w: root type %v", ErrSchemaIncompatible, typ)
	}

	if _, ok := schema["properties"].(map[string]any); !ok {
		schema["properties"] = map[string]any{}
	}
	return schema, nil
}

// ValidateArguments checks args against the tool's input schema.
// Schemas that fail to compile are not enforced; the remote server
// remains the authority on argument shape.
func ValidateArguments(def ToolDefinition, args json.RawMessage) error {
	if def.InputSchema == nil {
		return nil
	}

	schemaBytes, err := json.Marshal(def.InputSchema)
	if err != nil {
		return nil
	}
	schemaDoc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaBytes))
	if err != nil {
		return nil
	}

	c := jsonschema.NewCompiler()
	const resource = "tool-input.schema.json"
	if err := c.AddResource(resource, schemaDoc); err != nil {
		return nil
	}
	sch, err := c.Compile(resource)
	if err != nil {
		return nil
	}

	payload := bytes.TrimSpace(args)
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("arguments do not match schema: %w", err)
	}
	return nil
}
