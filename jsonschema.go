package tabula

import (
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
)

// validateJSONSchema checks an encoded JSON document against a JSON Schema
// declared in the field's settings.
func validateJSONSchema(fieldName, schemaJSON, document string) error {
	var schema jsonschema.Schema
	if err := json.Unmarshal([]byte(schemaJSON), &schema); err != nil {
		return NewValidationError(fieldName, "field declares an invalid JSON schema").WithCause(err)
	}

	resolved, err := schema.Resolve(&jsonschema.ResolveOptions{})
	if err != nil {
		return NewValidationError(fieldName, "field declares an unresolvable JSON schema").WithCause(err)
	}

	var data any
	if err := json.Unmarshal([]byte(document), &data); err != nil {
		return NewValidationError(fieldName, "value must be valid JSON").WithCause(err)
	}

	if err := resolved.Validate(data); err != nil {
		return NewValidationError(fieldName, "value does not match the field's JSON schema").WithCause(err)
	}
	return nil
}
