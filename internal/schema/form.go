// Package schema validates action-time form data against the JSON schema a
// step spec optionally carries.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/docflowhq/docflow/model"
)

// Compile parses a raw JSON schema document into an openapi3.Schema. Called
// at template-validation time so malformed schemas are rejected before any
// instance can reference them.
func Compile(raw json.RawMessage) (*openapi3.Schema, error) {
	var s openapi3.Schema
	if err := s.UnmarshalJSON(raw); err != nil {
		return nil, fmt.Errorf("invalid form schema: %w", err)
	}
	return &s, nil
}

// ValidateForm checks submitted form data against a step's form schema.
// A nil schema accepts anything. Violations surface as a VALIDATION_ERROR
// envelope so transport maps them to 422.
func ValidateForm(raw json.RawMessage, data map[string]any) error {
	if len(raw) == 0 {
		return nil
	}

	s, err := Compile(raw)
	if err != nil {
		return model.NewValidationError([]model.FieldError{
			{Field: "form_data", Code: "schema", Message: err.Error()},
		})
	}

	// VisitJSON wants plain JSON types; form data arrives from
	// encoding/json so it already is.
	var value any = map[string]any(data)
	if data == nil {
		value = map[string]any{}
	}

	if err := s.VisitJSON(value, openapi3.MultiErrors()); err != nil {
		return model.NewValidationError(collectFieldErrors(err))
	}
	return nil
}

// collectFieldErrors flattens openapi3 validation errors into field errors.
func collectFieldErrors(err error) []model.FieldError {
	multi, ok := err.(openapi3.MultiError)
	if !ok {
		return []model.FieldError{{Field: "form_data", Code: "schema", Message: err.Error()}}
	}

	details := make([]model.FieldError, 0, len(multi))
	for _, e := range multi {
		field := "form_data"
		if se, ok := e.(*openapi3.SchemaError); ok && len(se.JSONPointer()) > 0 {
			field = "form_data." + joinPointer(se.JSONPointer())
		}
		details = append(details, model.FieldError{Field: field, Code: "schema", Message: e.Error()})
	}
	return details
}

func joinPointer(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "."
		}
		out += p
	}
	return out
}
