package validation

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// PredictionEnvelopeSchema describes a single-record request: a "payload" object whose
// values are scalars. Unknown top-level keys are allowed.
const PredictionEnvelopeSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["payload"],
  "properties": {
    "payload": {
      "type": "object",
      "additionalProperties": {"type": ["string", "number", "boolean", "null"]}
    }
  }
}`

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

var (
	envelopeOnce   sync.Once
	envelopeSchema *gojsonschema.Schema
	envelopeErr    error
)

func compiledEnvelope() (*gojsonschema.Schema, error) {
	envelopeOnce.Do(func() {
		envelopeSchema, envelopeErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(PredictionEnvelopeSchema))
	})
	return envelopeSchema, envelopeErr
}

// ValidatePredictionEnvelope validates a decoded JSON document against PredictionEnvelopeSchema.
func ValidatePredictionEnvelope(doc interface{}) (*ValidationResult, error) {
	schema, err := compiledEnvelope()
	if err != nil {
		return nil, fmt.Errorf("compile envelope schema: %w", err)
	}
	return Validate(schema, doc)
}

// Validate runs doc through a compiled schema and flattens the findings.
func Validate(schema *gojsonschema.Schema, doc interface{}) (*ValidationResult, error) {
	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	errs := make([]ValidationError, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		errs = append(errs, ValidationError{
			Field:   fieldPath(desc),
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	sort.Slice(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })

	return &ValidationResult{Valid: result.Valid(), Errors: errs}, nil
}

// fieldPath returns the dotted path of the offending value. Missing required
// properties are reported against the property itself.
func fieldPath(desc gojsonschema.ResultError) string {
	field := desc.Field()
	if desc.Type() == "required" {
		if p, ok := desc.Details()["property"].(string); ok {
			switch {
			case field == p || strings.HasSuffix(field, "."+p):
				return field
			case field == "(root)":
				return p
			default:
				return field + "." + p
			}
		}
	}
	return field
}

// GetErrorMessages returns a simple list of error messages
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

// HasErrors checks if validation has errors for specific field
func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field {
			return true
		}
	}
	return false
}
