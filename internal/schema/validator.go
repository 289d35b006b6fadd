// internal/schema/validator.go
// Package schema provides JSON schema validation for request bodies.
// Every body is checked for structural shape at the HTTP boundary before it
// is decoded into a typed request; field-value rules (lengths, enums with
// helpful messages) live in the domain validation layer.
package schema

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Body names for the validated request payloads.
const (
	BodyGiftRequest  = "gift.request"
	BodyGiftComplete = "gift.complete"
	BodyGiftReject   = "gift.reject"
	BodyGiftAccess   = "gift.access"
)

// Validator validates request bodies against their JSON schemas.
type Validator struct {
	schemas map[string]*gojsonschema.Schema
}

// NewValidator compiles all request-body schemas.
func NewValidator() (*Validator, error) {
	v := &Validator{schemas: make(map[string]*gojsonschema.Schema)}
	if err := v.loadSchemas(); err != nil {
		return nil, fmt.Errorf("failed to load schemas: %w", err)
	}
	return v, nil
}

// loadSchemas compiles the embedded schema documents. The shapes mirror the
// typed request structs; additionalProperties stays open so clients may send
// fields a newer server understands.
func (v *Validator) loadSchemas() error {
	requestSchema := `{
		"type": "object",
		"required": ["recipientName", "occasion", "occasionDate", "scenarios", "songGenre", "photos", "plan"],
		"properties": {
			"recipientName": {"type": "string"},
			"occasion": {"type": "string"},
			"occasionDate": {"type": "string"},
			"scenarios": {"type": "array", "items": {"type": "string"}},
			"songGenre": {"type": "string"},
			"photos": {"type": "array", "items": {"type": "string"}},
			"photoPublicIds": {"type": "array", "items": {"type": "string"}},
			"plan": {"type": "string"},
			"message": {"type": "string"}
		}
	}`
	if err := v.loadSchema(BodyGiftRequest, requestSchema); err != nil {
		return err
	}

	completeSchema := `{
		"type": "object",
		"required": ["audio", "lyrics"],
		"properties": {
			"audio": {"type": "string"},
			"audioPublicId": {"type": "string"},
			"lyrics": {"type": "string"}
		}
	}`
	if err := v.loadSchema(BodyGiftComplete, completeSchema); err != nil {
		return err
	}

	rejectSchema := `{
		"type": "object",
		"properties": {
			"reason": {"type": "string"}
		}
	}`
	if err := v.loadSchema(BodyGiftReject, rejectSchema); err != nil {
		return err
	}

	accessSchema := `{
		"type": "object",
		"required": ["accessEnabled"],
		"properties": {
			"accessEnabled": {"type": "boolean"},
			"resetExpiry": {"type": "boolean"}
		}
	}`
	return v.loadSchema(BodyGiftAccess, accessSchema)
}

// loadSchema compiles a single schema document.
func (v *Validator) loadSchema(body, schemaJSON string) error {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return fmt.Errorf("invalid schema for %s: %w", body, err)
	}
	v.schemas[body] = schema
	return nil
}

// Validate checks a raw JSON body against the named schema. A nil error
// means the body has a valid shape.
func (v *Validator) Validate(body string, raw []byte) error {
	schema, exists := v.schemas[body]
	if !exists {
		return fmt.Errorf("schema not found for body: %s", body)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	if !result.Valid() {
		var errs []string
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}
		return fmt.Errorf("validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
