// Package stages provides the built-in stage handlers of the pipeline. The
// generation stages (outline, characters, plot points, mind map) are bound
// externally in production; Scripted covers them for local runs.
package stages

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xeipuuv/gojsonschema"

	"github.com/fableworks/fableflow/pkg/orchestrator"
)

// MaxInputRunes bounds the accepted source text.
const MaxInputRunes = 500_000

// InputValidation checks the run's input data before any generation work.
// An optional JSON schema constrains the input map beyond the built-in
// checks.
type InputValidation struct {
	schema map[string]any
}

// NewInputValidation creates the handler. A nil schema skips schema
// validation.
func NewInputValidation(schema map[string]any) *InputValidation {
	return &InputValidation{schema: schema}
}

func (h *InputValidation) Execute(_ context.Context, input orchestrator.StageInput) (map[string]any, error) {
	text, ok := input.State.InputData["input"].(string)
	if !ok || strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("input text is required")
	}

	length := utf8.RuneCountInString(text)
	if length > MaxInputRunes {
		return nil, fmt.Errorf("input text too long: %d runes (max %d)", length, MaxInputRunes)
	}

	if h.schema != nil {
		if err := validateSchema(h.schema, input.State.InputData); err != nil {
			return nil, err
		}
	}

	return map[string]any{
		"valid":      true,
		"char_count": length,
	}, nil
}

func validateSchema(schema, data map[string]any) error {
	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		var details []string
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return fmt.Errorf("input schema validation failed: %s", strings.Join(details, "; "))
	}

	return nil
}
