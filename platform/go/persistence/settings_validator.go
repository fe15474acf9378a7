package persistence

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	sqlassets "github.com/zenGate-Global/aso-insight/database"
)

const settingsSchemaURL = "memory://schemas/organization_settings.schema.json"

// SettingsError lists schema violations keyed by JSON pointer into the settings document.
type SettingsError struct {
	Violations map[string][]string
}

func (e *SettingsError) Error() string {
	keys := make([]string, 0, len(e.Violations))
	for k := range e.Violations {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(e.Violations[k], "; ")))
	}
	return "invalid organization settings: " + strings.Join(parts, ", ")
}

// SettingsValidator validates organization settings documents against the
// embedded JSON Schema.
type SettingsValidator struct {
	schema *jsonschema.Schema
}

// NewSettingsValidator compiles the embedded schema.
func NewSettingsValidator() (*SettingsValidator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	if err := compiler.AddResource(settingsSchemaURL, bytes.NewReader(sqlassets.OrganizationSettingsSchema)); err != nil {
		return nil, fmt.Errorf("register settings schema: %w", err)
	}

	compiled, err := compiler.Compile(settingsSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile settings schema: %w", err)
	}
	return &SettingsValidator{schema: compiled}, nil
}

// Validate returns nil, a *SettingsError for schema violations, or a decode error.
func (v *SettingsValidator) Validate(payload []byte) error {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}

	var document any
	if err := json.Unmarshal(payload, &document); err != nil {
		return &SettingsError{Violations: map[string][]string{"/": {"must be a JSON object"}}}
	}

	err := v.schema.Validate(document)
	if err == nil {
		return nil
	}

	var validationErr *jsonschema.ValidationError
	if !errors.As(err, &validationErr) {
		return fmt.Errorf("validate settings: %w", err)
	}

	violations := make(map[string][]string)
	for _, cause := range validationErr.BasicOutput().Errors {
		if cause.Error == "" || strings.HasPrefix(cause.Error, "doesn't validate with") {
			continue
		}
		location := cause.InstanceLocation
		if location == "" {
			location = "/"
		}
		violations[location] = append(violations[location], cause.Error)
	}
	if len(violations) == 0 {
		violations["/"] = []string{validationErr.Message}
	}
	return &SettingsError{Violations: violations}
}
