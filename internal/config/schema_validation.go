package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	orunschema "github.com/Paintersrp/orun/schema"
)

var (
	schemaOnce    sync.Once
	profileSchema *jsonschema.Schema
	schemaErr     error
)

func loadProfileSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource("profile.v1.json", bytes.NewReader(orunschema.ProfileV1Schema)); err != nil {
			schemaErr = fmt.Errorf("add profile schema resource: %w", err)
			return
		}
		profileSchema, schemaErr = compiler.Compile("profile.v1.json")
		if schemaErr != nil {
			schemaErr = fmt.Errorf("compile profile schema: %w", schemaErr)
		}
	})
	return profileSchema, schemaErr
}

// validateAgainstSchema checks the merged raw document before it is decoded
// into a Profile, so unknown keys and wrong types are reported by path.
func validateAgainstSchema(doc map[string]any) error {
	schema, err := loadProfileSchema()
	if err != nil {
		return fmt.Errorf("load profile schema: %w", err)
	}

	normalized, err := normalizeForSchema(doc)
	if err != nil {
		return fmt.Errorf("prepare profile for schema validation: %w", err)
	}

	if err := schema.Validate(normalized); err != nil {
		if vErr, ok := err.(*jsonschema.ValidationError); ok {
			return fmt.Errorf("schema validation failed:\n  - %s", strings.Join(schemaProblems(vErr), "\n  - "))
		}
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// normalizeForSchema round-trips the document through JSON so the validator
// sees the same value types it would for a JSON profile.
func normalizeForSchema(doc map[string]any) (any, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var out any
	if err := decoder.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// schemaProblems flattens the validation tree into sorted "field: message"
// lines, keeping only leaf causes.
func schemaProblems(err *jsonschema.ValidationError) []string {
	var lines []string
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			lines = append(lines, fieldPath(e.InstanceLocation)+": "+e.Message)
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(err)
	sort.Strings(lines)
	return lines
}

// fieldPath renders a JSON pointer in the dotted form used by Validate.
func fieldPath(ptr string) string {
	ptr = strings.TrimPrefix(ptr, "/")
	if ptr == "" {
		return "profile"
	}
	segments := strings.Split(ptr, "/")
	for i, segment := range segments {
		segments[i] = strings.ReplaceAll(strings.ReplaceAll(segment, "~1", "/"), "~0", "~")
	}
	return strings.Join(segments, ".")
}
