package modules

import (
	"math"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
)

// ValidateParams checks params against InputSchema.
// - Required fields: returns error if missing
// - Type check: verifies value matches declared property type
// - Defaults: absent properties with a declared default are filled in
// Returns validated params (shallow copy) or error.
func ValidateParams(schema InputSchema, params map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(params)+len(schema.Properties))
	for k, v := range params {
		out[k] = v
	}

	// Check required fields
	var missing []string
	for _, key := range schema.Required {
		val, exists := out[key]
		if !exists || val == nil {
			missing = append(missing, key)
			continue
		}
		// Check for zero-value strings on required fields
		if s, ok := val.(string); ok && s == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, errors.Errorf("missing required parameter(s): %s", strings.Join(missing, ", "))
	}

	// Type check provided params against schema properties
	for key, val := range out {
		prop, declared := schema.Properties[key]
		if !declared {
			// Extra params not in schema are passed through (lenient)
			continue
		}
		if val == nil {
			continue
		}
		if err := checkType(key, val, prop); err != nil {
			return nil, err
		}
	}

	for key, prop := range schema.Properties {
		if prop.Default == nil {
			continue
		}
		if v, exists := out[key]; !exists || v == nil {
			out[key] = prop.Default
		}
	}

	return out, nil
}

// checkType verifies that val matches the expected JSON Schema type.
func checkType(key string, val any, prop Property) error {
	switch prop.Type {
	case "string":
		if _, ok := val.(string); !ok {
			return errors.Errorf("parameter %q: expected string, got %T", key, val)
		}
	case "number":
		// JSON numbers arrive as float64
		if _, ok := val.(float64); !ok {
			return errors.Errorf("parameter %q: expected number, got %T", key, val)
		}
	case "integer":
		f, ok := val.(float64)
		if !ok {
			return errors.Errorf("parameter %q: expected integer, got %T", key, val)
		}
		if f != math.Trunc(f) || math.IsInf(f, 0) {
			return errors.Errorf("parameter %q: expected integer, got %v", key, f)
		}
	case "boolean":
		if _, ok := val.(bool); !ok {
			return errors.Errorf("parameter %q: expected boolean, got %T", key, val)
		}
	case "array":
		items, ok := val.([]any)
		if !ok {
			return errors.Errorf("parameter %q: expected array, got %T", key, val)
		}
		if prop.Items != nil {
			for i, item := range items {
				if err := checkType(key+"["+strconv.Itoa(i)+"]", item, *prop.Items); err != nil {
					return err
				}
			}
		}
	case "object":
		if _, ok := val.(map[string]any); !ok {
			return errors.Errorf("parameter %q: expected object, got %T", key, val)
		}
	// "" or unknown types: skip check (lenient)
	}
	return nil
}

// findTool looks up a tool by name from a tool list.
func findTool(tools []Tool, name string) (Tool, bool) {
	for _, t := range tools {
		if t.Name == name {
			return t, true
		}
	}
	return Tool{}, false
}
