package registry

import (
	"fmt"
	"slices"
)

// Schema is a structural parameter schema in the JSON Schema subset the
// platform needs: typed fields, required lists, string enums, nested
// objects, and typed array items. Objects reject unknown fields unless
// AdditionalProperties is set.
type Schema struct {
	Type        string            `json:"type"`
	Description string            `json:"description,omitempty"`
	Properties  map[string]Schema `json:"properties,omitempty"`
	Required    []string          `json:"required,omitempty"`
	Enum        []string          `json:"enum,omitempty"`
	Items       *Schema           `json:"items,omitempty"`

	// AdditionalProperties permits object fields beyond Properties. Used
	// for free-form payloads like metadata.
	AdditionalProperties bool `json:"additionalProperties,omitempty"`
}

// Object is shorthand for an object schema with the given properties and
// required field names.
func Object(properties map[string]Schema, required ...string) Schema {
	return Schema{Type: "object", Properties: properties, Required: required}
}

// String is shorthand for a string schema.
func String(description string) Schema {
	return Schema{Type: "string", Description: description}
}

// Number is shorthand for a number schema.
func Number(description string) Schema {
	return Schema{Type: "number", Description: description}
}

// Boolean is shorthand for a boolean schema.
func Boolean(description string) Schema {
	return Schema{Type: "boolean", Description: description}
}

// Enum is shorthand for a string schema restricted to the given literals.
func Enum(description string, values ...string) Schema {
	return Schema{Type: "string", Description: description, Enum: values}
}

// Array is shorthand for an array schema with the given item schema.
func Array(description string, items Schema) Schema {
	return Schema{Type: "array", Description: description, Items: &items}
}

// check validates value against s, returning one issue per violation. at is
// the field path used in messages, empty at the root.
func (s Schema) check(at string, value any) []string {
	label := at
	if label == "" {
		label = "parameters"
	}

	switch s.Type {
	case "object":
		obj, ok := value.(map[string]any)
		if !ok {
			return []string{fmt.Sprintf("%s: expected object, got %T", label, value)}
		}
		var issues []string
		for _, name := range s.Required {
			if _, present := obj[name]; !present {
				issues = append(issues, fmt.Sprintf("%s: missing required field %q", label, name))
			}
		}
		for name, v := range obj {
			prop, known := s.Properties[name]
			if !known {
				if !s.AdditionalProperties {
					issues = append(issues, fmt.Sprintf("%s: unknown field %q", label, name))
				}
				continue
			}
			issues = append(issues, prop.check(join(at, name), v)...)
		}
		return issues

	case "string":
		str, ok := value.(string)
		if !ok {
			return []string{fmt.Sprintf("%s: expected string, got %T", label, value)}
		}
		if len(s.Enum) > 0 && !slices.Contains(s.Enum, str) {
			return []string{fmt.Sprintf("%s: %q is not one of %v", label, str, s.Enum)}
		}
		return nil

	case "number":
		if !isNumber(value) {
			return []string{fmt.Sprintf("%s: expected number, got %T", label, value)}
		}
		return nil

	case "integer":
		f, ok := asFloat(value)
		if !ok || f != float64(int64(f)) {
			return []string{fmt.Sprintf("%s: expected integer, got %v", label, value)}
		}
		return nil

	case "boolean":
		if _, ok := value.(bool); !ok {
			return []string{fmt.Sprintf("%s: expected boolean, got %T", label, value)}
		}
		return nil

	case "array":
		arr, ok := value.([]any)
		if !ok {
			return []string{fmt.Sprintf("%s: expected array, got %T", label, value)}
		}
		if s.Items == nil {
			return nil
		}
		var issues []string
		for i, item := range arr {
			issues = append(issues, s.Items.check(fmt.Sprintf("%s[%d]", label, i), item)...)
		}
		return issues

	default:
		return []string{fmt.Sprintf("%s: unsupported schema type %q", label, s.Type)}
	}
}

func join(at, name string) string {
	if at == "" {
		return name
	}
	return at + "." + name
}

// isNumber accepts the numeric types a JSON decode or an in-process caller
// can produce.
func isNumber(v any) bool {
	_, ok := asFloat(v)
	return ok
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}
