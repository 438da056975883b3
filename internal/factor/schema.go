package factor

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

func validateJSONSchema(value any, schema map[string]any, path string) error {
	typ, err := schemaType(schema)
	if err != nil {
		return fmt.Errorf("%s: %v", path, err)
	}

	switch typ {
	case "object":
		obj, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("%s: expected object", path)
		}

		if raw, ok := schema["required"]; ok {
			required, err := asStringSlice(raw)
			if err != nil {
				return fmt.Errorf("%s: required: %v", path, err)
			}
			for _, key := range required {
				if _, ok := obj[key]; !ok {
					return fmt.Errorf("%s.%s: missing required field", path, key)
				}
			}
		}

		rawProps, ok := schema["properties"]
		if !ok {
			return nil
		}
		props, ok := rawProps.(map[string]any)
		if !ok {
			return fmt.Errorf("%s: properties must be an object", path)
		}

		for key, rawPropSchema := range props {
			child, ok := obj[key]
			if !ok {
				continue
			}
			propSchema, ok := rawPropSchema.(map[string]any)
			if !ok {
				return fmt.Errorf("%s.%s: schema must be an object", path, key)
			}
			if err := validateJSONSchema(child, propSchema, path+"."+key); err != nil {
				return err
			}
		}
		return nil

	case "array":
		arr, ok := value.([]any)
		if !ok {
			return fmt.Errorf("%s: expected array", path)
		}

		rawItems, ok := schema["items"]
		if !ok {
			return nil
		}
		itemsSchema, ok := rawItems.(map[string]any)
		if !ok {
			return fmt.Errorf("%s: items must be an object", path)
		}
		for i, elem := range arr {
			if err := validateJSONSchema(elem, itemsSchema, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil

	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("%s: expected string", path)
		}
		return nil

	case "number":
		if !isNumber(value) {
			return fmt.Errorf("%s: expected number", path)
		}
		return nil

	case "integer":
		if !isInteger(value) {
			return fmt.Errorf("%s: expected integer", path)
		}
		return nil

	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("%s: expected boolean", path)
		}
		return nil

	case "null":
		if value != nil {
			return fmt.Errorf("%s: expected null", path)
		}
		return nil

	default:
		return fmt.Errorf("%s: unsupported schema type %q", path, typ)
	}
}

func schemaType(schema map[string]any) (string, error) {
	if schema == nil {
		return "", fmt.Errorf("nil schema")
	}
	if raw, ok := schema["type"]; ok {
		s, ok := raw.(string)
		if !ok {
			return "", fmt.Errorf("type must be string")
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return "", fmt.Errorf("type must be non-empty")
		}
		return s, nil
	}

	if _, ok := schema["properties"]; ok {
		return "object", nil
	}
	if _, ok := schema["required"]; ok {
		return "object", nil
	}
	if _, ok := schema["items"]; ok {
		return "array", nil
	}
	return "", fmt.Errorf("missing type")
}

func asStringSlice(v any) ([]string, error) {
	switch s := v.(type) {
	case nil:
		return nil, fmt.Errorf("expected list of strings, got nil")
	case string:
		return []string{s}, nil
	case []string:
		return s, nil
	case []any:
		out := make([]string, 0, len(s))
		for i, elem := range s {
			str, ok := elem.(string)
			if !ok {
				return nil, fmt.Errorf("element %d: string, got %T", i, elem)
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected list of strings, got %T", v)
	}
}

func isNumber(v any) bool {
	switch n := v.(type) {
	case json.Number:
		_, err := n.Float64()
		return err == nil
	case float64, float32,
		int, int64, int32, int16, int8,
		uint, uint64, uint32, uint16, uint8:
		return true
	default:
		return false
	}
}

func isInteger(v any) bool {
	switch n := v.(type) {
	case json.Number:
		if _, err := n.Int64(); err == nil {
			return true
		}
		f, err := n.Float64()
		if err != nil {
			return false
		}
		return math.Trunc(f) == f
	case float64:
		return math.Trunc(n) == n
	case float32:
		f := float64(n)
		return math.Trunc(f) == f
	case int, int64, int32, int16, int8,
		uint, uint64, uint32, uint16, uint8:
		return true
	default:
		return false
	}
}
