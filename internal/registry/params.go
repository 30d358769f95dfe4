// File: internal/registry/params.go
package registry

import (
	encjson "encoding/json"
	"fmt"

	"github.com/shoptalk-labs/shoptalk/api/schemas"
)

// validateArgs checks invocation arguments against the action's declared
// parameter schema. The schema is an explicit data structure; nothing is
// inferred by reflection over handler signatures.
func validateArgs(schema schemas.ParameterSchema, args schemas.ActionArgs) error {
	for _, name := range schema.Required {
		if _, ok := args[name]; !ok {
			return &schemas.ValidationError{Field: name, Reason: "required parameter missing"}
		}
	}

	for name, value := range args {
		spec, ok := schema.Properties[name]
		if !ok {
			return &schemas.ValidationError{Field: name, Reason: "parameter not declared in schema"}
		}
		if err := checkType(name, spec, value); err != nil {
			return err
		}
	}
	return nil
}

func checkType(name string, spec schemas.ParameterSpec, value any) error {
	switch spec.Type {
	case "string":
		s, ok := value.(string)
		if !ok {
			return &schemas.ValidationError{Field: name, Reason: "expected a string"}
		}
		if len(spec.Enum) > 0 && !contains(spec.Enum, s) {
			return &schemas.ValidationError{Field: name, Reason: fmt.Sprintf("value %q not in enum", s)}
		}
	case "number", "integer":
		n, ok := toFloat(value)
		if !ok {
			return &schemas.ValidationError{Field: name, Reason: "expected a number"}
		}
		if spec.Type == "integer" && n != float64(int64(n)) {
			return &schemas.ValidationError{Field: name, Reason: "expected an integer"}
		}
		if spec.Minimum != nil && n < *spec.Minimum {
			return &schemas.ValidationError{Field: name, Reason: fmt.Sprintf("value %v below minimum %v", n, *spec.Minimum)}
		}
		if spec.Maximum != nil && n > *spec.Maximum {
			return &schemas.ValidationError{Field: name, Reason: fmt.Sprintf("value %v above maximum %v", n, *spec.Maximum)}
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return &schemas.ValidationError{Field: name, Reason: "expected a boolean"}
		}
	case "array":
		if _, ok := value.([]any); !ok {
			return &schemas.ValidationError{Field: name, Reason: "expected an array"}
		}
	case "object":
		if _, ok := value.(map[string]any); !ok {
			return &schemas.ValidationError{Field: name, Reason: "expected an object"}
		}
	}
	return nil
}

// toFloat accepts the numeric shapes JSON decoding produces.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case encjson.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
