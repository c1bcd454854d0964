package check

import (
	"fmt"
	"time"
)

// ParamType is the declared type of one plugin parameter.
type ParamType string

const (
	ParamString   ParamType = "string"
	ParamInt      ParamType = "int"
	ParamFloat    ParamType = "float"
	ParamBool     ParamType = "bool"
	ParamDuration ParamType = "duration"
)

type ParamField struct {
	Name     string    `json:"name"`
	Type     ParamType `json:"type"`
	Required bool      `json:"required"`
	Default  any       `json:"default,omitempty"`
}

// ParamSchema is the parameter contract a plugin declares. Definitions are
// validated against it at load time, not at execution time.
type ParamSchema struct {
	Fields []ParamField `json:"fields"`
}

func (s ParamSchema) field(name string) (ParamField, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return ParamField{}, false
}

// Validate checks a definition against the resolved plugin's schema.
// Interval and timeout must satisfy timeout < interval strictly; violating
// definitions are rejected, never clamped.
func Validate(def Definition, schema ParamSchema) error {
	if def.ID == "" {
		return &InvalidDefinitionError{CheckID: def.ID, Field: "id", Reason: "must not be empty"}
	}
	if def.Type == "" {
		return &InvalidDefinitionError{CheckID: def.ID, Field: "type", Reason: "must not be empty"}
	}
	if def.Target == "" {
		return &InvalidDefinitionError{CheckID: def.ID, Field: "target", Reason: "must not be empty"}
	}
	if def.Interval <= 0 {
		return &InvalidDefinitionError{CheckID: def.ID, Field: "interval", Reason: "must be positive"}
	}
	if def.Timeout <= 0 {
		return &InvalidDefinitionError{CheckID: def.ID, Field: "timeout", Reason: "must be positive"}
	}
	if def.Timeout >= def.Interval {
		return &InvalidDefinitionError{
			CheckID: def.ID,
			Field:   "timeout",
			Reason:  fmt.Sprintf("timeout %s must be less than interval %s", def.Timeout, def.Interval),
		}
	}
	if def.Jitter < 0 || def.Jitter > 1 {
		return &InvalidDefinitionError{CheckID: def.ID, Field: "jitter", Reason: "must be within [0, 1]"}
	}

	for name, val := range def.Params {
		f, ok := schema.field(name)
		if !ok {
			return &InvalidDefinitionError{CheckID: def.ID, Field: name, Reason: "unknown parameter"}
		}
		if err := checkParamType(f, val); err != nil {
			return &InvalidDefinitionError{CheckID: def.ID, Field: name, Reason: err.Error()}
		}
	}
	for _, f := range schema.Fields {
		if !f.Required {
			continue
		}
		if _, ok := def.Params[f.Name]; !ok {
			return &InvalidDefinitionError{CheckID: def.ID, Field: f.Name, Reason: "required parameter missing"}
		}
	}
	return nil
}

func checkParamType(f ParamField, val any) error {
	switch f.Type {
	case ParamString:
		if _, ok := val.(string); !ok {
			return fmt.Errorf("expected string, got %T", val)
		}
	case ParamInt:
		switch val.(type) {
		case int, int32, int64:
		default:
			return fmt.Errorf("expected int, got %T", val)
		}
	case ParamFloat:
		switch val.(type) {
		case float32, float64, int, int64:
		default:
			return fmt.Errorf("expected float, got %T", val)
		}
	case ParamBool:
		if _, ok := val.(bool); !ok {
			return fmt.Errorf("expected bool, got %T", val)
		}
	case ParamDuration:
		switch v := val.(type) {
		case time.Duration:
		case string:
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("bad duration %q: %v", v, err)
			}
		default:
			return fmt.Errorf("expected duration, got %T", val)
		}
	}
	return nil
}
