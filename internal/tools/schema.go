// internal/tools/schema.go
package tools

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ParamType is a JSON schema primitive type.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
)

// Param declares one action parameter.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	// Default is applied when an optional parameter is absent.
	Default interface{}
	Enum    []string
}

// ParamSchema is the ordered parameter list of an action.
type ParamSchema []Param

// Params holds validated and coerced arguments.
type Params map[string]interface{}

// String returns a string argument, or "" when absent.
func (p Params) String(name string) string {
	s, _ := p[name].(string)
	return s
}

// Int returns an integer argument, or 0 when absent.
func (p Params) Int(name string) int {
	i, _ := p[name].(int)
	return i
}

// Float returns a number argument, or 0 when absent.
func (p Params) Float(name string) float64 {
	f, _ := p[name].(float64)
	return f
}

// Bool returns a boolean argument, or false when absent.
func (p Params) Bool(name string) bool {
	b, _ := p[name].(bool)
	return b
}

// Validate checks args against the schema, converts values to the declared
// types and fills in defaults. Arguments the schema does not declare are
// dropped.
func (s ParamSchema) Validate(args map[string]interface{}) (Params, error) {
	out := make(Params, len(s))
	var problems []string

	for _, p := range s {
		raw, ok := args[p.Name]
		if !ok || raw == nil {
			switch {
			case p.Required:
				problems = append(problems, fmt.Sprintf("%s: field required", p.Name))
			case p.Default != nil:
				out[p.Name] = p.Default
			}
			continue
		}

		v, err := coerce(p.Type, raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", p.Name, err))
			continue
		}
		if len(p.Enum) > 0 && !contains(p.Enum, v) {
			problems = append(problems, fmt.Sprintf("%s: must be one of [%s]", p.Name, strings.Join(p.Enum, ", ")))
			continue
		}
		out[p.Name] = v
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return out, nil
}

func coerce(t ParamType, v interface{}) (interface{}, error) {
	switch t {
	case TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("expected a string, got %T", v)
	case TypeInteger:
		return toInt(v)
	case TypeNumber:
		return toFloat(v)
	case TypeBoolean:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			parsed, err := strconv.ParseBool(strings.TrimSpace(b))
			if err != nil {
				return nil, fmt.Errorf("expected a boolean, got %q", b)
			}
			return parsed, nil
		}
		return nil, fmt.Errorf("expected a boolean, got %T", v)
	case TypeArray:
		if a, ok := v.([]interface{}); ok {
			return a, nil
		}
		return nil, fmt.Errorf("expected an array, got %T", v)
	case TypeObject:
		if m, ok := v.(map[string]interface{}); ok {
			return m, nil
		}
		return nil, fmt.Errorf("expected an object, got %T", v)
	}
	return v, nil
}

func toInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, fmt.Errorf("expected an integer, got %v", n)
		}
		return int(n), nil
	case jsoniter.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("expected an integer, got %s", n)
		}
		return int(i), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("expected an integer, got %q", n)
		}
		return i, nil
	}
	return 0, fmt.Errorf("expected an integer, got %T", v)
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case jsoniter.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("expected a number, got %s", n)
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("expected a number, got %q", n)
		}
		return f, nil
	}
	return 0, fmt.Errorf("expected a number, got %T", v)
}

func contains(enum []string, v interface{}) bool {
	s := fmt.Sprint(v)
	for _, e := range enum {
		if e == s {
			return true
		}
	}
	return false
}

// JSONSchema renders the schema as a JSON schema object.
func (s ParamSchema) JSONSchema() map[string]interface{} {
	props := make(map[string]interface{}, len(s))
	required := make([]string, 0, len(s))
	for _, p := range s {
		prop := map[string]interface{}{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Type == TypeArray {
			prop["items"] = map[string]interface{}{}
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// DecodeArgs parses a JSON object of tool call arguments. Empty input is an
// empty object.
func DecodeArgs(raw []byte) (map[string]interface{}, error) {
	args := map[string]interface{}{}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("arguments are not a JSON object: %w", err)
	}
	return args, nil
}
