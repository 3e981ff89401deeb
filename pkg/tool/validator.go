package tool

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Strategy names an argument validation strategy.
type Strategy string

const (
	StrategyStructural Strategy = "structural"
	StrategyStrict     Strategy = "strict"
)

// Validator checks raw call arguments against a tool's input schema and
// returns the arguments Execute will receive. Failures are *Error values with
// CodeInvalidParams.
type Validator interface {
	Strategy() Strategy
	Validate(schema Schema, raw any) (Args, error)
}

type structuralValidator struct{}

// Structural returns the fallback validator: required fields, primitive
// types (number, string, boolean) and enum membership. Properties not
// declared in the schema pass through unchanged.
func Structural() Validator {
	return structuralValidator{}
}

func (structuralValidator) Strategy() Strategy { return StrategyStructural }

func (structuralValidator) Validate(schema Schema, raw any) (Args, error) {
	obj, ok := asObject(raw)
	if !ok {
		return nil, InvalidParams(Violation{Reason: "arguments must be an object"})
	}

	var violations []Violation

	for _, name := range schema.Required {
		if _, present := obj[name]; !present {
			violations = append(violations, Violation{Path: name, Reason: "is required"})
		}
	}

	keys := make([]string, 0, len(obj))
	for key := range obj {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		prop, declared := schema.Properties[key]
		if !declared {
			continue
		}
		value := obj[key]

		if !matchesPrimitive(prop.Type, value) {
			violations = append(violations, Violation{
				Path:   key,
				Reason: fmt.Sprintf("must be of type %s", prop.Type),
			})
			continue
		}

		if len(prop.Enum) > 0 && !enumContains(prop.Enum, value) {
			violations = append(violations, Violation{
				Path:   key,
				Reason: "must be one of: " + formatEnum(prop.Enum),
			})
		}
	}

	if len(violations) > 0 {
		return nil, InvalidParams(violations...)
	}
	return Args(obj), nil
}

// matchesPrimitive reports whether value has the declared primitive type.
// Types other than number, string and boolean are not checked.
func matchesPrimitive(declared string, value any) bool {
	switch declared {
	case "number":
		_, ok := toFloat(value)
		return ok
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	default:
		return true
	}
}

func enumContains(enum []any, value any) bool {
	for _, allowed := range enum {
		if reflect.DeepEqual(allowed, value) {
			return true
		}
		a, aNum := toFloat(allowed)
		v, vNum := toFloat(value)
		if aNum && vNum && a == v {
			return true
		}
	}
	return false
}

func formatEnum(enum []any) string {
	parts := make([]string, 0, len(enum))
	for _, v := range enum {
		parts = append(parts, fmt.Sprint(v))
	}
	return strings.Join(parts, ", ")
}
