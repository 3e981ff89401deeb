package tool

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Refinement is a rule evaluated after schema validation succeeds, typically
// a cross-field constraint. It returns the violations it finds.
type Refinement func(args Args) []Violation

// StrictValidator validates arguments with a full JSON Schema validator.
// On success it strips undeclared properties, applies declared defaults,
// coerces integral numbers of integer properties to int64 and then runs its
// refinements.
type StrictValidator struct {
	refinements []Refinement

	mu       sync.Mutex
	compiled map[string]*gojsonschema.Schema
}

// Strict returns a strict validator with the given refinements.
func Strict(refinements ...Refinement) *StrictValidator {
	return &StrictValidator{
		refinements: refinements,
		compiled:    make(map[string]*gojsonschema.Schema),
	}
}

func (v *StrictValidator) Strategy() Strategy { return StrategyStrict }

func (v *StrictValidator) Validate(schema Schema, raw any) (Args, error) {
	compiled, err := v.compile(schema)
	if err != nil {
		return nil, &Error{
			Code:    CodeInternalError,
			Message: fmt.Sprintf("invalid input schema: %v", err),
			Cause:   err,
		}
	}

	result, err := compiled.Validate(gojsonschema.NewGoLoader(raw))
	if err != nil {
		return nil, InvalidParams(Violation{Reason: err.Error()})
	}
	if !result.Valid() {
		return nil, InvalidParams(schemaViolations(result.Errors())...)
	}

	obj, ok := asObject(raw)
	if !ok {
		// A valid object that is not a map (e.g. a struct) is normalized through JSON.
		data, err := json.Marshal(raw)
		if err != nil {
			return nil, InvalidParams(Violation{Reason: err.Error()})
		}
		if err := json.Unmarshal(data, &obj); err != nil || obj == nil {
			return nil, InvalidParams(Violation{Reason: "arguments must be an object"})
		}
	}

	args := make(Args, len(schema.Properties))
	for name, prop := range schema.Properties {
		value, present := obj[name]
		if !present {
			if prop.Default != nil {
				args[name] = prop.Default
			}
			continue
		}
		args[name] = coerce(prop, value)
	}

	var violations []Violation
	for _, refine := range v.refinements {
		violations = append(violations, refine(args)...)
	}
	if len(violations) > 0 {
		return nil, InvalidParams(violations...)
	}

	return args, nil
}

func (v *StrictValidator) compile(schema Schema) (*gojsonschema.Schema, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	key := string(data)

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.compiled == nil {
		v.compiled = make(map[string]*gojsonschema.Schema)
	}
	if compiled, ok := v.compiled[key]; ok {
		return compiled, nil
	}

	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, err
	}
	v.compiled[key] = compiled
	return compiled, nil
}

// schemaViolations converts schema errors to violations with dotted paths,
// sorted by path so messages are stable.
func schemaViolations(errs []gojsonschema.ResultError) []Violation {
	violations := make([]Violation, 0, len(errs))
	for _, re := range errs {
		path := re.Field()
		if path == "(root)" {
			path = ""
		}
		reason := re.Description()
		if re.Type() == "required" {
			if prop, ok := re.Details()["property"].(string); ok {
				if path == "" {
					path = prop
				} else {
					path = path + "." + prop
				}
				reason = "is required"
			}
		}
		violations = append(violations, Violation{Path: path, Reason: reason})
	}
	sort.SliceStable(violations, func(i, j int) bool {
		return violations[i].Path < violations[j].Path
	})
	return violations
}

func coerce(prop Property, value any) any {
	if prop.Type != "integer" {
		return value
	}
	f, ok := toFloat(value)
	if !ok || f != math.Trunc(f) {
		return value
	}
	return int64(f)
}
