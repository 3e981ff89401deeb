package tool

import (
	"context"
	"encoding/json"
)

// Tool is the contract every hosted tool implements.
type Tool interface {
	// Definition returns the static identity of the tool. It must be pure.
	Definition() Descriptor

	// Validator returns the argument validation strategy the tool declares.
	Validator() Validator

	// Execute runs the tool with arguments that already passed validation.
	Execute(ctx context.Context, args Args) (*Result, error)
}

// Descriptor is the externally advertised identity of a tool.
type Descriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema Schema `json:"inputSchema"`
}

// Schema is a JSON-schema-like description of a tool's input object.
// Every name in Required is expected to be a key of Properties; this is not
// checked at runtime.
//
// Keywords without a field (additionalProperties, oneOf, ...) are kept in
// Extra and emitted alongside the modeled ones.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required"`
	Extra      map[string]any      `json:"-"`
}

// Property describes a single input property.
type Property struct {
	Type        string              `json:"type,omitempty"`
	Description string              `json:"description,omitempty"`
	Enum        []any               `json:"enum,omitempty"`
	Default     any                 `json:"default,omitempty"`
	Minimum     *float64            `json:"minimum,omitempty"`
	Maximum     *float64            `json:"maximum,omitempty"`
	MinLength   *int                `json:"minLength,omitempty"`
	MaxLength   *int                `json:"maxLength,omitempty"`
	Pattern     string              `json:"pattern,omitempty"`
	Items       *Property           `json:"items,omitempty"`
	Properties  map[string]Property `json:"properties,omitempty"`
	Required    []string            `json:"required,omitempty"`
	Extra       map[string]any      `json:"-"`
}

var (
	schemaKeys   = []string{"type", "properties", "required"}
	propertyKeys = []string{
		"type", "description", "enum", "default", "minimum", "maximum",
		"minLength", "maxLength", "pattern", "items", "properties", "required",
	}
)

// ObjectSchema builds an object schema with the given properties and required names.
func ObjectSchema(properties map[string]Property, required ...string) Schema {
	return Schema{
		Type:       "object",
		Properties: properties,
		Required:   required,
	}
}

// MarshalJSON always emits "properties" and "required", even when empty.
func (s Schema) MarshalJSON() ([]byte, error) {
	type plain Schema
	out := plain(s)
	if out.Type == "" {
		out.Type = "object"
	}
	if out.Properties == nil {
		out.Properties = map[string]Property{}
	}
	if out.Required == nil {
		out.Required = []string{}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return withExtra(data, s.Extra)
}

func (s *Schema) UnmarshalJSON(data []byte) error {
	type plain Schema
	var out plain
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	extra, err := unmodeled(data, schemaKeys)
	if err != nil {
		return err
	}
	out.Extra = extra
	*s = Schema(out)
	return nil
}

func (p Property) MarshalJSON() ([]byte, error) {
	type plain Property
	data, err := json.Marshal(plain(p))
	if err != nil {
		return nil, err
	}
	return withExtra(data, p.Extra)
}

func (p *Property) UnmarshalJSON(data []byte) error {
	type plain Property
	var out plain
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	extra, err := unmodeled(data, propertyKeys)
	if err != nil {
		return err
	}
	out.Extra = extra
	*p = Property(out)
	return nil
}

// unmodeled returns the keys of the JSON object data that are not in known.
func unmodeled(data []byte, known []string) (map[string]any, error) {
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for _, key := range known {
		delete(all, key)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

// withExtra merges extra into the JSON object data. Modeled keys win.
func withExtra(data []byte, extra map[string]any) ([]byte, error) {
	if len(extra) == 0 {
		return data, nil
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for key, value := range extra {
		if _, ok := all[key]; ok {
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		all[key] = raw
	}
	return json.Marshal(all)
}

// Float returns a pointer to v, for Minimum and Maximum.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v, for MinLength and MaxLength.
func Int(v int) *int { return &v }

// ExecuteFunc is the execution body of a function-backed tool.
type ExecuteFunc func(ctx context.Context, args Args) (*Result, error)

type funcTool struct {
	def       Descriptor
	validator Validator
	fn        ExecuteFunc
}

// New returns a Tool backed by fn.
func New(def Descriptor, validator Validator, fn ExecuteFunc) Tool {
	return &funcTool{def: def, validator: validator, fn: fn}
}

func (t *funcTool) Definition() Descriptor { return t.def }

func (t *funcTool) Validator() Validator { return t.validator }

func (t *funcTool) Execute(ctx context.Context, args Args) (*Result, error) {
	return t.fn(ctx, args)
}
