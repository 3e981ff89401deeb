package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/harun/toolhost/pkg/tool"
)

// Manifest suffixes recognized by discovery.
var manifestSuffixes = []string{".tool.json", ".tool.yaml", ".tool.yml"}

// Manifest describes one tool declared on disk.
type Manifest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Kind        string         `json:"kind"`
	Strict      bool           `json:"strict"`
	InputSchema tool.Schema    `json:"inputSchema"`
	Config      map[string]any `json:"config,omitempty"`

	// Source is the path of the file the entry came from, relative to the
	// discovery root.
	Source string `json:"-"`
	// Dir is the absolute directory of that file. Kinds resolve relative
	// paths in their config against it.
	Dir string `json:"-"`
}

// Descriptor returns the advertised identity of the manifest's tool.
func (m Manifest) Descriptor() tool.Descriptor {
	schema := m.InputSchema
	if schema.Type == "" {
		schema.Type = "object"
	}
	return tool.Descriptor{
		Name:        m.Name,
		Description: m.Description,
		InputSchema: schema,
	}
}

// Validator returns the validation strategy the manifest declares.
func (m Manifest) Validator(refinements ...tool.Refinement) tool.Validator {
	if m.Strict {
		return tool.Strict(refinements...)
	}
	return tool.Structural()
}

// DecodeConfig decodes the manifest's config section into out, which must be
// a pointer. Field names follow the json tags of out.
func (m Manifest) DecodeConfig(out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("failed to create config decoder: %w", err)
	}
	if err := decoder.Decode(m.Config); err != nil {
		return fmt.Errorf("invalid config for tool %s: %w", m.Name, err)
	}
	return nil
}

// IsManifestFile reports whether name follows the manifest naming convention.
func IsManifestFile(name string) bool {
	base := filepath.Base(name)
	for _, suffix := range manifestSuffixes {
		if strings.HasSuffix(base, suffix) && len(base) > len(suffix) {
			return true
		}
	}
	return false
}

// ManifestParser splits manifest files into entries and validates each one.
type ManifestParser struct {
	schema *gojsonschema.Schema
}

// NewManifestParser compiles ManifestSchema.
func NewManifestParser() (*ManifestParser, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(ManifestSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile manifest schema: %w", err)
	}
	return &ManifestParser{schema: schema}, nil
}

// Entries decodes a manifest file into its raw entries. A file holds either
// one manifest object or {"tools": [...]}. YAML files are converted to JSON.
func (p *ManifestParser) Entries(name string, data []byte) ([]json.RawMessage, error) {
	if ext := filepath.Ext(name); ext == ".yaml" || ext == ".yml" {
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse manifest YAML: %w", err)
		}
		converted, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to convert manifest YAML: %w", err)
		}
		data = converted
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse manifest JSON: %w", err)
	}
	if doc == nil {
		return nil, errors.New("manifest must be an object")
	}

	list, ok := doc["tools"]
	if !ok {
		return []json.RawMessage{data}, nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(list, &entries); err != nil {
		return nil, fmt.Errorf("manifest tools must be an array: %w", err)
	}
	return entries, nil
}

// Parse validates one raw entry against ManifestSchema and decodes it.
func (p *ManifestParser) Parse(entry json.RawMessage) (Manifest, error) {
	result, err := p.schema.Validate(gojsonschema.NewBytesLoader(entry))
	if err != nil {
		return Manifest{}, fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, re := range result.Errors() {
			msgs = append(msgs, re.String())
		}
		return Manifest{}, fmt.Errorf("manifest schema validation failed: %s", strings.Join(msgs, "; "))
	}

	var m Manifest
	if err := json.Unmarshal(entry, &m); err != nil {
		return Manifest{}, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return m, nil
}
