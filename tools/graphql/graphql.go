// Package graphql provides the "graphql" manifest kind: tools that run one
// GraphQL operation against an upstream endpoint and return the selected
// part of the response as JSON text.
//
// Upstream failures (transport errors, non-2xx statuses and GraphQL errors)
// are reported as tool-local error results, not as call failures.
package graphql

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/harun/toolhost/pkg/catalog"
	"github.com/harun/toolhost/pkg/tool"
)

// Kind is the manifest kind handled by this package.
const Kind = "graphql"

const defaultTimeout = 30 * time.Second

func init() {
	catalog.RegisterKind(Kind, Build)
}

// Config is the config section of a graphql manifest.
type Config struct {
	Endpoint string `json:"endpoint"`
	// Headers values may reference environment variables as ${NAME}.
	Headers map[string]string `json:"headers"`
	// Exactly one of Query and QueryFile is set. QueryFile is resolved
	// against the manifest's directory.
	Query     string `json:"query"`
	QueryFile string `json:"query_file"`
	// Variables maps GraphQL variable names to argument names. When empty,
	// every argument is sent under its own name.
	Variables map[string]string `json:"variables"`
	// ResultPath is a gjson path into the response's data object.
	ResultPath string `json:"result_path"`
	// Derive adds computed fields to every selected object. A template of
	// the form "{path}" copies the value at path; other templates are
	// interpolated as strings. A field whose references are all missing is
	// null.
	Derive  map[string]string `json:"derive"`
	Timeout string            `json:"timeout"`
}

// Tool runs a GraphQL operation.
type Tool struct {
	def       tool.Descriptor
	validator tool.Validator
	cfg       Config
	query     string
	timeout   time.Duration
	client    *http.Client
}

// Build is the catalog.Builder for the graphql kind.
func Build(m catalog.Manifest) (catalog.Factory, error) {
	var cfg Config
	if err := m.DecodeConfig(&cfg); err != nil {
		return nil, err
	}

	cfg.Endpoint = strings.TrimSpace(os.ExpandEnv(cfg.Endpoint))
	if cfg.Endpoint == "" {
		return nil, errors.New("graphql: endpoint is required")
	}

	query, err := loadQuery(cfg, m.Dir)
	if err != nil {
		return nil, err
	}

	timeout := defaultTimeout
	if cfg.Timeout != "" {
		timeout, err = time.ParseDuration(cfg.Timeout)
		if err != nil || timeout <= 0 {
			return nil, fmt.Errorf("graphql: invalid timeout %q", cfg.Timeout)
		}
	}

	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = os.ExpandEnv(v)
	}
	cfg.Headers = headers

	def := m.Descriptor()
	return func() tool.Tool {
		return &Tool{
			def:       def,
			validator: m.Validator(),
			cfg:       cfg,
			query:     query,
			timeout:   timeout,
			client:    &http.Client{Timeout: timeout},
		}
	}, nil
}

func loadQuery(cfg Config, dir string) (string, error) {
	switch {
	case cfg.Query != "" && cfg.QueryFile != "":
		return "", errors.New("graphql: query and query_file are mutually exclusive")
	case cfg.Query != "":
		return cfg.Query, nil
	case cfg.QueryFile != "":
		path := cfg.QueryFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("graphql: failed to read query file: %w", err)
		}
		return string(data), nil
	default:
		return "", errors.New("graphql: query or query_file is required")
	}
}

func (t *Tool) Definition() tool.Descriptor { return t.def }

func (t *Tool) Validator() tool.Validator { return t.validator }

func (t *Tool) Execute(ctx context.Context, args tool.Args) (*tool.Result, error) {
	logger := zerolog.Ctx(ctx).With().Str("endpoint", t.cfg.Endpoint).Logger()

	body, err := t.requestBody(args)
	if err != nil {
		return nil, err
	}

	data, err := t.post(ctx, body)
	if err != nil {
		logger.Warn().Err(err).Msg("GraphQL request failed")
		return tool.ErrorText("Error calling GraphQL API: %v", err), nil
	}

	out, err := t.extract(data)
	if err != nil {
		logger.Warn().Err(err).Msg("GraphQL response rejected")
		return tool.ErrorText("Error calling GraphQL API: %v", err), nil
	}
	return tool.Text(out), nil
}

// requestBody assembles {"query": ..., "variables": {...}}.
func (t *Tool) requestBody(args tool.Args) ([]byte, error) {
	body, err := sjson.SetBytes([]byte(`{}`), "query", t.query)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	variables := make(map[string]any)
	if len(t.cfg.Variables) == 0 {
		for name, value := range args {
			variables[name] = value
		}
	} else {
		for variable, arg := range t.cfg.Variables {
			if value, ok := args[arg]; ok {
				variables[variable] = value
			}
		}
	}

	body, err = sjson.SetBytes(body, "variables", variables)
	if err != nil {
		return nil, fmt.Errorf("failed to encode variables: %w", err)
	}
	return body, nil
}

func (t *Tool) post(ctx context.Context, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range t.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		// GraphQL servers often describe the failure in an errors array.
		if msg := graphQLErrors(data); msg != "" {
			return nil, fmt.Errorf("status %d: %s", resp.StatusCode, msg)
		}
		message := strings.TrimSpace(string(data))
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, message)
	}
	return data, nil
}

// extract checks the response for GraphQL errors, selects the result and
// applies derived fields.
func (t *Tool) extract(data []byte) (string, error) {
	if !gjson.ValidBytes(data) {
		return "", errors.New("response is not valid JSON")
	}
	if msg := graphQLErrors(data); msg != "" {
		return "", errors.New(msg)
	}

	path := "data"
	if t.cfg.ResultPath != "" {
		path = "data." + t.cfg.ResultPath
	}
	selected := gjson.GetBytes(data, path)
	if !selected.Exists() {
		return "null", nil
	}
	if len(t.cfg.Derive) == 0 {
		return compact(selected.Raw), nil
	}

	if selected.IsArray() {
		out := []byte(`[]`)
		var err error
		for _, item := range selected.Array() {
			out, err = sjson.SetRawBytes(out, "-1", []byte(t.derive(item)))
			if err != nil {
				return "", err
			}
		}
		return string(out), nil
	}
	return t.derive(selected), nil
}

// derive returns item with the configured fields appended in name order.
// Values that are not objects are returned unchanged.
func (t *Tool) derive(item gjson.Result) string {
	raw := compact(item.Raw)
	if !item.IsObject() {
		return raw
	}
	for _, field := range slices.Sorted(maps.Keys(t.cfg.Derive)) {
		value := evalTemplate(item, t.cfg.Derive[field])
		updated, err := sjson.SetRaw(raw, escapePath(field), value)
		if err == nil {
			raw = updated
		}
	}
	return raw
}

// evalTemplate returns the raw JSON value of template evaluated on item.
func evalTemplate(item gjson.Result, template string) string {
	if ref, ok := singleRef(template); ok {
		v := item.Get(ref)
		if !v.Exists() || v.Type == gjson.Null {
			return "null"
		}
		return v.Raw
	}

	var (
		b     strings.Builder
		found bool
		rest  = template
	)
	for {
		start := strings.IndexByte(rest, '{')
		if start < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:start])
		v := item.Get(rest[start+1 : start+end])
		if v.Exists() && v.Type != gjson.Null {
			found = true
			b.WriteString(v.String())
		}
		rest = rest[start+end+1:]
	}
	if !found && strings.Contains(template, "{") {
		return "null"
	}
	encoded, _ := sjson.Set(`{"v":""}`, "v", b.String())
	return gjson.Get(encoded, "v").Raw
}

func singleRef(template string) (string, bool) {
	if len(template) < 3 || template[0] != '{' || template[len(template)-1] != '}' {
		return "", false
	}
	inner := template[1 : len(template)-1]
	if strings.ContainsAny(inner, "{}") {
		return "", false
	}
	return inner, true
}

// graphQLErrors joins the messages of a non-empty errors array.
func graphQLErrors(data []byte) string {
	errs := gjson.GetBytes(data, "errors")
	if !errs.IsArray() || len(errs.Array()) == 0 {
		return ""
	}
	var msgs []string
	for _, e := range errs.Array() {
		if msg := e.Get("message").String(); msg != "" {
			msgs = append(msgs, msg)
		}
	}
	if len(msgs) == 0 {
		return "unknown GraphQL error"
	}
	return strings.Join(msgs, "; ")
}

func compact(raw string) string {
	return gjson.Get(raw, "@ugly").Raw
}

func escapePath(field string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`, "|", `\|`, "#", `\#`, "@", `\@`)
	return r.Replace(field)
}
