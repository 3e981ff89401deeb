package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolhost/pkg/tool"
)

const testKind = "catalog-test"

func init() {
	RegisterKind(testKind, func(m Manifest) (Factory, error) {
		var cfg struct {
			Reply string `json:"reply"`
			Fail  bool   `json:"fail"`
		}
		if err := m.DecodeConfig(&cfg); err != nil {
			return nil, err
		}
		if cfg.Fail {
			return nil, errors.New("configured to fail")
		}
		return func() tool.Tool {
			return tool.New(m.Descriptor(), m.Validator(), func(ctx context.Context, args tool.Args) (*tool.Result, error) {
				return tool.Text(cfg.Reply), nil
			})
		}, nil
	})

	Register(func() tool.Tool {
		return tool.New(tool.Descriptor{Name: "compiled"}, tool.Structural(), func(ctx context.Context, args tool.Args) (*tool.Result, error) {
			return tool.Text("compiled"), nil
		})
	})
}

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).Level(zerolog.Disabled)
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func manifestJSON(name string) string {
	return `{"name": "` + name + `", "description": "test tool", "kind": "` + testKind + `", "config": {"reply": "` + name + `"}}`
}

type failureCounter struct {
	mu      sync.Mutex
	reasons map[string]int
}

func (f *failureCounter) hook(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reasons == nil {
		f.reasons = make(map[string]int)
	}
	f.reasons[reason]++
}

func (f *failureCounter) count(reason string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reasons[reason]
}

func names(factories []Factory) []string {
	out := make([]string, 0, len(factories))
	for _, f := range factories {
		out = append(out, f().Definition().Name)
	}
	return out
}

func TestDiscoverer_Scan(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "b.tool.json", manifestJSON("b"))
	writeFile(t, root, "nested/deeper/a.tool.yaml", "name: a\nkind: "+testKind+"\n")
	writeFile(t, root, "nested/c.tool.yml", "name: c\nkind: "+testKind+"\n")
	writeFile(t, root, "README.md", "not a tool")
	writeFile(t, root, "plain.json", "{}")
	writeFile(t, root, ".tool.json", "{}")

	d, err := NewDiscoverer(testLogger())
	require.NoError(t, err)

	paths, err := d.Scan(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.tool.json", "nested/c.tool.yml", "nested/deeper/a.tool.yaml"}, paths)
}

func TestDiscoverer_ScanRejectsBadRoot(t *testing.T) {
	d, err := NewDiscoverer(testLogger())
	require.NoError(t, err)

	_, err = d.Scan(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	_, err = d.Scan(file)
	assert.ErrorContains(t, err, "not a directory")
}

func TestDiscoverer_SkipsBadFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "good1.tool.json", manifestJSON("good1"))
	writeFile(t, root, "sub/good2.tool.json", manifestJSON("good2"))
	writeFile(t, root, "sub/good3.tool.yaml", "name: good3\nkind: "+testKind+"\nconfig:\n  reply: yaml\n")
	writeFile(t, root, "broken.tool.json", `{"name": "broken",`)
	writeFile(t, root, "broken.tool.yaml", "name: [unterminated\n")
	writeFile(t, root, "array.tool.json", `[1, 2]`)

	failures := &failureCounter{}
	d, err := NewDiscoverer(testLogger(), WithFailureHook(failures.hook))
	require.NoError(t, err)

	factories, err := d.Discover(context.Background(), root)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"good1", "good2", "good3"}, names(factories))
	assert.Equal(t, 3, failures.count(FailureParse))
}

func TestDiscoverer_SkipsBadEntries(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "bundle.tool.json", `{
		"tools": [
			`+manifestJSON("first")+`,
			{"description": "missing name", "kind": "`+testKind+`"},
			{"name": "bad name!", "kind": "`+testKind+`"},
			{"name": "unknown", "kind": "no-such-kind"},
			{"name": "fails", "kind": "`+testKind+`", "config": {"fail": true}},
			{"name": "typo", "kind": "`+testKind+`", "config": {"replly": "x"}},
			`+manifestJSON("last")+`
		]
	}`)

	failures := &failureCounter{}
	d, err := NewDiscoverer(testLogger(), WithFailureHook(failures.hook))
	require.NoError(t, err)

	factories, err := d.Discover(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "last"}, names(factories))
	assert.Equal(t, 2, failures.count(FailureInvalid))
	assert.Equal(t, 1, failures.count(FailureUnknownKind))
	assert.Equal(t, 2, failures.count(FailureBuild))
}

func TestDiscoverer_ManifestDrivesDefinition(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "greet.tool.yaml", `
name: greet
description: Greets
kind: `+testKind+`
strict: true
inputSchema:
  type: object
  properties:
    name:
      type: string
      minLength: 1
  required: [name]
config:
  reply: hello
`)

	d, err := NewDiscoverer(testLogger())
	require.NoError(t, err)

	factories, err := d.Discover(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, factories, 1)

	tl := factories[0]()
	def := tl.Definition()
	assert.Equal(t, "greet", def.Name)
	assert.Equal(t, "Greets", def.Description)
	assert.Equal(t, []string{"name"}, def.InputSchema.Required)
	assert.Equal(t, tool.StrategyStrict, tl.Validator().Strategy())

	_, err = tool.Call(context.Background(), tl, map[string]any{"name": ""})
	assert.Equal(t, tool.CodeInvalidParams, tool.CodeOf(err))

	result, err := tool.Call(context.Background(), tl, map[string]any{"name": "bob"})
	require.NoError(t, err)
	assert.Equal(t, "hello", result.String())
}

func TestDiscoverer_ManifestSchemaKeepsUnmodeledKeywords(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "leads.tool.json", `{
		"name": "leads",
		"description": "Leads by status",
		"kind": "`+testKind+`",
		"strict": true,
		"inputSchema": {
			"type": "object",
			"properties": {
				"status": {"type": "array", "items": {"type": "string"}, "minItems": 1},
				"email": {"type": "string", "format": "email"}
			},
			"required": ["status"],
			"additionalProperties": false
		},
		"config": {"reply": "ok"}
	}`)

	d, err := NewDiscoverer(testLogger())
	require.NoError(t, err)

	factories, err := d.Discover(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, factories, 1)

	tl := factories[0]()

	advertised, err := json.Marshal(tl.Definition().InputSchema)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "object",
		"properties": {
			"status": {"type": "array", "items": {"type": "string"}, "minItems": 1},
			"email": {"type": "string", "format": "email"}
		},
		"required": ["status"],
		"additionalProperties": false
	}`, string(advertised))

	tests := []struct {
		name string
		args map[string]any
	}{
		{"empty array", map[string]any{"status": []any{}}},
		{"bad email", map[string]any{"status": []any{"NEW"}, "email": "nope"}},
		{"undeclared property", map[string]any{"status": []any{"NEW"}, "other": 1.0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tool.Call(context.Background(), tl, tt.args)
			assert.Equal(t, tool.CodeInvalidParams, tool.CodeOf(err))
		})
	}

	result, err := tool.Call(context.Background(), tl, map[string]any{"status": []any{"NEW"}, "email": "a@b.co"})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.String())
}

func TestDiscoverer_HonorsContext(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.tool.json", manifestJSON("a"))

	d, err := NewDiscoverer(testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.Discover(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCatalog_LoadIsMemoized(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "one.tool.json", manifestJSON("one"))

	d, err := NewDiscoverer(testLogger())
	require.NoError(t, err)
	c := New(root, d, testLogger())

	first, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.Contains(t, names(first), "compiled")
	assert.Contains(t, names(first), "one")

	writeFile(t, root, "two.tool.json", manifestJSON("two"))

	second, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, names(first), names(second))

	rebuilt, err := c.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Contains(t, names(rebuilt), "two")
	assert.Len(t, rebuilt, len(first)+1)
}

func TestCatalog_CompiledToolsFirst(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "one.tool.json", manifestJSON("one"))

	d, err := NewDiscoverer(testLogger())
	require.NoError(t, err)

	factories, err := New(root, d, testLogger()).Load(context.Background())
	require.NoError(t, err)
	got := names(factories)
	assert.Equal(t, "one", got[len(got)-1])
	assert.Equal(t, names(Compiled()), got[:len(got)-1])
}

func TestCatalog_EmptyRootUsesCompiledOnly(t *testing.T) {
	d, err := NewDiscoverer(testLogger())
	require.NoError(t, err)

	factories, err := New("", d, testLogger()).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, names(Compiled()), names(factories))
}

func TestCatalog_MissingRootFails(t *testing.T) {
	d, err := NewDiscoverer(testLogger())
	require.NoError(t, err)

	c := New(filepath.Join(t.TempDir(), "missing"), d, testLogger())
	_, err = c.Load(context.Background())
	assert.Error(t, err)

	// A failed load is not cached.
	_, err = c.Load(context.Background())
	assert.Error(t, err)
}

func TestRegisterKind_Duplicate(t *testing.T) {
	assert.Panics(t, func() {
		RegisterKind(testKind, func(Manifest) (Factory, error) { return nil, nil })
	})
	assert.Contains(t, Kinds(), testKind)
}

func TestIsManifestFile(t *testing.T) {
	assert.True(t, IsManifestFile("dir/get-lead.tool.json"))
	assert.True(t, IsManifestFile("x.tool.yaml"))
	assert.True(t, IsManifestFile("x.tool.yml"))
	assert.False(t, IsManifestFile(".tool.json"))
	assert.False(t, IsManifestFile("x.json"))
	assert.False(t, IsManifestFile("x.tool.json.bak"))
}
