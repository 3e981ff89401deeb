package mcpproxy

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolhost/pkg/catalog"
	"github.com/harun/toolhost/pkg/tool"
)

const helperEnv = "TOOLHOST_MCP_HELPER"

// TestMain turns the test binary into a small MCP server when started by
// the tests below.
func TestMain(m *testing.M) {
	if os.Getenv(helperEnv) == "1" {
		serveHelper()
		os.Exit(0)
	}
	code := m.Run()
	Shutdown()
	os.Exit(code)
}

func serveHelper() {
	scanner := bufio.NewScanner(os.Stdin)
	encoder := json.NewEncoder(os.Stdout)
	initialized := false

	for scanner.Scan() {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
			Params struct {
				Name      string         `json:"name"`
				Arguments map[string]any `json:"arguments"`
			} `json:"params"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}

		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		switch req.Method {
		case "initialize":
			resp["result"] = map[string]any{
				"protocolVersion": "2024-11-05",
				"capabilities":    map[string]any{"tools": map[string]any{}},
				"serverInfo":      map[string]any{"name": "helper", "version": "1"},
			}
		case "notifications/initialized":
			initialized = true
			continue
		case "tools/call":
			switch req.Params.Name {
			case "remote-echo":
				resp["result"] = map[string]any{
					"content": []map[string]any{{
						"type": "text",
						"text": fmt.Sprintf("remote: %v (initialized=%t, pid=%d)", req.Params.Arguments["message"], initialized, os.Getpid()),
					}},
				}
			case "remote-env":
				resp["result"] = map[string]any{
					"content": []map[string]any{{"type": "text", "text": os.Getenv("HELPER_GREETING")}},
				}
			case "remote-soft-fail":
				resp["result"] = map[string]any{
					"content": []map[string]any{{"type": "text", "text": "not today"}},
					"isError": true,
				}
			case "remote-invalid":
				resp["error"] = map[string]any{"code": -32602, "message": "count must be positive", "data": "count"}
			case "remote-crash":
				os.Exit(3)
			case "remote-slow":
				time.Sleep(2 * time.Second)
				resp["result"] = map[string]any{"content": []map[string]any{}}
			default:
				resp["error"] = map[string]any{"code": -32601, "message": "unknown tool " + req.Params.Name}
			}
		default:
			resp["error"] = map[string]any{"code": -32601, "message": "Method not found: " + req.Method}
		}
		_ = encoder.Encode(resp)
	}
}

// proxy builds a proxy tool backed by the helper server. Each test passes its
// own marker so that it gets a dedicated server process.
func proxy(t *testing.T, name, remote, marker string, extra map[string]any) tool.Tool {
	t.Helper()

	config := map[string]any{
		"command":     os.Args[0],
		"args":        []any{"-test.run=^$", "-marker=" + marker},
		"env":         map[string]any{helperEnv: "1", "HELPER_GREETING": "${PROXY_TEST_GREETING}"},
		"remote_tool": remote,
	}
	for k, v := range extra {
		config[k] = v
	}

	factory, err := Build(catalog.Manifest{
		Name: name,
		Kind: Kind,
		InputSchema: tool.ObjectSchema(map[string]tool.Property{
			"message": {Type: "string"},
		}),
		Config: config,
	})
	require.NoError(t, err)
	return factory()
}

func TestProxyForwardsCalls(t *testing.T) {
	echo := proxy(t, "echo-remote", "remote-echo", t.Name(), nil)

	res, err := tool.Call(context.Background(), echo, map[string]any{"message": "hello"})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, res.String(), "remote: hello (initialized=true")
}

func TestProxySharesServerProcess(t *testing.T) {
	a := proxy(t, "a", "remote-echo", t.Name(), nil)
	b := proxy(t, "b", "remote-echo", t.Name(), nil)
	assert.Same(t, a.(*Tool).client, b.(*Tool).client)

	first, err := tool.Call(context.Background(), a, map[string]any{"message": "1"})
	require.NoError(t, err)
	second, err := tool.Call(context.Background(), b, map[string]any{"message": "2"})
	require.NoError(t, err)

	pid := func(r *tool.Result) string {
		s := r.String()
		return s[strings.Index(s, "pid="):]
	}
	assert.Equal(t, pid(first), pid(second))
}

func TestProxyDoesNotStartOnBuild(t *testing.T) {
	p := proxy(t, "lazy", "remote-echo", t.Name(), nil)
	assert.False(t, p.(*Tool).client.Running())
}

func TestProxyPassesEnvironment(t *testing.T) {
	t.Setenv("PROXY_TEST_GREETING", "sawasdee")
	p := proxy(t, "env", "remote-env", t.Name(), nil)

	res, err := tool.Call(context.Background(), p, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "sawasdee", res.String())
}

func TestProxyKeepsToolLocalErrors(t *testing.T) {
	p := proxy(t, "soft", "remote-soft-fail", t.Name(), nil)

	res, err := tool.Call(context.Background(), p, map[string]any{})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, "not today", res.String())
}

func TestProxyMapsRemoteErrors(t *testing.T) {
	p := proxy(t, "invalid", "remote-invalid", t.Name(), nil)

	_, err := tool.Call(context.Background(), p, map[string]any{})
	require.Error(t, err)

	terr, ok := tool.AsError(err)
	require.True(t, ok)
	assert.Equal(t, tool.CodeInvalidParams, terr.Code)
	assert.Equal(t, "count must be positive", terr.Message)
	assert.Equal(t, "count", terr.Data)
}

func TestProxyRestartsAfterCrash(t *testing.T) {
	crash := proxy(t, "crash", "remote-crash", t.Name(), nil)
	echo := proxy(t, "echo-after-crash", "remote-echo", t.Name(), nil)

	_, err := tool.Call(context.Background(), crash, map[string]any{})
	require.Error(t, err)
	assert.Equal(t, tool.CodeInternalError, tool.CodeOf(err))
	assert.Contains(t, err.Error(), "crash: ")
	assert.Contains(t, err.Error(), "exited")

	res, err := tool.Call(context.Background(), echo, map[string]any{"message": "again"})
	require.NoError(t, err)
	assert.Contains(t, res.String(), "remote: again")
}

func TestProxyTimeout(t *testing.T) {
	slow := proxy(t, "slow", "remote-slow", t.Name(), map[string]any{"timeout": "1s"})

	// Warm the process up so that the timeout only covers the call.
	echo := proxy(t, "warm", "remote-echo", t.Name(), nil)
	_, err := tool.Call(context.Background(), echo, map[string]any{"message": "warm"})
	require.NoError(t, err)

	_, err = tool.Call(context.Background(), slow, map[string]any{})
	require.Error(t, err)
	assert.Equal(t, tool.CodeInternalError, tool.CodeOf(err))
	assert.Contains(t, err.Error(), "timed out after 1s")
}

func TestProxyStartFailure(t *testing.T) {
	factory, err := Build(catalog.Manifest{
		Name:   "missing",
		Kind:   Kind,
		Config: map[string]any{"command": "/nonexistent/mcp-server"},
	})
	require.NoError(t, err)

	_, err = tool.Call(context.Background(), factory(), map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start MCP server")
}

func TestProxyShutdown(t *testing.T) {
	p := proxy(t, "stop", "remote-echo", t.Name(), nil)
	_, err := tool.Call(context.Background(), p, map[string]any{"message": "x"})
	require.NoError(t, err)
	require.True(t, p.(*Tool).client.Running())

	Shutdown()
	assert.False(t, p.(*Tool).client.Running())

	_, err = tool.Call(context.Background(), p, map[string]any{"message": "y"})
	require.NoError(t, err)
}

func TestBuildRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		config map[string]any
	}{
		{"missing command", map[string]any{}},
		{"bad timeout", map[string]any{"command": "server", "timeout": "-1s"}},
		{"unknown key", map[string]any{"command": "server", "cwd": "/tmp"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(catalog.Manifest{Name: "bad", Kind: Kind, Config: tt.config})
			assert.Error(t, err)
		})
	}
}

func TestRemoteToolDefaultsToManifestName(t *testing.T) {
	factory, err := Build(catalog.Manifest{Name: "search", Kind: Kind, Config: map[string]any{"command": "server"}})
	require.NoError(t, err)
	assert.Equal(t, "search", factory().(*Tool).remote)
}
