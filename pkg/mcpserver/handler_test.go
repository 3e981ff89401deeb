package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolhost/pkg/registry"
	"github.com/harun/toolhost/pkg/tool"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	reg := registry.New(nil, testLogger())
	reg.Register(tool.New(tool.Descriptor{
		Name:        "echo",
		Description: "Echoes a message",
		InputSchema: tool.ObjectSchema(map[string]tool.Property{
			"message": {Type: "string"},
		}, "message"),
	}, tool.Structural(), func(ctx context.Context, args tool.Args) (*tool.Result, error) {
		return tool.Textf("Echo: %s", args.String("message")), nil
	}))
	reg.Register(tool.New(tool.Descriptor{Name: "explode"}, tool.Structural(), func(ctx context.Context, args tool.Args) (*tool.Result, error) {
		return nil, errors.New("kaboom")
	}))
	return NewHandler(ServerInfo{Name: "toolhost", Version: "test"}, reg, testLogger())
}

func handle(t *testing.T, h *Handler, msg string) map[string]any {
	t.Helper()
	resp := h.HandleMessage(context.Background(), []byte(msg))
	require.NotNil(t, resp)

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func errorCode(t *testing.T, resp map[string]any) float64 {
	t.Helper()
	rpcErr, ok := resp["error"].(map[string]any)
	require.True(t, ok, "expected error response, got %v", resp)
	return rpcErr["code"].(float64)
}

func TestHandler_Initialize(t *testing.T) {
	resp := handle(t, newTestHandler(t), `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05"}}`)

	assert.Equal(t, 1.0, resp["id"])
	result := resp["result"].(map[string]any)
	assert.Equal(t, ProtocolVersion, result["protocolVersion"])
	assert.Equal(t, map[string]any{"name": "toolhost", "version": "test"}, result["serverInfo"])
	assert.Contains(t, result["capabilities"], "tools")
}

func TestHandler_Notifications(t *testing.T) {
	h := newTestHandler(t)
	assert.Nil(t, h.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)))
	assert.Nil(t, h.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/cancelled","params":{}}`)))
}

func TestHandler_Ping(t *testing.T) {
	resp := handle(t, newTestHandler(t), `{"jsonrpc":"2.0","id":"p","method":"ping"}`)
	assert.Equal(t, "p", resp["id"])
	assert.Equal(t, map[string]any{}, resp["result"])
}

func TestHandler_ToolsList(t *testing.T) {
	resp := handle(t, newTestHandler(t), `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)

	tools := resp["result"].(map[string]any)["tools"].([]any)
	require.Len(t, tools, 2)

	echo := tools[0].(map[string]any)
	assert.Equal(t, "echo", echo["name"])
	assert.Equal(t, "Echoes a message", echo["description"])
	schema := echo["inputSchema"].(map[string]any)
	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, []any{"message"}, schema["required"])

	explode := tools[1].(map[string]any)
	assert.Equal(t, []any{}, explode["inputSchema"].(map[string]any)["required"])
}

func TestHandler_ToolsCall(t *testing.T) {
	resp := handle(t, newTestHandler(t), `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"echo","arguments":{"message":"hi"}}}`)

	result := resp["result"].(map[string]any)
	assert.Equal(t, []any{map[string]any{"type": "text", "text": "Echo: hi"}}, result["content"])
	assert.NotContains(t, result, "isError")
}

func TestHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		code tool.Code
	}{
		{name: "invalid params", msg: `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo","arguments":{}}}`, code: tool.CodeInvalidParams},
		{name: "missing arguments", msg: `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo"}}`, code: tool.CodeInvalidParams},
		{name: "missing params", msg: `{"jsonrpc":"2.0","id":1,"method":"tools/call"}`, code: tool.CodeInvalidParams},
		{name: "missing name", msg: `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"arguments":{}}}`, code: tool.CodeInvalidParams},
		{name: "unknown tool", msg: `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"nope","arguments":{}}}`, code: tool.CodeMethodNotFound},
		{name: "tool failure", msg: `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"explode","arguments":{}}}`, code: tool.CodeInternalError},
		{name: "unknown method", msg: `{"jsonrpc":"2.0","id":1,"method":"resources/list"}`, code: tool.CodeMethodNotFound},
		{name: "parse error", msg: `{"jsonrpc":`, code: tool.CodeParseError},
		{name: "wrong version", msg: `{"jsonrpc":"1.0","id":1,"method":"ping"}`, code: tool.CodeInvalidRequest},
		{name: "missing method", msg: `{"jsonrpc":"2.0","id":1}`, code: tool.CodeInvalidRequest},
		{name: "batch", msg: `[{"jsonrpc":"2.0","id":1,"method":"ping"}]`, code: tool.CodeInvalidRequest},
	}

	h := newTestHandler(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := handle(t, h, tt.msg)
			assert.Equal(t, float64(tt.code), errorCode(t, resp))
			assert.NotContains(t, resp, "result")
		})
	}
}

func TestHandler_RequestLoggerReachesTools(t *testing.T) {
	var buf bytes.Buffer
	reg := registry.New(nil, testLogger())
	reg.Register(tool.New(tool.Descriptor{Name: "chatty"}, tool.Structural(), func(ctx context.Context, args tool.Args) (*tool.Result, error) {
		zerolog.Ctx(ctx).Info().Msg("inside tool")
		return tool.Text("ok"), nil
	}))
	h := NewHandler(ServerInfo{Name: "toolhost", Version: "test"}, reg, zerolog.New(&buf))

	resp := handle(t, h, `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"chatty","arguments":{}}}`)
	assert.NotContains(t, resp, "error")

	var line string
	for _, l := range strings.Split(buf.String(), "\n") {
		if strings.Contains(l, "inside tool") {
			line = l
		}
	}
	require.NotEmpty(t, line)
	assert.Contains(t, line, `"request_id":"7"`)
	assert.Contains(t, line, `"trace_id":`)
	assert.Contains(t, line, `"component":"mcp-handler"`)
}

func TestHandler_ErrorDetails(t *testing.T) {
	h := newTestHandler(t)

	resp := handle(t, h, `{"jsonrpc":"2.0","id":9,"method":"tools/call","params":{"name":"explode","arguments":{}}}`)
	rpcErr := resp["error"].(map[string]any)
	assert.Equal(t, "explode: kaboom", rpcErr["message"])
	assert.Equal(t, 9.0, resp["id"])

	resp = handle(t, h, `{"jsonrpc":"2.0","id":10,"method":"tools/call","params":{"name":"echo","arguments":{"message":5}}}`)
	rpcErr = resp["error"].(map[string]any)
	assert.Contains(t, rpcErr["message"], "message: must be of type string")
	assert.Equal(t, []any{map[string]any{"path": "message", "reason": "must be of type string"}}, rpcErr["data"])

	resp = handle(t, h, `not json`)
	assert.Nil(t, resp["id"])
	assert.Contains(t, resp, "id")
}
