package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/harun/toolhost/internal/tracing"
	"github.com/harun/toolhost/pkg/tool"
)

// Dispatcher is the tool side of the server: the definition list and name
// keyed invocation. *registry.Registry satisfies it.
type Dispatcher interface {
	Definitions() []tool.Descriptor
	Call(ctx context.Context, name string, raw any) (*tool.Result, error)
}

// Handler maps MCP methods onto a Dispatcher. It is transport independent
// and safe for concurrent use.
type Handler struct {
	info       ServerInfo
	dispatcher Dispatcher
	logger     zerolog.Logger
}

// NewHandler creates a handler.
func NewHandler(info ServerInfo, dispatcher Dispatcher, logger zerolog.Logger) *Handler {
	return &Handler{
		info:       info,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "mcp-handler").Logger(),
	}
}

// ParseRequest decodes and checks one JSON-RPC message.
func ParseRequest(data []byte) (*Request, *RPCError) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return nil, &RPCError{Code: int(tool.CodeInvalidRequest), Message: "Invalid request: batch requests are not supported"}
	}

	var req Request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return nil, &RPCError{Code: int(tool.CodeParseError), Message: "Parse error", Data: err.Error()}
	}
	if req.JSONRPC != JSONRPCVersion {
		return nil, &RPCError{Code: int(tool.CodeInvalidRequest), Message: "Invalid request: jsonrpc must be \"2.0\""}
	}
	if req.Method == "" {
		return nil, &RPCError{Code: int(tool.CodeInvalidRequest), Message: "Invalid request: missing method field"}
	}
	return &req, nil
}

// HandleMessage parses and handles one raw message. It returns nil when no
// response must be sent.
func (h *Handler) HandleMessage(ctx context.Context, data []byte) *Response {
	req, rpcErr := ParseRequest(data)
	if rpcErr != nil {
		h.logger.Warn().Int("code", rpcErr.Code).Str("error", rpcErr.Message).Msg("Rejected malformed message")
		return &Response{JSONRPC: JSONRPCVersion, Error: rpcErr}
	}
	return h.Handle(ctx, req)
}

// Handle runs one request. It returns nil for notifications.
func (h *Handler) Handle(ctx context.Context, req *Request) *Response {
	if req.IsNotification() {
		h.handleNotification(ctx, req)
		return nil
	}

	ctx = tracing.WithRequestID(ctx, string(req.ID))
	ctx = tracing.NewRequestContext(ctx, tracing.GetTraceID(ctx))
	ctx = tracing.AttachLogger(ctx, h.logger)
	logger := zerolog.Ctx(ctx)

	logger.Debug().Str("method", req.Method).Msg("Handling request")

	result, err := h.dispatch(ctx, req)
	if err != nil {
		rpcErr := toRPCError(err)
		logger.Debug().Str("method", req.Method).Int("code", rpcErr.Code).Msg("Request failed")
		return &Response{JSONRPC: JSONRPCVersion, ID: req.ID, Error: rpcErr}
	}
	return &Response{JSONRPC: JSONRPCVersion, ID: req.ID, Result: result}
}

func (h *Handler) dispatch(ctx context.Context, req *Request) (any, error) {
	switch req.Method {
	case MethodInitialize:
		return InitializeResult{
			ProtocolVersion: ProtocolVersion,
			Capabilities:    Capabilities{Tools: &ToolsCapability{ListChanged: false}},
			ServerInfo:      h.info,
		}, nil

	case MethodPing:
		return struct{}{}, nil

	case MethodToolsList:
		return ListToolsResult{Tools: h.dispatcher.Definitions()}, nil

	case MethodToolsCall:
		var params CallToolParams
		if len(req.Params) == 0 {
			return nil, tool.Errorf(tool.CodeInvalidParams, "missing params")
		}
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, tool.Errorf(tool.CodeInvalidParams, "invalid params: %v", err)
		}
		if params.Name == "" {
			return nil, tool.Errorf(tool.CodeInvalidParams, "missing tool name")
		}

		var args any
		if len(params.Arguments) > 0 {
			if err := json.Unmarshal(params.Arguments, &args); err != nil {
				return nil, tool.Errorf(tool.CodeInvalidParams, "invalid arguments: %v", err)
			}
		}
		return h.dispatcher.Call(ctx, params.Name, args)

	default:
		return nil, tool.Errorf(tool.CodeMethodNotFound, "Method not found: %s", req.Method)
	}
}

func (h *Handler) handleNotification(ctx context.Context, req *Request) {
	switch req.Method {
	case MethodInitialized:
		h.logger.Info().Msg("Client initialized")
	default:
		h.logger.Debug().Str("method", req.Method).Msg("Ignoring notification")
	}
}

// toRPCError maps a classified error to its JSON-RPC code. Anything else
// is an internal error.
func toRPCError(err error) *RPCError {
	if classified, ok := tool.AsError(err); ok {
		return &RPCError{Code: int(classified.Code), Message: classified.Message, Data: classified.Data}
	}
	return &RPCError{Code: int(tool.CodeInternalError), Message: fmt.Sprintf("internal error: %v", err)}
}
