// Package mcpproxy provides the "mcp" manifest kind: tools forwarded to a
// tool of an external MCP server that runs as a child process and speaks
// JSON-RPC over stdio.
//
// Tools that launch the same command share one server process. The process
// starts on the first call, so discovering a proxy tool never spawns it.
package mcpproxy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harun/toolhost/pkg/catalog"
	"github.com/harun/toolhost/pkg/tool"
)

// Kind is the manifest kind handled by this package.
const Kind = "mcp"

const defaultTimeout = 10 * time.Second

func init() {
	catalog.RegisterKind(Kind, Build)
}

// Config is the config section of an mcp manifest.
type Config struct {
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env"`
	// RemoteTool defaults to the manifest name.
	RemoteTool string `json:"remote_tool"`
	Timeout    string `json:"timeout"`
}

// Tool forwards calls to a remote MCP tool.
type Tool struct {
	def       tool.Descriptor
	validator tool.Validator
	remote    string
	timeout   time.Duration
	client    *Client
}

// Build is the catalog.Builder for the mcp kind.
func Build(m catalog.Manifest) (catalog.Factory, error) {
	var cfg Config
	if err := m.DecodeConfig(&cfg); err != nil {
		return nil, err
	}
	if cfg.Command == "" {
		return nil, errors.New("mcp: command is required")
	}

	remote := cfg.RemoteTool
	if remote == "" {
		remote = m.Name
	}

	timeout := defaultTimeout
	if cfg.Timeout != "" {
		var err error
		timeout, err = time.ParseDuration(cfg.Timeout)
		if err != nil || timeout <= 0 {
			return nil, fmt.Errorf("mcp: invalid timeout %q", cfg.Timeout)
		}
	}

	client := acquire(cfg.Command, cfg.Args, cfg.Env)
	def := m.Descriptor()

	return func() tool.Tool {
		return &Tool{
			def:       def,
			validator: m.Validator(),
			remote:    remote,
			timeout:   timeout,
			client:    client,
		}
	}, nil
}

func (t *Tool) Definition() tool.Descriptor { return t.def }

func (t *Tool) Validator() tool.Validator { return t.validator }

// Execute forwards args to the remote tool. Remote JSON-RPC errors keep
// their code; transport failures are internal errors of this tool.
func (t *Tool) Execute(ctx context.Context, args tool.Args) (*tool.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	res, err := t.client.CallTool(ctx, t.remote, args)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("remote tool %s timed out after %s", t.remote, t.timeout)
	}
	return res, err
}
