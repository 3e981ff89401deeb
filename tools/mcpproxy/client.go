package mcpproxy

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/harun/toolhost/pkg/mcpserver"
	"github.com/harun/toolhost/pkg/tool"
)

const maxMessageSize = 10 * 1024 * 1024

var errNotRunning = errors.New("MCP server is not running")

var (
	clientsMu sync.Mutex
	clients   = make(map[string]*Client)
)

// acquire returns the client shared by every tool that launches the same
// command line with the same environment.
func acquire(command string, args []string, env map[string]string) *Client {
	pairs := make([]string, 0, len(env))
	for k, v := range env {
		pairs = append(pairs, k+"="+os.ExpandEnv(v))
	}
	sort.Strings(pairs)

	key := strings.Join(append(append([]string{command}, args...), pairs...), "\x00")

	clientsMu.Lock()
	defer clientsMu.Unlock()
	if c, ok := clients[key]; ok {
		return c
	}
	c := newClient(command, args, pairs)
	clients[key] = c
	return c
}

// Shutdown stops every upstream server process started by this package.
// Clients restart on their next call.
func Shutdown() {
	clientsMu.Lock()
	all := make([]*Client, 0, len(clients))
	for _, c := range clients {
		all = append(all, c)
	}
	clientsMu.Unlock()

	for _, c := range all {
		c.Stop()
	}
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type response struct {
	ID     json.RawMessage     `json:"id"`
	Method string              `json:"method,omitempty"`
	Result json.RawMessage     `json:"result,omitempty"`
	Error  *mcpserver.RPCError `json:"error,omitempty"`
}

type reply struct {
	resp *response
	err  error
}

// Client speaks MCP over the stdio of a child process. The process is
// started on first use and restarted after it exits.
type Client struct {
	command string
	args    []string
	env     []string
	logger  zerolog.Logger

	startMu sync.Mutex

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	done    chan struct{}
	nextID  int64
	pending map[int64]chan reply

	writeMu sync.Mutex
}

func newClient(command string, args, env []string) *Client {
	return &Client{
		command: command,
		args:    args,
		env:     env,
		logger:  log.With().Str("component", "mcp-client").Str("command", command).Logger(),
		pending: make(map[int64]chan reply),
	}
}

// CallTool invokes name on the upstream server.
func (c *Client) CallTool(ctx context.Context, name string, args tool.Args) (*tool.Result, error) {
	if err := c.start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start MCP server: %w", err)
	}

	raw, err := c.call(ctx, mcpserver.MethodToolsCall, map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return nil, err
	}

	var result tool.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("invalid tools/call result: %w", err)
	}
	return &result, nil
}

// Running reports whether the server process is alive.
func (c *Client) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cmd != nil
}

// Stop kills the server process and waits for it to be reaped.
func (c *Client) Stop() {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	c.kill()
}

func (c *Client) kill() {
	c.mu.Lock()
	cmd, stdin, done := c.cmd, c.stdin, c.done
	c.mu.Unlock()

	if cmd == nil {
		return
	}
	_ = stdin.Close()
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	<-done
}

func (c *Client) start(ctx context.Context) error {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	if c.Running() {
		return nil
	}

	// The process outlives the call that started it.
	cmd := exec.Command(c.command, c.args...)
	cmd.Env = append(os.Environ(), c.env...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.cmd = cmd
	c.stdin = stdin
	c.done = done
	c.mu.Unlock()

	go c.listen(cmd, stdout, done)

	if err := c.initialize(ctx); err != nil {
		c.kill()
		return fmt.Errorf("initialize: %w", err)
	}

	c.logger.Info().Int("pid", cmd.Process.Pid).Msg("MCP server started")
	return nil
}

func (c *Client) initialize(ctx context.Context) error {
	params := map[string]any{
		"protocolVersion": mcpserver.ProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "toolhost",
			"version": "0.1.0",
		},
	}
	if _, err := c.call(ctx, mcpserver.MethodInitialize, params); err != nil {
		return err
	}
	return c.notify(mcpserver.MethodInitialized)
}

func (c *Client) listen(cmd *exec.Cmd, stdout io.Reader, done chan struct{}) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)

	for scanner.Scan() {
		var resp response
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			c.logger.Error().Err(err).Msg("Failed to unmarshal MCP response")
			continue
		}
		if resp.Method != "" {
			// Server-initiated requests and notifications are not supported.
			continue
		}

		var id int64
		if err := json.Unmarshal(resp.ID, &id); err != nil {
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[id]
		delete(c.pending, id)
		c.mu.Unlock()

		if ok {
			ch <- reply{resp: &resp}
		}
	}

	waitErr := cmd.Wait()

	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[int64]chan reply)
	c.cmd = nil
	c.stdin = nil
	c.done = nil
	c.mu.Unlock()

	exitErr := fmt.Errorf("MCP server %s exited", c.command)
	if waitErr != nil {
		exitErr = fmt.Errorf("MCP server %s exited: %w", c.command, waitErr)
	}
	c.logger.Warn().Err(waitErr).Int("pending", len(pending)).Msg("MCP server stopped")

	for _, ch := range pending {
		ch <- reply{err: exitErr}
	}
	close(done)
}

func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	if c.stdin == nil {
		c.mu.Unlock()
		return nil, errNotRunning
	}
	c.nextID++
	id := c.nextID
	ch := make(chan reply, 1)
	c.pending[id] = ch
	stdin := c.stdin
	c.mu.Unlock()

	if err := c.write(stdin, request{JSONRPC: mcpserver.JSONRPCVersion, ID: &id, Method: method, Params: params}); err != nil {
		c.forget(id)
		return nil, err
	}

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		if r.resp.Error != nil {
			return nil, &tool.Error{
				Code:    tool.Code(r.resp.Error.Code),
				Message: r.resp.Error.Message,
				Data:    r.resp.Error.Data,
			}
		}
		return r.resp.Result, nil
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	}
}

func (c *Client) notify(method string) error {
	c.mu.Lock()
	stdin := c.stdin
	c.mu.Unlock()
	if stdin == nil {
		return errNotRunning
	}
	return c.write(stdin, request{JSONRPC: mcpserver.JSONRPCVersion, Method: method})
}

func (c *Client) write(w io.Writer, req request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", req.Method, err)
	}
	return nil
}

func (c *Client) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}
