package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/harun/toolhost/internal/tracing"
)

// TraceHeader carries a caller supplied trace ID on HTTP requests.
const TraceHeader = "X-Trace-Id"

// Config holds server configuration
type Config struct {
	Host    string
	Port    int
	Handler *Handler
	// Metrics is served on /metrics when set.
	Metrics http.Handler
	Logger  zerolog.Logger
}

// Server exposes a Handler over WebSocket (/ws) and HTTP POST (/rpc).
type Server struct {
	addr     string
	handler  *Handler
	metrics  http.Handler
	logger   zerolog.Logger
	upgrader websocket.Upgrader
	server   *http.Server
	listener net.Listener

	clientsMu sync.Mutex
	clients   map[string]*client

	shutdownMu     sync.RWMutex
	isShuttingDown bool
	inFlightReqs   sync.WaitGroup
}

type client struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *client) send(resp *Response) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(resp)
}

// NewServer creates a server. Port 0 picks a free port.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}

	return &Server{
		addr:    net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port)),
		handler: cfg.Handler,
		metrics: cfg.Metrics,
		logger:  cfg.Logger.With().Str("component", "mcp-server").Logger(),
		clients: make(map[string]*client),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}, nil
}

// Routes returns the server's HTTP handler.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/rpc", s.handleRPC)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// Start begins listening and serves in the background.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", listener.Addr().String()).Msg("Starting MCP server")

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("MCP server error")
		}
	}()

	return nil
}

// Addr returns the listening address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Stop waits for in-flight requests, closes client connections and shuts
// the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down MCP server")

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-ctx.Done():
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	s.clientsMu.Lock()
	for _, c := range s.clients {
		_ = c.conn.Close()
	}
	s.clientsMu.Unlock()

	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info().Msg("MCP server stopped")
	return nil
}

func (s *Server) shuttingDown() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	return s.isShuttingDown
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.shuttingDown() {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID, err := gonanoid.New()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate client id")
		_ = conn.Close()
		return
	}
	c := &client{id: clientID, conn: conn}

	s.clientsMu.Lock()
	s.clients[clientID] = c
	s.clientsMu.Unlock()

	s.logger.Info().
		Str("clientId", clientID).
		Str("ip", r.RemoteAddr).
		Msg("Client connected")

	go s.handleClient(c)
}

// handleClient reads messages from a client until the connection closes.
func (s *Server) handleClient(c *client) {
	var pending sync.WaitGroup
	defer func() {
		pending.Wait()
		_ = c.conn.Close()
		s.clientsMu.Lock()
		delete(s.clients, c.id)
		s.clientsMu.Unlock()
		s.logger.Info().Str("clientId", c.id).Msg("Client disconnected")
	}()

	ctx := tracing.WithConnectionID(context.Background(), c.id)

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Error().Err(err).Str("clientId", c.id).Msg("WebSocket error")
			}
			return
		}

		if s.shuttingDown() {
			_ = c.send(&Response{
				JSONRPC: JSONRPCVersion,
				Error:   &RPCError{Code: -32000, Message: "server is shutting down"},
			})
			continue
		}

		s.inFlightReqs.Add(1)
		pending.Add(1)
		go func() {
			defer s.inFlightReqs.Done()
			defer pending.Done()

			resp := s.handler.HandleMessage(ctx, message)
			if resp == nil {
				return
			}
			if err := c.send(resp); err != nil {
				s.logger.Error().
					Err(err).
					Str("clientId", c.id).
					Msg("Failed to send response")
			}
		}()
	}
}

// handleRPC handles single-shot HTTP JSON-RPC requests.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.shuttingDown() {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	s.inFlightReqs.Add(1)
	defer s.inFlightReqs.Done()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageSize))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	ctx := tracing.NewRequestContext(r.Context(), r.Header.Get(TraceHeader))
	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Debug().Str("ip", r.RemoteAddr).Msg("Received HTTP RPC request")

	resp := s.handler.HandleMessage(ctx, body)

	w.Header().Set(TraceHeader, tracing.GetTraceID(ctx))
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Msg("Failed to encode RPC response")
	}
}
