package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/toolhost/internal/config"
	"github.com/harun/toolhost/internal/tracing"
	"github.com/harun/toolhost/pkg/catalog"
	"github.com/harun/toolhost/pkg/mcpserver"
)

const shutdownTimeout = 10 * time.Second

var (
	serveTransport string
	serveToolsDir  string
	serveWatch     bool
	servePort      int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the tool registry over MCP",
	Long: `Serve the tool registry over the Model Context Protocol.
With the stdio transport, JSON-RPC messages are read line by line from stdin
and responses are written to stdout; logs go to stderr. The websocket transport
listens on /ws and /rpc, with /metrics and /healthz alongside.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveTransport, "transport", "", "transport to serve (stdio, websocket)")
	serveCmd.Flags().StringVar(&serveToolsDir, "tools-dir", "", "directory scanned for tool manifests")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "reload tools when manifests change")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "websocket listen port")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyServeFlags(cmd, cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := tracing.InitOpenTelemetry(cfg.Server.Name, cfg.Server.Version); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to initialize tracing")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = tracing.ShutdownOpenTelemetry(shutdownCtx)
	}()

	if cfg.Tools.Watch {
		watcher, err := a.watch(ctx)
		if err != nil {
			return err
		}
		defer watcher.Stop()
	}

	handler := mcpserver.NewHandler(
		mcpserver.ServerInfo{Name: cfg.Server.Name, Version: cfg.Server.Version},
		a.registry,
		a.logger,
	)

	a.logger.Info().
		Str("transport", cfg.Server.Transport).
		Int("tools", len(a.registry.Names())).
		Msg("Serving tools")

	switch cfg.Server.Transport {
	case config.TransportWebSocket:
		return a.serveWebSocket(ctx, handler)
	default:
		err := handler.ServeStdio(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
}

func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("transport") {
		cfg.Server.Transport = serveTransport
	}
	if flags.Changed("tools-dir") {
		cfg.Tools.Dir = serveToolsDir
	}
	if flags.Changed("watch") {
		cfg.Tools.Watch = serveWatch
	}
	if flags.Changed("port") {
		cfg.Server.Port = servePort
	}
}

// watch reloads the registry whenever a manifest under the tools directory
// changes.
func (a *app) watch(ctx context.Context) (*catalog.Watcher, error) {
	watcher, err := catalog.NewWatcher(catalog.WatcherConfig{
		Root:     a.cfg.Tools.Dir,
		Debounce: time.Duration(a.cfg.Tools.DebounceMs) * time.Millisecond,
		OnChange: func() {
			if err := a.registry.Reload(ctx); err != nil {
				a.logger.Error().Err(err).Msg("Failed to reload tools")
			}
		},
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Start(); err != nil {
		return nil, fmt.Errorf("failed to start watcher: %w", err)
	}
	return watcher, nil
}

func (a *app) serveWebSocket(ctx context.Context, handler *mcpserver.Handler) error {
	serverCfg := mcpserver.Config{
		Host:    a.cfg.Server.Host,
		Port:    a.cfg.Server.Port,
		Handler: handler,
		Logger:  a.logger,
	}
	if a.cfg.Metrics.Enabled {
		serverCfg.Metrics = a.metrics.Handler()
	}

	server, err := mcpserver.NewServer(serverCfg)
	if err != nil {
		return err
	}
	if err := server.Start(); err != nil {
		return err
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Stop(shutdownCtx)
}
